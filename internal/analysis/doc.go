// Package analysis prepares the matched panel for the causal estimators:
// difference-in-differences features and frames, the staggered-adoption
// cohort export, the synthetic-control panel with its scaler and report,
// and the indexed series of the alternative-control comparison.
//
// The synthetic-control optimiser is external and reached through Solver.
package analysis
