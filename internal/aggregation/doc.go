// Package aggregation turns annotated order lines into a balanced quarterly
// panel keyed by (postal code, quarter).
//
// Every postal code appears in every quarter observed anywhere in the data;
// cells without orders are zero. Returned lines count as items and returned
// items but contribute no order value.
package aggregation
