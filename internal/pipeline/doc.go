// Package pipeline runs the stages of the store-opening analysis in order.
//
// Each stage is a Step registered in a Registry. The Runner executes the
// selected steps sequentially, one trace span per step, recording row
// counts and durations as metrics and keeping a RunState that the status
// server reports. Steps exchange typed data through Artifacts; a step whose
// input is absent loads it from storage, so every stage can run alone.
//
// Failing steps stop the run. The returned StageError names the step and
// wraps the cause, which keeps its errors.AppError type.
package pipeline
