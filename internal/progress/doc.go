// Package progress produces cosmetic progress values for running jobs.
//
// Engines report no real progress, so the queue attaches an Estimator to the
// job it is processing and accepts whatever percentages it reports as long as
// they never move backwards. Values are decorative: nothing may infer
// completion from them, and the queue alone decides when a job reaches 100.
package progress
