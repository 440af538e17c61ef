// Package executor is the boundary between the job queue and a transcoding
// engine.
//
// Engine implementations (local ffmpeg, remote HTTP service) only know how to
// run one submission to completion. Adapter wraps an Engine and turns it into
// a queue.Dispatcher with the guarantees the queue depends on: a single
// outstanding submission, a per-job deadline, panic containment, and exactly
// one reported outcome for every accepted submission.
package executor
