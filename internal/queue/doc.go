// Package queue schedules transform jobs one at a time against an executor.
//
// A Queue owns every Job it creates. All mutations (batch enqueue, the
// scheduler tick, executor callbacks, cancellation, and purge) run under one
// mutex, which is what keeps at most one job in StatusProcessing and keeps
// progress from moving backwards. The scheduler advances itself: each terminal
// transition runs the tick that promotes the oldest pending job, so no poller
// is needed.
//
// Cancellation is bookkeeping. The queue fails the job immediately and cancels
// the context it dispatched with, but an executor result that arrives later for
// that job is dropped as stale rather than trusted.
//
// Persistence, metrics, and progress estimation plug in through the Recorder,
// Observer, and progress.Estimator interfaces; the queue itself keeps state in
// memory only.
package queue
