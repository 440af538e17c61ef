// Package metrics exposes Prometheus collectors for the job queue and the
// daemon HTTP surface.
//
// A Metrics value owns its collectors and the registry they are registered
// with, so tests can build isolated instances. It implements queue.Observer:
//
//	m := metrics.New(prometheus.NewRegistry())
//	q := queue.New(adapter, queue.WithObserver(m))
//	router.Handle("/metrics", m.Handler())
//
// Finished jobs are labelled with their status and a short reason:
// "completed", "cancelled", "timeout", "stopped", or "error".
package metrics
