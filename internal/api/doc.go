// Package api is the daemon's HTTP control surface and the client the CLI
// uses to talk to it.
//
// # Routes
//
// The router is built with gorilla/mux:
//
//	GET    /api/jobs                   in-memory queue snapshot
//	POST   /api/jobs                   enqueue a batch
//	GET    /api/jobs/history           journal rows, newest first
//	POST   /api/jobs/cancel-pending    fail every pending job
//	DELETE /api/jobs/terminal          drop finished jobs (history=1 also purges the journal)
//	GET    /api/jobs/{id}              one job
//	POST   /api/jobs/{id}/cancel       cancel the processing job
//	GET    /api/presets                list presets
//	GET    /api/presets/{name}         one preset
//	PUT    /api/presets/{name}         save a preset
//	DELETE /api/presets/{name}         delete a preset
//	POST   /api/uploads                store a video in the upload directory
//	GET    /api/library                download folders
//	GET    /api/library/{folder}       videos in one folder
//	GET    /api/health                 daemon and database health
//	GET    /metrics                    Prometheus metrics, when enabled
//
// # Design Notes
//
// DTOs use camelCase JSON tags like the editor's own payloads. Timestamps use
// RFC3339 with milliseconds. Batch submissions never fail as a whole: each
// item reports its own job ID or rejection so a client can show per-item
// results. Every response carries an X-Correlation-ID header that also tags
// the request's log lines.
package api
