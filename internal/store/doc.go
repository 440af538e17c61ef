// Package store persists the job journal and named transform presets in
// SQLite.
//
// The journal is a history, not a work queue: the in-memory queue owns job
// state and reports every lifecycle transition through RecordJob, which
// upserts one row per job. Rows left pending or processing by a previous
// daemon are failed by MarkInterrupted on startup because jobs are never
// resumed. Presets map a trimmed name to a validated spec.
//
// The database runs in WAL mode with a busy timeout, and writes retry briefly
// on SQLITE_BUSY. The schema is versioned; a mismatch fails Open with
// ErrSchemaMismatch instead of migrating.
package store
