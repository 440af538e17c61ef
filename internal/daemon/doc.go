// Package daemon coordinates the long-running vidmill process.
//
// It wires configuration, the job journal, the selected transcoding engine,
// the in-memory queue, and the HTTP control surface into a single lifecycle,
// with flock-based locking to prevent multiple instances sharing a data
// directory. Jobs left unfinished by a previous process are marked failed
// before the API starts accepting work.
//
// Keep orchestration here: scheduling lives in queue, engines live under
// executor, and request handling lives in api.
package daemon
