// Package logs reads the daemon's log file for the CLI.
//
// The daemon writes one file per run and keeps a vidmill.log pointer to the
// current one; Tail reads the last lines and optionally follows the pointer,
// reopening it when a new run replaces the target.
package logs
