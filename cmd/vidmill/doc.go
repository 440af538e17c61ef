// Package main hosts the vidmill CLI entrypoint and command graph.
//
// The Cobra command tree runs the daemon in the foreground, manages a
// detached daemon process, and translates terminal invocations into HTTP
// calls against the daemon API: batch submission, job listing and
// cancellation, preset management, and library browsing. Spec validation,
// configuration scaffolding, doctor checks and log tailing run locally
// without a daemon.
//
// Keep this package lean: add functionality to the internal packages first,
// then surface it through a command or flag here.
package main
