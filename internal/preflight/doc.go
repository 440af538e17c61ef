// Package preflight provides readiness checks for the binaries, services, and
// filesystem paths vidmill depends on.
//
// These checks run in two contexts:
//   - The daemon logs a snapshot at startup and serves RunAll through
//     /api/health so operators see why jobs would fail before submitting.
//   - The CLI "vidmill doctor" command runs the same checks locally, without a
//     daemon.
//
// Checks only cover the configured engine: a remote setup never reports a
// missing ffmpeg.
package preflight
