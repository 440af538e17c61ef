// Package transform defines the TransformSpec value captured by every queued
// job: color adjustment, geometry, timing, bitrate, and anti-fingerprint
// fusion settings.
//
// A Spec is a plain value with no pointers, slices, or maps, so copying it
// yields an independent snapshot. Queue code relies on that when a job
// captures the spec at enqueue time. Validate reports every malformed field at
// once; Bake resolves the editor's one-shot randomization into fixed scalars
// before the spec reaches an executor.
//
// The JSON shape (camelCase keys, "original" sentinel for resolution
// dimensions) is the wire format shared with external engines and the preset
// store. Bump SchemaVersion when it changes incompatibly.
package transform
