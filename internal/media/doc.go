// Package media models the media references a job operates on and the
// download library they are picked from.
//
// A Ref is resolved lazily: the queue stores it verbatim and only executors
// call Inputs to turn it into filesystem paths. Validation rejects empty names
// and any segment that could escape the library root.
package media
