// Package ffmpeg runs transform jobs through a local ffmpeg binary.
//
// Build turns a baked transform.Spec plus probe results into one ffmpeg
// argument slice with a single filter graph: black-bar crop, split-screen
// panes, rotation and flips, color adjustment, scaling, zoom drift, frame
// decimation, and AB fusion with a looped secondary clip. Engine resolves
// media references against the download library, probes inputs when the
// graph needs their geometry, writes <name>_edited outputs, and copies
// description and cover sidecars next to them.
package ffmpeg
