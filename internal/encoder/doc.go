// Package encoder runs the external media tools (ffprobe and ffmpeg) that
// turn a source file into derived artifacts.
//
// An Invoker is stateless: every call builds a fresh argument list and runs
// its own child process, so one Invoker is shared by all dispatcher workers.
// Invoke switches on the concrete jobs.Options type:
//
//   - TranscodeOptions: one progressive MP4 (or M4A for audio-only sources)
//     built from a named profile plus explicit overrides.
//   - HLSOptions: a master playlist and a bitrate ladder from a single
//     ffmpeg run (split filter, one variant per rung).
//   - ThumbnailOptions: one JPEG frame at a clamped offset.
//   - StoryboardOptions: N evenly spaced JPEG frames plus a sprite sheet.
//
// Outputs are written under a temporary name in the destination directory
// and renamed into place only after the tool exits cleanly, so a failed or
// cancelled run never leaves a partial artifact at the final path.
//
// Failures are *apperr.Error values: ENCODING_FAILED with the tail of the
// tool's stderr, TIMEOUT when the per-invocation limit elapses, CANCELLED
// when the caller's context ends, SOURCE_MISSING when the input vanished and
// STORAGE_FAILED when output files cannot be moved into place.
//
// Cancellation is cooperative: the child receives SIGINT and is killed if
// it has not exited after the configured grace period.
package encoder
