// Package streaming delivers media bytes to playback clients.
//
// Direct delivery serves an original or transcoded file and honors a single
// byte range per request: "start-end", open-ended "start-" and suffix "-N".
// PlanRange decides the response shape before any body is written; a start
// at or past the end of the file yields 416 with an unsatisfied-range
// Content-Range carrying the file size.
//
// HLS delivery serves the master playlist, rendition playlists and segments
// from a published ladder directory. Playlists are sent with "no-cache" since
// regeneration replaces them; segments are immutable and cached for a year.
// File names are restricted to the ladder directory and one "vN" rendition
// level below it.
//
// Response bodies go through TimeoutWriter, which ends the copy when the client
// disconnects, a single write stalls or no data flows for the idle timeout.
package streaming
