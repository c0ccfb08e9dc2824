/*
Package progress tracks per-user playback positions and stream-start events.

Positions are upserted, one row per (user, media). A position at or beyond
90% of the known duration marks the item completed unless the caller says
otherwise. Heartbeats arriving faster than the configured throttle are
acknowledged without a write; final updates sent at stream end are always
written.

Stream starts are recorded by RecordStart in a detached goroutine. A failure
is logged and counted, never returned to the stream that triggered it.
*/
package progress
