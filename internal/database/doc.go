// Package database provides SQLite persistence for the transcoding pipeline.
//
// It stores:
//   - registered source media (the reference library)
//   - job records with lifecycle state, options and error detail
//   - artifacts, superseded rather than updated on regeneration
//   - per-user watch progress and stream-start events
//
// The database uses WAL mode so API reads do not block worker writes. A
// partial unique index on jobs(dedupe_key) enforces at most one pending or
// processing job per key, backing the dispatcher's in-memory de-duplication.
package database
