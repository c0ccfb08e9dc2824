// Package indexer keeps the media library in step with the media directory.
//
// A scan walks MEDIA_DIR and registers every recognized audio, video or
// image file through the library, so files dropped into the directory become
// addressable without an explicit registration call. Scanned files get a
// stable id derived from their path relative to the root; re-scanning the
// same tree updates rather than duplicates entries.
//
// Files whose size and modification time match the stored record are left
// alone, so the ffprobe cost of registration is paid only for new or changed
// files. Registration runs on a small worker pool because probing is
// I/O-bound and slow on network storage.
//
// Scans run once at startup and then every Interval. Hidden files and
// directories (prefixed with '.') are skipped. Entries for deleted files are
// kept: jobs and artifacts may still reference them, and Resolve reports the
// missing source when they are used.
package indexer
