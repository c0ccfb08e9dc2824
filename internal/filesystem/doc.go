/*
Package filesystem provides filesystem helpers for media and artifact paths.

Source media often lives on NFS. StatWithRetry and OpenWithRetry wrap os.Stat
and os.Open and retry only on ESTALE (stale file handle) with capped
exponential backoff; every other error is returned immediately.

	info, err := filesystem.StatWithRetry(path, filesystem.DefaultRetryConfig())

Operations are labeled with a volume ("media", "cache", "database") resolved by
longest-prefix match, and reported through an Observer installed at startup
with SetObserver.

IsWithinDir guards user-supplied segment names against path traversal, and
DirSize reports the size of the artifact tree for metrics.
*/
package filesystem
