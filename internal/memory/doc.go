// Package memory keeps the server and its ffmpeg children inside the
// container memory limit.
//
// ConfigureFromEnv sets GOMEMLIMIT from MEMORY_LIMIT (Kubernetes Downward API)
// times MEMORY_RATIO. The default ratio is low because encoder child
// processes are charged to the same cgroup as the Go heap.
//
// Monitor samples heap usage. Once usage crosses the critical watermark the
// dispatcher's workers wait in Monitor.Wait before launching another
// encoder. They resume when usage falls below the high watermark. Running
// jobs are never interrupted.
package memory
