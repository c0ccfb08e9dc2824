// Package metrics provides Prometheus instrumentation for streamvio.
//
// All metrics are registered with promauto on the default registry and
// prefixed with "streamvio_". They are served by the metrics listener, never
// on the API port.
//
// # Metric Categories
//
// HTTP: request counts, durations and in-flight requests, labeled by route
// template rather than raw path to keep cardinality bounded.
//
// Database: query counts and durations per operation, transaction durations,
// open connections.
//
// Jobs: admission outcomes (started, queued, deduplicated, cached, rejected),
// terminal states per kind, job duration, jobs processing, queue depth, and a
// periodically sampled count of persisted jobs per state.
//
// Encoder: invocation durations per operation and failures per error code.
//
// Streaming: bytes written and active streams per mode (direct, hls), and
// direct-stream range outcomes (full, partial, unsatisfiable).
//
// Progress: watch-progress writes (written, throttled, error) and watch events.
//
// Catalog: lookups per format with hit, miss or stale results, and the size of
// the output tree.
//
// Filesystem and memory: stat/open latency, ESTALE retries, heap usage ratio
// and whether job starts are paused.
//
// # Usage
//
// Call InitializeMetrics once at startup so every series exists from the first
// scrape, and SetAppInfo with the build version. Collector samples values that
// are cheaper to poll than to track, such as job counts per state.
package metrics
