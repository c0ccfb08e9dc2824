// Package main provides the entry point for the streamvio server.
//
// streamvio runs encoder jobs against a library of registered media files and
// delivers the results over HTTP. It transcodes to progressive MP4, builds HLS
// ladders, extracts thumbnails and storyboards, and streams sources or outputs
// with byte-range and HLS delivery.
//
// # Application Lifecycle
//
// The server follows a fixed initialization sequence:
//
//  1. Memory Configuration: Sets GOMEMLIMIT from environment or container limits
//  2. Configuration Loading: Reads environment variables and validates directories
//  3. Instance Lock: Takes an exclusive file lock in the cache directory
//  4. Database Initialization: Opens SQLite and fails jobs interrupted by a crash
//  5. Component Initialization:
//     - Encoder: ffmpeg/ffprobe invoker with transcode profiles
//     - Memory Monitor: Holds new encoder work while the heap is under pressure
//     - Library: Resolves media ids to files below MEDIA_DIR
//     - Indexer: Registers files found under MEDIA_DIR (if enabled)
//     - Progress Tracker: Throttled watch progress and stream-start events
//     - Pipeline: Job dispatcher, artifact catalog and streaming delivery
//     - Metrics Collector: Samples queue depth and job states
//  6. HTTP Server Setup: Configures routes and middleware and starts listeners
//  7. Graceful Shutdown: Handles SIGINT/SIGTERM and drains running jobs
//
// # Background Services
//
//   - Dispatcher workers: Run admitted jobs, at most TRANSCODE_WORKERS at once
//   - Memory Monitor: Samples runtime memory and gates job starts
//   - Indexer: Scans MEDIA_DIR at startup and every SCAN_INTERVAL
//   - Metrics Collector: Updates Prometheus gauges every 30 seconds
//
// # Graceful Shutdown
//
// On SIGINT or SIGTERM the server stops accepting connections, then closes
// the dispatcher. Queued jobs are cancelled and running encoder processes get
// CANCEL_GRACE to exit before they are killed. The sequence is bounded by a
// 30 second timeout.
//
// # Environment Variables
//
// Directories:
//
//	MEDIA_DIR     Root of the media library (default: /media)
//	CACHE_DIR     Job outputs and the instance lock (default: /cache)
//	DATABASE_DIR  SQLite database location (default: /database)
//
// Server:
//
//	PORT                  HTTP port (default: 8080)
//	METRICS_PORT          Prometheus port (default: 9090)
//	METRICS_ENABLED       Serve /metrics (default: true)
//	LOG_LEVEL             debug, info, warn or error (default: info)
//	LOG_STREAMS           Log stream requests (default: false)
//	LOG_HEALTH_CHECKS     Log health probe requests (default: true)
//	CORS_ALLOWED_ORIGINS  Comma-separated origins; empty disables CORS
//
// Encoding:
//
//	FFMPEG_PATH               ffmpeg binary (default: ffmpeg)
//	FFPROBE_PATH              ffprobe binary (default: ffprobe)
//	ENCODER_TIMEOUT           Per-invocation limit (default: 2h)
//	ENCODER_DIAGNOSTIC_LIMIT  Bytes of encoder stderr kept in errors (default: 2048)
//	PROFILES_FILE             TOML file with extra [profiles.<name>] tables
//	HLS_SEGMENT_SECONDS       Target segment length (default: 6)
//	TRANSCODE_WORKERS         Concurrent jobs (default: derived from CPUs)
//	TRANSCODE_QUEUE_SIZE      Pending job bound (default: 64)
//	CANCEL_GRACE_PERIOD       Time between interrupt and kill (default: 10s)
//	STORYBOARD_DEFAULT_COUNT  Default storyboard frame count (default: 10)
//	PROGRESS_THROTTLE         Minimum interval between progress writes (default: 10s)
//
// Library:
//
//	SCAN_ENABLED   Register files found under MEDIA_DIR (default: true)
//	SCAN_INTERVAL  Time between scans, 0 for startup only (default: 30m)
//	SCAN_WORKERS   Concurrent registrations during a scan (default: 3)
//
// Memory:
//
//	GOMEMLIMIT    Go heap limit, takes precedence
//	MEMORY_LIMIT  Container limit in bytes
//	MEMORY_RATIO  Share of MEMORY_LIMIT for the Go heap (default: 0.4)
//
// # Companion Tools
//
// cmd/streamvio-ctl inspects jobs, media and artifacts in the same database.
package main
