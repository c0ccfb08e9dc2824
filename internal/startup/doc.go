// Package startup handles configuration loading and startup/shutdown logging.
//
// # Configuration
//
// All configuration is loaded from environment variables via [LoadConfig]:
//
//   - MEDIA_DIR: root of registered source media (default: /media)
//   - CACHE_DIR: output tree and lock file (default: /cache)
//   - DATABASE_DIR: sqlite database directory (default: /database)
//   - PORT, METRICS_PORT, METRICS_ENABLED: listeners (8080, 9090, true)
//   - FFMPEG_PATH, FFPROBE_PATH: encoder executables (default: resolved via PATH)
//   - TRANSCODE_WORKERS: concurrent encoder jobs (default: half a worker per CPU)
//   - TRANSCODE_QUEUE_SIZE: pending job bound (default: 64)
//   - ENCODER_TIMEOUT: per-invocation limit (default: 2h)
//   - CANCEL_GRACE_PERIOD: wait after a cancel before forcing (default: 10s)
//   - ENCODER_DIAGNOSTIC_LIMIT: stderr bytes kept on failed jobs (default: 2048)
//   - HLS_SEGMENT_SECONDS: target segment length (default: 6)
//   - STORYBOARD_DEFAULT_COUNT: frames when none are requested (default: 10)
//   - PROGRESS_THROTTLE: minimum spacing of position writes (default: 10s)
//   - CORS_ALLOWED_ORIGINS: comma-separated origins for browser players
//   - PROFILES_FILE: optional TOML file of [profiles.<name>] tables
//   - LOG_LEVEL, LOG_STREAMS, LOG_HEALTH_CHECKS: logging
//   - MEMORY_LIMIT, MEMORY_RATIO, GOMEMLIMIT: see package memory
//
// The database, cache and output directories are created and write-probed;
// failure is fatal. A missing media directory only logs a warning.
//
// Build-time variables are injected via ldflags and exposed via [GetBuildInfo].
package startup
