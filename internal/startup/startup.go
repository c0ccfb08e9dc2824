package startup

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"streamvio/internal/apperr"
	"streamvio/internal/encoder"
	"streamvio/internal/indexer"
	"streamvio/internal/jobs"
	"streamvio/internal/logging"
	"streamvio/internal/memory"
	"streamvio/internal/progress"
	"streamvio/internal/workers"

	"github.com/gorilla/mux"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the current build information
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// RouteInfo contains information about a registered route
type RouteInfo struct {
	Method string
	Path   string
	Name   string
}

const (
	defaultQueueSize   = 64
	maxEncoderWorkers  = 16
	lockFileName       = "streamvio.lock"
	outputDirName      = "outputs"
	databaseFileName   = "streamvio.db"
	defaultMetricsPort = "9090"

	defaultScanInterval = 30 * time.Minute
)

// Config holds all application configuration
type Config struct {
	MediaDir        string
	CacheDir        string
	DatabaseDir     string
	Port            string
	MetricsPort     string
	MetricsEnabled  bool
	LogStreams      bool
	LogHealthChecks bool

	// Encoder
	FFmpegPath        string
	FFprobePath       string
	EncoderTimeout    time.Duration
	DiagnosticLimit   int
	HLSSegmentSeconds int
	ProfilesFile      string
	Profiles          encoder.Profiles

	// Dispatcher
	TranscodeWorkers int
	QueueSize        int
	CancelGrace      time.Duration

	// Library scan
	ScanEnabled  bool
	ScanInterval time.Duration
	ScanWorkers  int

	StoryboardDefaultCount int
	ProgressThrottle       time.Duration
	CORSAllowedOrigins     []string

	// Derived paths
	DatabasePath string
	OutputDir    string
	LockPath     string
}

// EncoderConfig returns the encoder settings carried by c.
func (c *Config) EncoderConfig() encoder.Config {
	return encoder.Config{
		FFmpegPath:      c.FFmpegPath,
		FFprobePath:     c.FFprobePath,
		Timeout:         c.EncoderTimeout,
		CancelGrace:     c.CancelGrace,
		DiagnosticLimit: c.DiagnosticLimit,
		SegmentSeconds:  c.HLSSegmentSeconds,
		Profiles:        c.Profiles,
	}
}

// LoadConfig loads and validates configuration from environment variables
func LoadConfig() (*Config, error) {
	printBanner()
	logSystemInfo()

	logging.Info("------------------------------------------------------------")
	logging.Info("CONFIGURATION")
	logging.Info("------------------------------------------------------------")

	cfg, err := configFromEnv()
	if err != nil {
		return nil, err
	}

	logging.Info("  MEDIA_DIR:                 %s", cfg.MediaDir)
	logging.Info("  CACHE_DIR:                 %s", cfg.CacheDir)
	logging.Info("  DATABASE_DIR:              %s", cfg.DatabaseDir)
	logging.Info("  PORT:                      %s", cfg.Port)
	logging.Info("  METRICS_PORT:              %s", cfg.MetricsPort)
	logging.Info("  METRICS_ENABLED:           %v", cfg.MetricsEnabled)
	logging.Info("  FFMPEG_PATH:               %s", cfg.FFmpegPath)
	logging.Info("  FFPROBE_PATH:              %s", cfg.FFprobePath)
	logging.Info("  TRANSCODE_WORKERS:         %d", cfg.TranscodeWorkers)
	logging.Info("  TRANSCODE_QUEUE_SIZE:      %d", cfg.QueueSize)
	logging.Info("  ENCODER_TIMEOUT:           %s", cfg.EncoderTimeout)
	logging.Info("  CANCEL_GRACE_PERIOD:       %s", cfg.CancelGrace)
	logging.Info("  ENCODER_DIAGNOSTIC_LIMIT:  %d", cfg.DiagnosticLimit)
	logging.Info("  HLS_SEGMENT_SECONDS:       %d", cfg.HLSSegmentSeconds)
	logging.Info("  SCAN_ENABLED:              %v", cfg.ScanEnabled)
	logging.Info("  SCAN_INTERVAL:             %s", cfg.ScanInterval)
	logging.Info("  SCAN_WORKERS:              %d", cfg.ScanWorkers)
	logging.Info("  STORYBOARD_DEFAULT_COUNT:  %d", cfg.StoryboardDefaultCount)
	logging.Info("  PROGRESS_THROTTLE:         %s", cfg.ProgressThrottle)
	logging.Info("  CORS_ALLOWED_ORIGINS:      %s", strings.Join(cfg.CORSAllowedOrigins, ","))
	logging.Info("  PROFILES_FILE:             %s", cfg.ProfilesFile)
	logging.Info("  LOG_STREAMS:               %v", cfg.LogStreams)
	logging.Info("  LOG_HEALTH_CHECKS:         %v", cfg.LogHealthChecks)
	logging.Info("  LOG_LEVEL:                 %s", logging.GetLevel())

	names := make([]string, 0, len(cfg.Profiles))
	for name := range cfg.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	logging.Info("  Transcode profiles:        %s", strings.Join(names, ", "))

	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DIRECTORY SETUP")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Media directory (absolute):    %s", cfg.MediaDir)
	logging.Info("  Cache directory (absolute):    %s", cfg.CacheDir)
	logging.Info("  Database directory (absolute): %s", cfg.DatabaseDir)

	// Missing media is survivable: resolution fails per request.
	if err := ensureDirectory(cfg.MediaDir, "media"); err != nil {
		logging.Warn("  Media directory issue: %v", err)
	}

	for _, dir := range []struct{ path, name string }{
		{cfg.DatabaseDir, "database"},
		{cfg.CacheDir, "cache"},
		{cfg.OutputDir, "output"},
	} {
		if err := ensureDirectory(dir.path, dir.name); err != nil {
			return nil, fmt.Errorf("%s directory error: %w", dir.name, err)
		}
		if err := testWriteAccess(dir.path); err != nil {
			return nil, fmt.Errorf("%s directory is not writable: %w", dir.name, err)
		}
		logging.Info("  [OK] %s directory is writable", dir.name)
	}

	return cfg, nil
}

// configFromEnv parses the environment without touching the filesystem
// beyond the optional profiles file.
func configFromEnv() (*Config, error) {
	cfg := &Config{
		MediaDir:               getEnv("MEDIA_DIR", "/media"),
		CacheDir:               getEnv("CACHE_DIR", "/cache"),
		DatabaseDir:            getEnv("DATABASE_DIR", "/database"),
		Port:                   getEnv("PORT", "8080"),
		MetricsPort:            getEnv("METRICS_PORT", defaultMetricsPort),
		MetricsEnabled:         getEnvBool("METRICS_ENABLED", true),
		LogStreams:             getEnvBool("LOG_STREAMS", false),
		LogHealthChecks:        getEnvBool("LOG_HEALTH_CHECKS", true),
		FFmpegPath:             getEnv("FFMPEG_PATH", "ffmpeg"),
		FFprobePath:            getEnv("FFPROBE_PATH", "ffprobe"),
		EncoderTimeout:         getEnvDuration("ENCODER_TIMEOUT", 2*time.Hour),
		DiagnosticLimit:        getEnvInt("ENCODER_DIAGNOSTIC_LIMIT", apperr.DefaultDiagnosticLimit),
		HLSSegmentSeconds:      getEnvInt("HLS_SEGMENT_SECONDS", encoder.DefaultSegmentSeconds),
		ProfilesFile:           getEnv("PROFILES_FILE", ""),
		TranscodeWorkers:       workers.ForEncoder(maxEncoderWorkers),
		QueueSize:              getEnvInt("TRANSCODE_QUEUE_SIZE", defaultQueueSize),
		CancelGrace:            getEnvDuration("CANCEL_GRACE_PERIOD", 10*time.Second),
		ScanEnabled:            getEnvBool("SCAN_ENABLED", true),
		ScanInterval:           getEnvDuration("SCAN_INTERVAL", defaultScanInterval),
		ScanWorkers:            getEnvInt("SCAN_WORKERS", indexer.DefaultWorkers),
		StoryboardDefaultCount: getEnvInt("STORYBOARD_DEFAULT_COUNT", jobs.DefaultStoryboardCount),
		ProgressThrottle:       getEnvDuration("PROGRESS_THROTTLE", progress.DefaultThrottle),
		CORSAllowedOrigins:     getEnvList("CORS_ALLOWED_ORIGINS"),
	}

	var err error
	for _, p := range []*string{&cfg.MediaDir, &cfg.CacheDir, &cfg.DatabaseDir} {
		if *p, err = filepath.Abs(*p); err != nil {
			return nil, fmt.Errorf("failed to resolve directory path: %w", err)
		}
	}

	if cfg.StoryboardDefaultCount > jobs.MaxStoryboardCount {
		logging.Warn("  STORYBOARD_DEFAULT_COUNT above %d, capping", jobs.MaxStoryboardCount)
		cfg.StoryboardDefaultCount = jobs.MaxStoryboardCount
	}

	cfg.Profiles, err = encoder.LoadProfiles(cfg.ProfilesFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load transcode profiles: %w", err)
	}

	cfg.DatabasePath = filepath.Join(cfg.DatabaseDir, databaseFileName)
	cfg.OutputDir = filepath.Join(cfg.CacheDir, outputDirName)
	cfg.LockPath = filepath.Join(cfg.CacheDir, lockFileName)
	return cfg, nil
}

// LogMemoryConfig logs the outcome of memory.ConfigureFromEnv.
func LogMemoryConfig(result memory.ConfigResult) {
	logging.Info("------------------------------------------------------------")
	logging.Info("MEMORY")
	logging.Info("------------------------------------------------------------")
	if !result.Configured {
		logging.Info("  GOMEMLIMIT not configured (set MEMORY_LIMIT to enable)")
		return
	}
	logging.Info("  Source:          %s", result.Source)
	if result.ContainerLimit > 0 {
		logging.Info("  Container limit: %s", formatBytes(result.ContainerLimit))
		logging.Info("  Ratio:           %.2f", result.Ratio)
	}
	logging.Info("  GOMEMLIMIT:      %s", formatBytes(result.GoMemLimit))
}

// LogDatabaseInit logs database initialization
func LogDatabaseInit(duration time.Duration, interrupted int) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DATABASE INITIALIZATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  [OK] Database initialized in %v", duration)
	if interrupted > 0 {
		logging.Warn("  Marked %d interrupted job(s) as failed", interrupted)
	}
}

// LogEncoderInit logs encoder settings and checks that FFmpeg can be run.
func LogEncoderInit(cfg *Config) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("ENCODER INITIALIZATION")
	logging.Info("------------------------------------------------------------")

	if err := checkFFmpeg(cfg.FFmpegPath); err != nil {
		logging.Warn("  FFmpeg check failed: %v", err)
		logging.Warn("  Encoding jobs will fail until it is installed")
	} else {
		logging.Info("  [OK] FFmpeg is available")
	}
	logging.Info("  Workers:     %d", cfg.TranscodeWorkers)
	logging.Info("  Queue size:  %d", cfg.QueueSize)
}

// GetRoutes extracts all registered routes from a mux.Router
func GetRoutes(router *mux.Router) ([]RouteInfo, error) {
	var routes []RouteInfo

	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		pathTemplate, err := route.GetPathTemplate()
		if err != nil {
			return err
		}

		methods, err := route.GetMethods()
		if err != nil {
			methods = []string{"*"}
		}

		for _, method := range methods {
			routes = append(routes, RouteInfo{
				Method: method,
				Path:   pathTemplate,
				Name:   route.GetName(),
			})
		}
		return nil
	})

	return routes, err
}

// LogHTTPRoutes logs all registered HTTP routes dynamically
func LogHTTPRoutes(router *mux.Router, logStreams, logHealthChecks bool) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("HTTP SERVER SETUP")
	logging.Info("------------------------------------------------------------")

	if logging.IsDebugEnabled() {
		routes, err := GetRoutes(router)
		if err != nil {
			logging.Warn("error walking routes: %v", err)
		}

		logging.Debug("  Registered routes (%d total):", len(routes))
		logging.Debug("")

		groups := make(map[string][]RouteInfo)
		for _, route := range routes {
			prefix := getRouteGroup(route.Path)
			groups[prefix] = append(groups[prefix], route)
		}

		groupKeys := make([]string, 0, len(groups))
		for k := range groups {
			groupKeys = append(groupKeys, k)
		}
		sort.Strings(groupKeys)

		for _, group := range groupKeys {
			if group != "" {
				logging.Debug("  [%s]", group)
			} else {
				logging.Debug("  [root]")
			}
			for _, route := range groups[group] {
				logging.Debug("    %-6s %s", route.Method, route.Path)
			}
			logging.Debug("")
		}
	}

	logging.Info("  HTTP logging enabled")
	if logStreams {
		logging.Info("    Stream request logging: ON")
	} else {
		logging.Info("    Stream request logging: OFF (set LOG_STREAMS=true to enable)")
	}
	if logHealthChecks {
		logging.Info("    Health check logging: ON")
	} else {
		logging.Info("    Health check logging: OFF (set LOG_HEALTH_CHECKS=true to enable)")
	}
}

// getRouteGroup extracts a group name from a route path
func getRouteGroup(path string) string {
	path = strings.TrimPrefix(path, "/")

	parts := strings.SplitN(path, "/", 2)
	first := parts[0]

	if first == "api" && len(parts) > 1 {
		subParts := strings.SplitN(parts[1], "/", 2)
		return "api/" + subParts[0]
	}
	return first
}

// ServerConfig holds configuration for the server startup log
type ServerConfig struct {
	Port            string
	MetricsPort     string
	MetricsEnabled  bool
	StartupDuration time.Duration
}

// LogServerStarted logs successful server start with all endpoint information
func LogServerStarted(config ServerConfig) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SERVER STARTED")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Startup time:    %v", config.StartupDuration)
	logging.Info("")
	logging.Info("  Endpoints:")
	logging.Info("    API:           http://0.0.0.0:%s/api", config.Port)
	if config.MetricsEnabled {
		logging.Info("    Metrics:       http://0.0.0.0:%s/metrics", config.MetricsPort)
	} else {
		logging.Info("    Metrics:       DISABLED")
	}
	logging.Info("")
	logging.Info("  Press Ctrl+C to stop the server")
	logging.Info("------------------------------------------------------------")
	logging.Info("")
}

// LogShutdownInitiated logs shutdown start
func LogShutdownInitiated(signal string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SHUTDOWN INITIATED (received %s)", signal)
	logging.Info("------------------------------------------------------------")
}

// LogShutdownStep logs a shutdown step
func LogShutdownStep(step string) {
	logging.Debug("  %s...", step)
}

// LogShutdownStepComplete logs a completed shutdown step
func LogShutdownStepComplete(step string) {
	logging.Info("  [OK] %s", step)
}

// LogShutdownComplete logs shutdown completion
func LogShutdownComplete() {
	logging.Info("  [OK] Shutdown complete")
}

// LogFatal logs a fatal error and exits
func LogFatal(format string, args ...interface{}) {
	logging.Fatal(format, args...)
}

func printBanner() {
	banner := `
------------------------------------------------------------
       _                              _
   ___| |_ _ __ ___  __ _ _ __ ___ __   _(_) ___
  / __| __| '__/ _ \/ _' | '_ ' _ \\ \ / / |/ _ \
  \__ \ |_| | |  __/ (_| | | | | | |\ V /| | (_) |
  |___/\__|_|  \___|\__,_|_| |_| |_| \_/ |_|\___/

------------------------------------------------------------`
	fmt.Println(banner)
	logging.Info("  Version:    %s", Version)
	logging.Info("  Commit:     %s", Commit)
	logging.Info("  Build Time: %s", BuildTime)
	logging.Info("  Started:    %s", time.Now().Format(time.RFC1123))
	logging.Info("")
}

func logSystemInfo() {
	logging.Info("------------------------------------------------------------")
	logging.Info("SYSTEM INFORMATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Go version:      %s", runtime.Version())
	logging.Info("  OS/Arch:         %s/%s", runtime.GOOS, runtime.GOARCH)
	logging.Info("  CPUs available:  %d", runtime.NumCPU())
	logging.Info("  GOMAXPROCS:      %d", runtime.GOMAXPROCS(0))

	if runtime.GOMAXPROCS(0) < runtime.NumCPU() {
		logging.Info("  (Container CPU limit detected)")
	}

	if logging.IsDebugEnabled() {
		logging.Debug("  Goroutines:      %d", runtime.NumGoroutine())
		if hostname, err := os.Hostname(); err == nil {
			logging.Debug("  Hostname:        %s", hostname)
		}
	}
	logging.Info("")
}

func ensureDirectory(path, name string) error {
	logging.Debug("  Checking %s directory: %s", name, path)

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		logging.Debug("    Directory does not exist, creating...")
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		logging.Debug("    [OK] Created directory: %s", path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path exists but is not a directory")
	}

	logging.Debug("    [OK] Directory exists")
	return nil
}

func testWriteAccess(dir string) error {
	testFile := filepath.Join(dir, ".write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		return err
	}
	if err := os.Remove(testFile); err != nil {
		logging.Warn("failed to remove write test file %s: %v", testFile, err)
	}
	return nil
}

func checkFFmpeg(ffmpeg string) error {
	path, err := exec.LookPath(ffmpeg)
	if err != nil {
		return fmt.Errorf("%s not found in PATH", ffmpeg)
	}
	logging.Debug("  FFmpeg path: %s", path)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	output, err := exec.CommandContext(ctx, path, "-version").Output()
	if err != nil {
		return fmt.Errorf("failed to get ffmpeg version: %w", err)
	}

	lines := strings.Split(string(output), "\n")
	if len(lines) > 0 {
		logging.Debug("  FFmpeg version: %s", strings.TrimSpace(lines[0]))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		logging.Warn("Invalid boolean value for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

// getEnvInt accepts only positive integers.
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		logging.Warn("Invalid integer value for %s: %q, using default: %d", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed < 0 {
		logging.Warn("Invalid duration for %s: %q, using default: %s", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

// getEnvList splits a comma-separated value, dropping empty entries.
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// formatBytes formats bytes into human-readable string
func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}
