package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"streamvio/internal/catalog"
	"streamvio/internal/database"
	"streamvio/internal/dispatcher"
	"streamvio/internal/encoder"
	"streamvio/internal/filesystem"
	"streamvio/internal/handlers"
	"streamvio/internal/indexer"
	"streamvio/internal/library"
	"streamvio/internal/logging"
	"streamvio/internal/memory"
	"streamvio/internal/metrics"
	"streamvio/internal/middleware"
	"streamvio/internal/pipeline"
	"streamvio/internal/progress"
	"streamvio/internal/startup"
	"streamvio/internal/streaming"

	"github.com/gofrs/flock"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout = 30 * time.Second
	collectInterval = 30 * time.Second
	readHeaderLimit = 10 * time.Second
	serverIdleLimit = 120 * time.Second
)

func main() {
	startTime := time.Now()

	memResult := memory.ConfigureFromEnv()

	config, err := startup.LoadConfig()
	if err != nil {
		startup.LogFatal("Configuration error: %v", err)
	}
	startup.LogMemoryConfig(memResult)

	// One process owns the output tree; a second would race on job outputs.
	lock := flock.New(config.LockPath)
	locked, err := lock.TryLock()
	if err != nil {
		startup.LogFatal("Failed to acquire lock %s: %v", config.LockPath, err)
	}
	if !locked {
		startup.LogFatal("Another streamvio instance holds %s", config.LockPath)
	}
	defer lock.Unlock()

	filesystem.SetDefaultVolumeResolver(filesystem.NewVolumeResolver(map[string]string{
		"media":    config.MediaDir,
		"cache":    config.CacheDir,
		"database": config.DatabaseDir,
	}))
	if config.MetricsEnabled {
		metrics.InitializeMetrics()
		metrics.SetAppInfo(startup.Version, startup.Commit)
		filesystem.SetObserver(metrics.NewFilesystemObserver())
	}

	// Initialize database
	dbStart := time.Now()
	db, err := database.New(context.Background(), config.DatabasePath)
	if err != nil {
		startup.LogFatal("Failed to initialize database: %v", err)
	}
	defer db.Close()
	interrupted, err := db.FailInterruptedJobs(context.Background())
	if err != nil {
		startup.LogFatal("Failed to recover interrupted jobs: %v", err)
	}
	startup.LogDatabaseInit(time.Since(dbStart), int(interrupted))
	recordStart(db)

	startup.LogEncoderInit(config)
	enc := encoder.New(config.EncoderConfig())

	monitor := memory.NewMonitor(memory.DefaultConfig())
	monitor.Start()
	defer monitor.Stop()

	lib := library.New(db, config.MediaDir, enc)
	tracker := progress.NewTracker(db, progress.Config{Throttle: config.ProgressThrottle})
	svc := pipeline.New(db, lib, enc,
		catalog.New(db, config.OutputDir),
		tracker,
		streaming.NewServer(streaming.DefaultWriterConfig()),
		monitor,
		pipeline.Config{
			Dispatcher: dispatcher.Config{
				Workers:     config.TranscodeWorkers,
				QueueSize:   config.QueueSize,
				CancelGrace: config.CancelGrace,
			},
			DefaultStoryboardCount: config.StoryboardDefaultCount,
		})

	var collector *metrics.Collector
	if config.MetricsEnabled {
		collector = metrics.NewCollector(svc, collectInterval)
		collector.Start()
	}

	h := handlers.New(svc, lib, db)
	h.SetMemoryMonitor(monitor)

	var idx *indexer.Indexer
	if config.ScanEnabled {
		idx = indexer.New(lib, db, config.MediaDir, indexer.Config{
			Workers:    config.ScanWorkers,
			Interval:   config.ScanInterval,
			SkipHidden: true,
		})
		idx.Start()
		h.SetIndexer(idx)
	}

	router := mux.NewRouter()
	router.Use(middleware.Metrics(middleware.DefaultMetricsConfig()))
	h.RegisterRoutes(router)
	startup.LogHTTPRoutes(router, config.LogStreams, config.LogHealthChecks)

	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.LogStreams = config.LogStreams
	loggingConfig.LogHealthChecks = config.LogHealthChecks

	var handler http.Handler = router
	handler = middleware.Compression(middleware.DefaultCompressionConfig())(handler)
	handler = middleware.Logger(loggingConfig)(handler)
	if len(config.CORSAllowedOrigins) > 0 {
		handler = cors.New(cors.Options{
			AllowedOrigins: config.CORSAllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut, http.MethodDelete},
			AllowedHeaders: []string{"Content-Type", "Range", middleware.UserIDHeader},
			ExposedHeaders: []string{"Content-Length", "Content-Range", "Accept-Ranges"},
		}).Handler(handler)
	}

	// WriteTimeout stays zero: streams outlive any fixed deadline and the
	// streaming writer enforces per-write timeouts instead.
	servers := []*http.Server{{
		Addr:              ":" + config.Port,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderLimit,
		IdleTimeout:       serverIdleLimit,
	}}
	if config.MetricsEnabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", h.MetricsHandler())
		servers = append(servers, &http.Server{
			Addr:              ":" + config.MetricsPort,
			Handler:           metricsMux,
			ReadHeaderTimeout: readHeaderLimit,
		})
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		g.Go(func() error {
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	startup.LogServerStarted(startup.ServerConfig{
		Port:            config.Port,
		MetricsPort:     config.MetricsPort,
		MetricsEnabled:  config.MetricsEnabled,
		StartupDuration: time.Since(startTime),
	})

	g.Go(func() error {
		<-gctx.Done()
		signalName := "server error"
		if ctx.Err() != nil {
			signalName = "signal"
		}
		shutdown(signalName, servers, svc, idx, collector)
		return nil
	})

	if err := g.Wait(); err != nil {
		logging.Error("Server error: %v", err)
		os.Exit(1)
	}
}

// recordStart notes which build last opened the database. Failures are
// logged only.
func recordStart(db *database.Database) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	values := map[string]string{
		database.MetaServerVersion:   startup.Version,
		database.MetaServerStartedAt: time.Now().UTC().Format(time.RFC3339),
	}
	for key, value := range values {
		if err := db.SetMetadata(ctx, key, value); err != nil {
			logging.Warn("Failed to record %s: %v", key, err)
		}
	}
}

func shutdown(reason string, servers []*http.Server, svc *pipeline.Service, idx *indexer.Indexer, collector *metrics.Collector) {
	startup.LogShutdownInitiated(reason)

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	startup.LogShutdownStep("Shutting down HTTP servers")
	for _, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil {
			logging.Warn("Server shutdown error: %v", err)
		}
	}
	startup.LogShutdownStepComplete("HTTP servers stopped")

	if idx != nil {
		startup.LogShutdownStep("Stopping library scanner")
		idx.Stop()
		startup.LogShutdownStepComplete("Library scanner stopped")
	}

	startup.LogShutdownStep("Stopping dispatcher")
	if err := svc.Close(ctx); err != nil {
		logging.Warn("Dispatcher shutdown: %v", err)
	} else {
		startup.LogShutdownStepComplete("Dispatcher stopped")
	}

	if collector != nil {
		collector.Stop()
	}
	startup.LogShutdownComplete()
}
