package indexer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"streamvio/internal/database"
	"streamvio/internal/logging"
	"streamvio/internal/metrics"
)

var log = logging.For("indexer")

// DefaultWorkers is safe for NFS and still quick on local disks.
const DefaultWorkers = 3

// Registrar adds or refreshes a media item.
type Registrar interface {
	Register(ctx context.Context, id, path string) (*database.MediaItem, error)
}

// Store reads back registered media.
type Store interface {
	GetMedia(ctx context.Context, id string) (*database.MediaItem, error)
}

// Config configures an Indexer.
type Config struct {
	// Workers registers this many files concurrently (0 = DefaultWorkers).
	Workers int
	// Interval between periodic scans; 0 scans only at Start and on Trigger.
	Interval time.Duration
	// SkipHidden skips files and directories starting with ".".
	SkipHidden bool
}

// DefaultConfig returns a hidden-file-skipping config with DefaultWorkers.
func DefaultConfig() Config {
	return Config{Workers: DefaultWorkers, Interval: 30 * time.Minute, SkipHidden: true}
}

// Status describes the most recent scan.
type Status struct {
	Scanning   bool      `json:"scanning"`
	LastScan   time.Time `json:"lastScan,omitempty"`
	Duration   string    `json:"duration,omitempty"`
	Registered int64     `json:"registered"`
	Unchanged  int64     `json:"unchanged"`
	Failed     int64     `json:"failed"`
	LastError  string    `json:"lastError,omitempty"`
}

// Indexer scans the media directory into the library.
type Indexer struct {
	registrar Registrar
	store     Store
	mediaDir  string
	cfg       Config

	mu       sync.Mutex
	scanning bool
	started  bool
	status   Status

	trigger  chan struct{}
	stopChan chan struct{}
	done     chan struct{}
}

// New creates an Indexer for mediaDir.
func New(registrar Registrar, store Store, mediaDir string, cfg Config) *Indexer {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	return &Indexer{
		registrar: registrar,
		store:     store,
		mediaDir:  filepath.Clean(mediaDir),
		cfg:       cfg,
		trigger:   make(chan struct{}, 1),
		stopChan:  make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// StableID derives the media id for a file at relPath below the media root.
func StableID(relPath string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("streamvio:media/"+filepath.ToSlash(relPath))).String()
}

// Start runs an initial scan in the background, then periodic and
// triggered scans until Stop.
func (idx *Indexer) Start() {
	idx.mu.Lock()
	if idx.started {
		idx.mu.Unlock()
		return
	}
	idx.started = true
	idx.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-idx.stopChan
		cancel()
	}()

	go func() {
		defer close(idx.done)

		var tick <-chan time.Time
		if idx.cfg.Interval > 0 {
			ticker := time.NewTicker(idx.cfg.Interval)
			defer ticker.Stop()
			tick = ticker.C
		}

		log.Info("Starting initial scan of %s", idx.mediaDir)
		idx.scanLogged(ctx)
		for {
			select {
			case <-tick:
				log.Debug("Periodic scan triggered")
				idx.scanLogged(ctx)
			case <-idx.trigger:
				idx.scanLogged(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop cancels any running scan and waits for the loop to exit.
func (idx *Indexer) Stop() {
	idx.mu.Lock()
	started := idx.started
	idx.mu.Unlock()

	close(idx.stopChan)
	if started {
		<-idx.done
	}
}

// Trigger requests a scan. It returns false when one is already pending.
func (idx *Indexer) Trigger() bool {
	select {
	case idx.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// Status returns a snapshot of the last scan.
func (idx *Indexer) Status() Status {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	s := idx.status
	s.Scanning = idx.scanning
	return s
}

func (idx *Indexer) scanLogged(ctx context.Context) {
	if _, err := idx.Scan(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("Scan of %s failed: %v", idx.mediaDir, err)
	}
}

// ErrScanInProgress is returned by Scan when another scan is running.
var ErrScanInProgress = errors.New("scan already in progress")

// Scan walks the media directory once and registers new or changed files.
func (idx *Indexer) Scan(ctx context.Context) (Status, error) {
	idx.mu.Lock()
	if idx.scanning {
		idx.mu.Unlock()
		return Status{}, ErrScanInProgress
	}
	idx.scanning = true
	idx.mu.Unlock()

	metrics.ScanIsRunning.Set(1)
	defer metrics.ScanIsRunning.Set(0)
	metrics.ScanRunsTotal.Inc()

	start := time.Now()
	w := &walker{root: idx.mediaDir, workers: idx.cfg.Workers, skipHidden: idx.cfg.SkipHidden}
	counts, err := w.walk(ctx, idx.process)

	status := Status{
		LastScan:   start,
		Duration:   time.Since(start).Round(time.Millisecond).String(),
		Registered: counts[resultRegistered],
		Unchanged:  counts[resultUnchanged],
		Failed:     counts[resultFailed],
	}
	if err != nil {
		status.LastError = err.Error()
		err = fmt.Errorf("scan %s: %w", idx.mediaDir, err)
	}

	idx.mu.Lock()
	idx.scanning = false
	idx.status = status
	idx.mu.Unlock()

	metrics.ScanLastRunTimestamp.Set(float64(time.Now().Unix()))
	metrics.ScanLastRunDuration.Set(time.Since(start).Seconds())

	log.Info("Scan complete: %d seen, %d registered, %d unchanged, %d failed in %s",
		w.seen.Load(), status.Registered, status.Unchanged, status.Failed, status.Duration)
	return status, err
}

func (idx *Indexer) process(ctx context.Context, c candidate) walkResult {
	id := StableID(c.relPath)

	existing, err := idx.store.GetMedia(ctx, id)
	if err == nil && existing.Path == c.path && existing.Size == c.info.Size() &&
		existing.ModTime.Unix() == c.info.ModTime().Unix() {
		metrics.ScanFilesTotal.WithLabelValues("unchanged").Inc()
		return resultUnchanged
	}
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		log.Warn("Lookup of %s failed: %v", c.relPath, err)
	}

	if _, err := idx.registrar.Register(ctx, id, c.path); err != nil {
		log.Warn("Failed to register %s: %v", c.relPath, err)
		metrics.ScanFilesTotal.WithLabelValues("failed").Inc()
		return resultFailed
	}
	metrics.ScanFilesTotal.WithLabelValues("registered").Inc()
	return resultRegistered
}
