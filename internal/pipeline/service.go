package pipeline

import (
	"context"
	"fmt"
	"time"

	"streamvio/internal/apperr"
	"streamvio/internal/catalog"
	"streamvio/internal/database"
	"streamvio/internal/dispatcher"
	"streamvio/internal/encoder"
	"streamvio/internal/jobs"
	"streamvio/internal/library"
	"streamvio/internal/logging"
	"streamvio/internal/mediatypes"
	"streamvio/internal/metrics"
	"streamvio/internal/progress"
	"streamvio/internal/streaming"
)

var log = logging.For("pipeline")

// DefaultSyncTimeout bounds how long synchronous thumbnail and storyboard
// requests wait for their job.
const DefaultSyncTimeout = 2 * time.Minute

// Resolver is the library layer the pipeline trusts for access decisions.
type Resolver interface {
	Resolve(ctx context.Context, mediaID, userID string) (*library.Media, error)
	IsSupportedType(t mediatypes.FileType, op mediatypes.Operation) bool
}

// Encoder runs one encoder operation.
type Encoder interface {
	Invoke(ctx context.Context, req encoder.Request) (*encoder.Result, error)
	Profiles() encoder.Profiles
}

// Config holds pipeline settings not owned by its collaborators.
type Config struct {
	Dispatcher             dispatcher.Config
	DefaultStoryboardCount int
	SyncTimeout            time.Duration
}

// Service implements the exposed pipeline operations.
type Service struct {
	db       *database.Database
	resolver Resolver
	encoder  Encoder
	catalog  *catalog.Catalog
	tracker  *progress.Tracker
	streams  *streaming.Server
	disp     *dispatcher.Dispatcher
	cfg      Config
}

// New wires a Service and starts its dispatcher. gate may be nil.
func New(db *database.Database, resolver Resolver, enc Encoder, cat *catalog.Catalog,
	tracker *progress.Tracker, streams *streaming.Server, gate dispatcher.Gate, cfg Config) *Service {
	if cfg.DefaultStoryboardCount <= 0 {
		cfg.DefaultStoryboardCount = jobs.DefaultStoryboardCount
	}
	if cfg.SyncTimeout <= 0 {
		cfg.SyncTimeout = DefaultSyncTimeout
	}

	s := &Service{
		db:       db,
		resolver: resolver,
		encoder:  enc,
		catalog:  cat,
		tracker:  tracker,
		streams:  streams,
		cfg:      cfg,
	}
	s.disp = dispatcher.New(db, s, gate, cfg.Dispatcher)
	return s
}

// Execute runs job through the encoder and catalogs the result. It is
// called by the dispatcher on a worker goroutine.
func (s *Service) Execute(ctx context.Context, job *jobs.Job, report func(float64)) (string, error) {
	sourceType := mediatypes.DetectFileType(job.InputPath)
	out := s.catalog.Layout().OutputPath(job, sourceType)

	res, err := s.encoder.Invoke(ctx, encoder.Request{
		JobID:      job.ID,
		InputPath:  job.InputPath,
		OutputPath: out,
		Options:    job.Options,
		Progress:   report,
	})
	if err != nil {
		return "", err
	}

	// the output exists now; record it even if the job is being cancelled
	artifact := artifactFor(job, res)
	if err := s.catalog.Put(context.WithoutCancel(ctx), artifact); err != nil {
		return "", err
	}
	return res.OutputPath, nil
}

func artifactFor(job *jobs.Job, res *encoder.Result) *database.Artifact {
	a := &database.Artifact{
		MediaID:    job.MediaID,
		FormatType: catalog.FormatFor(job.Kind),
		Variant:    catalog.Variant(job.Options),
		FilePath:   res.OutputPath,
		MimeType:   res.MimeType,
		Metadata: database.TechnicalMetadata{
			Bitrate:  res.Metadata.Bitrate,
			Width:    res.Metadata.Width,
			Height:   res.Metadata.Height,
			Codec:    res.Metadata.Codec,
			Duration: res.Metadata.Duration,
		},
		JobID: job.ID,
	}
	for _, f := range res.Frames {
		a.Extra.Frames = append(a.Extra.Frames, database.StoryboardFrame{Offset: f.Offset, Path: f.Path})
	}
	if job.Kind == jobs.KindStoryboard {
		a.Extra.SpritePath = res.OutputPath
	}
	a.Extra.Renditions = res.Renditions
	return a
}

// resolveFor resolves mediaID and checks that op applies to it.
func (s *Service) resolveFor(ctx context.Context, mediaID, userID string, op mediatypes.Operation) (*library.Media, error) {
	if mediaID == "" {
		return nil, apperr.New(apperr.CodeInvalidArgument, "media id is required")
	}
	m, err := s.resolver.Resolve(ctx, mediaID, userID)
	if err != nil {
		return nil, err
	}
	if !s.resolver.IsSupportedType(m.Type, op) {
		return nil, apperr.New(apperr.CodeUnsupportedOperation, "%s is not supported for %s media", op, m.Type)
	}
	return m, nil
}

// Stats reports the dispatcher's processing and queued job counts.
func (s *Service) Stats() (processing, queued int) {
	return s.disp.Stats()
}

// CollectStats implements metrics.StatsProvider.
func (s *Service) CollectStats(ctx context.Context) (metrics.Stats, error) {
	counts, err := s.db.CountJobsByState(ctx)
	if err != nil {
		return metrics.Stats{}, fmt.Errorf("count jobs: %w", err)
	}
	byState := make(map[string]int, len(counts))
	for _, st := range []jobs.State{jobs.StatePending, jobs.StateProcessing, jobs.StateCompleted, jobs.StateFailed, jobs.StateCancelled} {
		byState[string(st)] = counts[st]
	}

	size, err := s.catalog.Size()
	if err != nil {
		log.Warn("could not size the output tree: %v", err)
	}
	return metrics.Stats{
		JobsByState:    byState,
		CacheSizeBytes: size,
		DBConnections:  s.db.OpenConnections(),
	}, nil
}

// Close stops the dispatcher and waits for pending watch events.
func (s *Service) Close(ctx context.Context) error {
	err := s.disp.Close(ctx)
	if werr := s.tracker.Wait(ctx); werr != nil && err == nil {
		err = werr
	}
	return err
}
