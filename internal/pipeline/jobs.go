package pipeline

import (
	"context"
	"errors"

	"streamvio/internal/apperr"
	"streamvio/internal/catalog"
	"streamvio/internal/database"
	"streamvio/internal/jobs"
	"streamvio/internal/library"
	"streamvio/internal/mediatypes"
)

// StartTranscode returns the completed job behind a current transcoded
// artifact with the same options, or admits a new transcode job.
func (s *Service) StartTranscode(ctx context.Context, mediaID, userID string, opts jobs.TranscodeOptions, force bool) (*jobs.Job, error) {
	m, err := s.resolveFor(ctx, mediaID, userID, mediatypes.OpTranscode)
	if err != nil {
		return nil, err
	}
	opts = opts.Normalize().(jobs.TranscodeOptions)
	if _, err := s.encoder.Profiles().Resolve(opts); err != nil {
		return nil, err
	}
	return s.start(ctx, m, opts, force)
}

// StartHLS returns the completed job behind a current HLS ladder with the
// same options, or admits a new HLS job. maxHeight 0 means no cap.
func (s *Service) StartHLS(ctx context.Context, mediaID, userID string, maxHeight int, force bool) (*jobs.Job, error) {
	m, err := s.resolveFor(ctx, mediaID, userID, mediatypes.OpHLS)
	if err != nil {
		return nil, err
	}
	if maxHeight < 0 {
		return nil, apperr.New(apperr.CodeInvalidArgument, "max height must not be negative")
	}
	return s.start(ctx, m, jobs.HLSOptions{MaxHeight: maxHeight}, force)
}

// start returns a cached job for opts unless force is set, then admits.
func (s *Service) start(ctx context.Context, m *library.Media, opts jobs.Options, force bool) (*jobs.Job, error) {
	opts = opts.Normalize()
	if !force {
		if job := s.cachedJob(ctx, m.ID, opts); job != nil {
			log.Debug("media %s %s served from catalog (job %s)", m.ID, opts.Kind(), job.ID)
			return job, nil
		}
	}

	job, _, err := s.disp.Admit(ctx, m.ID, m.Path, opts)
	return job, err
}

// cachedJob finds the completed job whose artifact is current for m and
// was produced with the same options.
func (s *Service) cachedJob(ctx context.Context, mediaID string, opts jobs.Options) *jobs.Job {
	a, err := s.catalog.Get(ctx, mediaID, catalog.FormatFor(opts.Kind()), catalog.Variant(opts))
	if err != nil || a.JobID == "" {
		return nil
	}
	job, err := s.disp.GetJob(ctx, a.JobID)
	if err != nil || job.State != jobs.StateCompleted {
		return nil
	}
	if job.Key != jobs.DedupeKey(mediaID, opts) {
		// the current artifact was built with other options
		return nil
	}
	return job
}

// GetJob returns a job with live progress when it is in flight.
func (s *Service) GetJob(ctx context.Context, id string) (*jobs.Job, error) {
	return s.disp.GetJob(ctx, id)
}

// CancelJob cancels a pending or processing job and returns its state.
func (s *Service) CancelJob(ctx context.Context, id string) (*jobs.Job, error) {
	return s.disp.CancelJob(ctx, id)
}

// WaitJob blocks until the job is terminal or ctx ends.
func (s *Service) WaitJob(ctx context.Context, id string) (*jobs.Job, error) {
	return s.disp.WaitJob(ctx, id)
}

// ListJobs returns stored jobs, newest first, with in-flight jobs replaced by
// their live state.
func (s *Service) ListJobs(ctx context.Context, filter database.JobFilter) ([]*jobs.Job, error) {
	if filter.State != "" && !validState(jobs.State(filter.State)) {
		return nil, apperr.New(apperr.CodeInvalidArgument, "unknown job state %q", filter.State)
	}
	if filter.Kind != "" && !validKind(jobs.Kind(filter.Kind)) {
		return nil, apperr.New(apperr.CodeInvalidArgument, "unknown job kind %q", filter.Kind)
	}

	list, err := s.db.ListJobs(ctx, filter)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeStorageFailed, err, "list jobs")
	}
	for i, j := range list {
		if j.State.Terminal() {
			continue
		}
		if live, err := s.disp.GetJob(ctx, j.ID); err == nil {
			list[i] = live
		}
	}
	return list, nil
}

func validState(st jobs.State) bool {
	switch st {
	case jobs.StatePending, jobs.StateProcessing, jobs.StateCompleted, jobs.StateFailed, jobs.StateCancelled:
		return true
	}
	return false
}

func validKind(k jobs.Kind) bool {
	switch k {
	case jobs.KindTranscode, jobs.KindHLS, jobs.KindThumbnail, jobs.KindStoryboard:
		return true
	}
	return false
}

// jobError turns a failed or cancelled job into the error its caller sees.
func jobError(job *jobs.Job) error {
	code := job.ErrorCode
	if code == "" {
		code = apperr.CodeInternal
		if job.State == jobs.StateCancelled {
			code = apperr.CodeCancelled
		}
	}
	return apperr.New(code, "job %s %s: %s", job.ID, job.State, job.Error)
}

// awaitJob waits up to the sync timeout for job and returns it completed.
func (s *Service) awaitJob(ctx context.Context, job *jobs.Job) (*jobs.Job, error) {
	if !job.State.Terminal() {
		wctx, cancel := context.WithTimeout(ctx, s.cfg.SyncTimeout)
		defer cancel()

		done, err := s.disp.WaitJob(wctx, job.ID)
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, apperr.New(apperr.CodeTimeout,
				"job %s is still %s; poll it with GetJob", job.ID, job.State)
		}
		if err != nil {
			return nil, apperr.Wrap(apperr.CodeCancelled, err, "stopped waiting for job %s", job.ID)
		}
		job = done
	}
	if job.State != jobs.StateCompleted {
		return nil, jobError(job)
	}
	return job, nil
}
