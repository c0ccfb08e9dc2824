package dispatcher

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"streamvio/internal/apperr"
	"streamvio/internal/database"
	"streamvio/internal/jobs"
	"streamvio/internal/logging"
	"streamvio/internal/metrics"
)

var log = logging.For("dispatcher")

// Store persists job records. *database.Database implements it.
type Store interface {
	CreateJob(ctx context.Context, job *jobs.Job) error
	UpdateJob(ctx context.Context, job *jobs.Job) error
	GetJob(ctx context.Context, id string) (*jobs.Job, error)
}

// Executor performs the work of one job and returns its output path.
// progress may be called with percentages in [0, 100].
type Executor interface {
	Execute(ctx context.Context, job *jobs.Job, progress func(float64)) (string, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, job *jobs.Job, progress func(float64)) (string, error)

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, job *jobs.Job, progress func(float64)) (string, error) {
	return f(ctx, job, progress)
}

// Gate delays job starts, e.g. while memory is critical.
type Gate interface {
	Wait(ctx context.Context) error
}

// Config bounds the dispatcher.
type Config struct {
	Workers     int
	QueueSize   int
	CancelGrace time.Duration
}

// Admission tells the caller what Admit did.
type Admission string

const (
	AdmissionStarted      Admission = "started"
	AdmissionQueued       Admission = "queued"
	AdmissionDeduplicated Admission = "deduplicated"
)

type entry struct {
	job             *jobs.Job
	elem            *list.Element
	cancel          context.CancelFunc
	cancelRequested bool
	done            chan struct{}
	persistMu       sync.Mutex
}

// Dispatcher schedules jobs. All job state lives in its maps, guarded by mu.
type Dispatcher struct {
	store Store
	exec  Executor
	gate  Gate
	cfg   Config

	mu      sync.Mutex
	active  map[string]*entry // non-terminal jobs by de-duplication key
	byID    map[string]*entry // jobs whose outcome is not yet persisted
	queue   *list.List
	running int
	closed  bool

	baseCtx    context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup
}

// New creates a dispatcher. gate may be nil.
func New(store Store, exec Executor, gate Gate, cfg Config) *Dispatcher {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 0 {
		cfg.QueueSize = 0
	}
	if cfg.CancelGrace <= 0 {
		cfg.CancelGrace = 10 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	log.Info("starting with %d workers, queue size %d, cancel grace %s", cfg.Workers, cfg.QueueSize, cfg.CancelGrace)
	return &Dispatcher{
		store:      store,
		exec:       exec,
		gate:       gate,
		cfg:        cfg,
		active:     make(map[string]*entry),
		byID:       make(map[string]*entry),
		queue:      list.New(),
		baseCtx:    ctx,
		baseCancel: cancel,
	}
}

// Admit creates a job for (mediaID, opts) or returns the equivalent job that
// is already pending or processing.
func (d *Dispatcher) Admit(ctx context.Context, mediaID, inputPath string, opts jobs.Options) (*jobs.Job, Admission, error) {
	job := jobs.New(mediaID, inputPath, opts)
	kind := string(job.Kind)

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, "", apperr.New(apperr.CodeInternal, "dispatcher is shutting down")
	}

	if e, ok := d.active[job.Key]; ok {
		metrics.JobAdmissionsTotal.WithLabelValues(kind, string(AdmissionDeduplicated)).Inc()
		log.Debug("job %s already %s for key %s", e.job.ID, e.job.State, job.Key)
		return e.job.Clone(), AdmissionDeduplicated, nil
	}

	startNow := d.running < d.cfg.Workers
	if !startNow && d.queue.Len() >= d.cfg.QueueSize {
		metrics.JobAdmissionsTotal.WithLabelValues(kind, "rejected").Inc()
		return nil, "", apperr.New(apperr.CodeQueueFull,
			"%d jobs running and %d queued; try again later", d.running, d.queue.Len())
	}

	if startNow {
		markStarted(job)
	}
	if err := d.store.CreateJob(ctx, job); err != nil {
		return nil, "", apperr.Wrap(apperr.CodeStorageFailed, err, "create job")
	}

	e := &entry{job: job, done: make(chan struct{})}
	d.active[job.Key] = e
	d.byID[job.ID] = e

	admission := AdmissionQueued
	if startNow {
		admission = AdmissionStarted
		d.startLocked(e)
	} else {
		e.elem = d.queue.PushBack(e)
		metrics.JobQueueDepth.Set(float64(d.queue.Len()))
	}

	metrics.JobAdmissionsTotal.WithLabelValues(kind, string(admission)).Inc()
	log.Info("job %s (%s for media %s) %s", job.ID, job.Kind, job.MediaID, admission)
	return job.Clone(), admission, nil
}

// setState moves job to state, logging moves the lifecycle does not allow.
func setState(job *jobs.Job, to jobs.State) {
	if !jobs.CanTransition(job.State, to) {
		log.Warn("job %s: unexpected transition %s -> %s", job.ID, job.State, to)
	}
	job.State = to
}

func markStarted(job *jobs.Job) {
	now := time.Now().UTC()
	setState(job, jobs.StateProcessing)
	job.StartedAt = &now
}

// startLocked hands e to a new worker goroutine. d.mu must be held.
func (d *Dispatcher) startLocked(e *entry) {
	ctx, cancel := context.WithCancel(d.baseCtx)
	e.cancel = cancel
	d.running++
	metrics.JobsProcessing.Set(float64(d.running))

	d.wg.Add(1)
	go d.work(ctx, e)
}

// promoteLocked starts queued jobs while workers are free. d.mu must be held.
func (d *Dispatcher) promoteLocked() {
	for !d.closed && d.running < d.cfg.Workers && d.queue.Len() > 0 {
		e := d.queue.Remove(d.queue.Front()).(*entry)
		e.elem = nil
		markStarted(e.job)
		d.startLocked(e)
	}
	metrics.JobQueueDepth.Set(float64(d.queue.Len()))
}

func (d *Dispatcher) work(ctx context.Context, e *entry) {
	defer d.wg.Done()
	defer e.cancel()

	output, err := d.run(ctx, e)
	d.finish(e, output, err)
}

func (d *Dispatcher) run(ctx context.Context, e *entry) (string, error) {
	// queued jobs were promoted in memory only
	if err := d.persist(e); err != nil {
		return "", apperr.Wrap(apperr.CodeStorageFailed, err, "record job start")
	}

	if d.gate != nil {
		if err := d.gate.Wait(ctx); err != nil {
			return "", apperr.Wrap(apperr.CodeCancelled, err, "cancelled while waiting for memory")
		}
	}

	d.mu.Lock()
	job := e.job.Clone()
	d.mu.Unlock()

	return d.exec.Execute(ctx, job, func(pct float64) {
		d.mu.Lock()
		if !e.job.State.Terminal() {
			e.job.Progress = pct
		}
		d.mu.Unlock()
	})
}

// finish records the executor outcome. When cancellation was requested the
// first terminal outcome wins and anything later is kept as a note.
func (d *Dispatcher) finish(e *entry, output string, err error) {
	d.mu.Lock()
	job := e.job

	if job.State.Terminal() {
		// force-cancelled while the executor was still running
		if err == nil {
			job.AddNote(fmt.Sprintf("encoder finished after the job was cancelled; output %s", output))
		} else {
			job.AddNote("encoder exited after the job was cancelled: " + apperr.MessageOf(err))
		}
		d.mu.Unlock()

		if perr := d.persist(e); perr != nil {
			log.Error("failed to record late outcome of job %s: %v", job.ID, perr)
		}

		d.mu.Lock()
		d.releaseSlotLocked()
		d.mu.Unlock()
		return
	}

	switch {
	case err == nil:
		setState(job, jobs.StateCompleted)
		job.OutputPath = output
		job.Progress = 100
		if e.cancelRequested {
			job.AddNote("cancellation requested after the encoder had finished")
		}
	case e.cancelRequested:
		setState(job, jobs.StateCancelled)
		job.ErrorCode = apperr.CodeCancelled
		job.Error = "cancelled"
		if code := apperr.CodeOf(err); code != apperr.CodeCancelled {
			job.AddNote(fmt.Sprintf("encoder reported %s after cancellation: %s", code, apperr.MessageOf(err)))
		}
	case d.closed && apperr.CodeOf(err) == apperr.CodeCancelled:
		setState(job, jobs.StateFailed)
		job.ErrorCode = apperr.CodeCancelled
		job.Error = "interrupted by server shutdown"
	default:
		setState(job, jobs.StateFailed)
		job.ErrorCode = apperr.CodeOf(err)
		job.Error = apperr.MessageOf(err)
	}
	now := time.Now().UTC()
	job.CompletedAt = &now
	d.mu.Unlock()

	d.complete(e)

	d.mu.Lock()
	d.releaseSlotLocked()
	d.mu.Unlock()
}

// complete persists a terminal job, then drops it from the in-memory maps
// and wakes waiters. The active entry is removed only after the store has
// the terminal state, so a new admission for the key never collides with it.
func (d *Dispatcher) complete(e *entry) {
	if err := d.persist(e); err != nil {
		log.Error("failed to record outcome of job %s: %v", e.job.ID, err)
	}

	d.mu.Lock()
	job := e.job
	if d.active[job.Key] == e {
		delete(d.active, job.Key)
	}
	delete(d.byID, job.ID)
	state, kind := job.State, job.Kind
	var elapsed time.Duration
	if job.StartedAt != nil && job.CompletedAt != nil {
		elapsed = job.CompletedAt.Sub(*job.StartedAt)
	}
	d.mu.Unlock()

	metrics.JobsTotal.WithLabelValues(string(kind), string(state)).Inc()
	if elapsed > 0 {
		metrics.JobDuration.WithLabelValues(string(kind)).Observe(elapsed.Seconds())
	}
	log.Info("job %s %s", job.ID, state)
	close(e.done)
}

func (d *Dispatcher) releaseSlotLocked() {
	d.running--
	metrics.JobsProcessing.Set(float64(d.running))
	d.promoteLocked()
}

// persist writes the current state of e. Writes for one job are serialized
// so the last write always carries the latest state.
func (d *Dispatcher) persist(e *entry) error {
	e.persistMu.Lock()
	defer e.persistMu.Unlock()

	d.mu.Lock()
	snapshot := e.job.Clone()
	d.mu.Unlock()

	return d.store.UpdateJob(context.Background(), snapshot)
}

// CancelJob cancels a pending or processing job and returns its resulting
// state. Cancelling a terminal job returns it unchanged.
func (d *Dispatcher) CancelJob(ctx context.Context, id string) (*jobs.Job, error) {
	d.mu.Lock()
	e, ok := d.byID[id]
	if !ok {
		d.mu.Unlock()
		return d.GetJob(ctx, id)
	}

	switch e.job.State {
	case jobs.StatePending:
		d.queue.Remove(e.elem)
		e.elem = nil
		metrics.JobQueueDepth.Set(float64(d.queue.Len()))
		now := time.Now().UTC()
		setState(e.job, jobs.StateCancelled)
		e.job.ErrorCode = apperr.CodeCancelled
		e.job.Error = "cancelled before start"
		e.job.CompletedAt = &now
		d.mu.Unlock()

		log.Info("job %s cancelled while pending", id)
		d.complete(e)
		return d.snapshot(e), nil

	case jobs.StateProcessing:
		e.cancelRequested = true
		e.cancel()
		d.mu.Unlock()

		log.Info("job %s cancellation requested", id)
		timer := time.NewTimer(d.cfg.CancelGrace)
		defer timer.Stop()

		select {
		case <-e.done:
		case <-timer.C:
			d.forceCancel(e)
		case <-ctx.Done():
			// the signal has been sent; the job will still reach a terminal state
		}
		return d.snapshot(e), nil
	}

	d.mu.Unlock()
	return d.snapshot(e), nil
}

// forceCancel records a processing job as cancelled when the executor did
// not return within the grace period. The worker slot stays held until it does.
func (d *Dispatcher) forceCancel(e *entry) {
	d.mu.Lock()
	if e.job.State.Terminal() {
		d.mu.Unlock()
		return
	}
	now := time.Now().UTC()
	setState(e.job, jobs.StateCancelled)
	e.job.ErrorCode = apperr.CodeCancelled
	e.job.Error = "cancelled; encoder did not stop within the grace period"
	e.job.CompletedAt = &now
	d.mu.Unlock()

	log.Warn("job %s did not acknowledge cancellation within %s", e.job.ID, d.cfg.CancelGrace)
	d.complete(e)
}

func (d *Dispatcher) snapshot(e *entry) *jobs.Job {
	d.mu.Lock()
	defer d.mu.Unlock()
	return e.job.Clone()
}

// GetJob returns the live state of an in-flight job or the stored record.
func (d *Dispatcher) GetJob(ctx context.Context, id string) (*jobs.Job, error) {
	d.mu.Lock()
	if e, ok := d.byID[id]; ok {
		job := e.job.Clone()
		d.mu.Unlock()
		return job, nil
	}
	d.mu.Unlock()

	job, err := d.store.GetJob(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, apperr.New(apperr.CodeNotFound, "job %s not found", id)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeStorageFailed, err, "load job %s", id)
	}
	return job, nil
}

// WaitJob blocks until the job is terminal or ctx ends.
func (d *Dispatcher) WaitJob(ctx context.Context, id string) (*jobs.Job, error) {
	d.mu.Lock()
	e, ok := d.byID[id]
	d.mu.Unlock()
	if !ok {
		return d.GetJob(ctx, id)
	}

	select {
	case <-e.done:
		return d.snapshot(e), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stats reports the number of processing and queued jobs.
func (d *Dispatcher) Stats() (running, queued int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running, d.queue.Len()
}

// Close stops admitting jobs, cancels queued ones, interrupts running ones
// and waits for workers to exit or ctx to end.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true

	var queued []*entry
	for el := d.queue.Front(); el != nil; el = el.Next() {
		e := el.Value.(*entry)
		e.elem = nil
		now := time.Now().UTC()
		setState(e.job, jobs.StateCancelled)
		e.job.ErrorCode = apperr.CodeCancelled
		e.job.Error = "cancelled by server shutdown"
		e.job.CompletedAt = &now
		queued = append(queued, e)
	}
	d.queue.Init()
	metrics.JobQueueDepth.Set(0)
	d.mu.Unlock()

	for _, e := range queued {
		d.complete(e)
	}
	d.baseCancel()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("all workers stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for workers: %w", ctx.Err())
	}
}
