package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"streamvio/internal/apperr"
	"streamvio/internal/database"
	"streamvio/internal/jobs"
)

type memStore struct {
	mu      sync.Mutex
	jobs    map[string]*jobs.Job
	creates int
}

func newMemStore() *memStore {
	return &memStore{jobs: make(map[string]*jobs.Job)}
}

func (s *memStore) CreateJob(_ context.Context, job *jobs.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creates++
	s.jobs[job.ID] = job.Clone()
	return nil
}

func (s *memStore) UpdateJob(_ context.Context, job *jobs.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; !ok {
		return database.ErrNotFound
	}
	s.jobs[job.ID] = job.Clone()
	return nil
}

func (s *memStore) GetJob(_ context.Context, id string) (*jobs.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", id, database.ErrNotFound)
	}
	return j.Clone(), nil
}

func (s *memStore) stored(id string) *jobs.Job {
	j, _ := s.GetJob(context.Background(), id)
	return j
}

// gatedExecutor blocks every job until released and records what ran.
type gatedExecutor struct {
	mu       sync.Mutex
	started  []string
	calls    atomic.Int32
	current  atomic.Int32
	peak     atomic.Int32
	release  chan struct{}
	startedC chan string
	result   func(ctx context.Context, job *jobs.Job) (string, error)
}

func newGatedExecutor() *gatedExecutor {
	return &gatedExecutor{release: make(chan struct{}), startedC: make(chan string, 100)}
}

func (g *gatedExecutor) Execute(ctx context.Context, job *jobs.Job, progress func(float64)) (string, error) {
	g.calls.Add(1)
	n := g.current.Add(1)
	defer g.current.Add(-1)
	for {
		p := g.peak.Load()
		if n <= p || g.peak.CompareAndSwap(p, n) {
			break
		}
	}

	g.mu.Lock()
	g.started = append(g.started, job.MediaID)
	g.mu.Unlock()
	g.startedC <- job.ID
	progress(50)

	if g.result != nil {
		return g.result(ctx, job)
	}
	select {
	case <-g.release:
		return "/out/" + job.MediaID, nil
	case <-ctx.Done():
		return "", apperr.Wrap(apperr.CodeCancelled, ctx.Err(), "cancelled")
	}
}

func (g *gatedExecutor) waitStarted(t *testing.T) string {
	t.Helper()
	select {
	case id := <-g.startedC:
		return id
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a job to start")
		return ""
	}
}

func testConfig(workers, queue int) Config {
	return Config{Workers: workers, QueueSize: queue, CancelGrace: 200 * time.Millisecond}
}

func transcode(profile string) jobs.Options {
	return jobs.TranscodeOptions{Profile: profile}
}

func waitTerminal(t *testing.T, d *Dispatcher, id string) *jobs.Job {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	job, err := d.WaitJob(ctx, id)
	if err != nil {
		t.Fatalf("WaitJob(%s): %v", id, err)
	}
	return job
}

func closeDispatcher(t *testing.T, d *Dispatcher) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.Close(ctx); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestAdmitDeduplicatesConcurrentRequests(t *testing.T) {
	store := newMemStore()
	exec := newGatedExecutor()
	d := New(store, exec, nil, testConfig(2, 10))
	defer closeDispatcher(t, d)

	const callers = 20
	ids := make([]string, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			job, _, err := d.Admit(context.Background(), "m1", "/media/m1.mkv", transcode("Standard "))
			if err != nil {
				t.Errorf("Admit: %v", err)
				return
			}
			ids[i] = job.ID
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		if id != ids[0] {
			t.Fatalf("Expected one job for all callers, got %v", ids)
		}
	}
	if store.creates != 1 {
		t.Errorf("Expected one stored job, got %d", store.creates)
	}

	exec.waitStarted(t)
	close(exec.release)
	job := waitTerminal(t, d, ids[0])
	if job.State != jobs.StateCompleted {
		t.Errorf("Expected completed, got %s", job.State)
	}
	if got := exec.calls.Load(); got != 1 {
		t.Errorf("Expected one execution, got %d", got)
	}
}

func TestDifferentOptionsAreDifferentJobs(t *testing.T) {
	exec := newGatedExecutor()
	d := New(newMemStore(), exec, nil, testConfig(4, 4))
	defer closeDispatcher(t, d)

	a, _, _ := d.Admit(context.Background(), "m1", "/m1", transcode("standard"))
	b, _, _ := d.Admit(context.Background(), "m1", "/m1", transcode("high"))
	c, _, _ := d.Admit(context.Background(), "m1", "/m1", jobs.HLSOptions{})
	if a.ID == b.ID || a.ID == c.ID {
		t.Error("Expected distinct jobs for distinct options and kinds")
	}
	close(exec.release)
}

func TestConcurrencyBoundUnderBurst(t *testing.T) {
	store := newMemStore()
	exec := newGatedExecutor()
	d := New(store, exec, nil, testConfig(3, 20))
	defer closeDispatcher(t, d)

	var admitted []*jobs.Job
	for i := 0; i < 12; i++ {
		job, adm, err := d.Admit(context.Background(), fmt.Sprintf("m%02d", i), "/in", transcode("standard"))
		if err != nil {
			t.Fatalf("Admit %d: %v", i, err)
		}
		expected := AdmissionStarted
		if i >= 3 {
			expected = AdmissionQueued
		}
		if adm != expected {
			t.Errorf("admission %d = %s, expected %s", i, adm, expected)
		}
		admitted = append(admitted, job)
	}

	running, queued := d.Stats()
	if running != 3 || queued != 9 {
		t.Errorf("Expected 3 running and 9 queued, got %d and %d", running, queued)
	}

	close(exec.release)
	for _, j := range admitted {
		if got := waitTerminal(t, d, j.ID); got.State != jobs.StateCompleted {
			t.Errorf("job %s ended %s", j.ID, got.State)
		}
	}
	if peak := exec.peak.Load(); peak > 3 {
		t.Errorf("Expected at most 3 concurrent executions, saw %d", peak)
	}
}

func TestQueueIsFIFO(t *testing.T) {
	exec := newGatedExecutor()
	d := New(newMemStore(), exec, nil, testConfig(1, 10))
	defer closeDispatcher(t, d)

	var last *jobs.Job
	for _, m := range []string{"a", "b", "c", "d"} {
		last, _, _ = d.Admit(context.Background(), m, "/in", transcode("standard"))
	}
	close(exec.release)
	waitTerminal(t, d, last.ID)

	exec.mu.Lock()
	defer exec.mu.Unlock()
	if got := strings.Join(exec.started, ","); got != "a,b,c,d" {
		t.Errorf("Expected FIFO start order a,b,c,d, got %s", got)
	}
}

func TestQueueFull(t *testing.T) {
	exec := newGatedExecutor()
	d := New(newMemStore(), exec, nil, testConfig(1, 1))
	defer closeDispatcher(t, d)

	if _, adm, _ := d.Admit(context.Background(), "a", "/in", transcode("standard")); adm != AdmissionStarted {
		t.Fatalf("Expected first job started, got %s", adm)
	}
	if _, adm, _ := d.Admit(context.Background(), "b", "/in", transcode("standard")); adm != AdmissionQueued {
		t.Fatalf("Expected second job queued, got %s", adm)
	}
	_, _, err := d.Admit(context.Background(), "c", "/in", transcode("standard"))
	if !errors.Is(err, apperr.ErrQueueFull) {
		t.Errorf("Expected QUEUE_FULL, got %v", err)
	}

	// a duplicate of a queued job is still returned when the queue is full
	dup, adm, err := d.Admit(context.Background(), "b", "/in", transcode("standard"))
	if err != nil || adm != AdmissionDeduplicated || dup.State != jobs.StatePending {
		t.Errorf("Expected deduplicated pending job, got %v %s %v", dup, adm, err)
	}
	close(exec.release)
}

func TestCancelPendingNeverStarts(t *testing.T) {
	store := newMemStore()
	exec := newGatedExecutor()
	d := New(store, exec, nil, testConfig(1, 5))
	defer closeDispatcher(t, d)

	first, _, _ := d.Admit(context.Background(), "first", "/in", transcode("standard"))
	exec.waitStarted(t)
	second, adm, _ := d.Admit(context.Background(), "second", "/in", transcode("standard"))
	if adm != AdmissionQueued {
		t.Fatalf("Expected second job queued, got %s", adm)
	}

	cancelled, err := d.CancelJob(context.Background(), second.ID)
	if err != nil {
		t.Fatalf("CancelJob: %v", err)
	}
	if cancelled.State != jobs.StateCancelled || cancelled.StartedAt != nil {
		t.Errorf("Expected cancelled without start, got %s started=%v", cancelled.State, cancelled.StartedAt)
	}
	if stored := store.stored(second.ID); stored.State != jobs.StateCancelled {
		t.Errorf("Expected stored state cancelled, got %s", stored.State)
	}

	close(exec.release)
	waitTerminal(t, d, first.ID)
	closeDispatcher(t, d)

	exec.mu.Lock()
	defer exec.mu.Unlock()
	for _, m := range exec.started {
		if m == "second" {
			t.Error("cancelled pending job was executed")
		}
	}
	if exec.calls.Load() != 1 {
		t.Errorf("Expected exactly one execution, got %d", exec.calls.Load())
	}
}

func TestCancelProcessingAcknowledged(t *testing.T) {
	store := newMemStore()
	exec := newGatedExecutor()
	d := New(store, exec, nil, testConfig(1, 5))
	defer closeDispatcher(t, d)

	job, _, _ := d.Admit(context.Background(), "m", "/in", transcode("standard"))
	exec.waitStarted(t)

	got, err := d.CancelJob(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("CancelJob: %v", err)
	}
	if got.State != jobs.StateCancelled || got.ErrorCode != apperr.CodeCancelled {
		t.Errorf("Expected cancelled, got %s (%s)", got.State, got.ErrorCode)
	}
	if got.Notes != "" {
		t.Errorf("Expected no reconciliation note, got %q", got.Notes)
	}
	deadline := time.Now().Add(time.Second)
	for {
		if running, _ := d.Stats(); running == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("Expected the worker slot to be released")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestCancelProcessingGraceTimeout(t *testing.T) {
	store := newMemStore()
	exec := newGatedExecutor()
	unblock := make(chan struct{})
	// ignores cancellation until unblocked, then reports success
	exec.result = func(ctx context.Context, job *jobs.Job) (string, error) {
		<-unblock
		return "/out/late", nil
	}
	d := New(store, exec, nil, testConfig(1, 5))
	defer closeDispatcher(t, d)

	job, _, _ := d.Admit(context.Background(), "m", "/in", transcode("standard"))
	exec.waitStarted(t)

	start := time.Now()
	got, err := d.CancelJob(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("CancelJob: %v", err)
	}
	if time.Since(start) < 150*time.Millisecond {
		t.Error("Expected CancelJob to wait for the grace period")
	}
	if got.State != jobs.StateCancelled {
		t.Fatalf("Expected cancelled after grace, got %s", got.State)
	}

	// the slot stays held while the executor is still running
	next, adm, _ := d.Admit(context.Background(), "next", "/in", transcode("standard"))
	if adm != AdmissionQueued {
		t.Errorf("Expected queued while the old process is alive, got %s", adm)
	}

	close(unblock)
	exec.waitStarted(t)
	close(exec.release)
	waitTerminal(t, d, next.ID)

	final := store.stored(job.ID)
	if final.State != jobs.StateCancelled {
		t.Errorf("Expected late success not to override cancellation, got %s", final.State)
	}
	if !strings.Contains(final.Notes, "finished after the job was cancelled") {
		t.Errorf("Expected reconciliation note, got %q", final.Notes)
	}
}

func TestCancelRacingCompletion(t *testing.T) {
	exec := newGatedExecutor()
	// finishes successfully as soon as it is asked to stop
	exec.result = func(ctx context.Context, job *jobs.Job) (string, error) {
		<-ctx.Done()
		return "/out/done", nil
	}
	d := New(newMemStore(), exec, nil, testConfig(1, 5))
	defer closeDispatcher(t, d)

	job, _, _ := d.Admit(context.Background(), "m", "/in", transcode("standard"))
	exec.waitStarted(t)

	got, err := d.CancelJob(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("CancelJob: %v", err)
	}
	if got.State != jobs.StateCompleted || got.OutputPath != "/out/done" {
		t.Errorf("Expected the completion to win, got %s %q", got.State, got.OutputPath)
	}
	if !strings.Contains(got.Notes, "cancellation requested") {
		t.Errorf("Expected note about the cancellation, got %q", got.Notes)
	}
}

func TestCancelTerminalAndUnknown(t *testing.T) {
	exec := newGatedExecutor()
	close(exec.release)
	d := New(newMemStore(), exec, nil, testConfig(1, 5))
	defer closeDispatcher(t, d)

	job, _, _ := d.Admit(context.Background(), "m", "/in", transcode("standard"))
	waitTerminal(t, d, job.ID)

	got, err := d.CancelJob(context.Background(), job.ID)
	if err != nil || got.State != jobs.StateCompleted {
		t.Errorf("Expected completed job unchanged, got %v, %v", got, err)
	}

	if _, err := d.CancelJob(context.Background(), "missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Expected NOT_FOUND, got %v", err)
	}
}

func TestFailureIsRecordedWithCode(t *testing.T) {
	store := newMemStore()
	exec := newGatedExecutor()
	exec.result = func(ctx context.Context, job *jobs.Job) (string, error) {
		return "", apperr.New(apperr.CodeEncodingFailed, "transcode failed: moov atom not found")
	}
	d := New(store, exec, nil, testConfig(1, 5))
	defer closeDispatcher(t, d)

	job, _, _ := d.Admit(context.Background(), "m", "/in", transcode("standard"))
	got := waitTerminal(t, d, job.ID)

	if got.State != jobs.StateFailed || got.ErrorCode != apperr.CodeEncodingFailed {
		t.Errorf("Expected failed ENCODING_FAILED, got %s %s", got.State, got.ErrorCode)
	}
	if !strings.Contains(got.Error, "moov atom not found") {
		t.Errorf("Expected diagnostic in error, got %q", got.Error)
	}

	// a failed key can be admitted again
	again, adm, err := d.Admit(context.Background(), "m", "/in", transcode("standard"))
	if err != nil || adm != AdmissionStarted || again.ID == job.ID {
		t.Errorf("Expected a fresh job after failure, got %v %s %v", again, adm, err)
	}
}

func TestProgressVisibleWhileRunning(t *testing.T) {
	exec := newGatedExecutor()
	d := New(newMemStore(), exec, nil, testConfig(1, 5))
	defer closeDispatcher(t, d)

	job, _, _ := d.Admit(context.Background(), "m", "/in", transcode("standard"))
	if job.Progress != jobs.ProgressUnknown {
		t.Errorf("Expected unknown progress at admission, got %v", job.Progress)
	}
	exec.waitStarted(t)

	deadline := time.Now().Add(time.Second)
	for {
		got, _ := d.GetJob(context.Background(), job.ID)
		if got.Progress == 50 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("Expected progress 50, got %v", got.Progress)
		}
		time.Sleep(5 * time.Millisecond)
	}
	close(exec.release)
	if got := waitTerminal(t, d, job.ID); got.Progress != 100 {
		t.Errorf("Expected 100 on completion, got %v", got.Progress)
	}
}

type chanGate struct{ open chan struct{} }

func (g chanGate) Wait(ctx context.Context) error {
	select {
	case <-g.open:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestGateHoldsStart(t *testing.T) {
	exec := newGatedExecutor()
	close(exec.release)
	gate := chanGate{open: make(chan struct{})}
	d := New(newMemStore(), exec, gate, testConfig(1, 5))
	defer closeDispatcher(t, d)

	job, _, _ := d.Admit(context.Background(), "m", "/in", transcode("standard"))
	time.Sleep(50 * time.Millisecond)
	if exec.calls.Load() != 0 {
		t.Fatal("Expected the executor to wait for the gate")
	}

	close(gate.open)
	if got := waitTerminal(t, d, job.ID); got.State != jobs.StateCompleted {
		t.Errorf("Expected completion after the gate opened, got %s", got.State)
	}
}

func TestCloseCancelsQueuedAndInterruptsRunning(t *testing.T) {
	store := newMemStore()
	exec := newGatedExecutor()
	d := New(store, exec, nil, testConfig(1, 5))

	running, _, _ := d.Admit(context.Background(), "a", "/in", transcode("standard"))
	exec.waitStarted(t)
	queued, _, _ := d.Admit(context.Background(), "b", "/in", transcode("standard"))

	closeDispatcher(t, d)

	if got := store.stored(queued.ID); got.State != jobs.StateCancelled {
		t.Errorf("Expected queued job cancelled, got %s", got.State)
	}
	got := store.stored(running.ID)
	if got.State != jobs.StateFailed || !strings.Contains(got.Error, "shutdown") {
		t.Errorf("Expected running job failed by shutdown, got %s %q", got.State, got.Error)
	}

	if _, _, err := d.Admit(context.Background(), "c", "/in", transcode("standard")); err == nil {
		t.Error("Expected admission to fail after Close")
	}
}

func TestGetJobFallsBackToStore(t *testing.T) {
	store := newMemStore()
	exec := newGatedExecutor()
	close(exec.release)
	d := New(store, exec, nil, testConfig(1, 5))
	defer closeDispatcher(t, d)

	job, _, _ := d.Admit(context.Background(), "m", "/in", transcode("standard"))
	waitTerminal(t, d, job.ID)

	got, err := d.GetJob(context.Background(), job.ID)
	if err != nil || got.State != jobs.StateCompleted {
		t.Errorf("Expected stored completed job, got %v, %v", got, err)
	}
	if _, err := d.GetJob(context.Background(), "nope"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Expected NOT_FOUND, got %v", err)
	}
}

// Media 42 requested twice with profile "standard" before the first run
// finishes: one record, one invocation, one shared outcome.
func TestRepeatedTranscodeRequestScenario(t *testing.T) {
	db, err := database.New(context.Background(), filepath.Join(t.TempDir(), "jobs.db"))
	if err != nil {
		t.Fatalf("database.New: %v", err)
	}
	defer db.Close()

	exec := newGatedExecutor()
	d := New(db, exec, nil, testConfig(2, 8))
	defer closeDispatcher(t, d)

	first, _, err := d.Admit(context.Background(), "42", "/media/42.mkv", transcode("standard"))
	if err != nil {
		t.Fatalf("first Admit: %v", err)
	}
	exec.waitStarted(t)
	second, adm, err := d.Admit(context.Background(), "42", "/media/42.mkv", transcode("standard"))
	if err != nil {
		t.Fatalf("second Admit: %v", err)
	}
	if adm != AdmissionDeduplicated || second.ID != first.ID {
		t.Fatalf("Expected the second request to join job %s, got %s (%s)", first.ID, second.ID, adm)
	}

	results := make(chan *jobs.Job, 2)
	for _, id := range []string{first.ID, second.ID} {
		go func(id string) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			j, _ := d.WaitJob(ctx, id)
			results <- j
		}(id)
	}
	close(exec.release)

	a, b := <-results, <-results
	if a == nil || b == nil || a.State != jobs.StateCompleted || b.State != jobs.StateCompleted {
		t.Fatalf("Expected both callers to observe completion, got %v and %v", a, b)
	}
	if exec.calls.Load() != 1 {
		t.Errorf("Expected one encoder invocation, got %d", exec.calls.Load())
	}

	list, err := db.ListJobs(context.Background(), database.JobFilter{MediaID: "42"})
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("Expected exactly one job record, got %d", len(list))
	}
}
