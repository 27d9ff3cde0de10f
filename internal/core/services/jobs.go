package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/umlgen/internal/core/domain"
	"github.com/custodia-labs/umlgen/internal/core/ports/driven"
	"github.com/custodia-labs/umlgen/internal/core/ports/driving"
	"github.com/custodia-labs/umlgen/internal/logger"
)

// Ensure JobRunner implements the interface.
var _ driving.JobService = (*JobRunner)(nil)

// recordTimeout bounds saving a finished run.
const recordTimeout = 10 * time.Second

// DefaultJobRetention is how many finished jobs a runner keeps in memory.
const DefaultJobRetention = 256

// generator runs one request under a chosen ID.
type generator interface {
	GenerateWithID(ctx context.Context, req domain.ScenarioRequest, requestID string, fn domain.ProgressFunc) (*domain.RunResult, error)
}

// jobEntry tracks one background job.
type jobEntry struct {
	job    domain.Job
	cancel context.CancelFunc
	done   chan struct{}
}

// JobRunner runs generations in the background with progress tracking
// and cancellation. Jobs are kept in memory; finished runs are recorded
// through the run service. Only the most recent finished jobs are kept,
// older ones remain reachable through run history.
type JobRunner struct {
	pipeline  generator
	runs      driving.RunService
	observer  driven.Observer
	now       func() time.Time
	retention int

	mu       sync.RWMutex
	jobs     map[string]*jobEntry
	finished []string // finished job IDs, oldest first
	wg       sync.WaitGroup
	shutdown bool
}

// JobRunnerOption configures a JobRunner.
type JobRunnerOption func(*JobRunner)

// WithJobRetention overrides DefaultJobRetention. Values below one are ignored.
func WithJobRetention(n int) JobRunnerOption {
	return func(r *JobRunner) {
		if n > 0 {
			r.retention = n
		}
	}
}

// NewJobRunner creates a job runner. runs may be nil to skip recording.
func NewJobRunner(pipeline *Pipeline, runs driving.RunService, observer driven.Observer, opts ...JobRunnerOption) *JobRunner {
	return newJobRunner(pipeline, runs, observer, opts...)
}

func newJobRunner(pipeline generator, runs driving.RunService, observer driven.Observer, opts ...JobRunnerOption) *JobRunner {
	r := &JobRunner{
		pipeline:  pipeline,
		runs:      runs,
		observer:  observerOrNop(observer),
		now:       time.Now,
		retention: DefaultJobRetention,
		jobs:      make(map[string]*jobEntry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Submit validates the request and starts it in the background.
// The job's context is detached from ctx so it outlives the caller.
func (r *JobRunner) Submit(_ context.Context, req domain.ScenarioRequest) (*domain.Job, error) {
	req, err := ValidateRequest(req)
	if err != nil {
		return nil, err
	}

	now := r.now()
	jobCtx, cancel := context.WithCancel(context.Background())
	entry := &jobEntry{
		job: domain.Job{
			ID:        uuid.NewString(),
			RequestID: uuid.NewString(),
			Request:   req,
			Status:    domain.RunPending,
			Steps:     []domain.JobStep{},
			CreatedAt: now,
			UpdatedAt: now,
		},
		cancel: cancel,
		done:   make(chan struct{}),
	}

	r.mu.Lock()
	if r.shutdown {
		r.mu.Unlock()
		cancel()
		return nil, fmt.Errorf("job runner is shutting down")
	}
	r.jobs[entry.job.ID] = entry
	r.wg.Add(1)
	snapshot := copyJob(&entry.job)
	r.mu.Unlock()

	logger.Info("Job %s submitted (request %s)", entry.job.ID, entry.job.RequestID)
	go r.execute(jobCtx, entry)

	return snapshot, nil
}

// execute runs one job to completion.
func (r *JobRunner) execute(ctx context.Context, entry *jobEntry) {
	defer r.wg.Done()
	defer close(entry.done)
	defer entry.cancel()

	r.observer.JobStarted()
	defer r.observer.JobFinished()

	r.mu.Lock()
	entry.job.Status = domain.RunRunning
	entry.job.UpdatedAt = r.now()
	req, requestID := entry.job.Request, entry.job.RequestID
	createdAt := entry.job.CreatedAt
	r.mu.Unlock()

	progress := func(p domain.Progress) {
		r.mu.Lock()
		entry.job.Apply(p, r.now())
		r.mu.Unlock()
	}

	result, err := r.pipeline.GenerateWithID(ctx, req, requestID, progress)

	r.mu.Lock()
	entry.job.Result = result
	entry.job.UpdatedAt = r.now()
	switch {
	case result != nil:
		entry.job.Status = result.Status
	case errors.Is(err, context.Canceled):
		entry.job.Status = domain.RunCancelled
	default:
		entry.job.Status = domain.RunFailed
	}
	if err != nil {
		entry.job.Error = err.Error()
		entry.job.ErrorKind = domain.ErrorKind(err)
	}
	status := entry.job.Status
	r.retire(entry.job.ID)
	r.mu.Unlock()

	logger.Info("Job %s finished: %s", entry.job.ID, status)

	if r.runs != nil {
		recordCtx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		defer cancel()
		if err := r.runs.Record(recordCtx, req, result, createdAt); err != nil {
			logger.Warn("Failed to record run %s: %v", requestID, err)
		}
	}
}

// retire marks a job finished and evicts the oldest finished jobs beyond
// the retention limit. Callers hold r.mu.
func (r *JobRunner) retire(id string) {
	r.finished = append(r.finished, id)
	for len(r.finished) > r.retention {
		evicted := r.finished[0]
		r.finished = r.finished[1:]
		delete(r.jobs, evicted)
		logger.Debug("Job %s evicted from memory", evicted)
	}
}

// Get returns a snapshot of a job.
func (r *JobRunner) Get(_ context.Context, id string) (*domain.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: job %s", domain.ErrNotFound, id)
	}
	return copyJob(&entry.job), nil
}

// List returns snapshots of all known jobs, newest first.
func (r *JobRunner) List(_ context.Context) ([]domain.Job, error) {
	r.mu.RLock()
	jobs := make([]domain.Job, 0, len(r.jobs))
	for _, entry := range r.jobs {
		jobs = append(jobs, *copyJob(&entry.job))
	}
	r.mu.RUnlock()

	sort.SliceStable(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	return jobs, nil
}

// Cancel abandons a running job. Cancelling a finished job is a no-op.
func (r *JobRunner) Cancel(_ context.Context, id string) error {
	r.mu.RLock()
	entry, ok := r.jobs[id]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: job %s", domain.ErrNotFound, id)
	}

	entry.cancel()
	logger.Info("Job %s cancellation requested", id)
	return nil
}

// Wait blocks until the job reaches a terminal status or ctx is done.
func (r *JobRunner) Wait(ctx context.Context, id string) (*domain.Job, error) {
	r.mu.RLock()
	entry, ok := r.jobs[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: job %s", domain.ErrNotFound, id)
	}

	select {
	case <-entry.done:
		// The entry may already be evicted; it is final either way.
		r.mu.RLock()
		defer r.mu.RUnlock()
		return copyJob(&entry.job), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Shutdown cancels every running job and waits for them to stop.
func (r *JobRunner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.shutdown = true
	for _, entry := range r.jobs {
		entry.cancel()
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// copyJob returns a snapshot that shares no mutable state with the original.
func copyJob(job *domain.Job) *domain.Job {
	c := *job
	c.Steps = append([]domain.JobStep(nil), job.Steps...)
	if c.Steps == nil {
		c.Steps = []domain.JobStep{}
	}
	if job.Result != nil {
		result := *job.Result
		result.Diagrams = append([]domain.DiagramOutcome(nil), job.Result.Diagrams...)
		c.Result = &result
	}
	return &c
}
