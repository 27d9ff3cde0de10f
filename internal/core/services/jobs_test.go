package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/umlgen/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/umlgen/internal/core/domain"
)

// fakeGenerator implements generator with a scripted function.
type fakeGenerator struct {
	fn func(ctx context.Context, req domain.ScenarioRequest, requestID string, progress domain.ProgressFunc) (*domain.RunResult, error)
}

func (g *fakeGenerator) GenerateWithID(
	ctx context.Context,
	req domain.ScenarioRequest,
	requestID string,
	progress domain.ProgressFunc,
) (*domain.RunResult, error) {
	return g.fn(ctx, req, requestID, progress)
}

// stepClock advances one second per reading.
type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stepClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestJobRunner_SubmitAndWait(t *testing.T) {
	f := newPipelineFixture(t, libraryDocs(), domain.PipelineSingleStage, twoDiagramReply)
	runs := NewRunService(memory.NewRunStore(), f.artifacts)
	observer := &recordingObserver{}
	runner := NewJobRunner(f.pipeline, runs, observer)

	job, err := runner.Submit(context.Background(), domain.ScenarioRequest{Scenario: libraryScenario})
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)
	assert.NotEmpty(t, job.RequestID)
	assert.NotEqual(t, job.ID, job.RequestID)
	assert.Equal(t, domain.RunPending, job.Status)

	done, err := runner.Wait(waitCtx(t), job.ID)
	require.NoError(t, err)

	assert.Equal(t, domain.RunCompleted, done.Status)
	require.NotNil(t, done.Result)
	assert.Equal(t, job.RequestID, done.Result.RequestID)
	assert.Len(t, done.Result.Diagrams, 2)
	assert.Empty(t, done.Error)

	var render []string
	for _, step := range done.Steps {
		if step.Name == domain.StepRender {
			render = append(render, step.Diagram+"="+string(step.Status))
		}
	}
	assert.Equal(t, []string{"use_case_diagram=completed", "class_diagram=completed"}, render)

	record, err := runs.Get(context.Background(), job.RequestID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunCompleted, record.Status)
	assert.Equal(t, libraryScenario, record.Scenario)

	assert.Equal(t, 0, observer.active)
	assert.Equal(t, 1, observer.finished)
}

func TestJobRunner_SubmitIsDetachedFromCaller(t *testing.T) {
	f := newPipelineFixture(t, libraryDocs(), domain.PipelineSingleStage, twoDiagramReply)
	runner := NewJobRunner(f.pipeline, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())

	job, err := runner.Submit(ctx, domain.ScenarioRequest{Scenario: libraryScenario})
	require.NoError(t, err)
	cancel()

	done, err := runner.Wait(waitCtx(t), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunCompleted, done.Status)
}

func TestJobRunner_SubmitRejectsInvalidRequest(t *testing.T) {
	runner := newJobRunner(&fakeGenerator{}, nil, nil)

	job, err := runner.Submit(context.Background(), domain.ScenarioRequest{Mode: "bogus"})

	assert.Nil(t, job)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	jobs, err := runner.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestJobRunner_Cancel(t *testing.T) {
	f := newPipelineFixture(t, libraryDocs(), domain.PipelineSingleStage)
	f.llm.block = true
	runs := NewRunService(memory.NewRunStore(), f.artifacts)
	runner := NewJobRunner(f.pipeline, runs, nil)

	job, err := runner.Submit(context.Background(), domain.ScenarioRequest{Scenario: libraryScenario})
	require.NoError(t, err)
	require.NoError(t, runner.Cancel(context.Background(), job.ID))

	done, err := runner.Wait(waitCtx(t), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunCancelled, done.Status)
	assert.Equal(t, "cancelled", done.ErrorKind)

	record, err := runs.Get(context.Background(), job.RequestID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunCancelled, record.Status)

	// Cancelling a finished job is a no-op
	assert.NoError(t, runner.Cancel(context.Background(), job.ID))
}

func TestJobRunner_FailureWithoutResult(t *testing.T) {
	gen := &fakeGenerator{fn: func(context.Context, domain.ScenarioRequest, string, domain.ProgressFunc) (*domain.RunResult, error) {
		return nil, errors.New("boom")
	}}
	store := memory.NewRunStore()
	runner := newJobRunner(gen, NewRunService(store, newMapArtifacts()), nil)

	job, err := runner.Submit(context.Background(), domain.ScenarioRequest{Scenario: "s"})
	require.NoError(t, err)

	done, err := runner.Wait(waitCtx(t), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunFailed, done.Status)
	assert.Equal(t, "boom", done.Error)
	assert.Equal(t, "internal", done.ErrorKind)
	assert.Nil(t, done.Result)

	records, err := store.ListRuns(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestJobRunner_ProgressUpdatesSteps(t *testing.T) {
	release := make(chan struct{})
	seen := make(chan struct{})
	gen := &fakeGenerator{fn: func(_ context.Context, _ domain.ScenarioRequest, id string, progress domain.ProgressFunc) (*domain.RunResult, error) {
		progress(domain.Progress{Step: domain.StepRetrieve, Status: domain.StepInProgress})
		progress(domain.Progress{Step: domain.StepRetrieve, Status: domain.StepCompleted, Description: "4 passages"})
		close(seen)
		<-release
		return &domain.RunResult{RequestID: id, Status: domain.RunCompleted, Diagrams: []domain.DiagramOutcome{}}, nil
	}}
	runner := newJobRunner(gen, nil, nil)

	job, err := runner.Submit(context.Background(), domain.ScenarioRequest{Scenario: "s"})
	require.NoError(t, err)
	<-seen

	running, err := runner.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunRunning, running.Status)
	require.Len(t, running.Steps, 1, "repeated events update the same step")
	assert.Equal(t, domain.StepCompleted, running.Steps[0].Status)
	assert.Equal(t, "4 passages", running.Steps[0].Description)

	// Snapshots share no state with the live job
	running.Steps[0].Status = domain.StepFailed
	again, err := runner.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StepCompleted, again.Steps[0].Status)

	close(release)
	done, err := runner.Wait(waitCtx(t), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunCompleted, done.Status)
}

func TestJobRunner_ListNewestFirst(t *testing.T) {
	gen := &fakeGenerator{fn: func(_ context.Context, _ domain.ScenarioRequest, id string, _ domain.ProgressFunc) (*domain.RunResult, error) {
		return &domain.RunResult{RequestID: id, Status: domain.RunCompleted}, nil
	}}
	runner := newJobRunner(gen, nil, nil)
	clock := &stepClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	runner.now = clock.now

	first, err := runner.Submit(context.Background(), domain.ScenarioRequest{Scenario: "first"})
	require.NoError(t, err)
	second, err := runner.Submit(context.Background(), domain.ScenarioRequest{Scenario: "second"})
	require.NoError(t, err)

	jobs, err := runner.List(context.Background())
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, second.ID, jobs[0].ID)
	assert.Equal(t, first.ID, jobs[1].ID)

	require.NoError(t, runner.Shutdown(waitCtx(t)))
}

func TestJobRunner_EvictsOldestFinishedJobs(t *testing.T) {
	gen := &fakeGenerator{fn: func(_ context.Context, _ domain.ScenarioRequest, id string, _ domain.ProgressFunc) (*domain.RunResult, error) {
		return &domain.RunResult{RequestID: id, Status: domain.RunCompleted}, nil
	}}
	runner := newJobRunner(gen, nil, nil, WithJobRetention(2))
	ctx := waitCtx(t)

	var ids []string
	for _, scenario := range []string{"first", "second", "third"} {
		job, err := runner.Submit(context.Background(), domain.ScenarioRequest{Scenario: scenario})
		require.NoError(t, err)
		done, err := runner.Wait(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.RunCompleted, done.Status, "waiting returns the final job even once evicted")
		ids = append(ids, job.ID)
	}

	_, err := runner.Get(ctx, ids[0])
	assert.ErrorIs(t, err, domain.ErrNotFound)

	jobs, err := runner.List(ctx)
	require.NoError(t, err)
	assert.Len(t, jobs, 2)
	for _, id := range ids[1:] {
		_, err := runner.Get(ctx, id)
		assert.NoError(t, err)
	}

	require.NoError(t, runner.Shutdown(ctx))
}

func TestJobRunner_RunningJobsAreNotEvicted(t *testing.T) {
	release := make(chan struct{})
	gen := &fakeGenerator{fn: func(_ context.Context, req domain.ScenarioRequest, id string, _ domain.ProgressFunc) (*domain.RunResult, error) {
		if req.Scenario == "slow" {
			<-release
		}
		return &domain.RunResult{RequestID: id, Status: domain.RunCompleted}, nil
	}}
	runner := newJobRunner(gen, nil, nil, WithJobRetention(1))
	ctx := waitCtx(t)

	slow, err := runner.Submit(context.Background(), domain.ScenarioRequest{Scenario: "slow"})
	require.NoError(t, err)
	for _, scenario := range []string{"a", "b"} {
		job, err := runner.Submit(context.Background(), domain.ScenarioRequest{Scenario: scenario})
		require.NoError(t, err)
		_, err = runner.Wait(ctx, job.ID)
		require.NoError(t, err)
	}

	running, err := runner.Get(ctx, slow.ID)
	require.NoError(t, err)
	assert.NotEqual(t, domain.RunCompleted, running.Status)

	close(release)
	_, err = runner.Wait(ctx, slow.ID)
	require.NoError(t, err)
	require.NoError(t, runner.Shutdown(ctx))
}

func TestJobRunner_UnknownJob(t *testing.T) {
	runner := newJobRunner(&fakeGenerator{}, nil, nil)
	ctx := context.Background()

	_, err := runner.Get(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	assert.ErrorIs(t, runner.Cancel(ctx, "nope"), domain.ErrNotFound)

	_, err = runner.Wait(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestJobRunner_WaitHonoursContext(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	gen := &fakeGenerator{fn: func(_ context.Context, _ domain.ScenarioRequest, id string, _ domain.ProgressFunc) (*domain.RunResult, error) {
		<-release
		return &domain.RunResult{RequestID: id, Status: domain.RunCompleted}, nil
	}}
	runner := newJobRunner(gen, nil, nil)

	job, err := runner.Submit(context.Background(), domain.ScenarioRequest{Scenario: "s"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = runner.Wait(ctx, job.ID)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestJobRunner_Shutdown(t *testing.T) {
	gen := &fakeGenerator{fn: func(ctx context.Context, _ domain.ScenarioRequest, id string, _ domain.ProgressFunc) (*domain.RunResult, error) {
		<-ctx.Done()
		return &domain.RunResult{RequestID: id, Status: domain.RunCancelled}, ctx.Err()
	}}
	runner := newJobRunner(gen, nil, nil)

	job, err := runner.Submit(context.Background(), domain.ScenarioRequest{Scenario: "s"})
	require.NoError(t, err)

	require.NoError(t, runner.Shutdown(waitCtx(t)))

	stopped, err := runner.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunCancelled, stopped.Status)

	_, err = runner.Submit(context.Background(), domain.ScenarioRequest{Scenario: "late"})
	assert.Error(t, err)
}
