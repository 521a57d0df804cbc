package worker

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxkb/voxkb/internal/audit"
	"github.com/voxkb/voxkb/internal/models"
	"github.com/voxkb/voxkb/internal/pipeline"
	"github.com/voxkb/voxkb/internal/pipeline/simulate"
	"github.com/voxkb/voxkb/internal/progress"
	"github.com/voxkb/voxkb/internal/queue"
	"github.com/voxkb/voxkb/internal/store"
)

func fastConfig() *Config {
	return &Config{
		PollInterval:       10 * time.Millisecond,
		StaleAfter:         time.Hour,
		StaleSweepInterval: time.Hour,
	}
}

type testEnv struct {
	store    *store.Store
	queue    *queue.Service
	progress *progress.Service
}

func newTestEnv(t *testing.T, maxRetries int) *testEnv {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	log := slog.Default()
	return &testEnv{
		store:    s,
		queue:    queue.New(s, audit.NewRecorder(s, log), maxRetries, log),
		progress: progress.New(s, log),
	}
}

func (e *testEnv) submit(t *testing.T, expertID string) *models.Task {
	t.Helper()
	task, err := e.queue.Enqueue(queue.EnqueueRequest{
		ExpertID: expertID,
		AgentID:  "agent-1",
		Payload: models.IngestPayload{
			Files: []models.FileRef{{ID: "f1", Name: "doc.pdf"}, {ID: "f2", Name: "notes.md"}},
		},
	})
	require.NoError(t, err)
	_, err = e.progress.Create(expertID, "agent-1", task.ID, len(task.Payload.Files), task.QueuePosition)
	require.NoError(t, err)
	return task
}

// funcRunner adapts a function to the pipeline.Runner interface.
type funcRunner struct {
	name string
	run  func(ctx context.Context, task *models.Task, onProgress pipeline.ProgressFunc) error
}

func (r *funcRunner) Name() string { return r.name }
func (r *funcRunner) Run(ctx context.Context, task *models.Task, onProgress pipeline.ProgressFunc) error {
	return r.run(ctx, task, onProgress)
}

func taskStatus(t *testing.T, e *testEnv, id string) models.TaskStatus {
	t.Helper()
	task, err := e.store.GetTask(id)
	require.NoError(t, err)
	return task.Status
}

func TestWorkerProcessesTaskToCompletion(t *testing.T) {
	e := newTestEnv(t, 3)
	task := e.submit(t, "expert-a")

	runner := simulate.New(simulate.WithStepDelay(time.Millisecond))
	w := New(e.queue, e.progress, runner, fastConfig(), slog.Default())
	w.Start()
	defer w.Stop()

	require.Eventually(t, func() bool {
		return taskStatus(t, e, task.ID) == models.TaskStatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	p, err := e.progress.Get("expert-a")
	require.NoError(t, err)
	assert.Equal(t, models.ProgressStatusCompleted, p.Status)
	assert.Equal(t, models.StageComplete, p.Stage)
	assert.Equal(t, 100.0, p.ProgressPercentage)
}

func TestWorkerRetriesTransientFailures(t *testing.T) {
	e := newTestEnv(t, 2)
	task := e.submit(t, "expert-a")

	runner := &funcRunner{name: "flaky", run: func(context.Context, *models.Task, pipeline.ProgressFunc) error {
		return errors.New("backend unavailable")
	}}
	w := New(e.queue, e.progress, runner, fastConfig(), slog.Default())
	w.Start()
	defer w.Stop()

	require.Eventually(t, func() bool {
		return taskStatus(t, e, task.ID) == models.TaskStatusFailed
	}, 5*time.Second, 10*time.Millisecond)

	got, err := e.store.GetTask(task.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.RetryCount)

	p, err := e.progress.Get("expert-a")
	require.NoError(t, err)
	assert.Equal(t, models.ProgressStatusFailed, p.Status)
	assert.Equal(t, "backend unavailable", p.ErrorMessage)
}

func TestWorkerPermanentFailureSkipsRetries(t *testing.T) {
	e := newTestEnv(t, 5)
	task := e.submit(t, "expert-a")

	runner := &funcRunner{name: "strict", run: func(context.Context, *models.Task, pipeline.ProgressFunc) error {
		return pipeline.Permanent(errors.New("unsupported file format"))
	}}
	w := New(e.queue, e.progress, runner, fastConfig(), slog.Default())
	w.Start()
	defer w.Stop()

	require.Eventually(t, func() bool {
		return taskStatus(t, e, task.ID) == models.TaskStatusFailed
	}, 5*time.Second, 10*time.Millisecond)

	got, err := e.store.GetTask(task.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.RetryCount)
}

func TestWorkerSurvivesRunnerPanic(t *testing.T) {
	e := newTestEnv(t, 3)
	task := e.submit(t, "expert-a")

	runner := &funcRunner{name: "poison", run: func(context.Context, *models.Task, pipeline.ProgressFunc) error {
		panic("corrupted state")
	}}
	w := New(e.queue, e.progress, runner, fastConfig(), slog.Default())
	w.Start()
	defer w.Stop()

	// A panic is treated as permanent: failed on the first attempt.
	require.Eventually(t, func() bool {
		return taskStatus(t, e, task.ID) == models.TaskStatusFailed
	}, 5*time.Second, 10*time.Millisecond)

	got, err := e.store.GetTask(task.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.RetryCount)
	assert.Contains(t, got.ErrorMessage, "pipeline panic")
}

func TestWorkerReclaimsOrphanedTaskOnStart(t *testing.T) {
	e := newTestEnv(t, 3)
	task := e.submit(t, "expert-a")

	// Simulate a previous process that claimed the task and died.
	claimed, err := e.queue.ClaimNext()
	require.NoError(t, err)
	require.Equal(t, task.ID, claimed.ID)

	cfg := fastConfig()
	cfg.StaleAfter = time.Nanosecond
	time.Sleep(5 * time.Millisecond)

	runner := simulate.New(simulate.WithStepDelay(time.Millisecond))
	w := New(e.queue, e.progress, runner, cfg, slog.Default())
	w.Start()
	defer w.Stop()

	require.Eventually(t, func() bool {
		return taskStatus(t, e, task.ID) == models.TaskStatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	got, err := e.store.GetTask(task.ID)
	require.NoError(t, err)
	// The reclaim did not burn a retry.
	assert.Equal(t, 0, got.RetryCount)
}

func TestWorkerRequeueResetsProgress(t *testing.T) {
	e := newTestEnv(t, 3)
	e.submit(t, "expert-a")

	attempts := 0
	runner := &funcRunner{name: "once-flaky", run: func(_ context.Context, _ *models.Task, onProgress pipeline.ProgressFunc) error {
		attempts++
		if attempts == 1 {
			onProgress(pipeline.Update{Stage: models.StageEmbedding, Chunk: 5, TotalChunks: 10})
			return errors.New("transient")
		}
		return nil
	}}
	w := New(e.queue, e.progress, runner, fastConfig(), slog.Default())
	w.Start()
	defer w.Stop()

	require.Eventually(t, func() bool {
		p, err := e.progress.Get("expert-a")
		return err == nil && p.Status == models.ProgressStatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, 2, attempts)
}

func TestWorkerGracefulStopFinishesInFlightTask(t *testing.T) {
	e := newTestEnv(t, 3)
	task := e.submit(t, "expert-a")

	started := make(chan struct{})
	runner := &funcRunner{name: "slow", run: func(ctx context.Context, _ *models.Task, _ pipeline.ProgressFunc) error {
		close(started)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
			return nil
		}
	}}
	w := New(e.queue, e.progress, runner, fastConfig(), slog.Default())
	w.Start()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("runner never started")
	}
	// Stop must wait for the claimed task to run to completion, not
	// cancel it out from under the runner.
	w.Stop()

	got, err := e.store.GetTask(task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusCompleted, got.Status)
	assert.Equal(t, 0, got.RetryCount)
	assert.Empty(t, got.ErrorMessage)

	p, err := e.progress.Get("expert-a")
	require.NoError(t, err)
	assert.Equal(t, models.ProgressStatusCompleted, p.Status)
}

func TestWorkerStartStopIdempotent(t *testing.T) {
	e := newTestEnv(t, 3)

	runner := simulate.New(simulate.WithStepDelay(time.Millisecond))
	w := New(e.queue, e.progress, runner, fastConfig(), slog.Default())

	w.Start()
	w.Start()

	status := w.Status()
	assert.Equal(t, true, status["running"])
	assert.Equal(t, "simulate", status["runner"])

	w.Stop()
	w.Stop()

	status = w.Status()
	assert.Equal(t, false, status["running"])
}
