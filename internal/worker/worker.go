package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/voxkb/voxkb/internal/models"
	"github.com/voxkb/voxkb/internal/pipeline"
	"github.com/voxkb/voxkb/internal/progress"
	"github.com/voxkb/voxkb/internal/queue"
)

// Worker polls the queue and processes one task at a time. Ordering is
// enforced by running a single claim loop; the queue's atomic claim
// keeps a second process from double-claiming if one is ever started.
type Worker struct {
	queue    *queue.Service
	progress *progress.Service
	runner   pipeline.Runner
	config   *Config
	log      *slog.Logger

	mu            sync.Mutex
	running       bool
	currentTaskID string

	// ctx only signals the poll loop; the pipeline runs under runCtx,
	// which a graceful Stop never cancels.
	ctx       context.Context
	cancel    context.CancelFunc
	runCtx    context.Context
	runCancel context.CancelFunc
	wg        sync.WaitGroup
}

// New creates a new worker.
func New(q *queue.Service, p *progress.Service, runner pipeline.Runner, cfg *Config, log *slog.Logger) *Worker {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Worker{
		queue:    q,
		progress: p,
		runner:   runner,
		config:   cfg,
		log:      log,
	}
}

// Start reclaims tasks orphaned by a previous crash, then begins the
// poll loop. Calling Start on a running worker is a no-op.
func (w *Worker) Start() {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.ctx, w.cancel = context.WithCancel(context.Background())
	w.runCtx, w.runCancel = context.WithCancel(context.Background())
	w.mu.Unlock()

	w.reclaimStale()

	w.wg.Add(1)
	go w.loop()
	w.log.Info("worker started",
		"runner", w.runner.Name(),
		"poll_interval", w.config.PollInterval,
		"stale_after", w.config.StaleAfter)
}

// Stop exits the poll loop and waits for the in-flight task, if any, to
// run to completion. The pipeline context stays live until the wait
// returns, so stopping never preempts a claimed task.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	w.cancel()
	w.wg.Wait()
	w.runCancel()
	w.log.Info("worker stopped")
}

// Status reports the worker's live state.
func (w *Worker) Status() map[string]interface{} {
	w.mu.Lock()
	defer w.mu.Unlock()

	status := map[string]interface{}{
		"running":       w.running,
		"busy":          w.currentTaskID != "",
		"runner":        w.runner.Name(),
		"poll_interval": w.config.PollInterval.String(),
		"stale_after":   w.config.StaleAfter.String(),
	}
	if w.currentTaskID != "" {
		status["current_task_id"] = w.currentTaskID
	}
	return status
}

// loop polls for queued tasks and periodically sweeps for stale ones.
func (w *Worker) loop() {
	defer w.wg.Done()

	poll := time.NewTicker(w.config.PollInterval)
	defer poll.Stop()
	sweep := time.NewTicker(w.config.StaleSweepInterval)
	defer sweep.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-sweep.C:
			w.reclaimStale()
		case <-poll.C:
			w.processNext()
		}
	}
}

// processNext claims and runs at most one task.
func (w *Worker) processNext() {
	task, err := w.queue.ClaimNext()
	if err != nil {
		w.log.Error("failed to claim task", "error", err)
		return
	}
	if task == nil {
		return
	}

	w.mu.Lock()
	w.currentTaskID = task.ID
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		w.currentTaskID = ""
		w.mu.Unlock()
	}()

	if err := w.markProcessing(task); err != nil {
		w.log.Error("failed to mark progress in flight",
			"task_id", task.ID, "expert_id", task.ExpertID, "error", err)
	}

	runErr := w.run(task)
	if runErr == nil {
		w.finishSuccess(task)
		return
	}
	w.finishFailure(task, runErr)
}

// run executes the pipeline for the task, converting a runner panic
// into a permanent failure so one poisoned task cannot kill the loop.
func (w *Worker) run(task *models.Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = pipeline.Permanent(fmt.Errorf("pipeline panic: %v", r))
			w.log.Error("pipeline panicked", "task_id", task.ID, "panic", r)
		}
	}()
	return w.runner.Run(w.runCtx, task, func(u pipeline.Update) {
		w.reportProgress(task, u)
	})
}

// markProcessing flips the expert's progress record from queued to in
// flight as the task leaves the queue.
func (w *Worker) markProcessing(task *models.Task) error {
	stage := models.StageFileProcessing
	status := models.ProgressStatusInProgress
	return w.progress.Update(task.ExpertID, models.ProgressUpdate{
		Stage:              &stage,
		Status:             &status,
		ClearQueuePosition: true,
	})
}

// reportProgress maps one pipeline update onto the expert's progress
// record.
func (w *Worker) reportProgress(task *models.Task, u pipeline.Update) {
	pct := stagePercentFor(u)
	upd := models.ProgressUpdate{
		Stage:              &u.Stage,
		CurrentFileIndex:   &u.FileIndex,
		CurrentBatch:       &u.Batch,
		TotalBatches:       &u.TotalBatches,
		CurrentChunk:       &u.Chunk,
		TotalChunks:        &u.TotalChunks,
		ProcessedFiles:     &u.ProcessedFiles,
		FailedFiles:        &u.FailedFiles,
		ProgressPercentage: &pct,
	}
	if u.CurrentFile != "" {
		upd.CurrentFile = &u.CurrentFile
	}
	if u.TotalFiles > 0 {
		upd.TotalFiles = &u.TotalFiles
	}
	if err := w.progress.Update(task.ExpertID, upd); err != nil {
		w.log.Warn("failed to update progress",
			"task_id", task.ID, "expert_id", task.ExpertID, "error", err)
	}
}

// stagePercentFor picks the in-stage completion ratio for the update's
// stage and maps it onto the overall percentage band.
func stagePercentFor(u pipeline.Update) float64 {
	switch u.Stage {
	case models.StageTextExtraction, models.StageFileProcessing:
		return progress.StagePercent(u.Stage, u.FileIndex, u.TotalFiles)
	case models.StageEmbedding:
		return progress.StagePercent(u.Stage, u.Chunk, u.TotalChunks)
	case models.StageStorage:
		return progress.StagePercent(u.Stage, u.Batch, u.TotalBatches)
	default:
		return progress.StagePercent(u.Stage, 0, 0)
	}
}

func (w *Worker) finishSuccess(task *models.Task) {
	if err := w.queue.Complete(task.ID); err != nil {
		w.log.Error("failed to complete task", "task_id", task.ID, "error", err)
		return
	}
	metadata := map[string]any{
		"total_files": len(task.Payload.Files),
	}
	if err := w.progress.MarkCompleted(task.ExpertID, metadata); err != nil {
		w.log.Error("failed to finalize progress",
			"task_id", task.ID, "expert_id", task.ExpertID, "error", err)
	}
}

func (w *Worker) finishFailure(task *models.Task, runErr error) {
	permanent := pipeline.IsPermanent(runErr)
	requeued, err := w.queue.Fail(task.ID, runErr.Error(), permanent)
	if err != nil {
		w.log.Error("failed to record task failure", "task_id", task.ID, "error", err)
		return
	}
	if requeued {
		w.resetProgressToQueued(task.ID, task.ExpertID)
		return
	}
	if err := w.progress.MarkFailed(task.ExpertID, runErr.Error()); err != nil {
		w.log.Error("failed to finalize progress",
			"task_id", task.ID, "expert_id", task.ExpertID, "error", err)
	}
}

// resetProgressToQueued moves the expert's progress record back to the
// waiting state after the task returned to the queue.
func (w *Worker) resetProgressToQueued(taskID, expertID string) {
	stage := models.StageQueued
	status := models.ProgressStatusPending
	pct := 0.0
	upd := models.ProgressUpdate{
		Stage:              &stage,
		Status:             &status,
		ProgressPercentage: &pct,
	}
	if task, err := w.queue.Get(taskID); err == nil && task.QueuePosition != nil {
		upd.QueuePosition = task.QueuePosition
	}
	if err := w.progress.Update(expertID, upd); err != nil {
		w.log.Warn("failed to reset progress",
			"task_id", taskID, "expert_id", expertID, "error", err)
	}
}

// reclaimStale requeues processing tasks whose claim is older than the
// configured threshold and resets their progress records to queued.
func (w *Worker) reclaimStale() {
	cutoff := time.Now().UTC().Add(-w.config.StaleAfter)
	reclaimed, err := w.queue.ReclaimStale(cutoff)
	if err != nil {
		w.log.Error("failed to reclaim stale tasks", "error", err)
		return
	}
	for _, r := range reclaimed {
		w.resetProgressToQueued(r.ID, r.ExpertID)
	}
}
