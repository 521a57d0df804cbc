// Package queue provides the task queue service over the durable store:
// enqueue, atomic claim, status transitions, and aggregate statistics.
package queue

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/voxkb/voxkb/internal/audit"
	"github.com/voxkb/voxkb/internal/models"
	"github.com/voxkb/voxkb/internal/store"
)

// Validation errors surfaced synchronously to the submitter.
var (
	ErrMissingExpert = errors.New("expert id required")
	ErrMissingAgent  = errors.New("agent id required")
	ErrNoFiles       = errors.New("submission contains no files")
)

// DefaultMaxRetries bounds the retry budget for new tasks unless
// configured otherwise.
const DefaultMaxRetries = 3

// Service wraps the task store with queue semantics.
type Service struct {
	store      *store.Store
	recorder   *audit.Recorder
	maxRetries int
	log        *slog.Logger
}

// New creates a new queue service. maxRetries <= 0 selects
// DefaultMaxRetries.
func New(s *store.Store, recorder *audit.Recorder, maxRetries int, log *slog.Logger) *Service {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: s, recorder: recorder, maxRetries: maxRetries, log: log}
}

// EnqueueRequest holds the fields needed to queue a new ingestion task.
type EnqueueRequest struct {
	ExpertID string
	AgentID  string
	Payload  models.IngestPayload
	Priority int
}

// Enqueue validates the submission and inserts a queued task. An expert
// with an active (queued or processing) task is rejected with
// store.ErrDuplicateActiveTask; coalescing or stacking submissions is
// deliberately not supported.
func (s *Service) Enqueue(req EnqueueRequest) (*models.Task, error) {
	if req.ExpertID == "" {
		return nil, ErrMissingExpert
	}
	if req.AgentID == "" {
		return nil, ErrMissingAgent
	}
	if len(req.Payload.Files) == 0 {
		return nil, ErrNoFiles
	}

	task, err := s.store.EnqueueTask(req.ExpertID, req.AgentID, req.Payload, req.Priority, s.maxRetries)
	if err != nil {
		return nil, err
	}

	s.recorder.Record(task.ID, task.ExpertID, audit.ActionEnqueue, "success",
		fmt.Sprintf("queued %d files at position %d", len(task.Payload.Files), *task.QueuePosition))
	s.log.Info("task enqueued",
		"task_id", task.ID, "expert_id", task.ExpertID,
		"files", len(task.Payload.Files), "priority", task.Priority,
		"position", *task.QueuePosition)
	return task, nil
}

// ClaimNext atomically claims the next queued task, transitioning it to
// processing. Returns nil when the queue is empty.
func (s *Service) ClaimNext() (*models.Task, error) {
	task, err := s.store.ClaimNextTask()
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, nil
	}

	s.recorder.Record(task.ID, task.ExpertID, audit.ActionClaim, "success", "")
	s.log.Info("task claimed", "task_id", task.ID, "expert_id", task.ExpertID)
	return task, nil
}

// Complete marks a processing task as completed.
func (s *Service) Complete(taskID string) error {
	task, err := s.store.GetTask(taskID)
	if err != nil {
		return err
	}
	if err := s.store.CompleteTask(taskID); err != nil {
		return err
	}

	s.recorder.Record(taskID, task.ExpertID, audit.ActionComplete, "success", "")
	s.log.Info("task completed", "task_id", taskID, "expert_id", task.ExpertID)
	return nil
}

// Fail records a failure for a processing task. While the retry budget
// holds (and the failure is not permanent) the task is requeued at the
// back of its priority tier; otherwise it becomes terminally failed.
// Returns whether the task was requeued.
func (s *Service) Fail(taskID, errMsg string, permanent bool) (bool, error) {
	task, err := s.store.GetTask(taskID)
	if err != nil {
		return false, err
	}

	requeued, err := s.store.FailTask(taskID, errMsg, permanent)
	if err != nil {
		return false, err
	}

	if requeued {
		s.recorder.Record(taskID, task.ExpertID, audit.ActionRequeue, "retry", errMsg)
		s.log.Warn("task failed, requeued for retry",
			"task_id", taskID, "expert_id", task.ExpertID,
			"retry", task.RetryCount+1, "max_retries", task.MaxRetries, "error", errMsg)
	} else {
		s.recorder.Record(taskID, task.ExpertID, audit.ActionFail, "failed", errMsg)
		s.log.Error("task failed permanently",
			"task_id", taskID, "expert_id", task.ExpertID, "error", errMsg)
	}
	return requeued, nil
}

// Cancel cancels a queued task. In-flight tasks cannot be cancelled.
func (s *Service) Cancel(taskID string) error {
	task, err := s.store.GetTask(taskID)
	if err != nil {
		return err
	}
	if err := s.store.CancelTask(taskID); err != nil {
		return err
	}

	s.recorder.Record(taskID, task.ExpertID, audit.ActionCancel, "success", "")
	s.log.Info("task cancelled", "task_id", taskID, "expert_id", task.ExpertID)
	return nil
}

// ReclaimStale requeues processing tasks whose started_at is older than
// cutoff; those were orphaned by an earlier process crash. Reclaiming
// keeps the original ordering key and does not consume a retry.
func (s *Service) ReclaimStale(cutoff time.Time) ([]store.ReclaimedTask, error) {
	reclaimed, err := s.store.ReclaimStaleTasks(cutoff)
	if err != nil {
		return nil, err
	}
	for _, r := range reclaimed {
		s.recorder.Record(r.ID, r.ExpertID, audit.ActionReclaim, "success",
			"requeued after stale processing claim")
		s.log.Warn("reclaimed stale task", "task_id", r.ID, "expert_id", r.ExpertID)
	}
	return reclaimed, nil
}

// Get retrieves a task by ID.
func (s *Service) Get(taskID string) (*models.Task, error) {
	return s.store.GetTask(taskID)
}

// ActiveTask returns the expert's queued or processing task, or nil when
// the expert has none.
func (s *Service) ActiveTask(expertID string) (*models.Task, error) {
	return s.store.GetActiveTaskByExpert(expertID)
}

// List returns tasks ordered by queue rank, optionally filtered by
// status.
func (s *Service) List(status models.TaskStatus) ([]models.Task, error) {
	return s.store.ListTasks(string(status))
}

// Stats returns aggregate queue counts.
func (s *Service) Stats() (*models.QueueStats, error) {
	return s.store.QueueStats()
}

// Events returns the transition log for a task, oldest first.
func (s *Service) Events(taskID string) ([]models.TaskEvent, error) {
	if _, err := s.store.GetTask(taskID); err != nil {
		return nil, err
	}
	return s.store.ListTaskEvents(taskID)
}
