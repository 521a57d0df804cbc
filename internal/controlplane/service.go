// Package controlplane provides the HTTP API and service layer for the
// ingestion queue.
package controlplane

import (
	"log/slog"

	"github.com/voxkb/voxkb/internal/models"
	"github.com/voxkb/voxkb/internal/progress"
	"github.com/voxkb/voxkb/internal/queue"
)

// WorkerStatus reports live worker state to the API.
type WorkerStatus interface {
	Status() map[string]interface{}
}

// Service provides the control plane business logic over the queue and
// progress services.
type Service struct {
	queue    *queue.Service
	progress *progress.Service
	worker   WorkerStatus
	log      *slog.Logger
}

// NewService creates a new control plane service.
func NewService(q *queue.Service, p *progress.Service, w WorkerStatus, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{queue: q, progress: p, worker: w, log: log}
}

// SubmitRequest is an ingestion submission.
type SubmitRequest struct {
	ExpertID string           `json:"expert_id"`
	AgentID  string           `json:"agent_id"`
	Files    []models.FileRef `json:"files"`
	Options  map[string]any   `json:"options,omitempty"`
	Priority int              `json:"priority,omitempty"`
}

// SubmitResponse acknowledges a queued submission.
type SubmitResponse struct {
	TaskID        string            `json:"task_id"`
	ExpertID      string            `json:"expert_id"`
	Status        models.TaskStatus `json:"status"`
	QueuePosition *int              `json:"queue_position,omitempty"`
}

// SubmitIngestion queues an ingestion task and initializes the expert's
// progress record in one step. The submitter gets the task ID and queue
// position back; everything after that is observed through progress.
func (s *Service) SubmitIngestion(req SubmitRequest) (*SubmitResponse, error) {
	task, err := s.queue.Enqueue(queue.EnqueueRequest{
		ExpertID: req.ExpertID,
		AgentID:  req.AgentID,
		Payload:  models.IngestPayload{Files: req.Files, Options: req.Options},
		Priority: req.Priority,
	})
	if err != nil {
		return nil, err
	}

	if _, err := s.progress.Create(task.ExpertID, task.AgentID, task.ID, len(task.Payload.Files), task.QueuePosition); err != nil {
		// The task is already queued; the worker will still process it,
		// so surface the degraded tracking instead of failing the submit.
		s.log.Error("failed to create progress record",
			"task_id", task.ID, "expert_id", task.ExpertID, "error", err)
	}

	return &SubmitResponse{
		TaskID:        task.ID,
		ExpertID:      task.ExpertID,
		Status:        task.Status,
		QueuePosition: task.QueuePosition,
	}, nil
}

// GetTask retrieves a task by ID.
func (s *Service) GetTask(id string) (*models.Task, error) {
	return s.queue.Get(id)
}

// ListTasks returns tasks in queue order, optionally filtered by status.
func (s *Service) ListTasks(status models.TaskStatus) ([]models.Task, error) {
	return s.queue.List(status)
}

// CancelTask cancels a queued task and finalizes its progress record.
func (s *Service) CancelTask(id string) (*models.Task, error) {
	task, err := s.queue.Get(id)
	if err != nil {
		return nil, err
	}
	if err := s.queue.Cancel(id); err != nil {
		return nil, err
	}
	if err := s.progress.MarkFailed(task.ExpertID, "cancelled before processing"); err != nil {
		s.log.Warn("failed to finalize progress for cancelled task",
			"task_id", id, "expert_id", task.ExpertID, "error", err)
	}
	return s.queue.Get(id)
}

// TaskEvents returns the transition log for a task.
func (s *Service) TaskEvents(id string) ([]models.TaskEvent, error) {
	return s.queue.Events(id)
}

// QueueStats returns aggregate queue counts.
func (s *Service) QueueStats() (*models.QueueStats, error) {
	return s.queue.Stats()
}

// GetProgress returns the expert's progress record with a fresh queue
// position.
func (s *Service) GetProgress(expertID string) (*models.Progress, error) {
	return s.progress.Get(expertID)
}

// ListProgress returns all non-terminal progress records.
func (s *Service) ListProgress() ([]models.Progress, error) {
	return s.progress.ListActive()
}

// DeleteProgress removes an expert's progress record.
func (s *Service) DeleteProgress(expertID string) error {
	return s.progress.Delete(expertID)
}

// WorkerStatus reports the worker's live state.
func (s *Service) WorkerStatus() map[string]interface{} {
	if s.worker == nil {
		return map[string]interface{}{"running": false}
	}
	return s.worker.Status()
}
