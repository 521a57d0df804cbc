// Package progress tracks per-expert ingestion progress: stage, file
// and batch counters, and an overall percentage that only moves forward
// while a run is live.
package progress

import (
	"log/slog"

	"github.com/voxkb/voxkb/internal/models"
	"github.com/voxkb/voxkb/internal/store"
)

// Percentage bands per pipeline stage. Extraction fills 10-20, embedding
// 20-90, storage 90-100.
const (
	extractionBase = 10.0
	extractionSpan = 10.0
	embeddingBase  = 20.0
	embeddingSpan  = 70.0
	storageBase    = 90.0
	storageSpan    = 10.0
)

// Service manages progress records alongside their queue tasks.
type Service struct {
	store *store.Store
	log   *slog.Logger
}

// New creates a new progress service.
func New(s *store.Store, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: s, log: log}
}

// Create initializes a pending record for the expert at enqueue time.
// A leftover terminal record for the same expert is replaced.
func (s *Service) Create(expertID, agentID, taskID string, totalFiles int, queuePos *int) (*models.Progress, error) {
	p, err := s.store.CreateProgress(expertID, agentID, taskID, totalFiles, queuePos)
	if err != nil {
		return nil, err
	}
	s.log.Debug("progress record created",
		"expert_id", expertID, "task_id", taskID, "total_files", totalFiles)
	return p, nil
}

// Get returns the expert's progress record. While the record is still
// waiting in the queue, the stored queue position may be stale (other
// tasks complete or cancel), so it is refreshed from the live task.
func (s *Service) Get(expertID string) (*models.Progress, error) {
	p, err := s.store.GetProgress(expertID)
	if err != nil {
		return nil, err
	}
	if p.Stage == models.StageQueued {
		task, err := s.store.GetActiveTaskByExpert(expertID)
		if err != nil {
			return nil, err
		}
		if task != nil && task.Status == models.TaskStatusQueued {
			p.QueuePosition = task.QueuePosition
		}
	}
	return p, nil
}

// Update applies a partial update to the expert's record.
func (s *Service) Update(expertID string, u models.ProgressUpdate) error {
	return s.store.UpdateProgress(expertID, u)
}

// MarkCompleted finalizes the record at 100% with optional result
// metadata merged into details.
func (s *Service) MarkCompleted(expertID string, metadata map[string]any) error {
	if err := s.store.MarkProgressCompleted(expertID, metadata); err != nil {
		return err
	}
	s.log.Info("ingestion completed", "expert_id", expertID)
	return nil
}

// MarkFailed finalizes the record as failed.
func (s *Service) MarkFailed(expertID, errMsg string) error {
	if err := s.store.MarkProgressFailed(expertID, errMsg); err != nil {
		return err
	}
	s.log.Info("ingestion failed", "expert_id", expertID, "error", errMsg)
	return nil
}

// Delete removes the expert's record, typically after a client has
// acknowledged a terminal state.
func (s *Service) Delete(expertID string) error {
	return s.store.DeleteProgress(expertID)
}

// ListActive returns all non-terminal records, oldest first, with queue
// positions refreshed for records still waiting.
func (s *Service) ListActive() ([]models.Progress, error) {
	records, err := s.store.ListActiveProgress()
	if err != nil {
		return nil, err
	}
	for i := range records {
		if records[i].Stage != models.StageQueued {
			continue
		}
		task, err := s.store.GetActiveTaskByExpert(records[i].ExpertID)
		if err != nil {
			return nil, err
		}
		if task != nil && task.Status == models.TaskStatusQueued {
			records[i].QueuePosition = task.QueuePosition
		}
	}
	return records, nil
}

// StagePercent maps done/total within a stage onto the overall
// percentage band for that stage. Stages outside the banded middle of
// the pipeline return their band floor.
func StagePercent(stage models.Stage, done, total int) float64 {
	frac := 0.0
	if total > 0 {
		frac = float64(done) / float64(total)
		if frac > 1 {
			frac = 1
		}
	}
	switch stage {
	case models.StageTextExtraction:
		return extractionBase + extractionSpan*frac
	case models.StageEmbedding:
		return embeddingBase + embeddingSpan*frac
	case models.StageStorage:
		return storageBase + storageSpan*frac
	case models.StageFileProcessing:
		return extractionBase
	case models.StageComplete:
		return 100
	default:
		return 0
	}
}
