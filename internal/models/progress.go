package models

import "time"

// Stage is a coarse phase of pipeline execution reflected to clients.
type Stage string

const (
	StageQueued         Stage = "queued"
	StageFileProcessing Stage = "file_processing"
	StageTextExtraction Stage = "text_extraction"
	StageEmbedding      Stage = "embedding"
	StageStorage        Stage = "storage"
	StageComplete       Stage = "complete"
	StageFailed         Stage = "failed"
)

// ProgressStatus represents the lifecycle state of a progress record.
type ProgressStatus string

const (
	ProgressStatusPending    ProgressStatus = "pending"
	ProgressStatusInProgress ProgressStatus = "in_progress"
	ProgressStatusCompleted  ProgressStatus = "completed"
	ProgressStatusFailed     ProgressStatus = "failed"
)

// Terminal reports whether the progress status is final.
func (s ProgressStatus) Terminal() bool {
	return s == ProgressStatusCompleted || s == ProgressStatusFailed
}

// Progress is the externally visible status projection for an expert's
// current or most recent ingestion task. Clients poll this record; they
// never see the task row directly.
type Progress struct {
	ID       string `json:"id"`
	ExpertID string `json:"expert_id"`
	AgentID  string `json:"agent_id"`
	TaskID   string `json:"task_id"`

	Stage  Stage          `json:"stage"`
	Status ProgressStatus `json:"status"`

	// QueuePosition mirrors the task's position while the task is queued
	// and is nil once processing starts.
	QueuePosition *int `json:"queue_position,omitempty"`

	CurrentFile      string `json:"current_file,omitempty"`
	CurrentFileIndex int    `json:"current_file_index"`
	TotalFiles       int    `json:"total_files"`

	CurrentBatch int `json:"current_batch"`
	TotalBatches int `json:"total_batches"`
	CurrentChunk int `json:"current_chunk"`
	TotalChunks  int `json:"total_chunks"`

	ProcessedFiles int `json:"processed_files"`
	FailedFiles    int `json:"failed_files"`

	// ProgressPercentage is 0..100 and never decreases while the record
	// is in progress.
	ProgressPercentage float64 `json:"progress_percentage"`

	Details      map[string]any `json:"details,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`

	StartedAt   time.Time  `json:"started_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// ProgressUpdate is a partial update applied to a progress record. Nil
// fields are left untouched.
type ProgressUpdate struct {
	Stage  *Stage
	Status *ProgressStatus

	QueuePosition      *int
	ClearQueuePosition bool

	CurrentFile      *string
	CurrentFileIndex *int
	TotalFiles       *int

	CurrentBatch *int
	TotalBatches *int
	CurrentChunk *int
	TotalChunks  *int

	ProcessedFiles *int
	FailedFiles    *int

	ProgressPercentage *float64

	Details      map[string]any
	ErrorMessage *string
}
