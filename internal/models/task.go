// Package models defines the core domain types for voxkb.
package models

import "time"

// TaskStatus represents the current state of a queued ingestion task.
type TaskStatus string

const (
	TaskStatusQueued     TaskStatus = "queued"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
	TaskStatusCancelled  TaskStatus = "cancelled"
)

// Terminal reports whether the status is final. Terminal tasks are never
// mutated again.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	}
	return false
}

// TaskType identifies the kind of work a task carries.
type TaskType string

const (
	// TaskTypeFileIngestion ingests uploaded files into the expert's
	// knowledge base.
	TaskTypeFileIngestion TaskType = "file_ingestion"
)

// FileRef points at an uploaded source file to ingest.
type FileRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// IngestPayload is the task payload for file-ingestion tasks.
type IngestPayload struct {
	Files   []FileRef      `json:"files"`
	Options map[string]any `json:"options,omitempty"`
}

// Task represents one unit of queued ingestion work for an expert.
// At most one task per expert may be in a non-terminal state.
type Task struct {
	ID       string     `json:"id"`
	ExpertID string     `json:"expert_id"`
	AgentID  string     `json:"agent_id"`
	Type     TaskType   `json:"task_type"`
	Status   TaskStatus `json:"status"`
	Priority int        `json:"priority"`

	// QueuePosition is a dense 1..N rank among queued tasks, ordered by
	// (priority desc, enqueued_at asc). Nil unless status is queued.
	QueuePosition *int `json:"queue_position,omitempty"`

	Payload IngestPayload `json:"payload"`

	RetryCount   int    `json:"retry_count"`
	MaxRetries   int    `json:"max_retries"`
	ErrorMessage string `json:"error_message,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	// EnqueuedAt is the queue ordering key. It equals CreatedAt for a
	// fresh task and is reset to the requeue time when a failed task
	// re-enters the queue, sending it to the back of its priority tier.
	EnqueuedAt  time.Time  `json:"enqueued_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// QueueStats holds aggregate queue counters. Total counts the active
// backlog (queued + processing).
type QueueStats struct {
	Queued     int `json:"queued"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Total      int `json:"total"`
}

// TaskEvent is one entry in the durable task transition log.
type TaskEvent struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"task_id"`
	ExpertID  string    `json:"expert_id"`
	Action    string    `json:"action"`
	Outcome   string    `json:"outcome"`
	Details   string    `json:"details,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
