package tui

import "time"

// ProgressItem is one expert's ingestion status for the monitor list.
type ProgressItem struct {
	ExpertID           string     `json:"expert_id"`
	TaskID             string     `json:"task_id"`
	Stage              string     `json:"stage"`
	Status             string     `json:"status"`
	QueuePosition      *int       `json:"queue_position,omitempty"`
	CurrentFile        string     `json:"current_file,omitempty"`
	CurrentFileIndex   int        `json:"current_file_index"`
	TotalFiles         int        `json:"total_files"`
	CurrentBatch       int        `json:"current_batch"`
	TotalBatches       int        `json:"total_batches"`
	CurrentChunk       int        `json:"current_chunk"`
	TotalChunks        int        `json:"total_chunks"`
	ProcessedFiles     int        `json:"processed_files"`
	FailedFiles        int        `json:"failed_files"`
	ProgressPercentage float64    `json:"progress_percentage"`
	ErrorMessage       string     `json:"error_message,omitempty"`
	StartedAt          time.Time  `json:"started_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
}

// QueueStats holds aggregate queue counts.
type QueueStats struct {
	Queued     int `json:"queued"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Total      int `json:"total"`
}

// WorkerStatus is the daemon worker's live state.
type WorkerStatus struct {
	Running       bool   `json:"running"`
	Busy          bool   `json:"busy"`
	Runner        string `json:"runner"`
	CurrentTaskID string `json:"current_task_id,omitempty"`
}

// EventItem is one entry from a task's transition log.
type EventItem struct {
	Action    string    `json:"action"`
	Outcome   string    `json:"outcome"`
	Details   string    `json:"details"`
	CreatedAt time.Time `json:"created_at"`
}
