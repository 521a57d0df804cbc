package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/voxkb/voxkb/internal/models"
)

// ErrProgressNotFound indicates no progress record exists for the expert.
var ErrProgressNotFound = fmt.Errorf("progress record not found")

const progressColumns = `id, expert_id, agent_id, task_id, stage, status, queue_position,
	current_file, current_file_index, total_files,
	current_batch, total_batches, current_chunk, total_chunks,
	processed_files, failed_files, progress_percentage,
	details, error_message, started_at, updated_at, completed_at`

// scanProgress reads one progress row in progressColumns order.
func scanProgress(row rowScanner) (*models.Progress, error) {
	p := &models.Progress{}
	var queuePos sql.NullInt64
	var currentFile, details, errMsg sql.NullString
	var completedAt sql.NullTime

	err := row.Scan(
		&p.ID, &p.ExpertID, &p.AgentID, &p.TaskID, &p.Stage, &p.Status, &queuePos,
		&currentFile, &p.CurrentFileIndex, &p.TotalFiles,
		&p.CurrentBatch, &p.TotalBatches, &p.CurrentChunk, &p.TotalChunks,
		&p.ProcessedFiles, &p.FailedFiles, &p.ProgressPercentage,
		&details, &errMsg, &p.StartedAt, &p.UpdatedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}
	if queuePos.Valid {
		pos := int(queuePos.Int64)
		p.QueuePosition = &pos
	}
	if currentFile.Valid {
		p.CurrentFile = currentFile.String
	}
	if details.Valid && details.String != "" {
		if err := json.Unmarshal([]byte(details.String), &p.Details); err != nil {
			return nil, fmt.Errorf("decode details: %w", err)
		}
	}
	if errMsg.Valid {
		p.ErrorMessage = errMsg.String
	}
	if completedAt.Valid {
		p.CompletedAt = &completedAt.Time
	}
	return p, nil
}

// CreateProgress initializes a pending progress record for the expert at
// enqueue time. An earlier terminal record for the same expert is
// replaced, so the expert always has exactly one progress row.
func (s *Store) CreateProgress(expertID, agentID, taskID string, totalFiles int, queuePos *int) (*models.Progress, error) {
	now := time.Now().UTC()
	p := &models.Progress{
		ID:            uuid.New().String(),
		ExpertID:      expertID,
		AgentID:       agentID,
		TaskID:        taskID,
		Stage:         models.StageQueued,
		Status:        models.ProgressStatusPending,
		QueuePosition: queuePos,
		TotalFiles:    totalFiles,
		StartedAt:     now,
		UpdatedAt:     now,
	}

	var pos sql.NullInt64
	if queuePos != nil {
		pos = sql.NullInt64{Int64: int64(*queuePos), Valid: true}
	}

	_, err := s.db.Exec(
		`INSERT INTO progress (id, expert_id, agent_id, task_id, stage, status, queue_position,
			total_files, started_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(expert_id) DO UPDATE SET
			id = excluded.id,
			agent_id = excluded.agent_id,
			task_id = excluded.task_id,
			stage = excluded.stage,
			status = excluded.status,
			queue_position = excluded.queue_position,
			current_file = NULL,
			current_file_index = 0,
			total_files = excluded.total_files,
			current_batch = 0, total_batches = 0,
			current_chunk = 0, total_chunks = 0,
			processed_files = 0, failed_files = 0,
			progress_percentage = 0,
			details = NULL, error_message = NULL,
			started_at = excluded.started_at,
			updated_at = excluded.updated_at,
			completed_at = NULL`,
		p.ID, p.ExpertID, p.AgentID, p.TaskID, p.Stage, p.Status, pos,
		p.TotalFiles, p.StartedAt, p.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert progress: %w", err)
	}
	return p, nil
}

// GetProgress retrieves the progress record for an expert.
func (s *Store) GetProgress(expertID string) (*models.Progress, error) {
	p, err := scanProgress(s.db.QueryRow(
		`SELECT `+progressColumns+` FROM progress WHERE expert_id = ?`, expertID,
	))
	if err == sql.ErrNoRows {
		return nil, ErrProgressNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query progress: %w", err)
	}
	return p, nil
}

// UpdateProgress applies a partial update to the expert's progress
// record. The percentage only moves forward while the record is in
// progress; a reset back to pending (task requeued for retry) may lower
// it.
func (s *Store) UpdateProgress(expertID string, u models.ProgressUpdate) error {
	sets := []string{"updated_at = ?"}
	args := []interface{}{time.Now().UTC()}

	add := func(expr string, val interface{}) {
		sets = append(sets, expr)
		args = append(args, val)
	}

	if u.Stage != nil {
		add("stage = ?", *u.Stage)
	}
	if u.Status != nil {
		add("status = ?", *u.Status)
	}
	if u.ClearQueuePosition {
		sets = append(sets, "queue_position = NULL")
	} else if u.QueuePosition != nil {
		add("queue_position = ?", *u.QueuePosition)
	}
	if u.CurrentFile != nil {
		add("current_file = ?", *u.CurrentFile)
	}
	if u.CurrentFileIndex != nil {
		add("current_file_index = ?", *u.CurrentFileIndex)
	}
	if u.TotalFiles != nil {
		add("total_files = ?", *u.TotalFiles)
	}
	if u.CurrentBatch != nil {
		add("current_batch = ?", *u.CurrentBatch)
	}
	if u.TotalBatches != nil {
		add("total_batches = ?", *u.TotalBatches)
	}
	if u.CurrentChunk != nil {
		add("current_chunk = ?", *u.CurrentChunk)
	}
	if u.TotalChunks != nil {
		add("total_chunks = ?", *u.TotalChunks)
	}
	if u.ProcessedFiles != nil {
		add("processed_files = ?", *u.ProcessedFiles)
	}
	if u.FailedFiles != nil {
		add("failed_files = ?", *u.FailedFiles)
	}
	if u.ProgressPercentage != nil {
		if u.Status != nil && *u.Status == models.ProgressStatusPending {
			add("progress_percentage = ?", *u.ProgressPercentage)
		} else {
			// Monotonic while in progress: never step backwards.
			add("progress_percentage = MAX(progress_percentage, ?)", *u.ProgressPercentage)
		}
	}
	if u.Details != nil {
		detailsJSON, err := json.Marshal(u.Details)
		if err != nil {
			return fmt.Errorf("encode details: %w", err)
		}
		add("details = ?", string(detailsJSON))
	}
	if u.ErrorMessage != nil {
		add("error_message = ?", *u.ErrorMessage)
	}

	args = append(args, expertID)
	result, err := s.db.Exec(
		`UPDATE progress SET `+strings.Join(sets, ", ")+` WHERE expert_id = ?`, args...,
	)
	if err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrProgressNotFound
	}
	return nil
}

// MarkProgressCompleted finalizes the record: stage complete, status
// completed, 100%. Extra metadata is merged into details.
func (s *Store) MarkProgressCompleted(expertID string, metadata map[string]any) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var existing sql.NullString
	err = tx.QueryRow(`SELECT details FROM progress WHERE expert_id = ?`, expertID).Scan(&existing)
	if err == sql.ErrNoRows {
		return ErrProgressNotFound
	}
	if err != nil {
		return fmt.Errorf("query details: %w", err)
	}

	details := map[string]any{}
	if existing.Valid && existing.String != "" {
		if err := json.Unmarshal([]byte(existing.String), &details); err != nil {
			return fmt.Errorf("decode details: %w", err)
		}
	}
	for k, v := range metadata {
		details[k] = v
	}
	var detailsArg interface{}
	if len(details) > 0 {
		detailsJSON, err := json.Marshal(details)
		if err != nil {
			return fmt.Errorf("encode details: %w", err)
		}
		detailsArg = string(detailsJSON)
	}

	now := time.Now().UTC()
	_, err = tx.Exec(
		`UPDATE progress SET stage = 'complete', status = 'completed',
			progress_percentage = 100, queue_position = NULL,
			details = ?, completed_at = ?, updated_at = ?
		 WHERE expert_id = ?`,
		detailsArg, now, now, expertID,
	)
	if err != nil {
		return fmt.Errorf("complete progress: %w", err)
	}
	return tx.Commit()
}

// MarkProgressFailed finalizes the record as failed with the error
// message.
func (s *Store) MarkProgressFailed(expertID, errMsg string) error {
	now := time.Now().UTC()
	result, err := s.db.Exec(
		`UPDATE progress SET stage = 'failed', status = 'failed',
			error_message = ?, queue_position = NULL, completed_at = ?, updated_at = ?
		 WHERE expert_id = ?`,
		errMsg, now, now, expertID,
	)
	if err != nil {
		return fmt.Errorf("fail progress: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrProgressNotFound
	}
	return nil
}

// DeleteProgress removes the expert's progress record, typically after a
// client has acknowledged a terminal state.
func (s *Store) DeleteProgress(expertID string) error {
	result, err := s.db.Exec(`DELETE FROM progress WHERE expert_id = ?`, expertID)
	if err != nil {
		return fmt.Errorf("delete progress: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrProgressNotFound
	}
	return nil
}

// ListActiveProgress returns all records not in a terminal status,
// oldest first.
func (s *Store) ListActiveProgress() ([]models.Progress, error) {
	rows, err := s.db.Query(
		`SELECT ` + progressColumns + ` FROM progress
		 WHERE status IN ('pending', 'in_progress')
		 ORDER BY started_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query active progress: %w", err)
	}
	defer rows.Close()

	var records []models.Progress
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, fmt.Errorf("scan progress: %w", err)
		}
		records = append(records, *p)
	}
	return records, rows.Err()
}
