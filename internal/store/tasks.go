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

// ErrDuplicateActiveTask indicates the expert already has a queued or
// processing task.
var ErrDuplicateActiveTask = fmt.Errorf("expert already has an active task")

// ErrTaskNotFound indicates the task does not exist.
var ErrTaskNotFound = fmt.Errorf("task not found")

// ErrTaskNotProcessing indicates the task is not in the processing state,
// so a completion or failure transition does not apply.
var ErrTaskNotProcessing = fmt.Errorf("task is not processing")

// ErrTaskNotCancellable indicates the task is not queued; only queued
// tasks can be cancelled.
var ErrTaskNotCancellable = fmt.Errorf("task is not queued")

const taskColumns = `id, expert_id, agent_id, task_type, status, priority, queue_position,
	payload, retry_count, max_retries, error_message,
	created_at, enqueued_at, started_at, completed_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanTask reads one task row in taskColumns order.
func scanTask(row rowScanner) (*models.Task, error) {
	task := &models.Task{}
	var queuePos sql.NullInt64
	var payload, errMsg sql.NullString
	var startedAt, completedAt sql.NullTime

	err := row.Scan(
		&task.ID, &task.ExpertID, &task.AgentID, &task.Type, &task.Status,
		&task.Priority, &queuePos, &payload, &task.RetryCount, &task.MaxRetries,
		&errMsg, &task.CreatedAt, &task.EnqueuedAt, &startedAt, &completedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if queuePos.Valid {
		pos := int(queuePos.Int64)
		task.QueuePosition = &pos
	}
	if payload.Valid && payload.String != "" {
		if err := json.Unmarshal([]byte(payload.String), &task.Payload); err != nil {
			return nil, fmt.Errorf("decode payload: %w", err)
		}
	}
	if errMsg.Valid {
		task.ErrorMessage = errMsg.String
	}
	if startedAt.Valid {
		task.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		task.CompletedAt = &completedAt.Time
	}
	return task, nil
}

// EnqueueTask inserts a new queued task and recomputes queue positions.
// The partial unique index on active tasks enforces the one-active-task-
// per-expert invariant; a violation maps to ErrDuplicateActiveTask.
func (s *Store) EnqueueTask(expertID, agentID string, payload models.IngestPayload, priority, maxRetries int) (*models.Task, error) {
	now := time.Now().UTC()
	task := &models.Task{
		ID:         uuid.New().String(),
		ExpertID:   expertID,
		AgentID:    agentID,
		Type:       models.TaskTypeFileIngestion,
		Status:     models.TaskStatusQueued,
		Priority:   priority,
		Payload:    payload,
		MaxRetries: maxRetries,
		CreatedAt:  now,
		EnqueuedAt: now,
		UpdatedAt:  now,
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO tasks (id, expert_id, agent_id, task_type, status, priority, payload,
			retry_count, max_retries, created_at, enqueued_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?, ?)`,
		task.ID, task.ExpertID, task.AgentID, task.Type, task.Status,
		task.Priority, string(payloadJSON), task.MaxRetries,
		task.CreatedAt, task.EnqueuedAt, task.UpdatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") || strings.Contains(err.Error(), "unique constraint") {
			return nil, ErrDuplicateActiveTask
		}
		return nil, fmt.Errorf("insert task: %w", err)
	}

	if err := recomputeQueuePositions(tx); err != nil {
		return nil, err
	}

	var pos int
	if err := tx.QueryRow(`SELECT queue_position FROM tasks WHERE id = ?`, task.ID).Scan(&pos); err != nil {
		return nil, fmt.Errorf("query position: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	task.QueuePosition = &pos
	return task, nil
}

// GetTask retrieves a task by ID. Returns ErrTaskNotFound if it does not
// exist.
func (s *Store) GetTask(id string) (*models.Task, error) {
	task, err := scanTask(s.db.QueryRow(
		`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query task: %w", err)
	}
	return task, nil
}

// GetActiveTaskByExpert returns the expert's queued or processing task,
// or nil if the expert has no active task.
func (s *Store) GetActiveTaskByExpert(expertID string) (*models.Task, error) {
	task, err := scanTask(s.db.QueryRow(
		`SELECT `+taskColumns+` FROM tasks
		 WHERE expert_id = ? AND status IN ('queued', 'processing')`, expertID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query active task: %w", err)
	}
	return task, nil
}

// ListTasks returns tasks in queue order, optionally filtered by status.
func (s *Store) ListTasks(status string) ([]models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks`
	var args []interface{}

	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY priority DESC, enqueued_at ASC, id ASC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}

// ClaimNextTask atomically transitions the highest-priority, oldest
// queued task to processing and returns it. Returns nil when the queue is
// empty. The transition is a conditional update keyed on the current
// status, so no two callers can ever claim the same task.
func (s *Store) ClaimNextTask() (*models.Task, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	var id string
	err = tx.QueryRow(
		`SELECT id FROM tasks WHERE status = 'queued'
		 ORDER BY priority DESC, enqueued_at ASC, id ASC LIMIT 1`,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query next task: %w", err)
	}

	result, err := tx.Exec(
		`UPDATE tasks SET status = 'processing', started_at = ?, queue_position = NULL, updated_at = ?
		 WHERE id = ? AND status = 'queued'`,
		now, now, id,
	)
	if err != nil {
		return nil, fmt.Errorf("claim task: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		// Lost the race to another claimer; the caller retries next poll.
		return nil, nil
	}

	if err := recomputeQueuePositions(tx); err != nil {
		return nil, err
	}

	task, err := scanTask(tx.QueryRow(
		`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id,
	))
	if err != nil {
		return nil, fmt.Errorf("query claimed task: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return task, nil
}

// CompleteTask marks a processing task as completed. Returns
// ErrTaskNotProcessing if the task is in any other state, which also
// protects terminal tasks from being mutated again.
func (s *Store) CompleteTask(id string) error {
	now := time.Now().UTC()
	result, err := s.db.Exec(
		`UPDATE tasks SET status = 'completed', completed_at = ?, error_message = NULL, updated_at = ?
		 WHERE id = ? AND status = 'processing'`,
		now, now, id,
	)
	if err != nil {
		return fmt.Errorf("complete task: %w", err)
	}
	return requireTransition(result)
}

// FailTask records a failure for a processing task. It increments the
// retry count; while retries remain (and the failure is not permanent)
// the task is requeued at the back of its priority tier via a fresh
// enqueued_at. Otherwise the task becomes terminally failed. Returns
// whether the task was requeued.
func (s *Store) FailTask(id, errMsg string, permanent bool) (bool, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return false, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var retryCount, maxRetries int
	err = tx.QueryRow(
		`SELECT retry_count, max_retries FROM tasks WHERE id = ? AND status = 'processing'`, id,
	).Scan(&retryCount, &maxRetries)
	if err == sql.ErrNoRows {
		return false, ErrTaskNotProcessing
	}
	if err != nil {
		return false, fmt.Errorf("query task: %w", err)
	}

	now := time.Now().UTC()
	retryCount++
	requeue := !permanent && retryCount < maxRetries

	var result sql.Result
	if requeue {
		result, err = tx.Exec(
			`UPDATE tasks SET status = 'queued', retry_count = ?, error_message = ?,
				enqueued_at = ?, started_at = NULL, updated_at = ?
			 WHERE id = ? AND status = 'processing'`,
			retryCount, errMsg, now, now, id,
		)
	} else {
		result, err = tx.Exec(
			`UPDATE tasks SET status = 'failed', retry_count = ?, error_message = ?,
				completed_at = ?, updated_at = ?
			 WHERE id = ? AND status = 'processing'`,
			retryCount, errMsg, now, now, id,
		)
	}
	if err != nil {
		return false, fmt.Errorf("fail task: %w", err)
	}
	if err := requireTransition(result); err != nil {
		return false, err
	}

	if err := recomputeQueuePositions(tx); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit transaction: %w", err)
	}
	return requeue, nil
}

// CancelTask cancels a queued task. Tasks that have started processing
// cannot be cancelled.
func (s *Store) CancelTask(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	result, err := tx.Exec(
		`UPDATE tasks SET status = 'cancelled', completed_at = ?, queue_position = NULL, updated_at = ?
		 WHERE id = ? AND status = 'queued'`,
		now, now, id,
	)
	if err != nil {
		return fmt.Errorf("cancel task: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrTaskNotCancellable
	}

	if err := recomputeQueuePositions(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// ReclaimedTask identifies a task returned to the queue by a stale
// sweep.
type ReclaimedTask struct {
	ID       string
	ExpertID string
}

// ReclaimStaleTasks returns to the queue any processing task whose
// started_at is older than cutoff. Such tasks were orphaned by a process
// that died mid-job; requeueing them restores at-least-once delivery.
// The reclaim keeps enqueued_at so the task resumes its original queue
// slot, and does not consume a retry.
func (s *Store) ReclaimStaleTasks(cutoff time.Time) ([]ReclaimedTask, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.Query(
		`SELECT id, expert_id FROM tasks WHERE status = 'processing' AND started_at <= ?`, cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("query stale tasks: %w", err)
	}
	var reclaimed []ReclaimedTask
	for rows.Next() {
		var r ReclaimedTask
		if err := rows.Scan(&r.ID, &r.ExpertID); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan stale task: %w", err)
		}
		reclaimed = append(reclaimed, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(reclaimed) == 0 {
		return nil, nil
	}

	now := time.Now().UTC()
	for _, r := range reclaimed {
		_, err := tx.Exec(
			`UPDATE tasks SET status = 'queued', started_at = NULL, updated_at = ?
			 WHERE id = ? AND status = 'processing'`,
			now, r.ID,
		)
		if err != nil {
			return nil, fmt.Errorf("reclaim task: %w", err)
		}
	}

	if err := recomputeQueuePositions(tx); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return reclaimed, nil
}

// QueueStats returns aggregate queue counters.
func (s *Store) QueueStats() (*models.QueueStats, error) {
	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}
	defer rows.Close()

	stats := &models.QueueStats{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		switch models.TaskStatus(status) {
		case models.TaskStatusQueued:
			stats.Queued = count
		case models.TaskStatusProcessing:
			stats.Processing = count
		case models.TaskStatusCompleted:
			stats.Completed = count
		case models.TaskStatusFailed:
			stats.Failed = count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Total counts the active backlog.
	stats.Total = stats.Queued + stats.Processing
	return stats, nil
}

// requireTransition maps a zero-row conditional update to
// ErrTaskNotProcessing.
func requireTransition(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrTaskNotProcessing
	}
	return nil
}

// recomputeQueuePositions reassigns the dense 1..N ranking over queued
// tasks, ordered by (priority desc, enqueued_at asc). Runs inside every
// mutating transaction that changes the queued set.
func recomputeQueuePositions(tx *sql.Tx) error {
	rows, err := tx.Query(
		`SELECT id FROM tasks WHERE status = 'queued'
		 ORDER BY priority DESC, enqueued_at ASC, id ASC`,
	)
	if err != nil {
		return fmt.Errorf("query queued tasks: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("scan queued task: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for i, id := range ids {
		if _, err := tx.Exec(`UPDATE tasks SET queue_position = ? WHERE id = ?`, i+1, id); err != nil {
			return fmt.Errorf("update position: %w", err)
		}
	}
	return nil
}
