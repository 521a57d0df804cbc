package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/voxkb/voxkb/internal/models"
)

// AppendTaskEvent writes one entry to the task transition log.
func (s *Store) AppendTaskEvent(taskID, expertID, action, outcome, details string) (*models.TaskEvent, error) {
	event := &models.TaskEvent{
		ID:        uuid.New().String(),
		TaskID:    taskID,
		ExpertID:  expertID,
		Action:    action,
		Outcome:   outcome,
		Details:   details,
		CreatedAt: time.Now().UTC(),
	}

	_, err := s.db.Exec(
		`INSERT INTO task_events (id, task_id, expert_id, action, outcome, details, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.TaskID, event.ExpertID, event.Action, event.Outcome,
		event.Details, event.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert task event: %w", err)
	}
	return event, nil
}

// ListTaskEvents returns the transition log for a task, oldest first.
func (s *Store) ListTaskEvents(taskID string) ([]models.TaskEvent, error) {
	rows, err := s.db.Query(
		`SELECT id, task_id, expert_id, action, outcome, details, created_at
		 FROM task_events WHERE task_id = ? ORDER BY created_at ASC, id ASC`,
		taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("query task events: %w", err)
	}
	defer rows.Close()

	var events []models.TaskEvent
	for rows.Next() {
		var e models.TaskEvent
		if err := rows.Scan(&e.ID, &e.TaskID, &e.ExpertID, &e.Action, &e.Outcome, &e.Details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan task event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
