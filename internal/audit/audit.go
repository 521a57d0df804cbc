// Package audit records task transitions into a durable event log.
package audit

import (
	"log/slog"

	"github.com/voxkb/voxkb/internal/store"
)

// Actions recorded in the task event log.
const (
	ActionEnqueue  = "task.enqueue"
	ActionClaim    = "task.claim"
	ActionComplete = "task.complete"
	ActionRequeue  = "task.requeue"
	ActionFail     = "task.fail"
	ActionCancel   = "task.cancel"
	ActionReclaim  = "task.reclaim"
)

// Recorder appends task transition events. Recording is best effort: a
// write failure is logged but never fails the transition that triggered
// it.
type Recorder struct {
	store *store.Store
	log   *slog.Logger
}

// NewRecorder creates a new transition recorder.
func NewRecorder(s *store.Store, log *slog.Logger) *Recorder {
	if log == nil {
		log = slog.Default()
	}
	return &Recorder{store: s, log: log}
}

// Record writes one transition event for a task.
func (r *Recorder) Record(taskID, expertID, action, outcome, details string) {
	if _, err := r.store.AppendTaskEvent(taskID, expertID, action, outcome, details); err != nil {
		r.log.Warn("failed to record task event",
			"task_id", taskID, "action", action, "error", err)
	}
}
