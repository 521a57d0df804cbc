package progress

import (
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxkb/voxkb/internal/models"
	"github.com/voxkb/voxkb/internal/store"
)

func newTestService(t *testing.T) (*Service, *store.Store) {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return New(s, slog.Default()), s
}

func enqueue(t *testing.T, s *store.Store, expertID string) *models.Task {
	t.Helper()
	task, err := s.EnqueueTask(expertID, "agent-1", models.IngestPayload{
		Files: []models.FileRef{{ID: "f1", Name: "doc.pdf"}},
	}, 0, 3)
	require.NoError(t, err)
	return task
}

func TestStagePercentBands(t *testing.T) {
	tests := []struct {
		name  string
		stage models.Stage
		done  int
		total int
		want  float64
	}{
		{"queued floor", models.StageQueued, 0, 0, 0},
		{"file processing floor", models.StageFileProcessing, 1, 4, 10},
		{"extraction start", models.StageTextExtraction, 0, 4, 10},
		{"extraction halfway", models.StageTextExtraction, 2, 4, 15},
		{"extraction done", models.StageTextExtraction, 4, 4, 20},
		{"embedding start", models.StageEmbedding, 0, 10, 20},
		{"embedding halfway", models.StageEmbedding, 5, 10, 55},
		{"embedding done", models.StageEmbedding, 10, 10, 90},
		{"storage start", models.StageStorage, 0, 2, 90},
		{"storage done", models.StageStorage, 2, 2, 100},
		{"complete", models.StageComplete, 0, 0, 100},
		{"overshoot clamps", models.StageEmbedding, 15, 10, 90},
		{"zero total", models.StageEmbedding, 3, 0, 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, StagePercent(tt.stage, tt.done, tt.total), 0.001)
		})
	}
}

func TestGetRefreshesQueuePosition(t *testing.T) {
	svc, s := newTestService(t)

	a := enqueue(t, s, "expert-a")
	b := enqueue(t, s, "expert-b")

	_, err := svc.Create(b.ExpertID, b.AgentID, b.ID, 1, b.QueuePosition)
	require.NoError(t, err)

	// The stored position 2 goes stale once the task ahead is cancelled.
	require.NoError(t, s.CancelTask(a.ID))

	got, err := svc.Get("expert-b")
	require.NoError(t, err)
	require.NotNil(t, got.QueuePosition)
	assert.Equal(t, 1, *got.QueuePosition)
}

func TestGetLeavesInFlightPositionAlone(t *testing.T) {
	svc, s := newTestService(t)

	task := enqueue(t, s, "expert-a")
	_, err := svc.Create(task.ExpertID, task.AgentID, task.ID, 1, task.QueuePosition)
	require.NoError(t, err)

	_, err = s.ClaimNextTask()
	require.NoError(t, err)
	stage := models.StageFileProcessing
	status := models.ProgressStatusInProgress
	require.NoError(t, svc.Update("expert-a", models.ProgressUpdate{
		Stage:              &stage,
		Status:             &status,
		ClearQueuePosition: true,
	}))

	got, err := svc.Get("expert-a")
	require.NoError(t, err)
	assert.Nil(t, got.QueuePosition)
}

func TestListActiveRefreshesPositions(t *testing.T) {
	svc, s := newTestService(t)

	a := enqueue(t, s, "expert-a")
	b := enqueue(t, s, "expert-b")
	_, err := svc.Create(a.ExpertID, a.AgentID, a.ID, 1, a.QueuePosition)
	require.NoError(t, err)
	_, err = svc.Create(b.ExpertID, b.AgentID, b.ID, 1, b.QueuePosition)
	require.NoError(t, err)

	require.NoError(t, s.CancelTask(a.ID))
	require.NoError(t, svc.MarkFailed("expert-a", "cancelled before processing"))

	records, err := svc.ListActive()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "expert-b", records[0].ExpertID)
	require.NotNil(t, records[0].QueuePosition)
	assert.Equal(t, 1, *records[0].QueuePosition)
}

func TestMarkCompletedFinalizes(t *testing.T) {
	svc, s := newTestService(t)

	task := enqueue(t, s, "expert-a")
	_, err := svc.Create(task.ExpertID, task.AgentID, task.ID, 1, task.QueuePosition)
	require.NoError(t, err)

	require.NoError(t, svc.MarkCompleted("expert-a", map[string]any{"total_files": 1.0}))

	got, err := svc.Get("expert-a")
	require.NoError(t, err)
	assert.Equal(t, models.ProgressStatusCompleted, got.Status)
	assert.Equal(t, 100.0, got.ProgressPercentage)
	assert.Equal(t, 1.0, got.Details["total_files"])
}
