package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxkb/voxkb/internal/models"
)

func intPtr(v int) *int                                   { return &v }
func floatPtr(v float64) *float64                         { return &v }
func stagePtr(v models.Stage) *models.Stage               { return &v }
func statusPtr(v models.ProgressStatus) *models.ProgressStatus { return &v }
func strPtr(v string) *string                             { return &v }

func TestCreateProgressInitializesPending(t *testing.T) {
	s := newTestStore(t)

	p, err := s.CreateProgress("expert-a", "agent-1", "task-1", 4, intPtr(2))
	require.NoError(t, err)
	assert.Equal(t, models.StageQueued, p.Stage)
	assert.Equal(t, models.ProgressStatusPending, p.Status)

	got, err := s.GetProgress("expert-a")
	require.NoError(t, err)
	assert.Equal(t, "task-1", got.TaskID)
	assert.Equal(t, 4, got.TotalFiles)
	require.NotNil(t, got.QueuePosition)
	assert.Equal(t, 2, *got.QueuePosition)
	assert.Zero(t, got.ProgressPercentage)
}

func TestCreateProgressReplacesTerminalRecord(t *testing.T) {
	s := newTestStore(t)

	_, err := s.CreateProgress("expert-a", "agent-1", "task-1", 2, intPtr(1))
	require.NoError(t, err)
	require.NoError(t, s.UpdateProgress("expert-a", models.ProgressUpdate{
		Stage:              stagePtr(models.StageEmbedding),
		Status:             statusPtr(models.ProgressStatusInProgress),
		ProgressPercentage: floatPtr(55),
	}))
	require.NoError(t, s.MarkProgressFailed("expert-a", "boom"))

	// A new submission for the same expert starts clean.
	_, err = s.CreateProgress("expert-a", "agent-1", "task-2", 3, intPtr(1))
	require.NoError(t, err)

	got, err := s.GetProgress("expert-a")
	require.NoError(t, err)
	assert.Equal(t, "task-2", got.TaskID)
	assert.Equal(t, models.StageQueued, got.Stage)
	assert.Equal(t, models.ProgressStatusPending, got.Status)
	assert.Zero(t, got.ProgressPercentage)
	assert.Empty(t, got.ErrorMessage)
	assert.Nil(t, got.CompletedAt)
	assert.Equal(t, 3, got.TotalFiles)
}

func TestUpdateProgressMonotonicPercentage(t *testing.T) {
	s := newTestStore(t)

	_, err := s.CreateProgress("expert-a", "agent-1", "task-1", 2, nil)
	require.NoError(t, err)

	require.NoError(t, s.UpdateProgress("expert-a", models.ProgressUpdate{
		Status:             statusPtr(models.ProgressStatusInProgress),
		ProgressPercentage: floatPtr(50),
	}))
	// A late, lower report never moves the bar backwards.
	require.NoError(t, s.UpdateProgress("expert-a", models.ProgressUpdate{
		ProgressPercentage: floatPtr(30),
	}))

	got, err := s.GetProgress("expert-a")
	require.NoError(t, err)
	assert.Equal(t, 50.0, got.ProgressPercentage)

	// The requeue reset back to pending is the one allowed decrease.
	require.NoError(t, s.UpdateProgress("expert-a", models.ProgressUpdate{
		Stage:              stagePtr(models.StageQueued),
		Status:             statusPtr(models.ProgressStatusPending),
		ProgressPercentage: floatPtr(0),
	}))
	got, err = s.GetProgress("expert-a")
	require.NoError(t, err)
	assert.Zero(t, got.ProgressPercentage)
}

func TestUpdateProgressPartialFields(t *testing.T) {
	s := newTestStore(t)

	_, err := s.CreateProgress("expert-a", "agent-1", "task-1", 3, intPtr(1))
	require.NoError(t, err)

	require.NoError(t, s.UpdateProgress("expert-a", models.ProgressUpdate{
		Stage:              stagePtr(models.StageTextExtraction),
		Status:             statusPtr(models.ProgressStatusInProgress),
		ClearQueuePosition: true,
		CurrentFile:        strPtr("notes.pdf"),
		CurrentFileIndex:   intPtr(2),
		ProgressPercentage: floatPtr(15),
	}))

	got, err := s.GetProgress("expert-a")
	require.NoError(t, err)
	assert.Equal(t, models.StageTextExtraction, got.Stage)
	assert.Nil(t, got.QueuePosition)
	assert.Equal(t, "notes.pdf", got.CurrentFile)
	assert.Equal(t, 2, got.CurrentFileIndex)
	// Untouched fields keep their values.
	assert.Equal(t, 3, got.TotalFiles)
}

func TestUpdateProgressUnknownExpert(t *testing.T) {
	s := newTestStore(t)

	err := s.UpdateProgress("missing", models.ProgressUpdate{
		ProgressPercentage: floatPtr(10),
	})
	assert.ErrorIs(t, err, ErrProgressNotFound)
}

func TestMarkProgressCompletedMergesDetails(t *testing.T) {
	s := newTestStore(t)

	_, err := s.CreateProgress("expert-a", "agent-1", "task-1", 2, nil)
	require.NoError(t, err)
	require.NoError(t, s.UpdateProgress("expert-a", models.ProgressUpdate{
		Status:  statusPtr(models.ProgressStatusInProgress),
		Details: map[string]any{"source": "upload"},
	}))

	require.NoError(t, s.MarkProgressCompleted("expert-a", map[string]any{"chunks": 8.0}))

	got, err := s.GetProgress("expert-a")
	require.NoError(t, err)
	assert.Equal(t, models.StageComplete, got.Stage)
	assert.Equal(t, models.ProgressStatusCompleted, got.Status)
	assert.Equal(t, 100.0, got.ProgressPercentage)
	require.NotNil(t, got.CompletedAt)
	assert.Equal(t, "upload", got.Details["source"])
	assert.Equal(t, 8.0, got.Details["chunks"])
}

func TestMarkProgressFailed(t *testing.T) {
	s := newTestStore(t)

	_, err := s.CreateProgress("expert-a", "agent-1", "task-1", 2, nil)
	require.NoError(t, err)
	require.NoError(t, s.MarkProgressFailed("expert-a", "extraction blew up"))

	got, err := s.GetProgress("expert-a")
	require.NoError(t, err)
	assert.Equal(t, models.StageFailed, got.Stage)
	assert.Equal(t, models.ProgressStatusFailed, got.Status)
	assert.Equal(t, "extraction blew up", got.ErrorMessage)
	require.NotNil(t, got.CompletedAt)
}

func TestDeleteProgress(t *testing.T) {
	s := newTestStore(t)

	_, err := s.CreateProgress("expert-a", "agent-1", "task-1", 2, nil)
	require.NoError(t, err)
	require.NoError(t, s.DeleteProgress("expert-a"))

	_, err = s.GetProgress("expert-a")
	assert.ErrorIs(t, err, ErrProgressNotFound)
	assert.ErrorIs(t, s.DeleteProgress("expert-a"), ErrProgressNotFound)
}

func TestListActiveProgressSkipsTerminal(t *testing.T) {
	s := newTestStore(t)

	_, err := s.CreateProgress("expert-a", "agent-1", "task-1", 1, nil)
	require.NoError(t, err)
	_, err = s.CreateProgress("expert-b", "agent-1", "task-2", 1, nil)
	require.NoError(t, err)
	_, err = s.CreateProgress("expert-c", "agent-1", "task-3", 1, nil)
	require.NoError(t, err)

	require.NoError(t, s.MarkProgressCompleted("expert-b", nil))

	records, err := s.ListActiveProgress()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "expert-a", records[0].ExpertID)
	assert.Equal(t, "expert-c", records[1].ExpertID)
}
