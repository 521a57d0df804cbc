package simulate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxkb/voxkb/internal/models"
	"github.com/voxkb/voxkb/internal/pipeline"
)

func testTask(files ...string) *models.Task {
	refs := make([]models.FileRef, len(files))
	for i, f := range files {
		refs[i] = models.FileRef{ID: "f" + f, Name: f}
	}
	return &models.Task{
		ID:      "task-1",
		Payload: models.IngestPayload{Files: refs},
	}
}

func TestRunWalksAllStages(t *testing.T) {
	sim := New(WithStepDelay(time.Millisecond), WithChunksPerFile(2), WithBatchSize(2))

	var updates []pipeline.Update
	err := sim.Run(context.Background(), testTask("a.pdf", "b.pdf"), func(u pipeline.Update) {
		updates = append(updates, u)
	})
	require.NoError(t, err)
	require.NotEmpty(t, updates)

	// Per-file processing and extraction, then embedding, then storage.
	seen := map[models.Stage]bool{}
	var order []models.Stage
	for _, u := range updates {
		if !seen[u.Stage] {
			seen[u.Stage] = true
			order = append(order, u.Stage)
		}
	}
	assert.Equal(t, []models.Stage{
		models.StageFileProcessing,
		models.StageTextExtraction,
		models.StageEmbedding,
		models.StageStorage,
	}, order)

	last := updates[len(updates)-1]
	assert.Equal(t, models.StageStorage, last.Stage)
	assert.Equal(t, 2, last.TotalBatches)
	assert.Equal(t, 4, last.TotalChunks)
	assert.Equal(t, 2, last.ProcessedFiles)
}

func TestRunFileCountersAdvance(t *testing.T) {
	sim := New(WithStepDelay(time.Millisecond))

	var fileUpdates []pipeline.Update
	err := sim.Run(context.Background(), testTask("a.pdf", "b.pdf", "c.pdf"), func(u pipeline.Update) {
		if u.Stage == models.StageTextExtraction {
			fileUpdates = append(fileUpdates, u)
		}
	})
	require.NoError(t, err)
	require.Len(t, fileUpdates, 3)
	for i, u := range fileUpdates {
		assert.Equal(t, i+1, u.FileIndex)
		assert.Equal(t, 3, u.TotalFiles)
	}
	assert.Equal(t, "b.pdf", fileUpdates[1].CurrentFile)
}

func TestRunHonorsCancellation(t *testing.T) {
	sim := New(WithStepDelay(50 * time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := sim.Run(ctx, testTask("a.pdf"), func(pipeline.Update) {})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPermanentErrorMarking(t *testing.T) {
	assert.Nil(t, pipeline.Permanent(nil))

	err := pipeline.Permanent(assert.AnError)
	assert.True(t, pipeline.IsPermanent(err))
	assert.ErrorIs(t, err, assert.AnError)
	assert.False(t, pipeline.IsPermanent(assert.AnError))
}
