// Package simulate provides a pipeline runner that fakes ingestion
// work. It is the default runner for local development and tests until
// a real extraction and embedding backend is wired in.
package simulate

import (
	"context"
	"time"

	"github.com/voxkb/voxkb/internal/models"
	"github.com/voxkb/voxkb/internal/pipeline"
)

const (
	defaultStepDelay     = 50 * time.Millisecond
	defaultChunksPerFile = 4
	defaultBatchSize     = 8
)

// Simulator steps through every pipeline stage, emitting progress
// updates with a fixed delay between steps.
type Simulator struct {
	stepDelay     time.Duration
	chunksPerFile int
	batchSize     int
}

// Option configures a Simulator.
type Option func(*Simulator)

// WithStepDelay sets the pause between simulated steps.
func WithStepDelay(d time.Duration) Option {
	return func(s *Simulator) { s.stepDelay = d }
}

// WithChunksPerFile sets how many chunks each file expands into.
func WithChunksPerFile(n int) Option {
	return func(s *Simulator) { s.chunksPerFile = n }
}

// WithBatchSize sets the embedding batch size.
func WithBatchSize(n int) Option {
	return func(s *Simulator) { s.batchSize = n }
}

// New creates a simulator runner.
func New(opts ...Option) *Simulator {
	s := &Simulator{
		stepDelay:     defaultStepDelay,
		chunksPerFile: defaultChunksPerFile,
		batchSize:     defaultBatchSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the runner identifier.
func (s *Simulator) Name() string {
	return "simulate"
}

// Run walks the task's files through file processing, extraction,
// embedding, and storage, sleeping between steps. It returns early if
// the context is cancelled.
func (s *Simulator) Run(ctx context.Context, task *models.Task, onProgress pipeline.ProgressFunc) error {
	files := task.Payload.Files
	totalFiles := len(files)
	totalChunks := totalFiles * s.chunksPerFile
	totalBatches := (totalChunks + s.batchSize - 1) / s.batchSize

	for i, f := range files {
		for _, stage := range []models.Stage{models.StageFileProcessing, models.StageTextExtraction} {
			if err := s.pause(ctx); err != nil {
				return err
			}
			onProgress(pipeline.Update{
				Stage:          stage,
				CurrentFile:    f.Name,
				FileIndex:      i + 1,
				TotalFiles:     totalFiles,
				TotalChunks:    totalChunks,
				ProcessedFiles: i,
			})
		}
	}

	chunksDone := 0
	for batch := 1; batch <= totalBatches; batch++ {
		if err := s.pause(ctx); err != nil {
			return err
		}
		chunksDone += s.batchSize
		if chunksDone > totalChunks {
			chunksDone = totalChunks
		}
		onProgress(pipeline.Update{
			Stage:          models.StageEmbedding,
			TotalFiles:     totalFiles,
			Batch:          batch,
			TotalBatches:   totalBatches,
			Chunk:          chunksDone,
			TotalChunks:    totalChunks,
			ProcessedFiles: totalFiles,
		})
	}

	for batch := 1; batch <= totalBatches; batch++ {
		if err := s.pause(ctx); err != nil {
			return err
		}
		onProgress(pipeline.Update{
			Stage:          models.StageStorage,
			TotalFiles:     totalFiles,
			Batch:          batch,
			TotalBatches:   totalBatches,
			Chunk:          totalChunks,
			TotalChunks:    totalChunks,
			ProcessedFiles: totalFiles,
		})
	}

	return nil
}

func (s *Simulator) pause(ctx context.Context) error {
	timer := time.NewTimer(s.stepDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
