// Package pipeline defines the ingestion pipeline interface the worker
// drives: file processing, text extraction, embedding, and storage.
package pipeline

import (
	"context"
	"errors"

	"github.com/voxkb/voxkb/internal/models"
)

// Update is one progress report emitted by a runner while processing a
// task. Counters are cumulative within the run.
type Update struct {
	Stage models.Stage

	CurrentFile string
	FileIndex   int
	TotalFiles  int

	Batch        int
	TotalBatches int
	Chunk        int
	TotalChunks  int

	ProcessedFiles int
	FailedFiles    int
}

// ProgressFunc receives progress updates during a run. Implementations
// must tolerate being called from the worker goroutine.
type ProgressFunc func(Update)

// Runner executes the ingestion pipeline for one task.
type Runner interface {
	// Name returns the runner identifier.
	Name() string

	// Run processes the task's files end to end, reporting progress via
	// onProgress. It returns when the task is fully ingested, the
	// context is cancelled, or an unrecoverable error occurs.
	Run(ctx context.Context, task *models.Task, onProgress ProgressFunc) error
}

// permanentError marks a failure that must not be retried.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so the worker fails the task without consuming
// its remaining retries.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}
