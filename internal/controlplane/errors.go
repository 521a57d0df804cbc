package controlplane

import (
	"errors"
	"net/http"

	"github.com/voxkb/voxkb/internal/queue"
	"github.com/voxkb/voxkb/internal/store"
)

// httpStatus maps service errors onto HTTP status codes.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, store.ErrDuplicateActiveTask),
		errors.Is(err, store.ErrTaskNotCancellable),
		errors.Is(err, store.ErrTaskNotProcessing):
		return http.StatusConflict
	case errors.Is(err, store.ErrTaskNotFound),
		errors.Is(err, store.ErrProgressNotFound):
		return http.StatusNotFound
	case errors.Is(err, queue.ErrMissingExpert),
		errors.Is(err, queue.ErrMissingAgent),
		errors.Is(err, queue.ErrNoFiles):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
