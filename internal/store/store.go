// Package store persists job records by id. The JobStore interface is
// injected into the gateway, worker and poller so no component reaches for
// a hidden global connection.
package store

import (
	"context"
	"errors"

	"github.com/labledger/api/internal/model"
)

// ErrNotFound is returned when no job exists under the requested id.
var ErrNotFound = errors.New("store: job not found")

// JobReader is the read side used by pollers.
type JobReader interface {
	Get(ctx context.Context, id string) (*model.Job, error)
}

// JobStore is key/value persistence of job records.
type JobStore interface {
	JobReader
	Set(ctx context.Context, job *model.Job) error
}
