package commerce

import (
	"context"
	"errors"
	"time"
)

// ErrRunInProgress is returned by RunLocker when another sync run holds the lock.
var ErrRunInProgress = errors.New("another sync run is in progress")

// Batch is one submission attempt as recorded in the local batch log.
// StatusCode is zero when the request never got a reply.
type Batch struct {
	ID         int64
	RunID      string
	Kind       string
	Documents  int
	StatusCode int
	Reconciled int
	Error      string
	StartedAt  time.Time
}

// Failed reports whether the remote did not accept the batch.
func (b Batch) Failed() bool {
	return b.StatusCode < 200 || b.StatusCode >= 300
}

// BatchLog persists submission attempts so operators can inspect failures.
type BatchLog interface {
	RecordBatch(ctx context.Context, b Batch) error
	RecentBatches(ctx context.Context, limit int) ([]Batch, error)
}

// Pending counts records still waiting to be synced.
type Pending struct {
	Orders   int `json:"orders"`
	Payments int `json:"payments"`
	// BlockedPayments belong to orders without a remote invoice yet.
	BlockedPayments int `json:"blocked_payments"`
}

// RunLocker serialises sync runs across processes. The returned release
// function must be called when the run ends.
type RunLocker interface {
	AcquireRunLock(ctx context.Context, runID string, now time.Time) (release func(context.Context) error, err error)
}
