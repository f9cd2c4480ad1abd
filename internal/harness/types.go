package harness

import (
	"github.com/roach88/ledgersync/internal/commerce"
	"github.com/roach88/ledgersync/internal/syncer"
)

// Trace event types.
const (
	EventImport = "import"
	EventFail   = "fail"
	EventSync   = "sync"
	EventBatch  = "batch"
	EventSynced = "synced"
)

// Counts mirrors the counters of one kind in a sync result.
type Counts struct {
	Eligible   int `json:"eligible"`
	Skipped    int `json:"skipped"`
	Submitted  int `json:"submitted"`
	Reconciled int `json:"reconciled"`
	Unmatched  int `json:"unmatched"`
	Status     int `json:"status,omitempty"`
}

func countsOf(r syncer.Result) *Counts {
	return &Counts{
		Eligible:   r.Eligible,
		Skipped:    r.Skipped,
		Submitted:  r.Submitted,
		Reconciled: r.Reconciled,
		Unmatched:  r.Unmatched,
		Status:     r.StatusCode,
	}
}

// TraceEvent is one thing that happened while a scenario ran.
type TraceEvent struct {
	Seq      int     `json:"seq"`
	Type     string  `json:"type"`
	RunID    string  `json:"run_id,omitempty"`
	Kind     string  `json:"kind,omitempty"`
	LocalID  int64   `json:"local_id,omitempty"`
	RemoteID string  `json:"remote_id,omitempty"`
	Counts   *Counts `json:"counts,omitempty"`
	Status   int     `json:"status,omitempty"`
	Failed   bool    `json:"failed,omitempty"`
	Detail   string  `json:"detail,omitempty"`
}

// Result is the outcome of a scenario.
type Result struct {
	// Pass is false when any step or assertion failed.
	Pass bool `json:"pass"`

	Trace  []TraceEvent `json:"trace"`
	Errors []string     `json:"errors,omitempty"`

	// Pending is the store's pending counts after the last step.
	Pending commerce.Pending `json:"pending"`

	// Created counts documents the sandbox accepted, by collection.
	Created map[string]int `json:"created"`

	// Submissions counts POSTs the sandbox received, by collection.
	Submissions map[string]int `json:"submissions"`

	// FailedBatches counts batch log entries with a non-2xx status.
	FailedBatches int `json:"failed_batches"`
}

// NewResult creates a passing result with an empty trace.
func NewResult() *Result {
	return &Result{
		Pass:        true,
		Trace:       []TraceEvent{},
		Errors:      []string{},
		Created:     make(map[string]int),
		Submissions: make(map[string]int),
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

func (r *Result) addEvent(e TraceEvent) {
	e.Seq = len(r.Trace) + 1
	r.Trace = append(r.Trace, e)
}
