// Package events publishes a message for every local record the sync run
// links to a remote document. Downstream consumers (fulfilment, reporting)
// subscribe instead of polling the store.
package events

import (
	"context"
	"time"
)

// Synced announces that a local record now carries a remote reference.
type Synced struct {
	RunID    string    `json:"run_id"`
	Kind     string    `json:"kind"`
	LocalID  int64     `json:"local_id"`
	RemoteID string    `json:"remote_id"`
	At       time.Time `json:"at"`
}

// Publisher delivers Synced events. Implementations must be safe to call
// from a single goroutine; the sync core never publishes concurrently.
type Publisher interface {
	Publish(ctx context.Context, e Synced) error
	Close() error
}

// Nop discards events. It is used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, Synced) error { return nil }
func (Nop) Close() error { return nil }
