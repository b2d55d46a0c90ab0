// Package broadcast publishes alert lifecycle events for live consumers
// (dashboards, streams). Broadcasting is purely observational: no pipeline
// logic depends on it, and failures are logged rather than propagated.
package broadcast

import (
	"context"
)

// Event names emitted by the pipeline and group lifecycle.
const (
	EventAlertCreated  = "alert.created"
	EventAlertUpdated  = "alert.updated"
	EventAlertResolved = "alert.resolved"
)

// Broadcaster defines the interface for emitting workspace-scoped events.
// Implementations must be safe for concurrent use.
type Broadcaster interface {
	// Emit publishes an event for a workspace. The payload must be
	// JSON-serializable.
	Emit(ctx context.Context, workspaceID, event string, payload any) error

	// Close releases any resources held by the broadcaster.
	Close() error
}

// Noop is a Broadcaster that discards everything.
type Noop struct{}

// Emit discards the event.
func (Noop) Emit(ctx context.Context, workspaceID, event string, payload any) error {
	return nil
}

// Close is a no-op.
func (Noop) Close() error { return nil }
