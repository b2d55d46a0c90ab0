package broadcast

import (
	"context"
	"sync"
)

// Recorded is one captured event.
type Recorded struct {
	WorkspaceID string
	Event       string
	Payload     any
}

// Recorder is an in-memory Broadcaster that captures events.
// Useful for testing to verify what the pipeline emitted.
type Recorder struct {
	mu     sync.Mutex
	events []Recorded
}

// NewRecorder creates an in-memory broadcaster.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Emit captures the event.
func (r *Recorder) Emit(ctx context.Context, workspaceID, event string, payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, Recorded{WorkspaceID: workspaceID, Event: event, Payload: payload})
	return nil
}

// Events returns a copy of everything captured so far.
func (r *Recorder) Events() []Recorded {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Recorded, len(r.events))
	copy(out, r.events)
	return out
}

// Close is a no-op.
func (r *Recorder) Close() error { return nil }
