// Package producer defines the interface for publishing auth events to a message broker.
package producer

import (
	"context"

	"outreach-tracker/backend/internal/telemetry"
)

// Producer emits auth events. Callers use it best-effort: log and ignore errors.
type Producer interface {
	// Emit sends a single event. Implementations may block briefly; wrap in telemetry.Async on request paths.
	Emit(ctx context.Context, event *telemetry.Event) error
	// Close releases resources (e.g. Kafka writer). Safe to call if already closed.
	Close() error
}
