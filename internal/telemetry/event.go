// Package telemetry emits authentication lifecycle events to OpenTelemetry logs and Kafka.
package telemetry

import (
	"time"

	"github.com/google/uuid"
)

// Event types emitted by the session gateway and request filter.
const (
	EventLogin           = "auth.login"
	EventLoginFailed     = "auth.login_failed"
	EventTokenIssued     = "auth.token_issued"
	EventTokenRefreshed  = "auth.token_refreshed"
	EventRefreshRejected = "auth.refresh_rejected"
	EventLogout          = "auth.logout"
	EventAccessDenied    = "auth.access_denied"
	EventUnauthenticated = "auth.unauthenticated"
)

// SourceServer identifies events produced by the API server.
const SourceServer = "outreach-server"

// Event is one authentication lifecycle event. It carries identity, never credentials.
type Event struct {
	ID        string            `json:"id"`
	EventType string            `json:"eventType"`
	Source    string            `json:"source"`
	UserID    int64             `json:"userId,omitempty"`
	EID       string            `json:"eid,omitempty"`
	IP        string            `json:"ip,omitempty"`
	Reason    string            `json:"reason,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}

// NewEvent returns an event of eventType stamped with a fresh id and the current time.
func NewEvent(eventType string) *Event {
	return &Event{
		ID:        uuid.New().String(),
		EventType: eventType,
		Source:    SourceServer,
		CreatedAt: time.Now().UTC(),
	}
}
