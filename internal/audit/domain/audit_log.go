package domain

import "time"

// AuditLog represents an audit event. UserID is 0 and EID empty for anonymous events.
type AuditLog struct {
	ID        string
	UserID    int64
	EID       string
	Action    string
	Resource  string
	IP        string
	Metadata  string
	CreatedAt time.Time
}
