package domain

import "time"

// AuditLog is one recorded session lifecycle event.
type AuditLog struct {
	ID        string
	UserID    string
	Action    string // e.g. "create", "refresh", "revoke"
	Resource  string // e.g. "session"
	IP        string
	Metadata  string
	CreatedAt time.Time
}
