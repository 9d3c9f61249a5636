package domain

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a streaming session.
type Status string

const (
	// StatusConnecting means a client is establishing the signaling channel.
	StatusConnecting Status = "CONNECTING"

	// StatusActive means the session has a live signaling connection.
	StatusActive Status = "ACTIVE"

	// StatusIdle means the remote instance is running without a connected
	// client. Idle sessions can be attached to again.
	StatusIdle Status = "IDLE"

	// StatusStopped is the terminal state. Stopped sessions are never
	// mutated again.
	StatusStopped Status = "STOPPED"

	// StatusAlive is a virtual status accepted by list filters only. It is
	// never stored and expands to {CONNECTING, ACTIVE, IDLE}.
	StatusAlive Status = "ALIVE"
)

// AliveStatuses lists the stored statuses covered by the virtual ALIVE
// filter.
func AliveStatuses() []Status {
	return []Status{StatusConnecting, StatusActive, StatusIdle}
}

// Valid reports whether s is a status that may appear in a filter.
func (s Status) Valid() bool {
	switch s {
	case StatusConnecting, StatusActive, StatusIdle, StatusStopped, StatusAlive:
		return true
	}
	return false
}

// Storable reports whether s may be written to a session record.
func (s Status) Storable() bool {
	return s.Valid() && s != StatusAlive
}

// FunctionRef identifies one deployed version of a compute function.
type FunctionRef struct {
	FunctionID        uuid.UUID
	FunctionVersionID uuid.UUID
}

// Session is a user's reserved streaming compute instance plus its
// connection state over time. The session ID doubles as the correlation ID
// issued by the compute endpoint (the nvcf-request-id), which addresses all
// later control and signaling calls for the instance.
type Session struct {
	ID        string
	Function  FunctionRef
	AppID     *string
	UserID    string
	UserName  string
	Status    Status
	StartDate time.Time
	EndDate   *time.Time
}

// SessionFilter narrows List queries. Zero values mean "no filter".
type SessionFilter struct {
	Status   Status
	Function *FunctionRef
	UserID   string
}

// Page is one page of a filtered listing.
type Page[T any] struct {
	Items      []T `json:"items"`
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalSize  int `json:"total_size"`
	TotalPages int `json:"total_pages"`
}
