package domain

import (
	"context"
	"time"
)

// --- Interfaces ---

// SessionRepository is the persistent store for session records, backed by
// PostgreSQL.
type SessionRepository interface {
	// CreateUnderQuota atomically counts the user's non-stopped sessions for
	// the function and, while still holding the admission lock, runs create
	// to provision the remote instance and inserts the resulting record.
	// Returns ErrQuotaExceeded without calling create when the cap would be
	// exceeded. No record is persisted when create fails.
	CreateUnderQuota(ctx context.Context, ref FunctionRef, userID string, limit int, create func(ctx context.Context) (*Session, error)) (*Session, error)

	Get(ctx context.Context, id string) (*Session, error)

	// GetOwned fetches a session only when it matches the function pair and
	// belongs to the user. Mismatches return ErrSessionNotFound.
	GetOwned(ctx context.Context, id string, ref FunctionRef, userID string) (*Session, error)

	// Advance moves the session to the given status when its current status
	// is one of from. It never modifies stopped sessions. Returns false when
	// the session was in none of the from statuses.
	Advance(ctx context.Context, id string, to Status, endDate *time.Time, from ...Status) (bool, error)

	List(ctx context.Context, filter SessionFilter, page, pageSize int) (*Page[*Session], error)

	// ListExpired returns non-stopped sessions started at or before the
	// cutoff, for the timeout reaper.
	ListExpired(ctx context.Context, startedBefore time.Time) ([]*Session, error)

	// ListIdleSince returns idle sessions whose end date is at or before the
	// cutoff, for the idle reaper.
	ListIdleSince(ctx context.Context, idleBefore time.Time) ([]*Session, error)
}

// AppRepository is the catalog of published applications.
type AppRepository interface {
	List(ctx context.Context, ref *FunctionRef) ([]*PublishedApp, error)
	Get(ctx context.Context, id string) (*PublishedApp, error)
	GetByFunction(ctx context.Context, ref FunctionRef) (*PublishedApp, error)
	Upsert(ctx context.Context, app *PublishedApp) (*PublishedApp, error)
	Delete(ctx context.Context, id string) error
}

// PageRepository stores the portal sidebar pages.
type PageRepository interface {
	List(ctx context.Context) ([]*PortalPage, error)
	Replace(ctx context.Context, pages []*PortalPage) ([]*PortalPage, error)
}

// ComputeClient talks to the compute endpoint control plane. Start and Stop
// surface ErrUpstreamTimeout when the configured deadline is exceeded.
type ComputeClient interface {
	// Start provisions a streaming instance and returns the correlation ID
	// that addresses all later calls for it.
	Start(ctx context.Context, ref FunctionRef) (string, error)

	// Stop tears down the instance identified by the correlation ID. It is
	// idempotent: stopping an unknown or already-stopped instance succeeds.
	Stop(ctx context.Context, ref FunctionRef, correlationID string) error

	// ListFunctions returns the deployed function inventory keyed by
	// function and version ID.
	ListFunctions(ctx context.Context) (map[FunctionRef]Function, error)
}
