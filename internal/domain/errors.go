package domain

import "errors"

var (
	// ErrSessionNotFound is returned when a session does not exist or is not
	// visible to the caller. Ownership mismatches map to this error as well,
	// so callers cannot probe for foreign session IDs.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionStopped is returned for any attempt to mutate a session that
	// has reached its terminal status.
	ErrSessionStopped = errors.New("session is stopped")

	// ErrAlreadyConnected is returned when a second client tries to attach
	// to a session that already has a live signaling connection.
	ErrAlreadyConnected = errors.New("client is connected already")

	// ErrQuotaExceeded is returned when starting one more session would
	// exceed the per-user instance cap for an application.
	ErrQuotaExceeded = errors.New("maximum number of instances reached")

	// ErrUpstreamTimeout is returned when a control-plane or signaling call
	// to the compute endpoint exceeds its deadline.
	ErrUpstreamTimeout = errors.New("upstream request timed out")

	// ErrUpstreamRejected is returned when the compute endpoint answers a
	// signaling handshake with a non-success status.
	ErrUpstreamRejected = errors.New("upstream rejected the connection")

	ErrAppNotFound  = errors.New("application not found")
	ErrPageNotFound = errors.New("page not found")

	// ErrInvalidTransition is returned by Transition for an event that is
	// not legal in the current status.
	ErrInvalidTransition = errors.New("invalid session transition")
)
