package domain

// Event is a lifecycle trigger applied to a session status.
type Event int

const (
	// EventAttach fires when an inbound signaling socket has been accepted
	// and registered for the session.
	EventAttach Event = iota

	// EventEstablish fires when the outbound signaling connection to the
	// compute endpoint has been opened.
	EventEstablish

	// EventDetach fires when the forwarder ends with a close code outside
	// the reserved band, returning the session to the attachable pool.
	EventDetach

	// EventStop fires on explicit stop, administrator terminate, or timeout
	// reaping. It is also used by the idle reaper.
	EventStop
)

func (e Event) String() string {
	switch e {
	case EventAttach:
		return "attach"
	case EventEstablish:
		return "establish"
	case EventDetach:
		return "detach"
	case EventStop:
		return "stop"
	}
	return "unknown"
}

// Transition computes the next status for an event without performing any
// I/O. Transitions are monotone toward STOPPED except for the
// IDLE→CONNECTING→ACTIVE→IDLE cycle, which may repeat any number of times.
//
// Errors distinguish the failure classes the caller must surface:
// ErrSessionStopped for any event on a terminal session, ErrAlreadyConnected
// for an attach while a connection exists, and ErrInvalidTransition for the
// rest.
func Transition(current Status, ev Event) (Status, error) {
	if current == StatusStopped {
		return StatusStopped, ErrSessionStopped
	}

	switch ev {
	case EventAttach:
		switch current {
		case StatusIdle:
			return StatusConnecting, nil
		case StatusConnecting, StatusActive:
			return current, ErrAlreadyConnected
		}

	case EventEstablish:
		if current == StatusConnecting {
			return StatusActive, nil
		}

	case EventDetach:
		switch current {
		case StatusConnecting, StatusActive:
			return StatusIdle, nil
		}

	case EventStop:
		return StatusStopped, nil
	}

	return current, ErrInvalidTransition
}
