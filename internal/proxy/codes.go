package proxy

// WebSocket close codes sent to the streaming client. Codes in the
// [3000, 4000) band are reserved for closures initiated by this service;
// the forwarder never re-stamps a session idle after observing one.
const (
	// CodeMissingSession: the correlation cookie was absent.
	CodeMissingSession = 3000

	// CodeSessionNotFound: unknown, foreign, or already stopped session.
	CodeSessionNotFound = 3004

	// CodeAlreadyConnected: the session already has a live connection.
	CodeAlreadyConnected = 3005

	// CodeAppUnavailable: the catalog entry backing the session is gone and
	// its authentication mode can no longer be resolved.
	CodeAppUnavailable = 3006

	// CodeUpstreamRejected: the compute endpoint answered the signaling
	// handshake with a non-success status. Standard abnormal-closure code,
	// deliberately outside the reserved band so the session returns to idle.
	CodeUpstreamRejected = 1006

	// CodeConnectTimeout: the signaling dial exceeded its deadline.
	CodeConnectTimeout = 3008

	// CodeTerminated: closed by stop, administrator terminate, or the
	// timeout reaper. Always sent before the status write so the forwarder
	// does not re-stamp the session idle.
	CodeTerminated = 3010
)

const (
	reservedLow  = 3000
	reservedHigh = 4000
)

// Reserved reports whether the close code was issued by this service. The
// detach path skips the idle re-stamp for reserved codes because the
// endpoint that sent them has already written the final status.
func Reserved(code int) bool {
	return code >= reservedLow && code < reservedHigh
}
