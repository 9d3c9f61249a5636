// Package proxy owns the live signaling connections: the process-local
// session registry that enforces at most one inbound socket per session,
// and the bidirectional forwarder that relays messages between the client
// and the compute endpoint until either side closes.
package proxy
