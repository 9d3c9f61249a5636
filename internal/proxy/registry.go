package proxy

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/NVIDIA-Omniverse/ov-dgxc-portal-sample/internal/domain"
)

const closeWriteTimeout = 5 * time.Second

// Conn is the subset of *websocket.Conn the proxy needs. Both the inbound
// (client) and outbound (compute endpoint) connections satisfy it.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadDeadline(t time.Time) error
	Close() error
}

// CloseWithCode sends a close frame with the given code and reason, then
// closes the connection. Errors are ignored: the peer may already be gone.
func CloseWithCode(conn Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteTimeout))
	_ = conn.Close()
}

// Registry maps session IDs to their live inbound sockets. It is
// process-local by design: multi-node deployments pin a session to one
// node via routing cookies, so each node only ever sees its own
// connections. An instance is injected into the handlers and the
// terminate path rather than accessed as ambient global state.
type Registry struct {
	mu    sync.Mutex
	conns map[string]Conn
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]Conn)}
}

// Register claims the session's connection slot. It fails with
// ErrAlreadyConnected while another socket holds the slot.
func (r *Registry) Register(sessionID string, conn Conn) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, occupied := r.conns[sessionID]; occupied {
		return domain.ErrAlreadyConnected
	}
	r.conns[sessionID] = conn
	return nil
}

// Unregister releases the session's slot. Unregistering a session without
// a registered connection is a no-op.
func (r *Registry) Unregister(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, sessionID)
}

// Lookup returns the registered socket, if any. Used to force-close a
// connection from outside its owning handler, e.g. on terminate.
func (r *Registry) Lookup(sessionID string) (Conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.conns[sessionID]
	return conn, ok
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// CloseAll force-closes every registered connection. Called on shutdown.
func (r *Registry) CloseAll(code int, reason string) {
	r.mu.Lock()
	conns := make([]Conn, 0, len(r.conns))
	for id, conn := range r.conns {
		conns = append(conns, conn)
		delete(r.conns, id)
	}
	r.mu.Unlock()

	for _, conn := range conns {
		CloseWithCode(conn, code, reason)
	}
}
