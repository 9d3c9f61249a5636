package app

import (
	"context"
	"errors"
	"net/url"

	"github.com/NVIDIA-Omniverse/ov-dgxc-portal-sample/internal/domain"
	"github.com/NVIDIA-Omniverse/ov-dgxc-portal-sample/internal/logging"
	"github.com/NVIDIA-Omniverse/ov-dgxc-portal-sample/internal/nvcf"
	"github.com/NVIDIA-Omniverse/ov-dgxc-portal-sample/internal/proxy"
)

// AttachParams carries everything the signaling handler established before
// handing the accepted client connection over.
type AttachParams struct {
	SessionID string
	Ref       domain.FunctionRef
	User      Identity

	// Client is the accepted inbound signaling socket.
	Client proxy.Conn

	// Query is forwarded verbatim to the upstream handshake.
	Query url.Values

	// UserAgent mirrors the client's user agent upstream.
	UserAgent string

	// NucleusToken is the client's Nucleus credential, forwarded for
	// applications that require it.
	NucleusToken string
}

// Attach drives one signaling connection for its whole lifetime: it claims
// the session, dials the upstream endpoint, forwards frames both ways and
// settles the session status afterwards. The returned status is what the
// caller delivers to the client in the close frame.
func (s *Service) Attach(ctx context.Context, params AttachParams) proxy.CloseStatus {
	log := logging.WithSession(params.SessionID)

	session, err := s.sessions.GetOwned(ctx, params.SessionID, params.Ref, params.User.Sub)
	if err != nil || session.Status == domain.StatusStopped {
		return proxy.CloseStatus{
			Code:   proxy.CodeSessionNotFound,
			Reason: "Session with the specified ID not found.",
		}
	}

	if _, err := domain.Transition(session.Status, domain.EventAttach); err != nil {
		return proxy.CloseStatus{
			Code:   proxy.CodeAlreadyConnected,
			Reason: "Client is connected already.",
		}
	}

	// The registry slot is the local guard, the guarded status write below
	// covers sessions attached on another node.
	if err := s.registry.Register(params.SessionID, params.Client); err != nil {
		return proxy.CloseStatus{
			Code:   proxy.CodeAlreadyConnected,
			Reason: "Client is connected already.",
		}
	}
	defer s.registry.Unregister(params.SessionID)

	changed, err := s.sessions.Advance(ctx, params.SessionID, domain.StatusConnecting, nil, domain.StatusIdle)
	if err != nil || !changed {
		return proxy.CloseStatus{
			Code:   proxy.CodeSessionNotFound,
			Reason: "Session with the specified ID not found.",
		}
	}

	log.Info("Connecting to the signaling endpoint",
		"function_id", params.Ref.FunctionID,
		"function_version_id", params.Ref.FunctionVersionID,
	)

	upstream, err := s.dialer.DialSignaling(ctx, s.signalingParams(ctx, params))
	if err != nil {
		log.Error("Failed to connect to the signaling endpoint", "error", err)

		// A failed dial returns the session to the attachable pool so the
		// client can retry without starting a new instance.
		s.restoreIdle(ctx, params.SessionID)

		if errors.Is(err, domain.ErrUpstreamTimeout) {
			return proxy.CloseStatus{
				Code:   proxy.CodeConnectTimeout,
				Reason: "Failed to connect a streaming session with a timeout -- try again later.",
			}
		}
		return proxy.CloseStatus{
			Code:   proxy.CodeUpstreamRejected,
			Reason: "The signaling endpoint rejected the connection.",
		}
	}
	defer upstream.Close() //nolint:errcheck

	changed, err = s.sessions.Advance(ctx, params.SessionID, domain.StatusActive, nil, domain.StatusConnecting)
	if err != nil || !changed {
		// Terminated while the dial was in flight.
		return proxy.CloseStatus{
			Code:   proxy.CodeSessionNotFound,
			Reason: "Session with the specified ID not found.",
		}
	}
	log.Info("Connected")

	status := proxy.Forward(ctx, params.Client, upstream)

	// Close codes in the reserved band were sent by an endpoint that
	// already settled the session status. Everything else is a plain
	// detach: the session returns to idle and starts its reconnect window.
	if !proxy.Reserved(status.Code) {
		s.restoreIdle(ctx, params.SessionID)
	}

	log.Info("Session connection closed", "code", status.Code, "reason", status.Reason)
	return status
}

// signalingParams assembles the upstream handshake parameters, including
// the application's extra credential when its catalog entry requires one.
func (s *Service) signalingParams(ctx context.Context, params AttachParams) nvcf.SignalingParams {
	signaling := nvcf.SignalingParams{
		Ref:       params.Ref,
		SessionID: params.SessionID,
		Query:     params.Query,
		UserAgent: params.UserAgent,
	}

	app, err := s.apps.GetByFunction(ctx, params.Ref)
	if err != nil {
		// No catalog entry: connect without an application credential.
		return signaling
	}

	switch app.AuthenticationType {
	case domain.AuthOpenID:
		signaling.UserToken = params.User.Token
	case domain.AuthNucleus:
		signaling.NucleusToken = params.NucleusToken
	}
	return signaling
}

// restoreIdle stamps the session idle with a fresh end date, guarded so a
// concurrently stopped session stays stopped.
func (s *Service) restoreIdle(ctx context.Context, sessionID string) {
	endDate := s.clock.Now().UTC()
	if _, err := s.sessions.Advance(ctx, sessionID, domain.StatusIdle, &endDate, domain.StatusConnecting, domain.StatusActive); err != nil {
		logging.WithSession(sessionID).Error("Failed to return session to idle", "error", err)
	}
}
