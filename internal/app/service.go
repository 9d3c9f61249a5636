package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonboulle/clockwork"

	"github.com/NVIDIA-Omniverse/ov-dgxc-portal-sample/internal/config"
	"github.com/NVIDIA-Omniverse/ov-dgxc-portal-sample/internal/domain"
	"github.com/NVIDIA-Omniverse/ov-dgxc-portal-sample/internal/logging"
	"github.com/NVIDIA-Omniverse/ov-dgxc-portal-sample/internal/metrics"
	"github.com/NVIDIA-Omniverse/ov-dgxc-portal-sample/internal/nvcf"
	"github.com/NVIDIA-Omniverse/ov-dgxc-portal-sample/internal/proxy"
)

// End reasons delivered to the client in the close frame.
const (
	reasonClientStop     = "Stopped by client."
	reasonAdminTerminate = "Terminated by a system administrator."
	reasonTimedOut       = "Timed out."
)

// Identity is who is acting, as established by the HTTP layer.
type Identity struct {
	// Sub is the unique user identifier sessions are owned by.
	Sub string

	// Username is the displayable name stored on the session.
	Username string

	// Token is the raw ID token, forwarded upstream for applications with
	// OpenID authentication.
	Token string
}

// SignalingDialer opens the upstream signaling connection for a session.
type SignalingDialer interface {
	DialSignaling(ctx context.Context, params nvcf.SignalingParams) (proxy.Conn, error)
}

// Service is the application layer. It is the only component that touches
// the session store, the compute endpoint and the connection registry
// together.
type Service struct {
	settings *config.Store
	sessions domain.SessionRepository
	apps     domain.AppRepository
	compute  domain.ComputeClient
	dialer   SignalingDialer
	registry *proxy.Registry
	clock    clockwork.Clock
}

func NewService(
	settings *config.Store,
	sessions domain.SessionRepository,
	apps domain.AppRepository,
	compute domain.ComputeClient,
	dialer SignalingDialer,
	registry *proxy.Registry,
	clock clockwork.Clock,
) *Service {
	return &Service{
		settings: settings,
		sessions: sessions,
		apps:     apps,
		compute:  compute,
		dialer:   dialer,
		registry: registry,
		clock:    clock,
	}
}

// Start admits and provisions a new streaming session for the function
// pair. Admission is atomic: the instance cap check, the upstream start and
// the record insert happen under one admission lock, so racing starts
// cannot oversubscribe a user.
func (s *Service) Start(ctx context.Context, ref domain.FunctionRef, user Identity) (*domain.Session, error) {
	cfg := s.settings.Current()

	// The catalog link is optional: functions can be streamed before their
	// catalog entry exists, the session then carries no app reference.
	var appID *string
	app, err := s.apps.GetByFunction(ctx, ref)
	switch {
	case errors.Is(err, domain.ErrAppNotFound):
	case err != nil:
		return nil, err
	default:
		appID = &app.ID
	}

	session, err := s.sessions.CreateUnderQuota(ctx, ref, user.Sub, cfg.MaxAppInstancesCount, func(ctx context.Context) (*domain.Session, error) {
		correlationID, err := s.compute.Start(ctx, ref)
		if err != nil {
			return nil, fmt.Errorf("failed to start a streaming instance: %w", err)
		}
		return &domain.Session{
			ID:        correlationID,
			Function:  ref,
			AppID:     appID,
			UserID:    user.Sub,
			UserName:  user.Username,
			Status:    domain.StatusIdle,
			StartDate: s.clock.Now().UTC(),
		}, nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrQuotaExceeded) {
			metrics.SessionsRejectedTotal.Inc()
			logging.WithUser(user.Sub).Info("Blocked session request, maximum number of instances reached")
		}
		return nil, err
	}

	metrics.SessionsStartedTotal.Inc()
	metrics.SessionsActive.Inc()
	logging.WithSession(session.ID).Info("Session started",
		"function_id", ref.FunctionID,
		"function_version_id", ref.FunctionVersionID,
		"user_id", user.Sub,
	)
	return session, nil
}

// Stop ends the caller's own session. Stopped sessions are reported as not
// found, so clients cannot distinguish them from expired ones.
func (s *Service) Stop(ctx context.Context, sessionID string, ref domain.FunctionRef, user Identity) error {
	session, err := s.sessions.GetOwned(ctx, sessionID, ref, user.Sub)
	if err != nil {
		return err
	}
	if session.Status == domain.StatusStopped {
		return domain.ErrSessionNotFound
	}
	return s.endSession(ctx, session, reasonClientStop, "client")
}

// Terminate force-ends any session regardless of owner. It is idempotent:
// terminating a stopped session stops the instance again (a no-op upstream)
// and leaves the record untouched.
func (s *Service) Terminate(ctx context.Context, sessionID string) error {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	return s.endSession(ctx, session, reasonAdminTerminate, "admin")
}

// Get returns one session by ID.
func (s *Service) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	return s.sessions.Get(ctx, sessionID)
}

// List returns a page of sessions matching the filter.
func (s *Service) List(ctx context.Context, filter domain.SessionFilter, page, pageSize int) (*domain.Page[*domain.Session], error) {
	return s.sessions.List(ctx, filter, page, pageSize)
}

// endSession stops the remote instance, force-closes a live signaling
// connection and marks the record stopped. The connection is closed before
// the status write so the forwarder's detach path already sees the session
// stopped and does not re-stamp it idle. A failed or timed-out upstream
// stop still marks the session stopped, the error is surfaced afterwards.
func (s *Service) endSession(ctx context.Context, session *domain.Session, reason, reasonLabel string) error {
	log := logging.WithSession(session.ID)
	log.Info("Terminating session", "reason", reason)

	stopErr := s.compute.Stop(ctx, session.Function, session.ID)
	if stopErr != nil {
		log.Error("Failed to stop the streaming instance", "error", stopErr)
	}

	if conn, ok := s.registry.Lookup(session.ID); ok {
		proxy.CloseWithCode(conn, proxy.CodeTerminated, reason)
	}

	endDate := s.clock.Now().UTC()
	changed, err := s.sessions.Advance(ctx, session.ID, domain.StatusStopped, &endDate, domain.AliveStatuses()...)
	if err != nil {
		return err
	}
	if changed {
		metrics.SessionsEndedTotal.WithLabelValues(reasonLabel).Inc()
		metrics.SessionsActive.Dec()
		metrics.SessionDurationSeconds.Observe(endDate.Sub(session.StartDate).Seconds())
	}
	return stopErr
}
