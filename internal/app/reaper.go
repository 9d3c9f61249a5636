package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/NVIDIA-Omniverse/ov-dgxc-portal-sample/internal/domain"
	"github.com/NVIDIA-Omniverse/ov-dgxc-portal-sample/internal/logging"
	"github.com/NVIDIA-Omniverse/ov-dgxc-portal-sample/internal/metrics"
)

// Reaper periodically scans for sessions that outlived a deadline and
// reclaims them. One failing session never aborts a pass, the remaining
// candidates are still processed.
type Reaper struct {
	name     string
	clock    clockwork.Clock
	interval func() time.Duration
	scan     func(ctx context.Context) ([]*domain.Session, error)
	reap     func(ctx context.Context, session *domain.Session) error
}

// NewTimeoutReaper reclaims sessions that exceeded the session TTL,
// regardless of their status. Reaped sessions go through the full
// termination path so live connections receive a close frame.
func NewTimeoutReaper(s *Service) *Reaper {
	return &Reaper{
		name:     "timeout",
		clock:    s.clock,
		interval: func() time.Duration { return s.settings.Current().SessionWatchIntervalDuration() },
		scan: func(ctx context.Context) ([]*domain.Session, error) {
			cutoff := s.clock.Now().UTC().Add(-s.settings.Current().SessionTTLDuration())
			return s.sessions.ListExpired(ctx, cutoff)
		},
		reap: func(ctx context.Context, session *domain.Session) error {
			return s.endSession(ctx, session, reasonTimedOut, "timeout")
		},
	}
}

// NewIdleReaper stops sessions that stayed idle past the idle timeout. No
// upstream stop call is made: the compute endpoint reclaims the instance
// itself once its reconnect window lapses, which the idle timeout matches.
func NewIdleReaper(s *Service) *Reaper {
	return &Reaper{
		name:     "idle",
		clock:    s.clock,
		interval: func() time.Duration { return s.settings.Current().SessionWatchIntervalDuration() },
		scan: func(ctx context.Context) ([]*domain.Session, error) {
			cutoff := s.clock.Now().UTC().Add(-s.settings.Current().SessionIdleTimeoutDuration())
			return s.sessions.ListIdleSince(ctx, cutoff)
		},
		reap: func(ctx context.Context, session *domain.Session) error {
			logging.WithSession(session.ID).Info("Stopping idle session")

			endDate := s.clock.Now().UTC()
			changed, err := s.sessions.Advance(ctx, session.ID, domain.StatusStopped, &endDate, domain.StatusIdle)
			if err != nil {
				return err
			}
			if changed {
				metrics.SessionsEndedTotal.WithLabelValues("idle").Inc()
				metrics.SessionsActive.Dec()
				metrics.SessionDurationSeconds.Observe(endDate.Sub(session.StartDate).Seconds())
			}
			return nil
		},
	}
}

// Run executes scan passes until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.clock.After(r.interval()):
		}
		r.pass(ctx)
	}
}

func (r *Reaper) pass(ctx context.Context) {
	start := time.Now()
	sessions, err := r.scan(ctx)
	if err != nil {
		slog.Error("Reaper scan failed", "reaper", r.name, "error", err)
		metrics.ReaperErrorsTotal.WithLabelValues(r.name).Inc()
		return
	}
	slog.Debug("Reaper pass", "reaper", r.name, "candidates", len(sessions))

	for _, session := range sessions {
		if err := r.reap(ctx, session); err != nil {
			logging.WithSession(session.ID).Error("Failed to reap session", "reaper", r.name, "error", err)
			metrics.ReaperErrorsTotal.WithLabelValues(r.name).Inc()
			continue
		}
		metrics.ReaperReapedTotal.WithLabelValues(r.name).Inc()
	}

	metrics.ReaperPassesTotal.WithLabelValues(r.name).Inc()
	metrics.ReaperPassDurationSeconds.WithLabelValues(r.name).Observe(time.Since(start).Seconds())
}
