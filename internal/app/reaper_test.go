package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NVIDIA-Omniverse/ov-dgxc-portal-sample/internal/domain"
)

func TestTimeoutReaper(t *testing.T) {
	ref := testRef(t)

	t.Run("reaps sessions past the TTL through the termination path", func(t *testing.T) {
		f := newFixture(t)

		var gotCutoff time.Time
		f.sessions.listExpiredFunc = func(ctx context.Context, startedBefore time.Time) ([]*domain.Session, error) {
			gotCutoff = startedBefore
			return []*domain.Session{
				{ID: "old-1", Function: ref, Status: domain.StatusActive, StartDate: f.clock.Now().Add(-2 * time.Hour)},
			}, nil
		}

		var stopped []string
		f.compute.stopFunc = func(ctx context.Context, r domain.FunctionRef, correlationID string) error {
			stopped = append(stopped, correlationID)
			return nil
		}
		f.sessions.advanceFunc = func(ctx context.Context, id string, to domain.Status, endDate *time.Time, from ...domain.Status) (bool, error) {
			assert.Equal(t, domain.StatusStopped, to)
			return true, nil
		}

		NewTimeoutReaper(f.service).pass(context.Background())

		assert.Equal(t, []string{"old-1"}, stopped)
		assert.Equal(t, f.clock.Now().UTC().Add(-time.Hour), gotCutoff, "cutoff must be TTL before now")
	})

	t.Run("one failing session does not abort the pass", func(t *testing.T) {
		f := newFixture(t)

		f.sessions.listExpiredFunc = func(ctx context.Context, startedBefore time.Time) ([]*domain.Session, error) {
			return []*domain.Session{
				{ID: "bad", Function: ref, Status: domain.StatusActive, StartDate: f.clock.Now()},
				{ID: "good", Function: ref, Status: domain.StatusActive, StartDate: f.clock.Now()},
			}, nil
		}
		var stopped []string
		f.compute.stopFunc = func(ctx context.Context, r domain.FunctionRef, correlationID string) error {
			stopped = append(stopped, correlationID)
			if correlationID == "bad" {
				return domain.ErrUpstreamTimeout
			}
			return nil
		}
		f.sessions.advanceFunc = func(ctx context.Context, id string, to domain.Status, endDate *time.Time, from ...domain.Status) (bool, error) {
			return true, nil
		}

		NewTimeoutReaper(f.service).pass(context.Background())
		assert.Equal(t, []string{"bad", "good"}, stopped)
	})

	t.Run("runs on the watch interval until cancelled", func(t *testing.T) {
		f := newFixture(t)

		passes := make(chan struct{}, 8)
		f.sessions.listExpiredFunc = func(ctx context.Context, startedBefore time.Time) ([]*domain.Session, error) {
			passes <- struct{}{}
			return nil, nil
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		done := make(chan struct{})
		go func() {
			NewTimeoutReaper(f.service).Run(ctx)
			close(done)
		}()

		f.clock.BlockUntil(1)
		f.clock.Advance(time.Minute)
		select {
		case <-passes:
		case <-time.After(time.Second):
			t.Fatal("expected a reaper pass after the watch interval")
		}

		cancel()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("reaper did not stop on cancellation")
		}
	})
}

func TestIdleReaper(t *testing.T) {
	ref := testRef(t)

	t.Run("stops idle sessions without an upstream stop", func(t *testing.T) {
		f := newFixture(t)

		endDate := f.clock.Now().UTC().Add(-10 * time.Minute)
		f.sessions.listIdleSinceFunc = func(ctx context.Context, idleBefore time.Time) ([]*domain.Session, error) {
			assert.Equal(t, f.clock.Now().UTC().Add(-5*time.Minute), idleBefore)
			return []*domain.Session{
				{ID: "idle-1", Function: ref, Status: domain.StatusIdle, StartDate: f.clock.Now().Add(-time.Hour), EndDate: &endDate},
			}, nil
		}
		f.compute.stopFunc = func(ctx context.Context, r domain.FunctionRef, correlationID string) error {
			t.Fatal("the idle reaper must not call the compute endpoint")
			return nil
		}

		var advanced []string
		f.sessions.advanceFunc = func(ctx context.Context, id string, to domain.Status, endDate *time.Time, from ...domain.Status) (bool, error) {
			advanced = append(advanced, id)
			assert.Equal(t, domain.StatusStopped, to)
			assert.Equal(t, []domain.Status{domain.StatusIdle}, from)
			return true, nil
		}

		NewIdleReaper(f.service).pass(context.Background())
		assert.Equal(t, []string{"idle-1"}, advanced)
	})

	t.Run("scan failure skips the pass", func(t *testing.T) {
		f := newFixture(t)

		f.sessions.listIdleSinceFunc = func(ctx context.Context, idleBefore time.Time) ([]*domain.Session, error) {
			return nil, assert.AnError
		}
		f.sessions.advanceFunc = func(ctx context.Context, id string, to domain.Status, endDate *time.Time, from ...domain.Status) (bool, error) {
			t.Fatal("no session must be advanced when the scan fails")
			return false, nil
		}

		require.NotPanics(t, func() {
			NewIdleReaper(f.service).pass(context.Background())
		})
	})
}
