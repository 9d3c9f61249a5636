package server

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLiveness(t *testing.T) {
	f := newTestServer(t)

	rec := f.do(f.request(http.MethodGet, "/health/live", ""))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestReadiness(t *testing.T) {
	t.Run("ready when both stores answer", func(t *testing.T) {
		f := newTestServer(t)

		rec := f.do(f.request(http.MethodGet, "/health/ready", ""))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "ready")
	})

	t.Run("unhealthy when the database is down", func(t *testing.T) {
		f := newTestServer(t)
		f.database.err = fmt.Errorf("connection refused")

		rec := f.do(f.request(http.MethodGet, "/health/ready", ""))

		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, rec.Body.String(), "postgres")
	})

	t.Run("unhealthy when the cache is down", func(t *testing.T) {
		f := newTestServer(t)
		f.cache.err = fmt.Errorf("connection refused")

		rec := f.do(f.request(http.MethodGet, "/health/ready", ""))

		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, rec.Body.String(), "redis")
	})
}
