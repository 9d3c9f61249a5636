package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSettings(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "settings.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeSettings(t, `
database_url = "postgres://localhost/portal"
unsafe_disable_auth = true
`)

	store, err := Load(path)
	require.NoError(t, err)

	cfg := store.Current()
	assert.Equal(t, "https://api.nvcf.nvidia.com", cfg.NvcfControlEndpoint)
	assert.Equal(t, "wss://grpc.nvcf.nvidia.com", cfg.NvcfSignalingEndpoint)
	assert.Equal(t, 3, cfg.MaxAppInstancesCount)
	assert.Equal(t, 60*time.Second, cfg.SessionWatchIntervalDuration())
	assert.Equal(t, 5*time.Minute, cfg.SessionIdleTimeoutDuration())
	assert.Equal(t, "admin", cfg.AdminGroup)
}

func TestLoad_RequiresDatabaseURL(t *testing.T) {
	path := writeSettings(t, `unsafe_disable_auth = true`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database_url")
}

func TestLoad_RequiresIdPUnlessAuthDisabled(t *testing.T) {
	path := writeSettings(t, `database_url = "postgres://localhost/portal"`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "metadata_uri")
}

func TestLoad_ClampsSessionTTL(t *testing.T) {
	path := writeSettings(t, `
database_url = "postgres://localhost/portal"
unsafe_disable_auth = true
session_ttl = 999999
`)

	store, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, MaxSessionTTL, store.Current().SessionTTLDuration())
}

func TestWatch_SwapsSnapshotOnChange(t *testing.T) {
	path := writeSettings(t, `
database_url = "postgres://localhost/portal"
unsafe_disable_auth = true
watch_interval = 1
max_app_instances_count = 3
`)

	store, err := Load(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte(`
database_url = "postgres://localhost/portal"
unsafe_disable_auth = true
watch_interval = 1
max_app_instances_count = 5
`), 0o600))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go store.Watch(ctx)

	require.Eventually(t, func() bool {
		return store.Current().MaxAppInstancesCount == 5
	}, 5*time.Second, 50*time.Millisecond)
}

func TestFromConfig(t *testing.T) {
	store := FromConfig(Config{Port: "9000"})
	assert.Equal(t, "9000", store.Current().Port)
}
