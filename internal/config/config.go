package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/BurntSushi/toml"
)

// MaxSessionTTL caps the session TTL. Streaming instances on the compute
// endpoint are limited to 8 hours.
const MaxSessionTTL = 8 * time.Hour

// Config is one immutable snapshot of the settings file.
type Config struct {
	// ClientID is the OAuth client registered in the IdP for this portal.
	ClientID string `toml:"client_id"`

	// NvcfAPIKey authenticates every control-plane and signaling call.
	NvcfAPIKey string `toml:"nvcf_api_key"`

	// NvcfControlEndpoint is the compute endpoint control-plane base URL.
	NvcfControlEndpoint string `toml:"nvcf_control_endpoint"`

	// NvcfSignalingEndpoint is the WebSocket base URL for signaling.
	NvcfSignalingEndpoint string `toml:"nvcf_signaling_endpoint"`

	// NvcfCacheTTL is how long the deployed-function inventory is cached,
	// in seconds.
	NvcfCacheTTL int `toml:"nvcf_cache_ttl"`

	RootPath    string `toml:"root_path"`
	DatabaseURL string `toml:"database_url"`

	// RedisURL enables the shared inventory cache when set.
	RedisURL string `toml:"redis_url"`

	// AllowedOrigins lists origins allowed for cross-domain requests.
	AllowedOrigins []string `toml:"allowed_origins"`

	// AdminGroup is the IdP group required for administrative operations.
	AdminGroup string `toml:"admin_group"`

	// GroupsClaim names the token claim carrying the user's groups.
	GroupsClaim string `toml:"groups_claim"`

	// UnsafeDisableAuth disables authentication entirely. Development only.
	UnsafeDisableAuth bool `toml:"unsafe_disable_auth"`

	// MetadataURI points at the IdP's OpenID Connect discovery document.
	MetadataURI string `toml:"metadata_uri"`

	// JwksURI points directly at the IdP's JWKS. Derived from the discovery
	// document when empty.
	JwksURI string `toml:"jwks_uri"`

	// JwksTTL is the public key cache lifetime in seconds.
	JwksTTL int `toml:"jwks_ttl"`

	// MaxAppInstancesCount caps how many instances of the same application
	// a single user can have running.
	MaxAppInstancesCount int `toml:"max_app_instances_count"`

	// SessionTTL is the maximum session duration in seconds before users
	// get disconnected.
	SessionTTL int `toml:"session_ttl"`

	// SessionWatchInterval is how often (seconds) the reapers scan for
	// timed-out and idle sessions.
	SessionWatchInterval int `toml:"session_watch_interval"`

	// SessionIdleTimeout is the number of seconds before idle sessions are
	// stopped. The default equals the compute endpoint reconnect window.
	SessionIdleTimeout int `toml:"session_idle_timeout"`

	// WatchInterval is the number of seconds between settings re-reads.
	WatchInterval int `toml:"watch_interval"`

	// UpstreamTimeout bounds control-plane calls, in seconds.
	UpstreamTimeout int `toml:"upstream_timeout"`

	Port      string `toml:"port"`
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

func defaults() Config {
	return Config{
		NvcfControlEndpoint:   "https://api.nvcf.nvidia.com",
		NvcfSignalingEndpoint: "wss://grpc.nvcf.nvidia.com",
		NvcfCacheTTL:          300,
		AllowedOrigins: []string{
			"http://localhost:3180",
			"http://127.0.0.1:3180",
			"https://localhost:3180",
		},
		AdminGroup:           "admin",
		GroupsClaim:          "groups",
		JwksTTL:              900,
		MaxAppInstancesCount: 3,
		SessionTTL:           int(MaxSessionTTL / time.Second),
		SessionWatchInterval: 60,
		SessionIdleTimeout:   300,
		WatchInterval:        15,
		UpstreamTimeout:      30,
		Port:                 "8000",
		LogLevel:             "info",
		LogFormat:            "text",
	}
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("database_url is required")
	}
	if !c.UnsafeDisableAuth && c.MetadataURI == "" && c.JwksURI == "" {
		return fmt.Errorf("metadata_uri (or jwks_uri) is required unless unsafe_disable_auth is set")
	}
	if time.Duration(c.SessionTTL)*time.Second > MaxSessionTTL {
		slog.Warn("session_ttl exceeds the maximum allowed value, clamping to 8 hours")
		c.SessionTTL = int(MaxSessionTTL / time.Second)
	}
	return nil
}

// Durations with the unit conversions applied once, so call sites never
// multiply seconds themselves.

func (c *Config) SessionTTLDuration() time.Duration {
	return time.Duration(c.SessionTTL) * time.Second
}

func (c *Config) SessionIdleTimeoutDuration() time.Duration {
	return time.Duration(c.SessionIdleTimeout) * time.Second
}

func (c *Config) SessionWatchIntervalDuration() time.Duration {
	return time.Duration(c.SessionWatchInterval) * time.Second
}

func (c *Config) UpstreamTimeoutDuration() time.Duration {
	return time.Duration(c.UpstreamTimeout) * time.Second
}

func (c *Config) NvcfCacheTTLDuration() time.Duration {
	return time.Duration(c.NvcfCacheTTL) * time.Second
}

// Store holds the current settings snapshot and reloads it in the
// background.
type Store struct {
	path        string
	current     atomic.Pointer[Config]
	lastContent string
}

// Path returns the settings file location, from SETTINGS_PATH or the
// default.
func Path() string {
	if p := os.Getenv("SETTINGS_PATH"); p != "" {
		return p
	}
	return "settings.toml"
}

// Load reads and validates the settings file at path.
func Load(path string) (*Store, error) {
	s := &Store{path: path}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}
	cfg, err := parse(content)
	if err != nil {
		return nil, err
	}
	s.current.Store(cfg)
	s.lastContent = string(content)

	if cfg.UnsafeDisableAuth {
		slog.Warn("AUTHENTICATION IS DISABLED with unsafe_disable_auth. Use this option only for testing.",
			"settings_path", path)
	}
	return s, nil
}

// FromConfig wraps a fixed snapshot, for tests.
func FromConfig(cfg Config) *Store {
	s := &Store{}
	s.current.Store(&cfg)
	return s
}

// Current returns the live snapshot. Callers must not mutate it.
func (s *Store) Current() *Config {
	return s.current.Load()
}

// Watch re-reads the settings file every watch_interval seconds and swaps
// in a new snapshot when the content changed. It blocks until ctx is
// cancelled.
func (s *Store) Watch(ctx context.Context) {
	for {
		interval := time.Duration(s.Current().WatchInterval) * time.Second
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}

		content, err := os.ReadFile(s.path)
		if err != nil {
			slog.Warn("Failed to re-read settings file", "path", s.path, "error", err)
			continue
		}
		if string(content) == s.lastContent {
			continue
		}

		cfg, err := parse(content)
		if err != nil {
			slog.Error("Ignoring invalid settings update", "path", s.path, "error", err)
			continue
		}

		s.current.Store(cfg)
		s.lastContent = string(content)
		slog.Info("Service configuration has been updated", "path", s.path)
	}
}

func parse(content []byte) (*Config, error) {
	cfg := defaults()
	if err := toml.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse settings: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
