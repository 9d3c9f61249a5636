package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	"github.com/NVIDIA-Omniverse/ov-dgxc-portal-sample/internal/config"
)

// IDToken is a verified identity token.
type IDToken struct {
	// Token is the raw compact serialization, forwarded upstream for
	// applications that authenticate the stream itself.
	Token string

	// Sub is the unique identifier of the user at the IdP.
	Sub string

	// Username is the best displayable name the token provides.
	Username string

	// Groups lists the user's group memberships from the configured claim.
	Groups []string
}

// Verifier decodes and validates ID tokens against the IdP's JWKS.
type Verifier struct {
	settings *config.Store

	mu      sync.Mutex
	keyfunc jwt.Keyfunc
}

// NewVerifier resolves the JWKS location, from jwks_uri directly or from
// the OpenID discovery document, and starts the background key refresh.
// With unsafe_disable_auth the keys are resolved lazily on the first
// Decode instead, so auth can be switched on by a settings reload.
func NewVerifier(ctx context.Context, settings *config.Store) (*Verifier, error) {
	cfg := settings.Current()
	if cfg.UnsafeDisableAuth {
		return &Verifier{settings: settings}, nil
	}

	kf, err := resolveKeyfunc(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Verifier{settings: settings, keyfunc: kf}, nil
}

func resolveKeyfunc(ctx context.Context, cfg *config.Config) (jwt.Keyfunc, error) {
	jwksURI := cfg.JwksURI
	if jwksURI == "" {
		discovered, err := discoverJwksURI(ctx, cfg.MetadataURI)
		if err != nil {
			return nil, err
		}
		jwksURI = discovered
	}

	jwks, err := keyfunc.NewDefaultCtx(ctx, []string{jwksURI})
	if err != nil {
		return nil, fmt.Errorf("failed to load JWKS from %s: %w", jwksURI, err)
	}
	return jwks.Keyfunc, nil
}

// keys returns the verification keyfunc, resolving the JWKS on first use
// when the verifier was constructed with auth disabled.
func (v *Verifier) keys(cfg *config.Config) (jwt.Keyfunc, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.keyfunc == nil {
		kf, err := resolveKeyfunc(context.Background(), cfg)
		if err != nil {
			return nil, err
		}
		v.keyfunc = kf
	}
	return v.keyfunc, nil
}

func discoverJwksURI(ctx context.Context, metadataURI string) (string, error) {
	client := &http.Client{Timeout: 10 * time.Second}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, metadataURI, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build discovery request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch OpenID discovery document: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("OpenID discovery document request failed: HTTP %d", resp.StatusCode)
	}

	var metadata struct {
		JwksURI string `json:"jwks_uri"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&metadata); err != nil {
		return "", fmt.Errorf("failed to decode OpenID discovery document: %w", err)
	}
	if metadata.JwksURI == "" {
		return "", fmt.Errorf("OpenID discovery document has no jwks_uri")
	}
	return metadata.JwksURI, nil
}

// Decode verifies the token signature, expiry and audience, and extracts
// the identity claims.
func (v *Verifier) Decode(tokenString string) (*IDToken, error) {
	cfg := v.settings.Current()

	opts := []jwt.ParserOption{jwt.WithExpirationRequired()}
	if cfg.ClientID != "" {
		opts = append(opts, jwt.WithAudience(cfg.ClientID))
	}

	keys, err := v.keys(cfg)
	if err != nil {
		return nil, err
	}

	claims := jwt.MapClaims{}
	if _, err := jwt.ParseWithClaims(tokenString, claims, keys, opts...); err != nil {
		return nil, fmt.Errorf("failed to verify ID token: %w", err)
	}

	return newIDToken(tokenString, claims, cfg.GroupsClaim), nil
}

func newIDToken(token string, claims jwt.MapClaims, groupsClaim string) *IDToken {
	sub, _ := claims["sub"].(string)
	return &IDToken{
		Token:    token,
		Sub:      sub,
		Username: username(claims, sub),
		Groups:   stringList(claims[groupsClaim]),
	}
}

// username prefers the email, then the profile names, and falls back to the
// subject so sessions always carry something displayable.
func username(claims jwt.MapClaims, sub string) string {
	for _, claim := range []string{"email", "preferred_username", "name"} {
		if value, ok := claims[claim].(string); ok && value != "" {
			return value
		}
	}
	return sub
}

func stringList(value any) []string {
	items, ok := value.([]any)
	if !ok {
		return nil
	}
	list := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			list = append(list, s)
		}
	}
	return list
}
