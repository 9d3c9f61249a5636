package nvcf

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/NVIDIA-Omniverse/ov-dgxc-portal-sample/internal/domain"
	"github.com/NVIDIA-Omniverse/ov-dgxc-portal-sample/internal/proxy"
)

// SignalingParams address one upstream signaling connection.
type SignalingParams struct {
	Ref       domain.FunctionRef
	SessionID string

	// Query is passed through from the client verbatim, the StreamSDK uses
	// it for peer negotiation parameters.
	Query url.Values

	// UserAgent mirrors the client's user agent on the upstream handshake.
	UserAgent string

	// UserToken is forwarded for applications requiring OpenID
	// authentication.
	UserToken string

	// NucleusToken is forwarded for applications backed by a Nucleus server.
	NucleusToken string
}

// DialSignaling opens the upstream signaling WebSocket for a running
// instance. Handshake rejections map to domain.ErrUpstreamRejected and
// deadline errors to domain.ErrUpstreamTimeout.
func (c *Client) DialSignaling(ctx context.Context, params SignalingParams) (proxy.Conn, error) {
	cfg := c.settings.Current()
	if cfg.NvcfAPIKey == "" {
		return nil, fmt.Errorf("compute endpoint API key is not configured")
	}

	endpoint := cfg.NvcfSignalingEndpoint
	if strings.HasPrefix(endpoint, "http") {
		endpoint = "ws" + endpoint[4:]
	}
	signalingURL := endpoint + "/sign_in?" + params.Query.Encode()

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+cfg.NvcfAPIKey)
	headers.Set("Function-ID", params.Ref.FunctionID.String())
	headers.Set("Function-Version-ID", params.Ref.FunctionVersionID.String())
	headers.Set("Cookie", sessionCookie+"="+params.SessionID)
	if params.UserAgent != "" {
		headers.Set("User-Agent", params.UserAgent)
	}
	if params.UserToken != "" {
		headers.Set("User-Token", params.UserToken)
	}
	if params.NucleusToken != "" {
		headers.Set("Nucleus-Token", params.NucleusToken)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: cfg.UpstreamTimeoutDuration(),
	}

	conn, resp, err := dialer.DialContext(ctx, signalingURL, headers)
	if err != nil {
		if resp != nil {
			resp.Body.Close() //nolint:errcheck
		}
		if errors.Is(err, websocket.ErrBadHandshake) && resp != nil {
			return nil, fmt.Errorf("%w: HTTP %d", domain.ErrUpstreamRejected, resp.StatusCode)
		}
		if isTimeout(err) {
			return nil, fmt.Errorf("%w: signaling handshake", domain.ErrUpstreamTimeout)
		}
		return nil, fmt.Errorf("failed to dial signaling endpoint: %w", err)
	}
	return conn, nil
}
