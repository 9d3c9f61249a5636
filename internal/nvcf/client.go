package nvcf

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/google/uuid"

	"github.com/NVIDIA-Omniverse/ov-dgxc-portal-sample/internal/config"
	"github.com/NVIDIA-Omniverse/ov-dgxc-portal-sample/internal/domain"
	"github.com/NVIDIA-Omniverse/ov-dgxc-portal-sample/internal/metrics"
)

// sessionCookie carries the correlation ID on every signaling and control
// call for a running instance.
const sessionCookie = "nvcf-request-id"

// Client implements domain.ComputeClient against the NVCF control plane.
// All calls are guarded by a circuit breaker so a degraded endpoint cannot
// pile up blocked requests.
type Client struct {
	settings *config.Store
	http     *http.Client
	breaker  circuitbreaker.CircuitBreaker[any]
}

func NewClient(settings *config.Store) *Client {
	breaker := circuitbreaker.NewBuilder[any]().
		WithFailureRateThreshold(0.6, 5, 10*time.Second).
		WithDelay(30 * time.Second).
		WithSuccessThreshold(1).
		OnStateChanged(func(e circuitbreaker.StateChangedEvent) {
			slog.Warn("Circuit breaker state changed",
				"component", "nvcf",
				"from", e.OldState.String(),
				"to", e.NewState.String(),
			)
			metrics.CircuitBreakerStateChanges.WithLabelValues("nvcf", e.NewState.String()).Inc()
			metrics.CircuitBreakerState.WithLabelValues("nvcf").Set(breakerStateToFloat(e.NewState))
		}).
		Build()

	return &Client{
		settings: settings,
		http:     &http.Client{},
		breaker:  breaker,
	}
}

func breakerStateToFloat(state circuitbreaker.State) float64 {
	switch state {
	case circuitbreaker.ClosedState:
		return 0
	case circuitbreaker.HalfOpenState:
		return 1
	case circuitbreaker.OpenState:
		return 2
	default:
		return -1
	}
}

// signInURL converts the signaling endpoint to HTTP and addresses the
// /sign_in route the StreamSDK listens on.
func signInURL(cfg *config.Config, query url.Values) string {
	endpoint := cfg.NvcfSignalingEndpoint
	if strings.HasPrefix(endpoint, "ws") {
		endpoint = "http" + endpoint[2:]
	}
	return endpoint + "/sign_in?" + query.Encode()
}

// controlHeaders are required on every instance-addressed call: the API key
// plus the function pair routing headers and the absorb flag.
func controlHeaders(cfg *config.Config, ref domain.FunctionRef) http.Header {
	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+cfg.NvcfAPIKey)
	headers.Set("Function-ID", ref.FunctionID.String())
	headers.Set("Function-Version-ID", ref.FunctionVersionID.String())
	headers.Set("X-NVCF-ABSORB", "true")
	return headers
}

// Start provisions a streaming instance for the function pair and returns
// the correlation ID issued by the endpoint.
func (c *Client) Start(ctx context.Context, ref domain.FunctionRef) (string, error) {
	cfg := c.settings.Current()
	if cfg.NvcfAPIKey == "" {
		return "", fmt.Errorf("compute endpoint API key is not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.UpstreamTimeoutDuration())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, signInURL(cfg, nil), nil)
	if err != nil {
		return "", fmt.Errorf("failed to build start request: %w", err)
	}
	req.Header = controlHeaders(cfg, ref)

	resp, err := c.do("start", req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: HTTP %d", domain.ErrUpstreamRejected, resp.StatusCode)
	}

	for _, cookie := range resp.Cookies() {
		if cookie.Name == sessionCookie {
			return cookie.Value, nil
		}
	}
	return "", fmt.Errorf("%w: %s cookie missing in response", domain.ErrUpstreamRejected, sessionCookie)
}

// Stop tears down the instance identified by the correlation ID. An unknown
// or already-stopped instance is not an error.
func (c *Client) Stop(ctx context.Context, ref domain.FunctionRef, correlationID string) error {
	cfg := c.settings.Current()

	ctx, cancel := context.WithTimeout(ctx, cfg.UpstreamTimeoutDuration())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, signInURL(cfg, nil), nil)
	if err != nil {
		return fmt.Errorf("failed to build stop request: %w", err)
	}
	req.Header = controlHeaders(cfg, ref)
	req.AddCookie(&http.Cookie{Name: sessionCookie, Value: correlationID})

	resp, err := c.do("stop", req)
	if err != nil {
		return err
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("%w: HTTP %d", domain.ErrUpstreamRejected, resp.StatusCode)
	}
	return nil
}

type functionsResponse struct {
	Functions []struct {
		ID        uuid.UUID `json:"id"`
		VersionID uuid.UUID `json:"versionId"`
		Name      string    `json:"name"`
		Status    string    `json:"status"`
	} `json:"functions"`
}

// ListFunctions returns the deployed function inventory. A missing API key
// yields an empty inventory rather than an error, so catalog listings
// degrade to UNKNOWN statuses instead of failing.
func (c *Client) ListFunctions(ctx context.Context) (map[domain.FunctionRef]domain.Function, error) {
	cfg := c.settings.Current()
	if cfg.NvcfAPIKey == "" {
		slog.Error("Failed to get deployed functions, API key is not configured")
		return map[domain.FunctionRef]domain.Function{}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.UpstreamTimeoutDuration())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.NvcfControlEndpoint+"/v2/nvcf/functions", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build functions request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+cfg.NvcfAPIKey)

	resp, err := c.do("list_functions", req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: HTTP %d", domain.ErrUpstreamRejected, resp.StatusCode)
	}

	var payload functionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode functions response: %w", err)
	}

	functions := make(map[domain.FunctionRef]domain.Function, len(payload.Functions))
	for _, f := range payload.Functions {
		ref := domain.FunctionRef{FunctionID: f.ID, FunctionVersionID: f.VersionID}
		functions[ref] = domain.Function{
			Ref:    ref,
			Name:   f.Name,
			Status: domain.FunctionStatus(f.Status),
		}
	}
	return functions, nil
}

// do executes the request behind the circuit breaker and records metrics.
// Deadline errors come back as domain.ErrUpstreamTimeout.
func (c *Client) do(operation string, req *http.Request) (*http.Response, error) {
	if !c.breaker.TryAcquirePermit() {
		metrics.NvcfRequestsTotal.WithLabelValues(operation, "rejected").Inc()
		return nil, fmt.Errorf("%w: circuit breaker is open", domain.ErrUpstreamRejected)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.NvcfRequestDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())

	if err != nil {
		c.breaker.RecordError(err)
		metrics.NvcfRequestsTotal.WithLabelValues(operation, "error").Inc()
		if isTimeout(err) {
			return nil, fmt.Errorf("%w: %s", domain.ErrUpstreamTimeout, operation)
		}
		return nil, fmt.Errorf("failed to call compute endpoint: %w", err)
	}

	c.breaker.RecordSuccess()
	metrics.NvcfRequestsTotal.WithLabelValues(operation, strconv.Itoa(resp.StatusCode)).Inc()
	return resp, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
