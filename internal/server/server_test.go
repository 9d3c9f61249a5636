package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/NVIDIA-Omniverse/ov-dgxc-portal-sample/internal/app"
	"github.com/NVIDIA-Omniverse/ov-dgxc-portal-sample/internal/auth"
	"github.com/NVIDIA-Omniverse/ov-dgxc-portal-sample/internal/config"
	"github.com/NVIDIA-Omniverse/ov-dgxc-portal-sample/internal/domain"
	"github.com/NVIDIA-Omniverse/ov-dgxc-portal-sample/internal/proxy"
)

type mockService struct {
	startFunc     func(ctx context.Context, ref domain.FunctionRef, user app.Identity) (*domain.Session, error)
	stopFunc      func(ctx context.Context, sessionID string, ref domain.FunctionRef, user app.Identity) error
	terminateFunc func(ctx context.Context, sessionID string) error
	listFunc      func(ctx context.Context, filter domain.SessionFilter, page, pageSize int) (*domain.Page[*domain.Session], error)
	attachFunc    func(ctx context.Context, params app.AttachParams) proxy.CloseStatus
}

func (m *mockService) Start(ctx context.Context, ref domain.FunctionRef, user app.Identity) (*domain.Session, error) {
	if m.startFunc == nil {
		return nil, fmt.Errorf("unexpected Start call")
	}
	return m.startFunc(ctx, ref, user)
}

func (m *mockService) Stop(ctx context.Context, sessionID string, ref domain.FunctionRef, user app.Identity) error {
	if m.stopFunc == nil {
		return fmt.Errorf("unexpected Stop call")
	}
	return m.stopFunc(ctx, sessionID, ref, user)
}

func (m *mockService) Terminate(ctx context.Context, sessionID string) error {
	if m.terminateFunc == nil {
		return fmt.Errorf("unexpected Terminate call")
	}
	return m.terminateFunc(ctx, sessionID)
}

func (m *mockService) List(ctx context.Context, filter domain.SessionFilter, page, pageSize int) (*domain.Page[*domain.Session], error) {
	if m.listFunc == nil {
		return nil, fmt.Errorf("unexpected List call")
	}
	return m.listFunc(ctx, filter, page, pageSize)
}

func (m *mockService) Attach(ctx context.Context, params app.AttachParams) proxy.CloseStatus {
	if m.attachFunc == nil {
		return proxy.CloseStatus{Code: proxy.CodeSessionNotFound, Reason: "unexpected Attach call"}
	}
	return m.attachFunc(ctx, params)
}

type mockAppRepo struct {
	listFunc   func(ctx context.Context, ref *domain.FunctionRef) ([]*domain.PublishedApp, error)
	getFunc    func(ctx context.Context, id string) (*domain.PublishedApp, error)
	upsertFunc func(ctx context.Context, app *domain.PublishedApp) (*domain.PublishedApp, error)
	deleteFunc func(ctx context.Context, id string) error
}

func (m *mockAppRepo) List(ctx context.Context, ref *domain.FunctionRef) ([]*domain.PublishedApp, error) {
	if m.listFunc == nil {
		return nil, nil
	}
	return m.listFunc(ctx, ref)
}

func (m *mockAppRepo) Get(ctx context.Context, id string) (*domain.PublishedApp, error) {
	if m.getFunc == nil {
		return nil, domain.ErrAppNotFound
	}
	return m.getFunc(ctx, id)
}

func (m *mockAppRepo) GetByFunction(ctx context.Context, ref domain.FunctionRef) (*domain.PublishedApp, error) {
	return nil, domain.ErrAppNotFound
}

func (m *mockAppRepo) Upsert(ctx context.Context, app *domain.PublishedApp) (*domain.PublishedApp, error) {
	if m.upsertFunc == nil {
		return nil, fmt.Errorf("unexpected Upsert call")
	}
	return m.upsertFunc(ctx, app)
}

func (m *mockAppRepo) Delete(ctx context.Context, id string) error {
	if m.deleteFunc == nil {
		return fmt.Errorf("unexpected Delete call")
	}
	return m.deleteFunc(ctx, id)
}

type mockPageRepo struct {
	listFunc    func(ctx context.Context) ([]*domain.PortalPage, error)
	replaceFunc func(ctx context.Context, pages []*domain.PortalPage) ([]*domain.PortalPage, error)
}

func (m *mockPageRepo) List(ctx context.Context) ([]*domain.PortalPage, error) {
	if m.listFunc == nil {
		return nil, nil
	}
	return m.listFunc(ctx)
}

func (m *mockPageRepo) Replace(ctx context.Context, pages []*domain.PortalPage) ([]*domain.PortalPage, error) {
	if m.replaceFunc == nil {
		return pages, nil
	}
	return m.replaceFunc(ctx, pages)
}

type mockInventory struct {
	statusFunc func(ctx context.Context, ref domain.FunctionRef) domain.FunctionStatus
}

func (m *mockInventory) StatusFor(ctx context.Context, ref domain.FunctionRef) domain.FunctionStatus {
	if m.statusFunc == nil {
		return domain.FunctionStatusUnknown
	}
	return m.statusFunc(ctx, ref)
}

type pinger struct {
	err error
}

func (p *pinger) Ping(ctx context.Context) error {
	return p.err
}

type fixture struct {
	server    *Server
	service   *mockService
	apps      *mockAppRepo
	pages     *mockPageRepo
	inventory *mockInventory
	database  *pinger
	cache     *pinger
}

func newTestServer(t *testing.T) *fixture {
	t.Helper()

	settings := config.FromConfig(config.Config{
		UnsafeDisableAuth: true,
		SessionTTL:        3600,
		AllowedOrigins:    []string{"http://localhost:3180"},
		Port:              "0",
	})
	verifier, err := auth.NewVerifier(context.Background(), settings)
	require.NoError(t, err)

	f := &fixture{
		service:   &mockService{},
		apps:      &mockAppRepo{},
		pages:     &mockPageRepo{},
		inventory: &mockInventory{},
		database:  &pinger{},
		cache:     &pinger{},
	}
	f.server = NewServer(settings, f.service, f.inventory, f.apps, f.pages, verifier, f.database, f.cache)
	return f
}

func (f *fixture) request(method, target, body string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	return req
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.server.echo.ServeHTTP(rec, req)
	return rec
}

func decodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var value T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &value))
	return value
}

func testRef(t *testing.T) domain.FunctionRef {
	t.Helper()
	return domain.FunctionRef{
		FunctionID:        uuid.MustParse("11111111-1111-1111-1111-111111111111"),
		FunctionVersionID: uuid.MustParse("22222222-2222-2222-2222-222222222222"),
	}
}

func signInPath(ref domain.FunctionRef) string {
	return fmt.Sprintf("/sessions/%s/%s/sign_in", ref.FunctionID, ref.FunctionVersionID)
}
