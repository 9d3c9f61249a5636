package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/NVIDIA-Omniverse/ov-dgxc-portal-sample/internal/app"
	"github.com/NVIDIA-Omniverse/ov-dgxc-portal-sample/internal/auth"
	"github.com/NVIDIA-Omniverse/ov-dgxc-portal-sample/internal/config"
	"github.com/NVIDIA-Omniverse/ov-dgxc-portal-sample/internal/domain"
	apperrors "github.com/NVIDIA-Omniverse/ov-dgxc-portal-sample/internal/errors"
	"github.com/NVIDIA-Omniverse/ov-dgxc-portal-sample/internal/proxy"
)

// SessionService is the application layer surface the handlers drive.
type SessionService interface {
	Start(ctx context.Context, ref domain.FunctionRef, user app.Identity) (*domain.Session, error)
	Stop(ctx context.Context, sessionID string, ref domain.FunctionRef, user app.Identity) error
	Terminate(ctx context.Context, sessionID string) error
	List(ctx context.Context, filter domain.SessionFilter, page, pageSize int) (*domain.Page[*domain.Session], error)
	Attach(ctx context.Context, params app.AttachParams) proxy.CloseStatus
}

// FunctionInventory resolves deployment statuses for catalog entries.
type FunctionInventory interface {
	StatusFor(ctx context.Context, ref domain.FunctionRef) domain.FunctionStatus
}

// HealthChecker is the minimal surface of a backing store for readiness
// probes.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

type Server struct {
	echo      *echo.Echo
	settings  *config.Store
	service   SessionService
	inventory FunctionInventory
	apps      domain.AppRepository
	pages     domain.PageRepository
	verifier  *auth.Verifier
	database  HealthChecker
	cache     HealthChecker
	upgrader  websocket.Upgrader
	startTime time.Time
}

// NewServer wires the HTTP surface. cache may be nil when no shared cache
// is configured.
func NewServer(
	settings *config.Store,
	service SessionService,
	inventory FunctionInventory,
	apps domain.AppRepository,
	pages domain.PageRepository,
	verifier *auth.Verifier,
	database HealthChecker,
	cache HealthChecker,
) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	cfg := settings.Current()
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowCredentials: true,
	}))
	e.Use(apperrors.Middleware())

	srv := &Server{
		echo:      e,
		settings:  settings,
		service:   service,
		inventory: inventory,
		apps:      apps,
		pages:     pages,
		verifier:  verifier,
		database:  database,
		cache:     cache,
		upgrader: websocket.Upgrader{
			// Cross-origin access is enforced by the CORS middleware and
			// cookie scoping, not by the Origin check on the upgrade.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		startTime: time.Now(),
	}
	srv.registerRoutes()
	return srv
}

func (s *Server) Start() error {
	port := s.settings.Current().Port
	slog.Info("Starting server", "port", port)
	return s.echo.Start(fmt.Sprintf(":%s", port))
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
