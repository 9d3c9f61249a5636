package server

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) registerRoutes() {
	// Observability endpoints, no auth required.
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	root := s.echo.Group(s.settings.Current().RootPath)
	authenticated := s.verifier.RequireUser()
	admin := s.verifier.RequireAdmin()

	// The sign_in path shape is dictated by the streaming client library,
	// which addresses /sign_in with the function pair in front of it.
	root.POST("/sessions/:function_id/:function_version_id/sign_in", s.handleStartSession, authenticated, s.startRateLimiter())
	root.GET("/sessions/:function_id/:function_version_id/sign_in", s.handleConnectSession, authenticated)
	root.DELETE("/sessions/:function_id/:function_version_id/sign_in", s.handleStopSession, authenticated)

	root.GET("/sessions/", s.handleListSessions, authenticated, admin)
	root.DELETE("/sessions/:session_id/terminate", s.handleTerminateSession, authenticated, admin)

	root.GET("/apps/", s.handleListApps, authenticated)
	root.GET("/apps/:app_id", s.handleGetApp, authenticated)
	root.PUT("/apps/:app_id", s.handlePublishApp, authenticated, admin)
	root.DELETE("/apps/:app_id", s.handleDeleteApp, authenticated, admin)

	root.GET("/pages/", s.handleListPages, authenticated)
	root.PUT("/pages/", s.handleSetPages, authenticated, admin)
}
