package server

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/NVIDIA-Omniverse/ov-dgxc-portal-sample/internal/auth"
)

const (
	// Session starts provision remote instances, so they are throttled much
	// harder than plain API traffic.
	startRatePerSecond = 1
	startBurst         = 5
	rateLimiterExpiry  = 5 * time.Minute
)

// startRateLimiter throttles session starts per user, falling back to the
// client IP when the request carries no identity.
func (s *Server) startRateLimiter() echo.MiddlewareFunc {
	store := middleware.NewRateLimiterMemoryStoreWithConfig(
		middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(startRatePerSecond),
			Burst:     startBurst,
			ExpiresIn: rateLimiterExpiry,
		},
	)
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		IdentifierExtractor: func(c echo.Context) (string, error) {
			if user := auth.CurrentUser(c); user != nil && user.Sub != "" {
				return user.Sub, nil
			}
			return c.RealIP(), nil
		},
		Store: store,
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return c.JSON(http.StatusTooManyRequests, map[string]string{
				"detail": "Too many session requests.",
			})
		},
	})
}
