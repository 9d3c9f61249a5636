package auth

import (
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/labstack/echo/v4"
)

// userContextKey is where RequireUser stores the verified token.
const userContextKey = "auth.user"

// tokenCookie is the cookie the frontend stores the ID token in.
const tokenCookie = "id_token"

// tokenFromRequest reads the ID token from the id_token cookie or a bearer
// Authorization header.
func tokenFromRequest(c echo.Context) string {
	if cookie, err := c.Cookie(tokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return token
	}
	return ""
}

// RequireUser only lets authenticated requests through. The verified token
// is stored on the request context for CurrentUser.
func (v *Verifier) RequireUser() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if v.settings.Current().UnsafeDisableAuth {
				c.Set(userContextKey, &IDToken{})
				return next(c)
			}

			token := tokenFromRequest(c)
			if token == "" {
				return echo.NewHTTPError(http.StatusUnauthorized)
			}

			user, err := v.Decode(token)
			if err != nil {
				slog.Warn("Rejected request with an invalid ID token", "error", err)
				return echo.NewHTTPError(http.StatusUnauthorized)
			}

			c.Set(userContextKey, user)
			return next(c)
		}
	}
}

// RequireAdmin only lets members of the configured administrator group
// through. It must run after RequireUser.
func (v *Verifier) RequireAdmin() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cfg := v.settings.Current()
			if cfg.UnsafeDisableAuth {
				return next(c)
			}

			user := CurrentUser(c)
			if user == nil {
				return echo.NewHTTPError(http.StatusUnauthorized)
			}

			if len(user.Groups) == 0 {
				slog.Warn("IdP did not provide any groups for the specified token", "sub", user.Sub)
			}
			if !slices.Contains(user.Groups, cfg.AdminGroup) {
				return echo.NewHTTPError(http.StatusForbidden)
			}
			return next(c)
		}
	}
}

// CurrentUser returns the verified token stored by RequireUser, or nil.
func CurrentUser(c echo.Context) *IDToken {
	user, _ := c.Get(userContextKey).(*IDToken)
	return user
}
