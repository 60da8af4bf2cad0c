package rbac

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ashaassist/portal/identity"
	"github.com/ashaassist/portal/session"
)

// ContextKey is the echo context key holding the session.State seen by the
// middleware.
const ContextKey = "session"

// Middleware provides role-based access control for Echo.
type Middleware struct {
	strategy Strategy
	session  *session.Manager
}

// NewMiddleware creates a middleware. A nil strategy uses ProfileStrategy.
func NewMiddleware(strategy Strategy, sm *session.Manager) *Middleware {
	if strategy == nil {
		strategy = ProfileStrategy{}
	}
	return &Middleware{strategy: strategy, session: sm}
}

// RequireSession rejects requests without an authenticated session and
// stores the state in the context.
func (m *Middleware) RequireSession(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		s := m.session.Current()
		if !s.Authenticated() {
			return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
		}
		c.Set(ContextKey, s)
		return next(c)
	}
}

// RequireRole returns an Echo middleware that requires one of roles.
func (m *Middleware) RequireRole(roles ...identity.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return m.RequireSession(func(c echo.Context) error {
			s := c.Get(ContextKey).(session.State)
			for _, r := range roles {
				if m.strategy.HasRole(s, r) {
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusForbidden, "forbidden: missing required role")
		})
	}
}

// RequireArea rejects requests whose path lies in an area the session's role
// may not view.
func (m *Middleware) RequireArea(next echo.HandlerFunc) echo.HandlerFunc {
	return m.RequireSession(func(c echo.Context) error {
		s := c.Get(ContextKey).(session.State)
		if !m.strategy.CanView(s, c.Request().URL.Path) {
			return echo.NewHTTPError(http.StatusForbidden, "forbidden: area not available for this role")
		}
		return next(c)
	})
}
