package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	RoleAdmin = "admin"
	RoleStaff = "staff"
)

// Allowed reports whether role satisfies one of required. Admin satisfies
// every requirement.
func Allowed(role string, required ...string) bool {
	if role == "" {
		return false
	}
	if role == RoleAdmin {
		return true
	}
	for _, r := range required {
		if r == role {
			return true
		}
	}
	return false
}

// RequireSession rejects JSON requests that carry no session.
func RequireSession() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if SessionFromContext(c.Request().Context()) == nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "login required")
			}
			return next(c)
		}
	}
}

// RequireRole returns middleware that checks the session role against roles.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			sess := SessionFromContext(c.Request().Context())
			if sess == nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "login required")
			}
			if !Allowed(sess.Role, roles...) {
				return echo.NewHTTPError(http.StatusForbidden,
					fmt.Sprintf("required role: %s", strings.Join(roles, " or ")))
			}
			return next(c)
		}
	}
}

// RequireView gates HTML pages. Unlike RequireRole the match is exact and a
// failure redirects to loginPath instead of rendering an error. An empty
// role accepts any session.
func RequireView(role, loginPath string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			sess := SessionFromContext(c.Request().Context())
			if sess == nil || (role != "" && sess.Role != role) {
				return c.Redirect(http.StatusFound, loginPath)
			}
			return next(c)
		}
	}
}
