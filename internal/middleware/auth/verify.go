package auth

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"app/internal/tokens"
)

// Context keys set by VerifyJWT for downstream handlers.
const (
	ContextUsername = "username"
	ContextRoles    = "roles"
)

// Gate verifies bearer access tokens. A missing header is 401; a header
// that is present but carries an invalid or expired token is 403. The two
// cases stay distinct for client compatibility.
type Gate struct {
	Access tokens.Codec
}

func (g *Gate) VerifyJWT(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		raw, err := bearerToken(c)
		if err != nil {
			return err
		}

		claims, err := g.Access.ParseAccess(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusForbidden, "invalid or expired token")
		}

		setIdentity(c, claims.UserInfo)
		return next(c)
	}
}

// RequireRoles returns a middleware that passes when the verified identity
// holds at least one of the allowed roles. Compose after VerifyJWT.
func RequireRoles(allowed ...int) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			_, roles := Identity(c)
			for _, have := range roles {
				for _, want := range allowed {
					if have == want {
						return next(c)
					}
				}
			}
			return echo.NewHTTPError(http.StatusForbidden, "insufficient permissions")
		}
	}
}

// Identity returns the username and role set placed by VerifyJWT.
func Identity(c echo.Context) (string, []int) {
	username, _ := c.Get(ContextUsername).(string)
	roles, _ := c.Get(ContextRoles).([]int)
	return username, roles
}

func setIdentity(c echo.Context, info tokens.UserInfo) {
	c.Set(ContextUsername, info.Username)
	c.Set(ContextRoles, info.Roles)
}

func bearerToken(c echo.Context) (string, error) {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if header == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "authorization header missing")
	}

	raw := strings.TrimSpace(strings.TrimPrefix(header, "Bearer"))
	if raw == "" || raw == header {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "bearer token missing")
	}
	return raw, nil
}
