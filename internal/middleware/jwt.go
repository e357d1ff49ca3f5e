// Package middleware holds the Echo middleware shared by the API routes.
package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/recital-program/internal/auth"
	"github.com/iliyamo/recital-program/internal/model"
)

const sessionKey = "session"

// JWTAuth validates a Bearer access token and stores the session it carries
// in the request context.  Requests without a valid token get a 401.
func JWTAuth(iss *auth.Issuer) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, ok := bearer(c)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			s, err := iss.ParseAccessToken(raw)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}
			c.Set(sessionKey, s)
			return next(c)
		}
	}
}

// OptionalJWT is JWTAuth for routes that also serve callers without a
// session.  A token that is present but invalid is still rejected.
func OptionalJWT(iss *auth.Issuer) echo.MiddlewareFunc {
	required := JWTAuth(iss)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		withSession := required(next)
		return func(c echo.Context) error {
			if c.Request().Header.Get(echo.HeaderAuthorization) == "" {
				return next(c)
			}
			return withSession(c)
		}
	}
}

// SessionFrom returns the session stored by JWTAuth or OptionalJWT.
func SessionFrom(c echo.Context) (model.Session, bool) {
	s, ok := c.Get(sessionKey).(model.Session)
	return s, ok
}

func bearer(c echo.Context) (string, bool) {
	h := c.Request().Header.Get(echo.HeaderAuthorization)
	if !strings.HasPrefix(h, "Bearer ") {
		return "", false
	}
	raw := strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	return raw, raw != ""
}
