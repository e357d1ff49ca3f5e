package middleware

import "github.com/labstack/echo/v4"

// subjectOf identifies the caller for rate limiting: the session subject,
// or "anon" when the request carries no session.
func subjectOf(c echo.Context) string {
	if s, ok := SessionFrom(c); ok && s.Subject != "" {
		return s.Subject
	}
	return "anon"
}
