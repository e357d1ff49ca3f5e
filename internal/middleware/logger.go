package middleware

import (
	"time"

	"github.com/charmbracelet/log"
	"github.com/labstack/echo/v4"
)

// RequestLogger logs one line per request with method, path, status and
// latency.  Server errors are logged at error level.
func RequestLogger(logger *log.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			status := c.Response().Status
			kv := []any{
				"method", c.Request().Method,
				"path", c.Request().URL.Path,
				"status", status,
				"latency", time.Since(start).Round(time.Microsecond),
				"ip", c.RealIP(),
			}
			switch {
			case status >= 500:
				logger.Error("request", append(kv, "err", err)...)
			case status >= 400:
				logger.Warn("request", kv...)
			default:
				logger.Info("request", kv...)
			}
			return nil
		}
	}
}
