package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

// ErrRequestTimeout is returned when a handler gives up on an expired
// request context.
var ErrRequestTimeout = echo.NewHTTPError(http.StatusGatewayTimeout, "request processing exceeded the allowed time limit")

// RequestTimeout puts a deadline on each request context. Handlers that
// return context.DeadlineExceeded are answered with 504. The WebSocket
// endpoint is long-lived and skipped; the PHP proxy carries its own
// transport timeout.
func RequestTimeout(timeout time.Duration) echo.MiddlewareFunc {
	return echomw.ContextTimeoutWithConfig(echomw.ContextTimeoutConfig{
		Timeout: timeout,
		Skipper: func(c echo.Context) bool {
			return skipTimeout(c.Request().URL.Path)
		},
		ErrorHandler: func(err error, c echo.Context) error {
			if errors.Is(err, context.DeadlineExceeded) {
				if c.Response().Committed {
					return nil
				}
				return ErrRequestTimeout
			}
			return err
		},
	})
}

func skipTimeout(path string) bool {
	return path == "/ws" || strings.HasPrefix(path, "/ws/") || strings.HasPrefix(path, "/php/")
}
