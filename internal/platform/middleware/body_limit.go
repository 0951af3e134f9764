package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/bytes"
)

// DefaultBodyLimit applies when the configured limit cannot be parsed.
const DefaultBodyLimit = "1M"

// ValidBodyLimit reports whether limit is a positive size such as "64K",
// "1MB" or "2048".
func ValidBodyLimit(limit string) bool {
	n, err := bytes.Parse(strings.TrimSpace(limit))
	return err == nil && n > 0
}

// BodyLimit rejects request bodies larger than limit with 413. Proxied PHP
// requests are streamed through untouched; the PHP API enforces its own
// upload limits.
func BodyLimit(limit string) echo.MiddlewareFunc {
	limit = strings.TrimSpace(limit)
	if !ValidBodyLimit(limit) {
		limit = DefaultBodyLimit
	}
	return echomw.BodyLimitWithConfig(echomw.BodyLimitConfig{
		Limit: limit,
		Skipper: func(c echo.Context) bool {
			return strings.HasPrefix(c.Request().URL.Path, "/php/")
		},
	})
}
