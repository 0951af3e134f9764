package auth

import (
	"github.com/labstack/echo/v4"
)

// publicPaths lists route paths that bypass authentication. /php/* carries
// the PHP backend's own token through to the backend.
var publicPaths = map[string]bool{
	"/health":  true,
	"/metrics": true,
	"/php/*":   true,
}

// AuthSkipper returns true for requests whose route should skip
// authentication. Pass it as JWTConfig.Skipper.
func AuthSkipper(c echo.Context) bool {
	return publicPaths[c.Path()]
}

// IsPublicPath reports whether the given route path bypasses auth.
func IsPublicPath(path string) bool {
	return publicPaths[path]
}
