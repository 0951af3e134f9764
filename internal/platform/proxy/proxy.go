// Package proxy forwards /php/* requests to the PHP backend that owns
// patients, appointments and accounts.
package proxy

import (
	"errors"
	"fmt"
	"maps"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"
	"unicode"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
)

// Prefix is the route prefix stripped before forwarding.
const Prefix = "/php"

type Config struct {
	// Target is the PHP API base URL, e.g. http://php.internal/api.
	Target  string
	Timeout time.Duration
	Logger  zerolog.Logger
}

type Proxy struct {
	target *url.URL
	mw     echo.MiddlewareFunc
	logger zerolog.Logger
}

// New builds a proxy to cfg.Target.
func New(cfg Config) (*Proxy, error) {
	target, err := url.Parse(cfg.Target)
	if err != nil {
		return nil, fmt.Errorf("parse PHP API url: %w", err)
	}
	if !target.IsAbs() || target.Host == "" {
		return nil, fmt.Errorf("PHP API url must be absolute, got %q", cfg.Target)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	p := &Proxy{target: target, logger: cfg.Logger}
	p.mw = echomw.ProxyWithConfig(echomw.ProxyConfig{
		Balancer: echomw.NewRoundRobinBalancer([]*echomw.ProxyTarget{{URL: target}}),
		Rewrite: map[string]string{
			Prefix + "/*": "/$1",
		},
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
			ResponseHeaderTimeout: timeout,
			IdleConnTimeout:       90 * time.Second,
			MaxIdleConnsPerHost:   16,
		},
		ErrorHandler: p.handleError,
	})
	return p, nil
}

// RegisterRoutes mounts the proxy on /php/*.
func (p *Proxy) RegisterRoutes(e *echo.Echo) {
	e.Any(Prefix+"/*", echo.NotFoundHandler, p.reshapeQuery, p.mw)
}

// reshapeQuery rewrites camelCase query keys to the snake_case the PHP API
// expects.
func (p *Proxy) reshapeQuery(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		if req.URL.RawQuery != "" {
			req.URL.RawQuery = SnakeCaseQuery(req.URL.Query()).Encode()
		}
		return next(c)
	}
}

func (p *Proxy) handleError(c echo.Context, err error) error {
	rid, _ := c.Get("request_id").(string)
	p.logger.Warn().Err(err).
		Str("request_id", rid).
		Str("path", c.Request().URL.Path).
		Str("target", p.target.Host).
		Msg("php proxy request failed")

	code := http.StatusBadGateway
	var he *echo.HTTPError
	if errors.As(err, &he) && he.Code >= http.StatusInternalServerError {
		code = he.Code
	}
	return echo.NewHTTPError(code, "php backend unavailable")
}

// SnakeCaseQuery returns q with every key converted by SnakeCase. Values of
// keys that collide after conversion are merged in sorted order of the
// original keys.
func SnakeCaseQuery(q url.Values) url.Values {
	out := make(url.Values, len(q))
	for _, k := range slices.Sorted(maps.Keys(q)) {
		key := SnakeCase(k)
		out[key] = append(out[key], q[k]...)
	}
	return out
}

// SnakeCase converts camelCase or PascalCase to snake_case. Acronyms stay
// together: patientID -> patient_id, HTTPStatus -> http_status.
func SnakeCase(s string) string {
	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(s) + 4)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
					b.WriteByte('_')
				}
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
