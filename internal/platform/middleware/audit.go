package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/medq/medq/internal/platform/auth"
)

// AuditEntry records who changed the queue and how.
type AuditEntry struct {
	UserID     string
	UserRoles  []string
	Action     string
	EntryID    string
	PatientID  string
	Method     string
	Path       string
	IPAddress  string
	RequestID  string
	StatusCode int
	Timestamp  time.Time
}

// Audit logs every state-changing request under /api/v1/ after the handler
// runs. Reads are not audited.
func Audit(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !isAuditable(req.Method, req.URL.Path) {
				return next(c)
			}

			err := next(c)

			entry := buildAuditEntry(c, err)
			logger.Info().
				Str("type", "queue_audit").
				Str("request_id", entry.RequestID).
				Str("user_id", entry.UserID).
				Strs("user_roles", entry.UserRoles).
				Str("action", entry.Action).
				Str("entry_id", entry.EntryID).
				Str("patient_id", entry.PatientID).
				Str("method", entry.Method).
				Str("path", entry.Path).
				Str("remote_ip", entry.IPAddress).
				Int("status", entry.StatusCode).
				Msg("queue_change")

			return err
		}
	}
}

func buildAuditEntry(c echo.Context, err error) AuditEntry {
	req := c.Request()
	ctx := req.Context()

	entry := AuditEntry{
		UserID:     auth.UserIDFromContext(ctx),
		UserRoles:  auth.RolesFromContext(ctx),
		Action:     auditAction(req.Method, c.Path()),
		EntryID:    c.Param("id"),
		PatientID:  c.Param("patientId"),
		Method:     req.Method,
		Path:       req.URL.Path,
		IPAddress:  c.RealIP(),
		StatusCode: c.Response().Status,
		Timestamp:  time.Now().UTC(),
	}
	if err != nil && !c.Response().Committed {
		entry.StatusCode = http.StatusInternalServerError
		var he *echo.HTTPError
		if errors.As(err, &he) {
			entry.StatusCode = he.Code
		}
	}
	if rid, ok := c.Get("request_id").(string); ok {
		entry.RequestID = rid
	}
	return entry
}

func isAuditable(method, path string) bool {
	if method == http.MethodGet || method == http.MethodHead || method == http.MethodOptions {
		return false
	}
	return strings.HasPrefix(path, "/api/v1/")
}

// auditAction names the operation from the matched route, e.g.
// POST /api/v1/queue/:id/start -> "start".
func auditAction(method, route string) string {
	segments := strings.Split(strings.Trim(route, "/"), "/")
	last := segments[len(segments)-1]
	switch {
	case method == http.MethodDelete && strings.HasPrefix(route, "/api/v1/notifications"):
		return "dismiss"
	case method == http.MethodDelete:
		return "remove"
	case method == http.MethodPost && route == "/api/v1/queue":
		return "join"
	case last == "" || strings.HasPrefix(last, ":"):
		return strings.ToLower(method)
	default:
		return last
	}
}
