package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/Bernardyao/HMS-backend-sub001/internal/platform/auth"
)

// AuditEntry captures who performed which billing/clinical action, when,
// from where, and with what result. It is the HTTP-side complement of the
// append-only status history rows the state machines write.
type AuditEntry struct {
	OperatorID   string
	OperatorName string
	Roles        []string
	Entity       string
	Action       string // read, create, update, delete
	Path         string
	Method       string
	IPAddress    string
	RequestID    string
	StatusCode   int
	Timestamp    time.Time
}

// AuditRecorder persists audit entries. The middleware falls back to
// structured logging when no recorder is supplied, so tests and small
// deployments need no extra wiring.
type AuditRecorder interface {
	RecordAccess(entry AuditEntry) error
}

// AuditRecorderFunc adapts a function to AuditRecorder.
type AuditRecorderFunc func(entry AuditEntry) error

func (f AuditRecorderFunc) RecordAccess(entry AuditEntry) error { return f(entry) }

// Audit logs every /api/v1 access with the authenticated operator attached.
func Audit(logger zerolog.Logger, recorders ...AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			path := req.URL.Path
			if !strings.HasPrefix(path, "/api/v1/") {
				return next(c)
			}

			err := next(c)

			ctx := req.Context()
			entry := AuditEntry{
				OperatorID:   auth.OperatorIDFromContext(ctx),
				OperatorName: auth.OperatorNameFromContext(ctx),
				Roles:        auth.RolesFromContext(ctx),
				Entity:       entityFromPath(path),
				Action:       methodToAction(req.Method),
				Path:         path,
				Method:       req.Method,
				IPAddress:    c.RealIP(),
				StatusCode:   c.Response().Status,
				Timestamp:    time.Now().UTC(),
			}
			if rid, ok := c.Get("request_id").(string); ok {
				entry.RequestID = rid
			}

			if len(recorders) > 0 && recorders[0] != nil {
				if recErr := recorders[0].RecordAccess(entry); recErr != nil {
					logger.Error().Err(recErr).
						Str("request_id", entry.RequestID).
						Msg("failed to record audit entry")
				}
			}

			logger.Info().
				Str("type", "audit").
				Str("request_id", entry.RequestID).
				Str("operator_id", entry.OperatorID).
				Str("operator_name", entry.OperatorName).
				Strs("roles", entry.Roles).
				Str("entity", entry.Entity).
				Str("action", entry.Action).
				Str("method", entry.Method).
				Str("path", entry.Path).
				Str("remote_ip", entry.IPAddress).
				Int("status", entry.StatusCode).
				Msg("access")

			return err
		}
	}
}

func methodToAction(method string) string {
	switch method {
	case http.MethodGet, http.MethodHead:
		return "read"
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return "read"
	}
}

// entityFromPath extracts the first path segment after /api/v1/, e.g.
// /api/v1/charges/123/pay -> charges.
func entityFromPath(path string) string {
	segments := strings.Split(strings.TrimPrefix(path, "/api/v1/"), "/")
	if len(segments) > 0 && segments[0] != "" {
		return segments[0]
	}
	return "unknown"
}
