package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/medadmin/medadmin/internal/platform/auth"
	"github.com/medadmin/medadmin/internal/platform/docstore"
)

// AuditEntry describes one access to a hospital record collection.
type AuditEntry struct {
	UserID     string
	Role       string
	Collection string
	RecordID   string
	Action     string // list, create, update, delete, calculate
	IPAddress  string
	UserAgent  string
	Path       string
	Method     string
	Timestamp  time.Time
	RequestID  string
	StatusCode int
}

// Fields returns the entry as a document suitable for a Store.
func (e AuditEntry) Fields() map[string]any {
	return map[string]any{
		"user_id":    e.UserID,
		"role":       e.Role,
		"collection": e.Collection,
		"record_id":  e.RecordID,
		"action":     e.Action,
		"ip_address": e.IPAddress,
		"user_agent": e.UserAgent,
		"path":       e.Path,
		"method":     e.Method,
		"timestamp":  e.Timestamp.Format(time.RFC3339Nano),
		"request_id": e.RequestID,
		"status":     e.StatusCode,
	}
}

// AuditRecorder persists audit entries.
type AuditRecorder interface {
	RecordAccess(ctx context.Context, entry AuditEntry) error
}

// AuditRecorderFunc is a function adapter for AuditRecorder.
type AuditRecorderFunc func(ctx context.Context, entry AuditEntry) error

func (f AuditRecorderFunc) RecordAccess(ctx context.Context, entry AuditEntry) error {
	return f(ctx, entry)
}

// StoreRecorder writes each entry as a new document in collection.
func StoreRecorder(store docstore.Store, collection string) AuditRecorder {
	return AuditRecorderFunc(func(ctx context.Context, entry AuditEntry) error {
		return store.Set(ctx, collection, docstore.NewID(), entry.Fields())
	})
}

// Audit logs every request against the record collections (/staff,
// /patient, /billing) with the acting session. Reads of the login and
// dashboard pages are not audited.
//
// Mutations are additionally handed to the first recorder, if any. A
// recorder failure is logged and never fails the request.
func Audit(logger zerolog.Logger, recorders ...AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			path := req.URL.Path

			collection, action, recordID, ok := classifyPath(path)
			if !ok {
				return next(c)
			}

			err := next(c)

			entry := AuditEntry{
				Timestamp:  time.Now().UTC(),
				Collection: collection,
				RecordID:   recordID,
				Action:     action,
				Path:       path,
				Method:     req.Method,
				IPAddress:  c.RealIP(),
				UserAgent:  req.UserAgent(),
				StatusCode: c.Response().Status,
			}
			if err != nil {
				var he *echo.HTTPError
				if errors.As(err, &he) {
					entry.StatusCode = he.Code
				} else if !c.Response().Committed {
					entry.StatusCode = http.StatusInternalServerError
				}
			}

			ctx := c.Request().Context()
			entry.UserID = auth.UserIDFromContext(ctx)
			entry.Role = auth.RoleFromContext(ctx)
			if rid, ok := c.Get("request_id").(string); ok {
				entry.RequestID = rid
			}

			if isMutation(action) && len(recorders) > 0 && recorders[0] != nil {
				if recErr := recorders[0].RecordAccess(ctx, entry); recErr != nil {
					logger.Error().Err(recErr).
						Str("request_id", entry.RequestID).
						Msg("failed to record audit entry")
				}
			}

			evt := logger.Info()
			if entry.StatusCode >= http.StatusBadRequest {
				evt = logger.Warn()
			}
			evt.
				Str("type", "record_audit").
				Str("request_id", entry.RequestID).
				Str("user_id", entry.UserID).
				Str("role", entry.Role).
				Str("collection", entry.Collection).
				Str("record_id", entry.RecordID).
				Str("action", entry.Action).
				Str("method", entry.Method).
				Str("path", entry.Path).
				Str("remote_ip", entry.IPAddress).
				Int("status", entry.StatusCode).
				Msg("record_access")

			return err
		}
	}
}

// auditedCollections maps the URL prefix to the backing collection.
var auditedCollections = map[string]string{
	"staff":   "staff",
	"patient": "patients",
	"billing": "billing",
}

// classifyPath parses /{prefix}/{verb}[/{id}] paths.
//
//   - /staff/get_all            -> staff, list
//   - /patient/update/abc       -> patients, update, abc
//   - /billing/calculate/p-1    -> billing, calculate, p-1
func classifyPath(path string) (collection, action, recordID string, ok bool) {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	if len(segments) < 2 {
		return "", "", "", false
	}
	collection, ok = auditedCollections[segments[0]]
	if !ok {
		return "", "", "", false
	}
	action, ok = verbToAction(segments[1])
	if !ok {
		return "", "", "", false
	}
	if len(segments) > 2 {
		recordID = segments[2]
	}
	return collection, action, recordID, true
}

func verbToAction(verb string) (string, bool) {
	switch verb {
	case "get_all":
		return "list", true
	case "add":
		return "create", true
	case "update":
		return "update", true
	case "delete":
		return "delete", true
	case "calculate":
		return "calculate", true
	default:
		return "", false
	}
}

func isMutation(action string) bool {
	return action == "create" || action == "update" || action == "delete"
}
