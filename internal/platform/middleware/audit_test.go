package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/medadmin/medadmin/internal/platform/auth"
	"github.com/medadmin/medadmin/internal/platform/docstore"
)

// mockRecorder collects audit entries for assertions.
type mockRecorder struct {
	mu      sync.Mutex
	entries []AuditEntry
	err     error
}

func (m *mockRecorder) RecordAccess(_ context.Context, entry AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return m.err
}

func (m *mockRecorder) last() AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[len(m.entries)-1]
}

func (m *mockRecorder) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func newTestContext(method, path string, opts ...func(*http.Request)) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, path, nil)
	for _, opt := range opts {
		opt(req)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func withSession(userID, role string) func(*http.Request) {
	return func(req *http.Request) {
		ctx := context.WithValue(req.Context(), auth.SessionKey, &auth.Session{UserID: userID, Role: role})
		*req = *req.WithContext(ctx)
	}
}

func okHandler(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func testLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).Level(zerolog.Disabled)
}

func TestAudit_RecordsCreate(t *testing.T) {
	rec := &mockRecorder{}
	c, _ := newTestContext(http.MethodPost, "/patient/add", withSession("uid-1", auth.RoleStaff))
	c.Set("request_id", "req-1")

	if err := Audit(testLogger(), rec)(okHandler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.count() != 1 {
		t.Fatalf("expected 1 entry, got %d", rec.count())
	}
	got := rec.last()
	if got.Collection != "patients" || got.Action != "create" {
		t.Errorf("unexpected entry: %+v", got)
	}
	if got.UserID != "uid-1" || got.Role != auth.RoleStaff {
		t.Errorf("expected session identity on entry, got %s/%s", got.UserID, got.Role)
	}
	if got.RequestID != "req-1" || got.StatusCode != http.StatusOK {
		t.Errorf("unexpected request id/status: %s/%d", got.RequestID, got.StatusCode)
	}
}

func TestAudit_DeleteCarriesRecordID(t *testing.T) {
	rec := &mockRecorder{}
	c, _ := newTestContext(http.MethodDelete, "/staff/delete/s-42", withSession("uid-1", auth.RoleAdmin))

	Audit(testLogger(), rec)(okHandler)(c)

	got := rec.last()
	if got.Collection != "staff" || got.Action != "delete" || got.RecordID != "s-42" {
		t.Errorf("unexpected entry: %+v", got)
	}
}

func TestAudit_ReadsAreLoggedNotRecorded(t *testing.T) {
	rec := &mockRecorder{}
	for _, path := range []string{"/billing/get_all", "/billing/calculate/p-1"} {
		c, _ := newTestContext(http.MethodGet, path, withSession("uid-1", auth.RoleStaff))
		if err := Audit(testLogger(), rec)(okHandler)(c); err != nil {
			t.Fatalf("%s: unexpected error: %v", path, err)
		}
	}
	if rec.count() != 0 {
		t.Errorf("expected reads to skip the recorder, got %d entries", rec.count())
	}
}

func TestAudit_SkipsOtherPaths(t *testing.T) {
	rec := &mockRecorder{}
	for _, path := range []string{"/login", "/admin_dashboard", "/health", "/staff", "/staff/unknown"} {
		c, _ := newTestContext(http.MethodPost, path)
		Audit(testLogger(), rec)(okHandler)(c)
	}
	if rec.count() != 0 {
		t.Errorf("expected no entries, got %d", rec.count())
	}
}

func TestAudit_CapturesHandlerErrorStatus(t *testing.T) {
	rec := &mockRecorder{}
	c, _ := newTestContext(http.MethodPut, "/billing/update/missing", withSession("uid-1", auth.RoleAdmin))

	failing := func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "record not found")
	}
	err := Audit(testLogger(), rec)(failing)(c)
	if err == nil {
		t.Fatal("expected handler error to propagate")
	}
	if rec.last().StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 on entry, got %d", rec.last().StatusCode)
	}
}

func TestAudit_PlainHandlerErrorIsServerError(t *testing.T) {
	rec := &mockRecorder{}
	c, _ := newTestContext(http.MethodPost, "/patient/add", withSession("uid-1", auth.RoleStaff))

	failing := func(c echo.Context) error {
		return errors.New("store unavailable")
	}
	if err := Audit(testLogger(), rec)(failing)(c); err == nil {
		t.Fatal("expected handler error to propagate")
	}
	if rec.last().StatusCode != http.StatusInternalServerError {
		t.Errorf("expected 500 on entry, got %d", rec.last().StatusCode)
	}
}

func TestAudit_RecorderErrorDoesNotBreakRequest(t *testing.T) {
	rec := &mockRecorder{err: errors.New("store down")}
	c, httpRec := newTestContext(http.MethodPost, "/staff/add", withSession("uid-1", auth.RoleAdmin))

	if err := Audit(testLogger(), rec)(okHandler)(c); err != nil {
		t.Fatalf("expected recorder failure to be swallowed, got %v", err)
	}
	if httpRec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", httpRec.Code)
	}
}

func TestAudit_NoRecorder(t *testing.T) {
	c, _ := newTestContext(http.MethodPost, "/staff/add")
	if err := Audit(testLogger())(okHandler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestStoreRecorder(t *testing.T) {
	store := docstore.NewMemoryStore()
	c, _ := newTestContext(http.MethodPost, "/patient/add", withSession("uid-9", auth.RoleStaff))

	if err := Audit(testLogger(), StoreRecorder(store, "audit_log"))(okHandler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	docs, err := store.List(context.Background(), "audit_log")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected 1 audit document, got %d", len(docs))
	}
	if docs[0].String("user_id") != "uid-9" || docs[0].String("action") != "create" {
		t.Errorf("unexpected audit document: %+v", docs[0].Fields)
	}
}

func TestClassifyPath(t *testing.T) {
	tests := []struct {
		path                       string
		collection, action, record string
		ok                         bool
	}{
		{"/staff/get_all", "staff", "list", "", true},
		{"/patient/add", "patients", "create", "", true},
		{"/patient/update/p-1", "patients", "update", "p-1", true},
		{"/billing/delete/b-1", "billing", "delete", "b-1", true},
		{"/billing/calculate/p-2", "billing", "calculate", "p-2", true},
		{"/login", "", "", "", false},
		{"/staff_management", "", "", "", false},
		{"/staff/bogus", "", "", "", false},
	}
	for _, tt := range tests {
		col, act, id, ok := classifyPath(tt.path)
		if ok != tt.ok || col != tt.collection || act != tt.action || id != tt.record {
			t.Errorf("classifyPath(%q) = %q, %q, %q, %v", tt.path, col, act, id, ok)
		}
	}
}
