package records

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/medadmin/medadmin/internal/platform/auth"
	"github.com/medadmin/medadmin/internal/platform/docstore"
)

var adminOnly = Access{
	Read:  []string{auth.RoleStaff},
	Write: []string{auth.RoleAdmin},
}

// newTestServer wires a handler behind a stub that injects a session with
// the given role. An empty role means no session.
func newTestServer(role string) (*echo.Echo, *Service) {
	svc := NewService(docstore.NewMemoryStore(), Staff)
	e := echo.New()
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if role != "" {
				ctx := context.WithValue(c.Request().Context(), auth.SessionKey, &auth.Session{UserID: "u-1", Role: role})
				c.SetRequest(c.Request().WithContext(ctx))
			}
			return next(c)
		}
	})
	NewHandler(svc, "staff", adminOnly).RegisterRoutes(e)
	return e, svc
}

func do(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHandler_AddListDelete(t *testing.T) {
	e, _ := newTestServer(auth.RoleAdmin)

	rec := do(e, http.MethodPost, "/staff/add", `{"name":"Meera","department":"ICU"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("add: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if strings.TrimSpace(rec.Body.String()) != `{"status":"success"}` {
		t.Errorf("add: unexpected body %s", rec.Body.String())
	}

	rec = do(e, http.MethodGet, "/staff/get_all", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", rec.Code)
	}
	var listed []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &listed); err != nil {
		t.Fatalf("list: decoding: %v", err)
	}
	if len(listed) != 1 || listed[0]["name"] != "Meera" || listed[0]["id"] == "" {
		t.Fatalf("list: unexpected payload %v", listed)
	}
	id := listed[0]["id"].(string)

	rec = do(e, http.MethodDelete, "/staff/delete/"+id, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d", rec.Code)
	}
	rec = do(e, http.MethodGet, "/staff/get_all", "")
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("expected empty list after delete, got %s", rec.Body.String())
	}
}

func TestHandler_UpdateMergesAndMissing(t *testing.T) {
	e, svc := newTestServer(auth.RoleAdmin)
	id, _ := svc.Add(context.Background(), map[string]any{"name": "Meera", "department": "ICU"})

	rec := do(e, http.MethodPut, "/staff/update/"+id, `{"department":"ER"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("update: expected 200, got %d", rec.Code)
	}
	recs, _ := svc.ListAll(context.Background())
	if recs[0].String("department") != "ER" || recs[0].String("name") != "Meera" {
		t.Errorf("expected merge, got %+v", recs[0].Fields)
	}

	rec = do(e, http.MethodPut, "/staff/update/unknown", `{"department":"ER"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown id, got %d", rec.Code)
	}
}

func TestHandler_DeleteUnknownSucceeds(t *testing.T) {
	e, _ := newTestServer(auth.RoleAdmin)
	rec := do(e, http.MethodDelete, "/staff/delete/nobody", "")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestHandler_RejectsNonObjectBodies(t *testing.T) {
	e, _ := newTestServer(auth.RoleAdmin)
	for _, body := range []string{`[1,2]`, `"text"`, `null`, `{"a":1}{"b":2}`, `{broken`} {
		rec := do(e, http.MethodPost, "/staff/add", body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %s: expected 400, got %d", body, rec.Code)
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/staff/add", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty body: expected 400, got %d", rec.Code)
	}
}

func TestHandler_Authorization(t *testing.T) {
	tests := []struct {
		role   string
		method string
		path   string
		body   string
		want   int
	}{
		{"", http.MethodGet, "/staff/get_all", "", http.StatusUnauthorized},
		{"", http.MethodPost, "/staff/add", `{}`, http.StatusUnauthorized},
		{auth.RoleStaff, http.MethodGet, "/staff/get_all", "", http.StatusOK},
		{auth.RoleStaff, http.MethodPost, "/staff/add", `{}`, http.StatusForbidden},
		{auth.RoleStaff, http.MethodPut, "/staff/update/x", `{}`, http.StatusForbidden},
		{auth.RoleStaff, http.MethodDelete, "/staff/delete/x", "", http.StatusForbidden},
		{auth.RoleAdmin, http.MethodPost, "/staff/add", `{}`, http.StatusOK},
	}
	for _, tt := range tests {
		e, _ := newTestServer(tt.role)
		rec := do(e, tt.method, tt.path, tt.body)
		if rec.Code != tt.want {
			t.Errorf("%s %s as %q: expected %d, got %d", tt.method, tt.path, tt.role, tt.want, rec.Code)
		}
	}
}
