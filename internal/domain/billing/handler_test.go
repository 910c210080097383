package billing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/medadmin/medadmin/internal/domain/records"
	"github.com/medadmin/medadmin/internal/platform/auth"
	"github.com/medadmin/medadmin/internal/platform/docstore"
)

func newTestHandler(t *testing.T) (*Handler, *echo.Echo, docstore.Store) {
	t.Helper()
	store := docstore.NewMemoryStore()
	put(t, store, records.Billing, "r-1", rate("physio", "general", 500.0, 200.0))
	return NewHandler(newTestService(store)), echo.New(), store
}

func calculateRequest(e *echo.Echo, patientID string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodGet, "/billing/calculate/"+patientID, nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("patientId")
	c.SetParamValues(patientID)
	return c, rec
}

func TestHandler_Calculate(t *testing.T) {
	h, e, store := newTestHandler(t)
	put(t, store, records.Patients, "p-1", map[string]any{
		"name": "Anil", "treatment": "Physio", "room": "General", "no_of_days": "3",
	})

	c, rec := calculateRequest(e, "p-1")
	if err := h.Calculate(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Patient    string           `json:"patient"`
		Treatments []map[string]any `json:"treatments"`
		Days       int              `json:"days"`
		Total      float64          `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if body.Patient != "Anil" || body.Days != 3 || body.Total != 1100 || len(body.Treatments) != 1 {
		t.Errorf("unexpected bill: %+v", body)
	}
}

func TestHandler_Calculate_Errors(t *testing.T) {
	h, e, store := newTestHandler(t)
	put(t, store, records.Patients, "mismatch", map[string]any{"treatment": "a,b", "room": "c"})
	put(t, store, records.Patients, "norate", map[string]any{"treatment": "mri", "room": "icu"})
	put(t, store, records.Billing, "r-bad", rate("xray", "opd", "n/a", 1.0))
	put(t, store, records.Patients, "malformed", map[string]any{"treatment": "xray", "room": "opd"})

	tests := []struct {
		id   string
		want int
	}{
		{"missing", http.StatusNotFound},
		{"mismatch", http.StatusBadRequest},
		{"malformed", http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		c, _ := calculateRequest(e, tt.id)
		err := h.Calculate(c)
		he, ok := err.(*echo.HTTPError)
		if !ok || he.Code != tt.want {
			t.Errorf("%s: expected %d, got %v", tt.id, tt.want, err)
		}
	}

	c, rec := calculateRequest(e, "norate")
	if err := h.Calculate(c); err != nil {
		t.Fatalf("norate: unexpected error: %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Fatalf("norate: expected 404, got %d", rec.Code)
	}
	var body struct {
		Error   string `json:"error"`
		Missing []Pair `json:"missing"`
	}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Error != "No billing found for mri + icu" {
		t.Errorf("norate: unexpected message %q", body.Error)
	}
	if len(body.Missing) != 1 || body.Missing[0] != (Pair{"mri", "icu"}) {
		t.Errorf("norate: unexpected missing list %v", body.Missing)
	}
}

func TestHandler_RegisterRoutesRequiresSession(t *testing.T) {
	h, e, store := newTestHandler(t)
	put(t, store, records.Patients, "p-1", map[string]any{"treatment": "physio", "room": "general"})
	h.RegisterRoutes(e)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/billing/calculate/p-1", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without session, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/billing/calculate/p-1", nil)
	req = req.WithContext(context.WithValue(req.Context(), auth.SessionKey, &auth.Session{UserID: "u", Role: auth.RoleStaff}))
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 for staff, got %d", rec.Code)
	}
}
