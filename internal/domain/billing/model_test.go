package billing

import (
	"encoding/json"
	"math"
	"reflect"
	"testing"

	"github.com/medadmin/medadmin/internal/platform/docstore"
)

func TestParseDays(t *testing.T) {
	tests := []struct {
		in   any
		want int
	}{
		{nil, 1},
		{"3", 3},
		{" 4 ", 4},
		{"abc", 1},
		{"2.5", 1},
		{"", 1},
		{"-2", -2},
		{"0", 0},
		{3.0, 3},
		{2.5, 1},
		{-1.0, -1},
		{int64(7), 7},
		{int32(5), 5},
		{json.Number("6"), 6},
		{true, 1},
		{math.Inf(1), 1},
	}
	for _, tt := range tests {
		if got := parseDays(tt.in); got != tt.want {
			t.Errorf("parseDays(%#v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in     any
		want   float64
		wantOK bool
	}{
		{500.0, 500, true},
		{int64(200), 200, true},
		{int32(12), 12, true},
		{"199.5", 199.5, true},
		{" 10 ", 10, true},
		{json.Number("42"), 42, true},
		{"ten", 0, false},
		{nil, 0, false},
		{true, 0, false},
		{"NaN", 0, false},
	}
	for _, tt := range tests {
		got, ok := parseNumber(tt.in)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("parseNumber(%#v) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestPatientFromRecord(t *testing.T) {
	rec := &docstore.Record{ID: "p-1", Fields: map[string]any{
		"name":       "Kavya",
		"treatment":  " Physio , X-Ray",
		"room":       "General,ICU ",
		"no_of_days": "2",
	}}
	p := PatientFromRecord(rec)

	if p.ID != "p-1" || p.Name != "Kavya" || p.Days != 2 {
		t.Errorf("unexpected patient: %+v", p)
	}
	if !reflect.DeepEqual(p.Treatments, []string{"physio", "x-ray"}) {
		t.Errorf("unexpected treatments: %v", p.Treatments)
	}
	if !reflect.DeepEqual(p.Rooms, []string{"general", "icu"}) {
		t.Errorf("unexpected rooms: %v", p.Rooms)
	}
}

func TestPatientFromRecord_BlankLists(t *testing.T) {
	p := PatientFromRecord(&docstore.Record{ID: "p", Fields: map[string]any{"treatment": "  "}})
	if !reflect.DeepEqual(p.Treatments, []string{""}) || !reflect.DeepEqual(p.Rooms, []string{""}) {
		t.Errorf("expected single blank entries, got %q / %q", p.Treatments, p.Rooms)
	}
	if p.Days != 1 {
		t.Errorf("expected default of 1 day, got %d", p.Days)
	}
}

func TestPatientFromRecord_MissingRoom(t *testing.T) {
	p := PatientFromRecord(&docstore.Record{ID: "p", Fields: map[string]any{"treatment": "physio"}})
	if !reflect.DeepEqual(p.Treatments, []string{"physio"}) || !reflect.DeepEqual(p.Rooms, []string{""}) {
		t.Errorf("expected physio paired with a blank room, got %q / %q", p.Treatments, p.Rooms)
	}
}

func TestNoRateError_Message(t *testing.T) {
	err := &NoRateError{Pairs: []Pair{{"physio", "icu"}, {"xray", "general"}}}
	want := "no billing found for physio + icu, xray + general"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}
