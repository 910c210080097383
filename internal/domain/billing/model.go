package billing

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/medadmin/medadmin/internal/platform/docstore"
)

// Patient is the part of a patient record the calculator reads.
type Patient struct {
	ID         string
	Name       string
	Treatments []string
	Rooms      []string
	Days       int
}

// PatientFromRecord decodes a stored patient. Treatment and room lists are
// split on commas, trimmed and lower-cased. A missing or blank field is a
// one-element list holding "", so it still has to pair up and find a rate.
func PatientFromRecord(rec *docstore.Record) Patient {
	return Patient{
		ID:         rec.ID,
		Name:       rec.String("name"),
		Treatments: splitList(rec.String("treatment")),
		Rooms:      splitList(rec.String("room")),
		Days:       parseDays(rec.Fields["no_of_days"]),
	}
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	for i, p := range parts {
		parts[i] = normalize(p)
	}
	return parts
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// parseDays accepts an integral number or a numeric string, used as given
// including zero and negative counts. Anything else yields one day.
func parseDays(v any) int {
	const fallback = 1

	var n int64
	switch t := v.(type) {
	case int:
		n = int64(t)
	case int32:
		n = int64(t)
	case int64:
		n = t
	case float64:
		if t != math.Trunc(t) || math.IsInf(t, 0) || t > math.MaxInt32 || t < math.MinInt32 {
			return fallback
		}
		n = int64(t)
	case json.Number:
		i, err := t.Int64()
		if err != nil {
			return fallback
		}
		n = i
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil {
			return fallback
		}
		n = i
	default:
		return fallback
	}
	if n < math.MinInt32 || n > math.MaxInt32 {
		return fallback
	}
	return int(n)
}

// parseNumber reads a cost stored as a number or a numeric string.
func parseNumber(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int32:
		f = float64(t)
	case int64:
		f = float64(t)
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Pair is one treatment and the room it was given in.
type Pair struct {
	Treatment string `json:"treatment"`
	Room      string `json:"room"`
}

// rateKey indexes billing rates case-insensitively.
type rateKey struct {
	treatment string
	roomType  string
}

// Bill is the calculation result. Treatments holds the matched rate
// records in the patient's order, ids included.
type Bill struct {
	Patient    string           `json:"patient"`
	Treatments []map[string]any `json:"treatments"`
	Days       int              `json:"days"`
	Total      float64          `json:"total"`
}
