// Package docstore is the record store: named collections of documents, each
// an id-keyed map of arbitrary fields. Drivers exist for PostgreSQL (JSONB),
// MongoDB, SQLite and an in-process map used by tests and local runs.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrNotFound is returned by Get and Update when the document does not exist.
var ErrNotFound = errors.New("document not found")

// Store is implemented by every driver. List returns documents in the
// driver's stable order; callers that pick "the first match" rely on it.
type Store interface {
	Get(ctx context.Context, collection, id string) (*Record, error)
	Set(ctx context.Context, collection, id string, fields map[string]any) error
	Update(ctx context.Context, collection, id string, fields map[string]any) error
	Delete(ctx context.Context, collection, id string) error
	List(ctx context.Context, collection string) ([]*Record, error)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Record is a stored document and its identifier.
type Record struct {
	ID     string
	Fields map[string]any
}

// String returns the field as a string, or "" when absent or not a string.
func (r *Record) String(key string) string {
	s, _ := r.Fields[key].(string)
	return s
}

// Flatten merges the identifier into the fields. The document id wins over a
// stored "id" field.
func (r *Record) Flatten() map[string]any {
	out := make(map[string]any, len(r.Fields)+1)
	for k, v := range r.Fields {
		out[k] = v
	}
	out["id"] = r.ID
	return out
}

func (r *Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Flatten())
}

// NewID returns a fresh random document identifier.
func NewID() string {
	return uuid.NewString()
}

// ValidCollection reports whether name is usable as a collection name.
func ValidCollection(name string) bool {
	if name == "" || len(name) > 64 {
		return false
	}
	for _, r := range name {
		if !(r == '_' || r == '-' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			return false
		}
	}
	return true
}

func checkCollection(name string) error {
	if !ValidCollection(name) {
		return fmt.Errorf("invalid collection name %q", name)
	}
	return nil
}

// cloneValue deep-copies maps and slices so stored documents never alias
// caller-owned data.
func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneFields(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

func cloneFields(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}
