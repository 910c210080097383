// Package records is the CRUD surface over the staff, patients and billing
// collections. Records are schema-less: bodies are stored as given.
package records

import (
	"context"
	"errors"
	"fmt"

	"github.com/medadmin/medadmin/internal/platform/docstore"
)

// ErrNotFound is returned by Update for an unknown id.
var ErrNotFound = errors.New("record not found")

// Collection names.
const (
	Staff    = "staff"
	Patients = "patients"
	Billing  = "billing"
)

type Service struct {
	store      docstore.Store
	collection string
}

func NewService(store docstore.Store, collection string) *Service {
	return &Service{store: store, collection: collection}
}

func (s *Service) Collection() string {
	return s.collection
}

// ListAll returns every record in store order.
func (s *Service) ListAll(ctx context.Context) ([]*docstore.Record, error) {
	recs, err := s.store.List(ctx, s.collection)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", s.collection, err)
	}
	return recs, nil
}

// Add stores fields under a fresh id and returns the id.
func (s *Service) Add(ctx context.Context, fields map[string]any) (string, error) {
	if fields == nil {
		fields = map[string]any{}
	}
	id := docstore.NewID()
	if err := s.store.Set(ctx, s.collection, id, fields); err != nil {
		return "", fmt.Errorf("adding to %s: %w", s.collection, err)
	}
	return id, nil
}

// Update merges fields into the record with the given id.
func (s *Service) Update(ctx context.Context, id string, fields map[string]any) error {
	if id == "" {
		return ErrNotFound
	}
	err := s.store.Update(ctx, s.collection, id, fields)
	if errors.Is(err, docstore.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("updating %s/%s: %w", s.collection, id, err)
	}
	return nil
}

// Delete removes the record. Deleting an unknown id succeeds.
func (s *Service) Delete(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	if err := s.store.Delete(ctx, s.collection, id); err != nil {
		return fmt.Errorf("deleting %s/%s: %w", s.collection, id, err)
	}
	return nil
}
