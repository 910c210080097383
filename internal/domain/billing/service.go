// Package billing computes a patient's bill from the billing rate table.
package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/medadmin/medadmin/internal/domain/records"
	"github.com/medadmin/medadmin/internal/platform/docstore"
	"github.com/medadmin/medadmin/internal/platform/telemetry"
)

type Service struct {
	store   docstore.Store
	logger  zerolog.Logger
	metrics *telemetry.Metrics
}

// NewService reads patients and rates from store. metrics may be nil.
func NewService(store docstore.Store, logger zerolog.Logger, metrics *telemetry.Metrics) *Service {
	return &Service{store: store, logger: logger, metrics: metrics}
}

// Calculate prices every (treatment, room) pair on the patient's record:
// treatment_cost + room_cost * days per pair. The result is all-or-nothing;
// if any pair lacks a rate, a *NoRateError naming all of them is returned.
func (s *Service) Calculate(ctx context.Context, patientID string) (*Bill, error) {
	bill, err := s.calculate(ctx, patientID)
	s.metrics.BillCalculated(outcome(err))
	return bill, err
}

func (s *Service) calculate(ctx context.Context, patientID string) (*Bill, error) {
	if patientID == "" {
		return nil, ErrPatientNotFound
	}
	rec, err := s.store.Get(ctx, records.Patients, patientID)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, ErrPatientNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading patient %s: %w", patientID, err)
	}

	patient := PatientFromRecord(rec)
	if len(patient.Treatments) != len(patient.Rooms) {
		return nil, ErrMismatchedCount
	}

	bill := &Bill{
		Patient:    patient.Name,
		Treatments: make([]map[string]any, 0, len(patient.Treatments)),
		Days:       patient.Days,
	}
	rates, err := s.store.List(ctx, records.Billing)
	if err != nil {
		return nil, fmt.Errorf("loading billing rates: %w", err)
	}
	index := s.indexRates(rates)

	var missing []Pair
	seen := make(map[rateKey]bool)
	matched := make([]*docstore.Record, 0, len(patient.Treatments))
	for i, t := range patient.Treatments {
		key := rateKey{treatment: t, roomType: patient.Rooms[i]}
		rate, ok := index[key]
		if !ok {
			if !seen[key] {
				seen[key] = true
				missing = append(missing, Pair{Treatment: key.treatment, Room: key.roomType})
			}
			continue
		}
		matched = append(matched, rate)
	}
	if len(missing) > 0 {
		return nil, &NoRateError{Pairs: missing}
	}

	days := float64(patient.Days)
	for _, rate := range matched {
		treatmentCost, ok := parseNumber(rate.Fields["treatment_cost"])
		if !ok {
			return nil, fmt.Errorf("%w: rate %s treatment_cost", ErrMalformedRate, rate.ID)
		}
		roomCost, ok := parseNumber(rate.Fields["room_cost"])
		if !ok {
			return nil, fmt.Errorf("%w: rate %s room_cost", ErrMalformedRate, rate.ID)
		}
		bill.Total += treatmentCost + roomCost*days
		bill.Treatments = append(bill.Treatments, rate.Flatten())
	}

	s.metrics.ObserveBill(bill.Total, len(rates))
	return bill, nil
}

// indexRates keys rates by lower-cased (treatment, room_type). The first
// record in store order wins; records missing either string field are
// skipped.
func (s *Service) indexRates(rates []*docstore.Record) map[rateKey]*docstore.Record {
	index := make(map[rateKey]*docstore.Record, len(rates))
	for _, r := range rates {
		treatment, tok := r.Fields["treatment"].(string)
		roomType, rok := r.Fields["room_type"].(string)
		if !tok || !rok {
			s.logger.Warn().Str("rate_id", r.ID).Msg("skipping billing rate without treatment or room_type")
			continue
		}
		key := rateKey{
			treatment: normalize(treatment),
			roomType:  normalize(roomType),
		}
		if _, dup := index[key]; dup {
			continue
		}
		index[key] = r
	}
	return index
}

func outcome(err error) string {
	var noRate *NoRateError
	switch {
	case err == nil:
		return telemetry.BillOK
	case errors.Is(err, ErrPatientNotFound):
		return telemetry.BillPatientNotFound
	case errors.Is(err, ErrMismatchedCount):
		return telemetry.BillMismatch
	case errors.As(err, &noRate):
		return telemetry.BillNoRate
	case errors.Is(err, ErrMalformedRate):
		return telemetry.BillMalformedRate
	default:
		return telemetry.BillError
	}
}
