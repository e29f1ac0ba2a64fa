package services

import (
	"context"
	"fmt"
	"log"

	"propsync/models"
	"propsync/storage"
)

// PropertyStore is the slice of the Postgres store the upsert coordinator
// uses.
type PropertyStore interface {
	BulkUpsertProperties(ctx context.Context, props []models.Property) error
	GetPropertyByReference(ctx context.Context, reference string) (*models.Property, error)
	UpdatePropertyByReference(ctx context.Context, p *models.Property) (bool, error)
	InsertProperty(ctx context.Context, p *models.Property) error
}

// UpsertResult is the outcome of landing one batch.
type UpsertResult struct {
	Processed int
	Outcomes  []models.RecordOutcome
	Errors    []RecordError
}

// UpsertService writes mapped records to Postgres. The happy path is one
// bulk statement; a uniqueness conflict inside the batch downgrades to
// per-record writes so a single duplicate cannot sink the rest.
type UpsertService struct {
	store PropertyStore
}

func NewUpsertService(store PropertyStore) *UpsertService {
	return &UpsertService{store: store}
}

// Upsert returns a non-nil error only for failures that stopped the batch
// outright; per-record fallback failures come back in the result.
func (s *UpsertService) Upsert(ctx context.Context, records []models.Property) (UpsertResult, error) {
	var result UpsertResult
	if len(records) == 0 {
		return result, nil
	}

	err := s.store.BulkUpsertProperties(ctx, records)
	if err == nil {
		result.Processed = len(records)
		result.Outcomes = make([]models.RecordOutcome, 0, len(records))
		for _, rec := range records {
			result.Outcomes = append(result.Outcomes, models.RecordOutcome{
				Reference: rec.Reference,
				Action:    models.ActionUpserted,
			})
		}
		return result, nil
	}

	if !storage.IsUniqueViolation(err) {
		return result, err
	}

	log.Printf("Warning: bulk upsert hit a uniqueness conflict, retrying record by record: %v", err)
	return s.upsertEach(ctx, records), nil
}

func (s *UpsertService) upsertEach(ctx context.Context, records []models.Property) UpsertResult {
	var result UpsertResult
	for i := range records {
		rec := &records[i]
		action, err := s.upsertOne(ctx, rec)
		if err != nil {
			result.Errors = append(result.Errors, RecordError{Reference: rec.Reference, Message: err.Error()})
			continue
		}
		result.Processed++
		result.Outcomes = append(result.Outcomes, models.RecordOutcome{Reference: rec.Reference, Action: action})
	}
	return result
}

// upsertOne resolves a record by its reference: update the row when one
// exists, insert otherwise.
func (s *UpsertService) upsertOne(ctx context.Context, rec *models.Property) (string, error) {
	existing, err := s.store.GetPropertyByReference(ctx, rec.Reference)
	if err != nil {
		return "", fmt.Errorf("lookup: %w", err)
	}
	if existing == nil {
		if err := s.store.InsertProperty(ctx, rec); err != nil {
			return "", fmt.Errorf("insert: %w", err)
		}
		return models.ActionCreated, nil
	}
	if _, err := s.store.UpdatePropertyByReference(ctx, rec); err != nil {
		return "", fmt.Errorf("update: %w", err)
	}
	return models.ActionUpdated, nil
}
