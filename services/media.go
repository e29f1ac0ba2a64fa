package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"propsync/models"
)

// MediaStore is the slice of the Postgres store the media queue uses.
type MediaStore interface {
	GetMediaByOriginalURL(ctx context.Context, url string) (*models.Media, error)
	UpsertMedia(ctx context.Context, m *models.Media) error
	GetPendingMedia(ctx context.Context, limit int) ([]models.Media, error)
	MarkMediaUploaded(ctx context.Context, id uuid.UUID, s3Key, contentHash, mimeType string, sizeBytes int64) error
	MarkMediaFailed(ctx context.Context, id uuid.UUID, status string, attempts int) error
}

// MediaService queues feed images for mirroring and tracks their state.
type MediaService struct {
	store MediaStore
}

func NewMediaService(store MediaStore) *MediaService {
	return &MediaService{store: store}
}

// Enqueue records an image URL under a listing reference with status=pending.
// A URL seen before keeps its row and state; only new URLs create work.
// Returns the media ID, existing or new.
func (s *MediaService) Enqueue(ctx context.Context, reference, originalURL string) (uuid.UUID, error) {
	existing, err := s.store.GetMediaByOriginalURL(ctx, originalURL)
	if err != nil {
		return uuid.Nil, err
	}
	if existing != nil {
		return existing.ID, nil
	}

	media := &models.Media{
		ID:          uuid.New(),
		Reference:   reference,
		OriginalURL: originalURL,
		Status:      models.MediaStatusPending,
		Attempts:    0,
		CreatedAt:   time.Now(),
	}

	if err := s.store.UpsertMedia(ctx, media); err != nil {
		return uuid.Nil, err
	}

	return media.ID, nil
}

// GetPending returns queued items for the worker, oldest first.
func (s *MediaService) GetPending(ctx context.Context, limit int) ([]models.Media, error) {
	return s.store.GetPendingMedia(ctx, limit)
}

func (s *MediaService) MarkUploaded(ctx context.Context, id uuid.UUID, s3Key, contentHash, mimeType string, sizeBytes int64) error {
	return s.store.MarkMediaUploaded(ctx, id, s3Key, contentHash, mimeType, sizeBytes)
}

// MarkFailed bumps the attempt counter; the third strike parks the item as
// failed so the worker stops picking it up.
func (s *MediaService) MarkFailed(ctx context.Context, id uuid.UUID, attempts int) error {
	status := models.MediaStatusPending
	if attempts >= 3 {
		status = models.MediaStatusFailed
	}
	return s.store.MarkMediaFailed(ctx, id, status, attempts)
}
