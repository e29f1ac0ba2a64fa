package workers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"propsync/identity"
	"propsync/models"
)

// maxMediaSize caps a single image download.
const maxMediaSize = 50 * 1024 * 1024

// MediaQueue is the slice of the media service the worker drains.
type MediaQueue interface {
	GetPending(ctx context.Context, limit int) ([]models.Media, error)
	MarkUploaded(ctx context.Context, id uuid.UUID, s3Key, contentHash, mimeType string, sizeBytes int64) error
	MarkFailed(ctx context.Context, id uuid.UUID, attempts int) error
}

// S3Uploader interface for uploading to S3-compatible storage
type S3Uploader interface {
	Upload(ctx context.Context, key string, data io.Reader, contentType string) error
}

// MediaWorker downloads feed images, hashes them, and uploads to S3
type MediaWorker struct {
	queue      MediaQueue
	httpClient *http.Client
	uploader   S3Uploader
	triggerCh  chan struct{}
}

func NewMediaWorker(queue MediaQueue, client *http.Client, uploader S3Uploader) *MediaWorker {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &MediaWorker{
		queue:      queue,
		httpClient: client,
		uploader:   uploader,
		triggerCh:  make(chan struct{}, 1),
	}
}

// Trigger causes the worker to run immediately
func (w *MediaWorker) Trigger() {
	select {
	case w.triggerCh <- struct{}{}:
	default:
	}
}

// MediaProcessResult contains the outcome of processing one media item
type MediaProcessResult struct {
	MediaID     uuid.UUID
	S3Key       string
	ContentHash string
	MimeType    string
	Size        int64
	Error       error
}

// Process downloads one image, computes its content hash, and uploads it
// under a hash-derived key.
func (w *MediaWorker) Process(ctx context.Context, media *models.Media) MediaProcessResult {
	result := MediaProcessResult{MediaID: media.ID}

	req, err := http.NewRequestWithContext(ctx, "GET", media.OriginalURL, nil)
	if err != nil {
		result.Error = fmt.Errorf("create request: %w", err)
		return result
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	req.Header.Set("Accept", "image/*,*/*")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		result.Error = fmt.Errorf("download: %w", err)
		return result
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		result.Error = fmt.Errorf("download status: %d", resp.StatusCode)
		return result
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxMediaSize))
	if err != nil {
		result.Error = fmt.Errorf("read body: %w", err)
		return result
	}

	result.Size = int64(len(data))
	result.ContentHash = identity.ContentHash(data)

	contentType := resp.Header.Get("Content-Type")
	ext := guessExtension(media.OriginalURL, contentType)
	result.S3Key = identity.MediaKey(result.ContentHash, ext)

	if contentType == "" {
		contentType = "image/jpeg"
	}
	result.MimeType = contentType

	if w.uploader != nil {
		if err := w.uploader.Upload(ctx, result.S3Key, bytes.NewReader(data), contentType); err != nil {
			result.Error = fmt.Errorf("upload: %w", err)
			return result
		}
	}

	return result
}

// guessExtension determines file extension from URL or content-type
func guessExtension(url, contentType string) string {
	ext := strings.ToLower(path.Ext(url))
	if ext != "" && isImageExt(ext) {
		return ext
	}

	switch contentType {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}

func isImageExt(ext string) bool {
	switch ext {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp", ".tiff":
		return true
	}
	return false
}

// Run starts the media worker loop
func (w *MediaWorker) Run(ctx context.Context, batchSize int, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Media worker stopping")
			return
		case <-ticker.C:
			w.processBatch(ctx, batchSize)
		case <-w.triggerCh:
			log.Println("Media worker triggered manually")
			w.processBatch(ctx, batchSize)
		}
	}
}

func (w *MediaWorker) processBatch(ctx context.Context, batchSize int) {
	media, err := w.queue.GetPending(ctx, batchSize)
	if err != nil {
		log.Printf("Media worker: query error: %v", err)
		return
	}

	if len(media) == 0 {
		return
	}

	log.Printf("Media worker: processing %d items", len(media))

	var processed, failed int
	for i := range media {
		m := &media[i]

		result := w.Process(ctx, m)

		if result.Error != nil {
			log.Printf("Media worker: failed %s: %v", m.OriginalURL, result.Error)
			failed++
			if err := w.queue.MarkFailed(ctx, m.ID, m.Attempts+1); err != nil {
				log.Printf("Media worker: failed to record failure for %s: %v", m.ID, err)
			}
			continue
		}

		if err := w.queue.MarkUploaded(ctx, m.ID, result.S3Key, result.ContentHash, result.MimeType, result.Size); err != nil {
			log.Printf("Media worker: failed to update %s: %v", m.ID, err)
			failed++
			continue
		}

		processed++
		log.Printf("Media worker: uploaded %s -> %s (%d bytes)", m.ID, result.S3Key, result.Size)

		// Rate limit between downloads
		time.Sleep(200 * time.Millisecond)
	}

	if processed > 0 || failed > 0 {
		log.Printf("Media worker: processed %d, failed %d", processed, failed)
	}
}

// NoOpUploader skips the actual S3 upload, used when S3 is not configured
type NoOpUploader struct{}

func (u *NoOpUploader) Upload(ctx context.Context, key string, data io.Reader, contentType string) error {
	io.Copy(io.Discard, data)
	return nil
}

func NewNoOpUploader() *NoOpUploader {
	return &NoOpUploader{}
}
