package workers

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"propsync/config"
	"propsync/models"
)

// FeedStatsStore records reachability probes.
type FeedStatsStore interface {
	MarkFeedReachable(feedName string, t time.Time) error
}

// HealthWorker probes each enabled feed URL so operators can tell a vendor
// outage from a broken import.
type HealthWorker struct {
	cfg        *config.Config
	store      FeedStatsStore
	httpClient *http.Client
	triggerCh  chan struct{}
	logFunc    LogFunc
}

func NewHealthWorker(cfg *config.Config, store FeedStatsStore, client *http.Client) *HealthWorker {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &HealthWorker{
		cfg:        cfg,
		store:      store,
		httpClient: client,
		triggerCh:  make(chan struct{}, 1),
		logFunc:    NoOpLogger,
	}
}

func (w *HealthWorker) SetLogger(fn LogFunc) {
	w.logFunc = fn
}

// Trigger causes the worker to run immediately
func (w *HealthWorker) Trigger() {
	select {
	case w.triggerCh <- struct{}{}:
	default:
	}
}

// Run starts the healthcheck worker loop
func (w *HealthWorker) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Health worker stopping")
			return
		case <-ticker.C:
			w.checkAll(ctx)
		case <-w.triggerCh:
			log.Println("Health worker triggered manually")
			w.checkAll(ctx)
		}
	}
}

func (w *HealthWorker) checkAll(ctx context.Context) {
	for name, fc := range w.cfg.Feeds {
		if !fc.Enabled {
			continue
		}
		if err := w.probe(ctx, fc.URL); err != nil {
			log.Printf("Warning: feed %s unreachable: %v", name, err)
			w.logFunc(models.LogLevelWarn, name, fmt.Sprintf("feed unreachable: %v", err))
			continue
		}
		if err := w.store.MarkFeedReachable(name, time.Now()); err != nil {
			log.Printf("Warning: failed to record reachability for %s: %v", name, err)
		}
	}
}

// probe does a HEAD first; vendors that reject HEAD get a one-byte ranged
// GET instead.
func (w *HealthWorker) probe(ctx context.Context, url string) error {
	status, err := w.request(ctx, http.MethodHead, url)
	if err == nil && status == http.StatusOK {
		return nil
	}
	if err == nil && status != http.StatusMethodNotAllowed && status != http.StatusNotImplemented {
		return fmt.Errorf("status %d", status)
	}

	status, err = w.request(ctx, http.MethodGet, url)
	if err != nil {
		return err
	}
	if status != http.StatusOK && status != http.StatusPartialContent {
		return fmt.Errorf("status %d", status)
	}
	return nil
}

func (w *HealthWorker) request(ctx context.Context, method, url string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", "propsync/1.0")
	if method == http.MethodGet {
		req.Header.Set("Range", "bytes=0-0")
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}
