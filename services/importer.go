package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"propsync/config"
	"propsync/feed"
	"propsync/httputil"
	"propsync/models"
)

// RunStore is the slice of the Postgres store that keeps durable run records.
type RunStore interface {
	CreateImportRun(ctx context.Context, run *models.ImportRun) error
	UpdateImportRun(ctx context.Context, run *models.ImportRun) error
	CreateImportLog(ctx context.Context, entry *models.ImportLog) error
}

// OpStore is the slice of the local SQLite store the importer touches.
type OpStore interface {
	CreateRun(run *models.Run) (int64, error)
	UpdateRun(run *models.Run) error
	Log(runID *int64, level models.LogLevel, message, feedName string) error
	UpdateFeedStats(feedName string) error
	ParseCommandParams(cmd *models.Command) (*models.CommandParams, error)
}

// maxReportOutcomes caps the per-record outcome list in the response body.
// The counts always cover the full batch.
const maxReportOutcomes = 50

// Importer drives the fetch, parse, map, upsert pipeline for each feed and
// books the run on both stores. The run stores and media service may be nil;
// the pipeline itself does not depend on them.
type Importer struct {
	cfg       *config.Config
	acquirers map[string]*feed.Acquirer
	upserter  *UpsertService
	runs      RunStore
	ops       OpStore
	media     *MediaService

	mu       sync.Mutex
	paused   bool
	pausedAt time.Time
}

func NewImporter(cfg *config.Config, clients *httputil.Clients, upserter *UpsertService, runs RunStore, ops OpStore, media *MediaService) *Importer {
	acquirers := make(map[string]*feed.Acquirer, len(cfg.Feeds))
	for name, fc := range cfg.Feeds {
		acquirers[name] = feed.NewAcquirer(clients.Feed, fc.URL)
	}

	return &Importer{
		cfg:       cfg,
		acquirers: acquirers,
		upserter:  upserter,
		runs:      runs,
		ops:       ops,
		media:     media,
	}
}

// Run imports the primary feed. A body that already carries feed markup
// short-circuits the vendor fetch.
func (s *Importer) Run(ctx context.Context, body []byte) (*models.ImportReport, error) {
	primary := s.cfg.Primary()
	if primary == nil {
		return nil, fmt.Errorf("no primary feed configured")
	}
	return s.RunFeedByName(ctx, primary.Name, body)
}

// RunAll imports every enabled feed. Per-feed failures are logged, not
// returned; one broken vendor must not block the others.
func (s *Importer) RunAll(ctx context.Context) error {
	if s.IsPaused() {
		log.Println("Imports are paused, skipping run")
		return nil
	}

	for name, fc := range s.cfg.Feeds {
		if !fc.Enabled {
			continue
		}
		if _, err := s.RunFeedByName(ctx, name, nil); err != nil {
			log.Printf("Error importing feed %s: %v", name, err)
		}
	}

	return nil
}

// RunScheduled covers the feeds on the global schedule: enabled ones without
// a cron override of their own.
func (s *Importer) RunScheduled(ctx context.Context) {
	if s.IsPaused() {
		log.Println("Imports are paused, skipping scheduled run")
		return
	}

	for name, fc := range s.cfg.Feeds {
		if !fc.Enabled || fc.Cron != "" {
			continue
		}
		if _, err := s.RunFeedByName(ctx, name, nil); err != nil {
			log.Printf("Scheduled import for %s failed: %v", name, err)
		}
	}
}

func (s *Importer) RunFeedByName(ctx context.Context, name string, body []byte) (*models.ImportReport, error) {
	fc, ok := s.cfg.Feeds[name]
	if !ok {
		return nil, fmt.Errorf("unknown feed: %s", name)
	}
	acquirer, ok := s.acquirers[name]
	if !ok {
		return nil, fmt.Errorf("no acquirer for feed: %s", name)
	}

	started := time.Now()

	run := &models.Run{
		FeedName:  name,
		StartedAt: started,
		Status:    models.RunStatusRunning,
	}
	if s.ops != nil {
		runID, err := s.ops.CreateRun(run)
		if err != nil {
			log.Printf("Warning: failed to create local run record: %v", err)
		} else {
			run.ID = runID
		}
	}

	var pgRunID *int64
	if s.runs != nil {
		pgRun := &models.ImportRun{
			FeedName:  name,
			StartedAt: started,
			Status:    models.RunStatusRunning,
		}
		if err := s.runs.CreateImportRun(ctx, pgRun); err != nil {
			log.Printf("Warning: failed to create Postgres run record: %v", err)
		} else {
			pgRunID = &pgRun.ID
		}
	}

	report := &models.ImportReport{Feed: name}
	var fatal error

	defer func() {
		s.closeRun(ctx, run, pgRunID, report, fatal)
	}()

	s.log(ctx, run.ID, pgRunID, models.LogLevelInfo, fmt.Sprintf("Starting import from %s", fc.URL), name)

	data, err := acquirer.Acquire(ctx, body)
	if err != nil {
		fatal = &AcquisitionError{Feed: name, At: time.Now(), Err: err}
		s.log(ctx, run.ID, pgRunID, models.LogLevelError, fatal.Error(), name)
		return nil, fatal
	}

	list, err := feed.Parse(data)
	if err != nil {
		fatal = &ParseError{Err: err}
		s.log(ctx, run.ID, pgRunID, models.LogLevelError, fatal.Error(), name)
		return nil, fatal
	}

	report.Total = len(list.Properties)
	if report.Total == 0 {
		fatal = &EmptyFeedError{Feed: name}
		s.log(ctx, run.ID, pgRunID, models.LogLevelWarn, fatal.Error(), name)
		return nil, fatal
	}
	s.log(ctx, run.ID, pgRunID, models.LogLevelInfo, fmt.Sprintf("Feed returned %d entries", report.Total), name)

	records, mapErrs := mapRecords(list.Properties)
	report.ErrorCount = len(mapErrs)
	report.Errors = errorStrings(mapErrs)
	if len(records) == 0 {
		fatal = &NoValidRecordsError{Errors: mapErrs}
		s.log(ctx, run.ID, pgRunID, models.LogLevelError, fatal.Error(), name)
		return nil, fatal
	}

	result, err := s.upserter.Upsert(ctx, records)
	if err != nil {
		fatal = &StorageError{Elapsed: time.Since(started), Err: err}
		s.log(ctx, run.ID, pgRunID, models.LogLevelError, fatal.Error(), name)
		return nil, fatal
	}

	report.Processed = result.Processed
	allErrs := make([]RecordError, 0, len(mapErrs)+len(result.Errors))
	allErrs = append(allErrs, mapErrs...)
	allErrs = append(allErrs, result.Errors...)
	report.ErrorCount = len(allErrs)
	report.Errors = errorStrings(allErrs)
	report.Outcomes = result.Outcomes
	if len(report.Outcomes) > maxReportOutcomes {
		report.Outcomes = report.Outcomes[:maxReportOutcomes]
	}
	report.ElapsedMS = time.Since(started).Milliseconds()

	s.enqueueMedia(ctx, run.ID, pgRunID, name, records, result)

	s.log(ctx, run.ID, pgRunID, models.LogLevelInfo,
		fmt.Sprintf("Completed: %d/%d processed, %d errors in %dms",
			report.Processed, report.Total, report.ErrorCount, report.ElapsedMS), name)

	return report, nil
}

// mapRecords folds raw entries into internal records, splitting successes
// from rejects. An entry without a reference cannot be keyed and is
// rejected; it still counts toward the feed total.
func mapRecords(entries []feed.Property) ([]models.Property, []RecordError) {
	var records []models.Property
	var errs []RecordError
	for i, entry := range entries {
		ref := strings.TrimSpace(entry.Reference.First())
		if ref == "" {
			errs = append(errs, RecordError{
				Reference: fmt.Sprintf("entry[%d]", i),
				Message:   "missing reference_number",
			})
			continue
		}
		rec, err := feed.MapProperty(entry)
		if err != nil {
			errs = append(errs, RecordError{Reference: ref, Message: err.Error()})
			continue
		}
		records = append(records, rec)
	}
	return records, errs
}

func (s *Importer) closeRun(ctx context.Context, run *models.Run, pgRunID *int64, report *models.ImportReport, fatal error) {
	now := time.Now()
	status := models.RunStatusCompleted
	var errMsg string
	if fatal != nil {
		status = models.RunStatusFailed
		errMsg = fatal.Error()
	}

	if s.ops != nil {
		run.FinishedAt = &now
		run.Status = status
		run.TotalRecords = report.Total
		run.ProcessedRecords = report.Processed
		run.ErrorsCount = report.ErrorCount
		if err := s.ops.UpdateRun(run); err != nil {
			log.Printf("Warning: failed to finalize local run record: %v", err)
		}
		if err := s.ops.UpdateFeedStats(run.FeedName); err != nil {
			log.Printf("Warning: failed to update feed stats: %v", err)
		}
	}

	if s.runs != nil && pgRunID != nil {
		pgRun := &models.ImportRun{
			ID:               *pgRunID,
			FinishedAt:       &now,
			Status:           status,
			TotalRecords:     report.Total,
			ProcessedRecords: report.Processed,
			ErrorsCount:      report.ErrorCount,
			ErrorMessage:     errMsg,
			Metadata:         report.ToJSON(),
		}
		if err := s.runs.UpdateImportRun(ctx, pgRun); err != nil {
			log.Printf("Warning: failed to finalize Postgres run record: %v", err)
		}
	}
}

// enqueueMedia queues the images of every record that actually landed.
func (s *Importer) enqueueMedia(ctx context.Context, runID int64, pgRunID *int64, feedName string, records []models.Property, result UpsertResult) {
	if s.media == nil {
		return
	}

	processed := make(map[string]bool, len(result.Outcomes))
	for _, o := range result.Outcomes {
		processed[o.Reference] = true
	}

	queued := 0
	for _, rec := range records {
		if !processed[rec.Reference] {
			continue
		}
		for _, url := range rec.Images {
			if _, err := s.media.Enqueue(ctx, rec.Reference, url); err != nil {
				log.Printf("Warning: failed to queue media %s: %v", url, err)
				continue
			}
			queued++
		}
	}
	if queued > 0 {
		s.log(ctx, runID, pgRunID, models.LogLevelInfo, fmt.Sprintf("Queued %d images for mirroring", queued), feedName)
	}
}

func (s *Importer) HandleCommand(cmd *models.Command) error {
	params := &models.CommandParams{}
	if s.ops != nil {
		parsed, err := s.ops.ParseCommandParams(cmd)
		if err != nil {
			return err
		}
		params = parsed
	}

	ctx := context.Background()

	switch cmd.Command {
	case models.CmdImportNow:
		return s.RunAll(ctx)
	case models.CmdImportFeed:
		if params.Feed != "" {
			_, err := s.RunFeedByName(ctx, params.Feed, nil)
			return err
		}
		return s.RunAll(ctx)
	case models.CmdPause:
		s.Pause()
	case models.CmdResume:
		s.Resume()
	}

	return nil
}

func (s *Importer) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.paused {
		return
	}
	s.paused = true
	s.pausedAt = time.Now()
	log.Println("Imports paused")
}

func (s *Importer) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.paused {
		return
	}
	s.paused = false
	log.Println("Imports resumed")
}

func (s *Importer) IsPaused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// PausedSince reports when the current pause began; zero when not paused.
func (s *Importer) PausedSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.paused {
		return time.Time{}
	}
	return s.pausedAt
}

// log writes one line to the process log and both run-log tables.
func (s *Importer) log(ctx context.Context, runID int64, pgRunID *int64, level models.LogLevel, message, feedName string) {
	log.Printf("[%s] %s: %s", level, feedName, message)

	if s.ops != nil {
		var id *int64
		if runID != 0 {
			id = &runID
		}
		if err := s.ops.Log(id, level, message, feedName); err != nil {
			log.Printf("Warning: failed to write local log: %v", err)
		}
	}

	if s.runs != nil && pgRunID != nil {
		entry := &models.ImportLog{
			RunID:     pgRunID,
			Timestamp: time.Now(),
			Level:     level,
			Message:   message,
			FeedName:  feedName,
		}
		if err := s.runs.CreateImportLog(ctx, entry); err != nil {
			log.Printf("Warning: failed to write Postgres log: %v", err)
		}
	}
}
