package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"propsync/config"
	"propsync/httputil"
	"propsync/models"
)

const twoPropertyFeed = `<?xml version="1.0" encoding="UTF-8"?>
<list>
  <property>
    <reference_number>PS-100</reference_number>
    <offering_type>RS</offering_type>
    <property_type>AP</property_type>
    <city>Dubai</city>
    <community>Dubai Marina</community>
    <title_en>Marina apartment</title_en>
    <price><yearly>1500000</yearly></price>
    <photo><url>https://cdn.example.com/ps-100-1.jpg</url></photo>
    <photo><url>https://cdn.example.com/ps-100-2.jpg</url></photo>
  </property>
  <property>
    <reference_number>PS-200</reference_number>
    <offering_type>RR</offering_type>
    <property_type>VH</property_type>
    <city>Dubai</city>
    <community>Jumeirah</community>
    <title_en>Jumeirah villa</title_en>
    <price><yearly>240000</yearly></price>
    <photo><url>https://cdn.example.com/ps-200-1.jpg</url></photo>
  </property>
</list>`

const mixedFeed = `<?xml version="1.0" encoding="UTF-8"?>
<list>
  <property>
    <reference_number>PS-100</reference_number>
    <offering_type>RS</offering_type>
    <title_en>Valid one</title_en>
  </property>
  <property>
    <offering_type>RS</offering_type>
    <title_en>No reference</title_en>
  </property>
  <property>
    <reference_number>PS-300</reference_number>
    <offering_type>RR</offering_type>
    <title_en>Valid two</title_en>
  </property>
</list>`

const noReferenceFeed = `<?xml version="1.0" encoding="UTF-8"?>
<list>
  <property><title_en>First orphan</title_en></property>
  <property><reference_number>   </reference_number><title_en>Second orphan</title_en></property>
</list>`

type fakeRunStore struct {
	created []models.ImportRun
	updated []models.ImportRun
	logs    []models.ImportLog
}

func (f *fakeRunStore) CreateImportRun(ctx context.Context, run *models.ImportRun) error {
	run.ID = int64(len(f.created) + 1)
	f.created = append(f.created, *run)
	return nil
}

func (f *fakeRunStore) UpdateImportRun(ctx context.Context, run *models.ImportRun) error {
	f.updated = append(f.updated, *run)
	return nil
}

func (f *fakeRunStore) CreateImportLog(ctx context.Context, entry *models.ImportLog) error {
	f.logs = append(f.logs, *entry)
	return nil
}

type fakeOpStore struct {
	nextID     int64
	runs       map[int64]models.Run
	logs       []string
	statsFeeds []string
}

func (f *fakeOpStore) CreateRun(run *models.Run) (int64, error) {
	f.nextID++
	if f.runs == nil {
		f.runs = make(map[int64]models.Run)
	}
	f.runs[f.nextID] = *run
	return f.nextID, nil
}

func (f *fakeOpStore) UpdateRun(run *models.Run) error {
	if f.runs == nil {
		f.runs = make(map[int64]models.Run)
	}
	f.runs[run.ID] = *run
	return nil
}

func (f *fakeOpStore) Log(runID *int64, level models.LogLevel, message, feedName string) error {
	f.logs = append(f.logs, message)
	return nil
}

func (f *fakeOpStore) UpdateFeedStats(feedName string) error {
	f.statsFeeds = append(f.statsFeeds, feedName)
	return nil
}

func (f *fakeOpStore) ParseCommandParams(cmd *models.Command) (*models.CommandParams, error) {
	params := &models.CommandParams{}
	if len(cmd.Params) == 0 {
		return params, nil
	}
	if err := json.Unmarshal(cmd.Params, params); err != nil {
		return nil, err
	}
	return params, nil
}

type fakeMediaStore struct {
	byURL   map[string]*models.Media
	upserts []models.Media
}

func (f *fakeMediaStore) GetMediaByOriginalURL(ctx context.Context, url string) (*models.Media, error) {
	return f.byURL[url], nil
}

func (f *fakeMediaStore) UpsertMedia(ctx context.Context, m *models.Media) error {
	f.upserts = append(f.upserts, *m)
	return nil
}

func (f *fakeMediaStore) GetPendingMedia(ctx context.Context, limit int) ([]models.Media, error) {
	return nil, nil
}

func (f *fakeMediaStore) MarkMediaUploaded(ctx context.Context, id uuid.UUID, s3Key, contentHash, mimeType string, sizeBytes int64) error {
	return nil
}

func (f *fakeMediaStore) MarkMediaFailed(ctx context.Context, id uuid.UUID, status string, attempts int) error {
	return nil
}

func testImporter(store PropertyStore, feedURL string, runs RunStore, ops OpStore, media *MediaService) *Importer {
	cfg := &config.Config{
		PrimaryFeed: "primary",
		Feeds: map[string]*config.FeedConfig{
			"primary": {Name: "primary", URL: feedURL, Enabled: true},
		},
	}
	clients := httputil.NewClients(2 * time.Second)
	return NewImporter(cfg, clients, NewUpsertService(store), runs, ops, media)
}

func TestImportRunSuccess(t *testing.T) {
	store := &fakePropertyStore{}
	runs := &fakeRunStore{}
	ops := &fakeOpStore{}
	imp := testImporter(store, "http://feeds.invalid/export.xml", runs, ops, nil)

	report, err := imp.Run(context.Background(), []byte(twoPropertyFeed))
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if report.Feed != "primary" {
		t.Fatalf("expected feed primary, got %s", report.Feed)
	}
	if report.Total != 2 || report.Processed != 2 || report.ErrorCount != 0 {
		t.Fatalf("unexpected report counts: %+v", report)
	}
	if len(report.Outcomes) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(report.Outcomes))
	}
	if report.Outcomes[0].Reference != "PS-100" || report.Outcomes[0].Action != models.ActionUpserted {
		t.Fatalf("unexpected first outcome: %+v", report.Outcomes[0])
	}

	if len(runs.created) != 1 || runs.created[0].Status != models.RunStatusRunning {
		t.Fatalf("expected one running Postgres run record, got %+v", runs.created)
	}
	if len(runs.updated) != 1 {
		t.Fatalf("expected one finalized Postgres run record, got %d", len(runs.updated))
	}
	final := runs.updated[0]
	if final.Status != models.RunStatusCompleted || final.ProcessedRecords != 2 || final.TotalRecords != 2 {
		t.Fatalf("unexpected final run record: %+v", final)
	}
	if final.FinishedAt == nil {
		t.Fatalf("expected finished_at on final run record")
	}
	if len(final.Metadata) == 0 || !strings.Contains(string(final.Metadata), "PS-100") {
		t.Fatalf("expected report metadata on run record, got %s", final.Metadata)
	}

	local, ok := ops.runs[1]
	if !ok {
		t.Fatalf("expected local run record")
	}
	if local.Status != models.RunStatusCompleted || local.ProcessedRecords != 2 {
		t.Fatalf("unexpected local run record: %+v", local)
	}
	if len(ops.statsFeeds) != 1 || ops.statsFeeds[0] != "primary" {
		t.Fatalf("expected feed stats refresh for primary, got %v", ops.statsFeeds)
	}
}

func TestImportSkipsEntriesWithoutReference(t *testing.T) {
	store := &fakePropertyStore{}
	imp := testImporter(store, "http://feeds.invalid/export.xml", nil, nil, nil)

	report, err := imp.Run(context.Background(), []byte(mixedFeed))
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if report.Total != 3 {
		t.Fatalf("expected total 3, got %d", report.Total)
	}
	if report.Processed != 2 {
		t.Fatalf("expected 2 processed, got %d", report.Processed)
	}
	if report.ErrorCount != 1 || len(report.Errors) != 1 {
		t.Fatalf("expected 1 error, got %+v", report.Errors)
	}
	if !strings.Contains(report.Errors[0], "entry[1]") || !strings.Contains(report.Errors[0], "missing reference_number") {
		t.Fatalf("unexpected error text: %s", report.Errors[0])
	}
}

func TestImportFailsWhenNoValidRecords(t *testing.T) {
	store := &fakePropertyStore{}
	runs := &fakeRunStore{}
	imp := testImporter(store, "http://feeds.invalid/export.xml", runs, nil, nil)

	_, err := imp.Run(context.Background(), []byte(noReferenceFeed))
	var nvr *NoValidRecordsError
	if !errors.As(err, &nvr) {
		t.Fatalf("expected NoValidRecordsError, got %v", err)
	}
	if len(nvr.Errors) != 2 {
		t.Fatalf("expected 2 rejects, got %d", len(nvr.Errors))
	}
	if store.bulkCalls != 0 {
		t.Fatalf("expected no storage write, got %d bulk calls", store.bulkCalls)
	}

	if len(runs.updated) != 1 {
		t.Fatalf("expected one finalized run record, got %d", len(runs.updated))
	}
	final := runs.updated[0]
	if final.Status != models.RunStatusFailed || final.TotalRecords != 2 || final.ErrorsCount != 2 {
		t.Fatalf("unexpected failed run record: %+v", final)
	}
	if !strings.Contains(final.ErrorMessage, "no valid records") {
		t.Fatalf("unexpected error message: %s", final.ErrorMessage)
	}
}

func TestImportFailsOnEmptyFeed(t *testing.T) {
	imp := testImporter(&fakePropertyStore{}, "http://feeds.invalid/export.xml", nil, nil, nil)

	_, err := imp.Run(context.Background(), []byte(`<?xml version="1.0"?><list></list>`))
	var empty *EmptyFeedError
	if !errors.As(err, &empty) {
		t.Fatalf("expected EmptyFeedError, got %v", err)
	}
	if !strings.Contains(err.Error(), "no properties found") {
		t.Fatalf("unexpected message: %v", err)
	}
}

func TestImportFailsOnMalformedFeed(t *testing.T) {
	imp := testImporter(&fakePropertyStore{}, "http://feeds.invalid/export.xml", nil, nil, nil)

	_, err := imp.Run(context.Background(), []byte(`<list><property><reference_number>PS-1`))
	var parse *ParseError
	if !errors.As(err, &parse) {
		t.Fatalf("expected ParseError, got %v", err)
	}
}

func TestImportWrapsFatalStorageError(t *testing.T) {
	bulkErr := errors.New("connection refused")
	store := &fakePropertyStore{bulkErr: bulkErr}
	runs := &fakeRunStore{}
	imp := testImporter(store, "http://feeds.invalid/export.xml", runs, nil, nil)

	_, err := imp.Run(context.Background(), []byte(twoPropertyFeed))
	var storageErr *StorageError
	if !errors.As(err, &storageErr) {
		t.Fatalf("expected StorageError, got %v", err)
	}
	if !errors.Is(err, bulkErr) {
		t.Fatalf("expected wrapped bulk error, got %v", err)
	}
	if runs.updated[0].Status != models.RunStatusFailed {
		t.Fatalf("expected failed run record, got %+v", runs.updated[0])
	}
}

func TestImportFailsWhenFeedUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	imp := testImporter(&fakePropertyStore{}, srv.URL, nil, nil, nil)

	_, err := imp.Run(context.Background(), nil)
	var acq *AcquisitionError
	if !errors.As(err, &acq) {
		t.Fatalf("expected AcquisitionError, got %v", err)
	}
	if acq.Feed != "primary" {
		t.Fatalf("expected feed primary, got %s", acq.Feed)
	}
	if acq.At.IsZero() {
		t.Fatalf("expected failure timestamp")
	}
}

func TestRunFeedByNameUnknownFeed(t *testing.T) {
	imp := testImporter(&fakePropertyStore{}, "http://feeds.invalid/export.xml", nil, nil, nil)

	_, err := imp.RunFeedByName(context.Background(), "nope", nil)
	if err == nil || !strings.Contains(err.Error(), "unknown feed") {
		t.Fatalf("expected unknown feed error, got %v", err)
	}
}

func TestPauseSkipsScheduledRunsOnly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(twoPropertyFeed))
	}))
	defer srv.Close()

	store := &fakePropertyStore{}
	imp := testImporter(store, srv.URL, nil, nil, nil)

	imp.Pause()
	if !imp.IsPaused() {
		t.Fatalf("expected paused")
	}
	if imp.PausedSince().IsZero() {
		t.Fatalf("expected pause timestamp")
	}

	if err := imp.RunAll(context.Background()); err != nil {
		t.Fatalf("RunAll failed: %v", err)
	}
	imp.RunScheduled(context.Background())
	if store.bulkCalls != 0 {
		t.Fatalf("paused scheduled runs must not import, got %d bulk calls", store.bulkCalls)
	}

	// A direct run is an operator action and ignores the pause.
	if _, err := imp.Run(context.Background(), []byte(twoPropertyFeed)); err != nil {
		t.Fatalf("direct run while paused failed: %v", err)
	}
	if store.bulkCalls != 1 {
		t.Fatalf("expected direct run to import, got %d bulk calls", store.bulkCalls)
	}

	imp.Resume()
	if imp.IsPaused() {
		t.Fatalf("expected resumed")
	}
	if !imp.PausedSince().IsZero() {
		t.Fatalf("expected zero pause timestamp after resume")
	}

	if err := imp.RunAll(context.Background()); err != nil {
		t.Fatalf("RunAll failed: %v", err)
	}
	if store.bulkCalls != 2 {
		t.Fatalf("expected resumed RunAll to import, got %d bulk calls", store.bulkCalls)
	}
}

func TestRunScheduledSkipsFeedsWithCronOverride(t *testing.T) {
	store := &fakePropertyStore{}
	cfg := &config.Config{
		PrimaryFeed: "primary",
		Feeds: map[string]*config.FeedConfig{
			"primary": {Name: "primary", URL: "http://feeds.invalid/a.xml", Enabled: true, Cron: "0 3 * * *"},
		},
	}
	imp := NewImporter(cfg, httputil.NewClients(time.Second), NewUpsertService(store), nil, nil, nil)

	imp.RunScheduled(context.Background())
	if store.bulkCalls != 0 {
		t.Fatalf("feed with its own cron must not run on the global schedule")
	}
}

func TestHandleCommands(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(twoPropertyFeed))
	}))
	defer srv.Close()

	store := &fakePropertyStore{}
	imp := testImporter(store, srv.URL, nil, &fakeOpStore{}, nil)

	if err := imp.HandleCommand(&models.Command{Command: models.CmdPause}); err != nil {
		t.Fatalf("pause command failed: %v", err)
	}
	if !imp.IsPaused() {
		t.Fatalf("expected paused after pause command")
	}

	if err := imp.HandleCommand(&models.Command{Command: models.CmdResume}); err != nil {
		t.Fatalf("resume command failed: %v", err)
	}
	if imp.IsPaused() {
		t.Fatalf("expected resumed after resume command")
	}

	if err := imp.HandleCommand(&models.Command{Command: models.CmdImportNow}); err != nil {
		t.Fatalf("import_now command failed: %v", err)
	}
	if store.bulkCalls != 1 {
		t.Fatalf("expected import_now to run the feed, got %d bulk calls", store.bulkCalls)
	}

	cmd := &models.Command{
		Command: models.CmdImportFeed,
		Params:  json.RawMessage(`{"feed":"primary"}`),
	}
	if err := imp.HandleCommand(cmd); err != nil {
		t.Fatalf("import_feed command failed: %v", err)
	}
	if store.bulkCalls != 2 {
		t.Fatalf("expected import_feed to run the feed, got %d bulk calls", store.bulkCalls)
	}
}

func TestImportQueuesMediaForLandedRecords(t *testing.T) {
	mediaStore := &fakeMediaStore{
		byURL: map[string]*models.Media{
			"https://cdn.example.com/ps-100-1.jpg": {ID: uuid.New()},
		},
	}
	store := &fakePropertyStore{}
	imp := testImporter(store, "http://feeds.invalid/export.xml", nil, nil, NewMediaService(mediaStore))

	report, err := imp.Run(context.Background(), []byte(twoPropertyFeed))
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if report.Processed != 2 {
		t.Fatalf("expected 2 processed, got %d", report.Processed)
	}

	// ps-100-1 is already known, so only the two new URLs create rows.
	if len(mediaStore.upserts) != 2 {
		t.Fatalf("expected 2 media rows, got %d", len(mediaStore.upserts))
	}
	for _, m := range mediaStore.upserts {
		if m.Status != models.MediaStatusPending {
			t.Fatalf("expected pending status, got %s", m.Status)
		}
	}
	if mediaStore.upserts[0].Reference != "PS-100" || mediaStore.upserts[0].OriginalURL != "https://cdn.example.com/ps-100-2.jpg" {
		t.Fatalf("unexpected first media row: %+v", mediaStore.upserts[0])
	}
	if mediaStore.upserts[1].Reference != "PS-200" {
		t.Fatalf("unexpected second media row: %+v", mediaStore.upserts[1])
	}
}

func TestImportSkipsMediaForFailedRecords(t *testing.T) {
	mediaStore := &fakeMediaStore{}
	store := &fakePropertyStore{
		bulkErr:   &pgconn.PgError{Code: "23505"},
		insertErr: map[string]error{"PS-100": errors.New("insert blew up")},
	}
	imp := testImporter(store, "http://feeds.invalid/export.xml", nil, nil, NewMediaService(mediaStore))

	report, err := imp.Run(context.Background(), []byte(twoPropertyFeed))
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if report.Processed != 1 {
		t.Fatalf("expected 1 processed, got %d", report.Processed)
	}
	if report.ErrorCount != 1 {
		t.Fatalf("expected 1 record error, got %d", report.ErrorCount)
	}

	// Only PS-200 landed, so only its image is queued.
	if len(mediaStore.upserts) != 1 {
		t.Fatalf("expected 1 media row, got %d", len(mediaStore.upserts))
	}
	if mediaStore.upserts[0].Reference != "PS-200" {
		t.Fatalf("unexpected media row: %+v", mediaStore.upserts[0])
	}
}
