package storage

import (
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"propsync/models"
)

// SQLiteStore holds the local operational state: run history, the command
// queue, log lines, and per-feed aggregates. Property data lives in Postgres.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY,
		feed_name TEXT,
		started_at DATETIME,
		finished_at DATETIME,
		status TEXT,
		total_records INTEGER DEFAULT 0,
		processed_records INTEGER DEFAULT 0,
		errors_count INTEGER DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS logs (
		id INTEGER PRIMARY KEY,
		run_id INTEGER,
		timestamp DATETIME,
		level TEXT,
		message TEXT,
		feed_name TEXT
	);

	CREATE TABLE IF NOT EXISTS commands (
		id INTEGER PRIMARY KEY,
		command TEXT,
		params JSON,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		processed_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS feed_stats (
		feed_name TEXT PRIMARY KEY,
		last_run_at DATETIME,
		last_run_status TEXT,
		last_reachable_at DATETIME,
		total_processed INTEGER DEFAULT 0,
		success_rate REAL,
		avg_run_duration_sec INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_commands_pending ON commands(processed_at) WHERE processed_at IS NULL;
	CREATE INDEX IF NOT EXISTS idx_logs_run ON logs(run_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_runs_feed ON runs(feed_name, started_at);
	CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status, started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// Runs
// =============================================================================

func (s *SQLiteStore) CreateRun(run *models.Run) (int64, error) {
	result, err := s.db.Exec(`
		INSERT INTO runs (feed_name, started_at, status, total_records, processed_records, errors_count)
		VALUES (?, ?, ?, 0, 0, 0)`,
		run.FeedName, run.StartedAt, run.Status)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func (s *SQLiteStore) UpdateRun(run *models.Run) error {
	_, err := s.db.Exec(`
		UPDATE runs SET finished_at = ?, status = ?, total_records = ?,
			processed_records = ?, errors_count = ?
		WHERE id = ?`,
		run.FinishedAt, run.Status, run.TotalRecords,
		run.ProcessedRecords, run.ErrorsCount, run.ID)
	return err
}

func (s *SQLiteStore) GetRun(id int64) (*models.Run, error) {
	row := s.db.QueryRow(`
		SELECT id, feed_name, started_at, finished_at, status,
			total_records, processed_records, errors_count
		FROM runs WHERE id = ?`, id)

	var run models.Run
	err := row.Scan(&run.ID, &run.FeedName, &run.StartedAt, &run.FinishedAt,
		&run.Status, &run.TotalRecords, &run.ProcessedRecords, &run.ErrorsCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// =============================================================================
// Logs
// =============================================================================

func (s *SQLiteStore) Log(runID *int64, level models.LogLevel, message, feedName string) error {
	_, err := s.db.Exec(`
		INSERT INTO logs (run_id, timestamp, level, message, feed_name)
		VALUES (?, ?, ?, ?, ?)`,
		runID, time.Now(), level, message, feedName)
	return err
}

// =============================================================================
// Commands
// =============================================================================

func (s *SQLiteStore) EnqueueCommand(cmd models.CommandType, params *models.CommandParams) error {
	var raw interface{}
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return err
		}
		raw = string(data)
	}

	_, err := s.db.Exec(`INSERT INTO commands (command, params) VALUES (?, ?)`, cmd, raw)
	return err
}

func (s *SQLiteStore) GetPendingCommands() ([]models.Command, error) {
	rows, err := s.db.Query(`
		SELECT id, command, params, created_at, processed_at
		FROM commands WHERE processed_at IS NULL ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cmds []models.Command
	for rows.Next() {
		var cmd models.Command
		var params sql.NullString
		if err := rows.Scan(&cmd.ID, &cmd.Command, &params, &cmd.CreatedAt, &cmd.ProcessedAt); err != nil {
			return nil, err
		}
		if params.Valid {
			cmd.Params = json.RawMessage(params.String)
		}
		cmds = append(cmds, cmd)
	}
	return cmds, rows.Err()
}

func (s *SQLiteStore) MarkCommandProcessed(id int64) error {
	_, err := s.db.Exec(`UPDATE commands SET processed_at = ? WHERE id = ?`, time.Now(), id)
	return err
}

func (s *SQLiteStore) ParseCommandParams(cmd *models.Command) (*models.CommandParams, error) {
	if cmd.Params == nil || string(cmd.Params) == "null" {
		return &models.CommandParams{}, nil
	}
	var params models.CommandParams
	if err := json.Unmarshal(cmd.Params, &params); err != nil {
		return nil, err
	}
	return &params, nil
}

// =============================================================================
// Feed Stats
// =============================================================================

// UpdateFeedStats recomputes the aggregate row for a feed from its run
// history. Called after every run.
func (s *SQLiteStore) UpdateFeedStats(feedName string) error {
	_, err := s.db.Exec(`
		INSERT INTO feed_stats (feed_name, last_run_at, last_run_status, total_processed,
			success_rate, avg_run_duration_sec)
		SELECT
			?,
			(SELECT started_at FROM runs WHERE feed_name = ? ORDER BY started_at DESC LIMIT 1),
			(SELECT status FROM runs WHERE feed_name = ? ORDER BY started_at DESC LIMIT 1),
			(SELECT COALESCE(SUM(processed_records), 0) FROM runs WHERE feed_name = ?),
			(SELECT CAST(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END) AS REAL) /
				NULLIF(COUNT(*), 0) FROM runs WHERE feed_name = ?),
			(SELECT CAST(ROUND(AVG((julianday(finished_at) - julianday(started_at)) * 86400)) AS INTEGER)
				FROM runs WHERE feed_name = ? AND finished_at IS NOT NULL)
		ON CONFLICT(feed_name) DO UPDATE SET
			last_run_at = excluded.last_run_at,
			last_run_status = excluded.last_run_status,
			total_processed = excluded.total_processed,
			success_rate = excluded.success_rate,
			avg_run_duration_sec = excluded.avg_run_duration_sec`,
		feedName, feedName, feedName, feedName, feedName, feedName)
	return err
}

// MarkFeedReachable records a successful reachability probe without touching
// the run-derived aggregates.
func (s *SQLiteStore) MarkFeedReachable(feedName string, t time.Time) error {
	_, err := s.db.Exec(`
		INSERT INTO feed_stats (feed_name, last_reachable_at)
		VALUES (?, ?)
		ON CONFLICT(feed_name) DO UPDATE SET last_reachable_at = excluded.last_reachable_at`,
		feedName, t)
	return err
}

func (s *SQLiteStore) GetFeedStats(feedName string) (*models.FeedStats, error) {
	row := s.db.QueryRow(`
		SELECT feed_name, last_run_at, COALESCE(last_run_status, ''), last_reachable_at,
			COALESCE(total_processed, 0), COALESCE(success_rate, 0), COALESCE(avg_run_duration_sec, 0)
		FROM feed_stats WHERE feed_name = ?`, feedName)

	var stats models.FeedStats
	var lastRun, lastReachable sql.NullTime
	err := row.Scan(&stats.FeedName, &lastRun, &stats.LastRunStatus, &lastReachable,
		&stats.TotalProcessed, &stats.SuccessRate, &stats.AvgRunDurationSec)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if lastRun.Valid {
		stats.LastRunAt = &lastRun.Time
	}
	if lastReachable.Valid {
		stats.LastReachableAt = &lastReachable.Time
	}
	return &stats, nil
}
