package models

import (
	"encoding/json"
	"time"
)

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// ImportRun is the durable run record kept in Postgres next to the
// properties it touched.
type ImportRun struct {
	ID               int64           `json:"id" db:"id"`
	FeedName         string          `json:"feed_name" db:"feed_name"`
	StartedAt        time.Time       `json:"started_at" db:"started_at"`
	FinishedAt       *time.Time      `json:"finished_at" db:"finished_at"`
	Status           RunStatus       `json:"status" db:"status"`
	TotalRecords     int             `json:"total_records" db:"total_records"`
	ProcessedRecords int             `json:"processed_records" db:"processed_records"`
	ErrorsCount      int             `json:"errors_count" db:"errors_count"`
	ErrorMessage     string          `json:"error_message" db:"error_message"`
	Metadata         json.RawMessage `json:"metadata" db:"metadata"`
}

// Run is the local operational run record kept in SQLite.
type Run struct {
	ID               int64      `json:"id" db:"id"`
	FeedName         string     `json:"feed_name" db:"feed_name"`
	StartedAt        time.Time  `json:"started_at" db:"started_at"`
	FinishedAt       *time.Time `json:"finished_at" db:"finished_at"`
	Status           RunStatus  `json:"status" db:"status"`
	TotalRecords     int        `json:"total_records" db:"total_records"`
	ProcessedRecords int        `json:"processed_records" db:"processed_records"`
	ErrorsCount      int        `json:"errors_count" db:"errors_count"`
}

type FeedStats struct {
	FeedName          string     `json:"feed_name" db:"feed_name"`
	LastRunAt         *time.Time `json:"last_run_at" db:"last_run_at"`
	LastRunStatus     string     `json:"last_run_status" db:"last_run_status"`
	LastReachableAt   *time.Time `json:"last_reachable_at" db:"last_reachable_at"`
	TotalProcessed    int        `json:"total_processed" db:"total_processed"`
	SuccessRate       float64    `json:"success_rate" db:"success_rate"`
	AvgRunDurationSec int        `json:"avg_run_duration_sec" db:"avg_run_duration_sec"`
}
