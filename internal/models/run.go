package models

import (
	"database/sql"
	"time"
)

// Run statuses for the scrape_runs audit table.
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// Run represents a row in the 'scrape_runs' audit table
type Run struct {
	ID             int64          `db:"id" json:"id"`
	StartedAt      time.Time      `db:"started_at" json:"started_at"`
	CompletedAt    sql.NullTime   `db:"completed_at" json:"completed_at,omitempty"`
	Status         string         `db:"status" json:"status"`
	SearchTerms    string         `db:"search_terms" json:"search_terms"`
	Locations      string         `db:"locations" json:"locations"`
	Sites          string         `db:"sites" json:"sites"`
	Fetched        int            `db:"fetched" json:"fetched"`
	Inserted       int            `db:"inserted" json:"inserted"`
	Reopened       int            `db:"reopened" json:"reopened"`
	Skipped        int            `db:"skipped" json:"skipped"`
	Closed         int            `db:"closed" json:"closed"`
	Errors         int            `db:"errors" json:"errors"`
	ErrorMessage   sql.NullString `db:"error_message" json:"error_message,omitempty"`
	ConfigSnapshot sql.NullString `db:"config_snapshot" json:"-"`
}
