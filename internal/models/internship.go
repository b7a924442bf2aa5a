package models

import (
	"database/sql"
	"strings"
	"time"
)

// Listing status as derived from scraping. Closing happens only through the
// staleness pass at the end of a run, never from user action.
const (
	StatusOpen   = "open"
	StatusClosed = "closed"
)

// User pipeline stages. Owned by the dashboard; the scrape pipeline never
// writes these.
const (
	UserStatusNew          = "new"
	UserStatusInteresting  = "interesting"
	UserStatusApplied      = "applied"
	UserStatusWaiting      = "waiting"
	UserStatusInterviewing = "interviewing"
	UserStatusRejected     = "rejected"
	UserStatusOffer        = "offer"
	UserStatusIgnored      = "ignored"
)

// Internship represents a row in the 'internships' table
type Internship struct {
	ID          int64          `db:"id" json:"id"`
	CompanyID   int64          `db:"company_id" json:"company_id"`
	RunID       sql.NullInt64  `db:"run_id" json:"run_id,omitempty"`
	Title       string         `db:"title" json:"title"`
	Description sql.NullString `db:"description" json:"description,omitempty"`
	Location    sql.NullString `db:"location" json:"location,omitempty"`
	IsRemote    bool           `db:"is_remote" json:"is_remote"`
	JobURL      sql.NullString `db:"job_url" json:"job_url,omitempty"`
	Site        string         `db:"site" json:"site"`
	Status      string         `db:"status" json:"status"`
	UserStatus  string         `db:"user_status" json:"user_status"`
	UserNotes   sql.NullString `db:"user_notes" json:"user_notes,omitempty"`
	UserRating  sql.NullInt64  `db:"user_rating" json:"user_rating,omitempty"`
	DatePosted  sql.NullTime   `db:"date_posted" json:"date_posted,omitempty"`
	DateScraped time.Time      `db:"date_scraped" json:"date_scraped"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updated_at"`
}

// InternshipRow is an Internship joined with its company, used by the
// dashboard listing and the CSV export.
type InternshipRow struct {
	Internship
	CompanyName    string         `db:"company_name" json:"company_name"`
	CompanyWebsite sql.NullString `db:"company_website" json:"company_website,omitempty"`
}

// Fingerprint is the fallback identity key for a listing whose URL is
// missing: normalized title, company key, normalized location.
func Fingerprint(title, companyKey, location string) string {
	norm := func(s string) string {
		return strings.ToLower(strings.Join(strings.Fields(s), " "))
	}
	return norm(title) + "|" + companyKey + "|" + norm(location)
}

func ValidUserStatus(status string) bool {
	switch status {
	case UserStatusNew, UserStatusInteresting, UserStatusApplied,
		UserStatusWaiting, UserStatusInterviewing, UserStatusRejected,
		UserStatusOffer, UserStatusIgnored:
		return true
	}
	return false
}
