package models

import (
	"database/sql"
	"strings"
	"time"
)

// Company represents a row in the 'companies' table
type Company struct {
	ID             int64          `db:"id" json:"id"`
	Name           string         `db:"name" json:"name"`
	NameNormalized string         `db:"name_normalized" json:"-"`
	Website        sql.NullString `db:"website" json:"website,omitempty"`
	Industry       sql.NullString `db:"industry" json:"industry,omitempty"`
	Country        sql.NullString `db:"country" json:"country,omitempty"`
	Description    sql.NullString `db:"description" json:"description,omitempty"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}

// NormalizeCompanyName produces the natural key used for company
// reconciliation: lowercased, whitespace-collapsed.
func NormalizeCompanyName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// NewCompany creates a Company with its normalized name set.
func NewCompany(name string) *Company {
	now := time.Now().UTC()
	return &Company{
		Name:           name,
		NameNormalized: NormalizeCompanyName(name),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}
