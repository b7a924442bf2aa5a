package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"internship-sync/tracker/internal/models"
)

// Filter narrows the dashboard's internship listing. Zero values mean no
// constraint. BeforeID pages newest-first: only rows with a smaller id are
// returned.
type Filter struct {
	Status     string
	UserStatus string
	Site       string
	Company    string
	Search     string
	Remote     *bool
	BeforeID   int64
	Limit      int
}

const defaultPageSize = 50

// ListInternships returns internships joined with their company, newest
// first.
func (s *Store) ListInternships(ctx context.Context, f Filter) ([]models.InternshipRow, error) {
	query := `
		SELECT i.*, c.name AS company_name, c.website AS company_website
		FROM internships i
		JOIN companies c ON c.id = i.company_id
		WHERE 1 = 1`
	args := make([]any, 0, 8)

	if f.Status != "" {
		query += " AND i.status = ?"
		args = append(args, f.Status)
	}
	if f.UserStatus != "" {
		query += " AND i.user_status = ?"
		args = append(args, f.UserStatus)
	}
	if f.Site != "" {
		query += " AND i.site = ?"
		args = append(args, f.Site)
	}
	if f.Company != "" {
		query += " AND c.name_normalized LIKE ?"
		args = append(args, "%"+models.NormalizeCompanyName(f.Company)+"%")
	}
	if f.Search != "" {
		query += " AND (i.title LIKE ? OR c.name LIKE ?)"
		needle := "%" + f.Search + "%"
		args = append(args, needle, needle)
	}
	if f.Remote != nil {
		query += " AND i.is_remote = ?"
		args = append(args, *f.Remote)
	}
	if f.BeforeID > 0 {
		query += " AND i.id < ?"
		args = append(args, f.BeforeID)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	query += " ORDER BY i.id DESC LIMIT ?"
	args = append(args, limit)

	var rows []models.InternshipRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list internships: %w", err)
	}
	return rows, nil
}

// GetInternship returns one internship with its company.
func (s *Store) GetInternship(ctx context.Context, id int64) (models.InternshipRow, error) {
	var row models.InternshipRow
	err := s.db.GetContext(ctx, &row, `
		SELECT i.*, c.name AS company_name, c.website AS company_website
		FROM internships i
		JOIN companies c ON c.id = i.company_id
		WHERE i.id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return row, fmt.Errorf("internship %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return row, fmt.Errorf("failed to get internship %d: %w", id, err)
	}
	return row, nil
}

// ListCompanies returns companies ordered by name.
func (s *Store) ListCompanies(ctx context.Context, limit int) ([]models.Company, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	var companies []models.Company
	err := s.db.SelectContext(ctx, &companies,
		`SELECT * FROM companies ORDER BY name_normalized ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list companies: %w", err)
	}
	return companies, nil
}

// ListRuns returns recent scrape runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]models.Run, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	var runs []models.Run
	err := s.db.SelectContext(ctx, &runs,
		`SELECT * FROM scrape_runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// ExportRows returns every internship joined with its company for the CSV
// export, oldest first so exports are stable across runs.
func (s *Store) ExportRows(ctx context.Context) ([]models.InternshipRow, error) {
	var rows []models.InternshipRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT i.*, c.name AS company_name, c.website AS company_website
		FROM internships i
		JOIN companies c ON c.id = i.company_id
		ORDER BY i.id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to load export rows: %w", err)
	}
	return rows, nil
}

// CountInternships reports how many rows match the filter's status fields,
// used by the dashboard summary.
func (s *Store) CountInternships(ctx context.Context, status, userStatus string) (int64, error) {
	query := `SELECT COUNT(*) FROM internships WHERE 1 = 1`
	args := make([]any, 0, 2)
	if status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}
	if userStatus != "" {
		query += " AND user_status = ?"
		args = append(args, userStatus)
	}
	var n int64
	if err := s.db.GetContext(ctx, &n, query, args...); err != nil {
		return 0, fmt.Errorf("failed to count internships: %w", err)
	}
	return n, nil
}
