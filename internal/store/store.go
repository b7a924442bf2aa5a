package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"internship-sync/tracker/internal/database"
	"internship-sync/tracker/internal/dedupe"
	"internship-sync/tracker/internal/models"
)

// ErrNotFound is returned by lookups when no row matches.
var ErrNotFound = errors.New("not found")

// Store owns all reads and writes of the tracker schema. SQLite allows a
// single writer at a time, so write paths serialize on an internal mutex
// while reads go straight to the pool.
type Store struct {
	db *database.DB

	writeMu sync.Mutex
}

// New wraps an open database handle.
func New(db *database.DB) *Store {
	return &Store{db: db}
}

// KeyIndex loads the identity keys of every stored internship. Rows are
// scanned oldest-first so that when two rows share a fingerprint the most
// recently scraped one ends up in the index.
func (s *Store) KeyIndex(ctx context.Context) (dedupe.Index, error) {
	idx := dedupe.NewIndex()

	rows, err := s.db.QueryxContext(ctx, `
		SELECT i.id, i.status, i.job_url, i.title, i.location, c.name_normalized
		FROM internships i
		JOIN companies c ON c.id = i.company_id
		ORDER BY i.date_scraped ASC, i.id ASC`)
	if err != nil {
		return idx, fmt.Errorf("failed to load key index: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id         int64
			status     string
			jobURL     sql.NullString
			title      string
			location   sql.NullString
			companyKey string
		)
		if err := rows.Scan(&id, &status, &jobURL, &title, &location, &companyKey); err != nil {
			return idx, fmt.Errorf("failed to scan key index row: %w", err)
		}
		key := dedupe.Key{ID: id, Status: status}
		if jobURL.Valid && jobURL.String != "" {
			idx.ByURL[jobURL.String] = key
		}
		idx.ByFingerprint[models.Fingerprint(title, companyKey, location.String)] = key
	}
	if err := rows.Err(); err != nil {
		return idx, fmt.Errorf("failed to iterate key index: %w", err)
	}
	return idx, nil
}

// UpsertCompany finds or creates the company by normalized name and returns
// its id. Optional fields on an existing row are only filled when currently
// empty; populated values are never overwritten by scraped data.
func (s *Store) UpsertCompany(ctx context.Context, company *models.Company) (int64, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin company upsert: %w", err)
	}
	defer tx.Rollback()

	id, err := upsertCompanyTx(ctx, tx, company)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit company upsert: %w", err)
	}
	return id, nil
}

func upsertCompanyTx(ctx context.Context, tx *sqlx.Tx, company *models.Company) (int64, error) {
	var existing models.Company
	err := tx.GetContext(ctx, &existing,
		`SELECT * FROM companies WHERE name_normalized = ?`, company.NameNormalized)
	switch {
	case err == nil:
		if err := fillCompanyTx(ctx, tx, &existing, company); err != nil {
			return 0, err
		}
		return existing.ID, nil
	case errors.Is(err, sql.ErrNoRows):
		res, err := tx.ExecContext(ctx, `
			INSERT INTO companies (name, name_normalized, website, industry, country, description)
			VALUES (?, ?, ?, ?, ?, ?)`,
			company.Name, company.NameNormalized,
			company.Website, company.Industry, company.Country, company.Description)
		if err != nil {
			return 0, fmt.Errorf("failed to insert company %q: %w", company.Name, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("failed to read company id: %w", err)
		}
		return id, nil
	default:
		return 0, fmt.Errorf("failed to look up company %q: %w", company.Name, err)
	}
}

// fillCompanyTx writes only the optional fields that are empty on the stored
// row and non-empty on the incoming one.
func fillCompanyTx(ctx context.Context, tx *sqlx.Tx, existing, incoming *models.Company) error {
	sets := make([]string, 0, 4)
	args := make([]any, 0, 5)

	fill := func(column string, have, want sql.NullString) {
		if !have.Valid || have.String == "" {
			if want.Valid && want.String != "" {
				sets = append(sets, column+" = ?")
				args = append(args, want.String)
			}
		}
	}
	fill("website", existing.Website, incoming.Website)
	fill("industry", existing.Industry, incoming.Industry)
	fill("country", existing.Country, incoming.Country)
	fill("description", existing.Description, incoming.Description)

	if len(sets) == 0 {
		return nil
	}

	query := "UPDATE companies SET " + joinSets(sets) + ", updated_at = CURRENT_TIMESTAMP WHERE id = ?"
	args = append(args, existing.ID)
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to fill company %d: %w", existing.ID, err)
	}
	return nil
}

func joinSets(sets []string) string {
	out := sets[0]
	for _, s := range sets[1:] {
		out += ", " + s
	}
	return out
}

// InsertInternship upserts the company and inserts the internship row in one
// transaction. The job_url unique constraint makes the insert a no-op when a
// concurrent writer got there first; inserted reports whether a row was
// actually created.
func (s *Store) InsertInternship(ctx context.Context, company *models.Company, internship *models.Internship) (int64, bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, false, fmt.Errorf("failed to begin internship insert: %w", err)
	}
	defer tx.Rollback()

	companyID, err := upsertCompanyTx(ctx, tx, company)
	if err != nil {
		return 0, false, err
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO internships (
			company_id, run_id, title, description, location, is_remote,
			job_url, site, date_posted, date_scraped
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(job_url) DO NOTHING`,
		companyID, internship.RunID, internship.Title, internship.Description,
		internship.Location, internship.IsRemote, internship.JobURL,
		internship.Site, internship.DatePosted, internship.DateScraped.UTC())
	if err != nil {
		return 0, false, fmt.Errorf("failed to insert internship %q: %w", internship.Title, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		if err := tx.Commit(); err != nil {
			return 0, false, fmt.Errorf("failed to commit internship insert: %w", err)
		}
		log.Debug().
			Str("url", internship.JobURL.String).
			Str("title", internship.Title).
			Msg("Duplicate URL detected")
		return 0, false, nil
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, false, fmt.Errorf("failed to read internship id: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, false, fmt.Errorf("failed to commit internship insert: %w", err)
	}
	return id, true, nil
}

// ReopenInternship flips a closed row back to open after the listing
// reappeared. User fields are untouched.
func (s *Store) ReopenInternship(ctx context.Context, id int64, runID sql.NullInt64, scrapedAt time.Time) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		UPDATE internships
		SET status = ?, run_id = ?, date_scraped = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		models.StatusOpen, runID, scrapedAt.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to reopen internship %d: %w", id, err)
	}
	return nil
}

// TouchInternship refreshes date_scraped on a row that was seen again
// unchanged.
func (s *Store) TouchInternship(ctx context.Context, id int64, scrapedAt time.Time) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		UPDATE internships
		SET date_scraped = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		scrapedAt.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to touch internship %d: %w", id, err)
	}
	return nil
}

// CloseMissing marks open rows on the given sites as closed when their id is
// absent from the seen set. Rows on sites outside the run's scope are never
// touched. Returns the number of rows closed.
func (s *Store) CloseMissing(ctx context.Context, sites []string, seen map[int64]struct{}) (int64, error) {
	if len(sites) == 0 {
		return 0, nil
	}

	seenIDs := make([]int64, 0, len(seen))
	for id := range seen {
		seenIDs = append(seenIDs, id)
	}

	query := `UPDATE internships
		SET status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE status = ? AND site IN (?)`
	args := []any{models.StatusClosed, models.StatusOpen, sites}
	if len(seenIDs) > 0 {
		query += ` AND id NOT IN (?)`
		args = append(args, seenIDs)
	}

	query, expanded, err := sqlx.In(query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to build closing query: %w", err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res, err := s.db.ExecContext(ctx, s.db.Rebind(query), expanded...)
	if err != nil {
		return 0, fmt.Errorf("failed to close stale internships: %w", err)
	}
	closed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read closed count: %w", err)
	}
	return closed, nil
}

// CountStale reports how many rows CloseMissing would close, without
// writing. Used by dry runs.
func (s *Store) CountStale(ctx context.Context, sites []string, seen map[int64]struct{}) (int64, error) {
	if len(sites) == 0 {
		return 0, nil
	}

	seenIDs := make([]int64, 0, len(seen))
	for id := range seen {
		seenIDs = append(seenIDs, id)
	}

	query := `SELECT COUNT(*) FROM internships WHERE status = ? AND site IN (?)`
	args := []any{models.StatusOpen, sites}
	if len(seenIDs) > 0 {
		query += ` AND id NOT IN (?)`
		args = append(args, seenIDs)
	}

	query, expanded, err := sqlx.In(query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to build staleness query: %w", err)
	}

	var n int64
	if err := s.db.GetContext(ctx, &n, s.db.Rebind(query), expanded...); err != nil {
		return 0, fmt.Errorf("failed to count stale internships: %w", err)
	}
	return n, nil
}

// UpdateUserStatus moves a listing through the user's application pipeline.
// Only the dashboard calls this; the scrape pipeline never writes user
// fields.
func (s *Store) UpdateUserStatus(ctx context.Context, id int64, status string, notes *string, rating *int) error {
	if !models.ValidUserStatus(status) {
		return fmt.Errorf("invalid user status %q", status)
	}
	if rating != nil && (*rating < 1 || *rating > 5) {
		return fmt.Errorf("invalid rating %d: must be 1 to 5", *rating)
	}

	sets := []string{"user_status = ?"}
	args := []any{status}
	if notes != nil {
		sets = append(sets, "user_notes = ?")
		args = append(args, *notes)
	}
	if rating != nil {
		sets = append(sets, "user_rating = ?")
		args = append(args, *rating)
	}
	args = append(args, id)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE internships SET "+joinSets(sets)+", updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		args...)
	if err != nil {
		return fmt.Errorf("failed to update user status for internship %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("internship %d: %w", id, ErrNotFound)
	}
	return nil
}

// StartRun opens a scrape_runs audit row and returns its id.
func (s *Store) StartRun(ctx context.Context, run *models.Run) (int64, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO scrape_runs (started_at, status, search_terms, locations, sites, config_snapshot)
		VALUES (?, ?, ?, ?, ?, ?)`,
		run.StartedAt.UTC(), models.RunRunning,
		run.SearchTerms, run.Locations, run.Sites, run.ConfigSnapshot)
	if err != nil {
		return 0, fmt.Errorf("failed to record run start: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read run id: %w", err)
	}
	return id, nil
}

// FinishRun records the run's final status and counters.
func (s *Store) FinishRun(ctx context.Context, run *models.Run) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		UPDATE scrape_runs
		SET completed_at = ?, status = ?, fetched = ?, inserted = ?,
		    reopened = ?, skipped = ?, closed = ?, errors = ?, error_message = ?
		WHERE id = ?`,
		time.Now().UTC(), run.Status, run.Fetched, run.Inserted, run.Reopened,
		run.Skipped, run.Closed, run.Errors, run.ErrorMessage, run.ID)
	if err != nil {
		return fmt.Errorf("failed to record run %d completion: %w", run.ID, err)
	}
	return nil
}
