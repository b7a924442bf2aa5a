package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"internship-sync/tracker/internal/database"
	"internship-sync/tracker/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	cfg := database.NewConfig(filepath.Join(t.TempDir(), "test.db"))
	db, err := database.NewDB(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return New(db)
}

func testInternship(title, url, site string) *models.Internship {
	return &models.Internship{
		Title:       title,
		Location:    sql.NullString{String: "Rabat, Morocco", Valid: true},
		JobURL:      sql.NullString{String: url, Valid: url != ""},
		Site:        site,
		DateScraped: time.Now().UTC(),
	}
}

func TestUpsertCompanyCreatesAndReuses(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	id1, err := st.UpsertCompany(ctx, models.NewCompany("Acme Corp"))
	require.NoError(t, err)

	// Case and spacing variants resolve to the same row.
	id2, err := st.UpsertCompany(ctx, models.NewCompany("  ACME   corp "))
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	id3, err := st.UpsertCompany(ctx, models.NewCompany("Globex"))
	require.NoError(t, err)
	assert.NotEqual(t, id1, id3)
}

func TestUpsertCompanyFillsWithoutClobbering(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	first := models.NewCompany("Acme Corp")
	first.Website = sql.NullString{String: "https://acme.example", Valid: true}
	id, err := st.UpsertCompany(ctx, first)
	require.NoError(t, err)

	second := models.NewCompany("Acme Corp")
	second.Website = sql.NullString{String: "https://other.example", Valid: true}
	second.Industry = sql.NullString{String: "Manufacturing", Valid: true}
	id2, err := st.UpsertCompany(ctx, second)
	require.NoError(t, err)
	require.Equal(t, id, id2)

	companies, err := st.ListCompanies(ctx, 10)
	require.NoError(t, err)
	require.Len(t, companies, 1)
	// Existing website kept, empty industry filled.
	assert.Equal(t, "https://acme.example", companies[0].Website.String)
	assert.Equal(t, "Manufacturing", companies[0].Industry.String)
}

func TestInsertInternshipIsIdempotentOnURL(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	company := models.NewCompany("Acme Corp")
	id, inserted, err := st.InsertInternship(ctx, company, testInternship("Intern", "https://example.com/1", "linkedin"))
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.Greater(t, id, int64(0))

	_, inserted, err = st.InsertInternship(ctx, models.NewCompany("Acme Corp"), testInternship("Intern", "https://example.com/1", "linkedin"))
	require.NoError(t, err)
	assert.False(t, inserted)

	rows, err := st.ListInternships(ctx, Filter{})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestInsertInternshipDefaults(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	id, inserted, err := st.InsertInternship(ctx, models.NewCompany("Acme"), testInternship("Intern", "https://example.com/1", "indeed"))
	require.NoError(t, err)
	require.True(t, inserted)

	row, err := st.GetInternship(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOpen, row.Status)
	assert.Equal(t, models.UserStatusNew, row.UserStatus)
	assert.Equal(t, "Acme", row.CompanyName)
}

func TestKeyIndexPrefersMostRecentlyScraped(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	older := testInternship("Intern", "https://example.com/old", "linkedin")
	older.DateScraped = time.Now().Add(-48 * time.Hour).UTC()
	oldID, _, err := st.InsertInternship(ctx, models.NewCompany("Acme"), older)
	require.NoError(t, err)

	newer := testInternship("Intern", "https://example.com/new", "linkedin")
	newID, _, err := st.InsertInternship(ctx, models.NewCompany("Acme"), newer)
	require.NoError(t, err)

	idx, err := st.KeyIndex(ctx)
	require.NoError(t, err)

	assert.Equal(t, oldID, idx.ByURL["https://example.com/old"].ID)
	assert.Equal(t, newID, idx.ByURL["https://example.com/new"].ID)
	// Both rows share one fingerprint; the most recent row wins.
	fp := models.Fingerprint("Intern", "acme", "Rabat, Morocco")
	assert.Equal(t, newID, idx.ByFingerprint[fp].ID)
}

func TestCloseMissingRespectsScopeAndSeen(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	liID, _, err := st.InsertInternship(ctx, models.NewCompany("Acme"), testInternship("Intern A", "https://example.com/1", "linkedin"))
	require.NoError(t, err)
	liID2, _, err := st.InsertInternship(ctx, models.NewCompany("Acme"), testInternship("Intern B", "https://example.com/2", "linkedin"))
	require.NoError(t, err)
	inID, _, err := st.InsertInternship(ctx, models.NewCompany("Acme"), testInternship("Intern C", "https://example.com/3", "indeed"))
	require.NoError(t, err)

	// Only linkedin is in scope; Intern A was seen again, Intern B was not.
	closed, err := st.CloseMissing(ctx, []string{"linkedin"}, map[int64]struct{}{liID: {}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), closed)

	assertStatus := func(id int64, want string) {
		row, err := st.GetInternship(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, row.Status, "internship %d", id)
	}
	assertStatus(liID, models.StatusOpen)
	assertStatus(liID2, models.StatusClosed)
	assertStatus(inID, models.StatusOpen)
}

func TestCountStaleMatchesCloseMissing(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	_, _, err := st.InsertInternship(ctx, models.NewCompany("Acme"), testInternship("Intern A", "https://example.com/1", "linkedin"))
	require.NoError(t, err)
	_, _, err = st.InsertInternship(ctx, models.NewCompany("Acme"), testInternship("Intern B", "https://example.com/2", "linkedin"))
	require.NoError(t, err)

	stale, err := st.CountStale(ctx, []string{"linkedin"}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stale)

	// Counting must not close anything.
	rows, err := st.ListInternships(ctx, Filter{Status: models.StatusOpen})
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestReopenInternshipKeepsUserFields(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	id, _, err := st.InsertInternship(ctx, models.NewCompany("Acme"), testInternship("Intern", "https://example.com/1", "linkedin"))
	require.NoError(t, err)

	notes := "sent follow-up mail"
	require.NoError(t, st.UpdateUserStatus(ctx, id, models.UserStatusApplied, &notes, nil))

	_, err = st.CloseMissing(ctx, []string{"linkedin"}, nil)
	require.NoError(t, err)

	require.NoError(t, st.ReopenInternship(ctx, id, sql.NullInt64{}, time.Now()))

	row, err := st.GetInternship(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOpen, row.Status)
	assert.Equal(t, models.UserStatusApplied, row.UserStatus)
	assert.Equal(t, notes, row.UserNotes.String)
}

func TestUpdateUserStatusValidation(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	id, _, err := st.InsertInternship(ctx, models.NewCompany("Acme"), testInternship("Intern", "https://example.com/1", "linkedin"))
	require.NoError(t, err)

	assert.Error(t, st.UpdateUserStatus(ctx, id, "not-a-status", nil, nil))

	badRating := 9
	assert.Error(t, st.UpdateUserStatus(ctx, id, models.UserStatusApplied, nil, &badRating))

	rating := 4
	require.NoError(t, st.UpdateUserStatus(ctx, id, models.UserStatusInteresting, nil, &rating))
	row, err := st.GetInternship(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.UserStatusInteresting, row.UserStatus)
	assert.Equal(t, int64(4), row.UserRating.Int64)

	err = st.UpdateUserStatus(ctx, 99999, models.UserStatusApplied, nil, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListInternshipsFilters(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	_, _, err := st.InsertInternship(ctx, models.NewCompany("Acme"), testInternship("Intern A", "https://example.com/1", "linkedin"))
	require.NoError(t, err)
	remote := testInternship("Intern B", "https://example.com/2", "indeed")
	remote.IsRemote = true
	id2, _, err := st.InsertInternship(ctx, models.NewCompany("Globex"), remote)
	require.NoError(t, err)

	rows, err := st.ListInternships(ctx, Filter{Site: "indeed"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, id2, rows[0].ID)

	rows, err = st.ListInternships(ctx, Filter{Company: "globex"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Globex", rows[0].CompanyName)

	isRemote := true
	rows, err = st.ListInternships(ctx, Filter{Remote: &isRemote})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, id2, rows[0].ID)

	// Search matches either the title or the company name.
	rows, err = st.ListInternships(ctx, Filter{Search: "intern a"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Intern A", rows[0].Title)

	rows, err = st.ListInternships(ctx, Filter{Search: "Globex"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, id2, rows[0].ID)

	// Newest first, cursor pages downward.
	rows, err = st.ListInternships(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, id2, rows[0].ID)

	rows, err = st.ListInternships(ctx, Filter{BeforeID: id2})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Intern A", rows[0].Title)
}

func TestRunAudit(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	run := &models.Run{
		StartedAt:   time.Now().UTC(),
		SearchTerms: `["intern"]`,
		Locations:   `["Morocco"]`,
		Sites:       `["linkedin"]`,
	}
	id, err := st.StartRun(ctx, run)
	require.NoError(t, err)
	run.ID = id

	run.Status = models.RunCompleted
	run.Fetched = 10
	run.Inserted = 4
	run.Reopened = 2
	run.Skipped = 4
	require.NoError(t, st.FinishRun(ctx, run))

	runs, err := st.ListRuns(ctx, 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, models.RunCompleted, runs[0].Status)
	assert.Equal(t, 4, runs[0].Inserted)
	assert.Equal(t, 2, runs[0].Reopened)
	assert.True(t, runs[0].CompletedAt.Valid)
}
