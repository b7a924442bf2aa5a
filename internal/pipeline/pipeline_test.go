package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"internship-sync/tracker/internal/config"
	"internship-sync/tracker/internal/database"
	"internship-sync/tracker/internal/models"
	"internship-sync/tracker/internal/normalize"
	"internship-sync/tracker/internal/source"
	"internship-sync/tracker/internal/store"
)

// fakeSource replays canned listings and can be told to fail.
type fakeSource struct {
	name     string
	listings []source.RawListing
	err      error
	calls    int
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Search(_ context.Context, _ source.SearchParams) ([]source.RawListing, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.listings, nil
}

func rawListing(site, title, company, url string) source.RawListing {
	return source.RawListing{
		Site: site,
		Fields: map[string]any{
			"title":    title,
			"company":  company,
			"location": "Rabat, Morocco",
			"url":      url,
		},
	}
}

type testEnv struct {
	cfg   *config.Config
	store *store.Store
}

func newTestEnv(t *testing.T, sites ...string) *testEnv {
	t.Helper()

	if len(sites) == 0 {
		sites = []string{"linkedin"}
	}
	cfg := &config.Config{
		DBPath:        filepath.Join(t.TempDir(), "test.db"),
		SearchTerms:   []string{"software intern"},
		Locations:     []string{"Morocco"},
		SiteNames:     sites,
		JobType:       "internship",
		Country:       "Morocco",
		ResultsWanted: 100,
		WorkerCount:   2,
	}

	db, err := database.NewDB(database.NewConfig(cfg.DBPath))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return &testEnv{cfg: cfg, store: store.New(db)}
}

func (e *testEnv) run(t *testing.T, sources map[string]source.Source) Summary {
	t.Helper()

	n, err := normalize.New(normalize.DefaultRules())
	require.NoError(t, err)

	summary, err := New(e.cfg, e.store, sources, n).Run(context.Background())
	require.NoError(t, err)
	return summary
}

func (e *testEnv) openCount(t *testing.T) int {
	t.Helper()
	rows, err := e.store.ListInternships(context.Background(), store.Filter{Status: models.StatusOpen})
	require.NoError(t, err)
	return len(rows)
}

func TestRunInsertsNewListings(t *testing.T) {
	env := newTestEnv(t)
	src := &fakeSource{name: "linkedin", listings: []source.RawListing{
		rawListing("linkedin", "Software Intern", "Acme", "https://example.com/1"),
		rawListing("linkedin", "Data Intern", "Globex", "https://example.com/2"),
	}}

	summary := env.run(t, map[string]source.Source{"linkedin": src})

	assert.Equal(t, int64(2), summary.Fetched)
	assert.Equal(t, int64(2), summary.Inserted)
	assert.Equal(t, int64(0), summary.Skipped)
	assert.Equal(t, int64(0), summary.Closed)
	assert.Equal(t, 2, env.openCount(t))

	runs, err := env.store.ListRuns(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, models.RunCompleted, runs[0].Status)
	assert.Equal(t, 2, runs[0].Inserted)
}

func TestRunIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	src := &fakeSource{name: "linkedin", listings: []source.RawListing{
		rawListing("linkedin", "Software Intern", "Acme", "https://example.com/1"),
		rawListing("linkedin", "Data Intern", "Globex", "https://example.com/2"),
	}}
	sources := map[string]source.Source{"linkedin": src}

	env.run(t, sources)
	second := env.run(t, sources)

	assert.Equal(t, int64(0), second.Inserted)
	assert.Equal(t, int64(2), second.Skipped)
	assert.Equal(t, int64(0), second.Closed)
	assert.Equal(t, 2, env.openCount(t))
}

func TestRunDeduplicatesWithinOneRun(t *testing.T) {
	env := newTestEnv(t)
	// Two search terms yield the same posting twice.
	env.cfg.SearchTerms = []string{"software intern", "developer intern"}
	src := &fakeSource{name: "linkedin", listings: []source.RawListing{
		rawListing("linkedin", "Software Intern", "Acme", "https://example.com/1"),
	}}

	summary := env.run(t, map[string]source.Source{"linkedin": src})

	assert.Equal(t, int64(2), summary.Fetched)
	assert.Equal(t, int64(1), summary.Inserted)
	assert.Equal(t, int64(1), summary.Skipped)
	assert.Equal(t, 1, env.openCount(t))
}

func TestRunClosesStaleListings(t *testing.T) {
	env := newTestEnv(t)
	src := &fakeSource{name: "linkedin", listings: []source.RawListing{
		rawListing("linkedin", "Software Intern", "Acme", "https://example.com/1"),
		rawListing("linkedin", "Data Intern", "Globex", "https://example.com/2"),
	}}
	sources := map[string]source.Source{"linkedin": src}
	env.run(t, sources)

	// The first posting disappeared from the board.
	src.listings = src.listings[1:]
	summary := env.run(t, sources)

	assert.Equal(t, int64(1), summary.Closed)
	assert.Equal(t, 1, env.openCount(t))
}

func TestRunClosingIsScopedToSite(t *testing.T) {
	env := newTestEnv(t, "linkedin", "indeed")
	li := &fakeSource{name: "linkedin", listings: []source.RawListing{
		rawListing("linkedin", "Software Intern", "Acme", "https://example.com/li/1"),
	}}
	in := &fakeSource{name: "indeed", listings: []source.RawListing{
		rawListing("indeed", "Data Intern", "Globex", "https://example.com/in/1"),
	}}
	sources := map[string]source.Source{"linkedin": li, "indeed": in}
	env.run(t, sources)

	// Next run only covers linkedin; indeed rows must stay open.
	env.cfg.SiteNames = []string{"linkedin"}
	li.listings = nil
	summary := env.run(t, sources)

	assert.Equal(t, int64(1), summary.Closed)

	rows, err := env.store.ListInternships(context.Background(), store.Filter{Site: "indeed"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, models.StatusOpen, rows[0].Status)
}

func TestRunReopensReturnedListing(t *testing.T) {
	env := newTestEnv(t)
	src := &fakeSource{name: "linkedin", listings: []source.RawListing{
		rawListing("linkedin", "Software Intern", "Acme", "https://example.com/1"),
	}}
	sources := map[string]source.Source{"linkedin": src}
	env.run(t, sources)

	saved := src.listings
	src.listings = nil
	closing := env.run(t, sources)
	require.Equal(t, int64(1), closing.Closed)

	src.listings = saved
	summary := env.run(t, sources)

	assert.Equal(t, int64(1), summary.Reopened)
	assert.Equal(t, int64(0), summary.Inserted)
	assert.Equal(t, 1, env.openCount(t))

	runs, err := env.store.ListRuns(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, 1, runs[0].Reopened)
}

func TestRunIsolatesFailingSite(t *testing.T) {
	env := newTestEnv(t, "linkedin", "indeed")
	li := &fakeSource{name: "linkedin", listings: []source.RawListing{
		rawListing("linkedin", "Software Intern", "Acme", "https://example.com/li/1"),
	}}
	in := &fakeSource{name: "indeed", listings: []source.RawListing{
		rawListing("indeed", "Data Intern", "Globex", "https://example.com/in/1"),
	}}
	sources := map[string]source.Source{"linkedin": li, "indeed": in}
	env.run(t, sources)

	// Indeed starts failing. Its stored rows must not get mass-closed.
	in.err = errors.New("boom")
	in.listings = nil
	summary := env.run(t, sources)

	assert.Equal(t, int64(1), summary.Errors)
	assert.Equal(t, int64(0), summary.Closed)
	assert.Equal(t, 2, env.openCount(t))

	runs, err := env.store.ListRuns(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, 1, runs[0].Errors)
}

func TestRunRejectsNonInternships(t *testing.T) {
	env := newTestEnv(t)
	src := &fakeSource{name: "linkedin", listings: []source.RawListing{
		rawListing("linkedin", "Senior Software Engineer", "Acme", "https://example.com/1"),
		rawListing("linkedin", "Software Intern", "Acme", "https://example.com/2"),
	}}

	summary := env.run(t, map[string]source.Source{"linkedin": src})

	assert.Equal(t, int64(2), summary.Fetched)
	assert.Equal(t, int64(1), summary.Inserted)
	assert.Equal(t, int64(1), summary.Rejected)
}

func TestDryRunWritesNothing(t *testing.T) {
	env := newTestEnv(t)
	src := &fakeSource{name: "linkedin", listings: []source.RawListing{
		rawListing("linkedin", "Software Intern", "Acme", "https://example.com/1"),
		rawListing("linkedin", "Software Intern", "Acme", "https://example.com/1"),
	}}
	env.cfg.DryRun = true

	summary := env.run(t, map[string]source.Source{"linkedin": src})

	// Decisions are made and counted, including intra-run duplicates.
	assert.True(t, summary.DryRun)
	assert.Equal(t, int64(1), summary.Inserted)
	assert.Equal(t, int64(1), summary.Skipped)

	// But nothing reached the database, not even an audit row.
	assert.Equal(t, 0, env.openCount(t))
	runs, err := env.store.ListRuns(context.Background(), 5)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestDryRunReportsStaleCount(t *testing.T) {
	env := newTestEnv(t)
	src := &fakeSource{name: "linkedin", listings: []source.RawListing{
		rawListing("linkedin", "Software Intern", "Acme", "https://example.com/1"),
	}}
	sources := map[string]source.Source{"linkedin": src}
	env.run(t, sources)

	env.cfg.DryRun = true
	src.listings = nil
	summary := env.run(t, sources)

	assert.Equal(t, int64(1), summary.Closed)
	// The row itself is still open.
	assert.Equal(t, 1, env.openCount(t))
}
