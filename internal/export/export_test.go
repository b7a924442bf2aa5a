package export

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/csv"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"internship-sync/tracker/internal/database"
	"internship-sync/tracker/internal/models"
	"internship-sync/tracker/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	db, err := database.NewDB(database.NewConfig(filepath.Join(t.TempDir(), "test.db")))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return store.New(db)
}

func TestWriteCSV(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	company := models.NewCompany("Acme Corp")
	company.Website = sql.NullString{String: "https://acme.example", Valid: true}
	_, _, err := st.InsertInternship(ctx, company, &models.Internship{
		Title:       "Software Intern",
		Location:    sql.NullString{String: "Rabat, Morocco", Valid: true},
		JobURL:      sql.NullString{String: "https://example.com/1", Valid: true},
		Site:        "linkedin",
		DatePosted:  sql.NullTime{Time: time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC), Valid: true},
		DateScraped: time.Date(2026, 8, 25, 10, 30, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	_, _, err = st.InsertInternship(ctx, models.NewCompany("Globex"), &models.Internship{
		Title:       "Data Intern",
		Site:        "indeed",
		JobURL:      sql.NullString{String: "https://example.com/2", Valid: true},
		DateScraped: time.Now().UTC(),
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	count, err := WriteCSV(ctx, st, &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, Header, records[0])

	first := records[1]
	assert.Equal(t, "Software Intern", first[1])
	assert.Equal(t, "Acme Corp", first[2])
	assert.Equal(t, "https://acme.example", first[3])
	assert.Equal(t, "Rabat, Morocco", first[4])
	assert.Equal(t, "false", first[5])
	assert.Equal(t, "linkedin", first[6])
	assert.Equal(t, "open", first[7])
	assert.Equal(t, "new", first[8])
	assert.Equal(t, "", first[9])
	assert.Equal(t, "https://example.com/1", first[10])
	assert.Equal(t, "2026-08-20", first[11])
	assert.Equal(t, "2026-08-25 10:30:00", first[12])

	// Missing optional fields become empty cells, not literals.
	second := records[2]
	assert.Equal(t, "", second[4])
	assert.Equal(t, "", second[11])
}

func TestWriteCSVEmptyDatabase(t *testing.T) {
	st := newTestStore(t)

	var buf bytes.Buffer
	count, err := WriteCSV(context.Background(), st, &buf)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, Header, records[0])
}
