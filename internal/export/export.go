package export

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"internship-sync/tracker/internal/models"
	"internship-sync/tracker/internal/store"
)

// Header is the column layout of the CSV export.
var Header = []string{
	"id", "title", "company", "company_website", "location", "is_remote",
	"site", "status", "user_status", "user_rating", "job_url",
	"date_posted", "date_scraped",
}

// WriteCSV streams every internship as CSV to w and returns the number of
// data rows written.
func WriteCSV(ctx context.Context, st *store.Store, w io.Writer) (int, error) {
	rows, err := st.ExportRows(ctx)
	if err != nil {
		return 0, err
	}
	return writeRows(w, rows)
}

func writeRows(w io.Writer, rows []models.InternshipRow) (int, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return 0, fmt.Errorf("failed to write CSV header: %w", err)
	}

	for i, row := range rows {
		record := []string{
			strconv.FormatInt(row.ID, 10),
			row.Title,
			row.CompanyName,
			nullValue(row.CompanyWebsite),
			nullValue(row.Location),
			strconv.FormatBool(row.IsRemote),
			row.Site,
			row.Status,
			row.UserStatus,
			nullInt(row.UserRating),
			nullValue(row.JobURL),
			nullDate(row.DatePosted),
			row.DateScraped.UTC().Format("2006-01-02 15:04:05"),
		}
		if err := cw.Write(record); err != nil {
			return i, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return len(rows), fmt.Errorf("failed to flush CSV: %w", err)
	}
	return len(rows), nil
}

func nullValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

func nullInt(ni sql.NullInt64) string {
	if ni.Valid {
		return strconv.FormatInt(ni.Int64, 10)
	}
	return ""
}

func nullDate(nt sql.NullTime) string {
	if nt.Valid {
		return nt.Time.UTC().Format("2006-01-02")
	}
	return ""
}
