package app

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	exportDomain "github.com/movielib/golang_services/internal/export_service/domain"
)

// MovieCSVColumns is the fixed header and column order of the export.
var MovieCSVColumns = []string{"id", "title", "description", "releaseDate", "director", "createdAt", "updatedAt"}

// RenderMoviesCSV renders the catalog as CSV: a header row, then one row per movie.
// Quoting follows RFC 4180. Nil fields render as empty fields and timestamps
// as Unix epoch milliseconds.
func RenderMoviesCSV(movies []*exportDomain.Movie) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write(MovieCSVColumns); err != nil {
		return nil, fmt.Errorf("writing CSV header failed: %w", err)
	}

	row := make([]string, len(MovieCSVColumns))
	for i, m := range movies {
		if m == nil {
			return nil, fmt.Errorf("movie at index %d is nil", i)
		}
		row[0] = strconv.FormatInt(m.ID, 10)
		row[1] = m.Title
		row[2] = ptrToString(m.Description)
		row[3] = ptrToTimeToString(m.ReleaseDate)
		row[4] = ptrToString(m.Director)
		row[5] = timeToString(m.CreatedAt)
		row[6] = timeToString(m.UpdatedAt)
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("writing CSV row for movie %d failed: %w", m.ID, err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("csv writer error: %w", err)
	}
	return buf.Bytes(), nil
}

// ptrToString converts a *string to string, returning empty if nil.
func ptrToString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func ptrToTimeToString(t *time.Time) string {
	if t == nil {
		return ""
	}
	return timeToString(*t)
}

func timeToString(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return strconv.FormatInt(t.UnixMilli(), 10)
}
