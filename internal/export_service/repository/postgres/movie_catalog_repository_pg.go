package postgres

import (
	"context"
	"database/sql" // For sql.NullString and sql.NullTime
	"fmt"
	"log/slog"

	exportDomain "github.com/movielib/golang_services/internal/export_service/domain"
	"github.com/movielib/golang_services/internal/platform/database"
)

const listMoviesQuery = `SELECT id, title, description, "releaseDate", director, "createdAt", "updatedAt"
	FROM movie
	ORDER BY id`

type PgMovieCatalogRepository struct {
	db     database.Querier
	logger *slog.Logger
}

func NewPgMovieCatalogRepository(db database.Querier, logger *slog.Logger) exportDomain.CatalogRepository {
	return &PgMovieCatalogRepository{db: db, logger: logger.With("component", "movie_catalog_repository_pg")}
}

// ListMovies reads the whole catalog ordered by id. A row that fails to scan
// fails the whole read.
func (r *PgMovieCatalogRepository) ListMovies(ctx context.Context) ([]*exportDomain.Movie, error) {
	rows, err := r.db.Query(ctx, listMoviesQuery)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error querying movies for export", "error", err)
		return nil, fmt.Errorf("querying movie: %w", err)
	}
	defer rows.Close()

	movies := make([]*exportDomain.Movie, 0)
	for rows.Next() {
		var m exportDomain.Movie
		var description, director sql.NullString
		var releaseDate sql.NullTime

		if err := rows.Scan(
			&m.ID, &m.Title, &description, &releaseDate, &director, &m.CreatedAt, &m.UpdatedAt,
		); err != nil {
			r.logger.ErrorContext(ctx, "Error scanning movie row for export", "error", err)
			return nil, fmt.Errorf("scanning movie: %w", err)
		}
		if description.Valid {
			m.Description = &description.String
		}
		if releaseDate.Valid {
			m.ReleaseDate = &releaseDate.Time
		}
		if director.Valid {
			m.Director = &director.String
		}
		movies = append(movies, &m)
	}
	if err := rows.Err(); err != nil {
		r.logger.ErrorContext(ctx, "Error after iterating movie rows for export", "error", err)
		return nil, fmt.Errorf("iterating movie: %w", err)
	}

	r.logger.DebugContext(ctx, "Fetched movies for export", "count", len(movies))
	return movies, nil
}
