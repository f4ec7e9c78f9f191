package domain // export_service/domain

import (
	"context"
	"time"
)

// Movie is a catalog row as exported. Optional columns are pointers.
type Movie struct {
	ID          int64
	Title       string
	Description *string
	ReleaseDate *time.Time
	Director    *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CatalogRepository is the read side of the movie catalog used by the export pipeline.
type CatalogRepository interface {
	// ListMovies returns every movie, ordered by id.
	ListMovies(ctx context.Context) ([]*Movie, error)
}
