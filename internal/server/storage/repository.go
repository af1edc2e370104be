// Package storage holds the read-only queries behind the API.
package storage

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/jmoiron/sqlx"

	"vacancy-watch/poster/internal/models"
	"vacancy-watch/poster/internal/server/pagination"
)

// Status filters listings by their posted flag.
type Status string

const (
	StatusAll      Status = "all"
	StatusUnposted Status = "unposted"
	StatusPosted   Status = "posted"
)

// ParseStatus validates a status filter; empty means all.
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case "":
		return StatusAll, nil
	case StatusAll, StatusUnposted, StatusPosted:
		return st, nil
	default:
		return "", errors.Newf("unknown status %q", s)
	}
}

// ListingRepository defines read operations over listings and the deletion log.
type ListingRepository interface {
	FetchListings(ctx context.Context, status Status, limit int, after *pagination.Cursor) ([]models.Listing, error)
	FetchDeletions(ctx context.Context, limit int, after *pagination.Cursor) ([]models.Deletion, error)
	Ping(ctx context.Context) error
}

// sqlxRepository implements ListingRepository using sqlx.
type sqlxRepository struct {
	db *sqlx.DB
}

// NewRepository creates a new repository instance.
func NewRepository(db *sqlx.DB) ListingRepository {
	return &sqlxRepository{db: db}
}

// FetchListings returns listings in posting order (oldest first), starting after the cursor.
func (r *sqlxRepository) FetchListings(ctx context.Context, status Status, limit int, after *pagination.Cursor) ([]models.Listing, error) {
	var (
		where []string
		args  []any
	)
	switch status {
	case StatusUnposted:
		where = append(where, "posted = 0")
	case StatusPosted:
		where = append(where, "posted = 1")
	}
	if after != nil {
		where = append(where, "(inserted_at > ? OR (inserted_at = ? AND id > ?))")
		args = append(args, after.Time.UTC(), after.Time.UTC(), after.ID)
	}

	query := `SELECT id, title, company, link, salary, summary, inserted_at, posted FROM listings`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY inserted_at ASC, id ASC LIMIT ?"
	args = append(args, limit)

	items := []models.Listing{}
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, errors.Wrap(err, "database query failed")
	}
	return items, nil
}

// FetchDeletions returns deletion records oldest first, starting after the cursor.
func (r *sqlxRepository) FetchDeletions(ctx context.Context, limit int, after *pagination.Cursor) ([]models.Deletion, error) {
	query := `SELECT id, listing_id, link, title, reason, deleted_at FROM listing_deletions`
	var args []any
	if after != nil {
		query += " WHERE (deleted_at > ?) OR (deleted_at = ? AND id > ?)"
		args = append(args, after.Time.UTC(), after.Time.UTC(), after.ID)
	}
	query += " ORDER BY deleted_at ASC, id ASC LIMIT ?"
	args = append(args, limit)

	items := []models.Deletion{}
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, errors.Wrap(err, "database query failed")
	}
	return items, nil
}

func (r *sqlxRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
