// Package store owns every mutation of persisted listings and scheduler metadata.
package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"vacancy-watch/poster/internal/database"
	"vacancy-watch/poster/internal/models"
)

// Deletion reason codes that originate in the store itself. Reasons coming
// from the availability checker are passed through unchanged.
const (
	ReasonRetention   = "retention"
	ReasonMissingLink = "missing_link"
)

// Store is the SQLite-backed listing store.
type Store struct {
	db  *sqlx.DB
	now func() time.Time
}

// New creates a Store over an open database.
func New(db *database.DB) *Store {
	return NewWithDB(db.DB)
}

// NewWithDB creates a Store over a raw sqlx handle.
func NewWithDB(db *sqlx.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// SetClock replaces the time source used for inserted_at, deleted_at and retention cutoffs.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Store) utcNow() time.Time {
	return s.now().UTC()
}

// Ingest inserts each candidate whose link is not stored yet and returns the
// inserted subset in input order. A failure on one row is logged and does
// not prevent the others from being stored.
func (s *Store) Ingest(ctx context.Context, candidates []models.RawListing) ([]models.Listing, error) {
	rows := make([]models.Listing, 0, len(candidates))
	for _, raw := range candidates {
		rows = append(rows, models.Listing{
			Title:   raw.Title,
			Company: raw.Company,
			Link:    raw.Link,
			Salary:  raw.Salary,
		})
	}
	return s.insert(ctx, rows)
}

// IngestRecords inserts full listing rows, such as those restored from a CSV
// export, keeping their posted flag, summary and insertion time. A zero
// InsertedAt is stamped with the current time. Known links are skipped.
func (s *Store) IngestRecords(ctx context.Context, records []models.Listing) ([]models.Listing, error) {
	return s.insert(ctx, records)
}

func (s *Store) insert(ctx context.Context, rows []models.Listing) ([]models.Listing, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "ingest: failed to begin transaction")
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO listings (title, company, link, salary, summary, inserted_at, posted)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(link) DO NOTHING`)
	if err != nil {
		return nil, errors.Wrap(err, "ingest: failed to prepare insert")
	}
	defer stmt.Close()

	var inserted []models.Listing
	duplicates := 0

	for _, l := range rows {
		l.Link = strings.TrimSpace(l.Link)
		if l.Link == "" {
			log.Warn().Str("title", l.Title).Msg("Skipping listing without link")
			continue
		}

		if l.InsertedAt.IsZero() {
			l.InsertedAt = s.utcNow()
		} else {
			l.InsertedAt = l.InsertedAt.UTC()
		}
		res, err := stmt.ExecContext(ctx, l.Title, l.Company, l.Link, l.Salary, l.Summary, l.InsertedAt, l.Posted)
		if err != nil {
			log.Error().Err(err).Str("link", l.Link).Msg("Failed to insert listing")
			continue
		}

		rowsAffected, err := res.RowsAffected()
		if err != nil || rowsAffected == 0 {
			duplicates++
			continue
		}

		id, err := res.LastInsertId()
		if err != nil {
			return nil, errors.Wrapf(err, "ingest: failed to read id of %s", l.Link)
		}
		l.ID = id
		inserted = append(inserted, l)
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "ingest: failed to commit transaction")
	}

	log.Debug().
		Int("candidates", len(rows)).
		Int("inserted", len(inserted)).
		Int("duplicates", duplicates).
		Msg("Ingest finished")

	return inserted, nil
}

// PruneOlderThan removes listings inserted before now-age and returns how many were removed.
func (s *Store) PruneOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	if age <= 0 {
		return 0, errors.Newf("retention age must be positive, got %s", age)
	}

	now := s.utcNow()
	cutoff := now.Add(-age)

	var removed int64
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO listing_deletions (listing_id, link, title, reason, deleted_at)
			SELECT id, link, title, ?, ? FROM listings WHERE inserted_at < ?`,
			ReasonRetention, now, cutoff); err != nil {
			return errors.Wrap(err, "prune: failed to record deletions")
		}

		res, err := tx.ExecContext(ctx, "DELETE FROM listings WHERE inserted_at < ?", cutoff)
		if err != nil {
			return errors.Wrap(err, "prune: failed to delete listings")
		}
		removed, err = res.RowsAffected()
		if err != nil {
			return errors.Wrap(err, "prune: failed to read rows affected")
		}

		// the audit trail shares the listing retention
		if _, err := tx.ExecContext(ctx, "DELETE FROM listing_deletions WHERE deleted_at < ?", cutoff); err != nil {
			return errors.Wrap(err, "prune: failed to trim deletion log")
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if removed > 0 {
		log.Info().
			Int64("removed", removed).
			Time("cutoff", cutoff).
			Str("reason", ReasonRetention).
			Msg("Pruned old listings")
	}
	return removed, nil
}

// Unposted returns every listing not posted yet, oldest first.
func (s *Store) Unposted(ctx context.Context) ([]models.Listing, error) {
	var listings []models.Listing
	err := s.db.SelectContext(ctx, &listings, `
		SELECT id, title, company, link, salary, summary, inserted_at, posted
		FROM listings
		WHERE posted = 0
		ORDER BY inserted_at ASC, id ASC`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query unposted listings")
	}
	return listings, nil
}

// Get returns a single listing, or sql.ErrNoRows wrapped when it does not exist.
func (s *Store) Get(ctx context.Context, id int64) (models.Listing, error) {
	var l models.Listing
	err := s.db.GetContext(ctx, &l, `
		SELECT id, title, company, link, salary, summary, inserted_at, posted
		FROM listings WHERE id = ?`, id)
	if err != nil {
		return models.Listing{}, errors.Wrapf(err, "failed to load listing %d", id)
	}
	return l, nil
}

// MarkPosted flags the given listings as posted. Unknown ids are ignored.
func (s *Store) MarkPosted(ctx context.Context, ids ...int64) error {
	if len(ids) == 0 {
		return nil
	}
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		return markPosted(ctx, tx, ids)
	})
}

func markPosted(ctx context.Context, tx *sqlx.Tx, ids []int64) error {
	query, args, err := sqlx.In("UPDATE listings SET posted = 1 WHERE id IN (?)", ids)
	if err != nil {
		return errors.Wrap(err, "failed to build mark posted query")
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(query), args...); err != nil {
		return errors.Wrap(err, "failed to mark listings posted")
	}
	return nil
}

// RecordPost marks a listing posted and stores the post time as last_post_time
// in one transaction.
func (s *Store) RecordPost(ctx context.Context, id int64, at time.Time) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := markPosted(ctx, tx, []int64{id}); err != nil {
			return err
		}
		return setMeta(ctx, tx, models.MetaLastPostTime, at.UTC().Format(time.RFC3339Nano))
	})
}

// Delete hard-removes a listing and records why. Deleting an unknown id is a no-op.
func (s *Store) Delete(ctx context.Context, id int64, reason string) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO listing_deletions (listing_id, link, title, reason, deleted_at)
			SELECT id, link, title, ?, ? FROM listings WHERE id = ?`,
			reason, s.utcNow(), id)
		if err != nil {
			return errors.Wrapf(err, "failed to record deletion of listing %d", id)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM listings WHERE id = ?", id); err != nil {
			return errors.Wrapf(err, "failed to delete listing %d", id)
		}
		log.Info().Int64("listing_id", id).Str("reason", reason).Msg("Deleted listing")
		return nil
	})
}

// SaveSummary stores the summary text of a listing, overwriting any previous value.
func (s *Store) SaveSummary(ctx context.Context, id int64, text string) error {
	if _, err := s.db.ExecContext(ctx, "UPDATE listings SET summary = ? WHERE id = ?", text, id); err != nil {
		return errors.Wrapf(err, "failed to save summary of listing %d", id)
	}
	return nil
}

// GetMeta returns the metadata value for key and whether it exists.
func (s *Store) GetMeta(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.GetContext(ctx, &value, "SELECT value FROM meta WHERE key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrapf(err, "failed to read meta %q", key)
	}
	return value, true, nil
}

// SetMeta upserts a metadata value.
func (s *Store) SetMeta(ctx context.Context, key, value string) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		return setMeta(ctx, tx, key, value)
	})
}

func setMeta(ctx context.Context, tx *sqlx.Tx, key, value string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return errors.Wrapf(err, "failed to write meta %q", key)
	}
	return nil
}

// LastPostTime returns the time of the most recent successful post, if any.
// Unparsable values are treated as absent.
func (s *Store) LastPostTime(ctx context.Context) (time.Time, bool, error) {
	raw, ok, err := s.GetMeta(ctx, models.MetaLastPostTime)
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	t, ok := ParseTimestamp(raw)
	if !ok {
		log.Warn().Str("value", raw).Msg("Ignoring unparsable last_post_time")
	}
	return t, ok, nil
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}
	return nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05",
}

// ParseTimestamp accepts ISO timestamps with or without a zone. Values
// without a zone are read as UTC. The result is always in UTC.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
