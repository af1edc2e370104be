package models

import "time"

// Metadata keys owned by the scheduler.
const (
	MetaLastPostTime = "last_post_time"
	metaTipPrefix    = "last_tip_sent:"
)

// TipMetaKey returns the slot marker key for a named tip schedule.
func TipMetaKey(schedule string) string {
	return metaTipPrefix + schedule
}

// RawListing is a listing as observed on the source, before it is stored.
// Any field may be empty.
type RawListing struct {
	Title   string `json:"title"`
	Company string `json:"company"`
	Link    string `json:"link"`
	Salary  string `json:"salary"`
}

// Listing represents a row in the 'listings' table
type Listing struct {
	ID         int64     `db:"id" json:"id"`
	Title      string    `db:"title" json:"title"`
	Company    string    `db:"company" json:"company"`
	Link       string    `db:"link" json:"link"`
	Salary     string    `db:"salary" json:"salary"`
	Summary    string    `db:"summary" json:"summary"`
	InsertedAt time.Time `db:"inserted_at" json:"inserted_at"`
	Posted     bool      `db:"posted" json:"posted"`
}

// Deletion represents a row in the 'listing_deletions' table.
// Every hard delete of a listing leaves one of these behind.
type Deletion struct {
	ID        int64     `db:"id" json:"id"`
	ListingID int64     `db:"listing_id" json:"listing_id"`
	Link      string    `db:"link" json:"link"`
	Title     string    `db:"title" json:"title"`
	Reason    string    `db:"reason" json:"reason"`
	DeletedAt time.Time `db:"deleted_at" json:"deleted_at"`
}
