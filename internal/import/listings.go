// Package importlistings seeds the listing store from a CSV export.
package importlistings

import (
	"context"
	"encoding/csv"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog/log"

	"vacancy-watch/poster/internal/models"
	"vacancy-watch/poster/internal/store"
)

// Ingester stores listing rows, skipping the ones already known.
type Ingester interface {
	IngestRecords(ctx context.Context, records []models.Listing) ([]models.Listing, error)
}

// Summary reports the outcome of an import.
type Summary struct {
	Rows     int
	Inserted int
	Skipped  int
	Errors   []string
}

// Importer handles the listing import process
type Importer struct {
	store Ingester
}

// NewImporter creates a new listing importer
func NewImporter(store Ingester) *Importer {
	return &Importer{store: store}
}

// ImportListings imports listings from a local CSV file or an http(s) URL.
func (i *Importer) ImportListings(ctx context.Context, source string) (Summary, error) {
	log.Info().Str("csv", source).Msg("Starting listing import")

	data, err := openSource(ctx, source)
	if err != nil {
		return Summary{}, errors.Wrap(err, "failed to get CSV data")
	}
	defer data.Close()

	summary, err := i.Import(ctx, data)
	if err != nil {
		return summary, errors.Wrap(err, "failed to import listings")
	}

	log.Info().
		Int("rows", summary.Rows).
		Int("inserted", summary.Inserted).
		Int("skipped", summary.Skipped).
		Int("errors", len(summary.Errors)).
		Msg("Import summary")
	return summary, nil
}

func openSource(ctx context.Context, source string) (io.ReadCloser, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		log.Info().Str("url", source).Msg("Downloading CSV file")
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
		if err != nil {
			return nil, err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, errors.Newf("failed to download file: HTTP status %d", resp.StatusCode)
		}
		return resp.Body, nil
	}

	f, err := os.Open(source)
	if err != nil {
		return nil, errors.Wrapf(err, "CSV file not found: %s", source)
	}
	return f, nil
}

// Import reads a CSV with a header row containing at least "link" and
// "title"; "company", "salary", "summary", "posted" and "inserted_at" are
// optional, so an export of the API restores as it was. Bad rows are
// reported in the summary and do not stop the import.
func (i *Importer) Import(ctx context.Context, r io.Reader) (Summary, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return Summary{}, errors.Wrap(err, "failed to read CSV header")
	}
	log.Debug().Strs("header", header).Msg("CSV header read")

	for _, column := range requiredColumns {
		if findColumnIndex(header, column) < 0 {
			return Summary{}, errors.Newf("required column '%s' not found in CSV header", column)
		}
	}
	titleIdx := findColumnIndex(header, "title")
	linkIdx := findColumnIndex(header, "link")
	companyIdx := findColumnIndex(header, "company")
	salaryIdx := findColumnIndex(header, "salary")
	summaryIdx := findColumnIndex(header, "summary")
	postedIdx := findColumnIndex(header, "posted")
	insertedIdx := findColumnIndex(header, "inserted_at")

	var (
		summary    Summary
		candidates []models.Listing
	)
	line := 1
	for {
		line++
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Warn().Err(err).Int("line", line).Msg("Error reading CSV line")
			summary.Errors = append(summary.Errors, errors.Wrapf(err, "line %d", line).Error())
			continue
		}
		if len(record) == 0 || (len(record) == 1 && record[0] == "") {
			continue
		}
		summary.Rows++

		listing := models.Listing{
			Title:   safeGetValue(record, titleIdx),
			Company: safeGetValue(record, companyIdx),
			Link:    safeGetValue(record, linkIdx),
			Salary:  safeGetValue(record, salaryIdx),
			Summary: safeGetValue(record, summaryIdx),
		}
		if listing.Link == "" {
			log.Warn().Int("line", line).Msg("Skipping row with empty link")
			summary.Errors = append(summary.Errors, errors.Newf("line %d: empty link", line).Error())
			continue
		}
		if err := parseState(&listing, safeGetValue(record, postedIdx), safeGetValue(record, insertedIdx)); err != nil {
			log.Warn().Err(err).Int("line", line).Msg("Skipping row with invalid state")
			summary.Errors = append(summary.Errors, errors.Wrapf(err, "line %d", line).Error())
			continue
		}
		candidates = append(candidates, listing)
	}

	inserted, err := i.store.IngestRecords(ctx, candidates)
	if err != nil {
		return summary, err
	}
	summary.Inserted = len(inserted)
	summary.Skipped = len(candidates) - len(inserted)
	return summary, nil
}

var requiredColumns = []string{"title", "link"}

// parseState fills the posted flag and insertion time of an exported row.
// Empty values keep the defaults of a fresh listing.
func parseState(l *models.Listing, posted, insertedAt string) error {
	if posted != "" {
		v, err := strconv.ParseBool(posted)
		if err != nil {
			return errors.Newf("invalid posted value %q", posted)
		}
		l.Posted = v
	}
	if insertedAt != "" {
		t, ok := store.ParseTimestamp(insertedAt)
		if !ok {
			return errors.Newf("invalid inserted_at value %q", insertedAt)
		}
		l.InsertedAt = t
	}
	return nil
}

func findColumnIndex(header []string, columnName string) int {
	for i, col := range header {
		if strings.EqualFold(strings.TrimSpace(col), columnName) {
			return i
		}
	}
	return -1
}

// safeGetValue returns the trimmed value at index, or "" when the index is out of range.
func safeGetValue(record []string, index int) string {
	if index >= 0 && index < len(record) {
		return strings.TrimSpace(record[index])
	}
	return ""
}
