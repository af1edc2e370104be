package importlistings

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vacancy-watch/poster/internal/database"
	"vacancy-watch/poster/internal/models"
	"vacancy-watch/poster/internal/server"
	"vacancy-watch/poster/internal/server/storage"
	"vacancy-watch/poster/internal/store"
)

const sample = `Title,Company,Link,Salary
Junior Go Developer,Acme,https://www.work.ua/jobs/1/,30 000 грн
QA Trainee,,https://www.work.ua/jobs/2/,
"Support, L1",Help Inc,https://www.work.ua/jobs/3/,15 000 грн
Broken,Nobody,,
Duplicate,Acme,https://www.work.ua/jobs/1/,
`

func newDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.NewDB(database.NewConfig(filepath.Join(t.TempDir(), "jobs.db")))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newStore(t *testing.T) *store.Store {
	t.Helper()
	s := store.New(newDB(t))
	s.SetClock(func() time.Time { return time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC) })
	return s
}

func TestImport(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	summary, err := NewImporter(s).Import(ctx, strings.NewReader(sample))
	require.NoError(t, err)
	assert.Equal(t, 5, summary.Rows)
	assert.Equal(t, 3, summary.Inserted)
	assert.Equal(t, 1, summary.Skipped)
	require.Len(t, summary.Errors, 1)
	assert.Contains(t, summary.Errors[0], "line 5")

	unposted, err := s.Unposted(ctx)
	require.NoError(t, err)
	require.Len(t, unposted, 3)
	assert.Equal(t, "Junior Go Developer", unposted[0].Title)
	assert.Equal(t, "Support, L1", unposted[2].Title)
	assert.Empty(t, unposted[1].Company)
}

func TestImport_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	imp := NewImporter(s)

	_, err := imp.Import(ctx, strings.NewReader(sample))
	require.NoError(t, err)
	summary, err := imp.Import(ctx, strings.NewReader(sample))
	require.NoError(t, err)
	assert.Zero(t, summary.Inserted)
}

func TestImport_MissingColumn(t *testing.T) {
	_, err := NewImporter(newStore(t)).Import(context.Background(), strings.NewReader("title,company\nA,B\n"))
	assert.ErrorContains(t, err, "'link'")

	for i := 0; i < 10; i++ {
		_, err = NewImporter(newStore(t)).Import(context.Background(), strings.NewReader("company,salary\nA,B\n"))
		assert.ErrorContains(t, err, "'title'")
	}
}

func TestImport_KeepsExportedState(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	csvData := `title,link,summary,posted,inserted_at
Old,https://www.work.ua/jobs/1/,Готовий опис,true,2025-02-01T08:00:00Z
New,https://www.work.ua/jobs/2/,,false,2025-02-03T08:00:00Z
Fresh,https://www.work.ua/jobs/3/,,,
Bad,https://www.work.ua/jobs/4/,,maybe,
Late,https://www.work.ua/jobs/5/,,false,yesterday
`
	summary, err := NewImporter(s).Import(ctx, strings.NewReader(csvData))
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Inserted)
	require.Len(t, summary.Errors, 2)
	assert.Contains(t, summary.Errors[0], "line 5")
	assert.Contains(t, summary.Errors[1], "line 6")

	unposted, err := s.Unposted(ctx)
	require.NoError(t, err)
	require.Len(t, unposted, 2)
	assert.Equal(t, "New", unposted[0].Title)
	assert.Equal(t, time.Date(2025, 2, 3, 8, 0, 0, 0, time.UTC), unposted[0].InsertedAt)
	assert.Equal(t, "Fresh", unposted[1].Title)
	assert.Equal(t, time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC), unposted[1].InsertedAt)

	old, err := s.Get(ctx, 1)
	require.NoError(t, err)
	assert.True(t, old.Posted)
	assert.Equal(t, "Готовий опис", old.Summary)
}

func TestImport_RestoresAPIExport(t *testing.T) {
	ctx := context.Background()

	srcDB := newDB(t)
	src := store.New(srcDB)
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	src.SetClock(func() time.Time {
		now = now.Add(time.Minute)
		return now
	})
	seeded, err := src.Ingest(ctx, []models.RawListing{
		{Title: "A", Company: "Acme", Link: "https://www.work.ua/jobs/a/", Salary: "30 000 грн"},
		{Title: "B", Link: "https://www.work.ua/jobs/b/"},
	})
	require.NoError(t, err)
	require.NoError(t, src.SaveSummary(ctx, seeded[0].ID, "Опис A"))
	require.NoError(t, src.RecordPost(ctx, seeded[0].ID, now))

	handler := server.NewHandler(storage.NewRepository(srcDB.DB), zerolog.Nop(), "")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/listings.csv", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	dst := newStore(t)
	summary, err := NewImporter(dst).Import(ctx, strings.NewReader(rec.Body.String()))
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Inserted)
	assert.Empty(t, summary.Errors)

	unposted, err := dst.Unposted(ctx)
	require.NoError(t, err)
	require.Len(t, unposted, 1)
	assert.Equal(t, "B", unposted[0].Title)
	assert.Equal(t, seeded[1].InsertedAt, unposted[0].InsertedAt)

	restored, err := dst.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "A", restored.Title)
	assert.True(t, restored.Posted)
	assert.Equal(t, "Опис A", restored.Summary)
	assert.Equal(t, "Acme", restored.Company)
	assert.Equal(t, seeded[0].InsertedAt, restored.InsertedAt)
}

func TestImportListings_FileAndURL(t *testing.T) {
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "listings.csv")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))
	summary, err := NewImporter(newStore(t)).ImportListings(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Inserted)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(sample))
	}))
	defer srv.Close()
	summary, err = NewImporter(newStore(t)).ImportListings(ctx, srv.URL+"/listings.csv")
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Inserted)

	_, err = NewImporter(newStore(t)).ImportListings(ctx, filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}
