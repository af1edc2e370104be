package migrations

import (
	"database/sql"
	"path/filepath"
	"testing"
	"testing/fstest"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "migrations.db"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()
	var n int
	err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name).Scan(&n)
	require.NoError(t, err)
	return n == 1
}

func TestLoadMigrations_Embedded(t *testing.T) {
	ms, err := LoadMigrations(Files, Dir)
	require.NoError(t, err)
	require.Len(t, ms, 2)
	assert.Equal(t, 1, ms[0].Version)
	assert.Equal(t, 2, ms[1].Version)
	for _, m := range ms {
		assert.NotEmpty(t, m.Up)
		assert.NotEmpty(t, m.Down)
	}
}

func TestLoadMigrations_SkipsInvalidNames(t *testing.T) {
	fsys := fstest.MapFS{
		"m/1_a.up.sql":   {Data: []byte("CREATE TABLE a (x INTEGER);")},
		"m/README.md":    {Data: []byte("not sql")},
		"m/junk.up.sql":  {Data: []byte("SELECT 1;")},
		"m/3_c.up.sql":   {Data: []byte("CREATE TABLE c (x INTEGER);")},
		"m/3_c.down.sql": {Data: []byte("DROP TABLE c;")},
	}
	ms, err := LoadMigrations(fsys, "m")
	require.NoError(t, err)
	require.Len(t, ms, 2)
	assert.Equal(t, 1, ms[0].Version)
	assert.Equal(t, 3, ms[1].Version)
	assert.Empty(t, ms[0].Down)
}

func TestRunMigrations_IdempotentAndRollback(t *testing.T) {
	db := openTestDB(t)
	ms, err := LoadMigrations(Files, Dir)
	require.NoError(t, err)

	require.NoError(t, RunMigrations(db, ms))
	require.NoError(t, RunMigrations(db, ms))
	assert.True(t, tableExists(t, db, "listings"))
	assert.True(t, tableExists(t, db, "meta"))
	assert.True(t, tableExists(t, db, "listing_deletions"))

	require.NoError(t, RollbackMigrations(db, ms, 1))
	assert.False(t, tableExists(t, db, "listing_deletions"))
	assert.True(t, tableExists(t, db, "listings"))

	require.NoError(t, RunMigrations(db, ms))
	assert.True(t, tableExists(t, db, "listing_deletions"))
}

func TestRunMigrations_FailureRollsBack(t *testing.T) {
	db := openTestDB(t)
	bad := []Migration{{Version: 1, Up: "CREATE TABLE ok_table (x INTEGER); THIS IS NOT SQL;"}}

	err := RunMigrations(db, bad)
	require.Error(t, err)

	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM migrations").Scan(&n))
	assert.Zero(t, n)
}
