package migrations

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog/log"
)

// Files holds the SQL migrations shipped with the binary.
//
//go:embed sql/*.sql
var Files embed.FS

// Dir is the directory inside Files that holds the migration scripts.
const Dir = "sql"

// Migration represents a database migration
type Migration struct {
	Version int
	Up      string
	Down    string
}

// LoadMigrations loads all migration files from dir inside fsys.
// File names follow <version>_<name>.up.sql / <version>_<name>.down.sql.
func LoadMigrations(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read migrations directory")
	}

	versionFiles := make(map[int]struct {
		up   string
		down string
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		if !strings.HasSuffix(name, ".sql") {
			continue
		}

		var version int
		var direction string
		if _, err := fmt.Sscanf(name, "%d_%s", &version, &direction); err != nil {
			log.Warn().Err(err).Str("file", name).Msg("Skipping invalid migration file")
			continue
		}

		content, err := fs.ReadFile(fsys, path.Join(dir, name))
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read migration file %s", name)
		}

		v := versionFiles[version]
		switch {
		case strings.HasSuffix(direction, ".up.sql"):
			v.up = string(content)
		case strings.HasSuffix(direction, ".down.sql"):
			v.down = string(content)
		}
		versionFiles[version] = v
	}

	migrations := make([]Migration, 0, len(versionFiles))
	for version, files := range versionFiles {
		if files.up == "" {
			return nil, errors.Newf("migration %d has no up script", version)
		}
		migrations = append(migrations, Migration{
			Version: version,
			Up:      files.up,
			Down:    files.down,
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})

	log.Debug().
		Int("count", len(migrations)).
		Msg("Loaded migrations")

	return migrations, nil
}

// RunMigrations executes all pending migrations, each in its own transaction.
func RunMigrations(db *sql.DB, migrations []Migration) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return errors.Wrap(err, "failed to create migrations table")
	}

	applied, err := appliedVersions(db)
	if err != nil {
		return err
	}

	for _, migration := range migrations {
		if applied[migration.Version] {
			log.Debug().
				Int("version", migration.Version).
				Msg("Migration already applied, skipping")
			continue
		}

		log.Info().
			Int("version", migration.Version).
			Msg("Running migration")

		if err := inTx(db, func(tx *sql.Tx) error {
			if _, err := tx.Exec(migration.Up); err != nil {
				return errors.Wrapf(err, "failed to execute migration %d", migration.Version)
			}
			if _, err := tx.Exec("INSERT INTO migrations (version) VALUES (?)", migration.Version); err != nil {
				return errors.Wrapf(err, "failed to record migration %d", migration.Version)
			}
			return nil
		}); err != nil {
			return err
		}

		log.Info().
			Int("version", migration.Version).
			Msg("Migration completed successfully")
	}

	return nil
}

// RollbackMigrations rolls back the last n applied migrations
func RollbackMigrations(db *sql.DB, migrations []Migration, n int) error {
	rows, err := db.Query("SELECT version FROM migrations ORDER BY version DESC LIMIT ?", n)
	if err != nil {
		return errors.Wrap(err, "failed to query applied migrations")
	}

	var versions []int
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return errors.Wrap(err, "failed to scan migration version")
		}
		versions = append(versions, version)
	}
	rows.Close()

	byVersion := make(map[int]Migration, len(migrations))
	for _, m := range migrations {
		byVersion[m.Version] = m
	}

	for _, version := range versions {
		migration := byVersion[version]
		if migration.Down == "" {
			log.Warn().
				Int("version", version).
				Msg("No down migration found, skipping")
			continue
		}

		log.Info().
			Int("version", version).
			Msg("Rolling back migration")

		if err := inTx(db, func(tx *sql.Tx) error {
			if _, err := tx.Exec(migration.Down); err != nil {
				return errors.Wrapf(err, "failed to execute rollback for migration %d", version)
			}
			if _, err := tx.Exec("DELETE FROM migrations WHERE version = ?", version); err != nil {
				return errors.Wrapf(err, "failed to remove migration record %d", version)
			}
			return nil
		}); err != nil {
			return err
		}

		log.Info().
			Int("version", version).
			Msg("Rollback completed successfully")
	}

	return nil
}

func appliedVersions(db *sql.DB) (map[int]bool, error) {
	rows, err := db.Query("SELECT version FROM migrations ORDER BY version")
	if err != nil {
		return nil, errors.Wrap(err, "failed to query applied migrations")
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, errors.Wrap(err, "failed to scan migration version")
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

func inTx(db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.Begin()
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "failed to commit migration")
}
