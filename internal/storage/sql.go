package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver

	"github.com/soyeahso/trellis/internal/fault"
	"github.com/soyeahso/trellis/internal/logging"
)

// SQL stores values as JSON rows in the plugin_configs table.
type SQL struct {
	db      *sql.DB
	dialect Dialect
	log     *logging.Logger
}

// OpenSQL opens (or creates) a database and runs migrations. For sqlite the
// dsn is a file path; use ":memory:" for an in-memory database.
func OpenSQL(ctx context.Context, dialect Dialect, dsn string, log *logging.Logger) (*SQL, error) {
	if dsn == "" {
		return nil, fault.New(fault.KindInvalidArgument, dialect.Driver+" storage requires a path or dsn")
	}
	if dialect.Driver == DialectSQLite.Driver && dsn != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o700); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open(dialect.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", dialect.Driver, err)
	}

	switch dialect.Driver {
	case DialectSQLite.Driver:
		// a single connection keeps ":memory:" databases shared across calls
		db.SetMaxOpenConns(1)
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting WAL mode: %w", err)
		}
	case DialectMySQL.Driver:
		db.SetMaxOpenConns(20)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to %s: %w", dialect.Driver, err)
	}

	s := &SQL{db: db, dialect: dialect, log: log.Sub("storage")}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	s.log.Info().Str("driver", dialect.Driver).Msg("database opened")
	return s, nil
}

// DB returns the underlying *sql.DB.
func (s *SQL) DB() *sql.DB {
	return s.db
}

func (s *SQL) Save(ctx context.Context, name string, values map[string]any) error {
	if err := checkName(name); err != nil {
		return err
	}
	data, err := encodeJSON(name, values)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, s.dialect.upsert, name, string(data), time.Now().UTC().Format(time.RFC3339)); err != nil {
		return storageErr(err, "save", name)
	}
	return nil
}

func (s *SQL) Load(ctx context.Context, name string) (map[string]any, error) {
	var data string
	err := s.db.QueryRowContext(ctx, "SELECT data FROM plugin_configs WHERE name = ?", name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr(err, "load", name)
	}
	return decodeJSON(name, []byte(data))
}

func (s *SQL) Delete(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM plugin_configs WHERE name = ?", name); err != nil {
		return storageErr(err, "delete", name)
	}
	return nil
}

func (s *SQL) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM plugin_configs"); err != nil {
		return storageErr(err, "clear", "plugin_configs")
	}
	return nil
}

// Close closes the database connection.
func (s *SQL) Close() error {
	s.log.Info().Msg("closing database")
	return s.db.Close()
}

// migrate runs all pending migrations.
func (s *SQL) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.migrationsTable); err != nil {
		return fmt.Errorf("creating migrations table: %w", err)
	}

	for _, m := range s.dialect.migrations {
		applied, err := s.isMigrationApplied(ctx, m.Version)
		if err != nil {
			return err
		}
		if applied {
			continue
		}

		s.log.Info().Int("version", m.Version).Str("name", m.Name).Msg("applying migration")

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Name, err)
		}

		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (?)", m.Version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

func (s *SQL) isMigrationApplied(ctx context.Context, version int) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE version = ?", version).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking migration %d: %w", version, err)
	}
	return count > 0, nil
}
