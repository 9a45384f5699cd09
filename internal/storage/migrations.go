package storage

// migration represents a single schema migration.
type migration struct {
	Version int
	Name    string
	SQL     string
}

// Dialect captures the SQL that differs between database engines.
type Dialect struct {
	Driver          string
	migrationsTable string
	upsert          string
	migrations      []migration
}

var DialectSQLite = Dialect{
	Driver: "sqlite",
	migrationsTable: `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
	upsert: `INSERT INTO plugin_configs (name, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
	migrations: []migration{
		{
			Version: 1,
			Name:    "create plugin configs",
			SQL: `
				CREATE TABLE plugin_configs (
					name        TEXT PRIMARY KEY,
					data        TEXT NOT NULL,
					updated_at  TEXT NOT NULL
				)`,
		},
	},
}

var DialectMySQL = Dialect{
	Driver: "mysql",
	migrationsTable: `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INT PRIMARY KEY,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	upsert: `INSERT INTO plugin_configs (name, data, updated_at) VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE data = VALUES(data), updated_at = VALUES(updated_at)`,
	migrations: []migration{
		{
			Version: 1,
			Name:    "create plugin configs",
			SQL: `
				CREATE TABLE plugin_configs (
					name        VARCHAR(191) PRIMARY KEY,
					data        MEDIUMTEXT NOT NULL,
					updated_at  VARCHAR(40) NOT NULL
				) DEFAULT CHARSET=utf8mb4`,
		},
	},
}
