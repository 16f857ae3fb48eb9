// Package history keeps an append-only SQLite journal of session steps and
// operator decisions. The JSON state document stays the source of truth;
// the journal only serves inspection and audits.
package history

import (
	"database/sql"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// Journal manages the SQLite database.
type Journal struct {
	db     *sql.DB
	logger zerolog.Logger
	mu     sync.RWMutex
}

// Open opens (or creates) the journal database and runs migrations.
func Open(dbPath string, logger zerolog.Logger) (*Journal, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping journal: %w", err)
	}

	j := &Journal{
		db:     db,
		logger: logger.With().Str("component", "history").Logger(),
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if err := j.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	j.logger.Info().Str("path", dbPath).Msg("Journal initialized")
	return j, nil
}

// Close closes the database connection.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}

// Ping reports whether the database answers.
func (j *Journal) Ping() error {
	return j.db.Ping()
}

func (j *Journal) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS steps (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		item_id TEXT,
		outcome TEXT NOT NULL,
		score REAL,
		keep INTEGER NOT NULL DEFAULT 0,
		label TEXT,
		risk_level TEXT NOT NULL,
		justification TEXT,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_steps_session ON steps(session_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_steps_created ON steps(created_at);

	CREATE TABLE IF NOT EXISTS decisions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		item_id TEXT NOT NULL,
		from_status TEXT NOT NULL,
		to_status TEXT NOT NULL,
		actor TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_decisions_item ON decisions(item_id, created_at);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	INSERT OR REPLACE INTO meta(key, value) VALUES ('schema_version', '1');
	`
	if _, err := j.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to execute migration v1: %w", err)
	}
	return nil
}
