// database.go - Kern-Datenbank-Funktionen
// Enthält: database struct, newDatabase, Close, init, Hilfsfunktionen

package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3" // SQLite-Treiber registrieren
)

// currentSchemaVersion definiert die aktuelle Datenbank-Schema-Version.
// Wird bei Schema-Änderungen erhöht, die Migrationen erfordern.
const currentSchemaVersion = 1

// database umhüllt die SQLite-Verbindung.
type database struct {
	conn *sql.DB
}

// newDatabase erstellt eine neue Datenbankverbindung
func newDatabase(dbPath string) (*database, error) {
	conn, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	db := &database{conn: conn}
	if err := db.init(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initialize database: %w", err)
	}

	return db, nil
}

// Close schließt die Datenbankverbindung
func (db *database) Close() error {
	_, _ = db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE);")
	return db.conn.Close()
}

// init initialisiert das Datenbankschema
func (db *database) init() error {
	if _, err := db.conn.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return fmt.Errorf("enable foreign keys: %w", err)
	}

	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS meta (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		schema_version INTEGER NOT NULL DEFAULT %d
	);

	INSERT OR IGNORE INTO meta (id) VALUES (1);

	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		dataset TEXT NOT NULL DEFAULT '',
		hidden_size INTEGER NOT NULL,
		batch_size INTEGER NOT NULL,
		updates_per_epoch INTEGER NOT NULL,
		max_epoch INTEGER NOT NULL,
		learning_rate REAL NOT NULL,
		seed INTEGER NOT NULL DEFAULT 0,
		dtype TEXT NOT NULL DEFAULT 'F32',
		status TEXT NOT NULL DEFAULT 'running',
		checkpoint TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		finished_at TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS epochs (
		run_id TEXT NOT NULL,
		epoch INTEGER NOT NULL,
		loss REAL NOT NULL,
		stddev REAL NOT NULL DEFAULT 0,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (run_id, epoch),
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
	`, currentSchemaVersion)

	if _, err := db.conn.Exec(schema); err != nil {
		return err
	}

	if err := db.migrate(); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}

	return nil
}

