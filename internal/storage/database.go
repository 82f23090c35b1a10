package storage

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// schemaVersion is the current schema version. Migrate records it in the
// schema_version table; future migrations consult it at startup.
const schemaVersion = 1

// New opens a SQLite database connection at the given path.
// It enables foreign keys and sets connection pool settings.
func New(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	// Enable foreign keys (disabled by default in SQLite)
	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return nil, err
	}

	// Set connection pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Verify connection
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// Migrate runs database migrations to create the required tables.
// It is idempotent and can be run multiple times safely.
func Migrate(db *sql.DB) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS collections (
			collection_key TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			parent_key TEXT,
			version INTEGER NOT NULL,
			last_synced DATETIME,
			FOREIGN KEY (parent_key) REFERENCES collections(collection_key)
		);`,
		`CREATE TABLE IF NOT EXISTS items (
			item_key TEXT PRIMARY KEY,
			item_type TEXT NOT NULL,
			title TEXT,
			date TEXT,
			url TEXT,
			metadata TEXT,
			version INTEGER NOT NULL,
			last_synced DATETIME
		);`,
		`CREATE TABLE IF NOT EXISTS collection_items (
			collection_key TEXT NOT NULL,
			item_key TEXT NOT NULL,
			PRIMARY KEY (collection_key, item_key),
			FOREIGN KEY (collection_key) REFERENCES collections(collection_key) ON DELETE CASCADE,
			FOREIGN KEY (item_key) REFERENCES items(item_key) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS attachments (
			attachment_key TEXT PRIMARY KEY,
			parent_item_key TEXT NOT NULL,
			filename TEXT NOT NULL,
			content_type TEXT,
			local_path TEXT,
			content_hash TEXT,
			file_size INTEGER,
			downloaded_at DATETIME,
			version INTEGER NOT NULL,
			last_synced DATETIME,
			FOREIGN KEY (parent_item_key) REFERENCES items(item_key) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS notes (
			note_key TEXT PRIMARY KEY,
			parent_item_key TEXT,
			collection_key TEXT,
			title TEXT,
			content TEXT,
			version INTEGER NOT NULL,
			last_synced DATETIME,
			FOREIGN KEY (parent_item_key) REFERENCES items(item_key) ON DELETE CASCADE,
			FOREIGN KEY (collection_key) REFERENCES collections(collection_key) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS extracted_content (
			item_key TEXT PRIMARY KEY,
			extraction_method TEXT NOT NULL,
			extracted_text TEXT,
			content_hash TEXT NOT NULL DEFAULT '',
			extraction_date DATETIME,
			FOREIGN KEY (item_key) REFERENCES items(item_key) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS sync_state (
			collection_key TEXT PRIMARY KEY,
			last_sync_version INTEGER NOT NULL DEFAULT 0,
			last_sync_time DATETIME,
			full_sync_completed BOOLEAN DEFAULT FALSE,
			FOREIGN KEY (collection_key) REFERENCES collections(collection_key) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS chunks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			item_key TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			text TEXT NOT NULL,
			embedding BLOB NOT NULL,
			page_number INTEGER,
			section_id TEXT,
			char_start INTEGER NOT NULL DEFAULT 0,
			char_end INTEGER NOT NULL DEFAULT 0,
			item_type TEXT,
			doc_type TEXT,
			content_hash TEXT,
			UNIQUE (item_key, chunk_index),
			FOREIGN KEY (item_key) REFERENCES items(item_key) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS index_state (
			item_key TEXT PRIMARY KEY,
			chunk_count INTEGER NOT NULL,
			content_hash TEXT NOT NULL,
			embedding_model TEXT NOT NULL,
			indexed_at DATETIME,
			FOREIGN KEY (item_key) REFERENCES items(item_key) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_items_type ON items(item_type);`,
		`CREATE INDEX IF NOT EXISTS idx_attachments_parent ON attachments(parent_item_key);`,
		`CREATE INDEX IF NOT EXISTS idx_notes_parent ON notes(parent_item_key);`,
		`CREATE INDEX IF NOT EXISTS idx_notes_collection ON notes(collection_key);`,
		`CREATE INDEX IF NOT EXISTS idx_collection_items_item ON collection_items(item_key);`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_item ON chunks(item_key);`,
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}

	return recordSchemaVersion(db)
}

// recordSchemaVersion inserts the current schema version if it is not already
// recorded. SchemaVersion reads it back at startup to gate future migrations.
func recordSchemaVersion(db *sql.DB) error {
	var v int
	err := db.QueryRow("SELECT version FROM schema_version WHERE version = ?", schemaVersion).Scan(&v)
	if err == sql.ErrNoRows {
		if _, err := db.Exec("INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
			return fmt.Errorf("failed to record schema version: %w", err)
		}
		return nil
	}
	return err
}

// SchemaVersion returns the highest schema version recorded in the database.
func SchemaVersion(db *sql.DB) (int, error) {
	var v int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return v, nil
}
