package client

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// Keys kept in the prefs store.
const (
	PrefAuthToken   = "auth.token"
	PrefAuthProfile = "auth.profile"
	PrefFavorites   = "favorites.ids"
)

// Prefs is a small persistent key-value store. Reads and writes block.
type Prefs interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(keys ...string) error
	Close() error
}

const prefsSchema = `
CREATE TABLE IF NOT EXISTS prefs (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`

// SQLitePrefs keeps prefs in a single SQLite table.
type SQLitePrefs struct {
	db *sql.DB
}

// OpenSQLitePrefs opens or creates the prefs database at path. ":memory:" keeps it in memory.
func OpenSQLitePrefs(path string) (*SQLitePrefs, error) {
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create prefs directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open prefs database: %w", err)
	}
	// One connection: an in-memory database exists per connection, and SQLite has a single writer.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to prefs database: %w", err)
	}
	if _, err := db.Exec(prefsSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create prefs schema: %w", err)
	}
	return &SQLitePrefs{db: db}, nil
}

func (p *SQLitePrefs) Get(key string) (string, bool, error) {
	var value string
	err := p.db.QueryRow(`SELECT value FROM prefs WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read pref %s: %w", key, err)
	}
	return value, true, nil
}

func (p *SQLitePrefs) Set(key, value string) error {
	_, err := p.db.Exec(`
		INSERT INTO prefs (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		key, value)
	if err != nil {
		return fmt.Errorf("failed to write pref %s: %w", key, err)
	}
	return nil
}

func (p *SQLitePrefs) Delete(keys ...string) error {
	for _, key := range keys {
		if _, err := p.db.Exec(`DELETE FROM prefs WHERE key = ?`, key); err != nil {
			return fmt.Errorf("failed to delete pref %s: %w", key, err)
		}
	}
	return nil
}

func (p *SQLitePrefs) Close() error {
	return p.db.Close()
}
