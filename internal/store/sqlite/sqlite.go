package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vovakirdan/stompdebug/internal/store"
)

// Schema creates the transcript table. It is safe to apply repeatedly.
const Schema = `
CREATE TABLE IF NOT EXISTS transcript (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	sender       TEXT NOT NULL,
	recipient    TEXT NOT NULL DEFAULT '',
	content      TEXT NOT NULL,
	sent_at      DATETIME NOT NULL,
	line         TEXT NOT NULL,
	recorded_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// SQLiteStore implements store.Transcript for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New opens (or creates) the transcript database at dbPath and applies the schema.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, applySchema)
}

// NewWithSetup opens a SQLite store and runs a setup function.
// Useful for tests that need a custom schema or seed data.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Single connection: required for :memory: and fine for a local transcript.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Append stores a rendered message.
func (s *SQLiteStore) Append(ctx context.Context, entry store.Entry) (int64, error) {
	query := `
		INSERT INTO transcript (sender, recipient, content, sent_at, line)
		VALUES (?, ?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query,
		entry.From,
		entry.To,
		entry.Content,
		entry.Date.UTC(),
		entry.Line,
	)
	if err != nil {
		return 0, fmt.Errorf("insert transcript entry: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get last insert id: %w", err)
	}
	return id, nil
}

// Recent returns the last limit entries, oldest first.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]*store.Entry, error) {
	if limit <= 0 {
		return nil, nil
	}

	query := `
		SELECT id, sender, recipient, content, sent_at, line
		FROM transcript
		ORDER BY id DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query transcript: %w", err)
	}
	defer rows.Close()

	var entries []*store.Entry
	for rows.Next() {
		var (
			entry  store.Entry
			sentAt time.Time
		)
		if err := rows.Scan(&entry.ID, &entry.From, &entry.To, &entry.Content, &sentAt, &entry.Line); err != nil {
			return nil, fmt.Errorf("scan transcript entry: %w", err)
		}
		entry.Date = sentAt
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transcript: %w", err)
	}

	// Reverse to get chronological order
	for i := 0; i < len(entries)/2; i++ {
		entries[i], entries[len(entries)-1-i] = entries[len(entries)-1-i], entries[i]
	}

	return entries, nil
}
