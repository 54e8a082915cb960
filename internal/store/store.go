package store

import (
	"context"
	"time"
)

// Entry is a rendered message kept in the transcript.
type Entry struct {
	ID      int64
	From    string
	To      string
	Content string
	Date    time.Time // message date as sent, not the time it was recorded
	Line    string    // the exact line written to the message log
}

// Transcript persists rendered messages.
type Transcript interface {
	// Append stores an entry and returns its ID.
	Append(ctx context.Context, entry Entry) (int64, error)

	// Recent returns up to limit entries in chronological order, newest last.
	Recent(ctx context.Context, limit int) ([]*Entry, error)

	// Close releases underlying resources.
	Close() error
}
