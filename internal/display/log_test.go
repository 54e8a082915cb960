package display

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vovakirdan/stompdebug/internal/proto"
	"github.com/vovakirdan/stompdebug/internal/store"
)

type fakeTranscript struct {
	mu      sync.Mutex
	entries []store.Entry
	err     error
}

func (f *fakeTranscript) Append(_ context.Context, entry store.Entry) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.entries = append(f.entries, entry)
	return int64(len(f.entries)), nil
}

func (f *fakeTranscript) Recent(context.Context, int) ([]*store.Entry, error) { return nil, nil }
func (f *fakeTranscript) Close() error                                        { return nil }

func TestDisplayWritesLine(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, nil, WithLocation(time.UTC))

	at := time.Date(2024, 3, 1, 9, 5, 7, 0, time.UTC)
	l.Display(proto.NewMessage("alice", "bob", "hello", at))

	if got, want := buf.String(), "alice: hello [09:05:07]\n"; got != want {
		t.Fatalf("unexpected log output %q, want %q", got, want)
	}
}

func TestDisplayStatusAdapter(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, nil, WithLocation(time.UTC))

	at := time.Date(2024, 3, 1, 18, 0, 3, 0, time.UTC)
	l.Display(proto.StatusMessage(proto.UserStatus{
		FullName:   "Bob",
		Status:     proto.StatusAway,
		StatusTime: proto.Timestamp(at),
	}))

	if got := strings.TrimSpace(buf.String()); got != "Bob: AWAY [18:00:03]" {
		t.Fatalf("unexpected status line %q", got)
	}
}

func TestDisplayDropsControlCharacters(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, nil, WithLocation(time.UTC))

	l.Display(proto.NewMessage("ev\x1b[31mil", "", "line1\nline2<b>", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))

	if got, want := buf.String(), "ev[31mil: line1line2<b> [00:00:00]\n"; got != want {
		t.Fatalf("unexpected sanitized output %q, want %q", got, want)
	}
}

func TestLinesLimit(t *testing.T) {
	l := New(&bytes.Buffer{}, nil, WithLocation(time.UTC))
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, content := range []string{"a", "b", "c"} {
		l.Display(proto.NewMessage("x", "", content, at))
	}

	if got := l.Lines(2); len(got) != 2 || got[0] != "x: b [00:00:00]" || got[1] != "x: c [00:00:00]" {
		t.Fatalf("unexpected last two lines: %v", got)
	}
	if got := l.Lines(0); len(got) != 3 {
		t.Fatalf("expected all 3 lines, got %v", got)
	}
}

func TestDisplayRecordsTranscript(t *testing.T) {
	tr := &fakeTranscript{}
	l := New(&bytes.Buffer{}, nil, WithLocation(time.UTC), WithTranscript(tr))

	at := time.Date(2024, 1, 1, 10, 11, 12, 0, time.UTC)
	l.Display(proto.NewMessage("alice", "bob", "hi", at))

	if len(tr.entries) != 1 {
		t.Fatalf("expected 1 transcript entry, got %d", len(tr.entries))
	}
	entry := tr.entries[0]
	if entry.From != "alice" || entry.To != "bob" || entry.Content != "hi" || entry.Line != "alice: hi [10:11:12]" {
		t.Fatalf("unexpected entry: %+v", entry)
	}
}

func TestDisplaySurvivesTranscriptFailure(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, nil, WithLocation(time.UTC), WithTranscript(&fakeTranscript{err: errors.New("disk full")}))

	l.Display(proto.NewMessage("alice", "", "still shown", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))

	if !strings.Contains(buf.String(), "still shown") {
		t.Fatalf("expected line despite transcript failure, got %q", buf.String())
	}
}
