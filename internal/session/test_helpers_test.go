package session

import (
	"sync"
	"testing"
	"time"

	"github.com/vovakirdan/stompdebug/internal/proto"
)

type recorder struct {
	mu   sync.Mutex
	msgs []proto.Message
}

func (r *recorder) Display(msg proto.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func (r *recorder) messages() []proto.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]proto.Message, len(r.msgs))
	copy(out, r.msgs)
	return out
}

func (r *recorder) has(from, content string) bool {
	for _, m := range r.messages() {
		if m.From == from && m.Content == content {
			return true
		}
	}
	return false
}

// mustSee waits until the recorder has displayed a message from sender with content.
func mustSee(t *testing.T, r *recorder, from, content string) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if r.has(from, content) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected %q from %q, got %+v", content, from, r.messages())
}

func fixedClock() time.Time {
	return time.Date(2024, 3, 1, 9, 5, 7, 0, time.UTC)
}
