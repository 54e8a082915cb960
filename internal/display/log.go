package display

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/rs/zerolog"
	"github.com/vovakirdan/stompdebug/internal/proto"
	"github.com/vovakirdan/stompdebug/internal/store"
	"github.com/vovakirdan/stompdebug/internal/utils"
)

const recordTimeout = 2 * time.Second

// Log is the message log: every displayed message becomes one line.
type Log struct {
	mu         sync.Mutex
	out        io.Writer
	loc        *time.Location
	lines      []string
	transcript store.Transcript
	log        *zerolog.Logger
}

// Option configures a Log.
type Option func(*Log)

// WithLocation renders clock times in loc instead of the local zone.
func WithLocation(loc *time.Location) Option {
	return func(l *Log) { l.loc = loc }
}

// WithTranscript records every rendered message in t.
func WithTranscript(t store.Transcript) Option {
	return func(l *Log) { l.transcript = t }
}

// New builds a message log writing to out.
func New(out io.Writer, logger *zerolog.Logger, opts ...Option) *Log {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := &Log{out: out, log: logger}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Format builds the text line for msg: "<from>: <content> [<HH:MM:SS>]".
func Format(msg proto.Message, loc *time.Location) string {
	return fmt.Sprintf("%s: %s [%s]",
		sanitize(msg.From),
		sanitize(msg.Content),
		utils.FormatClock(msg.Date.Time(), loc),
	)
}

// Display appends msg to the message log.
func (l *Log) Display(msg proto.Message) {
	line := Format(msg, l.loc)

	l.mu.Lock()
	l.lines = append(l.lines, line)
	if _, err := io.WriteString(l.out, line+"\n"); err != nil {
		l.log.Warn().Err(err).Msg("write message log")
	}
	l.mu.Unlock()

	l.log.Debug().Str("from", msg.From).Str("to", msg.To).Msg("displayMessage")

	if l.transcript != nil {
		l.record(msg, line)
	}
}

func (l *Log) record(msg proto.Message, line string) {
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	_, err := l.transcript.Append(ctx, store.Entry{
		From:    msg.From,
		To:      msg.To,
		Content: msg.Content,
		Date:    msg.Date.Time(),
		Line:    line,
	})
	if err != nil {
		l.log.Warn().Err(err).Msg("failed to record transcript entry")
	}
}

// Lines returns up to limit of the most recently displayed lines, oldest first.
// A non-positive limit returns every line.
func (l *Log) Lines(limit int) []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	start := 0
	if limit > 0 && len(l.lines) > limit {
		start = len(l.lines) - limit
	}
	out := make([]string, len(l.lines)-start)
	copy(out, l.lines[start:])
	return out
}

// sanitize drops control characters so a peer cannot smuggle terminal
// escape sequences or extra lines into the log.
func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}
