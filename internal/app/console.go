package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/vovakirdan/stompdebug/internal/proto"
	"github.com/vovakirdan/stompdebug/internal/session"
)

const defaultHistoryLimit = 20

const helpText = `commands:
  connect [user] [full name]   open the connection and announce AVAILABLE
  disconnect                   announce OFFLINE and close the connection
  available | away             publish a presence update
  status <AVAILABLE|AWAY>      publish a presence update
  send <to> <content>          send a direct message (also: @<to> <content>)
  state                        show the session state
  history [n]                  show the last n persisted messages
  help                         show this help
  quit                         disconnect and exit`

// command is one parsed console line.
type command struct {
	name string
	args []string // positional words; the last one keeps the rest of the line verbatim
}

// parseCommand splits line into a command. ok is false for blank lines.
func parseCommand(line string) (cmd command, ok bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return command{}, false
	}

	if to, ok := strings.CutPrefix(line, "@"); ok {
		recipient, content := cutWord(to)
		return command{name: "send", args: compact(recipient, content)}, true
	}

	name, rest := cutWord(line)
	cmd.name = strings.ToLower(name)

	switch cmd.name {
	case "send":
		recipient, content := cutWord(rest)
		cmd.args = compact(recipient, content)
	case "connect":
		user, fullName := cutWord(rest)
		cmd.args = compact(user, fullName)
	default:
		cmd.args = compact(strings.Fields(rest)...)
	}
	return cmd, true
}

// cutWord splits s at the first run of spaces.
func cutWord(s string) (word, rest string) {
	s = strings.TrimLeft(s, " \t")
	i := strings.IndexAny(s, " \t")
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimLeft(s[i:], " \t")
}

func compact(parts ...string) []string {
	var out []string
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// console reads commands until input ends, quit, or ctx is cancelled.
func (a *App) console(ctx context.Context) {
	lines := make(chan string)
	done := make(chan struct{})
	defer close(done)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(a.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			cmd, ok := parseCommand(line)
			if !ok {
				continue
			}
			if quit := a.execute(ctx, cmd); quit {
				return
			}
		}
	}
}

func (a *App) execute(ctx context.Context, cmd command) (quit bool) {
	switch cmd.name {
	case "connect":
		a.connect(ctx, cmd.args)
	case "disconnect":
		a.report("disconnect", a.session.Disconnect(ctx))
	case "available":
		a.report("setAvailable", a.session.SetAvailable(ctx))
	case "away":
		a.report("setAway", a.session.SetAway(ctx))
	case "status":
		if len(cmd.args) != 1 {
			a.log.Warn().Msg("usage: status <AVAILABLE|AWAY>")
			return false
		}
		status, err := proto.ParseStatus(cmd.args[0])
		if err != nil || status == proto.StatusOffline {
			a.log.Warn().Str("status", cmd.args[0]).Msg("status must be AVAILABLE or AWAY")
			return false
		}
		a.report("setStatus", a.session.SetStatus(ctx, status))
	case "send":
		if len(cmd.args) == 0 {
			a.log.Warn().Msg("usage: send <to> <content>")
			return false
		}
		content := ""
		if len(cmd.args) > 1 {
			content = cmd.args[1]
		}
		a.report("sendMessage", a.session.SendMessage(ctx, cmd.args[0], content))
	case "state":
		a.printState()
	case "history":
		a.printHistory(ctx, cmd.args)
	case "help", "?":
		fmt.Fprintln(a.out, helpText)
	case "quit", "exit":
		return true
	default:
		a.log.Warn().Str("command", cmd.name).Msg("unknown command, try help")
	}
	return false
}

func (a *App) connect(ctx context.Context, args []string) {
	connectCtx, cancel := a.connectContext(ctx)
	defer cancel()
	a.report("connect", a.session.Connect(connectCtx, a.identity(args)))
}

// report logs the outcome of a session action. Wrong-state errors are
// warnings; the console carries on either way.
func (a *App) report(op string, err error) {
	switch {
	case err == nil:
	case errors.Is(err, session.ErrNotConnected):
		a.log.Warn().Str("op", op).Msg("Not connected")
	case errors.Is(err, session.ErrAlreadyConnected):
		a.log.Warn().Str("op", op).Msg("Already connected")
	case errors.Is(err, session.ErrInvalidIdentity), errors.Is(err, session.ErrNoRecipient):
		a.log.Warn().Str("op", op).Err(err).Msg("invalid input")
	default:
		a.log.Error().Str("op", op).Err(err).Msg("broker operation failed")
	}
}

func (a *App) printState() {
	snap := a.session.Snapshot()
	if snap.State != session.StateConnected {
		fmt.Fprintf(a.out, "state: %s\n", snap.State)
		return
	}
	fmt.Fprintf(a.out, "state: %s as %s (%s) conn=%s\n",
		snap.State, snap.Identity.UserID, snap.Identity.FullName, snap.ConnID)
}

func (a *App) printHistory(ctx context.Context, args []string) {
	if a.transcript == nil {
		a.log.Warn().Msg("history is disabled; set history_path")
		return
	}

	limit := defaultHistoryLimit
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			a.log.Warn().Str("limit", args[0]).Msg("history limit must be a positive integer")
			return
		}
		limit = n
	}

	entries, err := a.transcript.Recent(ctx, limit)
	if err != nil {
		a.log.Error().Err(err).Msg("failed to load history")
		return
	}
	for _, e := range entries {
		fmt.Fprintf(a.out, "#%d %s\n", e.ID, e.Line)
	}
}
