package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/stompdebug/internal/auth"
	"github.com/vovakirdan/stompdebug/internal/broker"
	"github.com/vovakirdan/stompdebug/internal/broker/memory"
	"github.com/vovakirdan/stompdebug/internal/broker/stomp"
	"github.com/vovakirdan/stompdebug/internal/config"
	"github.com/vovakirdan/stompdebug/internal/display"
	"github.com/vovakirdan/stompdebug/internal/session"
	"github.com/vovakirdan/stompdebug/internal/store"
	"github.com/vovakirdan/stompdebug/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/stompdebug/internal/transport/http"
)

const shutdownTimeout = 5 * time.Second

// App wires the session, message log and optional control server together.
type App struct {
	cfg        *config.Config
	session    *session.Session
	messages   *display.Log
	transcript store.Transcript
	server     *stdhttp.Server
	in         io.Reader
	out        io.Writer
	log        *zerolog.Logger
}

// New constructs the application. Messages are rendered to out; console
// commands are read from in.
func New(cfg *config.Config, logger *zerolog.Logger, in io.Reader, out io.Writer) (*App, error) {
	a := &App{cfg: cfg, in: in, out: out, log: logger}

	var logOpts []display.Option
	if cfg.HistoryPath != "" {
		st, err := sqlite.New(cfg.HistoryPath)
		if err != nil {
			return nil, fmt.Errorf("init history: %w", err)
		}
		logger.Info().Str("history_path", cfg.HistoryPath).Msg("history enabled")
		a.transcript = st
		logOpts = append(logOpts, display.WithTranscript(st))
	}
	a.messages = display.New(out, logger, logOpts...)

	var sessOpts []session.Option
	if cfg.JWTSecret != "" {
		sessOpts = append(sessOpts, session.WithTokenIssuer(auth.NewIssuer(&auth.JWTConfig{
			Secret:   []byte(cfg.JWTSecret),
			Issuer:   cfg.JWTIssuer,
			Audience: cfg.JWTAudience,
			TTL:      cfg.JWTTTL,
		})))
	}
	a.session = session.New(newDialer(cfg, logger), a.messages, logger, sessOpts...)

	if cfg.InspectAddr != "" {
		a.server = transporthttp.NewServer(a.session, a.messages, a.transcript, *cfg, logger)
	}

	return a, nil
}

func newDialer(cfg *config.Config, logger *zerolog.Logger) broker.Dialer {
	if cfg.Loopback {
		logger.Info().Msg("using in-process loopback broker")
		return memory.New()
	}
	return stomp.NewDialer(cfg.Endpoint, cfg.HeartBeat, logger)
}

// Session exposes the session controller.
func (a *App) Session() *session.Session {
	return a.session
}

// Run serves the control API (when configured) and the console until the
// input ends, the user quits or ctx is cancelled. A live session is
// disconnected before returning.
func (a *App) Run(ctx context.Context, autoConnect bool) error {
	serverErr := make(chan error, 1)
	if a.server != nil {
		go func() {
			a.log.Info().Str("addr", a.server.Addr).Msg("control API listening")
			if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
				serverErr <- err
				return
			}
			serverErr <- nil
		}()
	}

	if autoConnect {
		a.connect(ctx, nil)
	}

	consoleDone := make(chan struct{})
	go func() {
		defer close(consoleDone)
		a.console(ctx)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case <-consoleDone:
	case runErr = <-serverErr:
	}

	a.shutdown()
	return runErr
}

// SendOnce connects, sends one direct message and disconnects.
func (a *App) SendOnce(ctx context.Context, recipient, content string) error {
	defer a.cleanup()

	connectCtx, cancel := a.connectContext(ctx)
	defer cancel()
	if err := a.session.Connect(connectCtx, a.identity(nil)); err != nil {
		return err
	}

	sendErr := a.session.SendMessage(ctx, recipient, content)
	if err := a.session.Disconnect(ctx); err != nil {
		a.log.Warn().Err(err).Msg("disconnect after send")
	}
	return sendErr
}

func (a *App) identity(args []string) session.Identity {
	id := session.Identity{UserID: a.cfg.UserID, FullName: a.cfg.FullName}
	if len(args) > 0 {
		id.UserID = args[0]
	}
	if len(args) > 1 {
		id.FullName = args[1]
	}
	return id
}

func (a *App) connectContext(parent context.Context) (context.Context, context.CancelFunc) {
	if a.cfg.ConnectTimeout > 0 {
		return context.WithTimeout(parent, a.cfg.ConnectTimeout)
	}
	return context.WithCancel(parent)
}

func (a *App) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if a.session.Snapshot().State == session.StateConnected {
		if err := a.session.Disconnect(ctx); err != nil {
			a.log.Warn().Err(err).Msg("disconnect on shutdown")
		}
	}

	if a.server != nil {
		a.log.Info().Msg("shutting down control API")
		if err := a.server.Shutdown(ctx); err != nil {
			a.log.Warn().Err(err).Msg("control API shutdown")
		}
	}

	a.cleanup()
}

// cleanup closes the transcript store.
func (a *App) cleanup() {
	if a.transcript != nil {
		if err := a.transcript.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close history")
		} else {
			a.log.Debug().Msg("history closed")
		}
	}
}
