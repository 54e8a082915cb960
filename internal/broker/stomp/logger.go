package stomp

import (
	"fmt"

	"github.com/rs/zerolog"
)

// logAdapter routes go-stomp's internal logging through zerolog.
type logAdapter struct {
	log zerolog.Logger
}

func newLogAdapter(logger *zerolog.Logger) *logAdapter {
	if logger == nil {
		return &logAdapter{log: zerolog.Nop()}
	}
	return &logAdapter{log: logger.With().Str("component", "stomp").Logger()}
}

func (a *logAdapter) Debugf(format string, value ...interface{}) {
	a.log.Debug().Msg(fmt.Sprintf(format, value...))
}

func (a *logAdapter) Infof(format string, value ...interface{}) {
	a.log.Debug().Msg(fmt.Sprintf(format, value...))
}

func (a *logAdapter) Warningf(format string, value ...interface{}) {
	a.log.Warn().Msg(fmt.Sprintf(format, value...))
}

func (a *logAdapter) Errorf(format string, value ...interface{}) {
	a.log.Error().Msg(fmt.Sprintf(format, value...))
}

func (a *logAdapter) Debug(message string) { a.log.Debug().Msg(message) }

// Info is demoted to debug: the library reports every subscription
// teardown at info level.
func (a *logAdapter) Info(message string) { a.log.Debug().Msg(message) }

func (a *logAdapter) Warning(message string) { a.log.Warn().Msg(message) }

func (a *logAdapter) Error(message string) { a.log.Error().Msg(message) }
