// Package logging builds the zerolog logger shared by the CLI and server.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"giveaway/internal/domain"
	"giveaway/internal/extract"
)

// New returns a console logger writing to w. verbose lowers the level to debug.
func New(w io.Writer, verbose bool) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	out := zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly, NoColor: true}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// JSON returns a structured logger for long-running processes.
func JSON(w io.Writer, verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

type observer struct {
	log  zerolog.Logger
	kind domain.InteractionKind
}

// Observer reports extraction progress for one interaction kind. New
// identifiers are logged at debug; every fifth iteration is logged at info and
// the rest at debug.
func Observer(log zerolog.Logger, kind domain.InteractionKind) extract.Observer {
	return observer{log: log, kind: kind}
}

func (o observer) IdentifierFound(ev extract.IdentifierEvent) {
	o.log.Debug().
		Str("kind", string(o.kind)).
		Str("identifier", ev.Identifier).
		Int("total", ev.Total).
		Msg("identifier found")
}

const progressEvery = 5

func (o observer) IterationDone(ev extract.IterationEvent) {
	e := o.log.Debug()
	if ev.Iteration%progressEvery == 0 {
		e = o.log.Info()
	}
	e.
		Str("kind", string(o.kind)).
		Int("iteration", ev.Iteration).
		Int("new", ev.New).
		Int("total", ev.Total).
		Dur("elapsed", ev.Elapsed).
		Msg("extraction progress")
}
