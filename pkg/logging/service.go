// Package logging builds the slog handler shared by the commands.
package logging

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
)

// New returns a logger writing to stderr. Terminals get the colourised tint
// handler; anything else (journald, files) gets plain key=value records.
func New(debug bool) *slog.Logger {
	terminal := isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
	return slog.New(newHandler(os.Stderr, terminal, level(debug)))
}

// Component returns a child logger tagged with the component name.
func Component(logger *slog.Logger, name string) *slog.Logger {
	return logger.With("component", name)
}

func level(debug bool) slog.Level {
	if debug {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

func newHandler(w io.Writer, terminal bool, lvl slog.Level) slog.Handler {
	if terminal {
		return tint.NewHandler(w, &tint.Options{
			Level:      lvl,
			TimeFormat: time.DateTime,
			AddSource:  lvl == slog.LevelDebug,
		})
	}
	return slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})
}
