// Package logging builds the process logger.
package logging

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
)

// New creates a [log.Logger] writing to w with timestamps and caller
// reporting enabled.  The writer defaults to [os.Stderr].
func New(w io.Writer) *log.Logger {
	if w == nil {
		w = os.Stderr
	}
	return log.NewWithOptions(w, log.Options{ReportTimestamp: true, ReportCaller: true})
}

// FromEnv is New with the level taken from LOG_LEVEL (debug, info, warn,
// error).  Unknown or empty values leave the level at info.
func FromEnv(w io.Writer) *log.Logger {
	l := New(w)
	if lvl, err := log.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil && os.Getenv("LOG_LEVEL") != "" {
		l.SetLevel(lvl)
	}
	return l
}

// Component returns a child logger tagged with the component name.
func Component(l *log.Logger, name string) *log.Logger {
	return l.With("component", name)
}

// Discard returns a logger that writes nowhere.
func Discard() *log.Logger {
	return log.New(io.Discard)
}
