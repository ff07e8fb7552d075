// Package util provides the logger and traffic reporter shared by every
// component.
package util

import (
	"io"
	"os"

	"github.com/pterm/pterm"
)

// TimeFormat is the timestamp layout of every log line.
const TimeFormat = "02 Jan 15:04:05"

// Logger is the leveled, structured logger injected into components.
// args are alternating key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)

	// With returns a Logger that prepends args to every entry.
	With(args ...any) Logger
}

type ptermLogger struct {
	l    *pterm.Logger
	args []any
}

// NewLogger returns a pterm backed Logger writing to w (stderr when nil).
// debug enables debug entries.
func NewLogger(w io.Writer, debug bool) Logger {
	if w == nil {
		w = os.Stderr
	}

	level := pterm.LogLevelInfo
	if debug {
		level = pterm.LogLevelDebug
	}

	l := pterm.DefaultLogger.
		WithLevel(level).
		WithTime(true).
		WithTimeFormat(TimeFormat).
		WithMaxWidth(1000).
		WithWriter(w)

	return &ptermLogger{l: l}
}

func (p *ptermLogger) Debug(msg string, args ...any) { p.l.Debug(msg, p.l.Args(p.merge(args)...)) }
func (p *ptermLogger) Info(msg string, args ...any)  { p.l.Info(msg, p.l.Args(p.merge(args)...)) }
func (p *ptermLogger) Warn(msg string, args ...any)  { p.l.Warn(msg, p.l.Args(p.merge(args)...)) }
func (p *ptermLogger) Error(msg string, args ...any) { p.l.Error(msg, p.l.Args(p.merge(args)...)) }

func (p *ptermLogger) With(args ...any) Logger {
	return &ptermLogger{l: p.l, args: p.merge(args)}
}

func (p *ptermLogger) merge(args []any) []any {
	if len(p.args) == 0 {
		return args
	}
	out := make([]any, 0, len(p.args)+len(args))
	out = append(out, p.args...)
	return append(out, args...)
}

type discard struct{}

// Discard returns a Logger that drops everything.
func Discard() Logger { return discard{} }

func (discard) Debug(string, ...any)  {}
func (discard) Info(string, ...any)   {}
func (discard) Warn(string, ...any)   {}
func (discard) Error(string, ...any)  {}
func (d discard) With(...any) Logger { return d }
