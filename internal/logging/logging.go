// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package logging provides the structured log events the translator
// emits. The log transport itself (syslog/stdout/journal) is an
// external collaborator; this package only defines the severities and
// the component/error-tagged helpers the rest of the module calls.
package logging

import (
	"io"
	"os"

	charmlog "github.com/charmbracelet/log"
)

// Severity is one of the six syslog-style levels the translator
// emits. charmbracelet/log only has four native levels, so Notice and
// Crit are carried as markers layered on top of Info and Error
// respectively.
type Severity int

const (
	SeverityDebug Severity = iota
	SeverityInfo
	SeverityNotice
	SeverityWarning
	SeverityErr
	SeverityCrit
)

func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityNotice:
		return "notice"
	case SeverityWarning:
		return "warning"
	case SeverityErr:
		return "err"
	case SeverityCrit:
		return "crit"
	default:
		return "unknown"
	}
}

// Logger wraps a charmbracelet/log logger with the component/error
// chaining conventions used throughout the module:
// logging.WithComponent("x").WithError(err).Debug(...).
type Logger struct {
	l *charmlog.Logger
}

var root = New(os.Stderr)

// New creates a Logger writing to w at the default level (info).
func New(w io.Writer) *Logger {
	l := charmlog.NewWithOptions(w, charmlog.Options{
		ReportTimestamp: true,
	})
	return &Logger{l: l}
}

// SetOutput replaces the root logger with one writing to w at the
// default level, used by the CLI's --stdout flag.
func SetOutput(w io.Writer) {
	root = New(w)
}

// SetDebug toggles debug-level verbosity on the root logger.
func SetDebug(debug bool) {
	root.SetDebug(debug)
}

// SetDebug toggles debug-level verbosity on lg.
func (lg *Logger) SetDebug(debug bool) {
	if debug {
		lg.l.SetLevel(charmlog.DebugLevel)
	} else {
		lg.l.SetLevel(charmlog.InfoLevel)
	}
}

// WithComponent returns a Logger tagged with a component field, so log
// lines read e.g. "component=translator msg=...".
func WithComponent(name string) *Logger {
	return root.WithComponent(name)
}

// WithComponent returns a derived Logger tagged with a component field.
func (lg *Logger) WithComponent(name string) *Logger {
	return &Logger{l: lg.l.With("component", name)}
}

// WithError returns a derived Logger with an "error" field set, for
// chaining as logger.WithError(err).Warning("...").
func (lg *Logger) WithError(err error) *Logger {
	if err == nil {
		return lg
	}
	return &Logger{l: lg.l.With("error", err.Error())}
}

// With returns a derived Logger with the given key-value pairs set.
func (lg *Logger) With(keyvals ...any) *Logger {
	return &Logger{l: lg.l.With(keyvals...)}
}

func (lg *Logger) Debug(msg string, keyvals ...any) {
	lg.l.Debug(msg, keyvals...)
}

func (lg *Logger) Info(msg string, keyvals ...any) {
	lg.l.Info(msg, keyvals...)
}

// Notice logs at info level with a "notice" marker; charmbracelet/log
// has no native equivalent of syslog's LOG_NOTICE.
func (lg *Logger) Notice(msg string, keyvals ...any) {
	lg.l.Info(msg, append([]any{"severity", "notice"}, keyvals...)...)
}

func (lg *Logger) Warning(msg string, keyvals ...any) {
	lg.l.Warn(msg, keyvals...)
}

func (lg *Logger) Err(msg string, keyvals ...any) {
	lg.l.Error(msg, keyvals...)
}

// Crit logs at error level with a "crit" marker and is always emitted
// just before a fatal exit; it does not call os.Exit itself, leaving
// that decision to the caller.
func (lg *Logger) Crit(msg string, keyvals ...any) {
	lg.l.Error(msg, append([]any{"severity", "crit"}, keyvals...)...)
}

// Log dispatches to the method matching sev, for callers that compute
// severity dynamically (e.g. the per-packet drop path).
func (lg *Logger) Log(sev Severity, msg string, keyvals ...any) {
	switch sev {
	case SeverityDebug:
		lg.Debug(msg, keyvals...)
	case SeverityInfo:
		lg.Info(msg, keyvals...)
	case SeverityNotice:
		lg.Notice(msg, keyvals...)
	case SeverityWarning:
		lg.Warning(msg, keyvals...)
	case SeverityErr:
		lg.Err(msg, keyvals...)
	case SeverityCrit:
		lg.Crit(msg, keyvals...)
	}
}
