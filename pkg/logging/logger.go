// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-hsm.
//
// go-hsm is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package logging provides structured logging for go-hsm built on log/slog.
// Credentials and key material must never be passed to any log call.
package logging

import (
	"fmt"
	"log"
	"log/slog"
	"os"
)

// Logger wraps slog with level helpers used throughout go-hsm.
type Logger struct {
	logger *slog.Logger
	debug  bool
}

// NewLogger creates a new text logger writing to stderr.
func NewLogger(debug bool) *Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		logger: slog.New(handler),
		debug:  debug,
	}
}

// NewJSONLogger creates a new JSON logger writing to stderr.
func NewJSONLogger(debug bool) *Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		logger: slog.New(handler),
		debug:  debug,
	}
}

// New creates a logger from a level and format name as found in the
// configuration file. Unknown values fall back to info/text.
func New(level, format string) *Logger {
	debug := level == "debug"
	if format == "json" {
		return NewJSONLogger(debug)
	}
	return NewLogger(debug)
}

// Info logs an informational message
func (l *Logger) Info(msg string, args ...any) {
	l.logger.Info(msg, args...)
}

// Infof logs a formatted informational message
func (l *Logger) Infof(format string, args ...any) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, args ...any) {
	if l.debug {
		l.logger.Debug(msg, args...)
	}
}

// Debugf logs a formatted debug message
func (l *Logger) Debugf(format string, args ...any) {
	if l.debug {
		l.logger.Debug(fmt.Sprintf(format, args...))
	}
}

// Warn logs a warning message
func (l *Logger) Warn(msg string, args ...any) {
	l.logger.Warn(msg, args...)
}

// Warnf logs a formatted warning message
func (l *Logger) Warnf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

// Error logs an error
func (l *Logger) Error(err error) {
	l.logger.Error(err.Error())
}

// Errorf logs a formatted error message
func (l *Logger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

// FatalError logs a fatal error and exits
func (l *Logger) FatalError(err error) {
	log.Fatal(err)
}

// MaybeError logs an error if it's not nil
func (l *Logger) MaybeError(err error) {
	if err != nil {
		l.logger.Error(err.Error())
	}
}

// DefaultLogger returns a default logger instance with debug=false
func DefaultLogger() *Logger {
	return NewLogger(false)
}
