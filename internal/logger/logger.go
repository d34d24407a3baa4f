// Copyright 2024 The scanfuse Authors. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logger provides the process-wide logger: slog underneath,
// formatted as text or JSON, writing to stderr or to a rotated log file.
package logger

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Severity names accepted by Init and the SCANFUSE_LOG_SEVERITY environment
// variable.
const (
	OFF     = "OFF"
	ERROR   = "ERROR"
	WARNING = "WARNING"
	INFO    = "INFO"
	DEBUG   = "DEBUG"
	TRACE   = "TRACE"
)

// LevelTrace sits below slog's built-in levels; LevelOff above all of them.
const (
	LevelTrace = slog.Level(-8)
	LevelOff   = slog.Level(16)
)

// SeverityEnvVar overrides the default severity when set, the usual
// environment-driven verbosity knob.
const SeverityEnvVar = "SCANFUSE_LOG_SEVERITY"

var (
	programLevel  = new(slog.LevelVar)
	defaultLogger = slog.New(newHandler(os.Stderr, "text", programLevel))
)

func init() {
	programLevel.Set(levelFor(DefaultSeverity()))
}

// DefaultSeverity is INFO, unless the environment says otherwise.
func DefaultSeverity() string {
	if s := os.Getenv(SeverityEnvVar); s != "" {
		return strings.ToUpper(s)
	}

	return INFO
}

// Init points the default logger at its final destination. An empty filePath
// keeps logs on stderr; otherwise they go to filePath with rotation.
func Init(format, severity, filePath string) error {
	var w io.Writer = os.Stderr
	if filePath != "" {
		w = &lumberjack.Logger{
			Filename:   filePath,
			MaxSize:    100, // MiB
			MaxBackups: 10,
			Compress:   true,
		}
	}

	if severity == "" {
		severity = DefaultSeverity()
	}
	switch strings.ToUpper(severity) {
	case OFF, ERROR, WARNING, INFO, DEBUG, TRACE:
	default:
		return fmt.Errorf("unknown log severity %q", severity)
	}

	programLevel.Set(levelFor(severity))
	defaultLogger = slog.New(newHandler(w, format, programLevel))

	return nil
}

// NewLegacyLogger returns a *log.Logger for collaborators that expect one
// (the fuse connection's error and debug hooks). Lines are forwarded to the
// default logger at the given severity.
func NewLegacyLogger(severity, prefix string) *log.Logger {
	return log.New(&levelWriter{level: levelFor(severity)}, prefix, 0)
}

func Tracef(format string, v ...any) {
	defaultLogger.Log(context.Background(), LevelTrace, fmt.Sprintf(format, v...))
}

func Debugf(format string, v ...any) {
	defaultLogger.Debug(fmt.Sprintf(format, v...))
}

func Info(msg string) {
	defaultLogger.Info(msg)
}

func Infof(format string, v ...any) {
	defaultLogger.Info(fmt.Sprintf(format, v...))
}

func Warnf(format string, v ...any) {
	defaultLogger.Warn(fmt.Sprintf(format, v...))
}

func Errorf(format string, v ...any) {
	defaultLogger.Error(fmt.Sprintf(format, v...))
}

////////////////////////////////////////////////////////////////////////
// Helpers
////////////////////////////////////////////////////////////////////////

func levelFor(severity string) slog.Level {
	switch strings.ToUpper(severity) {
	case OFF:
		return LevelOff
	case ERROR:
		return slog.LevelError
	case WARNING:
		return slog.LevelWarn
	case DEBUG:
		return slog.LevelDebug
	case TRACE:
		return LevelTrace
	default:
		return slog.LevelInfo
	}
}

func newHandler(w io.Writer, format string, level slog.Leveler) slog.Handler {
	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Rename "level" to "severity" and give the custom trace level its
			// proper name.
			if a.Key == slog.LevelKey {
				a.Key = "severity"
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
					a.Value = slog.StringValue(TRACE)
				}
			}
			if a.Key == slog.MessageKey {
				a.Key = "message"
			}
			return a
		},
	}

	if format == "json" {
		return slog.NewJSONHandler(w, opts)
	}

	return slog.NewTextHandler(w, opts)
}

// levelWriter adapts line-oriented log output onto the default logger.
type levelWriter struct {
	level slog.Level
}

func (lw *levelWriter) Write(p []byte) (int, error) {
	defaultLogger.Log(context.Background(), lw.level, strings.TrimRight(string(p), "\n"))
	return len(p), nil
}
