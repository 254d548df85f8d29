package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog to provide subsystem-scoped child loggers.
type Logger struct {
	zl zerolog.Logger
}

// Options selects where and how a root logger writes.
type Options struct {
	Level string
	// Style is "pretty" (console) or "json".
	Style string
	// Out overrides the console destination; stderr when nil.
	Out io.Writer
	// File, when set, additionally receives JSON lines regardless of Style.
	File string
}

var levels = map[string]zerolog.Level{
	"trace":  zerolog.TraceLevel,
	"debug":  zerolog.DebugLevel,
	"info":   zerolog.InfoLevel,
	"warn":   zerolog.WarnLevel,
	"error":  zerolog.ErrorLevel,
	"fatal":  zerolog.FatalLevel,
	"silent": zerolog.Disabled,
}

// New creates a root logger writing to w at the given level. A nil w means
// pretty console output on stderr.
func New(w io.Writer, level string) *Logger {
	if w == nil {
		w = console(os.Stderr, "pretty")
	}
	return build(w, level)
}

// Open builds a root logger from opts. The returned closer releases the log
// file, if any, and is never nil.
func Open(opts Options) (*Logger, io.Closer, error) {
	out := opts.Out
	if out == nil {
		out = os.Stderr
	}
	w := console(out, opts.Style)
	if opts.File == "" {
		return build(w, opts.Level), nopCloser{}, nil
	}

	if err := os.MkdirAll(filepath.Dir(opts.File), 0o700); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	return build(zerolog.MultiLevelWriter(w, f), opts.Level), f, nil
}

func console(out io.Writer, style string) io.Writer {
	if style == "json" {
		return out
	}
	return zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
}

func build(w io.Writer, level string) *Logger {
	zl := zerolog.New(w).With().Timestamp().Logger().Level(parseLevel(level))
	return &Logger{zl: zl}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Sub returns a child logger tagged with a subsystem name.
func (l *Logger) Sub(subsystem string) *Logger {
	return l.With("subsystem", subsystem)
}

// With returns a child logger carrying an extra string field.
func (l *Logger) With(key, value string) *Logger {
	return &Logger{zl: l.zl.With().Str(key, value).Logger()}
}

// Session returns a child logger tagged with a chat session id.
func (l *Logger) Session(id int64) *Logger {
	return &Logger{zl: l.zl.With().Int64("session", id).Logger()}
}

func (l *Logger) Debug() *zerolog.Event { return l.zl.Debug() }
func (l *Logger) Info() *zerolog.Event  { return l.zl.Info() }
func (l *Logger) Warn() *zerolog.Event  { return l.zl.Warn() }
func (l *Logger) Error() *zerolog.Event { return l.zl.Error() }

// Fatal logs at fatal level and exits.
func (l *Logger) Fatal() *zerolog.Event { return l.zl.Fatal() }

// Level reports the minimum level this logger emits.
func (l *Logger) Level() zerolog.Level { return l.zl.GetLevel() }

// Zerolog exposes the underlying logger for libraries that take one.
func (l *Logger) Zerolog() zerolog.Logger { return l.zl }

// parseLevel is case-insensitive and falls back to info.
func parseLevel(s string) zerolog.Level {
	if lvl, ok := levels[strings.ToLower(strings.TrimSpace(s))]; ok {
		return lvl
	}
	return zerolog.InfoLevel
}
