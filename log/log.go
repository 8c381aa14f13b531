// Package log provides leveled, structured logging for the whole repo on top
// of zerolog. Call Init once at startup; the package-level helpers are safe
// to use from any goroutine.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
)

const (
	// LogLevelDebug is the debug log level name accepted by Init.
	LogLevelDebug = "debug"
	// LogLevelInfo is the info log level name accepted by Init.
	LogLevelInfo = "info"
	// LogLevelWarn is the warn log level name accepted by Init.
	LogLevelWarn = "warn"
	// LogLevelError is the error log level name accepted by Init.
	LogLevelError = "error"
)

const logTestWriterName = "testwriter"

var (
	log zerolog.Logger

	// panicOnInvalidChars makes the logger panic when a message carries
	// invalid UTF-8, to catch raw binary being logged without %x.
	panicOnInvalidChars = os.Getenv("LOG_PANIC_ON_INVALIDCHARS") == "true"

	// logTestWriter is the sink selected by passing logTestWriterName as the
	// output to Init. Tests and benchmarks override it.
	logTestWriter io.Writer = io.Discard
)

func init() {
	// Usable before Init, for packages that log during construction.
	log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()
}

// Init configures the package logger. Level is one of "debug", "info",
// "warn" or "error". Output is "stdout", "stderr" or a file path. If
// errorOutput is not nil, messages of level error and above are duplicated
// to it.
func Init(level, output string, errorOutput io.Writer) {
	var out io.Writer
	switch output {
	case "stdout":
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	case "stderr":
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	case logTestWriterName:
		out = logTestWriter
	default:
		f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			panic(fmt.Sprintf("cannot open log output %q: %v", output, err))
		}
		out = f
	}
	if errorOutput != nil {
		out = zerolog.MultiLevelWriter(toLevelWriter(out), errorLevelWriter{w: errorOutput})
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano
	log = zerolog.New(out).With().Timestamp().Logger().Level(parseLevel(level))
	Debugf("logger construction succeeded at level %s with output %s", level, output)
}

// Logger returns the underlying zerolog logger, for the rare caller that
// needs direct access.
func Logger() *zerolog.Logger { return &log }

// Level returns the current log level name.
func Level() string {
	switch log.GetLevel() {
	case zerolog.DebugLevel:
		return LogLevelDebug
	case zerolog.InfoLevel:
		return LogLevelInfo
	case zerolog.WarnLevel:
		return LogLevelWarn
	default:
		return LogLevelError
	}
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		panic(fmt.Sprintf("invalid log level %q", level))
	}
}

func toLevelWriter(w io.Writer) zerolog.LevelWriter {
	if lw, ok := w.(zerolog.LevelWriter); ok {
		return lw
	}
	return plainLevelWriter{w}
}

type plainLevelWriter struct{ w io.Writer }

func (plw plainLevelWriter) Write(p []byte) (int, error) { return plw.w.Write(p) }
func (plw plainLevelWriter) WriteLevel(_ zerolog.Level, p []byte) (int, error) {
	return plw.w.Write(p)
}

// errorLevelWriter forwards only error-level (and above) lines.
type errorLevelWriter struct{ w io.Writer }

func (lw errorLevelWriter) Write(p []byte) (int, error) { return len(p), nil }
func (lw errorLevelWriter) WriteLevel(l zerolog.Level, p []byte) (int, error) {
	if l < zerolog.ErrorLevel {
		return len(p), nil
	}
	return lw.w.Write(p)
}

func checkInvalidChars(msg string) {
	if panicOnInvalidChars && !utf8.ValidString(msg) {
		panic(fmt.Sprintf("log message with invalid chars: %q", msg))
	}
}

func send(ev *zerolog.Event, msg string) {
	checkInvalidChars(msg)
	ev.Msg(msg)
}

func sendf(ev *zerolog.Event, template string, args ...any) {
	send(ev, fmt.Sprintf(template, args...))
}

func sendw(ev *zerolog.Event, msg string, keyvalues []any) {
	checkInvalidChars(msg)
	ev.Fields(keyvalues).Msg(msg)
}

// Debug logs a debug message built from args, in fmt.Sprint style.
func Debug(args ...any) { send(log.Debug(), fmt.Sprint(args...)) }

// Debugf logs a formatted debug message.
func Debugf(template string, args ...any) { sendf(log.Debug(), template, args...) }

// Debugw logs a debug message with alternating key/value pairs.
func Debugw(msg string, keyvalues ...any) { sendw(log.Debug(), msg, keyvalues) }

// Info logs an info message built from args, in fmt.Sprint style.
func Info(args ...any) { send(log.Info(), fmt.Sprint(args...)) }

// Infof logs a formatted info message.
func Infof(template string, args ...any) { sendf(log.Info(), template, args...) }

// Infow logs an info message with alternating key/value pairs.
func Infow(msg string, keyvalues ...any) { sendw(log.Info(), msg, keyvalues) }

// Warn logs a warning message built from args, in fmt.Sprint style.
func Warn(args ...any) { send(log.Warn(), fmt.Sprint(args...)) }

// Warnf logs a formatted warning message.
func Warnf(template string, args ...any) { sendf(log.Warn(), template, args...) }

// Warnw logs a warning message with alternating key/value pairs.
func Warnw(msg string, keyvalues ...any) { sendw(log.Warn(), msg, keyvalues) }

// Error logs an error message built from args, in fmt.Sprint style.
func Error(args ...any) { send(log.Error(), fmt.Sprint(args...)) }

// Errorf logs a formatted error message.
func Errorf(template string, args ...any) { sendf(log.Error(), template, args...) }

// Errorw logs an error message with alternating key/value pairs.
func Errorw(msg string, keyvalues ...any) { sendw(log.Error(), msg, keyvalues) }

// Fatal logs a message built from args and exits the process.
func Fatal(args ...any) { send(log.Fatal(), fmt.Sprint(args...)) }

// Fatalf logs a formatted message and exits the process.
func Fatalf(template string, args ...any) { sendf(log.Fatal(), template, args...) }
