/**
 * @description
 * Structured logger for the RHINO signal backend.
 * Info/Warn go to stdout, errors go to stderr so the platform labels them correctly.
 * Keeps a printf-style API for call sites and zerolog underneath for structured output.
 *
 * @dependencies
 * - github.com/rs/zerolog
 */

package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config controls the output of the package-level loggers.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // json or console
}

var (
	mu sync.RWMutex
	// InfoLogger writes to stdout
	InfoLogger zerolog.Logger
	// ErrorLogger writes to stderr
	ErrorLogger zerolog.Logger
)

func init() {
	InfoLogger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	ErrorLogger = zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// Setup reconfigures level and format. Unknown levels fall back to info.
func Setup(cfg Config) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var out, errOut io.Writer = os.Stdout, os.Stderr
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		errOut = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}

	mu.Lock()
	InfoLogger = zerolog.New(out).Level(level).With().Timestamp().Logger()
	ErrorLogger = zerolog.New(errOut).Level(level).With().Timestamp().Logger()
	mu.Unlock()
}

// SetOutput redirects both loggers to w. Used by tests.
func SetOutput(w io.Writer) {
	mu.Lock()
	InfoLogger = InfoLogger.Output(w)
	ErrorLogger = ErrorLogger.Output(w)
	mu.Unlock()
}

// Debug logs a debug message to stdout
func Debug(format string, v ...interface{}) {
	mu.RLock()
	l := InfoLogger
	mu.RUnlock()
	l.Debug().Msg(fmt.Sprintf(format, v...))
}

// Info logs an info message to stdout
func Info(format string, v ...interface{}) {
	mu.RLock()
	l := InfoLogger
	mu.RUnlock()
	l.Info().Msg(fmt.Sprintf(format, v...))
}

// Warn logs a warning to stdout
func Warn(format string, v ...interface{}) {
	mu.RLock()
	l := InfoLogger
	mu.RUnlock()
	l.Warn().Msg(fmt.Sprintf(format, v...))
}

// Error logs an error message to stderr
func Error(format string, v ...interface{}) {
	mu.RLock()
	l := ErrorLogger
	mu.RUnlock()
	l.Error().Msg(fmt.Sprintf(format, v...))
}

// Fatal logs an error and exits
func Fatal(format string, v ...interface{}) {
	mu.RLock()
	l := ErrorLogger
	mu.RUnlock()
	l.Fatal().Msg(fmt.Sprintf(format, v...))
}

// With returns a child logger carrying the given fields, for call sites that
// want structured key/values instead of a formatted message.
func With(fields map[string]interface{}) zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return InfoLogger.With().Fields(fields).Logger()
}
