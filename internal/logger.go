package internal

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// LogLevel represents different logging levels
type LogLevel int

const (
	// LevelDebug for detailed debug information
	LevelDebug LogLevel = iota
	// LevelInfo for general operational information
	LevelInfo
	// LevelWarning for potentially problematic situations
	LevelWarning
	// LevelError for error conditions
	LevelError
	// LevelNone disables all logging
	LevelNone
)

var (
	// logger is the process-wide zerolog instance behind the printf helpers
	logger = zerolog.New(os.Stderr).With().Timestamp().Logger().Level(zerolog.ErrorLevel)

	// exitFunc is swapped out by tests that exercise Fatal
	exitFunc = os.Exit
)

// ParseLogLevel converts a level name from the config or command line
func ParseLogLevel(name string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarning
	case "none", "off":
		return LevelNone
	default:
		return LevelError
	}
}

// InitLogger initializes the logger with specified options
func InitLogger(level LogLevel, debugEnabled bool) {
	var out io.Writer = os.Stderr
	if debugEnabled {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}
	setLogOutput(out, level, debugEnabled)
}

func setLogOutput(out io.Writer, level LogLevel, withCaller bool) {
	ctx := zerolog.New(out).With().Timestamp()
	if withCaller {
		// Skip the printf wrapper so the reported caller is the real one
		ctx = ctx.CallerWithSkipFrameCount(zerolog.CallerSkipFrameCount + 2)
	}
	logger = ctx.Logger().Level(toZerolog(level))
}

func toZerolog(level LogLevel) zerolog.Level {
	switch level {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelInfo:
		return zerolog.InfoLevel
	case LevelWarning:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.Disabled
	}
}

func logf(ev *zerolog.Event, format string, args ...interface{}) {
	if ev == nil {
		return
	}
	if len(args) > 0 {
		ev.Msg(strings.TrimRight(fmt.Sprintf(format, args...), "\n"))
		return
	}
	ev.Msg(strings.TrimRight(format, "\n"))
}

// Debug logs debug level messages
func Debug(format string, args ...interface{}) {
	logf(logger.Debug(), format, args...)
}

// Info logs info level messages
func Info(format string, args ...interface{}) {
	logf(logger.Info(), format, args...)
}

// Warn logs warning level messages
func Warn(format string, args ...interface{}) {
	logf(logger.Warn(), format, args...)
}

// Error logs error level messages
func Error(format string, args ...interface{}) {
	logf(logger.Error(), format, args...)
}

// Fatal logs a fatal error message and exits the program
func Fatal(format string, args ...interface{}) {
	logf(logger.WithLevel(zerolog.FatalLevel), format, args...)
	exitFunc(1)
}
