// Package debug provides leveled logging for the gorack host.
package debug

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Level represents the severity of a log message.
type Level int

const (
	// LevelDebug is for detailed debugging information.
	LevelDebug Level = iota
	// LevelInfo is for general informational messages.
	LevelInfo
	// LevelWarn is for warning messages.
	LevelWarn
	// LevelError is for error messages.
	LevelError
	// LevelOff disables all logging.
	LevelOff
)

// String returns the string representation of the log level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a level name to a Level. Unknown names map to LevelInfo.
func ParseLevel(name string) Level {
	switch name {
	case "debug":
		return LevelDebug
	case "info", "":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	case "off", "none":
		return LevelOff
	default:
		return LevelInfo
	}
}

// Logger writes timestamped, leveled messages.
//
// It is safe for concurrent use, but it is never called from the audio
// thread's per-buffer path; engine code logs only on control-side
// operations and invariant violations.
type Logger struct {
	mu          sync.Mutex
	output      io.Writer
	level       Level
	prefix      string
	includeTime bool
}

var (
	defaultLogger *Logger
	once          sync.Once
)

// Default returns the process-wide logger, writing to stderr at info level.
func Default() *Logger {
	once.Do(func() {
		defaultLogger = New(os.Stderr, "gorack", LevelInfo)
	})
	return defaultLogger
}

// New creates a new logger instance.
func New(output io.Writer, prefix string, level Level) *Logger {
	return &Logger{
		output:      output,
		prefix:      prefix,
		level:       level,
		includeTime: true,
	}
}

// SetLevel sets the minimum level that will be written.
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	l.level = level
	l.mu.Unlock()
}

// SetIncludeTime toggles the timestamp field, mainly for test output.
func (l *Logger) SetIncludeTime(include bool) {
	l.mu.Lock()
	l.includeTime = include
	l.mu.Unlock()
}

func (l *Logger) log(level Level, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if level < l.level {
		return
	}

	var sb []byte
	if l.includeTime {
		sb = append(sb, time.Now().Format("15:04:05.000")...)
		sb = append(sb, ' ')
	}
	sb = append(sb, '[')
	sb = append(sb, level.String()...)
	sb = append(sb, ']', ' ')
	if l.prefix != "" {
		sb = append(sb, '[')
		sb = append(sb, l.prefix...)
		sb = append(sb, ']', ' ')
	}
	sb = append(sb, fmt.Sprintf(format, args...)...)
	sb = append(sb, '\n')

	l.output.Write(sb)
}

// Debug logs a message at debug level.
func (l *Logger) Debug(format string, args ...interface{}) {
	l.log(LevelDebug, format, args...)
}

// Info logs a message at info level.
func (l *Logger) Info(format string, args ...interface{}) {
	l.log(LevelInfo, format, args...)
}

// Warn logs a message at warn level.
func (l *Logger) Warn(format string, args ...interface{}) {
	l.log(LevelWarn, format, args...)
}

// Error logs a message at error level.
func (l *Logger) Error(format string, args ...interface{}) {
	l.log(LevelError, format, args...)
}

// Assert logs a failed invariant check. The caller is expected to turn the
// violated operation into a no-op; nothing is thrown across the audio
// boundary.
func (l *Logger) Assert(cond bool, what string) bool {
	if !cond {
		l.log(LevelError, "assertion failed: %s", what)
	}
	return cond
}
