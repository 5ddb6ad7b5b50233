// Package logger provides leveled, module-tagged logging for the frame hub
// daemons. One global logger, initialized once at startup.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"sync/atomic"
)

// LogLevel is the severity of a log message.
type LogLevel int32

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	SILENT
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR", "SILENT"}

var levelColors = [...]string{
	"\033[36m", // cyan
	"\033[32m", // green
	"\033[33m", // yellow
	"\033[31m", // red
	"",
}

const resetColor = "\033[0m"

// String returns the level name.
func (l LogLevel) String() string {
	if l < DEBUG || l > SILENT {
		return "UNKNOWN"
	}
	return levelNames[l]
}

// ParseLevel parses a log level string.
func ParseLevel(s string) (LogLevel, error) {
	switch s {
	case "debug", "DEBUG":
		return DEBUG, nil
	case "info", "INFO":
		return INFO, nil
	case "warn", "WARN", "warning", "WARNING":
		return WARN, nil
	case "error", "ERROR":
		return ERROR, nil
	case "silent", "SILENT", "none", "NONE":
		return SILENT, nil
	default:
		return INFO, fmt.Errorf("invalid log level: %s", s)
	}
}

// Logger writes leveled messages with a per-call module tag.
type Logger struct {
	level    atomic.Int32
	useColor bool
	out      *log.Logger
}

var (
	defaultLogger *Logger
	once          sync.Once
)

// New creates a Logger writing to output (stderr when nil).
func New(level LogLevel, output io.Writer, useColor bool) *Logger {
	if output == nil {
		output = os.Stderr
	}
	l := &Logger{
		useColor: useColor,
		out:      log.New(output, "", log.Ldate|log.Ltime|log.Lmicroseconds),
	}
	l.level.Store(int32(level))
	return l
}

// Init initializes the global logger. Safe to call once at startup.
func Init(level LogLevel, output io.Writer, useColor bool) {
	once.Do(func() {
		defaultLogger = New(level, output, useColor)
	})
}

// SetLevel changes the logger's level.
func (l *Logger) SetLevel(level LogLevel) { l.level.Store(int32(level)) }

// Level returns the logger's current level.
func (l *Logger) Level() LogLevel { return LogLevel(l.level.Load()) }

func (l *Logger) log(level LogLevel, module, format string, args ...any) {
	if level < LogLevel(l.level.Load()) || level >= SILENT {
		return
	}
	prefix := "[" + levelNames[level] + "]"
	if l.useColor {
		prefix = levelColors[level] + prefix + resetColor
	}
	if module != "" {
		prefix += " [" + module + "]"
	}
	l.out.Printf("%s %s", prefix, fmt.Sprintf(format, args...))
}

// Debug logs at DEBUG level.
func (l *Logger) Debug(module, format string, args ...any) { l.log(DEBUG, module, format, args...) }

// Info logs at INFO level.
func (l *Logger) Info(module, format string, args ...any) { l.log(INFO, module, format, args...) }

// Warn logs at WARN level.
func (l *Logger) Warn(module, format string, args ...any) { l.log(WARN, module, format, args...) }

// Error logs at ERROR level.
func (l *Logger) Error(module, format string, args ...any) { l.log(ERROR, module, format, args...) }

// Global helpers using the default logger. No-ops before Init.

func Debug(module, format string, args ...any) {
	if defaultLogger != nil {
		defaultLogger.Debug(module, format, args...)
	}
}

func Info(module, format string, args ...any) {
	if defaultLogger != nil {
		defaultLogger.Info(module, format, args...)
	}
}

func Warn(module, format string, args ...any) {
	if defaultLogger != nil {
		defaultLogger.Warn(module, format, args...)
	}
}

func Error(module, format string, args ...any) {
	if defaultLogger != nil {
		defaultLogger.Error(module, format, args...)
	}
}
