package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"time"
)

// LogLevel represents the logging level
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

// Logger provides leveled logging with ISO 8601 timestamps. Components obtain
// a named child via Named so log lines carry their origin.
type Logger struct {
	out   *log.Logger
	level LogLevel
	name  string
}

// New creates a new logger writing to output at the given level
func New(level LogLevel, output io.Writer) *Logger {
	if output == nil {
		output = os.Stdout
	}

	return &Logger{
		out:   log.New(output, "", 0), // timestamps are formatted here, not by log
		level: level,
	}
}

// NewFromConfig creates a logger from a level string and output path.
// "stdout", "stderr" and file paths are accepted.
func NewFromConfig(levelStr string, outputPath string) (*Logger, error) {
	level := parseLevel(levelStr)

	var output io.Writer
	switch outputPath {
	case "stdout", "":
		output = os.Stdout
	case "stderr":
		output = os.Stderr
	default:
		file, err := os.OpenFile(outputPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, err
		}
		output = file
	}

	return New(level, output), nil
}

// Named returns a child logger whose lines are prefixed with name
func (l *Logger) Named(name string) *Logger {
	child := *l
	if l.name != "" {
		child.name = l.name + "." + name
	} else {
		child.name = name
	}
	return &child
}

func (l *Logger) emit(level string, msg string) {
	timestamp := time.Now().UTC().Format(time.RFC3339)
	if l.name != "" {
		l.out.Println(timestamp + " [" + level + "] " + l.name + ": " + msg)
		return
	}
	l.out.Println(timestamp + " [" + level + "] " + msg)
}

// Debug logs a debug message
func (l *Logger) Debug(msg string) {
	if l.level <= DebugLevel {
		l.emit("DEBUG", msg)
	}
}

// Debugf logs a formatted debug message
func (l *Logger) Debugf(format string, args ...interface{}) {
	if l.level <= DebugLevel {
		l.emit("DEBUG", fmt.Sprintf(format, args...))
	}
}

// Info logs an info message
func (l *Logger) Info(msg string) {
	if l.level <= InfoLevel {
		l.emit("INFO", msg)
	}
}

// Infof logs a formatted info message
func (l *Logger) Infof(format string, args ...interface{}) {
	if l.level <= InfoLevel {
		l.emit("INFO", fmt.Sprintf(format, args...))
	}
}

// Warn logs a warning message
func (l *Logger) Warn(msg string) {
	if l.level <= WarnLevel {
		l.emit("WARN", msg)
	}
}

// Warnf logs a formatted warning message
func (l *Logger) Warnf(format string, args ...interface{}) {
	if l.level <= WarnLevel {
		l.emit("WARN", fmt.Sprintf(format, args...))
	}
}

// Error logs an error message
func (l *Logger) Error(msg string) {
	if l.level <= ErrorLevel {
		l.emit("ERROR", msg)
	}
}

// Errorf logs a formatted error message
func (l *Logger) Errorf(format string, args ...interface{}) {
	if l.level <= ErrorLevel {
		l.emit("ERROR", fmt.Sprintf(format, args...))
	}
}

// Fatalf logs a fatal message and exits
func (l *Logger) Fatalf(format string, args ...interface{}) {
	l.emit("FATAL", fmt.Sprintf(format, args...))
	os.Exit(1)
}

// Discard returns a logger that drops everything; useful in tests
func Discard() *Logger {
	return New(ErrorLevel+1, io.Discard)
}

// parseLevel parses a log level string
func parseLevel(levelStr string) LogLevel {
	switch levelStr {
	case "debug":
		return DebugLevel
	case "info":
		return InfoLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}
