package consensus

import (
	"fmt"
	"log"
	"os"
	"time"
)

// LogLevel represents logging levels
type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

// String returns string representation of log level
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Logger provides structured logging for consensus components
type Logger struct {
	component string
	level     LogLevel
	logger    *log.Logger
}

// NewLogger creates a new logger for a component
func NewLogger(component string, level LogLevel) *Logger {
	return &Logger{
		component: component,
		level:     level,
		logger:    log.New(os.Stdout, "", 0),
	}
}

func (l *Logger) shouldLog(level LogLevel) bool {
	return level >= l.level
}

func (l *Logger) formatMessage(level LogLevel, msg string, fields map[string]interface{}) string {
	timestamp := time.Now().Format(time.RFC3339)
	formatted := fmt.Sprintf("[%s] %s %s: %s",
		timestamp, level.String(), l.component, msg)

	if len(fields) > 0 {
		formatted += " |"
		for key, value := range fields {
			formatted += fmt.Sprintf(" %s=%v", key, value)
		}
	}

	return formatted
}

func (l *Logger) logAt(level LogLevel, msg string, fields ...map[string]interface{}) {
	if !l.shouldLog(level) {
		return
	}

	var fieldMap map[string]interface{}
	if len(fields) > 0 {
		fieldMap = fields[0]
	}

	l.logger.Println(l.formatMessage(level, msg, fieldMap))
}

// Debug logs a debug message with optional fields
func (l *Logger) Debug(msg string, fields ...map[string]interface{}) {
	l.logAt(LogLevelDebug, msg, fields...)
}

// Info logs an info message with optional fields
func (l *Logger) Info(msg string, fields ...map[string]interface{}) {
	l.logAt(LogLevelInfo, msg, fields...)
}

// Warn logs a warning message with optional fields
func (l *Logger) Warn(msg string, fields ...map[string]interface{}) {
	l.logAt(LogLevelWarn, msg, fields...)
}

// Error logs an error message with optional fields
func (l *Logger) Error(msg string, fields ...map[string]interface{}) {
	l.logAt(LogLevelError, msg, fields...)
}
