// Package logging provides the structured logging abstraction the FSM
// core logs through. Trimmed from pkg/core/logger.go: this package drops
// WithContext (the core has no request-scoped context to pull a request
// ID out of) but keeps the leveled methods and WithFields.
package logging

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"
)

// Logger is the structured logging interface the FSM core calls through.
type Logger interface {
	Error(args ...interface{})
	Errorf(format string, args ...interface{})
	Warn(args ...interface{})
	Warnf(format string, args ...interface{})
	Info(args ...interface{})
	Infof(format string, args ...interface{})
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})

	// WithFields returns a new Logger with structured fields merged into
	// every subsequent entry.
	WithFields(fields map[string]interface{}) Logger
}

// Config controls the default Logger's behavior.
type Config struct {
	// JSONOutput emits one JSON object per line instead of plain text.
	JSONOutput bool
}

type defaultLogger struct {
	errorLogger *log.Logger
	warnLogger  *log.Logger
	infoLogger  *log.Logger
	debugLogger *log.Logger
	config      Config
	fields      map[string]interface{}
}

// New creates a Logger writing to stderr/stdout with the standard log
// package, matching pkg/core/logger.go's NewLogger.
func New(cfg Config) Logger {
	return &defaultLogger{
		errorLogger: log.New(os.Stderr, "[ERROR] ", log.LstdFlags),
		warnLogger:  log.New(os.Stderr, "[WARN] ", log.LstdFlags),
		infoLogger:  log.New(os.Stdout, "[INFO] ", log.LstdFlags),
		debugLogger: log.New(os.Stdout, "[DEBUG] ", log.LstdFlags),
		config:      cfg,
		fields:      make(map[string]interface{}),
	}
}

// NewDefault returns New(Config{}) — plain text output.
func NewDefault() Logger { return New(Config{}) }

type logEntry struct {
	Timestamp string                 `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

func (l *defaultLogger) log(level string, logger *log.Logger, message string) {
	if l.config.JSONOutput {
		entry := logEntry{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Level:     level,
			Message:   message,
			Fields:    l.fields,
		}
		if data, err := json.Marshal(entry); err == nil {
			logger.Output(3, string(data))
			return
		}
	}
	if len(l.fields) > 0 {
		logger.Output(3, fmt.Sprintf("%s %v", message, l.fields))
		return
	}
	logger.Output(3, message)
}

func (l *defaultLogger) Error(args ...interface{}) { l.log("ERROR", l.errorLogger, fmt.Sprint(args...)) }
func (l *defaultLogger) Errorf(format string, args ...interface{}) {
	l.log("ERROR", l.errorLogger, fmt.Sprintf(format, args...))
}
func (l *defaultLogger) Warn(args ...interface{}) { l.log("WARN", l.warnLogger, fmt.Sprint(args...)) }
func (l *defaultLogger) Warnf(format string, args ...interface{}) {
	l.log("WARN", l.warnLogger, fmt.Sprintf(format, args...))
}
func (l *defaultLogger) Info(args ...interface{}) { l.log("INFO", l.infoLogger, fmt.Sprint(args...)) }
func (l *defaultLogger) Infof(format string, args ...interface{}) {
	l.log("INFO", l.infoLogger, fmt.Sprintf(format, args...))
}
func (l *defaultLogger) Debug(args ...interface{}) {
	l.log("DEBUG", l.debugLogger, fmt.Sprint(args...))
}
func (l *defaultLogger) Debugf(format string, args ...interface{}) {
	l.log("DEBUG", l.debugLogger, fmt.Sprintf(format, args...))
}

func (l *defaultLogger) WithFields(fields map[string]interface{}) Logger {
	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	cp := *l
	cp.fields = merged
	return &cp
}

type nopLogger struct{}

// NewNopLogger returns a Logger that discards everything. This is the
// Machine default so the library is silent unless a caller opts in via
// fsm.WithLogger, mirroring how core.NewDefaultLogger() in the teacher is
// itself just a default a caller can override.
func NewNopLogger() Logger { return nopLogger{} }

func (nopLogger) Error(args ...interface{})                 {}
func (nopLogger) Errorf(format string, args ...interface{})  {}
func (nopLogger) Warn(args ...interface{})                   {}
func (nopLogger) Warnf(format string, args ...interface{})   {}
func (nopLogger) Info(args ...interface{})                   {}
func (nopLogger) Infof(format string, args ...interface{})   {}
func (nopLogger) Debug(args ...interface{})                  {}
func (nopLogger) Debugf(format string, args ...interface{})  {}
func (nopLogger) WithFields(map[string]interface{}) Logger   { return nopLogger{} }
