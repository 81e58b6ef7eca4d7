// Package logger provides structured logging with module-aware fields
package logger

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
)

// Logger interface for abstracted logging
type Logger interface {
	Info(message string, fields ...Field)
	Error(message string, fields ...Field)
	Warn(message string, fields ...Field)
	Debug(message string, fields ...Field)
	Success(message string, fields ...Field)
	WithModule(module string) Logger
}

// Field represents a structured logging field
type Field struct {
	Key   string
	Value interface{}
}

// WithField creates a new field
func WithField(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

// ModuleLogger implements Logger on top of logrus, tagging entries with
// the module they concern
type ModuleLogger struct {
	logger     *logrus.Logger
	moduleName string
}

// CustomFormatter formats entries as "[time] LEVEL: [module] message {fields}"
type CustomFormatter struct {
	TimestampFormat string
	DisableColors   bool
}

// Format implements logrus.Formatter
func (f *CustomFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	timestamp := entry.Time.Format(f.TimestampFormat)

	var levelColor *color.Color
	var levelText string

	switch entry.Level {
	case logrus.ErrorLevel, logrus.FatalLevel, logrus.PanicLevel:
		levelColor = color.New(color.FgRed, color.Bold)
		levelText = "ERROR"
	case logrus.WarnLevel:
		levelColor = color.New(color.FgYellow, color.Bold)
		levelText = "WARN"
	case logrus.InfoLevel:
		levelColor = color.New(color.FgCyan)
		levelText = "INFO"
	default:
		levelColor = color.New(color.FgWhite, color.Faint)
		levelText = "DEBUG"
	}
	if _, ok := entry.Data[successKey]; ok {
		levelColor = color.New(color.FgGreen)
		levelText = "OK"
	}

	modulePrefix := ""
	if module, ok := entry.Data[moduleKey]; ok {
		if f.DisableColors {
			modulePrefix = fmt.Sprintf("[%v] ", module)
		} else {
			modulePrefix = fmt.Sprintf("[%s] ", color.New(color.FgBlue).Sprint(module))
		}
	}

	level := levelText
	if !f.DisableColors {
		level = levelColor.Sprint(levelText)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s: %s%s", timestamp, level, modulePrefix, entry.Message)

	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		if k == moduleKey || k == successKey {
			continue
		}
		keys = append(keys, k)
	}
	if len(keys) > 0 {
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%v", k, entry.Data[k]))
		}
		fields := " {" + strings.Join(parts, ", ") + "}"
		if f.DisableColors {
			b.WriteString(fields)
		} else {
			b.WriteString(color.New(color.FgWhite, color.Faint).Sprint(fields))
		}
	}

	b.WriteString("\n")
	return []byte(b.String()), nil
}

const (
	moduleKey  = "module"
	successKey = "success"
)

// CreateLogger creates a logger writing to stderr and, if logFile is set,
// appending to that file as well
func CreateLogger(logFile string, logLevel string) Logger {
	var out io.Writer = os.Stderr
	if logFile != "" {
		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err == nil {
			out = io.MultiWriter(os.Stderr, file)
		}
	}
	return newModuleLogger(logLevel, out, color.NoColor)
}

// CreateLoggerWithOutput creates a logger with custom output and no colors
func CreateLoggerWithOutput(logLevel string, output io.Writer) Logger {
	return newModuleLogger(logLevel, output, true)
}

// NewNopLogger returns a logger that discards everything
func NewNopLogger() Logger {
	return newModuleLogger("panic", io.Discard, true)
}

func newModuleLogger(logLevel string, output io.Writer, disableColors bool) *ModuleLogger {
	log := logrus.New()

	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	log.SetFormatter(&CustomFormatter{
		TimestampFormat: "15:04:05",
		DisableColors:   disableColors,
	})
	log.SetOutput(output)

	return &ModuleLogger{logger: log}
}

// WithModule creates a new logger with module context
func (l *ModuleLogger) WithModule(module string) Logger {
	return &ModuleLogger{
		logger:     l.logger,
		moduleName: module,
	}
}

func (l *ModuleLogger) entry(fields []Field) *logrus.Entry {
	data := make(logrus.Fields, len(fields)+1)
	if l.moduleName != "" {
		data[moduleKey] = l.moduleName
	}
	for _, f := range fields {
		data[f.Key] = f.Value
	}
	return l.logger.WithFields(data)
}

// Info logs an info message
func (l *ModuleLogger) Info(message string, fields ...Field) {
	l.entry(fields).Info(message)
}

// Error logs an error message
func (l *ModuleLogger) Error(message string, fields ...Field) {
	l.entry(fields).Error(message)
}

// Warn logs a warning message
func (l *ModuleLogger) Warn(message string, fields ...Field) {
	l.entry(fields).Warn(message)
}

// Debug logs a debug message
func (l *ModuleLogger) Debug(message string, fields ...Field) {
	l.entry(fields).Debug(message)
}

// Success logs at info level with success formatting
func (l *ModuleLogger) Success(message string, fields ...Field) {
	l.entry(append(fields, WithField(successKey, true))).Info(message)
}
