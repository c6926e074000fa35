package logging

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap.Logger with automatic sensitive data redaction.
//
// Every job process writes its diagnostics through a Logger. Console output
// always goes to stderr: stdout is reserved for the single result line a job
// prints on success, and any stray log line there would corrupt the contract
// with the calling application.
//
// Example:
//
//	logger, err := NewLogger(Options{Level: InfoLevel})
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//
//	logger.Info("stage acquired", zap.String("stage", "text-to-image"))
type Logger struct {
	zap *zap.Logger
}

// Options configures NewLogger.
type Options struct {
	// Level is the minimum level written to every output.
	Level zapcore.Level

	// Development selects the colored console encoder instead of JSON.
	Development bool

	// FilePath enables an additional rotated JSON log file when non-empty.
	FilePath string

	// File overrides rotation settings for FilePath.
	File FileWriterConfig
}

// NewLogger creates a Logger writing to stderr and, when opts.FilePath is
// set, to a rotated JSON file.
//
// Returns an error if the log file directory cannot be prepared.
func NewLogger(opts Options) (*Logger, error) {
	var fileWriter zapcore.WriteSyncer
	if opts.FilePath != "" {
		if err := ensureLogDir(opts.FilePath); err != nil {
			return nil, fmt.Errorf("failed to create log core: %w", err)
		}
		fileConfig := opts.File
		if fileConfig == (FileWriterConfig{}) {
			fileConfig = DefaultFileWriterConfig()
		}
		fileWriter = NewFileWriterWithConfig(opts.FilePath, fileConfig)
	}

	core := NewMultiCoreWithWriters(opts.Level, zapcore.Lock(zapcore.AddSync(os.Stderr)), fileWriter, opts.Development)
	return newLogger(core), nil
}

// NewLoggerWithWriter creates a console-only Logger writing to w.
// Tests use it to capture diagnostics.
func NewLoggerWithWriter(w io.Writer, level zapcore.Level) *Logger {
	core := NewMultiCoreWithWriters(level, zapcore.AddSync(w), nil, false)
	return newLogger(core)
}

// NewNop returns a Logger that discards everything.
func NewNop() *Logger {
	return newLogger(zapcore.NewNopCore())
}

func newLogger(core zapcore.Core) *Logger {
	return &Logger{zap: zap.New(core,
		zap.AddCaller(),
		zap.AddCallerSkip(1), // Skip this wrapper layer
	)}
}

// Sync flushes any buffered log entries.
// Job drivers call Sync before the process exits.
func (l *Logger) Sync() error {
	if l == nil || l.zap == nil {
		return nil
	}
	return l.zap.Sync()
}

// Debug logs a message at DebugLevel with optional structured fields.
func (l *Logger) Debug(msg string, fields ...zap.Field) {
	l.zap.Debug(msg, l.redactFields(fields)...)
}

// Info logs a message at InfoLevel with optional structured fields.
//
// Example:
//
//	logger.Info("device selected",
//	    zap.String("device", "cuda"),
//	    zap.String("hint", "fast path"))
func (l *Logger) Info(msg string, fields ...zap.Field) {
	l.zap.Info(msg, l.redactFields(fields)...)
}

// Warn logs a message at WarnLevel with optional structured fields.
func (l *Logger) Warn(msg string, fields ...zap.Field) {
	l.zap.Warn(msg, l.redactFields(fields)...)
}

// Error logs a message at ErrorLevel with optional structured fields.
func (l *Logger) Error(msg string, fields ...zap.Field) {
	l.zap.Error(msg, l.redactFields(fields)...)
}

// With creates a child logger with additional fields that will be included
// in all log entries from the child.
//
// Example:
//
//	runLogger := logger.With(
//	    zap.String("job", "image"),
//	    zap.String("run_id", runID))
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{zap: l.zap.With(l.redactFields(fields)...)}
}

// Named adds a sub-logger name, e.g. "ffmpeg" or "device".
func (l *Logger) Named(name string) *Logger {
	return &Logger{zap: l.zap.Named(name)}
}

// redactFields filters sensitive data from zap.Field values.
func (l *Logger) redactFields(fields []zap.Field) []zap.Field {
	if len(fields) == 0 {
		return fields
	}

	result := make([]zap.Field, len(fields))
	for i, field := range fields {
		result[i] = l.redactField(field)
	}
	return result
}

func (l *Logger) redactField(field zap.Field) zap.Field {
	if field.Type == zapcore.StringType {
		if redacted := RedactField(field.Key, field.String); redacted != field.String {
			return zap.String(field.Key, redacted)
		}
		return field
	}
	if IsSensitiveField(field.Key) {
		return zap.String(field.Key, RedactedPlaceholder)
	}
	return field
}
