package telemetry

import (
	"context"
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"
)

// timestampFormat is used for the "@timestamp" field of every entry.
const timestampFormat = "2006-01-02T15:04:05.000Z07:00"

var (
	logger     *logrus.Logger
	loggerOnce sync.Once
	fileLogger *FileLogger
)

// FileLogger is a logrus hook that appends every entry to a JSON-lines
// file, in the same format as the console output.
type FileLogger struct {
	out       *appendFile
	formatter logrus.Formatter
}

// InitLogger initializes the global logger with the given configuration.
// Only the first call has an effect.
func InitLogger(cfg *Config) error {
	var err error
	loggerOnce.Do(func() {
		logger = NewLogger(cfg, os.Stderr)

		if cfg.ExportsToFiles() {
			fileLogger, err = NewFileLogger(cfg.LogsPath())
			if err != nil {
				logger.WithError(err).Error("Failed to create file logger")
			} else {
				logger.AddHook(fileLogger)
			}
		}
	})
	return err
}

// NewLogger builds a JSON logger writing to out. Every entry carries the
// service name, version and environment.
func NewLogger(cfg *Config, out io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	l.SetFormatter(jsonFormatter())

	l.AddHook(&serviceFieldsHook{fields: logrus.Fields{
		"service.name":    cfg.ServiceName,
		"service.version": cfg.ServiceVersion,
		"environment":     cfg.Environment,
	}})
	return l
}

func jsonFormatter() *logrus.JSONFormatter {
	return &logrus.JSONFormatter{
		TimestampFormat: timestampFormat,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "@timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	}
}

// serviceFieldsHook adds the standard service fields to every entry.
type serviceFieldsHook struct {
	fields logrus.Fields
}

func (h *serviceFieldsHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *serviceFieldsHook) Fire(entry *logrus.Entry) error {
	for k, v := range h.fields {
		if _, ok := entry.Data[k]; !ok {
			entry.Data[k] = v
		}
	}
	return nil
}

// NewFileLogger opens filePath for appending, creating its directory if
// needed.
func NewFileLogger(filePath string) (*FileLogger, error) {
	out, err := openAppendFile(filePath)
	if err != nil {
		return nil, err
	}
	return &FileLogger{out: out, formatter: jsonFormatter()}, nil
}

// Levels implements logrus.Hook
func (f *FileLogger) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire implements logrus.Hook
func (f *FileLogger) Fire(entry *logrus.Entry) error {
	line, err := f.formatter.Format(entry)
	if err != nil {
		return err
	}
	return f.out.writeLines(line)
}

// Close closes the log file
func (f *FileLogger) Close() error {
	return f.out.close()
}

// L returns the global logger instance
func L() *logrus.Logger {
	if logger == nil {
		return logrus.StandardLogger()
	}
	return logger
}

// SDKLogger returns the logger handed to the Flox SDK. Its entries are
// tagged with the component so they can be told apart from the host's.
// A nil base means the global logger.
func SDKLogger(base *logrus.Logger) logrus.FieldLogger {
	if base == nil {
		base = L()
	}
	return base.WithField("component", "flox-sdk")
}

// WithContext adds trace information to the logger
func WithContext(ctx context.Context) *logrus.Entry {
	entry := L().WithContext(ctx)

	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		entry = entry.WithFields(logrus.Fields{
			"trace.id": span.SpanContext().TraceID().String(),
			"span.id":  span.SpanContext().SpanID().String(),
		})
	}

	return entry
}

// CloseLogger closes any open resources
func CloseLogger() error {
	if fileLogger != nil {
		return fileLogger.Close()
	}
	return nil
}
