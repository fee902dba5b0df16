package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

const logFileName = "emergency-service.log"

// Logger writes structured logs to stdout and a rotated file.
type Logger struct {
	entry *logrus.Entry
	file  io.Closer
}

// New creates a Logger writing to stdout and <dir>/emergency-service.log.
func New(dir, level string) (*Logger, error) {
	if dir == "" {
		dir = "logs"
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create logs folder failed: %w", err)
	}
	rotator := &lumberjack.Logger{
		Filename:   filepath.Join(dir, logFileName),
		MaxSize:    50,
		MaxBackups: 7,
		MaxAge:     30,
		Compress:   true,
	}

	base := logrus.New()
	base.SetOutput(io.MultiWriter(os.Stdout, rotator))
	base.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
		DisableColors:   true,
	})
	base.SetLevel(parseLevel(level))

	return &Logger{entry: logrus.NewEntry(base), file: rotator}, nil
}

// NewWithWriter creates a Logger writing only to w.
func NewWithWriter(w io.Writer, level string) *Logger {
	base := logrus.New()
	base.SetOutput(w)
	base.SetLevel(parseLevel(level))
	return &Logger{entry: logrus.NewEntry(base)}
}

// FromLogrus wraps an existing logrus logger, e.g. one built by hooks/test.
func FromLogrus(l *logrus.Logger) *Logger {
	return &Logger{entry: logrus.NewEntry(l)}
}

// Discard returns a Logger that drops everything.
func Discard() *Logger {
	return NewWithWriter(io.Discard, "panic")
}

func parseLevel(level string) logrus.Level {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{entry: l.entry.WithField(key, value), file: l.file}
}

func (l *Logger) WithFields(fields logrus.Fields) *Logger {
	return &Logger{entry: l.entry.WithFields(fields), file: l.file}
}

func (l *Logger) Debugf(format string, args ...interface{}) {
	l.entry.Debugf(format, args...)
}

func (l *Logger) Infof(format string, args ...interface{}) {
	l.entry.Infof(format, args...)
}

func (l *Logger) Warnf(format string, args ...interface{}) {
	l.entry.Warnf(format, args...)
}

func (l *Logger) Errorf(format string, args ...interface{}) {
	l.entry.Errorf(format, args...)
}

// Writer exposes the logger as an io.Writer at info level.
func (l *Logger) Writer() *io.PipeWriter {
	return l.entry.Writer()
}

func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}
