// Package logging configures the process-wide logrus logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls level, format and the optional rotating log file.
type Config struct {
	Level      string `mapstructure:"level" yaml:"level"`
	Format     string `mapstructure:"format" yaml:"format"` // text | json
	File       string `mapstructure:"file" yaml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

var (
	mu     sync.Mutex
	logger = logrus.New()
	file   io.Closer
)

// Logger returns the shared logger.
func Logger() *logrus.Logger {
	return logger
}

// WithComponent returns an entry tagged with the component name.
func WithComponent(name string) *logrus.Entry {
	return logger.WithField("component", name)
}

// Init applies cfg to the shared logger. It may be called again to
// reconfigure; a previously opened log file is closed.
func Init(cfg Config) error {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return err
	}

	var formatter logrus.Formatter
	switch strings.ToLower(cfg.Format) {
	case "", "text":
		formatter = &logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "2006-01-02 15:04:05.000"}
	case "json":
		formatter = &logrus.JSONFormatter{}
	default:
		return fmt.Errorf("unsupported log format %q (must be text or json)", cfg.Format)
	}

	mu.Lock()
	defer mu.Unlock()

	if file != nil {
		file.Close()
		file = nil
	}

	var out io.Writer = os.Stderr
	if cfg.File != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		file = lj
		out = io.MultiWriter(os.Stderr, lj)
	}

	logger.SetLevel(level)
	logger.SetFormatter(formatter)
	logger.SetOutput(out)
	return nil
}

// SetOutput redirects log output, e.g. into the TUI log pane. The returned
// func restores the previous output.
func SetOutput(w io.Writer) (restore func()) {
	mu.Lock()
	defer mu.Unlock()
	prev := logger.Out
	logger.SetOutput(w)
	return func() {
		mu.Lock()
		defer mu.Unlock()
		logger.SetOutput(prev)
	}
}

// ParseLevel accepts logrus level names; empty means info.
func ParseLevel(s string) (logrus.Level, error) {
	if s == "" {
		return logrus.InfoLevel, nil
	}
	level, err := logrus.ParseLevel(s)
	if err != nil {
		return logrus.InfoLevel, fmt.Errorf("invalid log level: %w", err)
	}
	return level, nil
}
