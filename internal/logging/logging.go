package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/labforge/lims-admin/internal/config"
	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	defaultLogFile    = "logs/lims.log"
	defaultMaxSizeMB  = 50
	defaultMaxBackups = 5
	defaultMaxAgeDays = 30
)

// Configure applies level, formatter and output to the standard logrus logger.
// The returned closer flushes the rotating file, if one was opened.
func Configure(cfg config.LoggingConfig) io.Closer {
	return configureLogger(log.StandardLogger(), cfg, os.Stdout)
}

func configureLogger(logger *log.Logger, cfg config.LoggingConfig, stdout io.Writer) io.Closer {
	logger.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	if cfg.Debug {
		logger.SetLevel(log.DebugLevel)
	} else {
		logger.SetLevel(log.InfoLevel)
	}

	if !cfg.ToFile {
		logger.SetOutput(stdout)
		return nopCloser{}
	}

	rotator := newRotator(cfg)
	logger.SetOutput(io.MultiWriter(stdout, rotator))
	return rotator
}

func newRotator(cfg config.LoggingConfig) *lumberjack.Logger {
	file := strings.TrimSpace(cfg.File)
	if file == "" {
		file = defaultLogFile
	}
	maxSize := cfg.MaxSizeMB
	if maxSize <= 0 {
		maxSize = defaultMaxSizeMB
	}
	maxBackups := cfg.MaxBackups
	if maxBackups <= 0 {
		maxBackups = defaultMaxBackups
	}
	maxAge := cfg.MaxAgeDays
	if maxAge <= 0 {
		maxAge = defaultMaxAgeDays
	}
	return &lumberjack.Logger{
		Filename:   filepath.Clean(file),
		MaxSize:    maxSize,
		MaxBackups: maxBackups,
		MaxAge:     maxAge,
		Compress:   true,
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
