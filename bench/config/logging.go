package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ancware/tunelink/pkg/errors"
)

// LogManager handles log file rotation for the bench daemon.
type LogManager struct {
	config  *LogConfig
	current *os.File
}

// NewLogManager creates a log manager for the given settings.
func NewLogManager(cfg *LogConfig) *LogManager {
	return &LogManager{config: cfg}
}

// CleanupLogFile truncates the log file before logging starts.
func CleanupLogFile(filePath string) error {
	if filePath == "" {
		return nil
	}
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return nil
	}

	file, err := os.OpenFile(filePath, os.O_WRONLY|os.O_TRUNC, 0o666)
	if err != nil {
		return errors.New(ErrLogFileOpenFailed, "failed to truncate log file", err).AddContext("path", filePath)
	}
	return file.Close()
}

// Writer opens the log file, rotating first if it grew past the limit.
func (lm *LogManager) Writer() (io.Writer, error) {
	if lm.config.FilePath == "" {
		return nil, errors.New(ErrLogFileOpenFailed, "no log file path configured", nil)
	}

	logDir := filepath.Dir(lm.config.FilePath)
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, errors.New(ErrLogDirCreateFailed, "failed to create log directory", err).AddContext("dir", logDir)
	}

	if err := lm.rotateIfNeeded(); err != nil {
		return nil, err
	}

	file, err := os.OpenFile(lm.config.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
	if err != nil {
		return nil, errors.New(ErrLogFileOpenFailed, "failed to open log file", err).AddContext("path", lm.config.FilePath)
	}

	lm.current = file
	return file, nil
}

// rotateIfNeeded rotates the log file once it exceeds MaxSize megabytes.
func (lm *LogManager) rotateIfNeeded() error {
	if lm.config.MaxSize <= 0 {
		return nil
	}

	info, err := os.Stat(lm.config.FilePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.New(ErrLogFileStatFailed, "failed to stat log file", err).AddContext("path", lm.config.FilePath)
	}

	maxBytes := int64(lm.config.MaxSize) * 1024 * 1024
	if info.Size() < maxBytes {
		return nil
	}
	return lm.rotate()
}

func (lm *LogManager) rotate() error {
	if lm.current != nil {
		lm.current.Close()
		lm.current = nil
	}

	timestamp := time.Now().Format("2006-01-02-15-04-05")
	backupPath := fmt.Sprintf("%s.%s", lm.config.FilePath, timestamp)
	if err := os.Rename(lm.config.FilePath, backupPath); err != nil {
		return errors.New(ErrLogRotateFailed, "failed to rotate log file", err).AddContext("backup", backupPath)
	}

	if err := lm.pruneBackups(); err != nil {
		// Rotation itself succeeded, keep going
		fmt.Fprintf(os.Stderr, "warning: failed to prune log backups: %v\n", err)
	}
	return nil
}

// pruneBackups removes rotated files beyond MaxBackups or older than MaxAge.
func (lm *LogManager) pruneBackups() error {
	if lm.config.MaxBackups <= 0 && lm.config.MaxAge <= 0 {
		return nil
	}

	logDir := filepath.Dir(lm.config.FilePath)
	logBase := filepath.Base(lm.config.FilePath)

	entries, err := os.ReadDir(logDir)
	if err != nil {
		return errors.New(ErrLogBackupScanFailed, "failed to read log directory", err).AddContext("dir", logDir)
	}

	type backup struct {
		path    string
		modTime time.Time
	}
	var backups []backup
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), logBase+".") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		backups = append(backups, backup{
			path:    filepath.Join(logDir, entry.Name()),
			modTime: info.ModTime(),
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].modTime.Before(backups[j].modTime)
	})

	if lm.config.MaxBackups > 0 && len(backups) > lm.config.MaxBackups {
		for _, b := range backups[:len(backups)-lm.config.MaxBackups] {
			if err := os.Remove(b.path); err != nil {
				return errors.New(ErrLogRotateFailed, "failed to remove old backup", err).AddContext("backup", b.path)
			}
		}
	}

	if lm.config.MaxAge > 0 {
		cutoff := time.Now().AddDate(0, 0, -lm.config.MaxAge)
		for _, b := range backups {
			if b.modTime.Before(cutoff) {
				if err := os.Remove(b.path); err != nil {
					return errors.New(ErrLogRotateFailed, "failed to remove old backup", err).AddContext("backup", b.path)
				}
			}
		}
	}
	return nil
}

// Close closes the currently open log file.
func (lm *LogManager) Close() error {
	if lm.current != nil {
		return lm.current.Close()
	}
	return nil
}

// SetupLogger builds the bench daemon logger from the log section.
func SetupLogger(cfg *Config) (zerolog.Logger, error) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var writers []io.Writer
	if cfg.Log.Console {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	}

	if cfg.Log.FilePath != "" {
		if cfg.Log.Cleanup {
			if err := CleanupLogFile(cfg.Log.FilePath); err != nil {
				return zerolog.Logger{}, errors.New(ErrLogCleanupFailed, "failed to cleanup log file", err)
			}
		}

		manager := NewLogManager(&cfg.Log)
		fileWriter, err := manager.Writer()
		if err != nil {
			return zerolog.Logger{}, errors.New(ErrLogSetupFailed, "failed to setup log file writer", err)
		}
		writers = append(writers, fileWriter)
	}

	var out io.Writer
	if len(writers) == 1 {
		out = writers[0]
	} else {
		out = zerolog.MultiLevelWriter(writers...)
	}

	logger := zerolog.New(out).With().
		Timestamp().
		Str("component", "tunelink-bench").
		Logger()
	return logger, nil
}
