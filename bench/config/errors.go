package config

import "github.com/ancware/tunelink/pkg/errors"

// Package-specific error codes for config
var (
	ErrConfigFileNotFound  = errors.MustNewCode("config.file_not_found")
	ErrConfigReadFailed    = errors.MustNewCode("config.read_failed")
	ErrConfigParseFailed   = errors.MustNewCode("config.parse_failed")
	ErrConfigWriteFailed   = errors.MustNewCode("config.write_failed")
	ErrConfigEncodeFailed  = errors.MustNewCode("config.encode_failed")
	ErrInvalidLinkKind     = errors.MustNewCode("config.invalid_link_kind")
	ErrInvalidPort         = errors.MustNewCode("config.invalid_port")
	ErrInvalidAddress      = errors.MustNewCode("config.invalid_address")
	ErrInvalidLogLevel     = errors.MustNewCode("config.invalid_log_level")
	ErrInvalidLogOutput    = errors.MustNewCode("config.invalid_log_output")
	ErrInvalidRetryConfig  = errors.MustNewCode("config.invalid_retry")
	ErrInvalidQueueConfig  = errors.MustNewCode("config.invalid_queue")
	ErrInvalidVersionMode  = errors.MustNewCode("config.invalid_version_mode")
	ErrInvalidHistoryPath  = errors.MustNewCode("config.invalid_history_path")
	ErrInvalidCaptureDir   = errors.MustNewCode("config.invalid_capture_dir")
	ErrInvalidExportConfig = errors.MustNewCode("config.invalid_export")
)

// Log management error codes
var (
	ErrLogDirCreateFailed  = errors.MustNewCode("config.log_dir_create_failed")
	ErrLogFileOpenFailed   = errors.MustNewCode("config.log_file_open_failed")
	ErrLogFileStatFailed   = errors.MustNewCode("config.log_file_stat_failed")
	ErrLogRotateFailed     = errors.MustNewCode("config.log_rotate_failed")
	ErrLogBackupScanFailed = errors.MustNewCode("config.log_backup_scan_failed")
	ErrLogCleanupFailed    = errors.MustNewCode("config.log_cleanup_failed")
	ErrLogSetupFailed      = errors.MustNewCode("config.log_setup_failed")
)
