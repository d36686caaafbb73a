package capture

import "github.com/ancware/tunelink/pkg/errors"

// Package-specific error codes for capture
var (
	ErrCaptureActive    = errors.MustNewCode("capture.already_active")
	ErrCaptureInactive  = errors.MustNewCode("capture.not_active")
	ErrCaptureIO        = errors.MustNewCode("capture.io_failed")
	ErrExportConfig     = errors.MustNewCode("capture.export_config")
	ErrExportConnect    = errors.MustNewCode("capture.export_connect_failed")
	ErrExportBucket     = errors.MustNewCode("capture.export_bucket_failed")
	ErrExportUpload     = errors.MustNewCode("capture.export_upload_failed")
	ErrExportSourceMiss = errors.MustNewCode("capture.export_source_missing")
)
