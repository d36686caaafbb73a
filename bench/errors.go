package bench

import "github.com/ancware/tunelink/pkg/errors"

// Package-specific error codes for bench
var (
	ErrAlreadyStarted = errors.MustNewCode("bench.already_started")
	ErrNotStarted     = errors.MustNewCode("bench.not_started")
	ErrStopped        = errors.MustNewCode("bench.stopped")
	ErrCmdQueueFull   = errors.MustNewCode("bench.cmd_queue_full")
	ErrCaptureOff     = errors.MustNewCode("bench.capture_disabled")
	ErrHistoryOff     = errors.MustNewCode("bench.history_disabled")
	ErrLinkOpenFailed = errors.MustNewCode("bench.link_open_failed")
)
