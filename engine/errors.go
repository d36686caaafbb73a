package engine

import "github.com/ancware/tunelink/pkg/errors"

// Package-specific error codes for engine operations
var (
	ErrInvalidConfig       = errors.MustNewCode("engine.invalid_config")
	ErrNoParameters        = errors.MustNewCode("engine.no_parameters")
	ErrMixedMessageTypes   = errors.MustNewCode("engine.mixed_message_types")
	ErrGroupPartialFailure = errors.MustNewCode("engine.group_partial_failure")
	ErrGroupFailure        = errors.MustNewCode("engine.group_failure")
	ErrRetryExhausted      = errors.MustNewCode("engine.retry_exhausted")
	ErrRetryQueueOverflow  = errors.MustNewCode("engine.retry_queue_overflow")
	ErrInvalidVersion      = errors.MustNewCode("engine.invalid_version")
	ErrVersionRejected     = errors.MustNewCode("engine.version_rejected")
)
