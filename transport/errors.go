package transport

import "github.com/ancware/tunelink/pkg/errors"

// Package-specific error codes for transport operations
var (
	ErrNotConnected = errors.MustNewCode("transport.not_connected")
	ErrOpenFailed   = errors.MustNewCode("transport.open_failed")
	ErrCloseFailed  = errors.MustNewCode("transport.close_failed")
	ErrSendFailed   = errors.MustNewCode("transport.send_failed")
	ErrSendTimeout  = errors.MustNewCode("transport.send_timeout")
	ErrReadFailed   = errors.MustNewCode("transport.read_failed")
)
