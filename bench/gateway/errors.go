package gateway

import "github.com/ancware/tunelink/pkg/errors"

// Package-specific error codes for gateway
var (
	ErrMissingEngine  = errors.MustNewCode("gateway.missing_engine")
	ErrShutdownFailed = errors.MustNewCode("gateway.shutdown_failed")
)
