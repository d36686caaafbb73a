package client

import "github.com/ancware/tunelink/pkg/errors"

// Error codes for the bench gateway client
var (
	ErrInvalidBaseURL = errors.MustNewCode("client.invalid_base_url")
	ErrRequestFailed  = errors.MustNewCode("client.request_failed")
	ErrBadStatus      = errors.MustNewCode("client.bad_status")
	ErrDecodeFailed   = errors.MustNewCode("client.decode_failed")
	ErrNotFound       = errors.MustNewCode("client.not_found")
	ErrUnavailable    = errors.MustNewCode("client.unavailable")
)
