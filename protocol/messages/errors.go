package messages

import "github.com/ancware/tunelink/pkg/errors"

// Message codec error codes
var (
	ErrValidationFailed = errors.MustNewCode("messages.validation_failed")
	ErrPayloadOversized = errors.MustNewCode("messages.payload_oversized")
	ErrDecodeFailed     = errors.MustNewCode("messages.decode_failed")
)
