package protocol

import "github.com/ancware/tunelink/pkg/errors"

// Protocol-specific error codes
var (
	ErrEnvelopeDecodeFailed   = errors.MustNewCode("protocol.envelope_decode_failed")
	ErrVarintOverflow         = errors.MustNewCode("protocol.varint_overflow")
	ErrPayloadTruncated       = errors.MustNewCode("protocol.payload_truncated")
	ErrUnsupportedMessageType = errors.MustNewCode("protocol.unsupported_message_type")
	ErrCodecNotRegistered     = errors.MustNewCode("protocol.codec_not_registered")
	ErrCodecAlreadyRegistered = errors.MustNewCode("protocol.codec_already_registered")
	ErrCodecTypeMismatch      = errors.MustNewCode("protocol.codec_type_mismatch")
	ErrFrameBufferOverflow    = errors.MustNewCode("protocol.frame_buffer_overflow")
	ErrFrameTooLarge          = errors.MustNewCode("protocol.frame_too_large")
)
