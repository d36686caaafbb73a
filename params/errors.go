package params

import "github.com/ancware/tunelink/pkg/errors"

// Package-specific error codes for parameter registry operations
var (
	ErrUnknownParameter   = errors.MustNewCode("params.unknown_parameter")
	ErrInvalidFieldKind   = errors.MustNewCode("params.invalid_field_kind")
	ErrDuplicatePath      = errors.MustNewCode("params.duplicate_path")
	ErrMissingReplacement = errors.MustNewCode("params.missing_replacement")
	ErrReplacementCycle   = errors.MustNewCode("params.replacement_cycle")
	ErrLoadFailed         = errors.MustNewCode("params.load_failed")
)
