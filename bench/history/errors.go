package history

import "github.com/ancware/tunelink/pkg/errors"

// Package-specific error codes for history
var (
	ErrOpenFailed   = errors.MustNewCode("history.open_failed")
	ErrInitFailed   = errors.MustNewCode("history.init_failed")
	ErrInsertFailed = errors.MustNewCode("history.insert_failed")
	ErrQueryFailed  = errors.MustNewCode("history.query_failed")
	ErrPruneFailed  = errors.MustNewCode("history.prune_failed")
)
