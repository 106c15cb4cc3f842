package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrValidation       = errors.New("validation failed")
	ErrLimitExceeded    = errors.New("trade limit exceeded")
	ErrAlreadyExecuted  = errors.New("proposal already executed")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrNotCancellable   = errors.New("trade not cancellable")
	ErrContextDone      = errors.New("context cancelled")
	ErrLockHeld         = errors.New("lock already held")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrRateLimited      = errors.New("rate limited")
)
