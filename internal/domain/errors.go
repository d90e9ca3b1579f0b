package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrQuotaExceeded     = errors.New("quota exceeded")
	ErrProviderFailure   = errors.New("provider failure")
	ErrInvalidStoryboard = errors.New("invalid storyboard")
	ErrNoContent         = errors.New("no usable content")
	ErrInvalidTransition = errors.New("invalid status transition")
)
