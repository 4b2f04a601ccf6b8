package archive

import "errors"

var (
	ErrNotFound           = errors.New("not found in archive")
	ErrRateLimited        = errors.New("rate limited by archive")
	ErrSessionUnavailable = errors.New("session unavailable")
)
