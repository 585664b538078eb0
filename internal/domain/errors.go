package domain

import "errors"

var (
	ErrNotFound    = errors.New("not found")
	ErrLockHeld    = errors.New("sync already running")
	ErrContextDone = errors.New("context cancelled")
)
