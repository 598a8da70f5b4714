package game

import "errors"

var (
	// ErrInvariantViolation signals a protocol-contract bug, e.g. a turn message before any roster snapshot
	ErrInvariantViolation = errors.New("invariant violation")
	ErrUnknownPlayer      = errors.New("unknown player")
)
