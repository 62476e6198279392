package storage

import "errors"

var (
	// ErrNotFound means no position with that ID, or no risk snapshot yet.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey means the exit event ID is already journaled.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrInvalidInput rejects a nil record or one without an ID.
	ErrInvalidInput = errors.New("invalid input")
)
