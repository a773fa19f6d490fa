package repository

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrVersionConflict indicates a conditional update lost against a concurrent writer.
	ErrVersionConflict = errors.New("repository: version conflict")
	// ErrDuplicate indicates a unique attribute is already taken.
	ErrDuplicate = errors.New("repository: duplicate")
)
