package repo

import "errors"

var (
	// ErrNotFound is returned when no user matches the lookup.
	ErrNotFound = errors.New("user not found")
	// ErrDuplicateEmail is returned when a user with the same email exists.
	ErrDuplicateEmail = errors.New("email already registered")
)
