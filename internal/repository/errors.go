package repository

import "errors"

// ErrNotFound indicates an entity was not located.
var ErrNotFound = errors.New("repository: not found")

// ErrDuplicateEmail indicates a unique email constraint violation.
var ErrDuplicateEmail = errors.New("repository: email already registered")
