package store

import "errors"

// ErrNotFound is returned when a snapshot document does not exist.
var ErrNotFound = errors.New("not found")
