package storage

import "errors"

// Common storage errors
var (
	// ErrRecordNotFound indicates that the record does not exist in the requested namespace
	ErrRecordNotFound = errors.New("record not found")

	// ErrInvalidRecord indicates that the record failed validation
	ErrInvalidRecord = errors.New("invalid record")
)
