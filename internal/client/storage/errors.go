package storage

import (
	"context"
	"errors"
)

// Storage error taxonomy. Backends wrap the underlying cause with one of
// these sentinels, e.g. fmt.Errorf("%w: %w", ErrFilesystem, err).
var (
	// ErrNotFound indicates that the record does not exist
	ErrNotFound = errors.New("record not found")

	// ErrInvalidData indicates that the record is missing a required field or is malformed
	ErrInvalidData = errors.New("invalid record data")

	// ErrPermissionDenied indicates that the backend refused access
	ErrPermissionDenied = errors.New("permission denied")

	// ErrDuplicate indicates a conflicting record with another key
	ErrDuplicate = errors.New("duplicate record")

	// ErrNetwork indicates a transport failure (remote backend only)
	ErrNetwork = errors.New("network error")

	// ErrFilesystem indicates a local storage I/O failure (local backends only)
	ErrFilesystem = errors.New("filesystem error")

	// ErrUnknown is used for failures that fit no other kind
	ErrUnknown = errors.New("unknown storage error")

	// ErrStorageClosed indicates that storage is closed
	ErrStorageClosed = errors.New("storage is closed")
)

// Kind classifies a storage error.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindInvalidData
	KindPermissionDenied
	KindDuplicate
	KindNetwork
	KindFilesystem
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NotFound"
	case KindInvalidData:
		return "InvalidData"
	case KindPermissionDenied:
		return "PermissionDenied"
	case KindDuplicate:
		return "Duplicate"
	case KindNetwork:
		return "NetworkError"
	case KindFilesystem:
		return "FilesystemError"
	default:
		return "Unknown"
	}
}

// KindOf maps err onto the taxonomy. nil maps to KindUnknown as well, callers
// are expected to check for nil first.
func KindOf(err error) Kind {
	switch {
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidData):
		return KindInvalidData
	case errors.Is(err, ErrPermissionDenied):
		return KindPermissionDenied
	case errors.Is(err, ErrDuplicate):
		return KindDuplicate
	case errors.Is(err, ErrNetwork), errors.Is(err, context.DeadlineExceeded):
		return KindNetwork
	case errors.Is(err, ErrFilesystem), errors.Is(err, ErrStorageClosed):
		return KindFilesystem
	default:
		return KindUnknown
	}
}

// IsRetryable reports whether the operation may succeed when retried later.
// Only network and filesystem failures are retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch KindOf(err) {
	case KindNetwork, KindFilesystem:
		return true
	default:
		return false
	}
}
