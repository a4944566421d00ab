package storage

import "context"

// MetadataStorage defines interface for storing client sync metadata
type MetadataStorage interface {
	// SaveLastSyncTimestamp saves the local watermark of the last fully successful sync:
	// records with a greater MutatedAt are pushed on the next pass
	SaveLastSyncTimestamp(ctx context.Context, timestamp int64) error

	// GetLastSyncTimestamp retrieves the local watermark of the last fully successful sync
	// Returns 0 if no sync has been performed yet
	GetLastSyncTimestamp(ctx context.Context) (int64, error)

	// SaveServerCursor saves the server cursor returned by the last fully successful sync
	SaveServerCursor(ctx context.Context, cursor int64) error

	// GetServerCursor retrieves the server cursor of the last fully successful sync
	// Returns 0 if no sync has been performed yet
	GetServerCursor(ctx context.Context) (int64, error)
}
