package sqlite

import (
	"context"
	"fmt"

	"github.com/Pixelplanet/FilamentDB-sub000/internal/models"
)

// SaveSyncEvent stores one processed sync request
func (s *Storage) SaveSyncEvent(ctx context.Context, event *models.SyncEvent) error {
	query := `
		INSERT INTO sync_events (id, timestamp, client_ip, user_agent, changes_count, deletions_count, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		event.Timestamp,
		event.ClientIP,
		event.UserAgent,
		event.ChangesCount,
		event.DeletionsCount,
		event.Status,
	)
	if err != nil {
		return fmt.Errorf("failed to insert sync event: %w", err)
	}

	return nil
}

// ListSyncEvents returns up to limit events, newest first
func (s *Storage) ListSyncEvents(ctx context.Context, limit int) ([]*models.SyncEvent, error) {
	query := `
		SELECT id, timestamp, client_ip, user_agent, changes_count, deletions_count, status
		FROM sync_events
		ORDER BY timestamp DESC, rowid DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync events: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	events := make([]*models.SyncEvent, 0)
	for rows.Next() {
		event := &models.SyncEvent{}
		err := rows.Scan(
			&event.ID,
			&event.Timestamp,
			&event.ClientIP,
			&event.UserAgent,
			&event.ChangesCount,
			&event.DeletionsCount,
			&event.Status,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync event: %w", err)
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return events, nil
}
