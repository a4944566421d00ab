package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Pixelplanet/FilamentDB-sub000/internal/crdt"
	"github.com/Pixelplanet/FilamentDB-sub000/internal/models"
	"github.com/Pixelplanet/FilamentDB-sub000/internal/server/storage"
	"github.com/Pixelplanet/FilamentDB-sub000/internal/validation"
)

const recordColumns = `key, fields, mutated_at, created_at, deleted`

// querier общий интерфейс *sql.DB и *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// GetRecord retrieves a record by key, active or deleted
// Returns ErrRecordNotFound if the key is unknown
func (s *Storage) GetRecord(ctx context.Context, key string) (*models.Record, error) {
	return getRecord(ctx, s.db, key)
}

// ListRecords returns active records, or deleted ones when deleted is true
func (s *Storage) ListRecords(ctx context.Context, deleted bool) ([]*models.Record, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM records
		WHERE deleted = ?
		ORDER BY key ASC
	`

	rows, err := s.db.QueryContext(ctx, query, boolToInt(deleted))
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	return scanRecords(rows)
}

// RecordsSince returns all records (including deleted) written after cursor,
// in write order, and the cursor of the last returned write.
// A cursor ahead of the sequence (the database was reset) is treated as 0
func (s *Storage) RecordsSince(ctx context.Context, cursor int64) ([]*models.Record, int64, error) {
	var records []*models.Record
	next := cursor

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		current, err := currentSeq(ctx, tx)
		if err != nil {
			return err
		}
		if cursor > current {
			cursor, next = 0, 0
		}

		query := `
			SELECT ` + recordColumns + `, seq
			FROM records
			WHERE seq > ?
			ORDER BY seq ASC
		`

		rows, err := tx.QueryContext(ctx, query, cursor)
		if err != nil {
			return fmt.Errorf("failed to query records since cursor: %w", err)
		}
		defer func() {
			_ = rows.Close()
		}()

		records = make([]*models.Record, 0)
		for rows.Next() {
			var seq int64
			record, err := scanRecord(rows, &seq)
			if err != nil {
				return fmt.Errorf("failed to scan record: %w", err)
			}
			records = append(records, record)
			next = seq
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("rows iteration error: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	return records, next, nil
}

// PutRecord creates or overwrites the record as given
func (s *Storage) PutRecord(ctx context.Context, record *models.Record) error {
	if err := validation.ValidateRecord(record); err != nil {
		return fmt.Errorf("%w: %w", storage.ErrInvalidRecord, err)
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return upsertRecord(ctx, tx, record)
	})
}

// ApplyRecord merges an incoming record with the stored one by LWW and
// writes the winner. Returns true if the stored record changed
func (s *Storage) ApplyRecord(ctx context.Context, record *models.Record) (bool, error) {
	if err := validation.ValidateRecord(record); err != nil {
		return false, fmt.Errorf("%w: %w", storage.ErrInvalidRecord, err)
	}

	applied := false
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		existing, err := getRecord(ctx, tx, record.Key)
		if err != nil && !errors.Is(err, storage.ErrRecordNotFound) {
			return err
		}

		resolved := crdt.Merge(existing, record)
		if resolved.Equal(existing) {
			return nil
		}

		applied = true
		return upsertRecord(ctx, tx, resolved)
	})

	return applied, err
}

// SoftDeleteRecord marks the record deleted with a fresh mutatedAt
func (s *Storage) SoftDeleteRecord(ctx context.Context, key string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		record, err := getRecord(ctx, tx, key)
		if err != nil {
			return err
		}
		// Повторное удаление ничего не меняет
		if record.Deleted {
			return nil
		}

		record.Deleted = true
		record.MutatedAt = crdt.NextAfter(s.clock, record.MutatedAt)
		return upsertRecord(ctx, tx, record)
	})
}

// RestoreRecord clears the deleted flag with a fresh mutatedAt
func (s *Storage) RestoreRecord(ctx context.Context, key string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		record, err := getRecord(ctx, tx, key)
		if err != nil {
			return err
		}
		if !record.Deleted {
			return storage.ErrRecordNotFound
		}

		record.Deleted = false
		record.MutatedAt = crdt.NextAfter(s.clock, record.MutatedAt)
		return upsertRecord(ctx, tx, record)
	})
}

// PurgeRecord removes a deleted record
func (s *Storage) PurgeRecord(ctx context.Context, key string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE key = ? AND deleted = 1`, key)
	if err != nil {
		return fmt.Errorf("failed to purge record: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return storage.ErrRecordNotFound
	}

	return nil
}

// inTx выполняет fn в транзакции
func (s *Storage) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func getRecord(ctx context.Context, q querier, key string) (*models.Record, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM records
		WHERE key = ?
	`

	record, err := scanRecord(q.QueryRowContext(ctx, query, key))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to get record: %w", err)
	}

	return record, nil
}

func upsertRecord(ctx context.Context, q querier, record *models.Record) error {
	fields, err := json.Marshal(record.Fields)
	if err != nil {
		return fmt.Errorf("%w: failed to marshal fields: %w", storage.ErrInvalidRecord, err)
	}

	seq, err := nextSeq(ctx, q)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO records (` + recordColumns + `, seq)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			fields = excluded.fields,
			mutated_at = excluded.mutated_at,
			created_at = excluded.created_at,
			deleted = excluded.deleted,
			seq = excluded.seq
	`

	_, err = q.ExecContext(ctx, query,
		record.Key,
		string(fields),
		record.MutatedAt,
		record.CreatedAt,
		boolToInt(record.Deleted),
		seq,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert record: %w", err)
	}

	return nil
}

// nextSeq выдает номер следующей записи в порядке синхронизации.
// Вызывается в той же транзакции, что и запись
func nextSeq(ctx context.Context, q querier) (int64, error) {
	var seq int64
	err := q.QueryRowContext(ctx, `UPDATE sync_sequence SET value = value + 1 WHERE id = 1 RETURNING value`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("failed to advance sync sequence: %w", err)
	}
	return seq, nil
}

func currentSeq(ctx context.Context, q querier) (int64, error) {
	var seq int64
	if err := q.QueryRowContext(ctx, `SELECT value FROM sync_sequence WHERE id = 1`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("failed to read sync sequence: %w", err)
	}
	return seq, nil
}

// rowScanner общий интерфейс *sql.Row и *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

// scanRecord читает колонки recordColumns и затем extra
func scanRecord(row rowScanner, extra ...any) (*models.Record, error) {
	record := &models.Record{}
	var fields string
	var deleted int

	dest := append([]any{&record.Key, &fields, &record.MutatedAt, &record.CreatedAt, &deleted}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(fields), &record.Fields); err != nil {
		return nil, fmt.Errorf("failed to unmarshal fields of %s: %w", record.Key, err)
	}
	record.Deleted = intToBool(deleted)

	return record, nil
}

// scanRecords is a helper function to scan multiple records from rows
func scanRecords(rows *sql.Rows) ([]*models.Record, error) {
	records := make([]*models.Record, 0)

	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return records, nil
}

// Helper functions for bool/int conversion
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func intToBool(i int) bool {
	return i != 0
}
