package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/louisbranch/stockfolio/internal/services/portfolio/storage"
)

// EventStore is the SQLite event log. It implements storage.EventLog.
type EventStore struct {
	*Store
}

var _ storage.EventLog = (*EventStore)(nil)

// ReadStream returns all records of stream in position order.
func (s *EventStore) ReadStream(ctx context.Context, stream string) ([]storage.Record, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT global_position, stream_id, stream_position, record_id, event_type, schema_version, recorded_at, payload_json
FROM events
WHERE stream_id = ?
ORDER BY stream_position ASC`, stream)
	if err != nil {
		return nil, fmt.Errorf("read stream %s: %w", stream, err)
	}
	records, err := scanRecords(rows)
	if err != nil {
		return nil, fmt.Errorf("read stream %s: %w", stream, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("read stream %s: %w", stream, storage.ErrStreamNotFound)
	}
	return records, nil
}

// AppendToStream appends records in one transaction when the stream's last
// position equals expected.
func (s *EventStore) AppendToStream(ctx context.Context, stream string, expected storage.ExpectedRevision, records []storage.EventData) (int64, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, fmt.Errorf("append to %s: no records", stream)
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var current sql.NullInt64
	if err := tx.QueryRowContext(ctx,
		"SELECT MAX(stream_position) FROM events WHERE stream_id = ?", stream,
	).Scan(&current); err != nil {
		return 0, fmt.Errorf("read stream revision %s: %w", stream, err)
	}
	position := int64(storage.NoStream)
	if current.Valid {
		position = current.Int64
	}
	if position != int64(expected) {
		return 0, fmt.Errorf("append to %s: expected %d, current %d: %w",
			stream, expected, position, storage.ErrWrongExpectedRevision)
	}

	for _, record := range records {
		position++
		if _, err := tx.ExecContext(ctx, `
INSERT INTO events (stream_id, stream_position, record_id, event_type, schema_version, recorded_at, payload_json)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
			stream, position, record.ID, record.Type, record.SchemaVersion, toMillis(record.RecordedAt), record.Data,
		); err != nil {
			if isConstraintError(err) {
				return 0, fmt.Errorf("append to %s: %w", stream, storage.ErrWrongExpectedRevision)
			}
			return 0, fmt.Errorf("append to %s: %w", stream, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return position, nil
}

// ReadAll returns up to limit records with a global position above after.
func (s *EventStore) ReadAll(ctx context.Context, after int64, limit int) ([]storage.Record, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive")
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT global_position, stream_id, stream_position, record_id, event_type, schema_version, recorded_at, payload_json
FROM events
WHERE global_position > ?
ORDER BY global_position ASC
LIMIT ?`, after, limit)
	if err != nil {
		return nil, fmt.Errorf("read all: %w", err)
	}
	records, err := scanRecords(rows)
	if err != nil {
		return nil, fmt.Errorf("read all: %w", err)
	}
	return records, nil
}

func scanRecords(rows *sql.Rows) ([]storage.Record, error) {
	defer rows.Close()

	var records []storage.Record
	for rows.Next() {
		var (
			record     storage.Record
			recordedAt int64
		)
		if err := rows.Scan(
			&record.GlobalPosition,
			&record.Stream,
			&record.Position,
			&record.ID,
			&record.Type,
			&record.SchemaVersion,
			&recordedAt,
			&record.Data,
		); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		record.RecordedAt = fromMillis(recordedAt)
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return records, nil
}
