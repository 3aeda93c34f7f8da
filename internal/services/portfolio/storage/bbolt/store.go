// Package bbolt provides a BoltDB-backed portfolio event log.
//
// Records live in the events bucket keyed by global position. Each stream
// has a nested bucket under streams that maps its positions to global keys,
// so a stream read is a cursor walk and the feed is a cursor seek.
package bbolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/louisbranch/stockfolio/internal/services/portfolio/storage"
	"go.etcd.io/bbolt"
)

const (
	eventsBucket  = "events"
	streamsBucket = "streams"
)

// Store provides a BoltDB-backed event log.
type Store struct {
	db *bbolt.DB
}

var _ storage.EventLog = (*Store)(nil)

// storedRecord is the JSON value kept in the events bucket.
type storedRecord struct {
	ID             string `json:"id"`
	Stream         string `json:"stream"`
	Position       int64  `json:"position"`
	GlobalPosition int64  `json:"global_position"`
	Type           string `json:"type"`
	SchemaVersion  int    `json:"schema_version"`
	RecordedAt     int64  `json:"recorded_at"`
	Data           []byte `json:"data"`
}

// Open opens a BoltDB-backed store at the provided path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	db, err := bbolt.Open(cleanPath, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open storage db: %w", err)
	}

	store := &Store{db: db}
	if err := store.ensureBuckets(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying BoltDB database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

// ReadStream returns all records of stream in position order.
func (s *Store) ReadStream(ctx context.Context, stream string) ([]storage.Record, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}

	var records []storage.Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		events, streams, err := buckets(tx)
		if err != nil {
			return err
		}
		streamBucket := streams.Bucket([]byte(stream))
		if streamBucket == nil {
			return nil
		}
		return streamBucket.ForEach(func(_, globalKey []byte) error {
			record, err := decodeRecord(events.Get(globalKey))
			if err != nil {
				return err
			}
			records = append(records, record)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("read stream %s: %w", stream, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("read stream %s: %w", stream, storage.ErrStreamNotFound)
	}
	return records, nil
}

// AppendToStream appends records in one write transaction when the stream's
// last position equals expected.
func (s *Store) AppendToStream(ctx context.Context, stream string, expected storage.ExpectedRevision, records []storage.EventData) (int64, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, fmt.Errorf("append to %s: no records", stream)
	}
	if strings.TrimSpace(stream) == "" {
		return 0, fmt.Errorf("stream name is required")
	}

	position := int64(storage.NoStream)
	err := s.db.Update(func(tx *bbolt.Tx) error {
		events, streams, err := buckets(tx)
		if err != nil {
			return err
		}
		streamBucket, err := streams.CreateBucketIfNotExists([]byte(stream))
		if err != nil {
			return fmt.Errorf("create stream bucket: %w", err)
		}
		if last, _ := streamBucket.Cursor().Last(); last != nil {
			position = int64(binary.BigEndian.Uint64(last))
		}
		if position != int64(expected) {
			return fmt.Errorf("expected %d, current %d: %w", expected, position, storage.ErrWrongExpectedRevision)
		}

		for _, data := range records {
			position++
			global, err := events.NextSequence()
			if err != nil {
				return fmt.Errorf("next global position: %w", err)
			}
			payload, err := json.Marshal(storedRecord{
				ID:             data.ID,
				Stream:         stream,
				Position:       position,
				GlobalPosition: int64(global),
				Type:           data.Type,
				SchemaVersion:  data.SchemaVersion,
				RecordedAt:     data.RecordedAt.UTC().UnixMilli(),
				Data:           data.Data,
			})
			if err != nil {
				return fmt.Errorf("marshal record: %w", err)
			}
			globalKey := itob(global)
			if err := events.Put(globalKey, payload); err != nil {
				return fmt.Errorf("put record: %w", err)
			}
			if err := streamBucket.Put(itob(uint64(position)), globalKey); err != nil {
				return fmt.Errorf("put stream index: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("append to %s: %w", stream, err)
	}
	return position, nil
}

// ReadAll returns up to limit records with a global position above after.
func (s *Store) ReadAll(ctx context.Context, after int64, limit int) ([]storage.Record, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive")
	}
	if after < 0 {
		after = 0
	}

	records := make([]storage.Record, 0, limit)
	err := s.db.View(func(tx *bbolt.Tx) error {
		events, _, err := buckets(tx)
		if err != nil {
			return err
		}
		cursor := events.Cursor()
		for key, value := cursor.Seek(itob(uint64(after) + 1)); key != nil && len(records) < limit; key, value = cursor.Next() {
			record, err := decodeRecord(value)
			if err != nil {
				return err
			}
			records = append(records, record)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read all: %w", err)
	}
	return records, nil
}

func (s *Store) ensureBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{eventsBucket, streamsBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create %s bucket: %w", name, err)
			}
		}
		return nil
	})
}

func buckets(tx *bbolt.Tx) (*bbolt.Bucket, *bbolt.Bucket, error) {
	events := tx.Bucket([]byte(eventsBucket))
	if events == nil {
		return nil, nil, fmt.Errorf("events bucket is missing")
	}
	streams := tx.Bucket([]byte(streamsBucket))
	if streams == nil {
		return nil, nil, fmt.Errorf("streams bucket is missing")
	}
	return events, streams, nil
}

func decodeRecord(payload []byte) (storage.Record, error) {
	if payload == nil {
		return storage.Record{}, fmt.Errorf("record is missing")
	}
	var stored storedRecord
	if err := json.Unmarshal(payload, &stored); err != nil {
		return storage.Record{}, fmt.Errorf("unmarshal record: %w", err)
	}
	return storage.Record{
		EventData: storage.EventData{
			ID:            stored.ID,
			Type:          stored.Type,
			SchemaVersion: stored.SchemaVersion,
			RecordedAt:    time.UnixMilli(stored.RecordedAt).UTC(),
			Data:          stored.Data,
		},
		Stream:         stored.Stream,
		Position:       stored.Position,
		GlobalPosition: stored.GlobalPosition,
	}, nil
}

func itob(value uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, value)
	return key
}
