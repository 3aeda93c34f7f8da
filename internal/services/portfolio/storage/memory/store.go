// Package memory provides an in-process implementation of every portfolio
// storage contract. It is used by tests and by the CLI's memory backend.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/louisbranch/stockfolio/internal/services/portfolio/domain"
	"github.com/louisbranch/stockfolio/internal/services/portfolio/storage"
)

// Store keeps records and read models in maps guarded by one mutex.
type Store struct {
	mu          sync.Mutex
	streams     map[string][]storage.Record
	all         []storage.Record
	portfolios  map[domain.PortfolioID]storage.PortfolioRecord
	prices      map[domain.Stock]storage.PriceRecord
	checkpoints map[string]int64
}

// New returns an empty store.
func New() *Store {
	return &Store{
		streams:     make(map[string][]storage.Record),
		portfolios:  make(map[domain.PortfolioID]storage.PortfolioRecord),
		prices:      make(map[domain.Stock]storage.PriceRecord),
		checkpoints: make(map[string]int64),
	}
}

var (
	_ storage.EventLog        = (*Store)(nil)
	_ storage.ProjectionStore = (*Store)(nil)
)

// ReadStream returns a copy of the records of stream.
func (s *Store) ReadStream(ctx context.Context, stream string) ([]storage.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	records := s.streams[stream]
	if len(records) == 0 {
		return nil, fmt.Errorf("read stream %s: %w", stream, storage.ErrStreamNotFound)
	}
	return append([]storage.Record(nil), records...), nil
}

// AppendToStream appends records when expected matches the last position.
func (s *Store) AppendToStream(ctx context.Context, stream string, expected storage.ExpectedRevision, records []storage.EventData) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, fmt.Errorf("append to %s: no records", stream)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.streams[stream]
	current := int64(len(existing)) - 1
	if current != int64(expected) {
		return 0, fmt.Errorf("append to %s: expected %d, current %d: %w",
			stream, expected, current, storage.ErrWrongExpectedRevision)
	}
	for _, record := range existing {
		for _, data := range records {
			if record.ID == data.ID {
				return 0, fmt.Errorf("append to %s: duplicate record id %s", stream, data.ID)
			}
		}
	}

	for _, data := range records {
		current++
		record := storage.Record{
			EventData:      data,
			Stream:         stream,
			Position:       current,
			GlobalPosition: int64(len(s.all)) + 1,
		}
		existing = append(existing, record)
		s.all = append(s.all, record)
	}
	s.streams[stream] = existing
	return current, nil
}

// ReadAll returns up to limit records with a global position above after.
func (s *Store) ReadAll(ctx context.Context, after int64, limit int) ([]storage.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if after < 0 {
		after = 0
	}
	if after >= int64(len(s.all)) {
		return nil, nil
	}
	end := min(after+int64(limit), int64(len(s.all)))
	return append([]storage.Record(nil), s.all[after:end]...), nil
}

// PutPortfolio inserts a portfolio read-model row.
func (s *Store) PutPortfolio(ctx context.Context, record storage.PortfolioRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.portfolios[record.ID]; ok {
		return fmt.Errorf("put portfolio %s: %w", record.ID, storage.ErrAlreadyExists)
	}
	s.portfolios[record.ID] = record
	return nil
}

// GetPortfolio returns a portfolio read-model row.
func (s *Store) GetPortfolio(ctx context.Context, id domain.PortfolioID) (storage.PortfolioRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.PortfolioRecord{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.portfolios[id]
	if !ok {
		return storage.PortfolioRecord{}, storage.ErrNotFound
	}
	return record, nil
}

// ListPortfolios returns the rows owned by userID ordered by creation.
func (s *Store) ListPortfolios(ctx context.Context, userID domain.UserID) ([]storage.PortfolioRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var records []storage.PortfolioRecord
	for _, record := range s.portfolios {
		if record.UserID == userID {
			records = append(records, record)
		}
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].ID < records[j].ID
		}
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
	return records, nil
}

// PutPrice stores the latest price of a stock.
func (s *Store) PutPrice(ctx context.Context, record storage.PriceRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.prices[record.Stock] = record
	return nil
}

// GetPrice returns the latest price of a stock.
func (s *Store) GetPrice(ctx context.Context, stock domain.Stock) (storage.PriceRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.PriceRecord{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.prices[stock]
	if !ok {
		return storage.PriceRecord{}, storage.ErrNotFound
	}
	return record, nil
}

// GetCheckpoint returns the saved position for name, or 0.
func (s *Store) GetCheckpoint(ctx context.Context, name string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.checkpoints[name], nil
}

// SaveCheckpoint records the position reached by name.
func (s *Store) SaveCheckpoint(ctx context.Context, name string, position int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.checkpoints[name] = position
	return nil
}
