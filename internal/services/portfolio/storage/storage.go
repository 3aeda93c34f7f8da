// Package storage defines the persistence contracts used by the portfolio
// service: the append-only stream log that holds events, its global feed, and
// the read-model stores fed by projections.
package storage

import (
	"context"
	"time"

	apperrors "github.com/louisbranch/stockfolio/internal/platform/errors"
	"github.com/louisbranch/stockfolio/internal/services/portfolio/domain"
)

// ErrStreamNotFound indicates a stream has no records yet.
var ErrStreamNotFound = apperrors.New(apperrors.CodeUnknownStream, "stream not found")

// ErrWrongExpectedRevision indicates the stream moved past the revision the
// writer observed. Nothing was appended.
var ErrWrongExpectedRevision = apperrors.New(apperrors.CodeConcurrentModification, "wrong expected revision")

// ErrNotFound indicates a requested read-model record is missing.
var ErrNotFound = apperrors.New(apperrors.CodeNotFound, "record not found")

// ErrAlreadyExists indicates a read-model record with the same key exists.
var ErrAlreadyExists = apperrors.New(apperrors.CodeAlreadyExists, "record already exists")

// ExpectedRevision is the append precondition: the position of the last
// record the writer saw, or NoStream when the stream must not exist.
type ExpectedRevision int64

// NoStream requires the target stream to be empty.
const NoStream ExpectedRevision = -1

// EventData is one record to append.
type EventData struct {
	ID            string
	Type          string
	SchemaVersion int
	RecordedAt    time.Time
	Data          []byte
}

// Record is a stored event with its stream and global positions.
type Record struct {
	EventData
	Stream string
	// Position is 0-based within the stream.
	Position int64
	// GlobalPosition is 1-based across all streams and strictly increasing.
	GlobalPosition int64
}

// StreamLog reads and conditionally appends per-stream records.
//
// Implementations must be safe for concurrent use; two appends with the same
// expected revision on one stream result in exactly one success.
type StreamLog interface {
	// ReadStream returns all records of stream in position order, or
	// ErrStreamNotFound when it has none.
	ReadStream(ctx context.Context, stream string) ([]Record, error)
	// AppendToStream appends records atomically when the stream's last
	// position equals expected, returning the new last position.
	AppendToStream(ctx context.Context, stream string, expected ExpectedRevision, records []EventData) (int64, error)
}

// Feed reads the log across all streams in append order.
type Feed interface {
	// ReadAll returns up to limit records with a global position above after.
	ReadAll(ctx context.Context, after int64, limit int) ([]Record, error)
}

// EventLog is a stream log that also exposes its global feed.
type EventLog interface {
	StreamLog
	Feed
}

// PortfolioRecord is the read-model row for a created portfolio.
type PortfolioRecord struct {
	ID        domain.PortfolioID
	UserID    domain.UserID
	Money     domain.Money
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PortfolioStore persists portfolio read-model rows.
type PortfolioStore interface {
	// PutPortfolio inserts a row, returning ErrAlreadyExists for a known id.
	PutPortfolio(ctx context.Context, record PortfolioRecord) error
	GetPortfolio(ctx context.Context, id domain.PortfolioID) (PortfolioRecord, error)
	// ListPortfolios returns the portfolios of userID ordered by creation.
	ListPortfolios(ctx context.Context, userID domain.UserID) ([]PortfolioRecord, error)
}

// PriceRecord is the last known unit price of a stock.
type PriceRecord struct {
	Stock     domain.Stock
	Price     domain.Money
	UpdatedAt time.Time
}

// PriceStore persists stock prices.
type PriceStore interface {
	// PutPrice inserts or replaces the price of a stock.
	PutPrice(ctx context.Context, record PriceRecord) error
	// GetPrice returns ErrNotFound when no price is known.
	GetPrice(ctx context.Context, stock domain.Stock) (PriceRecord, error)
}

// CheckpointStore persists how far each projection has read the feed.
type CheckpointStore interface {
	// GetCheckpoint returns 0 for a listener that has not checkpointed yet.
	GetCheckpoint(ctx context.Context, name string) (int64, error)
	SaveCheckpoint(ctx context.Context, name string, position int64) error
}

// ProjectionStore bundles the read-model stores.
type ProjectionStore interface {
	PortfolioStore
	PriceStore
	CheckpointStore
}
