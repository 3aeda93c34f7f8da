// Package projection keeps the portfolios read model in step with the event
// log by consuming the log's global feed from a persisted checkpoint.
package projection

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/louisbranch/stockfolio/internal/platform/logging"
	"github.com/louisbranch/stockfolio/internal/services/portfolio/domain"
	"github.com/louisbranch/stockfolio/internal/services/portfolio/eventstore"
	"github.com/louisbranch/stockfolio/internal/services/portfolio/storage"
	"github.com/phuslu/log"
	"golang.org/x/time/rate"
)

const (
	// DefaultName is the checkpoint key of the portfolios listener.
	DefaultName = "portfolios"
	// DefaultBatchSize is the number of feed records read per batch.
	DefaultBatchSize = 100
	// DefaultPollInterval is the minimum time between batches in Run.
	DefaultPollInterval = time.Second
)

// Listener inserts a read-model row for every created portfolio.
//
// Delivery is at least once: a failed batch is read again from the last
// checkpoint, and rows that already exist are skipped.
type Listener struct {
	Name        string
	Feed        storage.Feed
	Portfolios  storage.PortfolioStore
	Checkpoints storage.CheckpointStore
	BatchSize   int
	Logger      *log.Logger
}

// Result summarizes one batch.
type Result struct {
	Read     int
	Inserted int
	Skipped  int
	// Position is the checkpoint after the batch.
	Position int64
}

// RunOnce processes one batch of the feed after the stored checkpoint.
func (l Listener) RunOnce(ctx context.Context) (Result, error) {
	if l.Feed == nil || l.Portfolios == nil || l.Checkpoints == nil {
		return Result{}, fmt.Errorf("listener is not configured")
	}
	name := l.name()
	logger := logging.OrDiscard(l.Logger)

	position, err := l.Checkpoints.GetCheckpoint(ctx, name)
	if err != nil {
		return Result{}, fmt.Errorf("get checkpoint: %w", err)
	}
	result := Result{Position: position}

	batchSize := l.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	records, err := l.Feed.ReadAll(ctx, position, batchSize)
	if err != nil {
		return result, fmt.Errorf("read feed: %w", err)
	}
	result.Read = len(records)

	for _, record := range records {
		if record.Type == eventstore.TypePortfolioCreated {
			inserted, err := l.insert(ctx, logger, record)
			if err != nil {
				return Result{Read: result.Read, Position: position}, err
			}
			if inserted {
				result.Inserted++
			} else {
				result.Skipped++
			}
		}
		result.Position = record.GlobalPosition
	}

	if result.Position != position {
		if err := l.Checkpoints.SaveCheckpoint(ctx, name, result.Position); err != nil {
			return Result{Read: result.Read, Position: position}, fmt.Errorf("save checkpoint: %w", err)
		}
	}
	return result, nil
}

// insert writes the row for one created record. It reports false for rows
// skipped as duplicates or as undecodable.
func (l Listener) insert(ctx context.Context, logger *log.Logger, record storage.Record) (bool, error) {
	evt, err := eventstore.Decode(record)
	if err == nil {
		if _, ok := evt.(domain.PortfolioCreated); !ok {
			err = fmt.Errorf("%w: %s decoded as %T", eventstore.ErrUndecodableRecord, record.Type, evt)
		}
	}
	if err != nil {
		logger.Error().Err(err).
			Str("stream", record.Stream).
			Str("record_id", record.ID).
			Int64("global_position", record.GlobalPosition).
			Msg("skipping undecodable record")
		return false, nil
	}
	created := evt.(domain.PortfolioCreated)

	occurredOn := time.UnixMilli(created.OccurredOn).UTC()
	err = l.Portfolios.PutPortfolio(ctx, storage.PortfolioRecord{
		ID:        created.PortfolioID,
		UserID:    created.UserID,
		Money:     created.Money,
		CreatedAt: occurredOn,
		UpdatedAt: occurredOn,
	})
	if errors.Is(err, storage.ErrAlreadyExists) {
		logger.Warn().
			Str("portfolio_id", created.PortfolioID.String()).
			Str("user_id", created.UserID.String()).
			Msg("portfolio already projected")
		return false, nil
	}
	if err != nil {
		logger.Error().Err(err).
			Str("portfolio_id", created.PortfolioID.String()).
			Str("user_id", created.UserID.String()).
			Msg("insert portfolio failed")
		return false, fmt.Errorf("insert portfolio %s: %w", created.PortfolioID, err)
	}
	logger.Info().
		Str("portfolio_id", created.PortfolioID.String()).
		Str("user_id", created.UserID.String()).
		Msg("portfolio projected")
	return true, nil
}

// Run processes batches until ctx is done, at most one per interval. Batch
// failures are logged and retried on the next tick.
func (l Listener) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	logger := logging.OrDiscard(l.Logger)
	limiter := rate.NewLimiter(rate.Every(interval), 1)

	for {
		if err := limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		result, err := l.RunOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Error().Err(err).Str("listener", l.name()).Msg("projection batch failed")
			continue
		}
		if result.Read > 0 {
			logger.Debug().
				Str("listener", l.name()).
				Int("read", result.Read).
				Int("inserted", result.Inserted).
				Int("skipped", result.Skipped).
				Int64("position", result.Position).
				Msg("projection batch applied")
		}
	}
}

func (l Listener) name() string {
	if l.Name == "" {
		return DefaultName
	}
	return l.Name
}
