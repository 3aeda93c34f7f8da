package engine

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	apperrors "github.com/louisbranch/stockfolio/internal/platform/errors"
	"github.com/louisbranch/stockfolio/internal/platform/logging"
	"github.com/louisbranch/stockfolio/internal/services/portfolio/domain"
	"github.com/louisbranch/stockfolio/internal/services/portfolio/eventstore"
	"github.com/phuslu/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultMaxAttempts bounds load-decide-save cycles per command.
	DefaultMaxAttempts = 5
	// DefaultInitialBackoff is the wait before the first retry.
	DefaultInitialBackoff = 10 * time.Millisecond
	// DefaultMaxBackoff caps the wait between retries.
	DefaultMaxBackoff = 500 * time.Millisecond
)

const tracerName = "github.com/louisbranch/stockfolio/internal/services/portfolio/engine"

// ErrStoreRequired indicates a handler without an event store.
var ErrStoreRequired = errors.New("event store is required")

// Handler decides commands against stored histories and persists the result.
// The zero value of every field except Store has a usable default.
type Handler struct {
	Store eventstore.Store
	// MaxAttempts bounds the number of cycles; values below 1 mean
	// DefaultMaxAttempts.
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Logger         *log.Logger
	Tracer         trace.Tracer
	// Wait blocks for d or until ctx is done. Tests replace it.
	Wait func(ctx context.Context, d time.Duration) error
}

// Handle runs cmd to completion and returns the id of the saved portfolio.
//
// Rejections from the decider are returned as *domain.PortfolioError.
// Storage failures carry apperrors.CodePersistence, and a command that kept
// losing the append race carries apperrors.CodeRetriesExhausted.
func (h Handler) Handle(ctx context.Context, cmd domain.Command) (domain.PortfolioID, error) {
	if h.Store == nil {
		return "", ErrStoreRequired
	}
	if cmd == nil {
		return "", apperrors.New(apperrors.CodeValidation, "command is required")
	}
	portfolioID := cmd.Header().PortfolioID
	logger := logging.OrDiscard(h.Logger)

	tracer := h.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	ctx, span := tracer.Start(ctx, "engine.Handle", trace.WithAttributes(
		attribute.String("portfolio.id", portfolioID.String()),
		attribute.String("portfolio.command", commandName(cmd)),
	))
	defer span.End()

	maxAttempts := h.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxAttempts
	}
	delays := h.newBackoff()

	var lastConflict error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		span.SetAttributes(attribute.Int("portfolio.attempts", attempt))

		id, err := h.attempt(ctx, cmd)
		if err == nil {
			return id, nil
		}

		var saveErr *eventstore.SaveError
		if !errors.As(err, &saveErr) || saveErr.Kind != apperrors.CodeConcurrentModification {
			if apperrors.CodeOf(err) == apperrors.CodePersistence {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
			return "", err
		}

		lastConflict = err
		if attempt == maxAttempts {
			break
		}
		delay := delays.NextBackOff()
		if delay == backoff.Stop {
			delay = delays.MaxInterval
		}
		logger.Debug().
			Str("portfolio_id", portfolioID.String()).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Msg("concurrent modification, retrying")
		if err := h.wait(ctx, delay); err != nil {
			waitErr := persistenceError("wait for retry", err)
			span.RecordError(waitErr)
			span.SetStatus(codes.Error, waitErr.Error())
			return "", waitErr
		}
	}

	logger.Warn().
		Str("portfolio_id", portfolioID.String()).
		Int("attempts", maxAttempts).
		Msg("retries exhausted")
	err := retriesExhausted(maxAttempts, lastConflict)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return "", err
}

// attempt runs one load-decide-save cycle.
func (h Handler) attempt(ctx context.Context, cmd domain.Command) (domain.PortfolioID, error) {
	portfolioID := cmd.Header().PortfolioID

	revision, state, err := h.Store.LoadState(ctx, portfolioID)
	if err != nil {
		var loadErr *eventstore.LoadError
		_, creating := cmd.(domain.CreatePortfolio)
		if !creating || !errors.As(err, &loadErr) || loadErr.Kind != apperrors.CodeUnknownStream {
			return "", persistenceError("load portfolio", err)
		}
		revision, state = eventstore.NoStream, nil
	}

	events, err := domain.Decide(cmd, state)
	if err != nil {
		return "", err
	}
	next := domain.Fold(state, events...)

	id, err := h.Store.SaveState(ctx, portfolioID, revision, state, next)
	if err != nil {
		var saveErr *eventstore.SaveError
		if errors.As(err, &saveErr) && saveErr.Kind == apperrors.CodeConcurrentModification {
			return "", err
		}
		return "", persistenceError("save portfolio", err)
	}
	return id, nil
}

func (h Handler) newBackoff() *backoff.ExponentialBackOff {
	delays := backoff.NewExponentialBackOff()
	delays.InitialInterval = DefaultInitialBackoff
	if h.InitialBackoff > 0 {
		delays.InitialInterval = h.InitialBackoff
	}
	delays.MaxInterval = DefaultMaxBackoff
	if h.MaxBackoff > 0 {
		delays.MaxInterval = h.MaxBackoff
	}
	delays.Reset()
	return delays
}

func (h Handler) wait(ctx context.Context, d time.Duration) error {
	if h.Wait != nil {
		return h.Wait(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func commandName(cmd domain.Command) string {
	switch cmd.(type) {
	case domain.CreatePortfolio:
		return "create_portfolio"
	case domain.BuyStocks:
		return "buy_stocks"
	case domain.SellStocks:
		return "sell_stocks"
	case domain.ClosePortfolio:
		return "close_portfolio"
	default:
		return "unknown"
	}
}
