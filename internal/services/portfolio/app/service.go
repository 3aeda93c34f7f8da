// Package app exposes the portfolio use cases: it validates caller input,
// fills in ids, timestamps and prices, and hands commands to the engine.
package app

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	apperrors "github.com/louisbranch/stockfolio/internal/platform/errors"
	"github.com/louisbranch/stockfolio/internal/platform/id"
	"github.com/louisbranch/stockfolio/internal/platform/logging"
	"github.com/louisbranch/stockfolio/internal/services/portfolio/domain"
	"github.com/louisbranch/stockfolio/internal/services/portfolio/eventstore"
	"github.com/louisbranch/stockfolio/internal/services/portfolio/stock"
	"github.com/phuslu/log"
)

// CommandHandler runs a command to completion.
type CommandHandler interface {
	Handle(ctx context.Context, cmd domain.Command) (domain.PortfolioID, error)
}

// Service implements the portfolio use cases.
type Service struct {
	Handler CommandHandler
	// Store serves the reads that precede a close and the summary view.
	Store  eventstore.Store
	Prices stock.PriceFinder
	NewID  id.Generator
	Now    func() time.Time
	Logger *log.Logger
}

// CreatePortfolioInput is the request to open a portfolio.
type CreatePortfolioInput struct {
	UserID string
	Amount domain.Money
}

// ChangePortfolioInput buys (positive Quantity) or sells (negative Quantity)
// shares at the current price.
type ChangePortfolioInput struct {
	PortfolioID string
	Stock       string
	Quantity    int64
}

// Summary is a read-only view of one portfolio.
type Summary struct {
	PortfolioID domain.PortfolioID
	UserID      domain.UserID
	Funds       domain.Money
	Stocks      []domain.OwnedStock
	Closed      bool
	Revision    eventstore.Revision
	Events      int
}

// CreatePortfolio opens a portfolio under a fresh id.
func (s Service) CreatePortfolio(ctx context.Context, in CreatePortfolioInput) (domain.PortfolioID, error) {
	var v validator
	v.check(strings.TrimSpace(in.UserID) != "", "userId", RuleRequired)
	v.check(in.Amount.IsPositive(), "amount", RulePositive)
	if err := v.err(); err != nil {
		return "", err
	}

	newID := s.NewID
	if newID == nil {
		newID = id.NewID
	}
	portfolioID, err := newID()
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodePersistence, "generate portfolio id", err)
	}
	return s.handle(ctx, domain.CreatePortfolio{
		Envelope: s.envelope(domain.PortfolioID(portfolioID)),
		UserID:   domain.UserID(strings.TrimSpace(in.UserID)),
		Amount:   in.Amount,
	})
}

// ChangePortfolio buys or sells shares of one stock at its current price.
func (s Service) ChangePortfolio(ctx context.Context, in ChangePortfolioInput) (domain.PortfolioID, error) {
	var v validator
	v.check(strings.TrimSpace(in.Stock) != "", "stock", RuleRequired)
	v.check(in.Quantity != 0, "quantity", RuleNonZero)
	v.check(in.Quantity != math.MinInt64, "quantity", RuleInRange)
	if err := v.err(); err != nil {
		return "", err
	}

	portfolioID := domain.PortfolioID(in.PortfolioID)
	symbol := domain.Stock(strings.TrimSpace(in.Stock))
	price, err := s.findPrice(ctx, symbol)
	if errors.Is(err, stock.ErrPriceNotFound) {
		return "", domain.PriceNotAvailable(portfolioID, symbol)
	}
	if err != nil {
		s.logger().Error().Err(err).
			Str("portfolio_id", portfolioID.String()).
			Str("stock", symbol.String()).
			Str("operation", "find_price").
			Msg("price lookup failed")
		return "", apperrors.Wrap(apperrors.CodePersistence, "find stock price", err)
	}

	envelope := s.envelope(portfolioID)
	quantity := domain.Quantity(in.Quantity)
	if quantity > 0 {
		return s.handle(ctx, domain.BuyStocks{Envelope: envelope, Stock: symbol, Quantity: quantity, Price: price})
	}
	return s.handle(ctx, domain.SellStocks{Envelope: envelope, Stock: symbol, Quantity: quantity.Neg(), Price: price})
}

// ClosePortfolio sells every owned stock at its current price and closes the
// portfolio. Stocks without a price are left out of the price list so the
// decider rejects the close.
//
// Prices are looked up once, from the state read here. Conflict retries reuse
// the same command, so a stock bought concurrently after that read has no
// price in it and the close fails with PRICE_NOT_AVAILABLE. Callers should
// resubmit the close in that case.
func (s Service) ClosePortfolio(ctx context.Context, portfolioID domain.PortfolioID) (domain.PortfolioID, error) {
	_, state, err := s.load(ctx, portfolioID)
	if err != nil {
		return "", err
	}

	prices := make(domain.Prices)
	for _, owned := range state.OwnedStockList() {
		price, err := s.findPrice(ctx, owned.Stock)
		if errors.Is(err, stock.ErrPriceNotFound) {
			continue
		}
		if err != nil {
			s.logger().Error().Err(err).
				Str("portfolio_id", portfolioID.String()).
				Str("stock", owned.Stock.String()).
				Str("operation", "find_price").
				Msg("price lookup failed")
			return "", apperrors.Wrap(apperrors.CodePersistence, "find stock price", err)
		}
		prices[owned.Stock] = price
	}
	return s.handle(ctx, domain.ClosePortfolio{Envelope: s.envelope(portfolioID), Prices: prices})
}

// Summary folds the current state of a portfolio.
func (s Service) Summary(ctx context.Context, portfolioID domain.PortfolioID) (Summary, error) {
	revision, state, err := s.load(ctx, portfolioID)
	if err != nil {
		return Summary{}, err
	}
	summary := Summary{
		PortfolioID: portfolioID,
		Funds:       state.AvailableFunds(),
		Stocks:      state.OwnedStockList(),
		Closed:      state.IsClosed(),
		Revision:    revision,
		Events:      len(state),
	}
	if created, ok := state[0].(domain.PortfolioCreated); ok {
		summary.UserID = created.UserID
	}
	return summary, nil
}

func (s Service) handle(ctx context.Context, cmd domain.Command) (domain.PortfolioID, error) {
	if s.Handler == nil {
		return "", errors.New("command handler is required")
	}
	return s.Handler.Handle(ctx, cmd)
}

// load reads a history that must exist.
func (s Service) load(ctx context.Context, portfolioID domain.PortfolioID) (eventstore.Revision, domain.Portfolio, error) {
	if s.Store == nil {
		return eventstore.NoStream, nil, errors.New("event store is required")
	}
	revision, state, err := s.Store.LoadState(ctx, portfolioID)
	if err != nil {
		var loadErr *eventstore.LoadError
		if errors.As(err, &loadErr) && loadErr.Kind == apperrors.CodeUnknownStream {
			return eventstore.NoStream, nil, domain.NotAvailable(portfolioID)
		}
		return eventstore.NoStream, nil, apperrors.Wrap(apperrors.CodePersistence, "load portfolio", err)
	}
	if len(state) == 0 {
		return eventstore.NoStream, nil, domain.NotAvailable(portfolioID)
	}
	return revision, state, nil
}

func (s Service) findPrice(ctx context.Context, symbol domain.Stock) (domain.Money, error) {
	if s.Prices == nil {
		return domain.Money{}, errors.New("price finder is required")
	}
	return s.Prices.FindPriceBySymbol(ctx, symbol)
}

func (s Service) envelope(portfolioID domain.PortfolioID) domain.Envelope {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	return domain.Envelope{PortfolioID: portfolioID, OccurredOn: now().UnixMilli()}
}

func (s Service) logger() *log.Logger {
	return logging.OrDiscard(s.Logger)
}
