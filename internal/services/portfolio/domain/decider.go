package domain

import (
	"fmt"

	apperrors "github.com/louisbranch/stockfolio/internal/platform/errors"
)

// Decide validates cmd against state and returns the events it produces.
// A rejection returns a *PortfolioError and no events.
func Decide(cmd Command, state Portfolio) ([]Event, error) {
	switch c := cmd.(type) {
	case CreatePortfolio:
		return decideCreate(c, state)
	case BuyStocks:
		return decideBuy(c, state)
	case SellStocks:
		return decideSell(c, state)
	case ClosePortfolio:
		return decideClose(c, state)
	default:
		return nil, apperrors.New(apperrors.CodeValidation, fmt.Sprintf("unsupported command %T", cmd))
	}
}

// Evolve returns state with evt appended. The input slice is never written.
func Evolve(state Portfolio, evt Event) Portfolio {
	next := make(Portfolio, len(state), len(state)+1)
	copy(next, state)
	return append(next, evt)
}

// Fold applies events to state in order.
func Fold(state Portfolio, events ...Event) Portfolio {
	next := make(Portfolio, 0, len(state)+len(events))
	next = append(next, state...)
	return append(next, events...)
}

func decideCreate(c CreatePortfolio, state Portfolio) ([]Event, error) {
	if state.IsAvailable() {
		return nil, AlreadyExists(c.PortfolioID)
	}
	return []Event{PortfolioCreated{
		Envelope: c.Envelope,
		UserID:   c.UserID,
		Money:    c.Amount,
	}}, nil
}

func decideBuy(c BuyStocks, state Portfolio) ([]Event, error) {
	if err := checkQuantity(c.PortfolioID, c.Quantity); err != nil {
		return nil, err
	}
	if err := checkOpen(c.PortfolioID, state); err != nil {
		return nil, err
	}
	required := c.Price.Times(c.Quantity)
	available := state.AvailableFunds()
	if available.LessThan(required) {
		return nil, InsufficientFunds(c.PortfolioID, required, available)
	}
	return []Event{StocksPurchased{
		Envelope: c.Envelope,
		Stock:    c.Stock,
		Quantity: c.Quantity,
		Price:    c.Price,
	}}, nil
}

func decideSell(c SellStocks, state Portfolio) ([]Event, error) {
	if err := checkQuantity(c.PortfolioID, c.Quantity); err != nil {
		return nil, err
	}
	if err := checkOpen(c.PortfolioID, state); err != nil {
		return nil, err
	}
	owned := state.OwnedStocks(c.Stock)
	if owned < c.Quantity {
		return nil, InsufficientStocks(c.PortfolioID, c.Stock, c.Quantity, owned)
	}
	return []Event{StocksSold{
		Envelope: c.Envelope,
		Stock:    c.Stock,
		Quantity: c.Quantity,
		Price:    c.Price,
	}}, nil
}

// checkQuantity rejects trades of zero or negative shares before they reach
// the stream.
func checkQuantity(id PortfolioID, quantity Quantity) error {
	if quantity > 0 {
		return nil
	}
	return apperrors.WithMetadata(apperrors.CodeValidation, "quantity must be positive", map[string]string{
		"portfolio_id": id.String(),
		"quantity":     fmt.Sprint(int64(quantity)),
	})
}

func decideClose(c ClosePortfolio, state Portfolio) ([]Event, error) {
	if err := checkOpen(c.PortfolioID, state); err != nil {
		return nil, err
	}
	owned := state.OwnedStockList()
	events := make([]Event, 0, len(owned)+1)
	for _, holding := range owned {
		price, ok := c.Prices[holding.Stock]
		if !ok {
			return nil, PriceNotAvailable(c.PortfolioID, holding.Stock)
		}
		events = append(events, StocksSold{
			Envelope: c.Envelope,
			Stock:    holding.Stock,
			Quantity: holding.Quantity,
			Price:    price,
		})
	}
	return append(events, PortfolioClosed{Envelope: c.Envelope}), nil
}

func checkOpen(id PortfolioID, state Portfolio) error {
	if !state.IsAvailable() {
		return NotAvailable(id)
	}
	if state.IsClosed() {
		return IsClosed(id)
	}
	return nil
}
