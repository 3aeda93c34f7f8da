// Package stock looks up and records unit prices of stocks.
package stock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/louisbranch/stockfolio/internal/platform/errors"
	"github.com/louisbranch/stockfolio/internal/services/portfolio/domain"
	"github.com/louisbranch/stockfolio/internal/services/portfolio/storage"
)

// ErrPriceNotFound indicates no price is known for a stock.
var ErrPriceNotFound = apperrors.New(apperrors.CodePriceNotAvailable, "stock price not found")

// PriceFinder returns the current unit price of a stock.
type PriceFinder interface {
	// FindPriceBySymbol returns ErrPriceNotFound when the stock has no price.
	FindPriceBySymbol(ctx context.Context, symbol domain.Stock) (domain.Money, error)
}

// Catalog reads and writes prices in a storage.PriceStore.
type Catalog struct {
	Store storage.PriceStore
	Now   func() time.Time
}

var _ PriceFinder = Catalog{}

// FindPriceBySymbol returns the stored price of symbol.
func (c Catalog) FindPriceBySymbol(ctx context.Context, symbol domain.Stock) (domain.Money, error) {
	if c.Store == nil {
		return domain.Money{}, fmt.Errorf("price store is not configured")
	}
	record, err := c.Store.GetPrice(ctx, symbol)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domain.Money{}, fmt.Errorf("%s: %w", symbol, ErrPriceNotFound)
		}
		return domain.Money{}, fmt.Errorf("find price %s: %w", symbol, err)
	}
	return record.Price, nil
}

// SetPrice records price as the current price of symbol.
func (c Catalog) SetPrice(ctx context.Context, symbol domain.Stock, price domain.Money) error {
	if c.Store == nil {
		return fmt.Errorf("price store is not configured")
	}
	if strings.TrimSpace(symbol.String()) == "" {
		return apperrors.New(apperrors.CodeValidation, "Field 'stock' is required")
	}
	if !price.IsPositive() {
		return apperrors.New(apperrors.CodeValidation, "Field 'price' must be positive")
	}
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	return c.Store.PutPrice(ctx, storage.PriceRecord{
		Stock:     symbol,
		Price:     price,
		UpdatedAt: now().UTC(),
	})
}
