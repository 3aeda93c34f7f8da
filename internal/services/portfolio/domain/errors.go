package domain

import (
	"fmt"

	apperrors "github.com/louisbranch/stockfolio/internal/platform/errors"
)

// PortfolioError is a business rejection: the command is well formed but
// cannot apply to the current state. Code selects the variant; only the
// fields relevant to that variant are set.
type PortfolioError struct {
	Code        apperrors.Code
	PortfolioID PortfolioID
	Stock       Stock

	// Set for CodeInsufficientFunds.
	RequestedFunds Money
	OwnedFunds     Money

	// Set for CodeInsufficientStocks.
	RequestedQuantity Quantity
	OwnedQuantity     Quantity
}

// Error describes the rejection.
func (e *PortfolioError) Error() string {
	switch e.Code {
	case apperrors.CodePortfolioAlreadyExists:
		return fmt.Sprintf("portfolio %s already exists", e.PortfolioID)
	case apperrors.CodePortfolioNotAvailable:
		return fmt.Sprintf("portfolio %s is not available", e.PortfolioID)
	case apperrors.CodePortfolioIsClosed:
		return fmt.Sprintf("portfolio %s is closed", e.PortfolioID)
	case apperrors.CodeInsufficientFunds:
		return fmt.Sprintf("portfolio %s has insufficient funds: requested %s, owned %s",
			e.PortfolioID, e.RequestedFunds, e.OwnedFunds)
	case apperrors.CodeInsufficientStocks:
		return fmt.Sprintf("portfolio %s has insufficient %s stocks: requested %d, owned %d",
			e.PortfolioID, e.Stock, e.RequestedQuantity, e.OwnedQuantity)
	case apperrors.CodePriceNotAvailable:
		return fmt.Sprintf("price of %s is not available for portfolio %s", e.Stock, e.PortfolioID)
	default:
		return fmt.Sprintf("portfolio %s: %s", e.PortfolioID, e.Code)
	}
}

// ErrorCode returns the variant code.
func (e *PortfolioError) ErrorCode() apperrors.Code { return e.Code }

// Is matches another PortfolioError or a platform error with the same code,
// so callers can test with errors.Is(err, apperrors.New(code, "")).
func (e *PortfolioError) Is(target error) bool {
	switch t := target.(type) {
	case *PortfolioError:
		return e.Code == t.Code
	case *apperrors.Error:
		return e.Code == t.Code
	default:
		return false
	}
}

// Metadata flattens the variant fields for transports.
func (e *PortfolioError) Metadata() map[string]string {
	metadata := map[string]string{"portfolio_id": e.PortfolioID.String()}
	switch e.Code {
	case apperrors.CodeInsufficientFunds:
		metadata["requested"] = e.RequestedFunds.String()
		metadata["owned"] = e.OwnedFunds.String()
	case apperrors.CodeInsufficientStocks:
		metadata["stock"] = e.Stock.String()
		metadata["requested"] = fmt.Sprint(int64(e.RequestedQuantity))
		metadata["owned"] = fmt.Sprint(int64(e.OwnedQuantity))
	case apperrors.CodePriceNotAvailable:
		metadata["stock"] = e.Stock.String()
	}
	return metadata
}

// AlreadyExists rejects creating a portfolio whose stream already has events.
func AlreadyExists(id PortfolioID) *PortfolioError {
	return &PortfolioError{Code: apperrors.CodePortfolioAlreadyExists, PortfolioID: id}
}

// NotAvailable rejects commands against a portfolio that was never created.
func NotAvailable(id PortfolioID) *PortfolioError {
	return &PortfolioError{Code: apperrors.CodePortfolioNotAvailable, PortfolioID: id}
}

// IsClosed rejects commands against a closed portfolio.
func IsClosed(id PortfolioID) *PortfolioError {
	return &PortfolioError{Code: apperrors.CodePortfolioIsClosed, PortfolioID: id}
}

// InsufficientFunds rejects a purchase costing more than the available funds.
func InsufficientFunds(id PortfolioID, requested, owned Money) *PortfolioError {
	return &PortfolioError{
		Code:           apperrors.CodeInsufficientFunds,
		PortfolioID:    id,
		RequestedFunds: requested,
		OwnedFunds:     owned,
	}
}

// InsufficientStocks rejects selling more shares than owned.
func InsufficientStocks(id PortfolioID, stock Stock, requested, owned Quantity) *PortfolioError {
	return &PortfolioError{
		Code:              apperrors.CodeInsufficientStocks,
		PortfolioID:       id,
		Stock:             stock,
		RequestedQuantity: requested,
		OwnedQuantity:     owned,
	}
}

// PriceNotAvailable rejects a close when an owned stock has no price.
func PriceNotAvailable(id PortfolioID, stock Stock) *PortfolioError {
	return &PortfolioError{Code: apperrors.CodePriceNotAvailable, PortfolioID: id, Stock: stock}
}
