package eventstore

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/louisbranch/stockfolio/internal/services/portfolio/domain"
	"github.com/louisbranch/stockfolio/internal/services/portfolio/storage"
)

// Event type tags written to the log.
const (
	TypePortfolioCreated = "portfolio-created"
	TypeStocksPurchased  = "stocks-purchased"
	TypeStocksSold       = "stocks-sold"
	TypePortfolioClosed  = "portfolio-closed"
)

// SchemaVersion is the payload version of every tag above.
const SchemaVersion = 1

// ErrUndecodableRecord marks a stored record that does not map to a known
// event: unknown tag, unsupported schema version, or malformed payload.
var ErrUndecodableRecord = errors.New("undecodable record")

// TypeOf returns the log tag of evt.
func TypeOf(evt domain.Event) (string, error) {
	switch evt.(type) {
	case domain.PortfolioCreated:
		return TypePortfolioCreated, nil
	case domain.StocksPurchased:
		return TypeStocksPurchased, nil
	case domain.StocksSold:
		return TypeStocksSold, nil
	case domain.PortfolioClosed:
		return TypePortfolioClosed, nil
	default:
		return "", fmt.Errorf("unsupported event %T", evt)
	}
}

// Encode returns the tag and JSON payload of evt.
func Encode(evt domain.Event) (string, []byte, error) {
	eventType, err := TypeOf(evt)
	if err != nil {
		return "", nil, err
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return "", nil, fmt.Errorf("marshal %s: %w", eventType, err)
	}
	return eventType, payload, nil
}

// Decode maps a stored record back to its event.
func Decode(record storage.Record) (domain.Event, error) {
	if record.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("%w: %s at position %d has schema version %d",
			ErrUndecodableRecord, record.Type, record.Position, record.SchemaVersion)
	}
	switch record.Type {
	case TypePortfolioCreated:
		return decodeAs[domain.PortfolioCreated](record)
	case TypeStocksPurchased:
		return decodeAs[domain.StocksPurchased](record)
	case TypeStocksSold:
		return decodeAs[domain.StocksSold](record)
	case TypePortfolioClosed:
		return decodeAs[domain.PortfolioClosed](record)
	default:
		return nil, fmt.Errorf("%w: unknown type %q at position %d", ErrUndecodableRecord, record.Type, record.Position)
	}
}

func decodeAs[T domain.Event](record storage.Record) (domain.Event, error) {
	var evt T
	if err := json.Unmarshal(record.Data, &evt); err != nil {
		return nil, fmt.Errorf("%w: %s at position %d: %v", ErrUndecodableRecord, record.Type, record.Position, err)
	}
	return evt, nil
}
