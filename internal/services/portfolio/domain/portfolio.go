package domain

// Portfolio is the ordered event history of one stream. It is the only
// representation of state; every query below folds it from the start.
type Portfolio []Event

// OwnedStock is the net quantity held for one stock.
type OwnedStock struct {
	Stock    Stock
	Quantity Quantity
}

// ID returns the id carried by the first event, or "" for an empty history.
func (p Portfolio) ID() PortfolioID {
	if len(p) == 0 {
		return ""
	}
	return p[0].Header().PortfolioID
}

// IsAvailable reports whether the history contains at least one event.
func (p Portfolio) IsAvailable() bool {
	return len(p) > 0
}

// IsClosed reports whether the most recent event closed the portfolio.
func (p Portfolio) IsClosed() bool {
	if len(p) == 0 {
		return false
	}
	_, closed := p[len(p)-1].(PortfolioClosed)
	return closed
}

// AvailableFunds folds the cash balance. Closing resets it to zero.
func (p Portfolio) AvailableFunds() Money {
	var funds Money
	for _, evt := range p {
		switch e := evt.(type) {
		case PortfolioCreated:
			funds = e.Money
		case StocksPurchased:
			funds = funds.Sub(e.Price.Times(e.Quantity))
		case StocksSold:
			funds = funds.Add(e.Price.Times(e.Quantity))
		case PortfolioClosed:
			funds = Money{}
		}
	}
	return funds
}

// OwnedStocks folds the net quantity held for stock. Closing resets it to
// zero.
func (p Portfolio) OwnedStocks(stock Stock) Quantity {
	var owned Quantity
	for _, evt := range p {
		switch e := evt.(type) {
		case PortfolioCreated, PortfolioClosed:
			owned = 0
		case StocksPurchased:
			if e.Stock == stock {
				owned = owned.Add(e.Quantity)
			}
		case StocksSold:
			if e.Stock == stock {
				owned = owned.Sub(e.Quantity)
			}
		}
	}
	return owned
}

// OwnedStockList returns every stock with a positive net quantity, in the
// order each stock was first purchased.
func (p Portfolio) OwnedStockList() []OwnedStock {
	var order []Stock
	tally := make(map[Stock]Quantity)
	for _, evt := range p {
		switch e := evt.(type) {
		case StocksPurchased:
			if _, seen := tally[e.Stock]; !seen {
				order = append(order, e.Stock)
			}
			tally[e.Stock] = tally[e.Stock].Add(e.Quantity)
		case StocksSold:
			if _, seen := tally[e.Stock]; seen {
				tally[e.Stock] = tally[e.Stock].Sub(e.Quantity)
			}
		}
	}

	owned := make([]OwnedStock, 0, len(order))
	for _, stock := range order {
		if quantity := tally[stock]; quantity > 0 {
			owned = append(owned, OwnedStock{Stock: stock, Quantity: quantity})
		}
	}
	return owned
}
