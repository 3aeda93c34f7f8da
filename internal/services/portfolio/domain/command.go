package domain

// Command is an intent addressed to one portfolio. The set of
// implementations is closed.
type Command interface {
	Header() Envelope
	isCommand()
}

// CreatePortfolio opens a new portfolio funded with Amount.
type CreatePortfolio struct {
	Envelope
	UserID UserID
	Amount Money
}

// BuyStocks purchases Quantity shares of Stock at Price each.
type BuyStocks struct {
	Envelope
	Stock    Stock
	Quantity Quantity
	Price    Money
}

// SellStocks sells Quantity shares of Stock at Price each.
type SellStocks struct {
	Envelope
	Stock    Stock
	Quantity Quantity
	Price    Money
}

// ClosePortfolio liquidates every owned stock at Prices and closes the
// portfolio.
type ClosePortfolio struct {
	Envelope
	Prices Prices
}

func (CreatePortfolio) isCommand() {}
func (BuyStocks) isCommand()       {}
func (SellStocks) isCommand()      {}
func (ClosePortfolio) isCommand()  {}
