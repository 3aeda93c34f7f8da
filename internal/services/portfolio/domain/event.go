package domain

// Envelope carries the fields shared by every command and event.
type Envelope struct {
	PortfolioID PortfolioID `json:"portfolioId"`
	// OccurredOn is the instant in Unix milliseconds.
	OccurredOn int64 `json:"occurredOn"`
}

// Header returns the shared fields.
func (e Envelope) Header() Envelope { return e }

// Event is one fact appended to a portfolio stream. The set of
// implementations is closed.
type Event interface {
	Header() Envelope
	isEvent()
}

// PortfolioCreated opens a stream. It is only valid as the first event.
type PortfolioCreated struct {
	Envelope
	UserID UserID `json:"userId"`
	Money  Money  `json:"money"`
}

// StocksPurchased records a buy at a unit price.
type StocksPurchased struct {
	Envelope
	Stock    Stock    `json:"stock"`
	Quantity Quantity `json:"quantity"`
	Price    Money    `json:"price"`
}

// StocksSold records a sale at a unit price.
type StocksSold struct {
	Envelope
	Stock    Stock    `json:"stock"`
	Quantity Quantity `json:"quantity"`
	Price    Money    `json:"price"`
}

// PortfolioClosed terminates a stream.
type PortfolioClosed struct {
	Envelope
}

func (PortfolioCreated) isEvent() {}
func (StocksPurchased) isEvent()  {}
func (StocksSold) isEvent()       {}
func (PortfolioClosed) isEvent()  {}
