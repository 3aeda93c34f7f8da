package domain

import (
	"errors"
	"math"
	"testing"

	apperrors "github.com/louisbranch/stockfolio/internal/platform/errors"
)

const testID PortfolioID = "1"

func env() Envelope {
	return Envelope{PortfolioID: testID, OccurredOn: 1700000000000}
}

func created(amount string) Portfolio {
	return Portfolio{PortfolioCreated{Envelope: env(), UserID: "u", Money: MustMoney(amount)}}
}

func requireCode(t *testing.T, err error, code apperrors.Code) *PortfolioError {
	t.Helper()
	var pErr *PortfolioError
	if !errors.As(err, &pErr) {
		t.Fatalf("expected *PortfolioError, got %T (%v)", err, err)
	}
	if pErr.Code != code {
		t.Fatalf("code = %s, want %s", pErr.Code, code)
	}
	return pErr
}

func TestDecideCreatePortfolio(t *testing.T) {
	events, err := Decide(CreatePortfolio{Envelope: env(), UserID: "u", Amount: MustMoney("100")}, nil)
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	evt, ok := events[0].(PortfolioCreated)
	if !ok {
		t.Fatalf("expected PortfolioCreated, got %T", events[0])
	}
	if evt.PortfolioID != testID || evt.UserID != "u" || !evt.Money.Equal(MustMoney("100")) {
		t.Fatalf("unexpected event: %+v", evt)
	}
	if evt.OccurredOn != 1700000000000 {
		t.Fatalf("occurredOn = %d", evt.OccurredOn)
	}
}

func TestDecideCreatePortfolioAlreadyExists(t *testing.T) {
	_, err := Decide(CreatePortfolio{Envelope: env(), UserID: "u", Amount: MustMoney("100")}, created("100"))
	requireCode(t, err, apperrors.CodePortfolioAlreadyExists)
}

func TestDecideBuyStocks(t *testing.T) {
	events, err := Decide(BuyStocks{Envelope: env(), Stock: "S", Quantity: 10, Price: MustMoney("5")}, created("100"))
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	state := Fold(created("100"), events...)
	if got := state.AvailableFunds(); !got.Equal(MustMoney("50")) {
		t.Fatalf("funds = %s, want 50", got)
	}
	if got := state.OwnedStocks("S"); got != 10 {
		t.Fatalf("owned = %d, want 10", got)
	}
}

func TestDecideBuyStocksInsufficientFunds(t *testing.T) {
	state := Fold(created("100"), StocksPurchased{Envelope: env(), Stock: "S", Quantity: 10, Price: MustMoney("5")})
	_, err := Decide(BuyStocks{Envelope: env(), Stock: "S", Quantity: 11, Price: MustMoney("5")}, state)
	pErr := requireCode(t, err, apperrors.CodeInsufficientFunds)
	if !pErr.RequestedFunds.Equal(MustMoney("55")) || !pErr.OwnedFunds.Equal(MustMoney("50")) {
		t.Fatalf("requested %s owned %s", pErr.RequestedFunds, pErr.OwnedFunds)
	}
}

func TestDecideBuyStocksExactFunds(t *testing.T) {
	_, err := Decide(BuyStocks{Envelope: env(), Stock: "S", Quantity: 20, Price: MustMoney("5")}, created("100"))
	if err != nil {
		t.Fatalf("buying with exact funds: %v", err)
	}
}

func TestDecideRejectsMissingPortfolio(t *testing.T) {
	commands := map[string]Command{
		"buy":   BuyStocks{Envelope: env(), Stock: "S", Quantity: 1, Price: MustMoney("1")},
		"sell":  SellStocks{Envelope: env(), Stock: "S", Quantity: 1, Price: MustMoney("1")},
		"close": ClosePortfolio{Envelope: env()},
	}
	for name, cmd := range commands {
		t.Run(name, func(t *testing.T) {
			_, err := Decide(cmd, nil)
			requireCode(t, err, apperrors.CodePortfolioNotAvailable)
		})
	}
}

func TestDecideRejectsClosedPortfolio(t *testing.T) {
	state := Fold(created("100"), PortfolioClosed{Envelope: env()})
	commands := map[string]Command{
		"buy":   BuyStocks{Envelope: env(), Stock: "S", Quantity: 1, Price: MustMoney("1")},
		"sell":  SellStocks{Envelope: env(), Stock: "S", Quantity: 1, Price: MustMoney("1")},
		"close": ClosePortfolio{Envelope: env()},
	}
	for name, cmd := range commands {
		t.Run(name, func(t *testing.T) {
			_, err := Decide(cmd, state)
			requireCode(t, err, apperrors.CodePortfolioIsClosed)
		})
	}
	_, err := Decide(CreatePortfolio{Envelope: env(), UserID: "u", Amount: MustMoney("1")}, state)
	requireCode(t, err, apperrors.CodePortfolioAlreadyExists)
}

func TestDecideRejectsNonPositiveQuantity(t *testing.T) {
	state := Fold(created("100"), StocksPurchased{Envelope: env(), Stock: "S", Quantity: 3, Price: MustMoney("5")})
	for _, quantity := range []Quantity{0, -1, math.MinInt64} {
		commands := map[string]Command{
			"buy":  BuyStocks{Envelope: env(), Stock: "S", Quantity: quantity, Price: MustMoney("1")},
			"sell": SellStocks{Envelope: env(), Stock: "S", Quantity: quantity, Price: MustMoney("1")},
		}
		for name, cmd := range commands {
			events, err := Decide(cmd, state)
			if apperrors.CodeOf(err) != apperrors.CodeValidation {
				t.Fatalf("%s %d: expected VALIDATION, got %v", name, quantity, err)
			}
			if len(events) != 0 {
				t.Fatalf("%s %d: expected no events, got %d", name, quantity, len(events))
			}
		}
	}
}

func TestDecideSellStocksInsufficient(t *testing.T) {
	state := Fold(created("100"), StocksPurchased{Envelope: env(), Stock: "S", Quantity: 3, Price: MustMoney("5")})
	_, err := Decide(SellStocks{Envelope: env(), Stock: "S", Quantity: 4, Price: MustMoney("5")}, state)
	pErr := requireCode(t, err, apperrors.CodeInsufficientStocks)
	if pErr.Stock != "S" || pErr.RequestedQuantity != 4 || pErr.OwnedQuantity != 3 {
		t.Fatalf("unexpected error fields: %+v", pErr)
	}

	events, err := Decide(SellStocks{Envelope: env(), Stock: "S", Quantity: 3, Price: MustMoney("6")}, state)
	if err != nil {
		t.Fatalf("selling all: %v", err)
	}
	next := Fold(state, events...)
	if got := next.OwnedStocks("S"); got != 0 {
		t.Fatalf("owned = %d, want 0", got)
	}
	if got := next.AvailableFunds(); !got.Equal(MustMoney("103")) {
		t.Fatalf("funds = %s, want 103", got)
	}
}

func TestDecideClosePortfolioLiquidates(t *testing.T) {
	state := Fold(created("100"),
		StocksPurchased{Envelope: env(), Stock: "A", Quantity: 2, Price: MustMoney("10")},
		StocksPurchased{Envelope: env(), Stock: "B", Quantity: 3, Price: MustMoney("5")},
	)
	events, err := Decide(ClosePortfolio{Envelope: env(), Prices: Prices{"A": MustMoney("12"), "B": MustMoney("4")}}, state)
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	first, ok := events[0].(StocksSold)
	if !ok || first.Stock != "A" || first.Quantity != 2 || !first.Price.Equal(MustMoney("12")) {
		t.Fatalf("unexpected first event: %#v", events[0])
	}
	second, ok := events[1].(StocksSold)
	if !ok || second.Stock != "B" || second.Quantity != 3 || !second.Price.Equal(MustMoney("4")) {
		t.Fatalf("unexpected second event: %#v", events[1])
	}
	if _, ok := events[2].(PortfolioClosed); !ok {
		t.Fatalf("expected PortfolioClosed last, got %T", events[2])
	}

	next := Fold(state, events...)
	if !next.IsClosed() {
		t.Fatal("expected closed portfolio")
	}
	if len(next.OwnedStockList()) != 0 {
		t.Fatalf("expected no owned stocks, got %+v", next.OwnedStockList())
	}
	if !next.AvailableFunds().IsZero() {
		t.Fatalf("funds after close = %s, want 0", next.AvailableFunds())
	}
}

func TestDecideClosePortfolioMissingPrice(t *testing.T) {
	state := Fold(created("100"),
		StocksPurchased{Envelope: env(), Stock: "A", Quantity: 2, Price: MustMoney("10")},
		StocksPurchased{Envelope: env(), Stock: "B", Quantity: 3, Price: MustMoney("5")},
	)
	events, err := Decide(ClosePortfolio{Envelope: env(), Prices: Prices{"A": MustMoney("12")}}, state)
	pErr := requireCode(t, err, apperrors.CodePriceNotAvailable)
	if pErr.Stock != "B" {
		t.Fatalf("stock = %s, want B", pErr.Stock)
	}
	if events != nil {
		t.Fatalf("expected no events, got %d", len(events))
	}
}

func TestDecideCloseEmptyHoldings(t *testing.T) {
	events, err := Decide(ClosePortfolio{Envelope: env()}, created("100"))
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected only PortfolioClosed, got %d events", len(events))
	}
	if _, ok := events[0].(PortfolioClosed); !ok {
		t.Fatalf("expected PortfolioClosed, got %T", events[0])
	}
}

func TestDecideSkipsFullySoldStocksOnClose(t *testing.T) {
	state := Fold(created("100"),
		StocksPurchased{Envelope: env(), Stock: "A", Quantity: 2, Price: MustMoney("10")},
		StocksSold{Envelope: env(), Stock: "A", Quantity: 2, Price: MustMoney("10")},
	)
	events, err := Decide(ClosePortfolio{Envelope: env()}, state)
	if err != nil {
		t.Fatalf("closing with no remaining holdings: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected only PortfolioClosed, got %d events", len(events))
	}
}

func TestEvolveDoesNotMutateInput(t *testing.T) {
	base := make(Portfolio, 1, 4)
	base[0] = created("1")[0]
	first := Evolve(base, StocksPurchased{Envelope: env(), Stock: "A", Quantity: 1, Price: MustMoney("1")})
	second := Evolve(base, PortfolioClosed{Envelope: env()})
	if len(base) != 1 {
		t.Fatalf("base length changed to %d", len(base))
	}
	if _, ok := first[1].(StocksPurchased); !ok {
		t.Fatalf("first history was overwritten by %T", first[1])
	}
	if _, ok := second[1].(PortfolioClosed); !ok {
		t.Fatalf("second history = %T", second[1])
	}
}

func TestFoldIsDeterministic(t *testing.T) {
	events := []Event{
		created("100")[0],
		StocksPurchased{Envelope: env(), Stock: "A", Quantity: 4, Price: MustMoney("2.5")},
		StocksSold{Envelope: env(), Stock: "A", Quantity: 1, Price: MustMoney("3")},
	}
	a := Fold(nil, events...)
	b := Fold(nil, events...)
	if !a.AvailableFunds().Equal(b.AvailableFunds()) {
		t.Fatalf("funds differ: %s vs %s", a.AvailableFunds(), b.AvailableFunds())
	}
	if a.OwnedStocks("A") != b.OwnedStocks("A") {
		t.Fatalf("owned differ")
	}
	if got := a.AvailableFunds(); !got.Equal(MustMoney("93")) {
		t.Fatalf("funds = %s, want 93", got)
	}
}

func TestPortfolioErrorMatchesPlatformCode(t *testing.T) {
	err := error(InsufficientFunds(testID, MustMoney("2"), MustMoney("1")))
	if !errors.Is(err, apperrors.New(apperrors.CodeInsufficientFunds, "")) {
		t.Fatal("expected errors.Is to match by code")
	}
	if errors.Is(err, apperrors.New(apperrors.CodeInsufficientStocks, "")) {
		t.Fatal("expected mismatched code not to match")
	}
	if got := apperrors.CodeOf(err); got != apperrors.CodeInsufficientFunds {
		t.Fatalf("CodeOf = %s", got)
	}
}
