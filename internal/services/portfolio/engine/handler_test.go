package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "github.com/louisbranch/stockfolio/internal/platform/errors"
	"github.com/louisbranch/stockfolio/internal/services/portfolio/domain"
	"github.com/louisbranch/stockfolio/internal/services/portfolio/eventstore"
	"github.com/louisbranch/stockfolio/internal/services/portfolio/storage/memory"
)

type saveCall struct {
	expected eventstore.Revision
	previous domain.Portfolio
	next     domain.Portfolio
}

// fakeStore serves state from a history and fails saves as scripted.
type fakeStore struct {
	history   domain.Portfolio
	loadErr   error
	saveErrs  []error
	loads     int
	saveCalls []saveCall
}

func (f *fakeStore) LoadState(_ context.Context, id domain.PortfolioID) (eventstore.Revision, domain.Portfolio, error) {
	f.loads++
	if f.loadErr != nil {
		return eventstore.NoStream, nil, f.loadErr
	}
	if len(f.history) == 0 {
		return eventstore.NoStream, nil, &eventstore.LoadError{Kind: apperrors.CodeUnknownStream, PortfolioID: id}
	}
	return eventstore.Revision(len(f.history) - 1), f.history, nil
}

func (f *fakeStore) SaveState(_ context.Context, id domain.PortfolioID, expected eventstore.Revision, previous, next domain.Portfolio) (domain.PortfolioID, error) {
	f.saveCalls = append(f.saveCalls, saveCall{expected: expected, previous: previous, next: next})
	if len(f.saveErrs) > 0 {
		err := f.saveErrs[0]
		f.saveErrs = f.saveErrs[1:]
		if err != nil {
			return "", err
		}
	}
	f.history = next
	return id, nil
}

func conflict(id domain.PortfolioID) error {
	return &eventstore.SaveError{Kind: apperrors.CodeConcurrentModification, PortfolioID: id}
}

func noWait(context.Context, time.Duration) error { return nil }

func env() domain.Envelope {
	return domain.Envelope{PortfolioID: "1", OccurredOn: 1700000000000}
}

func createCmd() domain.CreatePortfolio {
	return domain.CreatePortfolio{Envelope: env(), UserID: "rcardin", Amount: domain.MustMoney("100.0")}
}

func memoryHandler() (Handler, *memory.Store) {
	log := memory.New()
	return Handler{Store: eventstore.New(log), Wait: noWait}, log
}

func TestHandleCreatePortfolioOnEmptyStore(t *testing.T) {
	ctx := context.Background()
	handler, log := memoryHandler()

	id, err := handler.Handle(ctx, createCmd())
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if id != "1" {
		t.Fatalf("id = %s, want 1", id)
	}
	records, err := log.ReadStream(ctx, "portfolio-1")
	if err != nil {
		t.Fatalf("read stream: %v", err)
	}
	if len(records) != 1 || records[0].Type != eventstore.TypePortfolioCreated {
		t.Fatalf("unexpected stream: %+v", records)
	}
	evt, err := eventstore.Decode(records[0])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	created := evt.(domain.PortfolioCreated)
	if created.UserID != "rcardin" || !created.Money.Equal(domain.MustMoney("100")) {
		t.Fatalf("unexpected event: %+v", created)
	}
}

func TestHandleCreatePortfolioTwice(t *testing.T) {
	handler, _ := memoryHandler()
	if _, err := handler.Handle(context.Background(), createCmd()); err != nil {
		t.Fatalf("first create: %v", err)
	}
	_, err := handler.Handle(context.Background(), createCmd())
	if apperrors.CodeOf(err) != apperrors.CodePortfolioAlreadyExists {
		t.Fatalf("expected PORTFOLIO_ALREADY_EXISTS, got %v", err)
	}
	var pErr *domain.PortfolioError
	if !errors.As(err, &pErr) || pErr.PortfolioID != "1" {
		t.Fatalf("expected PortfolioError for 1, got %v", err)
	}
}

func TestHandleBuySellCloseScenarios(t *testing.T) {
	ctx := context.Background()
	handler, _ := memoryHandler()
	if _, err := handler.Handle(ctx, createCmd()); err != nil {
		t.Fatalf("create: %v", err)
	}

	_, err := handler.Handle(ctx, domain.BuyStocks{Envelope: env(), Stock: "AAPL", Quantity: 11, Price: domain.MustMoney("10.0")})
	var pErr *domain.PortfolioError
	if !errors.As(err, &pErr) || pErr.Code != apperrors.CodeInsufficientFunds {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if !pErr.RequestedFunds.Equal(domain.MustMoney("110")) || !pErr.OwnedFunds.Equal(domain.MustMoney("100")) {
		t.Fatalf("requested %s owned %s", pErr.RequestedFunds, pErr.OwnedFunds)
	}

	if _, err := handler.Handle(ctx, domain.BuyStocks{Envelope: env(), Stock: "AAPL", Quantity: 9, Price: domain.MustMoney("10.0")}); err != nil {
		t.Fatalf("buy: %v", err)
	}
	_, state, err := handler.Store.LoadState(ctx, "1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !state.AvailableFunds().Equal(domain.MustMoney("10")) {
		t.Fatalf("funds = %s, want 10", state.AvailableFunds())
	}

	_, err = handler.Handle(ctx, domain.SellStocks{Envelope: env(), Stock: "GOOG", Quantity: 10, Price: domain.MustMoney("12.0")})
	if !errors.As(err, &pErr) || pErr.Code != apperrors.CodeInsufficientStocks {
		t.Fatalf("expected insufficient stocks, got %v", err)
	}
	if pErr.RequestedQuantity != 10 || pErr.OwnedQuantity != 0 {
		t.Fatalf("requested %d owned %d", pErr.RequestedQuantity, pErr.OwnedQuantity)
	}

	if _, err := handler.Handle(ctx, domain.ClosePortfolio{Envelope: env(), Prices: domain.Prices{"AAPL": domain.MustMoney("5.0")}}); err != nil {
		t.Fatalf("close: %v", err)
	}
	revision, state, err := handler.Store.LoadState(ctx, "1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if revision != 3 {
		t.Fatalf("revision = %d, want 3", revision)
	}
	sold, ok := state[2].(domain.StocksSold)
	if !ok || sold.Stock != "AAPL" || sold.Quantity != 9 || !sold.Price.Equal(domain.MustMoney("5")) {
		t.Fatalf("unexpected liquidation event: %#v", state[2])
	}
	if !state.IsClosed() {
		t.Fatal("expected closed portfolio")
	}

	_, err = handler.Handle(ctx, domain.BuyStocks{Envelope: env(), Stock: "AAPL", Quantity: 1, Price: domain.MustMoney("1")})
	if apperrors.CodeOf(err) != apperrors.CodePortfolioIsClosed {
		t.Fatalf("expected closed rejection, got %v", err)
	}
}

func TestHandleRetriesConflictOnce(t *testing.T) {
	store := &fakeStore{
		history:  domain.Portfolio{domain.PortfolioCreated{Envelope: env(), UserID: "u", Money: domain.MustMoney("100")}},
		saveErrs: []error{conflict("1")},
	}
	var waits []time.Duration
	handler := Handler{
		Store:          store,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
		Wait: func(_ context.Context, d time.Duration) error {
			waits = append(waits, d)
			return nil
		},
	}

	cmd := domain.BuyStocks{Envelope: env(), Stock: "AAPL", Quantity: 1, Price: domain.MustMoney("10")}
	id, err := handler.Handle(context.Background(), cmd)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if id != "1" {
		t.Fatalf("id = %s", id)
	}
	if store.loads != 2 || len(store.saveCalls) != 2 {
		t.Fatalf("loads %d saves %d, want 2 and 2", store.loads, len(store.saveCalls))
	}
	if len(waits) != 1 {
		t.Fatalf("expected one backoff wait, got %d", len(waits))
	}
	if waits[0] <= 0 || waits[0] > 2*time.Millisecond {
		t.Fatalf("unexpected backoff %v", waits[0])
	}
	first := store.saveCalls[0].next[len(store.saveCalls[0].previous):]
	second := store.saveCalls[1].next[len(store.saveCalls[1].previous):]
	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("expected one new event per attempt")
	}
	if first[0].(domain.StocksPurchased).Quantity != second[0].(domain.StocksPurchased).Quantity {
		t.Fatal("retry decided a different event")
	}
}

func TestHandleRetriesExhausted(t *testing.T) {
	store := &fakeStore{
		history:  domain.Portfolio{domain.PortfolioCreated{Envelope: env(), UserID: "u", Money: domain.MustMoney("100")}},
		saveErrs: []error{conflict("1"), conflict("1"), conflict("1")},
	}
	handler := Handler{Store: store, MaxAttempts: 3, Wait: noWait}

	_, err := handler.Handle(context.Background(), domain.ClosePortfolio{Envelope: env()})
	if apperrors.CodeOf(err) != apperrors.CodeRetriesExhausted {
		t.Fatalf("expected RETRIES_EXHAUSTED, got %v", err)
	}
	var saveErr *eventstore.SaveError
	if !errors.As(err, &saveErr) || saveErr.Kind != apperrors.CodeConcurrentModification {
		t.Fatalf("expected last conflict in chain, got %v", err)
	}
	if len(store.saveCalls) != 3 {
		t.Fatalf("save calls = %d, want 3", len(store.saveCalls))
	}
}

func TestHandleLoadFailureIsPersistence(t *testing.T) {
	store := &fakeStore{loadErr: &eventstore.LoadError{Kind: apperrors.CodeStateLoading, PortfolioID: "1", Err: errors.New("io")}}
	handler := Handler{Store: store, Wait: noWait}

	_, err := handler.Handle(context.Background(), domain.BuyStocks{Envelope: env(), Stock: "A", Quantity: 1, Price: domain.MustMoney("1")})
	if apperrors.CodeOf(err) != apperrors.CodePersistence {
		t.Fatalf("expected PERSISTENCE, got %v", err)
	}
	if len(store.saveCalls) != 0 {
		t.Fatal("save must not run after a load failure")
	}
}

func TestHandleUnknownStreamOnlyCreates(t *testing.T) {
	handler := Handler{Store: &fakeStore{}, Wait: noWait}
	_, err := handler.Handle(context.Background(), domain.BuyStocks{Envelope: env(), Stock: "A", Quantity: 1, Price: domain.MustMoney("1")})
	if apperrors.CodeOf(err) != apperrors.CodePersistence {
		t.Fatalf("expected PERSISTENCE for buy on unknown stream, got %v", err)
	}

	store := &fakeStore{}
	handler.Store = store
	if _, err := handler.Handle(context.Background(), createCmd()); err != nil {
		t.Fatalf("create on unknown stream: %v", err)
	}
	if store.saveCalls[0].expected != eventstore.NoStream {
		t.Fatalf("expected NoStream precondition, got %d", store.saveCalls[0].expected)
	}
}

func TestHandleSaveFailureIsPersistence(t *testing.T) {
	store := &fakeStore{saveErrs: []error{&eventstore.SaveError{Kind: apperrors.CodeStateSaving, PortfolioID: "1"}}}
	handler := Handler{Store: store, Wait: noWait}
	_, err := handler.Handle(context.Background(), createCmd())
	if apperrors.CodeOf(err) != apperrors.CodePersistence {
		t.Fatalf("expected PERSISTENCE, got %v", err)
	}
	if len(store.saveCalls) != 1 {
		t.Fatalf("state saving must not be retried, got %d saves", len(store.saveCalls))
	}
}

func TestHandleCanceledWhileWaiting(t *testing.T) {
	store := &fakeStore{saveErrs: []error{conflict("1")}}
	ctx, cancel := context.WithCancel(context.Background())
	handler := Handler{Store: store, Wait: func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}}
	_, err := handler.Handle(ctx, createCmd())
	if apperrors.CodeOf(err) != apperrors.CodePersistence {
		t.Fatalf("expected PERSISTENCE, got %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled in chain, got %v", err)
	}
}

func TestHandleRequiresStore(t *testing.T) {
	if _, err := (Handler{}).Handle(context.Background(), createCmd()); !errors.Is(err, ErrStoreRequired) {
		t.Fatalf("expected ErrStoreRequired, got %v", err)
	}
}

func TestDefaultWaitHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := (Handler{}).wait(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
