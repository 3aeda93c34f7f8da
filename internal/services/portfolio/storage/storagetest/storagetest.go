// Package storagetest holds contract tests shared by every storage backend.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/louisbranch/stockfolio/internal/services/portfolio/domain"
	"github.com/louisbranch/stockfolio/internal/services/portfolio/storage"
)

func data(id string) storage.EventData {
	return storage.EventData{
		ID:            id,
		Type:          "stocks-purchased",
		SchemaVersion: 1,
		RecordedAt:    time.UnixMilli(1700000000000).UTC(),
		Data:          []byte(`{"portfolioId":"1"}`),
	}
}

// EventLog runs the stream log and feed contract against a fresh log per
// subtest.
func EventLog(t *testing.T, open func(t *testing.T) storage.EventLog) {
	t.Helper()
	ctx := context.Background()

	t.Run("missing stream", func(t *testing.T) {
		log := open(t)
		_, err := log.ReadStream(ctx, "portfolio-none")
		if !errors.Is(err, storage.ErrStreamNotFound) {
			t.Fatalf("expected ErrStreamNotFound, got %v", err)
		}
	})

	t.Run("append and read", func(t *testing.T) {
		log := open(t)
		last, err := log.AppendToStream(ctx, "portfolio-1", storage.NoStream, []storage.EventData{data("a"), data("b")})
		if err != nil {
			t.Fatalf("append: %v", err)
		}
		if last != 1 {
			t.Fatalf("last position = %d, want 1", last)
		}
		last, err = log.AppendToStream(ctx, "portfolio-1", storage.ExpectedRevision(1), []storage.EventData{data("c")})
		if err != nil {
			t.Fatalf("second append: %v", err)
		}
		if last != 2 {
			t.Fatalf("last position = %d, want 2", last)
		}

		records, err := log.ReadStream(ctx, "portfolio-1")
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if len(records) != 3 {
			t.Fatalf("expected 3 records, got %d", len(records))
		}
		for i, record := range records {
			if record.Position != int64(i) {
				t.Fatalf("record %d position = %d", i, record.Position)
			}
			if record.Stream != "portfolio-1" {
				t.Fatalf("record %d stream = %q", i, record.Stream)
			}
		}
		got := records[2]
		if got.ID != "c" || got.Type != "stocks-purchased" || got.SchemaVersion != 1 {
			t.Fatalf("unexpected record: %+v", got)
		}
		if !got.RecordedAt.Equal(time.UnixMilli(1700000000000)) {
			t.Fatalf("recorded at = %v", got.RecordedAt)
		}
		if string(got.Data) != `{"portfolioId":"1"}` {
			t.Fatalf("data = %s", got.Data)
		}
	})

	t.Run("wrong expected revision", func(t *testing.T) {
		log := open(t)
		if _, err := log.AppendToStream(ctx, "portfolio-1", storage.NoStream, []storage.EventData{data("a")}); err != nil {
			t.Fatalf("append: %v", err)
		}
		_, err := log.AppendToStream(ctx, "portfolio-1", storage.NoStream, []storage.EventData{data("b")})
		if !errors.Is(err, storage.ErrWrongExpectedRevision) {
			t.Fatalf("expected ErrWrongExpectedRevision for no-stream, got %v", err)
		}
		_, err = log.AppendToStream(ctx, "portfolio-1", storage.ExpectedRevision(3), []storage.EventData{data("b")})
		if !errors.Is(err, storage.ErrWrongExpectedRevision) {
			t.Fatalf("expected ErrWrongExpectedRevision for stale revision, got %v", err)
		}
		_, err = log.AppendToStream(ctx, "portfolio-2", storage.ExpectedRevision(0), []storage.EventData{data("b")})
		if !errors.Is(err, storage.ErrWrongExpectedRevision) {
			t.Fatalf("expected ErrWrongExpectedRevision for missing stream, got %v", err)
		}
		records, err := log.ReadStream(ctx, "portfolio-1")
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if len(records) != 1 {
			t.Fatalf("rejected append changed stream: %d records", len(records))
		}
	})

	t.Run("concurrent appends", func(t *testing.T) {
		log := open(t)
		const writers = 8
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			successes int
		)
		for i := range writers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := log.AppendToStream(ctx, "portfolio-race", storage.NoStream, []storage.EventData{data(fmt.Sprintf("w%d", i))})
				if err == nil {
					mu.Lock()
					successes++
					mu.Unlock()
					return
				}
				if !errors.Is(err, storage.ErrWrongExpectedRevision) {
					t.Errorf("unexpected append error: %v", err)
				}
			}()
		}
		wg.Wait()
		if successes != 1 {
			t.Fatalf("expected exactly one successful append, got %d", successes)
		}
	})

	t.Run("feed", func(t *testing.T) {
		log := open(t)
		if _, err := log.AppendToStream(ctx, "portfolio-1", storage.NoStream, []storage.EventData{data("a")}); err != nil {
			t.Fatalf("append: %v", err)
		}
		if _, err := log.AppendToStream(ctx, "portfolio-2", storage.NoStream, []storage.EventData{data("b"), data("c")}); err != nil {
			t.Fatalf("append: %v", err)
		}

		records, err := log.ReadAll(ctx, 0, 10)
		if err != nil {
			t.Fatalf("read all: %v", err)
		}
		if len(records) != 3 {
			t.Fatalf("expected 3 records, got %d", len(records))
		}
		for i := 1; i < len(records); i++ {
			if records[i].GlobalPosition <= records[i-1].GlobalPosition {
				t.Fatalf("global positions not increasing: %d then %d", records[i-1].GlobalPosition, records[i].GlobalPosition)
			}
		}
		if records[0].ID != "a" || records[2].ID != "c" || records[2].Stream != "portfolio-2" {
			t.Fatalf("unexpected feed order: %+v", records)
		}

		page, err := log.ReadAll(ctx, records[0].GlobalPosition, 1)
		if err != nil {
			t.Fatalf("read page: %v", err)
		}
		if len(page) != 1 || page[0].ID != "b" {
			t.Fatalf("unexpected page: %+v", page)
		}
		rest, err := log.ReadAll(ctx, records[2].GlobalPosition, 10)
		if err != nil {
			t.Fatalf("read tail: %v", err)
		}
		if len(rest) != 0 {
			t.Fatalf("expected empty tail, got %d", len(rest))
		}
	})
}

// ProjectionStore runs the read-model contract against a fresh store per
// subtest.
func ProjectionStore(t *testing.T, open func(t *testing.T) storage.ProjectionStore) {
	t.Helper()
	ctx := context.Background()
	created := time.UnixMilli(1700000000000).UTC()

	t.Run("portfolios", func(t *testing.T) {
		store := open(t)
		first := storage.PortfolioRecord{ID: "p1", UserID: "u1", Money: domain.MustMoney("100.25"), CreatedAt: created, UpdatedAt: created}
		second := storage.PortfolioRecord{ID: "p2", UserID: "u1", Money: domain.MustMoney("5"), CreatedAt: created.Add(time.Second), UpdatedAt: created.Add(time.Second)}
		other := storage.PortfolioRecord{ID: "p3", UserID: "u2", Money: domain.MustMoney("1"), CreatedAt: created, UpdatedAt: created}
		for _, record := range []storage.PortfolioRecord{second, first, other} {
			if err := store.PutPortfolio(ctx, record); err != nil {
				t.Fatalf("put %s: %v", record.ID, err)
			}
		}
		if err := store.PutPortfolio(ctx, first); !errors.Is(err, storage.ErrAlreadyExists) {
			t.Fatalf("expected ErrAlreadyExists, got %v", err)
		}

		got, err := store.GetPortfolio(ctx, "p1")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.UserID != "u1" || !got.Money.Equal(domain.MustMoney("100.25")) || !got.CreatedAt.Equal(created) {
			t.Fatalf("unexpected record: %+v", got)
		}
		if _, err := store.GetPortfolio(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}

		list, err := store.ListPortfolios(ctx, "u1")
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(list) != 2 || list[0].ID != "p1" || list[1].ID != "p2" {
			t.Fatalf("unexpected list: %+v", list)
		}
	})

	t.Run("prices", func(t *testing.T) {
		store := open(t)
		if _, err := store.GetPrice(ctx, "ACME"); !errors.Is(err, storage.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if err := store.PutPrice(ctx, storage.PriceRecord{Stock: "ACME", Price: domain.MustMoney("10"), UpdatedAt: created}); err != nil {
			t.Fatalf("put price: %v", err)
		}
		if err := store.PutPrice(ctx, storage.PriceRecord{Stock: "ACME", Price: domain.MustMoney("12.5"), UpdatedAt: created.Add(time.Minute)}); err != nil {
			t.Fatalf("replace price: %v", err)
		}
		got, err := store.GetPrice(ctx, "ACME")
		if err != nil {
			t.Fatalf("get price: %v", err)
		}
		if !got.Price.Equal(domain.MustMoney("12.5")) || !got.UpdatedAt.Equal(created.Add(time.Minute)) {
			t.Fatalf("unexpected price: %+v", got)
		}
	})

	t.Run("checkpoints", func(t *testing.T) {
		store := open(t)
		position, err := store.GetCheckpoint(ctx, "portfolios")
		if err != nil {
			t.Fatalf("get checkpoint: %v", err)
		}
		if position != 0 {
			t.Fatalf("initial checkpoint = %d", position)
		}
		if err := store.SaveCheckpoint(ctx, "portfolios", 7); err != nil {
			t.Fatalf("save: %v", err)
		}
		if err := store.SaveCheckpoint(ctx, "portfolios", 9); err != nil {
			t.Fatalf("save again: %v", err)
		}
		position, err = store.GetCheckpoint(ctx, "portfolios")
		if err != nil {
			t.Fatalf("get checkpoint: %v", err)
		}
		if position != 9 {
			t.Fatalf("checkpoint = %d, want 9", position)
		}
	})
}
