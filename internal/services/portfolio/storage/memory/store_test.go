package memory

import (
	"context"
	"testing"

	"github.com/louisbranch/stockfolio/internal/services/portfolio/storage"
	"github.com/louisbranch/stockfolio/internal/services/portfolio/storage/storagetest"
)

func TestEventLogContract(t *testing.T) {
	storagetest.EventLog(t, func(t *testing.T) storage.EventLog { return New() })
}

func TestProjectionStoreContract(t *testing.T) {
	storagetest.ProjectionStore(t, func(t *testing.T) storage.ProjectionStore { return New() })
}

func TestAppendRejectsEmptyBatch(t *testing.T) {
	if _, err := New().AppendToStream(context.Background(), "portfolio-1", storage.NoStream, nil); err == nil {
		t.Fatal("expected error for empty batch")
	}
}

func TestReadStreamReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store := New()
	if _, err := store.AppendToStream(ctx, "portfolio-1", storage.NoStream, []storage.EventData{{ID: "a", Type: "t"}}); err != nil {
		t.Fatalf("append: %v", err)
	}
	records, err := store.ReadStream(ctx, "portfolio-1")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	records[0].ID = "mutated"
	again, err := store.ReadStream(ctx, "portfolio-1")
	if err != nil {
		t.Fatalf("read again: %v", err)
	}
	if again[0].ID != "a" {
		t.Fatalf("store was mutated through returned slice")
	}
}
