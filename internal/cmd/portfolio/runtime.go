package portfolio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/louisbranch/stockfolio/internal/services/portfolio/app"
	"github.com/louisbranch/stockfolio/internal/services/portfolio/engine"
	"github.com/louisbranch/stockfolio/internal/services/portfolio/eventstore"
	"github.com/louisbranch/stockfolio/internal/services/portfolio/projection"
	"github.com/louisbranch/stockfolio/internal/services/portfolio/stock"
	"github.com/louisbranch/stockfolio/internal/services/portfolio/storage"
	boltstore "github.com/louisbranch/stockfolio/internal/services/portfolio/storage/bbolt"
	"github.com/louisbranch/stockfolio/internal/services/portfolio/storage/memory"
	sqlitestore "github.com/louisbranch/stockfolio/internal/services/portfolio/storage/sqlite"
	"github.com/phuslu/log"
)

// runtime wires storage, the engine and the use cases for one invocation.
type runtime struct {
	events       storage.EventLog
	projections  storage.ProjectionStore
	service      app.Service
	catalog      stock.Catalog
	listener     projection.Listener
	pollInterval time.Duration
	closers      []func() error
}

func openRuntime(cfg Config, logger *log.Logger) (*runtime, error) {
	rt := &runtime{pollInterval: cfg.GetPollInterval()}
	switch cfg.Backend {
	case BackendMemory:
		store := memory.New()
		rt.events = store
		rt.projections = store
	case BackendSQLite, BackendBolt:
		if err := ensureDir(cfg.EventsPath); err != nil {
			return nil, err
		}
		if err := ensureDir(cfg.ProjectionsPath); err != nil {
			return nil, err
		}
		if cfg.Backend == BackendSQLite {
			events, err := sqlitestore.OpenEvents(cfg.EventsPath)
			if err != nil {
				return nil, fmt.Errorf("open events store: %w", err)
			}
			rt.events = events
			rt.closers = append(rt.closers, events.Close)
		} else {
			events, err := boltstore.Open(cfg.EventsPath)
			if err != nil {
				return nil, fmt.Errorf("open events store: %w", err)
			}
			rt.events = events
			rt.closers = append(rt.closers, events.Close)
		}
		projections, err := sqlitestore.OpenProjections(cfg.ProjectionsPath)
		if err != nil {
			_ = rt.Close()
			return nil, fmt.Errorf("open projections store: %w", err)
		}
		rt.projections = projections
		rt.closers = append(rt.closers, projections.Close)
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}

	store := eventstore.New(rt.events, eventstore.WithLogger(logger))
	rt.catalog = stock.Catalog{Store: rt.projections}
	rt.service = app.Service{
		Handler: engine.Handler{
			Store:          store,
			MaxAttempts:    cfg.MaxAttempts,
			InitialBackoff: cfg.GetInitialBackoff(),
			MaxBackoff:     cfg.GetMaxBackoff(),
			Logger:         logger,
		},
		Store:  store,
		Prices: rt.catalog,
		Logger: logger,
	}
	rt.listener = projection.Listener{
		Name:        projection.DefaultName,
		Feed:        rt.events,
		Portfolios:  rt.projections,
		Checkpoints: rt.projections,
		BatchSize:   cfg.BatchSize,
		Logger:      logger,
	}
	return rt, nil
}

// Close closes every opened store, in reverse order.
func (rt *runtime) Close() error {
	if rt == nil {
		return nil
	}
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}

func ensureDir(path string) error {
	dir := filepath.Dir(filepath.Clean(path))
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	return nil
}
