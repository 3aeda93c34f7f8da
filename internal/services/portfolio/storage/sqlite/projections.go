package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/louisbranch/stockfolio/internal/services/portfolio/domain"
	"github.com/louisbranch/stockfolio/internal/services/portfolio/storage"
)

// ProjectionStore is the SQLite read-model database. It implements
// storage.ProjectionStore.
type ProjectionStore struct {
	*Store
}

var _ storage.ProjectionStore = (*ProjectionStore)(nil)

// PutPortfolio inserts a portfolio row.
func (s *ProjectionStore) PutPortfolio(ctx context.Context, record storage.PortfolioRecord) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if _, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO portfolios (id, user_id, money, created_at, updated_at)
VALUES (?, ?, ?, ?, ?)`,
		record.ID.String(), record.UserID.String(), record.Money.String(),
		toMillis(record.CreatedAt), toMillis(record.UpdatedAt),
	); err != nil {
		if isConstraintError(err) {
			return fmt.Errorf("put portfolio %s: %w", record.ID, storage.ErrAlreadyExists)
		}
		return fmt.Errorf("put portfolio %s: %w", record.ID, err)
	}
	return nil
}

// GetPortfolio returns one portfolio row.
func (s *ProjectionStore) GetPortfolio(ctx context.Context, id domain.PortfolioID) (storage.PortfolioRecord, error) {
	if err := s.ready(ctx); err != nil {
		return storage.PortfolioRecord{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, user_id, money, created_at, updated_at FROM portfolios WHERE id = ?`, id.String())
	record, err := scanPortfolio(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.PortfolioRecord{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.PortfolioRecord{}, fmt.Errorf("get portfolio %s: %w", id, err)
	}
	return record, nil
}

// ListPortfolios returns the rows owned by userID ordered by creation.
func (s *ProjectionStore) ListPortfolios(ctx context.Context, userID domain.UserID) ([]storage.PortfolioRecord, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, user_id, money, created_at, updated_at
FROM portfolios
WHERE user_id = ?
ORDER BY created_at ASC, id ASC`, userID.String())
	if err != nil {
		return nil, fmt.Errorf("list portfolios: %w", err)
	}
	defer rows.Close()

	var records []storage.PortfolioRecord
	for rows.Next() {
		record, err := scanPortfolio(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("list portfolios: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list portfolios: %w", err)
	}
	return records, nil
}

func scanPortfolio(scan func(dest ...any) error) (storage.PortfolioRecord, error) {
	var (
		id, userID, money    string
		createdAt, updatedAt int64
	)
	if err := scan(&id, &userID, &money, &createdAt, &updatedAt); err != nil {
		return storage.PortfolioRecord{}, err
	}
	amount, err := domain.NewMoney(money)
	if err != nil {
		return storage.PortfolioRecord{}, err
	}
	return storage.PortfolioRecord{
		ID:        domain.PortfolioID(id),
		UserID:    domain.UserID(userID),
		Money:     amount,
		CreatedAt: fromMillis(createdAt),
		UpdatedAt: fromMillis(updatedAt),
	}, nil
}

// PutPrice inserts or replaces the price of a stock.
func (s *ProjectionStore) PutPrice(ctx context.Context, record storage.PriceRecord) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if _, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO stock_prices (stock, price, updated_at) VALUES (?, ?, ?)
ON CONFLICT(stock) DO UPDATE SET price = excluded.price, updated_at = excluded.updated_at`,
		record.Stock.String(), record.Price.String(), toMillis(record.UpdatedAt),
	); err != nil {
		return fmt.Errorf("put price %s: %w", record.Stock, err)
	}
	return nil
}

// GetPrice returns the latest price of a stock.
func (s *ProjectionStore) GetPrice(ctx context.Context, stock domain.Stock) (storage.PriceRecord, error) {
	if err := s.ready(ctx); err != nil {
		return storage.PriceRecord{}, err
	}
	var (
		price     string
		updatedAt int64
	)
	err := s.sqlDB.QueryRowContext(ctx,
		"SELECT price, updated_at FROM stock_prices WHERE stock = ?", stock.String(),
	).Scan(&price, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.PriceRecord{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.PriceRecord{}, fmt.Errorf("get price %s: %w", stock, err)
	}
	amount, err := domain.NewMoney(price)
	if err != nil {
		return storage.PriceRecord{}, fmt.Errorf("get price %s: %w", stock, err)
	}
	return storage.PriceRecord{Stock: stock, Price: amount, UpdatedAt: fromMillis(updatedAt)}, nil
}

// GetCheckpoint returns the saved position for name, or 0.
func (s *ProjectionStore) GetCheckpoint(ctx context.Context, name string) (int64, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	var position int64
	err := s.sqlDB.QueryRowContext(ctx,
		"SELECT position FROM projection_checkpoints WHERE name = ?", name,
	).Scan(&position)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get checkpoint %s: %w", name, err)
	}
	return position, nil
}

// SaveCheckpoint records the position reached by name.
func (s *ProjectionStore) SaveCheckpoint(ctx context.Context, name string, position int64) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if _, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO projection_checkpoints (name, position, updated_at) VALUES (?, ?, ?)
ON CONFLICT(name) DO UPDATE SET position = excluded.position, updated_at = excluded.updated_at`,
		name, position, toMillis(time.Now()),
	); err != nil {
		return fmt.Errorf("save checkpoint %s: %w", name, err)
	}
	return nil
}
