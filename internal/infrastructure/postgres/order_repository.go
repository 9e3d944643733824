package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	domain "github.com/Zhima-Mochi/payflow/internal/domain/order"
)

type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) Migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS orders (
			id          VARCHAR(64) PRIMARY KEY,
			number      VARCHAR(64) NOT NULL,
			customer_id VARCHAR(64) NOT NULL,
			total       NUMERIC(24,12) NOT NULL,
			currency    VARCHAR(8) NOT NULL,
			status      VARCHAR(16) NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL,
			updated_at  TIMESTAMPTZ NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("postgres orders: migrate: %w", err)
	}
	return nil
}

func (r *OrderRepository) Insert(ctx context.Context, order *domain.Order) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO orders (id, number, customer_id, total, currency, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`,
		order.ID, order.Number, order.CustomerID, order.Total.String(),
		order.Currency, string(order.Status), order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return domain.ErrConflict
		}
		return fmt.Errorf("postgres orders: insert: %w", err)
	}
	return nil
}

func (r *OrderRepository) Get(ctx context.Context, id string) (*domain.Order, error) {
	var (
		ord           domain.Order
		total, status string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, number, customer_id, total, currency, status, created_at, updated_at
		FROM orders WHERE id = $1
	`, id).Scan(
		&ord.ID, &ord.Number, &ord.CustomerID, &total,
		&ord.Currency, &status, &ord.CreatedAt, &ord.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres orders: get: %w", err)
	}

	ord.Status = domain.Status(status)
	if ord.Total, err = decimal.NewFromString(total); err != nil {
		return nil, fmt.Errorf("decode total: %w", err)
	}
	return &ord, nil
}

func (r *OrderRepository) Update(ctx context.Context, order *domain.Order) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE orders SET status = $1, updated_at = $2 WHERE id = $3
	`, string(order.Status), time.Now().UTC(), order.ID)
	if err != nil {
		return fmt.Errorf("postgres orders: update: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres orders: update: %w", err)
	}
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}
