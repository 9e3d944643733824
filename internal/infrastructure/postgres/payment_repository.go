// Package postgres persists payment attempts in PostgreSQL. Concurrency
// control matches the memory repository: a version-guarded conditional
// UPDATE, so a webhook applier and a status-poll refresh racing on the same
// record cannot interleave.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	domain "github.com/Zhima-Mochi/payflow/internal/domain/payment"
)

type PaymentRepository struct {
	db *sql.DB
}

func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Migrate creates the payment_records table. One row per order.
func (r *PaymentRepository) Migrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS payment_records (
			order_id               VARCHAR(64) PRIMARY KEY,
			id                     VARCHAR(64) NOT NULL,
			order_number           VARCHAR(64) NOT NULL,
			method                 VARCHAR(16) NOT NULL,
			remote_payment_id      VARCHAR(128) NOT NULL DEFAULT '',
			settlement_address     VARCHAR(128) NOT NULL DEFAULT '',
			pay_url                TEXT NOT NULL DEFAULT '',
			requested_amount       NUMERIC(24,12) NOT NULL,
			requested_currency     VARCHAR(8) NOT NULL,
			settlement_amount      NUMERIC(24,12) NOT NULL,
			settlement_currency    VARCHAR(8) NOT NULL,
			exchange_rate          NUMERIC(24,12) NOT NULL,
			confirmations          BIGINT NOT NULL DEFAULT 0,
			required_confirmations BIGINT NOT NULL,
			paid_amount            NUMERIC(24,12) NOT NULL DEFAULT 0,
			transaction_hash       VARCHAR(128) NOT NULL DEFAULT '',
			expiration_time        TIMESTAMPTZ NOT NULL,
			status                 VARCHAR(16) NOT NULL,
			last_webhook_event_id  VARCHAR(128) NOT NULL DEFAULT '',
			version                BIGINT NOT NULL DEFAULT 0,
			created_at             TIMESTAMPTZ NOT NULL,
			updated_at             TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_payment_records_status ON payment_records(status)`,
	}
	for _, q := range queries {
		if _, err := r.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("postgres payments: migrate: %w", err)
		}
	}
	return nil
}

const insertColumns = `order_id, id, order_number, method, remote_payment_id,
settlement_address, pay_url, requested_amount, requested_currency,
settlement_amount, settlement_currency, exchange_rate, confirmations,
required_confirmations, paid_amount, transaction_hash, expiration_time,
status, last_webhook_event_id, version, created_at, updated_at`

func (r *PaymentRepository) Insert(ctx context.Context, rec *domain.Record) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO payment_records (`+insertColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)
		ON CONFLICT (order_id) DO NOTHING
	`, args(rec)...)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return domain.ErrConflict
		}
		return fmt.Errorf("postgres payments: insert: %w", err)
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *PaymentRepository) Replace(ctx context.Context, rec *domain.Record) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO payment_records (`+insertColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)
		ON CONFLICT (order_id) DO UPDATE SET
			id = EXCLUDED.id,
			method = EXCLUDED.method,
			remote_payment_id = EXCLUDED.remote_payment_id,
			settlement_address = EXCLUDED.settlement_address,
			pay_url = EXCLUDED.pay_url,
			requested_amount = EXCLUDED.requested_amount,
			requested_currency = EXCLUDED.requested_currency,
			settlement_amount = EXCLUDED.settlement_amount,
			settlement_currency = EXCLUDED.settlement_currency,
			exchange_rate = EXCLUDED.exchange_rate,
			confirmations = EXCLUDED.confirmations,
			required_confirmations = EXCLUDED.required_confirmations,
			paid_amount = EXCLUDED.paid_amount,
			transaction_hash = EXCLUDED.transaction_hash,
			expiration_time = EXCLUDED.expiration_time,
			status = EXCLUDED.status,
			last_webhook_event_id = EXCLUDED.last_webhook_event_id,
			version = EXCLUDED.version,
			created_at = EXCLUDED.created_at,
			updated_at = EXCLUDED.updated_at
	`, args(rec)...)
	if err != nil {
		return fmt.Errorf("postgres payments: replace: %w", err)
	}
	return nil
}

func (r *PaymentRepository) FindByOrderID(ctx context.Context, orderID string) (*domain.Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+insertColumns+`
		FROM payment_records WHERE order_id = $1
	`, orderID)

	rec, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres payments: find: %w", err)
	}
	return rec, nil
}

// Update writes only when the stored version matches the caller's copy.
// Zero rows affected means a concurrent applier won the race.
func (r *PaymentRepository) Update(ctx context.Context, rec *domain.Record) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE payment_records SET
			confirmations = $1,
			paid_amount = $2,
			transaction_hash = $3,
			status = $4,
			last_webhook_event_id = $5,
			remote_payment_id = $6,
			version = version + 1,
			updated_at = $7
		WHERE order_id = $8 AND version = $9
	`,
		rec.Confirmations,
		rec.PaidAmount.String(),
		rec.TransactionHash,
		string(rec.Status),
		rec.LastWebhookEventID,
		rec.RemotePaymentID,
		time.Now().UTC(),
		rec.OrderID,
		rec.Version,
	)
	if err != nil {
		return fmt.Errorf("postgres payments: update: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres payments: update: %w", err)
	}
	if rows == 0 {
		exists, existsErr := r.exists(ctx, rec.OrderID)
		if existsErr != nil {
			return existsErr
		}
		if !exists {
			return domain.ErrNotFound
		}
		return domain.ErrConflict
	}
	rec.Version++
	return nil
}

func (r *PaymentRepository) exists(ctx context.Context, orderID string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM payment_records WHERE order_id = $1`, orderID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("postgres payments: exists: %w", err)
	}
	return true, nil
}

func args(rec *domain.Record) []any {
	return []any{
		rec.OrderID,
		rec.ID,
		rec.OrderNumber,
		string(rec.Method),
		rec.RemotePaymentID,
		rec.SettlementAddress,
		rec.PayURL,
		rec.RequestedAmount.String(),
		rec.RequestedCurrency,
		rec.SettlementAmount.String(),
		rec.SettlementCurrency,
		rec.ExchangeRate.String(),
		rec.Confirmations,
		rec.RequiredConfirmations,
		rec.PaidAmount.String(),
		rec.TransactionHash,
		rec.ExpirationTime,
		string(rec.Status),
		rec.LastWebhookEventID,
		rec.Version,
		rec.CreatedAt,
		rec.UpdatedAt,
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(row scanner) (*domain.Record, error) {
	var (
		rec                                                  domain.Record
		method, status                                       string
		requestedAmount, settlementAmount, exchangeRate, paidAmount string
	)
	err := row.Scan(
		&rec.OrderID,
		&rec.ID,
		&rec.OrderNumber,
		&method,
		&rec.RemotePaymentID,
		&rec.SettlementAddress,
		&rec.PayURL,
		&requestedAmount,
		&rec.RequestedCurrency,
		&settlementAmount,
		&rec.SettlementCurrency,
		&exchangeRate,
		&rec.Confirmations,
		&rec.RequiredConfirmations,
		&paidAmount,
		&rec.TransactionHash,
		&rec.ExpirationTime,
		&status,
		&rec.LastWebhookEventID,
		&rec.Version,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Method = domain.Method(method)
	rec.Status = domain.Status(status)
	if rec.RequestedAmount, err = decimal.NewFromString(requestedAmount); err != nil {
		return nil, fmt.Errorf("decode requested_amount: %w", err)
	}
	if rec.SettlementAmount, err = decimal.NewFromString(settlementAmount); err != nil {
		return nil, fmt.Errorf("decode settlement_amount: %w", err)
	}
	if rec.ExchangeRate, err = decimal.NewFromString(exchangeRate); err != nil {
		return nil, fmt.Errorf("decode exchange_rate: %w", err)
	}
	if rec.PaidAmount, err = decimal.NewFromString(paidAmount); err != nil {
		return nil, fmt.Errorf("decode paid_amount: %w", err)
	}
	return &rec, nil
}
