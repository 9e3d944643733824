package order

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound      = errors.New("order: not found")
	ErrInvalidAmount = errors.New("order: total must be greater than zero")
	ErrConflict      = errors.New("order: conflict")
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusCancelled Status = "cancelled"
)

// Order is the checkout collaborator entity this service attaches payments to.
// Catalog, cart, and fulfillment own the rest of its lifecycle; here we only
// read totals and mark it paid once settlement completes.
type Order struct {
	ID         string
	Number     string
	CustomerID string
	Total      decimal.Decimal
	Currency   string
	Status     Status
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func New(id, number, customerID string, total decimal.Decimal, currency string) (*Order, error) {
	if total.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}

	now := time.Now().UTC()
	return &Order{
		ID:         id,
		Number:     number,
		CustomerID: customerID,
		Total:      total,
		Currency:   currency,
		Status:     StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

func (o *Order) MarkPaid() {
	o.Status = StatusPaid
	o.touch()
}

func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	clone := *o
	return &clone
}

func (o *Order) touch() {
	o.UpdatedAt = time.Now().UTC()
}
