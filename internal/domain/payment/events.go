package payment

import (
	"time"

	"github.com/shopspring/decimal"
)

// StateChangedEvent is emitted on every status transition of a payment
// attempt. Mirrored to the broker for downstream consumers (ledger, support).
type StateChangedEvent struct {
	PaymentID  string
	OrderID    string
	Method     Method
	From       Status
	To         Status
	OccurredAt time.Time
}

func (StateChangedEvent) EventName() string { return "payment.state_changed" }

func NewStateChangedEvent(r *Record, from Status) StateChangedEvent {
	return StateChangedEvent{
		PaymentID:  r.ID,
		OrderID:    r.OrderID,
		Method:     r.Method,
		From:       from,
		To:         r.Status,
		OccurredAt: time.Now().UTC(),
	}
}

// CompletedEvent is emitted exactly once per attempt when settlement
// completes. The fulfillment worker reacts to it.
type CompletedEvent struct {
	PaymentID   string
	OrderID     string
	OrderNumber string
	Method      Method
	Amount      decimal.Decimal
	Currency    string
	OccurredAt  time.Time
}

func (CompletedEvent) EventName() string { return "payment.completed" }

func NewCompletedEvent(r *Record) CompletedEvent {
	return CompletedEvent{
		PaymentID:   r.ID,
		OrderID:     r.OrderID,
		OrderNumber: r.OrderNumber,
		Method:      r.Method,
		Amount:      r.RequestedAmount,
		Currency:    r.RequestedCurrency,
		OccurredAt:  time.Now().UTC(),
	}
}
