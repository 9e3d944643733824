package payment

import (
	"time"

	"github.com/shopspring/decimal"
)

type Method string

const (
	MethodWallet  Method = "wallet"
	MethodBitcoin Method = "bitcoin"
	MethodMonero  Method = "monero"
)

// Methods is the closed set of supported settlement methods.
func Methods() []Method {
	return []Method{MethodWallet, MethodBitcoin, MethodMonero}
}

func ParseMethod(s string) (Method, error) {
	switch Method(s) {
	case MethodWallet, MethodBitcoin, MethodMonero:
		return Method(s), nil
	default:
		return "", ErrInvalidMethod
	}
}

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusUnderpaid  Status = "underpaid"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
	StatusExpired    Status = "expired"
	StatusRefunded   Status = "refunded"
)

// Terminal reports whether the record is immutable. Underpaid and failed are
// deliberately non-terminal: late funds can still move an underpaid record to
// completed, and a failed wallet capture may be retried at the gateway.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusExpired, StatusRefunded:
		return true
	default:
		return false
	}
}

// underpayTolerance absorbs conversion rounding: a payment counts as settled
// when at least 99.5% of the settlement amount arrived.
var underpayTolerance = decimal.NewFromFloat(0.995)

// RemoteState is the normalized view of a gateway-reported status.
type RemoteState string

const (
	RemoteUnknown   RemoteState = ""
	RemotePending   RemoteState = "pending"
	RemoteApproved  RemoteState = "approved"
	RemoteCompleted RemoteState = "completed"
	RemoteFailed    RemoteState = "failed"
)

// Observation is one settlement signal from the outside world, either a
// webhook event or a polled gateway status.
type Observation struct {
	Confirmations   int64
	PaidAmount      decimal.Decimal
	RemoteStatus    RemoteState
	TransactionHash string
}

// Record is the persisted representation of one payment attempt for an order.
type Record struct {
	ID          string
	OrderID     string
	OrderNumber string
	Method      Method

	RemotePaymentID   string
	SettlementAddress string
	PayURL            string

	RequestedAmount   decimal.Decimal
	RequestedCurrency string

	// Settlement amount and rate are fixed at creation time so the customer
	// never sees a moving target. Never recomputed afterwards.
	SettlementAmount   decimal.Decimal
	SettlementCurrency string
	ExchangeRate       decimal.Decimal

	Confirmations         int64
	RequiredConfirmations int64
	PaidAmount            decimal.Decimal
	TransactionHash       string

	ExpirationTime     time.Time
	Status             Status
	LastWebhookEventID string

	// Version guards concurrent appliers; repositories reject updates whose
	// version does not match the stored record.
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewRecord builds a pending payment attempt. Settlement fields for fiat-only
// methods mirror the requested amount.
func NewRecord(id string, ord OrderRef, method Method, requiredConfirmations int64, window time.Duration) *Record {
	now := time.Now().UTC()
	return &Record{
		ID:                    id,
		OrderID:               ord.ID,
		OrderNumber:           ord.Number,
		Method:                method,
		RequestedAmount:       ord.Total,
		RequestedCurrency:     ord.Currency,
		SettlementAmount:      ord.Total,
		SettlementCurrency:    ord.Currency,
		ExchangeRate:          decimal.NewFromInt(1),
		RequiredConfirmations: requiredConfirmations,
		PaidAmount:            decimal.Zero,
		ExpirationTime:        now.Add(window),
		Status:                StatusPending,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
}

// OrderRef carries the order fields the payment attempt snapshots.
type OrderRef struct {
	ID       string
	Number   string
	Total    decimal.Decimal
	Currency string
}

// FixSettlement pins the converted amount and audit rate at creation time.
func (r *Record) FixSettlement(amount decimal.Decimal, currency string, rate decimal.Decimal) {
	r.SettlementAmount = amount
	r.SettlementCurrency = currency
	r.ExchangeRate = rate
}

func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	clone := *r
	return &clone
}

// settled reports whether the paid amount reached the settlement amount
// within the underpayment tolerance and the confirmation threshold is met.
func (r *Record) settled() bool {
	return r.Confirmations >= r.RequiredConfirmations &&
		r.PaidAmount.GreaterThanOrEqual(r.SettlementAmount.Mul(underpayTolerance))
}

// short reports whether confirmations are in but the money is not.
func (r *Record) short() bool {
	return r.Confirmations >= r.RequiredConfirmations && !r.settled()
}

// absorb merges an observation into the record's monotonic counters.
// Confirmations and paid amount never decrease within one attempt; when a
// webhook and a status poll race, the higher value wins.
func (r *Record) absorb(obs Observation) {
	if obs.Confirmations > r.Confirmations {
		r.Confirmations = obs.Confirmations
	}
	if obs.PaidAmount.GreaterThan(r.PaidAmount) {
		r.PaidAmount = obs.PaidAmount
	}
	if obs.TransactionHash != "" {
		r.TransactionHash = obs.TransactionHash
	}
}

// ApplyObservation runs one settlement signal through the state machine.
// Terminal records are left untouched; callers log such events for audit.
func (r *Record) ApplyObservation(obs Observation) error {
	next, err := stateFor(r.Status).OnObservation(r, obs)
	if err != nil {
		return err
	}
	r.setStatus(next.Status())
	return nil
}

// ExpireIfDue lazily expires an unpaid record whose window has passed.
// Partial payments land in underpaid instead, so observed funds stay visible.
// Returns true when the status changed.
func (r *Record) ExpireIfDue(now time.Time) bool {
	if r.Status.Terminal() || now.Before(r.ExpirationTime) {
		return false
	}
	next, err := stateFor(r.Status).OnExpire(r)
	if err != nil || next.Status() == r.Status {
		return false
	}
	r.setStatus(next.Status())
	return true
}

// Cancel honors a caller-initiated cancellation. Only legal while pending;
// once processing, money may already be in flight.
func (r *Record) Cancel() error {
	next, err := stateFor(r.Status).OnCancel(r)
	if err != nil {
		return err
	}
	r.setStatus(next.Status())
	return nil
}

// Refund moves a completed record to refunded. Method support is checked by
// the caller against the gateway adapter.
func (r *Record) Refund() error {
	next, err := stateFor(r.Status).OnRefund(r)
	if err != nil {
		return err
	}
	r.setStatus(next.Status())
	return nil
}

func (r *Record) setStatus(s Status) {
	r.Status = s
	r.UpdatedAt = time.Now().UTC()
}
