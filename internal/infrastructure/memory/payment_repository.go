package memory

import (
	"context"
	"fmt"
	"sync"

	domain "github.com/Zhima-Mochi/payflow/internal/domain/payment"
)

// PaymentRepository keeps one payment attempt per order, with clone-on-read
// isolation and version-checked updates.
type PaymentRepository struct {
	mu      sync.RWMutex
	byOrder map[string]*domain.Record
}

func NewPaymentRepository() *PaymentRepository {
	return &PaymentRepository{
		byOrder: make(map[string]*domain.Record),
	}
}

func (r *PaymentRepository) Insert(ctx context.Context, rec *domain.Record) error {
	_ = ctx
	if rec == nil || rec.OrderID == "" {
		return fmt.Errorf("payment repository: order id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byOrder[rec.OrderID]; exists {
		return domain.ErrConflict
	}

	r.byOrder[rec.OrderID] = rec.Clone()
	return nil
}

func (r *PaymentRepository) FindByOrderID(ctx context.Context, orderID string) (*domain.Record, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.byOrder[orderID]
	if !ok {
		return nil, domain.ErrNotFound
	}

	return rec.Clone(), nil
}

// Update applies a conditional write: the stored version must match the
// caller's copy, otherwise a concurrent applier won and ErrConflict is
// returned so the caller can re-read and re-apply.
func (r *PaymentRepository) Update(ctx context.Context, rec *domain.Record) error {
	_ = ctx
	if rec == nil || rec.OrderID == "" {
		return fmt.Errorf("payment repository: order id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current, exists := r.byOrder[rec.OrderID]
	if !exists {
		return domain.ErrNotFound
	}
	if current.Version != rec.Version {
		return domain.ErrConflict
	}

	stored := rec.Clone()
	stored.Version++
	r.byOrder[rec.OrderID] = stored
	rec.Version = stored.Version
	return nil
}

func (r *PaymentRepository) Replace(ctx context.Context, rec *domain.Record) error {
	_ = ctx
	if rec == nil || rec.OrderID == "" {
		return fmt.Errorf("payment repository: order id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.byOrder[rec.OrderID] = rec.Clone()
	return nil
}
