package payment

import "context"

// Repository persists one payment attempt per order. Update is conditional:
// it fails with ErrConflict unless the caller's Version matches the stored
// record, then increments it. This serializes webhook appliers and status
// polls touching the same record.
type Repository interface {
	Insert(ctx context.Context, rec *Record) error
	FindByOrderID(ctx context.Context, orderID string) (*Record, error)
	Update(ctx context.Context, rec *Record) error
	// Replace swaps the order's attempt for a fresh one (new attempt before
	// any settlement). Insert semantics when none exists.
	Replace(ctx context.Context, rec *Record) error
}
