package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/Zhima-Mochi/payflow/internal/domain/payment"
)

func newRecord(t *testing.T) *domain.Record {
	t.Helper()
	return domain.NewRecord("pay-1", domain.OrderRef{
		ID:       "order-1",
		Number:   "ORD-1001",
		Total:    decimal.RequireFromString("199.99"),
		Currency: "GBP",
	}, domain.MethodBitcoin, 2, time.Hour)
}

func TestInsertRejectsSecondAttempt(t *testing.T) {
	repo := NewPaymentRepository()
	ctx := context.Background()

	if err := repo.Insert(ctx, newRecord(t)); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := repo.Insert(ctx, newRecord(t)); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("second Insert = %v, want ErrConflict", err)
	}
}

func TestUpdateDetectsConcurrentWriter(t *testing.T) {
	repo := NewPaymentRepository()
	ctx := context.Background()
	if err := repo.Insert(ctx, newRecord(t)); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	// two appliers read the same version
	first, _ := repo.FindByOrderID(ctx, "order-1")
	second, _ := repo.FindByOrderID(ctx, "order-1")

	first.Confirmations = 1
	if err := repo.Update(ctx, first); err != nil {
		t.Fatalf("first Update: %v", err)
	}

	second.Confirmations = 2
	if err := repo.Update(ctx, second); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("stale Update = %v, want ErrConflict", err)
	}

	// re-read, re-apply, succeed
	fresh, _ := repo.FindByOrderID(ctx, "order-1")
	fresh.Confirmations = 2
	if err := repo.Update(ctx, fresh); err != nil {
		t.Fatalf("retried Update: %v", err)
	}
}

func TestUpdateBumpsCallerVersion(t *testing.T) {
	repo := NewPaymentRepository()
	ctx := context.Background()
	rec := newRecord(t)
	if err := repo.Insert(ctx, rec); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, _ := repo.FindByOrderID(ctx, "order-1")
	v := got.Version
	if err := repo.Update(ctx, got); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.Version != v+1 {
		t.Errorf("caller version = %d, want %d", got.Version, v+1)
	}
	// the bumped copy may keep writing without a re-read
	if err := repo.Update(ctx, got); err != nil {
		t.Fatalf("chained Update: %v", err)
	}
}

func TestFindReturnsIsolatedClone(t *testing.T) {
	repo := NewPaymentRepository()
	ctx := context.Background()
	if err := repo.Insert(ctx, newRecord(t)); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	a, _ := repo.FindByOrderID(ctx, "order-1")
	a.Status = domain.StatusCompleted
	a.Confirmations = 99

	b, _ := repo.FindByOrderID(ctx, "order-1")
	if b.Status != domain.StatusPending || b.Confirmations != 0 {
		t.Error("mutating a returned record leaked into the store")
	}
}

func TestReplaceSwapsAttempt(t *testing.T) {
	repo := NewPaymentRepository()
	ctx := context.Background()
	if err := repo.Insert(ctx, newRecord(t)); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	next := newRecord(t)
	next.ID = "pay-2"
	next.Method = domain.MethodMonero
	if err := repo.Replace(ctx, next); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	got, err := repo.FindByOrderID(ctx, "order-1")
	if err != nil {
		t.Fatalf("FindByOrderID: %v", err)
	}
	if got.ID != "pay-2" || got.Method != domain.MethodMonero {
		t.Errorf("replacement not stored: id=%s method=%s", got.ID, got.Method)
	}
}

func TestFindUnknownOrder(t *testing.T) {
	repo := NewPaymentRepository()
	if _, err := repo.FindByOrderID(context.Background(), "nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
