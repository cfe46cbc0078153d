package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"possystem/backend/internal/domain"
	"possystem/backend/internal/store"
)

func newIntegrationStore(t *testing.T) *Store {
	t.Helper()
	databaseURL := os.Getenv("POS_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set POS_TEST_DATABASE_URL to run postgres integration test")
	}

	s, err := New(context.Background(), databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

func TestRolledBackUnitOfWorkLeavesStockAndBalance(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()
	stamp := time.Now().UnixNano()

	var shop *domain.Store
	var part *domain.Part
	err := s.WithinTx(ctx, func(tx store.Tx) error {
		var err error
		shop, err = tx.InsertStore(ctx, domain.Store{
			Name:    fmt.Sprintf("IT Store %d", stamp),
			Balance: decimal.RequireFromString("500.00"),
			TaxRate: decimal.RequireFromString("0.08"),
		})
		if err != nil {
			return err
		}
		part, err = tx.InsertPart(ctx, domain.Part{Name: "Widget", Price: decimal.RequireFromString("20.00"), StoreID: &shop.ID, Quantity: 10})
		return err
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	t.Cleanup(func() {
		_, _ = s.SQL().ExecContext(ctx, `DELETE FROM parts WHERE pno = $1`, part.ID)
		_, _ = s.SQL().ExecContext(ctx, `DELETE FROM stores WHERE store_id = $1`, shop.ID)
	})

	abort := errors.New("abort")
	err = s.WithinTx(ctx, func(tx store.Tx) error {
		if err := tx.SetPartQuantity(ctx, part.ID, 3); err != nil {
			return err
		}
		if _, err := tx.AdjustStoreBalance(ctx, shop.ID, decimal.RequireFromString("97.20")); err != nil {
			return err
		}
		return abort
	})
	if !errors.Is(err, abort) {
		t.Fatalf("expected abort error, got %v", err)
	}

	gotPart, err := s.GetPart(ctx, part.ID)
	if err != nil {
		t.Fatalf("get part: %v", err)
	}
	if gotPart.Quantity != 10 {
		t.Fatalf("expected quantity 10 after rollback, got %d", gotPart.Quantity)
	}
	gotStore, err := s.GetStore(ctx, shop.ID)
	if err != nil {
		t.Fatalf("get store: %v", err)
	}
	if !gotStore.Balance.Equal(decimal.RequireFromString("500.00")) {
		t.Fatalf("expected balance 500.00 after rollback, got %s", gotStore.Balance)
	}
}

func TestDuplicateStoreNameMapsToIntegrityViolation(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()
	stamp := time.Now().UnixNano()
	name := fmt.Sprintf("IT Dup %d", stamp)

	err := s.WithinTx(ctx, func(tx store.Tx) error {
		_, err := tx.InsertStore(ctx, domain.Store{Name: name, Balance: decimal.Zero, TaxRate: decimal.Zero})
		return err
	})
	if err != nil {
		t.Fatalf("insert store: %v", err)
	}
	t.Cleanup(func() {
		_, _ = s.SQL().ExecContext(ctx, `DELETE FROM stores WHERE store_name = $1`, name)
	})

	err = s.WithinTx(ctx, func(tx store.Tx) error {
		_, err := tx.InsertStore(ctx, domain.Store{Name: name, Balance: decimal.Zero, TaxRate: decimal.Zero})
		return err
	})
	if !errors.Is(err, store.ErrIntegrityViolation) {
		t.Fatalf("expected integrity violation for duplicate store name, got %v", err)
	}
}
