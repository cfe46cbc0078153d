package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"possystem/backend/internal/domain"
	"possystem/backend/internal/store"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "pos.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

type fixture struct {
	store    domain.Store
	widget   domain.Part
	employee domain.Employee
}

func seed(t *testing.T, s *Store) fixture {
	t.Helper()
	ctx := context.Background()
	var f fixture
	err := s.WithinTx(ctx, func(tx store.Tx) error {
		shop, err := tx.InsertStore(ctx, domain.Store{
			Name:    "Main Street",
			Balance: decimal.RequireFromString("500.00"),
			TaxRate: decimal.RequireFromString("0.08"),
		})
		if err != nil {
			return err
		}
		f.store = *shop
		widget, err := tx.InsertPart(ctx, domain.Part{Name: "Widget", Price: decimal.RequireFromString("20.00"), StoreID: &shop.ID, Quantity: 10})
		if err != nil {
			return err
		}
		f.widget = *widget
		emp, err := tx.InsertEmployee(ctx, domain.Employee{FirstName: "Ada", LastName: "Admin", Role: domain.RoleAdmin, StoreID: &shop.ID})
		if err != nil {
			return err
		}
		f.employee = *emp
		return nil
	})
	require.NoError(t, err)
	return f
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pos.db")
	first, err := Open(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := Open(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, second.Close())
}

func TestMoneyRoundTripsExactly(t *testing.T) {
	s := openTestStore(t)
	f := seed(t, s)
	ctx := context.Background()

	err := s.WithinTx(ctx, func(tx store.Tx) error {
		for i := 0; i < 10; i++ {
			if _, err := tx.AdjustStoreBalance(ctx, f.store.ID, decimal.RequireFromString("0.10")); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	got, err := s.GetStore(ctx, f.store.ID)
	require.NoError(t, err)
	assert.Equal(t, "501.00", got.Balance.StringFixed(2))
	assert.True(t, got.TaxRate.Equal(decimal.RequireFromString("0.08")))
}

func TestTransactionWithLinesPersists(t *testing.T) {
	s := openTestStore(t)
	f := seed(t, s)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)

	var created *domain.Transaction
	err := s.WithinTx(ctx, func(tx store.Tx) error {
		var err error
		created, err = tx.InsertTransaction(ctx, domain.Transaction{
			EmployeeID: f.employee.ID,
			StoreID:    f.store.ID,
			TotalPrice: decimal.RequireFromString("64.80"),
			TaxRate:    f.store.TaxRate,
			CreatedAt:  at,
			Lines: []domain.TransactionLine{
				{PartID: f.widget.ID, Quantity: 3, UnitPrice: f.widget.Price},
			},
		})
		return err
	})
	require.NoError(t, err)

	got, err := s.GetTransaction(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "64.80", got.TotalPrice.StringFixed(2))
	assert.True(t, got.CreatedAt.Equal(at))
	require.Len(t, got.Lines, 1)
	assert.Equal(t, 3, got.Lines[0].Quantity)
	assert.True(t, got.Lines[0].UnitPrice.Equal(decimal.NewFromInt(20)))

	list, err := s.ListTransactionsByStore(ctx, f.store.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Len(t, list[0].Lines, 1)
}

func TestRollbackDiscardsWrites(t *testing.T) {
	s := openTestStore(t)
	f := seed(t, s)
	ctx := context.Background()

	abort := errors.New("abort")
	err := s.WithinTx(ctx, func(tx store.Tx) error {
		require.NoError(t, tx.SetPartQuantity(ctx, f.widget.ID, 0))
		return abort
	})
	require.ErrorIs(t, err, abort)

	got, err := s.GetPart(ctx, f.widget.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.Quantity)
}

func TestNegativeQuantityViolatesConstraint(t *testing.T) {
	s := openTestStore(t)
	f := seed(t, s)
	ctx := context.Background()

	err := s.WithinTx(ctx, func(tx store.Tx) error {
		return tx.SetPartQuantity(ctx, f.widget.ID, -1)
	})
	require.ErrorIs(t, err, store.ErrIntegrityViolation)
}

func TestDeletingStoreNullsPartAndEmployeeReferences(t *testing.T) {
	s := openTestStore(t)
	f := seed(t, s)
	ctx := context.Background()

	_, err := s.SQL().ExecContext(ctx, `DELETE FROM stores WHERE store_id = ?`, f.store.ID)
	require.NoError(t, err)

	part, err := s.GetPart(ctx, f.widget.ID)
	require.NoError(t, err)
	assert.Nil(t, part.StoreID)

	emp, err := s.GetEmployee(ctx, f.employee.ID)
	require.NoError(t, err)
	assert.Nil(t, emp.StoreID)
}

func TestReturnRecordIsWriteOncePerOriginal(t *testing.T) {
	s := openTestStore(t)
	f := seed(t, s)
	ctx := context.Background()

	var purchase, refund *domain.Transaction
	err := s.WithinTx(ctx, func(tx store.Tx) error {
		var err error
		purchase, err = tx.InsertTransaction(ctx, domain.Transaction{EmployeeID: f.employee.ID, StoreID: f.store.ID, TotalPrice: decimal.NewFromInt(20), TaxRate: decimal.Zero,
			Lines: []domain.TransactionLine{{PartID: f.widget.ID, Quantity: 1, UnitPrice: decimal.NewFromInt(20)}}})
		if err != nil {
			return err
		}
		refund, err = tx.InsertTransaction(ctx, domain.Transaction{EmployeeID: f.employee.ID, StoreID: f.store.ID, TotalPrice: decimal.NewFromInt(-20), TaxRate: decimal.Zero,
			Lines: []domain.TransactionLine{{PartID: f.widget.ID, Quantity: -1, UnitPrice: decimal.NewFromInt(20)}}})
		if err != nil {
			return err
		}
		_, err = tx.InsertReturnRecord(ctx, domain.ReturnRecord{TransactionID: refund.ID, OriginalTransactionID: &purchase.ID, TotalRefund: decimal.NewFromInt(20), StoreID: f.store.ID, EmployeeID: f.employee.ID})
		return err
	})
	require.NoError(t, err)

	has, err := s.HasReturnFor(ctx, purchase.ID)
	require.NoError(t, err)
	assert.True(t, has)

	err = s.WithinTx(ctx, func(tx store.Tx) error {
		_, err := tx.InsertReturnRecord(ctx, domain.ReturnRecord{TransactionID: purchase.ID, OriginalTransactionID: &purchase.ID, TotalRefund: decimal.NewFromInt(20), StoreID: f.store.ID, EmployeeID: f.employee.ID})
		return err
	})
	require.ErrorIs(t, err, store.ErrIntegrityViolation)
}
