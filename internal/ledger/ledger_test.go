package ledger

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"possystem/backend/internal/domain"
	"possystem/backend/internal/store"
	"possystem/backend/internal/store/memory"
)

type shop struct {
	gw      *memory.Store
	id      int64
	other   int64
	widget  int64
	gadget  int64
	foreign int64
}

func newShop(t *testing.T) shop {
	t.Helper()
	ctx := context.Background()
	s := shop{gw: memory.New()}
	err := s.gw.WithinTx(ctx, func(tx store.Tx) error {
		primary, err := tx.InsertStore(ctx, domain.Store{Name: "Main", Balance: decimal.Zero, TaxRate: decimal.Zero})
		if err != nil {
			return err
		}
		other, err := tx.InsertStore(ctx, domain.Store{Name: "Other", Balance: decimal.Zero, TaxRate: decimal.Zero})
		if err != nil {
			return err
		}
		s.id, s.other = primary.ID, other.ID
		for _, p := range []struct {
			dst   *int64
			store int64
			qty   int
		}{
			{&s.widget, primary.ID, 3},
			{&s.gadget, primary.ID, 5},
			{&s.foreign, other.ID, 9},
		} {
			storeID := p.store
			part, err := tx.InsertPart(ctx, domain.Part{Name: "p", Price: decimal.NewFromInt(1), StoreID: &storeID, Quantity: p.qty})
			if err != nil {
				return err
			}
			*p.dst = part.ID
		}
		return nil
	})
	require.NoError(t, err)
	return s
}

func (s shop) quantity(t *testing.T, partID int64) int {
	t.Helper()
	p, err := s.gw.GetPart(context.Background(), partID)
	require.NoError(t, err)
	return p.Quantity
}

func TestApplyDeductsAllMovements(t *testing.T) {
	s := newShop(t)
	l := New()
	ctx := context.Background()

	err := s.gw.WithinTx(ctx, func(tx store.Tx) error {
		return l.Apply(ctx, tx, s.id, []Movement{
			{PartID: s.widget, Delta: -2},
			{PartID: s.gadget, Delta: -5},
		})
	})
	require.NoError(t, err)
	assert.Equal(t, 1, s.quantity(t, s.widget))
	assert.Equal(t, 0, s.quantity(t, s.gadget))
}

func TestApplyIsAllOrNothing(t *testing.T) {
	s := newShop(t)
	l := New()
	ctx := context.Background()

	err := s.gw.WithinTx(ctx, func(tx store.Tx) error {
		return l.Apply(ctx, tx, s.id, []Movement{
			{PartID: s.gadget, Delta: -1},
			{PartID: s.widget, Delta: -5},
		})
	})

	var shortage *store.InsufficientStockError
	require.ErrorAs(t, err, &shortage)
	assert.Equal(t, s.widget, shortage.PartID)
	assert.Equal(t, 5, shortage.Requested)
	assert.Equal(t, 3, shortage.Available)
	assert.True(t, errors.Is(err, store.ErrInsufficientStock))

	assert.Equal(t, 3, s.quantity(t, s.widget))
	assert.Equal(t, 5, s.quantity(t, s.gadget))
}

func TestApplyMergesRepeatedParts(t *testing.T) {
	s := newShop(t)
	l := New()
	ctx := context.Background()

	err := s.gw.WithinTx(ctx, func(tx store.Tx) error {
		return l.Apply(ctx, tx, s.id, []Movement{
			{PartID: s.widget, Delta: -2},
			{PartID: s.widget, Delta: -2},
		})
	})
	var shortage *store.InsufficientStockError
	require.ErrorAs(t, err, &shortage)
	assert.Equal(t, 4, shortage.Requested)
}

func TestPartFromAnotherStoreIsNotFound(t *testing.T) {
	s := newShop(t)
	l := New()
	ctx := context.Background()

	err := s.gw.WithinTx(ctx, func(tx store.Tx) error {
		return l.Deduct(ctx, tx, s.id, s.foreign, 1)
	})
	assert.True(t, store.IsNotFound(err, store.EntityPart))
	assert.Equal(t, 9, s.quantity(t, s.foreign))
}

func TestCreditAlwaysSucceeds(t *testing.T) {
	s := newShop(t)
	l := New()
	ctx := context.Background()

	err := s.gw.WithinTx(ctx, func(tx store.Tx) error {
		return l.Credit(ctx, tx, s.id, s.widget, 7)
	})
	require.NoError(t, err)
	assert.Equal(t, 10, s.quantity(t, s.widget))
}

func TestNegativeQuantitiesAreRejected(t *testing.T) {
	s := newShop(t)
	l := New()
	ctx := context.Background()

	err := s.gw.WithinTx(ctx, func(tx store.Tx) error {
		return l.Credit(ctx, tx, s.id, s.widget, -1)
	})
	require.ErrorIs(t, err, store.ErrInvalidInput)
}

func TestCreditBeyondStockCeilingIsInvalid(t *testing.T) {
	s := newShop(t)
	l := New()
	ctx := context.Background()

	for _, qty := range []int{domain.MaxStockQuantity, math.MaxInt} {
		err := s.gw.WithinTx(ctx, func(tx store.Tx) error {
			return l.Credit(ctx, tx, s.id, s.widget, qty)
		})
		require.ErrorIs(t, err, store.ErrInvalidInput, "credit %d", qty)
		assert.False(t, errors.Is(err, store.ErrInsufficientStock))
	}
	assert.Equal(t, 3, s.quantity(t, s.widget))
}

func TestRepeatedHugeMovementsCannotWrap(t *testing.T) {
	s := newShop(t)
	l := New()
	ctx := context.Background()

	err := s.gw.WithinTx(ctx, func(tx store.Tx) error {
		return l.Apply(ctx, tx, s.id, []Movement{
			{PartID: s.widget, Delta: math.MinInt + 1},
			{PartID: s.widget, Delta: math.MinInt + 1},
		})
	})
	require.ErrorIs(t, err, store.ErrInvalidInput)
	assert.Equal(t, 3, s.quantity(t, s.widget))
}
