package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"possystem/backend/internal/domain"
	"possystem/backend/internal/store"
)

func newShop(t *testing.T, s *Store) (domain.Store, domain.Part) {
	t.Helper()
	ctx := context.Background()
	var shop domain.Store
	var part domain.Part
	err := s.WithinTx(ctx, func(tx store.Tx) error {
		created, err := tx.InsertStore(ctx, domain.Store{Name: "Depot", Balance: decimal.NewFromInt(100), TaxRate: decimal.RequireFromString("0.05")})
		if err != nil {
			return err
		}
		shop = *created
		p, err := tx.InsertPart(ctx, domain.Part{Name: "Bolt", Price: decimal.NewFromInt(2), StoreID: &shop.ID, Quantity: 10})
		if err != nil {
			return err
		}
		part = *p
		return nil
	})
	require.NoError(t, err)
	return shop, part
}

func TestWithinTxRollsBackOnError(t *testing.T) {
	s := New()
	shop, part := newShop(t, s)
	ctx := context.Background()

	boom := errors.New("boom")
	err := s.WithinTx(ctx, func(tx store.Tx) error {
		require.NoError(t, tx.SetPartQuantity(ctx, part.ID, 1))
		_, err := tx.AdjustStoreBalance(ctx, shop.ID, decimal.NewFromInt(50))
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.GetPart(ctx, part.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.Quantity)

	gotStore, err := s.GetStore(ctx, shop.ID)
	require.NoError(t, err)
	assert.True(t, gotStore.Balance.Equal(decimal.NewFromInt(100)))
}

func TestWithinTxRollsBackOnPanic(t *testing.T) {
	s := New()
	_, part := newShop(t, s)
	ctx := context.Background()

	func() {
		defer func() { _ = recover() }()
		_ = s.WithinTx(ctx, func(tx store.Tx) error {
			_ = tx.SetPartQuantity(ctx, part.ID, 0)
			panic("interrupted")
		})
	}()

	got, err := s.GetPart(ctx, part.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.Quantity)
}

func TestReadsInsideTxSeeOwnWrites(t *testing.T) {
	s := New()
	_, part := newShop(t, s)
	ctx := context.Background()

	err := s.WithinTx(ctx, func(tx store.Tx) error {
		require.NoError(t, tx.SetPartQuantity(ctx, part.ID, 4))
		p, err := tx.GetPart(ctx, part.ID)
		require.NoError(t, err)
		assert.Equal(t, 4, p.Quantity)
		return nil
	})
	require.NoError(t, err)
}

func TestNotFoundErrorsCarryEntity(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, err := s.GetStore(ctx, 42)
	require.ErrorIs(t, err, store.ErrNotFound)
	assert.True(t, store.IsNotFound(err, store.EntityStore))

	_, err = s.GetTransaction(ctx, 7)
	assert.True(t, store.IsNotFound(err, store.EntityTransaction))
}

func TestInsertEnforcesReferences(t *testing.T) {
	s := New()
	ctx := context.Background()
	missing := int64(99)

	err := s.WithinTx(ctx, func(tx store.Tx) error {
		_, err := tx.InsertPart(ctx, domain.Part{Name: "Orphan", Price: decimal.NewFromInt(1), StoreID: &missing})
		return err
	})
	require.ErrorIs(t, err, store.ErrIntegrityViolation)
}

func TestSeededStoreHasAdminAndClerk(t *testing.T) {
	t.Setenv("SEED_ADMIN_PASSWORD", "admin-pass")
	t.Setenv("SEED_CLERK_PASSWORD", "clerk-pass")
	s := NewSeeded()
	ctx := context.Background()

	admin, err := s.FindEmployeeByName(ctx, "ada", "admin")
	require.NoError(t, err)
	assert.True(t, admin.Role.Is(domain.RoleAdmin))

	clerk, err := s.FindEmployeeByName(ctx, "Carl", "Clerk")
	require.NoError(t, err)
	assert.True(t, clerk.Role.Is(domain.RoleClerk))

	parts, err := s.ListPartsByStore(ctx, *admin.StoreID)
	require.NoError(t, err)
	assert.Len(t, parts, 4)
}
