// Package ledger is the only writer of part quantities. A batch of movements
// is validated in full before any quantity changes, so a failed batch leaves
// every part as it was.
package ledger

import (
	"context"
	"slices"

	"possystem/backend/internal/domain"
	"possystem/backend/internal/store"
)

// Movement changes one part's quantity by Delta. Negative deltas deduct.
type Movement struct {
	PartID int64
	Delta  int
}

type Ledger struct{}

func New() *Ledger {
	return &Ledger{}
}

// Lock locks the parts in ascending id order and checks they are stocked by
// storeID. Parts missing or held by another store are reported as not found.
func (l *Ledger) Lock(ctx context.Context, tx store.Tx, storeID int64, partIDs []int64) (map[int64]domain.Part, error) {
	ids := slices.Clone(partIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	parts, err := tx.LockParts(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		part, ok := parts[id]
		if !ok || part.StoreID == nil || *part.StoreID != storeID {
			return nil, store.NotFound(store.EntityPart, id)
		}
	}
	return parts, nil
}

// Apply merges movements per part, checks every resulting quantity, then
// writes. The first shortage is returned as *store.InsufficientStockError.
func (l *Ledger) Apply(ctx context.Context, tx store.Tx, storeID int64, movements []Movement) error {
	net := make(map[int64]int, len(movements))
	ids := make([]int64, 0, len(movements))
	for _, m := range movements {
		if m.Delta > domain.MaxStockQuantity || m.Delta < -domain.MaxStockQuantity {
			return store.InvalidInput("movement of %d for part %d is out of range", m.Delta, m.PartID)
		}
		if _, seen := net[m.PartID]; !seen {
			ids = append(ids, m.PartID)
		}
		net[m.PartID] += m.Delta
	}

	parts, err := l.Lock(ctx, tx, storeID, ids)
	if err != nil {
		return err
	}

	slices.Sort(ids)
	for _, id := range ids {
		delta := net[id]
		available := parts[id].Quantity
		if available+delta < 0 {
			return &store.InsufficientStockError{PartID: id, Requested: -delta, Available: available}
		}
		if available+delta > domain.MaxStockQuantity {
			return store.InvalidInput("part %d would hold %d units, above %d", id, available+delta, domain.MaxStockQuantity)
		}
	}

	for _, id := range ids {
		if net[id] == 0 {
			continue
		}
		if err := tx.SetPartQuantity(ctx, id, parts[id].Quantity+net[id]); err != nil {
			return err
		}
	}
	return nil
}

func (l *Ledger) Deduct(ctx context.Context, tx store.Tx, storeID int64, partID int64, quantity int) error {
	if quantity < 0 {
		return store.InvalidInput("deduct quantity %d is negative", quantity)
	}
	return l.Apply(ctx, tx, storeID, []Movement{{PartID: partID, Delta: -quantity}})
}

func (l *Ledger) Credit(ctx context.Context, tx store.Tx, storeID int64, partID int64, quantity int) error {
	if quantity < 0 {
		return store.InvalidInput("credit quantity %d is negative", quantity)
	}
	return l.Apply(ctx, tx, storeID, []Movement{{PartID: partID, Delta: quantity}})
}
