package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"possystem/backend/internal/domain"
	"possystem/backend/internal/ledger"
	"possystem/backend/internal/metrics"
	"possystem/backend/internal/pricing"
	"possystem/backend/internal/store"
)

// CreatePurchase prices the lines at current part prices, deducts stock and
// credits the store balance in one unit of work.
func (s *Service) CreatePurchase(ctx context.Context, req domain.PurchaseRequest) (domain.TransactionResult, error) {
	startedAt := time.Now()
	result, err := s.createPurchase(ctx, req)
	s.observe(metrics.OpPurchase, startedAt, result.Total, err)
	return result, err
}

func (s *Service) createPurchase(ctx context.Context, req domain.PurchaseRequest) (domain.TransactionResult, error) {
	if err := validateRequest(req); err != nil {
		return domain.TransactionResult{}, err
	}
	lines, err := normalizeLines(req.Lines)
	if err != nil {
		return domain.TransactionResult{}, err
	}
	now := s.now().UTC()

	var result domain.TransactionResult
	err = s.gateway.WithinTx(ctx, func(tx store.Tx) error {
		shop, err := tx.LockStore(ctx, req.StoreID)
		if err != nil {
			return err
		}
		if _, err := tx.GetEmployee(ctx, req.EmployeeID); err != nil {
			return err
		}
		discount, err := s.resolveDiscount(ctx, tx, req.DiscountID, shop.ID, now)
		if err != nil {
			return err
		}

		parts, err := s.ledger.Lock(ctx, tx, shop.ID, partIDs(lines))
		if err != nil {
			return err
		}

		priced := make([]pricing.Line, 0, len(lines))
		recorded := make([]domain.TransactionLine, 0, len(lines))
		movements := make([]ledger.Movement, 0, len(lines))
		for _, line := range lines {
			price := parts[line.PartID].Price
			priced = append(priced, pricing.Line{UnitPrice: price, Quantity: line.Quantity})
			recorded = append(recorded, domain.TransactionLine{PartID: line.PartID, Quantity: line.Quantity, UnitPrice: price})
			movements = append(movements, ledger.Movement{PartID: line.PartID, Delta: -line.Quantity})
		}
		breakdown := pricing.Sale(priced, discount, shop.TaxRate)

		if err := s.ledger.Apply(ctx, tx, shop.ID, movements); err != nil {
			return err
		}

		created, err := tx.InsertTransaction(ctx, domain.Transaction{
			EmployeeID: req.EmployeeID,
			StoreID:    shop.ID,
			TotalPrice: breakdown.Total,
			TaxRate:    shop.TaxRate,
			DiscountID: req.DiscountID,
			CreatedAt:  now,
			Lines:      recorded,
		})
		if err != nil {
			return err
		}
		balance, err := tx.AdjustStoreBalance(ctx, shop.ID, breakdown.Total)
		if err != nil {
			return err
		}

		result = domain.TransactionResult{
			Transaction:  *created,
			Subtotal:     breakdown.Subtotal,
			Discount:     breakdown.Discount,
			Tax:          breakdown.Tax,
			Total:        breakdown.Total,
			StoreBalance: balance,
		}
		return nil
	})
	if err != nil {
		return domain.TransactionResult{}, err
	}
	return result, nil
}

// resolveDiscount loads the requested discount and checks it may be used at
// storeID today. An unknown or inapplicable discount is invalid input.
func (s *Service) resolveDiscount(ctx context.Context, tx store.Tx, discountID *int64, storeID int64, now time.Time) (*domain.Discount, error) {
	if discountID == nil {
		return nil, nil
	}
	d, err := tx.GetDiscount(ctx, *discountID)
	if err != nil {
		if store.IsNotFound(err, store.EntityDiscount) {
			return nil, store.InvalidInput("discount %d does not exist", *discountID)
		}
		return nil, err
	}
	if !pricing.Applicable(*d, storeID, now) {
		return nil, store.InvalidInput("discount %d is not applicable to store %d on %s", d.ID, storeID, now.Format(time.DateOnly))
	}
	return d, nil
}

// CreateReturn refunds lines at current part prices with no tax. Only an
// admin employee may process it.
func (s *Service) CreateReturn(ctx context.Context, req domain.ReturnRequest) (domain.TransactionResult, error) {
	startedAt := time.Now()
	result, err := s.createReturn(ctx, req)
	s.observe(metrics.OpReturn, startedAt, result.Total, err)
	return result, err
}

func (s *Service) createReturn(ctx context.Context, req domain.ReturnRequest) (domain.TransactionResult, error) {
	if err := validateRequest(req); err != nil {
		return domain.TransactionResult{}, err
	}
	if err := s.guard.RequireAdmin(ctx, req.EmployeeID); err != nil {
		return domain.TransactionResult{}, err
	}
	lines, err := normalizeLines(req.Lines)
	if err != nil {
		return domain.TransactionResult{}, err
	}
	now := s.now().UTC()

	var result domain.TransactionResult
	err = s.gateway.WithinTx(ctx, func(tx store.Tx) error {
		shop, err := tx.LockStore(ctx, req.StoreID)
		if err != nil {
			return err
		}
		parts, err := s.ledger.Lock(ctx, tx, shop.ID, partIDs(lines))
		if err != nil {
			return err
		}

		priced := make([]pricing.Line, 0, len(lines))
		recorded := make([]domain.TransactionLine, 0, len(lines))
		movements := make([]ledger.Movement, 0, len(lines))
		for _, line := range lines {
			price := parts[line.PartID].Price
			priced = append(priced, pricing.Line{UnitPrice: price, Quantity: line.Quantity})
			recorded = append(recorded, domain.TransactionLine{PartID: line.PartID, Quantity: -line.Quantity, UnitPrice: price})
			movements = append(movements, ledger.Movement{PartID: line.PartID, Delta: line.Quantity})
		}
		refund := pricing.DirectRefund(priced)

		if err := s.ledger.Apply(ctx, tx, shop.ID, movements); err != nil {
			return err
		}

		created, err := tx.InsertTransaction(ctx, domain.Transaction{
			EmployeeID: req.EmployeeID,
			StoreID:    shop.ID,
			TotalPrice: refund.Neg(),
			TaxRate:    decimal.Zero,
			CreatedAt:  now,
			Lines:      recorded,
		})
		if err != nil {
			return err
		}
		balance, err := tx.AdjustStoreBalance(ctx, shop.ID, refund.Neg())
		if err != nil {
			return err
		}
		record, err := tx.InsertReturnRecord(ctx, domain.ReturnRecord{
			TransactionID: created.ID,
			TotalRefund:   refund,
			StoreID:       shop.ID,
			EmployeeID:    req.EmployeeID,
			CreatedAt:     now,
		})
		if err != nil {
			return err
		}

		result = domain.TransactionResult{
			Transaction:  *created,
			Subtotal:     refund.Neg(),
			Discount:     decimal.Zero,
			Tax:          decimal.Zero,
			Total:        refund.Neg(),
			StoreBalance: balance,
			ReturnRecord: record,
		}
		return nil
	})
	if err != nil {
		return domain.TransactionResult{}, err
	}
	return result, nil
}

// ReturnByTransaction reverses a committed purchase. Lines are refunded at the
// unit price they sold at, and tax at the store's current rate, so a rate
// change since the sale leaves the balance off by the difference. The
// original discount is not re-applied.
func (s *Service) ReturnByTransaction(ctx context.Context, originalID int64, employeeID int64) (domain.TransactionResult, error) {
	startedAt := time.Now()
	result, err := s.returnByTransaction(ctx, originalID, employeeID)
	s.observe(metrics.OpReturnByTransaction, startedAt, result.Total, err)
	return result, err
}

func (s *Service) returnByTransaction(ctx context.Context, originalID int64, employeeID int64) (domain.TransactionResult, error) {
	if err := validateRequest(domain.ReturnByTransactionRequest{TransactionID: originalID, EmployeeID: employeeID}); err != nil {
		return domain.TransactionResult{}, err
	}
	if err := s.guard.RequireAdmin(ctx, employeeID); err != nil {
		return domain.TransactionResult{}, err
	}
	now := s.now().UTC()

	var result domain.TransactionResult
	err := s.gateway.WithinTx(ctx, func(tx store.Tx) error {
		original, err := tx.LockTransaction(ctx, originalID)
		if err != nil {
			return err
		}
		if original.IsReturn() {
			return store.InvalidInput("transaction %d is itself a return", originalID)
		}
		returned, err := tx.HasReturnFor(ctx, originalID)
		if err != nil {
			return err
		}
		if returned {
			return store.InvalidInput("transaction %d has already been returned", originalID)
		}

		shop, err := tx.LockStore(ctx, original.StoreID)
		if err != nil {
			return err
		}

		priced := make([]pricing.Line, 0, len(original.Lines))
		recorded := make([]domain.TransactionLine, 0, len(original.Lines))
		movements := make([]ledger.Movement, 0, len(original.Lines))
		for _, line := range original.Lines {
			qty := line.Quantity
			if qty < 0 {
				qty = -qty
			}
			priced = append(priced, pricing.Line{UnitPrice: line.UnitPrice, Quantity: qty})
			recorded = append(recorded, domain.TransactionLine{PartID: line.PartID, Quantity: -qty, UnitPrice: line.UnitPrice})
			movements = append(movements, ledger.Movement{PartID: line.PartID, Delta: qty})
		}
		refundSubtotal := pricing.DirectRefund(priced)
		tax, total := pricing.RefundWithTax(refundSubtotal, shop.TaxRate)

		if err := s.ledger.Apply(ctx, tx, shop.ID, movements); err != nil {
			return err
		}

		created, err := tx.InsertTransaction(ctx, domain.Transaction{
			EmployeeID: employeeID,
			StoreID:    shop.ID,
			TotalPrice: total.Neg(),
			TaxRate:    shop.TaxRate,
			CreatedAt:  now,
			Lines:      recorded,
		})
		if err != nil {
			return err
		}
		balance, err := tx.AdjustStoreBalance(ctx, shop.ID, total.Neg())
		if err != nil {
			return err
		}
		origID := original.ID
		record, err := tx.InsertReturnRecord(ctx, domain.ReturnRecord{
			TransactionID:         created.ID,
			OriginalTransactionID: &origID,
			TotalRefund:           total,
			StoreID:               shop.ID,
			EmployeeID:            employeeID,
			CreatedAt:             now,
		})
		if err != nil {
			return err
		}

		result = domain.TransactionResult{
			Transaction:  *created,
			Subtotal:     refundSubtotal.Neg(),
			Discount:     decimal.Zero,
			Tax:          tax.Neg(),
			Total:        total.Neg(),
			StoreBalance: balance,
			ReturnRecord: record,
		}
		return nil
	})
	if err != nil {
		return domain.TransactionResult{}, err
	}
	return result, nil
}
