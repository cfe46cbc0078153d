package service

import (
	"context"
	"log"

	"github.com/shopspring/decimal"

	"possystem/backend/internal/domain"
	"possystem/backend/internal/pricing"
	"possystem/backend/internal/store"
)

// GetTransactionDetails rebuilds the receipt view of a committed transaction.
// Committed transactions are immutable, so views are served from the cache
// when one is configured.
func (s *Service) GetTransactionDetails(ctx context.Context, transactionID int64) (domain.TransactionDetails, error) {
	if cached, ok, err := s.txCache.Get(ctx, transactionID); err != nil {
		log.Printf("[service] WARN: transaction cache get failed id=%d: %v", transactionID, err)
	} else if ok {
		return *cached, nil
	}

	t, err := s.gateway.GetTransaction(ctx, transactionID)
	if err != nil {
		return domain.TransactionDetails{}, err
	}
	details, err := newDescriber(s.gateway).describe(ctx, *t)
	if err != nil {
		return domain.TransactionDetails{}, err
	}

	if err := s.txCache.Set(ctx, &details, s.cacheTTL); err != nil {
		log.Printf("[service] WARN: transaction cache set failed id=%d: %v", transactionID, err)
	}
	return details, nil
}

// ListTransactions returns every transaction of a store, purchases and
// returns alike, oldest first.
func (s *Service) ListTransactions(ctx context.Context, storeID int64) ([]domain.TransactionDetails, error) {
	if _, err := s.gateway.GetStore(ctx, storeID); err != nil {
		return nil, err
	}
	transactions, err := s.gateway.ListTransactionsByStore(ctx, storeID)
	if err != nil {
		return nil, err
	}

	d := newDescriber(s.gateway)
	out := make([]domain.TransactionDetails, 0, len(transactions))
	for _, t := range transactions {
		details, err := d.describe(ctx, t)
		if err != nil {
			return nil, err
		}
		out = append(out, details)
	}
	return out, nil
}

// ListReturnRecords lists return records for storeID, or for every store when
// storeID is zero.
func (s *Service) ListReturnRecords(ctx context.Context, storeID int64) ([]domain.ReturnRecord, error) {
	if storeID != 0 {
		if _, err := s.gateway.GetStore(ctx, storeID); err != nil {
			return nil, err
		}
	}
	return s.gateway.ListReturnRecords(ctx, storeID)
}

// StoreSalesSummary totals a store's transaction log. Refunds are reported as
// a positive amount; NetSales is gross sales minus refunds.
func (s *Service) StoreSalesSummary(ctx context.Context, storeID int64) (domain.StoreSalesSummary, error) {
	shop, err := s.gateway.GetStore(ctx, storeID)
	if err != nil {
		return domain.StoreSalesSummary{}, err
	}
	transactions, err := s.gateway.ListTransactionsByStore(ctx, storeID)
	if err != nil {
		return domain.StoreSalesSummary{}, err
	}

	summary := domain.StoreSalesSummary{
		StoreID:      shop.ID,
		StoreName:    shop.Name,
		GrossSales:   decimal.Zero,
		Refunds:      decimal.Zero,
		StoreBalance: shop.Balance,
	}
	for _, t := range transactions {
		if t.IsReturn() {
			summary.Returns++
			summary.Refunds = summary.Refunds.Add(t.TotalPrice.Neg())
			continue
		}
		summary.Purchases++
		summary.GrossSales = summary.GrossSales.Add(t.TotalPrice)
	}
	summary.NetSales = summary.GrossSales.Sub(summary.Refunds)
	return summary, nil
}

// describer memoizes the lookups needed to render several transactions of
// the same store.
type describer struct {
	reader    store.Reader
	stores    map[int64]*domain.Store
	employees map[int64]*domain.Employee
	parts     map[int64]*domain.Part
	discounts map[int64]*domain.Discount
}

func newDescriber(reader store.Reader) *describer {
	return &describer{
		reader:    reader,
		stores:    make(map[int64]*domain.Store),
		employees: make(map[int64]*domain.Employee),
		parts:     make(map[int64]*domain.Part),
		discounts: make(map[int64]*domain.Discount),
	}
}

// describe recomputes the arithmetic of a committed transaction from its
// lines. Tax is total minus taxable so the view always agrees with the stored
// total even if the store's rate has since changed.
func (d *describer) describe(ctx context.Context, t domain.Transaction) (domain.TransactionDetails, error) {
	shop, err := memo(ctx, d.stores, t.StoreID, d.reader.GetStore)
	if err != nil {
		return domain.TransactionDetails{}, err
	}
	employee, err := memo(ctx, d.employees, t.EmployeeID, d.reader.GetEmployee)
	if err != nil {
		return domain.TransactionDetails{}, err
	}

	details := domain.TransactionDetails{
		TransactionID:  t.ID,
		StoreID:        shop.ID,
		StoreName:      shop.Name,
		EmployeeID:     employee.ID,
		EmployeeName:   employee.FullName(),
		Date:           t.CreatedAt,
		IsReturn:       t.IsReturn(),
		PartsSold:      make([]domain.PartSold, 0, len(t.Lines)),
		DiscountAmount: decimal.Zero,
		TaxRate:        t.TaxRate,
		Total:          t.TotalPrice,
	}

	subtotal := decimal.Zero
	for _, line := range t.Lines {
		part, err := memo(ctx, d.parts, line.PartID, d.reader.GetPart)
		if err != nil {
			return domain.TransactionDetails{}, err
		}
		lineTotal := pricing.LineTotal(line.UnitPrice, line.Quantity)
		subtotal = subtotal.Add(lineTotal)
		details.PartsSold = append(details.PartsSold, domain.PartSold{
			PartID:     line.PartID,
			Name:       part.Name,
			Quantity:   line.Quantity,
			UnitPrice:  line.UnitPrice,
			TotalPrice: lineTotal,
		})
	}
	details.Subtotal = subtotal

	taxable := subtotal
	if t.DiscountID != nil {
		discount, err := memo(ctx, d.discounts, *t.DiscountID, d.reader.GetDiscount)
		if err != nil {
			return domain.TransactionDetails{}, err
		}
		details.DiscountName = discount.Name
		details.DiscountAmount = pricing.DiscountAmount(discount, subtotal)
		taxable = decimal.Max(subtotal.Sub(details.DiscountAmount), decimal.Zero)
	}
	details.Tax = t.TotalPrice.Sub(taxable)

	if details.IsReturn {
		record, err := d.reader.GetReturnRecordByTransaction(ctx, t.ID)
		switch {
		case err == nil:
			details.OriginalTransactionID = record.OriginalTransactionID
		case !store.IsNotFound(err, store.EntityReturn):
			return domain.TransactionDetails{}, err
		}
	}
	return details, nil
}

func memo[T any](ctx context.Context, seen map[int64]*T, id int64, load func(context.Context, int64) (*T, error)) (*T, error) {
	if v, ok := seen[id]; ok {
		return v, nil
	}
	v, err := load(ctx, id)
	if err != nil {
		return nil, err
	}
	seen[id] = v
	return v, nil
}
