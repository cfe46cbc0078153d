// Package pricing holds the money arithmetic shared by purchases, returns and
// reporting. Every intermediate amount is rounded to cents at the step that
// produces it, half away from zero.
package pricing

import (
	"time"

	"github.com/shopspring/decimal"

	"possystem/backend/internal/domain"
)

const Places = 2

// RatePlaces is the precision every gateway keeps for a tax rate.
const RatePlaces = 4

var hundred = decimal.NewFromInt(100)

func Round(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(Places)
}

// Fits reports whether amount needs no more than places decimal places.
func Fits(amount decimal.Decimal, places int32) bool {
	return amount.Equal(amount.Round(places))
}

// LineTotal is round(unit price x quantity).
func LineTotal(unitPrice decimal.Decimal, quantity int) decimal.Decimal {
	return Round(unitPrice.Mul(decimal.NewFromInt(int64(quantity))))
}

// DiscountAmount resolves how much d takes off subtotal. A nil discount is
// worth zero. Fixed discounts never exceed the subtotal.
func DiscountAmount(d *domain.Discount, subtotal decimal.Decimal) decimal.Decimal {
	if d == nil || !subtotal.IsPositive() {
		return decimal.Zero
	}
	switch d.Type {
	case domain.DiscountPercentage:
		return Round(subtotal.Mul(d.Value).Div(hundred))
	case domain.DiscountFixed:
		return decimal.Min(Round(d.Value), subtotal)
	}
	return decimal.Zero
}

// Applicable reports whether d may be used for a sale at storeID on the
// calendar day of now. Window bounds are inclusive.
func Applicable(d domain.Discount, storeID int64, now time.Time) bool {
	if !d.Active {
		return false
	}
	if d.StoreID != nil && *d.StoreID != storeID {
		return false
	}
	today := dateOf(now)
	if d.StartDate != nil && today.Before(dateOf(*d.StartDate)) {
		return false
	}
	if d.EndDate != nil && today.After(dateOf(*d.EndDate)) {
		return false
	}
	return true
}

func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

type Line struct {
	UnitPrice decimal.Decimal
	Quantity  int
}

type Breakdown struct {
	Subtotal decimal.Decimal
	Discount decimal.Decimal
	Taxable  decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal
}

// Sale prices a purchase:
//
//	subtotal = sum(round(price x qty))
//	taxable  = max(subtotal - discount, 0)
//	tax      = round(taxable x rate)
//	total    = taxable + tax
func Sale(lines []Line, discount *domain.Discount, taxRate decimal.Decimal) Breakdown {
	subtotal := decimal.Zero
	for _, line := range lines {
		subtotal = subtotal.Add(LineTotal(line.UnitPrice, line.Quantity))
	}
	return FromSubtotal(subtotal, discount, taxRate)
}

func FromSubtotal(subtotal decimal.Decimal, discount *domain.Discount, taxRate decimal.Decimal) Breakdown {
	amount := DiscountAmount(discount, subtotal)
	taxable := decimal.Max(subtotal.Sub(amount), decimal.Zero)
	tax := Round(taxable.Mul(taxRate))
	return Breakdown{
		Subtotal: subtotal,
		Discount: amount,
		Taxable:  taxable,
		Tax:      tax,
		Total:    Round(taxable.Add(tax)),
	}
}

// DirectRefund prices a return by line: the plain sum of line totals, with no
// discount and no tax.
func DirectRefund(lines []Line) decimal.Decimal {
	refund := decimal.Zero
	for _, line := range lines {
		refund = refund.Add(LineTotal(line.UnitPrice, line.Quantity))
	}
	return refund
}

// RefundWithTax prices a return of a whole transaction. Tax uses the rate in
// force now, which can differ from the rate charged at sale time.
func RefundWithTax(refundSubtotal decimal.Decimal, currentRate decimal.Decimal) (tax decimal.Decimal, total decimal.Decimal) {
	tax = Round(refundSubtotal.Mul(currentRate))
	total = Round(refundSubtotal.Add(tax))
	return tax, total
}
