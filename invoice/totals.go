package invoice

import (
	"github.com/shopspring/decimal"

	"backoffice/model"
	"backoffice/money"
)

// ApplyTotals fills in every item's line total and the invoice subtotal,
// tax total and total. Each line is rounded to cents before summing.
func ApplyTotals(inv *model.Invoice) {
	subtotal := decimal.Zero
	tax := decimal.Zero
	for i := range inv.Items {
		it := &inv.Items[i]
		it.LineTotal = money.Round2(it.Quantity.Mul(it.UnitPrice))
		subtotal = subtotal.Add(it.LineTotal)
		tax = tax.Add(money.Percent(it.LineTotal, it.TaxRate))
	}
	inv.Subtotal = subtotal
	inv.TaxTotal = tax
	inv.Total = subtotal.Add(tax)
}
