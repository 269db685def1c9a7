package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type InvoiceStatus string

const (
	InvoiceDraft     InvoiceStatus = "draft"
	InvoiceSent      InvoiceStatus = "sent"
	InvoicePaid      InvoiceStatus = "paid"
	InvoiceOverdue   InvoiceStatus = "overdue"
	InvoiceCancelled InvoiceStatus = "cancelled"
)

var InvoiceStatuses = []InvoiceStatus{InvoiceDraft, InvoiceSent, InvoicePaid, InvoiceOverdue, InvoiceCancelled}

func (s InvoiceStatus) Valid() bool {
	for _, v := range InvoiceStatuses {
		if s == v {
			return true
		}
	}
	return false
}

type Invoice struct {
	ID           int64           `db:"id" json:"id"`
	Number       string          `db:"number" json:"number"`
	CustomerID   int64           `db:"customer_id" json:"customerId"`
	CustomerName string          `db:"customer_name" json:"customerName"`
	WorkID       *int64          `db:"work_id" json:"workId"`
	IssueDate    string          `db:"issue_date" json:"issueDate"`
	DueDate      string          `db:"due_date" json:"dueDate"`
	Status       InvoiceStatus   `db:"status" json:"status"`
	Currency     string          `db:"currency" json:"currency"`
	Notes        string          `db:"notes" json:"notes"`
	Subtotal     decimal.Decimal `db:"subtotal" json:"subtotal"`
	TaxTotal     decimal.Decimal `db:"tax_total" json:"taxTotal"`
	Total        decimal.Decimal `db:"total" json:"total"`
	AmountPaid   decimal.Decimal `db:"amount_paid" json:"amountPaid"`
	PaidDate     *string         `db:"paid_date" json:"paidDate"`
	CreatedAt    time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updatedAt"`

	Items    []InvoiceItem    `db:"-" json:"items,omitempty"`
	Payments []InvoicePayment `db:"-" json:"payments,omitempty"`
}

// BalanceDue is what remains to be paid on the invoice.
func (inv *Invoice) BalanceDue() decimal.Decimal {
	return inv.Total.Sub(inv.AmountPaid)
}

// MarshalJSON adds the derived balanceDue to the stored fields.
func (inv Invoice) MarshalJSON() ([]byte, error) {
	type stored Invoice
	return json.Marshal(struct {
		stored
		BalanceDue decimal.Decimal `json:"balanceDue"`
	}{stored(inv), inv.BalanceDue()})
}

type InvoiceItem struct {
	ID          int64           `db:"id" json:"id"`
	InvoiceID   int64           `db:"invoice_id" json:"invoiceId"`
	Position    int             `db:"position" json:"position"`
	Description string          `db:"description" json:"description"`
	Quantity    decimal.Decimal `db:"quantity" json:"quantity"`
	UnitPrice   decimal.Decimal `db:"unit_price" json:"unitPrice"`
	TaxRate     decimal.Decimal `db:"tax_rate" json:"taxRate"`
	LineTotal   decimal.Decimal `db:"line_total" json:"lineTotal"`
}

type InvoicePayment struct {
	ID          int64           `db:"id" json:"id"`
	InvoiceID   int64           `db:"invoice_id" json:"invoiceId"`
	Amount      decimal.Decimal `db:"amount" json:"amount"`
	PaymentDate string          `db:"payment_date" json:"paymentDate"`
	Method      string          `db:"method" json:"method"`
	Note        string          `db:"note" json:"note"`
	CreatedAt   time.Time       `db:"created_at" json:"createdAt"`
}

type InvoiceFilters struct {
	Status     string
	CustomerID int64
	From       string
	To         string
}
