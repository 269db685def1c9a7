// Package invoice issues invoices, records payments against them and
// renders them for printing.
package invoice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"backoffice/apperr"
	"backoffice/database"
	"backoffice/model"
	"backoffice/money"
	"backoffice/validate"
)

var hundred = decimal.NewFromInt(100)

// transitions lists the statuses each status may move to. Paid and
// cancelled are terminal.
var transitions = map[model.InvoiceStatus][]model.InvoiceStatus{
	model.InvoiceDraft:   {model.InvoiceSent, model.InvoiceCancelled},
	model.InvoiceSent:    {model.InvoicePaid, model.InvoiceOverdue, model.InvoiceCancelled},
	model.InvoiceOverdue: {model.InvoicePaid, model.InvoiceCancelled},
}

// CanTransition reports whether an invoice may move from one status to another.
func CanTransition(from, to model.InvoiceStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type ItemInput struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	TaxRate     decimal.Decimal `json:"taxRate"`
}

type Input struct {
	CustomerID int64       `json:"customerId"`
	WorkID     *int64      `json:"workId"`
	IssueDate  string      `json:"issueDate"`
	DueDate    string      `json:"dueDate"`
	Currency   string      `json:"currency"`
	Notes      string      `json:"notes"`
	Items      []ItemInput `json:"items"`
}

// normalize fills in the default dates and validates the input. The issue
// date defaults to today and the due date to issue + dueDays.
func (in *Input) normalize(today time.Time, dueDays int) error {
	in.IssueDate = strings.TrimSpace(in.IssueDate)
	in.DueDate = strings.TrimSpace(in.DueDate)
	if in.CustomerID <= 0 {
		return apperr.Invalid("customerId is required")
	}
	if err := validate.First(
		validate.Date("issueDate", in.IssueDate),
		validate.Date("dueDate", in.DueDate),
	); err != nil {
		return err
	}
	if in.IssueDate == "" {
		in.IssueDate = today.Format(validate.DateLayout)
	}
	if in.DueDate == "" {
		issued, _ := time.Parse(validate.DateLayout, in.IssueDate)
		in.DueDate = issued.AddDate(0, 0, dueDays).Format(validate.DateLayout)
	}
	if in.DueDate < in.IssueDate {
		return apperr.Invalid("dueDate must be on or after issueDate")
	}
	if in.Currency != "" {
		code, ok := money.NormalizeCurrency(in.Currency)
		if !ok {
			return apperr.Invalid("unknown currency: " + in.Currency)
		}
		in.Currency = code
	}

	if len(in.Items) == 0 {
		return apperr.Invalid("an invoice needs at least one item")
	}
	for i := range in.Items {
		it := &in.Items[i]
		it.Description = strings.TrimSpace(it.Description)
		line := i + 1
		switch {
		case it.Description == "":
			return apperr.Invalid(fmt.Sprintf("item %d: description is required", line))
		case !it.Quantity.IsPositive():
			return apperr.Invalid(fmt.Sprintf("item %d: quantity must be greater than 0", line))
		case it.UnitPrice.IsNegative():
			return apperr.Invalid(fmt.Sprintf("item %d: unitPrice must not be negative", line))
		case it.TaxRate.IsNegative() || it.TaxRate.GreaterThan(hundred):
			return apperr.Invalid(fmt.Sprintf("item %d: taxRate must be between 0 and 100", line))
		}
	}
	return nil
}

// resolve checks the customer and work references and picks the currency.
func (in *Input) resolve(ctx context.Context, q sqlx.ExtContext) error {
	c, err := database.GetCustomer(ctx, q, in.CustomerID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return apperr.Invalid("customer does not exist")
		}
		return err
	}
	if in.Currency == "" {
		in.Currency = c.Currency
	}
	if in.WorkID != nil {
		w, err := database.GetWork(ctx, q, *in.WorkID)
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				return apperr.Invalid("work does not exist")
			}
			return err
		}
		if w.CustomerID != in.CustomerID {
			return apperr.Invalid("work belongs to a different customer")
		}
	}
	return nil
}

func (in *Input) apply(inv *model.Invoice) {
	inv.CustomerID = in.CustomerID
	inv.WorkID = in.WorkID
	inv.IssueDate = in.IssueDate
	inv.DueDate = in.DueDate
	inv.Currency = in.Currency
	inv.Notes = in.Notes
	inv.Items = make([]model.InvoiceItem, len(in.Items))
	for i, it := range in.Items {
		inv.Items[i] = model.InvoiceItem{
			Description: it.Description,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			TaxRate:     it.TaxRate,
		}
	}
	ApplyTotals(inv)
}

func notFound(err error) error {
	if errors.Is(err, database.ErrNotFound) {
		return apperr.NotFound("invoice")
	}
	return err
}

// Service holds the invoice operations that span more than one statement.
type Service struct {
	db      *sqlx.DB
	now     func() time.Time
	dueDays func() int
}

// NewService returns a Service whose default due period comes from dueDays,
// read on every call so configuration reloads apply.
func NewService(db *sqlx.DB, dueDays func() int) *Service {
	return &Service{db: db, now: time.Now, dueDays: dueDays}
}

func (s *Service) Create(ctx context.Context, in Input) (*model.Invoice, error) {
	if err := in.normalize(s.now(), s.dueDays()); err != nil {
		return nil, err
	}
	var id int64
	err := database.InTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if err := in.resolve(ctx, tx); err != nil {
			return err
		}
		inv := model.Invoice{Status: model.InvoiceDraft, AmountPaid: decimal.Zero}
		in.apply(&inv)
		if err := database.CreateInvoiceInTx(ctx, tx, &inv); err != nil {
			return err
		}
		id = inv.ID
		return nil
	})
	if err != nil {
		return nil, err
	}
	return database.GetInvoice(ctx, s.db, id)
}

// Update rewrites the header and items of a draft invoice.
func (s *Service) Update(ctx context.Context, id int64, in Input) (*model.Invoice, error) {
	if err := in.normalize(s.now(), s.dueDays()); err != nil {
		return nil, err
	}
	err := database.InTx(ctx, s.db, func(tx *sqlx.Tx) error {
		inv, err := database.GetInvoice(ctx, tx, id)
		if err != nil {
			return notFound(err)
		}
		if inv.Status != model.InvoiceDraft {
			return apperr.Conflict("only draft invoices can be edited").WithDetails("status", inv.Status)
		}
		if err := in.resolve(ctx, tx); err != nil {
			return err
		}
		in.apply(inv)
		return database.UpdateInvoiceInTx(ctx, tx, inv)
	})
	if err != nil {
		return nil, err
	}
	return database.GetInvoice(ctx, s.db, id)
}

// SetStatus moves the invoice along the allowed transitions. Marking an
// invoice paid stamps today's date as the paid date and records a settling
// payment for whatever balance was still due.
func (s *Service) SetStatus(ctx context.Context, id int64, to model.InvoiceStatus) (*model.Invoice, error) {
	if !to.Valid() {
		return nil, apperr.Invalid("unknown invoice status: " + string(to))
	}
	err := database.InTx(ctx, s.db, func(tx *sqlx.Tx) error {
		inv, err := database.GetInvoice(ctx, tx, id)
		if err != nil {
			return notFound(err)
		}
		if !CanTransition(inv.Status, to) {
			return apperr.Conflict(fmt.Sprintf("cannot move invoice from %s to %s", inv.Status, to))
		}
		var paidDate *string
		if to == model.InvoicePaid {
			d := s.now().Format(validate.DateLayout)
			paidDate = &d
			if balance := inv.BalanceDue(); balance.IsPositive() {
				p := model.InvoicePayment{InvoiceID: id, Amount: balance, PaymentDate: d, Method: "manual", Note: "settled on status change"}
				if err := database.AddPaymentInTx(ctx, tx, &p, inv.Total); err != nil {
					return err
				}
			}
		}
		return database.UpdateInvoiceStatus(ctx, tx, id, to, paidDate)
	})
	if err != nil {
		return nil, err
	}
	return database.GetInvoice(ctx, s.db, id)
}

type PaymentInput struct {
	Amount decimal.Decimal `json:"amount"`
	Date   string          `json:"date"`
	Method string          `json:"method"`
	Note   string          `json:"note"`
}

// AddPayment records a payment against a sent or overdue invoice. A payment
// that clears the balance marks the invoice paid on the payment date.
func (s *Service) AddPayment(ctx context.Context, id int64, in PaymentInput) (*model.Invoice, *model.InvoicePayment, error) {
	in.Date = strings.TrimSpace(in.Date)
	if err := validate.Date("date", in.Date); err != nil {
		return nil, nil, err
	}
	if in.Date == "" {
		in.Date = s.now().Format(validate.DateLayout)
	}
	amount := money.Round2(in.Amount)
	if !amount.IsPositive() {
		return nil, nil, apperr.Invalid("amount must be at least 0.01")
	}

	p := model.InvoicePayment{
		InvoiceID:   id,
		Amount:      amount,
		PaymentDate: in.Date,
		Method:      strings.TrimSpace(in.Method),
		Note:        in.Note,
	}
	err := database.InTx(ctx, s.db, func(tx *sqlx.Tx) error {
		inv, err := database.GetInvoice(ctx, tx, id)
		if err != nil {
			return notFound(err)
		}
		if inv.Status != model.InvoiceSent && inv.Status != model.InvoiceOverdue {
			return apperr.Conflict("payments can only be recorded on sent or overdue invoices").WithDetails("status", inv.Status)
		}
		balance := inv.BalanceDue()
		if amount.GreaterThan(balance) {
			return apperr.Invalid("payment exceeds the balance due").WithDetails("balanceDue", balance.StringFixed(2))
		}
		paid := inv.AmountPaid.Add(amount)
		if err := database.AddPaymentInTx(ctx, tx, &p, paid); err != nil {
			return err
		}
		if paid.GreaterThanOrEqual(inv.Total) {
			return database.UpdateInvoiceStatus(ctx, tx, id, model.InvoicePaid, &p.PaymentDate)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	inv, err := database.GetInvoice(ctx, s.db, id)
	if err != nil {
		return nil, nil, err
	}
	return inv, &p, nil
}

// MarkOverdue flips every sent invoice due before asOf to overdue and
// returns the affected IDs.
func (s *Service) MarkOverdue(ctx context.Context, asOf time.Time) ([]int64, error) {
	var ids []int64
	err := database.InTx(ctx, s.db, func(tx *sqlx.Tx) error {
		var err error
		ids, err = database.MarkOverdueInTx(ctx, tx, asOf.Format(validate.DateLayout))
		return err
	})
	return ids, err
}

// Delete removes draft and cancelled invoices. Issued invoices must be
// cancelled first.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return database.InTx(ctx, s.db, func(tx *sqlx.Tx) error {
		inv, err := database.GetInvoice(ctx, tx, id)
		if err != nil {
			return notFound(err)
		}
		if inv.Status != model.InvoiceDraft && inv.Status != model.InvoiceCancelled {
			return apperr.Conflict("only draft or cancelled invoices can be deleted").WithDetails("status", inv.Status)
		}
		return database.DeleteInvoiceInTx(ctx, tx, id)
	})
}

func (s *Service) Get(ctx context.Context, id int64) (*model.Invoice, error) {
	inv, err := database.GetInvoice(ctx, s.db, id)
	if err != nil {
		return nil, notFound(err)
	}
	return inv, nil
}
