package work

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"backoffice/apperr"
	"backoffice/database"
	"backoffice/model"
	"backoffice/validate"
)

type Input struct {
	Title       string           `json:"title"`
	Description string           `json:"description"`
	CustomerID  int64            `json:"customerId"`
	StaffID     *int64           `json:"staffId"`
	Status      model.WorkStatus `json:"status"`
	StartDate   string           `json:"startDate"`
	DueDate     string           `json:"dueDate"`
	Amount      decimal.Decimal  `json:"amount"`
}

func (in *Input) normalize() error {
	in.Title = strings.TrimSpace(in.Title)
	in.StartDate = strings.TrimSpace(in.StartDate)
	in.DueDate = strings.TrimSpace(in.DueDate)
	if in.Status == "" {
		in.Status = model.WorkPending
	}
	if err := validate.First(
		validate.Required("title", in.Title),
		validate.Date("startDate", in.StartDate),
		validate.Date("dueDate", in.DueDate),
	); err != nil {
		return err
	}
	if in.CustomerID <= 0 {
		return apperr.Invalid("customerId is required")
	}
	if !in.Status.Valid() {
		return apperr.Invalid("unknown work status: " + string(in.Status))
	}
	// YYYY-MM-DD compares correctly as text.
	if in.StartDate != "" && in.DueDate != "" && in.DueDate < in.StartDate {
		return apperr.Invalid("dueDate must not be before startDate")
	}
	if in.Amount.IsNegative() {
		return apperr.Invalid("amount must not be negative")
	}
	in.Amount = in.Amount.Round(2)
	return nil
}

// checkReferences makes sure the customer and the optional staff member exist.
func (in *Input) checkReferences(ctx context.Context, q sqlx.ExtContext) error {
	if _, err := database.GetCustomer(ctx, q, in.CustomerID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return apperr.Invalid("customer does not exist")
		}
		return err
	}
	if in.StaffID != nil {
		if _, err := database.GetStaff(ctx, q, *in.StaffID); err != nil {
			if errors.Is(err, database.ErrNotFound) {
				return apperr.Invalid("staff member does not exist")
			}
			return err
		}
	}
	return nil
}

// apply copies the input onto w. completed_at is stamped when the work
// becomes completed and cleared when it leaves that status.
func (in *Input) apply(w *model.Work, now time.Time) {
	wasCompleted := w.Status == model.WorkCompleted
	w.Title = in.Title
	w.Description = in.Description
	w.CustomerID = in.CustomerID
	w.StaffID = in.StaffID
	w.Status = in.Status
	w.StartDate = in.StartDate
	w.DueDate = in.DueDate
	w.Amount = in.Amount

	switch {
	case w.Status == model.WorkCompleted && (!wasCompleted || w.CompletedAt == nil):
		t := now.UTC().Truncate(time.Second)
		w.CompletedAt = &t
	case w.Status != model.WorkCompleted:
		w.CompletedAt = nil
	}
}
