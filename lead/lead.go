package lead

import (
	"context"
	"errors"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"backoffice/apperr"
	"backoffice/database"
	"backoffice/model"
	"backoffice/validate"
)

// Input is the editable part of a lead.
type Input struct {
	Name           string           `json:"name"`
	Company        string           `json:"company"`
	Email          string           `json:"email"`
	Phone          string           `json:"phone"`
	Source         string           `json:"source"`
	Status         model.LeadStatus `json:"status"`
	EstimatedValue decimal.Decimal  `json:"estimatedValue"`
	Notes          string           `json:"notes"`
	OwnerID        *int64           `json:"ownerId"`
}

// Normalize trims the input, applies defaults and validates it.
func (in *Input) Normalize() error {
	in.Name = strings.TrimSpace(in.Name)
	in.Company = strings.TrimSpace(in.Company)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Phone = strings.TrimSpace(in.Phone)
	in.Source = strings.TrimSpace(in.Source)
	if in.Status == "" {
		in.Status = model.LeadNew
	}
	if err := validate.First(
		validate.Required("name", in.Name),
		validate.Email("email", in.Email),
	); err != nil {
		return err
	}
	if !in.Status.Valid() {
		return apperr.Invalid("unknown lead status: " + string(in.Status))
	}
	if in.EstimatedValue.IsNegative() {
		return apperr.Invalid("estimatedValue must not be negative")
	}
	in.EstimatedValue = in.EstimatedValue.Round(2)
	return nil
}

// Apply copies the normalized input onto l.
func (in *Input) Apply(l *model.Lead) {
	l.Name = in.Name
	l.Company = in.Company
	l.Email = in.Email
	l.Phone = in.Phone
	l.Source = in.Source
	l.Status = in.Status
	l.EstimatedValue = in.EstimatedValue
	l.Notes = in.Notes
	l.OwnerID = in.OwnerID
}

func ownerExists(ctx context.Context, q sqlx.ExtContext, id *int64) error {
	if id == nil {
		return nil
	}
	if _, err := database.GetUserByID(ctx, q, *id); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return apperr.Invalid("owner does not exist")
		}
		return err
	}
	return nil
}

// Conversion is the outcome of turning a lead into a customer.
type Conversion struct {
	Lead     *model.Lead     `json:"lead"`
	Customer *model.Customer `json:"customer"`
}

// Convert creates a customer from the lead and marks the lead won, in one
// transaction. A lead can only be converted once.
func Convert(ctx context.Context, db *sqlx.DB, id int64, currency string) (*Conversion, error) {
	var out Conversion
	err := database.InTx(ctx, db, func(tx *sqlx.Tx) error {
		l, err := database.GetLead(ctx, tx, id)
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				return apperr.NotFound("lead")
			}
			return err
		}
		if l.CustomerID != nil {
			return apperr.Conflict("lead has already been converted").WithDetails("customerId", *l.CustomerID)
		}

		exists, err := database.CustomerNameExists(ctx, tx, l.Name, 0)
		if err != nil {
			return err
		}
		if exists {
			return apperr.Conflict("a customer named " + l.Name + " already exists")
		}

		c := &model.Customer{
			Name:     l.Name,
			Company:  l.Company,
			Email:    l.Email,
			Phone:    l.Phone,
			Currency: currency,
			Notes:    l.Notes,
		}
		if err := database.CreateCustomerInTx(ctx, tx, c); err != nil {
			return err
		}
		ok, err := database.MarkLeadConverted(ctx, tx, id, c.ID)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.Conflict("lead has already been converted")
		}
		if l, err = database.GetLead(ctx, tx, id); err != nil {
			return err
		}
		out = Conversion{Lead: l, Customer: c}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}
