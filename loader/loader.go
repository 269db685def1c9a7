// Package loader prepares a database for use and bulk-loads CSV files into it.
package loader

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"backoffice/apperr"
	"backoffice/customer"
	"backoffice/database"
	"backoffice/lead"
	"backoffice/logging"
	"backoffice/migrations"
	"backoffice/model"
	"backoffice/parsers"
)

var now = time.Now

// InitDatabase applies pending migrations, moves the code sequences past any
// existing codes and seeds the chart of accounts into an empty database.
func InitDatabase(ctx context.Context, db *sqlx.DB) error {
	log := logging.FromContext(ctx)

	log.Info("applying database migrations")
	if err := migrations.Up(db); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	return database.InTx(ctx, db, func(tx *sqlx.Tx) error {
		if err := initSequences(ctx, tx); err != nil {
			return err
		}
		n, err := database.SeedDefaultChartInTx(ctx, tx)
		if err != nil {
			return fmt.Errorf("failed to seed chart of accounts: %w", err)
		}
		if n > 0 {
			log.Info("seeded chart of accounts", zap.Int("accounts", n))
		}
		return nil
	})
}

func initSequences(ctx context.Context, tx sqlx.ExtContext) error {
	seq := database.CustomerSequence
	if err := database.InitializeSequenceFromMaxCode(ctx, tx, seq, "customers", "code", seq); err != nil {
		return err
	}
	for _, t := range model.VoucherTypes {
		prefix := t.NumberPrefix()
		if err := database.InitializeSequenceFromMaxCode(ctx, tx, strings.TrimSuffix(prefix, "-"), "vouchers", "number", prefix); err != nil {
			return err
		}
	}
	inv := database.InvoiceSequence(now().Year())
	return database.InitializeSequenceFromMaxCode(ctx, tx, inv, "invoices", "number", inv+"-")
}

// RowError reports one CSV line that was not imported.
type RowError struct {
	Line    int    `json:"line"`
	Message string `json:"message"`
}

type ImportResult struct {
	Created int        `json:"created"`
	Updated int        `json:"updated"`
	Skipped int        `json:"skipped"`
	Errors  []RowError `json:"errors"`

	changes []change
}

type change struct {
	id     int64
	action string
}

func (res *ImportResult) record(id int64, created bool) {
	if created {
		res.Created++
		res.changes = append(res.changes, change{id, model.ActionInsert})
		return
	}
	res.Updated++
	res.changes = append(res.changes, change{id, model.ActionUpdate})
}

func (res *ImportResult) skip(line int, err error) {
	res.Skipped++
	msg := err.Error()
	if e, ok := apperr.As(err); ok {
		msg = e.Message
	}
	res.Errors = append(res.Errors, RowError{Line: line, Message: msg})
}

func decodeInput(r io.Reader, encoding string) (io.Reader, error) {
	decoded, err := parsers.DecodeReader(r, encoding)
	if err != nil {
		return nil, apperr.Invalid(err.Error())
	}
	return decoded, nil
}

// ImportCustomers upserts the customers in a CSV file. Rows with a code
// update the customer holding that code; rows without one get the next CU
// code. Invalid rows and name clashes are skipped and reported. Everything
// else is written in one transaction.
func ImportCustomers(ctx context.Context, db *sqlx.DB, r io.Reader, encoding, defaultCurrency string) (*ImportResult, error) {
	decoded, err := decodeInput(r, encoding)
	if err != nil {
		return nil, err
	}
	records, err := parsers.ParseCustomerCSV(decoded)
	if err != nil {
		return nil, apperr.Invalid(err.Error())
	}

	// Coded rows go first so generated codes start after the highest imported one.
	var coded, uncoded []parsers.ParsedCustomerRecord
	for _, rec := range records {
		if rec.Code != "" {
			coded = append(coded, rec)
		} else {
			uncoded = append(uncoded, rec)
		}
	}

	res := &ImportResult{Errors: []RowError{}}
	err = database.InTx(ctx, db, func(tx *sqlx.Tx) error {
		for _, rec := range coded {
			if err := importCustomer(ctx, tx, rec, defaultCurrency, res); err != nil {
				return err
			}
		}
		seq := database.CustomerSequence
		if err := database.InitializeSequenceFromMaxCode(ctx, tx, seq, "customers", "code", seq); err != nil {
			return err
		}
		for _, rec := range uncoded {
			if err := importCustomer(ctx, tx, rec, defaultCurrency, res); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logging.FromContext(ctx).Info("imported customers",
		zap.Int("created", res.Created), zap.Int("updated", res.Updated), zap.Int("skipped", res.Skipped))
	return res, nil
}

func importCustomer(ctx context.Context, tx *sqlx.Tx, rec parsers.ParsedCustomerRecord, defaultCurrency string, res *ImportResult) error {
	in := customer.Input{
		Name:     rec.Name,
		Company:  rec.Company,
		Email:    rec.Email,
		Phone:    rec.Phone,
		Address:  rec.Address,
		City:     rec.City,
		Country:  rec.Country,
		Currency: rec.Currency,
		TaxID:    rec.TaxID,
		Notes:    rec.Notes,
	}
	if err := in.Normalize(defaultCurrency); err != nil {
		res.skip(rec.Line, err)
		return nil
	}

	c := model.Customer{Code: strings.ToUpper(rec.Code)}
	if c.Code != "" {
		id, err := database.CustomerIDByCode(ctx, tx, c.Code)
		if err != nil {
			return err
		}
		c.ID = id
	}
	clash, err := database.CustomerNameExists(ctx, tx, in.Name, c.ID)
	if err != nil {
		return err
	}
	if clash {
		res.skip(rec.Line, apperr.Conflict("a customer named "+in.Name+" already exists"))
		return nil
	}

	in.Apply(&c)
	var created bool
	if c.Code == "" {
		created, err = true, database.CreateCustomerInTx(ctx, tx, &c)
	} else {
		created, err = database.UpsertCustomerByCodeInTx(ctx, tx, &c)
	}
	if err != nil {
		return err
	}
	res.record(c.ID, created)
	return nil
}

// ImportLeads inserts every valid lead in a CSV file in one transaction.
// Invalid rows are skipped and reported.
func ImportLeads(ctx context.Context, db *sqlx.DB, r io.Reader, encoding string) (*ImportResult, error) {
	decoded, err := decodeInput(r, encoding)
	if err != nil {
		return nil, err
	}
	records, err := parsers.ParseLeadCSV(decoded)
	if err != nil {
		return nil, apperr.Invalid(err.Error())
	}

	res := &ImportResult{Errors: []RowError{}}
	err = database.InTx(ctx, db, func(tx *sqlx.Tx) error {
		for _, rec := range records {
			in := lead.Input{
				Name:           rec.Name,
				Company:        rec.Company,
				Email:          rec.Email,
				Phone:          rec.Phone,
				Source:         rec.Source,
				Status:         model.LeadStatus(strings.ToLower(rec.Status)),
				EstimatedValue: rec.EstimatedValue,
				Notes:          rec.Notes,
			}
			if err := in.Normalize(); err != nil {
				res.skip(rec.Line, err)
				continue
			}
			var l model.Lead
			in.Apply(&l)
			if err := database.CreateLead(ctx, tx, &l); err != nil {
				return err
			}
			res.record(l.ID, true)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logging.FromContext(ctx).Info("imported leads", zap.Int("created", res.Created), zap.Int("skipped", res.Skipped))
	return res, nil
}
