package accounting

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"backoffice/apperr"
	"backoffice/auth"
	"backoffice/database"
	"backoffice/httpx"
	"backoffice/model"
	"backoffice/realtime"
	"backoffice/validate"
)

type EntryInput struct {
	AccountID int64           `json:"accountId"`
	Debit     decimal.Decimal `json:"debit"`
	Credit    decimal.Decimal `json:"credit"`
	Memo      string          `json:"memo"`
}

type VoucherInput struct {
	Type      model.VoucherType `json:"type"`
	Date      string            `json:"date"`
	Narration string            `json:"narration"`
	Reference string            `json:"reference"`
	Entries   []EntryInput      `json:"entries"`
}

const unbalancedMessage = "voucher is not balanced"

// normalize validates the voucher shape: at least two entries, each on
// exactly one side, and equal debit and credit totals.
func (in *VoucherInput) normalize() error {
	in.Date = strings.TrimSpace(in.Date)
	in.Narration = strings.TrimSpace(in.Narration)
	in.Reference = strings.TrimSpace(in.Reference)
	if in.Type == "" {
		in.Type = model.VoucherJournal
	}
	if !in.Type.Valid() {
		return apperr.Invalid("unknown voucher type: " + string(in.Type))
	}
	if err := validate.First(validate.Required("date", in.Date), validate.Date("date", in.Date)); err != nil {
		return err
	}
	if len(in.Entries) < 2 {
		return apperr.Invalid("a voucher needs at least two entries")
	}

	debit, credit := decimal.Zero, decimal.Zero
	for i := range in.Entries {
		e := &in.Entries[i]
		line := i + 1
		e.Debit = e.Debit.Round(2)
		e.Credit = e.Credit.Round(2)
		switch {
		case e.AccountID <= 0:
			return apperr.Invalid(fmt.Sprintf("entry %d: accountId is required", line))
		case e.Debit.IsNegative() || e.Credit.IsNegative():
			return apperr.Invalid(fmt.Sprintf("entry %d: amounts must not be negative", line))
		case e.Debit.IsPositive() == e.Credit.IsPositive():
			return apperr.Invalid(fmt.Sprintf("entry %d: exactly one of debit or credit must be greater than 0", line))
		}
		debit = debit.Add(e.Debit)
		credit = credit.Add(e.Credit)
	}
	if !debit.Equal(credit) {
		return apperr.Invalid(unbalancedMessage).
			WithDetails("debit", debit.StringFixed(2)).
			WithDetails("credit", credit.StringFixed(2))
	}
	return nil
}

func (in *VoucherInput) checkAccounts(ctx context.Context, q sqlx.ExtContext) error {
	seen := make(map[int64]bool, len(in.Entries))
	ids := make([]int64, 0, len(in.Entries))
	for _, e := range in.Entries {
		if !seen[e.AccountID] {
			seen[e.AccountID] = true
			ids = append(ids, e.AccountID)
		}
	}
	n, err := database.CountExistingAccounts(ctx, q, ids)
	if err != nil {
		return err
	}
	if n != len(ids) {
		return apperr.Invalid("one or more accounts do not exist")
	}
	return nil
}

func (in *VoucherInput) apply(v *model.Voucher) {
	v.Date = in.Date
	v.Narration = in.Narration
	v.Reference = in.Reference
	v.Entries = make([]model.VoucherEntry, len(in.Entries))
	for i, e := range in.Entries {
		v.Entries[i] = model.VoucherEntry{AccountID: e.AccountID, Debit: e.Debit, Credit: e.Credit, Memo: strings.TrimSpace(e.Memo)}
	}
}

func voucherNotFound(err error) error {
	if errors.Is(err, database.ErrNotFound) {
		return apperr.NotFound("voucher")
	}
	return err
}

// CreateVoucher validates and stores a new voucher with its entries in one
// transaction. createdBy may be nil.
func CreateVoucher(ctx context.Context, db *sqlx.DB, in VoucherInput, createdBy *int64) (*model.Voucher, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	var id int64
	err := database.InTx(ctx, db, func(tx *sqlx.Tx) error {
		if err := in.checkAccounts(ctx, tx); err != nil {
			return err
		}
		v := model.Voucher{Type: in.Type, CreatedBy: createdBy}
		in.apply(&v)
		if err := database.CreateVoucherInTx(ctx, tx, &v); err != nil {
			return err
		}
		id = v.ID
		return nil
	})
	if err != nil {
		return nil, err
	}
	return database.GetVoucher(ctx, db, id)
}

// UpdateVoucher replaces the voucher's header and entries. The number and
// type never change once issued; an empty type keeps the stored one.
func UpdateVoucher(ctx context.Context, db *sqlx.DB, id int64, in VoucherInput) (*model.Voucher, error) {
	keepType := in.Type == ""
	if err := in.normalize(); err != nil {
		return nil, err
	}
	err := database.InTx(ctx, db, func(tx *sqlx.Tx) error {
		v, err := database.GetVoucher(ctx, tx, id)
		if err != nil {
			return voucherNotFound(err)
		}
		if keepType {
			in.Type = v.Type
		}
		if in.Type != v.Type {
			return apperr.Invalid("the voucher type cannot be changed").WithDetails("type", v.Type)
		}
		if err := in.checkAccounts(ctx, tx); err != nil {
			return err
		}
		in.apply(v)
		return database.UpdateVoucherInTx(ctx, tx, v)
	})
	if err != nil {
		return nil, err
	}
	return database.GetVoucher(ctx, db, id)
}

func DeleteVoucher(ctx context.Context, db *sqlx.DB, id int64) error {
	return database.InTx(ctx, db, func(tx *sqlx.Tx) error {
		return voucherNotFound(database.DeleteVoucherInTx(ctx, tx, id))
	})
}

// ListVouchersHandler handles GET /api/vouchers?type=&from=&to=
func ListVouchersHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		f := model.VoucherFilters{Type: q.Get("type"), From: q.Get("from"), To: q.Get("to")}
		if f.Type != "" && !model.VoucherType(f.Type).Valid() {
			httpx.WriteError(w, r, apperr.Invalid("unknown voucher type: "+f.Type))
			return
		}
		if err := validate.First(validate.Date("from", f.From), validate.Date("to", f.To)); err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		vouchers, err := database.ListVouchers(r.Context(), db, f)
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, vouchers)
	}
}

func GetVoucherHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := httpx.PathID(r, "id")
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		v, err := database.GetVoucher(r.Context(), db, id)
		if err != nil {
			httpx.WriteError(w, r, voucherNotFound(err))
			return
		}
		httpx.WriteJSON(w, http.StatusOK, v)
	}
}

func CreateVoucherHandler(db *sqlx.DB, pub realtime.Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in VoucherInput
		if err := httpx.DecodeJSON(r, &in); err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		var createdBy *int64
		if sess := auth.SessionFrom(r.Context()); sess != nil {
			uid := sess.Profile.ID
			createdBy = &uid
		}
		v, err := CreateVoucher(r.Context(), db, in, createdBy)
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		realtime.Changed(pub, "vouchers", model.ActionInsert, v.ID, v)
		httpx.WriteJSON(w, http.StatusCreated, v)
	}
}

func UpdateVoucherHandler(db *sqlx.DB, pub realtime.Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := httpx.PathID(r, "id")
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		var in VoucherInput
		if err := httpx.DecodeJSON(r, &in); err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		v, err := UpdateVoucher(r.Context(), db, id, in)
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		realtime.Changed(pub, "vouchers", model.ActionUpdate, v.ID, v)
		httpx.WriteJSON(w, http.StatusOK, v)
	}
}

func DeleteVoucherHandler(db *sqlx.DB, pub realtime.Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := httpx.PathID(r, "id")
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		if err := DeleteVoucher(r.Context(), db, id); err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		realtime.Changed(pub, "vouchers", model.ActionDelete, id, nil)
		httpx.WriteMessage(w, http.StatusOK, "voucher deleted")
	}
}
