package accounting

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"backoffice/apperr"
	"backoffice/database"
	"backoffice/httpx"
	"backoffice/logging"
	"backoffice/model"
	"backoffice/validate"
)

// signed turns raw debit and credit amounts into a movement in the
// account's normal direction.
func signed(t model.AccountType, debit, credit decimal.Decimal) decimal.Decimal {
	if t.DebitNormal() {
		return debit.Sub(credit)
	}
	return credit.Sub(debit)
}

// BuildLedger returns the account's entries between from and to (either may
// be empty) with an opening balance, a running balance on every line and a
// closing balance, all in the account's normal direction.
func BuildLedger(ctx context.Context, q sqlx.ExtContext, accountID int64, from, to string) (*model.Ledger, error) {
	if err := validate.First(validate.Date("from", from), validate.Date("to", to)); err != nil {
		return nil, err
	}
	if from != "" && to != "" && to < from {
		return nil, apperr.Invalid("to must not be before from")
	}
	a, err := database.GetAccount(ctx, q, accountID)
	if err != nil {
		return nil, accountNotFound(err)
	}

	opening := decimal.Zero
	if from != "" {
		debit, credit, err := database.AccountSumsBefore(ctx, q, accountID, from)
		if err != nil {
			return nil, err
		}
		opening = signed(a.Type, debit, credit)
	}

	lines, err := database.ListLedgerLines(ctx, q, accountID, from, to)
	if err != nil {
		return nil, err
	}

	l := &model.Ledger{
		Account:        *a,
		From:           from,
		To:             to,
		OpeningBalance: opening,
		Lines:          lines,
		TotalDebit:     decimal.Zero,
		TotalCredit:    decimal.Zero,
	}
	balance := opening
	for i := range l.Lines {
		line := &l.Lines[i]
		balance = balance.Add(signed(a.Type, line.Debit, line.Credit))
		line.Balance = balance
		l.TotalDebit = l.TotalDebit.Add(line.Debit)
		l.TotalCredit = l.TotalCredit.Add(line.Credit)
	}
	l.ClosingBalance = balance
	return l, nil
}

// BuildTrialBalance sums every account with activity up to asOf (everything
// when empty). The net of each account lands in the debit or credit column
// by its sign.
func BuildTrialBalance(ctx context.Context, q sqlx.ExtContext, asOf string) (*model.TrialBalance, error) {
	if err := validate.Date("asOf", asOf); err != nil {
		return nil, err
	}
	totals, err := database.ListAccountTotals(ctx, q, asOf)
	if err != nil {
		return nil, err
	}

	tb := &model.TrialBalance{
		AsOf:        asOf,
		Rows:        []model.TrialBalanceRow{},
		TotalDebit:  decimal.Zero,
		TotalCredit: decimal.Zero,
	}
	for _, t := range totals {
		if t.Debit.IsZero() && t.Credit.IsZero() {
			continue
		}
		row := model.TrialBalanceRow{
			AccountID:     t.AccountID,
			Code:          t.Code,
			Name:          t.Name,
			Type:          t.Type,
			DebitTotal:    t.Debit,
			CreditTotal:   t.Credit,
			DebitBalance:  decimal.Zero,
			CreditBalance: decimal.Zero,
		}
		if net := t.Debit.Sub(t.Credit); net.IsPositive() {
			row.DebitBalance = net
		} else {
			row.CreditBalance = net.Neg()
		}
		tb.TotalDebit = tb.TotalDebit.Add(row.DebitBalance)
		tb.TotalCredit = tb.TotalCredit.Add(row.CreditBalance)
		tb.Rows = append(tb.Rows, row)
	}
	tb.Balanced = tb.TotalDebit.Equal(tb.TotalCredit)
	if !tb.Balanced {
		logging.FromContext(ctx).Warn("trial balance does not balance",
			zap.String("as_of", asOf),
			zap.String("debit", tb.TotalDebit.StringFixed(2)),
			zap.String("credit", tb.TotalCredit.StringFixed(2)))
	}
	return tb, nil
}

// LedgerHandler handles GET /api/ledger/{accountId}?from=&to=
func LedgerHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := httpx.PathID(r, "accountId")
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		q := r.URL.Query()
		l, err := BuildLedger(r.Context(), db, id, q.Get("from"), q.Get("to"))
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, l)
	}
}

// ExportLedgerCSVHandler handles GET /api/ledger/{accountId}/export.csv.
func ExportLedgerCSVHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := httpx.PathID(r, "accountId")
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		q := r.URL.Query()
		l, err := BuildLedger(r.Context(), db, id, q.Get("from"), q.Get("to"))
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}

		header := []string{"Date", "Voucher", "Narration", "Memo", "Debit", "Credit", "Balance"}
		rows := make([][]string, 0, len(l.Lines)+2)
		rows = append(rows, []string{l.From, "", "Opening balance", "", "", "", l.OpeningBalance.StringFixed(2)})
		for _, line := range l.Lines {
			rows = append(rows, []string{
				line.Date,
				line.VoucherNumber,
				line.Narration,
				line.Memo,
				line.Debit.StringFixed(2),
				line.Credit.StringFixed(2),
				line.Balance.StringFixed(2),
			})
		}
		rows = append(rows, []string{l.To, "", "Closing balance", "", l.TotalDebit.StringFixed(2), l.TotalCredit.StringFixed(2), l.ClosingBalance.StringFixed(2)})

		filename := fmt.Sprintf("ledger_%s.csv", l.Account.Code)
		if err := httpx.WriteCSV(w, filename, header, rows); err != nil {
			logging.FromContext(r.Context()).Warn("ledger export write failed", zap.Error(err))
		}
	}
}

// TrialBalanceHandler handles GET /api/trial-balance?asOf=
func TrialBalanceHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tb, err := BuildTrialBalance(r.Context(), db, r.URL.Query().Get("asOf"))
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, tb)
	}
}
