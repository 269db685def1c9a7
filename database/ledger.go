package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"backoffice/model"
)

// AccountSumsBefore returns the debit and credit totals posted to the account
// on dates strictly before date.
func AccountSumsBefore(ctx context.Context, q sqlx.ExtContext, accountID int64, date string) (debit, credit decimal.Decimal, err error) {
	var sums struct {
		Debit  decimal.Decimal `db:"debit"`
		Credit decimal.Decimal `db:"credit"`
	}
	err = sqlx.GetContext(ctx, q, &sums, q.Rebind(`
		SELECT COALESCE(SUM(e.debit), 0) AS debit, COALESCE(SUM(e.credit), 0) AS credit
		FROM voucher_entries e
		JOIN vouchers v ON v.id = e.voucher_id
		WHERE e.account_id = ? AND v.date < ?`), accountID, date)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("failed to sum entries for account %d: %w", accountID, err)
	}
	return sums.Debit.Round(2), sums.Credit.Round(2), nil
}

// ListLedgerLines returns the account's entries in [from, to], ordered by
// voucher date then voucher id. Empty bounds are open.
func ListLedgerLines(ctx context.Context, q sqlx.ExtContext, accountID int64, from, to string) ([]model.LedgerLine, error) {
	query := `
		SELECT v.id AS voucher_id, v.number AS voucher_number, v.date, v.narration, e.memo, e.debit, e.credit
		FROM voucher_entries e
		JOIN vouchers v ON v.id = e.voucher_id
		WHERE e.account_id = ?`
	args := []any{accountID}
	if from != "" {
		query += " AND v.date >= ?"
		args = append(args, from)
	}
	if to != "" {
		query += " AND v.date <= ?"
		args = append(args, to)
	}
	query += " ORDER BY v.date, v.id, e.position"

	lines := []model.LedgerLine{}
	if err := sqlx.SelectContext(ctx, q, &lines, q.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list ledger lines for account %d: %w", accountID, err)
	}
	return lines, nil
}

// ListAccountTotals returns debit and credit sums per account for vouchers
// dated on or before asOf (all vouchers when asOf is empty). Accounts
// without entries are included with zero totals.
func ListAccountTotals(ctx context.Context, q sqlx.ExtContext, asOf string) ([]model.AccountTotals, error) {
	dateCond := ""
	var args []any
	if asOf != "" {
		dateCond = " AND v.date <= ?"
		args = append(args, asOf)
	}
	query := `
		SELECT a.id AS account_id, a.code, a.name, a.type,
			COALESCE(SUM(CASE WHEN v.id IS NOT NULL THEN e.debit ELSE 0 END), 0) AS debit,
			COALESCE(SUM(CASE WHEN v.id IS NOT NULL THEN e.credit ELSE 0 END), 0) AS credit
		FROM accounts a
		LEFT JOIN voucher_entries e ON e.account_id = a.id
		LEFT JOIN vouchers v ON v.id = e.voucher_id` + dateCond + `
		GROUP BY a.id, a.code, a.name, a.type
		ORDER BY a.code`

	totals := []model.AccountTotals{}
	if err := sqlx.SelectContext(ctx, q, &totals, q.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list account totals: %w", err)
	}
	for i := range totals {
		totals[i].Debit = totals[i].Debit.Round(2)
		totals[i].Credit = totals[i].Credit.Round(2)
	}
	return totals, nil
}
