package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"backoffice/model"
)

const accountColumns = `id, code, name, type, parent_id, description, created_at`

// DefaultChart is the small-business chart of accounts seeded into an empty database.
var DefaultChart = []model.Account{
	{Code: "1000", Name: "Cash", Type: model.AccountAsset},
	{Code: "1100", Name: "Bank", Type: model.AccountAsset},
	{Code: "1200", Name: "Accounts Receivable", Type: model.AccountAsset},
	{Code: "2000", Name: "Accounts Payable", Type: model.AccountLiability},
	{Code: "2100", Name: "Tax Payable", Type: model.AccountLiability},
	{Code: "3000", Name: "Owner's Equity", Type: model.AccountEquity},
	{Code: "4000", Name: "Sales Revenue", Type: model.AccountIncome},
	{Code: "4100", Name: "Service Revenue", Type: model.AccountIncome},
	{Code: "5000", Name: "Cost of Goods Sold", Type: model.AccountExpense},
	{Code: "6000", Name: "Operating Expenses", Type: model.AccountExpense},
	{Code: "6100", Name: "Salaries", Type: model.AccountExpense},
	{Code: "6200", Name: "Rent", Type: model.AccountExpense},
}

func ListAccounts(ctx context.Context, q sqlx.ExtContext, accountType string) ([]model.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts`
	var args []any
	if accountType != "" {
		query += ` WHERE type = ?`
		args = append(args, accountType)
	}
	query += ` ORDER BY code`

	accounts := []model.Account{}
	if err := sqlx.SelectContext(ctx, q, &accounts, q.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	return accounts, nil
}

func GetAccount(ctx context.Context, q sqlx.ExtContext, id int64) (*model.Account, error) {
	var a model.Account
	err := sqlx.GetContext(ctx, q, &a, q.Rebind(`SELECT `+accountColumns+` FROM accounts WHERE id = ?`), id)
	if err != nil {
		return nil, fmt.Errorf("GetAccount (ID: %d) failed: %w", id, notFound(err))
	}
	return &a, nil
}

func GetAccountByCode(ctx context.Context, q sqlx.ExtContext, code string) (*model.Account, error) {
	var a model.Account
	err := sqlx.GetContext(ctx, q, &a, q.Rebind(`SELECT `+accountColumns+` FROM accounts WHERE code = ?`), code)
	if err != nil {
		return nil, fmt.Errorf("GetAccountByCode (Code: %s) failed: %w", code, notFound(err))
	}
	return &a, nil
}

func CreateAccount(ctx context.Context, q sqlx.ExtContext, a *model.Account) error {
	a.CreatedAt = now()
	err := sqlx.GetContext(ctx, q, &a.ID, q.Rebind(`
		INSERT INTO accounts (code, name, type, parent_id, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?) RETURNING id`),
		a.Code, a.Name, a.Type, a.ParentID, a.Description, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("CreateAccount (Code: %s) failed: %w", a.Code, err)
	}
	return nil
}

func UpdateAccount(ctx context.Context, q sqlx.ExtContext, a *model.Account) error {
	res, err := q.ExecContext(ctx, q.Rebind(`
		UPDATE accounts SET code = ?, name = ?, type = ?, parent_id = ?, description = ? WHERE id = ?`),
		a.Code, a.Name, a.Type, a.ParentID, a.Description, a.ID)
	if err != nil {
		return fmt.Errorf("UpdateAccount (ID: %d) failed: %w", a.ID, err)
	}
	return requireAffected(res, a.ID)
}

// CountAccountReferences counts voucher entries and child accounts that point at the account.
func CountAccountReferences(ctx context.Context, q sqlx.ExtContext, id int64) (entries, children int, err error) {
	if err = sqlx.GetContext(ctx, q, &entries, q.Rebind(`SELECT COUNT(*) FROM voucher_entries WHERE account_id = ?`), id); err != nil {
		return 0, 0, fmt.Errorf("failed to count entries for account %d: %w", id, err)
	}
	if err = sqlx.GetContext(ctx, q, &children, q.Rebind(`SELECT COUNT(*) FROM accounts WHERE parent_id = ?`), id); err != nil {
		return 0, 0, fmt.Errorf("failed to count child accounts for account %d: %w", id, err)
	}
	return entries, children, nil
}

func DeleteAccount(ctx context.Context, q sqlx.ExtContext, id int64) error {
	res, err := q.ExecContext(ctx, q.Rebind(`DELETE FROM accounts WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete account with id %d: %w", id, err)
	}
	return requireAffected(res, id)
}

// SeedDefaultChartInTx inserts DefaultChart when the accounts table is empty and
// returns the number of accounts created.
func SeedDefaultChartInTx(ctx context.Context, tx sqlx.ExtContext) (int, error) {
	var n int
	if err := sqlx.GetContext(ctx, tx, &n, `SELECT COUNT(*) FROM accounts`); err != nil {
		return 0, fmt.Errorf("failed to count accounts: %w", err)
	}
	if n > 0 {
		return 0, nil
	}
	for _, a := range DefaultChart {
		a := a
		if err := CreateAccount(ctx, tx, &a); err != nil {
			return 0, err
		}
	}
	return len(DefaultChart), nil
}
