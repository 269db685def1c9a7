package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"backoffice/model"
)

const voucherColumns = `id, number, type, date, narration, reference, created_by, created_at, updated_at`

func ListVouchers(ctx context.Context, q sqlx.ExtContext, f model.VoucherFilters) ([]model.Voucher, error) {
	var conds []string
	var args []any
	if f.Type != "" {
		conds = append(conds, "type = ?")
		args = append(args, f.Type)
	}
	if f.From != "" {
		conds = append(conds, "date >= ?")
		args = append(args, f.From)
	}
	if f.To != "" {
		conds = append(conds, "date <= ?")
		args = append(args, f.To)
	}

	query := `SELECT ` + voucherColumns + ` FROM vouchers`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY date DESC, id DESC"

	vouchers := []model.Voucher{}
	if err := sqlx.SelectContext(ctx, q, &vouchers, q.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list vouchers: %w", err)
	}
	return vouchers, nil
}

func GetVoucher(ctx context.Context, q sqlx.ExtContext, id int64) (*model.Voucher, error) {
	var v model.Voucher
	err := sqlx.GetContext(ctx, q, &v, q.Rebind(`SELECT `+voucherColumns+` FROM vouchers WHERE id = ?`), id)
	if err != nil {
		return nil, fmt.Errorf("GetVoucher (ID: %d) failed: %w", id, notFound(err))
	}

	v.Entries = []model.VoucherEntry{}
	err = sqlx.SelectContext(ctx, q, &v.Entries, q.Rebind(`
		SELECT e.id, e.voucher_id, e.account_id, a.code AS account_code, a.name AS account_name,
			e.debit, e.credit, e.memo, e.position
		FROM voucher_entries e
		JOIN accounts a ON a.id = e.account_id
		WHERE e.voucher_id = ?
		ORDER BY e.position, e.id`), id)
	if err != nil {
		return nil, fmt.Errorf("failed to load entries for voucher %d: %w", id, err)
	}
	return &v, nil
}

// CountExistingAccounts returns how many of ids exist in accounts.
func CountExistingAccounts(ctx context.Context, q sqlx.ExtContext, ids []int64) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query, args, err := sqlx.In(`SELECT COUNT(*) FROM accounts WHERE id IN (?)`, ids)
	if err != nil {
		return 0, err
	}
	var n int
	if err := sqlx.GetContext(ctx, q, &n, q.Rebind(query), args...); err != nil {
		return 0, fmt.Errorf("failed to check accounts: %w", err)
	}
	return n, nil
}

// CreateVoucherInTx numbers the voucher from its type prefix and inserts it with its entries.
func CreateVoucherInTx(ctx context.Context, tx sqlx.ExtContext, v *model.Voucher) error {
	if v.Number == "" {
		prefix := v.Type.NumberPrefix()
		number, err := NextSequenceInTx(ctx, tx, strings.TrimSuffix(prefix, "-"), prefix, 5)
		if err != nil {
			return err
		}
		v.Number = number
	}
	v.CreatedAt = now()
	v.UpdatedAt = v.CreatedAt
	err := sqlx.GetContext(ctx, tx, &v.ID, tx.Rebind(`
		INSERT INTO vouchers (number, type, date, narration, reference, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		v.Number, v.Type, v.Date, v.Narration, v.Reference, v.CreatedBy, v.CreatedAt, v.UpdatedAt)
	if err != nil {
		return fmt.Errorf("CreateVoucherInTx (Number: %s) failed: %w", v.Number, err)
	}
	return insertVoucherEntries(ctx, tx, v)
}

// UpdateVoucherInTx rewrites the header and replaces all entries. The number and type are kept.
func UpdateVoucherInTx(ctx context.Context, tx sqlx.ExtContext, v *model.Voucher) error {
	v.UpdatedAt = now()
	res, err := tx.ExecContext(ctx, tx.Rebind(`
		UPDATE vouchers SET date = ?, narration = ?, reference = ?, updated_at = ? WHERE id = ?`),
		v.Date, v.Narration, v.Reference, v.UpdatedAt, v.ID)
	if err != nil {
		return fmt.Errorf("UpdateVoucherInTx (ID: %d) failed: %w", v.ID, err)
	}
	if err := requireAffected(res, v.ID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM voucher_entries WHERE voucher_id = ?`), v.ID); err != nil {
		return fmt.Errorf("failed to clear entries for voucher %d: %w", v.ID, err)
	}
	return insertVoucherEntries(ctx, tx, v)
}

func insertVoucherEntries(ctx context.Context, tx sqlx.ExtContext, v *model.Voucher) error {
	query := tx.Rebind(`
		INSERT INTO voucher_entries (voucher_id, account_id, debit, credit, memo, position)
		VALUES (?, ?, ?, ?, ?, ?) RETURNING id`)
	for i := range v.Entries {
		e := &v.Entries[i]
		e.VoucherID = v.ID
		e.Position = i + 1
		if err := sqlx.GetContext(ctx, tx, &e.ID, query, e.VoucherID, e.AccountID, e.Debit, e.Credit, e.Memo, e.Position); err != nil {
			return fmt.Errorf("failed to insert entry %d for voucher %d: %w", e.Position, v.ID, err)
		}
	}
	return nil
}

func DeleteVoucherInTx(ctx context.Context, tx sqlx.ExtContext, id int64) error {
	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM voucher_entries WHERE voucher_id = ?`), id); err != nil {
		return fmt.Errorf("failed to delete entries for voucher %d: %w", id, err)
	}
	res, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM vouchers WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete voucher with id %d: %w", id, err)
	}
	return requireAffected(res, id)
}
