package database

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// NextSequenceInTx increments the named counter and formats it as prefix plus
// a zero-padded number. The counter row is created on first use.
func NextSequenceInTx(ctx context.Context, tx sqlx.ExtContext, name, prefix string, padding int) (string, error) {
	if _, err := tx.ExecContext(ctx, tx.Rebind(
		`INSERT INTO code_sequences (name, last_no) VALUES (?, 0) ON CONFLICT (name) DO NOTHING`), name); err != nil {
		return "", fmt.Errorf("failed to create sequence '%s': %w", name, err)
	}

	var next int
	err := sqlx.GetContext(ctx, tx, &next, tx.Rebind(
		`UPDATE code_sequences SET last_no = last_no + 1 WHERE name = ? RETURNING last_no`), name)
	if err != nil {
		return "", fmt.Errorf("failed to update sequence '%s': %w", name, err)
	}

	return fmt.Sprintf("%s%0*d", prefix, padding, next), nil
}

// InitializeSequenceFromMaxCode moves the counter past the highest existing
// code in table.column that starts with prefix, so codes inserted by imports
// or restores are never handed out again. It never moves a counter backwards.
func InitializeSequenceFromMaxCode(ctx context.Context, tx sqlx.ExtContext, name, table, column, prefix string) error {
	var codes []string
	q := fmt.Sprintf(`SELECT %s FROM %s WHERE %s LIKE ?`, column, table, column)
	if err := sqlx.SelectContext(ctx, tx, &codes, tx.Rebind(q), prefix+"%"); err != nil {
		return fmt.Errorf("failed to read %s.%s: %w", table, column, err)
	}

	// Only all-digit suffixes count; CUSTOM is not a generated code.
	maxNum := 0
	for _, code := range codes {
		suffix := strings.TrimPrefix(code, prefix)
		if suffix == "" || strings.TrimLeft(suffix, "0123456789") != "" {
			continue
		}
		n, err := strconv.Atoi(suffix)
		if err != nil {
			continue
		}
		if n > maxNum {
			maxNum = n
		}
	}

	zap.L().Info("initializing code sequence", zap.String("sequence", name), zap.Int("last_no", maxNum))

	_, err := tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO code_sequences (name, last_no) VALUES (?, ?)
		ON CONFLICT (name) DO UPDATE SET last_no = excluded.last_no
		WHERE code_sequences.last_no < excluded.last_no`), name, maxNum)
	if err != nil {
		return fmt.Errorf("failed to initialize sequence '%s': %w", name, err)
	}
	return nil
}
