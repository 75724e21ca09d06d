package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"expensetracker/internal/core"
	applog "expensetracker/internal/log"

	"github.com/google/uuid"
)

const transactionColumns = `id, user_id, description, payment_type, category, type, amount_cents, location, date, template_id, created_at, updated_at`

// CreateTransaction inserts a manually entered transaction.
func (r *SQLiteRepository) CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	t, err := insertTransaction(ctx, r.db, t, r.now())
	if err != nil {
		return core.Transaction{}, err
	}

	slog.InfoContext(ctx, "Transaction saved to SQLite",
		applog.FieldTransactionID, t.ID,
		applog.FieldUserID, t.UserID,
		applog.FieldAmountCents, t.Amount.Cents,
		"date", t.Date.String())
	return t, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// insertTransaction writes t and reports core.ErrConflict when a generated
// transaction for the same template and date already exists.
func insertTransaction(ctx context.Context, db execer, t core.Transaction, now time.Time) (core.Transaction, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.CreatedAt, t.UpdatedAt = now, now

	res, err := db.ExecContext(ctx, `
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING`,
		t.ID, t.UserID, t.Description, string(t.PaymentType), t.Category, string(t.Type),
		t.Amount.Cents, t.Location, t.Date.String(), nullableString(t.TemplateID),
		formatTimestamp(now), formatTimestamp(now))
	if err != nil {
		return core.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return core.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}
	if n == 0 {
		return core.Transaction{}, fmt.Errorf("transaction for template %s on %s: %w", t.TemplateID, t.Date, core.ErrConflict)
	}
	return t, nil
}

// GetTransaction returns the transaction only if it belongs to userID.
func (r *SQLiteRepository) GetTransaction(ctx context.Context, userID, id string) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = ? AND user_id = ?`, id, userID)
	t, err := scanTransaction(row)
	if err != nil {
		return core.Transaction{}, notFound(err, "transaction")
	}
	return t, nil
}

// ListTransactions returns the user's transactions, newest first.
func (r *SQLiteRepository) ListTransactions(ctx context.Context, userID string) ([]core.Transaction, error) {
	return r.queryTransactions(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE user_id = ?
		ORDER BY date DESC, created_at DESC`, userID)
}

// ListTemplateTransactions returns the transactions generated from a template.
func (r *SQLiteRepository) ListTemplateTransactions(ctx context.Context, userID, templateID string) ([]core.Transaction, error) {
	return r.queryTransactions(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE user_id = ? AND template_id = ?
		ORDER BY date ASC`, userID, templateID)
}

func (r *SQLiteRepository) queryTransactions(ctx context.Context, query string, args ...any) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}

// UpdateTransaction overwrites the user-editable fields of t.
func (r *SQLiteRepository) UpdateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	now := r.now()
	res, err := r.db.ExecContext(ctx, `
		UPDATE transactions
		SET description = ?, payment_type = ?, category = ?, type = ?,
		    amount_cents = ?, location = ?, date = ?, updated_at = ?
		WHERE id = ? AND user_id = ?`,
		t.Description, string(t.PaymentType), t.Category, string(t.Type),
		t.Amount.Cents, t.Location, t.Date.String(), formatTimestamp(now),
		t.ID, t.UserID)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", t.ID, core.ErrNotFound)
	}
	return r.GetTransaction(ctx, t.UserID, t.ID)
}

// DeleteTransaction removes a transaction and returns what was deleted.
func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, userID, id string) (core.Transaction, error) {
	var deleted core.Transaction
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx,
			`SELECT `+transactionColumns+` FROM transactions WHERE id = ? AND user_id = ?`, id, userID)
		t, err := scanTransaction(row)
		if err != nil {
			return notFound(err, "transaction")
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete transaction: %w", err)
		}
		deleted = t
		return nil
	})
	if err != nil {
		return core.Transaction{}, err
	}

	slog.InfoContext(ctx, "Transaction deleted", applog.FieldTransactionID, id, applog.FieldUserID, userID)
	return deleted, nil
}

// CategoryStatistics sums the user's transactions per category.
func (r *SQLiteRepository) CategoryStatistics(ctx context.Context, userID string) ([]core.CategoryStat, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT category, SUM(amount_cents)
		FROM transactions
		WHERE user_id = ?
		GROUP BY category`, userID)
	if err != nil {
		return nil, fmt.Errorf("get category statistics: %w", err)
	}
	defer rows.Close()

	var stats []core.CategoryStat
	for rows.Next() {
		var (
			category string
			total    int64
		)
		if err := rows.Scan(&category, &total); err != nil {
			return nil, fmt.Errorf("scan category statistic: %w", err)
		}
		stats = append(stats, core.CategoryStat{Category: category, Total: core.Money{Cents: total}})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate category statistics: %w", err)
	}
	core.SortCategoryStats(stats)
	return stats, nil
}

func scanTransaction(s scanner) (core.Transaction, error) {
	var (
		t                    core.Transaction
		payment, typ, date   string
		templateID           sql.NullString
		createdAt, updatedAt string
	)
	if err := s.Scan(&t.ID, &t.UserID, &t.Description, &payment, &t.Category, &typ,
		&t.Amount.Cents, &t.Location, &date, &templateID, &createdAt, &updatedAt); err != nil {
		return core.Transaction{}, err
	}
	d, err := core.ParseDate(date)
	if err != nil {
		return core.Transaction{}, err
	}
	t.Date = d
	t.PaymentType = core.PaymentType(payment)
	t.Type = core.TransactionType(typ)
	t.TemplateID = templateID.String
	t.CreatedAt = parseTimestamp(createdAt)
	t.UpdatedAt = parseTimestamp(updatedAt)
	return t, nil
}
