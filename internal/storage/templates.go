package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"expensetracker/internal/core"
	applog "expensetracker/internal/log"

	"github.com/google/uuid"
)

const templateColumns = `id, user_id, description, payment_type, category, type, amount_cents, frequency,
	start_date, next_occurrence, end_date, max_occurrences, occurrences, active, review_reason,
	created_at, updated_at`

// ErrOccurrenceExists reports that the pending occurrence of a template is
// already recorded as a transaction although the template still points at it.
// It wraps core.ErrConflict.
var ErrOccurrenceExists = errors.New("occurrence already recorded")

// Materialization describes one step of a recurring template: the pending
// occurrence of Template becomes a transaction and the template either moves
// to Next or is deactivated.
type Materialization struct {
	Template   core.RecurringTemplate
	Next       core.Date
	Deactivate bool
}

func (r *SQLiteRepository) CreateTemplate(ctx context.Context, t core.RecurringTemplate) (core.RecurringTemplate, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := r.now()
	t.CreatedAt, t.UpdatedAt = now, now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO recurring_templates (`+templateColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.Description, string(t.PaymentType), t.Category, string(t.Type),
		t.Amount.Cents, string(t.Interval), t.StartDate.String(), t.NextOccurrence.String(),
		t.EndDate.String(), t.MaxOccurrences, t.Occurrences, boolToInt(t.Active), t.ReviewReason,
		formatTimestamp(now), formatTimestamp(now))
	if err != nil {
		return core.RecurringTemplate{}, fmt.Errorf("create recurring template: %w", err)
	}

	slog.InfoContext(ctx, "Recurring template saved to SQLite",
		applog.FieldTemplateID, t.ID,
		applog.FieldUserID, t.UserID,
		"interval", t.Interval,
		"next_occurrence", t.NextOccurrence.String())
	return t, nil
}

func (r *SQLiteRepository) GetTemplate(ctx context.Context, userID, id string) (core.RecurringTemplate, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+templateColumns+` FROM recurring_templates WHERE id = ? AND user_id = ?`, id, userID)
	t, err := scanTemplate(row)
	if err != nil {
		return core.RecurringTemplate{}, notFound(err, "recurring template")
	}
	return t, nil
}

func (r *SQLiteRepository) ListTemplates(ctx context.Context, userID string) ([]core.RecurringTemplate, error) {
	return r.queryTemplates(ctx, `
		SELECT `+templateColumns+` FROM recurring_templates
		WHERE user_id = ?
		ORDER BY next_occurrence ASC, created_at ASC`, userID)
}

// DueTemplates returns active templates whose pending occurrence falls on or
// before asOf. Templates flagged for review are left out until a user edit
// clears the flag.
func (r *SQLiteRepository) DueTemplates(ctx context.Context, asOf core.Date) ([]core.RecurringTemplate, error) {
	return r.queryTemplates(ctx, `
		SELECT `+templateColumns+` FROM recurring_templates
		WHERE active = 1 AND next_occurrence <= ? AND review_reason = ''
		ORDER BY next_occurrence ASC`, asOf.String())
}

func (r *SQLiteRepository) queryTemplates(ctx context.Context, query string, args ...any) ([]core.RecurringTemplate, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list recurring templates: %w", err)
	}
	defer rows.Close()

	var out []core.RecurringTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recurring template: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recurring templates: %w", err)
	}
	return out, nil
}

// UpdateTemplate overwrites the user-editable fields. Schedule dates and the
// interval are not editable; the review flag is cleared.
func (r *SQLiteRepository) UpdateTemplate(ctx context.Context, t core.RecurringTemplate) (core.RecurringTemplate, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE recurring_templates
		SET description = ?, payment_type = ?, category = ?, type = ?, amount_cents = ?,
		    end_date = ?, max_occurrences = ?, active = ?, review_reason = '', updated_at = ?
		WHERE id = ? AND user_id = ?`,
		t.Description, string(t.PaymentType), t.Category, string(t.Type), t.Amount.Cents,
		t.EndDate.String(), t.MaxOccurrences, boolToInt(t.Active), r.timestamp(),
		t.ID, t.UserID)
	if err != nil {
		return core.RecurringTemplate{}, fmt.Errorf("update recurring template: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.RecurringTemplate{}, fmt.Errorf("recurring template %s: %w", t.ID, core.ErrNotFound)
	}
	return r.GetTemplate(ctx, t.UserID, t.ID)
}

// DeleteTemplate removes a template. Transactions generated from it are kept
// and lose their back-reference.
func (r *SQLiteRepository) DeleteTemplate(ctx context.Context, userID, id string) (core.RecurringTemplate, error) {
	var deleted core.RecurringTemplate
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx,
			`SELECT `+templateColumns+` FROM recurring_templates WHERE id = ? AND user_id = ?`, id, userID)
		t, err := scanTemplate(row)
		if err != nil {
			return notFound(err, "recurring template")
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM recurring_templates WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete recurring template: %w", err)
		}
		deleted = t
		return nil
	})
	if err != nil {
		return core.RecurringTemplate{}, err
	}

	slog.InfoContext(ctx, "Recurring template deleted", applog.FieldTemplateID, id, applog.FieldUserID, userID)
	return deleted, nil
}

// MaterializeOccurrence atomically records the pending occurrence of
// m.Template and moves the template to m.Next, deactivating it if requested.
// An inactive template keeps m.Next so resuming it continues after the last
// recorded occurrence. The update only applies if the template is still in
// the state it was read in; otherwise nothing is written and core.ErrConflict
// is returned.
func (r *SQLiteRepository) MaterializeOccurrence(ctx context.Context, m Materialization) (core.Transaction, error) {
	t := m.Template
	next := m.Next
	if !next.After(t.NextOccurrence.Time) {
		return core.Transaction{}, fmt.Errorf("materialize recurring template %s: next occurrence %q does not follow %s",
			t.ID, next.String(), t.NextOccurrence)
	}

	var created core.Transaction
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		now := r.now()
		res, err := tx.ExecContext(ctx, `
			UPDATE recurring_templates
			SET next_occurrence = ?, occurrences = occurrences + 1, active = ?, updated_at = ?
			WHERE id = ? AND active = 1 AND next_occurrence = ? AND occurrences = ?`,
			next.String(), boolToInt(!m.Deactivate), formatTimestamp(now),
			t.ID, t.NextOccurrence.String(), t.Occurrences)
		if err != nil {
			return fmt.Errorf("advance recurring template: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("advance recurring template: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("recurring template %s already advanced past %s: %w", t.ID, t.NextOccurrence, core.ErrConflict)
		}

		created, err = insertTransaction(ctx, tx, t.OccurrenceTransaction(), now)
		if errors.Is(err, core.ErrConflict) {
			return fmt.Errorf("%w: %w", ErrOccurrenceExists, err)
		}
		return err
	})
	if err != nil {
		return core.Transaction{}, err
	}
	return created, nil
}

// DeactivateTemplate marks an active template inactive without generating
// anything.
func (r *SQLiteRepository) DeactivateTemplate(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE recurring_templates SET active = 0, updated_at = ?
		WHERE id = ? AND active = 1`, r.timestamp(), id)
	if err != nil {
		return fmt.Errorf("deactivate recurring template: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("recurring template %s not active: %w", id, core.ErrConflict)
	}
	return nil
}

// FlagTemplateForReview parks a template that cannot be processed safely.
func (r *SQLiteRepository) FlagTemplateForReview(ctx context.Context, id, reason string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE recurring_templates SET review_reason = ?, updated_at = ?
		WHERE id = ?`, reason, r.timestamp(), id)
	if err != nil {
		return fmt.Errorf("flag recurring template: %w", err)
	}

	slog.WarnContext(ctx, "Recurring template flagged for review", applog.FieldTemplateID, id, "reason", reason)
	return nil
}

func scanTemplate(s scanner) (core.RecurringTemplate, error) {
	var (
		t                                  core.RecurringTemplate
		payment, typ, interval             string
		startDate, nextOccurrence, endDate string
		active                             int
		createdAt, updatedAt               string
		err                                error
	)
	if err := s.Scan(&t.ID, &t.UserID, &t.Description, &payment, &t.Category, &typ,
		&t.Amount.Cents, &interval, &startDate, &nextOccurrence, &endDate,
		&t.MaxOccurrences, &t.Occurrences, &active, &t.ReviewReason,
		&createdAt, &updatedAt); err != nil {
		return core.RecurringTemplate{}, err
	}
	if t.StartDate, err = core.ParseDate(startDate); err != nil {
		return core.RecurringTemplate{}, err
	}
	if t.NextOccurrence, err = core.ParseDate(nextOccurrence); err != nil {
		return core.RecurringTemplate{}, err
	}
	if t.EndDate, err = parseOptionalDate(endDate); err != nil {
		return core.RecurringTemplate{}, err
	}
	t.PaymentType = core.PaymentType(payment)
	t.Type = core.TransactionType(typ)
	t.Interval = core.Interval(interval)
	t.Active = active != 0
	t.CreatedAt = parseTimestamp(createdAt)
	t.UpdatedAt = parseTimestamp(updatedAt)
	return t, nil
}
