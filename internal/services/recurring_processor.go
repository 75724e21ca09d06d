package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"expensetracker/internal/core"
	applog "expensetracker/internal/log"
	"expensetracker/internal/storage"

	"golang.org/x/sync/errgroup"
)

// TemplateStore is the persistence the materializer needs.
type TemplateStore interface {
	DueTemplates(ctx context.Context, asOf core.Date) ([]core.RecurringTemplate, error)
	MaterializeOccurrence(ctx context.Context, m storage.Materialization) (core.Transaction, error)
	DeactivateTemplate(ctx context.Context, id string) error
	FlagTemplateForReview(ctx context.Context, id, reason string) error
}

// OccurrenceNotifier is told about every generated transaction.
type OccurrenceNotifier interface {
	TransactionCreated(ctx context.Context, tx core.Transaction)
}

type ProcessorConfig struct {
	Workers  int
	Location *time.Location
}

// RunSummary reports what one sweep did.
type RunSummary struct {
	Checked     int
	Created     int
	Deactivated int
	Failed      int
	Flagged     int
}

// RecurringProcessor turns due recurring templates into transactions.
type RecurringProcessor struct {
	store    TemplateStore
	notifier OccurrenceNotifier
	workers  int
	loc      *time.Location
}

// NewRecurringProcessor creates a new recurring transaction processor.
// notifier may be nil.
func NewRecurringProcessor(store TemplateStore, notifier OccurrenceNotifier, cfg ProcessorConfig) *RecurringProcessor {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &RecurringProcessor{
		store:    store,
		notifier: notifier,
		workers:  cfg.Workers,
		loc:      cfg.Location,
	}
}

type templateResult struct {
	created     int
	deactivated bool
	failed      bool
	flagged     bool
}

// ProcessDue materializes every occurrence due on the calendar day of now (in
// the processor's time zone). Only a failure to fetch the due templates is
// returned; per-template problems are logged and counted in the summary.
func (p *RecurringProcessor) ProcessDue(ctx context.Context, now time.Time) (RunSummary, error) {
	if p.store == nil {
		return RunSummary{}, fmt.Errorf("processor not properly initialized")
	}

	today := core.DateIn(now, p.loc)
	templates, err := p.store.DueTemplates(ctx, today)
	if err != nil {
		return RunSummary{}, fmt.Errorf("get due recurring templates: %w", err)
	}

	slog.InfoContext(ctx, "Processing recurring templates",
		"due", len(templates),
		"processing_date", today.String(),
		"workers", p.workers)

	var (
		mu      sync.Mutex
		summary = RunSummary{Checked: len(templates)}
		g       errgroup.Group
	)
	g.SetLimit(p.workers)

	for _, t := range templates {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			res := p.processTemplate(ctx, t, today)

			mu.Lock()
			defer mu.Unlock()
			summary.Created += res.created
			if res.deactivated {
				summary.Deactivated++
			}
			if res.failed {
				summary.Failed++
			}
			if res.flagged {
				summary.Flagged++
			}
			return nil
		})
	}
	_ = g.Wait()

	slog.InfoContext(ctx, "Recurring template processing complete",
		"checked", summary.Checked,
		"created", summary.Created,
		"deactivated", summary.Deactivated,
		"failed", summary.Failed,
		"flagged", summary.Flagged)

	return summary, ctx.Err()
}

// processTemplate catches a single template up to today: every pending
// occurrence on or before today is materialized, leaving the template either
// inactive or with a next occurrence in the future.
func (p *RecurringProcessor) processTemplate(ctx context.Context, t core.RecurringTemplate, today core.Date) templateResult {
	var res templateResult

	stepper, err := p.checkIntegrity(t)
	if err != nil {
		p.flag(ctx, t, err)
		res.flagged = true
		return res
	}

	if t.Exhausted() {
		if err := p.store.DeactivateTemplate(ctx, t.ID); err != nil && !errors.Is(err, core.ErrConflict) {
			slog.ErrorContext(ctx, "Failed to deactivate exhausted template", applog.FieldTemplateID, t.ID, applog.FieldError, err)
			res.failed = true
			return res
		}
		slog.InfoContext(ctx, "Deactivated exhausted recurring template", applog.FieldTemplateID, t.ID)
		res.deactivated = true
		return res
	}

	cur := t
	for cur.Active && !cur.NextOccurrence.After(today.Time) {
		if ctx.Err() != nil {
			return res
		}

		next := stepper.Occurrence(cur.StartDate, cur.Occurrences+1)
		if !next.After(cur.NextOccurrence.Time) {
			p.flag(ctx, cur, fmt.Errorf("recurrence does not advance past %s", cur.NextOccurrence))
			res.flagged = true
			return res
		}

		deactivate := cur.EndReached(next)
		tx, err := p.store.MaterializeOccurrence(ctx, storage.Materialization{
			Template:   cur,
			Next:       next,
			Deactivate: deactivate,
		})
		if errors.Is(err, storage.ErrOccurrenceExists) {
			// The template points at a date that already has its transaction.
			p.flag(ctx, cur, fmt.Errorf("occurrence %s already recorded", cur.NextOccurrence))
			res.flagged = true
			return res
		}
		if errors.Is(err, core.ErrConflict) {
			slog.InfoContext(ctx, "Recurring template already advanced elsewhere",
				applog.FieldTemplateID, cur.ID,
				"occurrence", cur.NextOccurrence.String())
			return res
		}
		if err != nil {
			slog.ErrorContext(ctx, "Failed to materialize recurring occurrence",
				applog.FieldTemplateID, cur.ID,
				"occurrence", cur.NextOccurrence.String(),
				applog.FieldError, err)
			res.failed = true
			return res
		}

		res.created++
		slog.InfoContext(ctx, "Created transaction from recurring template",
			applog.FieldTemplateID, cur.ID,
			applog.FieldTransactionID, tx.ID,
			"date", tx.Date.String(),
			applog.FieldAmountCents, tx.Amount.Cents,
			"interval", cur.Interval)
		if p.notifier != nil {
			p.notifier.TransactionCreated(ctx, tx)
		}

		cur.Occurrences++
		cur.NextOccurrence = next
		if deactivate {
			cur.Active = false
			res.deactivated = true
			slog.InfoContext(ctx, "Recurring template reached its end", applog.FieldTemplateID, cur.ID)
		}
	}

	return res
}

// checkIntegrity rejects stored templates that cannot be processed safely.
func (p *RecurringProcessor) checkIntegrity(t core.RecurringTemplate) (Stepper, error) {
	stepper, err := GetStepper(t.Interval)
	if err != nil {
		return nil, err
	}
	if err := t.OccurrenceTransaction().Validate(); err != nil {
		return nil, err
	}
	if t.NextOccurrence.Before(t.StartDate.Time) {
		return nil, fmt.Errorf("%w: next occurrence before start date", core.ErrInvalidSchedule)
	}
	return stepper, nil
}

func (p *RecurringProcessor) flag(ctx context.Context, t core.RecurringTemplate, reason error) {
	slog.WarnContext(ctx, "Skipping recurring template that needs review",
		applog.FieldTemplateID, t.ID,
		"reason", reason)
	if err := p.store.FlagTemplateForReview(ctx, t.ID, reason.Error()); err != nil {
		slog.ErrorContext(ctx, "Failed to flag recurring template", applog.FieldTemplateID, t.ID, applog.FieldError, err)
	}
}
