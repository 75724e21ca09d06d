package services

import (
	"context"
	"fmt"
	"log/slog"

	"expensetracker/internal/amqp"
	"expensetracker/internal/cache"
	"expensetracker/internal/core"
	applog "expensetracker/internal/log"
)

// TransactionStore is the persistence TransactionService needs.
type TransactionStore interface {
	CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error)
	GetTransaction(ctx context.Context, userID, id string) (core.Transaction, error)
	ListTransactions(ctx context.Context, userID string) ([]core.Transaction, error)
	ListTemplateTransactions(ctx context.Context, userID, templateID string) ([]core.Transaction, error)
	UpdateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error)
	DeleteTransaction(ctx context.Context, userID, id string) (core.Transaction, error)
	CategoryStatistics(ctx context.Context, userID string) ([]core.CategoryStat, error)
}

// EventPublisher publishes transaction change events.
type EventPublisher interface {
	PublishTransactionEvent(ctx context.Context, ev *amqp.TransactionEvent) error
}

// TransactionInput holds the user-supplied fields of a new transaction.
type TransactionInput struct {
	Description string
	PaymentType core.PaymentType
	Category    string
	Type        core.TransactionType
	Amount      core.Money
	Location    string
	Date        core.Date
}

// TransactionPatch holds the fields of an update; nil fields are unchanged.
type TransactionPatch struct {
	Description *string
	PaymentType *core.PaymentType
	Category    *string
	Type        *core.TransactionType
	Amount      *core.Money
	Location    *string
	Date        *core.Date
}

func (p TransactionPatch) apply(t *core.Transaction) {
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.PaymentType != nil {
		t.PaymentType = *p.PaymentType
	}
	if p.Category != nil {
		t.Category = *p.Category
	}
	if p.Type != nil {
		t.Type = *p.Type
	}
	if p.Amount != nil {
		t.Amount = *p.Amount
	}
	if p.Location != nil {
		t.Location = *p.Location
	}
	if p.Date != nil {
		t.Date = *p.Date
	}
}

// TransactionService orchestrates transaction writes across SQLite, the
// statistics cache and AMQP.
type TransactionService struct {
	store     TransactionStore
	publisher EventPublisher
	stats     cache.Cache[[]core.CategoryStat]
}

// NewTransactionService wires the service. publisher and stats may be nil.
func NewTransactionService(store TransactionStore, publisher EventPublisher, stats cache.Cache[[]core.CategoryStat]) *TransactionService {
	return &TransactionService{
		store:     store,
		publisher: publisher,
		stats:     stats,
	}
}

func (s *TransactionService) Create(ctx context.Context, userID string, in TransactionInput) (core.Transaction, error) {
	t := core.Transaction{
		UserID:      userID,
		Description: in.Description,
		PaymentType: in.PaymentType,
		Category:    in.Category,
		Type:        in.Type,
		Amount:      in.Amount,
		Location:    in.Location,
		Date:        in.Date,
	}
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}

	created, err := s.store.CreateTransaction(ctx, t)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("save transaction: %w", err)
	}

	s.changed(ctx, amqp.EventCreated, created)
	return created, nil
}

func (s *TransactionService) Get(ctx context.Context, userID, id string) (core.Transaction, error) {
	return s.store.GetTransaction(ctx, userID, id)
}

func (s *TransactionService) List(ctx context.Context, userID string) ([]core.Transaction, error) {
	return s.store.ListTransactions(ctx, userID)
}

// ListForTemplate returns the transactions generated by a template.
func (s *TransactionService) ListForTemplate(ctx context.Context, userID, templateID string) ([]core.Transaction, error) {
	return s.store.ListTemplateTransactions(ctx, userID, templateID)
}

func (s *TransactionService) Update(ctx context.Context, userID, id string, patch TransactionPatch) (core.Transaction, error) {
	t, err := s.store.GetTransaction(ctx, userID, id)
	if err != nil {
		return core.Transaction{}, err
	}
	patch.apply(&t)
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}

	updated, err := s.store.UpdateTransaction(ctx, t)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}

	s.changed(ctx, amqp.EventUpdated, updated)
	return updated, nil
}

func (s *TransactionService) Delete(ctx context.Context, userID, id string) (core.Transaction, error) {
	deleted, err := s.store.DeleteTransaction(ctx, userID, id)
	if err != nil {
		return core.Transaction{}, err
	}

	s.changed(ctx, amqp.EventDeleted, deleted)
	return deleted, nil
}

// CategoryStatistics returns per-category totals, served from cache when
// possible.
func (s *TransactionService) CategoryStatistics(ctx context.Context, userID string) ([]core.CategoryStat, error) {
	key := statsKey(userID)
	if s.stats != nil {
		if stats, ok := s.stats.Get(key); ok {
			return stats, nil
		}
	}

	stats, err := s.store.CategoryStatistics(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("category statistics: %w", err)
	}
	if s.stats != nil {
		s.stats.Set(key, stats)
	}
	return stats, nil
}

// InvalidateUser drops cached statistics for userID.
func (s *TransactionService) InvalidateUser(userID string) {
	if s.stats != nil {
		s.stats.Delete(statsKey(userID))
	}
}

// TransactionCreated implements OccurrenceNotifier for the recurring
// processor.
func (s *TransactionService) TransactionCreated(ctx context.Context, tx core.Transaction) {
	s.changed(ctx, amqp.EventCreated, tx)
}

// HandleEvent applies an event published by another process.
func (s *TransactionService) HandleEvent(ctx context.Context, ev *amqp.TransactionEvent) error {
	slog.DebugContext(ctx, "Invalidating statistics from event", applog.FieldKind, ev.Kind, applog.FieldUserID, ev.UserID)
	s.InvalidateUser(ev.UserID)
	return nil
}

func (s *TransactionService) changed(ctx context.Context, kind amqp.EventKind, tx core.Transaction) {
	s.InvalidateUser(tx.UserID)

	if s.publisher == nil {
		return
	}
	// The write already succeeded; a lost event only delays cache
	// invalidation elsewhere until the entry expires.
	if err := s.publisher.PublishTransactionEvent(ctx, amqp.NewTransactionEvent(kind, tx)); err != nil {
		slog.ErrorContext(ctx, "Failed to publish transaction event",
			applog.FieldTransactionID, tx.ID,
			applog.FieldKind, kind,
			applog.FieldError, err)
	}
}

func statsKey(userID string) string {
	return "stats:" + userID
}
