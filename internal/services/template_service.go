package services

import (
	"context"
	"fmt"
	"time"

	"expensetracker/internal/core"
)

// TemplateRepository is the persistence behind user-facing template CRUD.
type TemplateRepository interface {
	CreateTemplate(ctx context.Context, t core.RecurringTemplate) (core.RecurringTemplate, error)
	GetTemplate(ctx context.Context, userID, id string) (core.RecurringTemplate, error)
	ListTemplates(ctx context.Context, userID string) ([]core.RecurringTemplate, error)
	UpdateTemplate(ctx context.Context, t core.RecurringTemplate) (core.RecurringTemplate, error)
	DeleteTemplate(ctx context.Context, userID, id string) (core.RecurringTemplate, error)
}

type TemplateInput struct {
	Description    string
	PaymentType    core.PaymentType
	Category       string
	Type           core.TransactionType
	Amount         core.Money
	Interval       core.Interval
	StartDate      core.Date
	EndDate        core.Date
	MaxOccurrences int
}

// TemplatePatch holds editable template fields; nil fields are unchanged.
// Schedule dates other than the end date cannot be changed.
type TemplatePatch struct {
	Description    *string
	PaymentType    *core.PaymentType
	Category       *string
	Type           *core.TransactionType
	Amount         *core.Money
	EndDate        *core.Date
	MaxOccurrences *int
	Active         *bool
}

type TemplateService struct {
	store TemplateRepository
	loc   *time.Location
	now   func() time.Time
}

// NewTemplateService creates the service; loc decides what "today" is when
// checking a new template's start date.
func NewTemplateService(store TemplateRepository, loc *time.Location) *TemplateService {
	if loc == nil {
		loc = time.UTC
	}
	return &TemplateService{store: store, loc: loc, now: time.Now}
}

func (s *TemplateService) Create(ctx context.Context, userID string, in TemplateInput) (core.RecurringTemplate, error) {
	t := core.RecurringTemplate{
		UserID:         userID,
		Description:    in.Description,
		PaymentType:    in.PaymentType,
		Category:       in.Category,
		Type:           in.Type,
		Amount:         in.Amount,
		Interval:       in.Interval,
		StartDate:      in.StartDate,
		NextOccurrence: in.StartDate,
		EndDate:        in.EndDate,
		MaxOccurrences: in.MaxOccurrences,
		Active:         true,
	}
	if err := t.ValidateCreation(core.DateIn(s.now(), s.loc)); err != nil {
		return core.RecurringTemplate{}, err
	}

	created, err := s.store.CreateTemplate(ctx, t)
	if err != nil {
		return core.RecurringTemplate{}, fmt.Errorf("save recurring template: %w", err)
	}
	return created, nil
}

func (s *TemplateService) Get(ctx context.Context, userID, id string) (core.RecurringTemplate, error) {
	return s.store.GetTemplate(ctx, userID, id)
}

func (s *TemplateService) List(ctx context.Context, userID string) ([]core.RecurringTemplate, error) {
	return s.store.ListTemplates(ctx, userID)
}

// Update applies patch. Editing a template clears any review flag so the
// materializer picks it up again.
func (s *TemplateService) Update(ctx context.Context, userID, id string, patch TemplatePatch) (core.RecurringTemplate, error) {
	t, err := s.store.GetTemplate(ctx, userID, id)
	if err != nil {
		return core.RecurringTemplate{}, err
	}

	if patch.Description != nil {
		t.Description = *patch.Description
	}
	if patch.PaymentType != nil {
		t.PaymentType = *patch.PaymentType
	}
	if patch.Category != nil {
		t.Category = *patch.Category
	}
	if patch.Type != nil {
		t.Type = *patch.Type
	}
	if patch.Amount != nil {
		t.Amount = *patch.Amount
	}
	if patch.EndDate != nil {
		t.EndDate = *patch.EndDate
	}
	if patch.MaxOccurrences != nil {
		t.MaxOccurrences = *patch.MaxOccurrences
	}
	if patch.Active != nil {
		t.Active = *patch.Active
	}
	if err := t.Validate(); err != nil {
		return core.RecurringTemplate{}, err
	}

	updated, err := s.store.UpdateTemplate(ctx, t)
	if err != nil {
		return core.RecurringTemplate{}, fmt.Errorf("update recurring template: %w", err)
	}
	return updated, nil
}

// Delete removes the template; transactions it generated are kept.
func (s *TemplateService) Delete(ctx context.Context, userID, id string) (core.RecurringTemplate, error) {
	return s.store.DeleteTemplate(ctx, userID, id)
}
