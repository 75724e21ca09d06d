package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	Daily   Interval = "daily"
	Weekly  Interval = "weekly"
	Monthly Interval = "monthly"
	Yearly  Interval = "yearly"
)

const (
	Income  TransactionType = "income"
	Expense TransactionType = "expense"
)

const (
	Cash PaymentType = "cash"
	Card PaymentType = "card"
)

const dateLayout = "2006-01-02"

type (
	Interval        string
	TransactionType string
	PaymentType     string

	// Date is a calendar day stored as midnight UTC.
	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	User struct {
		ID             string
		Username       string
		Name           string
		PasswordHash   string
		ProfilePicture string
		Gender         string
		CreatedAt      time.Time
		UpdatedAt      time.Time
	}

	Transaction struct {
		ID          string
		UserID      string
		Description string
		PaymentType PaymentType
		Category    string
		Type        TransactionType
		Amount      Money
		Location    string
		Date        Date
		TemplateID  string // empty unless generated from a recurring template
		CreatedAt   time.Time
		UpdatedAt   time.Time
	}

	RecurringTemplate struct {
		ID             string
		UserID         string
		Description    string
		PaymentType    PaymentType
		Category       string
		Type           TransactionType
		Amount         Money
		Interval       Interval
		StartDate      Date // anchor for interval arithmetic
		NextOccurrence Date
		EndDate        Date // zero means no end date
		MaxOccurrences int  // 0 means unbounded
		Occurrences    int  // occurrences materialized so far
		Active         bool
		ReviewReason   string // set when the template needs manual review
		CreatedAt      time.Time
		UpdatedAt      time.Time
	}

	Session struct {
		ID        string
		UserID    string
		ExpiresAt time.Time
		CreatedAt time.Time
	}
)

var (
	ErrInvalidDay         = errors.New("invalid day")
	ErrInvalidMonth       = errors.New("invalid month")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidDate        = errors.New("invalid date")
	ErrEmptyDescription   = errors.New("empty description")
	ErrEmptyCategory      = errors.New("empty category")
	ErrInvalidType        = errors.New("invalid transaction type")
	ErrInvalidPaymentType = errors.New("invalid payment type")
	ErrInvalidInterval    = errors.New("invalid recurrence interval")
	ErrInvalidSchedule    = errors.New("invalid recurrence schedule")
	ErrEmptyUsername      = errors.New("empty username")
	ErrWeakPassword       = errors.New("password too short (min 6 characters)")
	ErrMissingField       = errors.New("all fields are required")
	ErrFieldTooLong       = errors.New("field too long")
	ErrEmptyName          = errors.New("empty name")

	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrInvalidLogin    = errors.New("invalid username or password")
)

// validationErrors are safe to show to API clients verbatim.
var validationErrors = []error{
	ErrInvalidDay, ErrInvalidMonth, ErrInvalidAmount, ErrInvalidDate,
	ErrEmptyDescription, ErrEmptyCategory, ErrInvalidType, ErrInvalidPaymentType,
	ErrInvalidInterval, ErrInvalidSchedule, ErrEmptyUsername, ErrWeakPassword,
	ErrMissingField, ErrFieldTooLong, ErrEmptyName,
}

// IsValidationError reports whether err stems from rejected user input.
func IsValidationError(err error) bool {
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateIn returns the calendar day of t as observed in loc.
func DateIn(t time.Time, loc *time.Location) Date {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return Date{Time: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{Time: t}, nil
}

// String formats the date as YYYY-MM-DD, or "" for the zero date.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

// AddDays returns the date n days later.
func (d Date) AddDays(n int) Date {
	return Date{Time: d.AddDate(0, 0, n)}
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	_, month, day := d.Date()
	if day < 1 || day > 31 {
		return ErrInvalidDay
	}
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

// IsEmpty returns true if the date is zero (used for optional dates)
func (d Date) IsEmpty() bool {
	return d.IsZero()
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (i Interval) Validate() error {
	switch i {
	case Daily, Weekly, Monthly, Yearly:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidInterval, string(i))
}

func (t TransactionType) Validate() error {
	switch t {
	case Income, Expense:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidType, string(t))
}

func (p PaymentType) Validate() error {
	switch p {
	case Cash, Card:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidPaymentType, string(p))
}

func validateEntry(description, category string, typ TransactionType, pay PaymentType, amount Money) error {
	if len(strings.TrimSpace(description)) == 0 {
		return ErrEmptyDescription
	}
	if len(description) > 200 {
		return fmt.Errorf("%w: description (max 200 characters)", ErrFieldTooLong)
	}
	if strings.TrimSpace(category) == "" {
		return ErrEmptyCategory
	}
	if err := typ.Validate(); err != nil {
		return err
	}
	if err := pay.Validate(); err != nil {
		return err
	}
	return amount.Validate()
}

func (t Transaction) Validate() error {
	if strings.TrimSpace(t.UserID) == "" {
		return ErrUnauthenticated
	}
	if err := t.Date.Validate(); err != nil {
		return err
	}
	return validateEntry(t.Description, t.Category, t.Type, t.PaymentType, t.Amount)
}

func (rt RecurringTemplate) Validate() error {
	if strings.TrimSpace(rt.UserID) == "" {
		return ErrUnauthenticated
	}
	if err := rt.StartDate.Validate(); err != nil {
		return fmt.Errorf("invalid start date: %w", err)
	}
	if err := rt.NextOccurrence.Validate(); err != nil {
		return fmt.Errorf("invalid next occurrence: %w", err)
	}
	if rt.NextOccurrence.Before(rt.StartDate.Time) {
		return fmt.Errorf("%w: next occurrence before start date", ErrInvalidSchedule)
	}
	if !rt.EndDate.IsZero() {
		if err := rt.EndDate.Validate(); err != nil {
			return fmt.Errorf("invalid end date: %w", err)
		}
		if rt.EndDate.Before(rt.StartDate.Time) {
			return fmt.Errorf("%w: end date must not be before start date", ErrInvalidSchedule)
		}
	}
	if rt.MaxOccurrences < 0 {
		return fmt.Errorf("%w: negative max occurrences", ErrInvalidSchedule)
	}
	if err := rt.Interval.Validate(); err != nil {
		return err
	}
	return validateEntry(rt.Description, rt.Category, rt.Type, rt.PaymentType, rt.Amount)
}

// ValidateCreation checks the creation-time invariant: the first occurrence
// may not be earlier than the day the template is created.
func (rt RecurringTemplate) ValidateCreation(createdOn Date) error {
	if err := rt.Validate(); err != nil {
		return err
	}
	if rt.NextOccurrence.Before(createdOn.Time) {
		return fmt.Errorf("%w: first occurrence %s is before %s", ErrInvalidSchedule, rt.NextOccurrence, createdOn)
	}
	return nil
}

// EndReached reports whether materializing the pending occurrence exhausts the
// template, given the date the following occurrence would fall on.
func (rt RecurringTemplate) EndReached(following Date) bool {
	if rt.MaxOccurrences > 0 && rt.Occurrences+1 >= rt.MaxOccurrences {
		return true
	}
	if !rt.EndDate.IsZero() && following.After(rt.EndDate.Time) {
		return true
	}
	return false
}

// Exhausted reports whether the pending occurrence already lies beyond the
// template's end condition, e.g. after the end date was moved back by an edit.
func (rt RecurringTemplate) Exhausted() bool {
	if rt.MaxOccurrences > 0 && rt.Occurrences >= rt.MaxOccurrences {
		return true
	}
	return !rt.EndDate.IsZero() && rt.NextOccurrence.After(rt.EndDate.Time)
}

// OccurrenceTransaction builds the transaction for the template's pending
// occurrence.
func (rt RecurringTemplate) OccurrenceTransaction() Transaction {
	return Transaction{
		UserID:      rt.UserID,
		Description: rt.Description,
		PaymentType: rt.PaymentType,
		Category:    rt.Category,
		Type:        rt.Type,
		Amount:      rt.Amount,
		Date:        rt.NextOccurrence,
		TemplateID:  rt.ID,
	}
}

func (u User) Validate() error {
	if strings.TrimSpace(u.Username) == "" {
		return ErrEmptyUsername
	}
	if len(u.Username) > 64 {
		return fmt.Errorf("%w: username (max 64 characters)", ErrFieldTooLong)
	}
	if strings.TrimSpace(u.Name) == "" {
		return ErrEmptyName
	}
	return nil
}
