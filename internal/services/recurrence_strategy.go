// Package services provides business logic and orchestration services.
//
// This file implements the Strategy Pattern for recurrence arithmetic. Each
// interval (daily, weekly, monthly, yearly) has its own stepper that computes
// the date of the n-th occurrence from the template's start date.

package services

import (
	"fmt"
	"sync"
	"time"

	"expensetracker/internal/core"
)

// Stepper is the strategy interface for recurrence intervals.
type Stepper interface {
	// Occurrence returns the date of occurrence n (0-based) of a series
	// anchored at anchor.
	Occurrence(anchor core.Date, n int) core.Date
}

// DailyStepper implements Stepper for daily templates.
type DailyStepper struct{}

func (DailyStepper) Occurrence(anchor core.Date, n int) core.Date {
	return anchor.AddDays(n)
}

// WeeklyStepper implements Stepper for weekly templates.
type WeeklyStepper struct{}

func (WeeklyStepper) Occurrence(anchor core.Date, n int) core.Date {
	return anchor.AddDays(7 * n)
}

// MonthlyStepper implements Stepper for monthly templates. A start day that
// does not exist in the target month is clamped to its last day; the anchor
// keeps later months on the original day (Jan 31, Feb 29, Mar 31, ...).
type MonthlyStepper struct{}

func (MonthlyStepper) Occurrence(anchor core.Date, n int) core.Date {
	return addMonthsClamped(anchor, n)
}

// YearlyStepper implements Stepper for yearly templates. Feb 29 falls on
// Feb 28 in non-leap years.
type YearlyStepper struct{}

func (YearlyStepper) Occurrence(anchor core.Date, n int) core.Date {
	return addMonthsClamped(anchor, 12*n)
}

func addMonthsClamped(anchor core.Date, months int) core.Date {
	y, m, d := anchor.Date()
	total := int(m) - 1 + months
	year := y + total/12
	month := time.Month(total%12 + 1)
	if last := daysIn(year, month); d > last {
		d = last
	}
	return core.NewDate(year, int(month), d)
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

var (
	stepperMu sync.RWMutex
	// steppers maps intervals to their stepper.
	steppers = map[core.Interval]Stepper{
		core.Daily:   DailyStepper{},
		core.Weekly:  WeeklyStepper{},
		core.Monthly: MonthlyStepper{},
		core.Yearly:  YearlyStepper{},
	}
)

// GetStepper returns the stepper for an interval. Unknown intervals wrap
// core.ErrInvalidInterval.
func GetStepper(interval core.Interval) (Stepper, error) {
	stepperMu.RLock()
	defer stepperMu.RUnlock()
	s, ok := steppers[interval]
	if !ok {
		return nil, fmt.Errorf("%w: %q", core.ErrInvalidInterval, string(interval))
	}
	return s, nil
}

// RegisterStepper adds or replaces the stepper for an interval.
func RegisterStepper(interval core.Interval, s Stepper) {
	stepperMu.Lock()
	defer stepperMu.Unlock()
	steppers[interval] = s
}
