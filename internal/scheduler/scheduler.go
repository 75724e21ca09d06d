// Package scheduler runs named jobs on cron schedules with an explicit
// Start/Stop lifecycle.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	applog "expensetracker/internal/log"
)

// Job is a unit of scheduled work. The context is cancelled when the
// scheduler stops.
type Job func(ctx context.Context) error

type entry struct {
	name string
	spec string
	job  Job
	id   cron.EntryID
	mu   sync.Mutex // serializes RunNow with scheduled runs
}

// Scheduler wraps a cron runner. Overlapping triggers of the same job are
// skipped.
type Scheduler struct {
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	jobs    map[string]*entry
	started bool
}

// New creates a scheduler evaluating specs in loc (UTC if nil).
func New(loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:   cron.New(cron.WithLocation(loc), cron.WithChain(cron.Recover(cronLogger{}))),
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(map[string]*entry),
	}
}

// AddJob registers job under name with a standard five-field cron spec or a
// descriptor such as "@hourly".
func (s *Scheduler) AddJob(name, spec string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("add job %s: already registered", name)
	}
	e := &entry{name: name, spec: spec, job: job}
	id, err := s.cron.AddFunc(spec, func() { s.runScheduled(e) })
	if err != nil {
		return fmt.Errorf("add job %s: invalid schedule %q: %w", name, spec, err)
	}
	e.id = id
	s.jobs[name] = e
	return nil
}

// runScheduled skips the trigger when the previous run of the job is still
// going.
func (s *Scheduler) runScheduled(e *entry) {
	if !e.mu.TryLock() {
		slog.Warn("Skipping scheduled run, previous run still in progress", applog.FieldJob, e.name)
		return
	}
	defer e.mu.Unlock()
	s.execute(s.ctx, e)
}

func (s *Scheduler) execute(ctx context.Context, e *entry) error {
	start := time.Now()
	slog.InfoContext(ctx, "Running scheduled job", applog.FieldJob, e.name)
	err := e.job(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "Scheduled job failed", applog.FieldJob, e.name, applog.FieldError, err, applog.FieldDuration, time.Since(start).Milliseconds())
		return err
	}
	slog.InfoContext(ctx, "Scheduled job finished", applog.FieldJob, e.name, applog.FieldDuration, time.Since(start).Milliseconds())
	return nil
}

// RunNow runs the named job synchronously, waiting for an in-flight scheduled
// run to finish first.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	e, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("run job %s: not registered", name)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return s.execute(ctx, e)
}

// Next returns the next activation time of the named job, zero if the
// scheduler is not running.
func (s *Scheduler) Next(name string) time.Time {
	s.mu.Lock()
	e, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return time.Time{}
	}
	return s.cron.Entry(e.id).Next
}

// Start begins triggering jobs in the background.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.cron.Start()
	for name, e := range s.jobs {
		slog.Info("Scheduled job registered", applog.FieldJob, name, "schedule", e.spec, "next", s.cron.Entry(e.id).Next)
	}
}

// Stop prevents new triggers, cancels the jobs' context and waits for
// running jobs until ctx expires.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	started := s.started
	s.started = false
	s.mu.Unlock()

	if !started {
		s.cancel()
		return nil
	}

	stopped := s.cron.Stop()
	s.cancel()
	select {
	case <-stopped.Done():
		slog.Info("Scheduler stopped")
		return nil
	case <-ctx.Done():
		return errors.Join(errors.New("scheduler stop: jobs still running"), ctx.Err())
	}
}

// cronLogger routes robfig/cron diagnostics to slog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	slog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	slog.Error("cron: "+msg, append([]any{applog.FieldError, err}, keysAndValues...)...)
}
