package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"expensetracker/internal/amqp"
	applog "expensetracker/internal/log"
)

// EventSource delivers transaction events until ctx is done.
type EventSource interface {
	ConsumeTransactionEvents(ctx context.Context, handler func(context.Context, *amqp.TransactionEvent) error) error
}

// EventHandler reacts to a single transaction event.
type EventHandler interface {
	HandleEvent(ctx context.Context, ev *amqp.TransactionEvent) error
}

// Stats counts handled events.
type Stats struct {
	Handled int64
	Failed  int64
}

// EventWorker consumes transaction events in the background so the API server
// drops cached statistics for users whose transactions changed in another
// process, such as the standalone recurring worker.
type EventWorker struct {
	source  EventSource
	handler EventHandler

	handled atomic.Int64
	failed  atomic.Int64

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	doneCh  chan struct{}
}

func NewEventWorker(source EventSource, handler EventHandler) *EventWorker {
	return &EventWorker{source: source, handler: handler}
}

// Start begins consuming. Returns an error if already running.
func (w *EventWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return fmt.Errorf("event worker is already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	w.running = true
	w.cancel = cancel
	w.doneCh = make(chan struct{})

	go w.run(ctx, w.doneCh)
	slog.InfoContext(ctx, "Event worker started")
	return nil
}

func (w *EventWorker) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	err := w.source.ConsumeTransactionEvents(ctx, w.handle)
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.ErrorContext(ctx, "Event consumption stopped", applog.FieldError, err)
	}
}

func (w *EventWorker) handle(ctx context.Context, ev *amqp.TransactionEvent) error {
	if err := w.handler.HandleEvent(ctx, ev); err != nil {
		w.failed.Add(1)
		return fmt.Errorf("handle %s event: %w", ev.Kind, err)
	}
	w.handled.Add(1)
	slog.DebugContext(ctx, "Handled transaction event", applog.FieldKind, ev.Kind, applog.FieldTransactionID, ev.ID, applog.FieldUserID, ev.UserID)
	return nil
}

// Stop cancels consumption and waits for the consumer to return.
func (w *EventWorker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	cancel, done := w.cancel, w.doneCh
	w.mu.Unlock()

	cancel()
	select {
	case <-done:
		slog.InfoContext(ctx, "Event worker stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Event worker stop timed out")
		return ctx.Err()
	}

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()
	return nil
}

// IsRunning returns whether the worker is currently consuming
func (w *EventWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *EventWorker) Stats() Stats {
	return Stats{Handled: w.handled.Load(), Failed: w.failed.Load()}
}
