package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestAddJob_Validation(t *testing.T) {
	s := New(nil)
	noop := func(context.Context) error { return nil }

	if err := s.AddJob("recurring", "not a cron spec", noop); err == nil {
		t.Fatal("expected error for invalid spec")
	}
	if err := s.AddJob("recurring", "0 0 * * *", noop); err != nil {
		t.Fatal(err)
	}
	if err := s.AddJob("recurring", "@hourly", noop); err == nil {
		t.Fatal("expected duplicate name error")
	}
}

func TestRunNow(t *testing.T) {
	s := New(time.UTC)
	var runs int32
	boom := errors.New("boom")
	if err := s.AddJob("count", "0 0 * * *", func(context.Context) error {
		if atomic.AddInt32(&runs, 1) == 2 {
			return boom
		}
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	if err := s.RunNow(context.Background(), "count"); err != nil {
		t.Fatal(err)
	}
	if err := s.RunNow(context.Background(), "count"); !errors.Is(err, boom) {
		t.Fatalf("expected job error, got %v", err)
	}
	if err := s.RunNow(context.Background(), "missing"); err == nil {
		t.Fatal("expected error for unknown job")
	}
}

func TestScheduledRunSkipsWhileBusy(t *testing.T) {
	s := New(time.UTC)
	var runs int32
	if err := s.AddJob("slow", "0 0 * * *", func(context.Context) error {
		atomic.AddInt32(&runs, 1)
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	e := s.jobs["slow"]
	e.mu.Lock()
	s.runScheduled(e)
	e.mu.Unlock()
	if atomic.LoadInt32(&runs) != 0 {
		t.Fatal("trigger ran while a previous run held the job")
	}

	s.runScheduled(e)
	if atomic.LoadInt32(&runs) != 1 {
		t.Fatal("trigger did not run once the job was free")
	}
}

func TestStartStop(t *testing.T) {
	s := New(time.UTC)
	ran := make(chan struct{}, 1)
	var sawCancel atomic.Bool
	if err := s.AddJob("tick", "@every 1s", func(ctx context.Context) error {
		select {
		case ran <- struct{}{}:
		default:
		}
		<-ctx.Done()
		sawCancel.Store(true)
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	s.Start()
	s.Start()
	if s.Next("tick").IsZero() {
		t.Fatal("running scheduler has no next activation")
	}

	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("job never triggered")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if !sawCancel.Load() {
		t.Fatal("running job did not observe cancellation")
	}
}

func TestStopWithoutStart(t *testing.T) {
	if err := New(nil).Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
}
