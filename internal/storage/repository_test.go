package storage

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"expensetracker/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func createUser(t *testing.T, repo *SQLiteRepository, username string) core.User {
	t.Helper()
	u, err := repo.CreateUser(context.Background(), core.User{
		Username:     username,
		Name:         "Test " + username,
		PasswordHash: "hash",
		Gender:       "female",
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func monthlyTemplate(userID string, start core.Date) core.RecurringTemplate {
	return core.RecurringTemplate{
		UserID:         userID,
		Description:    "rent",
		PaymentType:    core.Card,
		Category:       "housing",
		Type:           core.Expense,
		Amount:         core.Money{Cents: 90000},
		Interval:       core.Monthly,
		StartDate:      start,
		NextOccurrence: start,
		Active:         true,
	}
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "twice.db")
	first, err := NewSQLiteRepository(path)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	first.Close()

	second, err := NewSQLiteRepository(path)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	defer second.Close()
	if err := second.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestUsers(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	u := createUser(t, repo, "alice")
	if u.ID == "" {
		t.Fatalf("expected generated id")
	}

	got, err := repo.GetUserByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("get by username: %v", err)
	}
	if got.ID != u.ID || got.Gender != "female" {
		t.Fatalf("unexpected user: %+v", got)
	}

	if _, err := repo.CreateUser(ctx, core.User{Username: "alice", Name: "Other", PasswordHash: "x"}); !errors.Is(err, core.ErrConflict) {
		t.Fatalf("duplicate username: expected ErrConflict, got %v", err)
	}
	if _, err := repo.GetUser(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTransactionsCRUD(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	alice := createUser(t, repo, "alice")
	bob := createUser(t, repo, "bob")

	tx, err := repo.CreateTransaction(ctx, core.Transaction{
		UserID:      alice.ID,
		Description: "coffee",
		PaymentType: core.Cash,
		Category:    "food",
		Type:        core.Expense,
		Amount:      core.Money{Cents: 250},
		Location:    "bar",
		Date:        core.NewDate(2024, 3, 1),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := repo.GetTransaction(ctx, bob.ID, tx.ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("other user must not see transaction, got %v", err)
	}

	tx.Amount = core.Money{Cents: 300}
	tx.Date = core.NewDate(2024, 3, 2)
	updated, err := repo.UpdateTransaction(ctx, tx)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Amount.Cents != 300 || updated.Date != core.NewDate(2024, 3, 2) || updated.Location != "bar" {
		t.Fatalf("unexpected update result: %+v", updated)
	}

	tx.UserID = bob.ID
	if _, err := repo.UpdateTransaction(ctx, tx); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("update by other user: expected ErrNotFound, got %v", err)
	}

	deleted, err := repo.DeleteTransaction(ctx, alice.ID, tx.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if deleted.ID != tx.ID {
		t.Fatalf("deleted id = %s", deleted.ID)
	}
	list, err := repo.ListTransactions(ctx, alice.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected empty list, got %d", len(list))
	}
}

func TestCategoryStatistics(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	u := createUser(t, repo, "alice")

	entries := []struct {
		category string
		cents    int64
	}{
		{"food", 1000},
		{"food", 500},
		{"rent", 90000},
		{"fun", 1500},
	}
	for _, e := range entries {
		_, err := repo.CreateTransaction(ctx, core.Transaction{
			UserID: u.ID, Description: e.category, PaymentType: core.Card,
			Category: e.category, Type: core.Expense,
			Amount: core.Money{Cents: e.cents}, Date: core.NewDate(2024, 1, 1),
		})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	stats, err := repo.CategoryStatistics(ctx, u.ID)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	want := []core.CategoryStat{
		{Category: "rent", Total: core.Money{Cents: 90000}},
		{Category: "food", Total: core.Money{Cents: 1500}},
		{Category: "fun", Total: core.Money{Cents: 1500}},
	}
	if len(stats) != len(want) {
		t.Fatalf("got %d stats, want %d", len(stats), len(want))
	}
	for i := range want {
		if stats[i] != want[i] {
			t.Fatalf("stats[%d] = %+v, want %+v", i, stats[i], want[i])
		}
	}
}

func TestDueTemplates(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	u := createUser(t, repo, "alice")

	due, err := repo.CreateTemplate(ctx, monthlyTemplate(u.ID, core.NewDate(2024, 1, 1)))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := repo.CreateTemplate(ctx, monthlyTemplate(u.ID, core.NewDate(2024, 6, 1))); err != nil {
		t.Fatalf("create future: %v", err)
	}
	inactive := monthlyTemplate(u.ID, core.NewDate(2024, 1, 1))
	inactive.Active = false
	if _, err := repo.CreateTemplate(ctx, inactive); err != nil {
		t.Fatalf("create inactive: %v", err)
	}
	flagged, err := repo.CreateTemplate(ctx, monthlyTemplate(u.ID, core.NewDate(2024, 1, 1)))
	if err != nil {
		t.Fatalf("create flagged: %v", err)
	}
	if err := repo.FlagTemplateForReview(ctx, flagged.ID, "bad interval"); err != nil {
		t.Fatalf("flag: %v", err)
	}

	got, err := repo.DueTemplates(ctx, core.NewDate(2024, 3, 15))
	if err != nil {
		t.Fatalf("due: %v", err)
	}
	if len(got) != 1 || got[0].ID != due.ID {
		t.Fatalf("expected only %s to be due, got %+v", due.ID, got)
	}

	// A user edit clears the review flag.
	flagged.Description = "fixed"
	if _, err := repo.UpdateTemplate(ctx, flagged); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err = repo.DueTemplates(ctx, core.NewDate(2024, 3, 15))
	if err != nil {
		t.Fatalf("due: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 due templates after clearing flag, got %d", len(got))
	}
}

func TestMaterializeOccurrence(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	u := createUser(t, repo, "alice")

	tmpl, err := repo.CreateTemplate(ctx, monthlyTemplate(u.ID, core.NewDate(2024, 1, 31)))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	tx, err := repo.MaterializeOccurrence(ctx, Materialization{Template: tmpl, Next: core.NewDate(2024, 2, 29)})
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}
	if tx.TemplateID != tmpl.ID || tx.Date != core.NewDate(2024, 1, 31) || tx.Amount != tmpl.Amount {
		t.Fatalf("unexpected transaction: %+v", tx)
	}

	after, err := repo.GetTemplate(ctx, u.ID, tmpl.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if after.NextOccurrence != core.NewDate(2024, 2, 29) || after.Occurrences != 1 || !after.Active {
		t.Fatalf("template not advanced: %+v", after)
	}

	// Replaying the same stale read must not create a second transaction.
	if _, err := repo.MaterializeOccurrence(ctx, Materialization{Template: tmpl, Next: core.NewDate(2024, 2, 29)}); !errors.Is(err, core.ErrConflict) {
		t.Fatalf("stale materialization: expected ErrConflict, got %v", err)
	}
	txs, err := repo.ListTemplateTransactions(ctx, u.ID, tmpl.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(txs) != 1 {
		t.Fatalf("expected 1 generated transaction, got %d", len(txs))
	}

	if _, err := repo.MaterializeOccurrence(ctx, Materialization{Template: after, Next: core.NewDate(2024, 3, 31), Deactivate: true}); err != nil {
		t.Fatalf("final materialize: %v", err)
	}
	final, err := repo.GetTemplate(ctx, u.ID, tmpl.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if final.Active || final.Occurrences != 2 || final.NextOccurrence != core.NewDate(2024, 3, 31) {
		t.Fatalf("template not deactivated past its last occurrence: %+v", final)
	}
}

func TestMaterializeOccurrenceAlreadyRecorded(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	u := createUser(t, repo, "alice")

	tmpl, err := repo.CreateTemplate(ctx, monthlyTemplate(u.ID, core.NewDate(2024, 1, 1)))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := repo.CreateTransaction(ctx, tmpl.OccurrenceTransaction()); err != nil {
		t.Fatalf("seed transaction: %v", err)
	}

	_, err = repo.MaterializeOccurrence(ctx, Materialization{Template: tmpl, Next: core.NewDate(2024, 2, 1)})
	if !errors.Is(err, ErrOccurrenceExists) || !errors.Is(err, core.ErrConflict) {
		t.Fatalf("expected ErrOccurrenceExists wrapping ErrConflict, got %v", err)
	}
	after, err := repo.GetTemplate(ctx, u.ID, tmpl.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if after.NextOccurrence != tmpl.NextOccurrence || after.Occurrences != 0 {
		t.Fatalf("template advanced despite rollback: %+v", after)
	}
}

func TestMaterializeOccurrenceConcurrent(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	u := createUser(t, repo, "alice")

	tmpl, err := repo.CreateTemplate(ctx, monthlyTemplate(u.ID, core.NewDate(2024, 1, 1)))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.MaterializeOccurrence(ctx, Materialization{Template: tmpl, Next: core.NewDate(2024, 2, 1)})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			} else if !errors.Is(err, core.ErrConflict) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded != 1 {
		t.Fatalf("expected exactly one winner, got %d", succeeded)
	}
}

func TestDeleteTemplateKeepsTransactions(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	u := createUser(t, repo, "alice")

	tmpl, err := repo.CreateTemplate(ctx, monthlyTemplate(u.ID, core.NewDate(2024, 1, 1)))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	tx, err := repo.MaterializeOccurrence(ctx, Materialization{Template: tmpl, Next: core.NewDate(2024, 2, 1)})
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}

	if _, err := repo.DeleteTemplate(ctx, u.ID, tmpl.ID); err != nil {
		t.Fatalf("delete template: %v", err)
	}

	kept, err := repo.GetTransaction(ctx, u.ID, tx.ID)
	if err != nil {
		t.Fatalf("generated transaction should survive: %v", err)
	}
	if kept.TemplateID != "" {
		t.Fatalf("expected back-reference to be cleared, got %q", kept.TemplateID)
	}
	if kept.Amount != tx.Amount || kept.Date != tx.Date {
		t.Fatalf("transaction data changed: %+v", kept)
	}
}

func TestDeactivateTemplate(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	u := createUser(t, repo, "alice")

	tmpl, err := repo.CreateTemplate(ctx, monthlyTemplate(u.ID, core.NewDate(2024, 1, 1)))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.DeactivateTemplate(ctx, tmpl.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if err := repo.DeactivateTemplate(ctx, tmpl.ID); !errors.Is(err, core.ErrConflict) {
		t.Fatalf("second deactivate: expected ErrConflict, got %v", err)
	}
}

func TestSessions(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	u := createUser(t, repo, "alice")

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	repo.SetClock(func() time.Time { return now })

	live := core.Session{ID: "live", UserID: u.ID, ExpiresAt: now.Add(time.Hour)}
	stale := core.Session{ID: "stale", UserID: u.ID, ExpiresAt: now.Add(-time.Minute)}
	for _, s := range []core.Session{live, stale} {
		if err := repo.CreateSession(ctx, s); err != nil {
			t.Fatalf("create session: %v", err)
		}
	}

	got, err := repo.GetSession(ctx, "live")
	if err != nil {
		t.Fatalf("get live session: %v", err)
	}
	if got.UserID != u.ID || !got.ExpiresAt.Equal(live.ExpiresAt) {
		t.Fatalf("unexpected session: %+v", got)
	}
	if _, err := repo.GetSession(ctx, "stale"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expired session: expected ErrNotFound, got %v", err)
	}

	n, err := repo.DeleteExpiredSessions(ctx, now)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if n != 1 {
		t.Fatalf("pruned %d sessions, want 1", n)
	}

	if err := repo.DeleteSession(ctx, "live"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.GetSession(ctx, "live"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("deleted session: expected ErrNotFound, got %v", err)
	}
}
