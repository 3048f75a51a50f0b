package notifier_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/vocatutor/vocatutor/internal/clock"
	"github.com/vocatutor/vocatutor/internal/notifier"
	"github.com/vocatutor/vocatutor/internal/vocab"
	"github.com/vocatutor/vocatutor/internal/vocab/memstore"
)

type recordingSender struct {
	mu      sync.Mutex
	sent    []string
	blocked map[string]bool
}

func (s *recordingSender) SendReminder(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.blocked[userID] {
		return notifier.ErrBlockedByUser
	}
	s.sent = append(s.sent, userID)
	return nil
}

func mustCreateUser(t *testing.T, store *memstore.Store, u vocab.User) vocab.User {
	t.Helper()
	var created vocab.User
	err := store.WithTx(context.Background(), func(ctx context.Context, tx vocab.Tx) error {
		var err error
		created, err = tx.CreateUser(ctx, u)
		return err
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return created
}

func TestSweep_SendsOnlyToInactiveUsersWithinWindow(t *testing.T) {
	now := time.Date(2026, 7, 31, 8, 15, 0, 0, time.UTC)
	store := memstore.New()

	inactive := mustCreateUser(t, store, vocab.User{
		NativeLang:      "en",
		TZ:              "Europe/Moscow",
		NotificationsOn: true,
		LastActiveAt:    now.Add(-7 * time.Hour),
	})
	active := mustCreateUser(t, store, vocab.User{
		NativeLang:      "en",
		TZ:              "Europe/Moscow",
		NotificationsOn: true,
		LastActiveAt:    now.Add(-1 * time.Hour),
	})
	optedOut := mustCreateUser(t, store, vocab.User{
		NativeLang:      "en",
		TZ:              "Europe/Moscow",
		NotificationsOn: false,
		LastActiveAt:    now.Add(-10 * time.Hour),
	})

	sender := &recordingSender{blocked: map[string]bool{}}
	n := notifier.New(store, sender, clock.NewFixed(now), notifier.Config{})

	if err := n.Sweep(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	if len(sender.sent) != 1 || sender.sent[0] != inactive.ID {
		t.Fatalf("expected exactly one reminder to %s, got %v", inactive.ID, sender.sent)
	}
	_ = active
	_ = optedOut
}

func TestSweep_BlockedUserDisablesNotifications(t *testing.T) {
	now := time.Date(2026, 7, 31, 8, 15, 0, 0, time.UTC)
	store := memstore.New()

	u := mustCreateUser(t, store, vocab.User{
		NativeLang:      "en",
		TZ:              "UTC",
		NotificationsOn: true,
		LastActiveAt:    now.Add(-7 * time.Hour),
	})

	sender := &recordingSender{blocked: map[string]bool{u.ID: true}}
	n := notifier.New(store, sender, clock.NewFixed(now), notifier.Config{})

	if err := n.Sweep(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	got, err := store.GetUser(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if got.NotificationsOn {
		t.Fatalf("expected NotificationsOn=false after a blocked-user send")
	}
}

func TestSweep_OutsideWindowSkipped(t *testing.T) {
	now := time.Date(2026, 7, 31, 3, 0, 0, 0, time.UTC) // 03:00 UTC, outside 07:00-23:00
	store := memstore.New()

	mustCreateUser(t, store, vocab.User{
		NativeLang:      "en",
		TZ:              "UTC",
		NotificationsOn: true,
		LastActiveAt:    now.Add(-7 * time.Hour),
	})

	sender := &recordingSender{blocked: map[string]bool{}}
	n := notifier.New(store, sender, clock.NewFixed(now), notifier.Config{})

	if err := n.Sweep(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(sender.sent) != 0 {
		t.Fatalf("expected no reminders outside the notification window, got %v", sender.sent)
	}
}
