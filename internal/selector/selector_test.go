package selector

import (
	"context"
	"testing"
	"time"

	"github.com/vocatutor/vocatutor/internal/progression"
	"github.com/vocatutor/vocatutor/internal/vocab"
	"github.com/vocatutor/vocatutor/internal/vocab/memstore"
)

func setupProfile(t *testing.T, store *memstore.Store, profileID string) {
	t.Helper()
	err := store.WithTx(context.Background(), func(ctx context.Context, tx vocab.Tx) error {
		_, err := tx.CreateProfile(ctx, vocab.Profile{ID: profileID, UserID: "u1", TargetLang: "ru", Active: true})
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
}

func addUserWord(t *testing.T, store *memstore.Store, profileID, wordID string, uw vocab.UserWord) vocab.UserWord {
	t.Helper()
	uw.ProfileID = profileID
	uw.WordID = wordID
	var created vocab.UserWord
	err := store.WithTx(context.Background(), func(ctx context.Context, tx vocab.Tx) error {
		var err error
		created, err = tx.CreateUserWord(ctx, uw)
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	return created
}

func TestSelect_ExcludesMastered(t *testing.T) {
	store := memstore.New()
	setupProfile(t, store, "p1")

	addUserWord(t, store, "p1", "w1", vocab.UserWord{Status: vocab.StatusNew})
	addUserWord(t, store, "p1", "w2", vocab.UserWord{Status: vocab.StatusMastered})

	out, err := Select(context.Background(), store, "p1", 30, time.Now(), progression.Config{})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 {
		t.Fatalf("len(out) = %d, want 1 (mastered word excluded)", len(out))
	}
	if out[0].WordID != "w1" {
		t.Errorf("got word %s, want w1", out[0].WordID)
	}
}

func TestSelect_NewWordBonusOutranksStaleReview(t *testing.T) {
	store := memstore.New()
	setupProfile(t, store, "p1")

	now := time.Now()
	lastReviewed := now.Add(-24 * time.Hour)
	addUserWord(t, store, "p1", "new-word", vocab.UserWord{Status: vocab.StatusNew})
	addUserWord(t, store, "p1", "reviewing-word", vocab.UserWord{
		Status:         vocab.StatusReviewing,
		LastReviewedAt: &lastReviewed,
	})

	out, err := Select(context.Background(), store, "p1", 30, now, progression.Config{})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 {
		t.Fatalf("len(out) = %d, want 2", len(out))
	}
	// new-word: 15 (new bonus), reviewing-word: 1(day staleness)+1(reviewing) = 2.
	// new-word must rank first in its bucket and appear before reviewing-word
	// since both fall in the not-input-ready bucket.
	if out[0].WordID != "new-word" {
		t.Errorf("got first word %s, want new-word to outrank a stale review", out[0].WordID)
	}
}

func TestSelect_InterleavesInputReadyAndNot(t *testing.T) {
	store := memstore.New()
	setupProfile(t, store, "p1")

	cfg := progression.Config{ChoiceToInputThreshold: 3}

	readyUW := addUserWord(t, store, "p1", "ready-word", vocab.UserWord{Status: vocab.StatusLearning})
	err := store.WithTx(context.Background(), func(ctx context.Context, tx vocab.Tx) error {
		return tx.UpsertWordStat(ctx, vocab.WordStat{
			UserWordID: readyUW.ID, Direction: vocab.NativeToForeign, TestType: vocab.TestChoice, StreakCorrect: 3,
		})
	})
	if err != nil {
		t.Fatal(err)
	}
	addUserWord(t, store, "p1", "not-ready-word", vocab.UserWord{Status: vocab.StatusLearning})

	out, err := Select(context.Background(), store, "p1", 30, time.Now(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 {
		t.Fatalf("len(out) = %d, want 2", len(out))
	}
}

func TestSelect_RespectsCount(t *testing.T) {
	store := memstore.New()
	setupProfile(t, store, "p1")

	for i := 0; i < 10; i++ {
		addUserWord(t, store, "p1", string(rune('a'+i)), vocab.UserWord{Status: vocab.StatusNew})
	}

	out, err := Select(context.Background(), store, "p1", 4, time.Now(), progression.Config{})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 4 {
		t.Errorf("len(out) = %d, want 4", len(out))
	}
}
