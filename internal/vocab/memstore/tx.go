package memstore

import (
	"context"
	"time"

	"github.com/vocatutor/vocatutor/internal/vocab"
)

// txHandle implements [vocab.Tx] over a private snapshot [Store]. It is only
// ever constructed by [Store.WithTx] and is not safe to retain past fn's
// return.
type txHandle struct {
	s *Store
}

var _ vocab.Tx = (*txHandle)(nil)

// Reads delegate straight to the snapshot, which is single-goroutine for the
// duration of the enclosing WithTx call, so no locking is needed here.

func (t *txHandle) GetUser(ctx context.Context, id string) (vocab.User, error) {
	return t.s.GetUser(ctx, id)
}
func (t *txHandle) GetProfile(ctx context.Context, id string) (vocab.Profile, error) {
	return t.s.GetProfile(ctx, id)
}
func (t *txHandle) GetActiveProfile(ctx context.Context, userID string) (vocab.Profile, error) {
	return t.s.GetActiveProfile(ctx, userID)
}
func (t *txHandle) GetWord(ctx context.Context, id string) (vocab.Word, error) {
	return t.s.GetWord(ctx, id)
}
func (t *txHandle) FindWord(ctx context.Context, text, language string) (vocab.Word, error) {
	return t.s.FindWord(ctx, text, language)
}
func (t *txHandle) GetUserWord(ctx context.Context, id string) (vocab.UserWord, error) {
	return t.s.GetUserWord(ctx, id)
}
func (t *txHandle) GetUserWordByWord(ctx context.Context, profileID, wordID string) (vocab.UserWord, error) {
	return t.s.GetUserWordByWord(ctx, profileID, wordID)
}
func (t *txHandle) ListSelectionCandidates(ctx context.Context, profileID string) ([]vocab.SelectionCandidate, error) {
	return t.s.ListSelectionCandidates(ctx, profileID)
}
func (t *txHandle) GetWordStat(ctx context.Context, userWordID string, dir vocab.Direction, tt vocab.TestType) (vocab.WordStat, error) {
	return t.s.GetWordStat(ctx, userWordID, dir, tt)
}
func (t *txHandle) ListWordStats(ctx context.Context, userWordID string) ([]vocab.WordStat, error) {
	return t.s.ListWordStats(ctx, userWordID)
}
func (t *txHandle) GetActiveLesson(ctx context.Context, profileID string) (vocab.Lesson, error) {
	return t.s.GetActiveLesson(ctx, profileID)
}
func (t *txHandle) GetLesson(ctx context.Context, id string) (vocab.Lesson, error) {
	return t.s.GetLesson(ctx, id)
}
func (t *txHandle) ListDistractorPool(ctx context.Context, language string, cefr vocab.CEFR, excludeWordID string, limit int) ([]vocab.Word, error) {
	return t.s.ListDistractorPool(ctx, language, cefr, excludeWordID, limit)
}
func (t *txHandle) FindTranslationCache(ctx context.Context, text, srcLang, tgtLang string) (*vocab.TranslationCacheEntry, error) {
	return t.s.FindTranslationCache(ctx, text, srcLang, tgtLang)
}
func (t *txHandle) FindValidationCache(ctx context.Context, wordID string, dir vocab.Direction, expectedNorm, answerNorm string) (*vocab.ValidationCacheEntry, error) {
	return t.s.FindValidationCache(ctx, wordID, dir, expectedNorm, answerNorm)
}
func (t *txHandle) ListInactiveUsers(ctx context.Context, cutoff time.Time) ([]vocab.User, error) {
	return t.s.ListInactiveUsers(ctx, cutoff)
}

// ── Mutations ─────────────────────────────────────────────────────────────

func (t *txHandle) CreateUser(ctx context.Context, u vocab.User) (vocab.User, error) {
	if u.ID == "" {
		u.ID = generateID()
	}
	if _, exists := t.s.users[u.ID]; exists {
		return vocab.User{}, vocab.ErrConflict
	}
	t.s.users[u.ID] = u
	return u, nil
}

func (t *txHandle) UpdateUser(ctx context.Context, u vocab.User) error {
	if _, ok := t.s.users[u.ID]; !ok {
		return vocab.ErrNotFound
	}
	t.s.users[u.ID] = u
	return nil
}

func (t *txHandle) SetNotificationsEnabled(ctx context.Context, userID string, on bool) error {
	u, ok := t.s.users[userID]
	if !ok {
		return vocab.ErrNotFound
	}
	u.NotificationsOn = on
	t.s.users[userID] = u
	return nil
}

func (t *txHandle) TouchLastActive(ctx context.Context, userID string, at time.Time) error {
	u, ok := t.s.users[userID]
	if !ok {
		return vocab.ErrNotFound
	}
	u.LastActiveAt = at
	t.s.users[userID] = u
	return nil
}

func (t *txHandle) CreateProfile(ctx context.Context, p vocab.Profile) (vocab.Profile, error) {
	if p.ID == "" {
		p.ID = generateID()
	}
	for _, existing := range t.s.profiles {
		if existing.UserID == p.UserID && existing.TargetLang == p.TargetLang {
			return vocab.Profile{}, vocab.ErrConflict
		}
	}
	t.s.profiles[p.ID] = p
	return p, nil
}

func (t *txHandle) DeactivateProfiles(ctx context.Context, userID string) error {
	for id, p := range t.s.profiles {
		if p.UserID == userID && p.Active {
			p.Active = false
			t.s.profiles[id] = p
		}
	}
	return nil
}

func (t *txHandle) UpsertWord(ctx context.Context, w vocab.Word) (vocab.Word, error) {
	for id, existing := range t.s.words {
		if existing.Text == w.Text && existing.Language == w.Language {
			w.ID = id
			t.s.words[id] = w
			return w, nil
		}
	}
	if w.ID == "" {
		w.ID = generateID()
	}
	t.s.words[w.ID] = w
	return w, nil
}

func (t *txHandle) CreateUserWord(ctx context.Context, uw vocab.UserWord) (vocab.UserWord, error) {
	if uw.ID == "" {
		uw.ID = generateID()
	}
	for _, existing := range t.s.userWords {
		if existing.ProfileID == uw.ProfileID && existing.WordID == uw.WordID {
			return vocab.UserWord{}, vocab.ErrConflict
		}
	}
	if uw.EF == 0 {
		uw.EF = 2.5
	}
	t.s.userWords[uw.ID] = uw
	return uw, nil
}

func (t *txHandle) UpdateUserWord(ctx context.Context, uw vocab.UserWord) error {
	if _, ok := t.s.userWords[uw.ID]; !ok {
		return vocab.ErrNotFound
	}
	t.s.userWords[uw.ID] = uw
	return nil
}

func (t *txHandle) UpsertWordStat(ctx context.Context, ws vocab.WordStat) error {
	facets, ok := t.s.wordStats[ws.UserWordID]
	if !ok {
		facets = make(map[string]vocab.WordStat)
		t.s.wordStats[ws.UserWordID] = facets
	}
	facets[facetKey(ws.Direction, ws.TestType)] = ws
	return nil
}

func (t *txHandle) CreateLesson(ctx context.Context, l vocab.Lesson) (vocab.Lesson, error) {
	for _, existing := range t.s.lessons {
		if existing.ProfileID == l.ProfileID && existing.CompletedAt == nil {
			return vocab.Lesson{}, vocab.ErrConflict
		}
	}
	if l.ID == "" {
		l.ID = generateID()
	}
	t.s.lessons[l.ID] = l
	return l, nil
}

func (t *txHandle) UpdateLesson(ctx context.Context, l vocab.Lesson) error {
	if _, ok := t.s.lessons[l.ID]; !ok {
		return vocab.ErrNotFound
	}
	t.s.lessons[l.ID] = l
	return nil
}

func (t *txHandle) AppendLessonAttempt(ctx context.Context, a vocab.LessonAttempt) error {
	t.s.attempts = append(t.s.attempts, a)
	return nil
}

func (t *txHandle) PutTranslationCache(ctx context.Context, e vocab.TranslationCacheEntry) error {
	t.s.translations[translationKey(e.Text, e.SrcLang, e.TgtLang)] = e
	return nil
}

func (t *txHandle) PutValidationCache(ctx context.Context, e vocab.ValidationCacheEntry) error {
	t.s.validations[validationKey(e.WordID, e.Direction, e.ExpectedNorm, e.AnswerNorm)] = e
	return nil
}
