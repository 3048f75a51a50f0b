// Package memstore is a thread-safe, in-memory implementation of
// [vocab.Store], adapted from internal/entity.MemStore for use in tests and
// local development without a PostgreSQL instance.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vocatutor/vocatutor/internal/vocab"
)

// Store is an in-memory [vocab.Store]. The zero value is not ready to use;
// call [New].
type Store struct {
	mu sync.Mutex

	users         map[string]vocab.User
	profiles      map[string]vocab.Profile
	words         map[string]vocab.Word
	userWords     map[string]vocab.UserWord
	wordStats     map[string]map[string]vocab.WordStat // userWordID -> facetKey -> stat
	lessons       map[string]vocab.Lesson
	attempts      []vocab.LessonAttempt
	translations  map[string]vocab.TranslationCacheEntry
	validations   map[string]vocab.ValidationCacheEntry
}

var _ vocab.Store = (*Store)(nil)

// New returns an empty, ready-to-use in-memory Store.
func New() *Store {
	return &Store{
		users:        make(map[string]vocab.User),
		profiles:     make(map[string]vocab.Profile),
		words:        make(map[string]vocab.Word),
		userWords:    make(map[string]vocab.UserWord),
		wordStats:    make(map[string]map[string]vocab.WordStat),
		lessons:      make(map[string]vocab.Lesson),
		translations: make(map[string]vocab.TranslationCacheEntry),
		validations:  make(map[string]vocab.ValidationCacheEntry),
	}
}

func facetKey(dir vocab.Direction, tt vocab.TestType) string {
	return string(dir) + "|" + string(tt)
}

// WithTx implements [vocab.Store]. The in-memory store has no partial-write
// visibility to undo, so "rollback" is implemented by operating on a deep
// copy and only publishing it back on success.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx vocab.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.clone()
	tx := &txHandle{s: snapshot}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	s.adopt(snapshot)
	return nil
}

func (s *Store) clone() *Store {
	c := New()
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.profiles {
		c.profiles[k] = v
	}
	for k, v := range s.words {
		c.words[k] = v
	}
	for k, v := range s.userWords {
		c.userWords[k] = v
	}
	for uw, facets := range s.wordStats {
		m := make(map[string]vocab.WordStat, len(facets))
		for fk, st := range facets {
			m[fk] = st
		}
		c.wordStats[uw] = m
	}
	for k, v := range s.lessons {
		c.lessons[k] = v
	}
	c.attempts = append(c.attempts, s.attempts...)
	for k, v := range s.translations {
		c.translations[k] = v
	}
	for k, v := range s.validations {
		c.validations[k] = v
	}
	return c
}

func (s *Store) adopt(other *Store) {
	s.users = other.users
	s.profiles = other.profiles
	s.words = other.words
	s.userWords = other.userWords
	s.wordStats = other.wordStats
	s.lessons = other.lessons
	s.attempts = other.attempts
	s.translations = other.translations
	s.validations = other.validations
}

// ── Queries (outside any transaction — snapshot read under the store mutex) ──

func (s *Store) GetUser(ctx context.Context, id string) (vocab.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return vocab.User{}, vocab.ErrNotFound
	}
	return u, nil
}

func (s *Store) GetProfile(ctx context.Context, id string) (vocab.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	if !ok {
		return vocab.Profile{}, vocab.ErrNotFound
	}
	return p, nil
}

func (s *Store) GetActiveProfile(ctx context.Context, userID string) (vocab.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.profiles {
		if p.UserID == userID && p.Active {
			return p, nil
		}
	}
	return vocab.Profile{}, vocab.ErrNotFound
}

func (s *Store) GetWord(ctx context.Context, id string) (vocab.Word, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.words[id]
	if !ok {
		return vocab.Word{}, vocab.ErrNotFound
	}
	return w, nil
}

func (s *Store) FindWord(ctx context.Context, text, language string) (vocab.Word, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.words {
		if w.Text == text && w.Language == language {
			return w, nil
		}
	}
	return vocab.Word{}, vocab.ErrNotFound
}

func (s *Store) GetUserWord(ctx context.Context, id string) (vocab.UserWord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	uw, ok := s.userWords[id]
	if !ok {
		return vocab.UserWord{}, vocab.ErrNotFound
	}
	return uw, nil
}

func (s *Store) GetUserWordByWord(ctx context.Context, profileID, wordID string) (vocab.UserWord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, uw := range s.userWords {
		if uw.ProfileID == profileID && uw.WordID == wordID {
			return uw, nil
		}
	}
	return vocab.UserWord{}, vocab.ErrNotFound
}

func (s *Store) ListSelectionCandidates(ctx context.Context, profileID string) ([]vocab.SelectionCandidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listSelectionCandidatesLocked(profileID), nil
}

func (s *Store) listSelectionCandidatesLocked(profileID string) []vocab.SelectionCandidate {
	var out []vocab.SelectionCandidate
	ids := make([]string, 0, len(s.userWords))
	for id := range s.userWords {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		uw := s.userWords[id]
		if uw.ProfileID != profileID || uw.Status == vocab.StatusMastered {
			continue
		}
		cand := vocab.SelectionCandidate{UserWord: uw}
		for _, st := range s.wordStats[uw.ID] {
			cand.TotalAttempts += st.TotalAttempts
			cand.TotalErrors += st.TotalErrors
			if st.TestType == vocab.TestChoice && st.StreakCorrect > cand.ChoiceStreakMax {
				cand.ChoiceStreakMax = st.StreakCorrect
			}
		}
		out = append(out, cand)
	}
	return out
}

func (s *Store) GetWordStat(ctx context.Context, userWordID string, dir vocab.Direction, tt vocab.TestType) (vocab.WordStat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	facets, ok := s.wordStats[userWordID]
	if !ok {
		return vocab.WordStat{}, vocab.ErrNotFound
	}
	st, ok := facets[facetKey(dir, tt)]
	if !ok {
		return vocab.WordStat{}, vocab.ErrNotFound
	}
	return st, nil
}

func (s *Store) ListWordStats(ctx context.Context, userWordID string) ([]vocab.WordStat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	facets := s.wordStats[userWordID]
	out := make([]vocab.WordStat, 0, len(facets))
	for _, st := range facets {
		out = append(out, st)
	}
	return out, nil
}

func (s *Store) GetActiveLesson(ctx context.Context, profileID string) (vocab.Lesson, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.lessons {
		if l.ProfileID == profileID && l.CompletedAt == nil {
			return l, nil
		}
	}
	return vocab.Lesson{}, vocab.ErrNotFound
}

func (s *Store) GetLesson(ctx context.Context, id string) (vocab.Lesson, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lessons[id]
	if !ok {
		return vocab.Lesson{}, vocab.ErrNotFound
	}
	return l, nil
}

func (s *Store) ListDistractorPool(ctx context.Context, language string, cefr vocab.CEFR, excludeWordID string, limit int) ([]vocab.Word, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var pool []vocab.Word
	for _, w := range s.words {
		if w.Language != language || w.ID == excludeWordID {
			continue
		}
		if cefr != "" && w.CEFR != cefr {
			continue
		}
		pool = append(pool, w)
	}
	sort.Slice(pool, func(i, j int) bool {
		if pool[i].FreqRank != pool[j].FreqRank {
			return pool[i].FreqRank < pool[j].FreqRank
		}
		return pool[i].ID < pool[j].ID
	})
	if len(pool) > limit {
		pool = pool[:limit]
	}
	return pool, nil
}

func (s *Store) FindTranslationCache(ctx context.Context, text, srcLang, tgtLang string) (*vocab.TranslationCacheEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.translations[translationKey(text, srcLang, tgtLang)]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (s *Store) FindValidationCache(ctx context.Context, wordID string, dir vocab.Direction, expectedNorm, answerNorm string) (*vocab.ValidationCacheEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.validations[validationKey(wordID, dir, expectedNorm, answerNorm)]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (s *Store) ListInactiveUsers(ctx context.Context, cutoff time.Time) ([]vocab.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []vocab.User
	for _, u := range s.users {
		if u.NotificationsOn && u.LastActiveAt.Before(cutoff) {
			out = append(out, u)
		}
	}
	return out, nil
}

func translationKey(text, src, tgt string) string { return text + "|" + src + "|" + tgt }
func validationKey(wordID string, dir vocab.Direction, expectedNorm, answerNorm string) string {
	return wordID + "|" + string(dir) + "|" + expectedNorm + "|" + answerNorm
}

// generateID returns a new random UUID string.
func generateID() string { return uuid.NewString() }
