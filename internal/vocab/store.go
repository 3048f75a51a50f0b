package vocab

import (
	"context"
	"time"
)

// SelectionCandidate is the read shape the Selector (C7) scores. It carries
// the aggregates the scoring formula needs pre-computed by the Store so the
// Selector never issues one query per candidate.
type SelectionCandidate struct {
	UserWord UserWord

	// TotalAttempts and TotalErrors are summed across all (direction,
	// test_type) facets of this UserWord.
	TotalAttempts int
	TotalErrors   int

	// ChoiceStreakMax is the highest WordStat.StreakCorrect among this
	// UserWord's test_type=choice facets (across both directions). The
	// Selector compares this against the choice-to-input threshold to
	// decide input-readiness.
	ChoiceStreakMax int
}

// Queries is the read-only surface shared by [Store] (outside a transaction)
// and [Tx] (inside one). The Selector only ever needs this half.
type Queries interface {
	GetUser(ctx context.Context, id string) (User, error)
	GetProfile(ctx context.Context, id string) (Profile, error)
	GetActiveProfile(ctx context.Context, userID string) (Profile, error)

	GetWord(ctx context.Context, id string) (Word, error)
	FindWord(ctx context.Context, text, language string) (Word, error)

	GetUserWord(ctx context.Context, id string) (UserWord, error)
	GetUserWordByWord(ctx context.Context, profileID, wordID string) (UserWord, error)

	// ListSelectionCandidates returns every non-mastered UserWord for
	// profileID with its aggregates, for the Selector to rank.
	ListSelectionCandidates(ctx context.Context, profileID string) ([]SelectionCandidate, error)

	GetWordStat(ctx context.Context, userWordID string, dir Direction, tt TestType) (WordStat, error)
	ListWordStats(ctx context.Context, userWordID string) ([]WordStat, error)

	// GetActiveLesson returns the profile's Lesson with CompletedAt == nil,
	// or ErrNotFound if none exists.
	GetActiveLesson(ctx context.Context, profileID string) (Lesson, error)
	GetLesson(ctx context.Context, id string) (Lesson, error)

	// ListDistractorPool returns up to limit Words in language at cefr level,
	// excluding excludeWordID, ordered deterministically by FreqRank then ID
	// so distractor assembly is reproducible given the same pool.
	ListDistractorPool(ctx context.Context, language string, cefr CEFR, excludeWordID string, limit int) ([]Word, error)

	FindTranslationCache(ctx context.Context, text, srcLang, tgtLang string) (*TranslationCacheEntry, error)
	FindValidationCache(ctx context.Context, wordID string, dir Direction, expectedNorm, answerNorm string) (*ValidationCacheEntry, error)

	// ListInactiveUsers returns users with NotificationsOn == true and
	// LastActiveAt strictly before cutoff.
	ListInactiveUsers(ctx context.Context, cutoff time.Time) ([]User, error)
}

// Tx is the read-write surface available inside a [Store.WithTx] call. It
// embeds [Queries] so mutation logic never needs a second round-trip to read
// state it is about to update.
type Tx interface {
	Queries

	CreateUser(ctx context.Context, u User) (User, error)
	UpdateUser(ctx context.Context, u User) error
	SetNotificationsEnabled(ctx context.Context, userID string, on bool) error
	TouchLastActive(ctx context.Context, userID string, at time.Time) error

	CreateProfile(ctx context.Context, p Profile) (Profile, error)
	DeactivateProfiles(ctx context.Context, userID string) error

	UpsertWord(ctx context.Context, w Word) (Word, error)

	CreateUserWord(ctx context.Context, uw UserWord) (UserWord, error)
	UpdateUserWord(ctx context.Context, uw UserWord) error

	UpsertWordStat(ctx context.Context, ws WordStat) error

	// CreateLesson inserts a new Lesson. Implementations must enforce the
	// partial-unique (profile_id) WHERE completed_at IS NULL invariant and
	// return [ErrConflict] if one is already active.
	CreateLesson(ctx context.Context, l Lesson) (Lesson, error)
	UpdateLesson(ctx context.Context, l Lesson) error
	AppendLessonAttempt(ctx context.Context, a LessonAttempt) error

	PutTranslationCache(ctx context.Context, e TranslationCacheEntry) error
	PutValidationCache(ctx context.Context, e ValidationCacheEntry) error
}

// Store is the transactional unit-of-work boundary. Every mutation path —
// adding a word, starting a lesson, applying an answer —
// runs inside [Store.WithTx]: fn's return value decides commit (nil) or
// rollback (non-nil). Reads may also happen outside a transaction via the
// embedded [Queries].
type Store interface {
	Queries

	// WithTx runs fn inside a single transaction. Implementations retry
	// transient failures (connection lost, lock timeout) up to 3 times with
	// exponential backoff before surfacing [ErrTransientStore]; the retry
	// happens around the whole fn, so fn must be idempotent with respect to
	// its own side effects outside the Store (it should not be, since the
	// model call in the answer-processing path happens before WithTx is
	// entered — see internal/lesson).
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
