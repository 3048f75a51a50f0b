// Package vocab defines the core vocabulary-training entities and the
// transactional [Store] unit-of-work interface they live behind.
//
// Entities are plain records keyed by opaque string ids — there are no
// back-pointers between them (User ↔ Profile ↔ UserWord ↔ Word would
// otherwise form a cycle). Every traversal is an explicit Store query that
// eagerly includes whatever the caller needs; nothing is lazily navigated
// after a transaction has closed.
package vocab

import "time"

// Direction is the translation direction a question is asked in.
type Direction string

const (
	NativeToForeign Direction = "native_to_foreign"
	ForeignToNative Direction = "foreign_to_native"
)

// TestType is how a question is presented.
type TestType string

const (
	TestChoice TestType = "choice"
	TestInput  TestType = "input"
)

// CEFR is the European proficiency scale, A1 (lowest) through C2 (highest).
type CEFR string

const (
	CEFRA1 CEFR = "A1"
	CEFRA2 CEFR = "A2"
	CEFRB1 CEFR = "B1"
	CEFRB2 CEFR = "B2"
	CEFRC1 CEFR = "C1"
	CEFRC2 CEFR = "C2"
)

// IsValid reports whether c is a recognised CEFR level (or the unset zero value).
func (c CEFR) IsValid() bool {
	switch c {
	case "", CEFRA1, CEFRA2, CEFRB1, CEFRB2, CEFRC1, CEFRC2:
		return true
	}
	return false
}

// UserWordStatus is the lifecycle stage of a word within a profile.
type UserWordStatus string

const (
	StatusNew       UserWordStatus = "new"
	StatusLearning  UserWordStatus = "learning"
	StatusReviewing UserWordStatus = "reviewing"
	StatusMastered  UserWordStatus = "mastered"
)

// ValidationMethod records which tier of the Validator decided an answer.
type ValidationMethod string

const (
	MethodExact ValidationMethod = "exact"
	MethodFuzzy ValidationMethod = "fuzzy"
	MethodModel ValidationMethod = "model"
)

// User is a chat identity that has registered with the bot.
type User struct {
	ID               string
	NativeLang       string
	InterfaceLang    string
	TZ               string
	NotificationsOn  bool
	LastActiveAt     time.Time
}

// Profile is a single (user, target language) language-learning track.
// At most one Profile per User has Active == true.
type Profile struct {
	ID         string
	UserID     string
	TargetLang string
	CEFR       CEFR
	Active     bool
}

// WordExample is one usage example pairing source and target language text.
type WordExample struct {
	Src string
	Tgt string
}

// Word is a shared-dictionary entry, unique by (Text, Language).
type Word struct {
	ID           string
	Text         string // normalized lowercase
	Language     string
	CEFR         CEFR // optional; zero value means unknown
	Translations map[string][]string
	Examples     []WordExample
	Forms        map[string]string
	FreqRank     int // 0 means unknown; used only as a deterministic tiebreak
}

// UserWord is the per-profile learning state for one Word.
type UserWord struct {
	ID             string
	ProfileID      string
	WordID         string
	Status         UserWordStatus
	AddedAt        time.Time
	LastReviewedAt *time.Time
	NextReviewAt   *time.Time
	IntervalDays   int
	EF             float64
}

// WordStat is the per-(direction, test_type) counter facet for a UserWord.
type WordStat struct {
	UserWordID    string
	Direction     Direction
	TestType      TestType
	StreakCorrect int
	TotalAttempts int
	TotalCorrect  int
	TotalErrors   int
}

// Lesson is one quiz session for a profile. At most one Lesson per profile
// may have CompletedAt == nil at any given time.
type Lesson struct {
	ID           string
	ProfileID    string
	StartedAt    time.Time
	CompletedAt  *time.Time
	PlannedCount int
	Correct      int
	Incorrect    int
	WordQueue    []string // ordered user_word ids
}

// LessonAttempt is one graded answer within a Lesson. Append-only.
type LessonAttempt struct {
	LessonID    string
	UserWordID  string
	Direction   Direction
	TestType    TestType
	UserAnswer  string
	Expected    string
	Correct     bool
	Method      ValidationMethod
	AttemptedAt time.Time
}

// TranslationCacheEntry is a cached LLM translation keyed by normalized text
// and the language pair.
type TranslationCacheEntry struct {
	Text      string
	SrcLang   string
	TgtLang   string
	Payload   TranslationPayload
	CachedAt  time.Time
	ExpiresAt *time.Time
}

// TranslationPayload is the shape returned by the LLM Gateway's translate
// operation, fixed and order-preserving per spec.
type TranslationPayload struct {
	Translations []string
	Examples     []WordExample
	Forms        map[string]string
}

// ValidationCacheEntry is a cached LLM validation result keyed by normalized
// strings, using the same normalization as the Validator's exact-match step
// so cache keys and exact-match comparisons never drift apart.
type ValidationCacheEntry struct {
	WordID       string
	Direction    Direction
	ExpectedNorm string
	AnswerNorm   string
	Correct      bool
	Comment      string
	CachedAt     time.Time
}

// Question is what the Lesson Engine hands to the chat transport for a
// single quiz turn.
type Question struct {
	UserWordID string
	WordID     string
	Direction  Direction
	TestType   TestType
	Prompt     string   // the word/phrase being asked about
	Expected   string   // the expected answer (not shown to the user)
	Options    []string // populated only for TestChoice; includes the correct answer, shuffled
}

// LessonSummary is produced when a Lesson completes.
type LessonSummary struct {
	PlannedCount int
	Correct      int
	Incorrect    int
	Accuracy     float64 // percentage, 0-100
	Duration     time.Duration
}
