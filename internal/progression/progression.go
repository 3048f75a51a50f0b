// Package progression implements the test-type and status transition rules
// as a pure function over the current UserWord/WordStat snapshot, in the
// same "pure core, inject state" style as internal/scheduler.
package progression

import (
	"time"

	"github.com/vocatutor/vocatutor/internal/vocab"
)

// Default thresholds (C=3, M=30).
const (
	DefaultChoiceToInputThreshold = 3
	DefaultMasteryThreshold       = 30
	DefaultLearningToReviewing    = 5
)

// Config holds the tunable progression thresholds.
type Config struct {
	ChoiceToInputThreshold int
	MasteryThreshold       int
}

func (c Config) withDefaults() Config {
	if c.ChoiceToInputThreshold <= 0 {
		c.ChoiceToInputThreshold = DefaultChoiceToInputThreshold
	}
	if c.MasteryThreshold <= 0 {
		c.MasteryThreshold = DefaultMasteryThreshold
	}
	return c
}

// Input is the pre-answer state Apply needs: the UserWord, the facet being
// answered (zero value if this is the facet's first attempt), and every
// other facet of the same UserWord (needed because mastery and the
// choice→input promotion are evaluated "in any direction"/"any facet").
type Input struct {
	UserWord    vocab.UserWord
	CurrentStat vocab.WordStat
	OtherStats  []vocab.WordStat
	Correct     bool
	Now         time.Time
}

// Output is the post-answer UserWord and updated facet, plus whether the
// word should now prefer TestInput questions.
type Output struct {
	UserWord   vocab.UserWord
	Stat       vocab.WordStat
	InputReady bool
}

// Apply folds one graded answer into the UserWord/WordStat state.
func Apply(in Input, cfg Config) Output {
	cfg = cfg.withDefaults()

	stat := in.CurrentStat
	stat.TotalAttempts++
	if in.Correct {
		stat.TotalCorrect++
		stat.StreakCorrect++
	} else {
		stat.TotalErrors++
		stat.StreakCorrect = 0
	}

	uw := in.UserWord
	if uw.Status == vocab.StatusNew {
		uw.Status = vocab.StatusLearning
	}

	maxTotalCorrect := stat.TotalCorrect
	maxChoiceStreak := 0
	if stat.TestType == vocab.TestChoice {
		maxChoiceStreak = stat.StreakCorrect
	}
	for _, other := range in.OtherStats {
		if other.TotalCorrect > maxTotalCorrect {
			maxTotalCorrect = other.TotalCorrect
		}
		if other.TestType == vocab.TestChoice && other.StreakCorrect > maxChoiceStreak {
			maxChoiceStreak = other.StreakCorrect
		}
	}

	if uw.Status == vocab.StatusLearning && maxTotalCorrect >= DefaultLearningToReviewing {
		uw.Status = vocab.StatusReviewing
	}

	// Mastery is terminal: once reached it is never revisited by a later
	// wrong answer, but a fresh crossing of the threshold on this answer
	// still promotes (see DESIGN.md).
	if uw.Status != vocab.StatusMastered && stat.StreakCorrect >= cfg.MasteryThreshold {
		uw.Status = vocab.StatusMastered
	}

	return Output{
		UserWord:   uw,
		Stat:       stat,
		InputReady: maxChoiceStreak >= cfg.ChoiceToInputThreshold,
	}
}

// NextTestType returns the test type the next question for this word should
// use, given whether the word is input-ready (the choice→input promotion).
func NextTestType(inputReady bool) vocab.TestType {
	if inputReady {
		return vocab.TestInput
	}
	return vocab.TestChoice
}

// InputReady reports whether stats already satisfy the choice→input
// promotion threshold, for read paths (e.g. the Selector) that need the
// same judgement without going through Apply.
func InputReady(stats []vocab.WordStat, cfg Config) bool {
	cfg = cfg.withDefaults()
	for _, s := range stats {
		if s.TestType == vocab.TestChoice && s.StreakCorrect >= cfg.ChoiceToInputThreshold {
			return true
		}
	}
	return false
}
