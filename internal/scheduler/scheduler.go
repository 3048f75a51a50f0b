// Package scheduler implements the SM-2 variant spaced-repetition update
// rule as a pure function: it takes (prev_interval, prev_ef, outcome) and
// an injected now, and returns (interval, ef, next_at). It never touches a
// clock or a store itself.
package scheduler

import (
	"time"

	"github.com/vocatutor/vocatutor/internal/vocab"
)

// MinEF is the floor easiness factor can never drop below.
const MinEF = 1.3

// DefaultEF is the starting easiness factor for a brand new UserWord.
const DefaultEF = 2.5

// State is the subset of UserWord fields the scheduler reads and writes.
type State struct {
	IntervalDays int
	EF           float64
}

// Result is the updated scheduler state, including the absolute next review
// timestamp.
type Result struct {
	IntervalDays int
	EF           float64
	NextReviewAt time.Time
}

// Advance computes the next [Result] for prev given recall quality q (0-5)
// and the current instant now. It performs no I/O and reads nothing beyond
// its arguments.
func Advance(prev State, q int, now time.Time) Result {
	ef := prev.EF
	if ef <= 0 {
		ef = DefaultEF
	}

	var interval int
	if q < 3 {
		interval = 1
		ef = ef - 0.2
		if ef < MinEF {
			ef = MinEF
		}
	} else {
		fiveMinusQ := float64(5 - q)
		ef = ef + (0.1 - fiveMinusQ*(0.08+fiveMinusQ*0.02))
		if ef < MinEF {
			ef = MinEF
		}

		switch prev.IntervalDays {
		case 0:
			interval = 1
		case 1:
			interval = 6
		default:
			interval = roundToNearest(float64(prev.IntervalDays) * ef)
		}
	}

	return Result{
		IntervalDays: interval,
		EF:           ef,
		NextReviewAt: now.Add(time.Duration(interval) * 24 * time.Hour),
	}
}

// RecallQuality derives the SM-2 q value from the validation outcome that
// produced an answer.
func RecallQuality(correct bool, method vocab.ValidationMethod) int {
	if !correct {
		return 0
	}
	switch method {
	case vocab.MethodExact:
		return 5
	case vocab.MethodFuzzy:
		return 4
	case vocab.MethodModel:
		return 3
	default:
		return 3
	}
}

func roundToNearest(f float64) int {
	if f < 0 {
		return int(f - 0.5)
	}
	return int(f + 0.5)
}
