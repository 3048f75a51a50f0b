// Package selector ranks a profile's non-mastered vocabulary for the next
// lesson. Select is read-only: it never mutates the Store, matching the
// "Selector is read-only" ownership rule the rest of the engine assumes.
package selector

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/vocatutor/vocatutor/internal/progression"
	"github.com/vocatutor/vocatutor/internal/vocab"
)

// DefaultCount is how many UserWords a lesson queue contains when the caller
// does not specify one.
const DefaultCount = 30

// scored pairs a candidate with its computed priority score.
type scored struct {
	candidate  vocab.SelectionCandidate
	score      float64
	inputReady bool
}

// Select returns up to count UserWords for profileID, drawn from its
// non-mastered vocabulary, ordered by priority with an input-ready /
// not-input-ready interleave.
func Select(ctx context.Context, q vocab.Queries, profileID string, count int, now time.Time, cfg progression.Config) ([]vocab.UserWord, error) {
	if count <= 0 {
		count = DefaultCount
	}

	candidates, err := q.ListSelectionCandidates(ctx, profileID)
	if err != nil {
		return nil, err
	}

	ready := make([]scored, 0, len(candidates))
	notReady := make([]scored, 0, len(candidates))

	threshold := cfg.ChoiceToInputThreshold
	if threshold <= 0 {
		threshold = progression.DefaultChoiceToInputThreshold
	}

	for _, c := range candidates {
		s := scored{
			candidate:  c,
			score:      score(c, now),
			inputReady: c.ChoiceStreakMax >= threshold,
		}
		if s.inputReady {
			ready = append(ready, s)
		} else {
			notReady = append(notReady, s)
		}
	}

	sort.SliceStable(ready, func(i, j int) bool { return ready[i].score > ready[j].score })
	sort.SliceStable(notReady, func(i, j int) bool { return notReady[i].score > notReady[j].score })

	readyTarget := count / 2
	notReadyTarget := count - readyTarget

	if len(ready) < readyTarget {
		notReadyTarget += readyTarget - len(ready)
		readyTarget = len(ready)
	}
	if len(notReady) < notReadyTarget {
		readyTarget += notReadyTarget - len(notReady)
		notReadyTarget = len(notReady)
	}
	if readyTarget > len(ready) {
		readyTarget = len(ready)
	}
	if notReadyTarget > len(notReady) {
		notReadyTarget = len(notReady)
	}

	ready = ready[:readyTarget]
	notReady = notReady[:notReadyTarget]

	out := make([]vocab.UserWord, 0, len(ready)+len(notReady))
	i, j := 0, 0
	for i < len(ready) || j < len(notReady) {
		if i < len(ready) {
			out = append(out, ready[i].candidate.UserWord)
			i++
		}
		if j < len(notReady) {
			out = append(out, notReady[j].candidate.UserWord)
			j++
		}
	}

	return out, nil
}

// score computes the priority of a single candidate per the selector's
// scoring function: weighted overdue-review, error-rate, new-word bonus,
// capped staleness, and per-status bonuses.
func score(c vocab.SelectionCandidate, now time.Time) float64 {
	uw := c.UserWord

	var daysOverdue float64
	if uw.NextReviewAt != nil {
		daysOverdue = now.Sub(*uw.NextReviewAt).Hours() / 24
	}
	if daysOverdue < 0 {
		daysOverdue = 0
	}

	var errorRate float64
	if c.TotalAttempts > 0 {
		errorRate = float64(c.TotalErrors) / float64(c.TotalAttempts)
	}

	var daysSinceReview float64
	if uw.LastReviewedAt != nil {
		daysSinceReview = now.Sub(*uw.LastReviewedAt).Hours() / 24
	}
	staleness := math.Min(7, daysSinceReview)

	var isNew, isLearning, isReviewing float64
	switch uw.Status {
	case vocab.StatusNew:
		isNew = 1
	case vocab.StatusLearning:
		isLearning = 1
	case vocab.StatusReviewing:
		isReviewing = 1
	}

	return 10*daysOverdue +
		5*errorRate +
		15*isNew +
		staleness +
		3*isLearning +
		1*isReviewing
}
