// Package lesson implements the lesson lifecycle state machine: starting
// (or resuming) a lesson, producing the next question, and applying a
// graded answer. Answer is the one place Validator, Scheduler, and
// Progression compose inside a single transaction.
//
// The interface surface is kept narrow — Start/Next/Answer/Abandon — the
// same way internal/engine.VoiceEngine is kept narrow so the caller (the
// chat transport) stays decoupled from how grading and scheduling work.
package lesson

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/vocatutor/vocatutor/internal/clock"
	"github.com/vocatutor/vocatutor/internal/observe"
	"github.com/vocatutor/vocatutor/internal/progression"
	"github.com/vocatutor/vocatutor/internal/scheduler"
	"github.com/vocatutor/vocatutor/internal/selector"
	"github.com/vocatutor/vocatutor/internal/validator"
	"github.com/vocatutor/vocatutor/internal/vocab"
)

// Defaults per the lesson lifecycle.
const (
	DefaultTimeout        = 2 * time.Hour
	DefaultDistractors    = 3 // plus the correct answer, N=4 options total
	DefaultDistractorPool = 12
)

// Config tunes the lesson lifecycle.
type Config struct {
	Timeout        time.Duration
	SelectionCount int
	Distractors    int
	Progression    progression.Config
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.SelectionCount <= 0 {
		c.SelectionCount = selector.DefaultCount
	}
	if c.Distractors <= 0 {
		c.Distractors = DefaultDistractors
	}
	return c
}

// Engine drives the lesson state machine for a profile.
type Engine struct {
	store     vocab.Store
	validator *validator.Validator
	clock     clock.Clock
	cfg       Config
}

// New creates an Engine over store, escalating to v on fuzzy-tier failure.
func New(store vocab.Store, v *validator.Validator, c clock.Clock, cfg Config) *Engine {
	return &Engine{store: store, validator: v, clock: c, cfg: cfg.withDefaults()}
}

// AnswerOutcome is returned by Answer.
type AnswerOutcome struct {
	Result   validator.Result
	Done     bool
	Summary  *vocab.LessonSummary
	NextWord string // user_word_id of the next question, empty if Done
}

// Start resumes the profile's Active lesson, or auto-completes it and
// starts a new one if it was started more than cfg.Timeout ago, or starts a fresh
// lesson via the Selector if none exists.
func (e *Engine) Start(ctx context.Context, profileID string) (vocab.Lesson, vocab.Question, error) {
	var created vocab.Lesson
	now := e.clock.Now()

	err := e.store.WithTx(ctx, func(ctx context.Context, tx vocab.Tx) error {
		active, err := tx.GetActiveLesson(ctx, profileID)
		switch {
		case err == nil:
			if now.Sub(active.StartedAt) < e.cfg.Timeout {
				created = active
				return nil
			}
			completedAt := now
			active.CompletedAt = &completedAt
			if err := tx.UpdateLesson(ctx, active); err != nil {
				return fmt.Errorf("lesson: auto-complete expired lesson: %w", err)
			}
			observe.DefaultMetrics().ActiveLessons.Add(ctx, -1)
		case errors.Is(err, vocab.ErrNotFound):
			// no active lesson, fall through to create one
		default:
			return err
		}

		queue, err := selector.Select(ctx, tx, profileID, e.cfg.SelectionCount, now, e.cfg.Progression)
		if err != nil {
			return fmt.Errorf("lesson: select words: %w", err)
		}
		ids := make([]string, len(queue))
		for i, uw := range queue {
			ids[i] = uw.ID
		}

		l, err := tx.CreateLesson(ctx, vocab.Lesson{
			ProfileID:    profileID,
			StartedAt:    now,
			PlannedCount: len(ids),
			WordQueue:    ids,
		})
		if err != nil {
			return fmt.Errorf("lesson: create: %w", err)
		}
		created = l
		observe.DefaultMetrics().ActiveLessons.Add(ctx, 1)
		return nil
	})
	if err != nil {
		return vocab.Lesson{}, vocab.Question{}, err
	}

	if len(created.WordQueue) == 0 {
		return created, vocab.Question{}, nil
	}
	q, err := e.buildQuestion(ctx, e.store, created.WordQueue[0])
	return created, q, err
}

// Next returns the next unanswered question of the profile's Active lesson.
func (e *Engine) Next(ctx context.Context, profileID string) (vocab.Question, bool, error) {
	l, err := e.store.GetActiveLesson(ctx, profileID)
	if err != nil {
		return vocab.Question{}, false, err
	}
	if len(l.WordQueue) == 0 {
		return vocab.Question{}, true, nil
	}
	q, err := e.buildQuestion(ctx, e.store, l.WordQueue[0])
	return q, false, err
}

// buildQuestion assembles a Question for userWordID: test type decided by
// Progression's choice→input promotion, direction chosen uniformly at
// random, and for choice questions N distractors drawn from the same
// language/level pool with a deterministic freq_rank tiebreak, shuffled.
func (e *Engine) buildQuestion(ctx context.Context, q vocab.Queries, userWordID string) (vocab.Question, error) {
	uw, err := q.GetUserWord(ctx, userWordID)
	if err != nil {
		return vocab.Question{}, err
	}
	word, err := q.GetWord(ctx, uw.WordID)
	if err != nil {
		return vocab.Question{}, err
	}
	profile, err := q.GetProfile(ctx, uw.ProfileID)
	if err != nil {
		return vocab.Question{}, err
	}
	user, err := q.GetUser(ctx, profile.UserID)
	if err != nil {
		return vocab.Question{}, err
	}
	stats, err := q.ListWordStats(ctx, uw.ID)
	if err != nil {
		return vocab.Question{}, err
	}

	direction := vocab.ForeignToNative
	if rand.Intn(2) == 0 {
		direction = vocab.NativeToForeign
	}
	testType := progression.NextTestType(progression.InputReady(stats, e.cfg.Progression))

	prompt, expected := questionText(word, user.NativeLang, direction)

	question := vocab.Question{
		UserWordID: uw.ID,
		WordID:     word.ID,
		Direction:  direction,
		TestType:   testType,
		Prompt:     prompt,
		Expected:   expected,
	}

	if testType == vocab.TestChoice {
		options, err := e.assembleOptions(ctx, q, word, profile.TargetLang, user.NativeLang, direction, expected)
		if err != nil {
			return vocab.Question{}, err
		}
		question.Options = options
	}

	return question, nil
}

func questionText(word vocab.Word, nativeLang string, direction vocab.Direction) (prompt, expected string) {
	translations := word.Translations[nativeLang]
	var nativeText string
	if len(translations) > 0 {
		nativeText = translations[0]
	}
	if direction == vocab.NativeToForeign {
		return nativeText, word.Text
	}
	return word.Text, nativeText
}

func (e *Engine) assembleOptions(ctx context.Context, q vocab.Queries, word vocab.Word, targetLang, nativeLang string, direction vocab.Direction, expected string) ([]string, error) {
	pool, err := q.ListDistractorPool(ctx, targetLang, word.CEFR, word.ID, DefaultDistractorPool)
	if err != nil {
		return nil, fmt.Errorf("lesson: distractor pool: %w", err)
	}

	options := []string{expected}
	for _, d := range pool {
		if len(options) >= e.cfg.Distractors+1 {
			break
		}
		_, text := questionText(d, nativeLang, direction)
		if text == "" || text == expected {
			continue
		}
		options = append(options, text)
	}

	rand.Shuffle(len(options), func(i, j int) { options[i], options[j] = options[j], options[i] })
	return options, nil
}

// Answer grades userAnswer against the question identified by
// (profileID, userWordID), composing Validator + Scheduler + Progression
// inside a single transaction. The model escalation call (if the Validator
// needs one) happens before the transaction is opened.
func (e *Engine) Answer(ctx context.Context, profileID, userWordID, question, expected string, alternatives []string, direction vocab.Direction, testType vocab.TestType, wordID, userAnswer, srcLang, tgtLang string) (AnswerOutcome, error) {
	result, err := e.validator.Validate(ctx, validator.Request{
		UserAnswer:   userAnswer,
		Expected:     expected,
		Alternatives: alternatives,
		WordID:       wordID,
		Direction:    direction,
		Question:     question,
		SrcLang:      srcLang,
		TgtLang:      tgtLang,
	})
	if err != nil {
		return AnswerOutcome{}, err
	}

	now := e.clock.Now()
	var outcome AnswerOutcome
	outcome.Result = result

	err = e.store.WithTx(ctx, func(ctx context.Context, tx vocab.Tx) error {
		l, err := tx.GetActiveLesson(ctx, profileID)
		if err != nil {
			return err
		}
		uw, err := tx.GetUserWord(ctx, userWordID)
		if err != nil {
			return err
		}

		stat, err := tx.GetWordStat(ctx, uw.ID, direction, testType)
		if err != nil && !errors.Is(err, vocab.ErrNotFound) {
			return err
		}
		if errors.Is(err, vocab.ErrNotFound) {
			stat = vocab.WordStat{UserWordID: uw.ID, Direction: direction, TestType: testType}
		}
		// Progression needs every facet of this UserWord to compute
		// cross-facet maxima (mastery, choice→input promotion).
		allStats, err := tx.ListWordStats(ctx, uw.ID)
		if err != nil {
			return err
		}

		prog := progression.Apply(progression.Input{
			UserWord:    uw,
			CurrentStat: stat,
			OtherStats:  allStats,
			Correct:     result.Correct,
			Now:         now,
		}, e.cfg.Progression)

		q := scheduler.RecallQuality(result.Correct, result.Method)
		sched := scheduler.Advance(scheduler.State{IntervalDays: uw.IntervalDays, EF: uw.EF}, q, now)

		updatedUW := prog.UserWord
		updatedUW.IntervalDays = sched.IntervalDays
		updatedUW.EF = sched.EF
		updatedUW.LastReviewedAt = &now
		updatedUW.NextReviewAt = &sched.NextReviewAt

		if err := tx.UpdateUserWord(ctx, updatedUW); err != nil {
			return err
		}
		if err := tx.UpsertWordStat(ctx, prog.Stat); err != nil {
			return err
		}
		if err := tx.AppendLessonAttempt(ctx, vocab.LessonAttempt{
			LessonID:    l.ID,
			UserWordID:  uw.ID,
			Direction:   direction,
			TestType:    prog.Stat.TestType,
			UserAnswer:  userAnswer,
			Expected:    expected,
			Correct:     result.Correct,
			Method:      result.Method,
			AttemptedAt: now,
		}); err != nil {
			return err
		}

		// Write-through the ValidationCache after every model-tier call
		// (spec §4.C3 vi / §4.C4), keyed on the same normalization the
		// exact-match step and Gateway.Validate's cache lookup both use, so
		// a repeated (word, direction, expected, answer) never reaches the
		// model twice (I4).
		if result.Method == vocab.MethodModel {
			if err := tx.PutValidationCache(ctx, vocab.ValidationCacheEntry{
				WordID:       wordID,
				Direction:    direction,
				ExpectedNorm: validator.Normalize(expected),
				AnswerNorm:   validator.Normalize(userAnswer),
				Correct:      result.Correct,
				Comment:      result.Feedback,
				CachedAt:     now,
			}); err != nil {
				return err
			}
		}

		if result.Correct {
			l.Correct++
		} else {
			l.Incorrect++
		}
		l.WordQueue = dropFirst(l.WordQueue, userWordID)
		if len(l.WordQueue) == 0 {
			completedAt := now
			l.CompletedAt = &completedAt
			outcome.Done = true
			outcome.Summary = &vocab.LessonSummary{
				PlannedCount: l.PlannedCount,
				Correct:      l.Correct,
				Incorrect:    l.Incorrect,
				Accuracy:     accuracy(l.Correct, l.Incorrect),
				Duration:     now.Sub(l.StartedAt),
			}
			observe.DefaultMetrics().LessonsCompleted.Add(ctx, 1)
			observe.DefaultMetrics().ActiveLessons.Add(ctx, -1)
		} else {
			outcome.NextWord = l.WordQueue[0]
		}
		return tx.UpdateLesson(ctx, l)
	})
	if err != nil {
		return AnswerOutcome{}, err
	}
	return outcome, nil
}

// Abandon manually completes the profile's Active lesson without requiring
// every queued word to be attempted.
func (e *Engine) Abandon(ctx context.Context, profileID string) (vocab.LessonSummary, error) {
	now := e.clock.Now()
	var summary vocab.LessonSummary

	err := e.store.WithTx(ctx, func(ctx context.Context, tx vocab.Tx) error {
		l, err := tx.GetActiveLesson(ctx, profileID)
		if err != nil {
			return err
		}
		l.CompletedAt = &now
		summary = vocab.LessonSummary{
			PlannedCount: l.PlannedCount,
			Correct:      l.Correct,
			Incorrect:    l.Incorrect,
			Accuracy:     accuracy(l.Correct, l.Incorrect),
			Duration:     now.Sub(l.StartedAt),
		}
		observe.DefaultMetrics().ActiveLessons.Add(ctx, -1)
		return tx.UpdateLesson(ctx, l)
	})
	return summary, err
}

func accuracy(correct, incorrect int) float64 {
	total := correct + incorrect
	if total == 0 {
		return 0
	}
	return 100 * float64(correct) / float64(total)
}

func dropFirst(queue []string, want string) []string {
	if len(queue) == 0 || queue[0] != want {
		return queue
	}
	return queue[1:]
}
