// Package validator implements the three-level answer grading pipeline:
// exact match, typo-tolerant fuzzy match, and model-assisted validation as
// the final escalation. The fuzzy tier reuses github.com/antzucaro/matchr
// the same way internal/transcript/phonetic uses it for entity-name
// correction.
package validator

import (
	"context"
	"strings"
	"time"

	"github.com/antzucaro/matchr"

	"github.com/vocatutor/vocatutor/internal/observe"
	"github.com/vocatutor/vocatutor/internal/vocab"
)

// DefaultFuzzyThreshold is the maximum Levenshtein distance accepted as a
// typo.
const DefaultFuzzyThreshold = 2

// ModelValidator is the narrow slice of the LLM Gateway the Validator
// escalates to. Implemented by internal/llmgateway.Gateway.
type ModelValidator interface {
	Validate(ctx context.Context, req ModelRequest) (correct bool, comment string, err error)
}

// ModelRequest carries everything the model tier (and its ValidationCache
// key) needs, beyond what exact/fuzzy matching already used.
type ModelRequest struct {
	WordID     string
	Direction  vocab.Direction
	Question   string
	Expected   string
	UserAnswer string
	SrcLang    string
	TgtLang    string
}

// Request carries everything the Validator needs for one graded answer.
type Request struct {
	UserAnswer   string
	Expected     string
	Alternatives []string

	// Context used only if escalation to the model is needed.
	WordID    string
	Direction vocab.Direction
	Question  string
	SrcLang   string
	TgtLang   string
}

// Result is the graded outcome.
type Result struct {
	Correct  bool
	Method   vocab.ValidationMethod
	Feedback string
}

// Validator grades answers through the three-level pipeline.
type Validator struct {
	model          ModelValidator
	fuzzyThreshold int
}

// Option configures a [Validator].
type Option func(*Validator)

// WithFuzzyThreshold overrides T (default 2).
func WithFuzzyThreshold(t int) Option {
	return func(v *Validator) { v.fuzzyThreshold = t }
}

// New creates a Validator that escalates to model when given.
func New(model ModelValidator, opts ...Option) *Validator {
	v := &Validator{model: model, fuzzyThreshold: DefaultFuzzyThreshold}
	for _, o := range opts {
		o(v)
	}
	return v
}

// Normalize trims, collapses internal whitespace, lowercases, and strips
// trailing .,;!? . This exact function is reused by the ValidationCache key
// computation so cache keys and the exact-match comparison never drift
// apart.
func Normalize(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ToLower(s)
	fields := strings.Fields(s)
	s = strings.Join(fields, " ")
	s = strings.TrimRight(s, ".,;!?")
	return s
}

// Validate runs the three-level pipeline for req, recording the end-to-end
// latency (including any model escalation) to observe.Metrics.ValidatorDuration.
func (v *Validator) Validate(ctx context.Context, req Request) (Result, error) {
	start := time.Now()
	res, err := v.validate(ctx, req)
	observe.DefaultMetrics().ValidatorDuration.Record(ctx, time.Since(start).Seconds())
	if err == nil {
		observe.DefaultMetrics().RecordValidation(ctx, string(res.Method), res.Correct)
	}
	return res, err
}

func (v *Validator) validate(ctx context.Context, req Request) (Result, error) {
	answerNorm := Normalize(req.UserAnswer)
	expectedNorm := Normalize(req.Expected)

	if answerNorm == "" {
		return Result{Correct: false, Method: vocab.MethodExact, Feedback: "expected: " + req.Expected}, nil
	}

	// Level 1: exact.
	if answerNorm == expectedNorm {
		return Result{Correct: true, Method: vocab.MethodExact}, nil
	}
	for _, alt := range req.Alternatives {
		if answerNorm == Normalize(alt) {
			return Result{Correct: true, Method: vocab.MethodExact}, nil
		}
	}

	// Level 2: fuzzy (typo-tolerant).
	dist := matchr.Levenshtein(answerNorm, expectedNorm)
	if dist > 0 && dist <= v.fuzzyThreshold {
		return Result{Correct: true, Method: vocab.MethodFuzzy, Feedback: "accepted — small typo"}, nil
	}

	// Level 3: model-assisted.
	if v.model == nil {
		return Result{Correct: false, Method: vocab.MethodExact, Feedback: "expected: " + req.Expected}, nil
	}

	correct, comment, err := v.model.Validate(ctx, ModelRequest{
		WordID:     req.WordID,
		Direction:  req.Direction,
		Question:   req.Question,
		Expected:   req.Expected,
		UserAnswer: req.UserAnswer,
		SrcLang:    req.SrcLang,
		TgtLang:    req.TgtLang,
	})
	if err != nil {
		// Conservative fallback: circuit-open or any terminal gateway error
		// never accepts the answer.
		return Result{Correct: false, Method: vocab.MethodExact, Feedback: "expected: " + req.Expected}, nil
	}

	return Result{Correct: correct, Method: vocab.MethodModel, Feedback: comment}, nil
}
