// Package llmgateway shields the engine from the external, rate-limited,
// sometimes-failing translation/validation model behind it. Every call goes
// through, in order: cache lookup, rate limiter admission, a concurrency
// cap, a circuit breaker, and finally the backend call with retry.
package llmgateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/vocatutor/vocatutor/internal/llmgateway/provider"
	"github.com/vocatutor/vocatutor/internal/observe"
	"github.com/vocatutor/vocatutor/internal/resilience"
	"github.com/vocatutor/vocatutor/internal/validator"
	"github.com/vocatutor/vocatutor/internal/vocab"
)

// ErrTranslationUnavailable is returned by Translate when the circuit
// breaker is open.
var ErrTranslationUnavailable = errors.New("llmgateway: translation unavailable")

// ErrModelShape is returned when the backend's reply does not parse into
// the constrained JSON shape the gateway requires — the call is treated as
// a failure and nothing is cached.
var ErrModelShape = errors.New("llmgateway: model response did not match expected shape")

// Config tunes the gateway's resource policies.
type Config struct {
	// RatePerMinute is the token-bucket rate, requests per 60s. Default 2500.
	RatePerMinute int
	// MaxConcurrent is the in-flight call cap K. Default 10.
	MaxConcurrent int
	// CallTimeout bounds a single backend call. Default 30s.
	CallTimeout time.Duration
	// Retries is the attempt count on transient failures. Default 3.
	Retries int
}

func (c Config) withDefaults() Config {
	if c.RatePerMinute <= 0 {
		c.RatePerMinute = 2500
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 10
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 30 * time.Second
	}
	if c.Retries <= 0 {
		c.Retries = 3
	}
	return c
}

// Gateway composes the resource policies around a single LLM provider.
type Gateway struct {
	backend provider.Provider
	store   vocab.Queries
	cfg     Config

	bucket  *tokenBucket
	sem     *semaphore.Weighted
	breaker *resilience.CircuitBreaker
}

// New creates a Gateway calling backend, using store for cache-first reads
// (the caller is responsible for writing cache entries back via the same
// Store inside the enclosing transaction, through vocab.Tx's
// PutTranslationCache / PutValidationCache). The breaker's
// state is mirrored into observe.Metrics.CircuitState so a gauge scrape
// reflects the same state Healthy/Translate/Validate observe internally.
func New(backend provider.Provider, store vocab.Queries, cfg Config) *Gateway {
	cfg = cfg.withDefaults()
	metrics := observe.DefaultMetrics()
	var lastState int64
	breaker := resilience.New(resilience.Config{
		Name:         "llmgateway",
		MaxFailures:  5,
		ResetTimeout: 60 * time.Second,
		OnStateChange: func(s resilience.State) {
			gauge := map[resilience.State]int64{
				resilience.StateClosed:   0,
				resilience.StateHalfOpen: 1,
				resilience.StateOpen:     2,
			}[s]
			metrics.CircuitState.Add(context.Background(), gauge-lastState)
			lastState = gauge
		},
	})
	return &Gateway{
		backend: backend,
		store:   store,
		cfg:     cfg,
		bucket:  newTokenBucket(cfg.RatePerMinute, time.Minute),
		sem:     semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		breaker: breaker,
	}
}

// Healthy reports whether the gateway-wide circuit breaker is not open,
// for use by a readiness check — an open breaker means translate calls are
// currently failing fast with [ErrTranslationUnavailable].
func (g *Gateway) Healthy() bool {
	return g.breaker.State() != resilience.StateOpen
}

type translateShape struct {
	Translations []string          `json:"translations"`
	Examples     []exampleShape    `json:"examples"`
	Forms        map[string]string `json:"forms"`
}

type exampleShape struct {
	Src string `json:"src"`
	Tgt string `json:"tgt"`
}

type validateShape struct {
	Correct bool   `json:"correct"`
	Comment string `json:"comment"`
}

// Translate returns the cached or freshly fetched translation payload for
// (word, src, tgt).
func (g *Gateway) Translate(ctx context.Context, word, src, tgt string) (vocab.TranslationPayload, error) {
	start := time.Now()
	metrics := observe.DefaultMetrics()
	norm := validator.Normalize(word)

	if cached, err := g.store.FindTranslationCache(ctx, norm, src, tgt); err == nil && cached != nil {
		metrics.RecordGatewayRequest(ctx, "translate", "cache_hit")
		return cached.Payload, nil
	}

	if g.breaker.State() == resilience.StateOpen {
		metrics.RecordGatewayRequest(ctx, "translate", "circuit_open")
		return vocab.TranslationPayload{}, ErrTranslationUnavailable
	}

	spanCtx, span := observe.GatewaySpan(ctx, "translate")
	prompt := translatePrompt(word, src, tgt)
	raw, err := g.call(spanCtx, prompt)
	span.End()
	metrics.GatewayDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, vocab.ErrCircuitOpen) {
			metrics.RecordGatewayRequest(ctx, "translate", "circuit_open")
			return vocab.TranslationPayload{}, ErrTranslationUnavailable
		}
		metrics.RecordGatewayRequest(ctx, "translate", "error")
		metrics.RecordGatewayError(ctx, "translate")
		return vocab.TranslationPayload{}, err
	}

	var shape translateShape
	if jsonErr := json.Unmarshal([]byte(raw), &shape); jsonErr != nil {
		metrics.RecordGatewayRequest(ctx, "translate", "bad_shape")
		metrics.RecordGatewayError(ctx, "shape")
		return vocab.TranslationPayload{}, fmt.Errorf("%w: %v", ErrModelShape, jsonErr)
	}

	payload := vocab.TranslationPayload{
		Translations: shape.Translations,
		Forms:        shape.Forms,
	}
	for _, e := range shape.Examples {
		payload.Examples = append(payload.Examples, vocab.WordExample{Src: e.Src, Tgt: e.Tgt})
	}
	metrics.RecordGatewayRequest(ctx, "translate", "ok")
	return payload, nil
}

// Validate implements validator.ModelValidator: it asks the model whether
// req.UserAnswer is an acceptable answer to req.Question given
// req.Expected, falling back through the circuit breaker like any other
// call. The caller (internal/lesson) is responsible for persisting the
// resulting ValidationCacheEntry inside its own transaction.
func (g *Gateway) Validate(ctx context.Context, req validator.ModelRequest) (bool, string, error) {
	metrics := observe.DefaultMetrics()
	expectedNorm := validator.Normalize(req.Expected)
	answerNorm := validator.Normalize(req.UserAnswer)

	if cached, err := g.store.FindValidationCache(ctx, req.WordID, req.Direction, expectedNorm, answerNorm); err == nil && cached != nil {
		metrics.RecordGatewayRequest(ctx, "validate", "cache_hit")
		return cached.Correct, cached.Comment, nil
	}

	start := time.Now()
	spanCtx, span := observe.GatewaySpan(ctx, "validate")
	prompt := validatePrompt(req.Question, req.Expected, req.UserAnswer, req.SrcLang, req.TgtLang)
	raw, err := g.call(spanCtx, prompt)
	span.End()
	metrics.GatewayDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		metrics.RecordGatewayRequest(ctx, "validate", "error")
		metrics.RecordGatewayError(ctx, "validate")
		return false, "", err
	}

	var shape validateShape
	if jsonErr := json.Unmarshal([]byte(raw), &shape); jsonErr != nil {
		metrics.RecordGatewayRequest(ctx, "validate", "bad_shape")
		metrics.RecordGatewayError(ctx, "shape")
		return false, "", fmt.Errorf("%w: %v", ErrModelShape, jsonErr)
	}
	metrics.RecordGatewayRequest(ctx, "validate", "ok")
	return shape.Correct, shape.Comment, nil
}

// call runs prompt through the rate limiter, concurrency cap, circuit
// breaker and retry, returning the raw model text.
func (g *Gateway) call(ctx context.Context, prompt string) (string, error) {
	if err := g.bucket.Wait(ctx); err != nil {
		return "", err
	}

	if err := g.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer g.sem.Release(1)

	var result string
	backoff := 2 * time.Second
	var lastErr error

	for attempt := 0; attempt < g.cfg.Retries; attempt++ {
		cbErr := g.breaker.Execute(func() error {
			callCtx, cancel := context.WithTimeout(ctx, g.cfg.CallTimeout)
			defer cancel()

			resp, err := g.backend.Complete(callCtx, provider.CompletionRequest{
				Messages:    []provider.Message{{Role: "user", Content: prompt}},
				Temperature: 0,
			})
			if err != nil {
				return err
			}
			result = strings.TrimSpace(resp.Content)
			return nil
		})
		if cbErr == nil {
			return result, nil
		}
		lastErr = cbErr
		if errors.Is(cbErr, vocab.ErrCircuitOpen) {
			return "", cbErr
		}
		if attempt < g.cfg.Retries-1 {
			slog.Warn("llmgateway call failed, retrying", "attempt", attempt+1, "error", cbErr)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
			backoff *= 2
			if backoff > 10*time.Second {
				backoff = 10 * time.Second
			}
		}
	}
	return "", lastErr
}

func translatePrompt(word, src, tgt string) string {
	return fmt.Sprintf(
		`Translate the %s word or phrase %q into %s. Respond with ONLY a JSON object of the shape `+
			`{"translations":["..."],"examples":[{"src":"...","tgt":"..."}],"forms":{"tag":"form"}}. `+
			`No prose, no markdown fences.`, src, word, tgt)
}

var _ validator.ModelValidator = (*Gateway)(nil)

func validatePrompt(question, expected, userAnswer, srcLang, tgtLang string) string {
	return fmt.Sprintf(
		`A language-learning question (%s -> %s) was: %q. The expected answer is %q. `+
			`The learner answered %q. Decide if the answer should be accepted (synonyms, `+
			`minor grammatical variation, and alternate valid translations all count as correct). `+
			`Respond with ONLY a JSON object of the shape {"correct":true|false,"comment":"..."}, `+
			`comment written in %s. No prose, no markdown fences.`,
		srcLang, tgtLang, question, expected, userAnswer, tgtLang)
}
