package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vocatutor/vocatutor/internal/vocab"
)

// transientCodes are the PostgreSQL error classes spec §4.C2 calls out as
// retryable: connection failures and lock timeouts.
var transientCodes = map[string]bool{
	"08000": true, // connection_exception
	"08006": true, // connection_failure
	"40001": true, // serialization_failure
	"55P03": true, // lock_not_available
}

func isTransient(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return transientCodes[pgErr.Code]
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// execer is the minimal surface both *pgxpool.Pool and pgx.Tx satisfy, so
// every query method below is written once and shared between the
// outside-a-transaction Queries path and the inside-a-transaction Tx path —
// the same sharing discipline the teacher's SessionStoreImpl/SemanticIndexImpl
// use pool directly for, generalized here to also work over a live pgx.Tx.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is the transactional, PostgreSQL-backed [vocab.Store].
type Store struct {
	pool *pgxpool.Pool
	q    queries // Queries implemented directly against the pool
}

var _ vocab.Store = (*Store)(nil)

// NewStore opens a pool against dsn, runs [Migrate], and returns a ready
// Store, following the teacher's postgres.NewStore shape (ParseConfig,
// NewWithConfig, Ping, Migrate).
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("vocab postgres: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("vocab postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("vocab postgres: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool, q: queries{pool}}, nil
}

// Close releases the pool.
func (s *Store) Close() { s.pool.Close() }

// ── Queries (outside any transaction, directly against the pool) ──────────

func (s *Store) GetUser(ctx context.Context, id string) (vocab.User, error) { return s.q.GetUser(ctx, id) }
func (s *Store) GetProfile(ctx context.Context, id string) (vocab.Profile, error) {
	return s.q.GetProfile(ctx, id)
}
func (s *Store) GetActiveProfile(ctx context.Context, userID string) (vocab.Profile, error) {
	return s.q.GetActiveProfile(ctx, userID)
}
func (s *Store) GetWord(ctx context.Context, id string) (vocab.Word, error) { return s.q.GetWord(ctx, id) }
func (s *Store) FindWord(ctx context.Context, text, language string) (vocab.Word, error) {
	return s.q.FindWord(ctx, text, language)
}
func (s *Store) GetUserWord(ctx context.Context, id string) (vocab.UserWord, error) {
	return s.q.GetUserWord(ctx, id)
}
func (s *Store) GetUserWordByWord(ctx context.Context, profileID, wordID string) (vocab.UserWord, error) {
	return s.q.GetUserWordByWord(ctx, profileID, wordID)
}
func (s *Store) ListSelectionCandidates(ctx context.Context, profileID string) ([]vocab.SelectionCandidate, error) {
	return s.q.ListSelectionCandidates(ctx, profileID)
}
func (s *Store) GetWordStat(ctx context.Context, userWordID string, dir vocab.Direction, tt vocab.TestType) (vocab.WordStat, error) {
	return s.q.GetWordStat(ctx, userWordID, dir, tt)
}
func (s *Store) ListWordStats(ctx context.Context, userWordID string) ([]vocab.WordStat, error) {
	return s.q.ListWordStats(ctx, userWordID)
}
func (s *Store) GetActiveLesson(ctx context.Context, profileID string) (vocab.Lesson, error) {
	return s.q.GetActiveLesson(ctx, profileID)
}
func (s *Store) GetLesson(ctx context.Context, id string) (vocab.Lesson, error) {
	return s.q.GetLesson(ctx, id)
}
func (s *Store) ListDistractorPool(ctx context.Context, language string, cefr vocab.CEFR, excludeWordID string, limit int) ([]vocab.Word, error) {
	return s.q.ListDistractorPool(ctx, language, cefr, excludeWordID, limit)
}
func (s *Store) FindTranslationCache(ctx context.Context, text, srcLang, tgtLang string) (*vocab.TranslationCacheEntry, error) {
	return s.q.FindTranslationCache(ctx, text, srcLang, tgtLang)
}
func (s *Store) FindValidationCache(ctx context.Context, wordID string, dir vocab.Direction, expectedNorm, answerNorm string) (*vocab.ValidationCacheEntry, error) {
	return s.q.FindValidationCache(ctx, wordID, dir, expectedNorm, answerNorm)
}
func (s *Store) ListInactiveUsers(ctx context.Context, cutoff time.Time) ([]vocab.User, error) {
	return s.q.ListInactiveUsers(ctx, cutoff)
}

// WithTx runs fn inside one pgx.Tx, committing on a nil return and rolling
// back otherwise. Transient failures (connection lost, lock timeout) are
// retried up to 3 times with exponential backoff 1s→2s→4s (capped at 5s),
// per spec §4.C2; the retry wraps the whole attempt, including BEGIN, since
// fn itself must be idempotent with respect to anything outside the Store
// (the Gateway model call happens before WithTx is ever entered).
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx vocab.Tx) error) error {
	backoff := time.Second
	var lastErr error

	for attempt := 0; attempt <= 3; attempt++ {
		err := s.attempt(ctx, fn)
		if err == nil {
			return nil
		}
		lastErr = err
		if !isTransient(err) {
			return err
		}
		if attempt == 3 {
			break
		}
		slog.Warn("vocab postgres: transient tx failure, retrying", "attempt", attempt+1, "error", err)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
		if backoff > 5*time.Second {
			backoff = 5 * time.Second
		}
	}
	return fmt.Errorf("%w: %v", vocab.ErrTransientStore, lastErr)
}

func (s *Store) attempt(ctx context.Context, fn func(ctx context.Context, tx vocab.Tx) error) error {
	pgTx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("vocab postgres: begin: %w", err)
	}

	tx := &txHandle{q: queries{pgTx}}
	if err := fn(ctx, tx); err != nil {
		if rbErr := pgTx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			slog.Error("vocab postgres: rollback failed", "error", rbErr)
		}
		return err
	}
	if err := pgTx.Commit(ctx); err != nil {
		return fmt.Errorf("vocab postgres: commit: %w", err)
	}
	return nil
}

// txHandle implements [vocab.Tx] over a live pgx.Tx.
type txHandle struct {
	q queries
}

var _ vocab.Tx = (*txHandle)(nil)

func (t *txHandle) GetUser(ctx context.Context, id string) (vocab.User, error) { return t.q.GetUser(ctx, id) }
func (t *txHandle) GetProfile(ctx context.Context, id string) (vocab.Profile, error) {
	return t.q.GetProfile(ctx, id)
}
func (t *txHandle) GetActiveProfile(ctx context.Context, userID string) (vocab.Profile, error) {
	return t.q.GetActiveProfile(ctx, userID)
}
func (t *txHandle) GetWord(ctx context.Context, id string) (vocab.Word, error) { return t.q.GetWord(ctx, id) }
func (t *txHandle) FindWord(ctx context.Context, text, language string) (vocab.Word, error) {
	return t.q.FindWord(ctx, text, language)
}
func (t *txHandle) GetUserWord(ctx context.Context, id string) (vocab.UserWord, error) {
	return t.q.GetUserWord(ctx, id)
}
func (t *txHandle) GetUserWordByWord(ctx context.Context, profileID, wordID string) (vocab.UserWord, error) {
	return t.q.GetUserWordByWord(ctx, profileID, wordID)
}
func (t *txHandle) ListSelectionCandidates(ctx context.Context, profileID string) ([]vocab.SelectionCandidate, error) {
	return t.q.ListSelectionCandidates(ctx, profileID)
}
func (t *txHandle) GetWordStat(ctx context.Context, userWordID string, dir vocab.Direction, tt vocab.TestType) (vocab.WordStat, error) {
	return t.q.GetWordStat(ctx, userWordID, dir, tt)
}
func (t *txHandle) ListWordStats(ctx context.Context, userWordID string) ([]vocab.WordStat, error) {
	return t.q.ListWordStats(ctx, userWordID)
}
func (t *txHandle) GetActiveLesson(ctx context.Context, profileID string) (vocab.Lesson, error) {
	return t.q.GetActiveLesson(ctx, profileID)
}
func (t *txHandle) GetLesson(ctx context.Context, id string) (vocab.Lesson, error) {
	return t.q.GetLesson(ctx, id)
}
func (t *txHandle) ListDistractorPool(ctx context.Context, language string, cefr vocab.CEFR, excludeWordID string, limit int) ([]vocab.Word, error) {
	return t.q.ListDistractorPool(ctx, language, cefr, excludeWordID, limit)
}
func (t *txHandle) FindTranslationCache(ctx context.Context, text, srcLang, tgtLang string) (*vocab.TranslationCacheEntry, error) {
	return t.q.FindTranslationCache(ctx, text, srcLang, tgtLang)
}
func (t *txHandle) FindValidationCache(ctx context.Context, wordID string, dir vocab.Direction, expectedNorm, answerNorm string) (*vocab.ValidationCacheEntry, error) {
	return t.q.FindValidationCache(ctx, wordID, dir, expectedNorm, answerNorm)
}
func (t *txHandle) ListInactiveUsers(ctx context.Context, cutoff time.Time) ([]vocab.User, error) {
	return t.q.ListInactiveUsers(ctx, cutoff)
}

func (t *txHandle) CreateUser(ctx context.Context, u vocab.User) (vocab.User, error) {
	return t.q.CreateUser(ctx, u)
}
func (t *txHandle) UpdateUser(ctx context.Context, u vocab.User) error { return t.q.UpdateUser(ctx, u) }
func (t *txHandle) SetNotificationsEnabled(ctx context.Context, userID string, on bool) error {
	return t.q.SetNotificationsEnabled(ctx, userID, on)
}
func (t *txHandle) TouchLastActive(ctx context.Context, userID string, at time.Time) error {
	return t.q.TouchLastActive(ctx, userID, at)
}
func (t *txHandle) CreateProfile(ctx context.Context, p vocab.Profile) (vocab.Profile, error) {
	return t.q.CreateProfile(ctx, p)
}
func (t *txHandle) DeactivateProfiles(ctx context.Context, userID string) error {
	return t.q.DeactivateProfiles(ctx, userID)
}
func (t *txHandle) UpsertWord(ctx context.Context, w vocab.Word) (vocab.Word, error) {
	return t.q.UpsertWord(ctx, w)
}
func (t *txHandle) CreateUserWord(ctx context.Context, uw vocab.UserWord) (vocab.UserWord, error) {
	return t.q.CreateUserWord(ctx, uw)
}
func (t *txHandle) UpdateUserWord(ctx context.Context, uw vocab.UserWord) error {
	return t.q.UpdateUserWord(ctx, uw)
}
func (t *txHandle) UpsertWordStat(ctx context.Context, ws vocab.WordStat) error {
	return t.q.UpsertWordStat(ctx, ws)
}
func (t *txHandle) CreateLesson(ctx context.Context, l vocab.Lesson) (vocab.Lesson, error) {
	return t.q.CreateLesson(ctx, l)
}
func (t *txHandle) UpdateLesson(ctx context.Context, l vocab.Lesson) error {
	return t.q.UpdateLesson(ctx, l)
}
func (t *txHandle) AppendLessonAttempt(ctx context.Context, a vocab.LessonAttempt) error {
	return t.q.AppendLessonAttempt(ctx, a)
}
func (t *txHandle) PutTranslationCache(ctx context.Context, e vocab.TranslationCacheEntry) error {
	return t.q.PutTranslationCache(ctx, e)
}
func (t *txHandle) PutValidationCache(ctx context.Context, e vocab.ValidationCacheEntry) error {
	return t.q.PutValidationCache(ctx, e)
}

// marshalJSON/unmarshalJSON are small helpers so every JSONB column goes
// through encoding/json consistently, the way the teacher's L3 knowledge
// graph marshals Entity.Attributes.
func marshalJSON(v any) ([]byte, error) { return json.Marshal(v) }
