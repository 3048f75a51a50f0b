package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vocatutor/vocatutor/internal/vocab"
)

// queries implements every read/write method once against an [execer],
// shared by [Store] (the pool, outside any transaction) and [txHandle]
// (a live pgx.Tx), the same sharing discipline the teacher's L1/L2 layers
// use a single *pgxpool.Pool for.
type queries struct {
	db execer
}

func generateID() string { return uuid.NewString() }

func wrapNotFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return vocab.ErrNotFound
	}
	return err
}

// ── Users ───────────────────────────────────────────────────────────────

func (q queries) GetUser(ctx context.Context, id string) (vocab.User, error) {
	const sql = `SELECT id, native_lang, interface_lang, tz, notifications_on, last_active_at
	             FROM users WHERE id = $1`
	row := q.db.QueryRow(ctx, sql, id)
	var u vocab.User
	if err := row.Scan(&u.ID, &u.NativeLang, &u.InterfaceLang, &u.TZ, &u.NotificationsOn, &u.LastActiveAt); err != nil {
		return vocab.User{}, fmt.Errorf("vocab postgres: get user: %w", wrapNotFound(err))
	}
	return u, nil
}

func (q queries) CreateUser(ctx context.Context, u vocab.User) (vocab.User, error) {
	if u.ID == "" {
		u.ID = generateID()
	}
	const sql = `INSERT INTO users (id, native_lang, interface_lang, tz, notifications_on, last_active_at)
	             VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := q.db.Exec(ctx, sql, u.ID, u.NativeLang, u.InterfaceLang, u.TZ, u.NotificationsOn, u.LastActiveAt)
	if err != nil {
		return vocab.User{}, fmt.Errorf("vocab postgres: create user: %w", err)
	}
	return u, nil
}

func (q queries) UpdateUser(ctx context.Context, u vocab.User) error {
	const sql = `UPDATE users SET native_lang=$2, interface_lang=$3, tz=$4, notifications_on=$5, last_active_at=$6
	             WHERE id=$1`
	tag, err := q.db.Exec(ctx, sql, u.ID, u.NativeLang, u.InterfaceLang, u.TZ, u.NotificationsOn, u.LastActiveAt)
	if err != nil {
		return fmt.Errorf("vocab postgres: update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return vocab.ErrNotFound
	}
	return nil
}

func (q queries) SetNotificationsEnabled(ctx context.Context, userID string, on bool) error {
	tag, err := q.db.Exec(ctx, `UPDATE users SET notifications_on=$2 WHERE id=$1`, userID, on)
	if err != nil {
		return fmt.Errorf("vocab postgres: set notifications enabled: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return vocab.ErrNotFound
	}
	return nil
}

func (q queries) TouchLastActive(ctx context.Context, userID string, at time.Time) error {
	tag, err := q.db.Exec(ctx, `UPDATE users SET last_active_at=$2 WHERE id=$1`, userID, at)
	if err != nil {
		return fmt.Errorf("vocab postgres: touch last active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return vocab.ErrNotFound
	}
	return nil
}

func (q queries) ListInactiveUsers(ctx context.Context, cutoff time.Time) ([]vocab.User, error) {
	const sql = `SELECT id, native_lang, interface_lang, tz, notifications_on, last_active_at
	             FROM users WHERE notifications_on = true AND last_active_at < $1`
	rows, err := q.db.Query(ctx, sql, cutoff)
	if err != nil {
		return nil, fmt.Errorf("vocab postgres: list inactive users: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (vocab.User, error) {
		var u vocab.User
		err := row.Scan(&u.ID, &u.NativeLang, &u.InterfaceLang, &u.TZ, &u.NotificationsOn, &u.LastActiveAt)
		return u, err
	})
}

// ── Profiles ────────────────────────────────────────────────────────────

func (q queries) GetProfile(ctx context.Context, id string) (vocab.Profile, error) {
	const sql = `SELECT id, user_id, target_lang, cefr, active FROM profiles WHERE id = $1`
	row := q.db.QueryRow(ctx, sql, id)
	var p vocab.Profile
	if err := row.Scan(&p.ID, &p.UserID, &p.TargetLang, &p.CEFR, &p.Active); err != nil {
		return vocab.Profile{}, fmt.Errorf("vocab postgres: get profile: %w", wrapNotFound(err))
	}
	return p, nil
}

func (q queries) GetActiveProfile(ctx context.Context, userID string) (vocab.Profile, error) {
	const sql = `SELECT id, user_id, target_lang, cefr, active FROM profiles WHERE user_id = $1 AND active = true`
	row := q.db.QueryRow(ctx, sql, userID)
	var p vocab.Profile
	if err := row.Scan(&p.ID, &p.UserID, &p.TargetLang, &p.CEFR, &p.Active); err != nil {
		return vocab.Profile{}, fmt.Errorf("vocab postgres: get active profile: %w", wrapNotFound(err))
	}
	return p, nil
}

func (q queries) CreateProfile(ctx context.Context, p vocab.Profile) (vocab.Profile, error) {
	if p.ID == "" {
		p.ID = generateID()
	}
	const sql = `INSERT INTO profiles (id, user_id, target_lang, cefr, active) VALUES ($1, $2, $3, $4, $5)`
	_, err := q.db.Exec(ctx, sql, p.ID, p.UserID, p.TargetLang, p.CEFR, p.Active)
	if err != nil {
		if isUniqueViolation(err) {
			return vocab.Profile{}, vocab.ErrConflict
		}
		return vocab.Profile{}, fmt.Errorf("vocab postgres: create profile: %w", err)
	}
	return p, nil
}

func (q queries) DeactivateProfiles(ctx context.Context, userID string) error {
	_, err := q.db.Exec(ctx, `UPDATE profiles SET active=false WHERE user_id=$1 AND active=true`, userID)
	if err != nil {
		return fmt.Errorf("vocab postgres: deactivate profiles: %w", err)
	}
	return nil
}

// ── Words ───────────────────────────────────────────────────────────────

func (q queries) GetWord(ctx context.Context, id string) (vocab.Word, error) {
	const sql = `SELECT id, text, language, cefr, translations, examples, forms, freq_rank
	             FROM words WHERE id = $1`
	return q.scanWord(q.db.QueryRow(ctx, sql, id))
}

func (q queries) FindWord(ctx context.Context, text, language string) (vocab.Word, error) {
	const sql = `SELECT id, text, language, cefr, translations, examples, forms, freq_rank
	             FROM words WHERE text = $1 AND language = $2`
	return q.scanWord(q.db.QueryRow(ctx, sql, text, language))
}

func (q queries) scanWord(row pgx.Row) (vocab.Word, error) {
	var (
		w                        vocab.Word
		translationsRaw, formsRaw []byte
		examplesRaw              []byte
	)
	if err := row.Scan(&w.ID, &w.Text, &w.Language, &w.CEFR, &translationsRaw, &examplesRaw, &formsRaw, &w.FreqRank); err != nil {
		return vocab.Word{}, fmt.Errorf("vocab postgres: get word: %w", wrapNotFound(err))
	}
	if len(translationsRaw) > 0 {
		if err := json.Unmarshal(translationsRaw, &w.Translations); err != nil {
			return vocab.Word{}, fmt.Errorf("vocab postgres: unmarshal translations: %w", err)
		}
	}
	if len(examplesRaw) > 0 {
		if err := json.Unmarshal(examplesRaw, &w.Examples); err != nil {
			return vocab.Word{}, fmt.Errorf("vocab postgres: unmarshal examples: %w", err)
		}
	}
	if len(formsRaw) > 0 {
		if err := json.Unmarshal(formsRaw, &w.Forms); err != nil {
			return vocab.Word{}, fmt.Errorf("vocab postgres: unmarshal forms: %w", err)
		}
	}
	return w, nil
}

func (q queries) UpsertWord(ctx context.Context, w vocab.Word) (vocab.Word, error) {
	if w.ID == "" {
		w.ID = generateID()
	}
	translations, err := marshalJSON(w.Translations)
	if err != nil {
		return vocab.Word{}, fmt.Errorf("vocab postgres: marshal translations: %w", err)
	}
	examples, err := marshalJSON(w.Examples)
	if err != nil {
		return vocab.Word{}, fmt.Errorf("vocab postgres: marshal examples: %w", err)
	}
	forms, err := marshalJSON(w.Forms)
	if err != nil {
		return vocab.Word{}, fmt.Errorf("vocab postgres: marshal forms: %w", err)
	}

	const sql = `
		INSERT INTO words (id, text, language, cefr, translations, examples, forms, freq_rank)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (text, language) DO UPDATE SET
		    cefr = EXCLUDED.cefr,
		    translations = EXCLUDED.translations,
		    examples = EXCLUDED.examples,
		    forms = EXCLUDED.forms,
		    freq_rank = EXCLUDED.freq_rank
		RETURNING id`
	row := q.db.QueryRow(ctx, sql, w.ID, w.Text, w.Language, w.CEFR, translations, examples, forms, w.FreqRank)
	if err := row.Scan(&w.ID); err != nil {
		return vocab.Word{}, fmt.Errorf("vocab postgres: upsert word: %w", err)
	}
	return w, nil
}

func (q queries) ListDistractorPool(ctx context.Context, language string, cefr vocab.CEFR, excludeWordID string, limit int) ([]vocab.Word, error) {
	const sql = `
		SELECT id, text, language, cefr, translations, examples, forms, freq_rank
		FROM words
		WHERE language = $1 AND id != $2 AND ($3 = '' OR cefr = $3)
		ORDER BY freq_rank, id
		LIMIT $4`
	rows, err := q.db.Query(ctx, sql, language, excludeWordID, string(cefr), limit)
	if err != nil {
		return nil, fmt.Errorf("vocab postgres: list distractor pool: %w", err)
	}
	defer rows.Close()

	var out []vocab.Word
	for rows.Next() {
		w, err := q.scanWord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// ── UserWords ───────────────────────────────────────────────────────────

func (q queries) GetUserWord(ctx context.Context, id string) (vocab.UserWord, error) {
	const sql = `SELECT id, profile_id, word_id, status, added_at, last_reviewed_at, next_review_at, interval_days, ef
	             FROM user_words WHERE id = $1`
	return scanUserWord(q.db.QueryRow(ctx, sql, id))
}

func (q queries) GetUserWordByWord(ctx context.Context, profileID, wordID string) (vocab.UserWord, error) {
	const sql = `SELECT id, profile_id, word_id, status, added_at, last_reviewed_at, next_review_at, interval_days, ef
	             FROM user_words WHERE profile_id = $1 AND word_id = $2`
	return scanUserWord(q.db.QueryRow(ctx, sql, profileID, wordID))
}

func scanUserWord(row pgx.Row) (vocab.UserWord, error) {
	var uw vocab.UserWord
	err := row.Scan(&uw.ID, &uw.ProfileID, &uw.WordID, &uw.Status, &uw.AddedAt, &uw.LastReviewedAt, &uw.NextReviewAt, &uw.IntervalDays, &uw.EF)
	if err != nil {
		return vocab.UserWord{}, fmt.Errorf("vocab postgres: get user_word: %w", wrapNotFound(err))
	}
	return uw, nil
}

func (q queries) CreateUserWord(ctx context.Context, uw vocab.UserWord) (vocab.UserWord, error) {
	if uw.ID == "" {
		uw.ID = generateID()
	}
	if uw.EF == 0 {
		uw.EF = 2.5
	}
	if uw.Status == "" {
		uw.Status = vocab.StatusNew
	}
	const sql = `
		INSERT INTO user_words (id, profile_id, word_id, status, added_at, last_reviewed_at, next_review_at, interval_days, ef)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := q.db.Exec(ctx, sql, uw.ID, uw.ProfileID, uw.WordID, uw.Status, uw.AddedAt, uw.LastReviewedAt, uw.NextReviewAt, uw.IntervalDays, uw.EF)
	if err != nil {
		if isUniqueViolation(err) {
			return vocab.UserWord{}, vocab.ErrConflict
		}
		return vocab.UserWord{}, fmt.Errorf("vocab postgres: create user_word: %w", err)
	}
	return uw, nil
}

func (q queries) UpdateUserWord(ctx context.Context, uw vocab.UserWord) error {
	const sql = `
		UPDATE user_words SET status=$2, last_reviewed_at=$3, next_review_at=$4, interval_days=$5, ef=$6
		WHERE id=$1`
	tag, err := q.db.Exec(ctx, sql, uw.ID, uw.Status, uw.LastReviewedAt, uw.NextReviewAt, uw.IntervalDays, uw.EF)
	if err != nil {
		return fmt.Errorf("vocab postgres: update user_word: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return vocab.ErrNotFound
	}
	return nil
}

func (q queries) ListSelectionCandidates(ctx context.Context, profileID string) ([]vocab.SelectionCandidate, error) {
	const sql = `
		SELECT uw.id, uw.profile_id, uw.word_id, uw.status, uw.added_at, uw.last_reviewed_at,
		       uw.next_review_at, uw.interval_days, uw.ef,
		       COALESCE(SUM(ws.total_attempts), 0), COALESCE(SUM(ws.total_errors), 0),
		       COALESCE(MAX(ws.streak_correct) FILTER (WHERE ws.test_type = 'choice'), 0)
		FROM user_words uw
		LEFT JOIN word_stats ws ON ws.user_word_id = uw.id
		WHERE uw.profile_id = $1 AND uw.status != 'mastered'
		GROUP BY uw.id`
	rows, err := q.db.Query(ctx, sql, profileID)
	if err != nil {
		return nil, fmt.Errorf("vocab postgres: list selection candidates: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (vocab.SelectionCandidate, error) {
		var c vocab.SelectionCandidate
		err := row.Scan(&c.UserWord.ID, &c.UserWord.ProfileID, &c.UserWord.WordID, &c.UserWord.Status,
			&c.UserWord.AddedAt, &c.UserWord.LastReviewedAt, &c.UserWord.NextReviewAt,
			&c.UserWord.IntervalDays, &c.UserWord.EF, &c.TotalAttempts, &c.TotalErrors, &c.ChoiceStreakMax)
		return c, err
	})
}

// ── WordStats ───────────────────────────────────────────────────────────

func (q queries) GetWordStat(ctx context.Context, userWordID string, dir vocab.Direction, tt vocab.TestType) (vocab.WordStat, error) {
	const sql = `
		SELECT user_word_id, direction, test_type, streak_correct, total_attempts, total_correct, total_errors
		FROM word_stats WHERE user_word_id=$1 AND direction=$2 AND test_type=$3`
	row := q.db.QueryRow(ctx, sql, userWordID, dir, tt)
	var s vocab.WordStat
	err := row.Scan(&s.UserWordID, &s.Direction, &s.TestType, &s.StreakCorrect, &s.TotalAttempts, &s.TotalCorrect, &s.TotalErrors)
	if err != nil {
		return vocab.WordStat{}, fmt.Errorf("vocab postgres: get word_stat: %w", wrapNotFound(err))
	}
	return s, nil
}

func (q queries) ListWordStats(ctx context.Context, userWordID string) ([]vocab.WordStat, error) {
	const sql = `
		SELECT user_word_id, direction, test_type, streak_correct, total_attempts, total_correct, total_errors
		FROM word_stats WHERE user_word_id=$1`
	rows, err := q.db.Query(ctx, sql, userWordID)
	if err != nil {
		return nil, fmt.Errorf("vocab postgres: list word_stats: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (vocab.WordStat, error) {
		var s vocab.WordStat
		err := row.Scan(&s.UserWordID, &s.Direction, &s.TestType, &s.StreakCorrect, &s.TotalAttempts, &s.TotalCorrect, &s.TotalErrors)
		return s, err
	})
}

func (q queries) UpsertWordStat(ctx context.Context, ws vocab.WordStat) error {
	const sql = `
		INSERT INTO word_stats (user_word_id, direction, test_type, streak_correct, total_attempts, total_correct, total_errors)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_word_id, direction, test_type) DO UPDATE SET
		    streak_correct = EXCLUDED.streak_correct,
		    total_attempts = EXCLUDED.total_attempts,
		    total_correct = EXCLUDED.total_correct,
		    total_errors = EXCLUDED.total_errors`
	_, err := q.db.Exec(ctx, sql, ws.UserWordID, ws.Direction, ws.TestType, ws.StreakCorrect, ws.TotalAttempts, ws.TotalCorrect, ws.TotalErrors)
	if err != nil {
		return fmt.Errorf("vocab postgres: upsert word_stat: %w", err)
	}
	return nil
}

// ── Lessons / attempts ──────────────────────────────────────────────────

func (q queries) GetActiveLesson(ctx context.Context, profileID string) (vocab.Lesson, error) {
	const sql = `
		SELECT id, profile_id, started_at, completed_at, planned_count, correct, incorrect, word_queue
		FROM lessons WHERE profile_id=$1 AND completed_at IS NULL`
	return scanLesson(q.db.QueryRow(ctx, sql, profileID))
}

func (q queries) GetLesson(ctx context.Context, id string) (vocab.Lesson, error) {
	const sql = `
		SELECT id, profile_id, started_at, completed_at, planned_count, correct, incorrect, word_queue
		FROM lessons WHERE id=$1`
	return scanLesson(q.db.QueryRow(ctx, sql, id))
}

func scanLesson(row pgx.Row) (vocab.Lesson, error) {
	var l vocab.Lesson
	err := row.Scan(&l.ID, &l.ProfileID, &l.StartedAt, &l.CompletedAt, &l.PlannedCount, &l.Correct, &l.Incorrect, &l.WordQueue)
	if err != nil {
		return vocab.Lesson{}, fmt.Errorf("vocab postgres: get lesson: %w", wrapNotFound(err))
	}
	return l, nil
}

func (q queries) CreateLesson(ctx context.Context, l vocab.Lesson) (vocab.Lesson, error) {
	if l.ID == "" {
		l.ID = generateID()
	}
	const sql = `
		INSERT INTO lessons (id, profile_id, started_at, completed_at, planned_count, correct, incorrect, word_queue)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := q.db.Exec(ctx, sql, l.ID, l.ProfileID, l.StartedAt, l.CompletedAt, l.PlannedCount, l.Correct, l.Incorrect, l.WordQueue)
	if err != nil {
		if isUniqueViolation(err) {
			return vocab.Lesson{}, vocab.ErrConflict
		}
		return vocab.Lesson{}, fmt.Errorf("vocab postgres: create lesson: %w", err)
	}
	return l, nil
}

func (q queries) UpdateLesson(ctx context.Context, l vocab.Lesson) error {
	const sql = `
		UPDATE lessons SET completed_at=$2, correct=$3, incorrect=$4, word_queue=$5
		WHERE id=$1`
	tag, err := q.db.Exec(ctx, sql, l.ID, l.CompletedAt, l.Correct, l.Incorrect, l.WordQueue)
	if err != nil {
		return fmt.Errorf("vocab postgres: update lesson: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return vocab.ErrNotFound
	}
	return nil
}

func (q queries) AppendLessonAttempt(ctx context.Context, a vocab.LessonAttempt) error {
	const sql = `
		INSERT INTO lesson_attempts (lesson_id, user_word_id, direction, test_type, user_answer, expected, correct, method, attempted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := q.db.Exec(ctx, sql, a.LessonID, a.UserWordID, a.Direction, a.TestType, a.UserAnswer, a.Expected, a.Correct, a.Method, a.AttemptedAt)
	if err != nil {
		return fmt.Errorf("vocab postgres: append lesson attempt: %w", err)
	}
	return nil
}

// ── Caches ──────────────────────────────────────────────────────────────

func (q queries) FindTranslationCache(ctx context.Context, text, srcLang, tgtLang string) (*vocab.TranslationCacheEntry, error) {
	const sql = `SELECT text, src_lang, tgt_lang, payload, cached_at, expires_at
	             FROM translation_cache WHERE text=$1 AND src_lang=$2 AND tgt_lang=$3`
	row := q.db.QueryRow(ctx, sql, text, srcLang, tgtLang)
	var e vocab.TranslationCacheEntry
	var payloadRaw []byte
	if err := row.Scan(&e.Text, &e.SrcLang, &e.TgtLang, &payloadRaw, &e.CachedAt, &e.ExpiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("vocab postgres: find translation cache: %w", err)
	}
	if err := json.Unmarshal(payloadRaw, &e.Payload); err != nil {
		return nil, fmt.Errorf("vocab postgres: unmarshal translation payload: %w", err)
	}
	return &e, nil
}

func (q queries) PutTranslationCache(ctx context.Context, e vocab.TranslationCacheEntry) error {
	payload, err := marshalJSON(e.Payload)
	if err != nil {
		return fmt.Errorf("vocab postgres: marshal translation payload: %w", err)
	}
	const sql = `
		INSERT INTO translation_cache (text, src_lang, tgt_lang, payload, cached_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (text, src_lang, tgt_lang) DO UPDATE SET
		    payload = EXCLUDED.payload, cached_at = EXCLUDED.cached_at, expires_at = EXCLUDED.expires_at`
	_, err = q.db.Exec(ctx, sql, e.Text, e.SrcLang, e.TgtLang, payload, e.CachedAt, e.ExpiresAt)
	if err != nil {
		return fmt.Errorf("vocab postgres: put translation cache: %w", err)
	}
	return nil
}

func (q queries) FindValidationCache(ctx context.Context, wordID string, dir vocab.Direction, expectedNorm, answerNorm string) (*vocab.ValidationCacheEntry, error) {
	const sql = `SELECT word_id, direction, expected_norm, answer_norm, correct, comment, cached_at
	             FROM validation_cache WHERE word_id=$1 AND direction=$2 AND expected_norm=$3 AND answer_norm=$4`
	row := q.db.QueryRow(ctx, sql, wordID, dir, expectedNorm, answerNorm)
	var e vocab.ValidationCacheEntry
	if err := row.Scan(&e.WordID, &e.Direction, &e.ExpectedNorm, &e.AnswerNorm, &e.Correct, &e.Comment, &e.CachedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("vocab postgres: find validation cache: %w", err)
	}
	return &e, nil
}

func (q queries) PutValidationCache(ctx context.Context, e vocab.ValidationCacheEntry) error {
	const sql = `
		INSERT INTO validation_cache (word_id, direction, expected_norm, answer_norm, correct, comment, cached_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (word_id, direction, expected_norm, answer_norm) DO UPDATE SET
		    correct = EXCLUDED.correct, comment = EXCLUDED.comment, cached_at = EXCLUDED.cached_at`
	_, err := q.db.Exec(ctx, sql, e.WordID, e.Direction, e.ExpectedNorm, e.AnswerNorm, e.Correct, e.Comment, e.CachedAt)
	if err != nil {
		return fmt.Errorf("vocab postgres: put validation cache: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
