// Package postgres is the PostgreSQL-backed implementation of
// [vocab.Store] (spec §4.C2), using github.com/jackc/pgx/v5 the same way
// the teacher's pkg/memory/postgres package does: a single pgxpool.Pool,
// an idempotent Migrate creating tables with CREATE TABLE IF NOT EXISTS,
// and pgx.CollectRows for scanning result sets.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddl = `
CREATE TABLE IF NOT EXISTS users (
    id                TEXT        PRIMARY KEY,
    native_lang       TEXT        NOT NULL,
    interface_lang    TEXT        NOT NULL,
    tz                TEXT        NOT NULL,
    notifications_on  BOOLEAN     NOT NULL DEFAULT true,
    last_active_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS profiles (
    id          TEXT    PRIMARY KEY,
    user_id     TEXT    NOT NULL REFERENCES users (id) ON DELETE CASCADE,
    target_lang TEXT    NOT NULL,
    cefr        TEXT    NOT NULL DEFAULT '',
    active      BOOLEAN NOT NULL DEFAULT true,
    UNIQUE (user_id, target_lang)
);

CREATE TABLE IF NOT EXISTS words (
    id           TEXT    PRIMARY KEY,
    text         TEXT    NOT NULL,
    language     TEXT    NOT NULL,
    cefr         TEXT    NOT NULL DEFAULT '',
    translations JSONB   NOT NULL DEFAULT '{}',
    examples     JSONB   NOT NULL DEFAULT '[]',
    forms        JSONB   NOT NULL DEFAULT '{}',
    freq_rank    INTEGER NOT NULL DEFAULT 0,
    UNIQUE (text, language)
);

CREATE TABLE IF NOT EXISTS user_words (
    id               TEXT        PRIMARY KEY,
    profile_id       TEXT        NOT NULL REFERENCES profiles (id) ON DELETE CASCADE,
    word_id          TEXT        NOT NULL REFERENCES words (id) ON DELETE CASCADE,
    status           TEXT        NOT NULL DEFAULT 'new',
    added_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
    last_reviewed_at TIMESTAMPTZ,
    next_review_at   TIMESTAMPTZ,
    interval_days    INTEGER     NOT NULL DEFAULT 0,
    ef               DOUBLE PRECISION NOT NULL DEFAULT 2.5,
    UNIQUE (profile_id, word_id)
);

CREATE INDEX IF NOT EXISTS idx_user_words_profile_next_review
    ON user_words (profile_id, next_review_at);
CREATE INDEX IF NOT EXISTS idx_user_words_profile_status
    ON user_words (profile_id, status);

CREATE TABLE IF NOT EXISTS word_stats (
    user_word_id   TEXT    NOT NULL REFERENCES user_words (id) ON DELETE CASCADE,
    direction      TEXT    NOT NULL,
    test_type      TEXT    NOT NULL,
    streak_correct INTEGER NOT NULL DEFAULT 0,
    total_attempts INTEGER NOT NULL DEFAULT 0,
    total_correct  INTEGER NOT NULL DEFAULT 0,
    total_errors   INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (user_word_id, direction, test_type)
);

CREATE TABLE IF NOT EXISTS lessons (
    id             TEXT        PRIMARY KEY,
    profile_id     TEXT        NOT NULL REFERENCES profiles (id) ON DELETE CASCADE,
    started_at     TIMESTAMPTZ NOT NULL,
    completed_at   TIMESTAMPTZ,
    planned_count  INTEGER     NOT NULL DEFAULT 0,
    correct        INTEGER     NOT NULL DEFAULT 0,
    incorrect      INTEGER     NOT NULL DEFAULT 0,
    word_queue     TEXT[]      NOT NULL DEFAULT '{}'
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_lessons_active_profile
    ON lessons (profile_id) WHERE completed_at IS NULL;

CREATE TABLE IF NOT EXISTS lesson_attempts (
    lesson_id    TEXT        NOT NULL REFERENCES lessons (id) ON DELETE CASCADE,
    user_word_id TEXT        NOT NULL REFERENCES user_words (id) ON DELETE CASCADE,
    direction    TEXT        NOT NULL,
    test_type    TEXT        NOT NULL,
    user_answer  TEXT        NOT NULL,
    expected     TEXT        NOT NULL,
    correct      BOOLEAN     NOT NULL,
    method       TEXT        NOT NULL,
    attempted_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_lesson_attempts_lesson
    ON lesson_attempts (lesson_id, attempted_at);

CREATE TABLE IF NOT EXISTS translation_cache (
    text       TEXT        NOT NULL,
    src_lang   TEXT        NOT NULL,
    tgt_lang   TEXT        NOT NULL,
    payload    JSONB       NOT NULL,
    cached_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    expires_at TIMESTAMPTZ,
    PRIMARY KEY (text, src_lang, tgt_lang)
);

CREATE TABLE IF NOT EXISTS validation_cache (
    word_id       TEXT        NOT NULL,
    direction     TEXT        NOT NULL,
    expected_norm TEXT        NOT NULL,
    answer_norm   TEXT        NOT NULL,
    correct       BOOLEAN     NOT NULL,
    comment       TEXT        NOT NULL DEFAULT '',
    cached_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (word_id, direction, expected_norm, answer_norm)
);
`

// Migrate creates every table and index Store needs if it does not already
// exist. Idempotent, safe to call on every application start, exactly the
// discipline of the teacher's postgres.Migrate.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("vocab postgres: migrate: %w", err)
	}
	return nil
}
