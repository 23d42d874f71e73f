package db

import (
	"context"
	"fmt"
	"strings"
)

// schema holds the PostgreSQL DDL for every table the battle server owns.
// Statements are idempotent so Bootstrap can run on every startup.
const schema = `
CREATE TABLE IF NOT EXISTS users (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	username TEXT UNIQUE NOT NULL,
	password_hash TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS user_stats (
	user_id UUID PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
	games_played INTEGER NOT NULL DEFAULT 0,
	games_won INTEGER NOT NULL DEFAULT 0,
	games_lost INTEGER NOT NULL DEFAULT 0,
	problems_solved INTEGER NOT NULL DEFAULT 0,
	total_submissions INTEGER NOT NULL DEFAULT 0,
	fastest_solve_ms BIGINT,
	current_streak INTEGER NOT NULL DEFAULT 0,
	longest_streak INTEGER NOT NULL DEFAULT 0,
	last_played_at TIMESTAMPTZ,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	easy_rating INTEGER NOT NULL DEFAULT 1200,
	easy_peak_rating INTEGER NOT NULL DEFAULT 1200,
	easy_ranked_games INTEGER NOT NULL DEFAULT 0,
	easy_ranked_wins INTEGER NOT NULL DEFAULT 0,
	medium_rating INTEGER NOT NULL DEFAULT 1200,
	medium_peak_rating INTEGER NOT NULL DEFAULT 1200,
	medium_ranked_games INTEGER NOT NULL DEFAULT 0,
	medium_ranked_wins INTEGER NOT NULL DEFAULT 0,
	hard_rating INTEGER NOT NULL DEFAULT 1200,
	hard_peak_rating INTEGER NOT NULL DEFAULT 1200,
	hard_ranked_games INTEGER NOT NULL DEFAULT 0,
	hard_ranked_wins INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS game_results (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	room_id TEXT NOT NULL,
	problem_id TEXT NOT NULL,
	user_id UUID REFERENCES users(id) ON DELETE SET NULL,
	placement INTEGER NOT NULL,
	total_players INTEGER NOT NULL,
	solve_time_ms BIGINT,
	passed_tests INTEGER NOT NULL DEFAULT 0,
	total_tests INTEGER NOT NULL DEFAULT 0,
	language TEXT NOT NULL,
	game_mode TEXT NOT NULL DEFAULT 'casual',
	difficulty TEXT NOT NULL DEFAULT 'easy',
	rating_change INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_game_results_user ON game_results(user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_game_results_room ON game_results(room_id);

CREATE TABLE IF NOT EXISTS refresh_tokens (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	token_id UUID UNIQUE NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	revoked_at TIMESTAMPTZ,
	user_agent TEXT,
	ip_address TEXT
);

CREATE INDEX IF NOT EXISTS idx_refresh_tokens_user ON refresh_tokens(user_id);

CREATE TABLE IF NOT EXISTS problems (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	description TEXT NOT NULL,
	difficulty TEXT NOT NULL,
	examples JSONB NOT NULL DEFAULT '[]',
	hidden_tests JSONB NOT NULL DEFAULT '[]',
	starter_code JSONB NOT NULL DEFAULT '{}',
	tags JSONB NOT NULL DEFAULT '[]',
	time_limit_minutes INTEGER,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_problems_difficulty ON problems(difficulty);
`

// Bootstrap applies the schema to the database. The DDL is written for
// PostgreSQL; callers on another driver must manage the schema themselves.
func Bootstrap(ctx context.Context, database Database) error {
	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := database.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap schema: %w", err)
		}
	}
	return nil
}
