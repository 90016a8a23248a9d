// Package postgres provides the PostgreSQL-backed implementation of the
// areufunny set and vote stores.
//
// Both stores share a single [pgxpool.Pool]. Vote tallies are maintained on
// the sets row by the vote upsert statement itself, so a feed read never
// aggregates the votes table.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer store.Close()
//
//	_ = store.InsertSet(ctx, set)
//	entries, more, _ := store.FeedPage(ctx, store.FeedHot, callerID, page)
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlSets = `
CREATE TABLE IF NOT EXISTS sets (
    id           TEXT               PRIMARY KEY,
    owner_id     TEXT               NOT NULL,
    audio_url    TEXT               NOT NULL,
    duration_ms  BIGINT             NOT NULL,
    waveform     DOUBLE PRECISION[] NOT NULL DEFAULT '{}',
    codec        TEXT               NOT NULL DEFAULT '',
    posted       BOOLEAN            NOT NULL DEFAULT FALSE,
    up_votes     INTEGER            NOT NULL DEFAULT 0,
    down_votes   INTEGER            NOT NULL DEFAULT 0,
    created_at   TIMESTAMPTZ        NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_sets_owner_id
    ON sets (owner_id);

CREATE INDEX IF NOT EXISTS idx_sets_created_at
    ON sets (created_at DESC);

CREATE INDEX IF NOT EXISTS idx_sets_score
    ON sets ((up_votes - down_votes) DESC);
`

const ddlVotes = `
CREATE TABLE IF NOT EXISTS votes (
    set_id      TEXT         NOT NULL REFERENCES sets (id) ON DELETE CASCADE,
    user_id     TEXT         NOT NULL,
    value       SMALLINT     NOT NULL CHECK (value IN (-1, 1)),
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now(),
    PRIMARY KEY (set_id, user_id)
);

CREATE INDEX IF NOT EXISTS idx_votes_user_id
    ON votes (user_id);
`

// Migrate creates or ensures all required tables and indexes exist. It is
// idempotent (CREATE TABLE IF NOT EXISTS / CREATE INDEX IF NOT EXISTS) and
// safe to call on every application start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range []string{ddlSets, ddlVotes} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return nil
}
