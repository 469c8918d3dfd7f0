// Package postgres provides the PostgreSQL-backed [store.Store].
//
// A single [pgxpool.Pool] serves every query. [Migrate] creates the tables on
// start-up and is safe to run repeatedly.
//
// Usage:
//
//	st, err := postgres.New(ctx, dsn)
//	if err != nil { … }
//	defer st.Close()
//	paid, _ := st.HasPaidAccess(ctx, userID)
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlGrants = `
CREATE TABLE IF NOT EXISTS user_grants (
    user_id     TEXT         NOT NULL,
    tier        TEXT         NOT NULL CHECK (tier IN ('paid', 'vote')),
    expires_at  TIMESTAMPTZ  NOT NULL,
    PRIMARY KEY (user_id, tier)
);

CREATE TABLE IF NOT EXISTS guild_settings (
    guild_id       TEXT         PRIMARY KEY,
    keep_alive     BOOLEAN      NOT NULL DEFAULT false,
    premium_until  TIMESTAMPTZ
);
`

const ddlLibrary = `
CREATE TABLE IF NOT EXISTS favorites (
    id         BIGSERIAL    PRIMARY KEY,
    user_id    TEXT         NOT NULL,
    title      TEXT         NOT NULL,
    author     TEXT         NOT NULL DEFAULT '',
    uri        TEXT         NOT NULL DEFAULT '',
    length_ms  BIGINT       NOT NULL DEFAULT 0,
    source     TEXT         NOT NULL DEFAULT '',
    added_at   TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_favorites_user ON favorites (user_id, added_at);

CREATE TABLE IF NOT EXISTS playlists (
    id          UUID         PRIMARY KEY,
    owner_id    TEXT         NOT NULL,
    name        TEXT         NOT NULL,
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now(),
    UNIQUE (owner_id, name)
);

CREATE TABLE IF NOT EXISTS playlist_tracks (
    id           BIGSERIAL    PRIMARY KEY,
    playlist_id  UUID         NOT NULL REFERENCES playlists (id) ON DELETE CASCADE,
    title        TEXT         NOT NULL,
    author       TEXT         NOT NULL DEFAULT '',
    uri          TEXT         NOT NULL DEFAULT '',
    length_ms    BIGINT       NOT NULL DEFAULT 0,
    source       TEXT         NOT NULL DEFAULT '',
    added_at     TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_playlist_tracks_playlist ON playlist_tracks (playlist_id, id);
`

// Migrate creates every table the store needs. It is idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range []string{ddlGrants, ddlLibrary} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return nil
}
