package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/tempo/internal/store"
)

var _ store.Store = (*Store)(nil)

// Store implements [store.Store] on PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to dsn, verifies the connection and runs [Migrate].
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the pool.
func (s *Store) Close() { s.pool.Close() }

// Ping implements [store.Store].
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) hasGrant(ctx context.Context, userID, tier string) (bool, error) {
	var ok bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM user_grants WHERE user_id = $1 AND tier = $2 AND expires_at > now())`,
		userID, tier,
	).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("postgres store: %s grant: %w", tier, err)
	}
	return ok, nil
}

// HasPaidAccess implements [store.Store].
func (s *Store) HasPaidAccess(ctx context.Context, userID string) (bool, error) {
	return s.hasGrant(ctx, userID, "paid")
}

// HasVoteAccess implements [store.Store].
func (s *Store) HasVoteAccess(ctx context.Context, userID string) (bool, error) {
	return s.hasGrant(ctx, userID, "vote")
}

// Grant records a paid or vote grant for userID until until. Operator
// tooling calls it; the playback core only reads grants.
func (s *Store) Grant(ctx context.Context, userID, tier string, until time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO user_grants (user_id, tier, expires_at) VALUES ($1, $2, $3)
		ON CONFLICT (user_id, tier) DO UPDATE SET expires_at = EXCLUDED.expires_at`,
		userID, tier, until,
	)
	if err != nil {
		return fmt.Errorf("postgres store: grant: %w", err)
	}
	return nil
}

// KeepAlive implements [store.Store].
func (s *Store) KeepAlive(ctx context.Context, guildID string) (store.KeepAliveSettings, error) {
	var ka store.KeepAliveSettings
	err := s.pool.QueryRow(ctx, `
		SELECT keep_alive, COALESCE(premium_until > now(), false)
		FROM guild_settings WHERE guild_id = $1`,
		guildID,
	).Scan(&ka.Enabled, &ka.PremiumActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.KeepAliveSettings{}, nil
	}
	if err != nil {
		return store.KeepAliveSettings{}, fmt.Errorf("postgres store: keep alive: %w", err)
	}
	return ka, nil
}

// SetKeepAlive implements [store.Store].
func (s *Store) SetKeepAlive(ctx context.Context, guildID string, enabled bool) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO guild_settings (guild_id, keep_alive) VALUES ($1, $2)
		ON CONFLICT (guild_id) DO UPDATE SET keep_alive = EXCLUDED.keep_alive`,
		guildID, enabled,
	)
	if err != nil {
		return fmt.Errorf("postgres store: set keep alive: %w", err)
	}
	return nil
}

// AddFavorite implements [store.Store].
func (s *Store) AddFavorite(ctx context.Context, userID string, t store.TrackRef) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO favorites (user_id, title, author, uri, length_ms, source)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		userID, t.Title, t.Author, t.URI, t.LengthMs, t.Source,
	)
	if err != nil {
		return fmt.Errorf("postgres store: add favorite: %w", err)
	}
	return nil
}

// Favorites implements [store.Store].
func (s *Store) Favorites(ctx context.Context, userID string) ([]store.TrackRef, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT title, author, uri, length_ms, source, added_at
		FROM favorites WHERE user_id = $1 ORDER BY added_at, id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres store: favorites: %w", err)
	}
	refs, err := pgx.CollectRows(rows, scanTrackRef)
	if err != nil {
		return nil, fmt.Errorf("postgres store: favorites: %w", err)
	}
	return refs, nil
}

// AddToPlaylist implements [store.Store]. The playlist row is created on
// first use inside the same transaction as the track insert.
func (s *Store) AddToPlaylist(ctx context.Context, userID, name string, t store.TrackRef) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var id string
		err := tx.QueryRow(ctx, `
			INSERT INTO playlists (id, owner_id, name) VALUES ($1::uuid, $2, $3)
			ON CONFLICT (owner_id, name) DO UPDATE SET name = EXCLUDED.name
			RETURNING id::text`,
			uuid.NewString(), userID, name,
		).Scan(&id)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO playlist_tracks (playlist_id, title, author, uri, length_ms, source)
			VALUES ($1::uuid, $2, $3, $4, $5, $6)`,
			id, t.Title, t.Author, t.URI, t.LengthMs, t.Source,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("postgres store: add to playlist: %w", err)
	}
	return nil
}

// Playlist implements [store.Store].
func (s *Store) Playlist(ctx context.Context, userID, name string) (store.Playlist, error) {
	pl := store.Playlist{Name: name, Owner: userID}
	err := s.pool.QueryRow(ctx,
		`SELECT id::text FROM playlists WHERE owner_id = $1 AND name = $2`,
		userID, name,
	).Scan(&pl.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Playlist{}, store.ErrNotFound
	}
	if err != nil {
		return store.Playlist{}, fmt.Errorf("postgres store: playlist: %w", err)
	}
	rows, err := s.pool.Query(ctx, `
		SELECT title, author, uri, length_ms, source, added_at
		FROM playlist_tracks WHERE playlist_id = $1::uuid ORDER BY id`,
		pl.ID,
	)
	if err != nil {
		return store.Playlist{}, fmt.Errorf("postgres store: playlist tracks: %w", err)
	}
	pl.Tracks, err = pgx.CollectRows(rows, scanTrackRef)
	if err != nil {
		return store.Playlist{}, fmt.Errorf("postgres store: playlist tracks: %w", err)
	}
	return pl, nil
}

func scanTrackRef(row pgx.CollectableRow) (store.TrackRef, error) {
	var t store.TrackRef
	err := row.Scan(&t.Title, &t.Author, &t.URI, &t.LengthMs, &t.Source, &t.AddedAt)
	return t, err
}
