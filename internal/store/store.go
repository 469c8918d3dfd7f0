// Package store defines the accessor tempo uses for durable per-user and
// per-guild state: paid and vote tiers, the 24/7 keep-alive setting, liked
// tracks and playlists.
//
// The playback core treats every call as a fallible remote call. Callers on
// background paths coalesce failures to "false" or "disabled".
//
// Two implementations exist: [Memory] for single-process deployments and tests,
// and the PostgreSQL-backed store in store/postgres.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// LikedPlaylist is the playlist the "add to playlist" control writes to.
const LikedPlaylist = "Liked"

// TrackRef is the part of a track worth persisting. The encoded handle is
// node specific and may expire, so URI is what gets re-resolved later.
type TrackRef struct {
	Title    string
	Author   string
	URI      string
	LengthMs int64
	Source   string
	AddedAt  time.Time
}

// KeepAliveSettings is a guild's 24/7 configuration.
type KeepAliveSettings struct {
	// Enabled is the guild's opt-in.
	Enabled bool

	// PremiumActive is true while the guild holds an active premium grant.
	PremiumActive bool
}

// Active reports whether the session should stay connected when idle. Both
// the opt-in and an active premium grant are required.
func (k KeepAliveSettings) Active() bool {
	return k.Enabled && k.PremiumActive
}

// Playlist is a named, user-owned list of tracks.
type Playlist struct {
	ID     string
	Name   string
	Owner  string
	Tracks []TrackRef
}

// Store is the durable state accessor.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// HasPaidAccess reports whether userID holds an active paid tier.
	HasPaidAccess(ctx context.Context, userID string) (bool, error)

	// HasVoteAccess reports whether userID has a recent vote reward.
	HasVoteAccess(ctx context.Context, userID string) (bool, error)

	// KeepAlive returns the guild's 24/7 settings. Unknown guilds yield the
	// zero value and no error.
	KeepAlive(ctx context.Context, guildID string) (KeepAliveSettings, error)

	// SetKeepAlive changes the guild's 24/7 opt-in.
	SetKeepAlive(ctx context.Context, guildID string, enabled bool) error

	// AddFavorite appends t to the user's favorites.
	AddFavorite(ctx context.Context, userID string, t TrackRef) error

	// Favorites returns the user's favorites, oldest first.
	Favorites(ctx context.Context, userID string) ([]TrackRef, error)

	// AddToPlaylist appends t to the user's playlist named name, creating the
	// playlist if needed.
	AddToPlaylist(ctx context.Context, userID, name string, t TrackRef) error

	// Playlist returns the user's playlist named name, or [ErrNotFound].
	Playlist(ctx context.Context, userID, name string) (Playlist, error)

	// Ping checks the backing storage is reachable.
	Ping(ctx context.Context) error
}
