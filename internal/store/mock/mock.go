// Package mock provides a recording test double for [store.Store].
//
// Exported fields control what each method returns; every invocation is
// recorded so tests can assert on call counts and arguments.
//
//	st := &mock.Store{PaidAccess: map[string]bool{"u1": true}}
//	...
//	if st.CallCount("AddFavorite") != 1 { … }
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/tempo/internal/store"
)

var _ store.Store = (*Store)(nil)

// Call records one method invocation.
type Call struct {
	Method string
	Args   []any
}

// Store is a configurable [store.Store].
type Store struct {
	mu    sync.Mutex
	calls []Call

	// PaidAccess and VoteAccess map user ids to their tier.
	PaidAccess map[string]bool
	VoteAccess map[string]bool

	// KeepAliveResult maps guild ids to their settings.
	KeepAliveResult map[string]store.KeepAliveSettings

	// FavoritesResult is returned by Favorites.
	FavoritesResult []store.TrackRef

	// PlaylistResult is returned by Playlist; when nil, Playlist returns
	// [store.ErrNotFound].
	PlaylistResult *store.Playlist

	// Err, when set, is returned by every method.
	Err error
}

func (s *Store) record(method string, args ...any) {
	s.mu.Lock()
	s.calls = append(s.calls, Call{Method: method, Args: args})
	s.mu.Unlock()
}

// Calls returns a copy of all recorded invocations.
func (s *Store) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// CallCount returns how many times method was invoked.
func (s *Store) CallCount(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// HasPaidAccess implements [store.Store].
func (s *Store) HasPaidAccess(_ context.Context, userID string) (bool, error) {
	s.record("HasPaidAccess", userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.PaidAccess[userID], s.Err
}

// HasVoteAccess implements [store.Store].
func (s *Store) HasVoteAccess(_ context.Context, userID string) (bool, error) {
	s.record("HasVoteAccess", userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.VoteAccess[userID], s.Err
}

// KeepAlive implements [store.Store].
func (s *Store) KeepAlive(_ context.Context, guildID string) (store.KeepAliveSettings, error) {
	s.record("KeepAlive", guildID)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.KeepAliveResult[guildID], s.Err
}

// SetKeepAlive implements [store.Store].
func (s *Store) SetKeepAlive(_ context.Context, guildID string, enabled bool) error {
	s.record("SetKeepAlive", guildID, enabled)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	if s.KeepAliveResult == nil {
		s.KeepAliveResult = make(map[string]store.KeepAliveSettings)
	}
	ka := s.KeepAliveResult[guildID]
	ka.Enabled = enabled
	s.KeepAliveResult[guildID] = ka
	return nil
}

// AddFavorite implements [store.Store].
func (s *Store) AddFavorite(_ context.Context, userID string, t store.TrackRef) error {
	s.record("AddFavorite", userID, t)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Err
}

// Favorites implements [store.Store].
func (s *Store) Favorites(_ context.Context, userID string) ([]store.TrackRef, error) {
	s.record("Favorites", userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]store.TrackRef(nil), s.FavoritesResult...), s.Err
}

// AddToPlaylist implements [store.Store].
func (s *Store) AddToPlaylist(_ context.Context, userID, name string, t store.TrackRef) error {
	s.record("AddToPlaylist", userID, name, t)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Err
}

// Playlist implements [store.Store].
func (s *Store) Playlist(_ context.Context, userID, name string) (store.Playlist, error) {
	s.record("Playlist", userID, name)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return store.Playlist{}, s.Err
	}
	if s.PlaylistResult == nil {
		return store.Playlist{}, store.ErrNotFound
	}
	return *s.PlaylistResult, nil
}

// Ping implements [store.Store].
func (s *Store) Ping(context.Context) error {
	s.record("Ping")
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Err
}
