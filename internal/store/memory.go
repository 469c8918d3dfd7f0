package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

var _ Store = (*Memory)(nil)

// Memory is an in-process [Store]. Premium and vote grants are set by the
// operator through [Memory.GrantPaid], [Memory.GrantVote] and
// [Memory.GrantGuildPremium]; everything is lost on restart.
type Memory struct {
	now func() time.Time

	mu           sync.RWMutex
	paid         map[string]time.Time
	votes        map[string]time.Time
	guildPremium map[string]time.Time
	keepAlive    map[string]bool
	favorites    map[string][]TrackRef
	playlists    map[string]map[string]*Playlist
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		now:          time.Now,
		paid:         make(map[string]time.Time),
		votes:        make(map[string]time.Time),
		guildPremium: make(map[string]time.Time),
		keepAlive:    make(map[string]bool),
		favorites:    make(map[string][]TrackRef),
		playlists:    make(map[string]map[string]*Playlist),
	}
}

// GrantPaid gives userID a paid tier until until.
func (m *Memory) GrantPaid(userID string, until time.Time) {
	m.mu.Lock()
	m.paid[userID] = until
	m.mu.Unlock()
}

// GrantVote gives userID a vote reward until until.
func (m *Memory) GrantVote(userID string, until time.Time) {
	m.mu.Lock()
	m.votes[userID] = until
	m.mu.Unlock()
}

// GrantGuildPremium gives guildID premium until until.
func (m *Memory) GrantGuildPremium(guildID string, until time.Time) {
	m.mu.Lock()
	m.guildPremium[guildID] = until
	m.mu.Unlock()
}

func (m *Memory) active(grants map[string]time.Time, key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	until, ok := grants[key]
	return ok && m.now().Before(until)
}

// HasPaidAccess implements [Store].
func (m *Memory) HasPaidAccess(_ context.Context, userID string) (bool, error) {
	return m.active(m.paid, userID), nil
}

// HasVoteAccess implements [Store].
func (m *Memory) HasVoteAccess(_ context.Context, userID string) (bool, error) {
	return m.active(m.votes, userID), nil
}

// KeepAlive implements [Store].
func (m *Memory) KeepAlive(_ context.Context, guildID string) (KeepAliveSettings, error) {
	premium := m.active(m.guildPremium, guildID)
	m.mu.RLock()
	defer m.mu.RUnlock()
	return KeepAliveSettings{Enabled: m.keepAlive[guildID], PremiumActive: premium}, nil
}

// SetKeepAlive implements [Store].
func (m *Memory) SetKeepAlive(_ context.Context, guildID string, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if enabled {
		m.keepAlive[guildID] = true
	} else {
		delete(m.keepAlive, guildID)
	}
	return nil
}

// AddFavorite implements [Store].
func (m *Memory) AddFavorite(_ context.Context, userID string, t TrackRef) error {
	if t.AddedAt.IsZero() {
		t.AddedAt = m.now()
	}
	m.mu.Lock()
	m.favorites[userID] = append(m.favorites[userID], t)
	m.mu.Unlock()
	return nil
}

// Favorites implements [Store].
func (m *Memory) Favorites(_ context.Context, userID string) ([]TrackRef, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]TrackRef(nil), m.favorites[userID]...), nil
}

// AddToPlaylist implements [Store].
func (m *Memory) AddToPlaylist(_ context.Context, userID, name string, t TrackRef) error {
	if t.AddedAt.IsZero() {
		t.AddedAt = m.now()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	lists, ok := m.playlists[userID]
	if !ok {
		lists = make(map[string]*Playlist)
		m.playlists[userID] = lists
	}
	pl, ok := lists[name]
	if !ok {
		pl = &Playlist{ID: uuid.NewString(), Name: name, Owner: userID}
		lists[name] = pl
	}
	pl.Tracks = append(pl.Tracks, t)
	return nil
}

// Playlist implements [Store].
func (m *Memory) Playlist(_ context.Context, userID, name string) (Playlist, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pl, ok := m.playlists[userID][name]
	if !ok {
		return Playlist{}, ErrNotFound
	}
	out := *pl
	out.Tracks = append([]TrackRef(nil), pl.Tracks...)
	return out, nil
}

// Ping implements [Store].
func (m *Memory) Ping(context.Context) error { return nil }
