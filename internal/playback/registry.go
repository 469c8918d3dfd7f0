package playback

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/MrWong99/tempo/pkg/audionode"
)

// Registry maps guild ids to live sessions.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	// creating collapses concurrent creates for one guild into a single
	// voice join.
	creating singleflight.Group
}

func newRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Get returns the session for guildID or nil.
func (r *Registry) Get(guildID string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[guildID]
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Range calls fn for every session until fn returns false. fn runs without
// the registry lock held.
func (r *Registry) Range(fn func(*Session) bool) {
	r.mu.RLock()
	list := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		list = append(list, s)
	}
	r.mu.RUnlock()
	for _, s := range list {
		if !fn(s) {
			return
		}
	}
}

// put registers s unless the guild already has a session.
func (r *Registry) put(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.guildID]; ok {
		return false
	}
	r.sessions[s.guildID] = s
	return true
}

// remove deletes s if it is still the registered session of its guild.
func (r *Registry) remove(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[s.guildID] == s {
		delete(r.sessions, s.guildID)
	}
}

// CreateRequest carries what [Manager.Create] needs.
type CreateRequest struct {
	GuildID        string
	VoiceChannelID string
	TextChannelID  string
	ShardID        int
	RequesterID    string
}

// Get returns the guild's session, or nil. It has no side effects.
func (m *Manager) Get(guildID string) *Session {
	return m.registry.Get(guildID)
}

// Sessions returns the number of live sessions.
func (m *Manager) Sessions() int { return m.registry.Len() }

// Create returns the guild's session, joining voice if there is none yet.
//
// An existing session only has its channel ids updated. For a new session
// the premium cluster is preferred when the requester holds paid access;
// vote rewards do not count. The choice is made once and kept for the
// session's lifetime.
//
// Concurrent creates for one guild share a single join. That join does not
// inherit the cancellation of whichever caller started it; it is bounded by
// the join policy's per-attempt timeout and attempt budget instead.
func (m *Manager) Create(ctx context.Context, req CreateRequest) (*Session, error) {
	if s := m.updateExisting(req); s != nil {
		return s, nil
	}
	v, err, _ := m.registry.creating.Do(req.GuildID, func() (any, error) {
		return m.create(context.WithoutCancel(ctx), req)
	})
	if err != nil {
		return nil, err
	}
	s := v.(*Session)
	m.updateExisting(req)
	return s, nil
}

func (m *Manager) updateExisting(req CreateRequest) *Session {
	s := m.registry.Get(req.GuildID)
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	if req.VoiceChannelID != "" {
		s.voiceChannelID = req.VoiceChannelID
	}
	if req.TextChannelID != "" {
		s.textChannelID = req.TextChannelID
	}
	return s
}

func (m *Manager) create(ctx context.Context, req CreateRequest) (*Session, error) {
	if s := m.registry.Get(req.GuildID); s != nil {
		return s, nil
	}

	premium := m.PrefersPremium(ctx, req.RequesterID)
	player, ct, err := m.negotiator.Join(ctx, JoinRequest{
		GuildID:       req.GuildID,
		ChannelID:     req.VoiceChannelID,
		ShardID:       req.ShardID,
		Deaf:          true,
		PreferPremium: premium,
	})
	if err != nil {
		return nil, err
	}

	s := &Session{
		guildID:        req.GuildID,
		voiceChannelID: req.VoiceChannelID,
		textChannelID:  req.TextChannelID,
		shardID:        req.ShardID,
		clusterType:    ct,
		player:         player,
		createdBy:      req.RequesterID,
		volume:         m.defaultVolume,
	}
	if !m.registry.put(s) {
		// Someone registered the guild while we were joining; our player is
		// the stale one.
		slog.Warn("playback: discarding player from superseded join", "guild_id", req.GuildID)
		if err := player.Disconnect(context.WithoutCancel(ctx)); err != nil {
			slog.Debug("playback: disconnect superseded player", "guild_id", req.GuildID, "err", err)
		}
		if existing := m.registry.Get(req.GuildID); existing != nil {
			return existing, nil
		}
		return nil, ErrNoSession
	}

	m.bind(s, player)
	m.metrics.ActiveSessions.Add(ctx, 1)

	s.mu.Lock()
	// Best-effort: a node that rejects the initial volume still plays at its
	// own default.
	if err := player.SetVolume(ctx, s.volume); err != nil {
		slog.Debug("playback: initial volume rejected", "guild_id", req.GuildID, "err", err)
	}
	s.mu.Unlock()

	slog.Info("playback: session created",
		"guild_id", req.GuildID,
		"voice_channel_id", req.VoiceChannelID,
		"cluster", string(ct),
		"requester_id", req.RequesterID,
	)
	return s, nil
}

// Cleanup tears the guild's session down: timers stop, the remote player is
// disconnected, the voice channel is optionally released and the session is
// removed. Unknown guilds are a no-op.
func (m *Manager) Cleanup(ctx context.Context, guildID string, leaveVoice bool) error {
	s := m.registry.Get(guildID)
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	if leaveVoice {
		s.manualDisconnect = true
	}
	m.teardownLocked(ctx, s, leaveVoice)
	return nil
}

// Disconnect is the user-initiated teardown. The closed event that follows
// is consumed rather than treated as a drop.
func (m *Manager) Disconnect(ctx context.Context, guildID string) error {
	s := m.registry.Get(guildID)
	if s == nil {
		return ErrNoSession
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrNoSession
	}
	s.manualDisconnect = true
	m.teardownLocked(ctx, s, true)
	return nil
}

// teardownLocked must be called with s.mu held.
func (m *Manager) teardownLocked(ctx context.Context, s *Session, leaveVoice bool) {
	s.closed = true
	s.cancelIdleLocked()
	s.queue = nil
	s.current = nil
	m.registry.remove(s)
	m.presenter.Clear(s.guildID, true)

	if s.player != nil {
		if err := s.player.Disconnect(ctx); err != nil {
			slog.Warn("playback: disconnect player", "guild_id", s.guildID, "err", err)
		}
	}
	if leaveVoice {
		if c := m.pool.Cluster(s.clusterType); c != nil {
			if err := c.LeaveVoiceChannel(ctx, s.guildID); err != nil {
				slog.Warn("playback: leave voice", "guild_id", s.guildID, "cluster", string(s.clusterType), "err", err)
			}
		}
	}
	m.metrics.ActiveSessions.Add(ctx, -1)
	slog.Info("playback: session closed", "guild_id", s.guildID, "left_voice", leaveVoice)
}

// bind routes the player's events into the event bridge.
func (m *Manager) bind(s *Session, p audionode.Player) {
	p.OnEvent(func(ev audionode.Event) {
		m.handleEvent(s, p, ev)
	})
}
