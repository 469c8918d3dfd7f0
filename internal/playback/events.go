package playback

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/MrWong99/tempo/pkg/audionode"
)

// handleEvent is the event bridge. Events from a player that no longer owns
// the session, or arriving after teardown, are dropped.
func (m *Manager) handleEvent(s *Session, p audionode.Player, ev audionode.Event) {
	ctx, cancel := backgroundContext()
	defer cancel()

	switch ev := ev.(type) {
	case audionode.TrackStartEvent:
		m.onTrackStart(ctx, s, p, ev)
	case audionode.TrackEndEvent:
		m.onTrackEnd(ctx, s, p, ev)
	case audionode.TrackExceptionEvent:
		reason := "unknown error"
		if ev.Exception.Message != "" {
			reason = ev.Exception.Message
		}
		m.onTrackFailure(ctx, s, p, ev.Track, "exception", reason)
	case audionode.TrackStuckEvent:
		m.onTrackFailure(ctx, s, p, ev.Track, "stuck",
			fmt.Sprintf("no audio for %s", ev.Threshold))
	case audionode.WebSocketClosedEvent:
		m.onClosed(ctx, s, p, ev)
	default:
		slog.Debug("playback: ignoring event", "guild_id", s.guildID, "type", fmt.Sprintf("%T", ev))
	}
}

func (m *Manager) onTrackStart(ctx context.Context, s *Session, p audionode.Player, ev audionode.TrackStartEvent) {
	s.mu.Lock()
	if s.closed || s.player != p {
		s.mu.Unlock()
		return
	}
	s.failedEncoded = ""
	publish := s.current != nil
	s.mu.Unlock()

	m.metrics.TracksStarted.Add(ctx, 1)
	if publish {
		m.presenter.Publish(ctx, s.guildID)
	}
}

func (m *Manager) onTrackEnd(ctx context.Context, s *Session, p audionode.Player, ev audionode.TrackEndEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.player != p {
		return
	}
	if s.failedEncoded != "" && ev.Track.Encoded == s.failedEncoded {
		// Already advanced by the exception or stuck handler.
		s.failedEncoded = ""
		return
	}
	if s.current != nil && ev.Track.Encoded != "" && ev.Track.Encoded != s.current.Encoded {
		slog.Debug("playback: end event for a track that is no longer current", "guild_id", s.guildID)
		return
	}

	if ev.Reason.Natural() && !s.skipRequested && s.current != nil {
		switch s.loop {
		case LoopTrack:
			s.queue = append([]audionode.Track{*s.current}, s.queue...)
		case LoopQueue:
			s.queue = append(s.queue, *s.current)
		}
	}
	s.skipRequested = false
	s.current = nil
	s.paused = false
	m.presenter.Clear(s.guildID, true)
	m.playNextLocked(ctx, s)
}

// onTrackFailure handles exception and stuck events. The failure is scoped
// to the track: the session announces it and moves on.
func (m *Manager) onTrackFailure(ctx context.Context, s *Session, p audionode.Player, track audionode.Track, kind, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.player != p {
		return
	}
	if s.current != nil && track.Encoded != "" && track.Encoded != s.current.Encoded {
		return
	}

	title := track.Info.Title
	if title == "" && s.current != nil {
		title = s.current.Info.Title
	}
	slog.Warn("playback: track failed",
		"guild_id", s.guildID,
		"kind", kind,
		"title", title,
		"reason", reason,
	)
	m.metrics.RecordTrackError(ctx, kind)
	m.notifyLocked(ctx, s, fmt.Sprintf("Playback of **%s** failed (%s). Skipping.", title, reason))

	if s.current != nil {
		s.failedEncoded = s.current.Encoded
	}
	s.current = nil
	s.paused = false
	s.skipRequested = false
	m.presenter.Clear(s.guildID, true)
	m.playNextLocked(ctx, s)
}

func (m *Manager) onClosed(ctx context.Context, s *Session, p audionode.Player, ev audionode.WebSocketClosedEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.player != p {
		return
	}
	if s.manualDisconnect {
		s.manualDisconnect = false
		slog.Debug("playback: voice closed after deliberate disconnect", "guild_id", s.guildID, "code", ev.Code)
		return
	}
	if s.closed {
		return
	}
	slog.Warn("playback: voice connection closed unexpectedly",
		"guild_id", s.guildID,
		"code", ev.Code,
		"reason", ev.Reason,
		"by_remote", ev.ByRemote,
	)
	m.notifyLocked(ctx, s, "Disconnected from the voice channel.")
	// The node already released the voice connection.
	m.teardownLocked(ctx, s, false)
}
