package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/MrWong99/tempo/pkg/audionode"
)

// ErrQueueIndex is returned by [Manager.Remove] for an index outside the
// queue.
var ErrQueueIndex = errors.New("playback: queue index out of range")

// withSession runs fn with the guild's session locked. Closed sessions are
// reported as missing.
func (m *Manager) withSession(guildID string, fn func(s *Session) error) error {
	s := m.registry.Get(guildID)
	if s == nil {
		return ErrNoSession
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrNoSession
	}
	return fn(s)
}

// Enqueue appends tracks and returns the new queue length. A pending idle
// disconnect is cancelled.
func (m *Manager) Enqueue(guildID string, tracks ...audionode.Track) (int, error) {
	var n int
	err := m.withSession(guildID, func(s *Session) error {
		s.cancelIdleLocked()
		s.queue = append(s.queue, tracks...)
		n = len(s.queue)
		return nil
	})
	return n, err
}

// PlayIfIdle starts the queue head when nothing is playing.
func (m *Manager) PlayIfIdle(ctx context.Context, guildID string) error {
	return m.withSession(guildID, func(s *Session) error {
		if len(s.queue) > 0 {
			s.cancelIdleLocked()
		}
		if s.current == nil {
			m.playNextLocked(ctx, s)
		}
		return nil
	})
}

// PlayNext advances to the queue head, or starts the idle countdown when the
// queue is empty.
func (m *Manager) PlayNext(ctx context.Context, guildID string) error {
	return m.withSession(guildID, func(s *Session) error {
		m.playNextLocked(ctx, s)
		return nil
	})
}

// playNextLocked pops tracks until one is accepted by the player. Every
// iteration consumes a queue entry, so it ends at the latest when the queue
// is empty.
func (m *Manager) playNextLocked(ctx context.Context, s *Session) {
	for {
		if len(s.queue) == 0 {
			m.queueEndedLocked(ctx, s)
			return
		}
		next := s.queue[0]
		s.queue = s.queue[1:]

		s.cancelIdleLocked()
		s.current = &next
		s.paused = false

		err := s.player.PlayTrack(ctx, next.Encoded)
		if err == nil {
			slog.Debug("playback: track submitted", "guild_id", s.guildID, "title", next.Info.Title)
			return
		}
		perr := &PlaybackSubmissionError{Track: next, Err: err}
		slog.Warn("playback: track rejected, skipping", "guild_id", s.guildID, "err", perr)
		m.metrics.RecordTrackError(ctx, "submit")
		m.notifyLocked(ctx, s, fmt.Sprintf("Could not play **%s**, skipping.", next.Info.Title))
		s.current = nil
	}
}

func (m *Manager) queueEndedLocked(ctx context.Context, s *Session) {
	s.current = nil
	s.paused = false
	m.presenter.Clear(s.guildID, true)

	if m.keepAliveActive(ctx, s.guildID) {
		m.notifyLocked(ctx, s, "Queue finished. Staying connected (24/7 mode).")
		return
	}
	timeout := m.IdleTimeout()
	m.notifyLocked(ctx, s, fmt.Sprintf("Queue finished. Leaving in %s unless something is queued.", timeout.Round(time.Second)))
	m.scheduleIdleLocked(s, timeout)
}

// scheduleIdleLocked replaces any pending idle timer with a new one.
func (m *Manager) scheduleIdleLocked(s *Session, timeout time.Duration) {
	s.cancelIdleLocked()
	gen := s.idleGen
	s.idleTimer = time.AfterFunc(timeout, func() {
		m.idleExpired(s, gen)
	})
}

// idleExpired re-checks the live session before leaving. Anything that
// happened since scheduling (new work, another timer, teardown) wins.
func (m *Manager) idleExpired(s *Session, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || gen != s.idleGen {
		return
	}
	s.idleTimer = nil
	if s.current != nil || len(s.queue) > 0 {
		return
	}
	ctx, cancel := backgroundContext()
	defer cancel()
	if m.keepAliveActive(ctx, s.guildID) {
		slog.Debug("playback: idle timer fired but keep-alive is active", "guild_id", s.guildID)
		return
	}
	slog.Info("playback: leaving idle voice channel", "guild_id", s.guildID)
	m.notifyLocked(ctx, s, "Left the voice channel after inactivity.")
	s.manualDisconnect = true
	m.teardownLocked(ctx, s, true)
}

// Skip stops the current track; the end event advances the queue without
// re-queueing it.
func (m *Manager) Skip(ctx context.Context, guildID string) error {
	return m.withSession(guildID, func(s *Session) error {
		if s.current == nil {
			return ErrNotPlaying
		}
		s.skipRequested = true
		m.presenter.Clear(s.guildID, true)
		if err := s.player.StopTrack(ctx); err != nil {
			s.skipRequested = false
			return fmt.Errorf("playback: skip: %w", err)
		}
		return nil
	})
}

// Stop clears the queue, resets looping and stops the current track.
func (m *Manager) Stop(ctx context.Context, guildID string) error {
	return m.withSession(guildID, func(s *Session) error {
		s.queue = nil
		s.loop = LoopOff
		s.skipRequested = true
		s.current = nil
		s.paused = false
		s.cancelIdleLocked()
		m.presenter.Clear(s.guildID, true)
		if err := s.player.StopTrack(ctx); err != nil {
			return fmt.Errorf("playback: stop: %w", err)
		}
		return nil
	})
}

// Pause pauses the current track.
func (m *Manager) Pause(ctx context.Context, guildID string) error {
	return m.setPaused(ctx, guildID, true)
}

// Resume resumes a paused track.
func (m *Manager) Resume(ctx context.Context, guildID string) error {
	return m.setPaused(ctx, guildID, false)
}

func (m *Manager) setPaused(ctx context.Context, guildID string, paused bool) error {
	err := m.withSession(guildID, func(s *Session) error {
		if s.current == nil {
			return ErrNotPlaying
		}
		if s.paused == paused {
			return nil
		}
		if err := s.player.SetPaused(ctx, paused); err != nil {
			return fmt.Errorf("playback: set paused: %w", err)
		}
		s.paused = paused
		return nil
	})
	if err == nil {
		m.presenter.Refresh(ctx, guildID)
	}
	return err
}

// SetVolume clamps v to 0–1000, applies it and returns the applied value.
func (m *Manager) SetVolume(ctx context.Context, guildID string, v int) (int, error) {
	v = clampVolume(v)
	err := m.withSession(guildID, func(s *Session) error {
		if err := s.player.SetVolume(ctx, v); err != nil {
			return fmt.Errorf("playback: set volume: %w", err)
		}
		s.volume = v
		return nil
	})
	if err != nil {
		return 0, err
	}
	m.presenter.Refresh(ctx, guildID)
	return v, nil
}

// CycleLoop advances the loop mode and returns the new one.
func (m *Manager) CycleLoop(guildID string) (LoopMode, error) {
	var mode LoopMode
	err := m.withSession(guildID, func(s *Session) error {
		s.loop = s.loop.Next()
		mode = s.loop
		return nil
	})
	return mode, err
}

// Shuffle randomizes the upcoming queue.
func (m *Manager) Shuffle(guildID string) error {
	return m.withSession(guildID, func(s *Session) error {
		rand.Shuffle(len(s.queue), func(i, j int) {
			s.queue[i], s.queue[j] = s.queue[j], s.queue[i]
		})
		return nil
	})
}

// Remove deletes the queue entry at index (0-based) and returns it.
func (m *Manager) Remove(guildID string, index int) (audionode.Track, error) {
	var removed audionode.Track
	err := m.withSession(guildID, func(s *Session) error {
		if index < 0 || index >= len(s.queue) {
			return ErrQueueIndex
		}
		removed = s.queue[index]
		s.queue = append(s.queue[:index:index], s.queue[index+1:]...)
		return nil
	})
	return removed, err
}

// ClearQueue empties the upcoming queue and returns how many entries were
// dropped. The current track keeps playing.
func (m *Manager) ClearQueue(guildID string) (int, error) {
	var n int
	err := m.withSession(guildID, func(s *Session) error {
		n = len(s.queue)
		s.queue = nil
		return nil
	})
	return n, err
}

// Queue returns a copy of the upcoming tracks.
func (m *Manager) Queue(guildID string) ([]audionode.Track, error) {
	var q []audionode.Track
	err := m.withSession(guildID, func(s *Session) error {
		q = append([]audionode.Track(nil), s.queue...)
		return nil
	})
	return q, err
}

// NowPlaying returns a snapshot of the guild's session. State.Current is nil
// when nothing is playing.
func (m *Manager) NowPlaying(guildID string) (State, error) {
	var st State
	err := m.withSession(guildID, func(s *Session) error {
		st = s.stateLocked()
		return nil
	})
	return st, err
}
