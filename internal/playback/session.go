// Package playback is the playback-session orchestrator: one [Session] per
// active guild, created through the voice-join negotiator, driven by the
// queue scheduler and kept healthy by the event bridge that reacts to remote
// player events.
//
// All mutation of a session happens under that session's mutex. Guilds never
// share mutable state; the registry map is the only shared structure and is
// guarded by its own lock, which is never held while calling remote nodes.
// Background timers (idle disconnect) carry a generation number and re-check
// live session state under the session lock before acting.
package playback

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MrWong99/tempo/internal/nodepool"
	"github.com/MrWong99/tempo/pkg/audionode"
)

var (
	// ErrNoSession is returned by commands for a guild without a session.
	ErrNoSession = errors.New("playback: no active session")

	// ErrNotPlaying is returned by commands that need a current track.
	ErrNotPlaying = errors.New("playback: nothing is playing")
)

// VoiceConnectionError is returned by [Manager.Create] when every join
// attempt on every eligible cluster failed. No session is registered.
type VoiceConnectionError struct {
	GuildID  string
	Attempts int
	Err      error
}

func (e *VoiceConnectionError) Error() string {
	return fmt.Sprintf("playback: voice connection to guild %s failed after %d attempts: %v", e.GuildID, e.Attempts, e.Err)
}

func (e *VoiceConnectionError) Unwrap() error { return e.Err }

// PlaybackSubmissionError describes a track the remote player refused. It is
// reported to the session's text channel and logged, never returned to
// callers; the scheduler moves on to the next track.
type PlaybackSubmissionError struct {
	Track audionode.Track
	Err   error
}

func (e *PlaybackSubmissionError) Error() string {
	return fmt.Sprintf("playback: could not play %q: %v", e.Track.Info.Title, e.Err)
}

func (e *PlaybackSubmissionError) Unwrap() error { return e.Err }

// LoopMode controls what happens to a track that ends naturally.
type LoopMode int

const (
	LoopOff LoopMode = iota
	LoopTrack
	LoopQueue
)

// String returns the lowercase name of the mode.
func (l LoopMode) String() string {
	switch l {
	case LoopTrack:
		return "track"
	case LoopQueue:
		return "queue"
	default:
		return "off"
	}
}

// Next returns the following mode in the off → track → queue → off cycle.
func (l LoopMode) Next() LoopMode {
	return (l + 1) % 3
}

// FilterSnapshot is the last successfully applied filter preset.
type FilterSnapshot struct {
	Name    string
	Label   string
	Filters audionode.Filters
}

// Session is the playback state of one guild.
type Session struct {
	guildID string

	mu             sync.Mutex
	voiceChannelID string
	textChannelID  string
	shardID        int
	clusterType    nodepool.ClusterType
	player         audionode.Player
	createdBy      string

	queue   []audionode.Track
	current *audionode.Track
	volume  int
	loop    LoopMode
	paused  bool

	// skipRequested marks a user skip so the following end event does not
	// re-queue the track.
	skipRequested bool

	// manualDisconnect is set before a deliberate teardown so the resulting
	// closed event is consumed instead of triggering recovery.
	manualDisconnect bool

	// failedEncoded remembers the track an exception or stuck event already
	// advanced past, so the end event the node sends after it is ignored.
	failedEncoded string

	idleTimer *time.Timer
	idleGen   uint64

	filter FilterSnapshot

	closed bool
}

// GuildID returns the guild the session belongs to.
func (s *Session) GuildID() string { return s.guildID }

// State is a point-in-time copy of a session.
type State struct {
	GuildID        string
	VoiceChannelID string
	TextChannelID  string
	ClusterType    nodepool.ClusterType
	Current        *audionode.Track
	Position       time.Duration
	Queue          []audionode.Track
	Volume         int
	Loop           LoopMode
	Paused         bool
	Filter         FilterSnapshot
	IdlePending    bool
}

// State returns a snapshot of the session.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Session) stateLocked() State {
	st := State{
		GuildID:        s.guildID,
		VoiceChannelID: s.voiceChannelID,
		TextChannelID:  s.textChannelID,
		ClusterType:    s.clusterType,
		Queue:          append([]audionode.Track(nil), s.queue...),
		Volume:         s.volume,
		Loop:           s.loop,
		Paused:         s.paused,
		Filter:         s.filter,
		IdlePending:    s.idleTimer != nil,
	}
	if s.current != nil {
		cur := *s.current
		st.Current = &cur
		if s.player != nil {
			st.Position = s.player.Position()
		}
	}
	return st
}

// cancelIdleLocked stops the idle timer. Bumping the generation makes a timer
// that already fired and is waiting for the lock a no-op.
func (s *Session) cancelIdleLocked() {
	if s.idleTimer != nil {
		s.idleTimer.Stop()
		s.idleTimer = nil
	}
	s.idleGen++
}
