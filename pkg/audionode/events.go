package audionode

import "time"

// Event is a player lifecycle event. The concrete types are
// [TrackStartEvent], [TrackEndEvent], [TrackExceptionEvent],
// [TrackStuckEvent] and [WebSocketClosedEvent].
type Event interface {
	// GuildID returns the guild the event belongs to.
	GuildID() string
	event()
}

// EndReason explains why a track ended.
type EndReason string

const (
	EndReasonFinished   EndReason = "finished"
	EndReasonLoadFailed EndReason = "loadFailed"
	EndReasonStopped    EndReason = "stopped"
	EndReasonReplaced   EndReason = "replaced"
	EndReasonCleanup    EndReason = "cleanup"
)

// Natural reports whether the track ended on its own rather than through a
// stop, replace or cleanup command.
func (r EndReason) Natural() bool {
	return r == EndReasonFinished || r == EndReasonLoadFailed
}

// TrackStartEvent is emitted when a track starts playing.
type TrackStartEvent struct {
	Guild string
	Track Track
}

// TrackEndEvent is emitted when a track stops playing for any reason.
type TrackEndEvent struct {
	Guild  string
	Track  Track
	Reason EndReason
}

// TrackExceptionEvent is emitted when a track fails during playback.
type TrackExceptionEvent struct {
	Guild     string
	Track     Track
	Exception Exception
}

// TrackStuckEvent is emitted when a track produced no audio for Threshold.
type TrackStuckEvent struct {
	Guild     string
	Track     Track
	Threshold time.Duration
}

// WebSocketClosedEvent is emitted when the voice connection of the player
// was closed by the chat platform.
type WebSocketClosedEvent struct {
	Guild    string
	Code     int
	Reason   string
	ByRemote bool
}

func (e TrackStartEvent) GuildID() string      { return e.Guild }
func (e TrackEndEvent) GuildID() string        { return e.Guild }
func (e TrackExceptionEvent) GuildID() string  { return e.Guild }
func (e TrackStuckEvent) GuildID() string      { return e.Guild }
func (e WebSocketClosedEvent) GuildID() string { return e.Guild }

func (TrackStartEvent) event()      {}
func (TrackEndEvent) event()        {}
func (TrackExceptionEvent) event()  {}
func (TrackStuckEvent) event()      {}
func (WebSocketClosedEvent) event() {}
