// Package audionode defines the contracts for remote audio-processing nodes
// that decode, mix and stream audio on behalf of tempo.
//
// The three primary abstractions are:
//
//   - [Node]: a single remote node that can resolve queries into tracks.
//   - [Cluster]: a group of nodes that share voice connections; joining a voice
//     channel through a cluster yields a [Player].
//   - [Player]: the remote player bound to exactly one guild. Commands are
//     submitted over the network and lifecycle changes arrive as [Event] values.
//
// Implementations live in sub-packages (e.g. audionode/lavalink). The
// interfaces are intentionally narrow so the playback orchestrator never
// depends on wire formats.
package audionode

import (
	"context"
	"time"
)

// Node is a single remote audio node.
//
// Implementations must be safe for concurrent use.
type Node interface {
	// Name returns the configured identifier of the node.
	Name() string

	// Connected reports whether the node completed its session handshake and
	// accepts player commands.
	Connected() bool

	// TransportOpen reports whether the underlying event transport is open,
	// even if the handshake has not completed yet.
	TransportOpen() bool

	// Resolve turns an identifier (URL or "engine:terms" search query) into
	// playable tracks. A non-nil error means the request itself failed; a
	// node-side failure to load is reported via [LoadTypeError].
	Resolve(ctx context.Context, identifier string) (LoadResult, error)
}

// Cluster is a group of nodes that can host players.
//
// Implementations must be safe for concurrent use.
type Cluster interface {
	// Name returns the configured identifier of the cluster.
	Name() string

	// Nodes returns all nodes of the cluster in configuration order.
	Nodes() []Node

	// IdealNode returns the node the cluster would place new work on, or nil
	// when no node is reachable.
	IdealNode() Node

	// JoinVoiceChannel joins channelID in guildID and returns the player bound
	// to that voice session.
	JoinVoiceChannel(ctx context.Context, guildID, channelID string, shardID int, deaf bool) (Player, error)

	// LeaveVoiceChannel releases the voice channel held for guildID. Leaving a
	// guild that holds no voice connection is not an error.
	LeaveVoiceChannel(ctx context.Context, guildID string) error
}

// Player is the remote player of a single guild.
//
// Implementations must be safe for concurrent use. Event callbacks are
// invoked sequentially on an internal goroutine.
type Player interface {
	// GuildID returns the guild the player belongs to.
	GuildID() string

	// PlayTrack starts playing the track identified by its encoded handle,
	// replacing whatever is playing.
	PlayTrack(ctx context.Context, encoded string) error

	// StopTrack stops the current track. A [TrackEndEvent] follows.
	StopTrack(ctx context.Context) error

	// SetPaused pauses or resumes playback.
	SetPaused(ctx context.Context, paused bool) error

	// SetVolume sets the player volume in percent (0–1000).
	SetVolume(ctx context.Context, volume int) error

	// SetFilters replaces the active filter graph.
	SetFilters(ctx context.Context, filters Filters) error

	// ClearFilters removes all filters.
	ClearFilters(ctx context.Context) error

	// Position returns the last known playback position of the current track.
	Position() time.Duration

	// OnEvent registers cb as the receiver of player events. Only one callback
	// is kept; later calls replace earlier ones.
	OnEvent(cb func(Event))

	// Disconnect destroys the remote player. It is safe to call more than once.
	Disconnect(ctx context.Context) error
}
