// Package mock provides in-memory mock implementations of the
// [audionode.Node], [audionode.Cluster] and [audionode.Player] interfaces for
// use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so that
// tests can assert on call counts and arguments, and they expose exported
// fields that the test can set to control return values.
//
// Typical usage:
//
//	player := &mock.Player{Guild: "g1"}
//	cluster := &mock.Cluster{ClusterName: "default", JoinResult: player}
//	p, err := cluster.JoinVoiceChannel(ctx, "g1", "vc1", 0, true)
//	player.Emit(audionode.TrackEndEvent{Guild: "g1", Reason: audionode.EndReasonFinished})
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/tempo/pkg/audionode"
)

// ─── Player ───────────────────────────────────────────────────────────────────

// Player is a mock implementation of [audionode.Player].
type Player struct {
	mu sync.Mutex

	// Guild is returned by GuildID.
	Guild string

	// PlayErr is returned by PlayTrack. PlayErrFor overrides it per encoded
	// handle.
	PlayErr    error
	PlayErrFor map[string]error

	// StopErr, PauseErr, VolumeErr, FiltersErr, DisconnectErr are returned by
	// the corresponding methods.
	StopErr       error
	PauseErr      error
	VolumeErr     error
	FiltersErr    error
	DisconnectErr error

	// PositionResult is returned by Position.
	PositionResult time.Duration

	// Played records every encoded handle passed to PlayTrack, in order.
	Played []string

	// Volumes records every volume passed to SetVolume.
	Volumes []int

	// Pauses records every value passed to SetPaused.
	Pauses []bool

	// AppliedFilters records every filter graph passed to SetFilters.
	AppliedFilters []audionode.Filters

	CallCountStopTrack    int
	CallCountClearFilters int
	CallCountDisconnect   int

	callback func(audionode.Event)
}

var _ audionode.Player = (*Player)(nil)

// GuildID implements [audionode.Player].
func (p *Player) GuildID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Guild
}

// PlayTrack implements [audionode.Player].
func (p *Player) PlayTrack(_ context.Context, encoded string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Played = append(p.Played, encoded)
	if err, ok := p.PlayErrFor[encoded]; ok {
		return err
	}
	return p.PlayErr
}

// StopTrack implements [audionode.Player].
func (p *Player) StopTrack(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CallCountStopTrack++
	return p.StopErr
}

// SetPaused implements [audionode.Player].
func (p *Player) SetPaused(_ context.Context, paused bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Pauses = append(p.Pauses, paused)
	return p.PauseErr
}

// SetVolume implements [audionode.Player].
func (p *Player) SetVolume(_ context.Context, volume int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Volumes = append(p.Volumes, volume)
	return p.VolumeErr
}

// SetFilters implements [audionode.Player].
func (p *Player) SetFilters(_ context.Context, filters audionode.Filters) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.AppliedFilters = append(p.AppliedFilters, filters)
	return p.FiltersErr
}

// ClearFilters implements [audionode.Player].
func (p *Player) ClearFilters(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CallCountClearFilters++
	return p.FiltersErr
}

// Position implements [audionode.Player].
func (p *Player) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.PositionResult
}

// OnEvent implements [audionode.Player].
func (p *Player) OnEvent(cb func(audionode.Event)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.callback = cb
}

// Disconnect implements [audionode.Player].
func (p *Player) Disconnect(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CallCountDisconnect++
	return p.DisconnectErr
}

// Emit delivers ev to the registered callback synchronously. Use it to
// simulate node events in tests.
func (p *Player) Emit(ev audionode.Event) {
	p.mu.Lock()
	cb := p.callback
	p.mu.Unlock()
	if cb != nil {
		cb(ev)
	}
}

// PlayedCount returns the number of PlayTrack calls.
func (p *Player) PlayedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Played)
}

// LastPlayed returns the most recent handle passed to PlayTrack, or "".
func (p *Player) LastPlayed() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Played) == 0 {
		return ""
	}
	return p.Played[len(p.Played)-1]
}

// StopCount returns the number of StopTrack calls.
func (p *Player) StopCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.CallCountStopTrack
}

// DisconnectCount returns the number of Disconnect calls.
func (p *Player) DisconnectCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.CallCountDisconnect
}

// ─── Node ─────────────────────────────────────────────────────────────────────

// Node is a mock implementation of [audionode.Node].
type Node struct {
	mu sync.Mutex

	// NodeName is returned by Name.
	NodeName string

	// ConnectedResult and TransportOpenResult are returned by Connected and
	// TransportOpen.
	ConnectedResult     bool
	TransportOpenResult bool

	// ResolveFunc, when set, handles Resolve. Otherwise ResolveResult and
	// ResolveErr are returned.
	ResolveFunc   func(ctx context.Context, identifier string) (audionode.LoadResult, error)
	ResolveResult audionode.LoadResult
	ResolveErr    error

	// ResolveCalls records every identifier passed to Resolve.
	ResolveCalls []string
}

var _ audionode.Node = (*Node)(nil)

// Name implements [audionode.Node].
func (n *Node) Name() string { return n.NodeName }

// Connected implements [audionode.Node].
func (n *Node) Connected() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.ConnectedResult
}

// TransportOpen implements [audionode.Node].
func (n *Node) TransportOpen() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.TransportOpenResult
}

// SetConnected changes the reported connection state.
func (n *Node) SetConnected(connected bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ConnectedResult = connected
}

// Resolve implements [audionode.Node].
func (n *Node) Resolve(ctx context.Context, identifier string) (audionode.LoadResult, error) {
	n.mu.Lock()
	n.ResolveCalls = append(n.ResolveCalls, identifier)
	fn := n.ResolveFunc
	res, err := n.ResolveResult, n.ResolveErr
	n.mu.Unlock()
	if fn != nil {
		return fn(ctx, identifier)
	}
	return res, err
}

// ResolveCount returns the number of Resolve calls.
func (n *Node) ResolveCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.ResolveCalls)
}

// ─── Cluster ──────────────────────────────────────────────────────────────────

// JoinCall records the arguments of a single JoinVoiceChannel invocation.
type JoinCall struct {
	GuildID   string
	ChannelID string
	ShardID   int
	Deaf      bool
}

// Cluster is a mock implementation of [audionode.Cluster].
type Cluster struct {
	mu sync.Mutex

	// ClusterName is returned by Name.
	ClusterName string

	// NodeList is returned by Nodes. Ideal, when set, is returned by
	// IdealNode; otherwise the first connected node is.
	NodeList []audionode.Node
	Ideal    audionode.Node

	// JoinFunc, when set, handles JoinVoiceChannel. Otherwise JoinResult and
	// JoinErr are returned.
	JoinFunc   func(ctx context.Context, call JoinCall) (audionode.Player, error)
	JoinResult audionode.Player
	JoinErr    error

	// LeaveErr is returned by LeaveVoiceChannel.
	LeaveErr error

	// JoinCalls and LeaveCalls record invocations in order.
	JoinCalls  []JoinCall
	LeaveCalls []string
}

var _ audionode.Cluster = (*Cluster)(nil)

// Name implements [audionode.Cluster].
func (c *Cluster) Name() string { return c.ClusterName }

// Nodes implements [audionode.Cluster].
func (c *Cluster) Nodes() []audionode.Node {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.NodeList
}

// IdealNode implements [audionode.Cluster].
func (c *Cluster) IdealNode() audionode.Node {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Ideal != nil {
		return c.Ideal
	}
	for _, n := range c.NodeList {
		if n.Connected() {
			return n
		}
	}
	return nil
}

// JoinVoiceChannel implements [audionode.Cluster].
func (c *Cluster) JoinVoiceChannel(ctx context.Context, guildID, channelID string, shardID int, deaf bool) (audionode.Player, error) {
	call := JoinCall{GuildID: guildID, ChannelID: channelID, ShardID: shardID, Deaf: deaf}
	c.mu.Lock()
	c.JoinCalls = append(c.JoinCalls, call)
	fn := c.JoinFunc
	res, err := c.JoinResult, c.JoinErr
	c.mu.Unlock()
	if fn != nil {
		return fn(ctx, call)
	}
	return res, err
}

// LeaveVoiceChannel implements [audionode.Cluster].
func (c *Cluster) LeaveVoiceChannel(_ context.Context, guildID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.LeaveCalls = append(c.LeaveCalls, guildID)
	return c.LeaveErr
}

// JoinCount returns the number of JoinVoiceChannel calls.
func (c *Cluster) JoinCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.JoinCalls)
}

// LeaveCount returns the number of LeaveVoiceChannel calls.
func (c *Cluster) LeaveCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.LeaveCalls)
}
