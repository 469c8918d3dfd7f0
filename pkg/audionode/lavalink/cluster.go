package lavalink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/MrWong99/tempo/pkg/audionode"
)

var _ audionode.Cluster = (*Cluster)(nil)

// ErrNoConnectedNode is returned when a player must be created but no node of
// the cluster has completed its handshake.
var ErrNoConnectedNode = errors.New("lavalink: no connected node")

// VoiceState carries the credentials the chat platform hands out when the
// bot joins a voice channel.
type VoiceState struct {
	SessionID string
	Token     string
	Endpoint  string
}

// VoiceGateway joins and leaves voice channels on the chat platform. The
// Discord adapter implements it.
type VoiceGateway interface {
	// JoinVoice requests a voice connection and blocks until both the voice
	// state and the voice server update have arrived.
	JoinVoice(ctx context.Context, guildID, channelID string, shardID int, deaf bool) (VoiceState, error)

	// LeaveVoice asks the platform to disconnect the bot from voice in
	// guildID.
	LeaveVoice(ctx context.Context, guildID string) error
}

// Cluster is a named group of Lavalink nodes sharing one voice gateway.
type Cluster struct {
	name    string
	nodes   []*Node
	gateway VoiceGateway

	mu      sync.Mutex
	players map[string]*Player
}

// NewCluster builds a cluster from already constructed nodes.
func NewCluster(name string, gateway VoiceGateway, nodes ...*Node) *Cluster {
	return &Cluster{
		name:    name,
		nodes:   nodes,
		gateway: gateway,
		players: make(map[string]*Player),
	}
}

// Name implements [audionode.Cluster].
func (c *Cluster) Name() string { return c.name }

// Nodes implements [audionode.Cluster].
func (c *Cluster) Nodes() []audionode.Node {
	out := make([]audionode.Node, len(c.nodes))
	for i, n := range c.nodes {
		out[i] = n
	}
	return out
}

// Open starts the websocket loop of every node.
func (c *Cluster) Open(ctx context.Context) {
	for _, n := range c.nodes {
		n.Open(ctx)
	}
}

// Close stops every node.
func (c *Cluster) Close() error {
	var errs []error
	for _, n := range c.nodes {
		if err := n.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// IdealNode implements [audionode.Cluster]. It returns the connected node with
// the lowest load penalty, or nil when none is connected.
func (c *Cluster) IdealNode() audionode.Node {
	if n := c.idealNode(); n != nil {
		return n
	}
	return nil
}

func (c *Cluster) idealNode() *Node {
	var (
		best    *Node
		penalty int
	)
	for _, n := range c.nodes {
		if !n.Connected() {
			continue
		}
		p := n.Stats().Penalty()
		if best == nil || p < penalty {
			best, penalty = n, p
		}
	}
	return best
}

// JoinVoiceChannel implements [audionode.Cluster]. It performs the platform
// voice handshake, creates a player on the ideal node and hands it the voice
// credentials.
func (c *Cluster) JoinVoiceChannel(ctx context.Context, guildID, channelID string, shardID int, deaf bool) (audionode.Player, error) {
	node := c.idealNode()
	if node == nil {
		return nil, ErrNoConnectedNode
	}

	vs, err := c.gateway.JoinVoice(ctx, guildID, channelID, shardID, deaf)
	if err != nil {
		return nil, fmt.Errorf("lavalink: join voice %s: %w", guildID, err)
	}

	p := node.attachPlayer(guildID)
	if err := p.connectVoice(ctx, vs, channelID); err != nil {
		node.detachPlayer(p)
		p.stop()
		_ = c.gateway.LeaveVoice(context.WithoutCancel(ctx), guildID)
		return nil, fmt.Errorf("lavalink: connect voice %s: %w", guildID, err)
	}

	c.mu.Lock()
	old := c.players[guildID]
	c.players[guildID] = p
	c.mu.Unlock()
	if old != nil && old != p {
		old.node.detachPlayer(old)
		old.stop()
	}

	slog.Debug("lavalink: player created",
		"cluster", c.name,
		"node", node.Name(),
		"guild_id", guildID,
		"channel_id", channelID,
	)
	return p, nil
}

// LeaveVoiceChannel implements [audionode.Cluster]. It leaves voice on the
// platform and destroys the guild's player if one exists and was not
// disconnected already.
func (c *Cluster) LeaveVoiceChannel(ctx context.Context, guildID string) error {
	c.mu.Lock()
	p := c.players[guildID]
	delete(c.players, guildID)
	c.mu.Unlock()

	var errs []error
	if err := c.gateway.LeaveVoice(ctx, guildID); err != nil {
		errs = append(errs, fmt.Errorf("lavalink: leave voice %s: %w", guildID, err))
	}
	if p != nil {
		if err := p.Disconnect(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
