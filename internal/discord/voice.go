package discord

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/tempo/pkg/audionode/lavalink"
)

// VoiceSender sends voice state updates on the gateway. *discordgo.Session
// implements it.
type VoiceSender interface {
	ChannelVoiceJoinManual(gID, cID string, mute, deaf bool) error
}

var _ VoiceSender = (*discordgo.Session)(nil)

// VoiceGateway implements [lavalink.VoiceGateway] on a Discord gateway
// connection. It sends the voice state update itself and collects the
// session id and server credentials Discord answers with, which the audio
// node needs to open the actual voice connection.
//
// The bot must feed the gateway's HandleVoiceStateUpdate and
// HandleVoiceServerUpdate from its event handlers.
type VoiceGateway struct {
	sender VoiceSender
	userID func() string

	mu      sync.Mutex
	pending map[string]*pendingJoin
}

var _ lavalink.VoiceGateway = (*VoiceGateway)(nil)

type pendingJoin struct {
	channelID string
	state     lavalink.VoiceState
	done      chan struct{}
	closed    bool
}

func (p *pendingJoin) complete() {
	if p.closed || p.state.SessionID == "" || p.state.Token == "" || p.state.Endpoint == "" {
		return
	}
	p.closed = true
	close(p.done)
}

// NewVoiceGateway returns a gateway sending through sender. userID reports
// the bot's own user id so its voice state updates can be told apart from
// everyone else's.
func NewVoiceGateway(sender VoiceSender, userID func() string) *VoiceGateway {
	return &VoiceGateway{
		sender:  sender,
		userID:  userID,
		pending: make(map[string]*pendingJoin),
	}
}

// JoinVoice implements [lavalink.VoiceGateway]. A single gateway connection
// serves one shard; shardID is only logged.
func (g *VoiceGateway) JoinVoice(ctx context.Context, guildID, channelID string, shardID int, deaf bool) (lavalink.VoiceState, error) {
	p := &pendingJoin{channelID: channelID, done: make(chan struct{})}
	g.mu.Lock()
	g.pending[guildID] = p
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		if g.pending[guildID] == p {
			delete(g.pending, guildID)
		}
		g.mu.Unlock()
	}()

	slog.Debug("discord: joining voice", "guild_id", guildID, "channel_id", channelID, "shard_id", shardID)
	if err := g.sender.ChannelVoiceJoinManual(guildID, channelID, false, deaf); err != nil {
		return lavalink.VoiceState{}, fmt.Errorf("discord: voice state update: %w", err)
	}

	select {
	case <-p.done:
		g.mu.Lock()
		defer g.mu.Unlock()
		return p.state, nil
	case <-ctx.Done():
		return lavalink.VoiceState{}, fmt.Errorf("discord: waiting for voice credentials: %w", ctx.Err())
	}
}

// LeaveVoice implements [lavalink.VoiceGateway].
func (g *VoiceGateway) LeaveVoice(_ context.Context, guildID string) error {
	g.mu.Lock()
	delete(g.pending, guildID)
	g.mu.Unlock()
	if err := g.sender.ChannelVoiceJoinManual(guildID, "", false, false); err != nil {
		return fmt.Errorf("discord: leave voice: %w", err)
	}
	return nil
}

// HandleVoiceStateUpdate records the bot's voice session id.
func (g *VoiceGateway) HandleVoiceStateUpdate(e *discordgo.VoiceStateUpdate) {
	if e == nil || e.VoiceState == nil || e.UserID != g.userID() {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	p := g.pending[e.GuildID]
	if p == nil || e.ChannelID != p.channelID {
		return
	}
	p.state.SessionID = e.SessionID
	p.complete()
}

// HandleVoiceServerUpdate records the voice server credentials. An update
// without an endpoint means Discord is still allocating a server; the real
// one follows.
func (g *VoiceGateway) HandleVoiceServerUpdate(e *discordgo.VoiceServerUpdate) {
	if e == nil || e.Endpoint == "" {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	p := g.pending[e.GuildID]
	if p == nil {
		return
	}
	p.state.Token = e.Token
	p.state.Endpoint = e.Endpoint
	p.complete()
}
