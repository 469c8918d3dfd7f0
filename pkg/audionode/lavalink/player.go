package lavalink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/tempo/pkg/audionode"
)

var _ audionode.Player = (*Player)(nil)

// eventBuffer bounds how many events may queue for a slow callback before
// new ones are dropped.
const eventBuffer = 64

// Player is a remote player bound to one guild on one [Node].
//
// Events for a player are delivered sequentially on a dedicated goroutine,
// so callbacks for different guilds run concurrently while a single guild
// observes its events in order.
type Player struct {
	node    *Node
	guildID string

	mu        sync.Mutex
	callback  func(audionode.Event)
	position  time.Duration
	destroyed bool

	events   chan audionode.Event
	quit     chan struct{}
	stopOnce sync.Once
}

func newPlayer(n *Node, guildID string) *Player {
	p := &Player{
		node:    n,
		guildID: guildID,
		events:  make(chan audionode.Event, eventBuffer),
		quit:    make(chan struct{}),
	}
	go p.loop()
	return p
}

func (p *Player) loop() {
	for {
		select {
		case <-p.quit:
			// Drain what was queued before stop so terminal events such as
			// WebSocketClosed still reach the callback.
			for {
				select {
				case ev := <-p.events:
					p.deliver(ev)
				default:
					return
				}
			}
		case ev := <-p.events:
			p.deliver(ev)
		}
	}
}

func (p *Player) deliver(ev audionode.Event) {
	p.mu.Lock()
	cb := p.callback
	p.mu.Unlock()
	if cb != nil {
		cb(ev)
	}
}

func (p *Player) dispatch(ev audionode.Event) {
	select {
	case p.events <- ev:
	default:
		slog.Warn("lavalink: player event buffer full, dropping event",
			"node", p.node.Name(),
			"guild_id", p.guildID,
			"event", fmt.Sprintf("%T", ev),
		)
	}
}

func (p *Player) stop() {
	p.stopOnce.Do(func() { close(p.quit) })
}

func (p *Player) setPosition(d time.Duration) {
	p.mu.Lock()
	p.position = d
	p.mu.Unlock()
}

// GuildID implements [audionode.Player].
func (p *Player) GuildID() string { return p.guildID }

// Node returns the node hosting the player.
func (p *Player) Node() *Node { return p.node }

// PlayTrack implements [audionode.Player].
func (p *Player) PlayTrack(ctx context.Context, encoded string) error {
	p.setPosition(0)
	return p.node.updatePlayer(ctx, p.guildID, playerUpdate{
		Track: &encodedTrack{Encoded: &encoded},
	})
}

// StopTrack implements [audionode.Player].
func (p *Player) StopTrack(ctx context.Context) error {
	return p.node.updatePlayer(ctx, p.guildID, playerUpdate{
		Track: &encodedTrack{},
	})
}

// SetPaused implements [audionode.Player].
func (p *Player) SetPaused(ctx context.Context, paused bool) error {
	return p.node.updatePlayer(ctx, p.guildID, playerUpdate{Paused: &paused})
}

// SetVolume implements [audionode.Player].
func (p *Player) SetVolume(ctx context.Context, volume int) error {
	return p.node.updatePlayer(ctx, p.guildID, playerUpdate{Volume: &volume})
}

// SetFilters implements [audionode.Player].
func (p *Player) SetFilters(ctx context.Context, filters audionode.Filters) error {
	return p.node.updatePlayer(ctx, p.guildID, playerUpdate{Filters: &filters})
}

// ClearFilters implements [audionode.Player]. It submits an empty filter
// graph, which resets every filter on the node.
func (p *Player) ClearFilters(ctx context.Context) error {
	return p.node.updatePlayer(ctx, p.guildID, playerUpdate{Filters: &audionode.Filters{}})
}

// Position implements [audionode.Player]. It returns the last position
// reported by the node.
func (p *Player) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position
}

// OnEvent implements [audionode.Player].
func (p *Player) OnEvent(cb func(audionode.Event)) {
	p.mu.Lock()
	p.callback = cb
	p.mu.Unlock()
}

// Disconnect implements [audionode.Player]. It destroys the remote player
// and stops event delivery. Only the first call reaches the node.
func (p *Player) Disconnect(ctx context.Context) error {
	p.mu.Lock()
	done := p.destroyed
	p.destroyed = true
	p.mu.Unlock()
	if done {
		return nil
	}
	p.node.detachPlayer(p)
	p.stop()
	if err := p.node.destroyPlayer(ctx, p.guildID); err != nil && !errors.Is(err, ErrNotReady) {
		return fmt.Errorf("lavalink: destroy player %s: %w", p.guildID, err)
	}
	return nil
}

// connectVoice forwards the voice credentials to the node.
func (p *Player) connectVoice(ctx context.Context, vs VoiceState, channelID string) error {
	return p.node.updatePlayer(ctx, p.guildID, playerUpdate{
		Voice: &voicePayload{
			Token:     vs.Token,
			Endpoint:  vs.Endpoint,
			SessionID: vs.SessionID,
			ChannelID: channelID,
		},
	})
}
