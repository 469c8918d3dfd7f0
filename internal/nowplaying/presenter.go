// Package nowplaying keeps one "now playing" message per guild up to date.
//
// A published message is refreshed on a fixed interval from live session
// state. Each refresh loop is bound to the track it was published for and
// stops on its own as soon as the session plays something else or is gone,
// so a late tick can never edit a message that belongs to another track.
package nowplaying

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/tempo/internal/playback"
)

// DefaultInterval is how often a message is re-rendered.
const DefaultInterval = 8 * time.Second

const sendTimeout = 10 * time.Second

// StateSource reads live session state. [playback.Manager] implements it.
type StateSource interface {
	NowPlaying(guildID string) (playback.State, error)
}

// Messenger is the subset of *discordgo.Session used to manage messages.
type Messenger interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageEditComplex(m *discordgo.MessageEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error
}

// Renderer draws a card image. Failures fall back to a text-only message.
type Renderer interface {
	Render(ctx context.Context, c Card) ([]byte, error)
}

// Option configures a [Presenter].
type Option func(*Presenter)

// WithRenderer enables card images.
func WithRenderer(r Renderer) Option { return func(p *Presenter) { p.renderer = r } }

// WithInterval sets the refresh interval.
func WithInterval(d time.Duration) Option { return func(p *Presenter) { p.SetInterval(d) } }

// WithTheme sets the theme passed to the renderer.
func WithTheme(theme string) Option { return func(p *Presenter) { p.theme = theme } }

// Presenter implements [playback.Presenter] on Discord messages.
type Presenter struct {
	source   StateSource
	msg      Messenger
	renderer Renderer
	theme    string
	interval atomic.Int64

	mu     sync.Mutex
	active map[string]*entry
}

var _ playback.Presenter = (*Presenter)(nil)

// entry is one live message and its refresh loop.
type entry struct {
	channelID string
	messageID string
	encoded   string
	cancel    context.CancelFunc
}

// New returns a presenter reading state from source and writing through msg.
func New(source StateSource, msg Messenger, opts ...Option) *Presenter {
	p := &Presenter{
		source: source,
		msg:    msg,
		theme:  "dark",
		active: make(map[string]*entry),
	}
	p.interval.Store(int64(DefaultInterval))
	for _, o := range opts {
		o(p)
	}
	return p
}

// SetInterval changes the refresh interval. Running loops pick it up on
// their next tick.
func (p *Presenter) SetInterval(d time.Duration) {
	if d <= 0 {
		d = DefaultInterval
	}
	p.interval.Store(int64(d))
}

// Active reports whether guildID has a live message.
func (p *Presenter) Active(guildID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active[guildID] != nil
}

// Publish implements [playback.Presenter].
func (p *Presenter) Publish(ctx context.Context, guildID string) {
	st, err := p.source.NowPlaying(guildID)
	if err != nil || st.Current == nil || st.TextChannelID == "" {
		return
	}
	p.Clear(guildID, true)

	send := p.render(ctx, st)
	m, err := p.msg.ChannelMessageSendComplex(st.TextChannelID, send)
	if err != nil {
		slog.Warn("nowplaying: send failed", "guild_id", guildID, "channel_id", st.TextChannelID, "err", err)
		return
	}

	refreshCtx, cancel := context.WithCancel(context.Background())
	e := &entry{channelID: m.ChannelID, messageID: m.ID, encoded: st.Current.Encoded, cancel: cancel}
	if e.channelID == "" {
		e.channelID = st.TextChannelID
	}

	p.mu.Lock()
	prev := p.active[guildID]
	p.active[guildID] = e
	p.mu.Unlock()
	if prev != nil {
		// A concurrent publish got in between; only the newest survives.
		prev.cancel()
		go p.delete(prev)
	}

	// The track may have changed while the message was being sent.
	if !p.stillCurrent(guildID, e) {
		p.drop(guildID, e, true)
		return
	}
	go p.refreshLoop(refreshCtx, guildID, e)
}

// Refresh implements [playback.Presenter].
func (p *Presenter) Refresh(ctx context.Context, guildID string) {
	p.mu.Lock()
	e := p.active[guildID]
	p.mu.Unlock()
	if e == nil {
		return
	}
	p.edit(ctx, guildID, e)
}

// Clear implements [playback.Presenter]. Message deletion happens in the
// background so callers holding a session lock are not held up by Discord.
func (p *Presenter) Clear(guildID string, deleteMessage bool) {
	p.mu.Lock()
	e := p.active[guildID]
	delete(p.active, guildID)
	p.mu.Unlock()
	if e == nil {
		return
	}
	e.cancel()
	if deleteMessage {
		go p.delete(e)
	}
}

func (p *Presenter) refreshLoop(ctx context.Context, guildID string, e *entry) {
	for {
		t := time.NewTimer(time.Duration(p.interval.Load()))
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
		if !p.edit(ctx, guildID, e) {
			p.drop(guildID, e, false)
			return
		}
	}
}

// edit re-renders e from live state. It returns false when e no longer
// matches the session's current track.
func (p *Presenter) edit(ctx context.Context, guildID string, e *entry) bool {
	st, err := p.source.NowPlaying(guildID)
	if err != nil || st.Current == nil || st.Current.Encoded != e.encoded {
		return false
	}
	if ctx.Err() != nil {
		return true
	}
	send := p.render(ctx, st)
	embeds := send.Embeds
	components := send.Components
	edit := &discordgo.MessageEdit{
		ID:          e.messageID,
		Channel:     e.channelID,
		Embeds:      &embeds,
		Components:  &components,
		Files:       send.Files,
		Attachments: &[]*discordgo.MessageAttachment{},
	}
	if _, err := p.msg.ChannelMessageEditComplex(edit); err != nil {
		// Cosmetic; the next tick tries again.
		slog.Debug("nowplaying: edit failed", "guild_id", guildID, "message_id", e.messageID, "err", err)
	}
	return true
}

func (p *Presenter) stillCurrent(guildID string, e *entry) bool {
	st, err := p.source.NowPlaying(guildID)
	return err == nil && st.Current != nil && st.Current.Encoded == e.encoded
}

// drop forgets e if it is still the guild's entry.
func (p *Presenter) drop(guildID string, e *entry, deleteMessage bool) {
	p.mu.Lock()
	if p.active[guildID] == e {
		delete(p.active, guildID)
	}
	p.mu.Unlock()
	e.cancel()
	if deleteMessage {
		go p.delete(e)
	}
}

func (p *Presenter) delete(e *entry) {
	if err := p.msg.ChannelMessageDelete(e.channelID, e.messageID); err != nil {
		slog.Debug("nowplaying: delete failed", "message_id", e.messageID, "err", err)
	}
}

// render builds the message payload. A renderer failure degrades to the
// minimal text announcement.
func (p *Presenter) render(ctx context.Context, st playback.State) *discordgo.MessageSend {
	card, _ := CardFromState(st, p.theme)
	send := &discordgo.MessageSend{Components: Controls(st.Paused)}
	if p.renderer == nil {
		send.Embeds = []*discordgo.MessageEmbed{Embed(card, false)}
		return send
	}

	rctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	img, err := p.renderer.Render(rctx, card)
	if err != nil || len(img) == 0 {
		slog.Debug("nowplaying: card render failed, using text", "guild_id", st.GuildID, "err", err)
		send.Embeds = []*discordgo.MessageEmbed{Minimal(card)}
		return send
	}
	send.Embeds = []*discordgo.MessageEmbed{Embed(card, true)}
	send.Files = []*discordgo.File{{
		Name:        cardFilename,
		ContentType: "image/png",
		Reader:      bytes.NewReader(img),
	}}
	return send
}
