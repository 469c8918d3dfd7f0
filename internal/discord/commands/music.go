// Package commands implements the tempo slash commands.
package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/tempo/internal/discord"
	"github.com/MrWong99/tempo/internal/nowplaying"
	"github.com/MrWong99/tempo/internal/playback"
	"github.com/MrWong99/tempo/pkg/audionode"
)

const (
	playTimeout    = 30 * time.Second
	commandTimeout = 10 * time.Second
)

// VoiceStates looks up where a user is connected. *discordgo.State
// implements it.
type VoiceStates interface {
	VoiceState(guildID, userID string) (*discordgo.VoiceState, error)
}

// MusicCommands holds the dependencies of the playback slash commands.
type MusicCommands struct {
	mgr   *playback.Manager
	voice VoiceStates
}

// NewMusicCommands returns the playback commands backed by mgr.
func NewMusicCommands(mgr *playback.Manager, voice VoiceStates) *MusicCommands {
	return &MusicCommands{mgr: mgr, voice: voice}
}

// Register registers the playback commands with the router.
func (mc *MusicCommands) Register(router *discord.CommandRouter) {
	for _, def := range mc.Definitions() {
		var h discord.HandlerFunc
		switch def.Name {
		case "play":
			h = mc.handlePlay
		case "skip":
			h = mc.handleSkip
		case "stop":
			h = mc.handleStop
		case "pause":
			h = mc.handlePause
		case "resume":
			h = mc.handleResume
		case "nowplaying":
			h = mc.handleNowPlaying
		case "volume":
			h = mc.handleVolume
		case "loop":
			h = mc.handleLoop
		case "disconnect":
			h = mc.handleDisconnect
		}
		router.RegisterCommand(def.Name, def, guildOnly(h))
	}
}

// Definitions returns the ApplicationCommand definitions for Discord.
func (mc *MusicCommands) Definitions() []*discordgo.ApplicationCommand {
	minVolume := float64(0)
	return []*discordgo.ApplicationCommand{
		{
			Name:        "play",
			Description: "Play a song or playlist, or add it to the queue",
			Options: []*discordgo.ApplicationCommandOption{{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "query",
				Description: "Search terms or a link",
				Required:    true,
			}},
		},
		{Name: "skip", Description: "Skip the current track"},
		{Name: "stop", Description: "Stop playback and clear the queue"},
		{Name: "pause", Description: "Pause playback"},
		{Name: "resume", Description: "Resume playback"},
		{Name: "nowplaying", Description: "Show the current track"},
		{
			Name:        "volume",
			Description: "Set the playback volume",
			Options: []*discordgo.ApplicationCommandOption{{
				Type:        discordgo.ApplicationCommandOptionInteger,
				Name:        "level",
				Description: "Volume in percent (0-1000)",
				Required:    true,
				MinValue:    &minVolume,
				MaxValue:    playback.MaxVolume,
			}},
		},
		{Name: "loop", Description: "Cycle the loop mode (off, track, queue)"},
		{Name: "disconnect", Description: "Leave the voice channel"},
	}
}

// guildOnly rejects interactions outside a server.
func guildOnly(h discord.HandlerFunc) discord.HandlerFunc {
	return func(s discord.Responder, i *discordgo.InteractionCreate) {
		if i.GuildID == "" {
			discord.RespondEphemeral(s, i, "This command only works in a server.")
			return
		}
		h(s, i)
	}
}

// handlePlay handles /play.
func (mc *MusicCommands) handlePlay(s discord.Responder, i *discordgo.InteractionCreate) {
	userID := discord.UserID(i)
	vs, err := mc.voice.VoiceState(i.GuildID, userID)
	if err != nil || vs == nil || vs.ChannelID == "" {
		discord.RespondEphemeral(s, i, "You must be in a voice channel to play music.")
		return
	}
	query := strings.TrimSpace(stringOption(i.ApplicationCommandData().Options, "query"))
	if query == "" {
		discord.RespondEphemeral(s, i, "Tell me what to play.")
		return
	}

	// Searching and joining may take a few seconds.
	discord.DeferReply(s, i)

	ctx, cancel := context.WithTimeout(context.Background(), playTimeout)
	defer cancel()

	premium := mc.mgr.PrefersPremium(ctx, userID)
	res, err := mc.mgr.Search(ctx, query, premium)
	if err != nil {
		discord.EditReply(s, i, fmt.Sprintf("Search failed: %v", err))
		return
	}
	if !res.Usable() {
		if res.Exception != nil && res.Exception.Message != "" {
			discord.EditReply(s, i, fmt.Sprintf("Search failed: %s", res.Exception.Message))
			return
		}
		discord.EditReply(s, i, fmt.Sprintf("No results for **%s**.", query))
		return
	}

	tracks := res.Tracks
	if res.LoadType != audionode.LoadTypePlaylist {
		tracks = tracks[:1]
	}
	for n := range tracks {
		tracks[n] = tracks[n].WithRequester(userID)
	}

	if _, err := mc.mgr.Create(ctx, playback.CreateRequest{
		GuildID:        i.GuildID,
		VoiceChannelID: vs.ChannelID,
		TextChannelID:  i.ChannelID,
		RequesterID:    userID,
	}); err != nil {
		slog.Warn("commands: join failed", "guild_id", i.GuildID, "channel_id", vs.ChannelID, "err", err)
		discord.EditReply(s, i, "I could not join your voice channel. Please try again in a moment.")
		return
	}

	st, _ := mc.mgr.NowPlaying(i.GuildID)
	wasIdle := st.Current == nil
	n, err := mc.mgr.Enqueue(i.GuildID, tracks...)
	if err != nil {
		discord.EditReply(s, i, "The session ended before the tracks could be queued.")
		return
	}
	if err := mc.mgr.PlayIfIdle(ctx, i.GuildID); err != nil {
		discord.EditReply(s, i, "The session ended before playback could start.")
		return
	}

	switch {
	case res.LoadType == audionode.LoadTypePlaylist:
		name := res.PlaylistName
		if name == "" {
			name = "playlist"
		}
		discord.EditReply(s, i, fmt.Sprintf("Queued **%d** tracks from **%s**.", len(tracks), name))
	case wasIdle && n == 1:
		discord.EditReply(s, i, fmt.Sprintf("Playing **%s**.", tracks[0].Info.Title))
	default:
		discord.EditReply(s, i, fmt.Sprintf("Queued **%s** at position %d.", tracks[0].Info.Title, n))
	}
}

// handleSkip handles /skip.
func (mc *MusicCommands) handleSkip(s discord.Responder, i *discordgo.InteractionCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	reply(s, i, mc.mgr.Skip(ctx, i.GuildID), "Skipped.")
}

// handleStop handles /stop.
func (mc *MusicCommands) handleStop(s discord.Responder, i *discordgo.InteractionCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	reply(s, i, mc.mgr.Stop(ctx, i.GuildID), "Stopped and cleared the queue.")
}

// handlePause handles /pause.
func (mc *MusicCommands) handlePause(s discord.Responder, i *discordgo.InteractionCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	reply(s, i, mc.mgr.Pause(ctx, i.GuildID), "Paused.")
}

// handleResume handles /resume.
func (mc *MusicCommands) handleResume(s discord.Responder, i *discordgo.InteractionCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	reply(s, i, mc.mgr.Resume(ctx, i.GuildID), "Resumed.")
}

// handleNowPlaying handles /nowplaying.
func (mc *MusicCommands) handleNowPlaying(s discord.Responder, i *discordgo.InteractionCreate) {
	st, err := mc.mgr.NowPlaying(i.GuildID)
	if err != nil {
		reply(s, i, err, "")
		return
	}
	card, ok := nowplaying.CardFromState(st, "")
	if !ok {
		reply(s, i, playback.ErrNotPlaying, "")
		return
	}
	discord.RespondEmbed(s, i, nowplaying.Embed(card, false), nowplaying.Controls(st.Paused)...)
}

// handleVolume handles /volume.
func (mc *MusicCommands) handleVolume(s discord.Responder, i *discordgo.InteractionCreate) {
	level := int(intOption(i.ApplicationCommandData().Options, "level"))
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	v, err := mc.mgr.SetVolume(ctx, i.GuildID, level)
	reply(s, i, err, fmt.Sprintf("Volume set to **%d%%**.", v))
}

// handleLoop handles /loop.
func (mc *MusicCommands) handleLoop(s discord.Responder, i *discordgo.InteractionCreate) {
	mode, err := mc.mgr.CycleLoop(i.GuildID)
	reply(s, i, err, fmt.Sprintf("Loop mode: **%s**.", mode))
}

// handleDisconnect handles /disconnect.
func (mc *MusicCommands) handleDisconnect(s discord.Responder, i *discordgo.InteractionCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	reply(s, i, mc.mgr.Disconnect(ctx, i.GuildID), "Disconnected.")
}

// reply answers with ok on success and a user-facing explanation of err
// otherwise.
func reply(s discord.Responder, i *discordgo.InteractionCreate, err error, ok string) {
	switch {
	case err == nil:
		discord.Respond(s, i, ok)
	case errors.Is(err, playback.ErrNoSession):
		discord.RespondEphemeral(s, i, "I am not connected in this server.")
	case errors.Is(err, playback.ErrNotPlaying):
		discord.RespondEphemeral(s, i, "Nothing is playing.")
	case errors.Is(err, playback.ErrQueueIndex):
		discord.RespondEphemeral(s, i, "There is no track at that position.")
	default:
		slog.Warn("commands: command failed", "guild_id", i.GuildID, "err", err)
		discord.RespondError(s, i, err)
	}
}

func stringOption(opts []*discordgo.ApplicationCommandInteractionDataOption, name string) string {
	for _, o := range opts {
		if o.Name == name && o.Type == discordgo.ApplicationCommandOptionString {
			return o.StringValue()
		}
	}
	return ""
}

func intOption(opts []*discordgo.ApplicationCommandInteractionDataOption, name string) int64 {
	for _, o := range opts {
		if o.Name == name && o.Type == discordgo.ApplicationCommandOptionInteger {
			return o.IntValue()
		}
	}
	return 0
}

func boolOption(opts []*discordgo.ApplicationCommandInteractionDataOption, name string) (value, ok bool) {
	for _, o := range opts {
		if o.Name == name && o.Type == discordgo.ApplicationCommandOptionBoolean {
			return o.BoolValue(), true
		}
	}
	return false, false
}
