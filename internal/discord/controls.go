package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/tempo/internal/nowplaying"
	"github.com/MrWong99/tempo/internal/playback"
	"github.com/MrWong99/tempo/internal/store"
	"github.com/MrWong99/tempo/pkg/audionode"
)

const controlTimeout = 10 * time.Second

// Transport is the playback surface the control buttons drive.
// [playback.Manager] implements it.
type Transport interface {
	NowPlaying(guildID string) (playback.State, error)
	Pause(ctx context.Context, guildID string) error
	Resume(ctx context.Context, guildID string) error
	Skip(ctx context.Context, guildID string) error
	Stop(ctx context.Context, guildID string) error
	CycleLoop(guildID string) (playback.LoopMode, error)
}

// InteractionRouter handles the buttons under now-playing messages.
type InteractionRouter struct {
	transport Transport
	store     store.Store
}

// NewInteractionRouter returns a router acting on transport and writing
// favorites and playlists to st.
func NewInteractionRouter(transport Transport, st store.Store) *InteractionRouter {
	return &InteractionRouter{transport: transport, store: st}
}

// Register installs the router for every control custom id.
func (r *InteractionRouter) Register(router *CommandRouter) {
	router.RegisterComponentPrefix(nowplaying.ControlPrefix, r.HandleInteraction)
}

// HandleInteraction runs one control press. Only the requester of the current
// track may use the controls; everyone else gets a private refusal and
// nothing changes.
func (r *InteractionRouter) HandleInteraction(s Responder, i *discordgo.InteractionCreate) {
	if i.GuildID == "" {
		RespondEphemeral(s, i, "Controls only work in a server.")
		return
	}
	customID := i.MessageComponentData().CustomID
	userID := UserID(i)

	st, err := r.transport.NowPlaying(i.GuildID)
	if err != nil {
		RespondEphemeral(s, i, "Nothing is playing in this server.")
		return
	}
	if !CanControl(st, userID) {
		slog.Debug("discord: control refused", "guild_id", i.GuildID, "user_id", userID, "control", customID)
		RespondEphemeral(s, i, fmt.Sprintf("You are not allowed to use these controls. This track was requested by <@%s>.", st.Current.RequesterID))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), controlTimeout)
	defer cancel()

	msg, err := r.dispatch(ctx, customID, i.GuildID, userID, st)
	switch {
	case errors.Is(err, playback.ErrNotPlaying):
		RespondEphemeral(s, i, "Nothing is playing.")
	case errors.Is(err, playback.ErrNoSession):
		RespondEphemeral(s, i, "Nothing is playing in this server.")
	case err != nil:
		slog.Warn("discord: control failed", "guild_id", i.GuildID, "control", customID, "err", err)
		RespondError(s, i, err)
	default:
		RespondEphemeral(s, i, msg)
	}
}

func (r *InteractionRouter) dispatch(ctx context.Context, customID, guildID, userID string, st playback.State) (string, error) {
	switch customID {
	case nowplaying.ControlPause:
		return "Paused.", r.transport.Pause(ctx, guildID)
	case nowplaying.ControlResume:
		return "Resumed.", r.transport.Resume(ctx, guildID)
	case nowplaying.ControlSkip:
		return "Skipped.", r.transport.Skip(ctx, guildID)
	case nowplaying.ControlStop:
		return "Stopped and cleared the queue.", r.transport.Stop(ctx, guildID)
	case nowplaying.ControlLoop:
		mode, err := r.transport.CycleLoop(guildID)
		return fmt.Sprintf("Loop mode: **%s**.", mode), err
	case nowplaying.ControlFavorite:
		if st.Current == nil {
			return "", playback.ErrNotPlaying
		}
		if err := r.store.AddFavorite(ctx, userID, trackRef(*st.Current)); err != nil {
			return "", fmt.Errorf("save favorite: %w", err)
		}
		return fmt.Sprintf("Added **%s** to your favorites.", st.Current.Info.Title), nil
	case nowplaying.ControlPlaylist:
		if st.Current == nil {
			return "", playback.ErrNotPlaying
		}
		if err := r.store.AddToPlaylist(ctx, userID, store.LikedPlaylist, trackRef(*st.Current)); err != nil {
			return "", fmt.Errorf("save to playlist: %w", err)
		}
		return fmt.Sprintf("Added **%s** to **%s**.", st.Current.Info.Title, store.LikedPlaylist), nil
	default:
		return "Unknown control.", nil
	}
}

func trackRef(t audionode.Track) store.TrackRef {
	return store.TrackRef{
		Title:    t.Info.Title,
		Author:   t.Info.Author,
		URI:      t.Info.URI,
		LengthMs: t.Info.Length,
		Source:   t.Info.SourceName,
	}
}
