package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/tempo/internal/discord"
	"github.com/MrWong99/tempo/internal/store"
)

// SettingsCommands holds the dependencies of the guild settings commands.
type SettingsCommands struct {
	store store.Store
}

// NewSettingsCommands returns the settings commands writing to st.
func NewSettingsCommands(st store.Store) *SettingsCommands {
	return &SettingsCommands{store: st}
}

// Register registers /247 with the router.
func (sc *SettingsCommands) Register(router *discord.CommandRouter) {
	router.RegisterCommand("247", sc.Definition(), guildOnly(sc.handleKeepAlive))
}

// Definition returns the ApplicationCommand definition for Discord.
func (sc *SettingsCommands) Definition() *discordgo.ApplicationCommand {
	manageGuild := int64(discordgo.PermissionManageServer)
	return &discordgo.ApplicationCommand{
		Name:                     "247",
		Description:              "Stay in the voice channel when the queue runs out (premium)",
		DefaultMemberPermissions: &manageGuild,
		Options: []*discordgo.ApplicationCommandOption{{
			Type:        discordgo.ApplicationCommandOptionBoolean,
			Name:        "enabled",
			Description: "Turn 24/7 mode on or off; omit to show the current setting",
		}},
	}
}

// handleKeepAlive handles /247.
func (sc *SettingsCommands) handleKeepAlive(s discord.Responder, i *discordgo.InteractionCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	enabled, set := boolOption(i.ApplicationCommandData().Options, "enabled")
	if set {
		if err := sc.store.SetKeepAlive(ctx, i.GuildID, enabled); err != nil {
			slog.Warn("commands: set keep-alive failed", "guild_id", i.GuildID, "err", err)
			discord.RespondError(s, i, err)
			return
		}
	}

	ka, err := sc.store.KeepAlive(ctx, i.GuildID)
	if err != nil {
		slog.Warn("commands: read keep-alive failed", "guild_id", i.GuildID, "err", err)
		discord.RespondError(s, i, err)
		return
	}
	state := "off"
	if ka.Enabled {
		state = "on"
	}
	msg := fmt.Sprintf("24/7 mode is **%s**.", state)
	if ka.Enabled && !ka.PremiumActive {
		msg += " It takes effect once this server has an active premium subscription."
	}
	discord.RespondEphemeral(s, i, msg)
}
