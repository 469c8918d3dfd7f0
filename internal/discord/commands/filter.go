package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/tempo/internal/discord"
	"github.com/MrWong99/tempo/internal/playback"
)

// maxChoices is Discord's limit for autocomplete results.
const maxChoices = 25

// FilterCommands holds the dependencies of /filter.
type FilterCommands struct {
	mgr *playback.Manager
}

// NewFilterCommands returns /filter backed by mgr.
func NewFilterCommands(mgr *playback.Manager) *FilterCommands {
	return &FilterCommands{mgr: mgr}
}

// Register registers /filter and its autocomplete with the router.
func (fc *FilterCommands) Register(router *discord.CommandRouter) {
	router.RegisterCommand("filter", fc.Definition(), guildOnly(fc.handleFilter))
	router.RegisterAutocomplete("filter", fc.autocomplete)
}

// Definition returns the ApplicationCommand definition for Discord.
func (fc *FilterCommands) Definition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        "filter",
		Description: "Apply an audio effect, or show the active one",
		Options: []*discordgo.ApplicationCommandOption{{
			Type:         discordgo.ApplicationCommandOptionString,
			Name:         "name",
			Description:  "Effect preset (\"off\" removes all effects)",
			Autocomplete: true,
		}},
	}
}

// handleFilter handles /filter. Without a name it reports the active preset.
func (fc *FilterCommands) handleFilter(s discord.Responder, i *discordgo.InteractionCreate) {
	name := strings.TrimSpace(stringOption(i.ApplicationCommandData().Options, "name"))
	if name == "" {
		snap, err := fc.mgr.FilterStatus(i.GuildID)
		if err != nil {
			reply(s, i, err, "")
			return
		}
		discord.RespondEphemeral(s, i, fmt.Sprintf("Active filter: **%s**.", snap.Label))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	var res playback.FilterResult
	if strings.EqualFold(name, playback.FilterOff) {
		res = fc.mgr.ClearFilters(ctx, i.GuildID)
	} else {
		res = fc.mgr.ApplyFilter(ctx, i.GuildID, name)
	}
	if !res.OK {
		discord.RespondEphemeral(s, i, res.Reason)
		return
	}
	if res.Preset.Name == playback.FilterOff {
		discord.Respond(s, i, "Filters cleared.")
		return
	}
	discord.Respond(s, i, fmt.Sprintf("Filter **%s** applied.", res.Preset.Label))
}

// autocomplete suggests presets whose name or label contains the typed text.
func (fc *FilterCommands) autocomplete(s discord.Responder, i *discordgo.InteractionCreate) {
	typed := strings.ToLower(stringOption(i.ApplicationCommandData().Options, "name"))
	var choices []*discordgo.ApplicationCommandOptionChoice
	for _, p := range fc.mgr.Filters().Presets() {
		if len(choices) == maxChoices {
			break
		}
		if typed != "" && !strings.Contains(p.Name, typed) && !strings.Contains(strings.ToLower(p.Label), typed) {
			continue
		}
		choices = append(choices, &discordgo.ApplicationCommandOptionChoice{Name: p.Label, Value: p.Name})
	}
	discord.RespondChoices(s, i, choices)
}
