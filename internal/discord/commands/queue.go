package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/tempo/internal/discord"
	"github.com/MrWong99/tempo/internal/nowplaying"
	"github.com/MrWong99/tempo/internal/playback"
	"github.com/MrWong99/tempo/pkg/audionode"
)

const (
	queuePageSize   = 10
	queuePagePrefix = "queue:page:"
)

// QueueCommands holds the dependencies of the queue slash commands.
type QueueCommands struct {
	mgr *playback.Manager
}

// NewQueueCommands returns the queue commands backed by mgr.
func NewQueueCommands(mgr *playback.Manager) *QueueCommands {
	return &QueueCommands{mgr: mgr}
}

// Register registers /queue and its page buttons with the router.
func (qc *QueueCommands) Register(router *discord.CommandRouter) {
	def := qc.Definition()
	router.RegisterCommand("queue", def, func(s discord.Responder, i *discordgo.InteractionCreate) {
		discord.RespondEphemeral(s, i, "Please use a subcommand, e.g. `/queue show`.")
	})
	router.RegisterHandler("queue/show", guildOnly(qc.handleShow))
	router.RegisterHandler("queue/shuffle", guildOnly(qc.handleShuffle))
	router.RegisterHandler("queue/remove", guildOnly(qc.handleRemove))
	router.RegisterHandler("queue/clear", guildOnly(qc.handleClear))
	router.RegisterComponentPrefix(queuePagePrefix, guildOnly(qc.handlePage))
}

// Definition returns the ApplicationCommand definition for Discord.
func (qc *QueueCommands) Definition() *discordgo.ApplicationCommand {
	minPos := float64(1)
	return &discordgo.ApplicationCommand{
		Name:        "queue",
		Description: "Inspect and edit the queue",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "show",
				Description: "Show the upcoming tracks",
				Options: []*discordgo.ApplicationCommandOption{{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "page",
					Description: "Page number",
					MinValue:    &minPos,
				}},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "shuffle",
				Description: "Shuffle the upcoming tracks",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "remove",
				Description: "Remove a track from the queue",
				Options: []*discordgo.ApplicationCommandOption{{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "position",
					Description: "Position as shown by /queue show",
					Required:    true,
					MinValue:    &minPos,
				}},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "clear",
				Description: "Remove all upcoming tracks",
			},
		},
	}
}

// handleShow handles /queue show.
func (qc *QueueCommands) handleShow(s discord.Responder, i *discordgo.InteractionCreate) {
	page := int(intOption(subcommandOptions(i), "page"))
	embed, components, err := qc.page(i.GuildID, max(page-1, 0))
	if err != nil {
		reply(s, i, err, "")
		return
	}
	discord.RespondEmbed(s, i, embed, components...)
}

// handlePage handles the previous/next buttons under a queue listing.
func (qc *QueueCommands) handlePage(s discord.Responder, i *discordgo.InteractionCreate) {
	page, err := strconv.Atoi(strings.TrimPrefix(i.MessageComponentData().CustomID, queuePagePrefix))
	if err != nil {
		discord.RespondEphemeral(s, i, "Unknown page.")
		return
	}
	embed, components, err := qc.page(i.GuildID, page)
	if err != nil {
		reply(s, i, err, "")
		return
	}
	discord.UpdateEmbed(s, i, embed, components...)
}

// page renders one page of the live queue. Out of range pages are clamped.
func (qc *QueueCommands) page(guildID string, page int) (*discordgo.MessageEmbed, []discordgo.MessageComponent, error) {
	st, err := qc.mgr.NowPlaying(guildID)
	if err != nil {
		return nil, nil, err
	}
	pages := max((len(st.Queue)+queuePageSize-1)/queuePageSize, 1)
	page = min(max(page, 0), pages-1)
	return QueueEmbed(st, page), pageButtons(page, pages), nil
}

// QueueEmbed renders page (0-based) of the session's queue.
func QueueEmbed(st playback.State, page int) *discordgo.MessageEmbed {
	var b strings.Builder
	if st.Current != nil {
		fmt.Fprintf(&b, "**Now:** %s\n\n", trackLine(*st.Current))
	}
	start := page * queuePageSize
	end := min(start+queuePageSize, len(st.Queue))
	if start >= end {
		b.WriteString("The queue is empty.")
	}
	for n := start; n < end; n++ {
		fmt.Fprintf(&b, "`%d.` %s\n", n+1, trackLine(st.Queue[n]))
	}

	pages := max((len(st.Queue)+queuePageSize-1)/queuePageSize, 1)
	return &discordgo.MessageEmbed{
		Title:       "Queue",
		Description: b.String(),
		Color:       0x1DB954,
		Footer: &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("Page %d/%d · %d tracks · Loop: %s", page+1, pages, len(st.Queue), st.Loop),
		},
	}
}

func trackLine(t audionode.Track) string {
	line := fmt.Sprintf("%s - %s", t.Info.Title, t.Info.Author)
	if !t.Info.IsStream {
		line += " (" + nowplaying.FormatDuration(t.Duration()) + ")"
	}
	if t.RequesterID != "" {
		line += " · <@" + t.RequesterID + ">"
	}
	return line
}

func pageButtons(page, pages int) []discordgo.MessageComponent {
	if pages <= 1 {
		return nil
	}
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{
				Label:    "Previous",
				Style:    discordgo.SecondaryButton,
				CustomID: queuePagePrefix + strconv.Itoa(page-1),
				Disabled: page == 0,
			},
			discordgo.Button{
				Label:    "Next",
				Style:    discordgo.SecondaryButton,
				CustomID: queuePagePrefix + strconv.Itoa(page+1),
				Disabled: page >= pages-1,
			},
		}},
	}
}

// handleShuffle handles /queue shuffle.
func (qc *QueueCommands) handleShuffle(s discord.Responder, i *discordgo.InteractionCreate) {
	if err := qc.mgr.Shuffle(i.GuildID); err != nil {
		reply(s, i, err, "")
		return
	}
	discord.Respond(s, i, "Shuffled the queue.")
}

// handleRemove handles /queue remove.
func (qc *QueueCommands) handleRemove(s discord.Responder, i *discordgo.InteractionCreate) {
	pos := int(intOption(subcommandOptions(i), "position"))
	removed, err := qc.mgr.Remove(i.GuildID, pos-1)
	if err != nil {
		reply(s, i, err, "")
		return
	}
	discord.Respond(s, i, fmt.Sprintf("Removed **%s**.", removed.Info.Title))
}

// handleClear handles /queue clear.
func (qc *QueueCommands) handleClear(s discord.Responder, i *discordgo.InteractionCreate) {
	n, err := qc.mgr.ClearQueue(i.GuildID)
	if err != nil {
		reply(s, i, err, "")
		return
	}
	discord.Respond(s, i, fmt.Sprintf("Removed %d tracks from the queue.", n))
}

// subcommandOptions returns the options of the invoked subcommand.
func subcommandOptions(i *discordgo.InteractionCreate) []*discordgo.ApplicationCommandInteractionDataOption {
	opts := i.ApplicationCommandData().Options
	if len(opts) > 0 && opts[0].Type == discordgo.ApplicationCommandOptionSubCommand {
		return opts[0].Options
	}
	return opts
}
