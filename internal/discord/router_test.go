package discord

import (
	"testing"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/tempo/internal/discord/mock"
)

func commandInteraction(name string, opts ...*discordgo.ApplicationCommandInteractionDataOption) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Type: discordgo.InteractionApplicationCommand,
		Data: discordgo.ApplicationCommandInteractionData{Name: name, Options: opts},
	}}
}

func componentInteraction(guildID, userID, customID string) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Type:    discordgo.InteractionMessageComponent,
		GuildID: guildID,
		Member:  &discordgo.Member{User: &discordgo.User{ID: userID}},
		Data:    discordgo.MessageComponentInteractionData{CustomID: customID},
	}}
}

func TestCommandRouter_ApplicationCommands_Dedup(t *testing.T) {
	t.Parallel()

	r := NewCommandRouter()
	cmd := &discordgo.ApplicationCommand{Name: "queue"}
	r.RegisterCommand("queue/show", cmd, func(Responder, *discordgo.InteractionCreate) {})
	r.RegisterCommand("queue/clear", cmd, func(Responder, *discordgo.InteractionCreate) {})
	r.RegisterHandler("queue/shuffle", func(Responder, *discordgo.InteractionCreate) {})

	cmds := r.ApplicationCommands()
	if len(cmds) != 1 || cmds[0].Name != "queue" {
		t.Fatalf("expected the single queue definition, got %v", cmds)
	}
}

func TestCommandRouter_DispatchesSubcommands(t *testing.T) {
	t.Parallel()

	r := NewCommandRouter()
	var got string
	r.RegisterCommand("skip", &discordgo.ApplicationCommand{Name: "skip"}, func(Responder, *discordgo.InteractionCreate) { got = "skip" })
	r.RegisterHandler("queue/clear", func(Responder, *discordgo.InteractionCreate) { got = "queue/clear" })

	resp := &mock.InteractionResponder{}
	r.Handle(resp, commandInteraction("queue", &discordgo.ApplicationCommandInteractionDataOption{
		Name: "clear",
		Type: discordgo.ApplicationCommandOptionSubCommand,
	}))
	if got != "queue/clear" {
		t.Errorf("dispatched to %q, want queue/clear", got)
	}
	r.Handle(resp, commandInteraction("skip"))
	if got != "skip" {
		t.Errorf("dispatched to %q, want skip", got)
	}
	if len(resp.Responses) != 0 {
		t.Errorf("router must not answer handled commands, got %d responses", len(resp.Responses))
	}
}

func TestCommandRouter_Unknown(t *testing.T) {
	t.Parallel()

	r := NewCommandRouter()
	resp := &mock.InteractionResponder{}

	r.Handle(resp, commandInteraction("nope"))
	r.Handle(resp, componentInteraction("g1", "u1", "nope:1"))

	if len(resp.Responses) != 2 {
		t.Fatalf("expected 2 responses, got %d", len(resp.Responses))
	}
	for _, got := range resp.Responses {
		if got.Data.Flags != discordgo.MessageFlagsEphemeral {
			t.Errorf("expected ephemeral reply, got flags %v", got.Data.Flags)
		}
	}
}

func TestCommandRouter_ComponentPrefix(t *testing.T) {
	t.Parallel()

	r := NewCommandRouter()
	var exact, prefixed int
	r.RegisterComponent("player:skip", func(Responder, *discordgo.InteractionCreate) { exact++ })
	r.RegisterComponentPrefix("player:", func(Responder, *discordgo.InteractionCreate) { prefixed++ })

	resp := &mock.InteractionResponder{}
	r.Handle(resp, componentInteraction("g1", "u1", "player:skip"))
	r.Handle(resp, componentInteraction("g1", "u1", "player:stop"))

	if exact != 1 || prefixed != 1 {
		t.Errorf("exact=%d prefixed=%d, want 1 and 1", exact, prefixed)
	}
}

func TestCommandRouter_AutocompleteFallback(t *testing.T) {
	t.Parallel()

	r := NewCommandRouter()
	resp := &mock.InteractionResponder{}
	i := commandInteraction("filter")
	i.Type = discordgo.InteractionApplicationCommandAutocomplete

	r.Handle(resp, i)

	last := resp.LastResponse()
	if last == nil || last.Type != discordgo.InteractionApplicationCommandAutocompleteResult {
		t.Fatalf("expected empty autocomplete result, got %+v", last)
	}
}

func TestUserID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		i    *discordgo.InteractionCreate
		want string
	}{
		{
			name: "guild member",
			i:    &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{Member: &discordgo.Member{User: &discordgo.User{ID: "m1"}}}},
			want: "m1",
		},
		{
			name: "direct message",
			i:    &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{User: &discordgo.User{ID: "u1"}}},
			want: "u1",
		},
		{
			name: "nobody",
			i:    &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{}},
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := UserID(tt.i); got != tt.want {
				t.Errorf("UserID() = %q, want %q", got, tt.want)
			}
		})
	}
}
