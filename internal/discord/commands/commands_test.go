package commands

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/tempo/internal/discord"
	discordmock "github.com/MrWong99/tempo/internal/discord/mock"
	"github.com/MrWong99/tempo/internal/nodepool"
	"github.com/MrWong99/tempo/internal/playback"
	"github.com/MrWong99/tempo/internal/resilience"
	storemock "github.com/MrWong99/tempo/internal/store/mock"
	"github.com/MrWong99/tempo/pkg/audionode"
	audiomock "github.com/MrWong99/tempo/pkg/audionode/mock"
)

// ─── fixture ──────────────────────────────────────────────────────────────────

type voiceStates map[string]string

func (v voiceStates) VoiceState(guildID, userID string) (*discordgo.VoiceState, error) {
	ch, ok := v[userID]
	if !ok {
		return nil, discordgo.ErrStateNotFound
	}
	return &discordgo.VoiceState{GuildID: guildID, UserID: userID, ChannelID: ch}, nil
}

type env struct {
	mgr     *playback.Manager
	player  *audiomock.Player
	cluster *audiomock.Cluster
	store   *storemock.Store
	router  *discord.CommandRouter
	results map[string]audionode.LoadResult
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		player:  &audiomock.Player{Guild: "g1"},
		store:   &storemock.Store{},
		router:  discord.NewCommandRouter(),
		results: make(map[string]audionode.LoadResult),
	}
	node := &audiomock.Node{
		NodeName:        "n1",
		ConnectedResult: true,
		ResolveFunc: func(_ context.Context, q string) (audionode.LoadResult, error) {
			if r, ok := e.results[q]; ok {
				return r, nil
			}
			return audionode.LoadResult{LoadType: audionode.LoadTypeEmpty}, nil
		},
	}
	e.cluster = &audiomock.Cluster{
		ClusterName: "default",
		NodeList:    []audionode.Node{node},
		JoinResult:  e.player,
	}
	e.mgr = playback.NewManager(nodepool.New(e.cluster), e.store,
		playback.WithJoinPolicy(resilience.RetryPolicy{
			Attempts: 1,
			Backoff:  time.Millisecond,
			Sleep:    func(context.Context, time.Duration) error { return nil },
		}),
		playback.WithIdleTimeout(time.Hour),
	)
	t.Cleanup(func() { e.mgr.Shutdown(context.Background()) })

	NewMusicCommands(e.mgr, voiceStates{"u1": "vc1", "u2": "vc1"}).Register(e.router)
	NewQueueCommands(e.mgr).Register(e.router)
	NewFilterCommands(e.mgr).Register(e.router)
	NewSettingsCommands(e.store).Register(e.router)
	return e
}

func song(id string) audionode.Track {
	return audionode.Track{
		Encoded: "enc-" + id,
		Info:    audionode.TrackInfo{Title: "Song " + id, Author: "Artist", Length: 180_000},
	}
}

func (e *env) run(t *testing.T, i *discordgo.InteractionCreate) *discordmock.InteractionResponder {
	t.Helper()
	resp := &discordmock.InteractionResponder{}
	e.router.Handle(resp, i)
	return resp
}

func slash(userID, name string, opts ...*discordgo.ApplicationCommandInteractionDataOption) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Type:      discordgo.InteractionApplicationCommand,
		GuildID:   "g1",
		ChannelID: "tc1",
		Member:    &discordgo.Member{User: &discordgo.User{ID: userID}},
		Data:      discordgo.ApplicationCommandInteractionData{Name: name, Options: opts},
	}}
}

func sub(name string, opts ...*discordgo.ApplicationCommandInteractionDataOption) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{Name: name, Type: discordgo.ApplicationCommandOptionSubCommand, Options: opts}
}

func str(name, v string) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{Name: name, Type: discordgo.ApplicationCommandOptionString, Value: v}
}

func integer(name string, v int) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{Name: name, Type: discordgo.ApplicationCommandOptionInteger, Value: float64(v)}
}

func boolean(name string, v bool) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{Name: name, Type: discordgo.ApplicationCommandOptionBoolean, Value: v}
}

func content(t *testing.T, resp *discordmock.InteractionResponder) string {
	t.Helper()
	last := resp.LastResponse()
	if last == nil || last.Data == nil {
		t.Fatal("expected a response with data")
	}
	return last.Data.Content
}

func edited(t *testing.T, resp *discordmock.InteractionResponder) string {
	t.Helper()
	last := resp.LastEdit()
	if last == nil || last.Content == nil {
		t.Fatal("expected the deferred reply to be edited")
	}
	return *last.Content
}

func (e *env) play(t *testing.T, userID, query string) string {
	t.Helper()
	return edited(t, e.run(t, slash(userID, "play", str("query", query))))
}

// ─── /play ────────────────────────────────────────────────────────────────────

func TestPlay_RequiresVoiceChannel(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	resp := e.run(t, slash("stranger", "play", str("query", "anything")))

	if got := content(t, resp); !strings.Contains(got, "voice channel") {
		t.Errorf("unexpected reply %q", got)
	}
	if e.cluster.JoinCount() != 0 {
		t.Error("must not join without a voice channel")
	}
}

func TestPlay_StartsThenQueues(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.results["first"] = audionode.LoadResult{LoadType: audionode.LoadTypeSearch, Tracks: []audionode.Track{song("a"), song("x")}}
	e.results["second"] = audionode.LoadResult{LoadType: audionode.LoadTypeTrack, Tracks: []audionode.Track{song("b")}}

	if got := e.play(t, "u1", "first"); got != "Playing **Song a**." {
		t.Errorf("first play reply %q", got)
	}
	if got := e.play(t, "u2", "second"); got != "Queued **Song b** at position 1." {
		t.Errorf("second play reply %q", got)
	}

	if e.cluster.JoinCount() != 1 {
		t.Errorf("expected a single voice join, got %d", e.cluster.JoinCount())
	}
	st, err := e.mgr.NowPlaying("g1")
	if err != nil {
		t.Fatalf("NowPlaying: %v", err)
	}
	if st.Current == nil || st.Current.RequesterID != "u1" {
		t.Errorf("expected u1 to own the current track, got %+v", st.Current)
	}
	if len(st.Queue) != 1 || st.Queue[0].RequesterID != "u2" {
		t.Errorf("expected u2's track queued, got %+v", st.Queue)
	}
	if st.TextChannelID != "tc1" {
		t.Errorf("expected announcements in tc1, got %q", st.TextChannelID)
	}
}

func TestPlay_Playlist(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.results["https://example.com/list"] = audionode.LoadResult{
		LoadType:     audionode.LoadTypePlaylist,
		PlaylistName: "Mix",
		Tracks:       []audionode.Track{song("a"), song("b"), song("c")},
	}

	if got := e.play(t, "u1", "https://example.com/list"); got != "Queued **3** tracks from **Mix**." {
		t.Errorf("unexpected reply %q", got)
	}
	q, _ := e.mgr.Queue("g1")
	if len(q) != 2 {
		t.Errorf("expected 2 queued behind the first, got %d", len(q))
	}
}

func TestPlay_NoResults(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.results["broken"] = audionode.ErrorResult("age restricted")

	if got := e.play(t, "u1", "nothing"); !strings.Contains(got, "No results") {
		t.Errorf("unexpected reply %q", got)
	}
	if got := e.play(t, "u1", "broken"); !strings.Contains(got, "age restricted") {
		t.Errorf("unexpected reply %q", got)
	}
	if e.mgr.Get("g1") != nil {
		t.Error("a failed search must not create a session")
	}
}

func TestPlay_JoinFailure(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.results["q"] = audionode.LoadResult{LoadType: audionode.LoadTypeTrack, Tracks: []audionode.Track{song("a")}}
	e.cluster.JoinErr = fmt.Errorf("voice server timeout")
	e.cluster.JoinResult = nil

	if got := e.play(t, "u1", "q"); !strings.Contains(got, "could not join") {
		t.Errorf("unexpected reply %q", got)
	}
}

// ─── transport commands ───────────────────────────────────────────────────────

func TestCommands_WithoutSession(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	for _, name := range []string{"skip", "stop", "pause", "resume", "loop", "disconnect", "nowplaying"} {
		resp := e.run(t, slash("u1", name))
		if got := content(t, resp); got != "I am not connected in this server." {
			t.Errorf("/%s: unexpected reply %q", name, got)
		}
	}
}

func TestCommands_GuildOnly(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	i := slash("u1", "skip")
	i.GuildID = ""

	if got := content(t, e.run(t, i)); !strings.Contains(got, "only works in a server") {
		t.Errorf("unexpected reply %q", got)
	}
}

func TestCommands_Transport(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.results["q"] = audionode.LoadResult{LoadType: audionode.LoadTypeTrack, Tracks: []audionode.Track{song("a")}}
	e.play(t, "u1", "q")

	if got := content(t, e.run(t, slash("u1", "pause"))); got != "Paused." {
		t.Errorf("pause: %q", got)
	}
	if got := content(t, e.run(t, slash("u1", "volume", integer("level", 1500)))); got != "Volume set to **1000%**." {
		t.Errorf("volume: %q", got)
	}
	if got := content(t, e.run(t, slash("u1", "loop"))); got != "Loop mode: **track**." {
		t.Errorf("loop: %q", got)
	}

	resp := e.run(t, slash("u1", "nowplaying"))
	last := resp.LastResponse()
	if last == nil || len(last.Data.Embeds) != 1 || len(last.Data.Components) != 2 {
		t.Fatalf("nowplaying: expected embed with controls, got %+v", last)
	}

	if got := content(t, e.run(t, slash("u1", "skip"))); got != "Skipped." {
		t.Errorf("skip: %q", got)
	}
	if got := content(t, e.run(t, slash("u1", "disconnect"))); got != "Disconnected." {
		t.Errorf("disconnect: %q", got)
	}
	if e.mgr.Get("g1") != nil {
		t.Error("expected the session to be gone")
	}
	if e.cluster.LeaveCount() != 1 {
		t.Errorf("expected one voice leave, got %d", e.cluster.LeaveCount())
	}
}

// ─── /queue ───────────────────────────────────────────────────────────────────

func TestQueue_Pagination(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	tracks := make([]audionode.Track, 13)
	for n := range tracks {
		tracks[n] = song(fmt.Sprint(n))
	}
	e.results["list"] = audionode.LoadResult{LoadType: audionode.LoadTypePlaylist, Tracks: tracks}
	e.play(t, "u1", "list")

	resp := e.run(t, slash("u1", "queue", sub("show")))
	last := resp.LastResponse()
	if got := last.Data.Embeds[0].Footer.Text; !strings.HasPrefix(got, "Page 1/2 · 12 tracks") {
		t.Errorf("unexpected footer %q", got)
	}
	if len(last.Data.Components) != 1 {
		t.Fatalf("expected page buttons, got %d rows", len(last.Data.Components))
	}

	next := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Type:    discordgo.InteractionMessageComponent,
		GuildID: "g1",
		Member:  &discordgo.Member{User: &discordgo.User{ID: "u2"}},
		Data:    discordgo.MessageComponentInteractionData{CustomID: queuePagePrefix + "1"},
	}}
	resp = e.run(t, next)
	last = resp.LastResponse()
	if last.Type != discordgo.InteractionResponseUpdateMessage {
		t.Errorf("expected the listing to be updated in place, got type %v", last.Type)
	}
	if got := last.Data.Embeds[0].Description; !strings.Contains(got, "`11.` Song 11") || strings.Contains(got, "`10.`") {
		t.Errorf("unexpected second page:\n%s", got)
	}
}

func TestQueue_RemoveShuffleClear(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.results["list"] = audionode.LoadResult{LoadType: audionode.LoadTypePlaylist, Tracks: []audionode.Track{song("a"), song("b"), song("c"), song("d")}}
	e.play(t, "u1", "list")

	if got := content(t, e.run(t, slash("u1", "queue", sub("remove", integer("position", 1))))); got != "Removed **Song b**." {
		t.Errorf("remove: %q", got)
	}
	if got := content(t, e.run(t, slash("u1", "queue", sub("remove", integer("position", 9))))); !strings.Contains(got, "no track at that position") {
		t.Errorf("remove out of range: %q", got)
	}
	if got := content(t, e.run(t, slash("u1", "queue", sub("shuffle")))); got != "Shuffled the queue." {
		t.Errorf("shuffle: %q", got)
	}
	if got := content(t, e.run(t, slash("u1", "queue", sub("clear")))); got != "Removed 2 tracks from the queue." {
		t.Errorf("clear: %q", got)
	}
}

// ─── /filter ──────────────────────────────────────────────────────────────────

func TestFilter(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.results["q"] = audionode.LoadResult{LoadType: audionode.LoadTypeTrack, Tracks: []audionode.Track{song("a")}}
	e.play(t, "u1", "q")

	if got := content(t, e.run(t, slash("u1", "filter", str("name", "nightcore")))); got != "Filter **Nightcore** applied." {
		t.Errorf("apply: %q", got)
	}
	if got := content(t, e.run(t, slash("u1", "filter"))); got != "Active filter: **Nightcore**." {
		t.Errorf("status: %q", got)
	}
	if got := content(t, e.run(t, slash("u1", "filter", str("name", "warp")))); got != `Unknown filter "warp".` {
		t.Errorf("unknown: %q", got)
	}
	if got := content(t, e.run(t, slash("u1", "filter", str("name", "off")))); got != "Filters cleared." {
		t.Errorf("off: %q", got)
	}
}

func TestFilter_Autocomplete(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	i := slash("u1", "filter", str("name", "NIGHT"))
	i.Type = discordgo.InteractionApplicationCommandAutocomplete

	last := e.run(t, i).LastResponse()
	if last == nil || len(last.Data.Choices) != 1 || last.Data.Choices[0].Value != "nightcore" {
		t.Fatalf("unexpected choices %+v", last)
	}
}

// ─── /247 ─────────────────────────────────────────────────────────────────────

func TestKeepAlive(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	got := content(t, e.run(t, slash("u1", "247", boolean("enabled", true))))
	if !strings.Contains(got, "**on**") || !strings.Contains(got, "premium") {
		t.Errorf("unexpected reply %q", got)
	}
	if n := e.store.CallCount("SetKeepAlive"); n != 1 {
		t.Errorf("expected SetKeepAlive once, got %d", n)
	}

	got = content(t, e.run(t, slash("u1", "247")))
	if !strings.Contains(got, "**on**") {
		t.Errorf("status reply %q", got)
	}
	if n := e.store.CallCount("SetKeepAlive"); n != 1 {
		t.Errorf("status must not write, got %d writes", n)
	}
}
