package discord

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/google/go-cmp/cmp"

	"github.com/MrWong99/tempo/internal/discord/mock"
	"github.com/MrWong99/tempo/internal/nowplaying"
	"github.com/MrWong99/tempo/internal/playback"
	"github.com/MrWong99/tempo/internal/store"
	storemock "github.com/MrWong99/tempo/internal/store/mock"
	"github.com/MrWong99/tempo/pkg/audionode"
)

type fakeTransport struct {
	mu    sync.Mutex
	state playback.State
	err   error
	calls []string
}

func (f *fakeTransport) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return f.err
}

func (f *fakeTransport) NowPlaying(string) (playback.State, error) {
	if f.state.GuildID == "" {
		return playback.State{}, playback.ErrNoSession
	}
	return f.state, nil
}

func (f *fakeTransport) Pause(context.Context, string) error  { return f.record("pause") }
func (f *fakeTransport) Resume(context.Context, string) error { return f.record("resume") }
func (f *fakeTransport) Skip(context.Context, string) error   { return f.record("skip") }
func (f *fakeTransport) Stop(context.Context, string) error   { return f.record("stop") }
func (f *fakeTransport) CycleLoop(string) (playback.LoopMode, error) {
	return playback.LoopTrack, f.record("loop")
}

func playingFor(requester string) playback.State {
	return playback.State{
		GuildID: "g1",
		Current: &audionode.Track{
			Encoded:     "enc-a",
			Info:        audionode.TrackInfo{Title: "Song A", Author: "Artist", Length: 180_000, URI: "https://example.com/a", SourceName: "youtube"},
			RequesterID: requester,
		},
	}
}

func lastContent(t *testing.T, resp *mock.InteractionResponder) string {
	t.Helper()
	last := resp.LastResponse()
	if last == nil || last.Data == nil {
		t.Fatal("expected a response")
	}
	if last.Data.Flags != discordgo.MessageFlagsEphemeral {
		t.Errorf("expected an ephemeral response, got flags %v", last.Data.Flags)
	}
	return last.Data.Content
}

func TestInteractionRouter_OwnerDrivesTransport(t *testing.T) {
	t.Parallel()

	tests := []struct {
		control  string
		wantCall string
		wantMsg  string
	}{
		{nowplaying.ControlPause, "pause", "Paused."},
		{nowplaying.ControlResume, "resume", "Resumed."},
		{nowplaying.ControlSkip, "skip", "Skipped."},
		{nowplaying.ControlStop, "stop", "Stopped"},
		{nowplaying.ControlLoop, "loop", "**track**"},
	}
	for _, tt := range tests {
		t.Run(tt.control, func(t *testing.T) {
			t.Parallel()
			tr := &fakeTransport{state: playingFor("owner")}
			r := NewInteractionRouter(tr, &storemock.Store{})
			resp := &mock.InteractionResponder{}

			r.HandleInteraction(resp, componentInteraction("g1", "owner", tt.control))

			if diff := cmp.Diff([]string{tt.wantCall}, tr.calls); diff != "" {
				t.Errorf("calls mismatch (-want +got):\n%s", diff)
			}
			if got := lastContent(t, resp); !strings.Contains(got, tt.wantMsg) {
				t.Errorf("reply %q does not contain %q", got, tt.wantMsg)
			}
		})
	}
}

func TestInteractionRouter_OthersRefused(t *testing.T) {
	t.Parallel()

	controls := []string{
		nowplaying.ControlPause, nowplaying.ControlResume, nowplaying.ControlSkip,
		nowplaying.ControlLoop, nowplaying.ControlStop, nowplaying.ControlFavorite,
		nowplaying.ControlPlaylist,
	}
	for _, control := range controls {
		tr := &fakeTransport{state: playingFor("owner")}
		st := &storemock.Store{}
		r := NewInteractionRouter(tr, st)
		resp := &mock.InteractionResponder{}

		r.HandleInteraction(resp, componentInteraction("g1", "intruder", control))

		if len(tr.calls) != 0 {
			t.Errorf("%s: transport called by non-owner: %v", control, tr.calls)
		}
		if n := len(st.Calls()); n != 0 {
			t.Errorf("%s: store called by non-owner: %d calls", control, n)
		}
		if got := lastContent(t, resp); !strings.Contains(got, "not allowed") {
			t.Errorf("%s: unexpected reply %q", control, got)
		}
	}
}

func TestInteractionRouter_UnclaimedSession(t *testing.T) {
	t.Parallel()

	tr := &fakeTransport{state: playback.State{GuildID: "g1"}, err: playback.ErrNotPlaying}
	r := NewInteractionRouter(tr, &storemock.Store{})
	resp := &mock.InteractionResponder{}

	r.HandleInteraction(resp, componentInteraction("g1", "anyone", nowplaying.ControlSkip))

	if diff := cmp.Diff([]string{"skip"}, tr.calls); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
	if got := lastContent(t, resp); got != "Nothing is playing." {
		t.Errorf("unexpected reply %q", got)
	}
}

func TestInteractionRouter_FavoriteAndPlaylist(t *testing.T) {
	t.Parallel()

	tr := &fakeTransport{state: playingFor("owner")}
	st := &storemock.Store{}
	r := NewInteractionRouter(tr, st)
	resp := &mock.InteractionResponder{}

	r.HandleInteraction(resp, componentInteraction("g1", "owner", nowplaying.ControlFavorite))
	r.HandleInteraction(resp, componentInteraction("g1", "owner", nowplaying.ControlPlaylist))

	ref := store.TrackRef{Title: "Song A", Author: "Artist", URI: "https://example.com/a", LengthMs: 180_000, Source: "youtube"}
	want := []storemock.Call{
		{Method: "AddFavorite", Args: []any{"owner", ref}},
		{Method: "AddToPlaylist", Args: []any{"owner", store.LikedPlaylist, ref}},
	}
	if diff := cmp.Diff(want, st.Calls()); diff != "" {
		t.Errorf("store calls mismatch (-want +got):\n%s", diff)
	}
	if got := lastContent(t, resp); !strings.Contains(got, "Liked") {
		t.Errorf("unexpected reply %q", got)
	}
}

func TestInteractionRouter_StoreFailure(t *testing.T) {
	t.Parallel()

	tr := &fakeTransport{state: playingFor("owner")}
	r := NewInteractionRouter(tr, &storemock.Store{Err: errors.New("db down")})
	resp := &mock.InteractionResponder{}

	r.HandleInteraction(resp, componentInteraction("g1", "owner", nowplaying.ControlFavorite))

	if got := lastContent(t, resp); !strings.Contains(got, "db down") {
		t.Errorf("expected the failure to be reported, got %q", got)
	}
}

func TestInteractionRouter_NoSession(t *testing.T) {
	t.Parallel()

	tr := &fakeTransport{}
	r := NewInteractionRouter(tr, &storemock.Store{})
	resp := &mock.InteractionResponder{}

	r.HandleInteraction(resp, componentInteraction("g1", "u1", nowplaying.ControlPause))

	if len(tr.calls) != 0 {
		t.Errorf("unexpected calls %v", tr.calls)
	}
	if got := lastContent(t, resp); got != "Nothing is playing in this server." {
		t.Errorf("unexpected reply %q", got)
	}
}

func TestCanControl(t *testing.T) {
	t.Parallel()

	if !CanControl(playback.State{}, "u1") {
		t.Error("idle session must be unclaimed")
	}
	if !CanControl(playingFor(""), "u1") {
		t.Error("track without requester must be unclaimed")
	}
	if !CanControl(playingFor("u1"), "u1") {
		t.Error("requester must be allowed")
	}
	if CanControl(playingFor("u1"), "u2") {
		t.Error("other users must be refused")
	}
}

func TestNotifier(t *testing.T) {
	t.Parallel()

	ch := &mock.Channel{}
	n := NewNotifier(ch)
	if err := n.Notify(context.Background(), "tc1", "Queue finished."); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	sent := ch.LastSent()
	if sent.ChannelID != "tc1" || sent.Data.Content != "Queue finished." {
		t.Errorf("unexpected message %+v", sent)
	}

	ch.SendErr = errors.New("missing access")
	if err := n.Notify(context.Background(), "tc1", "x"); err == nil {
		t.Error("expected send error")
	}
}
