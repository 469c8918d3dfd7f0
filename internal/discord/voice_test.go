package discord

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/google/go-cmp/cmp"

	"github.com/MrWong99/tempo/pkg/audionode/lavalink"
)

type voiceCall struct {
	GuildID, ChannelID string
	Deaf               bool
}

type fakeVoiceSender struct {
	mu    sync.Mutex
	calls []voiceCall
	err   error
	sent  chan struct{}
}

func (f *fakeVoiceSender) ChannelVoiceJoinManual(gID, cID string, _, deaf bool) error {
	f.mu.Lock()
	f.calls = append(f.calls, voiceCall{GuildID: gID, ChannelID: cID, Deaf: deaf})
	f.mu.Unlock()
	if f.sent != nil {
		f.sent <- struct{}{}
	}
	return f.err
}

func stateUpdate(guildID, channelID, userID, sessionID string) *discordgo.VoiceStateUpdate {
	return &discordgo.VoiceStateUpdate{VoiceState: &discordgo.VoiceState{
		GuildID: guildID, ChannelID: channelID, UserID: userID, SessionID: sessionID,
	}}
}

func TestVoiceGateway_JoinCollectsCredentials(t *testing.T) {
	t.Parallel()

	for _, serverFirst := range []bool{false, true} {
		sender := &fakeVoiceSender{sent: make(chan struct{}, 1)}
		g := NewVoiceGateway(sender, func() string { return "bot" })

		type result struct {
			vs  lavalink.VoiceState
			err error
		}
		done := make(chan result, 1)
		go func() {
			vs, err := g.JoinVoice(context.Background(), "g1", "vc1", 0, true)
			done <- result{vs, err}
		}()
		<-sender.sent

		// Someone else's update and a placeholder server update are ignored.
		g.HandleVoiceStateUpdate(stateUpdate("g1", "vc1", "someone", "other-session"))
		g.HandleVoiceServerUpdate(&discordgo.VoiceServerUpdate{GuildID: "g1", Token: "early"})

		if serverFirst {
			g.HandleVoiceServerUpdate(&discordgo.VoiceServerUpdate{GuildID: "g1", Token: "tok", Endpoint: "eu.discord.media"})
			g.HandleVoiceStateUpdate(stateUpdate("g1", "vc1", "bot", "sess"))
		} else {
			g.HandleVoiceStateUpdate(stateUpdate("g1", "vc1", "bot", "sess"))
			g.HandleVoiceServerUpdate(&discordgo.VoiceServerUpdate{GuildID: "g1", Token: "tok", Endpoint: "eu.discord.media"})
		}

		select {
		case r := <-done:
			if r.err != nil {
				t.Fatalf("JoinVoice: %v", r.err)
			}
			want := lavalink.VoiceState{SessionID: "sess", Token: "tok", Endpoint: "eu.discord.media"}
			if diff := cmp.Diff(want, r.vs); diff != "" {
				t.Errorf("server first %v: voice state mismatch (-want +got):\n%s", serverFirst, diff)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("server first %v: JoinVoice did not return", serverFirst)
		}

		if diff := cmp.Diff([]voiceCall{{GuildID: "g1", ChannelID: "vc1", Deaf: true}}, sender.calls); diff != "" {
			t.Errorf("gateway calls mismatch (-want +got):\n%s", diff)
		}
	}
}

func TestVoiceGateway_JoinTimesOut(t *testing.T) {
	t.Parallel()

	g := NewVoiceGateway(&fakeVoiceSender{}, func() string { return "bot" })
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := g.JoinVoice(ctx, "g1", "vc1", 0, true)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	g.mu.Lock()
	n := len(g.pending)
	g.mu.Unlock()
	if n != 0 {
		t.Errorf("expected pending join to be dropped, got %d", n)
	}
}

func TestVoiceGateway_SendFailure(t *testing.T) {
	t.Parallel()

	g := NewVoiceGateway(&fakeVoiceSender{err: errors.New("not connected")}, func() string { return "bot" })
	if _, err := g.JoinVoice(context.Background(), "g1", "vc1", 0, true); err == nil {
		t.Fatal("expected error")
	}
}

func TestVoiceGateway_Leave(t *testing.T) {
	t.Parallel()

	sender := &fakeVoiceSender{}
	g := NewVoiceGateway(sender, func() string { return "bot" })
	if err := g.LeaveVoice(context.Background(), "g1"); err != nil {
		t.Fatalf("LeaveVoice: %v", err)
	}
	if diff := cmp.Diff([]voiceCall{{GuildID: "g1"}}, sender.calls); diff != "" {
		t.Errorf("gateway calls mismatch (-want +got):\n%s", diff)
	}
}
