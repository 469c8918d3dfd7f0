package playback

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/MrWong99/tempo/pkg/audionode"
	"github.com/MrWong99/tempo/pkg/audionode/mock"
)

func queuedEncoded(t *testing.T, f *fixture) []string {
	t.Helper()
	q, err := f.mgr.Queue("g1")
	if err != nil {
		t.Fatalf("Queue: %v", err)
	}
	out := make([]string, 0, len(q))
	for _, tr := range q {
		out = append(out, tr.Encoded)
	}
	return out
}

func TestEvents_NaturalEndFollowsLoopMode(t *testing.T) {
	tests := []struct {
		name       string
		cycles     int
		wantPlayed []string
		wantQueue  []string
	}{
		{name: "off drops the track", cycles: 0, wantPlayed: []string{"enc-a", "enc-b"}, wantQueue: []string{}},
		{name: "track replays it first", cycles: 1, wantPlayed: []string{"enc-a", "enc-a"}, wantQueue: []string{"enc-b"}},
		{name: "queue appends it", cycles: 2, wantPlayed: []string{"enc-a", "enc-b"}, wantQueue: []string{"enc-a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			ctx := context.Background()
			f.create(t)
			for range tt.cycles {
				f.mgr.CycleLoop("g1")
			}
			f.mgr.Enqueue("g1", track("a"), track("b"))
			f.mgr.PlayIfIdle(ctx, "g1")

			f.player.Emit(audionode.TrackEndEvent{Guild: "g1", Track: track("a"), Reason: audionode.EndReasonFinished})

			if diff := cmp.Diff(tt.wantPlayed, f.player.Played); diff != "" {
				t.Errorf("played mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantQueue, queuedEncoded(t, f)); diff != "" {
				t.Errorf("queue mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEvents_SkipNeverRequeues(t *testing.T) {
	for _, cycles := range []int{0, 1, 2} {
		f := newFixture(t, nil)
		ctx := context.Background()
		f.create(t)
		for range cycles {
			f.mgr.CycleLoop("g1")
		}
		f.mgr.Enqueue("g1", track("a"))
		f.mgr.PlayIfIdle(ctx, "g1")

		if err := f.mgr.Skip(ctx, "g1"); err != nil {
			t.Fatalf("Skip: %v", err)
		}
		// Even a "finished" reason racing the stop must not loop.
		f.player.Emit(audionode.TrackEndEvent{Guild: "g1", Track: track("a"), Reason: audionode.EndReasonFinished})

		if got := f.player.PlayedCount(); got != 1 {
			t.Errorf("loop cycles %d: expected 1 play, got %d", cycles, got)
		}
		if q := queuedEncoded(t, f); len(q) != 0 {
			t.Errorf("loop cycles %d: expected empty queue, got %v", cycles, q)
		}
	}
}

func TestEvents_ExceptionAdvancesOnce(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.create(t)
	f.mgr.Enqueue("g1", track("a"), track("b"), track("c"))
	f.mgr.PlayIfIdle(ctx, "g1")

	f.player.Emit(audionode.TrackExceptionEvent{
		Guild:     "g1",
		Track:     track("a"),
		Exception: audionode.Exception{Message: "video unavailable", Severity: "common"},
	})
	// The node follows an exception with an end event for the same track.
	f.player.Emit(audionode.TrackEndEvent{Guild: "g1", Track: track("a"), Reason: audionode.EndReasonLoadFailed})

	if diff := cmp.Diff([]string{"enc-a", "enc-b"}, f.player.Played); diff != "" {
		t.Errorf("played mismatch (-want +got):\n%s", diff)
	}
	if !f.notes.contains("video unavailable") {
		t.Error("expected the failure reason to be announced")
	}
	if f.mgr.Get("g1") == nil {
		t.Error("track failure must not end the session")
	}
}

func TestEvents_StuckAdvances(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.create(t)
	f.mgr.Enqueue("g1", track("a"), track("b"))
	f.mgr.PlayIfIdle(ctx, "g1")
	f.mgr.Pause(ctx, "g1")

	f.player.Emit(audionode.TrackStuckEvent{Guild: "g1", Track: track("a"), Threshold: 10 * time.Second})

	st, _ := f.mgr.NowPlaying("g1")
	if st.Current == nil || st.Current.Encoded != "enc-b" {
		t.Fatalf("expected enc-b to be current, got %+v", st.Current)
	}
	if st.Paused {
		t.Error("expected pause state to be reset")
	}
	if !f.notes.contains("no audio for 10s") {
		t.Error("expected stuck threshold in announcement")
	}
}

func TestEvents_StaleEndIgnored(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.create(t)
	f.mgr.Enqueue("g1", track("a"), track("b"))
	f.mgr.PlayIfIdle(ctx, "g1")

	f.player.Emit(audionode.TrackEndEvent{Guild: "g1", Track: track("old"), Reason: audionode.EndReasonFinished})

	if got := f.player.PlayedCount(); got != 1 {
		t.Errorf("expected stale end to be ignored, got %d plays", got)
	}
}

func TestEvents_StartPublishes(t *testing.T) {
	f := newFixture(t, nil)
	f.create(t)

	f.player.Emit(audionode.TrackStartEvent{Guild: "g1", Track: track("a")})
	if published, _ := f.pres.counts(); published != 0 {
		t.Errorf("expected no publish without current track, got %d", published)
	}

	f.mgr.Enqueue("g1", track("a"))
	f.mgr.PlayIfIdle(context.Background(), "g1")
	f.player.Emit(audionode.TrackStartEvent{Guild: "g1", Track: track("a")})
	if published, _ := f.pres.counts(); published != 1 {
		t.Errorf("expected 1 publish, got %d", published)
	}
}

func TestEvents_ManualDisconnectConsumed(t *testing.T) {
	f := newFixture(t, nil)
	s := f.create(t)

	if err := f.mgr.Disconnect(context.Background(), "g1"); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	f.player.Emit(audionode.WebSocketClosedEvent{Guild: "g1", Code: 4014, Reason: "disconnected", ByRemote: true})

	if got := f.player.DisconnectCount(); got != 1 {
		t.Errorf("expected 1 player disconnect, got %d", got)
	}
	if got := f.def.LeaveCount(); got != 1 {
		t.Errorf("expected 1 voice leave, got %d", got)
	}
	s.mu.Lock()
	flag := s.manualDisconnect
	s.mu.Unlock()
	if flag {
		t.Error("expected manualDisconnect to be consumed")
	}
	if f.notes.contains("Disconnected from the voice channel") {
		t.Error("deliberate disconnect must not be reported as a drop")
	}
}

func TestEvents_UnexpectedCloseTearsDown(t *testing.T) {
	f := newFixture(t, nil)
	f.create(t)
	f.mgr.Enqueue("g1", track("a"))
	f.mgr.PlayIfIdle(context.Background(), "g1")

	f.player.Emit(audionode.WebSocketClosedEvent{Guild: "g1", Code: 4006, Reason: "session invalid", ByRemote: true})

	if f.mgr.Get("g1") != nil {
		t.Fatal("expected session to be removed")
	}
	if got := f.player.DisconnectCount(); got != 1 {
		t.Errorf("expected player disconnect, got %d", got)
	}
	if got := f.def.LeaveCount(); got != 0 {
		t.Errorf("expected no voice leave after remote close, got %d", got)
	}
	if !f.notes.contains("Disconnected from the voice channel") {
		t.Error("expected drop announcement")
	}
}

func TestEvents_StalePlayerIgnored(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.create(t)
	if err := f.mgr.Disconnect(ctx, "g1"); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}

	fresh := &mock.Player{Guild: "g1"}
	f.def.JoinResult = fresh
	f.create(t)
	f.mgr.Enqueue("g1", track("a"))
	f.mgr.PlayIfIdle(ctx, "g1")

	f.player.Emit(audionode.TrackEndEvent{Guild: "g1", Track: track("a"), Reason: audionode.EndReasonFinished})
	f.player.Emit(audionode.WebSocketClosedEvent{Guild: "g1", Code: 4006})

	if f.mgr.Get("g1") == nil {
		t.Fatal("events from the old player tore down the new session")
	}
	if diff := cmp.Diff([]string{"enc-a"}, fresh.Played); diff != "" {
		t.Errorf("played mismatch (-want +got):\n%s", diff)
	}
}
