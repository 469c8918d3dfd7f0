package catalog

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/zmb3/spotify/v2"
)

func TestParseURL(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw      string
		wantKind string
		wantID   spotify.ID
		wantErr  bool
	}{
		{raw: "https://open.spotify.com/track/4uLU6hMCjMI75M1A2tKUQC", wantKind: "track", wantID: "4uLU6hMCjMI75M1A2tKUQC"},
		{raw: "https://open.spotify.com/track/4uLU6hMCjMI75M1A2tKUQC?si=abc", wantKind: "track", wantID: "4uLU6hMCjMI75M1A2tKUQC"},
		{raw: "https://open.spotify.com/intl-de/track/abc123", wantKind: "track", wantID: "abc123"},
		{raw: "https://open.spotify.com/album/xyz", wantKind: "album", wantID: "xyz"},
		{raw: "https://open.spotify.com/", wantErr: true},
		{raw: "https://www.youtube.com/watch?v=dQw4w9WgXcQ", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			t.Parallel()
			kind, id, err := ParseURL(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseURL error = %v, wantErr %v", err, tt.wantErr)
			}
			if kind != tt.wantKind || id != tt.wantID {
				t.Errorf("ParseURL = (%q, %q), want (%q, %q)", kind, id, tt.wantKind, tt.wantID)
			}
		})
	}
}

func TestIsCatalogURL(t *testing.T) {
	t.Parallel()
	if !IsCatalogURL("https://OPEN.spotify.com/track/x") {
		t.Error("expected host match to be case-insensitive")
	}
	if IsCatalogURL("never gonna give you up") {
		t.Error("plain text is not a catalog url")
	}
}

func TestQueriesFor(t *testing.T) {
	t.Parallel()
	track := &spotify.FullTrack{
		SimpleTrack: spotify.SimpleTrack{
			Name:    "Around the World",
			Artists: []spotify.SimpleArtist{{Name: "Daft Punk"}},
		},
		ExternalIDs: map[string]string{"isrc": "GBDUW0000059"},
	}
	got := QueriesFor(track, []string{"ytmsearch", "scsearch"})
	want := []string{
		`ytmsearch:"GBDUW0000059"`,
		"ytmsearch:Daft Punk - Around the World",
		"scsearch:Daft Punk - Around the World",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("queries mismatch (-want +got):\n%s", diff)
	}
}

func TestSpotify_Queries(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tracks/abc123" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"abc123","name":"Midnight City","artists":[{"name":"M83"}]}`))
	}))
	t.Cleanup(srv.Close)

	s := newSpotify(srv.Client(),
		WithEngines("ytsearch"),
		WithClientOptions(spotify.WithBaseURL(srv.URL+"/")),
	)

	got, err := s.Queries(context.Background(), "https://open.spotify.com/track/abc123")
	if err != nil {
		t.Fatalf("Queries: %v", err)
	}
	if diff := cmp.Diff([]string{"ytsearch:M83 - Midnight City"}, got); diff != "" {
		t.Errorf("queries mismatch (-want +got):\n%s", diff)
	}

	_, err = s.Queries(context.Background(), "https://open.spotify.com/playlist/p1")
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("expected ErrUnsupported for playlists, got %v", err)
	}
}

func TestNewSpotify_RequiresCredentials(t *testing.T) {
	t.Parallel()
	if _, err := NewSpotify(context.Background(), "", "secret"); err == nil {
		t.Error("expected error without client id")
	}
}
