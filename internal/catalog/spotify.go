// Package catalog turns music-catalog links into search queries the audio
// nodes can answer. Only Spotify track links are understood; everything else
// is left to the nodes.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/zmb3/spotify/v2"
	"golang.org/x/oauth2/clientcredentials"
)

const spotifyTokenURL = "https://accounts.spotify.com/api/token"

var (
	// ErrNotCatalogURL is returned for links that are not catalog links.
	ErrNotCatalogURL = errors.New("catalog: not a catalog url")

	// ErrUnsupported is returned for catalog links of a kind that cannot be
	// mapped to a single track (albums, playlists, artists).
	ErrUnsupported = errors.New("catalog: unsupported link kind")
)

// DefaultEngines are the search prefixes queries are generated for, in order.
var DefaultEngines = []string{"ytmsearch", "ytsearch", "scsearch"}

// IsCatalogURL reports whether raw points at open.spotify.com.
func IsCatalogURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Hostname(), "open.spotify.com")
}

// ParseURL splits a Spotify link into its kind ("track", "album", …) and id.
// Locale segments like /intl-de/ are skipped.
func ParseURL(raw string) (kind string, id spotify.ID, err error) {
	if !IsCatalogURL(raw) {
		return "", "", ErrNotCatalogURL
	}
	u, _ := url.Parse(strings.TrimSpace(raw))
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) > 0 && strings.HasPrefix(parts[0], "intl-") {
		parts = parts[1:]
	}
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("catalog: malformed spotify url %q", raw)
	}
	return parts[0], spotify.ID(parts[1]), nil
}

// Option configures a [Spotify] resolver.
type Option func(*Spotify)

// WithEngines sets the search prefixes, in preference order.
func WithEngines(engines ...string) Option {
	return func(s *Spotify) {
		if len(engines) > 0 {
			s.engines = engines
		}
	}
}

// WithClientOptions passes options to the underlying spotify client.
func WithClientOptions(opts ...spotify.ClientOption) Option {
	return func(s *Spotify) { s.clientOpts = append(s.clientOpts, opts...) }
}

// Spotify resolves Spotify track links through the Web API using the client
// credentials flow.
type Spotify struct {
	client     *spotify.Client
	engines    []string
	clientOpts []spotify.ClientOption
}

// NewSpotify returns a resolver authenticated with the app credentials. The
// token is fetched lazily on first use and refreshed by the oauth2 client.
func NewSpotify(ctx context.Context, clientID, clientSecret string, opts ...Option) (*Spotify, error) {
	if clientID == "" || clientSecret == "" {
		return nil, errors.New("catalog: spotify client id and secret are required")
	}
	cc := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     spotifyTokenURL,
	}
	return newSpotify(cc.Client(ctx), opts...), nil
}

func newSpotify(httpClient *http.Client, opts ...Option) *Spotify {
	s := &Spotify{engines: DefaultEngines}
	for _, o := range opts {
		o(s)
	}
	s.client = spotify.New(httpClient, s.clientOpts...)
	return s
}

// Queries returns the search queries to race for a Spotify track link.
func (s *Spotify) Queries(ctx context.Context, raw string) ([]string, error) {
	kind, id, err := ParseURL(raw)
	if err != nil {
		return nil, err
	}
	if kind != "track" {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, kind)
	}
	track, err := s.client.GetTrack(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("catalog: get track %s: %w", id, err)
	}
	return QueriesFor(track, s.engines), nil
}

// QueriesFor builds one "engine:artist - title" query per engine. A track
// with an ISRC gets an exact-match query on the first engine up front.
func QueriesFor(t *spotify.FullTrack, engines []string) []string {
	artists := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		artists = append(artists, a.Name)
	}
	terms := t.Name
	if len(artists) > 0 {
		terms = strings.Join(artists, ", ") + " - " + t.Name
	}

	var out []string
	if isrc := t.ExternalIDs["isrc"]; isrc != "" && len(engines) > 0 {
		out = append(out, fmt.Sprintf("%s:\"%s\"", engines[0], isrc))
	}
	for _, e := range engines {
		out = append(out, e+":"+terms)
	}
	return out
}
