package audionode

import (
	"errors"
	"fmt"
	"time"
)

// TrackInfo is the metadata a node reports for a track.
type TrackInfo struct {
	Identifier string `json:"identifier"`
	IsSeekable bool   `json:"isSeekable"`
	Author     string `json:"author"`
	Length     int64  `json:"length"`
	IsStream   bool   `json:"isStream"`
	Position   int64  `json:"position"`
	Title      string `json:"title"`
	URI        string `json:"uri,omitempty"`
	ArtworkURL string `json:"artworkUrl,omitempty"`
	ISRC       string `json:"isrc,omitempty"`
	SourceName string `json:"sourceName"`
}

// Track is a playable track as produced by [Node.Resolve]. Encoded is an
// opaque handle the node understands. RequesterID is attached by the caller
// before the track is queued; it is never sent to the node.
type Track struct {
	Encoded     string    `json:"encoded"`
	Info        TrackInfo `json:"info"`
	RequesterID string    `json:"-"`
}

// Duration returns the track length.
func (t Track) Duration() time.Duration {
	return time.Duration(t.Info.Length) * time.Millisecond
}

// WithRequester returns a copy of t attributed to userID.
func (t Track) WithRequester(userID string) Track {
	t.RequesterID = userID
	return t
}

// LoadType classifies the outcome of a resolve request.
type LoadType string

const (
	LoadTypeTrack    LoadType = "track"
	LoadTypeSearch   LoadType = "search"
	LoadTypePlaylist LoadType = "playlist"
	LoadTypeEmpty    LoadType = "empty"
	LoadTypeError    LoadType = "error"
)

// Exception describes a node-side failure.
type Exception struct {
	Message  string `json:"message"`
	Severity string `json:"severity"`
	Cause    string `json:"cause,omitempty"`
}

// Error implements error.
func (e *Exception) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Severity)
}

// LoadResult is the normalised result of a resolve request.
type LoadResult struct {
	LoadType     LoadType
	Tracks       []Track
	PlaylistName string
	Exception    *Exception
}

// ErrNoTracks is returned by [LoadResult.Validate] when a result that should
// carry tracks carries none.
var ErrNoTracks = errors.New("audionode: load result has no tracks")

// Usable reports whether the result carries at least one playable track.
func (r LoadResult) Usable() bool {
	return r.LoadType != LoadTypeError && r.LoadType != LoadTypeEmpty && len(r.Tracks) > 0
}

// Validate checks the invariant that track, search and playlist results hold
// at least one track.
func (r LoadResult) Validate() error {
	switch r.LoadType {
	case LoadTypeTrack, LoadTypeSearch, LoadTypePlaylist:
		if len(r.Tracks) == 0 {
			return fmt.Errorf("%w (load type %s)", ErrNoTracks, r.LoadType)
		}
	case LoadTypeEmpty, LoadTypeError:
	default:
		return fmt.Errorf("audionode: unknown load type %q", r.LoadType)
	}
	return nil
}

// ErrorResult builds a [LoadTypeError] result from msg.
func ErrorResult(msg string) LoadResult {
	return LoadResult{
		LoadType:  LoadTypeError,
		Exception: &Exception{Message: msg, Severity: "common"},
	}
}
