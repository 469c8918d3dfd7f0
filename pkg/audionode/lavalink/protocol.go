package lavalink

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/MrWong99/tempo/pkg/audionode"
)

// ── Incoming websocket messages ─────────────────────────────────────────────

// envelope is decoded first to find the op of an incoming message.
type envelope struct {
	Op      string `json:"op"`
	GuildID string `json:"guildId,omitempty"`

	// ready
	Resumed   bool   `json:"resumed,omitempty"`
	SessionID string `json:"sessionId,omitempty"`

	// playerUpdate
	State *playerState `json:"state,omitempty"`

	// event
	Type        string               `json:"type,omitempty"`
	Track       *audionode.Track     `json:"track,omitempty"`
	Reason      json.RawMessage      `json:"reason,omitempty"`
	Exception   *audionode.Exception `json:"exception,omitempty"`
	ThresholdMs int64                `json:"thresholdMs,omitempty"`
	Code        int                  `json:"code,omitempty"`
	ByRemote    bool                 `json:"byRemote,omitempty"`
}

type playerState struct {
	Time      int64 `json:"time"`
	Position  int64 `json:"position"`
	Connected bool  `json:"connected"`
	Ping      int64 `json:"ping"`
}

// Stats is the load report a node pushes periodically.
type Stats struct {
	Players        int `json:"players"`
	PlayingPlayers int `json:"playingPlayers"`
	Uptime         int `json:"uptime"`
	CPU            struct {
		Cores        int     `json:"cores"`
		SystemLoad   float64 `json:"systemLoad"`
		LavalinkLoad float64 `json:"lavalinkLoad"`
	} `json:"cpu"`
	FrameStats *struct {
		Sent    int `json:"sent"`
		Nulled  int `json:"nulled"`
		Deficit int `json:"deficit"`
	} `json:"frameStats,omitempty"`
}

// Penalty scores how loaded a node is; lower is better.
func (s Stats) Penalty() int {
	cpu := int(math.Pow(1.05, 100*s.CPU.SystemLoad)*10 - 10)
	frames := 0
	if s.FrameStats != nil && s.FrameStats.Deficit > 0 {
		frames = int(math.Pow(1.03, 500*float64(s.FrameStats.Deficit)/3000)*600 - 600)
	}
	return s.PlayingPlayers + cpu + frames
}

// toEvent converts an "event" message into a typed [audionode.Event].
func (e envelope) toEvent() (audionode.Event, error) {
	var track audionode.Track
	if e.Track != nil {
		track = *e.Track
	}
	switch e.Type {
	case "TrackStartEvent":
		return audionode.TrackStartEvent{Guild: e.GuildID, Track: track}, nil
	case "TrackEndEvent":
		var reason string
		if err := json.Unmarshal(e.Reason, &reason); err != nil {
			return nil, fmt.Errorf("lavalink: decode end reason: %w", err)
		}
		return audionode.TrackEndEvent{Guild: e.GuildID, Track: track, Reason: audionode.EndReason(reason)}, nil
	case "TrackExceptionEvent":
		ev := audionode.TrackExceptionEvent{Guild: e.GuildID, Track: track}
		if e.Exception != nil {
			ev.Exception = *e.Exception
		}
		return ev, nil
	case "TrackStuckEvent":
		return audionode.TrackStuckEvent{
			Guild:     e.GuildID,
			Track:     track,
			Threshold: time.Duration(e.ThresholdMs) * time.Millisecond,
		}, nil
	case "WebSocketClosedEvent":
		var reason string
		_ = json.Unmarshal(e.Reason, &reason)
		return audionode.WebSocketClosedEvent{
			Guild:    e.GuildID,
			Code:     e.Code,
			Reason:   reason,
			ByRemote: e.ByRemote,
		}, nil
	default:
		return nil, fmt.Errorf("lavalink: unknown event type %q", e.Type)
	}
}

// ── REST payloads ────────────────────────────────────────────────────────────

// loadResponse is the v4 /loadtracks body; Data depends on LoadType.
type loadResponse struct {
	LoadType audionode.LoadType `json:"loadType"`
	Data     json.RawMessage    `json:"data"`
}

type playlistData struct {
	Info struct {
		Name          string `json:"name"`
		SelectedTrack int    `json:"selectedTrack"`
	} `json:"info"`
	Tracks []audionode.Track `json:"tracks"`
}

// decode converts a raw load response into an [audionode.LoadResult].
func (r loadResponse) decode() (audionode.LoadResult, error) {
	res := audionode.LoadResult{LoadType: r.LoadType}
	switch r.LoadType {
	case audionode.LoadTypeTrack:
		var t audionode.Track
		if err := json.Unmarshal(r.Data, &t); err != nil {
			return res, fmt.Errorf("lavalink: decode track: %w", err)
		}
		res.Tracks = []audionode.Track{t}
	case audionode.LoadTypeSearch:
		if err := json.Unmarshal(r.Data, &res.Tracks); err != nil {
			return res, fmt.Errorf("lavalink: decode search: %w", err)
		}
	case audionode.LoadTypePlaylist:
		var p playlistData
		if err := json.Unmarshal(r.Data, &p); err != nil {
			return res, fmt.Errorf("lavalink: decode playlist: %w", err)
		}
		res.Tracks = p.Tracks
		res.PlaylistName = p.Info.Name
	case audionode.LoadTypeError:
		var ex audionode.Exception
		if err := json.Unmarshal(r.Data, &ex); err != nil {
			return res, fmt.Errorf("lavalink: decode exception: %w", err)
		}
		res.Exception = &ex
	case audionode.LoadTypeEmpty:
	default:
		return res, fmt.Errorf("lavalink: unknown load type %q", r.LoadType)
	}
	if err := res.Validate(); err != nil {
		return audionode.LoadResult{LoadType: audionode.LoadTypeEmpty}, nil
	}
	return res, nil
}

// encodedTrack is the "track" field of a player update. A nil Encoded stops
// the player.
type encodedTrack struct {
	Encoded *string `json:"encoded"`
}

type voicePayload struct {
	Token     string `json:"token"`
	Endpoint  string `json:"endpoint"`
	SessionID string `json:"sessionId"`
	ChannelID string `json:"channelId,omitempty"`
}

// playerUpdate is the body of PATCH /v4/sessions/{sid}/players/{gid}.
type playerUpdate struct {
	Track   *encodedTrack      `json:"track,omitempty"`
	Paused  *bool              `json:"paused,omitempty"`
	Volume  *int               `json:"volume,omitempty"`
	Filters *audionode.Filters `json:"filters,omitempty"`
	Voice   *voicePayload      `json:"voice,omitempty"`
}

// restError is the error body returned by the REST API.
type restError struct {
	Status  int    `json:"status"`
	Error   string `json:"error"`
	Message string `json:"message"`
	Path    string `json:"path"`
}
