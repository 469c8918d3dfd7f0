package nowplaying

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const maxCardBytes = 8 << 20

// HTTPRenderer asks an external card service to draw the image. The service
// receives the card as JSON and answers with a PNG.
type HTTPRenderer struct {
	URL    string
	Client *http.Client
}

type renderRequest struct {
	Title      string `json:"title"`
	Author     string `json:"author"`
	ArtworkURL string `json:"artwork_url,omitempty"`
	Source     string `json:"source,omitempty"`
	PositionMs int64  `json:"position_ms"`
	LengthMs   int64  `json:"length_ms"`
	IsStream   bool   `json:"is_stream"`
	Volume     int    `json:"volume"`
	Loop       string `json:"loop"`
	Paused     bool   `json:"paused"`
	Filter     string `json:"filter,omitempty"`
	Theme      string `json:"theme"`
}

// Render implements [Renderer].
func (r *HTTPRenderer) Render(ctx context.Context, c Card) ([]byte, error) {
	body, err := json.Marshal(renderRequest{
		Title:      c.Title,
		Author:     c.Author,
		ArtworkURL: c.ArtworkURL,
		Source:     c.Source,
		PositionMs: c.Position.Milliseconds(),
		LengthMs:   c.Length.Milliseconds(),
		IsStream:   c.IsStream,
		Volume:     c.Volume,
		Loop:       c.Loop,
		Paused:     c.Paused,
		Filter:     c.Filter,
		Theme:      c.Theme,
	})
	if err != nil {
		return nil, fmt.Errorf("nowplaying: encode card: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("nowplaying: build render request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "image/png")

	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("nowplaying: render: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("nowplaying: render: status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "image/") {
		return nil, fmt.Errorf("nowplaying: render: unexpected content type %q", ct)
	}
	img, err := io.ReadAll(io.LimitReader(resp.Body, maxCardBytes))
	if err != nil {
		return nil, fmt.Errorf("nowplaying: read card: %w", err)
	}
	return img, nil
}
