package nowplaying

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/tempo/internal/playback"
)

// Control custom ids carried by the buttons under a now-playing message.
const (
	ControlPrefix   = "player:"
	ControlPause    = ControlPrefix + "pause"
	ControlResume   = ControlPrefix + "resume"
	ControlSkip     = ControlPrefix + "skip"
	ControlLoop     = ControlPrefix + "loop"
	ControlStop     = ControlPrefix + "stop"
	ControlFavorite = ControlPrefix + "favorite"
	ControlPlaylist = ControlPrefix + "playlist"
)

const (
	embedColor   = 0x1DB954
	cardFilename = "nowplaying.png"
	progressBars = 14
)

// Card is what a renderer draws.
type Card struct {
	Title       string
	Author      string
	URI         string
	ArtworkURL  string
	Source      string
	Position    time.Duration
	Length      time.Duration
	IsStream    bool
	Volume      int
	Loop        string
	Paused      bool
	Filter      string
	RequesterID string
	Queued      int
	Theme       string
}

// CardFromState builds the card for the session's current track. ok is false
// when nothing is playing.
func CardFromState(st playback.State, theme string) (card Card, ok bool) {
	if st.Current == nil {
		return Card{}, false
	}
	info := st.Current.Info
	filter := ""
	if st.Filter.Name != "" && st.Filter.Name != playback.FilterOff {
		filter = st.Filter.Label
	}
	return Card{
		Title:       info.Title,
		Author:      info.Author,
		URI:         info.URI,
		ArtworkURL:  info.ArtworkURL,
		Source:      info.SourceName,
		Position:    st.Position,
		Length:      st.Current.Duration(),
		IsStream:    info.IsStream,
		Volume:      st.Volume,
		Loop:        st.Loop.String(),
		Paused:      st.Paused,
		Filter:      filter,
		RequesterID: st.Current.RequesterID,
		Queued:      len(st.Queue),
		Theme:       theme,
	}, true
}

// Embed renders c as a Discord embed. When image is set the embed shows the
// attached card instead of the artwork thumbnail.
func Embed(c Card, image bool) *discordgo.MessageEmbed {
	title := c.Title
	if c.URI != "" {
		title = fmt.Sprintf("[%s](%s)", c.Title, c.URI)
	}
	e := &discordgo.MessageEmbed{
		Title:       "Now Playing",
		Description: fmt.Sprintf("%s\nby **%s**", title, c.Author),
		Color:       embedColor,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Progress", Value: Progress(c.Position, c.Length, c.IsStream)},
			{Name: "Volume", Value: fmt.Sprintf("%d%%", c.Volume), Inline: true},
			{Name: "Loop", Value: c.Loop, Inline: true},
		},
		Footer: &discordgo.MessageEmbedFooter{Text: footer(c)},
	}
	if c.Filter != "" {
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{Name: "Filter", Value: c.Filter, Inline: true})
	}
	if c.RequesterID != "" {
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{Name: "Requested by", Value: "<@" + c.RequesterID + ">", Inline: true})
	}
	switch {
	case image:
		e.Image = &discordgo.MessageEmbedImage{URL: "attachment://" + cardFilename}
	case c.ArtworkURL != "":
		e.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: c.ArtworkURL}
	}
	return e
}

// Minimal is the text-only fallback announcement.
func Minimal(c Card) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Description: fmt.Sprintf("Now playing **%s** by %s", c.Title, c.Author),
		Color:       embedColor,
	}
}

func footer(c Card) string {
	var parts []string
	if c.Paused {
		parts = append(parts, "Paused")
	}
	switch c.Queued {
	case 0:
		parts = append(parts, "Queue empty")
	case 1:
		parts = append(parts, "1 track queued")
	default:
		parts = append(parts, fmt.Sprintf("%d tracks queued", c.Queued))
	}
	if c.Source != "" {
		parts = append(parts, c.Source)
	}
	return strings.Join(parts, " · ")
}

// Controls returns the transport buttons for the current state.
func Controls(paused bool) []discordgo.MessageComponent {
	toggle := discordgo.Button{Label: "Pause", Style: discordgo.SecondaryButton, CustomID: ControlPause}
	if paused {
		toggle = discordgo.Button{Label: "Resume", Style: discordgo.SuccessButton, CustomID: ControlResume}
	}
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			toggle,
			discordgo.Button{Label: "Skip", Style: discordgo.PrimaryButton, CustomID: ControlSkip},
			discordgo.Button{Label: "Loop", Style: discordgo.SecondaryButton, CustomID: ControlLoop},
			discordgo.Button{Label: "Stop", Style: discordgo.DangerButton, CustomID: ControlStop},
		}},
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{Label: "Favorite", Style: discordgo.SecondaryButton, CustomID: ControlFavorite},
			discordgo.Button{Label: "Add to Liked", Style: discordgo.SecondaryButton, CustomID: ControlPlaylist},
		}},
	}
}

// Progress draws "1:23 ▬▬🔘▬▬ 3:45". Streams show LIVE.
func Progress(pos, length time.Duration, stream bool) string {
	if stream || length <= 0 {
		return "🔴 LIVE"
	}
	pos = min(max(pos, 0), length)
	knob := int(float64(pos) / float64(length) * progressBars)
	knob = min(knob, progressBars-1)
	bar := strings.Repeat("▬", knob) + "🔘" + strings.Repeat("▬", progressBars-1-knob)
	return fmt.Sprintf("%s %s %s", FormatDuration(pos), bar, FormatDuration(length))
}

// FormatDuration prints m:ss, or h:mm:ss from one hour on.
func FormatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d / time.Hour)
	m := int(d%time.Hour) / int(time.Minute)
	s := int(d%time.Minute) / int(time.Second)
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
