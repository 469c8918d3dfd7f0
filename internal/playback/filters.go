package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/tempo/pkg/audionode"
)

// FilterOff is the name of the implicit "no filters" preset.
const FilterOff = "off"

// Preset is a named filter graph.
type Preset struct {
	Name    string            `yaml:"name"`
	Label   string            `yaml:"label"`
	Filters audionode.Filters `yaml:"filters"`
}

// suggestThreshold is the Jaro-Winkler similarity a preset needs to be
// offered as a correction for a mistyped name.
const suggestThreshold = 0.85

// UnknownFilterError is reported for a preset name that is not registered.
type UnknownFilterError struct {
	Name string

	// Suggestion is the closest registered preset, if any is close enough.
	Suggestion *Preset
}

func (e *UnknownFilterError) Error() string {
	return fmt.Sprintf("playback: unknown filter %q", e.Name)
}

// FilterResult is the structured outcome of a filter change. Failures are
// values, not errors, so handlers can show Reason to the user directly.
type FilterResult struct {
	OK     bool
	Reason string
	Err    error
	Preset Preset
}

func ptr[T any](v T) *T { return &v }

// BuiltinPresets returns the presets every deployment has.
func BuiltinPresets() []Preset {
	return []Preset{
		{Name: FilterOff, Label: "Off"},
		{Name: "bassboost", Label: "Bass Boost", Filters: audionode.Filters{
			Equalizer: []audionode.EqualizerBand{
				{Band: 0, Gain: 0.25}, {Band: 1, Gain: 0.2}, {Band: 2, Gain: 0.15},
				{Band: 3, Gain: 0.1}, {Band: 4, Gain: 0.05},
			},
		}},
		{Name: "nightcore", Label: "Nightcore", Filters: audionode.Filters{
			Timescale: &audionode.Timescale{Speed: 1.2, Pitch: 1.2, Rate: 1.0},
		}},
		{Name: "vaporwave", Label: "Vaporwave", Filters: audionode.Filters{
			Timescale: &audionode.Timescale{Speed: 0.85, Pitch: 0.8, Rate: 1.0},
			Equalizer: []audionode.EqualizerBand{{Band: 0, Gain: 0.3}, {Band: 1, Gain: 0.3}},
		}},
		{Name: "karaoke", Label: "Karaoke", Filters: audionode.Filters{
			Karaoke: &audionode.Karaoke{Level: 1, MonoLevel: 1, FilterBand: 220, FilterWidth: 100},
		}},
		{Name: "8d", Label: "8D", Filters: audionode.Filters{
			Rotation: &audionode.Rotation{RotationHz: 0.2},
		}},
		{Name: "tremolo", Label: "Tremolo", Filters: audionode.Filters{
			Tremolo: &audionode.Oscillation{Frequency: 4, Depth: 0.75},
		}},
		{Name: "vibrato", Label: "Vibrato", Filters: audionode.Filters{
			Vibrato: &audionode.Oscillation{Frequency: 4, Depth: 0.75},
		}},
		{Name: "soft", Label: "Soft", Filters: audionode.Filters{
			LowPass: &audionode.LowPass{Smoothing: 20},
		}},
		{Name: "pop", Label: "Pop", Filters: audionode.Filters{
			Volume: ptr(1.0),
			Equalizer: []audionode.EqualizerBand{
				{Band: 0, Gain: -0.02}, {Band: 1, Gain: -0.01}, {Band: 2, Gain: 0.08},
				{Band: 3, Gain: 0.1}, {Band: 4, Gain: 0.15}, {Band: 5, Gain: 0.1},
				{Band: 6, Gain: 0.03}, {Band: 7, Gain: -0.02}, {Band: 8, Gain: -0.035},
				{Band: 9, Gain: -0.05}, {Band: 10, Gain: -0.05}, {Band: 11, Gain: -0.05},
				{Band: 12, Gain: -0.05}, {Band: 13, Gain: -0.05}, {Band: 14, Gain: -0.05},
			},
		}},
	}
}

// FilterController holds the registered presets. Names are matched
// case-insensitively. It is immutable after construction.
type FilterController struct {
	presets map[string]Preset
	order   []string
}

// NewFilterController registers the built-in presets followed by extra.
// An extra preset with a built-in name replaces it; "off" cannot be
// replaced.
func NewFilterController(extra ...Preset) *FilterController {
	fc := &FilterController{presets: make(map[string]Preset)}
	for _, p := range slices.Concat(BuiltinPresets(), extra) {
		key := strings.ToLower(strings.TrimSpace(p.Name))
		if key == "" {
			continue
		}
		if key == FilterOff && len(fc.order) > 0 {
			continue
		}
		p.Name = key
		if p.Label == "" {
			p.Label = p.Name
		}
		if _, ok := fc.presets[key]; !ok {
			fc.order = append(fc.order, key)
		}
		fc.presets[key] = p
	}
	return fc
}

// Lookup returns the preset called name.
func (fc *FilterController) Lookup(name string) (Preset, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	p, ok := fc.presets[key]
	if !ok {
		return Preset{}, &UnknownFilterError{Name: name, Suggestion: fc.closest(key)}
	}
	return p, nil
}

// closest returns the preset whose name or label is most similar to key, or
// nil when none reaches suggestThreshold.
func (fc *FilterController) closest(key string) *Preset {
	if key == "" {
		return nil
	}
	var (
		best  *Preset
		score = suggestThreshold
	)
	for _, k := range fc.order {
		p := fc.presets[k]
		s := max(
			matchr.JaroWinkler(key, p.Name, false),
			matchr.JaroWinkler(key, strings.ToLower(p.Label), false),
		)
		if s >= score {
			best, score = &p, s
		}
	}
	return best
}

// Presets lists the presets in registration order.
func (fc *FilterController) Presets() []Preset {
	out := make([]Preset, 0, len(fc.order))
	for _, k := range fc.order {
		out = append(out, fc.presets[k])
	}
	return out
}

// ApplyFilter submits the named preset to the guild's player. On success the
// session's filter snapshot is updated and the now-playing message is
// refreshed; an unknown name or a rejected submission leaves the snapshot
// untouched.
func (m *Manager) ApplyFilter(ctx context.Context, guildID, name string) FilterResult {
	preset, err := m.filters.Lookup(name)
	if err != nil {
		reason := fmt.Sprintf("Unknown filter %q.", name)
		if ufe := (*UnknownFilterError)(nil); errors.As(err, &ufe) && ufe.Suggestion != nil {
			reason += fmt.Sprintf(" Did you mean **%s**?", ufe.Suggestion.Label)
		}
		return FilterResult{Reason: reason, Err: err}
	}

	var playing bool
	err = m.withSession(guildID, func(s *Session) error {
		var err error
		if preset.Name == FilterOff {
			err = s.player.ClearFilters(ctx)
		} else {
			err = s.player.SetFilters(ctx, preset.Filters)
		}
		if err != nil {
			return err
		}
		s.filter = FilterSnapshot{Name: preset.Name, Label: preset.Label, Filters: preset.Filters}
		playing = s.current != nil
		return nil
	})
	switch {
	case errors.Is(err, ErrNoSession):
		return FilterResult{Reason: "Nothing is playing in this server.", Err: err}
	case err != nil:
		slog.Warn("playback: filter rejected", "guild_id", guildID, "filter", preset.Name, "err", err)
		return FilterResult{Reason: "The audio node rejected the filter.", Err: fmt.Errorf("playback: apply filter: %w", err)}
	}
	if playing {
		// Best-effort: the card only shows the filter label.
		m.presenter.Refresh(ctx, guildID)
	}
	return FilterResult{OK: true, Preset: preset}
}

// ClearFilters resets the guild to the "off" preset.
func (m *Manager) ClearFilters(ctx context.Context, guildID string) FilterResult {
	return m.ApplyFilter(ctx, guildID, FilterOff)
}

// FilterStatus returns the last applied preset. A session that never changed
// filters reports "off".
func (m *Manager) FilterStatus(guildID string) (FilterSnapshot, error) {
	var snap FilterSnapshot
	err := m.withSession(guildID, func(s *Session) error {
		snap = s.filter
		return nil
	})
	if err == nil && snap.Name == "" {
		snap = FilterSnapshot{Name: FilterOff, Label: "Off"}
	}
	return snap, err
}
