package audionode

// EqualizerBand adjusts the gain of one of 15 bands (0–14). Gain ranges from
// -0.25 (muted) to 1.0; 0 leaves the band unchanged.
type EqualizerBand struct {
	Band int     `json:"band" yaml:"band"`
	Gain float64 `json:"gain" yaml:"gain"`
}

// Karaoke attempts to cancel out a frequency band, usually the vocals.
type Karaoke struct {
	Level       float64 `json:"level,omitempty" yaml:"level"`
	MonoLevel   float64 `json:"monoLevel,omitempty" yaml:"mono_level"`
	FilterBand  float64 `json:"filterBand,omitempty" yaml:"filter_band"`
	FilterWidth float64 `json:"filterWidth,omitempty" yaml:"filter_width"`
}

// Timescale changes speed, pitch and rate. 1.0 is the identity for each field.
type Timescale struct {
	Speed float64 `json:"speed,omitempty" yaml:"speed"`
	Pitch float64 `json:"pitch,omitempty" yaml:"pitch"`
	Rate  float64 `json:"rate,omitempty" yaml:"rate"`
}

// Oscillation is shared by tremolo (volume) and vibrato (pitch).
type Oscillation struct {
	Frequency float64 `json:"frequency,omitempty" yaml:"frequency"`
	Depth     float64 `json:"depth,omitempty" yaml:"depth"`
}

// Rotation pans audio around the listener ("8D audio").
type Rotation struct {
	RotationHz float64 `json:"rotationHz,omitempty" yaml:"rotation_hz"`
}

// LowPass suppresses higher frequencies.
type LowPass struct {
	Smoothing float64 `json:"smoothing,omitempty" yaml:"smoothing"`
}

// ChannelMix mixes left and right channels.
type ChannelMix struct {
	LeftToLeft   float64 `json:"leftToLeft" yaml:"left_to_left"`
	LeftToRight  float64 `json:"leftToRight" yaml:"left_to_right"`
	RightToLeft  float64 `json:"rightToLeft" yaml:"right_to_left"`
	RightToRight float64 `json:"rightToRight" yaml:"right_to_right"`
}

// Filters is the full filter graph submitted to a player. Nil fields are
// omitted, which the node interprets as "filter disabled".
type Filters struct {
	Volume     *float64        `json:"volume,omitempty" yaml:"volume"`
	Equalizer  []EqualizerBand `json:"equalizer,omitempty" yaml:"equalizer"`
	Karaoke    *Karaoke        `json:"karaoke,omitempty" yaml:"karaoke"`
	Timescale  *Timescale      `json:"timescale,omitempty" yaml:"timescale"`
	Tremolo    *Oscillation    `json:"tremolo,omitempty" yaml:"tremolo"`
	Vibrato    *Oscillation    `json:"vibrato,omitempty" yaml:"vibrato"`
	Rotation   *Rotation       `json:"rotation,omitempty" yaml:"rotation"`
	LowPass    *LowPass        `json:"lowPass,omitempty" yaml:"low_pass"`
	ChannelMix *ChannelMix     `json:"channelMix,omitempty" yaml:"channel_mix"`
}

// IsZero reports whether no filter is set.
func (f Filters) IsZero() bool {
	return f.Volume == nil && len(f.Equalizer) == 0 && f.Karaoke == nil &&
		f.Timescale == nil && f.Tremolo == nil && f.Vibrato == nil &&
		f.Rotation == nil && f.LowPass == nil && f.ChannelMix == nil
}
