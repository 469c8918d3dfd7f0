package config

import (
	"reflect"
	"slices"
	"time"
)

// ConfigDiff describes what changed between two configs.
// Hot-reloadable changes carry their new value; everything else is listed in
// RestartRequired so the operator can be told.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	IdleTimeoutChanged bool
	NewIdleTimeout     time.Duration

	NowPlayingIntervalChanged bool
	NewNowPlayingInterval     time.Duration

	// RestartRequired names the top-level sections that changed but only
	// take effect after a restart.
	RestartRequired []string
}

// Changed reports whether d holds any change at all.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.IdleTimeoutChanged || d.NowPlayingIntervalChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Playback.IdleTimeout != new.Playback.IdleTimeout {
		d.IdleTimeoutChanged = true
		d.NewIdleTimeout = new.Playback.IdleTimeout
	}
	if old.Playback.NowPlayingInterval != new.Playback.NowPlayingInterval {
		d.NowPlayingIntervalChanged = true
		d.NewNowPlayingInterval = new.Playback.NowPlayingInterval
	}

	if old.Server.ListenAddr != new.Server.ListenAddr || !equalTLS(old.Server.TLS, new.Server.TLS) {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if old.Discord != new.Discord {
		d.RestartRequired = append(d.RestartRequired, "discord")
	}
	if !slices.Equal(old.Nodes.Default, new.Nodes.Default) || !slices.Equal(old.Nodes.Premium, new.Nodes.Premium) {
		d.RestartRequired = append(d.RestartRequired, "nodes")
	}

	oldPlayback, newPlayback := old.Playback, new.Playback
	oldPlayback.IdleTimeout, newPlayback.IdleTimeout = 0, 0
	oldPlayback.NowPlayingInterval, newPlayback.NowPlayingInterval = 0, 0
	if oldPlayback != newPlayback {
		d.RestartRequired = append(d.RestartRequired, "playback")
	}

	if !slices.Equal(old.Search.Engines, new.Search.Engines) || old.Search.Timeout != new.Search.Timeout {
		d.RestartRequired = append(d.RestartRequired, "search")
	}
	if old.Store != new.Store {
		d.RestartRequired = append(d.RestartRequired, "store")
	}
	if old.Spotify != new.Spotify {
		d.RestartRequired = append(d.RestartRequired, "spotify")
	}
	if !reflect.DeepEqual(old.Filters, new.Filters) {
		d.RestartRequired = append(d.RestartRequired, "filters")
	}

	return d
}

func equalTLS(a, b *TLSConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
