// Package config provides the configuration schema, loader and file watcher
// for the tempo music bot.
package config

import (
	"time"

	"github.com/MrWong99/tempo/internal/playback"
)

// LogLevel controls log verbosity for the tempo server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Defaults applied by [ApplyDefaults] to unset fields.
const (
	DefaultListenAddr         = ":8080"
	DefaultIdleTimeout        = 10 * time.Second
	DefaultNowPlayingInterval = 8 * time.Second
	DefaultVolume             = 100
	DefaultJoinAttempts       = 3
	DefaultJoinBackoff        = time.Second
	DefaultJoinTimeout        = 5 * time.Second
	DefaultSearchTimeout      = 10 * time.Second
)

// DefaultEngines are the search prefixes tried when search.engines is empty.
var DefaultEngines = []string{"ytmsearch", "ytsearch", "scsearch"}

// Config is the root configuration structure for tempo.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server   ServerConfig      `yaml:"server"`
	Discord  DiscordConfig     `yaml:"discord"`
	Nodes    NodesConfig       `yaml:"nodes"`
	Playback PlaybackConfig    `yaml:"playback"`
	Search   SearchConfig      `yaml:"search"`
	Store    StoreConfig       `yaml:"store"`
	Spotify  SpotifyConfig     `yaml:"spotify"`
	Filters  []playback.Preset `yaml:"filters"`
}

// ServerConfig holds network and logging settings for the tempo server.
type ServerConfig struct {
	// ListenAddr is the TCP address of the health and metrics endpoints.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Hot-reloadable.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// DiscordConfig holds the bot credentials.
type DiscordConfig struct {
	Token string `yaml:"token"`

	// GuildID scopes slash command registration to a single guild, which
	// makes them show up instantly during development.
	GuildID string `yaml:"guild_id"`
}

// NodesConfig lists the audio nodes of the two clusters.
type NodesConfig struct {
	// Default nodes serve every guild. At least one is required.
	Default []NodeConfig `yaml:"default"`

	// Premium nodes serve sessions created by premium users. Optional.
	Premium []NodeConfig `yaml:"premium"`
}

// NodeConfig describes one Lavalink server.
type NodeConfig struct {
	Name     string `yaml:"name"`
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	Secure   bool   `yaml:"secure"`
}

// PlaybackConfig tunes the session orchestrator.
type PlaybackConfig struct {
	// IdleTimeout is how long a session lingers with nothing playing before
	// it disconnects. Hot-reloadable.
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// NowPlayingInterval is the refresh period of the now-playing card.
	// Hot-reloadable.
	NowPlayingInterval time.Duration `yaml:"now_playing_interval"`

	// DefaultVolume is the volume new sessions start at (0-1000).
	DefaultVolume int `yaml:"default_volume"`

	JoinAttempts int           `yaml:"join_attempts"`
	JoinBackoff  time.Duration `yaml:"join_backoff"`

	// JoinTimeout bounds a single voice join attempt. An attempt that times
	// out counts against join_attempts like any other failure.
	JoinTimeout time.Duration `yaml:"join_timeout"`

	// CardRendererURL points at the image service drawing now-playing
	// cards. Empty falls back to plain embeds.
	CardRendererURL string `yaml:"card_renderer_url"`
	CardTheme       string `yaml:"card_theme"`
}

// SearchConfig configures the search racer.
type SearchConfig struct {
	// Engines are the source prefixes raced against each other, in order of
	// preference (e.g. "ytmsearch").
	Engines []string      `yaml:"engines"`
	Timeout time.Duration `yaml:"timeout"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	// PostgresDSN enables the PostgreSQL store. Empty keeps everything in
	// memory, which loses favorites and playlists on restart.
	PostgresDSN string `yaml:"postgres_dsn"`
}

// SpotifyConfig holds the client credentials of the Spotify catalog
// resolver. Both fields must be set together; empty disables Spotify links.
type SpotifyConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

// Enabled reports whether Spotify credentials are configured.
func (s SpotifyConfig) Enabled() bool {
	return s.ClientID != "" && s.ClientSecret != ""
}

// ApplyDefaults fills unset fields of cfg with their defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	p := &cfg.Playback
	if p.IdleTimeout == 0 {
		p.IdleTimeout = DefaultIdleTimeout
	}
	if p.NowPlayingInterval == 0 {
		p.NowPlayingInterval = DefaultNowPlayingInterval
	}
	if p.DefaultVolume == 0 {
		p.DefaultVolume = DefaultVolume
	}
	if p.JoinAttempts == 0 {
		p.JoinAttempts = DefaultJoinAttempts
	}
	if p.JoinBackoff == 0 {
		p.JoinBackoff = DefaultJoinBackoff
	}
	if p.JoinTimeout == 0 {
		p.JoinTimeout = DefaultJoinTimeout
	}
	if len(cfg.Search.Engines) == 0 {
		cfg.Search.Engines = append([]string(nil), DefaultEngines...)
	}
	if cfg.Search.Timeout == 0 {
		cfg.Search.Timeout = DefaultSearchTimeout
	}
}
