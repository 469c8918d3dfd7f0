package config

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/tempo/internal/playback"
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes YAML from r, applies defaults and validates the
// result. Unknown keys are rejected so typos do not go unnoticed.
func LoadFromReader(r io.Reader) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cfg for semantic errors. All problems are collected and
// returned together.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	if cfg.Discord.Token == "" {
		errs = append(errs, errors.New("discord.token is required"))
	}

	if len(cfg.Nodes.Default) == 0 {
		errs = append(errs, errors.New("nodes.default requires at least one node"))
	}
	seen := make(map[string]string)
	errs = append(errs, validateNodes("nodes.default", cfg.Nodes.Default, seen)...)
	errs = append(errs, validateNodes("nodes.premium", cfg.Nodes.Premium, seen)...)

	p := cfg.Playback
	if p.IdleTimeout < 0 {
		errs = append(errs, fmt.Errorf("playback.idle_timeout %s must not be negative", p.IdleTimeout))
	}
	if p.NowPlayingInterval < 0 {
		errs = append(errs, fmt.Errorf("playback.now_playing_interval %s must not be negative", p.NowPlayingInterval))
	}
	if p.DefaultVolume < 0 || p.DefaultVolume > playback.MaxVolume {
		errs = append(errs, fmt.Errorf("playback.default_volume %d is out of range [0, %d]", p.DefaultVolume, playback.MaxVolume))
	}
	if p.JoinAttempts < 0 {
		errs = append(errs, fmt.Errorf("playback.join_attempts %d must not be negative", p.JoinAttempts))
	}
	if p.JoinBackoff < 0 {
		errs = append(errs, fmt.Errorf("playback.join_backoff %s must not be negative", p.JoinBackoff))
	}
	if p.JoinTimeout < 0 {
		errs = append(errs, fmt.Errorf("playback.join_timeout %s must not be negative", p.JoinTimeout))
	}
	if p.CardRendererURL != "" {
		u, err := url.Parse(p.CardRendererURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("playback.card_renderer_url %q must be an absolute http(s) URL", p.CardRendererURL))
		}
	}

	for i, e := range cfg.Search.Engines {
		if e == "" || strings.ContainsAny(e, ": ") {
			errs = append(errs, fmt.Errorf("search.engines[%d] %q must be a bare source prefix such as ytsearch", i, e))
		}
	}
	if cfg.Search.Timeout < 0 {
		errs = append(errs, fmt.Errorf("search.timeout %s must not be negative", cfg.Search.Timeout))
	}

	if (cfg.Spotify.ClientID == "") != (cfg.Spotify.ClientSecret == "") {
		errs = append(errs, errors.New("spotify.client_id and spotify.client_secret must be set together"))
	}

	names := make(map[string]bool)
	for i, f := range cfg.Filters {
		prefix := fmt.Sprintf("filters[%d]", i)
		switch {
		case f.Name == "":
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		case f.Name == playback.FilterOff:
			errs = append(errs, fmt.Errorf("%s.name %q is reserved", prefix, f.Name))
		case names[f.Name]:
			errs = append(errs, fmt.Errorf("%s.name %q is a duplicate", prefix, f.Name))
		}
		names[f.Name] = true
	}

	return errors.Join(errs...)
}

// validateNodes checks one cluster's node list. seen maps node names to the
// list they were first declared in; names must be unique across clusters
// because metrics and logs are keyed by them.
func validateNodes(list string, nodes []NodeConfig, seen map[string]string) []error {
	var errs []error
	for i, n := range nodes {
		prefix := fmt.Sprintf("%s[%d]", list, i)
		if n.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else if first, dup := seen[n.Name]; dup {
			errs = append(errs, fmt.Errorf("%s.name %q is a duplicate (first declared in %s)", prefix, n.Name, first))
		} else {
			seen[n.Name] = list
		}
		if _, _, err := net.SplitHostPort(n.Address); err != nil {
			errs = append(errs, fmt.Errorf("%s.address %q must be host:port", prefix, n.Address))
		}
	}
	return errs
}
