// Package app wires all tempo subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Register exposes them on the Discord command router, and
// Shutdown tears everything down in order.
//
// For testing, inject mock implementations via functional options
// (WithStore, WithClusters, etc.). When an option is not provided, New
// creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/MrWong99/tempo/internal/catalog"
	"github.com/MrWong99/tempo/internal/config"
	"github.com/MrWong99/tempo/internal/discord"
	"github.com/MrWong99/tempo/internal/discord/commands"
	"github.com/MrWong99/tempo/internal/health"
	"github.com/MrWong99/tempo/internal/nodepool"
	"github.com/MrWong99/tempo/internal/nowplaying"
	"github.com/MrWong99/tempo/internal/observe"
	"github.com/MrWong99/tempo/internal/playback"
	"github.com/MrWong99/tempo/internal/resilience"
	"github.com/MrWong99/tempo/internal/search"
	"github.com/MrWong99/tempo/internal/store"
	"github.com/MrWong99/tempo/internal/store/postgres"
	"github.com/MrWong99/tempo/pkg/audionode"
	"github.com/MrWong99/tempo/pkg/audionode/lavalink"
)

// renderTimeout bounds one card image request.
const renderTimeout = 5 * time.Second

// App owns all subsystem lifetimes of the music bot.
type App struct {
	cfg *config.Config

	// Injected or built from cfg in New.
	store     store.Store
	def       audionode.Cluster
	premium   audionode.Cluster
	catalog   search.CatalogResolver
	metrics   *observe.Metrics
	gateway   lavalink.VoiceGateway
	userID    string
	messenger nowplaying.Messenger
	notifier  playback.Notifier

	pool      *nodepool.Pool
	racer     *search.Racer
	mgr       *playback.Manager
	presenter *nowplaying.Presenter

	// closers are called in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a store instead of creating one from config.
func WithStore(s store.Store) Option {
	return func(a *App) { a.store = s }
}

// WithClusters injects the audio clusters instead of dialing the configured
// Lavalink nodes. premium may be nil.
func WithClusters(def, premium audionode.Cluster) Option {
	return func(a *App) { a.def, a.premium = def, premium }
}

// WithCatalog injects a catalog resolver instead of creating the Spotify
// one from config.
func WithCatalog(c search.CatalogResolver) Option {
	return func(a *App) { a.catalog = c }
}

// WithMetrics records metrics on m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithVoiceGateway sets the gateway the Lavalink clusters join voice
// channels through, and the bot user id the nodes identify as. Required
// unless WithClusters is given.
func WithVoiceGateway(gw lavalink.VoiceGateway, userID string) Option {
	return func(a *App) { a.gateway, a.userID = gw, userID }
}

// WithMessenger enables now-playing messages sent through m.
func WithMessenger(m nowplaying.Messenger) Option {
	return func(a *App) { a.messenger = m }
}

// WithNotifier sets where playback announcements go.
func WithNotifier(n playback.Notifier) Option {
	return func(a *App) { a.notifier = n }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. Use Option functions
// to inject test doubles for any subsystem.
//
// Lavalink nodes are opened with ctx; cancelling it stops their reconnect
// loops.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Store ─────────────────────────────────────────────────────────
	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init store: %w", err)
	}

	// ── 2. Audio clusters ────────────────────────────────────────────────
	if err := a.initClusters(ctx); err != nil {
		a.runClosers()
		return nil, fmt.Errorf("app: init clusters: %w", err)
	}
	poolOpts := []nodepool.Option{nodepool.WithMetrics(a.metrics)}
	if a.premium != nil {
		poolOpts = append(poolOpts, nodepool.WithPremium(a.premium))
	}
	a.pool = nodepool.New(a.def, poolOpts...)

	// ── 3. Search ────────────────────────────────────────────────────────
	if err := a.initCatalog(ctx); err != nil {
		a.runClosers()
		return nil, fmt.Errorf("app: init catalog: %w", err)
	}
	racerOpts := []search.Option{
		search.WithEngines(cfg.Search.Engines...),
		search.WithTimeout(cfg.Search.Timeout),
		search.WithMetrics(a.metrics),
	}
	if a.catalog != nil {
		racerOpts = append(racerOpts, search.WithCatalog(a.catalog))
	}
	a.racer = search.New(a.pool, racerOpts...)

	// ── 4. Playback manager ──────────────────────────────────────────────
	mgrOpts := []playback.Option{
		playback.WithSearcher(a.racer),
		playback.WithFilters(playback.NewFilterController(cfg.Filters...)),
		playback.WithMetrics(a.metrics),
		playback.WithIdleTimeout(cfg.Playback.IdleTimeout),
		playback.WithDefaultVolume(cfg.Playback.DefaultVolume),
		playback.WithJoinPolicy(resilience.RetryPolicy{
			Attempts:       cfg.Playback.JoinAttempts,
			Backoff:        cfg.Playback.JoinBackoff,
			AttemptTimeout: cfg.Playback.JoinTimeout,
		}),
	}
	if a.notifier != nil {
		mgrOpts = append(mgrOpts, playback.WithNotifier(a.notifier))
	}
	a.mgr = playback.NewManager(a.pool, a.store, mgrOpts...)

	// ── 5. Now-playing presenter ─────────────────────────────────────────
	if a.messenger != nil {
		pOpts := []nowplaying.Option{
			nowplaying.WithInterval(cfg.Playback.NowPlayingInterval),
			nowplaying.WithTheme(cfg.Playback.CardTheme),
		}
		if cfg.Playback.CardRendererURL != "" {
			pOpts = append(pOpts, nowplaying.WithRenderer(&nowplaying.HTTPRenderer{
				URL:    cfg.Playback.CardRendererURL,
				Client: &http.Client{Timeout: renderTimeout},
			}))
		}
		a.presenter = nowplaying.New(a.mgr, a.messenger, pOpts...)
		a.mgr.SetPresenter(a.presenter)
	}

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initStore connects PostgreSQL when a DSN is configured and falls back to
// the in-memory store otherwise.
func (a *App) initStore(ctx context.Context) error {
	if a.store != nil {
		return nil
	}
	if a.cfg.Store.PostgresDSN == "" {
		slog.Warn("no store.postgres_dsn configured, favorites and playlists will not survive a restart")
		a.store = store.NewMemory()
		return nil
	}
	pg, err := postgres.New(ctx, a.cfg.Store.PostgresDSN)
	if err != nil {
		return err
	}
	a.store = pg
	a.closers = append(a.closers, func() error {
		pg.Close()
		return nil
	})
	return nil
}

// initClusters builds one Lavalink cluster per configured node list and
// starts their websocket loops.
func (a *App) initClusters(ctx context.Context) error {
	if a.def != nil {
		return nil
	}
	if a.gateway == nil {
		return errors.New("a voice gateway is required to build Lavalink clusters")
	}
	def := a.buildCluster(ctx, string(nodepool.ClusterDefault), a.cfg.Nodes.Default)
	a.def = def
	a.closers = append(a.closers, def.Close)

	if len(a.cfg.Nodes.Premium) > 0 {
		premium := a.buildCluster(ctx, string(nodepool.ClusterPremium), a.cfg.Nodes.Premium)
		a.premium = premium
		a.closers = append(a.closers, premium.Close)
	}
	return nil
}

func (a *App) buildCluster(ctx context.Context, name string, nodes []config.NodeConfig) *lavalink.Cluster {
	ln := make([]*lavalink.Node, 0, len(nodes))
	for _, n := range nodes {
		ln = append(ln, lavalink.NewNode(lavalink.NodeConfig{
			Name:     n.Name,
			Address:  n.Address,
			Password: n.Password,
			Secure:   n.Secure,
		}, a.userID))
	}
	c := lavalink.NewCluster(name, a.gateway, ln...)
	c.Open(ctx)
	slog.Info("audio cluster opened", "cluster", name, "nodes", len(ln))
	return c
}

// initCatalog enables Spotify links when credentials are configured.
func (a *App) initCatalog(ctx context.Context) error {
	if a.catalog != nil || !a.cfg.Spotify.Enabled() {
		return nil
	}
	sp, err := catalog.NewSpotify(ctx, a.cfg.Spotify.ClientID, a.cfg.Spotify.ClientSecret,
		catalog.WithEngines(a.cfg.Search.Engines...))
	if err != nil {
		return err
	}
	a.catalog = sp
	return nil
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Manager returns the playback manager.
func (a *App) Manager() *playback.Manager { return a.mgr }

// Store returns the persistence backend.
func (a *App) Store() store.Store { return a.store }

// Pool returns the node pool.
func (a *App) Pool() *nodepool.Pool { return a.pool }

// Register adds every slash command and the player controls to router.
// voice answers which channel a user is connected to; pass the session's
// *discordgo.State.
func (a *App) Register(router *discord.CommandRouter, voice commands.VoiceStates) {
	commands.NewMusicCommands(a.mgr, voice).Register(router)
	commands.NewQueueCommands(a.mgr).Register(router)
	commands.NewFilterCommands(a.mgr).Register(router)
	commands.NewSettingsCommands(a.store).Register(router)
	discord.NewInteractionRouter(a.mgr, a.store).Register(router)
}

// Checkers returns the readiness checks of the app's dependencies.
func (a *App) Checkers() []health.Checker {
	return []health.Checker{
		health.NodesChecker(a.pool),
		health.StoreChecker(a.store),
	}
}

// ApplyConfig applies the hot-reloadable part of a config change.
func (a *App) ApplyConfig(d config.ConfigDiff) {
	if d.IdleTimeoutChanged {
		a.mgr.SetIdleTimeout(d.NewIdleTimeout)
		slog.Info("idle timeout updated", "idle_timeout", d.NewIdleTimeout)
	}
	if d.NowPlayingIntervalChanged && a.presenter != nil {
		a.presenter.SetInterval(d.NewNowPlayingInterval)
		slog.Info("now-playing interval updated", "interval", d.NewNowPlayingInterval)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config sections changed that only apply after a restart", "sections", d.RestartRequired)
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown disconnects every session, then closes the nodes and the store.
// It respects the context deadline: if ctx expires before all closers
// finish, remaining closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		// Sessions first, while the nodes can still be told to leave.
		a.mgr.Shutdown(ctx)

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// runClosers releases what New opened before it failed.
func (a *App) runClosers() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			slog.Warn("closer error", "err", err)
		}
	}
}
