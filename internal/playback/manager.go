package playback

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/MrWong99/tempo/internal/nodepool"
	"github.com/MrWong99/tempo/internal/observe"
	"github.com/MrWong99/tempo/internal/resilience"
	"github.com/MrWong99/tempo/internal/store"
	"github.com/MrWong99/tempo/pkg/audionode"
)

// Defaults for the scheduler.
const (
	DefaultIdleTimeout   = 10 * time.Second
	DefaultVolume        = 100
	MaxVolume            = 1000
	backgroundCallBudget = 15 * time.Second
)

// Notifier posts plain text to a guild's text channel.
type Notifier interface {
	Notify(ctx context.Context, channelID, message string) error
}

// Presenter owns the "now playing" message of each guild.
type Presenter interface {
	// Publish replaces any existing message with a fresh one for the current
	// track and starts refreshing it.
	Publish(ctx context.Context, guildID string)

	// Refresh re-renders the existing message in place, if there is one.
	Refresh(ctx context.Context, guildID string)

	// Clear stops refreshing and optionally deletes the message. It must not
	// block on the refresh loop.
	Clear(guildID string, deleteMessage bool)
}

// Searcher resolves a user query into tracks.
type Searcher interface {
	Search(ctx context.Context, query string, preferPremium bool) (audionode.LoadResult, error)
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, string, string) error { return nil }

type nopPresenter struct{}

func (nopPresenter) Publish(context.Context, string) {}
func (nopPresenter) Refresh(context.Context, string) {}
func (nopPresenter) Clear(string, bool)              {}

// Option configures a [Manager].
type Option func(*Manager)

// WithNotifier sets where announcements go.
func WithNotifier(n Notifier) Option { return func(m *Manager) { m.notifier = n } }

// WithSearcher sets the search implementation. Without one, [Manager.Search]
// asks the node pool directly.
func WithSearcher(s Searcher) Option { return func(m *Manager) { m.searcher = s } }

// WithFilters replaces the built-in filter presets.
func WithFilters(fc *FilterController) Option { return func(m *Manager) { m.filters = fc } }

// WithMetrics records session metrics on met.
func WithMetrics(met *observe.Metrics) Option { return func(m *Manager) { m.metrics = met } }

// WithIdleTimeout sets how long an idle session waits before leaving.
func WithIdleTimeout(d time.Duration) Option {
	return func(m *Manager) { m.SetIdleTimeout(d) }
}

// WithDefaultVolume sets the volume applied to new players.
func WithDefaultVolume(v int) Option {
	return func(m *Manager) { m.defaultVolume = clampVolume(v) }
}

// WithJoinPolicy sets the per-cluster voice join budget.
func WithJoinPolicy(p resilience.RetryPolicy) Option {
	return func(m *Manager) { m.joinPolicy = p }
}

// Manager is the exposed surface of the playback core. Command and
// interaction handlers call it; it owns the session registry.
type Manager struct {
	pool       *nodepool.Pool
	store      store.Store
	notifier   Notifier
	presenter  Presenter
	searcher   Searcher
	filters    *FilterController
	metrics    *observe.Metrics
	joinPolicy resilience.RetryPolicy

	negotiator    *Negotiator
	registry      *Registry
	idleTimeout   atomic.Int64
	defaultVolume int
}

// NewManager wires a manager around pool and st.
func NewManager(pool *nodepool.Pool, st store.Store, opts ...Option) *Manager {
	m := &Manager{
		pool:          pool,
		store:         st,
		notifier:      nopNotifier{},
		presenter:     nopPresenter{},
		filters:       NewFilterController(),
		registry:      newRegistry(),
		defaultVolume: DefaultVolume,
	}
	m.idleTimeout.Store(int64(DefaultIdleTimeout))
	for _, o := range opts {
		o(m)
	}
	if m.metrics == nil {
		met, err := observe.NewMetrics(noop.NewMeterProvider())
		if err != nil {
			panic("playback: noop metrics: " + err.Error())
		}
		m.metrics = met
	}
	m.negotiator = NewNegotiator(pool, m.joinPolicy, m.metrics)
	return m
}

// SetPresenter installs the now-playing presenter. The presenter reads
// session state back through the manager, so it is attached after
// construction.
func (m *Manager) SetPresenter(p Presenter) {
	if p == nil {
		p = nopPresenter{}
	}
	m.presenter = p
}

// SetIdleTimeout changes the idle window for timers scheduled from now on.
func (m *Manager) SetIdleTimeout(d time.Duration) {
	if d <= 0 {
		d = DefaultIdleTimeout
	}
	m.idleTimeout.Store(int64(d))
}

// IdleTimeout returns the current idle window.
func (m *Manager) IdleTimeout() time.Duration {
	return time.Duration(m.idleTimeout.Load())
}

// Filters returns the filter controller.
func (m *Manager) Filters() *FilterController { return m.filters }

// Search resolves query, preferring the premium cluster when asked.
func (m *Manager) Search(ctx context.Context, query string, preferPremium bool) (audionode.LoadResult, error) {
	if m.searcher != nil {
		return m.searcher.Search(ctx, query, preferPremium)
	}
	return m.pool.Search(ctx, query, preferPremium), nil
}

// PrefersPremium reports whether userID's requests should be routed to the
// premium cluster. Store failures count as "no".
func (m *Manager) PrefersPremium(ctx context.Context, userID string) bool {
	if userID == "" {
		return false
	}
	paid, err := m.store.HasPaidAccess(ctx, userID)
	if err != nil {
		slog.Warn("playback: paid access lookup failed, assuming none", "user_id", userID, "err", err)
		return false
	}
	return paid
}

// keepAliveActive reports whether the guild's 24/7 mode applies. Store
// failures count as disabled.
func (m *Manager) keepAliveActive(ctx context.Context, guildID string) bool {
	ka, err := m.store.KeepAlive(ctx, guildID)
	if err != nil {
		slog.Warn("playback: keep-alive lookup failed, assuming disabled", "guild_id", guildID, "err", err)
		return false
	}
	return ka.Active()
}

// notifyLocked posts msg to the session's text channel. Failures are logged
// and dropped; announcements are cosmetic.
func (m *Manager) notifyLocked(ctx context.Context, s *Session, msg string) {
	if s.textChannelID == "" {
		return
	}
	if err := m.notifier.Notify(ctx, s.textChannelID, msg); err != nil {
		slog.Debug("playback: announcement failed", "guild_id", s.guildID, "err", err)
	}
}

// Shutdown disconnects every session.
func (m *Manager) Shutdown(ctx context.Context) {
	var guilds []string
	m.registry.Range(func(s *Session) bool {
		guilds = append(guilds, s.guildID)
		return true
	})
	for _, g := range guilds {
		if err := m.Cleanup(ctx, g, true); err != nil {
			slog.Warn("playback: cleanup on shutdown", "guild_id", g, "err", err)
		}
	}
}

func backgroundContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), backgroundCallBudget)
}

func clampVolume(v int) int {
	return min(max(v, 0), MaxVolume)
}
