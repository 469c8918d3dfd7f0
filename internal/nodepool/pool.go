// Package nodepool owns the remote audio-node clusters tempo plays through.
//
// A [Pool] always has a default cluster and may have a premium one. It picks
// the cluster for new sessions, answers node-health questions and routes
// resolve requests to the first usable node of the chosen cluster. Every node
// is guarded by its own circuit breaker so that a node that keeps failing
// resolves is skipped for a while even though its websocket is still open.
package nodepool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/MrWong99/tempo/internal/observe"
	"github.com/MrWong99/tempo/internal/resilience"
	"github.com/MrWong99/tempo/pkg/audionode"
)

// ClusterType names which cluster serves a session.
type ClusterType string

const (
	ClusterDefault ClusterType = "default"
	ClusterPremium ClusterType = "premium"
)

// ErrNoUsableNode is reported when a cluster has no usable node.
var ErrNoUsableNode = errors.New("nodepool: no usable audio node")

const defaultWarnInterval = time.Minute

// Option configures a [Pool].
type Option func(*Pool)

// WithPremium registers the optional premium cluster.
func WithPremium(c audionode.Cluster) Option {
	return func(p *Pool) { p.premium = c }
}

// WithMetrics records node requests on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Pool) { p.metrics = m }
}

// WithBreakerOptions configures the per-node circuit breakers.
func WithBreakerOptions(opts ...resilience.BreakerOption) Option {
	return func(p *Pool) { p.breakerOpts = opts }
}

// WithWarnInterval sets the minimum spacing of the "premium unusable"
// warning. The first occurrence is always logged.
func WithWarnInterval(d time.Duration) Option {
	return func(p *Pool) { p.warn = rate.NewLimiter(rate.Every(d), 1) }
}

// Pool holds the default and optional premium cluster.
type Pool struct {
	def         audionode.Cluster
	premium     audionode.Cluster
	metrics     *observe.Metrics
	breakerOpts []resilience.BreakerOption
	warn        *rate.Limiter

	mu       sync.Mutex
	breakers map[string]*resilience.Breaker
}

// New creates a pool around the mandatory default cluster.
func New(def audionode.Cluster, opts ...Option) *Pool {
	p := &Pool{
		def:      def,
		warn:     rate.NewLimiter(rate.Every(defaultWarnInterval), 1),
		breakers: make(map[string]*resilience.Breaker),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Cluster returns the cluster for t. It returns nil for premium when no
// premium cluster is configured.
func (p *Pool) Cluster(t ClusterType) audionode.Cluster {
	if t == ClusterPremium {
		return p.premium
	}
	return p.def
}

// HasPremium reports whether a premium cluster is configured.
func (p *Pool) HasPremium() bool { return p.premium != nil }

// IsUsable reports whether n can take commands: either its session handshake
// completed or at least its transport is open.
func IsUsable(n audionode.Node) bool {
	return n != nil && (n.Connected() || n.TransportOpen())
}

// ClusterUsable reports whether any node of c is usable.
func ClusterUsable(c audionode.Cluster) bool {
	if c == nil {
		return false
	}
	for _, n := range c.Nodes() {
		if IsUsable(n) {
			return true
		}
	}
	return false
}

// PickCluster returns the premium cluster only when it was requested, exists
// and is usable right now. Otherwise it returns the default cluster; when
// premium was requested but unusable a rate-limited warning is logged.
func (p *Pool) PickCluster(preferPremium bool) (audionode.Cluster, ClusterType) {
	if !preferPremium {
		return p.def, ClusterDefault
	}
	if ClusterUsable(p.premium) {
		return p.premium, ClusterPremium
	}
	if p.warn.Allow() {
		slog.Warn("nodepool: premium cluster requested but unusable, using default",
			"premium_configured", p.premium != nil,
		)
	}
	return p.def, ClusterDefault
}

// Usable returns nil when the default cluster has a usable node. It backs the
// readiness probe.
func (p *Pool) Usable() error {
	if !ClusterUsable(p.def) {
		return fmt.Errorf("%w in cluster %q", ErrNoUsableNode, p.def.Name())
	}
	return nil
}

func (p *Pool) breaker(node string) *resilience.Breaker {
	p.mu.Lock()
	defer p.mu.Unlock()
	b, ok := p.breakers[node]
	if !ok {
		b = resilience.NewBreaker("node:"+node, p.breakerOpts...)
		p.breakers[node] = b
	}
	return b
}

// orderedNodes returns the usable nodes of c with the ideal node first.
func orderedNodes(c audionode.Cluster) []audionode.Node {
	var out []audionode.Node
	ideal := c.IdealNode()
	if IsUsable(ideal) {
		out = append(out, ideal)
	}
	for _, n := range c.Nodes() {
		if ideal != nil && n.Name() == ideal.Name() {
			continue
		}
		if IsUsable(n) {
			out = append(out, n)
		}
	}
	return out
}

// Search resolves query on the cluster chosen by [Pool.PickCluster]. The
// ideal node is asked first; nodes that are unusable or whose breaker is open
// are skipped and a failing node hands over to the next one. A lookup that
// fails because ctx ended does not count against the node's breaker and no
// further node is asked. It never returns an error: when no node could
// answer the result has [audionode.LoadTypeError].
func (p *Pool) Search(ctx context.Context, query string, preferPremium bool) audionode.LoadResult {
	cluster, ct := p.PickCluster(preferPremium)

	nodes := orderedNodes(cluster)
	if len(nodes) == 0 {
		return audionode.ErrorResult(ErrNoUsableNode.Error())
	}

	cands := make([]resilience.Candidate[audionode.Node], len(nodes))
	for i, n := range nodes {
		cands[i] = resilience.Candidate[audionode.Node]{
			Name:    n.Name(),
			Value:   n,
			Breaker: p.breaker(n.Name()),
		}
	}

	res, node, err := resilience.Failover(cands, func(n audionode.Node) (audionode.LoadResult, error) {
		r, err := n.Resolve(ctx, query)
		if err != nil && ctx.Err() != nil {
			return r, resilience.Canceled(err)
		}
		p.recordRequest(ctx, n.Name(), err)
		return r, err
	})
	if resilience.IsCanceled(err) {
		slog.Debug("nodepool: resolve abandoned", "cluster", string(ct), "query", query, "err", err)
		return audionode.ErrorResult(err.Error())
	}
	if err != nil {
		slog.Warn("nodepool: resolve failed on every node",
			"cluster", string(ct),
			"query", query,
			"err", err,
		)
		return audionode.ErrorResult(err.Error())
	}
	slog.Debug("nodepool: resolved",
		"cluster", string(ct),
		"node", node,
		"load_type", string(res.LoadType),
		"tracks", len(res.Tracks),
	)
	return res
}

func (p *Pool) recordRequest(ctx context.Context, node string, err error) {
	if p.metrics == nil {
		return
	}
	status := observe.StatusOK
	if err != nil {
		status = observe.StatusError
	}
	p.metrics.RecordNodeRequest(ctx, node, status)
}
