package playback

import (
	"context"
	"fmt"
	"time"

	"github.com/MrWong99/tempo/internal/nodepool"
	"github.com/MrWong99/tempo/internal/observe"
	"github.com/MrWong99/tempo/internal/resilience"
	"github.com/MrWong99/tempo/pkg/audionode"
)

// Default join budget per cluster.
const (
	DefaultJoinAttempts = 3
	DefaultJoinBackoff  = time.Second
	DefaultJoinTimeout  = 5 * time.Second
)

// JoinRequest describes a voice join.
type JoinRequest struct {
	GuildID       string
	ChannelID     string
	ShardID       int
	Deaf          bool
	PreferPremium bool
}

// Negotiator establishes voice sessions with bounded retries and a single
// premium → default fallback.
type Negotiator struct {
	pool    *nodepool.Pool
	policy  resilience.RetryPolicy
	metrics *observe.Metrics
}

// NewNegotiator returns a negotiator using policy for each cluster. Zero
// fields fall back to [DefaultJoinAttempts], [DefaultJoinBackoff] and
// [DefaultJoinTimeout]; the timeout applies to every single attempt so a
// join that never completes still leaves budget for the next one.
func NewNegotiator(pool *nodepool.Pool, policy resilience.RetryPolicy, metrics *observe.Metrics) *Negotiator {
	if policy.Attempts <= 0 {
		policy.Attempts = DefaultJoinAttempts
	}
	if policy.Backoff <= 0 {
		policy.Backoff = DefaultJoinBackoff
	}
	if policy.AttemptTimeout <= 0 {
		policy.AttemptTimeout = DefaultJoinTimeout
	}
	return &Negotiator{pool: pool, policy: policy, metrics: metrics}
}

// Join connects to req.ChannelID. The cluster comes from
// [nodepool.Pool.PickCluster]; when that is premium and its whole budget
// fails, the default cluster gets its own budget. Between attempts the
// half-joined state is released with a leave. When everything fails the
// error is a *[VoiceConnectionError] wrapping the last failure.
func (n *Negotiator) Join(ctx context.Context, req JoinRequest) (audionode.Player, nodepool.ClusterType, error) {
	ctx, span := observe.StartSpan(ctx, "voice.join")
	defer span.End()
	log := observe.Logger(ctx).With("guild_id", req.GuildID, "channel_id", req.ChannelID)

	_, first := n.pool.PickCluster(req.PreferPremium)
	order := []nodepool.ClusterType{first}
	if first == nodepool.ClusterPremium {
		order = append(order, nodepool.ClusterDefault)
	}

	var (
		total   int
		lastErr error
	)
	for _, ct := range order {
		cluster := n.pool.Cluster(ct)
		var player audionode.Player
		attempts, err := resilience.Retry(ctx, n.policy, func(ctx context.Context, attempt int) error {
			p, err := n.attempt(ctx, cluster, req)
			n.record(ctx, ct, err)
			if err != nil {
				log.Warn("playback: voice join attempt failed",
					"cluster", string(ct),
					"attempt", attempt,
					"max_attempts", n.policy.Attempts,
					"err", err,
				)
				// Leave so the next attempt does not find a stuck half-join.
				if lerr := cluster.LeaveVoiceChannel(context.WithoutCancel(ctx), req.GuildID); lerr != nil {
					log.Debug("playback: leave after failed join", "cluster", string(ct), "err", lerr)
				}
				return err
			}
			player = p
			return nil
		})
		total += attempts
		if err == nil {
			log.Info("playback: voice joined", "cluster", string(ct), "attempts", total)
			return player, ct, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		if ct == nodepool.ClusterPremium {
			log.Warn("playback: premium cluster exhausted, falling back to default", "err", err)
		}
	}
	return nil, "", &VoiceConnectionError{GuildID: req.GuildID, Attempts: total, Err: lastErr}
}

func (n *Negotiator) attempt(ctx context.Context, cluster audionode.Cluster, req JoinRequest) (audionode.Player, error) {
	if !nodepool.ClusterUsable(cluster) {
		return nil, fmt.Errorf("cluster %q: %w", cluster.Name(), nodepool.ErrNoUsableNode)
	}
	return cluster.JoinVoiceChannel(ctx, req.GuildID, req.ChannelID, req.ShardID, req.Deaf)
}

func (n *Negotiator) record(ctx context.Context, ct nodepool.ClusterType, err error) {
	if n.metrics == nil {
		return
	}
	status := observe.StatusOK
	if err != nil {
		status = observe.StatusError
	}
	n.metrics.RecordJoinAttempt(ctx, string(ct), status)
}
