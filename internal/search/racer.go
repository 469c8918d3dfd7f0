// Package search resolves user queries into tracks by racing several
// candidate lookups and keeping the first one that yields something
// playable.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/tempo/internal/catalog"
	"github.com/MrWong99/tempo/internal/observe"
	"github.com/MrWong99/tempo/pkg/audionode"
)

// DefaultTimeout bounds a whole race.
const DefaultTimeout = 10 * time.Second

// ErrEmptyQuery is returned for blank queries.
var ErrEmptyQuery = errors.New("search: empty query")

// errWon stops the remaining candidates once one succeeded.
var errWon = errors.New("search: candidate won")

// Backend resolves one identifier. [nodepool.Pool] implements it.
type Backend interface {
	Search(ctx context.Context, identifier string, preferPremium bool) audionode.LoadResult
}

// CatalogResolver maps a catalog link to ordered search queries.
type CatalogResolver interface {
	Queries(ctx context.Context, rawURL string) ([]string, error)
}

// Option configures a [Racer].
type Option func(*Racer)

// WithCatalog enables catalog link resolution.
func WithCatalog(c CatalogResolver) Option { return func(r *Racer) { r.catalog = c } }

// WithEngines sets the engine prefixes plain text is searched with.
func WithEngines(engines ...string) Option {
	return func(r *Racer) {
		if len(engines) > 0 {
			r.engines = engines
		}
	}
}

// WithTimeout bounds each race.
func WithTimeout(d time.Duration) Option {
	return func(r *Racer) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithMetrics records per-candidate latency.
func WithMetrics(m *observe.Metrics) Option { return func(r *Racer) { r.metrics = m } }

// Racer fans a query out to several candidates.
type Racer struct {
	backend Backend
	catalog CatalogResolver
	engines []string
	timeout time.Duration
	metrics *observe.Metrics
}

// New returns a racer over backend.
func New(backend Backend, opts ...Option) *Racer {
	r := &Racer{
		backend: backend,
		engines: catalog.DefaultEngines,
		timeout: DefaultTimeout,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Candidates returns the identifiers a query expands to, in preference
// order. Links resolve as-is, catalog links through the catalog resolver
// when one is configured, anything with an engine prefix as-is and plain
// text once per engine.
func (r *Racer) Candidates(ctx context.Context, query string) ([]string, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return nil, ErrEmptyQuery
	}
	if isURL(q) {
		if r.catalog != nil && catalog.IsCatalogURL(q) {
			qs, err := r.catalog.Queries(ctx, q)
			if err == nil && len(qs) > 0 {
				return qs, nil
			}
			// The node may still understand the link through a plugin.
			slog.Warn("search: catalog lookup failed, resolving link directly", "url", q, "err", err)
		}
		return []string{q}, nil
	}
	if hasEnginePrefix(q) {
		return []string{q}, nil
	}
	out := make([]string, 0, len(r.engines))
	for _, e := range r.engines {
		out = append(out, e+":"+q)
	}
	return out, nil
}

// Search races every candidate of query and returns the first usable result.
// Slower candidates are cancelled and their results discarded. When nothing
// is usable the result of the last candidate in preference order is
// returned. The error is non-nil only for blank queries or a cancelled ctx.
func (r *Racer) Search(ctx context.Context, query string, preferPremium bool) (audionode.LoadResult, error) {
	ctx, span := observe.StartSpan(ctx, "search.race")
	defer span.End()

	cands, err := r.Candidates(ctx, query)
	if err != nil {
		return audionode.LoadResult{}, err
	}
	span.SetAttributes(attribute.Int("search.candidates", len(cands)))

	raceCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var (
		mu      sync.Mutex
		won     bool
		winner  audionode.LoadResult
		results = make([]audionode.LoadResult, len(cands))
	)
	g, gctx := errgroup.WithContext(raceCtx)
	for i, cand := range cands {
		g.Go(func() error {
			start := time.Now()
			res := r.backend.Search(gctx, cand, preferPremium)
			r.record(ctx, cand, time.Since(start))

			mu.Lock()
			defer mu.Unlock()
			if won || gctx.Err() != nil {
				// Late answers after the race was decided or timed out.
				return nil
			}
			results[i] = res
			if res.Usable() {
				won = true
				winner = res
				return errWon
			}
			return nil
		})
	}
	_ = g.Wait()

	if won {
		return winner, nil
	}
	if err := ctx.Err(); err != nil {
		return audionode.LoadResult{}, fmt.Errorf("search: %w", err)
	}
	last := results[len(results)-1]
	if last.LoadType == "" {
		last = audionode.LoadResult{LoadType: audionode.LoadTypeEmpty}
	}
	observe.Logger(ctx).Debug("search: no candidate produced tracks",
		"query", query,
		"candidates", len(cands),
		"load_type", string(last.LoadType),
	)
	return last, nil
}

func (r *Racer) record(ctx context.Context, cand string, d time.Duration) {
	if r.metrics == nil {
		return
	}
	r.metrics.RecordSearch(ctx, engineOf(cand), d)
}

func isURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// hasEnginePrefix matches identifiers like "ytsearch:foo" or "spsearch:bar".
func hasEnginePrefix(s string) bool {
	prefix, _, ok := strings.Cut(s, ":")
	return ok && strings.HasSuffix(prefix, "search") && !strings.ContainsAny(prefix, " /")
}

func engineOf(cand string) string {
	if isURL(cand) {
		return "url"
	}
	if hasEnginePrefix(cand) {
		prefix, _, _ := strings.Cut(cand, ":")
		return prefix
	}
	return "other"
}
