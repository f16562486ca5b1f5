// Package discovery implements the two-phase fan-out probe coordinator
// described in spec.md §4.D, and the ServicesQueue that collects its
// results (spec.md §4.C).
package discovery

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/linkerd/ejb-locate/internal/authcache"
	"github.com/linkerd/ejb-locate/internal/filter"
	"github.com/linkerd/ejb-locate/internal/registry"
	"github.com/linkerd/ejb-locate/internal/telemetry"
	"github.com/linkerd/ejb-locate/internal/transport"
	"github.com/linkerd/ejb-locate/pkg/traceutil"
)

// Config tunes the engine's fan-out behavior.
type Config struct {
	// MaxConnectedClusterNodes bounds, per cluster, how many nodes are
	// probed during step 3 of discovery.
	MaxConnectedClusterNodes int
	// QueueCapacity bounds the ServicesQueue buffer.
	QueueCapacity int
	// MaxConcurrentProbes bounds the number of probe goroutines allowed
	// to run at once across a single discovery attempt.
	MaxConcurrentProbes int
}

// DefaultConfig returns sane defaults matching the teacher's
// conservative-fan-out style.
func DefaultConfig() Config {
	return Config{
		MaxConnectedClusterNodes: 5,
		QueueCapacity:            64,
		MaxConcurrentProbes:      16,
	}
}

// Engine is the DiscoveryEngine of spec.md §4.D.
type Engine struct {
	cfg Config

	registry *registry.Registry
	auth     *authcache.Cache

	provider      transport.Provider
	endpoint      transport.Endpoint
	authenticator transport.Authenticator

	// configuredEndpoints are the static discovery endpoints supplied at
	// construction time (spec.md §4.D step 2).
	configuredEndpoints []*url.URL

	log *log.Entry
}

// NewEngine builds a DiscoveryEngine over reg, consulting auth for
// cluster-effective authentication URIs and issuing probes through
// provider/endpoint/authenticator.
func NewEngine(
	cfg Config,
	reg *registry.Registry,
	auth *authcache.Cache,
	provider transport.Provider,
	endpoint transport.Endpoint,
	authenticator transport.Authenticator,
	configuredEndpoints []*url.URL,
	logger *log.Entry,
) *Engine {
	if logger == nil {
		logger = log.WithField("component", "discovery-engine")
	}
	return &Engine{
		cfg:                 cfg,
		registry:            reg,
		auth:                auth,
		provider:            provider,
		endpoint:            endpoint,
		authenticator:       authenticator,
		configuredEndpoints: configuredEndpoints,
		log:                 logger,
	}
}

// Discover issues a fan-out probe for spec and returns a ServicesQueue
// the caller drains. The queue is closed (result.complete()) exactly
// once, after every issued probe has terminated (spec.md §4.D, §8
// "Completion-once").
func (e *Engine) Discover(ctx context.Context, serviceType string, spec filter.Spec, trace *traceutil.Sink) *ServicesQueue {
	queue := NewServicesQueue(e.cfg.QueueCapacity)

	if serviceType != filter.ServiceTypeEJB {
		queue.Close()
		return queue
	}

	attempt := &discoveryAttempt{
		engine: e,
		queue:  queue,
		spec:   spec,
		trace:  trace,
	}
	attempt.outstanding.Store(1)

	go attempt.run(ctx)

	return queue
}

// discoveryAttempt holds the per-call mutable state of a single
// Discover invocation: the reference-counted outstanding-probe
// counter, the two-phase flag, and the registered cancellers.
type discoveryAttempt struct {
	engine *Engine
	queue  *ServicesQueue
	spec   filter.Spec
	trace  *traceutil.Sink

	outstanding atomic.Int64
	phase2      atomic.Bool

	cancellersMu sync.Mutex
	cancellers   []context.CancelFunc

	group *errgroup.Group
}

func (a *discoveryAttempt) run(ctx context.Context) {
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(a.engine.cfg.MaxConcurrentProbes)
	a.group = group

	configured := a.engine.configuredEndpoints
	anyConfigured := len(configured) > 0
	allFailed := true

	for _, ep := range configured {
		if a.engine.registry.Failed().Contains(ep.String()) {
			continue
		}
		allFailed = false
		a.issueProbe(gctx, ep.String(), "")
	}

	for cluster, nodes := range a.engine.registry.ClusterMembership() {
		budget := a.engine.cfg.MaxConnectedClusterNodes
		for _, node := range nodes {
			if budget <= 0 {
				break
			}
			if a.issueClusterNodeProbe(gctx, cluster, node) {
				budget--
			}
		}
	}

	if anyConfigured && allFailed {
		a.trace.Tracef("all %d configured endpoints failed, retrying regardless of failed set", len(configured))
		for _, ep := range configured {
			a.issueProbe(gctx, ep.String(), "")
		}
	}

	a.countDown(ctx)

	_ = group.Wait()
}

// issueClusterNodeProbe issues (at most) one probe for node within
// cluster, returning true if a probe was issued (so the caller can
// decrement its per-cluster budget).
func (a *discoveryAttempt) issueClusterNodeProbe(ctx context.Context, cluster, node string) bool {
	ni, ok := a.engine.registry.Get(node)
	if !ok {
		return false
	}
	for scheme, table := range ni.ClusterInfo(cluster).AddressTables() {
		for _, entry := range table.Entries() {
			ones, _ := entry.Range.Mask.Size()
			src := a.engine.provider.SourceAddress(nil)
			if ones != 0 && (src == nil || !entry.Range.Contains(src)) {
				continue
			}
			uri := buildURI(scheme, entry.Addr)
			if a.engine.registry.Failed().Contains(uri) {
				continue
			}
			a.issueProbe(ctx, uri, cluster)
			return true
		}
	}
	return false
}

// buildURI constructs a URI string for a cluster-derived endpoint per
// spec.md §6.
func buildURI(scheme string, addr registry.InetSocketAddress) string {
	return fmt.Sprintf("%s://%s", scheme, addr.HostPort())
}

// issueProbe increments the outstanding counter and schedules the
// probe goroutine.
func (a *discoveryAttempt) issueProbe(ctx context.Context, uri, clusterEffective string) {
	a.outstanding.Add(1)
	telemetry.OutstandingProbes.Inc()
	a.group.Go(func() error {
		defer telemetry.OutstandingProbes.Dec()
		a.probe(ctx, uri, clusterEffective)
		return nil
	})
}

func (a *discoveryAttempt) registerCanceller(cancel context.CancelFunc) {
	a.cancellersMu.Lock()
	defer a.cancellersMu.Unlock()
	a.cancellers = append(a.cancellers, cancel)
}

// Cancel invokes every registered canceller. Cancellation is
// cooperative: each cancelled probe still calls countDown.
func (a *discoveryAttempt) Cancel() {
	a.cancellersMu.Lock()
	defer a.cancellersMu.Unlock()
	for _, c := range a.cancellers {
		c()
	}
}

func (a *discoveryAttempt) probe(ctx context.Context, uri, clusterEffective string) {
	defer a.countDown(ctx)

	u, err := url.Parse(uri)
	if err != nil {
		a.trace.Tracef("skipping malformed URI %q: %v", uri, err)
		return
	}
	if !a.engine.endpoint.IsValidURIScheme(u.Scheme) || !a.engine.provider.SupportsProtocol(u.Scheme) {
		telemetry.ProbesTotal.WithLabelValues(telemetry.OutcomeSkipped).Inc()
		return
	}

	probeCtx, cancel := context.WithCancel(ctx)
	a.registerCanceller(cancel)
	defer cancel()

	authConfig, err := a.effectiveAuth(u, clusterEffective)
	if err != nil {
		a.reportFailure(uri, err)
		return
	}

	identity, err := a.engine.endpoint.GetConnectedIdentity(probeCtx, u, authConfig)
	if err != nil {
		if probeCtx.Err() != nil {
			return
		}
		a.reportFailure(uri, err)
		return
	}

	channel, err := a.engine.provider.OpenChannel(probeCtx, identity)
	if err != nil {
		if probeCtx.Err() != nil {
			return
		}
		a.reportFailure(uri, err)
		return
	}
	defer channel.Close()

	a.engine.registry.Failed().Clear(uri)
	telemetry.ProbesTotal.WithLabelValues(telemetry.OutcomeSucceeded).Inc()
	a.trace.Tracef("probe succeeded for %s", uri)
}

// effectiveAuth resolves effectiveAuth(clusterEffective) = AuthEffective[cluster] ?? uri
// and strips protocol/host/port overrides when probing a cluster-derived
// node, per spec.md §4.D.
func (a *discoveryAttempt) effectiveAuth(u *url.URL, clusterEffective string) (transport.AuthConfiguration, error) {
	authURI := u
	if clusterEffective != "" {
		if effective, ok := a.engine.auth.Get(clusterEffective); ok {
			if parsed, err := url.Parse(effective); err == nil {
				authURI = parsed
			}
		}
	}
	cfg, err := a.engine.authenticator.GetAuthenticationConfiguration(authURI, filter.ServiceTypeEJB, "")
	if err != nil {
		return transport.AuthConfiguration{}, err
	}
	if clusterEffective != "" {
		cfg = cfg.StripOverrides()
	}
	return cfg, nil
}

func (a *discoveryAttempt) reportFailure(uri string, err error) {
	a.engine.registry.Failed().Add(uri)
	a.queue.addProblem(fmt.Errorf("probe %s: %w", uri, err))
	telemetry.ProbesTotal.WithLabelValues(telemetry.OutcomeFailed).Inc()
	a.trace.Tracef("probe failed for %s: %v", uri, err)
}

// countDown decrements the outstanding counter. The goroutine that
// observes it hit zero runs the two-phase completion logic exactly
// once (spec.md §8 "Counter soundness").
func (a *discoveryAttempt) countDown(ctx context.Context) {
	if a.outstanding.Add(-1) != 0 {
		return
	}

	node, hasNode := filter.ExtractNode(a.spec)

	if a.phase2.Load() {
		a.finalMatchPass(ctx, node, hasNode)
		a.queue.Close()
		return
	}

	matchedAny := a.finalMatchPass(ctx, node, hasNode)
	if matchedAny {
		a.queue.Close()
		return
	}

	a.phase2.Store(true)
	a.outstanding.Add(1)
	a.reissueAllEndpoints(ctx)
	a.countDown(ctx)
}

// finalMatchPass walks the registry (per spec.md §4.D's "node =
// NodeExtractor(filter)... invoke NodeInformation.discover... else
// iterate all nodes") and pushes matching records to the queue. It
// returns whether any node matched. ctx is threaded down to every push
// so a consumer that has abandoned the queue doesn't strand this
// goroutine behind a full buffer.
func (a *discoveryAttempt) finalMatchPass(ctx context.Context, node string, hasNode bool) bool {
	matched := false
	if hasNode {
		if ni, ok := a.engine.registry.Get(node); ok {
			if discoverNode(ctx, ni, a.spec, a.queue) {
				matched = true
			}
		}
		return matched
	}
	for _, ni := range a.engine.registry.All() {
		if discoverNode(ctx, ni, a.spec, a.queue) {
			matched = true
		}
	}
	return matched
}

// reissueAllEndpoints re-probes every configured endpoint and every
// cluster-derived URI, ignoring the failed set, per spec.md §4.D phase
// 2. Per spec.md §9's resolved open question, clusterEffective is
// passed as empty for every reissued probe.
func (a *discoveryAttempt) reissueAllEndpoints(ctx context.Context) {
	for _, ep := range a.engine.configuredEndpoints {
		a.issueProbe(ctx, ep.String(), "")
	}
	for cluster, nodes := range a.engine.registry.ClusterMembership() {
		for _, node := range nodes {
			ni, ok := a.engine.registry.Get(node)
			if !ok {
				continue
			}
			for scheme, table := range ni.ClusterInfo(cluster).AddressTables() {
				for _, entry := range table.Entries() {
					uri := buildURI(scheme, entry.Addr)
					a.issueProbe(ctx, uri, "")
				}
			}
		}
	}
}
