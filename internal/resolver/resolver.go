// Package resolver implements the affinity-driven state machine of
// spec.md §4.E: it translates a discovery stream into a final
// (destination, targetAffinity, cluster?) triple, enforces blacklists,
// and requests retries when a chosen destination turns out to be
// wrong.
package resolver

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"net/url"

	log "github.com/sirupsen/logrus"

	"github.com/linkerd/ejb-locate/internal/discovery"
	"github.com/linkerd/ejb-locate/internal/filter"
	"github.com/linkerd/ejb-locate/internal/selector"
	"github.com/linkerd/ejb-locate/internal/telemetry"
	"github.com/linkerd/ejb-locate/internal/transport"
	"github.com/linkerd/ejb-locate/pkg/traceutil"
)

// Resolver is the spec.md §4.E affinity state machine.
type Resolver struct {
	engine   *discovery.Engine
	provider transport.Provider

	clusterSelector    selector.ClusterNodeSelector
	deploymentSelector selector.DeploymentNodeSelector
	uriSelector        selector.DiscoveredURISelector

	log *log.Entry
}

// Option configures a Resolver at construction time.
type Option func(*Resolver)

// WithClusterNodeSelector overrides the default ClusterNodeSelector.
func WithClusterNodeSelector(s selector.ClusterNodeSelector) Option {
	return func(r *Resolver) { r.clusterSelector = s }
}

// WithDeploymentNodeSelector overrides the default DeploymentNodeSelector.
func WithDeploymentNodeSelector(s selector.DeploymentNodeSelector) Option {
	return func(r *Resolver) { r.deploymentSelector = s }
}

// WithDiscoveredURISelector overrides the default DiscoveredURISelector.
func WithDiscoveredURISelector(s selector.DiscoveredURISelector) Option {
	return func(r *Resolver) { r.uriSelector = s }
}

// New builds a Resolver driving engine's discovery and consulting
// provider for connectivity/source-address facts.
func New(engine *discovery.Engine, provider transport.Provider, logger *log.Entry, opts ...Option) *Resolver {
	if logger == nil {
		logger = log.WithField("component", "resolver")
	}
	r := &Resolver{
		engine:             engine,
		provider:           provider,
		clusterSelector:    selector.RandomClusterNodeSelector{},
		deploymentSelector: selector.RandomDeploymentNodeSelector{},
		uriSelector:        selector.RandomURISelector{},
		log:                logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve is the resolver's entry point (spec.md §4.E "Entry"). If a
// destination is already set on ic, it passes through unchanged.
// Otherwise it dispatches on (strong affinity, weak affinity) per the
// spec's strategy table.
func (r *Resolver) Resolve(ctx context.Context, ic InvocationContext, trace *traceutil.Sink) error {
	if _, ok := ic.Destination(); ok {
		return nil
	}

	loc := ic.Locator()
	weak := ic.WeakAffinity()
	blacklist := blacklistFrom(ic)

	telemetry.ResolutionsTotal.Inc()

	switch strong := loc.Affinity.(type) {
	case URIAffinity, LocalAffinity:
		uri, _ := isURILike(strong)
		return r.setDirect(ic, uri, strong, blacklist)

	case NodeAffinity:
		return r.firstMatch(ctx, ic, nodeFilter(strong.Name), nil, "", blacklist, trace)

	case ClusterAffinity:
		switch w := weak.(type) {
		case NodeAffinity:
			primary := filter.All{Children: []filter.Spec{clusterEquals(strong.Name), nodeFilter(w.Name)}}
			fallback := filter.All{Children: []filter.Spec{clusterEquals(strong.Name), filter.HasAttribute{Attr: filter.AttrNode}}}
			return r.firstMatch(ctx, ic, primary, fallback, strong.Name, blacklist, trace)
		case URIAffinity, LocalAffinity:
			uri, _ := isURILike(w)
			return r.setDirect(ic, uri, w, blacklist)
		default:
			return r.clusterDiscovery(ctx, ic, strong.Name, clusterEquals(strong.Name), blacklist, trace)
		}

	default: // NoAffinity
		switch w := weak.(type) {
		case URIAffinity, LocalAffinity:
			uri, _ := isURILike(w)
			return r.setDirect(ic, uri, w, blacklist)
		case NodeAffinity:
			return r.firstMatch(ctx, ic, nodeFilter(w.Name), nil, "", blacklist, trace)
		default:
			return r.anyDiscovery(ctx, ic, blacklist, trace)
		}
	}
}

func nodeFilter(name string) filter.Spec { return filter.Equals{Attr: filter.AttrNode, Value: name} }
func clusterEquals(name string) filter.Spec {
	return filter.Equals{Attr: filter.AttrCluster, Value: name}
}

// setDirect implements the "set destination directly" branches of the
// strategy table: honored only if uri is not blacklisted.
func (r *Resolver) setDirect(ic InvocationContext, uri string, affinity Affinity, blacklist *Blacklist) error {
	if blacklist.Contains(uri) {
		r.log.WithField("uri", uri).Debug("direct affinity target is blacklisted, no destination set")
		return nil
	}
	ic.SetDestination(uri)
	ic.SetTargetAffinity(affinity)
	return nil
}

// firstMatch drains spec's discovery stream and takes the first
// non-blacklisted record (spec.md §4.E "first-match discovery"). If
// nothing matches and a fallback filter is given, it falls through to
// cluster-discovery with fallback and fallbackCluster.
func (r *Resolver) firstMatch(ctx context.Context, ic InvocationContext, spec filter.Spec, fallback filter.Spec, fallbackCluster string, blacklist *Blacklist, trace *traceutil.Sink) error {
	discoverCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	queue := r.engine.Discover(discoverCtx, filter.ServiceTypeEJB, spec, trace)
	for {
		rec, ok, err := queue.TakeServiceContext(discoverCtx)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		if blacklist.Contains(rec.LocationURI) {
			continue
		}
		if node := rec.Value(filter.AttrNode); node != "" {
			ic.SetTargetAffinity(NodeAffinity{Name: node})
		} else {
			ic.SetTargetAffinity(URIAffinity{URI: rec.LocationURI})
		}
		ic.SetDestination(rec.LocationURI)
		return nil
	}

	if fallback != nil {
		return r.clusterDiscovery(ctx, ic, fallbackCluster, fallback, blacklist, trace)
	}
	return nil
}

// clusterDiscovery implements spec.md §4.E "cluster-discovery".
func (r *Resolver) clusterDiscovery(ctx context.Context, ic InvocationContext, clusterName string, spec filter.Spec, blacklist *Blacklist, trace *traceutil.Sink) error {
	queue := r.engine.Discover(ctx, filter.ServiceTypeEJB, spec, trace)

	nodes := make(map[string]string) // node name -> uri
	for {
		rec, ok, err := queue.TakeServiceContext(ctx)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		if blacklist.Contains(rec.LocationURI) {
			continue
		}
		scheme, ok := schemeOf(rec.LocationURI)
		if !ok || !r.provider.SupportsProtocol(scheme) {
			continue
		}
		if !satisfiesSourceAddress(rec.Values(filter.AttrSourceIP), rec.LocationURI, r.provider) {
			continue
		}
		node := rec.Value(filter.AttrNode)
		if node == "" {
			continue
		}
		nodes[node] = rec.LocationURI
	}

	nodes = tryFilterToPreferredNodes(ic, nodes)

	if len(nodes) == 0 {
		return r.namingProviderFallback(ic)
	}

	if len(nodes) == 1 {
		for node, uri := range nodes {
			ic.SetDestination(uri)
			ic.SetTargetAffinity(NodeAffinity{Name: node})
			if clusterName != "" {
				ic.SetInitialCluster(clusterName)
			}
			return nil
		}
	}

	connected := make([]string, 0, len(nodes))
	available := make([]string, 0, len(nodes))
	for node, uri := range nodes {
		available = append(available, node)
		if r.provider.IsConnected(uri) {
			connected = append(connected, node)
		}
	}

	chosen, ok := r.clusterSelector.SelectNode(clusterName, connected, available)
	if !ok {
		return r.fatalf(ic, queue, "ClusterNodeSelector", "returned no node")
	}
	uri, isMember := nodes[chosen]
	if !isMember {
		return r.fatalf(ic, queue, "ClusterNodeSelector", "returned node %q not in available set", chosen)
	}

	ic.SetDestination(uri)
	ic.SetTargetAffinity(NodeAffinity{Name: chosen})
	if clusterName != "" {
		ic.SetInitialCluster(clusterName)
	}
	return nil
}

// anyDiscovery implements spec.md §4.E "any-discovery".
func (r *Resolver) anyDiscovery(ctx context.Context, ic InvocationContext, blacklist *Blacklist, trace *traceutil.Sink) error {
	loc := ic.Locator()
	spec := moduleFilterFromLocator(loc)
	queue := r.engine.Discover(ctx, filter.ServiceTypeEJB, spec, trace)

	uris := make(map[string]string)          // nodeName -> uri
	nodeOf := make(map[string]string)        // uri -> nodeName (empty if nodeless)
	clusterAssociations := make(map[string][]string)
	order := make([]string, 0)
	seen := make(map[string]bool)
	nodeless := 0

	for {
		rec, ok, err := queue.TakeServiceContext(ctx)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		if blacklist.Contains(rec.LocationURI) {
			continue
		}
		if !seen[rec.LocationURI] {
			seen[rec.LocationURI] = true
			order = append(order, rec.LocationURI)
		}
		node := rec.Value(filter.AttrNode)
		nodeOf[rec.LocationURI] = node
		if node == "" {
			nodeless++
		} else {
			uris[node] = rec.LocationURI
		}
		if clusters := rec.Values(filter.AttrCluster); len(clusters) > 0 {
			clusterAssociations[rec.LocationURI] = clusters
		}
	}

	switch len(order) {
	case 0:
		return nil
	case 1:
		return r.finalizeAnyDiscovery(ic, order[0], nodeOf[order[0]], clusterAssociations)
	}

	if nodeless == 0 {
		nodeNames := make([]string, 0, len(uris))
		for n := range uris {
			nodeNames = append(nodeNames, n)
		}
		chosen, ok := r.deploymentSelector.SelectNode(nodeNames, loc.AppName, loc.ModuleName, loc.DistinctName)
		if !ok {
			return r.fatalf(ic, queue, "DeploymentNodeSelector", "returned no node")
		}
		uri, isMember := uris[chosen]
		if !isMember {
			return r.fatalf(ic, queue, "DeploymentNodeSelector", "returned node %q not in discovered set", chosen)
		}
		return r.finalizeAnyDiscovery(ic, uri, chosen, clusterAssociations)
	}

	chosenURI, ok := r.uriSelector.SelectNode(order, loc)
	if !ok {
		return r.fatalf(ic, queue, "DiscoveredURISelector", "returned no uri")
	}
	if !seen[chosenURI] {
		return r.fatalf(ic, queue, "DiscoveredURISelector", "returned uri %q not in discovered set", chosenURI)
	}
	return r.finalizeAnyDiscovery(ic, chosenURI, nodeOf[chosenURI], clusterAssociations)
}

func (r *Resolver) finalizeAnyDiscovery(ic InvocationContext, uri, node string, clusterAssociations map[string][]string) error {
	if clusters := clusterAssociations[uri]; len(clusters) > 0 {
		ic.SetInitialCluster(clusters[rand.Intn(len(clusters))])
	}
	ic.SetDestination(uri)
	if node != "" {
		ic.SetTargetAffinity(NodeAffinity{Name: node})
	} else {
		ic.SetTargetAffinity(URIAffinity{URI: uri})
	}
	return nil
}

// namingProviderFallback is consulted when cluster-discovery's node
// map is empty after preferred-node filtering (spec.md §4.E "fall
// through to naming-provider hint or return with no destination").
func (r *Resolver) namingProviderFallback(ic InvocationContext) error {
	np, ok := namingProviderFrom(ic)
	if !ok {
		return nil
	}
	locations, err := np.GetLocations()
	if err != nil || len(locations) == 0 {
		return nil
	}
	chosen := locations[rand.Intn(len(locations))]
	ic.SetDestination(chosen.URI.String())
	ic.SetTargetAffinity(URIAffinity{URI: chosen.URI.String()})
	return nil
}

// tryFilterToPreferredNodes collapses nodes to the intersection with
// the PREFERRED_DESTINATIONS attachment, if any; if the intersection
// is empty, the full set is retained (spec.md §9).
func tryFilterToPreferredNodes(ic InvocationContext, nodes map[string]string) map[string]string {
	preferred := preferredDestinationsFrom(ic)
	if preferred == nil {
		return nodes
	}
	filtered := make(map[string]string)
	for node, uri := range nodes {
		if _, ok := preferred[uri]; ok {
			filtered[node] = uri
		}
	}
	if len(filtered) == 0 {
		return nodes
	}
	return filtered
}

// moduleFilterFromLocator builds the module-identity filter used by
// any-discovery.
func moduleFilterFromLocator(loc Locator) filter.Spec {
	if loc.DistinctName != "" {
		return filter.Equals{Attr: filter.AttrEJBModuleDistinct, Value: ejbModuleDistinctPath(loc)}
	}
	return filter.Equals{Attr: filter.AttrEJBModule, Value: ejbModulePath(loc)}
}

func ejbModulePath(loc Locator) string {
	if loc.AppName == "" {
		return loc.ModuleName
	}
	return loc.AppName + "/" + loc.ModuleName
}

func ejbModuleDistinctPath(loc Locator) string {
	if loc.AppName == "" {
		return loc.ModuleName + "/" + loc.DistinctName
	}
	return loc.AppName + "/" + loc.ModuleName + "/" + loc.DistinctName
}

func schemeOf(rawURI string) (string, bool) {
	u, err := url.Parse(rawURI)
	if err != nil {
		return "", false
	}
	return u.Scheme, true
}

// satisfiesSourceAddress implements spec.md §4.E "source-ip
// satisfaction".
func satisfiesSourceAddress(values []string, destURI string, provider transport.Provider) bool {
	if len(values) == 0 {
		return true
	}
	dest, err := url.Parse(destURI)
	if err != nil {
		return false
	}
	addr := provider.SourceAddress(dest)
	for _, v := range values {
		_, network, err := net.ParseCIDR(v)
		if err != nil {
			continue
		}
		ones, _ := network.Mask.Size()
		if addr == nil {
			if ones == 0 {
				return true
			}
			continue
		}
		if network.Contains(addr) {
			return true
		}
	}
	return false
}

// fatalf builds a SelectorError, attaches any discovery problems as
// suppressed context, and returns it. Selector failures are fatal for
// the current invocation (spec.md §7 point 3).
func (r *Resolver) fatalf(ic InvocationContext, queue *discovery.ServicesQueue, selectorName, format string, args ...interface{}) error {
	if problems := queue.Problems(); problems != nil {
		ic.AddSuppressed(problems)
	}
	return &SelectorError{Selector: selectorName, Detail: fmt.Sprintf(format, args...)}
}
