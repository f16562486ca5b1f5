// Package registry holds the in-memory map of known nodes, their
// per-cluster address tables, and the process-wide set of recently
// failed destinations. It is the "NodeRegistry" of spec.md §4.A,
// modelled on the locking discipline of the teacher's ClusterStore.
package registry

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/linkerd/ejb-locate/internal/authcache"
)

// ModuleIdentifier mirrors filter.ModuleIdentifier without importing
// the filter package, to keep registry free of a dependency on the
// filter sum type. Discovery wires the two together.
type ModuleIdentifier struct {
	AppName      string
	ModuleName   string
	DistinctName string
}

// ClusterNodeInformation is the per-cluster view of a node: one
// address table per transport protocol (scheme).
type ClusterNodeInformation struct {
	mu                      sync.RWMutex
	addressTablesByProtocol map[string]*CidrAddressTable
}

// NewClusterNodeInformation builds an (initially empty) cluster node
// view.
func NewClusterNodeInformation() *ClusterNodeInformation {
	return &ClusterNodeInformation{addressTablesByProtocol: make(map[string]*CidrAddressTable)}
}

// SetAddressTable registers the address table for a protocol scheme.
func (c *ClusterNodeInformation) SetAddressTable(scheme string, table *CidrAddressTable) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.addressTablesByProtocol[scheme] = table
}

// AddressTables returns a snapshot of the protocol->table map.
func (c *ClusterNodeInformation) AddressTables() map[string]*CidrAddressTable {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]*CidrAddressTable, len(c.addressTablesByProtocol))
	for k, v := range c.addressTablesByProtocol {
		out[k] = v
	}
	return out
}

// NodeInformation is the registry's view of a single node: its
// per-cluster address information and the set of modules its channel
// has reported deployed.
type NodeInformation struct {
	NodeName string

	mu         sync.RWMutex
	clusters   map[string]*ClusterNodeInformation
	moduleList map[ModuleIdentifier]struct{}
}

func newNodeInformation(name string) *NodeInformation {
	return &NodeInformation{
		NodeName:   name,
		clusters:   make(map[string]*ClusterNodeInformation),
		moduleList: make(map[ModuleIdentifier]struct{}),
	}
}

// ClusterInfo returns (creating if absent) the ClusterNodeInformation
// for the given cluster name.
func (n *NodeInformation) ClusterInfo(cluster string) *ClusterNodeInformation {
	n.mu.Lock()
	defer n.mu.Unlock()
	ci, ok := n.clusters[cluster]
	if !ok {
		ci = NewClusterNodeInformation()
		n.clusters[cluster] = ci
	}
	return ci
}

// Clusters returns a snapshot of this node's per-cluster information,
// keyed by the names of the clusters it belongs to, as observed by this
// registry entry.
func (n *NodeInformation) Clusters() map[string]*ClusterNodeInformation {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make(map[string]*ClusterNodeInformation, len(n.clusters))
	for k, v := range n.clusters {
		out[k] = v
	}
	return out
}

// AddModule records that this node's channel has deployed module.
func (n *NodeInformation) AddModule(mod ModuleIdentifier) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.moduleList[mod] = struct{}{}
}

// HasModule reports whether module is in this node's deployed set.
func (n *NodeInformation) HasModule(mod ModuleIdentifier) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	_, ok := n.moduleList[mod]
	return ok
}

// Modules returns a snapshot of the modules this node's channel has
// reported deployed.
func (n *NodeInformation) Modules() []ModuleIdentifier {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]ModuleIdentifier, 0, len(n.moduleList))
	for m := range n.moduleList {
		out = append(out, m)
	}
	return out
}

// Registry is the process-wide NodeRegistry: a concurrency-safe map of
// node name to NodeInformation, plus cluster membership and the
// process-wide failed-destination hint set.
type Registry struct {
	mu    sync.RWMutex
	nodes map[string]*NodeInformation

	membershipMu sync.RWMutex
	membership   map[string]map[string]struct{} // cluster -> set of node names

	failed *FailedDestinations

	log *log.Entry
}

// New creates an empty Registry.
func New(logger *log.Entry) *Registry {
	if logger == nil {
		logger = log.WithField("component", "node-registry")
	}
	return &Registry{
		nodes:      make(map[string]*NodeInformation),
		membership: make(map[string]map[string]struct{}),
		failed:     NewFailedDestinations(),
		log:        logger,
	}
}

// GetOrCreate returns the NodeInformation for nodeName, allocating it
// on first observation. It is idempotent: it never overwrites an
// existing entry.
func (r *Registry) GetOrCreate(nodeName string) *NodeInformation {
	r.mu.RLock()
	n, ok := r.nodes[nodeName]
	r.mu.RUnlock()
	if ok {
		return n
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if n, ok := r.nodes[nodeName]; ok {
		return n
	}
	n = newNodeInformation(nodeName)
	r.nodes[nodeName] = n
	return n
}

// All returns a snapshot list of all known nodes. It does not need to
// be point-in-time consistent with concurrent insertions.
func (r *Registry) All() []*NodeInformation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*NodeInformation, 0, len(r.nodes))
	for _, n := range r.nodes {
		out = append(out, n)
	}
	return out
}

// Get returns the NodeInformation for nodeName if known.
func (r *Registry) Get(nodeName string) (*NodeInformation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.nodes[nodeName]
	return n, ok
}

// Failed returns the process-wide failed-destination set.
func (r *Registry) Failed() *FailedDestinations {
	return r.failed
}

// ClusterMembership returns a snapshot of cluster name to member node
// names.
func (r *Registry) ClusterMembership() map[string][]string {
	r.membershipMu.RLock()
	defer r.membershipMu.RUnlock()
	out := make(map[string][]string, len(r.membership))
	for cluster, nodes := range r.membership {
		names := make([]string, 0, len(nodes))
		for n := range nodes {
			names = append(names, n)
		}
		out[cluster] = names
	}
	return out
}

// AddNode adds node to cluster's membership set, allocating the node
// entry if necessary, and records registeringURI in auth as the
// cluster's effective authentication URI if none is recorded yet
// (first writer wins, per spec.md §3).
func (r *Registry) AddNode(cluster, node, registeringURI string, auth *authcache.Cache) *NodeInformation {
	r.membershipMu.Lock()
	set, ok := r.membership[cluster]
	if !ok {
		set = make(map[string]struct{})
		r.membership[cluster] = set
	}
	set[node] = struct{}{}
	r.membershipMu.Unlock()

	if auth != nil {
		auth.SetIfAbsent(cluster, registeringURI)
	}

	ni := r.GetOrCreate(node)
	r.log.WithFields(log.Fields{"cluster": cluster, "node": node}).Debug("added node to cluster")
	return ni
}

// RemoveNode removes node from cluster's membership set. The
// NodeInformation entry itself is retained (registry entries are only
// ever removed at teardown, per spec.md §3 invariants).
func (r *Registry) RemoveNode(cluster, node string) {
	r.membershipMu.Lock()
	defer r.membershipMu.Unlock()
	if set, ok := r.membership[cluster]; ok {
		delete(set, node)
		if len(set) == 0 {
			delete(r.membership, cluster)
		}
	}
}

// RemoveCluster removes a cluster's entire membership entry and clears
// its AuthEffective cache entry.
func (r *Registry) RemoveCluster(cluster string, auth *authcache.Cache) {
	r.membershipMu.Lock()
	delete(r.membership, cluster)
	r.membershipMu.Unlock()
	if auth != nil {
		auth.Clear(cluster)
	}
}
