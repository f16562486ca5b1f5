package discovery

import (
	"context"
	"fmt"

	"github.com/linkerd/ejb-locate/internal/filter"
	"github.com/linkerd/ejb-locate/internal/registry"
)

// discoverNode is the Go expression of NodeInformation.discover from
// spec.md §4.D: it builds one candidate filter.Record per
// cluster/address-table entry of ni, carrying the node, cluster,
// module, and source-ip attributes the node is known to advertise, and
// pushes every record that satisfies spec. It reports whether it
// pushed anything. ctx is the discovery attempt's context, so a push
// blocked on a full queue abandons cleanly once the caller cancels.
func discoverNode(ctx context.Context, ni *registry.NodeInformation, spec filter.Spec, sink *ServicesQueue) bool {
	modules := ni.Modules()

	pushed := false
	for clusterName, ci := range ni.Clusters() {
		for scheme, table := range ci.AddressTables() {
			for _, entry := range table.Entries() {
				record := buildCandidateRecord(ni.NodeName, clusterName, scheme, entry, modules)
				if !filter.Matches(spec, record) {
					continue
				}
				sink.push(ctx, record)
				pushed = true
			}
		}
	}
	return pushed
}

func buildCandidateRecord(nodeName, clusterName, scheme string, entry registry.CidrEntry, modules []registry.ModuleIdentifier) filter.Record {
	attrs := map[string][]string{
		filter.AttrNode:    {nodeName},
		filter.AttrCluster: {clusterName},
	}
	if ones, _ := entry.Range.Mask.Size(); ones > 0 {
		attrs[filter.AttrSourceIP] = []string{entry.Range.String()}
	}
	for _, m := range modules {
		attrs[filter.AttrEJBModule] = append(attrs[filter.AttrEJBModule], ejbModuleValue(m))
		if m.DistinctName != "" {
			attrs[filter.AttrEJBModuleDistinct] = append(attrs[filter.AttrEJBModuleDistinct], ejbModuleDistinctValue(m))
		}
	}
	return filter.Record{
		LocationURI: buildURI(scheme, entry.Addr),
		Attributes:  attrs,
	}
}

func ejbModuleValue(m registry.ModuleIdentifier) string {
	if m.AppName == "" {
		return m.ModuleName
	}
	return fmt.Sprintf("%s/%s", m.AppName, m.ModuleName)
}

func ejbModuleDistinctValue(m registry.ModuleIdentifier) string {
	if m.AppName == "" {
		return fmt.Sprintf("%s/%s", m.ModuleName, m.DistinctName)
	}
	return fmt.Sprintf("%s/%s/%s", m.AppName, m.ModuleName, m.DistinctName)
}
