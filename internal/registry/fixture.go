package registry

import (
	"fmt"
	"net"
	"os"

	"github.com/pkg/errors"
	"sigs.k8s.io/yaml"

	"github.com/linkerd/ejb-locate/internal/authcache"
)

// Fixture is a declarative snapshot of registry state, used by tests
// and the CLI harness to populate a Registry without a live channel
// multiplexer pushing node/cluster updates.
type Fixture struct {
	Clusters map[string]FixtureCluster `json:"clusters"`
}

// FixtureCluster describes one cluster's member nodes.
type FixtureCluster struct {
	Nodes map[string]FixtureNode `json:"nodes"`
}

// FixtureNode describes one node's address tables and deployed
// modules.
type FixtureNode struct {
	RegisteringURI string                       `json:"registeringUri"`
	AddressTables  map[string][]FixtureCidrEntry `json:"addressTables"`
	Modules        []FixtureModule               `json:"modules"`
}

// FixtureCidrEntry is one CidrAddressTable row.
type FixtureCidrEntry struct {
	CIDR string `json:"cidr"`
	Host string `json:"host"`
	Port int    `json:"port"`
}

// FixtureModule is one deployed module identifier.
type FixtureModule struct {
	App      string `json:"app"`
	Module   string `json:"module"`
	Distinct string `json:"distinct"`
}

// LoadFixture reads and parses a Fixture from a YAML or JSON file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading fixture %s", path)
	}
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrapf(err, "parsing fixture %s", path)
	}
	return &f, nil
}

// Apply populates reg (and auth) with the fixture's clusters, nodes,
// address tables and modules.
func (f *Fixture) Apply(reg *Registry, auth *authcache.Cache) error {
	for clusterName, cluster := range f.Clusters {
		for nodeName, node := range cluster.Nodes {
			ni := reg.AddNode(clusterName, nodeName, node.RegisteringURI, auth)

			for _, m := range node.Modules {
				ni.AddModule(ModuleIdentifier{AppName: m.App, ModuleName: m.Module, DistinctName: m.Distinct})
			}

			ci := ni.ClusterInfo(clusterName)
			for scheme, entries := range node.AddressTables {
				rows := make([]CidrEntry, 0, len(entries))
				for _, e := range entries {
					_, network, err := net.ParseCIDR(e.CIDR)
					if err != nil {
						return errors.Wrapf(err, "node %s: invalid CIDR %q", nodeName, e.CIDR)
					}
					rows = append(rows, CidrEntry{
						Range: network,
						Addr: InetSocketAddress{
							Host: e.Host,
							IP:   net.ParseIP(e.Host),
							Port: e.Port,
						},
					})
				}
				ci.SetAddressTable(scheme, NewCidrAddressTable(rows))
			}
		}
	}
	return nil
}

// String implements a human-readable summary, used by the CLI harness
// in its "loaded fixture" log line.
func (f *Fixture) String() string {
	total := 0
	for _, c := range f.Clusters {
		total += len(c.Nodes)
	}
	return fmt.Sprintf("%d clusters, %d nodes", len(f.Clusters), total)
}
