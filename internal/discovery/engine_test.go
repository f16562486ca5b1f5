package discovery

import (
	"context"
	"net"
	"net/url"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linkerd/ejb-locate/internal/authcache"
	"github.com/linkerd/ejb-locate/internal/filter"
	"github.com/linkerd/ejb-locate/internal/registry"
	"github.com/linkerd/ejb-locate/internal/transport/fake"
	"github.com/linkerd/ejb-locate/pkg/traceutil"
)

func testEngine(t *testing.T, reg *registry.Registry, auth *authcache.Cache, provider *fake.Provider, endpoint *fake.Endpoint, configured []*url.URL) *Engine {
	t.Helper()
	return NewEngine(
		Config{MaxConnectedClusterNodes: 5, QueueCapacity: 16, MaxConcurrentProbes: 8},
		reg,
		auth,
		provider,
		endpoint,
		fake.NewAuthenticator(),
		configured,
		log.WithField("test", true),
	)
}

func drain(t *testing.T, q *ServicesQueue) []filter.Record {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var out []filter.Record
	for {
		r, ok, err := q.TakeServiceContext(ctx)
		if err != nil {
			t.Fatalf("queue never closed: %v", err)
		}
		if !ok {
			return out
		}
		out = append(out, r)
	}
}

func TestDiscoverNonEJBServiceTypeClosesEmptyQueue(t *testing.T) {
	reg := registry.New(log.WithField("test", true))
	provider := fake.NewProvider("remote")
	endpoint := fake.NewEndpoint("remote")
	engine := testEngine(t, reg, authcache.New(), provider, endpoint, nil)

	queue := engine.Discover(context.Background(), "some.other.type", filter.All{}, traceutil.NewSink())
	records := drain(t, queue)
	assert.Empty(t, records)
	assert.NoError(t, queue.Problems())
}

func TestDiscoverClusterNodeMatchClosesWithRecord(t *testing.T) {
	reg := registry.New(log.WithField("test", true))
	auth := authcache.New()
	reg.AddNode("clusterA", "node1", "remote://node1.test:8080", auth)
	ni, _ := reg.Get("node1")
	_, network, err := net.ParseCIDR("0.0.0.0/0")
	require.NoError(t, err)
	ni.ClusterInfo("clusterA").SetAddressTable("remote", registry.NewCidrAddressTable([]registry.CidrEntry{
		{Range: network, Addr: registry.InetSocketAddress{Host: "node1.test", Port: 8080}},
	}))

	provider := fake.NewProvider("remote")
	endpoint := fake.NewEndpoint("remote")
	engine := testEngine(t, reg, auth, provider, endpoint, nil)

	queue := engine.Discover(context.Background(), filter.ServiceTypeEJB, filter.All{}, traceutil.NewSink())
	records := drain(t, queue)
	require.Len(t, records, 1)
	assert.Equal(t, "remote://node1.test:8080", records[0].LocationURI)
	assert.Equal(t, "node1", records[0].Value(filter.AttrNode))
	assert.NoError(t, queue.Problems())
}

func TestDiscoverFilterExcludesNonMatchingNode(t *testing.T) {
	reg := registry.New(log.WithField("test", true))
	auth := authcache.New()
	reg.AddNode("clusterA", "node1", "remote://node1.test:8080", auth)
	ni, _ := reg.Get("node1")
	_, network, _ := net.ParseCIDR("0.0.0.0/0")
	ni.ClusterInfo("clusterA").SetAddressTable("remote", registry.NewCidrAddressTable([]registry.CidrEntry{
		{Range: network, Addr: registry.InetSocketAddress{Host: "node1.test", Port: 8080}},
	}))

	provider := fake.NewProvider("remote")
	endpoint := fake.NewEndpoint("remote")
	engine := testEngine(t, reg, auth, provider, endpoint, nil)

	spec := filter.Equals{Attr: filter.AttrNode, Value: "node-does-not-exist"}
	queue := engine.Discover(context.Background(), filter.ServiceTypeEJB, spec, traceutil.NewSink())
	records := drain(t, queue)
	assert.Empty(t, records)
}

func TestDiscoverPhase2RetriesOnAllConfiguredFailed(t *testing.T) {
	reg := registry.New(log.WithField("test", true))
	auth := authcache.New()

	cfgURI := "remote://cfg.test:9000"
	reg.Failed().Add(cfgURI)

	u, err := url.Parse(cfgURI)
	require.NoError(t, err)

	provider := fake.NewProvider("remote")
	endpoint := fake.NewEndpoint("remote")
	engine := testEngine(t, reg, auth, provider, endpoint, []*url.URL{u})

	queue := engine.Discover(context.Background(), filter.ServiceTypeEJB, filter.All{}, traceutil.NewSink())
	records := drain(t, queue)
	assert.Empty(t, records, "no registry nodes exist to match, even though the configured endpoint is reachable")
	assert.NoError(t, queue.Problems())
	assert.False(t, reg.Failed().Contains(cfgURI), "a successful reissued probe clears the failed-destination entry")
}

func TestDiscoverProbeFailureRecordedAsProblem(t *testing.T) {
	reg := registry.New(log.WithField("test", true))
	auth := authcache.New()

	cfgURI := "remote://unreachable.test:9000"
	u, err := url.Parse(cfgURI)
	require.NoError(t, err)

	provider := fake.NewProvider("remote")
	endpoint := fake.NewEndpoint("remote")
	endpoint.SetFailing(cfgURI, true)
	engine := testEngine(t, reg, auth, provider, endpoint, []*url.URL{u})

	queue := engine.Discover(context.Background(), filter.ServiceTypeEJB, filter.All{}, traceutil.NewSink())
	records := drain(t, queue)
	assert.Empty(t, records)

	err = queue.Problems()
	require.Error(t, err)
	assert.Contains(t, err.Error(), cfgURI)
	assert.True(t, reg.Failed().Contains(cfgURI))
}

func TestIssueClusterNodeProbeSkipsUnmatchedSourceIP(t *testing.T) {
	reg := registry.New(log.WithField("test", true))
	auth := authcache.New()
	reg.AddNode("clusterA", "node1", "remote://node1.test:8080", auth)
	ni, _ := reg.Get("node1")
	_, network, _ := net.ParseCIDR("10.0.0.0/8")
	ni.ClusterInfo("clusterA").SetAddressTable("remote", registry.NewCidrAddressTable([]registry.CidrEntry{
		{Range: network, Addr: registry.InetSocketAddress{Host: "node1.test", Port: 8080}},
	}))

	provider := fake.NewProvider("remote")
	provider.Source = net.ParseIP("192.168.1.1") // outside 10.0.0.0/8
	endpoint := fake.NewEndpoint("remote")
	engine := testEngine(t, reg, auth, provider, endpoint, nil)

	queue := engine.Discover(context.Background(), filter.ServiceTypeEJB, filter.All{}, traceutil.NewSink())
	records := drain(t, queue)
	assert.Empty(t, records, "a source-ip-scoped CIDR entry must not match a non-matching local source address")
}

func TestDiscoverAbandonedConsumerDoesNotLeakProducer(t *testing.T) {
	reg := registry.New(log.WithField("test", true))
	auth := authcache.New()
	reg.AddNode("clusterA", "node1", "remote://node1a.test:8080", auth)
	ni, _ := reg.Get("node1")
	_, network, err := net.ParseCIDR("0.0.0.0/0")
	require.NoError(t, err)
	ni.ClusterInfo("clusterA").SetAddressTable("remote", registry.NewCidrAddressTable([]registry.CidrEntry{
		{Range: network, Addr: registry.InetSocketAddress{Host: "node1a.test", Port: 8080}},
	}))
	ni.ClusterInfo("clusterA").SetAddressTable("remote2", registry.NewCidrAddressTable([]registry.CidrEntry{
		{Range: network, Addr: registry.InetSocketAddress{Host: "node1b.test", Port: 8081}},
	}))

	provider := fake.NewProvider("remote")
	endpoint := fake.NewEndpoint("remote")
	engine := NewEngine(
		Config{MaxConnectedClusterNodes: 5, QueueCapacity: 1, MaxConcurrentProbes: 8},
		reg, auth, provider, endpoint, fake.NewAuthenticator(), nil,
		log.WithField("test", true),
	)

	ctx, cancel := context.WithCancel(context.Background())
	queue := engine.Discover(ctx, filter.ServiceTypeEJB, filter.Equals{Attr: filter.AttrNode, Value: "node1"}, traceutil.NewSink())

	// node1 has two matching address-table entries but the queue buffer
	// holds only one, so the second push blocks until the first record
	// is taken. After the consumer's context is cancelled the producer
	// may either deliver or drop that second record, but it must still
	// close the queue.
	rec, ok, err := queue.TakeServiceContext(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "node1", rec.Value(filter.AttrNode))

	cancel()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()
	for ok {
		_, ok, err = queue.TakeServiceContext(waitCtx)
		if err != nil {
			t.Fatalf("producer never closed the queue after the consumer's context was cancelled (leaked goroutine): %v", err)
		}
	}
	assert.False(t, ok)
}

func TestIssueClusterNodeProbeMatchesSourceIP(t *testing.T) {
	reg := registry.New(log.WithField("test", true))
	auth := authcache.New()
	reg.AddNode("clusterA", "node1", "remote://node1.test:8080", auth)
	ni, _ := reg.Get("node1")
	_, network, _ := net.ParseCIDR("10.0.0.0/8")
	ni.ClusterInfo("clusterA").SetAddressTable("remote", registry.NewCidrAddressTable([]registry.CidrEntry{
		{Range: network, Addr: registry.InetSocketAddress{Host: "node1.test", Port: 8080}},
	}))

	provider := fake.NewProvider("remote")
	provider.Source = net.ParseIP("10.1.2.3")
	endpoint := fake.NewEndpoint("remote")
	engine := testEngine(t, reg, auth, provider, endpoint, nil)

	queue := engine.Discover(context.Background(), filter.ServiceTypeEJB, filter.All{}, traceutil.NewSink())
	records := drain(t, queue)
	require.Len(t, records, 1)
	assert.Equal(t, "remote://node1.test:8080", records[0].LocationURI)
}
