// Command ejb-locate-probe is a small harness for exercising the
// destination-resolution core against a static registry fixture,
// following the teacher's cli/cmd + pkg/flags pattern: a cobra root
// command, logrus for output, and explicit flag-driven configuration
// rather than environment sniffing.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/linkerd/ejb-locate/internal/authcache"
	"github.com/linkerd/ejb-locate/internal/config"
	"github.com/linkerd/ejb-locate/internal/discovery"
	"github.com/linkerd/ejb-locate/internal/registry"
	"github.com/linkerd/ejb-locate/internal/resolver"
	"github.com/linkerd/ejb-locate/internal/transport/fake"
	"github.com/linkerd/ejb-locate/pkg/traceutil"
)

type probeFlags struct {
	fixturePath string
	configPath  string
	appName     string
	moduleName  string
	distinct    string
	beanName    string
	node        string
	cluster     string
	uri         string
	logLevel    string
}

func main() {
	flags := &probeFlags{}

	root := &cobra.Command{
		Use:   "ejb-locate-probe",
		Short: "Resolve a single locator against a static registry fixture",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(flags)
		},
	}

	root.Flags().StringVar(&flags.fixturePath, "fixture", "", "path to a registry fixture (YAML/JSON), required")
	root.Flags().StringVar(&flags.configPath, "config", "", "path to an engine config file (YAML/JSON), optional")
	root.Flags().StringVar(&flags.appName, "app", "", "locator application name")
	root.Flags().StringVar(&flags.moduleName, "module", "", "locator module name")
	root.Flags().StringVar(&flags.distinct, "distinct", "", "locator distinct name")
	root.Flags().StringVar(&flags.beanName, "bean", "", "locator bean name")
	root.Flags().StringVar(&flags.node, "node-affinity", "", "strong node affinity")
	root.Flags().StringVar(&flags.cluster, "cluster-affinity", "", "strong cluster affinity")
	root.Flags().StringVar(&flags.uri, "uri-affinity", "", "strong URI affinity")
	root.Flags().StringVar(&flags.logLevel, "log-level", "info", "log level, must be one of: panic, fatal, error, warn, info, debug, trace")
	_ = root.MarkFlagRequired("fixture")

	if err := root.Execute(); err != nil {
		log.Fatal(err)
	}
}

func run(flags *probeFlags) error {
	level, err := log.ParseLevel(flags.logLevel)
	if err != nil {
		return fmt.Errorf("invalid log-level: %w", err)
	}
	log.SetLevel(level)

	cfg := config.Default()
	if flags.configPath != "" {
		cfg, err = config.Load(flags.configPath)
		if err != nil {
			return err
		}
	}

	fx, err := registry.LoadFixture(flags.fixturePath)
	if err != nil {
		return err
	}

	reg := registry.New(log.WithField("component", "node-registry"))
	auth := authcache.New()
	if err := fx.Apply(reg, auth); err != nil {
		return err
	}
	log.Infof("loaded fixture: %s", fx)

	configuredEndpoints := make([]*url.URL, 0, len(cfg.ConfiguredEndpoints))
	for _, raw := range cfg.ConfiguredEndpoints {
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("invalid configured endpoint %q: %w", raw, err)
		}
		configuredEndpoints = append(configuredEndpoints, u)
	}

	provider := fake.NewProvider("remote", "remote+ssl", "ejb-local")
	endpoint := fake.NewEndpoint("remote", "remote+ssl", "ejb-local")
	authenticator := fake.NewAuthenticator()

	engine := discovery.NewEngine(
		cfg.Discovery.ToEngineConfig(),
		reg,
		auth,
		provider,
		endpoint,
		authenticator,
		configuredEndpoints,
		log.WithField("component", "discovery-engine"),
	)

	res := resolver.New(engine, provider, log.WithField("component", "resolver"))

	loc := resolver.Locator{
		AppName:      flags.appName,
		ModuleName:   flags.moduleName,
		DistinctName: flags.distinct,
		BeanName:     flags.beanName,
		Affinity:     strongAffinityFromFlags(flags),
	}

	ic := resolver.NewContext(loc)
	trace := traceutil.NewSink()

	if err := res.Resolve(context.Background(), ic, trace); err != nil {
		return err
	}

	return printResult(ic, trace)
}

func strongAffinityFromFlags(flags *probeFlags) resolver.Affinity {
	switch {
	case flags.uri != "":
		return resolver.URIAffinity{URI: flags.uri}
	case flags.node != "":
		return resolver.NodeAffinity{Name: flags.node}
	case flags.cluster != "":
		return resolver.ClusterAffinity{Name: flags.cluster}
	default:
		return resolver.NoAffinity{}
	}
}

type result struct {
	Destination    string   `json:"destination,omitempty"`
	TargetAffinity string   `json:"targetAffinity,omitempty"`
	InitialCluster string   `json:"initialCluster,omitempty"`
	Trace          []string `json:"trace,omitempty"`
}

func resultFrom(ic *resolver.Context, trace *traceutil.Sink) result {
	r := result{Trace: trace.Lines()}
	if dest, ok := ic.Destination(); ok {
		r.Destination = dest
	}
	if affinity, ok := ic.TargetAffinity(); ok {
		r.TargetAffinity = affinity.String()
	}
	r.InitialCluster = ic.InitialCluster()
	return r
}

func printResult(ic *resolver.Context, trace *traceutil.Sink) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(resultFrom(ic, trace))
}
