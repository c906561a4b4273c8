package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"

	"github.com/n9te9/federation-benchmark/federation/subgraph"
	"github.com/n9te9/federation-benchmark/services/accounts"
	"github.com/n9te9/federation-benchmark/services/inventory"
	"github.com/n9te9/federation-benchmark/services/products"
	"github.com/n9te9/federation-benchmark/services/reviews"
	"go.uber.org/zap"
)

// Option selects a service and the port it listens on. Port 0 picks a free
// port.
type Option struct {
	Name string
	Port int
}

// Endpoint is the GraphQL URL of a running service.
type Endpoint struct {
	Name string
	URL  string
}

// Definitions returns the demo services in composition order.
func Definitions() []subgraph.Definition {
	return []subgraph.Definition{
		accounts.Definition(),
		products.Definition(),
		inventory.Definition(),
		reviews.Definition(),
	}
}

// DefaultOptions lists every service on its conventional port.
func DefaultOptions() []Option {
	return []Option{
		{Name: accounts.Name, Port: 4001},
		{Name: products.Name, Port: 4002},
		{Name: inventory.Name, Port: 4003},
		{Name: reviews.Name, Port: 4004},
	}
}

// Cluster is a set of services served from this process.
type Cluster struct {
	servers   []*http.Server
	endpoints []Endpoint
	logger    *zap.Logger
}

// Start builds and serves the services named in options on host. Either all
// services are listening when Start returns or none are.
func Start(ctx context.Context, host string, options []Option, logger *zap.Logger) (*Cluster, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	defs := make(map[string]subgraph.Definition)
	for _, def := range Definitions() {
		defs[def.Name] = def
	}

	c := &Cluster{logger: logger}
	for _, opt := range options {
		def, ok := defs[opt.Name]
		if !ok {
			c.Close()
			return nil, fmt.Errorf("unknown service %q", opt.Name)
		}

		schema, err := subgraph.NewSchema(def)
		if err != nil {
			c.Close()
			return nil, err
		}

		var lc net.ListenConfig
		ln, err := lc.Listen(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(opt.Port)))
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to listen for %s: %w", opt.Name, err)
		}

		mux := http.NewServeMux()
		mux.Handle("/graphql", subgraph.NewHandler(schema, logger))
		srv := &http.Server{Handler: mux}

		go func(name string) {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("service stopped", zap.String("service", name), zap.Error(err))
			}
		}(opt.Name)

		endpoint := Endpoint{Name: opt.Name, URL: "http://" + ln.Addr().String() + "/graphql"}
		c.servers = append(c.servers, srv)
		c.endpoints = append(c.endpoints, endpoint)
		logger.Info("service listening", zap.String("service", endpoint.Name), zap.String("url", endpoint.URL))
	}

	return c, nil
}

// Endpoints returns the services' URLs in start order.
func (c *Cluster) Endpoints() []Endpoint {
	return append([]Endpoint(nil), c.endpoints...)
}

// Close stops every service immediately.
func (c *Cluster) Close() error {
	var errs []error
	for _, srv := range c.servers {
		if err := srv.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
