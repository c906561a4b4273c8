package stitching

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/graphql-go/graphql"
	gast "github.com/graphql-go/graphql/language/ast"
	"github.com/n9te9/federation-benchmark/execution"
	"github.com/n9te9/federation-benchmark/federation/graph"
	"github.com/n9te9/federation-benchmark/gateway"
	"github.com/n9te9/federation-benchmark/schemabuilder"
	"github.com/vektah/gqlparser/v2/ast"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

// Option configures a stitched gateway. Services, Retry and the tracing
// setting mean the same as for the federated gateway.
type Option struct {
	TimeoutDuration string
	Services        []gateway.GatewayService
	Retry           gateway.RetryOption
	Opentelemetry   gateway.OpentelemetrySetting

	Logger *zap.Logger
}

// Gateway is a stitched gateway: an executable schema over the composed
// types of remote services whose resolvers delegate to those services.
type Gateway struct {
	superGraph *graph.SuperGraph
	schema     graphql.Schema
	httpClient *http.Client
	logger     *zap.Logger
}

// NewGateway loads the SDL of every service, composes the API schema and
// builds an executable schema whose root fields delegate to their owners.
func NewGateway(ctx context.Context, opt Option) (*Gateway, error) {
	if len(opt.Services) == 0 {
		return nil, errors.New("stitching requires at least one service")
	}

	timeout := 3 * time.Second
	if opt.TimeoutDuration != "" {
		d, err := time.ParseDuration(opt.TimeoutDuration)
		if err != nil {
			return nil, fmt.Errorf("invalid timeout duration %q: %w", opt.TimeoutDuration, err)
		}
		timeout = d
	}

	httpClient := &http.Client{Timeout: timeout}
	if opt.Opentelemetry.TracingSetting.Enable {
		httpClient.Transport = otelhttp.NewTransport(http.DefaultTransport)
	}

	seen := make(map[string]bool, len(opt.Services))
	for _, s := range opt.Services {
		if seen[s.Name] {
			return nil, fmt.Errorf("duplicate service %q", s.Name)
		}
		seen[s.Name] = true
	}

	sdls, err := gateway.FetchSDLs(ctx, opt.Services, httpClient, opt.Retry)
	if err != nil {
		return nil, err
	}

	subGraphs := make([]*graph.SubGraph, 0, len(opt.Services))
	for i, s := range opt.Services {
		sg, err := graph.NewSubGraph(s.Name, []byte(sdls[i]), s.Host)
		if err != nil {
			return nil, fmt.Errorf("failed to build subgraph %q: %w", s.Name, err)
		}
		subGraphs = append(subGraphs, sg)
	}

	superGraph, err := graph.NewSuperGraph(subGraphs)
	if err != nil {
		return nil, err
	}

	logger := opt.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	g := &Gateway{
		superGraph: superGraph,
		httpClient: httpClient,
		logger:     logger,
	}

	schema, err := schemabuilder.Build(superGraph.Schema, nil, schemabuilder.Options{
		FieldResolver: g.fieldResolver,
	})
	if err != nil {
		return nil, err
	}
	g.schema = schema

	return g, nil
}

// Schema returns the executable schema.
func (g *Gateway) Schema() *graphql.Schema {
	return &g.schema
}

// SDL returns the composed schema the gateway serves.
func (g *Gateway) SDL() string {
	return g.superGraph.SDL()
}

// Parse parses query and validates it against the executable schema.
func (g *Gateway) Parse(query string) (*gast.Document, error) {
	return execution.Parse(&g.schema, query)
}

// Execute runs a prepared document. Delegation happens inside resolvers, so
// the result is immediate.
func (g *Gateway) Execute(ctx context.Context, doc *gast.Document, params execution.NormalizedParams) (execution.Result, error) {
	params.Schema = &g.schema
	params.Document = doc
	return execution.NormalizedExecutor(ctx, params)
}

func (g *Gateway) fieldResolver(typeName string, field *ast.FieldDefinition) graphql.FieldResolveFn {
	schema := g.superGraph.Schema
	if (schema.Query != nil && typeName == schema.Query.Name) || (schema.Mutation != nil && typeName == schema.Mutation.Name) {
		return g.rootResolver(typeName, field)
	}
	return resolveFromSource
}

// resolveFromSource reads the field from the delegated data under its
// response key.
func resolveFromSource(p graphql.ResolveParams) (any, error) {
	source, ok := p.Source.(map[string]any)
	if !ok {
		return nil, nil
	}
	return source[responseKey(p.Info)], nil
}

func responseKey(info graphql.ResolveInfo) string {
	if len(info.FieldASTs) > 0 {
		if f := info.FieldASTs[0]; f.Alias != nil && f.Alias.Value != "" {
			return f.Alias.Value
		}
	}
	return info.FieldName
}
