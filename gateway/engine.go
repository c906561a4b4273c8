package gateway

import (
	"fmt"
	"net/http"

	"github.com/graphql-go/graphql"
	"github.com/n9te9/federation-benchmark/federation/executor"
	"github.com/n9te9/federation-benchmark/federation/graph"
	"github.com/n9te9/federation-benchmark/federation/planner"
	"github.com/n9te9/federation-benchmark/schemabuilder"
)

// executionEngine bundles all read-only components required to serve GraphQL requests.
type executionEngine struct {
	planner    *planner.Planner
	executor   *executor.Executor
	superGraph *graph.SuperGraph

	// introspection serves __schema and __type from the composed schema.
	introspection graphql.Schema
}

// buildEngine composes a new SuperGraph from the SDLs of names, in that
// order, and wraps it in an executionEngine together with a Planner and an
// Executor. The order decides which subgraph the planner prefers for fields
// several subgraphs can resolve.
func buildEngine(names []string, sdls, hosts map[string]string, httpClient *http.Client) (*executionEngine, error) {
	subGraphs := make([]*graph.SubGraph, 0, len(names))
	for _, name := range names {
		sdl, ok := sdls[name]
		if !ok {
			return nil, fmt.Errorf("no SDL for subgraph %q", name)
		}
		sg, err := graph.NewSubGraph(name, []byte(sdl), hosts[name])
		if err != nil {
			return nil, fmt.Errorf("failed to build subgraph %q: %w", name, err)
		}
		subGraphs = append(subGraphs, sg)
	}

	superGraph, err := graph.NewSuperGraph(subGraphs)
	if err != nil {
		return nil, fmt.Errorf("composition failed: %w", err)
	}

	introspection, err := schemabuilder.Build(superGraph.Schema, nil, schemabuilder.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to build introspection schema: %w", err)
	}

	return &executionEngine{
		planner:       planner.NewPlanner(superGraph),
		executor:      executor.NewExecutor(httpClient, superGraph),
		superGraph:    superGraph,
		introspection: introspection,
	}, nil
}
