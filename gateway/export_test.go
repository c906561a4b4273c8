package gateway

import (
	"context"
	"net/http"
)

// FetchSDLForTest exports fetchSDL for testing.
func FetchSDLForTest(host string, httpClient *http.Client, retry RetryOption) (string, error) {
	return fetchSDL(context.Background(), host, httpClient, retry)
}

// BuildEngineForTest exports buildEngine for testing and reports the
// subgraph order the engine composed.
func BuildEngineForTest(names []string, sdls, hosts map[string]string, httpClient *http.Client) ([]string, error) {
	engine, err := buildEngine(names, sdls, hosts, httpClient)
	if err != nil {
		return nil, err
	}

	order := make([]string, 0, len(engine.superGraph.SubGraphs))
	for _, sg := range engine.superGraph.SubGraphs {
		order = append(order, sg.Name)
	}
	return order, nil
}
