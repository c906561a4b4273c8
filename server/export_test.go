package server

import (
	"context"
	"net/http/httptest"

	"github.com/caarlos0/env/v10"
	"github.com/n9te9/federation-benchmark/memo"
)

// LoadConfigWithEnv exports loadConfig for testing with environ in place of
// the process environment.
func LoadConfigWithEnv(path string, environ map[string]string) (*Config, error) {
	return loadConfig(path, env.Options{Prefix: EnvPrefix, Environment: environ})
}

// RouteResult is what ServeRouteForTest observed.
type RouteResult struct {
	Recorder *httptest.ResponseRecorder
	Status   int
	Err      error
}

// ServeRouteForTest serves query through a route built from parse and
// execute.
func ServeRouteForTest(parse memo.ParseFunc[string], execute ExecuteFunc[string], query string) (RouteResult, error) {
	rt, err := newRoute("/test", parse, 0, execute)
	if err != nil {
		return RouteResult{}, err
	}

	rec := httptest.NewRecorder()
	status, served := rt.serve(context.Background(), rec, Request{Query: query}, map[string]any{})
	return RouteResult{Recorder: rec, Status: status, Err: served}, nil
}
