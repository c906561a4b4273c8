package stitching_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
	"github.com/graphql-go/graphql"
	"github.com/n9te9/federation-benchmark/execution"
	"github.com/n9te9/federation-benchmark/gateway"
	"github.com/n9te9/federation-benchmark/services"
	"github.com/n9te9/federation-benchmark/stitching"
	"github.com/stretchr/testify/require"
)

func startServices(t *testing.T) []gateway.GatewayService {
	t.Helper()

	options := services.DefaultOptions()
	for i := range options {
		options[i].Port = 0
	}
	cluster, err := services.Start(context.Background(), "127.0.0.1", options, nil)
	require.NoError(t, err)
	t.Cleanup(func() { cluster.Close() })

	var list []gateway.GatewayService
	for _, e := range cluster.Endpoints() {
		list = append(list, gateway.GatewayService{Name: e.Name, Host: e.URL})
	}
	return list
}

func newGateway(t *testing.T, list []gateway.GatewayService) *stitching.Gateway {
	t.Helper()

	gw, err := stitching.NewGateway(context.Background(), stitching.Option{
		TimeoutDuration: "3s",
		Services:        list,
		Retry:           gateway.RetryOption{Attempts: 2, Timeout: "1s"},
	})
	require.NoError(t, err)
	return gw
}

// execute runs query and returns the result as decoded JSON.
func execute(t *testing.T, gw *stitching.Gateway, query string, variables map[string]any) map[string]any {
	t.Helper()

	doc, err := gw.Parse(query)
	require.NoError(t, err)

	result, err := gw.Execute(context.Background(), doc, execution.NormalizedParams{Variables: variables})
	require.NoError(t, err)
	require.False(t, result.IsPending())

	_, ok := result.Value().(*graphql.Result)
	require.True(t, ok, "unexpected result %T", result.Value())

	b, err := json.Marshal(result.Value())
	require.NoError(t, err)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(b, &resp))
	return resp
}

func TestGateway_Execute(t *testing.T) {
	gw := newGateway(t, startServices(t))

	tests := []struct {
		name      string
		query     string
		variables map[string]any
		want      map[string]any
	}{
		{
			name:  "requires fetched from another service",
			query: `{ me { name reviews { product { name shippingEstimate } } } }`,
			want: map[string]any{
				"me": map[string]any{
					"name": "Ada Lovelace",
					"reviews": []any{
						map[string]any{"product": map[string]any{"name": "Table", "shippingEstimate": float64(50)}},
						map[string]any{"product": map[string]any{"name": "Couch", "shippingEstimate": float64(0)}},
					},
				},
			},
		},
		{
			name:  "requires next to plain fields of the same service",
			query: `{ topProducts { upc inStock estimate: shippingEstimate } }`,
			want: map[string]any{
				"topProducts": []any{
					map[string]any{"upc": "1", "inStock": true, "estimate": float64(50)},
					map[string]any{"upc": "2", "inStock": false, "estimate": float64(0)},
					map[string]any{"upc": "3", "inStock": true, "estimate": float64(25)},
				},
			},
		},
		{
			name: "fragments aliases and variables",
			query: `query Top($n: Int) { top: topProducts(first: $n) { ...Stock } }
				fragment Stock on Product { upc inStock reviews { author { handle: username } } }`,
			variables: map[string]any{"n": 2},
			want: map[string]any{
				"top": []any{
					map[string]any{
						"upc":     "1",
						"inStock": true,
						"reviews": []any{
							map[string]any{"author": map[string]any{"handle": "@ada"}},
							map[string]any{"author": map[string]any{"handle": "@complete"}},
						},
					},
					map[string]any{
						"upc":     "2",
						"inStock": false,
						"reviews": []any{
							map[string]any{"author": map[string]any{"handle": "@ada"}},
						},
					},
				},
			},
		},
		{
			name:      "skip",
			query:     `query Users($skip: Boolean!) { users { id name @skip(if: $skip) } }`,
			variables: map[string]any{"skip": true},
			want: map[string]any{
				"users": []any{
					map[string]any{"id": "1"},
					map[string]any{"id": "2"},
				},
			},
		},
		{
			name:  "typename and arguments",
			query: `{ __typename user(id: "2") { __typename username } }`,
			want: map[string]any{
				"__typename": "Query",
				"user":       map[string]any{"__typename": "User", "username": "@complete"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := execute(t, gw, tt.query, tt.variables)
			require.Nil(t, resp["errors"])
			require.Equal(t, tt.want, resp["data"])
		})
	}
}

func TestGateway_Execute_ServiceFailure(t *testing.T) {
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer broken.Close()

	list := startServices(t)
	for i := range list {
		if list[i].Name != "inventory" {
			continue
		}
		for _, def := range services.Definitions() {
			if def.Name == "inventory" {
				path := filepath.Join(t.TempDir(), "inventory.graphql")
				require.NoError(t, os.WriteFile(path, []byte(def.SDL), 0o600))
				list[i].SchemaFiles = []string{path}
			}
		}
		list[i].Host = broken.URL
	}

	gw := newGateway(t, list)
	resp := execute(t, gw, `{ topProducts(first: 1) { name inStock } }`, nil)

	require.Equal(t, map[string]any{"topProducts": nil}, resp["data"])
	errs, ok := resp["errors"].([]any)
	require.True(t, ok)
	require.Len(t, errs, 1)
	require.Contains(t, errs[0].(map[string]any)["message"], "inventory")
}

func TestGateway_Parse(t *testing.T) {
	gw := newGateway(t, startServices(t))

	_, err := gw.Parse(`{ invalid`)
	require.Error(t, err)

	_, err = gw.Parse(`{ me { unknownField } }`)
	var verr *execution.ValidationError
	require.ErrorAs(t, err, &verr)
	require.NotEmpty(t, verr.Errors)

	doc, err := gw.Parse(`{ topProducts { upc } }`)
	require.NoError(t, err)
	require.Len(t, doc.Definitions, 1)
}

func TestGateway_SDL(t *testing.T) {
	gw := newGateway(t, startServices(t))
	require.Contains(t, gw.SDL(), "shippingEstimate")
	require.NotNil(t, gw.Schema().QueryType())
}

func TestNewGateway_Errors(t *testing.T) {
	tests := []struct {
		name string
		opt  stitching.Option
	}{
		{name: "no services"},
		{
			name: "duplicate service",
			opt: stitching.Option{
				Services: []gateway.GatewayService{{Name: "a", Host: "http://a"}, {Name: "a", Host: "http://b"}},
			},
		},
		{
			name: "invalid timeout",
			opt: stitching.Option{
				TimeoutDuration: "soon",
				Services:        []gateway.GatewayService{{Name: "a", Host: "http://a"}},
			},
		},
		{
			name: "unreachable service",
			opt: stitching.Option{
				Services: []gateway.GatewayService{{Name: "accounts", Host: "http://127.0.0.1:1/graphql"}},
				Retry:    gateway.RetryOption{Attempts: 1, Timeout: "200ms"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := stitching.NewGateway(context.Background(), tt.opt)
			require.Error(t, err)
		})
	}
}
