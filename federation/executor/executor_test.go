package executor_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/n9te9/federation-benchmark/federation/executor"
	"github.com/n9te9/federation-benchmark/federation/graph"
	"github.com/n9te9/federation-benchmark/federation/planner"
	"github.com/n9te9/federation-benchmark/services"
	"github.com/vektah/gqlparser/v2"
)

// startSuperGraph starts the demo services and composes them. hosts
// overrides the endpoint of a service.
func startSuperGraph(t *testing.T, hosts map[string]string) *graph.SuperGraph {
	t.Helper()

	options := services.DefaultOptions()
	for i := range options {
		options[i].Port = 0
	}
	cluster, err := services.Start(context.Background(), "127.0.0.1", options, nil)
	if err != nil {
		t.Fatalf("services.Start: %v", err)
	}
	t.Cleanup(func() { cluster.Close() })

	urls := make(map[string]string)
	for _, e := range cluster.Endpoints() {
		urls[e.Name] = e.URL
	}
	for name, host := range hosts {
		urls[name] = host
	}

	var subGraphs []*graph.SubGraph
	for _, def := range services.Definitions() {
		sg, err := graph.NewSubGraph(def.Name, []byte(def.SDL), urls[def.Name])
		if err != nil {
			t.Fatalf("NewSubGraph: %v", err)
		}
		subGraphs = append(subGraphs, sg)
	}

	superGraph, err := graph.NewSuperGraph(subGraphs)
	if err != nil {
		t.Fatalf("NewSuperGraph: %v", err)
	}
	return superGraph
}

func execute(t *testing.T, ctx context.Context, superGraph *graph.SuperGraph, query string, variables map[string]any) map[string]any {
	t.Helper()

	doc, errs := gqlparser.LoadQueryWithRules(superGraph.Schema, query, nil)
	if len(errs) > 0 {
		t.Fatalf("invalid query: %v", errs)
	}

	plan, err := planner.NewPlanner(superGraph).Plan(doc, "")
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}

	resp, err := executor.NewExecutor(http.DefaultClient, superGraph).Execute(ctx, plan, variables)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	return resp
}

func TestExecutor_Execute(t *testing.T) {
	superGraph := startSuperGraph(t, nil)

	tests := []struct {
		name      string
		query     string
		variables map[string]any
		want      map[string]any
	}{
		{
			name:  "root query",
			query: `{ me { id name } }`,
			want: map[string]any{
				"me": map[string]any{"id": "1", "name": "Ada Lovelace"},
			},
		},
		{
			name: "entities across every service",
			query: `{
				topProducts(first: 2) {
					name
					inStock
					shippingEstimate
					reviews { body author { name } }
				}
			}`,
			want: map[string]any{
				"topProducts": []any{
					map[string]any{
						"name":             "Table",
						"inStock":          true,
						"shippingEstimate": float64(50),
						"reviews": []any{
							map[string]any{"body": "Love it!", "author": map[string]any{"name": "Ada Lovelace"}},
							map[string]any{"body": "Prefer something else.", "author": map[string]any{"name": "Alan Turing"}},
						},
					},
					map[string]any{
						"name":             "Couch",
						"inStock":          false,
						"shippingEstimate": float64(0),
						"reviews": []any{
							map[string]any{"body": "Too expensive.", "author": map[string]any{"name": "Ada Lovelace"}},
						},
					},
				},
			},
		},
		{
			name: "fragments, aliases and typename",
			query: `
				query {
					__typename
					viewer: me { ...UserInfo }
				}
				fragment UserInfo on User { __typename handle: username reviews { product { title: name } } }
			`,
			want: map[string]any{
				"__typename": "Query",
				"viewer": map[string]any{
					"__typename": "User",
					"handle":     "@ada",
					"reviews": []any{
						map[string]any{"product": map[string]any{"title": "Table"}},
						map[string]any{"product": map[string]any{"title": "Couch"}},
					},
				},
			},
		},
		{
			name:      "variables and skip",
			query:     `query($n: Int, $skip: Boolean!) { topProducts(first: $n) { name inStock @skip(if: $skip) } }`,
			variables: map[string]any{"n": 1, "skip": true},
			want: map[string]any{
				"topProducts": []any{map[string]any{"name": "Table"}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := execute(t, context.Background(), superGraph, tt.query, tt.variables)
			if errs, ok := resp["errors"]; ok {
				t.Fatalf("unexpected errors: %v", errs)
			}
			if diff := cmp.Diff(tt.want, resp["data"]); diff != "" {
				t.Errorf("data mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestExecutor_Execute_SubGraphFailure(t *testing.T) {
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer broken.Close()

	superGraph := startSuperGraph(t, map[string]string{"inventory": broken.URL})

	resp := execute(t, context.Background(), superGraph, `{ topProducts(first: 1) { name inStock } }`, nil)

	want := map[string]any{
		"topProducts": []any{map[string]any{"name": "Table", "inStock": nil}},
	}
	if diff := cmp.Diff(want, resp["data"]); diff != "" {
		t.Errorf("data mismatch (-want +got):\n%s", diff)
	}

	errs, ok := resp["errors"].([]executor.GraphQLError)
	if !ok || len(errs) != 1 {
		t.Fatalf("errors = %#v, want one error", resp["errors"])
	}
	if errs[0].Extensions["serviceName"] != "inventory" {
		t.Errorf("serviceName = %v, want inventory", errs[0].Extensions["serviceName"])
	}
	if diff := cmp.Diff([]any{"topProducts"}, errs[0].Path); diff != "" {
		t.Errorf("path mismatch (-want +got):\n%s", diff)
	}
}

func TestExecutor_Execute_ForwardsRequestHeader(t *testing.T) {
	var got http.Header
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"hello":"world"}}`))
	}))
	defer upstream.Close()

	sg, err := graph.NewSubGraph("hello", []byte(`type Query { hello: String }`), upstream.URL)
	if err != nil {
		t.Fatal(err)
	}
	superGraph, err := graph.NewSuperGraph([]*graph.SubGraph{sg})
	if err != nil {
		t.Fatal(err)
	}

	ctx := executor.SetRequestHeaderToContext(context.Background(), http.Header{
		"Authorization":  []string{"Bearer token"},
		"Content-Length": []string{"999"},
	})
	resp := execute(t, ctx, superGraph, `{ hello }`, nil)

	if diff := cmp.Diff(map[string]any{"hello": "world"}, resp["data"]); diff != "" {
		t.Errorf("data mismatch (-want +got):\n%s", diff)
	}
	if got.Get("Authorization") != "Bearer token" {
		t.Errorf("Authorization = %q, want forwarded", got.Get("Authorization"))
	}
	if got.Get("Content-Type") != "application/json" {
		t.Errorf("Content-Type = %q", got.Get("Content-Type"))
	}
}

func TestExecutor_Execute_InvalidPlan(t *testing.T) {
	sg, _ := graph.NewSubGraph("a", []byte(`type Query { a: Int }`), "http://a")
	superGraph, err := graph.NewSuperGraph([]*graph.SubGraph{sg})
	if err != nil {
		t.Fatal(err)
	}
	doc, errs := gqlparser.LoadQueryWithRules(superGraph.Schema, `{ a }`, nil)
	if len(errs) > 0 {
		t.Fatal(errs)
	}

	plan := &planner.Plan{
		Operation: doc.Operations[0],
		RootType:  "Query",
		Steps: []*planner.Step{
			{ID: 0, SubGraph: sg, DependsOn: []int{1}},
			{ID: 1, SubGraph: sg, DependsOn: []int{0}},
		},
	}
	if _, err := executor.NewExecutor(nil, superGraph).Execute(context.Background(), plan, nil); err == nil {
		t.Fatal("expected error for cyclic plan")
	}
}
