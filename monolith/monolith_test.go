package monolith_test

import (
	"context"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"
	"github.com/n9te9/federation-benchmark/execution"
	"github.com/n9te9/federation-benchmark/monolith"
)

func execute(t *testing.T, m *monolith.Monolith, query string, variables map[string]any) map[string]any {
	t.Helper()

	doc, err := m.Parse(query)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	result, err := m.Execute(context.Background(), doc, execution.NormalizedParams{Variables: variables})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.IsPending() {
		t.Fatal("monolith result is pending")
	}

	b, err := json.Marshal(result.Value())
	if err != nil {
		t.Fatal(err)
	}
	var resp map[string]any
	if err := json.Unmarshal(b, &resp); err != nil {
		t.Fatal(err)
	}
	return resp
}

func TestMonolith_Execute(t *testing.T) {
	m, err := monolith.New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	tests := []struct {
		name      string
		query     string
		variables map[string]any
		want      map[string]any
	}{
		{
			name:  "typename",
			query: `{ __typename }`,
			want:  map[string]any{"__typename": "Query"},
		},
		{
			name:  "nested across service types",
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
			name:      "arguments",
			query:     `query Top($n: Int) { topProducts(first: $n) { upc inStock reviews { author { username } } } }`,
			variables: map[string]any{"n": 1},
			want: map[string]any{
				"topProducts": []any{
					map[string]any{
						"upc":     "1",
						"inStock": true,
						"reviews": []any{
							map[string]any{"author": map[string]any{"username": "@ada"}},
							map[string]any{"author": map[string]any{"username": "@complete"}},
						},
					},
				},
			},
		},
		{
			name:  "default argument",
			query: `{ topProducts { upc } }`,
			want: map[string]any{
				"topProducts": []any{
					map[string]any{"upc": "1"},
					map[string]any{"upc": "2"},
					map[string]any{"upc": "3"},
				},
			},
		},
		{
			name:  "unknown user",
			query: `{ user(id: "42") { name } }`,
			want:  map[string]any{"user": nil},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := execute(t, m, tt.query, tt.variables)
			if resp["errors"] != nil {
				t.Fatalf("unexpected errors: %v", resp["errors"])
			}
			if diff := cmp.Diff(tt.want, resp["data"]); diff != "" {
				t.Errorf("data mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMonolith_Parse(t *testing.T) {
	m, err := monolith.New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	tests := []struct {
		name    string
		query   string
		wantErr bool
	}{
		{name: "valid", query: `{ users { id } }`},
		{name: "syntax error", query: `{ invalid`, wantErr: true},
		{name: "unknown field", query: `{ users { email } }`, wantErr: true},
		{name: "federation field is not exposed", query: `{ _service { sdl } }`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Parse(tt.query)
			if (err != nil) != tt.wantErr {
				t.Errorf("Parse() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMonolith_SDL(t *testing.T) {
	m, err := monolith.New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	sdl := m.SDL()
	for _, want := range []string{"type Query", "shippingEstimate", "type Review"} {
		if !strings.Contains(sdl, want) {
			t.Errorf("SDL lacks %q:\n%s", want, sdl)
		}
	}
}
