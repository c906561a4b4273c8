package schemabuilder_test

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/graphql-go/graphql"
	"github.com/n9te9/federation-benchmark/schemabuilder"
	"github.com/vektah/gqlparser/v2/ast"
)

const productsSDL = `
type Product @key(fields: "upc") {
  upc: String!
  name: String
  price: Int
}

extend type Query {
  topProducts(first: Int = 2): [Product]
}
`

const inventorySDL = `
extend type Product @key(fields: "upc") {
  upc: String! @external
  inStock: Boolean
}

union SearchResult = Product
`

func TestCompose(t *testing.T) {
	schema, doc, err := schemabuilder.ComposeSDL("supergraph",
		&ast.Source{Name: "products", Input: productsSDL},
		&ast.Source{Name: "inventory", Input: inventorySDL},
	)
	if err != nil {
		t.Fatalf("ComposeSDL: %v", err)
	}

	product := schema.Types["Product"]
	if product == nil {
		t.Fatal("Product missing from composed schema")
	}

	var fields []string
	for _, f := range product.Fields {
		fields = append(fields, f.Name)
		if len(f.Directives) != 0 {
			t.Errorf("field %s kept directives %v", f.Name, f.Directives)
		}
	}
	if diff := cmp.Diff([]string{"upc", "name", "price", "inStock"}, fields); diff != "" {
		t.Errorf("Product fields mismatch (-want +got):\n%s", diff)
	}
	if len(product.Directives) != 0 {
		t.Errorf("Product kept directives %v", product.Directives)
	}

	if schema.Query == nil || schema.Query.Fields.ForName("topProducts") == nil {
		t.Fatal("Query.topProducts missing")
	}
	if len(doc.Extensions) != 0 {
		t.Errorf("composed document still has %d extensions", len(doc.Extensions))
	}

	printed := schemabuilder.Print(doc)
	for _, want := range []string{"type Product", "inStock: Boolean", "union SearchResult = Product"} {
		if !strings.Contains(printed, want) {
			t.Errorf("printed SDL missing %q:\n%s", want, printed)
		}
	}
	if strings.Contains(printed, "@key") {
		t.Errorf("printed SDL still has federation directives:\n%s", printed)
	}
}

func TestCompose_InvalidSDL(t *testing.T) {
	_, _, err := schemabuilder.ComposeSDL("broken", &ast.Source{Name: "broken", Input: "type Query { a: Unknown }"})
	if err == nil {
		t.Fatal("expected validation error")
	}

	_, _, err = schemabuilder.ComposeSDL("broken", &ast.Source{Name: "broken", Input: "type Query {"})
	if err == nil {
		t.Fatal("expected parse error")
	}
}

func TestBuild(t *testing.T) {
	schema, _, err := schemabuilder.ComposeSDL("supergraph",
		&ast.Source{Name: "products", Input: productsSDL},
		&ast.Source{Name: "inventory", Input: inventorySDL + "\nextend type Query { search: [SearchResult] }"},
	)
	if err != nil {
		t.Fatalf("ComposeSDL: %v", err)
	}

	products := []any{
		map[string]any{"__typename": "Product", "upc": "1", "name": "Table", "price": 899},
		map[string]any{"__typename": "Product", "upc": "2", "name": "Couch", "price": 1299},
		map[string]any{"__typename": "Product", "upc": "3", "name": "Chair", "price": 54},
	}

	executable, err := schemabuilder.Build(schema, schemabuilder.ResolverMap{
		"Query": schemabuilder.ObjectResolver{
			"topProducts": func(p graphql.ResolveParams) (any, error) {
				first, _ := p.Args["first"].(int)
				return products[:first], nil
			},
			"search": func(p graphql.ResolveParams) (any, error) {
				return products[2:], nil
			},
		},
		"Product": schemabuilder.ObjectResolver{
			"inStock": func(p graphql.ResolveParams) (any, error) {
				return p.Source.(map[string]any)["upc"] != "2", nil
			},
		},
	}, schemabuilder.Options{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	tests := []struct {
		name  string
		query string
		want  map[string]any
	}{
		{
			name:  "argument default is applied",
			query: `{ topProducts { upc name inStock } }`,
			want: map[string]any{
				"topProducts": []any{
					map[string]any{"upc": "1", "name": "Table", "inStock": true},
					map[string]any{"upc": "2", "name": "Couch", "inStock": false},
				},
			},
		},
		{
			name:  "explicit argument",
			query: `{ topProducts(first: 1) { price } }`,
			want: map[string]any{
				"topProducts": []any{
					map[string]any{"price": 899},
				},
			},
		},
		{
			name:  "union resolves by __typename",
			query: `{ search { __typename ... on Product { name } } }`,
			want: map[string]any{
				"search": []any{
					map[string]any{"__typename": "Product", "name": "Chair"},
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := graphql.Do(graphql.Params{Schema: executable, RequestString: tt.query})
			if res.HasErrors() {
				t.Fatalf("unexpected errors: %v", res.Errors)
			}
			if diff := cmp.Diff(tt.want, res.Data); diff != "" {
				t.Errorf("data mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
