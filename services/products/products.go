package products

import (
	"context"

	"github.com/graphql-go/graphql"
	"github.com/n9te9/federation-benchmark/federation/subgraph"
	"github.com/n9te9/federation-benchmark/schemabuilder"
)

const Name = "products"

const SDL = `type Product @key(fields: "upc") {
  upc: String!
  name: String
  price: Int
  weight: Int
}

extend type Query {
  topProducts(first: Int = 5): [Product]
}
`

var products = []map[string]any{
	{"__typename": "Product", "upc": "1", "name": "Table", "price": 899, "weight": 100},
	{"__typename": "Product", "upc": "2", "name": "Couch", "price": 1299, "weight": 1000},
	{"__typename": "Product", "upc": "3", "name": "Chair", "price": 54, "weight": 50},
}

// Top returns at most first products.
func Top(first int) []any {
	if first < 0 {
		first = 0
	}
	if first > len(products) {
		first = len(products)
	}

	list := make([]any, first)
	for i := 0; i < first; i++ {
		list[i] = products[i]
	}
	return list
}

// Find returns the product with upc.
func Find(upc string) (map[string]any, bool) {
	for _, p := range products {
		if p["upc"] == upc {
			return p, true
		}
	}
	return nil, false
}

func findProduct(upc any) any {
	s, _ := upc.(string)
	if p, ok := Find(s); ok {
		return p
	}
	return nil
}

func Definition() subgraph.Definition {
	return subgraph.Definition{
		Name: Name,
		SDL:  SDL,
		Resolvers: schemabuilder.ResolverMap{
			"Query": schemabuilder.ObjectResolver{
				"topProducts": func(p graphql.ResolveParams) (any, error) {
					first, _ := p.Args["first"].(int)
					return Top(first), nil
				},
			},
		},
		Entities: map[string]subgraph.EntityResolver{
			"Product": func(_ context.Context, rep map[string]any) (any, error) {
				return findProduct(rep["upc"]), nil
			},
		},
	}
}
