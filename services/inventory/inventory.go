package inventory

import (
	"context"

	"github.com/graphql-go/graphql"
	"github.com/n9te9/federation-benchmark/federation/subgraph"
	"github.com/n9te9/federation-benchmark/schemabuilder"
)

const Name = "inventory"

const SDL = `extend type Product @key(fields: "upc") {
  upc: String! @external
  weight: Int @external
  price: Int @external
  inStock: Boolean
  shippingEstimate: Int @requires(fields: "price weight")
}
`

var stock = map[string]bool{
	"1": true,
	"2": false,
	"3": true,
}

// InStock reports whether the product with upc is in stock.
func InStock(upc string) bool {
	return stock[upc]
}

// ShippingEstimate is free above a price of 1000, otherwise half the weight.
func ShippingEstimate(price, weight any) any {
	p, ok := toInt(price)
	if !ok {
		return nil
	}
	if p > 1000 {
		return 0
	}

	w, ok := toInt(weight)
	if !ok {
		return nil
	}
	return w / 2
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

func Definition() subgraph.Definition {
	return subgraph.Definition{
		Name: Name,
		SDL:  SDL,
		Resolvers: schemabuilder.ResolverMap{
			"Product": schemabuilder.ObjectResolver{
				"inStock": func(p graphql.ResolveParams) (any, error) {
					product, _ := p.Source.(map[string]any)
					upc, _ := product["upc"].(string)
					return InStock(upc), nil
				},
				"shippingEstimate": func(p graphql.ResolveParams) (any, error) {
					product, _ := p.Source.(map[string]any)
					return ShippingEstimate(product["price"], product["weight"]), nil
				},
			},
		},
		Entities: map[string]subgraph.EntityResolver{
			"Product": func(_ context.Context, rep map[string]any) (any, error) {
				product := make(map[string]any, len(rep))
				for k, v := range rep {
					product[k] = v
				}
				return product, nil
			},
		},
	}
}
