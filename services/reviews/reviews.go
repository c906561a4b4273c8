package reviews

import (
	"context"

	"github.com/graphql-go/graphql"
	"github.com/n9te9/federation-benchmark/federation/subgraph"
	"github.com/n9te9/federation-benchmark/schemabuilder"
)

const Name = "reviews"

const SDL = `type Review @key(fields: "id") {
  id: ID!
  body: String
  author: User
  product: Product
}

extend type User @key(fields: "id") {
  id: ID! @external
  reviews: [Review]
}

extend type Product @key(fields: "upc") {
  upc: String! @external
  reviews: [Review]
}
`

// Review is a stored review. AuthorID and ProductUPC reference entities owned
// by other services.
type Review struct {
	ID         string
	AuthorID   string
	ProductUPC string
	Body       string
}

var reviews = []Review{
	{ID: "1", AuthorID: "1", ProductUPC: "1", Body: "Love it!"},
	{ID: "2", AuthorID: "1", ProductUPC: "2", Body: "Too expensive."},
	{ID: "3", AuthorID: "2", ProductUPC: "3", Body: "Could be better."},
	{ID: "4", AuthorID: "2", ProductUPC: "1", Body: "Prefer something else."},
}

// Value is the GraphQL source value of the review.
func (r Review) Value() map[string]any {
	return map[string]any{
		"__typename": "Review",
		"id":         r.ID,
		"body":       r.Body,
		"authorID":   r.AuthorID,
		"productUPC": r.ProductUPC,
	}
}

// ByAuthor returns the reviews written by the user with id.
func ByAuthor(id string) []Review {
	var list []Review
	for _, r := range reviews {
		if r.AuthorID == id {
			list = append(list, r)
		}
	}
	return list
}

// ByProduct returns the reviews of the product with upc.
func ByProduct(upc string) []Review {
	var list []Review
	for _, r := range reviews {
		if r.ProductUPC == upc {
			list = append(list, r)
		}
	}
	return list
}

// Find returns the review with id.
func Find(id string) (Review, bool) {
	for _, r := range reviews {
		if r.ID == id {
			return r, true
		}
	}
	return Review{}, false
}

// Values converts reviews to GraphQL source values.
func Values(list []Review) []any {
	values := make([]any, len(list))
	for i, r := range list {
		values[i] = r.Value()
	}
	return values
}

func sourceString(p graphql.ResolveParams, key string) string {
	m, _ := p.Source.(map[string]any)
	s, _ := m[key].(string)
	return s
}

func Definition() subgraph.Definition {
	return subgraph.Definition{
		Name: Name,
		SDL:  SDL,
		Resolvers: schemabuilder.ResolverMap{
			"Review": schemabuilder.ObjectResolver{
				"author": func(p graphql.ResolveParams) (any, error) {
					return map[string]any{"__typename": "User", "id": sourceString(p, "authorID")}, nil
				},
				"product": func(p graphql.ResolveParams) (any, error) {
					return map[string]any{"__typename": "Product", "upc": sourceString(p, "productUPC")}, nil
				},
			},
			"User": schemabuilder.ObjectResolver{
				"reviews": func(p graphql.ResolveParams) (any, error) {
					return Values(ByAuthor(sourceString(p, "id"))), nil
				},
			},
			"Product": schemabuilder.ObjectResolver{
				"reviews": func(p graphql.ResolveParams) (any, error) {
					return Values(ByProduct(sourceString(p, "upc"))), nil
				},
			},
		},
		Entities: map[string]subgraph.EntityResolver{
			"Review": func(_ context.Context, rep map[string]any) (any, error) {
				id, _ := rep["id"].(string)
				if r, ok := Find(id); ok {
					return r.Value(), nil
				}
				return nil, nil
			},
			"User": func(_ context.Context, rep map[string]any) (any, error) {
				return map[string]any{"__typename": "User", "id": rep["id"]}, nil
			},
			"Product": func(_ context.Context, rep map[string]any) (any, error) {
				return map[string]any{"__typename": "Product", "upc": rep["upc"]}, nil
			},
		},
	}
}
