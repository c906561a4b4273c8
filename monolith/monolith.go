package monolith

import (
	"context"
	"fmt"

	"github.com/graphql-go/graphql"
	gast "github.com/graphql-go/graphql/language/ast"
	"github.com/n9te9/federation-benchmark/execution"
	"github.com/n9te9/federation-benchmark/schemabuilder"
	"github.com/n9te9/federation-benchmark/services"
	"github.com/n9te9/federation-benchmark/services/accounts"
	"github.com/n9te9/federation-benchmark/services/inventory"
	"github.com/n9te9/federation-benchmark/services/products"
	"github.com/n9te9/federation-benchmark/services/reviews"
	"github.com/vektah/gqlparser/v2/ast"
)

// Monolith serves the types of every demo service from one in-process
// schema.
type Monolith struct {
	schema graphql.Schema
	sdl    string
}

// New composes the SDL of the demo services and binds resolvers that read
// the service data directly.
func New() (*Monolith, error) {
	var sources []*ast.Source
	for _, def := range services.Definitions() {
		sources = append(sources, &ast.Source{Name: def.Name, Input: def.SDL})
	}

	composed, doc, err := schemabuilder.ComposeSDL("monolith", sources...)
	if err != nil {
		return nil, err
	}

	schema, err := schemabuilder.Build(composed, resolvers(), schemabuilder.Options{})
	if err != nil {
		return nil, fmt.Errorf("monolith: %w", err)
	}

	return &Monolith{
		schema: schema,
		sdl:    schemabuilder.Print(doc),
	}, nil
}

// Schema returns the executable schema.
func (m *Monolith) Schema() *graphql.Schema {
	return &m.schema
}

// SDL returns the composed type definitions.
func (m *Monolith) SDL() string {
	return m.sdl
}

// Parse parses query and validates it against the schema.
func (m *Monolith) Parse(query string) (*gast.Document, error) {
	return execution.Parse(&m.schema, query)
}

// Execute runs a prepared document. The result is immediate.
func (m *Monolith) Execute(ctx context.Context, doc *gast.Document, params execution.NormalizedParams) (execution.Result, error) {
	params.Schema = &m.schema
	params.Document = doc
	return execution.NormalizedExecutor(ctx, params)
}

func resolvers() schemabuilder.ResolverMap {
	return schemabuilder.ResolverMap{
		"Query": schemabuilder.ObjectResolver{
			"me": func(graphql.ResolveParams) (any, error) {
				return accounts.Me(), nil
			},
			"user": func(p graphql.ResolveParams) (any, error) {
				id, _ := p.Args["id"].(string)
				return user(id), nil
			},
			"users": func(graphql.ResolveParams) (any, error) {
				return accounts.All(), nil
			},
			"topProducts": func(p graphql.ResolveParams) (any, error) {
				first, _ := p.Args["first"].(int)
				return products.Top(first), nil
			},
		},
		"User": schemabuilder.ObjectResolver{
			"reviews": func(p graphql.ResolveParams) (any, error) {
				return reviews.Values(reviews.ByAuthor(sourceString(p, "id"))), nil
			},
		},
		"Product": schemabuilder.ObjectResolver{
			"inStock": func(p graphql.ResolveParams) (any, error) {
				return inventory.InStock(sourceString(p, "upc")), nil
			},
			"shippingEstimate": func(p graphql.ResolveParams) (any, error) {
				product, _ := p.Source.(map[string]any)
				return inventory.ShippingEstimate(product["price"], product["weight"]), nil
			},
			"reviews": func(p graphql.ResolveParams) (any, error) {
				return reviews.Values(reviews.ByProduct(sourceString(p, "upc"))), nil
			},
		},
		"Review": schemabuilder.ObjectResolver{
			"author": func(p graphql.ResolveParams) (any, error) {
				return user(sourceString(p, "authorID")), nil
			},
			"product": func(p graphql.ResolveParams) (any, error) {
				if product, ok := products.Find(sourceString(p, "productUPC")); ok {
					return product, nil
				}
				return nil, nil
			},
		},
	}
}

func user(id string) any {
	if u, ok := accounts.Find(id); ok {
		return u
	}
	return nil
}

func sourceString(p graphql.ResolveParams, key string) string {
	m, _ := p.Source.(map[string]any)
	s, _ := m[key].(string)
	return s
}
