package subgraph

import (
	"context"
	"fmt"
	"sort"

	"github.com/graphql-go/graphql"
	"github.com/n9te9/federation-benchmark/schemabuilder"
	"github.com/vektah/gqlparser/v2/ast"
)

// EntityResolver returns the entity identified by a representation, or nil
// when it does not exist.
type EntityResolver func(ctx context.Context, representation map[string]any) (any, error)

// Definition describes a federated service: its SDL, the resolvers of its
// own fields, and one EntityResolver per entity type it can resolve.
type Definition struct {
	Name      string
	SDL       string
	Resolvers schemabuilder.ResolverMap
	Entities  map[string]EntityResolver
}

// Schema is the executable schema of a subgraph.
type Schema struct {
	Name       string
	SDL        string
	Executable graphql.Schema
}

// federationSDL holds the subgraph protocol types. The _Entity union is
// appended per service from its entity types.
const federationSDL = `
scalar _Any

type _Service {
  sdl: String
}

extend type Query {
  _service: _Service!
}
`

// NewSchema builds the executable schema of def with the subgraph protocol
// fields _service and, when def has entities, _entities.
func NewSchema(def Definition) (*Schema, error) {
	entityNames := make([]string, 0, len(def.Entities))
	for name := range def.Entities {
		entityNames = append(entityNames, name)
	}
	sort.Strings(entityNames)

	sources := []*ast.Source{
		{Name: def.Name, Input: def.SDL},
		{Name: "federation", Input: federationSDL},
	}
	if len(entityNames) > 0 {
		sources = append(sources, &ast.Source{
			Name:  "entities",
			Input: entitiesSDL(entityNames),
		})
	}

	schema, _, err := schemabuilder.ComposeSDL(def.Name, sources...)
	if err != nil {
		return nil, fmt.Errorf("subgraph %s: %w", def.Name, err)
	}

	resolvers := schemabuilder.ResolverMap{}
	for typeName, r := range def.Resolvers {
		resolvers[typeName] = r
	}

	query, _ := resolvers["Query"].(schemabuilder.ObjectResolver)
	merged := schemabuilder.ObjectResolver{}
	for field, fn := range query {
		merged[field] = fn
	}
	merged["_service"] = func(graphql.ResolveParams) (any, error) {
		return map[string]any{"sdl": def.SDL}, nil
	}
	if len(entityNames) > 0 {
		merged["_entities"] = entitiesResolver(def.Entities)
	}
	resolvers["Query"] = merged
	resolvers["_Any"] = schemabuilder.ScalarResolver{}

	executable, err := schemabuilder.Build(schema, resolvers, schemabuilder.Options{})
	if err != nil {
		return nil, fmt.Errorf("subgraph %s: %w", def.Name, err)
	}

	return &Schema{
		Name:       def.Name,
		SDL:        def.SDL,
		Executable: executable,
	}, nil
}

func entitiesSDL(entityNames []string) string {
	union := "union _Entity = " + entityNames[0]
	for _, name := range entityNames[1:] {
		union += " | " + name
	}
	return union + `

extend type Query {
  _entities(representations: [_Any!]!): [_Entity]!
}
`
}

// entitiesResolver resolves every representation with the resolver of its
// __typename. The returned list is positionally aligned with the input.
func entitiesResolver(entities map[string]EntityResolver) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (any, error) {
		reps, _ := p.Args["representations"].([]any)

		results := make([]any, len(reps))
		for i, r := range reps {
			rep, ok := r.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("representation %d is not an object", i)
			}

			typeName, _ := rep["__typename"].(string)
			resolve, ok := entities[typeName]
			if !ok {
				return nil, fmt.Errorf("unknown entity type %q", typeName)
			}

			entity, err := resolve(p.Context, rep)
			if err != nil {
				return nil, err
			}
			results[i] = withTypename(entity, typeName)
		}

		return results, nil
	}
}

// withTypename makes sure a map entity carries __typename so the _Entity
// union can resolve its concrete type.
func withTypename(entity any, typeName string) any {
	m, ok := entity.(map[string]any)
	if !ok {
		return entity
	}
	if m == nil {
		return nil
	}
	if _, ok := m["__typename"]; ok {
		return m
	}

	cp := make(map[string]any, len(m)+1)
	for k, v := range m {
		cp[k] = v
	}
	cp["__typename"] = typeName
	return cp
}
