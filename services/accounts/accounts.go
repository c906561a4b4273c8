package accounts

import (
	"context"

	"github.com/graphql-go/graphql"
	"github.com/n9te9/federation-benchmark/federation/subgraph"
	"github.com/n9te9/federation-benchmark/schemabuilder"
)

const Name = "accounts"

const SDL = `type User @key(fields: "id") {
  id: ID!
  name: String
  username: String
}

extend type Query {
  me: User
  user(id: ID!): User
  users: [User]
}
`

var users = []map[string]any{
	{"__typename": "User", "id": "1", "name": "Ada Lovelace", "username": "@ada"},
	{"__typename": "User", "id": "2", "name": "Alan Turing", "username": "@complete"},
}

// Me returns the signed-in user, which is always the first account.
func Me() map[string]any {
	return users[0]
}

// Find returns the user with id.
func Find(id string) (map[string]any, bool) {
	for _, u := range users {
		if u["id"] == id {
			return u, true
		}
	}
	return nil, false
}

// All returns every user.
func All() []any {
	list := make([]any, len(users))
	for i, u := range users {
		list[i] = u
	}
	return list
}

func findUser(id any) any {
	s, _ := id.(string)
	if u, ok := Find(s); ok {
		return u
	}
	return nil
}

func Definition() subgraph.Definition {
	return subgraph.Definition{
		Name: Name,
		SDL:  SDL,
		Resolvers: schemabuilder.ResolverMap{
			"Query": schemabuilder.ObjectResolver{
				"me": func(graphql.ResolveParams) (any, error) {
					return Me(), nil
				},
				"user": func(p graphql.ResolveParams) (any, error) {
					return findUser(p.Args["id"]), nil
				},
				"users": func(graphql.ResolveParams) (any, error) {
					return All(), nil
				},
			},
		},
		Entities: map[string]subgraph.EntityResolver{
			"User": func(_ context.Context, rep map[string]any) (any, error) {
				return findUser(rep["id"]), nil
			},
		},
	}
}
