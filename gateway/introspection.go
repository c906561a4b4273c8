package gateway

import (
	"context"
	"fmt"

	"github.com/graphql-go/graphql"
	gast "github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/parser"
	"github.com/n9te9/federation-benchmark/federation/executor"
	"github.com/vektah/gqlparser/v2/ast"
)

func isIntrospection(name string) bool {
	return name == "__schema" || name == "__type"
}

// hasIntrospection reports whether the root selection set asks for
// __schema or __type. No subgraph serves those, so the planner skips them.
func hasIntrospection(sels ast.SelectionSet) bool {
	for _, sel := range sels {
		switch s := sel.(type) {
		case *ast.Field:
			if isIntrospection(s.Name) {
				return true
			}
		case *ast.InlineFragment:
			if hasIntrospection(s.SelectionSet) {
				return true
			}
		case *ast.FragmentSpread:
			if s.Definition != nil && hasIntrospection(s.Definition.SelectionSet) {
				return true
			}
		}
	}
	return false
}

// resolveIntrospection answers the root introspection fields of req from
// the composed schema and merges them into response.
func (e *executionEngine) resolveIntrospection(ctx context.Context, req Request, response map[string]any) error {
	doc, err := parser.Parse(parser.ParseParams{Source: req.Query})
	if err != nil {
		return fmt.Errorf("failed to parse introspection query: %w", err)
	}

	fragments := make(map[string]*gast.FragmentDefinition)
	for _, def := range doc.Definitions {
		if f, ok := def.(*gast.FragmentDefinition); ok && f.Name != nil {
			fragments[f.Name.Value] = f
		}
	}
	// Other root fields would resolve against a nil root and could null
	// the whole result through a non-null type.
	for _, def := range doc.Definitions {
		if op, ok := def.(*gast.OperationDefinition); ok {
			op.SelectionSet = introspectionOnly(op.SelectionSet, fragments)
		}
	}

	result := graphql.Execute(graphql.ExecuteParams{
		Schema:        e.introspection,
		AST:           doc,
		OperationName: req.OperationName,
		Args:          req.Variables,
		Context:       ctx,
	})

	data, _ := response["data"].(map[string]any)
	if data == nil {
		data = make(map[string]any)
		response["data"] = data
	}
	if resolved, ok := result.Data.(map[string]any); ok {
		for key, value := range resolved {
			data[key] = value
		}
	}

	if len(result.Errors) > 0 {
		errs, _ := response["errors"].([]executor.GraphQLError)
		for _, err := range result.Errors {
			errs = append(errs, executor.GraphQLError{Message: err.Message, Path: err.Path})
		}
		response["errors"] = errs
	}

	return nil
}

// introspectionOnly keeps the __schema and __type fields of a root
// selection set. Fragment spreads become inline fragments so that the
// fragment definitions stay untouched.
func introspectionOnly(set *gast.SelectionSet, fragments map[string]*gast.FragmentDefinition) *gast.SelectionSet {
	out := gast.NewSelectionSet(nil)
	if set == nil {
		return out
	}

	for _, sel := range set.Selections {
		switch s := sel.(type) {
		case *gast.Field:
			if s.Name != nil && isIntrospection(s.Name.Value) {
				out.Selections = append(out.Selections, s)
			}
		case *gast.InlineFragment:
			inner := introspectionOnly(s.SelectionSet, fragments)
			if len(inner.Selections) > 0 {
				out.Selections = append(out.Selections, gast.NewInlineFragment(&gast.InlineFragment{
					TypeCondition: s.TypeCondition,
					Directives:    s.Directives,
					SelectionSet:  inner,
				}))
			}
		case *gast.FragmentSpread:
			if s.Name == nil {
				continue
			}
			def := fragments[s.Name.Value]
			if def == nil {
				continue
			}
			inner := introspectionOnly(def.SelectionSet, fragments)
			if len(inner.Selections) > 0 {
				out.Selections = append(out.Selections, gast.NewInlineFragment(&gast.InlineFragment{
					TypeCondition: def.TypeCondition,
					Directives:    s.Directives,
					SelectionSet:  inner,
				}))
			}
		}
	}

	return out
}
