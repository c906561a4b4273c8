package stitching

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/goccy/go-json"
	"github.com/graphql-go/graphql"
	"github.com/n9te9/federation-benchmark/federation/graph"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/formatter"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"go.uber.org/zap"
)

type response struct {
	Data   map[string]any `json:"data"`
	Errors gqlerror.List  `json:"errors"`
}

// rootResolver delegates a root field to the service owning it and hydrates
// the returned objects with the fields other services own.
func (g *Gateway) rootResolver(rootType string, field *ast.FieldDefinition) graphql.FieldResolveFn {
	operation := ast.Query
	if m := g.superGraph.Schema.Mutation; m != nil && m.Name == rootType {
		operation = ast.Mutation
	}

	return func(p graphql.ResolveParams) (any, error) {
		owner := g.superGraph.GetFieldOwnerSubGraph(rootType, field.Name)
		if owner == nil {
			return nil, fmt.Errorf("no service resolves %s.%s", rootType, field.Name)
		}

		c := newConverter(g.superGraph.Schema, p.Info)
		var fields, children ast.SelectionSet
		for _, f := range p.Info.FieldASTs {
			converted, err := c.field(rootType, f)
			if err != nil {
				return nil, err
			}
			fields = append(fields, converted)
			children = append(children, converted.SelectionSet...)
		}

		query := printOperation(&ast.OperationDefinition{
			Operation:    operation,
			SelectionSet: g.selectionFor(owner, rootType, fields),
		})

		resp, err := g.send(p.Context, owner.Host, query, nil)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", owner.Name, err)
		}

		value := resp.Data[responseKey(p.Info)]
		if len(resp.Errors) > 0 {
			if value == nil {
				return nil, resp.Errors
			}
			g.logger.Debug("delegated field returned errors",
				zap.String("service", owner.Name),
				zap.String("field", field.Name),
				zap.Error(resp.Errors))
		}

		if value != nil && len(children) > 0 {
			if err := g.hydrate(p.Context, value, children, owner); err != nil {
				return nil, err
			}
		}

		return value, nil
	}
}

// selectionFor rewrites sels on typeName into the selection sg can answer.
// Fields sg resolves are kept. A field owned by another service is replaced
// by the keys and @requires fields that service needs, as far as sg can
// provide them. Every object carries __typename.
func (g *Gateway) selectionFor(sg *graph.SubGraph, typeName string, sels ast.SelectionSet) ast.SelectionSet {
	out := ast.SelectionSet{plainField("__typename")}

	for _, sel := range sels {
		switch s := sel.(type) {
		case *ast.Field:
			if s.Name == "__typename" {
				continue
			}
			if g.superGraph.CanResolve(sg, typeName, s.Name) {
				local := &ast.Field{
					Alias:     s.Alias,
					Name:      s.Name,
					Arguments: s.Arguments,
				}
				if len(s.SelectionSet) > 0 && s.Definition != nil {
					local.SelectionSet = g.selectionFor(sg, s.Definition.Type.Name(), s.SelectionSet)
				}
				out = append(out, local)
				continue
			}
			out = appendPlain(out, g.boundaryFields(sg, typeName, s.Name)...)

		case *ast.InlineFragment:
			if def := g.superGraph.Schema.Types[s.TypeCondition]; def != nil && def.Kind == ast.Object && !sg.HasType(s.TypeCondition) {
				continue
			}
			out = append(out, &ast.InlineFragment{
				TypeCondition: s.TypeCondition,
				SelectionSet:  g.selectionFor(sg, s.TypeCondition, s.SelectionSet),
			})
		}
	}

	return out
}

// boundaryFields lists the fields sg must return so that fieldName of
// typeName can be fetched from its owner.
func (g *Gateway) boundaryFields(sg *graph.SubGraph, typeName, fieldName string) []string {
	owner := g.entityOwner(typeName, fieldName)
	if owner == nil {
		return nil
	}

	var names []string
	for _, key := range owner.KeyFields(typeName) {
		if g.superGraph.CanResolve(sg, typeName, key) {
			names = append(names, key)
		}
	}
	for _, req := range g.superGraph.Requires(owner, typeName, fieldName) {
		if g.superGraph.CanResolve(sg, typeName, req) {
			names = append(names, req)
		}
	}
	return names
}

// entityOwner returns the first owner of the field that resolves typeName
// through _entities.
func (g *Gateway) entityOwner(typeName, fieldName string) *graph.SubGraph {
	for _, owner := range g.superGraph.GetSubGraphsForField(typeName, fieldName) {
		if g.superGraph.EntityFetchable(owner, typeName) {
			return owner
		}
	}
	return nil
}

func (g *Gateway) send(ctx context.Context, host, query string, variables map[string]any) (*response, error) {
	reqBody := map[string]any{"query": query}
	if len(variables) > 0 {
		reqBody["variables"] = variables
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, host, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var result response
	if err := json.Unmarshal(respBody, &result); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("service responded %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
		}
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return &result, nil
}

func printOperation(op *ast.OperationDefinition) string {
	var buf bytes.Buffer
	formatter.NewFormatter(&buf).FormatQueryDocument(&ast.QueryDocument{
		Operations: ast.OperationList{op},
	})
	return buf.String()
}

func plainField(name string) *ast.Field {
	return &ast.Field{Alias: name, Name: name}
}

// appendPlain appends unaliased leaf fields that are not selected yet.
func appendPlain(sels ast.SelectionSet, names ...string) ast.SelectionSet {
	for _, name := range names {
		if !hasField(sels, name) {
			sels = append(sels, plainField(name))
		}
	}
	return sels
}

func hasField(sels ast.SelectionSet, name string) bool {
	for _, sel := range sels {
		if f, ok := sel.(*ast.Field); ok && f.Alias == name && f.Name == name && len(f.SelectionSet) == 0 {
			return true
		}
	}
	return false
}
