package stitching

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/n9te9/federation-benchmark/federation/executor"
	"github.com/n9te9/federation-benchmark/federation/graph"
	"github.com/vektah/gqlparser/v2/ast"
)

// batch is one _entities request for the objects of a type.
type batch struct {
	subGraph *graph.SubGraph
	fields   ast.SelectionSet
	after    []*graph.SubGraph
	done     bool
}

// hydrate completes the objects in value, all fetched from from, with the
// fields of sels other services own. Objects are grouped by __typename and
// each foreign service is asked once per group. Nested objects are hydrated
// level by level.
func (g *Gateway) hydrate(ctx context.Context, value any, sels ast.SelectionSet, from *graph.SubGraph) error {
	groups := make(map[string][]map[string]any)
	var order []string
	collectObjects(value, func(obj map[string]any) {
		typeName, _ := obj["__typename"].(string)
		if typeName == "" {
			return
		}
		if _, ok := groups[typeName]; !ok {
			order = append(order, typeName)
		}
		groups[typeName] = append(groups[typeName], obj)
	})

	for _, typeName := range order {
		if err := g.hydrateType(ctx, typeName, groups[typeName], sels, from); err != nil {
			return err
		}
	}
	return nil
}

func (g *Gateway) hydrateType(ctx context.Context, typeName string, objects []map[string]any, sels ast.SelectionSet, from *graph.SubGraph) error {
	fields := g.collectFields(typeName, sels)

	batches := make(map[*graph.SubGraph]*batch)
	var order []*batch
	batchFor := func(sg *graph.SubGraph) *batch {
		b, ok := batches[sg]
		if !ok {
			b = &batch{subGraph: sg}
			batches[sg] = b
			order = append(order, b)
		}
		return b
	}

	for _, f := range fields {
		if f.Name == "__typename" || g.superGraph.CanResolve(from, typeName, f.Name) {
			continue
		}
		owner := g.entityOwner(typeName, f.Name)
		if owner == nil {
			continue
		}

		b := batchFor(owner)
		b.fields = append(b.fields, f)
		for _, req := range g.superGraph.Requires(owner, typeName, f.Name) {
			if g.superGraph.CanResolve(from, typeName, req) {
				continue
			}
			provider := g.entityOwner(typeName, req)
			if provider == nil || provider == owner {
				continue
			}
			p := batchFor(provider)
			p.fields = appendPlain(p.fields, req)
			b.after = append(b.after, provider)
		}
	}

	for remaining := len(order); remaining > 0; {
		progressed := false
		for _, b := range order {
			if b.done || !g.ready(b, batches) {
				continue
			}
			if err := g.fetchEntities(ctx, b, typeName, objects); err != nil {
				return err
			}
			b.done = true
			remaining--
			progressed = true
		}
		if !progressed {
			return fmt.Errorf("cyclic @requires between services for %s", typeName)
		}
	}

	for _, f := range fields {
		if len(f.SelectionSet) == 0 {
			continue
		}
		source := from
		if !g.superGraph.CanResolve(from, typeName, f.Name) {
			source = g.entityOwner(typeName, f.Name)
			if source == nil {
				continue
			}
		}

		var children []any
		for _, obj := range objects {
			if v := obj[f.Alias]; v != nil {
				children = append(children, v)
			}
		}
		if len(children) == 0 {
			continue
		}
		if err := g.hydrate(ctx, children, f.SelectionSet, source); err != nil {
			return err
		}
	}

	return nil
}

func (g *Gateway) ready(b *batch, batches map[*graph.SubGraph]*batch) bool {
	for _, sg := range b.after {
		if dep := batches[sg]; dep != nil && !dep.done {
			return false
		}
	}
	return true
}

// fetchEntities sends one _entities request for b and merges the results
// into objects. Objects lacking a key or required field are left alone.
func (g *Gateway) fetchEntities(ctx context.Context, b *batch, typeName string, objects []map[string]any) error {
	repFields := append([]string(nil), b.subGraph.KeyFields(typeName)...)
	for _, sel := range b.fields {
		if f, ok := sel.(*ast.Field); ok {
			repFields = append(repFields, g.superGraph.Requires(b.subGraph, typeName, f.Name)...)
		}
	}

	var reps []any
	var targets [][]map[string]any
	index := make(map[string]int)
	for _, obj := range objects {
		rep := map[string]any{"__typename": typeName}
		complete := true
		for _, name := range repFields {
			v, ok := obj[name]
			if !ok {
				complete = false
				break
			}
			rep[name] = v
		}
		if !complete {
			continue
		}

		key, err := json.Marshal(rep)
		if err != nil {
			return fmt.Errorf("failed to encode representation: %w", err)
		}
		i, ok := index[string(key)]
		if !ok {
			i = len(reps)
			index[string(key)] = i
			reps = append(reps, rep)
			targets = append(targets, nil)
		}
		targets[i] = append(targets[i], obj)
	}
	if len(reps) == 0 {
		return nil
	}

	query := printOperation(&ast.OperationDefinition{
		Operation: ast.Query,
		VariableDefinitions: ast.VariableDefinitionList{{
			Variable: "representations",
			Type:     ast.NonNullListType(ast.NonNullNamedType("_Any", nil), nil),
		}},
		SelectionSet: ast.SelectionSet{&ast.Field{
			Alias: "_entities",
			Name:  "_entities",
			Arguments: ast.ArgumentList{{
				Name:  "representations",
				Value: &ast.Value{Kind: ast.Variable, Raw: "representations"},
			}},
			SelectionSet: ast.SelectionSet{&ast.InlineFragment{
				TypeCondition: typeName,
				SelectionSet:  g.selectionFor(b.subGraph, typeName, b.fields),
			}},
		}},
	})

	resp, err := g.send(ctx, b.subGraph.Host, query, map[string]any{"representations": reps})
	if err != nil {
		return fmt.Errorf("%s: %w", b.subGraph.Name, err)
	}

	entities, _ := resp.Data["_entities"].([]any)
	if len(entities) != len(reps) {
		if len(resp.Errors) > 0 {
			return fmt.Errorf("%s: %w", b.subGraph.Name, resp.Errors)
		}
		return fmt.Errorf("%s returned %d entities for %d representations", b.subGraph.Name, len(entities), len(reps))
	}

	for i, entity := range entities {
		if _, ok := entity.(map[string]any); !ok {
			continue
		}
		for _, obj := range targets[i] {
			if err := executor.Merge(obj, entity, nil); err != nil {
				return err
			}
		}
	}

	return nil
}

// collectFields returns the fields of sels that apply to an object of
// typeName. Fields sharing a response key are merged into one.
func (g *Gateway) collectFields(typeName string, sels ast.SelectionSet) []*ast.Field {
	var fields []*ast.Field
	byKey := make(map[string]*ast.Field)

	var walk func(sels ast.SelectionSet)
	walk = func(sels ast.SelectionSet) {
		for _, sel := range sels {
			switch s := sel.(type) {
			case *ast.Field:
				existing, ok := byKey[s.Alias]
				if !ok {
					cp := *s
					byKey[s.Alias] = &cp
					fields = append(fields, &cp)
					continue
				}
				existing.SelectionSet = append(append(ast.SelectionSet(nil), existing.SelectionSet...), s.SelectionSet...)
			case *ast.InlineFragment:
				if g.applies(s.TypeCondition, typeName) {
					walk(s.SelectionSet)
				}
			}
		}
	}
	walk(sels)

	return fields
}

// applies reports whether a fragment on typeCondition applies to an object
// of typeName.
func (g *Gateway) applies(typeCondition, typeName string) bool {
	if typeCondition == "" || typeCondition == typeName {
		return true
	}
	def := g.superGraph.Schema.Types[typeCondition]
	if def == nil || !def.IsAbstractType() {
		return false
	}
	for _, possible := range g.superGraph.Schema.GetPossibleTypes(def) {
		if possible.Name == typeName {
			return true
		}
	}
	return false
}

func collectObjects(value any, visit func(map[string]any)) {
	switch v := value.(type) {
	case map[string]any:
		visit(v)
	case []any:
		for _, elem := range v {
			collectObjects(elem, visit)
		}
	}
}
