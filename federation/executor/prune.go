package executor

import (
	"github.com/n9te9/federation-benchmark/federation/planner"
	"github.com/vektah/gqlparser/v2/ast"
)

// pruneResponse shapes data after the client's operation: only requested
// response keys are kept, so the keys and __typename fields added for entity
// resolution disappear, and requested fields no step returned are null.
func (e *Executor) pruneResponse(data map[string]any, plan *planner.Plan, variables map[string]any) map[string]any {
	out := make(map[string]any)
	e.pruneObject(data, plan.RootType, plan.Operation.SelectionSet, variables, out)
	return out
}

func (e *Executor) pruneObject(obj map[string]any, typeName string, selections ast.SelectionSet, variables map[string]any, out map[string]any) {
	for _, sel := range selections {
		switch s := sel.(type) {
		case *ast.Field:
			if skipped(s.Directives, variables) {
				continue
			}

			if s.Name == "__typename" {
				if typename, ok := obj["__typename"].(string); ok {
					out[s.Alias] = typename
				} else {
					out[s.Alias] = typeName
				}
				continue
			}

			value, ok := obj[s.Alias]
			if !ok || value == nil {
				if _, exists := out[s.Alias]; !exists {
					out[s.Alias] = nil
				}
				continue
			}
			if len(s.SelectionSet) == 0 || s.Definition == nil {
				out[s.Alias] = value
				continue
			}

			pruned := e.pruneValue(value, s.Definition.Type.Name(), s.SelectionSet, variables)
			out[s.Alias] = mergeValue(out[s.Alias], pruned)

		case *ast.InlineFragment:
			if skipped(s.Directives, variables) || !e.typeMatches(obj, typeName, s.TypeCondition) {
				continue
			}
			e.pruneObject(obj, typeName, s.SelectionSet, variables, out)

		case *ast.FragmentSpread:
			if skipped(s.Directives, variables) || s.Definition == nil || !e.typeMatches(obj, typeName, s.Definition.TypeCondition) {
				continue
			}
			e.pruneObject(obj, typeName, s.Definition.SelectionSet, variables, out)
		}
	}
}

func (e *Executor) pruneValue(value any, typeName string, selections ast.SelectionSet, variables map[string]any) any {
	switch v := value.(type) {
	case []any:
		list := make([]any, len(v))
		for i, elem := range v {
			list[i] = e.pruneValue(elem, typeName, selections, variables)
		}
		return list
	case map[string]any:
		out := make(map[string]any)
		e.pruneObject(v, typeName, selections, variables, out)
		return out
	}
	return value
}

// typeMatches reports whether a fragment with typeCondition applies to obj,
// using the object's __typename when the subgraph returned one.
func (e *Executor) typeMatches(obj map[string]any, typeName, typeCondition string) bool {
	if typeCondition == "" || typeCondition == typeName {
		return true
	}

	concrete := typeName
	if typename, ok := obj["__typename"].(string); ok {
		concrete = typename
	}
	if concrete == typeCondition {
		return true
	}

	schema := e.superGraph.Schema
	def := schema.Types[typeCondition]
	if def == nil || !def.IsAbstractType() {
		return false
	}
	for _, possible := range schema.GetPossibleTypes(def) {
		if possible.Name == concrete {
			return true
		}
	}
	return false
}

// skipped evaluates @skip and @include.
func skipped(directives ast.DirectiveList, variables map[string]any) bool {
	if d := directives.ForName("skip"); d != nil && directiveIf(d, variables) {
		return true
	}
	if d := directives.ForName("include"); d != nil && !directiveIf(d, variables) {
		return true
	}
	return false
}

func directiveIf(d *ast.Directive, variables map[string]any) bool {
	arg := d.Arguments.ForName("if")
	if arg == nil {
		return false
	}
	v, err := arg.Value.Value(variables)
	if err != nil {
		return false
	}
	b, _ := v.(bool)
	return b
}
