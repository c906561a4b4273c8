package executor

import (
	"bytes"
	"fmt"

	"github.com/n9te9/federation-benchmark/federation/planner"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/formatter"
)

const representationsVariable = "representations"

// QueryBuilder prints the subgraph request of a step.
type QueryBuilder struct{}

// NewQueryBuilder creates a new QueryBuilder.
func NewQueryBuilder() *QueryBuilder {
	return &QueryBuilder{}
}

// Build returns the query document and variables to send for step.
// Only the client variables the step's selections reference are forwarded,
// together with their definitions from operation. Entity steps wrap their
// selections in _entities(representations:) with an inline fragment on the
// step's parent type.
func (qb *QueryBuilder) Build(
	step *planner.Step,
	operation *ast.OperationDefinition,
	representations []any,
	variables map[string]any,
) (string, map[string]any, error) {
	if step == nil || operation == nil {
		return "", nil, fmt.Errorf("step and operation are required")
	}

	used := usedVariables(step.SelectionSet, nil)
	definitions := make(ast.VariableDefinitionList, 0, len(used)+1)
	queryVars := make(map[string]any, len(used)+1)
	for _, name := range used {
		def := operation.VariableDefinitions.ForName(name)
		if def == nil {
			return "", nil, fmt.Errorf("variable $%s is not defined by operation", name)
		}
		definitions = append(definitions, def)
		if v, ok := variables[name]; ok {
			queryVars[name] = v
		}
	}

	op := &ast.OperationDefinition{
		Operation:    operation.Operation,
		SelectionSet: step.SelectionSet,
	}

	if step.StepType == planner.StepTypeEntity {
		op.Operation = ast.Query
		definitions = append(ast.VariableDefinitionList{{
			Variable: representationsVariable,
			Type:     ast.NonNullListType(ast.NonNullNamedType("_Any", nil), nil),
		}}, definitions...)
		queryVars[representationsVariable] = representations

		op.SelectionSet = ast.SelectionSet{
			&ast.Field{
				Alias: "_entities",
				Name:  "_entities",
				Arguments: ast.ArgumentList{{
					Name:  representationsVariable,
					Value: &ast.Value{Kind: ast.Variable, Raw: representationsVariable},
				}},
				SelectionSet: ast.SelectionSet{
					&ast.InlineFragment{
						TypeCondition: step.ParentType,
						SelectionSet:  step.SelectionSet,
					},
				},
			},
		}
	}
	op.VariableDefinitions = definitions

	var buf bytes.Buffer
	formatter.NewFormatter(&buf).FormatQueryDocument(&ast.QueryDocument{
		Operations: ast.OperationList{op},
	})

	return buf.String(), queryVars, nil
}

// usedVariables returns the names of the variables referenced by arguments
// and directives in selections, in order of first use.
func usedVariables(selections ast.SelectionSet, names []string) []string {
	for _, sel := range selections {
		switch s := sel.(type) {
		case *ast.Field:
			for _, arg := range s.Arguments {
				names = valueVariables(arg.Value, names)
			}
			names = directiveVariables(s.Directives, names)
			names = usedVariables(s.SelectionSet, names)
		case *ast.InlineFragment:
			names = directiveVariables(s.Directives, names)
			names = usedVariables(s.SelectionSet, names)
		case *ast.FragmentSpread:
			names = directiveVariables(s.Directives, names)
			if s.Definition != nil {
				names = usedVariables(s.Definition.SelectionSet, names)
			}
		}
	}
	return names
}

func directiveVariables(directives ast.DirectiveList, names []string) []string {
	for _, d := range directives {
		for _, arg := range d.Arguments {
			names = valueVariables(arg.Value, names)
		}
	}
	return names
}

func valueVariables(v *ast.Value, names []string) []string {
	if v == nil {
		return names
	}
	if v.Kind == ast.Variable {
		for _, n := range names {
			if n == v.Raw {
				return names
			}
		}
		return append(names, v.Raw)
	}
	for _, child := range v.Children {
		names = valueVariables(child.Value, names)
	}
	return names
}
