package stitching

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/graphql-go/graphql"
	gast "github.com/graphql-go/graphql/language/ast"
	"github.com/vektah/gqlparser/v2/ast"
)

// converter rewrites the graphql-go AST of a resolved field into a gqlparser
// selection set. Fragments are inlined, @skip and @include are applied, and
// variables are replaced by their values so delegated queries need no
// variable definitions.
type converter struct {
	schema    *ast.Schema
	fragments map[string]gast.Definition
	variables map[string]any
}

func newConverter(schema *ast.Schema, info graphql.ResolveInfo) *converter {
	return &converter{
		schema:    schema,
		fragments: info.Fragments,
		variables: info.VariableValues,
	}
}

func (c *converter) field(parentType string, f *gast.Field) (*ast.Field, error) {
	name := f.Name.Value
	out := &ast.Field{
		Alias:            name,
		Name:             name,
		ObjectDefinition: c.schema.Types[parentType],
	}
	if f.Alias != nil && f.Alias.Value != "" {
		out.Alias = f.Alias.Value
	}
	if name == "__typename" {
		return out, nil
	}

	parent := c.schema.Types[parentType]
	if parent == nil {
		return nil, fmt.Errorf("unknown type %s", parentType)
	}
	def := parent.Fields.ForName(name)
	if def == nil {
		return nil, fmt.Errorf("unknown field %s.%s", parentType, name)
	}
	out.Definition = def

	for _, arg := range f.Arguments {
		argDef := def.Arguments.ForName(arg.Name.Value)
		if argDef == nil {
			return nil, fmt.Errorf("unknown argument %s on %s.%s", arg.Name.Value, parentType, name)
		}
		if v, ok := arg.Value.(*gast.Variable); ok {
			if _, set := c.variables[v.Name.Value]; !set {
				continue
			}
		}
		out.Arguments = append(out.Arguments, &ast.Argument{
			Name:  argDef.Name,
			Value: c.value(argDef.Type, arg.Value),
		})
	}

	children, err := c.selectionSet(def.Type.Name(), f.SelectionSet)
	if err != nil {
		return nil, err
	}
	out.SelectionSet = children

	return out, nil
}

func (c *converter) selectionSet(parentType string, set *gast.SelectionSet) (ast.SelectionSet, error) {
	if set == nil {
		return nil, nil
	}

	var out ast.SelectionSet
	for _, sel := range set.Selections {
		switch s := sel.(type) {
		case *gast.Field:
			if c.skipped(s.Directives) {
				continue
			}
			f, err := c.field(parentType, s)
			if err != nil {
				return nil, err
			}
			out = append(out, f)

		case *gast.InlineFragment:
			if c.skipped(s.Directives) {
				continue
			}
			typeCondition := parentType
			if s.TypeCondition != nil {
				typeCondition = s.TypeCondition.Name.Value
			}
			sels, err := c.selectionSet(typeCondition, s.SelectionSet)
			if err != nil {
				return nil, err
			}
			out = append(out, c.fragment(parentType, typeCondition, sels)...)

		case *gast.FragmentSpread:
			if c.skipped(s.Directives) {
				continue
			}
			def, ok := c.fragments[s.Name.Value].(*gast.FragmentDefinition)
			if !ok {
				return nil, fmt.Errorf("unknown fragment %s", s.Name.Value)
			}
			typeCondition := def.TypeCondition.Name.Value
			sels, err := c.selectionSet(typeCondition, def.SelectionSet)
			if err != nil {
				return nil, err
			}
			out = append(out, c.fragment(parentType, typeCondition, sels)...)
		}
	}

	return out, nil
}

func (c *converter) fragment(parentType, typeCondition string, sels ast.SelectionSet) ast.SelectionSet {
	if typeCondition == parentType {
		return sels
	}
	return ast.SelectionSet{&ast.InlineFragment{
		TypeCondition:    typeCondition,
		SelectionSet:     sels,
		ObjectDefinition: c.schema.Types[typeCondition],
	}}
}

func (c *converter) skipped(directives []*gast.Directive) bool {
	for _, d := range directives {
		switch d.Name.Value {
		case "skip":
			if c.condition(d) {
				return true
			}
		case "include":
			if !c.condition(d) {
				return true
			}
		}
	}
	return false
}

func (c *converter) condition(d *gast.Directive) bool {
	for _, arg := range d.Arguments {
		if arg.Name.Value != "if" {
			continue
		}
		switch v := arg.Value.(type) {
		case *gast.BooleanValue:
			return v.Value
		case *gast.Variable:
			b, _ := c.variables[v.Name.Value].(bool)
			return b
		}
	}
	return false
}

func (c *converter) value(t *ast.Type, v gast.Value) *ast.Value {
	switch v := v.(type) {
	case *gast.Variable:
		return c.literal(t, c.variables[v.Name.Value])
	case *gast.IntValue:
		return &ast.Value{Kind: ast.IntValue, Raw: v.Value}
	case *gast.FloatValue:
		return &ast.Value{Kind: ast.FloatValue, Raw: v.Value}
	case *gast.StringValue:
		return &ast.Value{Kind: ast.StringValue, Raw: v.Value}
	case *gast.BooleanValue:
		return &ast.Value{Kind: ast.BooleanValue, Raw: strconv.FormatBool(v.Value)}
	case *gast.EnumValue:
		return &ast.Value{Kind: ast.EnumValue, Raw: v.Value}
	case *gast.ListValue:
		list := &ast.Value{Kind: ast.ListValue}
		for _, elem := range v.Values {
			list.Children = append(list.Children, &ast.ChildValue{Value: c.value(elemType(t), elem)})
		}
		return list
	case *gast.ObjectValue:
		obj := &ast.Value{Kind: ast.ObjectValue}
		for _, f := range v.Fields {
			obj.Children = append(obj.Children, &ast.ChildValue{
				Name:  f.Name.Value,
				Value: c.value(c.inputFieldType(t, f.Name.Value), f.Value),
			})
		}
		return obj
	}
	return nullValue()
}

// literal renders a coerced variable value as a GraphQL literal of type t.
func (c *converter) literal(t *ast.Type, v any) *ast.Value {
	switch x := v.(type) {
	case nil:
		return nullValue()
	case bool:
		return &ast.Value{Kind: ast.BooleanValue, Raw: strconv.FormatBool(x)}
	case int:
		return &ast.Value{Kind: ast.IntValue, Raw: strconv.Itoa(x)}
	case int32:
		return &ast.Value{Kind: ast.IntValue, Raw: strconv.FormatInt(int64(x), 10)}
	case int64:
		return &ast.Value{Kind: ast.IntValue, Raw: strconv.FormatInt(x, 10)}
	case float32:
		return &ast.Value{Kind: ast.FloatValue, Raw: strconv.FormatFloat(float64(x), 'g', -1, 32)}
	case float64:
		return &ast.Value{Kind: ast.FloatValue, Raw: strconv.FormatFloat(x, 'g', -1, 64)}
	case string:
		if def := c.definition(t); def != nil && def.Kind == ast.Enum {
			return &ast.Value{Kind: ast.EnumValue, Raw: x}
		}
		return &ast.Value{Kind: ast.StringValue, Raw: x}
	case []any:
		list := &ast.Value{Kind: ast.ListValue}
		for _, elem := range x {
			list.Children = append(list.Children, &ast.ChildValue{Value: c.literal(elemType(t), elem)})
		}
		return list
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		obj := &ast.Value{Kind: ast.ObjectValue}
		for _, k := range keys {
			obj.Children = append(obj.Children, &ast.ChildValue{
				Name:  k,
				Value: c.literal(c.inputFieldType(t, k), x[k]),
			})
		}
		return obj
	}
	return &ast.Value{Kind: ast.StringValue, Raw: fmt.Sprint(v)}
}

func (c *converter) definition(t *ast.Type) *ast.Definition {
	if t == nil {
		return nil
	}
	return c.schema.Types[t.Name()]
}

func (c *converter) inputFieldType(t *ast.Type, name string) *ast.Type {
	def := c.definition(t)
	if def == nil {
		return nil
	}
	if f := def.Fields.ForName(name); f != nil {
		return f.Type
	}
	return nil
}

func elemType(t *ast.Type) *ast.Type {
	if t != nil && t.Elem != nil {
		return t.Elem
	}
	return t
}

func nullValue() *ast.Value {
	return &ast.Value{Kind: ast.NullValue, Raw: "null"}
}
