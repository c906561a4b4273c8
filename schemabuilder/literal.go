package schemabuilder

import (
	"strconv"

	"github.com/graphql-go/graphql/language/ast"
)

// LiteralValue converts a graphql-go literal into a plain Go value: objects
// become map[string]any, lists []any, numbers int or float64. Variables are
// not resolved and yield nil.
func LiteralValue(v ast.Value) any {
	switch v := v.(type) {
	case *ast.StringValue:
		return v.Value
	case *ast.BooleanValue:
		return v.Value
	case *ast.EnumValue:
		return v.Value
	case *ast.IntValue:
		if n, err := strconv.Atoi(v.Value); err == nil {
			return n
		}
		return nil
	case *ast.FloatValue:
		if f, err := strconv.ParseFloat(v.Value, 64); err == nil {
			return f
		}
		return nil
	case *ast.ListValue:
		list := make([]any, 0, len(v.Values))
		for _, item := range v.Values {
			list = append(list, LiteralValue(item))
		}
		return list
	case *ast.ObjectValue:
		obj := make(map[string]any, len(v.Fields))
		for _, f := range v.Fields {
			obj[f.Name.Value] = LiteralValue(f.Value)
		}
		return obj
	}
	return nil
}
