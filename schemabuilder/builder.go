package schemabuilder

import (
	"fmt"
	"sort"

	"github.com/graphql-go/graphql"
	"github.com/vektah/gqlparser/v2/ast"
)

// ObjectResolver maps field names of an object type to resolvers.
type ObjectResolver map[string]graphql.FieldResolveFn

// ScalarResolver supplies the coercion functions of a custom scalar.
type ScalarResolver struct {
	Serialize    graphql.SerializeFn
	ParseValue   graphql.ParseValueFn
	ParseLiteral graphql.ParseLiteralFn
}

// TypeResolver picks the concrete object type of a union or interface value.
type TypeResolver func(value any) string

// ResolverMap holds, per type name, an ObjectResolver, a ScalarResolver or a
// TypeResolver.
type ResolverMap map[string]any

// Options tune Build.
type Options struct {
	// FieldResolver supplies the resolver of fields that have no entry in the
	// ResolverMap. Returning nil falls back to graphql-go's default resolver.
	FieldResolver func(typeName string, field *ast.FieldDefinition) graphql.FieldResolveFn
}

var builtinScalars = map[string]*graphql.Scalar{
	"Int":     graphql.Int,
	"Float":   graphql.Float,
	"String":  graphql.String,
	"Boolean": graphql.Boolean,
	"ID":      graphql.ID,
}

type builder struct {
	schema    *ast.Schema
	resolvers ResolverMap
	options   Options

	types   map[string]graphql.Type
	objects map[string]*graphql.Object
}

// Build turns a validated schema into an executable graphql-go schema.
func Build(schema *ast.Schema, resolvers ResolverMap, options Options) (graphql.Schema, error) {
	if schema == nil || schema.Query == nil {
		return graphql.Schema{}, fmt.Errorf("schema has no query type")
	}

	b := &builder{
		schema:    schema,
		resolvers: resolvers,
		options:   options,
		types:     make(map[string]graphql.Type),
		objects:   make(map[string]*graphql.Object),
	}

	names := make([]string, 0, len(schema.Types))
	for name, def := range schema.Types {
		if def.BuiltIn {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	// Objects, interfaces and input objects resolve their fields lazily, so
	// every named type must exist before any field is read. Unions need the
	// objects, so they come last.
	for _, name := range names {
		def := schema.Types[name]
		switch def.Kind {
		case ast.Scalar:
			b.types[name] = b.buildScalar(def)
		case ast.Enum:
			b.types[name] = b.buildEnum(def)
		case ast.InputObject:
			b.types[name] = b.buildInputObject(def)
		case ast.Interface:
			b.types[name] = b.buildInterface(def)
		case ast.Object:
			obj := b.buildObject(def)
			b.types[name] = obj
			b.objects[name] = obj
		}
	}
	for _, name := range names {
		def := schema.Types[name]
		if def.Kind == ast.Union {
			u, err := b.buildUnion(def)
			if err != nil {
				return graphql.Schema{}, err
			}
			b.types[name] = u
		}
	}

	config := graphql.SchemaConfig{
		Query: b.objects[schema.Query.Name],
	}
	if schema.Mutation != nil {
		config.Mutation = b.objects[schema.Mutation.Name]
	}
	for _, name := range names {
		config.Types = append(config.Types, b.types[name])
	}

	s, err := graphql.NewSchema(config)
	if err != nil {
		return graphql.Schema{}, fmt.Errorf("failed to build executable schema: %w", err)
	}

	return s, nil
}

func (b *builder) named(name string) graphql.Type {
	if s, ok := builtinScalars[name]; ok {
		return s
	}
	return b.types[name]
}

func (b *builder) typeRef(t *ast.Type) graphql.Type {
	var base graphql.Type
	if t.Elem != nil {
		base = graphql.NewList(b.typeRef(t.Elem))
	} else {
		base = b.named(t.NamedType)
	}
	if t.NonNull {
		return graphql.NewNonNull(base)
	}
	return base
}

func (b *builder) outputType(t *ast.Type) graphql.Output {
	return b.typeRef(t).(graphql.Output)
}

func (b *builder) inputType(t *ast.Type) graphql.Input {
	return b.typeRef(t).(graphql.Input)
}

func (b *builder) buildScalar(def *ast.Definition) *graphql.Scalar {
	config := graphql.ScalarConfig{
		Name:         def.Name,
		Description:  def.Description,
		Serialize:    identity,
		ParseValue:   identity,
		ParseLiteral: LiteralValue,
	}
	if r, ok := b.resolvers[def.Name].(ScalarResolver); ok {
		if r.Serialize != nil {
			config.Serialize = r.Serialize
		}
		if r.ParseValue != nil {
			config.ParseValue = r.ParseValue
		}
		if r.ParseLiteral != nil {
			config.ParseLiteral = r.ParseLiteral
		}
	}
	return graphql.NewScalar(config)
}

func (b *builder) buildEnum(def *ast.Definition) *graphql.Enum {
	values := graphql.EnumValueConfigMap{}
	for _, v := range def.EnumValues {
		values[v.Name] = &graphql.EnumValueConfig{
			Value:       v.Name,
			Description: v.Description,
		}
	}
	return graphql.NewEnum(graphql.EnumConfig{
		Name:        def.Name,
		Description: def.Description,
		Values:      values,
	})
}

func (b *builder) buildInputObject(def *ast.Definition) *graphql.InputObject {
	return graphql.NewInputObject(graphql.InputObjectConfig{
		Name:        def.Name,
		Description: def.Description,
		Fields: graphql.InputObjectConfigFieldMapThunk(func() graphql.InputObjectConfigFieldMap {
			fields := graphql.InputObjectConfigFieldMap{}
			for _, f := range def.Fields {
				fields[f.Name] = &graphql.InputObjectFieldConfig{
					Type:         b.inputType(f.Type),
					Description:  f.Description,
					DefaultValue: defaultValue(f.Type, f.DefaultValue),
				}
			}
			return fields
		}),
	})
}

func (b *builder) buildInterface(def *ast.Definition) *graphql.Interface {
	return graphql.NewInterface(graphql.InterfaceConfig{
		Name:        def.Name,
		Description: def.Description,
		Fields: graphql.FieldsThunk(func() graphql.Fields {
			return b.fields(def)
		}),
		ResolveType: b.resolveType(def.Name),
	})
}

func (b *builder) buildObject(def *ast.Definition) *graphql.Object {
	return graphql.NewObject(graphql.ObjectConfig{
		Name:        def.Name,
		Description: def.Description,
		Interfaces: graphql.InterfacesThunk(func() []*graphql.Interface {
			var interfaces []*graphql.Interface
			for _, name := range def.Interfaces {
				if i, ok := b.types[name].(*graphql.Interface); ok {
					interfaces = append(interfaces, i)
				}
			}
			return interfaces
		}),
		Fields: graphql.FieldsThunk(func() graphql.Fields {
			return b.fields(def)
		}),
	})
}

func (b *builder) buildUnion(def *ast.Definition) (*graphql.Union, error) {
	members := make([]*graphql.Object, 0, len(def.Types))
	for _, name := range def.Types {
		obj, ok := b.objects[name]
		if !ok {
			return nil, fmt.Errorf("union %s references unknown object type %s", def.Name, name)
		}
		members = append(members, obj)
	}

	return graphql.NewUnion(graphql.UnionConfig{
		Name:        def.Name,
		Description: def.Description,
		Types:       members,
		ResolveType: b.resolveType(def.Name),
	}), nil
}

func (b *builder) fields(def *ast.Definition) graphql.Fields {
	objectResolver, _ := b.resolvers[def.Name].(ObjectResolver)

	fields := graphql.Fields{}
	for _, f := range def.Fields {
		if len(f.Name) > 1 && f.Name[:2] == "__" {
			continue
		}

		field := &graphql.Field{
			Name:        f.Name,
			Type:        b.outputType(f.Type),
			Description: f.Description,
		}
		if d := f.Directives.ForName("deprecated"); d != nil {
			field.DeprecationReason = "No longer supported"
			if reason := d.Arguments.ForName("reason"); reason != nil && reason.Value != nil {
				field.DeprecationReason = reason.Value.Raw
			}
		}

		if len(f.Arguments) > 0 {
			args := graphql.FieldConfigArgument{}
			for _, arg := range f.Arguments {
				args[arg.Name] = &graphql.ArgumentConfig{
					Type:         b.inputType(arg.Type),
					Description:  arg.Description,
					DefaultValue: defaultValue(arg.Type, arg.DefaultValue),
				}
			}
			field.Args = args
		}

		if r, ok := objectResolver[f.Name]; ok {
			field.Resolve = r
		} else if b.options.FieldResolver != nil {
			field.Resolve = b.options.FieldResolver(def.Name, f)
		}

		fields[f.Name] = field
	}

	return fields
}

// resolveType returns the type resolver of an abstract type. Without an
// explicit TypeResolver the value's "__typename" entry names the object.
func (b *builder) resolveType(abstract string) graphql.ResolveTypeFn {
	typeResolver, _ := b.resolvers[abstract].(TypeResolver)

	return func(p graphql.ResolveTypeParams) *graphql.Object {
		var name string
		if typeResolver != nil {
			name = typeResolver(p.Value)
		} else if m, ok := p.Value.(map[string]any); ok {
			name, _ = m["__typename"].(string)
		}
		return b.objects[name]
	}
}

func identity(v any) any {
	return v
}

// defaultValue converts an SDL default to the Go value resolvers expect for
// the argument's type.
func defaultValue(t *ast.Type, v *ast.Value) any {
	if v == nil {
		return nil
	}
	raw, err := v.Value(nil)
	if err != nil {
		return nil
	}
	if t.Elem == nil {
		switch t.NamedType {
		case "Int":
			if n, ok := raw.(int64); ok {
				return int(n)
			}
		case "Float":
			if n, ok := raw.(int64); ok {
				return float64(n)
			}
		}
	}
	return raw
}
