package schemabuilder

import (
	"bytes"
	"fmt"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/formatter"
	"github.com/vektah/gqlparser/v2/parser"
)

// keptDirectives survive composition; everything else (federation's @key,
// @external, @requires, ...) is stripped from the composed document.
var keptDirectives = map[string]bool{
	"deprecated": true,
}

// ParseSDL parses a schema document without validating it.
func ParseSDL(name, sdl string) (*ast.SchemaDocument, error) {
	doc, err := parser.ParseSchema(&ast.Source{Name: name, Input: sdl})
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", name, err)
	}
	return doc, nil
}

// Compose merges schema documents into one document without extensions.
// Type extensions are folded into the base definition, or become the
// definition when no base exists. Fields already defined by an earlier
// document are kept from the first definition. Definitions keep the order in
// which their names were first seen.
func Compose(docs ...*ast.SchemaDocument) *ast.SchemaDocument {
	defs := make(map[string]*ast.Definition)
	var order []string

	add := func(def *ast.Definition) {
		existing, ok := defs[def.Name]
		if !ok {
			defs[def.Name] = copyDefinition(def)
			order = append(order, def.Name)
			return
		}
		mergeDefinition(existing, def)
	}

	for _, doc := range docs {
		if doc == nil {
			continue
		}
		for _, def := range doc.Definitions {
			add(def)
		}
		for _, ext := range doc.Extensions {
			add(ext)
		}
	}

	composed := &ast.SchemaDocument{}
	for _, name := range order {
		composed.Definitions = append(composed.Definitions, defs[name])
	}

	return composed
}

// Print renders a schema document as SDL.
func Print(doc *ast.SchemaDocument) string {
	var buf bytes.Buffer
	formatter.NewFormatter(&buf).FormatSchemaDocument(doc)
	return buf.String()
}

// LoadSchema validates a composed document against the GraphQL type system
// rules and returns the resulting schema.
func LoadSchema(name string, doc *ast.SchemaDocument) (*ast.Schema, error) {
	schema, err := gqlparser.LoadSchema(&ast.Source{Name: name, Input: Print(doc)})
	if err != nil {
		return nil, fmt.Errorf("invalid schema %s: %w", name, err)
	}
	return schema, nil
}

// ComposeSDL parses every source, composes them, and validates the result.
func ComposeSDL(name string, sources ...*ast.Source) (*ast.Schema, *ast.SchemaDocument, error) {
	docs := make([]*ast.SchemaDocument, 0, len(sources))
	for _, src := range sources {
		doc, err := ParseSDL(src.Name, src.Input)
		if err != nil {
			return nil, nil, err
		}
		docs = append(docs, doc)
	}

	composed := Compose(docs...)
	schema, err := LoadSchema(name, composed)
	if err != nil {
		return nil, nil, err
	}

	return schema, composed, nil
}

func copyDefinition(def *ast.Definition) *ast.Definition {
	cp := &ast.Definition{
		Kind:        def.Kind,
		Description: def.Description,
		Name:        def.Name,
		Directives:  stripDirectives(def.Directives),
		Interfaces:  append([]string(nil), def.Interfaces...),
		Types:       append([]string(nil), def.Types...),
		Position:    def.Position,
	}
	for _, f := range def.Fields {
		cp.Fields = append(cp.Fields, copyField(f))
	}
	for _, v := range def.EnumValues {
		cp.EnumValues = append(cp.EnumValues, &ast.EnumValueDefinition{
			Description: v.Description,
			Name:        v.Name,
			Directives:  stripDirectives(v.Directives),
			Position:    v.Position,
		})
	}
	return cp
}

func mergeDefinition(dst, src *ast.Definition) {
	if dst.Description == "" {
		dst.Description = src.Description
	}
	for _, f := range src.Fields {
		if dst.Fields.ForName(f.Name) == nil {
			dst.Fields = append(dst.Fields, copyField(f))
		}
	}
	dst.Interfaces = appendMissing(dst.Interfaces, src.Interfaces)
	dst.Types = appendMissing(dst.Types, src.Types)
	for _, v := range src.EnumValues {
		if dst.EnumValues.ForName(v.Name) == nil {
			dst.EnumValues = append(dst.EnumValues, &ast.EnumValueDefinition{
				Description: v.Description,
				Name:        v.Name,
				Directives:  stripDirectives(v.Directives),
				Position:    v.Position,
			})
		}
	}
}

func copyField(f *ast.FieldDefinition) *ast.FieldDefinition {
	cp := &ast.FieldDefinition{
		Description:  f.Description,
		Name:         f.Name,
		DefaultValue: f.DefaultValue,
		Type:         f.Type,
		Directives:   stripDirectives(f.Directives),
		Position:     f.Position,
	}
	for _, arg := range f.Arguments {
		cp.Arguments = append(cp.Arguments, &ast.ArgumentDefinition{
			Description:  arg.Description,
			Name:         arg.Name,
			DefaultValue: arg.DefaultValue,
			Type:         arg.Type,
			Directives:   stripDirectives(arg.Directives),
			Position:     arg.Position,
		})
	}
	return cp
}

func stripDirectives(list ast.DirectiveList) ast.DirectiveList {
	var kept ast.DirectiveList
	for _, d := range list {
		if keptDirectives[d.Name] {
			kept = append(kept, d)
		}
	}
	return kept
}

func appendMissing(dst, src []string) []string {
	for _, s := range src {
		found := false
		for _, d := range dst {
			if d == s {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, s)
		}
	}
	return dst
}
