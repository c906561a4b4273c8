package graph

import (
	"fmt"
	"strings"

	"github.com/n9te9/federation-benchmark/schemabuilder"
	"github.com/vektah/gqlparser/v2/ast"
)

// EntityKey represents the @key directive information of an Entity.
type EntityKey struct {
	FieldSet   string   // Field set specified in @key (e.g., "id")
	Fields     []string // Top-level field names of FieldSet
	Resolvable bool     // Resolvable parameter of @key directive
}

// OverrideMetadata represents the @override directive information.
type OverrideMetadata struct {
	From string // The source subgraph name (e.g., "products")
}

// Field represents field information of an object type in a subgraph.
type Field struct {
	Name     string
	Type     *ast.Type
	Requires []string // Fields specified in @requires directive
	Provides []string // Fields specified in @provides directive
	Override *OverrideMetadata

	isExternal     bool
	isShareable    bool
	isInaccessible bool
}

// Entity represents an object type with @key directive.
type Entity struct {
	Keys        []EntityKey
	isExtension bool
	Fields      map[string]*Field
}

// SubGraph holds the federation metadata of one service.
type SubGraph struct {
	Name   string // Subgraph name (e.g., "products")
	Host   string // GraphQL endpoint (e.g., "http://localhost:4002/graphql")
	SDL    string
	Schema *ast.SchemaDocument

	entities map[string]*Entity
	fields   map[string]map[string]*Field // type name -> field name -> field
}

// NewSubGraph parses src and extracts entities, keys and the field
// directives @external, @requires, @provides, @shareable, @override and
// @inaccessible.
func NewSubGraph(name string, src []byte, host string) (*SubGraph, error) {
	doc, err := schemabuilder.ParseSDL(name, string(src))
	if err != nil {
		return nil, err
	}

	sg := &SubGraph{
		Name:     name,
		Host:     host,
		SDL:      string(src),
		Schema:   doc,
		entities: make(map[string]*Entity),
		fields:   make(map[string]map[string]*Field),
	}

	add := func(def *ast.Definition, isExtension bool) {
		if def.Kind != ast.Object && def.Kind != ast.Interface {
			return
		}

		fields, ok := sg.fields[def.Name]
		if !ok {
			fields = make(map[string]*Field)
			sg.fields[def.Name] = fields
		}
		for _, f := range def.Fields {
			fields[f.Name] = parseField(f)
		}

		keys := parseEntityKeys(def.Directives)
		if len(keys) == 0 {
			return
		}

		entity, ok := sg.entities[def.Name]
		if !ok {
			entity = &Entity{isExtension: isExtension, Fields: fields}
			sg.entities[def.Name] = entity
		}
		entity.Keys = append(entity.Keys, keys...)
	}

	for _, def := range doc.Definitions {
		add(def, false)
	}
	for _, ext := range doc.Extensions {
		add(ext, true)
	}

	return sg, nil
}

// GetEntities returns the entities map.
func (sg *SubGraph) GetEntities() map[string]*Entity {
	return sg.entities
}

// GetEntity returns the Entity with the specified name.
func (sg *SubGraph) GetEntity(name string) (*Entity, bool) {
	entity, ok := sg.entities[name]
	return entity, ok
}

// GetField returns the field declared on typeName by this subgraph.
func (sg *SubGraph) GetField(typeName, fieldName string) (*Field, bool) {
	f, ok := sg.fields[typeName][fieldName]
	return f, ok
}

// HasType reports whether the subgraph declares or extends typeName.
func (sg *SubGraph) HasType(typeName string) bool {
	_, ok := sg.fields[typeName]
	return ok
}

// CanResolve reports whether the subgraph can return fieldName of typeName.
// External fields are only resolvable when they are part of one of the
// subgraph's keys for the type.
func (sg *SubGraph) CanResolve(typeName, fieldName string) bool {
	if fieldName == "__typename" {
		return sg.HasType(typeName)
	}

	f, ok := sg.GetField(typeName, fieldName)
	if !ok {
		return false
	}
	if !f.isExternal {
		return true
	}

	return sg.isKeyField(typeName, fieldName)
}

func (sg *SubGraph) isKeyField(typeName, fieldName string) bool {
	entity, ok := sg.entities[typeName]
	if !ok {
		return false
	}
	for _, key := range entity.Keys {
		for _, f := range key.Fields {
			if f == fieldName {
				return true
			}
		}
	}
	return false
}

// KeyFields returns the fields of the key the subgraph resolves typeName by.
// The first resolvable key wins.
func (sg *SubGraph) KeyFields(typeName string) []string {
	entity, ok := sg.entities[typeName]
	if !ok || len(entity.Keys) == 0 {
		return nil
	}
	for _, key := range entity.Keys {
		if key.Resolvable {
			return key.Fields
		}
	}
	return entity.Keys[0].Fields
}

// parseEntityKeys parses EntityKey list from @key directives.
func parseEntityKeys(directives ast.DirectiveList) []EntityKey {
	var keys []EntityKey
	for _, d := range directives.ForNames("key") {
		key := EntityKey{Resolvable: true}
		if arg := d.Arguments.ForName("fields"); arg != nil && arg.Value != nil {
			key.FieldSet = arg.Value.Raw
			key.Fields = ParseFieldSet(arg.Value.Raw)
		}
		if arg := d.Arguments.ForName("resolvable"); arg != nil && arg.Value != nil && arg.Value.Raw == "false" {
			key.Resolvable = false
		}
		keys = append(keys, key)
	}
	return keys
}

// parseField creates a Field from its definition.
func parseField(field *ast.FieldDefinition) *Field {
	f := &Field{
		Name: field.Name,
		Type: field.Type,
	}

	for _, d := range field.Directives {
		switch d.Name {
		case "external":
			f.isExternal = true
		case "requires":
			f.Requires = ParseFieldSet(directiveString(d, "fields"))
		case "provides":
			f.Provides = ParseFieldSet(directiveString(d, "fields"))
		case "shareable":
			f.isShareable = true
		case "override":
			f.Override = &OverrideMetadata{From: directiveString(d, "from")}
		case "inaccessible":
			f.isInaccessible = true
		}
	}

	return f
}

func directiveString(d *ast.Directive, name string) string {
	if arg := d.Arguments.ForName(name); arg != nil && arg.Value != nil {
		return arg.Value.Raw
	}
	return ""
}

// ParseFieldSet returns the top-level field names of a federation field set
// such as "id" or "price weight" or "id organization { id }".
func ParseFieldSet(fieldSet string) []string {
	fieldSet = strings.NewReplacer("{", " { ", "}", " } ").Replace(fieldSet)

	var names []string
	depth := 0
	for _, tok := range strings.Fields(fieldSet) {
		switch tok {
		case "{":
			depth++
		case "}":
			depth--
		default:
			if depth == 0 {
				names = append(names, tok)
			}
		}
	}
	return names
}

// IsExternal returns whether the field has @external directive.
func (f *Field) IsExternal() bool {
	return f.isExternal
}

// IsShareable returns whether the field has @shareable directive.
func (f *Field) IsShareable() bool {
	return f.isShareable
}

// IsInaccessible returns whether the field has @inaccessible directive.
func (f *Field) IsInaccessible() bool {
	return f.isInaccessible
}

// IsExtension returns whether the Entity is defined as an extension.
func (e *Entity) IsExtension() bool {
	return e.isExtension
}

// IsResolvable returns whether the Entity has at least one resolvable key.
func (e *Entity) IsResolvable() bool {
	for _, key := range e.Keys {
		if key.Resolvable {
			return true
		}
	}
	return false
}

func (sg *SubGraph) String() string {
	return fmt.Sprintf("%s(%s)", sg.Name, sg.Host)
}
