package graph

import (
	"fmt"

	"github.com/n9te9/federation-benchmark/schemabuilder"
	"github.com/vektah/gqlparser/v2/ast"
)

// SuperGraph represents an aggregated super graph composed of multiple subgraphs.
type SuperGraph struct {
	SubGraphs []*SubGraph            // Subgraphs in composition order
	Schema    *ast.Schema            // API schema clients validate against
	Document  *ast.SchemaDocument    // Composed schema document
	Ownership map[string][]*SubGraph // Field ownership map (e.g., "Product.upc" -> [SubGraph])
}

// NewSuperGraph composes subGraphs into a super graph. The order of
// subGraphs decides which subgraph is preferred when several can resolve
// the same field.
func NewSuperGraph(subGraphs []*SubGraph) (*SuperGraph, error) {
	if len(subGraphs) == 0 {
		return nil, fmt.Errorf("no subgraphs to compose")
	}

	sg := &SuperGraph{
		SubGraphs: subGraphs,
		Ownership: make(map[string][]*SubGraph),
	}

	if err := sg.composeSchema(); err != nil {
		return nil, err
	}
	sg.buildOwnershipMap()

	return sg, nil
}

// composeSchema merges the subgraph documents, drops @inaccessible fields,
// and validates the result as the API schema.
func (sg *SuperGraph) composeSchema() error {
	docs := make([]*ast.SchemaDocument, 0, len(sg.SubGraphs))
	for _, subGraph := range sg.SubGraphs {
		docs = append(docs, subGraph.Schema)
	}

	composed := schemabuilder.Compose(docs...)
	for _, def := range composed.Definitions {
		kept := def.Fields[:0]
		for _, f := range def.Fields {
			if !sg.isInaccessible(def.Name, f.Name) {
				kept = append(kept, f)
			}
		}
		def.Fields = kept
	}

	schema, err := schemabuilder.LoadSchema("supergraph", composed)
	if err != nil {
		return fmt.Errorf("composition failed: %w", err)
	}

	sg.Document = composed
	sg.Schema = schema
	return nil
}

func (sg *SuperGraph) isInaccessible(typeName, fieldName string) bool {
	for _, subGraph := range sg.SubGraphs {
		if f, ok := subGraph.GetField(typeName, fieldName); ok && f.IsInaccessible() {
			return true
		}
	}
	return false
}

// buildOwnershipMap determines which subgraphs can resolve each field of
// the composed object types. A field with @override(from:) is not owned by
// the subgraph it was taken from.
func (sg *SuperGraph) buildOwnershipMap() {
	for _, def := range sg.Document.Definitions {
		if def.Kind != ast.Object && def.Kind != ast.Interface {
			continue
		}

		for _, field := range def.Fields {
			key := ownershipKey(def.Name, field.Name)

			overridden := make(map[string]bool)
			for _, subGraph := range sg.SubGraphs {
				if f, ok := subGraph.GetField(def.Name, field.Name); ok && f.Override != nil {
					overridden[f.Override.From] = true
				}
			}

			for _, subGraph := range sg.SubGraphs {
				if overridden[subGraph.Name] {
					continue
				}
				if subGraph.CanResolve(def.Name, field.Name) {
					sg.Ownership[key] = append(sg.Ownership[key], subGraph)
				}
			}
		}
	}
}

func ownershipKey(typeName, fieldName string) string {
	return typeName + "." + fieldName
}

// SDL returns the composed schema as SDL.
func (sg *SuperGraph) SDL() string {
	return schemabuilder.Print(sg.Document)
}

// GetSubGraphsForField returns the list of subgraphs that can resolve the specified field.
func (sg *SuperGraph) GetSubGraphsForField(typeName, fieldName string) []*SubGraph {
	return sg.Ownership[ownershipKey(typeName, fieldName)]
}

// GetFieldOwnerSubGraph returns the preferred subgraph for a field, or nil.
func (sg *SuperGraph) GetFieldOwnerSubGraph(typeName, fieldName string) *SubGraph {
	owners := sg.Ownership[ownershipKey(typeName, fieldName)]
	if len(owners) > 0 {
		return owners[0]
	}
	return nil
}

// CanResolve reports whether subGraph owns the field.
func (sg *SuperGraph) CanResolve(subGraph *SubGraph, typeName, fieldName string) bool {
	if fieldName == "__typename" {
		return true
	}
	for _, owner := range sg.Ownership[ownershipKey(typeName, fieldName)] {
		if owner == subGraph {
			return true
		}
	}
	return false
}

// GetEntityOwnerSubGraph returns the subgraph that defines the entity with a
// resolvable @key, preferring a definition over an extension. Returns nil
// if the type is not an entity.
func (sg *SuperGraph) GetEntityOwnerSubGraph(typeName string) *SubGraph {
	for _, subGraph := range sg.SubGraphs {
		if entity, exists := subGraph.GetEntity(typeName); exists && !entity.IsExtension() && entity.IsResolvable() {
			return subGraph
		}
	}
	for _, subGraph := range sg.SubGraphs {
		if entity, exists := subGraph.GetEntity(typeName); exists && entity.IsResolvable() {
			return subGraph
		}
	}
	return nil
}

// IsEntityType checks if a type is an entity in any subgraph.
func (sg *SuperGraph) IsEntityType(typeName string) bool {
	return sg.GetEntityOwnerSubGraph(typeName) != nil
}

// Requires returns the fields subGraph needs in a representation of
// typeName to resolve fieldName.
func (sg *SuperGraph) Requires(subGraph *SubGraph, typeName, fieldName string) []string {
	if f, ok := subGraph.GetField(typeName, fieldName); ok {
		return f.Requires
	}
	return nil
}

// EntityFetchable reports whether subGraph can be asked for typeName
// through _entities.
func (sg *SuperGraph) EntityFetchable(subGraph *SubGraph, typeName string) bool {
	entity, ok := subGraph.GetEntity(typeName)
	return ok && entity.IsResolvable()
}

// FieldType returns the definition of fieldName on typeName in the API schema.
func (sg *SuperGraph) FieldType(typeName, fieldName string) *ast.FieldDefinition {
	def := sg.Schema.Types[typeName]
	if def == nil {
		return nil
	}
	return def.Fields.ForName(fieldName)
}
