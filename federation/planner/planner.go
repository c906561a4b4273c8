package planner

import (
	"errors"
	"fmt"
	"strings"

	"github.com/n9te9/federation-benchmark/federation/graph"
	"github.com/vektah/gqlparser/v2/ast"
)

// StepType indicates the type of a step.
type StepType int

const (
	// StepTypeQuery represents a step that resolves root fields of an operation.
	StepTypeQuery StepType = iota
	// StepTypeEntity represents a step that resolves fields of entities through _entities.
	StepTypeEntity
)

// Step represents a unit of request to a service.
type Step struct {
	ID           int
	SubGraph     *graph.SubGraph
	StepType     StepType
	ParentType   string           // Root type name, or the entity type of an entity step
	SelectionSet ast.SelectionSet // Fields to request; for entity steps the fields inside "... on ParentType"
	Path         []string         // Response keys from the data root to the entities of an entity step
	DependsOn    []int
	Requires     []string // Fields besides the keys that representations must carry

	fields ast.SelectionSet // fields an entity step was asked for, built into SelectionSet later
	parent *Step
}

// Plan represents a query execution plan.
type Plan struct {
	Operation       *ast.OperationDefinition
	RootType        string
	Steps           []*Step
	RootStepIndexes []int
}

// Planner generates query execution plans.
type Planner struct {
	SuperGraph *graph.SuperGraph
}

// NewPlanner creates a new Planner instance.
func NewPlanner(superGraph *graph.SuperGraph) *Planner {
	return &Planner{
		SuperGraph: superGraph,
	}
}

// ErrUnsupportedOperation is returned for subscriptions.
var ErrUnsupportedOperation = errors.New("unsupported operation")

type planning struct {
	plan    *Plan
	pending []*Step
	// entity steps by subgraph, type, path and parent step
	entitySteps map[string]*Step
}

// Plan generates an execution plan for an operation of a validated document.
// Root fields are grouped by the first subgraph that owns them; mutation
// root fields each get their own step, chained in document order.
func (p *Planner) Plan(doc *ast.QueryDocument, operationName string) (*Plan, error) {
	op, err := selectOperation(doc, operationName)
	if err != nil {
		return nil, err
	}

	rootType, err := p.rootTypeName(op)
	if err != nil {
		return nil, err
	}

	pl := &planning{
		plan: &Plan{
			Operation: op,
			RootType:  rootType,
		},
		entitySteps: make(map[string]*Step),
	}

	stepsByOwner := make(map[*graph.SubGraph]*Step)
	var previous *Step
	for _, field := range p.collectFields(op.SelectionSet, rootType) {
		if strings.HasPrefix(field.Name, "__") {
			continue
		}

		owner := p.SuperGraph.GetFieldOwnerSubGraph(rootType, field.Name)
		if owner == nil {
			return nil, fmt.Errorf("no subgraph found for field %s.%s", rootType, field.Name)
		}

		step, ok := stepsByOwner[owner]
		if !ok || op.Operation == ast.Mutation {
			step = pl.newStep(StepTypeQuery, owner, rootType, nil, nil)
			if op.Operation == ast.Mutation && previous != nil {
				step.DependsOn = append(step.DependsOn, previous.ID)
			} else {
				pl.plan.RootStepIndexes = append(pl.plan.RootStepIndexes, step.ID)
			}
			stepsByOwner[owner] = step
			previous = step
		}

		selections, err := p.buildSelections(pl, step, rootType, ast.SelectionSet{field}, nil)
		if err != nil {
			return nil, err
		}
		step.SelectionSet = append(step.SelectionSet, selections...)
	}

	for len(pl.pending) > 0 {
		step := pl.pending[0]
		pl.pending = pl.pending[1:]

		selections, err := p.buildSelections(pl, step, step.ParentType, step.fields, step.Path)
		if err != nil {
			return nil, err
		}
		step.SelectionSet = mergeFields(step.SelectionSet, selections)
	}

	return pl.plan, nil
}

func selectOperation(doc *ast.QueryDocument, operationName string) (*ast.OperationDefinition, error) {
	if doc == nil || len(doc.Operations) == 0 {
		return nil, errors.New("no operation found")
	}
	if operationName == "" {
		if len(doc.Operations) > 1 {
			return nil, errors.New("operation name is required when the document has several operations")
		}
		return doc.Operations[0], nil
	}

	op := doc.Operations.ForName(operationName)
	if op == nil {
		return nil, fmt.Errorf("unknown operation %q", operationName)
	}
	return op, nil
}

func (p *Planner) rootTypeName(op *ast.OperationDefinition) (string, error) {
	schema := p.SuperGraph.Schema
	switch op.Operation {
	case ast.Query, "":
		return schema.Query.Name, nil
	case ast.Mutation:
		if schema.Mutation == nil {
			return "", errors.New("schema does not support mutations")
		}
		return schema.Mutation.Name, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedOperation, op.Operation)
}

func (pl *planning) newStep(stepType StepType, sg *graph.SubGraph, parentType string, path []string, parent *Step) *Step {
	step := &Step{
		ID:         len(pl.plan.Steps),
		SubGraph:   sg,
		StepType:   stepType,
		ParentType: parentType,
		Path:       path,
		parent:     parent,
	}
	if parent != nil {
		step.DependsOn = append(step.DependsOn, parent.ID)
	}
	pl.plan.Steps = append(pl.plan.Steps, step)
	return step
}

// entityStep returns the entity step of sg for parentType at path below
// parent, creating and queueing it on first use.
func (pl *planning) entityStep(sg *graph.SubGraph, parentType string, path []string, parent *Step) *Step {
	key := fmt.Sprintf("%d/%s/%s/%s", parent.ID, sg.Name, parentType, strings.Join(path, "."))
	if step, ok := pl.entitySteps[key]; ok {
		return step
	}

	step := pl.newStep(StepTypeEntity, sg, parentType, append([]string(nil), path...), parent)
	pl.entitySteps[key] = step
	pl.pending = append(pl.pending, step)
	return step
}

// buildSelections returns the part of selections that step's subgraph
// resolves for an object of parentType at path. Fields it cannot resolve are
// handed to entity steps, and the key and @requires fields those steps need
// are added to the returned selections.
func (p *Planner) buildSelections(pl *planning, step *Step, parentType string, selections ast.SelectionSet, path []string) (ast.SelectionSet, error) {
	var out ast.SelectionSet
	sg := step.SubGraph

	for _, sel := range selections {
		switch s := sel.(type) {
		case *ast.Field:
			if s.Name == "__typename" {
				out = mergeFields(out, ast.SelectionSet{copyField(s, nil)})
				continue
			}

			if p.SuperGraph.CanResolve(sg, parentType, s.Name) {
				var children ast.SelectionSet
				if len(s.SelectionSet) > 0 {
					if s.Definition == nil {
						return nil, fmt.Errorf("field %s.%s has no definition", parentType, s.Name)
					}
					childType := s.Definition.Type.Name()
					childPath := append(append([]string(nil), path...), s.Alias)
					built, err := p.buildSelections(pl, step, childType, s.SelectionSet, childPath)
					if err != nil {
						return nil, err
					}
					children = built
				}
				out = mergeFields(out, ast.SelectionSet{copyField(s, children)})
				continue
			}

			added, err := p.planBoundaryField(pl, step, parentType, s, path)
			if err != nil {
				return nil, err
			}
			out = mergeFields(out, added)

		case *ast.InlineFragment:
			nested, err := p.buildFragment(pl, step, parentType, s.TypeCondition, s.SelectionSet, path)
			if err != nil {
				return nil, err
			}
			out = mergeFields(out, nested)

		case *ast.FragmentSpread:
			if s.Definition == nil {
				return nil, fmt.Errorf("fragment %s is not defined", s.Name)
			}
			nested, err := p.buildFragment(pl, step, parentType, s.Definition.TypeCondition, s.Definition.SelectionSet, path)
			if err != nil {
				return nil, err
			}
			out = mergeFields(out, nested)
		}
	}

	return out, nil
}

// buildFragment flattens a fragment whose type condition is the parent type.
// On abstract parents the fragment is kept with its type condition, and
// __typename is requested so the executor and the response shaping can tell
// the concrete type.
func (p *Planner) buildFragment(pl *planning, step *Step, parentType, typeCondition string, selections ast.SelectionSet, path []string) (ast.SelectionSet, error) {
	if typeCondition == "" || typeCondition == parentType {
		return p.buildSelections(pl, step, parentType, selections, path)
	}

	nested, err := p.buildSelections(pl, step, typeCondition, selections, path)
	if err != nil {
		return nil, err
	}

	return ast.SelectionSet{
		typenameField(),
		&ast.InlineFragment{
			TypeCondition: typeCondition,
			SelectionSet:  nested,
		},
	}, nil
}

// planBoundaryField hands field to an entity step of a subgraph that owns it
// and returns the fields the current step must fetch for that entity step:
// __typename, the key, and the @requires fields it can resolve itself.
func (p *Planner) planBoundaryField(pl *planning, step *Step, parentType string, field *ast.Field, path []string) (ast.SelectionSet, error) {
	target := p.entityOwner(parentType, field.Name)
	if target == nil {
		return nil, fmt.Errorf("no subgraph can resolve %s.%s from %s", parentType, field.Name, step.SubGraph.Name)
	}

	entityStep := pl.entityStep(target, parentType, path, step)
	entityStep.fields = append(entityStep.fields, field)

	added := ast.SelectionSet{typenameField()}
	for _, key := range target.KeyFields(parentType) {
		if !p.SuperGraph.CanResolve(step.SubGraph, parentType, key) {
			return nil, fmt.Errorf("%s cannot provide key %s.%s for %s", step.SubGraph.Name, parentType, key, target.Name)
		}
		added = append(added, p.plainField(parentType, key))
	}

	for _, req := range p.SuperGraph.Requires(target, parentType, field.Name) {
		if !containsString(entityStep.Requires, req) {
			entityStep.Requires = append(entityStep.Requires, req)
		}

		if p.SuperGraph.CanResolve(step.SubGraph, parentType, req) {
			added = append(added, p.plainField(parentType, req))
			continue
		}

		// the required field lives in a third subgraph; fetch it there first
		provider := p.entityOwner(parentType, req)
		if provider == nil {
			return nil, fmt.Errorf("no subgraph can provide %s.%s required by %s", parentType, req, target.Name)
		}
		providerStep := pl.entityStep(provider, parentType, path, step)
		if !hasResponseKey(providerStep.fields, req) {
			providerStep.fields = append(providerStep.fields, p.plainField(parentType, req))
		}
		if !containsInt(entityStep.DependsOn, providerStep.ID) {
			entityStep.DependsOn = append(entityStep.DependsOn, providerStep.ID)
		}
	}

	return added, nil
}

// entityOwner returns the first owner of the field that resolves parentType
// through _entities.
func (p *Planner) entityOwner(parentType, fieldName string) *graph.SubGraph {
	for _, owner := range p.SuperGraph.GetSubGraphsForField(parentType, fieldName) {
		if p.SuperGraph.EntityFetchable(owner, parentType) {
			return owner
		}
	}
	return nil
}

// collectFields flattens the root selection set of an operation.
func (p *Planner) collectFields(selections ast.SelectionSet, typeName string) []*ast.Field {
	var fields []*ast.Field
	for _, sel := range selections {
		switch s := sel.(type) {
		case *ast.Field:
			fields = append(fields, s)
		case *ast.InlineFragment:
			if s.TypeCondition == "" || s.TypeCondition == typeName {
				fields = append(fields, p.collectFields(s.SelectionSet, typeName)...)
			}
		case *ast.FragmentSpread:
			if s.Definition != nil && s.Definition.TypeCondition == typeName {
				fields = append(fields, p.collectFields(s.Definition.SelectionSet, typeName)...)
			}
		}
	}
	return fields
}

func (p *Planner) plainField(typeName, fieldName string) *ast.Field {
	f := &ast.Field{Alias: fieldName, Name: fieldName}
	if def := p.SuperGraph.FieldType(typeName, fieldName); def != nil {
		f.Definition = def
	}
	return f
}

func typenameField() *ast.Field {
	return &ast.Field{Alias: "__typename", Name: "__typename"}
}

func copyField(f *ast.Field, children ast.SelectionSet) *ast.Field {
	return &ast.Field{
		Alias:            f.Alias,
		Name:             f.Name,
		Arguments:        f.Arguments,
		Directives:       f.Directives,
		SelectionSet:     children,
		Definition:       f.Definition,
		ObjectDefinition: f.ObjectDefinition,
	}
}

// mergeFields appends additions to existing. A field whose response key is
// already selected is merged into the existing field's sub-selection.
func mergeFields(existing, additions ast.SelectionSet) ast.SelectionSet {
	for _, sel := range additions {
		f, ok := sel.(*ast.Field)
		if !ok {
			existing = append(existing, sel)
			continue
		}

		merged := false
		for _, e := range existing {
			ef, ok := e.(*ast.Field)
			if !ok || ef.Alias != f.Alias {
				continue
			}
			if len(f.SelectionSet) > 0 {
				ef.SelectionSet = mergeFields(ef.SelectionSet, f.SelectionSet)
			}
			merged = true
			break
		}
		if !merged {
			existing = append(existing, f)
		}
	}
	return existing
}

func hasResponseKey(selections ast.SelectionSet, key string) bool {
	for _, sel := range selections {
		if f, ok := sel.(*ast.Field); ok && f.Alias == key {
			return true
		}
	}
	return false
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsInt(list []int, n int) bool {
	for _, v := range list {
		if v == n {
			return true
		}
	}
	return false
}
