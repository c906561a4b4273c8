package execution

import (
	"context"
	"errors"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/language/ast"
)

// NormalizedParams are the inputs of NormalizedExecutor.
type NormalizedParams struct {
	Schema        *graphql.Schema
	Document      *ast.Document
	ContextValue  map[string]any
	Variables     map[string]any
	OperationName string
}

type contextValueKey struct{}

// ContextValue returns the execution context value attached by
// NormalizedExecutor, or nil.
func ContextValue(ctx context.Context) map[string]any {
	v, _ := ctx.Value(contextValueKey{}).(map[string]any)
	return v
}

// NormalizedExecutor executes a prepared document against a graphql-go schema.
// Resolvers run on the calling goroutine, so the result is always immediate.
func NormalizedExecutor(ctx context.Context, params NormalizedParams) (Result, error) {
	if params.Schema == nil {
		return Result{}, errors.New("execution: schema is nil")
	}
	if params.Document == nil {
		return Result{}, errors.New("execution: document is nil")
	}

	contextValue := params.ContextValue
	if contextValue == nil {
		contextValue = map[string]any{}
	}

	result := graphql.Execute(graphql.ExecuteParams{
		Schema:        *params.Schema,
		AST:           params.Document,
		OperationName: params.OperationName,
		Args:          params.Variables,
		Context:       context.WithValue(ctx, contextValueKey{}, contextValue),
	})

	return Immediate(result), nil
}
