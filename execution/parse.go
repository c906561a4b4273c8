package execution

import (
	"errors"
	"strings"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/gqlerrors"
	"github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/parser"
	"github.com/graphql-go/graphql/language/source"
)

// ValidationError lists the errors of a document that failed validation.
type ValidationError struct {
	Errors []gqlerrors.FormattedError
}

func (e *ValidationError) Error() string {
	messages := make([]string, 0, len(e.Errors))
	for _, err := range e.Errors {
		messages = append(messages, err.Message)
	}
	return strings.Join(messages, "; ")
}

// Parse parses query and validates it against schema, producing the
// document NormalizedExecutor consumes. Syntax errors are returned as
// *gqlerrors.Error, validation failures as *ValidationError.
func Parse(schema *graphql.Schema, query string) (*ast.Document, error) {
	if schema == nil {
		return nil, errors.New("execution: schema is nil")
	}

	doc, err := parser.Parse(parser.ParseParams{
		Source: source.NewSource(&source.Source{Body: []byte(query), Name: "GraphQL request"}),
	})
	if err != nil {
		return nil, err
	}

	if result := graphql.ValidateDocument(schema, doc, nil); !result.IsValid {
		return nil, &ValidationError{Errors: result.Errors}
	}

	return doc, nil
}
