package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/graphql-go/graphql/gqlerrors"
	"github.com/n9te9/federation-benchmark/execution"
	"github.com/n9te9/federation-benchmark/memo"
	"github.com/vektah/gqlparser/v2/gqlerror"
)

// Request is the body of a GraphQL POST.
type Request struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName"`
	Variables     map[string]any `json:"variables"`
}

// ExecuteFunc runs a prepared document of type D. contextValue is the
// execution context of the request.
type ExecuteFunc[D any] func(ctx context.Context, req Request, doc D, contextValue map[string]any) (execution.Result, error)

// route binds a path to a memoized parser and an execution strategy.
type route struct {
	path    string
	prepare func(query string) (any, error)
	execute func(ctx context.Context, req Request, doc any, contextValue map[string]any) (execution.Result, error)
	parsed  func() int
}

func newRoute[D any](path string, parse memo.ParseFunc[D], cacheSize int, execute ExecuteFunc[D]) (*route, error) {
	parser, err := memo.New(parse, cacheSize)
	if err != nil {
		return nil, fmt.Errorf("route %s: %w", path, err)
	}

	return &route{
		path: path,
		prepare: func(query string) (any, error) {
			return parser.Parse(query)
		},
		execute: func(ctx context.Context, req Request, doc any, contextValue map[string]any) (execution.Result, error) {
			return execute(ctx, req, doc.(D), contextValue)
		},
		parsed: parser.Len,
	}, nil
}

// serve prepares and executes req and writes the response. It returns the
// status written and the error that failed the request, if any.
func (rt *route) serve(ctx context.Context, w http.ResponseWriter, req Request, contextValue map[string]any) (status int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			status = writeError(w, err)
		}
	}()

	doc, err := rt.prepare(req.Query)
	if err != nil {
		return writeError(w, err), err
	}

	result, err := rt.execute(ctx, req, doc, contextValue)
	if err != nil {
		return writeError(w, err), err
	}

	if !result.IsPending() {
		return writeJSON(w, http.StatusOK, result.Value())
	}

	v, err := result.Await()
	if err != nil {
		return writeError(w, err), err
	}
	return writeJSON(w, http.StatusOK, v)
}

// writeJSON encodes v before writing the status, so a value that cannot be
// encoded becomes a 500 error response.
func writeJSON(w http.ResponseWriter, status int, v any) (int, error) {
	b, err := json.Marshal(v)
	if err != nil {
		err = fmt.Errorf("failed to encode response: %w", err)
		return writeError(w, err), err
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(append(b, '\n')); err != nil {
		return status, fmt.Errorf("failed to write response: %w", err)
	}
	return status, nil
}

// writeError writes the error payload of err with status 500.
func writeError(w http.ResponseWriter, err error) int {
	b, encodeErr := json.Marshal(ErrorPayload(err))
	if encodeErr != nil {
		b, _ = json.Marshal(ErrorPayload(encodeErr))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	w.Write(append(b, '\n'))
	return http.StatusInternalServerError
}

// ErrorPayload renders err as a GraphQL error response. Error lists of the
// GraphQL libraries keep their locations and paths.
func ErrorPayload(err error) map[string]any {
	var list gqlerror.List
	if errors.As(err, &list) {
		return map[string]any{"errors": list}
	}

	var single *gqlerror.Error
	if errors.As(err, &single) {
		return map[string]any{"errors": gqlerror.List{single}}
	}

	var validation *execution.ValidationError
	if errors.As(err, &validation) {
		return map[string]any{"errors": validation.Errors}
	}

	var syntax *gqlerrors.Error
	if errors.As(err, &syntax) {
		return map[string]any{"errors": []gqlerrors.FormattedError{gqlerrors.FormatError(syntax)}}
	}

	return map[string]any{
		"errors": []map[string]any{{"message": err.Error()}},
	}
}
