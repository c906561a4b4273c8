package subgraph

import (
	"net/http"

	"github.com/goccy/go-json"
	"github.com/graphql-go/graphql"
	"go.uber.org/zap"
)

type graphQLRequest struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName"`
	Variables     map[string]any `json:"variables"`
}

type handler struct {
	schema *Schema
	logger *zap.Logger
}

var _ http.Handler = (*handler)(nil)

// NewHandler serves schema over HTTP. Requests are POSTed JSON bodies with
// query, operationName and variables; results are always written with 200.
func NewHandler(schema *Schema, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &handler{
		schema: schema,
		logger: logger.With(zap.String("subgraph", schema.Name)),
	}
}

func (h *handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req graphQLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	result := graphql.Do(graphql.Params{
		Schema:         h.schema.Executable,
		RequestString:  req.Query,
		VariableValues: req.Variables,
		OperationName:  req.OperationName,
		Context:        r.Context(),
	})
	if result.HasErrors() {
		h.logger.Debug("subgraph request returned errors", zap.Any("errors", result.Errors))
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(result); err != nil {
		h.logger.Warn("failed to write response", zap.Error(err))
	}
}
