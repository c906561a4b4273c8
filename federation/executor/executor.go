package executor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/goccy/go-json"
	"github.com/n9te9/federation-benchmark/federation/graph"
	"github.com/n9te9/federation-benchmark/federation/planner"
	"golang.org/x/sync/errgroup"
)

// GraphQLError represents a GraphQL error with path information.
type GraphQLError struct {
	Message    string         `json:"message"`
	Path       []any          `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

// Executor executes a query plan by orchestrating requests to subgraphs.
type Executor struct {
	httpClient   *http.Client
	queryBuilder *QueryBuilder
	superGraph   *graph.SuperGraph
}

// NewExecutor creates a new Executor instance.
func NewExecutor(httpClient *http.Client, superGraph *graph.SuperGraph) *Executor {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Executor{
		httpClient:   httpClient,
		queryBuilder: NewQueryBuilder(),
		superGraph:   superGraph,
	}
}

// executionContext holds the execution state of one plan.
type executionContext struct {
	plan      *planner.Plan
	variables map[string]any
	data      map[string]any
	done      map[int]bool
	errors    []GraphQLError
	mu        sync.Mutex
}

// Execute executes a query plan and returns the response with "data" and,
// when any step failed, "errors". Failing steps do not abort the plan; the
// fields they should have fetched are null in the response.
func (e *Executor) Execute(ctx context.Context, plan *planner.Plan, variables map[string]any) (map[string]any, error) {
	if err := validateDAG(plan); err != nil {
		return nil, fmt.Errorf("invalid plan: %w", err)
	}

	execCtx := &executionContext{
		plan:      plan,
		variables: variables,
		data:      make(map[string]any),
		done:      make(map[int]bool),
	}

	if err := e.executeSteps(ctx, execCtx, plan.RootStepIndexes); err != nil {
		return nil, err
	}

	response := map[string]any{
		"data": e.pruneResponse(execCtx.data, plan, variables),
	}
	if len(execCtx.errors) > 0 {
		response["errors"] = execCtx.errors
	}

	return response, nil
}

// validateDAG checks that step dependencies exist and contain no cycle.
func validateDAG(plan *planner.Plan) error {
	if plan == nil || plan.Operation == nil {
		return fmt.Errorf("plan has no operation")
	}

	inDegree := make(map[int]int, len(plan.Steps))
	for i, step := range plan.Steps {
		if step.ID != i {
			return fmt.Errorf("step %d is stored at index %d", step.ID, i)
		}
		for _, dep := range step.DependsOn {
			if dep < 0 || dep >= len(plan.Steps) {
				return fmt.Errorf("step %d depends on unknown step %d", step.ID, dep)
			}
		}
		inDegree[step.ID] = len(step.DependsOn)
	}

	queue := make([]int, 0)
	for _, step := range plan.Steps {
		if inDegree[step.ID] == 0 {
			queue = append(queue, step.ID)
		}
	}

	visited := 0
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		visited++

		for _, step := range plan.Steps {
			for _, dep := range step.DependsOn {
				if dep == current {
					inDegree[step.ID]--
					if inDegree[step.ID] == 0 {
						queue = append(queue, step.ID)
					}
				}
			}
		}
	}

	if visited != len(plan.Steps) {
		return fmt.Errorf("plan contains circular dependencies")
	}
	return nil
}

// executeSteps executes a group of steps in parallel and then the steps whose
// dependencies are all satisfied, until none is left.
func (e *Executor) executeSteps(ctx context.Context, execCtx *executionContext, stepIDs []int) error {
	for len(stepIDs) > 0 {
		eg, egCtx := errgroup.WithContext(ctx)
		for _, stepID := range stepIDs {
			step := execCtx.plan.Steps[stepID]
			eg.Go(func() error {
				e.processStep(egCtx, execCtx, step)
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		stepIDs = findReadySteps(execCtx)
	}
	return nil
}

// findReadySteps finds steps whose dependencies have all been completed.
func findReadySteps(execCtx *executionContext) []int {
	execCtx.mu.Lock()
	defer execCtx.mu.Unlock()

	ready := make([]int, 0)
	for _, step := range execCtx.plan.Steps {
		if execCtx.done[step.ID] || len(step.DependsOn) == 0 {
			continue
		}

		allDepsReady := true
		for _, depID := range step.DependsOn {
			if !execCtx.done[depID] {
				allDepsReady = false
				break
			}
		}
		if allDepsReady {
			ready = append(ready, step.ID)
		}
	}
	return ready
}

func (e *Executor) processStep(ctx context.Context, execCtx *executionContext, step *planner.Step) {
	defer func() {
		execCtx.mu.Lock()
		execCtx.done[step.ID] = true
		execCtx.mu.Unlock()
	}()

	if step.SubGraph == nil {
		e.recordError(execCtx, step, fmt.Errorf("step %d has no subgraph", step.ID))
		return
	}

	var (
		entities []map[string]any
		indexes  []int
		reps     []any
	)
	if step.StepType == planner.StepTypeEntity {
		entities, indexes, reps = e.extractRepresentations(execCtx, step)
		if len(reps) == 0 {
			return
		}
	}

	query, queryVars, err := e.queryBuilder.Build(step, execCtx.plan.Operation, reps, execCtx.variables)
	if err != nil {
		e.recordError(execCtx, step, fmt.Errorf("failed to build query: %w", err))
		return
	}

	result, err := e.sendRequest(ctx, step.SubGraph.Host, query, queryVars)
	if err != nil {
		e.recordError(execCtx, step, err)
		return
	}

	if errs, ok := result["errors"].([]any); ok && len(errs) > 0 {
		e.recordSubgraphErrors(execCtx, step, errs)
	}

	data, _ := result["data"].(map[string]any)
	if data == nil {
		return
	}

	execCtx.mu.Lock()
	defer execCtx.mu.Unlock()

	if step.StepType == planner.StepTypeQuery {
		mergeObject(execCtx.data, data)
		return
	}

	results, ok := data["_entities"].([]any)
	if !ok {
		return
	}
	if len(results) != len(reps) {
		execCtx.errors = append(execCtx.errors, stepError(step, fmt.Sprintf("expected %d entities from %s, got %d", len(reps), step.SubGraph.Name, len(results))))
		return
	}
	for i, entity := range entities {
		if fields, ok := results[indexes[i]].(map[string]any); ok {
			mergeObject(entity, fields)
		}
	}
}

// extractRepresentations collects the objects at the step's path and builds
// one representation per distinct key. indexes maps every object to its
// representation.
func (e *Executor) extractRepresentations(execCtx *executionContext, step *planner.Step) ([]map[string]any, []int, []any) {
	execCtx.mu.Lock()
	defer execCtx.mu.Unlock()

	objects := collectObjects(execCtx.data, step.Path)

	keyFields := step.SubGraph.KeyFields(step.ParentType)
	var (
		entities []map[string]any
		indexes  []int
		reps     []any
	)
	seen := make(map[string]int)

	for _, obj := range objects {
		if typename, ok := obj["__typename"].(string); ok && typename != step.ParentType {
			continue
		}

		rep := map[string]any{"__typename": step.ParentType}
		complete := true
		for _, key := range keyFields {
			v, ok := obj[key]
			if !ok || v == nil {
				complete = false
				break
			}
			rep[key] = v
		}
		if !complete {
			continue
		}
		for _, req := range step.Requires {
			rep[req] = obj[req]
		}

		b, err := json.Marshal(rep)
		if err != nil {
			continue
		}
		index, ok := seen[string(b)]
		if !ok {
			index = len(reps)
			seen[string(b)] = index
			reps = append(reps, rep)
		}

		entities = append(entities, obj)
		indexes = append(indexes, index)
	}

	return entities, indexes, reps
}

// collectObjects returns the objects found by following path from data,
// flattening lists and skipping nulls.
func collectObjects(data any, path []string) []map[string]any {
	switch v := data.(type) {
	case []any:
		var objects []map[string]any
		for _, elem := range v {
			objects = append(objects, collectObjects(elem, path)...)
		}
		return objects
	case map[string]any:
		if len(path) == 0 {
			return []map[string]any{v}
		}
		return collectObjects(v[path[0]], path[1:])
	}
	return nil
}

func stepError(step *planner.Step, message string) GraphQLError {
	path := make([]any, 0, len(step.Path))
	for _, segment := range step.Path {
		path = append(path, segment)
	}

	serviceName := ""
	if step.SubGraph != nil {
		serviceName = step.SubGraph.Name
	}

	return GraphQLError{
		Message: message,
		Path:    path,
		Extensions: map[string]any{
			"serviceName": serviceName,
		},
	}
}

// recordError records an error in the execution context with path information.
func (e *Executor) recordError(execCtx *executionContext, step *planner.Step, err error) {
	execCtx.mu.Lock()
	defer execCtx.mu.Unlock()

	execCtx.errors = append(execCtx.errors, stepError(step, err.Error()))
}

// recordSubgraphErrors records errors from subgraph response. Paths inside
// _entities are replaced by the step's path.
func (e *Executor) recordSubgraphErrors(execCtx *executionContext, step *planner.Step, errs []any) {
	execCtx.mu.Lock()
	defer execCtx.mu.Unlock()

	for _, item := range errs {
		errMap, ok := item.(map[string]any)
		if !ok {
			continue
		}

		message, _ := errMap["message"].(string)
		if message == "" {
			message = "Unknown error from subgraph"
		}

		graphqlErr := stepError(step, message)
		if errPath, ok := errMap["path"].([]any); ok {
			if step.StepType == planner.StepTypeEntity && len(errPath) >= 2 && errPath[0] == "_entities" {
				errPath = errPath[2:]
			}
			graphqlErr.Path = append(graphqlErr.Path, errPath...)
		}
		if extensions, ok := errMap["extensions"].(map[string]any); ok {
			for k, v := range extensions {
				graphqlErr.Extensions[k] = v
			}
		}

		execCtx.errors = append(execCtx.errors, graphqlErr)
	}
}

// sendRequest sends a GraphQL request to a subgraph.
func (e *Executor) sendRequest(ctx context.Context, host, query string, variables map[string]any) (map[string]any, error) {
	reqBody := map[string]any{
		"query": query,
	}
	if len(variables) > 0 {
		reqBody["variables"] = variables
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, host, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	forwardHeader(ctx, req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var result map[string]any
	if err := json.Unmarshal(respBody, &result); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("subgraph responded %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
		}
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return result, nil
}
