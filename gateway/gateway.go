package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/n9te9/federation-benchmark/cache"
	"github.com/n9te9/federation-benchmark/execution"
	"github.com/n9te9/federation-benchmark/federation/executor"
	"github.com/n9te9/federation-benchmark/federation/planner"
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

type GatewayService struct {
	Name        string   `yaml:"name"`
	Host        string   `yaml:"host"`
	SchemaFiles []string `yaml:"schema_files"`
}

type GatewayOption struct {
	TimeoutDuration             string               `yaml:"timeout_duration" default:"3s"`
	EnableHangOverRequestHeader bool                 `yaml:"enable_hang_over_request_header"`
	Services                    []GatewayService     `yaml:"services"`
	Retry                       RetryOption          `yaml:"retry"`
	Opentelemetry               OpentelemetrySetting `yaml:"opentelemetry"`

	Logger *zap.Logger `yaml:"-"`
}

type OpentelemetrySetting struct {
	TracingSetting OpentelemetryTracingSetting `yaml:"tracing"`
}

type OpentelemetryTracingSetting struct {
	Enable bool `yaml:"enable" default:"false"`
}

// Request is the client request an execution belongs to.
type Request struct {
	Query         string
	OperationName string
	Variables     map[string]any
}

// ExecutionRequest carries everything Execute needs for one request.
// Document must come from Parse. Context may hold the client's request
// header under "headers".
type ExecutionRequest struct {
	Document *ast.QueryDocument
	Request  Request
	Cache    cache.KeyValueCache
	Schema   *ast.Schema
	Context  map[string]any
}

// Gateway is a federated GraphQL gateway over a fixed set of subgraphs.
type Gateway struct {
	engine *executionEngine
	logger *zap.Logger

	enableHangOverRequestHeader bool
}

// NewGateway loads the SDL of every service and composes them into a
// supergraph.
func NewGateway(ctx context.Context, settings GatewayOption) (*Gateway, error) {
	if len(settings.Services) == 0 {
		return nil, errors.New("gateway requires at least one service")
	}

	timeout := 3 * time.Second
	if settings.TimeoutDuration != "" {
		d, err := time.ParseDuration(settings.TimeoutDuration)
		if err != nil {
			return nil, fmt.Errorf("invalid timeout duration %q: %w", settings.TimeoutDuration, err)
		}
		timeout = d
	}

	httpClient := &http.Client{Timeout: timeout}
	if settings.Opentelemetry.TracingSetting.Enable {
		httpClient.Transport = otelhttp.NewTransport(http.DefaultTransport)
	}

	names := make([]string, len(settings.Services))
	hosts := make(map[string]string, len(settings.Services))

	for i, s := range settings.Services {
		if _, dup := hosts[s.Name]; dup {
			return nil, fmt.Errorf("duplicate service %q", s.Name)
		}
		names[i] = s.Name
		hosts[s.Name] = s.Host
	}

	sdlList, err := FetchSDLs(ctx, settings.Services, httpClient, settings.Retry)
	if err != nil {
		return nil, err
	}

	sdls := make(map[string]string, len(names))
	for i, name := range names {
		sdls[name] = sdlList[i]
	}

	engine, err := buildEngine(names, sdls, hosts, httpClient)
	if err != nil {
		return nil, err
	}

	logger := settings.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Gateway{
		engine:                      engine,
		logger:                      logger,
		enableHangOverRequestHeader: settings.EnableHangOverRequestHeader,
	}, nil
}

// Schema returns the API schema clients query.
func (g *Gateway) Schema() *ast.Schema {
	return g.engine.superGraph.Schema
}

// SDL returns the composed supergraph SDL.
func (g *Gateway) SDL() string {
	return g.engine.superGraph.SDL()
}

// Parse parses query and validates it against the API schema. The returned
// document is not modified by Execute and may be shared between requests.
func (g *Gateway) Parse(query string) (*ast.QueryDocument, error) {
	doc, errs := gqlparser.LoadQueryWithRules(g.Schema(), query, nil)
	if len(errs) > 0 {
		return nil, errs
	}
	return doc, nil
}

// Execute plans and executes the request. The result is pending; it settles
// with the response map holding "data" and, for partial failures, "errors".
func (g *Gateway) Execute(ctx context.Context, req ExecutionRequest) execution.Result {
	return execution.Pending(ctx, func(ctx context.Context) (any, error) {
		if req.Document == nil {
			return nil, errors.New("execution requires a parsed document")
		}
		if req.Schema != nil && req.Schema != g.Schema() {
			return nil, errors.New("document was prepared for another schema")
		}

		if header, ok := req.Context["headers"].(http.Header); ok && g.enableHangOverRequestHeader {
			ctx = executor.SetRequestHeaderToContext(ctx, header)
		}

		plan, err := g.plan(ctx, req)
		if err != nil {
			return nil, err
		}

		response, err := g.engine.executor.Execute(ctx, plan, req.Request.Variables)
		if err != nil {
			return nil, err
		}

		if hasIntrospection(plan.Operation.SelectionSet) {
			if err := g.engine.resolveIntrospection(ctx, req.Request, response); err != nil {
				return nil, err
			}
		}

		return response, nil
	})
}

func (g *Gateway) plan(ctx context.Context, req ExecutionRequest) (*planner.Plan, error) {
	key := req.Request.OperationName + "\x00" + req.Request.Query

	if req.Cache != nil {
		v, ok, err := req.Cache.Get(ctx, key)
		if err != nil {
			g.logger.Warn("failed to read query plan cache", zap.Error(err))
		}
		if plan, isPlan := v.(*planner.Plan); ok && isPlan {
			return plan, nil
		}
	}

	plan, err := g.engine.planner.Plan(req.Document, req.Request.OperationName)
	if err != nil {
		return nil, fmt.Errorf("failed to plan query: %w", err)
	}

	if req.Cache != nil {
		if err := req.Cache.Set(ctx, key, plan); err != nil {
			g.logger.Warn("failed to store query plan", zap.Error(err))
		}
	}

	return plan, nil
}
