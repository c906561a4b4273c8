package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	gast "github.com/graphql-go/graphql/language/ast"
	"github.com/n9te9/federation-benchmark/cache"
	"github.com/n9te9/federation-benchmark/execution"
	"github.com/n9te9/federation-benchmark/gateway"
	"github.com/n9te9/federation-benchmark/registry"
	"github.com/n9te9/federation-benchmark/services"
	"github.com/vektah/gqlparser/v2/ast"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

const requestIDHeader = "X-Request-Id"

// Options tune the HTTP handler.
type Options struct {
	// ParseCacheSize caps every route's parse cache; zero or less is
	// unbounded.
	ParseCacheSize        int
	ComplementRequestID   bool
	ForwardRequestHeaders bool

	Logger *zap.Logger
}

// Server routes GraphQL POSTs to the federation, stitching and monolith
// routes.
type Server struct {
	routes map[string]*route
	logger *zap.Logger

	complementRequestID   bool
	forwardRequestHeaders bool
}

var _ http.Handler = (*Server)(nil)

// New binds the three routes to the schema handles of reg.
func New(reg *registry.Registry, opt Options) (*Server, error) {
	logger := opt.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		routes:                make(map[string]*route),
		logger:                logger,
		complementRequestID:   opt.ComplementRequestID,
		forwardRequestHeaders: opt.ForwardRequestHeaders,
	}

	federation := reg.Federation()
	fed, err := newRoute("/federation", federation.Parse, opt.ParseCacheSize,
		func(ctx context.Context, req Request, doc *ast.QueryDocument, contextValue map[string]any) (execution.Result, error) {
			return federation.Execute(ctx, gateway.ExecutionRequest{
				Document: doc,
				Request: gateway.Request{
					Query:         req.Query,
					OperationName: req.OperationName,
					Variables:     req.Variables,
				},
				Cache:   cache.Noop{},
				Schema:  federation.Schema(),
				Context: contextValue,
			}), nil
		})
	if err != nil {
		return nil, err
	}

	stitching := reg.Stitching()
	stitch, err := newRoute("/stitching", stitching.Parse, opt.ParseCacheSize,
		func(ctx context.Context, req Request, doc *gast.Document, contextValue map[string]any) (execution.Result, error) {
			return stitching.Execute(ctx, doc, normalizedParams(req, contextValue))
		})
	if err != nil {
		return nil, err
	}

	monolith := reg.Monolith()
	mono, err := newRoute("/monolith", monolith.Parse, opt.ParseCacheSize,
		func(ctx context.Context, req Request, doc *gast.Document, contextValue map[string]any) (execution.Result, error) {
			return monolith.Execute(ctx, doc, normalizedParams(req, contextValue))
		})
	if err != nil {
		return nil, err
	}

	for _, rt := range []*route{fed, stitch, mono} {
		s.routes[rt.path] = rt
	}

	return s, nil
}

func normalizedParams(req Request, contextValue map[string]any) execution.NormalizedParams {
	return execution.NormalizedParams{
		ContextValue:  contextValue,
		Variables:     req.Variables,
		OperationName: req.OperationName,
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if s.complementRequestID && r.Header.Get(requestIDHeader) == "" {
		r.Header.Set(requestIDHeader, uuid.NewString())
	}
	requestID := r.Header.Get(requestIDHeader)
	if requestID != "" {
		w.Header().Set(requestIDHeader, requestID)
	}

	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	rt, ok := s.routes[r.URL.Path]
	if !ok {
		http.NotFound(w, r)
		return
	}

	contextValue := map[string]any{}
	if s.forwardRequestHeaders && rt.path == "/federation" {
		contextValue["headers"] = r.Header
	}

	status, err := rt.serve(r.Context(), w, req, contextValue)

	s.logger.Debug("request served",
		zap.String("request_id", requestID),
		zap.String("route", rt.path),
		zap.Int("status", status),
		zap.Duration("duration", time.Since(start)),
		zap.Error(err))
}

// ParsedDocuments reports how many documents the route at path has cached.
func (s *Server) ParsedDocuments(path string) int {
	rt, ok := s.routes[path]
	if !ok {
		return 0
	}
	return rt.parsed()
}

// Serve serves handler on ln until ctx is done. It then closes the listener
// and every open connection at once; in-flight requests are aborted.
func Serve(ctx context.Context, ln net.Listener, handler http.Handler, logger *zap.Logger) error {
	srv := &http.Server{Handler: handler}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	logger.Info(fmt.Sprintf("listening on %s", displayAddr(ln.Addr())))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("Closing server")
	if err := srv.Close(); err != nil {
		return fmt.Errorf("failed to close server: %w", err)
	}
	logger.Info("Closed server")

	return nil
}

// Run starts the embedded services when configured, builds the schema
// handles, and serves the three routes until ctx is done or the process
// receives SIGINT or SIGTERM.
func Run(ctx context.Context, cfg *Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := SetupTracing(ctx, cfg.Opentelemetry.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("failed to shut down tracing", zap.Error(err))
		}
	}()

	list := cfg.GatewayServices()
	if cfg.Services.Embedded {
		cluster, err := services.Start(ctx, cfg.Services.Host, cfg.ServiceOptions(), logger.Named("services"))
		if err != nil {
			return err
		}
		defer cluster.Close()

		list = list[:0]
		for _, e := range cluster.Endpoints() {
			list = append(list, gateway.GatewayService{Name: e.Name, Host: e.URL})
		}
	}

	reg, err := registry.New(ctx, registry.Options{
		Services:                    list,
		TimeoutDuration:             cfg.SubgraphTimeout,
		Retry:                       cfg.SDLFetch,
		EnableHangOverRequestHeader: cfg.ForwardRequestHeaders,
		Opentelemetry: gateway.OpentelemetrySetting{
			TracingSetting: gateway.OpentelemetryTracingSetting{Enable: cfg.Opentelemetry.Tracing.Enable},
		},
		Logger: logger,
	})
	if err != nil {
		return err
	}

	srv, err := New(reg, Options{
		ParseCacheSize:        cfg.ParseCacheSize,
		ComplementRequestID:   cfg.ComplementRequestID,
		ForwardRequestHeaders: cfg.ForwardRequestHeaders,
		Logger:                logger,
	})
	if err != nil {
		return err
	}

	var handler http.Handler = srv
	if cfg.Opentelemetry.Tracing.Enable {
		handler = otelhttp.NewHandler(srv, serviceName)
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", cfg.Address())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.Address(), err)
	}

	return Serve(ctx, ln, handler, logger)
}

func displayAddr(addr net.Addr) string {
	tcp, ok := addr.(*net.TCPAddr)
	if !ok {
		return addr.String()
	}
	host := tcp.IP.String()
	if tcp.IP.IsUnspecified() {
		host = "0.0.0.0"
	}
	return net.JoinHostPort(host, strconv.Itoa(tcp.Port))
}
