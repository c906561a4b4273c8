package registry

import (
	"context"
	"fmt"

	"github.com/n9te9/federation-benchmark/gateway"
	"github.com/n9te9/federation-benchmark/monolith"
	"github.com/n9te9/federation-benchmark/stitching"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Options configures the schema providers.
type Options struct {
	Services                    []gateway.GatewayService
	TimeoutDuration             string
	Retry                       gateway.RetryOption
	EnableHangOverRequestHeader bool
	Opentelemetry               gateway.OpentelemetrySetting

	Logger *zap.Logger
}

// Registry holds the schema handle of every route. Handles are built once
// and only read afterwards.
type Registry struct {
	federation *gateway.Gateway
	stitching  *stitching.Gateway
	monolith   *monolith.Monolith
}

// New builds the federated gateway, the stitched gateway and the monolith
// concurrently. It returns only when all of them are ready; the first
// failure cancels the others.
func New(ctx context.Context, opt Options) (*Registry, error) {
	logger := opt.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &Registry{}
	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		gw, err := gateway.NewGateway(egCtx, gateway.GatewayOption{
			TimeoutDuration:             opt.TimeoutDuration,
			EnableHangOverRequestHeader: opt.EnableHangOverRequestHeader,
			Services:                    opt.Services,
			Retry:                       opt.Retry,
			Opentelemetry:               opt.Opentelemetry,
			Logger:                      logger.Named("federation"),
		})
		if err != nil {
			return fmt.Errorf("federation: %w", err)
		}
		r.federation = gw
		return nil
	})

	eg.Go(func() error {
		gw, err := stitching.NewGateway(egCtx, stitching.Option{
			TimeoutDuration: opt.TimeoutDuration,
			Services:        opt.Services,
			Retry:           opt.Retry,
			Opentelemetry:   opt.Opentelemetry,
			Logger:          logger.Named("stitching"),
		})
		if err != nil {
			return fmt.Errorf("stitching: %w", err)
		}
		r.stitching = gw
		return nil
	})

	eg.Go(func() error {
		m, err := monolith.New()
		if err != nil {
			return fmt.Errorf("monolith: %w", err)
		}
		r.monolith = m
		return nil
	})

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	logger.Debug("schema providers ready")
	return r, nil
}

// Federation returns the federated gateway.
func (r *Registry) Federation() *gateway.Gateway {
	return r.federation
}

// Stitching returns the stitched gateway.
func (r *Registry) Stitching() *stitching.Gateway {
	return r.stitching
}

// Monolith returns the in-process schema.
func (r *Registry) Monolith() *monolith.Monolith {
	return r.monolith
}
