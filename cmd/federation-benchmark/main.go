package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/n9te9/federation-benchmark/federation/graph"
	"github.com/n9te9/federation-benchmark/loadtest"
	"github.com/n9te9/federation-benchmark/monolith"
	"github.com/n9te9/federation-benchmark/server"
	"github.com/n9te9/federation-benchmark/services"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const version = "v0.1.0"

var configPath string

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of Federation Benchmark",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "Federation Benchmark "+version)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the /federation, /stitching and /monolith routes",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		defer logger.Sync()

		return server.Run(cmd.Context(), cfg, logger)
	},
}

var servicesCmd = &cobra.Command{
	Use:   "services",
	Short: "Serve the demo subgraph services on their configured ports",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		defer logger.Sync()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cluster, err := services.Start(ctx, cfg.Services.Host, cfg.ServiceOptions(), logger)
		if err != nil {
			return err
		}
		<-ctx.Done()

		logger.Info("stopping services")
		return cluster.Close()
	},
}

var (
	loadTarget      string
	loadRoutes      string
	loadConcurrency int
	loadDuration    time.Duration
	loadRequests    int
	loadQueryFile   string
)

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Drive load at a running harness and report latencies per route",
	RunE: func(cmd *cobra.Command, args []string) error {
		query := loadtest.DefaultQuery
		if loadQueryFile != "" {
			b, err := os.ReadFile(loadQueryFile)
			if err != nil {
				return fmt.Errorf("failed to read query: %w", err)
			}
			query = string(b)
		}

		var routes []string
		for _, r := range strings.Split(loadRoutes, ",") {
			if r = strings.TrimSpace(r); r != "" {
				routes = append(routes, "/"+strings.TrimPrefix(r, "/"))
			}
		}

		duration := loadDuration
		if loadRequests > 0 {
			duration = 0
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		reports, err := loadtest.Run(ctx, loadtest.Options{
			Target:      loadTarget,
			Routes:      routes,
			Query:       query,
			Concurrency: loadConcurrency,
			Duration:    duration,
			Requests:    loadRequests,
		})
		if err != nil {
			return err
		}

		return loadtest.WriteReports(cmd.OutOrStdout(), reports)
	},
}

var schemaMonolith bool

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the composed schema of the demo services",
	RunE: func(cmd *cobra.Command, args []string) error {
		if schemaMonolith {
			m, err := monolith.New()
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), m.SDL())
			return nil
		}

		var subGraphs []*graph.SubGraph
		for _, def := range services.Definitions() {
			sg, err := graph.NewSubGraph(def.Name, []byte(def.SDL), "")
			if err != nil {
				return err
			}
			subGraphs = append(subGraphs, sg)
		}
		superGraph, err := graph.NewSuperGraph(subGraphs)
		if err != nil {
			return err
		}

		fmt.Fprint(cmd.OutOrStdout(), superGraph.SDL())
		return nil
	},
}

func setup() (*server.Config, *zap.Logger, error) {
	cfg, err := server.LoadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}

	logger, err := server.NewLogger(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}

	return cfg, logger, nil
}

func main() {
	rootCmd := cobra.Command{
		Use:          "federation-benchmark",
		SilenceUsage: true,
	}

	for _, cmd := range []*cobra.Command{serveCmd, servicesCmd} {
		cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to the YAML configuration")
	}

	loadCmd.Flags().StringVar(&loadTarget, "target", "http://127.0.0.1:3000", "base URL of the harness")
	loadCmd.Flags().StringVar(&loadRoutes, "routes", strings.Join(loadtest.DefaultRoutes, ","), "comma separated routes to drive")
	loadCmd.Flags().IntVar(&loadConcurrency, "concurrency", 10, "concurrent clients per route")
	loadCmd.Flags().DurationVar(&loadDuration, "duration", 10*time.Second, "duration per route")
	loadCmd.Flags().IntVar(&loadRequests, "requests", 0, "requests per route; overrides duration when positive")
	loadCmd.Flags().StringVar(&loadQueryFile, "query-file", "", "file holding the query to send")

	schemaCmd.Flags().BoolVar(&schemaMonolith, "monolith", false, "print the monolith schema instead of the supergraph")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(servicesCmd)
	rootCmd.AddCommand(loadCmd)
	rootCmd.AddCommand(schemaCmd)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
