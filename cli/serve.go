package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/relayforge/mcpgate/aggregate"
	"github.com/relayforge/mcpgate/control"
	"github.com/relayforge/mcpgate/gateway"
	"github.com/relayforge/mcpgate/health"
	"github.com/relayforge/mcpgate/otelgate"
	"github.com/relayforge/mcpgate/relay"
)

// NewServeCmd creates the "serve" subcommand: the stdio protocol loop plus
// the optional HTTP control plane.
func NewServeCmd(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the stdio gateway",
		Long:  "Serve the JSON-RPC gateway on stdin/stdout, aggregating tools from running backends.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, version)
		},
	}

	addCommonFlags(cmd)
	cmd.Flags().Int("control-port", 0, "HTTP control API port (0 disables)")
	cmd.Flags().String("control-host", "127.0.0.1", "HTTP control API host")
	cmd.Flags().String("health-schedule", "@every 30s", "Backend probe schedule (cron or @every)")
	cmd.Flags().String("otel-endpoint", "", "OTLP/HTTP collector endpoint (empty disables export)")
	cmd.Flags().Bool("otel-insecure", false, "Use plain HTTP for the OTLP endpoint")

	return cmd
}

func runServe(cmd *cobra.Command, version string) error {
	verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose")
	logger := newLogger(os.Stderr, verbose)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	otelEndpoint, _ := cmd.Flags().GetString("otel-endpoint")
	otelInsecure, _ := cmd.Flags().GetBool("otel-insecure")
	telemetry, err := otelgate.Setup(ctx, otelgate.SetupConfig{
		ServiceName: "mcpgate",
		Version:     version,
		Endpoint:    otelEndpoint,
		Insecure:    otelInsecure,
	})
	if err != nil {
		return exitError(exitConfig, "initializing telemetry: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = telemetry.Shutdown(shutdownCtx)
	}()
	defer relay.SetObserver(nil)

	manager, cat, cleanup, err := buildManager(ctx, cmd, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	backendRelay := relay.NewProcessRelay(manager)
	aggregator := aggregate.New(cat, backendRelay, manager)

	gatewayServer, err := gateway.NewServer(gateway.Config{
		Name:       "mcpgate",
		Version:    version,
		Aggregator: aggregator,
		Logger:     logger,
	}, os.Stdout)
	if err != nil {
		return exitError(exitRuntime, "building gateway: %v", err)
	}

	healthSchedule, _ := cmd.Flags().GetString("health-schedule")
	scheduler, err := health.NewScheduler(health.SchedulerConfig{
		Prober:   backendRelay,
		Recorder: manager,
		Schedule: healthSchedule,
		OnEvent: func(event health.Event) {
			if !event.Healthy {
				logger.Warn("backend probe failed", "backend", event.BackendID, "failures", event.Failures)
			}
		},
	})
	if err != nil {
		return exitError(exitConfig, "building health scheduler: %v", err)
	}
	if err := scheduler.Start(ctx); err != nil {
		return exitError(exitRuntime, "starting health scheduler: %v", err)
	}
	defer func() {
		_ = scheduler.Stop(context.Background())
	}()

	controlPort, _ := cmd.Flags().GetInt("control-port")
	if controlPort > 0 {
		controlHost, _ := cmd.Flags().GetString("control-host")
		controlServer, err := control.NewServer(control.ServerConfig{
			Catalog: cat,
			Manager: manager,
			Version: version,
			Logger:  logger,
		})
		if err != nil {
			return exitError(exitRuntime, "building control server: %v", err)
		}

		addr := net.JoinHostPort(controlHost, fmt.Sprintf("%d", controlPort))
		httpServer := &http.Server{
			Addr:         addr,
			Handler:      controlServer.Handler(),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
		}
		go func() {
			logger.Info("control API listening", "addr", addr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("control API failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = httpServer.Shutdown(shutdownCtx)
		}()
	}

	logger.Info("gateway serving on stdio", "version", version)
	if err := gatewayServer.Serve(ctx, os.Stdin); err != nil && !errors.Is(err, context.Canceled) {
		return exitError(exitRuntime, "gateway loop: %v", err)
	}
	return nil
}
