package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/calcengine/calcengine/internal/api"
	"github.com/calcengine/calcengine/internal/calculators"
	"github.com/calcengine/calcengine/internal/config"
	"github.com/calcengine/calcengine/internal/engine"
	"github.com/calcengine/calcengine/internal/metrics"
	"github.com/calcengine/calcengine/internal/registry"
	"github.com/calcengine/calcengine/internal/rpc"
	"github.com/calcengine/calcengine/internal/ws"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP, WebSocket and gRPC servers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return serve(ctx, cfg, flags.configPath)
		},
	}
}

// newEngine builds an engine over the built-in calculators.
func newEngine(cfg config.EngineConfig) (*engine.Engine, error) {
	reg := registry.New()
	if err := calculators.RegisterAll(reg); err != nil {
		return nil, err
	}
	return engine.New(reg, cfg)
}

func serve(ctx context.Context, cfg *config.Config, configPath string) error {
	slog.Info("calcengine starting",
		"version", version,
		"config", configPath,
		"http_port", cfg.Server.HTTPPort,
		"grpc_port", cfg.Server.GRPCPort,
		"auth_mode", cfg.Server.Auth.Mode,
		"workers", cfg.Engine.Workers,
		"cache_size", cfg.Engine.CacheSize,
	)

	eng, err := newEngine(cfg.Engine)
	if err != nil {
		return err
	}
	defer eng.Close()
	go eng.Run(ctx)

	if configPath != "" {
		go func() {
			err := config.Watch(ctx, configPath, func(next *config.Config) error {
				return eng.ApplyConfig(next.Engine)
			})
			if err != nil {
				slog.Error("config: watch stopped", "err", err)
			}
		}()
	}

	// gRPC server with optional API key authentication interceptor.
	grpcSrv := rpc.NewGRPCServer(eng, cfg.Server.Auth)
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
	if err != nil {
		return fmt.Errorf("listen on gRPC port %d: %w", cfg.Server.GRPCPort, err)
	}
	go func() {
		slog.Info("gRPC server listening", "port", cfg.Server.GRPCPort)
		if err := grpcSrv.Serve(lis); err != nil {
			slog.Error("gRPC server stopped", "err", err)
		}
	}()

	// WebSocket hub: per-connection sessions plus periodic stats.
	hub := ws.New(eng, cfg.Server.StatsInterval)
	go hub.Run(ctx)

	opts := api.Options{
		Metrics: metrics.Handler(eng),
		Stream:  hub,
	}
	if cfg.Server.Auth.Mode == "apikey" {
		opts.APIKey = cfg.Server.Auth.Key()
		opts.APIKeyHeader = cfg.Server.Auth.EffectiveHeader()
	}
	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:           api.New(eng, opts),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", cfg.Server.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errc:
		grpcSrv.Stop()
		return fmt.Errorf("HTTP server: %w", err)
	}

	slog.Info("calcengine shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	grpcSrv.GracefulStop()
	return httpSrv.Shutdown(shutdownCtx)
}
