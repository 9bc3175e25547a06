package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/microblog/internal/export"
	"github.com/alfredjeanlab/microblog/internal/query"
	"github.com/alfredjeanlab/microblog/internal/server"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "serve",
		Short:   "Start the query API server",
		GroupID: "system",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg
			logger := a.logger

			s, err := a.openStore()
			if err != nil {
				return err
			}
			defer func() {
				if err := s.Close(); err != nil {
					logger.Error("error closing store", "err", err)
				}
			}()

			pub := a.newPublisher()
			defer func() {
				if err := pub.Close(); err != nil {
					logger.Error("error closing publisher", "err", err)
				}
			}()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			// Listener failures land here and end the process.
			errCh := make(chan error, 3)

			// HTTP API.
			srv := server.New(s, query.NewSampler(s, cfg.SampleSeed), metrics(), logger)
			httpServer := server.NewHTTPServer(cfg.HTTPAddr, srv.NewHTTPHandler(cfg.AuthToken))
			go func() {
				logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- fmt.Errorf("HTTP server: %w", err)
				}
			}()

			// Metrics on their own listener, outside auth.
			var metricsServer *http.Server
			if cfg.MetricsAddr != "" {
				mux := http.NewServeMux()
				mux.Handle("GET "+server.PathMetrics, promhttp.Handler())
				metricsServer = server.NewHTTPServer(cfg.MetricsAddr, mux)
				go func() {
					logger.Info("metrics server listening", "addr", cfg.MetricsAddr)
					if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						errCh <- fmt.Errorf("metrics server: %w", err)
					}
				}()
			}

			// gRPC health and reflection.
			grpcServer, healthServer := server.NewGRPCServer(cfg.AuthToken, logger)
			if cfg.GRPCAddr != "" {
				lis, err := net.Listen("tcp", cfg.GRPCAddr)
				if err != nil {
					return fmt.Errorf("gRPC listen %s: %w", cfg.GRPCAddr, err)
				}
				go func() {
					logger.Info("gRPC server listening", "addr", cfg.GRPCAddr)
					if err := grpcServer.Serve(lis); err != nil {
						errCh <- fmt.Errorf("gRPC server: %w", err)
					}
				}()
			}

			// Periodic export when an interval and a destination are configured.
			var scheduler *export.Scheduler
			if cfg.ExportInterval > 0 {
				dests, err := exportDestinations(ctx, cfg)
				if err != nil {
					logger.Error("export disabled", "err", err)
				} else if len(dests) > 0 {
					scheduler = export.NewScheduler(s, dests, cfg.ExportInterval, pub, logger)
					scheduler.Start()
					logger.Info("export scheduler started", "interval", cfg.ExportInterval, "destinations", len(dests))
				}
			}

			logger.Info("microblog server started", "http_addr", cfg.HTTPAddr, "grpc_addr", cfg.GRPCAddr)

			var runErr error
			select {
			case <-ctx.Done():
				logger.Info("received signal, shutting down")
			case runErr = <-errCh:
				logger.Error("server failed, shutting down", "err", runErr)
			}

			if scheduler != nil {
				scheduler.Stop()
				logger.Info("export scheduler stopped")
			}

			healthServer.Shutdown()
			grpcServer.GracefulStop()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("HTTP server shutdown error", "err", err)
			}
			if metricsServer != nil {
				if err := metricsServer.Shutdown(shutdownCtx); err != nil {
					logger.Error("metrics server shutdown error", "err", err)
				}
			}

			logger.Info("shutdown complete")
			return runErr
		},
	}
}
