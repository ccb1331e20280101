/*
Package main is the entry point for the BPMN collaboration server.

It loads configuration, initializes the global logger, wires the stores, the
connection registry and the message router together, serves HTTP and WebSocket
traffic, and shuts down gracefully on SIGINT or SIGTERM.
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"bpmncollab/internal/app/collab"
	"bpmncollab/internal/app/session"
	"bpmncollab/internal/app/user"
	"bpmncollab/internal/configs"
	"bpmncollab/internal/handler"
	"bpmncollab/internal/pkg/logx"
	"bpmncollab/internal/pkg/metrics"
)

func main() {
	// Load configuration from environment variables
	cfg, err := configs.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize global logger
	logx.InitGlobalLogger(cfg.IsDevelopment())
	logx.Logger().Info().
		Str("environment", cfg.Environment).
		Int("port", cfg.Port).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Int64("max_message_bytes", cfg.MaxMessageBytes).
		Int("send_queue_size", cfg.SendQueueSize).
		Bool("echo_protocol_errors", cfg.EchoProtocolErrors).
		Msg("Configuration loaded successfully")

	// Create a context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(promRegistry)

	// Initialize the collaboration engine
	users := user.NewStore()
	sessions := session.NewStore()
	registry := collab.NewRegistry(sessions, m)
	router := collab.NewRouter(registry, sessions, m, cfg.EchoProtocolErrors)

	deps := &handler.AppDeps{
		Config:   cfg,
		Users:    users,
		Sessions: sessions,
		Registry: registry,
		Router:   router,
		Gatherer: promRegistry,
	}

	serverAddr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      handler.Router(deps),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logx.Info(fmt.Sprintf("BPMN Collaboration Server starting on http://localhost%s", serverAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logx.Fatal(err, "Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server with a timeout of 5 seconds.
	<-ctx.Done()
	logx.Info("Received shutdown signal. Starting graceful shutdown...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logx.Error(err, "Server forced to shutdown")
	}

	// Hijacked WebSocket connections are not tracked by http.Server.
	registry.Shutdown()

	logx.Info("Server gracefully stopped.")
}
