package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BadgerOps/mirrorrank/internal/server"
	"github.com/spf13/cobra"
)

var serveListen string

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the HTTP API for mirror selection. Endpoints:

  GET  /api/status          server health and default criteria
  GET  /api/mirrors         ranked mirrors as JSON
  GET  /api/mirrorlist      ranked mirrors as a pacman mirrorlist
  POST /api/speedtest       live latency and throughput probe
  GET  /api/runs            recorded history runs

By default, the server listens on server.listen from the config file
(default: 127.0.0.1:8080). Use --listen to override.`,
		Example: `  mirrorrank serve
  mirrorrank serve --listen 0.0.0.0:9000 --db /var/lib/mirrorrank/history.db`,
		RunE: serveRun,
	}

	cmd.Flags().StringVar(&serveListen, "listen", "", "address to listen on (host:port)")

	return cmd
}

func serveRun(cmd *cobra.Command, args []string) error {
	log := slog.Default()

	if globalCfg == nil {
		return fmt.Errorf("config not loaded")
	}

	if globalGenerator == nil {
		return fmt.Errorf("generator not initialized")
	}

	listen := globalCfg.Server.Listen
	if serveListen != "" {
		listen = serveListen
	}

	log.Info("server starting", "listen", listen, "history", globalGenerator.HistoryEnabled())

	// Create the HTTP server
	srv := server.NewServer(globalGenerator, globalDiscovery, globalCfg, logger)
	srv.SetVersion(version)

	// Channel to listen for errors from server
	errChan := make(chan error, 1)

	// Start the server in a goroutine
	go func() {
		fmt.Printf("Starting server on %s...\n", listen)
		if err := srv.Start(listen); err != nil {
			errChan <- err
		}
	}()

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	// Wait for either an error or a shutdown signal
	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		log.Info("received shutdown signal", "signal", sig)
		fmt.Println("\nShutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}

		fmt.Println("Server stopped gracefully")
	}

	return nil
}
