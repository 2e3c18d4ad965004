// Command runtime runs the per-node data-plane manager: container IP
// allocation bounded by the node's configured /24, and idempotent kernel
// route programming for remote subnets reached via the overlay.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ariacomputecompany/quiltc/internal/dataplane"
	"github.com/ariacomputecompany/quiltc/internal/logging"
)

// shutdownGrace bounds how long the HTTP server waits for in-flight
// requests to finish when asked to shut down.
const shutdownGrace = 5 * time.Second

func main() {
	if err := rootCmd().Execute(); err != nil {
		slog.Error("command failed", "err", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var grpcAddr string
	var logLevel string

	cmd := &cobra.Command{
		Use:   "runtime",
		Short: "Per-node data-plane manager",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logging.Configure(logLevel)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, grpcAddr)
		},
	}

	// The flag is named --grpc-addr for external-interface compatibility
	// even though the manager's RPC surface is served over HTTP/JSON.
	cmd.Flags().StringVar(&grpcAddr, "grpc-addr", "127.0.0.1:50051", "data-plane manager bind address")
	cmd.Flags().StringVar(&logLevel, "log-level", logging.LevelInfo, "log level (debug, info, warn, error)")
	return cmd
}

func run(ctx context.Context, bind string) error {
	log := slog.With("component", "runtime")

	ipam := dataplane.NewContainerIPAM()
	routes := dataplane.NewRouteManager()
	srv := dataplane.NewServer(ipam, routes)

	httpSrv := &http.Server{Addr: bind, Handler: srv.Router()}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	log.Info("listening", "addr", bind)
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
