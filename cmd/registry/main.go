// Command registry runs the cluster control plane: node membership, /24
// subnet IPAM, liveness sweeping, and the supplemental container
// registry/scheduler.
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

	"github.com/ariacomputecompany/quiltc/internal/logging"
	"github.com/ariacomputecompany/quiltc/internal/registry"
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
	var bind string
	var dbPath string
	var logLevel string

	cmd := &cobra.Command{
		Use:   "registry",
		Short: "Cluster overlay registry (control plane)",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logging.Configure(logLevel)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, bind, dbPath)
		},
	}

	cmd.Flags().StringVar(&bind, "bind", "0.0.0.0:8080", "HTTP bind address")
	cmd.Flags().StringVar(&dbPath, "db-path", "", "sqlite database path (empty = in-memory)")
	cmd.Flags().StringVar(&logLevel, "log-level", logging.LevelInfo, "log level (debug, info, warn, error)")
	return cmd
}

func run(ctx context.Context, bind, dbPath string) error {
	log := slog.With("component", "registry")

	store, err := registry.Open(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	ipam := registry.NewSubnetIPAM()
	maxSubnetID, err := store.MaxSubnetID()
	if err != nil {
		return err
	}
	if maxSubnetID > 0 {
		log.Info("rehydrating ipam from persisted state", "max_subnet_id", maxSubnetID)
		registry.RehydrateFrom(ipam, maxSubnetID)
	}

	scheduler := registry.NewScheduler()

	go registry.RunSweeper(ctx, store)

	srv := registry.NewServer(store, ipam, scheduler)
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
