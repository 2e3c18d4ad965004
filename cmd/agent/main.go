// Command agent runs the per-node reconciler: it registers with the
// registry, keeps its heartbeat current, and converges the local VXLAN
// overlay and data-plane manager routes against cluster membership.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ariacomputecompany/quiltc/internal/agent"
	"github.com/ariacomputecompany/quiltc/internal/logging"
	"github.com/ariacomputecompany/quiltc/internal/wire"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		slog.Error("command failed", "err", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var controlPlane string
	var hostIP string
	var hostname string
	var quiltRuntime string
	var logLevel string

	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Cluster overlay agent (per-node reconciler)",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logging.Configure(logLevel)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, controlPlane, hostIP, hostname, quiltRuntime)
		},
	}

	cmd.Flags().StringVar(&controlPlane, "control-plane", "http://127.0.0.1:8080", "registry base URL")
	cmd.Flags().StringVar(&hostIP, "host-ip", "", "this node's host IP address (required)")
	cmd.Flags().StringVar(&hostname, "hostname", "", "hostname to register (defaults to os.Hostname())")
	cmd.Flags().StringVar(&quiltRuntime, "quilt-runtime", "http://127.0.0.1:50051", "data-plane manager base URL")
	cmd.Flags().StringVar(&logLevel, "log-level", logging.LevelInfo, "log level (debug, info, warn, error)")
	_ = cmd.MarkFlagRequired("host-ip")
	return cmd
}

func run(ctx context.Context, controlPlane, hostIP, hostname, quiltRuntime string) error {
	log := slog.With("component", "agent")

	localIP, err := netip.ParseAddr(hostIP)
	if err != nil {
		return fmt.Errorf("invalid --host-ip: %w", err)
	}

	if hostname == "" {
		hostname, err = os.Hostname()
		if err != nil {
			return fmt.Errorf("resolve hostname: %w", err)
		}
	}

	registryClient := agent.NewRegistryClient(controlPlane)
	runtimeClient := agent.NewRuntimeClient(quiltRuntime)

	log.Info("registering with control plane", "control_plane", controlPlane)
	reg, err := registryClient.RegisterNode(ctx, wire.RegisterNodeRequest{Hostname: hostname, HostIP: hostIP})
	if err != nil {
		return fmt.Errorf("register with control plane: %w", err)
	}
	log.Info("registered", "node_id", reg.NodeID, "subnet", reg.Subnet)

	vxlan := agent.NewVxlanManager(localIP)
	if err := vxlan.SetupVxlan(); err != nil {
		return fmt.Errorf("set up vxlan interface: %w", err)
	}

	log.Info("configuring data-plane manager subnet", "subnet", reg.Subnet)
	if err := runtimeClient.ConfigureNodeSubnet(ctx, reg.Subnet); err != nil {
		return fmt.Errorf("configure node subnet: %w", err)
	}

	reconciler := agent.NewReconciler(reg.NodeID, reg.Subnet, registryClient, runtimeClient, vxlan)
	log.Info("agent initialized, running reconciler")
	reconciler.Run(ctx)
	return nil
}
