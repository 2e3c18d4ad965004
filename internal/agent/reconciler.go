package agent

import (
	"context"
	"log/slog"
	"net/netip"
	"time"

	"github.com/ariacomputecompany/quiltc/internal/check"
	"github.com/ariacomputecompany/quiltc/internal/wire"
)

const (
	// heartbeatInterval stays well inside the registry's 30s liveness
	// sweep deadline.
	heartbeatInterval = 10 * time.Second
	// peerSyncInterval is how often the reconciler polls the registry for
	// membership changes and reconciles the local overlay against them.
	peerSyncInterval = 5 * time.Second
	// shutdownGrace bounds how long graceful shutdown waits for
	// in-flight teardown of known peers before giving up.
	shutdownGrace = 5 * time.Second
)

// registryPort is the slice of RegistryClient the reconciler depends on.
// Defined as an interface so tests can substitute a fake registry without
// an HTTP server.
type registryPort interface {
	Heartbeat(ctx context.Context, nodeID string) error
	Deregister(ctx context.Context, nodeID string) error
	ListNodes(ctx context.Context) (wire.ListNodesResponse, error)
}

// runtimePort is the slice of RuntimeClient the reconciler depends on.
type runtimePort interface {
	InjectRoute(ctx context.Context, destination, viaInterface string) error
	RemoveRoute(ctx context.Context, destination string) error
}

// vxlanPort is the slice of VxlanManager the reconciler depends on.
type vxlanPort interface {
	AddPeer(subnet string, peerHostIP netip.Addr) error
	RemovePeer(subnet string) error
}

// Reconciler drives a single, already-registered node's membership in the
// cluster: it keeps the registry's view of this node fresh and the local
// overlay's peer set converged with the registry's membership list.
// Registration itself happens before the reconciler is constructed.
type Reconciler struct {
	NodeID   string
	Subnet   string
	Registry registryPort
	Runtime  runtimePort
	Vxlan    vxlanPort

	knownPeers map[string]wire.PeerInfo // subnet -> peer
	log        *slog.Logger
}

// NewReconciler wires a reconciler for an already-registered node.
func NewReconciler(nodeID, subnet string, registry *RegistryClient, runtime *RuntimeClient, vxlan *VxlanManager) *Reconciler {
	return &Reconciler{
		NodeID:     nodeID,
		Subnet:     subnet,
		Registry:   registry,
		Runtime:    runtime,
		Vxlan:      vxlan,
		knownPeers: make(map[string]wire.PeerInfo),
		log:        slog.With("component", "reconciler"),
	}
}

// Run blocks, driving the heartbeat loop and peer-sync loop until ctx is
// cancelled. On cancellation it best-effort deregisters this node and
// tears down every known peer's route and FDB entry within shutdownGrace.
func (r *Reconciler) Run(ctx context.Context) {
	check.Assert(r.Registry != nil, "Reconciler.Run: Registry must not be nil")
	check.Assert(r.Runtime != nil, "Reconciler.Run: Runtime must not be nil")
	check.Assert(r.Vxlan != nil, "Reconciler.Run: Vxlan must not be nil")

	go r.runHeartbeatLoop(ctx)
	r.runPeerSyncLoop(ctx)
	r.shutdown()
}

func (r *Reconciler) runHeartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Registry.Heartbeat(ctx, r.NodeID); err != nil {
				r.log.Warn("failed to send heartbeat", "err", err)
			}
		}
	}
}

func (r *Reconciler) runPeerSyncLoop(ctx context.Context) {
	ticker := time.NewTicker(peerSyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.syncPeersOnce(ctx)
		}
	}
}

func (r *Reconciler) syncPeersOnce(ctx context.Context) {
	nodesResp, err := r.Registry.ListNodes(ctx)
	if err != nil {
		r.log.Warn("failed to list nodes", "err", err)
		return
	}

	current := make(map[string]wire.PeerInfo, len(nodesResp.Nodes))
	for _, n := range nodesResp.Nodes {
		if n.NodeID == r.NodeID || n.Status != wire.NodeUp {
			continue
		}
		current[n.Subnet] = wire.PeerInfo{NodeID: n.NodeID, HostIP: n.HostIP, Subnet: n.Subnet}
	}

	// New peers: program FDB before the route, so the route never points
	// at an interface with no forwarding entry for its destination yet.
	for subnet, peer := range current {
		if _, known := r.knownPeers[subnet]; known {
			continue
		}
		r.log.Info("new peer discovered", "subnet", subnet, "host_ip", peer.HostIP)

		// Failures here - an unparseable host IP, or either data-plane
		// operation failing - are logged only. knownPeers is still
		// updated to the target state below regardless, so this tick
		// moves on to the next divergence instead of looping forever
		// retrying the same currently-failing subnet.
		peerIP, err := netip.ParseAddr(peer.HostIP)
		if err != nil {
			r.log.Warn("invalid peer host ip", "host_ip", peer.HostIP, "err", err)
		} else {
			if err := r.Vxlan.AddPeer(subnet, peerIP); err != nil {
				r.log.Error("failed to add peer to vxlan fdb", "subnet", subnet, "err", err)
			}
			if err := r.Runtime.InjectRoute(ctx, subnet, vxlanRouteInterface); err != nil {
				r.log.Error("failed to inject route", "subnet", subnet, "err", err)
			}
		}
		r.knownPeers[subnet] = peer
	}

	// Removed peers: tear down the route before the FDB entry, so traffic
	// never matches a route whose forwarding entry has already gone.
	for subnet := range r.knownPeers {
		if _, stillPresent := current[subnet]; stillPresent {
			continue
		}
		r.log.Info("peer removed", "subnet", subnet)

		if err := r.Runtime.RemoveRoute(ctx, subnet); err != nil {
			r.log.Error("failed to remove route", "subnet", subnet, "err", err)
		}
		if err := r.Vxlan.RemovePeer(subnet); err != nil {
			r.log.Error("failed to remove peer from vxlan fdb", "subnet", subnet, "err", err)
		}
		delete(r.knownPeers, subnet)
	}
}

// vxlanRouteInterface is the overlay device every injected route points
// through.
const vxlanRouteInterface = "vxlan100"

func (r *Reconciler) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	for subnet := range r.knownPeers {
		if err := r.Runtime.RemoveRoute(ctx, subnet); err != nil {
			r.log.Warn("shutdown: failed to remove route", "subnet", subnet, "err", err)
		}
		if err := r.Vxlan.RemovePeer(subnet); err != nil {
			r.log.Warn("shutdown: failed to remove vxlan peer", "subnet", subnet, "err", err)
		}
	}

	if err := r.Registry.Deregister(ctx, r.NodeID); err != nil {
		r.log.Warn("shutdown: failed to deregister", "err", err)
	}
}
