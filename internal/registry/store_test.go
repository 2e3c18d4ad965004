package registry

import (
	"errors"
	"fmt"
	"testing"

	"github.com/ariacomputecompany/quiltc/internal/wire"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open("")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRegisterAndListNodes(t *testing.T) {
	store := openTestStore(t)

	nodeID, err := store.RegisterNode("host-a", "10.0.0.1", "10.42.1.0/24", nil, nil)
	if err != nil {
		t.Fatalf("RegisterNode: %v", err)
	}
	if nodeID == "" {
		t.Fatal("expected a non-empty node ID")
	}

	nodes, err := store.ListNodes()
	if err != nil {
		t.Fatalf("ListNodes: %v", err)
	}
	if len(nodes) != 1 {
		t.Fatalf("ListNodes() returned %d nodes, want 1", len(nodes))
	}
	if nodes[0].Status != wire.NodeUp {
		t.Errorf("new node status = %q, want %q", nodes[0].Status, wire.NodeUp)
	}
}

func TestHeartbeatUnknownNode(t *testing.T) {
	store := openTestStore(t)
	if err := store.Heartbeat("does-not-exist"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Heartbeat() error = %v, want ErrNotFound", err)
	}
}

func TestDeregisterMarksDown(t *testing.T) {
	store := openTestStore(t)
	nodeID, err := store.RegisterNode("host-a", "10.0.0.1", "10.42.1.0/24", nil, nil)
	if err != nil {
		t.Fatalf("RegisterNode: %v", err)
	}

	if err := store.Deregister(nodeID); err != nil {
		t.Fatalf("Deregister: %v", err)
	}

	nodes, err := store.ListNodes()
	if err != nil {
		t.Fatalf("ListNodes: %v", err)
	}
	if nodes[0].Status != wire.NodeDown {
		t.Errorf("status after deregister = %q, want %q", nodes[0].Status, wire.NodeDown)
	}
}

func TestMaxSubnetID(t *testing.T) {
	store := openTestStore(t)

	if max, err := store.MaxSubnetID(); err != nil || max != 0 {
		t.Fatalf("MaxSubnetID() on empty store = (%d, %v), want (0, nil)", max, err)
	}

	if _, err := store.RegisterNode("host-a", "10.0.0.1", "10.42.5.0/24", nil, nil); err != nil {
		t.Fatalf("RegisterNode: %v", err)
	}
	if _, err := store.RegisterNode("host-b", "10.0.0.2", "10.42.2.0/24", nil, nil); err != nil {
		t.Fatalf("RegisterNode: %v", err)
	}

	max, err := store.MaxSubnetID()
	if err != nil {
		t.Fatalf("MaxSubnetID: %v", err)
	}
	if max != 5 {
		t.Errorf("MaxSubnetID() = %d, want 5", max)
	}
}

// TestMaxSubnetIDNumericNotLexicographic guards against comparing the
// subnet column as a string: "10.42.9.0/24" sorts after
// "10.42.10.0/24"/"10.42.12.0/24" lexicographically, which would make
// MaxSubnetID return 9 instead of 12 once ten or more nodes have ever
// registered.
func TestMaxSubnetIDNumericNotLexicographic(t *testing.T) {
	store := openTestStore(t)

	for i := 1; i <= 12; i++ {
		subnet := fmt.Sprintf("10.42.%d.0/24", i)
		if _, err := store.RegisterNode(fmt.Sprintf("host-%d", i), "10.0.0.1", subnet, nil, nil); err != nil {
			t.Fatalf("RegisterNode(%s): %v", subnet, err)
		}
	}

	max, err := store.MaxSubnetID()
	if err != nil {
		t.Fatalf("MaxSubnetID: %v", err)
	}
	if max != 12 {
		t.Errorf("MaxSubnetID() = %d, want 12", max)
	}
}

func TestMarkStale(t *testing.T) {
	store := openTestStore(t)
	nodeID, err := store.RegisterNode("host-a", "10.0.0.1", "10.42.1.0/24", nil, nil)
	if err != nil {
		t.Fatalf("RegisterNode: %v", err)
	}

	// Every node registers with last_heartbeat = now, so a threshold far
	// in the future marks it stale.
	n, err := store.MarkStale(1 << 40)
	if err != nil {
		t.Fatalf("MarkStale: %v", err)
	}
	if n != 1 {
		t.Fatalf("MarkStale() marked %d nodes, want 1", n)
	}

	nodes, err := store.ListNodes()
	if err != nil {
		t.Fatalf("ListNodes: %v", err)
	}
	if nodes[0].NodeID != nodeID || nodes[0].Status != wire.NodeDown {
		t.Errorf("node not marked down: %+v", nodes[0])
	}

	// A second sweep should be a no-op: the node is already down.
	n, err = store.MarkStale(1 << 40)
	if err != nil {
		t.Fatalf("MarkStale: %v", err)
	}
	if n != 0 {
		t.Errorf("MarkStale() on already-down node marked %d, want 0", n)
	}
}

func TestContainerLifecycle(t *testing.T) {
	store := openTestStore(t)
	nodeID, err := store.RegisterNode("host-a", "10.0.0.1", "10.42.1.0/24", nil, nil)
	if err != nil {
		t.Fatalf("RegisterNode: %v", err)
	}

	containerID, err := store.CreateContainer(nodeID, "web", "default", "nginx:latest")
	if err != nil {
		t.Fatalf("CreateContainer: %v", err)
	}

	c, err := store.GetContainer(containerID)
	if err != nil {
		t.Fatalf("GetContainer: %v", err)
	}
	if c.Status != wire.ContainerPending {
		t.Errorf("new container status = %q, want %q", c.Status, wire.ContainerPending)
	}

	if err := store.UpdateContainerIP(containerID, "10.42.1.5"); err != nil {
		t.Fatalf("UpdateContainerIP: %v", err)
	}
	c, err = store.GetContainer(containerID)
	if err != nil {
		t.Fatalf("GetContainer: %v", err)
	}
	if c.Status != wire.ContainerRunning {
		t.Errorf("status after IP update = %q, want %q", c.Status, wire.ContainerRunning)
	}
	if c.IPAddress == nil || *c.IPAddress != "10.42.1.5" {
		t.Errorf("IPAddress = %v, want 10.42.1.5", c.IPAddress)
	}

	if err := store.DeleteContainer(containerID); err != nil {
		t.Fatalf("DeleteContainer: %v", err)
	}
	if _, err := store.GetContainer(containerID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetContainer after delete = %v, want ErrNotFound", err)
	}
}
