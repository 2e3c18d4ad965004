package registry

import (
	"testing"

	"github.com/ariacomputecompany/quiltc/internal/wire"
)

func testNode(id string) wire.Node {
	return wire.Node{NodeID: id, Hostname: "node-" + id, Status: wire.NodeUp}
}

func TestSchedulerRoundRobin(t *testing.T) {
	s := NewScheduler()
	nodes := []wire.Node{testNode("1"), testNode("2"), testNode("3")}

	want := []string{"1", "2", "3", "1"}
	for _, w := range want {
		n, ok := s.PickNode(nodes)
		if !ok {
			t.Fatalf("PickNode: expected a node")
		}
		if n.NodeID != w {
			t.Errorf("PickNode() = %q, want %q", n.NodeID, w)
		}
	}
}

func TestSchedulerEmptyNodes(t *testing.T) {
	s := NewScheduler()
	if _, ok := s.PickNode(nil); ok {
		t.Error("PickNode on empty slice should return ok=false")
	}
}
