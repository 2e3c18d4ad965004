//go:build !linux

package agent

import (
	"net/netip"
	"testing"
)

func TestStubVxlanManagerTracksPeersInMemory(t *testing.T) {
	m := NewVxlanManager(netip.MustParseAddr("10.0.0.1"))

	if err := m.SetupVxlan(); err != nil {
		t.Fatalf("SetupVxlan: %v", err)
	}

	peerIP := netip.MustParseAddr("10.0.0.2")
	if err := m.AddPeer("10.42.2.0/24", peerIP); err != nil {
		t.Fatalf("AddPeer: %v", err)
	}
	peers := m.Peers()
	if peers["10.42.2.0/24"] != peerIP {
		t.Errorf("Peers()[10.42.2.0/24] = %v, want %v", peers["10.42.2.0/24"], peerIP)
	}

	if err := m.RemovePeer("10.42.2.0/24"); err != nil {
		t.Fatalf("RemovePeer: %v", err)
	}
	if _, ok := m.Peers()["10.42.2.0/24"]; ok {
		t.Error("expected peer to be removed from the tracking map")
	}
}
