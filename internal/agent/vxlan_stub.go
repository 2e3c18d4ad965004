//go:build !linux

package agent

import (
	"log/slog"
	"net/netip"
	"sync"
)

// VxlanManager is a non-Linux stand-in: it tracks intended peers in
// memory without programming a VXLAN device or FDB, so the reconciler
// loop can be exercised off Linux.
type VxlanManager struct {
	mu      sync.Mutex
	localIP netip.Addr
	peers   map[string]netip.Addr
	log     *slog.Logger
}

// NewVxlanManager returns a manager bound to the given local host IP.
func NewVxlanManager(localIP netip.Addr) *VxlanManager {
	return &VxlanManager{localIP: localIP, peers: make(map[string]netip.Addr), log: slog.With("component", "vxlan")}
}

// SetupVxlan is a no-op stub on non-Linux platforms.
func (m *VxlanManager) SetupVxlan() error {
	m.log.Warn("stub vxlan manager: setup_vxlan has no kernel effect on this platform")
	return nil
}

// AddPeer records the intended peer without programming an FDB entry.
func (m *VxlanManager) AddPeer(subnet string, peerHostIP netip.Addr) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.peers[subnet] = peerHostIP
	return nil
}

// RemovePeer removes the intended peer from the in-memory tracking map.
func (m *VxlanManager) RemovePeer(subnet string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.peers, subnet)
	return nil
}

// Peers returns a snapshot of subnet -> peer host IP.
func (m *VxlanManager) Peers() map[string]netip.Addr {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]netip.Addr, len(m.peers))
	for k, v := range m.peers {
		out[k] = v
	}
	return out
}
