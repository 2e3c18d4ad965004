//go:build linux

package agent

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"sync"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
)

const (
	vxlanInterface = "vxlan100"
	vxlanVNI       = 100
	vxlanPort      = 4789
	bridgeName     = "quilt0"
)

// zeroMAC is the all-zeros link-layer address used as a VXLAN FDB default
// entry: the kernel forwards any unknown destination MAC for a subnet to
// the peer host IP programmed against it.
var zeroMAC = net.HardwareAddr{0x00, 0x00, 0x00, 0x00, 0x00, 0x00}

// VxlanManager owns the vxlan100 device and its FDB entries: one default
// destination entry per known remote subnet.
type VxlanManager struct {
	mu      sync.Mutex
	localIP netip.Addr
	peers   map[string]netip.Addr // subnet -> peer host IP
	log     *slog.Logger
}

// NewVxlanManager returns a manager bound to the given local host IP.
func NewVxlanManager(localIP netip.Addr) *VxlanManager {
	return &VxlanManager{localIP: localIP, peers: make(map[string]netip.Addr), log: slog.With("component", "vxlan")}
}

// SetupVxlan creates the vxlan100 interface if it doesn't already exist,
// brings it up, and attaches it to the quilt0 bridge if that bridge is
// present. It never removes the interface; teardown is left to the host.
func (m *VxlanManager) SetupVxlan() error {
	m.log.Info("setting up vxlan interface", "interface", vxlanInterface)

	if _, err := netlink.LinkByName(vxlanInterface); err == nil {
		m.log.Info("vxlan interface already exists", "interface", vxlanInterface)
		return m.attachToBridgeIfPresent()
	} else if !isLinkNotFound(err) {
		return fmt.Errorf("find vxlan interface %q: %w", vxlanInterface, err)
	}

	link := &netlink.Vxlan{
		LinkAttrs: netlink.LinkAttrs{Name: vxlanInterface},
		VxlanId:   vxlanVNI,
		Port:      vxlanPort,
	}
	if err := netlink.LinkAdd(link); err != nil && !errors.Is(err, unix.EEXIST) {
		return fmt.Errorf("create vxlan interface %q: %w", vxlanInterface, err)
	}

	created, err := netlink.LinkByName(vxlanInterface)
	if err != nil {
		return fmt.Errorf("refetch vxlan interface %q: %w", vxlanInterface, err)
	}
	if err := netlink.LinkSetUp(created); err != nil {
		return fmt.Errorf("set vxlan interface up: %w", err)
	}

	if err := m.attachToBridgeIfPresent(); err != nil {
		return err
	}

	m.log.Info("vxlan interface created", "interface", vxlanInterface)
	return nil
}

func (m *VxlanManager) attachToBridgeIfPresent() error {
	bridge, err := netlink.LinkByName(bridgeName)
	if err != nil {
		if isLinkNotFound(err) {
			m.log.Warn("bridge not found - vxlan interface created but not bridged", "bridge", bridgeName)
			return nil
		}
		return fmt.Errorf("find bridge %q: %w", bridgeName, err)
	}
	vxlan, err := netlink.LinkByName(vxlanInterface)
	if err != nil {
		return fmt.Errorf("find vxlan interface %q: %w", vxlanInterface, err)
	}
	if err := netlink.LinkSetMaster(vxlan, bridge); err != nil {
		return fmt.Errorf("attach %q to bridge %q: %w", vxlanInterface, bridgeName, err)
	}
	m.log.Info("vxlan interface attached to bridge", "bridge", bridgeName)
	return nil
}

// AddPeer programs a default FDB entry for subnet forwarding all unknown
// destination MACs to peerHostIP.
func (m *VxlanManager) AddPeer(subnet string, peerHostIP netip.Addr) error {
	m.log.Info("adding vxlan peer", "subnet", subnet, "host_ip", peerHostIP)

	link, err := netlink.LinkByName(vxlanInterface)
	if err != nil {
		return fmt.Errorf("find vxlan interface %q: %w", vxlanInterface, err)
	}

	neigh := &netlink.Neigh{
		LinkIndex:    link.Attrs().Index,
		Family:       unix.AF_BRIDGE,
		Flags:        netlink.NTF_SELF,
		State:        netlink.NUD_PERMANENT,
		HardwareAddr: zeroMAC,
		IP:           net.IP(peerHostIP.AsSlice()),
	}
	if err := netlink.NeighAdd(neigh); err != nil && !errors.Is(err, unix.EEXIST) {
		return fmt.Errorf("add fdb entry for %s: %w", peerHostIP, err)
	}

	m.mu.Lock()
	m.peers[subnet] = peerHostIP
	m.mu.Unlock()
	return nil
}

// RemovePeer removes the FDB entry previously added for subnet, if any.
// Removing an unknown subnet is a no-op success.
func (m *VxlanManager) RemovePeer(subnet string) error {
	m.mu.Lock()
	peerHostIP, ok := m.peers[subnet]
	delete(m.peers, subnet)
	m.mu.Unlock()
	if !ok {
		return nil
	}

	m.log.Info("removing vxlan peer", "subnet", subnet, "host_ip", peerHostIP)

	link, err := netlink.LinkByName(vxlanInterface)
	if err != nil {
		if isLinkNotFound(err) {
			return nil
		}
		return fmt.Errorf("find vxlan interface %q: %w", vxlanInterface, err)
	}

	neigh := &netlink.Neigh{
		LinkIndex:    link.Attrs().Index,
		Family:       unix.AF_BRIDGE,
		Flags:        netlink.NTF_SELF,
		HardwareAddr: zeroMAC,
		IP:           net.IP(peerHostIP.AsSlice()),
	}
	if err := netlink.NeighDel(neigh); err != nil && !errors.Is(err, unix.ESRCH) && !errors.Is(err, unix.ENOENT) {
		return fmt.Errorf("remove fdb entry for %s: %w", peerHostIP, err)
	}
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

func isLinkNotFound(err error) bool {
	var notFound netlink.LinkNotFoundError
	return errors.As(err, &notFound)
}
