//go:build linux

package dataplane

import (
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"sync"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
)

// RouteManager programs the kernel routing table for remote container
// subnets reached via an overlay interface (normally vxlan100), tracking
// what it has added so removal and restart are both idempotent.
type RouteManager struct {
	mu     sync.RWMutex
	routes map[string]string // destination CIDR -> interface name
	log    *slog.Logger
}

// NewRouteManager returns an empty route manager.
func NewRouteManager() *RouteManager {
	return &RouteManager{routes: make(map[string]string), log: slog.With("component", "routes")}
}

// AddRoute installs a route to destination via interface. Adding a route
// that already exists via the same interface is a no-op; adding one that
// exists via a different interface logs a warning and leaves the kernel
// route untouched (it does not overwrite a route it didn't track).
func (m *RouteManager) AddRoute(destination, iface string) error {
	prefix, err := netip.ParsePrefix(destination)
	if err != nil {
		return fmt.Errorf("invalid destination subnet: %w", err)
	}

	m.mu.Lock()
	if existing, ok := m.routes[destination]; ok {
		defer m.mu.Unlock()
		if existing == iface {
			return nil
		}
		m.log.Warn("route exists via different interface", "destination", destination, "existing", existing, "requested", iface)
		return nil
	}
	m.mu.Unlock()

	link, err := netlink.LinkByName(iface)
	if err != nil {
		return fmt.Errorf("find interface %q: %w", iface, err)
	}

	route := &netlink.Route{
		LinkIndex: link.Attrs().Index,
		Dst:       prefixToIPNet(prefix),
	}
	if err := netlink.RouteAdd(route); err != nil && !errors.Is(err, unix.EEXIST) {
		return fmt.Errorf("add route %s dev %s: %w", destination, iface, err)
	}

	m.mu.Lock()
	m.routes[destination] = iface
	m.mu.Unlock()
	m.log.Info("route added", "destination", destination, "interface", iface)
	return nil
}

// RemoveRoute deletes the route to destination. Removing a route that is
// not present in the kernel (or was never tracked) is a success.
func (m *RouteManager) RemoveRoute(destination string) error {
	prefix, err := netip.ParsePrefix(destination)
	if err != nil {
		return fmt.Errorf("invalid destination subnet: %w", err)
	}

	m.mu.RLock()
	iface, tracked := m.routes[destination]
	m.mu.RUnlock()

	route := &netlink.Route{Dst: prefixToIPNet(prefix)}
	if tracked {
		if link, err := netlink.LinkByName(iface); err == nil {
			route.LinkIndex = link.Attrs().Index
		}
	}

	if err := netlink.RouteDel(route); err != nil &&
		!errors.Is(err, unix.ESRCH) && !isLinkNotFound(err) {
		return fmt.Errorf("remove route %s: %w", destination, err)
	}

	m.mu.Lock()
	delete(m.routes, destination)
	m.mu.Unlock()
	m.log.Info("route removed", "destination", destination)
	return nil
}

// Routes returns a snapshot of tracked destination -> interface routes.
func (m *RouteManager) Routes() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.routes))
	for k, v := range m.routes {
		out[k] = v
	}
	return out
}

func isLinkNotFound(err error) bool {
	var notFound netlink.LinkNotFoundError
	return errors.As(err, &notFound)
}
