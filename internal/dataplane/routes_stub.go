//go:build !linux

package dataplane

import (
	"log/slog"
	"sync"
)

// RouteManager is a non-Linux stand-in that records intended routes
// in memory without touching a routing table, so the rest of the
// data-plane manager can be exercised off Linux.
type RouteManager struct {
	mu     sync.RWMutex
	routes map[string]string
	log    *slog.Logger
}

// NewRouteManager returns an empty route manager.
func NewRouteManager() *RouteManager {
	return &RouteManager{routes: make(map[string]string), log: slog.With("component", "routes")}
}

// AddRoute records the intended route without programming the kernel.
func (m *RouteManager) AddRoute(destination, iface string) error {
	m.log.Warn("stub route manager: add_route has no kernel effect on this platform", "destination", destination, "interface", iface)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes[destination] = iface
	return nil
}

// RemoveRoute removes the intended route from the in-memory tracking map.
func (m *RouteManager) RemoveRoute(destination string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.routes, destination)
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
