package registry

import (
	"sync/atomic"

	"github.com/ariacomputecompany/quiltc/internal/wire"
)

// Scheduler picks a node for a new container placement using round-robin
// over the nodes the caller passes it, which should already be filtered
// to status "up".
type Scheduler struct {
	cursor atomic.Uint64
}

// NewScheduler returns a scheduler starting at index 0.
func NewScheduler() *Scheduler {
	return &Scheduler{}
}

// PickNode returns the next node in round-robin order, or false if nodes
// is empty.
func (s *Scheduler) PickNode(nodes []wire.Node) (wire.Node, bool) {
	if len(nodes) == 0 {
		return wire.Node{}, false
	}
	idx := s.cursor.Add(1) - 1
	return nodes[int(idx%uint64(len(nodes)))], true
}
