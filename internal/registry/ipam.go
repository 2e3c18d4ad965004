package registry

import (
	"fmt"
	"sync/atomic"
)

// clusterCIDR is the /16 that every allocated /24 subnet is carved from.
const clusterCIDR = "10.42.0.0/16"

// maxSubnetID bounds the pool to 255 distinct /24s (10.42.1.0/24 ..
// 10.42.255.0/24); 10.42.0.0/24 is skipped.
const maxSubnetID = 255

// SubnetIPAM hands out /24 subnets from the cluster CIDR using a
// process-wide counter. Subnet IDs are never reused within a process
// lifetime, even if the node that held one is later deregistered.
type SubnetIPAM struct {
	nextSubnetID atomic.Uint32
}

// NewSubnetIPAM returns an allocator that starts at 10.42.1.0/24.
func NewSubnetIPAM() *SubnetIPAM {
	ipam := &SubnetIPAM{}
	ipam.nextSubnetID.Store(1)
	return ipam
}

// RehydrateFrom resets the counter so the next allocation continues after
// maxAllocated, the highest subnet ID found in persisted node records. Call
// once at startup before serving any registration requests.
func RehydrateFrom(ipam *SubnetIPAM, maxAllocated uint8) {
	ipam.nextSubnetID.Store(uint32(maxAllocated) + 1)
}

// AllocateSubnet returns the next /24 in dotted-quad CIDR form, e.g.
// "10.42.1.0/24". Returns an error once the pool of 255 subnets is
// exhausted.
func (i *SubnetIPAM) AllocateSubnet() (string, error) {
	id := i.nextSubnetID.Add(1) - 1
	if id > maxSubnetID {
		return "", fmt.Errorf("exhausted subnet pool (max %d nodes)", maxSubnetID)
	}
	return fmt.Sprintf("10.42.%d.0/24", id), nil
}
