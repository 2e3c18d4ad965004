// Package wire holds the JSON request/response shapes shared by the
// registry, agent, and data-plane manager HTTP surfaces.
package wire

// Node status values.
const (
	NodeUp   = "up"
	NodeDown = "down"
)

// Container status values.
const (
	ContainerPending = "pending"
	ContainerRunning = "running"
)

// Node is a cluster member as stored by the registry and returned to
// agents via ListNodes.
type Node struct {
	NodeID         string `json:"node_id"`
	Hostname       string `json:"hostname"`
	HostIP         string `json:"host_ip"`
	Subnet         string `json:"subnet"`
	CPUCores       *int   `json:"cpu_cores,omitempty"`
	RAMMB          *int64 `json:"ram_mb,omitempty"`
	Status         string `json:"status"`
	RegisteredAt   int64  `json:"registered_at"`
	LastHeartbeat  int64  `json:"last_heartbeat"`
}

// Container is a scheduled container record as stored by the registry.
type Container struct {
	ContainerID string  `json:"container_id"`
	NodeID      string  `json:"node_id"`
	Name        string  `json:"name"`
	Namespace   string  `json:"namespace"`
	Image       string  `json:"image"`
	IPAddress   *string `json:"ip_address,omitempty"`
	CreatedAt   int64   `json:"created_at"`
	Status      string  `json:"status"`
}

// RegisterNodeRequest is the body of POST /api/nodes/register.
type RegisterNodeRequest struct {
	Hostname string `json:"hostname"`
	HostIP   string `json:"host_ip"`
	CPUCores *int   `json:"cpu_cores,omitempty"`
	RAMMB    *int64 `json:"ram_mb,omitempty"`
}

// RegisterNodeResponse is the response to a successful registration.
type RegisterNodeResponse struct {
	NodeID string `json:"node_id"`
	Subnet string `json:"subnet"`
}

// ListNodesResponse is the body of GET /api/nodes.
type ListNodesResponse struct {
	Nodes []Node `json:"nodes"`
}

// CreateContainerRequest is the body of POST /api/containers.
type CreateContainerRequest struct {
	Name      string  `json:"name"`
	Namespace *string `json:"namespace,omitempty"`
	Image     string  `json:"image"`
}

// CreateContainerResponse is returned once the scheduler has placed the
// container on a node.
type CreateContainerResponse struct {
	ContainerID string  `json:"container_id"`
	NodeID      string  `json:"node_id"`
	IPAddress   *string `json:"ip_address,omitempty"`
}

// ListContainersResponse is the body of GET /api/containers.
type ListContainersResponse struct {
	Containers []Container `json:"containers"`
}

// UpdateContainerIPRequest is the body of PATCH /api/containers/{id}/ip.
type UpdateContainerIPRequest struct {
	IPAddress string `json:"ip_address"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is the JSON body returned alongside non-2xx HTTP statuses.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ConfigureNodeSubnetRequest is the body of the data-plane manager's
// configure-subnet RPC.
type ConfigureNodeSubnetRequest struct {
	Subnet string `json:"subnet"`
}

// InjectRouteRequest is the body of the data-plane manager's add-route RPC.
type InjectRouteRequest struct {
	Destination  string `json:"destination"`
	ViaInterface string `json:"via_interface"`
}

// RemoveRouteRequest is the body of the data-plane manager's remove-route RPC.
type RemoveRouteRequest struct {
	Destination string `json:"destination"`
}

// RPCResponse is the uniform envelope the data-plane manager uses for all
// three RPCs: business-logic failures surface as success=false, not as a
// transport error.
type RPCResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// PeerInfo is the agent's internal view of a remote node worth programming
// a VXLAN/route entry for.
type PeerInfo struct {
	NodeID string
	HostIP string
	Subnet string
}
