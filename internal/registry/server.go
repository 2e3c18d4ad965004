package registry

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/ariacomputecompany/quiltc/internal/wire"
)

// Server is the registry's HTTP JSON API: node membership and the
// supplemental container registry.
type Server struct {
	store     *Store
	ipam      *SubnetIPAM
	scheduler *Scheduler
	log       *slog.Logger
}

// NewServer wires a registry Server from its dependencies.
func NewServer(store *Store, ipam *SubnetIPAM, scheduler *Scheduler) *Server {
	return &Server{store: store, ipam: ipam, scheduler: scheduler, log: slog.With("component", "registry")}
}

// Router builds the gorilla/mux router exposing the registry's API.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/nodes/register", s.handleRegisterNode).Methods(http.MethodPost)
	r.HandleFunc("/api/nodes/{id}/heartbeat", s.handleHeartbeat).Methods(http.MethodPost)
	r.HandleFunc("/api/nodes/{id}/deregister", s.handleDeregister).Methods(http.MethodPost)
	r.HandleFunc("/api/nodes", s.handleListNodes).Methods(http.MethodGet)
	r.HandleFunc("/api/containers", s.handleCreateContainer).Methods(http.MethodPost)
	r.HandleFunc("/api/containers", s.handleListContainers).Methods(http.MethodGet)
	r.HandleFunc("/api/containers/{id}", s.handleGetContainer).Methods(http.MethodGet)
	r.HandleFunc("/api/containers/{id}", s.handleDeleteContainer).Methods(http.MethodDelete)
	r.HandleFunc("/api/containers/{id}/ip", s.handleUpdateContainerIP).Methods(http.MethodPatch)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, wire.HealthResponse{Status: "ok"})
}

func (s *Server) handleRegisterNode(w http.ResponseWriter, r *http.Request) {
	var req wire.RegisterNodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	subnet, err := s.ipam.AllocateSubnet()
	if err != nil {
		s.log.Error("subnet allocation failed", "err", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	nodeID, err := s.store.RegisterNode(req.Hostname, req.HostIP, subnet, req.CPUCores, req.RAMMB)
	if err != nil {
		s.log.Error("register node failed", "err", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.log.Info("node registered", "node_id", nodeID, "subnet", subnet)
	writeJSON(w, http.StatusOK, wire.RegisterNodeResponse{NodeID: nodeID, Subnet: subnet})
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	nodeID := mux.Vars(r)["id"]
	if err := s.store.Heartbeat(nodeID); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleDeregister(w http.ResponseWriter, r *http.Request) {
	nodeID := mux.Vars(r)["id"]
	if err := s.store.Deregister(nodeID); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleListNodes(w http.ResponseWriter, r *http.Request) {
	nodes, err := s.store.ListNodes()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, wire.ListNodesResponse{Nodes: nodes})
}

func (s *Server) handleCreateContainer(w http.ResponseWriter, r *http.Request) {
	var req wire.CreateContainerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	namespace := "default"
	if req.Namespace != nil && *req.Namespace != "" {
		namespace = *req.Namespace
	}

	nodes, err := s.store.ListNodes()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	var upNodes []wire.Node
	for _, n := range nodes {
		if n.Status == wire.NodeUp {
			upNodes = append(upNodes, n)
		}
	}
	node, ok := s.scheduler.PickNode(upNodes)
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "no available nodes")
		return
	}

	containerID, err := s.store.CreateContainer(node.NodeID, req.Name, namespace, req.Image)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.log.Info("container scheduled", "container_id", containerID, "node_id", node.NodeID)
	writeJSON(w, http.StatusOK, wire.CreateContainerResponse{ContainerID: containerID, NodeID: node.NodeID})
}

func (s *Server) handleGetContainer(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	c, err := s.store.GetContainer(id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleListContainers(w http.ResponseWriter, r *http.Request) {
	containers, err := s.store.ListContainers()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, wire.ListContainersResponse{Containers: containers})
}

func (s *Server) handleDeleteContainer(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.store.DeleteContainer(id); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUpdateContainerIP(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req wire.UpdateContainerIPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.IPAddress == "" {
		writeError(w, http.StatusBadRequest, "missing ip_address")
		return
	}
	if err := s.store.UpdateContainerIP(id, req.IPAddress); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, wire.ErrorResponse{Error: message})
}
