package dataplane

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/ariacomputecompany/quiltc/internal/wire"
)

// Server exposes the data-plane manager's three operations
// (ConfigureNodeSubnet, InjectRoute, RemoveRoute) over HTTP/JSON.
// Business-logic failures are reported as {success:false, error:...} in
// the response body, not as non-2xx statuses: the caller (the agent's
// reconciler) always gets a 200 and inspects the envelope.
type Server struct {
	ipam   *ContainerIPAM
	routes *RouteManager
	log    *slog.Logger
}

// NewServer wires a data-plane Server from its dependencies.
func NewServer(ipam *ContainerIPAM, routes *RouteManager) *Server {
	return &Server{ipam: ipam, routes: routes, log: slog.With("component", "dataplane")}
}

// Router builds the gorilla/mux router exposing the manager's RPC surface.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/rpc/configure_node_subnet", s.handleConfigureSubnet).Methods(http.MethodPost)
	r.HandleFunc("/rpc/inject_route", s.handleInjectRoute).Methods(http.MethodPost)
	r.HandleFunc("/rpc/remove_route", s.handleRemoveRoute).Methods(http.MethodPost)
	r.HandleFunc("/rpc/allocate_ip", s.handleAllocateIP).Methods(http.MethodPost)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, wire.HealthResponse{Status: "ok"})
}

func (s *Server) handleConfigureSubnet(w http.ResponseWriter, r *http.Request) {
	var req wire.ConfigureNodeSubnetRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.ipam.ConfigureSubnet(req.Subnet); err != nil {
		s.log.Warn("configure subnet failed", "subnet", req.Subnet, "err", err)
		writeRPC(w, false, err.Error())
		return
	}
	s.log.Info("subnet configured", "subnet", req.Subnet)
	writeRPC(w, true, "")
}

func (s *Server) handleInjectRoute(w http.ResponseWriter, r *http.Request) {
	var req wire.InjectRouteRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.routes.AddRoute(req.Destination, req.ViaInterface); err != nil {
		s.log.Warn("inject route failed", "destination", req.Destination, "err", err)
		writeRPC(w, false, err.Error())
		return
	}
	writeRPC(w, true, "")
}

func (s *Server) handleRemoveRoute(w http.ResponseWriter, r *http.Request) {
	var req wire.RemoveRouteRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.routes.RemoveRoute(req.Destination); err != nil {
		s.log.Warn("remove route failed", "destination", req.Destination, "err", err)
		writeRPC(w, false, err.Error())
		return
	}
	writeRPC(w, true, "")
}

// allocateIPResponse is returned by the supplemental allocate_ip RPC,
// which hands out the next free container IP from the configured subnet.
type allocateIPResponse struct {
	wire.RPCResponse
	IPAddress string `json:"ip_address,omitempty"`
}

func (s *Server) handleAllocateIP(w http.ResponseWriter, r *http.Request) {
	ip, err := s.ipam.AllocateIP()
	if err != nil {
		s.log.Warn("allocate ip failed", "err", err)
		writeJSON(w, http.StatusOK, allocateIPResponse{RPCResponse: wire.RPCResponse{Success: false, Error: err.Error()}})
		return
	}
	writeJSON(w, http.StatusOK, allocateIPResponse{RPCResponse: wire.RPCResponse{Success: true}, IPAddress: ip.String()})
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeRPC(w, false, "invalid request body")
		return false
	}
	return true
}

func writeRPC(w http.ResponseWriter, success bool, errMsg string) {
	writeJSON(w, http.StatusOK, wire.RPCResponse{Success: success, Error: errMsg})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
