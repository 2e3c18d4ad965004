package registry

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"

	"github.com/ariacomputecompany/quiltc/internal/wire"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	store := openTestStore(t)
	return NewServer(store, NewSubnetIPAM(), NewScheduler())
}

func doJSON(t *testing.T, r *mux.Router, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s.Router(), http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var resp wire.HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("status = %q, want %q", resp.Status, "ok")
	}
}

func TestHandleRegisterAndHeartbeat(t *testing.T) {
	s := newTestServer(t)
	router := s.Router()

	rec := doJSON(t, router, http.MethodPost, "/api/nodes/register", wire.RegisterNodeRequest{
		Hostname: "host-a",
		HostIP:   "10.0.0.1",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("register status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var regResp wire.RegisterNodeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &regResp); err != nil {
		t.Fatalf("decode register response: %v", err)
	}
	if regResp.NodeID == "" || regResp.Subnet == "" {
		t.Fatalf("register response = %+v, missing fields", regResp)
	}

	rec = doJSON(t, router, http.MethodPost, "/api/nodes/"+regResp.NodeID+"/heartbeat", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("heartbeat status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, http.MethodPost, "/api/nodes/not-a-real-id/heartbeat", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("heartbeat on unknown node status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestHandleListNodes(t *testing.T) {
	s := newTestServer(t)
	router := s.Router()

	doJSON(t, router, http.MethodPost, "/api/nodes/register", wire.RegisterNodeRequest{Hostname: "a", HostIP: "10.0.0.1"})
	doJSON(t, router, http.MethodPost, "/api/nodes/register", wire.RegisterNodeRequest{Hostname: "b", HostIP: "10.0.0.2"})

	rec := doJSON(t, router, http.MethodGet, "/api/nodes", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list nodes status = %d", rec.Code)
	}
	var resp wire.ListNodesResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode list response: %v", err)
	}
	if len(resp.Nodes) != 2 {
		t.Errorf("len(Nodes) = %d, want 2", len(resp.Nodes))
	}
}

func TestHandleCreateContainerNoNodes(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s.Router(), http.MethodPost, "/api/containers", wire.CreateContainerRequest{
		Name:  "web",
		Image: "nginx:latest",
	})
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("create container with no nodes status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestHandleContainerLifecycle(t *testing.T) {
	s := newTestServer(t)
	router := s.Router()

	regRec := doJSON(t, router, http.MethodPost, "/api/nodes/register", wire.RegisterNodeRequest{Hostname: "a", HostIP: "10.0.0.1"})
	var regResp wire.RegisterNodeResponse
	if err := json.Unmarshal(regRec.Body.Bytes(), &regResp); err != nil {
		t.Fatalf("decode register response: %v", err)
	}

	createRec := doJSON(t, router, http.MethodPost, "/api/containers", wire.CreateContainerRequest{
		Name:  "web",
		Image: "nginx:latest",
	})
	if createRec.Code != http.StatusOK {
		t.Fatalf("create container status = %d, body = %s", createRec.Code, createRec.Body.String())
	}
	var createResp wire.CreateContainerResponse
	if err := json.Unmarshal(createRec.Body.Bytes(), &createResp); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	if createResp.NodeID != regResp.NodeID {
		t.Errorf("scheduled onto node %q, want %q (the only registered node)", createResp.NodeID, regResp.NodeID)
	}

	getRec := doJSON(t, router, http.MethodGet, "/api/containers/"+createResp.ContainerID, nil)
	if getRec.Code != http.StatusOK {
		t.Fatalf("get container status = %d", getRec.Code)
	}
	var container wire.Container
	if err := json.Unmarshal(getRec.Body.Bytes(), &container); err != nil {
		t.Fatalf("decode container: %v", err)
	}
	if container.Status != wire.ContainerPending {
		t.Errorf("status = %q, want %q", container.Status, wire.ContainerPending)
	}

	patchRec := doJSON(t, router, http.MethodPatch, "/api/containers/"+createResp.ContainerID+"/ip", wire.UpdateContainerIPRequest{
		IPAddress: "10.42.1.5",
	})
	if patchRec.Code != http.StatusOK {
		t.Fatalf("update ip status = %d, body = %s", patchRec.Code, patchRec.Body.String())
	}

	delRec := doJSON(t, router, http.MethodDelete, "/api/containers/"+createResp.ContainerID, nil)
	if delRec.Code != http.StatusNoContent {
		t.Fatalf("delete container status = %d, want %d", delRec.Code, http.StatusNoContent)
	}

	missingRec := doJSON(t, router, http.MethodGet, "/api/containers/"+createResp.ContainerID, nil)
	if missingRec.Code != http.StatusNotFound {
		t.Errorf("get deleted container status = %d, want %d", missingRec.Code, http.StatusNotFound)
	}
}
