package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ariacomputecompany/quiltc/internal/wire"
)

// registryClientTimeout bounds every request to the registry; there is no
// client-side retry/backoff layer.
const registryClientTimeout = 10 * time.Second

// RegistryClient is the agent's HTTP client for the registry's node API.
type RegistryClient struct {
	baseURL string
	client  *http.Client
}

// NewRegistryClient returns a client pointed at the registry's base URL.
func NewRegistryClient(baseURL string) *RegistryClient {
	return &RegistryClient{baseURL: baseURL, client: &http.Client{Timeout: registryClientTimeout}}
}

// RegisterNode registers this node with the registry and returns its
// assigned node ID and subnet.
func (c *RegistryClient) RegisterNode(ctx context.Context, req wire.RegisterNodeRequest) (wire.RegisterNodeResponse, error) {
	var resp wire.RegisterNodeResponse
	err := c.postJSON(ctx, "/api/nodes/register", req, &resp)
	return resp, err
}

// Heartbeat reports liveness for nodeID.
func (c *RegistryClient) Heartbeat(ctx context.Context, nodeID string) error {
	return c.postJSON(ctx, fmt.Sprintf("/api/nodes/%s/heartbeat", nodeID), nil, nil)
}

// Deregister tells the registry this node is going away, ahead of the
// liveness sweep.
func (c *RegistryClient) Deregister(ctx context.Context, nodeID string) error {
	return c.postJSON(ctx, fmt.Sprintf("/api/nodes/%s/deregister", nodeID), nil, nil)
}

// ListNodes returns every node the registry knows about.
func (c *RegistryClient) ListNodes(ctx context.Context) (wire.ListNodesResponse, error) {
	var resp wire.ListNodesResponse
	err := c.getJSON(ctx, "/api/nodes", &resp)
	return resp, err
}

func (c *RegistryClient) postJSON(ctx context.Context, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *RegistryClient) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	return c.do(req, out)
}

func (c *RegistryClient) do(req *http.Request, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("request failed (%d): %s", resp.StatusCode, string(body))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
