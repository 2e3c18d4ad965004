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

// runtimeRPCTimeout bounds every call into the local data-plane manager.
const runtimeRPCTimeout = 60 * time.Second

// RuntimeClient is the agent's client for the local data-plane manager's
// RPC surface (configure subnet, inject/remove routes). It does not call
// the manager's allocate_ip RPC.
type RuntimeClient struct {
	baseURL string
	client  *http.Client
}

// NewRuntimeClient returns a client pointed at the data-plane manager's
// base URL (by default http://127.0.0.1:50051).
func NewRuntimeClient(baseURL string) *RuntimeClient {
	return &RuntimeClient{baseURL: baseURL, client: &http.Client{Timeout: runtimeRPCTimeout}}
}

// ConfigureNodeSubnet tells the data-plane manager which /24 this node
// allocates container IPs from.
func (c *RuntimeClient) ConfigureNodeSubnet(ctx context.Context, subnet string) error {
	var resp wire.RPCResponse
	if err := c.call(ctx, "/rpc/configure_node_subnet", wire.ConfigureNodeSubnetRequest{Subnet: subnet}, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("configure_node_subnet failed: %s", resp.Error)
	}
	return nil
}

// InjectRoute asks the data-plane manager to add a route to destination
// via the given interface (normally vxlan100).
func (c *RuntimeClient) InjectRoute(ctx context.Context, destination, viaInterface string) error {
	var resp wire.RPCResponse
	if err := c.call(ctx, "/rpc/inject_route", wire.InjectRouteRequest{Destination: destination, ViaInterface: viaInterface}, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("inject_route failed: %s", resp.Error)
	}
	return nil
}

// RemoveRoute asks the data-plane manager to remove the route to
// destination.
func (c *RuntimeClient) RemoveRoute(ctx context.Context, destination string) error {
	var resp wire.RPCResponse
	if err := c.call(ctx, "/rpc/remove_route", wire.RemoveRouteRequest{Destination: destination}, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("remove_route failed: %s", resp.Error)
	}
	return nil
}

func (c *RuntimeClient) call(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		rawBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("request failed (%d): %s", resp.StatusCode, string(rawBody))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
