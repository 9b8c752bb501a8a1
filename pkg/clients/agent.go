package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// AgentStatusReady is the status a healthy agent reports.
const AgentStatusReady = "ready"

// AgentInfo describes the datastore a node agent fronts.
type AgentInfo struct {
	NodeID  string `json:"node_id"`
	Kind    string `json:"kind"`
	Version string `json:"version"`
}

// AgentStatus is the agent's report of its node's health.
type AgentStatus struct {
	NodeID string `json:"node_id"`
	Status string `json:"status"`
}

// Agent is the per-node agent surface consumed by action handlers. Calls are
// opaque to the engine and must be retry safe.
type Agent interface {
	Info(ctx context.Context, address string) (*AgentInfo, error)
	Status(ctx context.Context, address string) (*AgentStatus, error)
}

// HTTPAgent implements Agent against the agent's JSON API.
type HTTPAgent struct {
	client *http.Client
}

// NewHTTPAgent creates an agent client.
func NewHTTPAgent() *HTTPAgent {
	return &HTTPAgent{client: &http.Client{Timeout: 10 * time.Second}}
}

// Info implements Agent.
func (a *HTTPAgent) Info(ctx context.Context, address string) (*AgentInfo, error) {
	var info AgentInfo
	if err := a.get(ctx, address, "/v1/info", &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Status implements Agent.
func (a *HTTPAgent) Status(ctx context.Context, address string) (*AgentStatus, error) {
	var status AgentStatus
	if err := a.get(ctx, address, "/v1/status", &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (a *HTTPAgent) get(ctx context.Context, address, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+address+path, nil)
	if err != nil {
		return err
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("agent request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("agent at %s returned status %d", address, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
