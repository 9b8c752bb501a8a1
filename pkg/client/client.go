package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/keeldb/keel/pkg/api"
	"github.com/keeldb/keel/pkg/types"
)

// Client talks to the keel admin API for CLI usage.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the admin API at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// ListClusters returns all registered clusters.
func (c *Client) ListClusters(ctx context.Context) ([]*types.ClusterSettings, error) {
	var out struct {
		Clusters []*types.ClusterSettings `json:"clusters"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/clusters", nil, &out); err != nil {
		return nil, err
	}
	return out.Clusters, nil
}

// GetCluster returns one cluster's settings.
func (c *Client) GetCluster(ctx context.Context, nsID, clusterID string) (*types.ClusterSettings, error) {
	var out types.ClusterSettings
	if err := c.do(ctx, http.MethodGet, clusterPath(nsID, clusterID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PutCluster creates or replaces a cluster's settings.
func (c *Client) PutCluster(ctx context.Context, nsID, clusterID string, req api.ClusterRequest) (*types.ClusterSettings, error) {
	var out types.ClusterSettings
	if err := c.do(ctx, http.MethodPut, clusterPath(nsID, clusterID), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListNodes returns the last known node states of a cluster.
func (c *Client) ListNodes(ctx context.Context, nsID, clusterID string) ([]*types.Node, error) {
	var out struct {
		Nodes []*types.Node `json:"nodes"`
	}
	if err := c.do(ctx, http.MethodGet, clusterPath(nsID, clusterID)+"/nodes", nil, &out); err != nil {
		return nil, err
	}
	return out.Nodes, nil
}

// ListReports returns a cluster's orchestration reports.
func (c *Client) ListReports(ctx context.Context, nsID, clusterID string) ([]*types.OrchestrateReport, error) {
	var out struct {
		Reports []*types.OrchestrateReport `json:"reports"`
	}
	if err := c.do(ctx, http.MethodGet, clusterPath(nsID, clusterID)+"/reports", nil, &out); err != nil {
		return nil, err
	}
	return out.Reports, nil
}

// Orchestrate enqueues a manual orchestration cycle.
func (c *Client) Orchestrate(ctx context.Context, nsID, clusterID string) error {
	return c.do(ctx, http.MethodPost, clusterPath(nsID, clusterID)+"/orchestrate", nil, nil)
}

// ListActions returns a cluster's actions, optionally only unfinished ones.
func (c *Client) ListActions(ctx context.Context, nsID, clusterID string, unfinished bool) ([]*types.OrchestratorAction, error) {
	path := clusterPath(nsID, clusterID) + "/actions"
	if unfinished {
		path += "?unfinished=true"
	}
	var out struct {
		Actions []*types.OrchestratorAction `json:"actions"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Actions, nil
}

// SubmitAction creates a new action against a cluster.
func (c *Client) SubmitAction(ctx context.Context, nsID, clusterID string, req api.ActionRequest) (*types.OrchestratorAction, error) {
	var out types.OrchestratorAction
	if err := c.do(ctx, http.MethodPost, clusterPath(nsID, clusterID)+"/actions", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ApproveAction moves a pending_approve action to pending_schedule.
func (c *Client) ApproveAction(ctx context.Context, nsID, clusterID, actionID string) (*types.OrchestratorAction, error) {
	return c.actionTransition(ctx, nsID, clusterID, actionID, "approve")
}

// RejectAction cancels a pending_approve action.
func (c *Client) RejectAction(ctx context.Context, nsID, clusterID, actionID string) (*types.OrchestratorAction, error) {
	return c.actionTransition(ctx, nsID, clusterID, actionID, "reject")
}

// CancelAction cancels a pending action.
func (c *Client) CancelAction(ctx context.Context, nsID, clusterID, actionID string) (*types.OrchestratorAction, error) {
	return c.actionTransition(ctx, nsID, clusterID, actionID, "cancel")
}

func (c *Client) actionTransition(ctx context.Context, nsID, clusterID, actionID, verb string) (*types.OrchestratorAction, error) {
	path := fmt.Sprintf("%s/actions/%s/%s", clusterPath(nsID, clusterID), actionID, verb)
	var out types.OrchestratorAction
	if err := c.do(ctx, http.MethodPost, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func clusterPath(nsID, clusterID string) string {
	return fmt.Sprintf("/v1/clusters/%s/%s", nsID, clusterID)
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			return fmt.Errorf("%s (HTTP %d)", apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
