package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/keeldb/keel/pkg/types"
)

// ProvisionRequest asks the platform to create one database node.
type ProvisionRequest struct {
	NsID      string `json:"ns_id"`
	ClusterID string `json:"cluster_id"`
	// Store identifies the database software to provision.
	Store string `json:"store"`
}

// ProvisionResponse reports the provisioning request accepted by the platform.
type ProvisionResponse struct {
	RequestID string `json:"request_id"`
}

// DeprovisionRequest asks the platform to decommission one node.
type DeprovisionRequest struct {
	NsID      string `json:"ns_id"`
	ClusterID string `json:"cluster_id"`
	NodeID    string `json:"node_id"`
}

// Platform is the remote control-plane service that provisions and
// decommissions database nodes. Calls are opaque to the orchestration
// engine and must be safe to retry.
type Platform interface {
	Provision(ctx context.Context, req ProvisionRequest) (*ProvisionResponse, error)
	Deprovision(ctx context.Context, req DeprovisionRequest) error
	Discover(ctx context.Context, nsID, clusterID string) (*types.ClusterDiscovery, error)
}

// HTTPPlatform implements Platform against the platform's JSON API.
type HTTPPlatform struct {
	baseURL string
	client  *http.Client
}

// NewHTTPPlatform creates a platform client for the given base URL. A zero
// timeout falls back to 30 seconds.
func NewHTTPPlatform(baseURL string, timeout time.Duration) *HTTPPlatform {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &HTTPPlatform{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// Provision requests a new node for the cluster.
func (p *HTTPPlatform) Provision(ctx context.Context, req ProvisionRequest) (*ProvisionResponse, error) {
	var resp ProvisionResponse
	if err := p.post(ctx, "/api/v1/provision", req, &resp); err != nil {
		return nil, fmt.Errorf("platform provision failed: %w", err)
	}
	return &resp, nil
}

// Deprovision requests removal of a node.
func (p *HTTPPlatform) Deprovision(ctx context.Context, req DeprovisionRequest) error {
	if err := p.post(ctx, "/api/v1/deprovision", req, nil); err != nil {
		return fmt.Errorf("platform deprovision failed: %w", err)
	}
	return nil
}

// Discover fetches the platform's current view of the cluster membership.
func (p *HTTPPlatform) Discover(ctx context.Context, nsID, clusterID string) (*types.ClusterDiscovery, error) {
	url := fmt.Sprintf("%s/api/v1/discover/%s/%s", p.baseURL, nsID, clusterID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("platform discover failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("platform discover failed: status %d", resp.StatusCode)
	}

	var discovery types.ClusterDiscovery
	if err := json.NewDecoder(resp.Body).Decode(&discovery); err != nil {
		return nil, fmt.Errorf("platform discover failed: %w", err)
	}
	return &discovery, nil
}

func (p *HTTPPlatform) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
