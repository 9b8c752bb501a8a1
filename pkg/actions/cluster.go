package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/keeldb/keel/pkg/clients"
	"github.com/keeldb/keel/pkg/types"
)

// Cluster action kinds. These drive the platform to converge cluster
// membership and are scheduled by the convergence steps.
const (
	KindClusterInit            = "cluster.init"
	KindClusterAddNode         = "cluster.add_node"
	KindClusterDeprovisionNode = "cluster.deprovision_node"
)

// RegisterCluster adds the cluster kinds to a registry. All cluster kinds
// are exclusive: membership changes must not overlap on one cluster.
func RegisterCluster(registry *Registry, platform clients.Platform, agent clients.Agent) error {
	cluster := &clusterHandlers{platform: platform, agent: agent}
	entries := []Entry{
		{Kind: KindClusterInit, Handler: HandlerFunc(cluster.progressInit), Mode: types.ScheduleModeExclusive, Timeout: 30 * time.Minute},
		{Kind: KindClusterAddNode, Handler: HandlerFunc(cluster.progressAddNode), Mode: types.ScheduleModeExclusive, Timeout: 30 * time.Minute},
		{Kind: KindClusterDeprovisionNode, Handler: HandlerFunc(cluster.progressDeprovisionNode), Mode: types.ScheduleModeExclusive, Timeout: 30 * time.Minute},
	}
	for _, entry := range entries {
		if err := registry.Register(entry); err != nil {
			return err
		}
	}
	return nil
}

type clusterHandlers struct {
	platform clients.Platform
	agent    clients.Agent
}

// provisionArgs configures cluster.init and cluster.add_node.
type provisionArgs struct {
	// Store is the database software to provision.
	Store string `json:"store"`
	// Expect is the discovered node count at which the action completes.
	Expect int `json:"expect"`
	// Target is the node chosen to seed cluster.init, informational.
	Target string `json:"target,omitempty"`
}

// provisionPayload tracks a provisioning request across cycles.
type provisionPayload struct {
	RequestID string `json:"request_id"`
}

// progressInit seeds a brand new cluster: one provision call, then poll the
// platform's discovery until the first member appears.
func (h *clusterHandlers) progressInit(ctx context.Context, inv Invocation) (ProgressChanges, error) {
	return h.progressProvision(ctx, inv, 1)
}

// progressAddNode grows an existing cluster by one node.
func (h *clusterHandlers) progressAddNode(ctx context.Context, inv Invocation) (ProgressChanges, error) {
	var args provisionArgs
	if err := json.Unmarshal(inv.Action.Args, &args); err != nil {
		return ProgressChanges{}, fmt.Errorf("invalid %s args: %w", inv.Action.Kind, err)
	}
	return h.progressProvision(ctx, inv, args.Expect)
}

func (h *clusterHandlers) progressProvision(ctx context.Context, inv Invocation, expect int) (ProgressChanges, error) {
	var args provisionArgs
	if err := json.Unmarshal(inv.Action.Args, &args); err != nil {
		return ProgressChanges{}, fmt.Errorf("invalid %s args: %w", inv.Action.Kind, err)
	}

	// First invocation issues the provision request and records its id.
	if len(inv.Action.StatePayload) == 0 {
		resp, err := h.platform.Provision(ctx, clients.ProvisionRequest{
			NsID:      inv.Action.NsID,
			ClusterID: inv.Action.ClusterID,
			Store:     args.Store,
		})
		if err != nil {
			return ProgressChanges{}, err
		}
		payload, err := json.Marshal(provisionPayload{RequestID: resp.RequestID})
		if err != nil {
			return ProgressChanges{}, err
		}
		return ProgressChanges{State: types.ActionStateRunning, StatePayload: payload}, nil
	}

	// Later invocations poll discovery until the member shows up, then wait
	// for every member's agent to report ready.
	discovery, err := h.platform.Discover(ctx, inv.Action.NsID, inv.Action.ClusterID)
	if err != nil {
		return ProgressChanges{}, err
	}
	if len(discovery.Nodes) < expect {
		return ProgressChanges{State: types.ActionStateRunning}, nil
	}
	if !h.membersReady(ctx, discovery) {
		return ProgressChanges{State: types.ActionStateRunning}, nil
	}
	return ProgressChanges{State: types.ActionStateDone}, nil
}

// membersReady queries each member's agent. An unreachable or not-ready
// agent keeps the action running; the next cycle polls again.
func (h *clusterHandlers) membersReady(ctx context.Context, discovery *types.ClusterDiscovery) bool {
	for _, node := range discovery.Nodes {
		if node.MemberAddress == "" {
			return false
		}
		status, err := h.agent.Status(ctx, node.MemberAddress)
		if err != nil || status.Status != clients.AgentStatusReady {
			return false
		}
	}
	return true
}

// deprovisionArgs configures cluster.deprovision_node.
type deprovisionArgs struct {
	NodeID string `json:"node_id"`
}

// deprovisionPayload marks that the deprovision call was issued.
type deprovisionPayload struct {
	Requested bool `json:"requested"`
}

func (h *clusterHandlers) progressDeprovisionNode(ctx context.Context, inv Invocation) (ProgressChanges, error) {
	var args deprovisionArgs
	if err := json.Unmarshal(inv.Action.Args, &args); err != nil {
		return ProgressChanges{}, fmt.Errorf("invalid %s args: %w", inv.Action.Kind, err)
	}
	if args.NodeID == "" {
		return ProgressChanges{
			State: types.ActionStateFailed,
			Error: NewErrorPayload(ErrorKindHandler, "deprovision requires a node_id"),
		}, nil
	}

	if len(inv.Action.StatePayload) == 0 {
		err := h.platform.Deprovision(ctx, clients.DeprovisionRequest{
			NsID:      inv.Action.NsID,
			ClusterID: inv.Action.ClusterID,
			NodeID:    args.NodeID,
		})
		if err != nil {
			return ProgressChanges{}, err
		}
		payload, err := json.Marshal(deprovisionPayload{Requested: true})
		if err != nil {
			return ProgressChanges{}, err
		}
		return ProgressChanges{State: types.ActionStateRunning, StatePayload: payload}, nil
	}

	discovery, err := h.platform.Discover(ctx, inv.Action.NsID, inv.Action.ClusterID)
	if err != nil {
		return ProgressChanges{}, err
	}
	for _, node := range discovery.Nodes {
		if node.NodeID == args.NodeID {
			return ProgressChanges{State: types.ActionStateRunning}, nil
		}
	}
	return ProgressChanges{State: types.ActionStateDone}, nil
}
