package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/keeldb/keel/pkg/events"
	"github.com/keeldb/keel/pkg/storage"
	"github.com/keeldb/keel/pkg/taskqueue"
	"github.com/keeldb/keel/pkg/types"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListKinds(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string][]string{"kinds": s.registry.Kinds()})
}

func (s *Server) handleListClusters(w http.ResponseWriter, r *http.Request) {
	clusters, err := s.store.ListClusters(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"clusters": clusters})
}

func (s *Server) handleGetCluster(w http.ResponseWriter, r *http.Request) {
	nsID, clusterID := pathCluster(r)
	settings, err := s.store.GetClusterSettings(r.Context(), nsID, clusterID)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, settings)
}

// ClusterRequest is the mutable part of cluster settings accepted on PUT.
type ClusterRequest struct {
	Enabled   bool   `json:"enabled"`
	Approvals bool   `json:"approvals"`
	NodeCount int    `json:"node_count"`
	Store     string `json:"store"`
}

func (s *Server) handlePutCluster(w http.ResponseWriter, r *http.Request) {
	nsID, clusterID := pathCluster(r)

	var req ClusterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.NodeCount < 0 {
		respondError(w, http.StatusBadRequest, "node_count must not be negative")
		return
	}

	now := time.Now().UTC()
	settings := &types.ClusterSettings{
		NsID:      nsID,
		ClusterID: clusterID,
		Enabled:   req.Enabled,
		Approvals: req.Approvals,
		NodeCount: req.NodeCount,
		Store:     req.Store,
		CreatedAt: now,
		UpdatedAt: now,
	}

	existing, err := s.store.GetClusterSettings(r.Context(), nsID, clusterID)
	switch {
	case err == nil:
		settings.CreatedAt = existing.CreatedAt
	case errors.Is(err, storage.ErrNotFound):
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := s.store.PutClusterSettings(r.Context(), settings); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, settings)
}

func (s *Server) handleListNodes(w http.ResponseWriter, r *http.Request) {
	nsID, clusterID := pathCluster(r)
	nodes, err := s.store.ListNodes(r.Context(), nsID, clusterID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"nodes": nodes})
}

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	nsID, clusterID := pathCluster(r)
	reports, err := s.store.ListReports(r.Context(), nsID, clusterID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"reports": reports})
}

// handleOrchestrate enqueues a manual orchestration cycle for the cluster.
func (s *Server) handleOrchestrate(w http.ResponseWriter, r *http.Request) {
	nsID, clusterID := pathCluster(r)

	if _, err := s.store.GetClusterSettings(r.Context(), nsID, clusterID); err != nil {
		respondStoreError(w, err)
		return
	}

	err := s.queue.Submit(r.Context(), taskqueue.QueueOrchestrate, taskqueue.OrchestratePayload{
		NsID:      nsID,
		ClusterID: clusterID,
		Mode:      types.OrchestrateModeManual,
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func (s *Server) handleListActions(w http.ResponseWriter, r *http.Request) {
	nsID, clusterID := pathCluster(r)

	var (
		list []*types.OrchestratorAction
		err  error
	)
	if r.URL.Query().Get("unfinished") == "true" {
		list, err = s.store.ListUnfinishedActions(r.Context(), nsID, clusterID)
	} else {
		list, err = s.store.ListActions(r.Context(), nsID, clusterID)
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"actions": list})
}

func (s *Server) handleGetAction(w http.ResponseWriter, r *http.Request) {
	nsID, clusterID := pathCluster(r)
	action, err := s.store.GetAction(r.Context(), nsID, clusterID, chi.URLParam(r, "id"))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, action)
}

// ActionRequest submits a new action against a cluster.
type ActionRequest struct {
	Kind string          `json:"kind"`
	Args json.RawMessage `json:"args"`
}

func (s *Server) handleSubmitAction(w http.ResponseWriter, r *http.Request) {
	nsID, clusterID := pathCluster(r)

	var req ActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	entry, ok := s.registry.Lookup(req.Kind)
	if !ok {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("unknown action kind: %s", req.Kind))
		return
	}

	settings, err := s.store.GetClusterSettings(r.Context(), nsID, clusterID)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	state := types.ActionStatePendingSchedule
	if settings.Approvals {
		state = types.ActionStatePendingApprove
	}

	action := &types.OrchestratorAction{
		ID:        uuid.New().String(),
		NsID:      nsID,
		ClusterID: clusterID,
		Kind:      req.Kind,
		Args:      req.Args,
		State:     state,
		CreatedAt: time.Now().UTC(),
		Timeout:   entry.Timeout,
	}

	if err := s.store.PutAction(r.Context(), action); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.publishAction(events.EventActionNew, action, "action submitted")
	respondJSON(w, http.StatusCreated, action)
}

func (s *Server) handleApproveAction(w http.ResponseWriter, r *http.Request) {
	s.transitionAction(w, r, func(action *types.OrchestratorAction) (events.EventType, error) {
		if action.State != types.ActionStatePendingApprove {
			return "", fmt.Errorf("action is %s, only pending_approve actions can be approved", action.State)
		}
		action.State = types.ActionStatePendingSchedule
		return events.EventActionApproved, nil
	})
}

func (s *Server) handleRejectAction(w http.ResponseWriter, r *http.Request) {
	s.transitionAction(w, r, func(action *types.OrchestratorAction) (events.EventType, error) {
		if action.State != types.ActionStatePendingApprove {
			return "", fmt.Errorf("action is %s, only pending_approve actions can be rejected", action.State)
		}
		action.State = types.ActionStateCancelled
		action.FinishedAt = time.Now().UTC()
		return events.EventActionRejected, nil
	})
}

func (s *Server) handleCancelAction(w http.ResponseWriter, r *http.Request) {
	s.transitionAction(w, r, func(action *types.OrchestratorAction) (events.EventType, error) {
		switch action.State {
		case types.ActionStatePendingApprove, types.ActionStatePendingSchedule:
		default:
			return "", fmt.Errorf("action is %s, only pending actions can be cancelled", action.State)
		}
		action.State = types.ActionStateCancelled
		action.FinishedAt = time.Now().UTC()
		return events.EventActionCancelled, nil
	})
}

// transitionAction loads the action, applies the transition and persists the
// result. Transition errors map to 409: the action exists but its state does
// not admit the request.
func (s *Server) transitionAction(w http.ResponseWriter, r *http.Request, fn func(*types.OrchestratorAction) (events.EventType, error)) {
	nsID, clusterID := pathCluster(r)
	action, err := s.store.GetAction(r.Context(), nsID, clusterID, chi.URLParam(r, "id"))
	if err != nil {
		respondStoreError(w, err)
		return
	}

	eventType, err := fn(action)
	if err != nil {
		respondError(w, http.StatusConflict, err.Error())
		return
	}

	if err := s.store.PutAction(r.Context(), action); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.publishAction(eventType, action, string(eventType))
	respondJSON(w, http.StatusOK, action)
}

func (s *Server) publishAction(eventType events.EventType, action *types.OrchestratorAction, message string) {
	s.events.Publish(&events.Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		NsID:      action.NsID,
		ClusterID: action.ClusterID,
		Timestamp: time.Now().UTC(),
		Message:   message,
		Metadata: map[string]string{
			"action_id": action.ID,
			"kind":      action.Kind,
			"state":     string(action.State),
		},
	})
}

func pathCluster(r *http.Request) (string, string) {
	return chi.URLParam(r, "ns"), chi.URLParam(r, "cluster")
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func respondStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	respondError(w, http.StatusInternalServerError, err.Error())
}
