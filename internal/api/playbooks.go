package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/runbeat/runbeat-core/internal/bus"
	"github.com/runbeat/runbeat-core/internal/playbook"
)

// upsertPlaybookRequest is the request body for POST /api/v1/playbooks.
type upsertPlaybookRequest struct {
	Playbook   string              `json:"playbook"`
	Status     string              `json:"status"`
	Attributes playbook.Attributes `json:"attributes"`
}

// deletePlaybookRequest is the request body for DELETE /api/v1/playbooks.
// Callers address the sensor by its public entity ID, not the internal key.
type deletePlaybookRequest struct {
	EntityID string `json:"entity_id"`
}

// playbookView is the per-record shape returned by GET /api/v1/playbooks.
type playbookView struct {
	EntityID   string              `json:"entity_id"`
	Status     string              `json:"status"`
	Attributes playbook.Attributes `json:"attributes,omitempty"`
}

// handleListPlaybooks returns the full playbook-to-status mapping.
func (s *Server) handleListPlaybooks(w http.ResponseWriter, _ *http.Request) {
	records := s.store.List()
	out := make(map[string]playbookView, len(records))
	for _, rec := range records {
		out[rec.Key] = playbookView{
			EntityID:   rec.DisplayID,
			Status:     rec.Status,
			Attributes: rec.Attributes,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// handleUpsertPlaybook creates or updates a playbook record.
//
// Unlike the webhook's additive merge, this REPLACES the record's full
// attribute set: the REST caller is declaring complete desired state.
func (s *Server) handleUpsertPlaybook(w http.ResponseWriter, r *http.Request) {
	var req upsertPlaybookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Playbook == "" || req.Status == "" {
		writeBadRequest(w, "playbook and status are required")
		return
	}

	rec, err := s.store.Replace(r.Context(), req.Playbook, req.Status, req.Attributes)
	if err != nil {
		if errors.Is(err, playbook.ErrInvalidRecord) {
			writeBadRequest(w, "invalid playbook key or status")
			return
		}
		s.logger.Error("playbook upsert failed", "playbook", req.Playbook, "error", err)
		writeInternalError(w, "failed to persist playbook status")
		return
	}

	s.dispatcher.Publish(bus.StatusChanged{
		Key:        rec.Key,
		DisplayID:  rec.DisplayID,
		Status:     rec.Status,
		Attributes: rec.Attributes,
	})

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "playbook " + rec.Key + " updated",
	})
}

// handleDeletePlaybook removes a playbook record and its live sensor.
//
// The record is removed from durable state first; only then is the live
// handle torn down. A failed persistence write leaves both intact.
func (s *Server) handleDeletePlaybook(w http.ResponseWriter, r *http.Request) {
	var req deletePlaybookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.EntityID == "" {
		writeBadRequest(w, "entity_id is required")
		return
	}

	key, ok := s.store.KeyForDisplayID(req.EntityID)
	if !ok {
		writeNotFound(w, "no sensor with entity_id "+req.EntityID)
		return
	}

	if err := s.store.Delete(r.Context(), key); err != nil {
		if errors.Is(err, playbook.ErrNotFound) {
			writeNotFound(w, "no sensor with entity_id "+req.EntityID)
			return
		}
		s.logger.Error("playbook delete failed", "key", key, "error", err)
		writeInternalError(w, "failed to persist playbook removal")
		return
	}

	s.synchronizer.Remove(key)

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "sensor " + req.EntityID + " removed",
	})
}

// handlePlaybookStats returns record counts grouped by status.
func (s *Server) handlePlaybookStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"total":     s.store.Len(),
		"by_status": s.store.Stats(),
	})
}

// handleListSensors returns the live sensor handles, sorted by key.
func (s *Server) handleListSensors(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.synchronizer.Sensors())
}
