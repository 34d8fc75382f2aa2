package api

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/runbeat/runbeat-core/internal/bus"
	"github.com/runbeat/runbeat-core/internal/playbook"
)

// webhookEvent is the payload posted by playbook runners (Ansible callback
// plugins, CI jobs) to report status transitions.
type webhookEvent struct {
	Playbook   string              `json:"playbook"`
	Status     string              `json:"status"`
	Attributes playbook.Attributes `json:"attributes"`
}

// handleWebhook ingests a playbook status event.
//
// Authentication failures return a bare 401 with an empty body: the
// webhook is exposed to automation, and a descriptive error would only
// help a prober distinguish "wrong secret" from "no such route".
//
// Attributes are merged additively into the existing record (union,
// last-write-wins per attribute key); the REST API's full-replacement
// semantics live in handleUpsertPlaybook.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if !s.authorizedWebhook(r) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	var event webhookEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if event.Playbook == "" || event.Status == "" {
		writeBadRequest(w, "playbook and status are required")
		return
	}

	rec, err := s.store.Upsert(r.Context(), event.Playbook, event.Status, event.Attributes)
	if err != nil {
		if errors.Is(err, playbook.ErrInvalidRecord) {
			writeBadRequest(w, "invalid playbook key or status")
			return
		}
		s.logger.Error("webhook upsert failed", "playbook", event.Playbook, "error", err)
		writeInternalError(w, "failed to persist playbook status")
		return
	}

	// The record is durable; only now may derived views learn about it.
	s.dispatcher.Publish(bus.StatusChanged{
		Key:        rec.Key,
		DisplayID:  rec.DisplayID,
		Status:     rec.Status,
		Attributes: rec.Attributes,
	})

	writeJSON(w, http.StatusOK, map[string]string{"result": "ok"})
}

// authorizedWebhook checks the webhook bearer secret in constant time.
func (s *Server) authorizedWebhook(r *http.Request) bool {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return false
	}
	presented := strings.TrimPrefix(header, prefix)
	return subtle.ConstantTimeCompare([]byte(presented), []byte(s.webhookCfg.Secret)) == 1
}
