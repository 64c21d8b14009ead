package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/contexttype/contexttype/internal/activation"
	"github.com/contexttype/contexttype/internal/detect"
	"github.com/contexttype/contexttype/internal/redact"
)

// handleSession serves GET (inspect) and DELETE (restart) for one session.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodDelete {
		writeOpenAIError(w, http.StatusMethodNotAllowed, "method not allowed", "invalid_request_error")
		return
	}
	clientID, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		http.NotFound(w, r)
		return
	}
	key := sessionKey(clientID, id)

	if r.Method == http.MethodDelete {
		if !s.sessions.Restart(key) {
			writeOpenAIError(w, http.StatusNotFound, "session not found", "not_found_error")
			return
		}
		redact.Debugf("session %s restarted", id)
		w.WriteHeader(http.StatusNoContent)
		return
	}

	sess, ok := s.sessions.Lookup(key)
	if !ok {
		writeOpenAIError(w, http.StatusNotFound, "session not found", "not_found_error")
		return
	}
	info := sess.Info()
	info.ID = id
	writeJSON(w, http.StatusOK, info)
}

type detectionResponse struct {
	DetectionID string            `json:"detection_id"`
	SessionID   string            `json:"session_id,omitempty"`
	Result      detect.Result     `json:"result"`
	Method      string            `json:"method"`
	CreatedAt   time.Time         `json:"created_at"`
	Activation  *activation.Event `json:"activation"`
}

// handleDetection returns a recent detection by id, including the activation
// event when it switched context.
func (s *Server) handleDetection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeOpenAIError(w, http.StatusMethodNotAllowed, "method not allowed", "invalid_request_error")
		return
	}
	clientID, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	id := strings.TrimSpace(r.PathValue("id"))
	entry, ok := s.detections.Get(id, clientID)
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, detectionResponse{
		DetectionID: id,
		SessionID:   entry.sessionID,
		Result:      entry.result,
		Method:      entry.method,
		CreatedAt:   entry.createdAt.UTC(),
		Activation:  entry.activation,
	})
}
