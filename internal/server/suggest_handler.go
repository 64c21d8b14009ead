package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/contexttype/contexttype/internal/detect"
	"github.com/contexttype/contexttype/internal/redact"
	"github.com/contexttype/contexttype/internal/suggest"
)

type suggestionsRequest struct {
	Text           string `json:"text"`
	Context        string `json:"context"`
	MaxSuggestions int    `json:"max_suggestions"`
}

type suggestionsResponse struct {
	Suggestions []suggest.Suggestion `json:"suggestions"`
	Context     detect.Context       `json:"context"`
	Timestamp   time.Time            `json:"timestamp"`
	Source      string               `json:"source"`
}

func (s *Server) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeOpenAIError(w, http.StatusMethodNotAllowed, "method not allowed", "invalid_request_error")
		return
	}
	start := time.Now()
	if _, ok := s.authenticate(w, r); !ok {
		return
	}

	var req suggestionsRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeOpenAIError(w, http.StatusBadRequest, "Text is required", "invalid_request_error")
		return
	}
	c, err := detect.ParseContext(req.Context)
	if err != nil || c == "" {
		writeOpenAIError(w, http.StatusBadRequest, "Context must be one of: code, email, chat", "invalid_request_error")
		return
	}

	out, source, err := s.suggester.SuggestWithSource(r.Context(), suggest.Request{
		Text:     req.Text,
		Context:  c,
		MaxCount: req.MaxSuggestions,
	})
	s.telemetry.RecordSuggestion(r.Context(), string(c), source, err, time.Since(start))
	if err != nil {
		redact.Logf("suggestions failed context=%s: %v", c, err)
		status := http.StatusBadGateway
		if errors.Is(err, suggest.ErrUnknownContext) {
			status = http.StatusBadRequest
		}
		writeOpenAIError(w, status, "Failed to fetch suggestions", "upstream_error")
		return
	}

	writeJSON(w, http.StatusOK, suggestionsResponse{
		Suggestions: out,
		Context:     c,
		Timestamp:   time.Now().UTC(),
		Source:      source,
	})
}
