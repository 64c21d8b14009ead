package server

import (
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/contexttype/contexttype/internal/activation"
	"github.com/contexttype/contexttype/internal/detect"
	"github.com/contexttype/contexttype/internal/mlscorer"
	"github.com/contexttype/contexttype/internal/redact"
	"github.com/contexttype/contexttype/internal/session"
	"github.com/contexttype/contexttype/internal/telemetry"
)

type detectRequest struct {
	Text            string `json:"text"`
	SessionID       string `json:"session_id"`
	PreviousContext string `json:"previous_context,omitempty"`
	UseML           *bool  `json:"use_ml,omitempty"`
}

type detectResponse struct {
	Context      detect.Context       `json:"context"`
	Confidence   float64              `json:"confidence"`
	Scores       detect.ScoreSet      `json:"scores"`
	Switched     bool                 `json:"switched"`
	Decision     detect.Decision      `json:"decision"`
	Method       mlscorer.Method      `json:"method"`
	DetectionID  string               `json:"detection_id"`
	SessionID    string               `json:"session_id,omitempty"`
	Timestamp    time.Time            `json:"timestamp"`
	Alternatives []detect.Alternative `json:"alternative_contexts"`
}

func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeOpenAIError(w, http.StatusMethodNotAllowed, "method not allowed", "invalid_request_error")
		return
	}
	start := time.Now()

	clientID, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	var req detectRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if utf8.RuneCountInString(req.Text) > s.cfg.Server.MaxTextChars {
		writeOpenAIError(w, http.StatusBadRequest, "text exceeds max_text_chars", "invalid_request_error")
		return
	}
	previous, err := detect.ParseContext(req.PreviousContext)
	if err != nil {
		writeOpenAIError(w, http.StatusBadRequest, "previous_context must be one of: code, email, chat", "invalid_request_error")
		return
	}

	useML := s.predictor != nil
	if req.UseML != nil {
		useML = *req.UseML && s.predictor != nil
	}
	ctrl, _, rec := s.controller(useML)

	var sess *session.Session
	if req.SessionID == "" {
		sess = session.New("")
	} else {
		sess = s.sessions.Get(sessionKey(clientID, req.SessionID))
	}

	var from detect.Context
	res := sess.Evaluate(func(state *detect.SwitchState, current detect.Context) detect.Result {
		from = current
		if previous != "" {
			from = previous
		}
		return ctrl.Evaluate(state, req.Text, from)
	})

	method := mlscorer.MethodRules
	if rec != nil {
		method = rec.Method()
	}

	detectionID := uuid.NewString()
	ev := activation.BuildEvent(activation.BuildParams{
		EventID:      detectionID,
		SessionID:    req.SessionID,
		ClientID:     clientID,
		From:         from,
		Result:       res,
		Method:       string(method),
		Text:         req.Text,
		PreviewLevel: s.cfg.Logging.PreviewLevel,
	})
	if ev != nil {
		s.activation.Emit(ev)
		redact.Debugf("context switch session=%s %s -> %s decision=%s confidence=%.2f",
			req.SessionID, from, res.Context, res.Decision, res.Confidence)
	}
	s.detections.Put(detectionID, detectionEntry{
		clientID:   clientID,
		sessionID:  req.SessionID,
		result:     res,
		method:     string(method),
		activation: ev,
	})

	s.telemetry.RecordEvaluation(r.Context(), telemetry.Evaluation{
		Context:  string(res.Context),
		Previous: string(from),
		Decision: string(res.Decision),
		Method:   string(method),
		Switched: res.Switched,
		Duration: time.Since(start),
	})
	s.annotateSpan(r, "context.detect", map[string]any{
		"decision":   string(res.Decision),
		"context":    string(res.Context),
		"switched":   res.Switched,
		"confidence": res.Confidence,
		"method":     string(method),
	})

	writeJSON(w, http.StatusOK, detectResponse{
		Context:      res.Context,
		Confidence:   res.Confidence,
		Scores:       res.Scores,
		Switched:     res.Switched,
		Decision:     res.Decision,
		Method:       method,
		DetectionID:  detectionID,
		SessionID:    req.SessionID,
		Timestamp:    time.Now().UTC(),
		Alternatives: res.Alternatives(),
	})
}

type scoreRequest struct {
	Text string `json:"text"`
}

type scoreResponse struct {
	Context       detect.Context              `json:"context"`
	Confidence    float64                     `json:"confidence"`
	Scores        detect.ScoreSet             `json:"scores"`
	Full          detect.Result               `json:"full"`
	Recent        detect.Result               `json:"recent"`
	RecentWindow  string                      `json:"recent_window"`
	AtBoundary    bool                        `json:"at_sentence_boundary"`
	Hits          []detect.Hit                `json:"hits"`
	StrongSignals map[detect.Context][]string `json:"strong_signals"`
}

// handleScore is the stateless view of the scorer: blended result, both
// halves of the blend, and the rule hits behind them.
func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeOpenAIError(w, http.StatusMethodNotAllowed, "method not allowed", "invalid_request_error")
		return
	}
	if _, ok := s.authenticate(w, r); !ok {
		return
	}
	var req scoreRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if utf8.RuneCountInString(req.Text) > s.cfg.Server.MaxTextChars {
		writeOpenAIError(w, http.StatusBadRequest, "text exceeds max_text_chars", "invalid_request_error")
		return
	}

	ctrl, rules, _ := s.controller(false)
	th := ctrl.Thresholds()
	window := detect.RecentWindow(req.Text, th.MinSentenceChars, th.WindowChars)
	blended := ctrl.Blend(req.Text)

	hits := rules.Explain(req.Text)
	if hits == nil {
		hits = []detect.Hit{}
	}
	writeJSON(w, http.StatusOK, scoreResponse{
		Context:       blended.Context,
		Confidence:    blended.Confidence,
		Scores:        blended.Scores,
		Full:          detect.Classify(rules.Score(req.Text)),
		Recent:        detect.Classify(rules.Score(window)),
		RecentWindow:  window,
		AtBoundary:    detect.AtSentenceBoundary(req.Text),
		Hits:          hits,
		StrongSignals: detect.StrongSignals(req.Text),
	})
}

// annotateSpan adds filtered attributes to the request span, starting one
// when the request carries none.
func (s *Server) annotateSpan(r *http.Request, name string, values map[string]any) {
	if s.telemetry == nil || !s.telemetry.Enabled {
		return
	}
	span := trace.SpanFromContext(r.Context())
	if !span.IsRecording() {
		_, span = s.telemetry.Tracer().Start(r.Context(), name)
		defer span.End()
	}
	attrs := telemetry.SafeAttributes(values)
	attrs = append(attrs, attribute.String("http.route", r.URL.Path))
	span.SetAttributes(attrs...)
}
