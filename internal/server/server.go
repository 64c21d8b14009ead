// Package server hosts the context detector over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/contexttype/contexttype/internal/activation"
	"github.com/contexttype/contexttype/internal/auth"
	"github.com/contexttype/contexttype/internal/config"
	"github.com/contexttype/contexttype/internal/detect"
	"github.com/contexttype/contexttype/internal/mlscorer"
	"github.com/contexttype/contexttype/internal/redact"
	"github.com/contexttype/contexttype/internal/session"
	"github.com/contexttype/contexttype/internal/suggest"
	"github.com/contexttype/contexttype/internal/telemetry"
)

// Deps are the collaborators a Server uses. Nil fields fall back to
// defaults built from the config.
type Deps struct {
	Auth      *auth.Auth
	Sessions  *session.Store
	Predictor mlscorer.Predictor
	Suggester *suggest.Fallback
	Emitter   *activation.Emitter
	Telemetry *telemetry.Provider
	Clock     detect.Clock
}

// tuning is the hot-reloadable detector configuration.
type tuning struct {
	weights    detect.Weights
	thresholds detect.Thresholds
}

// Server wraps the HTTP components of the detector host.
type Server struct {
	mux        *http.ServeMux
	httpServer *http.Server
	cfg        *config.Config

	auth       *auth.Auth
	sessions   *session.Store
	predictor  mlscorer.Predictor
	minMLConf  float64
	suggester  *suggest.Fallback
	activation *activation.Emitter
	telemetry  *telemetry.Provider
	clock      detect.Clock
	detections *detectionStore

	tuning atomic.Pointer[tuning]
}

func New(cfg *config.Config, deps Deps) *Server {
	if cfg == nil {
		cfg = config.Default()
	}
	mux := http.NewServeMux()

	s := &Server{
		mux:        mux,
		cfg:        cfg,
		auth:       deps.Auth,
		sessions:   deps.Sessions,
		predictor:  deps.Predictor,
		suggester:  deps.Suggester,
		activation: deps.Emitter,
		telemetry:  deps.Telemetry,
		clock:      deps.Clock,
		detections: newDetectionStore(cfg.Sessions.TTL),
	}
	if s.auth == nil {
		s.auth, _ = auth.NewFromConfig(&config.Config{})
	}
	if s.sessions == nil {
		s.sessions = session.NewStore(cfg.Sessions.TTL, cfg.Sessions.MaxSessions)
	}
	if s.suggester == nil {
		s.suggester = suggest.NewFallback(nil, nil)
	}
	if s.clock == nil {
		s.clock = detect.SystemClock{}
	}
	s.minMLConf = cfg.ML.MinConfidence
	if m, ok := s.predictor.(*mlscorer.Model); ok && s.minMLConf <= 0 {
		s.minMLConf = m.MinConfidence()
	}
	s.ApplyDetector(cfg.Detector)

	// Routes
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/robots.txt", handleRobots)
	mux.HandleFunc("/v1/status", s.handleStatus)
	mux.HandleFunc("/v1/context/detect", s.handleDetect)
	mux.HandleFunc("/v1/context/score", s.handleScore)
	mux.HandleFunc("/v1/sessions/{id}", s.handleSession)
	mux.HandleFunc("/v1/detections/{id}", s.handleDetection)
	mux.HandleFunc("/v1/suggestions", s.handleSuggestions)

	s.httpServer = &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           mux,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}
	return s
}

// ApplyDetector swaps in new weights and thresholds. Invalid tuning is
// rejected and the current one kept.
func (s *Server) ApplyDetector(dc config.DetectorConfig) {
	if err := errors.Join(dc.Weights.Validate(), dc.Thresholds.Validate()); err != nil {
		redact.Logf("detector tuning rejected: %v", err)
		return
	}
	s.tuning.Store(&tuning{weights: dc.Weights, thresholds: dc.Thresholds})
	redact.Debugf("detector tuning applied: cooldown=%s boundary=%.2f default=%.2f",
		dc.Thresholds.Cooldown, dc.Thresholds.Boundary, dc.Thresholds.Default)
}

// Handler exposes the routes, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Serve accepts connections on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	redact.Logf("contexttype listening on %s", ln.Addr())
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe listens on the configured address.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Server.Addr, err)
	}
	return s.Serve(ln)
}

// Shutdown stops the HTTP server, then drains activation events and flushes
// telemetry.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.activation.Close(ctx)
	s.telemetry.Shutdown(ctx)
	return err
}

// controller builds a controller for one request from the current tuning.
// With useML and a loaded model, scoring goes through the classifier and the
// returned recorder reports which method served it.
func (s *Server) controller(useML bool) (*detect.Controller, *detect.RuleScorer, *mlscorer.Recorder) {
	t := s.tuning.Load()
	rules := detect.NewRuleScorer(t.weights)
	opts := []detect.Option{detect.WithThresholds(t.thresholds), detect.WithClock(s.clock)}

	var rec *mlscorer.Recorder
	if useML && s.predictor != nil {
		h := mlscorer.NewHybrid(s.predictor, rules, s.minMLConf, s.cfg.ML.MaxTextChars)
		rec = h.NewRecorder()
		opts = append(opts, detect.WithScorer(rec))
	} else {
		opts = append(opts, detect.WithScorer(rules))
	}
	return detect.NewController(opts...), rules, rec
}

// --- Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintln(w, "ok")
}

const robotsTxt = "User-agent: *\nDisallow: /\n"

func handleRobots(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write([]byte(robotsTxt))
}

type statusResponse struct {
	Sessions   int                 `json:"sessions"`
	MLLoaded   bool                `json:"ml_loaded"`
	Suggester  string              `json:"suggester"`
	Thresholds detect.Thresholds   `json:"thresholds"`
	Activation *activation.Metrics `json:"activation,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeOpenAIError(w, http.StatusMethodNotAllowed, "method not allowed", "invalid_request_error")
		return
	}
	if _, ok := s.authenticate(w, r); !ok {
		return
	}
	resp := statusResponse{
		Sessions:   s.sessions.Len(),
		MLLoaded:   s.predictor != nil,
		Suggester:  s.suggester.Name(),
		Thresholds: s.tuning.Load().thresholds,
	}
	if s.activation != nil {
		m := s.activation.Metrics()
		resp.Activation = &m
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- HTTP helpers ---

type openAIErrorBody struct {
	Error openAIErrorDetail `json:"error"`
}

type openAIErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code,omitempty"`
}

// writeOpenAIError writes an OpenAI-style error JSON.
func writeOpenAIError(w http.ResponseWriter, status int, message, typ string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(openAIErrorBody{
		Error: openAIErrorDetail{
			Message: message,
			Type:    typ,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// parseBearerToken extracts the token from an Authorization: Bearer header.
func parseBearerToken(h string) (string, bool) {
	if h == "" {
		return "", false
	}
	parts := strings.Fields(h)
	if len(parts) != 2 {
		return "", false
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return parts[1], true
}

// authenticate resolves the calling client. When no clients are configured
// every caller is anonymous and the returned id is empty.
func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) (string, bool) {
	if !s.auth.Required() {
		return "", true
	}
	apiKey, ok := parseBearerToken(r.Header.Get("Authorization"))
	if !ok || apiKey == "" {
		writeOpenAIError(w, http.StatusUnauthorized, "Invalid or missing API key", "authentication_error")
		return "", false
	}
	client, ok := s.auth.Lookup(apiKey)
	if !ok {
		writeOpenAIError(w, http.StatusUnauthorized, "Invalid API key", "authentication_error")
		return "", false
	}
	return client.ID, true
}

// decodeBody reads a size-limited JSON body into v and writes the error
// response itself on failure.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeOpenAIError(w, http.StatusRequestEntityTooLarge, "Request body too large", "invalid_request_error")
			return false
		}
		writeOpenAIError(w, http.StatusBadRequest, "Invalid JSON body", "invalid_request_error")
		return false
	}
	return true
}

// sessionKey scopes session ids per client so two clients cannot share state.
func sessionKey(clientID, sessionID string) string {
	if clientID == "" {
		return sessionID
	}
	return clientID + "/" + sessionID
}
