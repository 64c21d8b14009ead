// Package mockllm runs a small OpenAI-compatible chat completions server that
// answers next-word prompts with canned JSON arrays.
package mockllm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/contexttype/contexttype/internal/redact"
)

const (
	defaultPort    = 18080
	defaultDelayMS = 20
	mockModel      = "mock-llm"
)

// ReplyFunc builds the assistant content for a request. A non-zero status
// makes the server answer with that HTTP error instead.
type ReplyFunc func(system, user string) (content string, status int)

type Options struct {
	// Addr defaults to 127.0.0.1:MOCK_LLM_PORT (18080).
	Addr string
	// Delay defaults to MOCK_LLM_DELAY_MS (20ms).
	Delay time.Duration
	Reply ReplyFunc
}

// Server is a running mock.
type Server struct {
	BaseURL string

	srv      *http.Server
	reply    ReplyFunc
	delay    time.Duration
	requests atomic.Int64
}

// Start listens and serves in the background.
func Start(opts Options) (*Server, error) {
	addr := strings.TrimSpace(opts.Addr)
	if addr == "" {
		port := strings.TrimSpace(os.Getenv("MOCK_LLM_PORT"))
		if port == "" {
			port = strconv.Itoa(defaultPort)
		}
		addr = "127.0.0.1:" + port
	}

	delay := opts.Delay
	if delay == 0 {
		delay = defaultDelayMS * time.Millisecond
		if val := strings.TrimSpace(os.Getenv("MOCK_LLM_DELAY_MS")); val != "" {
			if parsed, err := strconv.Atoi(val); err == nil && parsed >= 0 {
				delay = time.Duration(parsed) * time.Millisecond
			}
		}
	}
	if delay < 0 {
		delay = 0
	}

	reply := opts.Reply
	if reply == nil {
		reply = DefaultReply
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	s := &Server{
		BaseURL: "http://" + ln.Addr().String() + "/v1",
		reply:   reply,
		delay:   delay,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handle)
	s.srv = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			redact.Logf("mock llm server error: %v", err)
		}
	}()

	redact.Logf("mock llm listening on %s (delay=%s)", s.BaseURL, delay)
	return s, nil
}

// Requests returns how many completion requests were served.
func (s *Server) Requests() int64 {
	return s.requests.Load()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	redact.Debugf("mock llm request method=%s path=%s", r.Method, r.URL.Path)

	p := r.URL.Path
	if len(p) > 1 {
		p = strings.TrimSuffix(p, "/")
	}

	switch {
	case r.Method == http.MethodPost && (p == "/v1/chat/completions" || p == "/chat/completions"):
		s.writeChatCompletion(w, r)
	case r.Method == http.MethodGet && (p == "/v1/models" || p == "/models"):
		writeModels(w)
	default:
		writeError(w, http.StatusNotFound, "Not found")
	}
}

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func (s *Server) writeChatCompletion(w http.ResponseWriter, r *http.Request) {
	s.requests.Add(1)

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	var system, user string
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			system = m.Content
		case "user":
			user = m.Content
		}
	}

	if s.delay > 0 {
		time.Sleep(s.delay)
	}

	content, status := s.reply(system, user)
	if status != 0 && status != http.StatusOK {
		writeError(w, status, "mock upstream error")
		return
	}

	model := req.Model
	if model == "" {
		model = mockModel
	}
	resp := map[string]any{
		"id":      "chatcmpl-mock",
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   model,
		"choices": []map[string]any{
			{
				"index": 0,
				"message": map[string]string{
					"role":    "assistant",
					"content": content,
				},
				"finish_reason": "stop",
			},
		},
		"usage": map[string]int{
			"prompt_tokens":     len(strings.Fields(system + " " + user)),
			"completion_tokens": 5,
			"total_tokens":      len(strings.Fields(system+" "+user)) + 5,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// DefaultReply picks a canned array from the wording of the system prompt.
func DefaultReply(system, _ string) (string, int) {
	lower := strings.ToLower(system)
	switch {
	case strings.Contains(lower, "code"):
		return `["result", "data", "response", "value", "error"]`, 0
	case strings.Contains(lower, "email"):
		return `["regards", "consideration", "information", "assistance", "support"]`, 0
	default:
		return `["yeah", "lol", "soon", "tonight", "😂"]`, 0
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    "invalid_request_error",
		},
	})
}

func writeModels(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"object": "list",
		"data": []map[string]any{
			{
				"id":       mockModel,
				"object":   "model",
				"owned_by": "mock",
			},
		},
	})
}
