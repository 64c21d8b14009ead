package activation

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/contexttype/contexttype/internal/config"
	"github.com/contexttype/contexttype/internal/detect"
)

func testEvent(id string) *Event {
	return &Event{
		Version:    EventVersion,
		EventID:    id,
		Timestamp:  time.Now(),
		SessionID:  "s1",
		From:       detect.Code,
		To:         detect.Email,
		Confidence: 0.8,
		Decision:   detect.DecisionAccepted,
		Preview:    Preview{Level: PreviewMetadata},
	}
}

func TestBuildEventSkipsHeldResults(t *testing.T) {
	held := detect.Result{Context: detect.Code, Decision: detect.DecisionCooldown}
	if ev := BuildEvent(BuildParams{Result: held}); ev != nil {
		t.Fatalf("expected no event for a held result, got %+v", ev)
	}
}

func TestBuildEventPreviewLevels(t *testing.T) {
	text := "Dear Ana, reach me at ana@example.com or 555-123-4567."
	res := detect.Result{
		Context:    detect.Email,
		Confidence: 0.9,
		Decision:   detect.DecisionStrongSignal,
		Switched:   true,
	}

	ev := BuildEvent(BuildParams{SessionID: "s1", From: detect.Chat, Result: res, Text: text, PreviewLevel: "metadata", Method: "rules"})
	if ev == nil {
		t.Fatalf("expected event")
	}
	if ev.EventID == "" || ev.Version != EventVersion {
		t.Fatalf("expected id and version, got %+v", ev)
	}
	if ev.From != detect.Chat || ev.To != detect.Email || ev.Method != "rules" {
		t.Fatalf("unexpected transition %+v", ev)
	}
	if ev.Preview.Text != "" || ev.Preview.Chars != len([]rune(text)) {
		t.Fatalf("expected metadata-only preview, got %+v", ev.Preview)
	}
	if len(ev.Signals) == 0 {
		t.Fatalf("expected strong signals recorded")
	}

	ev = BuildEvent(BuildParams{Result: res, Text: text, PreviewLevel: "redacted"})
	if strings.Contains(ev.Preview.Text, "ana@example.com") || strings.Contains(ev.Preview.Text, "555-123-4567") {
		t.Fatalf("expected redacted preview, got %q", ev.Preview.Text)
	}
	if !strings.Contains(ev.Preview.Text, "Dear Ana") {
		t.Fatalf("expected surrounding text kept, got %q", ev.Preview.Text)
	}

	ev = BuildEvent(BuildParams{Result: res, Text: strings.Repeat("a", 300), PreviewLevel: "full", EventID: "fixed"})
	if ev.EventID != "fixed" {
		t.Fatalf("expected provided event id, got %s", ev.EventID)
	}
	if got := len([]rune(ev.Preview.Text)); got != previewChars+1 {
		t.Fatalf("expected preview truncated to %d runes plus marker, got %d", previewChars, got)
	}
}

func TestFileSinkWritesJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "events.jsonl")

	sink, err := NewFileSink(path)
	if err != nil {
		t.Fatalf("file sink: %v", err)
	}
	if err := sink.Deliver(context.Background(), testEvent("ev-1")); err != nil {
		t.Fatalf("deliver 1: %v", err)
	}
	if err := sink.Deliver(context.Background(), testEvent("ev-2")); err != nil {
		t.Fatalf("deliver 2: %v", err)
	}
	if err := sink.Close(context.Background()); err != nil {
		t.Fatalf("close sink: %v", err)
	}
	if err := sink.Deliver(context.Background(), testEvent("ev-3")); err == nil {
		t.Fatalf("expected error after close")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}

	var decoded Event
	if err := json.Unmarshal([]byte(lines[0]), &decoded); err != nil {
		t.Fatalf("unmarshal jsonl line: %v", err)
	}
	if decoded.EventID != "ev-1" || decoded.To != detect.Email {
		t.Fatalf("unexpected decoded event %+v", decoded)
	}
}

func TestStdoutSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewStdoutSink(&buf)
	if err := sink.Deliver(context.Background(), testEvent("ev-1")); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if !strings.HasSuffix(buf.String(), "\n") || !strings.Contains(buf.String(), `"event_id":"ev-1"`) {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestWebhookSinkRetriesThenFails(t *testing.T) {
	var calls atomic.Int32
	srv := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Header.Get("X-Test") != "1" {
			t.Errorf("expected custom header")
		}
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("fail"))
	}))

	sink, err := NewWebhookSink(srv.URL, map[string]string{"X-Test": "1"}, 200*time.Millisecond)
	if err != nil {
		t.Fatalf("webhook sink: %v", err)
	}
	err = sink.Deliver(context.Background(), testEvent("ev-1"))
	if err == nil {
		t.Fatalf("expected non-2xx to return error")
	}
	if !strings.Contains(err.Error(), "status 418") {
		t.Fatalf("error should mention status, got %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestWebhookSinkRecovers(t *testing.T) {
	var calls atomic.Int32
	srv := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	sink, _ := NewWebhookSink(srv.URL, nil, time.Second)
	if err := sink.Deliver(context.Background(), testEvent("ev-1")); err != nil {
		t.Fatalf("expected delivery after retry, got %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("expected 2 attempts, got %d", got)
	}
}

func TestEmitterDropsWhenQueueFull(t *testing.T) {
	wait := make(chan struct{})
	sink := &blockingSink{wait: wait}
	em := NewEmitter(EmitterConfig{QueueSize: 1, Workers: 1, ShutdownTimeout: time.Second}, []Sink{sink})

	ev := testEvent("r1")
	em.Emit(ev)
	em.Emit(ev)
	em.Emit(ev)

	if em.Metrics().Dropped == 0 {
		t.Fatalf("expected dropped events when queue is full")
	}

	close(wait)
	em.Close(context.Background())

	em.Emit(ev)
	if m := em.Metrics(); m.Enqueued+m.Dropped != 4 {
		t.Fatalf("expected every emit counted, got %+v", m)
	}
}

func TestEmitterWebhookIntegration(t *testing.T) {
	var (
		mu       sync.Mutex
		received []Event
	)
	srv := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		var ev Event
		if err := json.NewDecoder(r.Body).Decode(&ev); err == nil {
			mu.Lock()
			received = append(received, ev)
			mu.Unlock()
		}
		w.WriteHeader(http.StatusOK)
	}))

	var observed atomic.Int32
	em, err := FromConfig(config.ActivationConfig{
		Enabled:   true,
		QueueSize: 8,
		Workers:   2,
		Sinks:     []config.ActivationSinkConfig{{Type: "webhook", URL: srv.URL, Timeout: time.Second}},
	}, func(string, error) { observed.Add(1) })
	if err != nil {
		t.Fatalf("from config: %v", err)
	}

	for i := 0; i < 5; i++ {
		em.Emit(testEvent("integration"))
	}
	em.Close(context.Background())

	mu.Lock()
	got := len(received)
	mu.Unlock()
	if got != 5 {
		t.Fatalf("expected 5 delivered events, got %d", got)
	}

	m := em.Metrics()
	if m.Delivered["webhook:"+srv.URL] != 5 || m.Dropped != 0 {
		t.Fatalf("unexpected metrics %+v", m)
	}
	if observed.Load() != 5 {
		t.Fatalf("expected 5 delivery callbacks, got %d", observed.Load())
	}
}

func TestFromConfig(t *testing.T) {
	em, err := FromConfig(config.ActivationConfig{Enabled: false, Sinks: []config.ActivationSinkConfig{{Type: "stdout"}}}, nil)
	if err != nil || em != nil {
		t.Fatalf("expected nil emitter when disabled, got %v %v", em, err)
	}
	if _, err := FromConfig(config.ActivationConfig{Enabled: true, Sinks: []config.ActivationSinkConfig{{Type: "kafka"}}}, nil); err == nil {
		t.Fatalf("expected error for unknown sink type")
	}
	if _, err := FromConfig(config.ActivationConfig{Enabled: true, Sinks: []config.ActivationSinkConfig{{Type: "webhook"}}}, nil); err == nil {
		t.Fatalf("expected error for webhook without url")
	}
}

type blockingSink struct {
	wait chan struct{}
}

func (s *blockingSink) Name() string { return "blocking" }

func (s *blockingSink) Deliver(context.Context, *Event) error {
	<-s.wait
	return nil
}

func (s *blockingSink) Close(context.Context) error { return nil }

func newTestServer(t *testing.T, h http.Handler) *httptest.Server {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("skipping: cannot open listener: %v", err)
	}
	srv := httptest.NewUnstartedServer(h)
	srv.Listener = ln
	srv.Start()
	t.Cleanup(srv.Close)
	return srv
}
