package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/contexttype/contexttype/internal/activation"
	"github.com/contexttype/contexttype/internal/detect"
)

func TestReceiverPrintsEvent(t *testing.T) {
	var out bytes.Buffer
	h := &receiver{out: &out}

	ev := activation.Event{
		Version:    activation.EventVersion,
		EventID:    "e1",
		Timestamp:  time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		SessionID:  "s1",
		From:       detect.Code,
		To:         detect.Email,
		Confidence: 0.8,
		Decision:   detect.DecisionAccepted,
		Method:     "rules",
	}
	body, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/activation", bytes.NewReader(body)))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	line := out.String()
	if !strings.Contains(line, "session=s1 code -> email decision=accepted confidence=0.80") {
		t.Fatalf("unexpected output %q", line)
	}
}

func TestReceiverRejectsBadRequests(t *testing.T) {
	h := &receiver{out: &bytes.Buffer{}}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/activation", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/activation", strings.NewReader("nope")))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}
