package telemetry

import (
	"strings"
	"testing"

	"github.com/contexttype/contexttype/internal/detect"
)

func TestSafeAttributesFiltersText(t *testing.T) {
	kvs := map[string]any{
		"text":             "Dear Ana, my card is 4111 1111 1111 1111",
		"preview_text":     "drop",
		"authorization":    "Bearer secret",
		"api_key":          "gsk_123",
		"decision":         "accepted",
		"long_string":      strings.Repeat("x", 600),
		"context":          detect.Email,
		"switched":         true,
		"confidence":       0.82,
		"strong_signals":   []string{"salutation"},
		"unsupported_kind": struct{}{},
	}

	attrs := SafeAttributes(kvs)
	got := map[string]bool{}
	for _, a := range attrs {
		got[string(a.Key)] = true
	}
	for _, bad := range []string{"text", "preview_text", "authorization", "api_key", "long_string", "unsupported_kind"} {
		if got[bad] {
			t.Fatalf("unexpected attribute %s", bad)
		}
	}
	for _, ok := range []string{"decision", "context", "switched", "confidence", "strong_signals"} {
		if !got[ok] {
			t.Fatalf("expected attribute %s", ok)
		}
	}
}
