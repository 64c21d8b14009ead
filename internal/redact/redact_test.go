package redact

import (
	"bytes"
	"log"
	"strings"
	"testing"
)

func TestStringRedaction(t *testing.T) {
	cases := []struct {
		name     string
		input    string
		disallow []string
		require  []string
	}{
		{
			name:     "bearer header",
			input:    "Authorization: Bearer ctx-secret-123",
			disallow: []string{"ctx-secret-123"},
			require:  []string{"[REDACTED]"},
		},
		{
			name:     "api keys slice",
			input:    "api_keys=[web-key-1 web-key-2]",
			disallow: []string{"web-key-1", "web-key-2"},
			require:  []string{"api_keys=[REDACTED]"},
		},
		{
			name:     "provider key",
			input:    "using gsk_abcdefghijklmnop1234 for groq",
			disallow: []string{"gsk_abcdefghijklmnop1234"},
			require:  []string{"using [REDACTED] for groq"},
		},
		{
			name:     "webhook url",
			input:    "posting to https://hooks.example.com/events/ingest?sig=abc123",
			disallow: []string{"ingest?sig=abc123", "events/"},
			require:  []string{"https://hooks.example.com/ingest"},
		},
		{
			name:     "mixed token",
			input:    "Bearer abc token=anotherone secret=hunter22 base_url=https://api.example.test/openai/v1/",
			disallow: []string{"abc", "anotherone", "hunter22", "openai/v1/"},
			require:  []string{"[REDACTED]", "https://api.example.test/[REDACTED_PATH]"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := String(tc.input)
			for _, bad := range tc.disallow {
				if bad != "" && contains(out, bad) {
					t.Fatalf("output still contains %q: %s", bad, out)
				}
			}
			for _, want := range tc.require {
				if want == "" {
					continue
				}
				if !contains(out, want) {
					t.Fatalf("output missing required substring %q: %s", want, out)
				}
			}
		})
	}
}

func TestTextRedactsPersonalData(t *testing.T) {
	in := "Hi Sarah, reach me at sarah.lee@example.com or +1 (555) 010-2233, card 4111 1111 1111 1111."
	out := Text(in)
	for _, bad := range []string{"sarah.lee@example.com", "555", "4111"} {
		if contains(out, bad) {
			t.Fatalf("output still contains %q: %s", bad, out)
		}
	}
	for _, want := range []string{"Hi Sarah,", "[EMAIL]"} {
		if !contains(out, want) {
			t.Fatalf("output missing %q: %s", want, out)
		}
	}
}

func TestDebugfRespectsToggle(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Writer()
	log.SetOutput(&buf)
	defer log.SetOutput(prev)
	defer SetDebug(false)

	Debugf("hidden %s", "line")
	if buf.Len() != 0 {
		t.Fatalf("expected no output with debug off, got %q", buf.String())
	}
	SetDebug(true)
	Debugf("token=supersecret visible")
	if !contains(buf.String(), "visible") || contains(buf.String(), "supersecret") {
		t.Fatalf("expected redacted debug line, got %q", buf.String())
	}
}

func contains(s, sub string) bool {
	return s != "" && sub != "" && strings.Contains(s, sub)
}
