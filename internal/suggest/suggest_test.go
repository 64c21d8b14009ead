package suggest

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/contexttype/contexttype/internal/detect"
	"github.com/contexttype/contexttype/internal/mockllm"
)

func TestRequestCount(t *testing.T) {
	cases := map[int]int{0: 5, -3: 5, 3: 3, 10: 10, 50: 10}
	for in, want := range cases {
		if got := (Request{MaxCount: in}).Count(); got != want {
			t.Fatalf("MaxCount %d: expected %d, got %d", in, want, got)
		}
	}
}

func TestPromptWindow(t *testing.T) {
	short := "one two three four five six"
	if got := promptWindow(short); got != short {
		t.Fatalf("expected short text unchanged, got %q", got)
	}

	words := strings.Fields("a b c d e f g h i j k l m n o p q r s t")
	got := promptWindow(strings.Join(words, "  "))
	if want := strings.Join(words[5:], " "); got != want {
		t.Fatalf("expected last 15 words %q, got %q", want, got)
	}
}

func TestTypeOf(t *testing.T) {
	cases := []struct {
		text string
		ctx  detect.Context
		want Type
	}{
		{"const", detect.Code, TypeKeyword},
		{"=", detect.Code, TypeKeyword},
		{"fetch", detect.Code, TypeIdentifier},
		{"😂", detect.Chat, TypeEmoji},
		{"!", detect.Chat, TypePunctuation},
		{"regards,", detect.Email, TypePhrase},
		{"yeah", detect.Chat, TypeWord},
	}
	for _, tc := range cases {
		if got := typeOf(tc.text, tc.ctx); got != tc.want {
			t.Fatalf("typeOf(%q, %s): expected %s, got %s", tc.text, tc.ctx, tc.want, got)
		}
	}
}

func TestParseReply(t *testing.T) {
	got, err := parseReply(`["json", "text"]`)
	if err != nil {
		t.Fatalf("plain array: %v", err)
	}
	if diff := cmp.Diff([]string{"json", "text"}, got); diff != "" {
		t.Fatalf("plain array (-want +got):\n%s", diff)
	}

	got, err = parseReply("Sure! Here you go:\n[\"well\", \"in\"]\nHope that helps.")
	if err != nil {
		t.Fatalf("wrapped array: %v", err)
	}
	if diff := cmp.Diff([]string{"well", "in"}, got); diff != "" {
		t.Fatalf("wrapped array (-want +got):\n%s", diff)
	}

	for _, bad := range []string{"no idea", `[1, 2]`, `[]`, `{"a": "b"}`} {
		if _, err := parseReply(bad); !errors.Is(err, ErrNoSuggestions) {
			t.Fatalf("reply %q: expected ErrNoSuggestions, got %v", bad, err)
		}
	}
}

func TestStaticSuggestions(t *testing.T) {
	s := NewStatic()
	cases := []struct {
		name  string
		req   Request
		first string
	}{
		{"code starter", Request{Text: "", Context: detect.Code}, "const"},
		{"email starter", Request{Text: "   ", Context: detect.Email}, "Dear"},
		{"after function", Request{Text: "function ", Context: detect.Code}, "handle"},
		{"after assignment", Request{Text: "const user =", Context: detect.Code}, "await"},
		{"email phrase", Request{Text: "Thank you for your", Context: detect.Email}, "time"},
		{"chat phrase", Request{Text: "hey how are you", Context: detect.Chat}, "doing"},
		{"code fallback", Request{Text: "x = foo(bar) ", Context: detect.Code}, "const"},
		{"chat fallback", Request{Text: "the game was wild. ", Context: detect.Chat}, "yeah"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := s.Suggest(context.Background(), tc.req)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(out) == 0 || out[0].Text != tc.first {
				t.Fatalf("expected %q first, got %+v", tc.first, out)
			}
			for i := 1; i < len(out); i++ {
				if out[i].Confidence >= out[i-1].Confidence {
					t.Fatalf("expected falling confidence, got %+v", out)
				}
			}
		})
	}
}

func TestStaticCompletesPartialWord(t *testing.T) {
	out, err := NewStatic().Suggest(context.Background(), Request{Text: "Kind regar", Context: detect.Email})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	found := false
	for _, s := range out {
		if s.Text == "regards" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected regards among completions, got %+v", out)
	}
}

func TestStaticLimitsAndValidates(t *testing.T) {
	s := NewStatic()
	out, err := s.Suggest(context.Background(), Request{Context: detect.Chat, MaxCount: 2})
	if err != nil || len(out) != 2 {
		t.Fatalf("expected 2 suggestions, got %d (%v)", len(out), err)
	}
	if _, err := s.Suggest(context.Background(), Request{Text: "x", Context: "poetry"}); !errors.Is(err, ErrUnknownContext) {
		t.Fatalf("expected ErrUnknownContext, got %v", err)
	}
}

func startMock(t *testing.T, reply mockllm.ReplyFunc) *mockllm.Server {
	t.Helper()
	srv, err := mockllm.Start(mockllm.Options{Addr: "127.0.0.1:0", Delay: -1, Reply: reply})
	if err != nil {
		t.Skipf("start mock llm: %v", err)
	}
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

func newTestOpenAI(t *testing.T, baseURL string) *OpenAI {
	t.Helper()
	p, err := NewOpenAI(OpenAIOptions{
		BaseURL:    baseURL,
		APIKey:     "test-key",
		Model:      "mock-llm",
		MaxRetries: 2,
		RetryDelay: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	return p
}

func TestNewOpenAIRequiresKeyAndModel(t *testing.T) {
	if _, err := NewOpenAI(OpenAIOptions{Model: "m"}); err == nil {
		t.Fatalf("expected error without api key")
	}
	if _, err := NewOpenAI(OpenAIOptions{APIKey: "k"}); err == nil {
		t.Fatalf("expected error without model")
	}
}

func TestOpenAISuggest(t *testing.T) {
	srv := startMock(t, nil)
	p := newTestOpenAI(t, srv.BaseURL)

	out, err := p.Suggest(context.Background(), Request{Text: "hey how are", Context: detect.Chat, MaxCount: 3})
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	if len(out) != 3 || out[0].Text != "yeah" {
		t.Fatalf("expected 3 chat suggestions led by yeah, got %+v", out)
	}
	if out[0].Confidence != 1 || math.Abs(out[1].Confidence-0.9) > 1e-9 {
		t.Fatalf("expected confidences 1.0 then 0.9, got %+v", out)
	}
	if srv.Requests() != 1 {
		t.Fatalf("expected 1 upstream request, got %d", srv.Requests())
	}
}

func TestOpenAIRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := startMock(t, func(system, user string) (string, int) {
		if calls.Add(1) == 1 {
			return "", http.StatusInternalServerError
		}
		return `["regards"]`, 0
	})
	p := newTestOpenAI(t, srv.BaseURL)

	out, err := p.Suggest(context.Background(), Request{Text: "Best", Context: detect.Email})
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	if len(out) != 1 || out[0].Text != "regards" {
		t.Fatalf("unexpected suggestions %+v", out)
	}
	if srv.Requests() != 2 {
		t.Fatalf("expected 2 upstream requests, got %d", srv.Requests())
	}
}

func TestOpenAIDoesNotRetryClientErrors(t *testing.T) {
	srv := startMock(t, func(string, string) (string, int) { return "", http.StatusBadRequest })
	p := newTestOpenAI(t, srv.BaseURL)

	if _, err := p.Suggest(context.Background(), Request{Text: "Best", Context: detect.Email}); err == nil {
		t.Fatalf("expected error")
	}
	if srv.Requests() != 1 {
		t.Fatalf("expected a single upstream request, got %d", srv.Requests())
	}
}

func TestOpenAIRejectsUnparseableReply(t *testing.T) {
	srv := startMock(t, func(string, string) (string, int) { return "I think the next word is well.", 0 })
	p := newTestOpenAI(t, srv.BaseURL)

	_, err := p.Suggest(context.Background(), Request{Text: "hope this finds you", Context: detect.Email})
	if !errors.Is(err, ErrNoSuggestions) {
		t.Fatalf("expected ErrNoSuggestions, got %v", err)
	}
	if srv.Requests() != 1 {
		t.Fatalf("expected no retry on parse failure, got %d requests", srv.Requests())
	}
}

type stubProvider struct {
	name  string
	out   []Suggestion
	err   error
	calls atomic.Int32
	gate  chan struct{}
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Suggest(ctx context.Context, req Request) ([]Suggestion, error) {
	s.calls.Add(1)
	if s.gate != nil {
		<-s.gate
	}
	return s.out, s.err
}

func TestFallbackUsesSecondaryOnFailure(t *testing.T) {
	primary := &stubProvider{name: "llm", err: errors.New("upstream down")}
	f := NewFallback(primary, nil)

	out, source, err := f.SuggestWithSource(context.Background(), Request{Text: "", Context: detect.Code})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if source != "static" || out[0].Text != "const" {
		t.Fatalf("expected static starters, got %s %+v", source, out)
	}

	primary.err = nil
	out, source, _ = f.SuggestWithSource(context.Background(), Request{Text: "x", Context: detect.Code})
	if source != "static" || len(out) == 0 {
		t.Fatalf("expected static after empty primary result, got %s %+v", source, out)
	}
}

func TestFallbackPrefersPrimary(t *testing.T) {
	primary := &stubProvider{name: "llm", out: []Suggestion{{Text: "json", Confidence: 1, Type: TypeIdentifier}}}
	f := NewFallback(primary, nil)

	out, source, err := f.SuggestWithSource(context.Background(), Request{Text: "res.", Context: detect.Code})
	if err != nil || source != "llm" || out[0].Text != "json" {
		t.Fatalf("expected primary answer, got %s %+v %v", source, out, err)
	}
	if f.Name() != "llm+static" {
		t.Fatalf("unexpected name %q", f.Name())
	}
	if _, err := f.Suggest(context.Background(), Request{Text: "x", Context: ""}); !errors.Is(err, ErrUnknownContext) {
		t.Fatalf("expected ErrUnknownContext, got %v", err)
	}
}

func TestFallbackSharesConcurrentCalls(t *testing.T) {
	primary := &stubProvider{
		name: "llm",
		out:  []Suggestion{{Text: "soon", Confidence: 1, Type: TypeWord}},
		gate: make(chan struct{}),
	}
	f := NewFallback(primary, nil)
	req := Request{Text: "see you", Context: detect.Chat}

	const n = 8
	var wg sync.WaitGroup
	results := make([][]Suggestion, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = f.Suggest(context.Background(), req)
		}(i)
	}
	time.Sleep(100 * time.Millisecond)
	close(primary.gate)
	wg.Wait()

	if got := primary.calls.Load(); got != 1 {
		t.Fatalf("expected one upstream call, got %d", got)
	}
	results[0][0].Text = "changed"
	for i := 1; i < n; i++ {
		if results[i][0].Text != "soon" {
			t.Fatalf("expected independent copies, result %d is %+v", i, results[i])
		}
	}
}
