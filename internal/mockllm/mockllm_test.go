package mockllm

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
)

func TestChatCompletions(t *testing.T) {
	srv, err := Start(Options{Addr: "127.0.0.1:0", Delay: -1})
	if err != nil {
		t.Skipf("start mock llm: %v", err)
	}
	defer srv.Shutdown(context.Background())

	payload := []byte(`{"model":"m","messages":[{"role":"system","content":"You complete professional emails."},{"role":"user","content":"Thank you for your"}]}`)
	resp, err := http.Post(srv.BaseURL+"/chat/completions", "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("post mock llm: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}

	var body struct {
		Model   string `json:"model"`
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Model != "m" {
		t.Fatalf("expected model echoed, got %q", body.Model)
	}
	if len(body.Choices) == 0 || !strings.Contains(body.Choices[0].Message.Content, "regards") {
		t.Fatalf("expected email reply, got %+v", body.Choices)
	}
	if srv.Requests() != 1 {
		t.Fatalf("expected 1 request, got %d", srv.Requests())
	}
}

func TestErrorStatusAndNotFound(t *testing.T) {
	srv, err := Start(Options{
		Addr:  "127.0.0.1:0",
		Delay: -1,
		Reply: func(string, string) (string, int) { return "", http.StatusServiceUnavailable },
	})
	if err != nil {
		t.Skipf("start mock llm: %v", err)
	}
	defer srv.Shutdown(context.Background())

	resp, err := http.Post(srv.BaseURL+"/chat/completions", "application/json", strings.NewReader(`{"messages":[]}`))
	if err != nil {
		t.Fatalf("post mock llm: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.BaseURL + "/nothing")
	if err != nil {
		t.Fatalf("get mock llm: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestDefaultReply(t *testing.T) {
	cases := map[string]string{
		"You complete source code.":     "result",
		"You complete emails.":          "regards",
		"You complete casual messages.": "yeah",
	}
	for system, want := range cases {
		got, status := DefaultReply(system, "")
		if status != 0 || !strings.Contains(got, want) {
			t.Fatalf("system %q: expected %q in %q", system, want, got)
		}
	}
}
