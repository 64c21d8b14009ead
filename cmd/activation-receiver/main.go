// Command activation-receiver prints context activation events posted by the
// webhook sink. It is meant for local runs and demos.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/contexttype/contexttype/internal/activation"
	"github.com/contexttype/contexttype/internal/redact"
)

const maxEventBytes = 1 << 20

func main() {
	addr := flag.String("addr", ":8099", "listen address for activation receiver")
	raw := flag.Bool("raw", false, "print the full event body")
	flag.Parse()

	mux := http.NewServeMux()
	h := &receiver{raw: *raw, out: log.Writer()}
	mux.Handle("/activation", h)
	mux.Handle("/", h)

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Printf("activation receiver listening on %s (POST JSON to /activation)...", *addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("receiver error: %v", err)
	}
}

type receiver struct {
	raw bool
	out io.Writer
}

func (h *receiver) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxEventBytes))
	_ = r.Body.Close()
	if err != nil {
		http.Error(w, "body too large", http.StatusRequestEntityTooLarge)
		return
	}

	var ev activation.Event
	if err := json.Unmarshal(body, &ev); err != nil {
		http.Error(w, "invalid event", http.StatusBadRequest)
		return
	}
	if ev.Version != activation.EventVersion {
		redact.Logf("activation receiver: unexpected event version %q", ev.Version)
	}

	fmt.Fprintf(h.out, "%s session=%s %s -> %s decision=%s confidence=%.2f method=%s\n",
		ev.Timestamp.Format(time.RFC3339Nano), ev.SessionID, ev.From, ev.To, ev.Decision, ev.Confidence, ev.Method)
	if h.raw {
		fmt.Fprintln(h.out, redact.String(string(body)))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintln(w, `{"status":"ok"}`)
}
