// Package activation records accepted context switches and ships them to
// configured sinks.
package activation

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/contexttype/contexttype/internal/detect"
	"github.com/contexttype/contexttype/internal/redact"
)

const EventVersion = "1"

// Preview levels control how much typed text reaches an event.
const (
	PreviewMetadata = "metadata"
	PreviewRedacted = "redacted"
	PreviewFull     = "full"
)

const previewChars = 200

type Preview struct {
	Level string `json:"level"`
	Chars int    `json:"chars"`
	Text  string `json:"text,omitempty"`
}

// Event is emitted once per accepted switch.
type Event struct {
	Version    string           `json:"version"`
	EventID    string           `json:"event_id"`
	Timestamp  time.Time        `json:"timestamp"`
	SessionID  string           `json:"session_id,omitempty"`
	ClientID   string           `json:"client_id,omitempty"`
	From       detect.Context   `json:"from,omitempty"`
	To         detect.Context   `json:"to"`
	Confidence float64          `json:"confidence"`
	Scores     detect.ScoreSet  `json:"scores"`
	Decision   detect.Decision  `json:"decision"`
	Method     string           `json:"method,omitempty"`
	Signals    []string         `json:"signals,omitempty"`
	Preview    Preview          `json:"preview"`
}

type BuildParams struct {
	// EventID defaults to a fresh UUID.
	EventID      string
	SessionID    string
	ClientID     string
	From         detect.Context
	Result       detect.Result
	Method       string
	Text         string
	PreviewLevel string
	Now          time.Time
}

// BuildEvent assembles the event for an evaluation. It returns nil when the
// evaluation did not switch context.
func BuildEvent(p BuildParams) *Event {
	if !p.Result.Switched {
		return nil
	}
	id := p.EventID
	if id == "" {
		id = uuid.NewString()
	}
	now := p.Now
	if now.IsZero() {
		now = time.Now()
	}

	var signals []string
	if p.Result.Decision == detect.DecisionStrongSignal {
		signals = detect.StrongSignals(p.Text)[p.Result.Context]
	}

	return &Event{
		Version:    EventVersion,
		EventID:    id,
		Timestamp:  now.UTC(),
		SessionID:  p.SessionID,
		ClientID:   p.ClientID,
		From:       p.From,
		To:         p.Result.Context,
		Confidence: p.Result.Confidence,
		Scores:     p.Result.Scores,
		Decision:   p.Result.Decision,
		Method:     p.Method,
		Signals:    signals,
		Preview:    buildPreview(p.PreviewLevel, p.Text),
	}
}

func buildPreview(level, text string) Preview {
	level = strings.ToLower(strings.TrimSpace(level))
	p := Preview{Level: level, Chars: utf8.RuneCountInString(text)}
	switch level {
	case PreviewFull:
		p.Text = redact.String(tail(text, previewChars))
	case PreviewRedacted:
		p.Text = redact.Text(tail(text, previewChars))
	default:
		p.Level = PreviewMetadata
	}
	return p
}

// tail keeps the last n runes, where the switch was triggered.
func tail(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return "…" + string(r[len(r)-n:])
}
