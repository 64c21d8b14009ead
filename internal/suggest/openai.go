package suggest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	openai "github.com/sashabaranov/go-openai"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/contexttype/contexttype/internal/detect"
	"github.com/contexttype/contexttype/internal/redact"
)

const replySchema = `{
  "type": "array",
  "minItems": 1,
  "items": {"type": "string", "maxLength": 64}
}`

var (
	replyValidator = jsonschema.MustCompileString("reply.json", replySchema)
	arrayRe        = regexp.MustCompile(`(?s)\[.*\]`)
)

var systemPrompts = map[detect.Context]string{
	detect.Code: `You complete source code. Predict the next token a programmer will type.
Reply with a JSON array of up to five strings, most likely first, and nothing else.
Prefer concrete identifiers, members and syntax that fit the surrounding code.
Example: "if (user && user." -> ["id", "name", "email", "isActive", "role"]`,
	detect.Email: `You complete professional emails. Predict the next word of the message.
Reply with a JSON array of up to five strings, most likely first, and nothing else.
Keep the tone and formality of the text.
Example: "Thank you for your time and" -> ["consideration", "assistance", "attention", "help", "support"]`,
	detect.Chat: `You complete casual chat messages. Predict the next word the way people actually text.
Reply with a JSON array of up to five strings, most likely first, and nothing else.
Slang, abbreviations and emoji are fine when natural.
Example: "see you" -> ["soon", "later", "tomorrow", "tonight", "then"]`,
}

// OpenAIOptions configures an OpenAI-compatible provider.
type OpenAIOptions struct {
	BaseURL     string
	APIKey      string
	Model       string
	Timeout     time.Duration
	MaxRetries  int
	MaxTokens   int
	Temperature float32
	RetryDelay  time.Duration
	HTTPClient  *http.Client
}

// OpenAI asks a chat-completions model for the next word.
type OpenAI struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
	attempts    uint
	retryDelay  time.Duration
}

func NewOpenAI(opts OpenAIOptions) (*OpenAI, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("suggestions api key is empty")
	}
	if strings.TrimSpace(opts.Model) == "" {
		return nil, errors.New("suggestions model is empty")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 80
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 100 * time.Millisecond
	}

	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = strings.TrimSuffix(opts.BaseURL, "/")
	}
	if opts.HTTPClient != nil {
		cfg.HTTPClient = opts.HTTPClient
	} else {
		cfg.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}

	return &OpenAI{
		client:      openai.NewClientWithConfig(cfg),
		model:       opts.Model,
		maxTokens:   opts.MaxTokens,
		temperature: opts.Temperature,
		attempts:    uint(opts.MaxRetries) + 1,
		retryDelay:  opts.RetryDelay,
	}, nil
}

func (p *OpenAI) Name() string { return "llm" }

func (p *OpenAI) Suggest(ctx context.Context, req Request) ([]Suggestion, error) {
	if err := checkRequest(req); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Text) == "" {
		return nil, ErrNoSuggestions
	}

	chatReq := openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompts[req.Context]},
			{Role: openai.ChatMessageRoleUser, Content: promptWindow(req.Text)},
		},
		Temperature:      p.temperature,
		MaxTokens:        p.maxTokens,
		TopP:             0.9,
		FrequencyPenalty: 0.4,
		PresencePenalty:  0.2,
	}

	var words []string
	err := retry.Do(
		func() error {
			resp, err := p.client.CreateChatCompletion(ctx, chatReq)
			if err != nil {
				if !retryable(err) {
					return retry.Unrecoverable(err)
				}
				return err
			}
			if len(resp.Choices) == 0 {
				return errors.New("completion had no choices")
			}
			words, err = parseReply(resp.Choices[0].Message.Content)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(p.attempts),
		retry.Delay(p.retryDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			redact.Debugf("suggestions retry attempt=%d err=%v", n+1, err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("llm suggestions: %w", err)
	}

	out := ranked(words, req.Context, 1.0, 0.1, req.Count())
	if len(out) == 0 {
		return nil, ErrNoSuggestions
	}
	return out, nil
}

// parseReply extracts the JSON array of candidates from a model reply. Prose
// around the array is tolerated.
func parseReply(content string) ([]string, error) {
	content = strings.TrimSpace(content)
	var doc any
	if err := json.Unmarshal([]byte(content), &doc); err != nil {
		raw := arrayRe.FindString(content)
		if raw == "" {
			return nil, fmt.Errorf("%w: reply has no json array", ErrNoSuggestions)
		}
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			return nil, fmt.Errorf("%w: decode reply: %v", ErrNoSuggestions, err)
		}
	}
	if err := replyValidator.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: reply does not match schema: %v", ErrNoSuggestions, err)
	}

	items := doc.([]any)
	words := make([]string, 0, len(items))
	for _, it := range items {
		words = append(words, it.(string))
	}
	return words, nil
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= 500
	}
	return true
}
