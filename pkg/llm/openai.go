package llm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/eunmann/shopsight/internal/logctx"
	"github.com/eunmann/shopsight/internal/metrics"
	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"
)

// ErrUnavailable reports that the remote model could not be used: the
// breaker is open, the request failed, or the reply was empty.
var ErrUnavailable = errors.New("llm unavailable")

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

// OpenAIOptions configures an OpenAI-compatible chat completions client.
type OpenAIOptions struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
	// FailureThreshold is the number of consecutive failures that opens the
	// breaker. Defaults to 3.
	FailureThreshold uint32
	// OpenTimeout is how long the breaker stays open. Defaults to 30s.
	OpenTimeout time.Duration
}

// OpenAI calls the chat completions endpoint behind a circuit breaker.
type OpenAI struct {
	opts OpenAIOptions
	http *http.Client
	cb   *gobreaker.CircuitBreaker[string]
}

// NewOpenAI creates a client.
func NewOpenAI(opts OpenAIOptions) *OpenAI {
	if opts.FailureThreshold == 0 {
		opts.FailureThreshold = 3
	}
	if opts.OpenTimeout == 0 {
		opts.OpenTimeout = 30 * time.Second
	}
	if opts.Timeout == 0 {
		opts.Timeout = 20 * time.Second
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")

	threshold := opts.FailureThreshold
	metrics.SetBreakerState(int(gobreaker.StateClosed))
	cb := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        "llm",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     opts.OpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.SetBreakerState(int(to))
		},
	})
	return &OpenAI{
		opts: opts,
		http: &http.Client{Timeout: opts.Timeout},
		cb:   cb,
	}
}

// State returns the breaker state.
func (c *OpenAI) State() gobreaker.State {
	return c.cb.State()
}

// Complete sends messages and returns the first choice's content. Failures
// wrap ErrUnavailable.
func (c *OpenAI) Complete(ctx context.Context, op string, messages []Message) (string, error) {
	out, err := c.cb.Execute(func() (string, error) {
		return c.complete(ctx, messages)
	})
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.RecordLLMCall(op, "rejected")
		return "", fmt.Errorf("%w: %w", ErrUnavailable, err)
	case err != nil:
		metrics.RecordLLMCall(op, "error")
		logger := logctx.FromContext(ctx)
		logger.Warn().Err(err).Str("operation", op).Msg("llm call failed")
		return "", fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	metrics.RecordLLMCall(op, "ok")
	return out, nil
}

func (c *OpenAI) complete(ctx context.Context, messages []Message) (string, error) {
	body, err := json.Marshal(chatRequest{Model: c.opts.Model, Messages: messages})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.opts.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		snippet := string(data)
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return "", fmt.Errorf("chat completions: status %d: %s", resp.StatusCode, snippet)
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", errors.New("chat completions: no choices")
	}
	content := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if content == "" {
		return "", errors.New("chat completions: empty content")
	}
	return content, nil
}
