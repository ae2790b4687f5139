// Package openrouter provides an llm.Client that speaks the OpenAI-style
// streaming chat completion dialect against an OpenRouter-compatible
// endpoint.
//
// Responses are consumed as server-sent events: "data: <json>" lines up to
// the "data: [DONE]" terminator. Content deltas are accumulated into the
// final text; the time to first content delta is recorded as TTFT.
//
// Failed attempts are retried on network errors and on HTTP 429/5xx with
// exponential backoff plus jitter. Other HTTP statuses fail immediately.
package openrouter

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/skald-ai/skald/pkg/provider/llm"
)

// Compile-time interface assertion.
var _ llm.Client = (*Client)(nil)

const (
	// APIKeyEnv is the environment variable holding the API key.
	APIKeyEnv = "OPENROUTER_API_KEY"

	defaultAPIBase        = "https://openrouter.ai/api/v1"
	defaultTimeout        = 30 * time.Second
	defaultMaxRetries     = 2
	defaultRetryBaseDelay = 250 * time.Millisecond
	minRetryBaseDelay     = 50 * time.Millisecond
	warmupTimeout         = 10 * time.Second

	completionsEndpoint = "/chat/completions"
	ssePrefix           = "data: "
	sseDone             = "[DONE]"
)

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithAPIBase sets the API base URL. Defaults to the OpenRouter public API.
func WithAPIBase(base string) Option {
	return func(c *Client) { c.apiBase = strings.TrimRight(base, "/") }
}

// WithAPIKey sets the API key explicitly instead of reading APIKeyEnv.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithMaxTokens caps the response length. 0 leaves the model default.
func WithMaxTokens(n int) Option {
	return func(c *Client) { c.maxTokens = n }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(c *Client) { c.temperature = &t }
}

// WithWebSearch enables the OpenRouter web plugin on every request.
func WithWebSearch(enabled bool) Option {
	return func(c *Client) { c.webSearch = enabled }
}

// WithTimeout sets the per-attempt request timeout. Defaults to 30 s.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithMaxRetries sets how many additional attempts follow a retryable
// failure. Defaults to 2 (three attempts total).
func WithMaxRetries(n int) Option {
	return func(c *Client) { c.maxRetries = n }
}

// WithRetryBaseDelay sets the backoff base delay, floored at 50 ms.
// Attempt n sleeps base × 2^n plus up to 25% jitter.
func WithRetryBaseDelay(d time.Duration) Option {
	return func(c *Client) {
		if d < minRetryBaseDelay {
			d = minRetryBaseDelay
		}
		c.retryBaseDelay = d
	}
}

// Client implements llm.Client against an OpenRouter-compatible endpoint.
type Client struct {
	apiBase        string
	apiKey         string
	model          string
	maxTokens      int
	temperature    *float64
	webSearch      bool
	maxRetries     int
	retryBaseDelay time.Duration
	httpClient     *http.Client
}

// New creates a Client for the given model. The API key is read from
// APIKeyEnv unless WithAPIKey overrides it.
func New(model string, opts ...Option) (*Client, error) {
	if model == "" {
		return nil, errors.New("openrouter: model must not be empty")
	}
	c := &Client{
		apiBase:        defaultAPIBase,
		apiKey:         os.Getenv(APIKeyEnv),
		model:          model,
		maxRetries:     defaultMaxRetries,
		retryBaseDelay: defaultRetryBaseDelay,
		httpClient:     &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// ---- request/response types ----

// chatRequest is the JSON body of POST /chat/completions.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []llm.Message `json:"messages"`
	Stream      bool          `json:"stream"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
	Plugins     []plugin      `json:"plugins,omitempty"`
}

type plugin struct {
	ID string `json:"id"`
}

// sseChunk is one decoded "data:" event.
type sseChunk struct {
	Model   string `json:"model"`
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// statusError marks an HTTP error status so retry logic can classify it.
type statusError struct {
	status int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("openrouter: HTTP status %d", e.status)
}

// retryable reports whether an attempt failure warrants another attempt:
// network errors, HTTP 429, and HTTP 5xx.
func retryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.status == http.StatusTooManyRequests || se.status >= 500
	}
	// Everything else coming out of an attempt is transport-level.
	return true
}

// Chat implements llm.Client.
func (c *Client) Chat(ctx context.Context, messages []llm.Message) (*llm.Result, error) {
	body, err := json.Marshal(c.buildRequest(messages, 0))
	if err != nil {
		return nil, fmt.Errorf("openrouter: marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		result, err := c.attempt(ctx, body)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !retryable(err) || attempt == c.maxRetries {
			break
		}
		delay := c.retryBaseDelay * (1 << attempt)
		delay += time.Duration(rand.Float64() * 0.25 * float64(delay))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, fmt.Errorf("openrouter: chat cancelled: %w", ctx.Err())
		}
	}
	return nil, fmt.Errorf("openrouter: chat: %w", lastErr)
}

// attempt performs one streaming request and consumes the SSE body.
func (c *Client) attempt(ctx context.Context, body []byte) (*llm.Result, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+completionsEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("POST %s: %w", completionsEndpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &statusError{status: resp.StatusCode}
	}

	var (
		text  strings.Builder
		model string
		ttft  time.Duration
	)
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, ssePrefix) {
			continue
		}
		payload := strings.TrimPrefix(line, ssePrefix)
		if payload == sseDone {
			break
		}
		var chunk sseChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			continue
		}
		if chunk.Model != "" {
			model = chunk.Model
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		if delta := chunk.Choices[0].Delta.Content; delta != "" {
			if text.Len() == 0 {
				ttft = time.Since(start)
			}
			text.WriteString(delta)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read stream: %w", err)
	}

	elapsed := time.Since(start)
	if ttft == 0 {
		ttft = elapsed
	}
	if model == "" {
		model = c.model
	}
	return &llm.Result{
		Text:     strings.TrimSpace(text.String()),
		Model:    model,
		ElapsedS: elapsed.Seconds(),
		TTFTS:    ttft.Seconds(),
	}, nil
}

// buildRequest assembles the request body. maxTokens overrides the
// configured cap when positive (used by Warmup).
func (c *Client) buildRequest(messages []llm.Message, maxTokens int) chatRequest {
	req := chatRequest{
		Model:       c.model,
		Messages:    messages,
		Stream:      true,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	}
	if maxTokens > 0 {
		req.MaxTokens = maxTokens
	}
	if c.webSearch {
		req.Plugins = []plugin{{ID: "web"}}
	}
	return req
}

// Warmup implements llm.Client: a background one-token request that primes
// the upstream connection. All errors are swallowed.
func (c *Client) Warmup() {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), warmupTimeout)
		defer cancel()

		body, err := json.Marshal(c.buildRequest([]llm.Message{{Role: llm.RoleUser, Content: "ping"}}, 1))
		if err != nil {
			return
		}
		result, err := c.attempt(ctx, body)
		_ = result
		_ = err
	}()
}
