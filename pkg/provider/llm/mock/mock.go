// Package mock provides a scripted test double for the llm package.
package mock

import (
	"context"
	"sync"

	"github.com/skald-ai/skald/pkg/provider/llm"
)

// Compile-time interface assertion.
var _ llm.Client = (*Client)(nil)

// Client is a scripted llm.Client.
type Client struct {
	mu sync.Mutex

	// Result is returned by Chat when Err is nil.
	Result *llm.Result

	// Err, if non-nil, is returned by every Chat call.
	Err error

	// Delay, if non-nil, is waited on before returning; close it to
	// release blocked calls. Useful for cancellation tests.
	Delay chan struct{}

	// Calls records the messages of every Chat invocation.
	Calls [][]llm.Message

	// WarmupCalls counts Warmup invocations.
	WarmupCalls int
}

// Warmup records the call.
func (c *Client) Warmup() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.WarmupCalls++
}

// Chat records the call and returns Result, Err.
func (c *Client) Chat(ctx context.Context, messages []llm.Message) (*llm.Result, error) {
	c.mu.Lock()
	c.Calls = append(c.Calls, messages)
	delay := c.Delay
	c.mu.Unlock()

	if delay != nil {
		select {
		case <-delay:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return nil, c.Err
	}
	if c.Result != nil {
		r := *c.Result
		return &r, nil
	}
	return &llm.Result{Text: "ok"}, nil
}
