// Package llm wraps the genkit completion API behind an explicitly
// constructed client. No hidden module-level provider singletons: the
// client is built once at startup and injected, so tests substitute fakes
// per test case.
package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// Request describes one completion call. Messages carry the conversation
// including any tool-request/tool-response rounds; Stream, when non-nil,
// receives content deltas as the provider produces them.
type Request struct {
	Model       string
	System      string
	Messages    []*ai.Message
	Tools       []ai.ToolRef
	Temperature float32

	// ReturnToolRequests makes the provider hand tool calls back instead
	// of resolving them internally; the orchestration loop dispatches
	// them itself so policy is enforced outside the model runtime.
	ReturnToolRequests bool

	Stream ai.ModelStreamCallback
}

// Client executes completions against the configured genkit instance.
//
// Client is safe for concurrent use by multiple goroutines.
type Client struct {
	g       *genkit.Genkit
	limiter *rate.Limiter
	timeout time.Duration
}

// NewClient creates a completion client. limiter may be nil to disable
// proactive rate limiting; timeout <= 0 disables the per-call deadline.
func NewClient(g *genkit.Genkit, limiter *rate.Limiter, timeout time.Duration) (*Client, error) {
	if g == nil {
		return nil, fmt.Errorf("genkit instance is required")
	}
	return &Client{g: g, limiter: limiter, timeout: timeout}, nil
}

// Complete performs one completion call, honoring the client's rate
// limiter and per-call timeout.
func (c *Client) Complete(ctx context.Context, req Request) (*ai.ModelResponse, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("waiting for rate limiter: %w", err)
		}
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	opts := []ai.GenerateOption{
		ai.WithModelName(req.Model),
		ai.WithMessages(req.Messages...),
		ai.WithConfig(&genai.GenerateContentConfig{
			Temperature: genai.Ptr(req.Temperature),
		}),
	}
	if req.System != "" {
		opts = append(opts, ai.WithSystem(req.System))
	}
	if len(req.Tools) > 0 {
		opts = append(opts, ai.WithTools(req.Tools...))
	}
	if req.ReturnToolRequests {
		opts = append(opts, ai.WithReturnToolRequests(true))
	}
	if req.Stream != nil {
		opts = append(opts, ai.WithStreaming(req.Stream))
	}

	resp, err := genkit.Generate(ctx, c.g, opts...)
	if err != nil {
		return nil, fmt.Errorf("generating completion: %w", err)
	}
	return resp, nil
}
