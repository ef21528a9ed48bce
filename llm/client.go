// ABOUTME: Minimal chat-completion client surface consumed by the stage functions.
// ABOUTME: Stage bodies depend on this interface only, so tests swap in the Stub.
package llm

import "context"

// Request is one chat completion request.
type Request struct {
	System      string
	Prompt      string
	Model       string  // empty = client default
	Temperature float64 // 0 = provider default
	MaxTokens   int64   // 0 = provider default
}

// Client is the LLM surface the pipeline stages need: one prompt in, one
// text completion out. Provider errors are returned as errors, never panics.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}
