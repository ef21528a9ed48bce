// ABOUTME: OpenAI-backed implementation of the Client interface via the official SDK.
// ABOUTME: Maps the minimal Request shape onto chat completion params with a configurable default model.
package llm

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultModel is used when neither the client nor the request names one.
const DefaultModel = openai.ChatModelGPT4oMini

// OpenAIClient implements Client against the OpenAI chat completions API.
type OpenAIClient struct {
	client openai.Client
	model  string
}

// NewOpenAI creates a client with the given API key. model may be empty to
// use DefaultModel.
func NewOpenAI(apiKey, model string) *OpenAIClient {
	if model == "" {
		model = DefaultModel
	}
	return &OpenAIClient{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

// Complete sends a single-turn chat completion and returns the text of the
// first choice.
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (string, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	var messages []openai.ChatCompletionMessageParamUnion
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: messages,
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(req.MaxTokens)
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
