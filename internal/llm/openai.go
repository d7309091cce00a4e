package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/pagelens/pagelens/internal/extract"
)

// OpenAICompleter talks to the OpenAI chat completions API. With a custom
// endpoint it also covers OpenAI-compatible backends such as Qwen's
// DashScope gateway.
type OpenAICompleter struct {
	client   openai.Client
	provider string
}

// NewOpenAICompleter builds the transport from a provider config.
func NewOpenAICompleter(cfg extract.ProviderConfig) (*OpenAICompleter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("provider %s: api key is required", cfg.Name)
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		// The engine owns retries; the SDK must not add its own.
		option.WithMaxRetries(0),
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithBaseURL(cfg.Endpoint))
	}
	return &OpenAICompleter{
		client:   openai.NewClient(opts...),
		provider: cfg.Name,
	}, nil
}

// Complete issues one chat completion call.
func (c *OpenAICompleter) Complete(ctx context.Context, req extract.CompletionRequest) (extract.CompletionResponse, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(req.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(req.Prompt),
		},
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return extract.CompletionResponse{}, c.classify(err)
	}
	if len(resp.Choices) == 0 {
		return extract.CompletionResponse{}, extract.NewProviderError(c.provider, 0, errors.New("response contains no choices"))
	}
	return extract.CompletionResponse{
		Text:  resp.Choices[0].Message.Content,
		Model: resp.Model,
	}, nil
}

func (c *OpenAICompleter) classify(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return extract.NewProviderError(c.provider, apiErr.StatusCode, err)
	}
	return extract.NewProviderError(c.provider, 0, err)
}
