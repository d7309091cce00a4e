package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/pagelens/pagelens/internal/extract"
)

const anthropicDefaultMaxTokens = 4096

// AnthropicCompleter talks to the Anthropic messages API.
type AnthropicCompleter struct {
	client   anthropic.Client
	provider string
}

// NewAnthropicCompleter builds the transport from a provider config.
func NewAnthropicCompleter(cfg extract.ProviderConfig) (*AnthropicCompleter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("provider %s: api key is required", cfg.Name)
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithBaseURL(cfg.Endpoint))
	}
	return &AnthropicCompleter{
		client:   anthropic.NewClient(opts...),
		provider: cfg.Name,
	}, nil
}

// Complete issues one messages call and concatenates the text blocks.
func (c *AnthropicCompleter) Complete(ctx context.Context, req extract.CompletionRequest) (extract.CompletionResponse, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultMaxTokens
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return extract.CompletionResponse{}, c.classify(err)
	}

	var text string
	for _, block := range resp.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			text += tb.Text
		}
	}
	if text == "" {
		return extract.CompletionResponse{}, extract.NewProviderError(c.provider, 0, errors.New("response contains no text blocks"))
	}
	return extract.CompletionResponse{
		Text:  text,
		Model: string(resp.Model),
	}, nil
}

func (c *AnthropicCompleter) classify(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return extract.NewProviderError(c.provider, apiErr.StatusCode, err)
	}
	return extract.NewProviderError(c.provider, 0, err)
}
