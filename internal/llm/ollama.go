package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/pagelens/pagelens/internal/extract"
)

const ollamaDefaultEndpoint = "http://localhost:11434"

// OllamaCompleter talks to a local Ollama instance over its chat API.
type OllamaCompleter struct {
	endpoint string
	provider string
	client   *http.Client
}

// NewOllamaCompleter builds the transport from a provider config. Per-attempt
// timeouts come from the caller's context, so the HTTP client sets none.
func NewOllamaCompleter(cfg extract.ProviderConfig) (*OllamaCompleter, error) {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = ollamaDefaultEndpoint
	}
	return &OllamaCompleter{
		endpoint: strings.TrimRight(endpoint, "/"),
		provider: cfg.Name,
		client:   &http.Client{},
	}, nil
}

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
	Options  ollamaChatOptions   `json:"options"`
}

type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaChatResponse struct {
	Model   string            `json:"model"`
	Message ollamaChatMessage `json:"message"`
	Done    bool              `json:"done"`
}

// Complete issues one non-streaming chat call.
func (c *OllamaCompleter) Complete(ctx context.Context, req extract.CompletionRequest) (extract.CompletionResponse, error) {
	body, err := json.Marshal(ollamaChatRequest{
		Model: req.Model,
		Messages: []ollamaChatMessage{
			{Role: "user", Content: req.Prompt},
		},
		Stream: false,
		Options: ollamaChatOptions{
			Temperature: req.Temperature,
			NumPredict:  req.MaxTokens,
		},
	})
	if err != nil {
		return extract.CompletionResponse{}, fmt.Errorf("marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return extract.CompletionResponse{}, fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return extract.CompletionResponse{}, extract.NewProviderError(c.provider, 0, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return extract.CompletionResponse{}, extract.NewProviderError(
			c.provider,
			resp.StatusCode,
			fmt.Errorf("chat call failed: %s", strings.TrimSpace(string(detail))),
		)
	}

	var chatResp ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return extract.CompletionResponse{}, extract.NewProviderError(c.provider, 0, fmt.Errorf("decode chat response: %w", err))
	}
	return extract.CompletionResponse{
		Text:  chatResp.Message.Content,
		Model: chatResp.Model,
	}, nil
}
