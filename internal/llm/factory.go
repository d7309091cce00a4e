// Package llm provides the provider transports behind the extraction engine.
// Each transport implements extract.Completer and reports failures as
// classified provider errors.
package llm

import (
	"fmt"

	"github.com/pagelens/pagelens/internal/extract"
)

// NewCompleter constructs the transport matching the provider's kind.
func NewCompleter(cfg extract.ProviderConfig) (extract.Completer, error) {
	switch cfg.Kind {
	case extract.ProviderKindOpenAI:
		return NewOpenAICompleter(cfg)
	case extract.ProviderKindAnthropic:
		return NewAnthropicCompleter(cfg)
	case extract.ProviderKindOllama:
		return NewOllamaCompleter(cfg)
	default:
		return nil, fmt.Errorf("provider %s: unsupported kind %q", cfg.Name, cfg.Kind)
	}
}

// BuildCompleters constructs one transport per registered provider, keyed by
// provider name as the engine expects.
func BuildCompleters(registry *extract.ProviderRegistry) (map[string]extract.Completer, error) {
	completers := make(map[string]extract.Completer)
	for _, cfg := range registry.List() {
		completer, err := NewCompleter(cfg)
		if err != nil {
			return nil, err
		}
		completers[cfg.Name] = completer
	}
	return completers, nil
}
