// Package extract implements the AI extraction pipeline: provider registry,
// prompt catalog, request builder, concurrent engine and result aggregation.
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ContentPlaceholder is the insertion point every prompt template must
// contain exactly once.
const ContentPlaceholder = "{content}"

// ProviderKind selects the transport implementation for a provider.
type ProviderKind string

const (
	ProviderKindOpenAI    ProviderKind = "openai"
	ProviderKindAnthropic ProviderKind = "anthropic"
	ProviderKindOllama    ProviderKind = "ollama"
)

// ProviderConfig describes one configured LLM backend. Configs are loaded at
// startup and never mutated afterwards; they are safe to share across
// concurrent extractions.
type ProviderConfig struct {
	Name        string
	Kind        ProviderKind
	Endpoint    string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
	Default     bool
}

// Mode is a named extraction task bound to a prompt template.
type Mode struct {
	Name     string
	Template string
}

// Render substitutes content into the mode's template.
func (m Mode) Render(content string) string {
	return strings.Replace(m.Template, ContentPlaceholder, content, 1)
}

// Request is one unit of work for the Engine: content to analyze, the mode
// to run and the provider to run it against.
type Request struct {
	Content  string
	Mode     Mode
	Provider ProviderConfig
}

// OutcomeStatus marks an Outcome as success or failure.
type OutcomeStatus string

const (
	StatusSuccess OutcomeStatus = "success"
	StatusFailure OutcomeStatus = "failure"
)

// Outcome is the terminal result of one extraction request, covering the
// whole attempt sequence.
type Outcome struct {
	Mode      string        `json:"mode"`
	Provider  string        `json:"provider"`
	Status    OutcomeStatus `json:"status"`
	Result    string        `json:"result,omitempty"`
	Error     string        `json:"error,omitempty"`
	Attempts  int           `json:"attempts"`
	Latency   time.Duration `json:"-"`
	LatencyMs int64         `json:"latency_ms"`
	Timestamp time.Time     `json:"timestamp"`
}

// Succeeded reports whether the outcome carries a result.
func (o Outcome) Succeeded() bool {
	return o.Status == StatusSuccess
}

// AggregatedResult maps mode name to its outcome, preserving the original
// request order. One outcome per requested mode, no omissions.
type AggregatedResult struct {
	order    []string
	outcomes map[string]Outcome
}

// Modes returns the mode names in request order.
func (r AggregatedResult) Modes() []string {
	return append([]string(nil), r.order...)
}

// Outcome returns the outcome for a mode.
func (r AggregatedResult) Outcome(mode string) (Outcome, bool) {
	o, ok := r.outcomes[mode]
	return o, ok
}

// Len returns the number of modes covered.
func (r AggregatedResult) Len() int {
	return len(r.order)
}

// Failed returns the names of modes whose outcome is a failure, in order.
func (r AggregatedResult) Failed() []string {
	var failed []string
	for _, mode := range r.order {
		if !r.outcomes[mode].Succeeded() {
			failed = append(failed, mode)
		}
	}
	return failed
}

// MarshalJSON emits a JSON object keyed by mode name in request order.
func (r AggregatedResult) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, mode := range r.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(mode)
		if err != nil {
			return nil, fmt.Errorf("marshal mode key: %w", err)
		}
		val, err := json.Marshal(r.outcomes[mode])
		if err != nil {
			return nil, fmt.Errorf("marshal outcome for %q: %w", mode, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// CompletionRequest is a single rendered call to a provider transport.
type CompletionRequest struct {
	Prompt      string
	Model       string
	MaxTokens   int
	Temperature float64
}

// CompletionResponse carries the provider's generated text.
type CompletionResponse struct {
	Text  string
	Model string
}

// Completer issues one chat/completion call against a provider backend.
// Implementations must be safe for concurrent use.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
