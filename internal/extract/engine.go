package extract

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// EngineConfig controls concurrency and retry behavior of the Engine.
type EngineConfig struct {
	// MaxConcurrency caps the in-flight provider calls. Zero means
	// unbounded.
	MaxConcurrency int
	// BatchTimeout bounds the wall-clock time of one Run call. Zero means
	// no budget; pending requests then run to their per-attempt timeouts.
	BatchTimeout time.Duration
	// DefaultTimeout applies to providers that configure no timeout.
	DefaultTimeout time.Duration
}

// Engine executes extraction requests concurrently against their providers,
// applying per-attempt timeouts and the retry policy, and always returns one
// outcome per request.
type Engine struct {
	completers map[string]Completer
	policy     *RetryPolicy
	cfg        EngineConfig
	clock      Clock
	gate       chan struct{}
	logger     *zap.Logger
}

// NewEngine constructs an Engine. The completers map is keyed by provider
// name and must cover every provider the Builder can resolve.
func NewEngine(
	completers map[string]Completer,
	policy *RetryPolicy,
	cfg EngineConfig,
	clock Clock,
	logger *zap.Logger,
) *Engine {
	if policy == nil {
		policy = NewRetryPolicy(0, "", 0)
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var gate chan struct{}
	if cfg.MaxConcurrency > 0 {
		gate = make(chan struct{}, cfg.MaxConcurrency)
	}
	return &Engine{
		completers: completers,
		policy:     policy,
		cfg:        cfg,
		clock:      clock,
		gate:       gate,
		logger:     logger,
	}
}

// Run executes all requests and returns outcomes in request order. A failed
// request never aborts its siblings; under a batch budget, requests still
// pending at expiry come back as timeout failures rather than being dropped.
func (e *Engine) Run(ctx context.Context, requests []Request) []Outcome {
	if e.cfg.BatchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.BatchTimeout)
		defer cancel()
	}

	outcomes := make([]Outcome, len(requests))
	var wg sync.WaitGroup
	for i, req := range requests {
		wg.Add(1)
		go func(i int, req Request) {
			defer wg.Done()
			outcomes[i] = e.runOne(ctx, req)
		}(i, req)
	}
	wg.Wait()
	return outcomes
}

func (e *Engine) runOne(ctx context.Context, req Request) Outcome {
	start := time.Now()

	if err := e.acquire(ctx); err != nil {
		return e.failure(req, 0, start, fmt.Errorf("batch budget exceeded: %w", err))
	}
	defer e.release()

	completer, ok := e.completers[req.Provider.Name]
	if !ok {
		return e.failure(req, 1, start, fmt.Errorf("no transport for provider %q", req.Provider.Name))
	}

	prompt := req.Mode.Render(req.Content)
	call := CompletionRequest{
		Prompt:      prompt,
		Model:       req.Provider.Model,
		MaxTokens:   req.Provider.MaxTokens,
		Temperature: req.Provider.Temperature,
	}

	var lastErr error
	for attempt := 1; attempt <= e.policy.MaxAttempts(); attempt++ {
		resp, err := e.attempt(ctx, completer, call, req.Provider)
		if err == nil {
			e.logger.Debug("extraction succeeded",
				zap.String("mode", req.Mode.Name),
				zap.String("provider", req.Provider.Name),
				zap.Int("attempt", attempt),
			)
			return Outcome{
				Mode:      req.Mode.Name,
				Provider:  req.Provider.Name,
				Status:    StatusSuccess,
				Result:    resp.Text,
				Attempts:  attempt,
				Latency:   time.Since(start),
				LatencyMs: time.Since(start).Milliseconds(),
				Timestamp: e.clock.Now(),
			}
		}
		lastErr = err
		if !e.policy.ShouldRetry(err, attempt) {
			return e.failure(req, attempt, start, err)
		}
		e.logger.Warn("extraction attempt failed, retrying",
			zap.String("mode", req.Mode.Name),
			zap.String("provider", req.Provider.Name),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if err := sleepCtx(ctx, e.policy.Backoff(attempt)); err != nil {
			return e.failure(req, attempt, start, fmt.Errorf("batch budget exceeded: %w", err))
		}
	}
	return e.failure(req, e.policy.MaxAttempts(), start, lastErr)
}

func (e *Engine) attempt(
	ctx context.Context,
	completer Completer,
	call CompletionRequest,
	provider ProviderConfig,
) (CompletionResponse, error) {
	timeout := provider.Timeout
	if timeout <= 0 {
		timeout = e.cfg.DefaultTimeout
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return completer.Complete(attemptCtx, call)
}

func (e *Engine) failure(req Request, attempts int, start time.Time, err error) Outcome {
	e.logger.Error("extraction failed",
		zap.String("mode", req.Mode.Name),
		zap.String("provider", req.Provider.Name),
		zap.Int("attempts", attempts),
		zap.Error(err),
	)
	return Outcome{
		Mode:      req.Mode.Name,
		Provider:  req.Provider.Name,
		Status:    StatusFailure,
		Error:     err.Error(),
		Attempts:  attempts,
		Latency:   time.Since(start),
		LatencyMs: time.Since(start).Milliseconds(),
		Timestamp: e.clock.Now(),
	}
}

func (e *Engine) acquire(ctx context.Context) error {
	if e.gate == nil {
		return nil
	}
	select {
	case e.gate <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) release() {
	if e.gate != nil {
		<-e.gate
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
