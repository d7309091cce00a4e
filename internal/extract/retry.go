package extract

import (
	"crypto/rand"
	"math"
	"math/big"
	"time"
)

// BackoffKind selects the delay curve between retry attempts.
type BackoffKind string

const (
	BackoffLinear      BackoffKind = "linear"
	BackoffExponential BackoffKind = "exponential"
)

// RetryClass names one transient failure category. Permanent failures
// (auth, malformed request) have no class and are never retried.
type RetryClass string

const (
	RetryTimeout     RetryClass = "timeout"
	RetryRateLimit   RetryClass = "rate_limit"
	RetryTransport   RetryClass = "transport"
	RetryServerError RetryClass = "server_error"
)

// DefaultRetryOn lists the classes retried when none are configured.
func DefaultRetryOn() []RetryClass {
	return []RetryClass{RetryTimeout, RetryRateLimit, RetryTransport, RetryServerError}
}

// RetryPolicy bounds the attempt count, spaces retries apart and decides
// which transient classes are worth another attempt. Permanent failures
// short-circuit regardless of configuration.
type RetryPolicy struct {
	maxAttempts int
	kind        BackoffKind
	baseDelay   time.Duration
	maxDelay    time.Duration
	retryOn     map[RetryClass]struct{}
}

// NewRetryPolicy builds a policy. Zero values fall back to 3 attempts with
// linear backoff starting at one second, capped at 30 seconds, retrying
// every transient class.
func NewRetryPolicy(maxAttempts int, kind BackoffKind, baseDelay time.Duration, retryOn ...RetryClass) *RetryPolicy {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if kind == "" {
		kind = BackoffLinear
	}
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	if len(retryOn) == 0 {
		retryOn = DefaultRetryOn()
	}
	classes := make(map[RetryClass]struct{}, len(retryOn))
	for _, class := range retryOn {
		classes[class] = struct{}{}
	}
	return &RetryPolicy{
		maxAttempts: maxAttempts,
		kind:        kind,
		baseDelay:   baseDelay,
		maxDelay:    30 * time.Second,
		retryOn:     classes,
	}
}

// MaxAttempts returns the attempt bound.
func (p *RetryPolicy) MaxAttempts() int {
	return p.maxAttempts
}

// ShouldRetry decides whether another attempt is warranted after err.
func (p *RetryPolicy) ShouldRetry(err error, attempt int) bool {
	if err == nil {
		return false
	}
	if attempt >= p.maxAttempts {
		return false
	}
	class, transient := RetryClassOf(err)
	if !transient {
		return false
	}
	_, ok := p.retryOn[class]
	return ok
}

// Backoff returns the wait before the attempt following attempt (1-based).
// Exponential backoff is jittered to avoid thundering herds.
func (p *RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	switch p.kind {
	case BackoffExponential:
		delay := float64(p.baseDelay) * math.Pow(2, float64(attempt-1))
		if delay > float64(p.maxDelay) {
			delay = float64(p.maxDelay)
		}
		half := time.Duration(delay / 2)
		return half + randomJitter(half)
	default:
		delay := p.baseDelay * time.Duration(attempt)
		if delay > p.maxDelay {
			delay = p.maxDelay
		}
		return delay
	}
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	bound := big.NewInt(int64(limit))
	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
