package extract

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// FailureClass splits provider failures into retryable and terminal classes.
type FailureClass string

const (
	// FailureTransient covers timeouts, rate limits and transport errors.
	FailureTransient FailureClass = "transient"
	// FailurePermanent covers authentication and malformed-request errors.
	FailurePermanent FailureClass = "permanent"
)

// ProviderError is a classified failure returned by a provider transport.
type ProviderError struct {
	Provider   string
	StatusCode int
	Class      FailureClass
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider %s: status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError builds a ProviderError, deriving the class from the HTTP
// status when the caller does not know better.
func NewProviderError(provider string, statusCode int, err error) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		StatusCode: statusCode,
		Class:      ClassifyStatus(statusCode),
		Err:        err,
	}
}

// ClassifyStatus maps an HTTP status to a failure class. Rate limits and
// server-side errors are worth retrying; auth and validation errors are not.
func ClassifyStatus(status int) FailureClass {
	switch {
	case status == http.StatusTooManyRequests, status == http.StatusRequestTimeout:
		return FailureTransient
	case status >= 500:
		return FailureTransient
	case status == http.StatusUnauthorized,
		status == http.StatusForbidden,
		status == http.StatusBadRequest,
		status == http.StatusUnprocessableEntity:
		return FailurePermanent
	case status >= 400:
		return FailurePermanent
	default:
		return FailureTransient
	}
}

// RetryClassOf buckets a provider call error into a retry class. Permanent
// failures have no class and report false.
func RetryClassOf(err error) (RetryClass, bool) {
	if Classify(err) == FailurePermanent {
		return "", false
	}
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		switch {
		case provErr.StatusCode == http.StatusTooManyRequests:
			return RetryRateLimit, true
		case provErr.StatusCode == http.StatusRequestTimeout:
			return RetryTimeout, true
		case provErr.StatusCode >= 500:
			return RetryServerError, true
		default:
			return RetryTransport, true
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return RetryTimeout, true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return RetryTimeout, true
		}
		return RetryTransport, true
	}
	return RetryTransport, true
}

// Classify determines the failure class of an arbitrary provider call error.
// Unclassified errors default to transient so flaky transports get retried.
func Classify(err error) FailureClass {
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return provErr.Class
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return FailureTransient
	}
	return FailureTransient
}

// UnknownProviderError reports a provider name that is not registered.
type UnknownProviderError struct {
	Name string
}

func (e *UnknownProviderError) Error() string {
	if e.Name == "" {
		return "no provider requested and no default provider configured"
	}
	return fmt.Sprintf("unknown provider %q", e.Name)
}

// UnknownModeError reports a mode name absent from the catalog.
type UnknownModeError struct {
	Name string
}

func (e *UnknownModeError) Error() string {
	return fmt.Sprintf("unknown extraction mode %q", e.Name)
}

// AggregationInvariantError signals duplicate outcomes for the same mode.
// It indicates a bug in the Engine and should never occur in operation.
type AggregationInvariantError struct {
	Mode string
}

func (e *AggregationInvariantError) Error() string {
	return fmt.Sprintf("duplicate outcome for mode %q", e.Mode)
}
