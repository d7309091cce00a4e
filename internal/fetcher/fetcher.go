// Package fetcher defines the page retrieval contract shared by the HTTP and
// headless implementations.
package fetcher

import (
	"context"
	"net/http"
	"time"
)

// Page is the raw result of fetching one URL.
type Page struct {
	// URL is the address that was requested.
	URL string
	// FinalURL is the address the fetch ended on after redirects.
	FinalURL string
	// StatusCode is the HTTP status of the document response.
	StatusCode int
	// Headers are the response headers of the document.
	Headers http.Header
	// HTML is the raw document body.
	HTML []byte
	// Duration is the wall-clock fetch time.
	Duration time.Duration
	// UsedHeadless reports whether a browser rendered the page.
	UsedHeadless bool
}

// Fetcher retrieves a single page. Implementations must be safe for
// concurrent use.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Page, error)
}
