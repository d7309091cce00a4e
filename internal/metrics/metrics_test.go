package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"just host", "example.com", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"ip address", "192.168.1.1", "192.168.1.1"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestInit(t *testing.T) {
	// Call Init multiple times to test idempotency.
	Init()
	Init()

	if crawlPagesTotal == nil || extractionsTotal == nil ||
		httpRequestsTotal == nil || httpRequestDurationSeconds == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}

	before := testutil.ToFloat64(extractionsTotal.WithLabelValues("content_summary", "openai-main", "success"))
	ObserveExtraction("content_summary", "openai-main", "success", 1, 800*time.Millisecond)
	after := testutil.ToFloat64(extractionsTotal.WithLabelValues("content_summary", "openai-main", "success"))
	if after != before+1 {
		t.Errorf("expected extraction counter to advance by 1, got %f -> %f", before, after)
	}

	ObserveCrawl("https://example.com/page", "success", 2048)
	if val := testutil.ToFloat64(crawlBytesTotal.WithLabelValues("example.com")); val < 2048 {
		t.Errorf("expected crawl bytes >= 2048, got %f", val)
	}
}
