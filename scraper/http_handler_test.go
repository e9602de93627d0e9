package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"craiseek/config"
)

func testFetchConfig() config.FetchConfig {
	return config.FetchConfig{
		Timeout:     2 * time.Second,
		MaxAttempts: 3,
		BaseDelay:   5 * time.Millisecond,
		MaxDelay:    20 * time.Millisecond,
	}
}

func newTestHandler(url string, fetchCfg config.FetchConfig) *HTTPHandler {
	srcCfg := &config.SourceConfig{ID: "test_source", URL: url}
	return NewHTTPHandler(srcCfg, fetchCfg, "craiseek-test/1.0")
}

func TestHTTPHandlerRecoversFromServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("<html><body>ok</body></html>"))
	}))
	defer server.Close()

	h := newTestHandler(server.URL, testFetchConfig())
	body, err := h.Fetch(context.Background())
	if err != nil {
		t.Fatalf("expected recovery on third attempt, got %v", err)
	}
	if len(body) == 0 {
		t.Fatal("expected response body")
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("expected 3 requests, got %d", got)
	}
}

func TestHTTPHandlerClientErrorIsNotRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	h := newTestHandler(server.URL, testFetchConfig())
	_, err := h.Fetch(context.Background())
	if err == nil {
		t.Fatal("expected an error for HTTP 404")
	}
	fe, ok := AsFetchError(err)
	if !ok {
		t.Fatalf("expected FetchError, got %T: %v", err, err)
	}
	if fe.Kind != FetchClientError {
		t.Fatalf("expected client_error, got %s", fe.Kind)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("client errors must not retry, got %d requests", got)
	}
}

func TestHTTPHandlerHonorsRetryAfter(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	// Retry-After asks for 1s but MaxDelay caps the wait well below that.
	cfg := testFetchConfig()
	h := newTestHandler(server.URL, cfg)

	start := time.Now()
	body, err := h.Fetch(context.Background())
	if err != nil {
		t.Fatalf("expected success after rate limit, got %v", err)
	}
	if string(body) != "ok" {
		t.Fatalf("unexpected body %q", body)
	}
	if elapsed := time.Since(start); elapsed >= time.Second {
		t.Fatalf("Retry-After wait not capped by MaxDelay, took %s", elapsed)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("expected 2 requests, got %d", got)
	}
}

func TestRetryAfterWaitParsesBothForms(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name   string
		header string
		want   time.Duration
	}{
		{"empty", "", 0},
		{"seconds", "3", 3 * time.Second},
		{"zero seconds", "0", 0},
		{"negative seconds", "-5", 0},
		{"http date", now.Add(90 * time.Second).Format(http.TimeFormat), 90 * time.Second},
		{"past http date", now.Add(-time.Minute).Format(http.TimeFormat), -time.Minute},
		{"garbage", "soon", 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := retryAfterWait(tc.header, now); got != tc.want {
				t.Fatalf("retryAfterWait(%q) = %s, want %s", tc.header, got, tc.want)
			}
		})
	}
}

func TestHTTPHandlerExhaustedRetriesReportLastError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	h := newTestHandler(server.URL, testFetchConfig())
	_, err := h.Fetch(context.Background())
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	fe, ok := AsFetchError(err)
	if !ok {
		t.Fatalf("expected FetchError, got %T: %v", err, err)
	}
	if fe.Kind != FetchServerError {
		t.Fatalf("expected server_error, got %s", fe.Kind)
	}
	if fe.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected status 502, got %d", fe.StatusCode)
	}
}

func TestHTTPHandlerCancelledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	h := newTestHandler(server.URL, testFetchConfig())
	if _, err := h.Fetch(ctx); err == nil {
		t.Fatal("expected error with cancelled context")
	}
}
