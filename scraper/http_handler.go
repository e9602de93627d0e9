package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	retry "github.com/codeGROOVE-dev/retry-go"

	"craiseek/config"
)

// HTTPHandler fetches a source page over plain HTTP with bounded retries.
// The retry schedule is exponential with jitter so that a fleet of pollers
// doesn't hammer a recovering upstream in lockstep.
type HTTPHandler struct {
	cfg      *config.SourceConfig
	fetchCfg config.FetchConfig
	client   *http.Client
	ua       string
}

func NewHTTPHandler(cfg *config.SourceConfig, fetchCfg config.FetchConfig, userAgent string) *HTTPHandler {
	return &HTTPHandler{
		cfg:      cfg,
		fetchCfg: fetchCfg,
		client:   &http.Client{Timeout: fetchCfg.Timeout},
		ua:       userAgent,
	}
}

func (h *HTTPHandler) ID() string {
	return h.cfg.ID
}

func (h *HTTPHandler) Close() {}

func (h *HTTPHandler) Fetch(ctx context.Context) ([]byte, error) {
	var body []byte
	var lastErr *FetchError

	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.cfg.URL, http.NoBody)
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("create request: %w", err))
			}
			req.Header.Set("User-Agent", h.ua)
			req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
			req.Header.Set("Accept-Language", "en-US,en;q=0.9")

			start := time.Now()
			resp, err := h.client.Do(req)
			if err != nil {
				lastErr = classifyTransport(h.cfg.URL, err)
				log.Printf("Fetch %s failed after %s: %v", h.cfg.ID, time.Since(start).Round(time.Millisecond), err)
				return lastErr
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				lastErr = classifyStatus(h.cfg.URL, resp.StatusCode)
				log.Printf("Fetch %s: HTTP %d (%s)", h.cfg.ID, resp.StatusCode, lastErr.Kind)

				if lastErr.Kind == FetchRateLimited {
					h.honorRetryAfter(ctx, resp.Header.Get("Retry-After"))
				}
				if !lastErr.Retryable() {
					return retry.Unrecoverable(lastErr)
				}
				return lastErr
			}

			body, err = io.ReadAll(resp.Body)
			if err != nil {
				lastErr = &FetchError{Kind: FetchNetwork, URL: h.cfg.URL, Cause: err}
				return lastErr
			}
			return nil
		},
		retry.Attempts(h.fetchCfg.MaxAttempts),
		retry.Delay(h.fetchCfg.BaseDelay),
		retry.MaxDelay(h.fetchCfg.MaxDelay),
		retry.MaxJitter(h.fetchCfg.BaseDelay/2),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			log.Printf("Retrying fetch for %s (attempt %d): %v", h.cfg.ID, n+1, err)
		}),
		retry.RetryIf(func(err error) bool {
			if fe, ok := AsFetchError(err); ok {
				return fe.Retryable()
			}
			return true
		}),
	)

	if err != nil {
		if lastErr != nil {
			return nil, lastErr
		}
		return nil, &FetchError{Kind: FetchNetwork, URL: h.cfg.URL, Cause: err}
	}
	return body, nil
}

// honorRetryAfter sleeps out the server's rate-limit hint before the retry
// schedule takes over. Capped by MaxDelay; a malicious header must not park
// the cycle forever.
func (h *HTTPHandler) honorRetryAfter(ctx context.Context, header string) {
	wait := retryAfterWait(header, time.Now())
	if wait <= 0 {
		return
	}
	if wait > h.fetchCfg.MaxDelay {
		wait = h.fetchCfg.MaxDelay
	}
	log.Printf("Rate limited by %s, honoring Retry-After of %s", h.cfg.ID, wait)

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// retryAfterWait reads both header forms: delta-seconds and HTTP-date.
// Unparseable or past values come back as zero.
func retryAfterWait(header string, now time.Time) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	when, err := http.ParseTime(header)
	if err != nil {
		return 0
	}
	return when.Sub(now)
}

func classifyStatus(url string, status int) *FetchError {
	fe := &FetchError{URL: url, StatusCode: status}
	switch {
	case status == http.StatusTooManyRequests:
		fe.Kind = FetchRateLimited
	case status >= 500:
		fe.Kind = FetchServerError
	case status >= 400:
		fe.Kind = FetchClientError
	default:
		fe.Kind = FetchServerError
	}
	return fe
}

func classifyTransport(url string, err error) *FetchError {
	fe := &FetchError{URL: url, Cause: err}
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		fe.Kind = FetchTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		fe.Kind = FetchTimeout
	default:
		fe.Kind = FetchNetwork
	}
	return fe
}
