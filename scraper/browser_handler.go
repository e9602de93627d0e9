package scraper

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"craiseek/config"
)

const defaultWaitSelector = "body"

// BrowserHandler renders a source in headless Chromium before extraction.
// Some marketplaces serve an empty shell to plain HTTP clients and only
// materialize listings after their scripts run; for those, handler: browser
// in the source config routes through here.
type BrowserHandler struct {
	cfg *config.SourceConfig

	mu          sync.Mutex
	pw          *playwright.Playwright
	browser     playwright.Browser
	initialized bool
}

func NewBrowserHandler(cfg *config.SourceConfig) *BrowserHandler {
	return &BrowserHandler{cfg: cfg}
}

func (h *BrowserHandler) ID() string {
	return h.cfg.ID
}

func (h *BrowserHandler) Fetch(ctx context.Context) ([]byte, error) {
	if err := h.ensureBrowser(); err != nil {
		return nil, &FetchError{Kind: FetchNetwork, URL: h.cfg.URL, Cause: err}
	}

	page, err := h.browser.NewPage(playwright.BrowserNewPageOptions{
		UserAgent: playwright.String("Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"),
	})
	if err != nil {
		return nil, &FetchError{Kind: FetchNetwork, URL: h.cfg.URL, Cause: err}
	}
	defer page.Close()

	if deadline, ok := ctx.Deadline(); ok {
		page.SetDefaultTimeout(float64(time.Until(deadline).Milliseconds()))
	}

	if _, err := page.Goto(h.cfg.URL, playwright.PageGotoOptions{
		Timeout:   playwright.Float(60000),
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	}); err != nil {
		return nil, &FetchError{Kind: FetchTimeout, URL: h.cfg.URL, Cause: err}
	}

	selector := h.cfg.WaitSelector
	if selector == "" {
		selector = defaultWaitSelector
	}
	if _, err := page.WaitForSelector(selector, playwright.PageWaitForSelectorOptions{
		Timeout: playwright.Float(30000),
	}); err != nil {
		// The page rendered but without results; hand whatever is there to
		// the tolerant parser rather than failing the cycle.
		log.Printf("Browser fetch %s: selector %q never appeared: %v", h.cfg.ID, selector, err)
	}

	html, err := page.Content()
	if err != nil {
		return nil, &FetchError{Kind: FetchNetwork, URL: h.cfg.URL, Cause: err}
	}

	return []byte(html), nil
}

func (h *BrowserHandler) ensureBrowser() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.initialized {
		return nil
	}

	var err error
	h.pw, err = playwright.Run()
	if err != nil {
		return fmt.Errorf("start playwright: %w", err)
	}

	h.browser, err = h.pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(true),
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
		},
	})
	if err != nil {
		h.pw.Stop()
		return fmt.Errorf("launch chromium: %w", err)
	}

	h.initialized = true
	return nil
}

func (h *BrowserHandler) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.initialized {
		return
	}
	if h.browser != nil {
		h.browser.Close()
	}
	if h.pw != nil {
		h.pw.Stop()
	}
	h.initialized = false
}
