package scraper

import (
	"context"

	"craiseek/config"
)

// Handler retrieves the raw search-results payload for one source. The
// payload goes through the shared parser regardless of how it was fetched.
// Close releases whatever the handler holds onto between fetches; for most
// handlers it is a no-op.
type Handler interface {
	ID() string
	Fetch(ctx context.Context) ([]byte, error)
	Close()
}

func NewHandler(srcCfg *config.SourceConfig, fetchCfg config.FetchConfig, userAgent string) Handler {
	switch srcCfg.Handler {
	case "browser":
		return NewBrowserHandler(srcCfg)
	default:
		return NewHTTPHandler(srcCfg, fetchCfg, userAgent)
	}
}
