package webcontext

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Gather limits. Context feeds LLM prompts, so the total is capped well
// below any model's window.
const (
	defaultMaxPerPage = 6000
	defaultMaxTotal   = 12000
	defaultTimeout    = 20 * time.Second
	defaultMaxBody    = 2 * 1024 * 1024
)

// fetchFunc retrieves one page. Swappable in tests.
type fetchFunc func(ctx context.Context, url string) ([]byte, error)

// Gatherer assembles background text about a vehicle from a set of URLs.
type Gatherer struct {
	fetch      fetchFunc
	extractor  *Extractor
	logger     *slog.Logger
	maxPerPage int
	maxTotal   int
}

// GathererOption configures a Gatherer.
type GathererOption func(*Gatherer)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) GathererOption {
	return func(g *Gatherer) { g.logger = logger }
}

// WithLimits overrides the per-page and total output caps.
func WithLimits(perPage, total int) GathererOption {
	return func(g *Gatherer) {
		g.maxPerPage = perPage
		g.maxTotal = total
	}
}

// WithFetcher replaces the default fetcher, so callers can configure
// timeouts and body limits.
func WithFetcher(f *Fetcher) GathererOption {
	return func(g *Gatherer) { g.fetch = f.Fetch }
}

// withFetch replaces the fetch function directly, for tests.
func withFetch(f fetchFunc) GathererOption {
	return func(g *Gatherer) { g.fetch = f }
}

// NewGatherer creates a Gatherer with a hardened fetcher.
func NewGatherer(opts ...GathererOption) *Gatherer {
	fetcher := NewFetcher(defaultTimeout, defaultMaxBody)
	g := &Gatherer{
		fetch:      fetcher.Fetch,
		extractor:  NewExtractor(),
		logger:     slog.Default(),
		maxPerPage: defaultMaxPerPage,
		maxTotal:   defaultMaxTotal,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Gather fetches each URL and returns the combined readable text, labeled
// per source. It never returns an error: pages that fail to fetch or parse
// are logged and skipped, and an empty string means no context was
// available.
func (g *Gatherer) Gather(ctx context.Context, urls []string) string {
	var b strings.Builder
	for _, u := range urls {
		if b.Len() >= g.maxTotal {
			break
		}

		body, err := g.fetch(ctx, u)
		if err != nil {
			g.logger.Warn("context fetch failed, skipping source", "url", u, "error", err)
			continue
		}

		title, text, err := g.extractor.Extract(u, body)
		if err != nil || strings.TrimSpace(text) == "" {
			g.logger.Warn("context extraction yielded nothing, skipping source", "url", u, "error", err)
			continue
		}

		if len(text) > g.maxPerPage {
			text = text[:g.maxPerPage]
		}

		if b.Len() > 0 {
			b.WriteString("\n\n---\n\n")
		}
		if title != "" {
			fmt.Fprintf(&b, "Source: %s (%s)\n\n", title, u)
		} else {
			fmt.Fprintf(&b, "Source: %s\n\n", u)
		}
		b.WriteString(text)
	}

	out := b.String()
	if len(out) > g.maxTotal {
		out = out[:g.maxTotal]
	}
	return out
}
