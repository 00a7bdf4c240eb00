package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const maxFeedSize = 5 * 1024 * 1024

// Parser normalizes one feed format into canonical items.
type Parser interface {
	// Slug names the backend. The value is persisted on subscriptions.
	Slug() string

	// SupportsFeed reports a confidence score for the given feed hints.
	// 0 means unsupported; higher values win when ranking backends.
	SupportsFeed(url, mimeType, title string) int

	// DiscoverFeeds extracts feed endpoints from an HTML page.
	DiscoverFeeds(content, pageURL string) map[string]FeedInfo

	// FetchFeed retrieves and parses the feed at url.
	FetchFeed(ctx context.Context, url string) ([]Item, error)
}

// FeedDetailer is implemented by parsers that can refine discovered feed
// metadata beyond what the page markup provides.
type FeedDetailer interface {
	UpdateFeedDetails(info *FeedInfo)
}

// Registry holds the known parser backends in registration order.
type Registry struct {
	parsers []Parser
}

func NewRegistry(parsers ...Parser) *Registry {
	return &Registry{parsers: parsers}
}

func (r *Registry) Parsers() []Parser {
	return r.parsers
}

// Get returns the parser registered under slug, or nil.
func (r *Registry) Get(slug string) Parser {
	for _, p := range r.parsers {
		if p.Slug() == slug {
			return p
		}
	}
	return nil
}

// Rank returns the slug of the backend best suited for the feed hints,
// or "" when no backend supports it.
func (r *Registry) Rank(url, mimeType, title string) string {
	best := ""
	bestScore := 0
	for _, p := range r.parsers {
		if score := p.SupportsFeed(url, mimeType, title); score > bestScore {
			best = p.Slug()
			bestScore = score
		}
	}
	return best
}

// fetchBody retrieves url with the shared client conventions: custom user
// agent, bounded body size, success status required.
func fetchBody(ctx context.Context, client *http.Client, url, userAgent string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: unexpected status %d", url, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedSize))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	return data, nil
}

func absoluteURL(href, base string) string {
	if href == "" {
		return ""
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return href
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return href
	}
	return baseURL.ResolveReference(ref).String()
}
