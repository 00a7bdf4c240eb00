package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// JSONFeedParser handles the JSON Feed format (versions 1 and 1.1).
type JSONFeedParser struct {
	client    *http.Client
	userAgent string
}

func NewJSONFeedParser(client *http.Client, userAgent string) *JSONFeedParser {
	return &JSONFeedParser{client: client, userAgent: userAgent}
}

func (p *JSONFeedParser) Slug() string {
	return "jsonfeed"
}

func (p *JSONFeedParser) SupportsFeed(url, mimeType, title string) int {
	switch mimeType {
	case "application/feed+json":
		return 10
	case "application/json":
		return 5
	}
	if strings.HasSuffix(url, ".json") {
		return 3
	}
	return 0
}

func (p *JSONFeedParser) DiscoverFeeds(content, pageURL string) map[string]FeedInfo {
	discovered := make(map[string]FeedInfo)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return discovered
	}

	doc.Find("link[rel='alternate'][type='application/feed+json']").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		feedURL := absoluteURL(href, pageURL)
		if feedURL == "" {
			return
		}
		title, _ := sel.Attr("title")
		discovered[feedURL] = FeedInfo{
			URL:   feedURL,
			Rel:   "alternate",
			Type:  "application/feed+json",
			Title: title,
		}
	})

	return discovered
}

type jsonFeedDocument struct {
	Version string         `json:"version"`
	Title   string         `json:"title"`
	Items   []jsonFeedItem `json:"items"`
}

type jsonFeedItem struct {
	ID            string           `json:"id"`
	URL           string           `json:"url"`
	Title         string           `json:"title"`
	ContentHTML   string           `json:"content_html"`
	ContentText   string           `json:"content_text"`
	DatePublished string           `json:"date_published"`
	DateModified  string           `json:"date_modified"`
	Author        *jsonFeedAuthor  `json:"author"`
	Authors       []jsonFeedAuthor `json:"authors"`
	Tags          []string         `json:"tags"`
}

type jsonFeedAuthor struct {
	Name string `json:"name"`
}

func (p *JSONFeedParser) FetchFeed(ctx context.Context, url string) ([]Item, error) {
	data, err := fetchBody(ctx, p.client, url, p.userAgent)
	if err != nil {
		return nil, err
	}
	return p.parse(data)
}

func (p *JSONFeedParser) parse(data []byte) ([]Item, error) {
	var doc jsonFeedDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse json feed: %w", err)
	}
	if !strings.HasPrefix(doc.Version, "https://jsonfeed.org/version/") {
		return nil, fmt.Errorf("parse json feed: unrecognized version %q", doc.Version)
	}

	items := make([]Item, 0, len(doc.Items))
	for _, raw := range doc.Items {
		permalink := strings.TrimSpace(raw.URL)
		if permalink == "" {
			permalink = strings.TrimSpace(raw.ID)
		}

		item := Item{
			Permalink:  permalink,
			Title:      strings.TrimSpace(raw.Title),
			Content:    raw.ContentHTML,
			Categories: raw.Tags,
		}
		if item.Content == "" {
			item.Content = raw.ContentText
		}
		if published, ok := parseRFC3339(raw.DatePublished); ok {
			item.PublishedAt = published
		}
		if modified, ok := parseRFC3339(raw.DateModified); ok {
			item.UpdatedAt = &modified
			if item.PublishedAt.IsZero() {
				item.PublishedAt = modified
			}
		}
		if len(raw.Authors) > 0 {
			item.AuthorName = strings.TrimSpace(raw.Authors[0].Name)
		} else if raw.Author != nil {
			item.AuthorName = strings.TrimSpace(raw.Author.Name)
		}
		items = append(items, item)
	}
	return items, nil
}

func parseRFC3339(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, false
	}
	return parsed.UTC(), true
}
