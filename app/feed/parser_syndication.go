package feed

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"github.com/mmcdole/gofeed/extensions"
)

// SyndicationParser handles RSS and Atom feeds, including the feed-additions
// namespace carried by authenticated friend feeds.
type SyndicationParser struct {
	client    *http.Client
	userAgent string
}

func NewSyndicationParser(client *http.Client, userAgent string) *SyndicationParser {
	return &SyndicationParser{client: client, userAgent: userAgent}
}

func (p *SyndicationParser) Slug() string {
	return "rss"
}

func (p *SyndicationParser) SupportsFeed(url, mimeType, title string) int {
	switch mimeType {
	case "application/rss+xml", "application/atom+xml":
		return 10
	case "application/xml", "text/xml":
		return 5
	}
	if strings.Contains(url, "/feed/") || strings.HasSuffix(url, "/feed") ||
		strings.Contains(url, "rss") || strings.Contains(url, "atom") {
		return 3
	}
	return 0
}

func (p *SyndicationParser) DiscoverFeeds(content, pageURL string) map[string]FeedInfo {
	discovered := make(map[string]FeedInfo)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return discovered
	}

	doc.Find("link[rel='alternate']").Each(func(_ int, sel *goquery.Selection) {
		mimeType, _ := sel.Attr("type")
		switch mimeType {
		case "application/rss+xml", "application/atom+xml", "application/xml", "text/xml":
		default:
			return
		}
		href, _ := sel.Attr("href")
		feedURL := absoluteURL(href, pageURL)
		if feedURL == "" {
			return
		}
		title, _ := sel.Attr("title")
		discovered[feedURL] = FeedInfo{
			URL:   feedURL,
			Rel:   "alternate",
			Type:  mimeType,
			Title: title,
		}
	})

	return discovered
}

func (p *SyndicationParser) FetchFeed(ctx context.Context, url string) ([]Item, error) {
	data, err := fetchBody(ctx, p.client, url, p.userAgent)
	if err != nil {
		return nil, err
	}
	return p.parse(data)
}

func (p *SyndicationParser) parse(data []byte) ([]Item, error) {
	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	items := make([]Item, 0, len(parsed.Items))
	for _, raw := range parsed.Items {
		item := Item{
			Permalink:  strings.TrimSpace(raw.Link),
			Title:      strings.TrimSpace(raw.Title),
			Content:    itemContent(raw),
			Categories: raw.Categories,
		}
		if raw.PublishedParsed != nil {
			item.PublishedAt = raw.PublishedParsed.UTC()
		} else if raw.UpdatedParsed != nil {
			item.PublishedAt = raw.UpdatedParsed.UTC()
		}
		if raw.UpdatedParsed != nil {
			updated := raw.UpdatedParsed.UTC()
			item.UpdatedAt = &updated
		}
		if len(raw.Authors) > 0 && raw.Authors[0] != nil {
			item.AuthorName = strings.TrimSpace(raw.Authors[0].Name)
		}
		applyFeedAdditions(&item, raw.Extensions)
		items = append(items, item)
	}
	return items, nil
}

func itemContent(raw *gofeed.Item) string {
	if raw.Content != "" {
		return raw.Content
	}
	return raw.Description
}

// applyFeedAdditions extracts the friends namespace elements present in
// authenticated feeds, plus the slash comment count.
func applyFeedAdditions(item *Item, exts ext.Extensions) {
	if comments, ok := firstExtension(exts, "slash", "comments"); ok {
		if count, err := strconv.Atoi(comments.Value); err == nil {
			item.CommentCount = count
		}
	}

	friends, ok := exts["friends"]
	if !ok {
		friends, ok = exts["com-wordpress"]
	}
	if !ok {
		return
	}

	if values := friends["gravatar"]; len(values) > 0 {
		item.Gravatar = values[0].Value
	}
	if values := friends["post-status"]; len(values) > 0 {
		item.PostStatus = values[0].Value
	}
	if values := friends["post-format"]; len(values) > 0 {
		item.PostFormat = ValidatePostFormat(values[0].Value)
	}
	if values := friends["post-id"]; len(values) > 0 {
		item.RemotePostID = values[0].Value
	}
	for _, reaction := range friends["reaction"] {
		summary := ReactionSummary{
			Slug:      reaction.Attrs["slug"],
			Usernames: reaction.Value,
		}
		if count, err := strconv.Atoi(reaction.Attrs["count"]); err == nil {
			summary.Count = count
		}
		summary.YouReacted = reaction.Attrs["you-reacted"] == "1"
		if summary.Slug != "" {
			item.Reactions = append(item.Reactions, summary)
		}
	}
}

func firstExtension(exts ext.Extensions, namespace, name string) (ext.Extension, bool) {
	ns, ok := exts[namespace]
	if !ok {
		return ext.Extension{}, false
	}
	values := ns[name]
	if len(values) == 0 {
		return ext.Extension{}, false
	}
	return values[0], true
}
