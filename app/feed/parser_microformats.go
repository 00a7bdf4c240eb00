package feed

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// MicroformatsParser reads h-feed / h-entry markup straight from HTML pages.
type MicroformatsParser struct {
	client    *http.Client
	userAgent string
}

func NewMicroformatsParser(client *http.Client, userAgent string) *MicroformatsParser {
	return &MicroformatsParser{client: client, userAgent: userAgent}
}

func (p *MicroformatsParser) Slug() string {
	return "microformats"
}

func (p *MicroformatsParser) SupportsFeed(url, mimeType, title string) int {
	switch mimeType {
	case "text/mf2+html":
		return 10
	case "text/html":
		return 4
	}
	return 0
}

// UpdateFeedDetails cleans up the page-provided title and autoselects a post
// format when the feed URL names one.
func (p *MicroformatsParser) UpdateFeedDetails(info *FeedInfo) {
	title := strings.ReplaceAll(info.Title, "&raquo; Feed", "")
	title = strings.ReplaceAll(title, "» Feed", "")
	info.Title = strings.TrimSpace(title)

	for _, format := range PostFormats {
		pattern := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(format) + `\b`)
		if pattern.MatchString(info.URL) {
			info.PostFormat = format
			break
		}
	}
}

func (p *MicroformatsParser) DiscoverFeeds(content, pageURL string) map[string]FeedInfo {
	discovered := make(map[string]FeedInfo)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return discovered
	}

	doc.Find("link[rel], a[rel]").Each(func(_ int, sel *goquery.Selection) {
		rels, _ := sel.Attr("rel")
		rel := ""
		for _, candidate := range strings.Fields(rels) {
			if candidate == "me" || candidate == "alternate" {
				rel = candidate
				break
			}
		}
		if rel == "" {
			return
		}
		href, _ := sel.Attr("href")
		feedURL := absoluteURL(href, pageURL)
		if feedURL == "" {
			return
		}
		if _, seen := discovered[feedURL]; seen {
			return
		}
		mimeType, _ := sel.Attr("type")
		discovered[feedURL] = FeedInfo{
			URL:   feedURL,
			Rel:   rel,
			Type:  mimeType,
			Title: strings.TrimSpace(sel.Text()),
		}
	})

	// A page that itself carries microformat items is a feed of its own.
	if items := parseMicroformats(doc, pageURL); len(items) > 0 {
		info := FeedInfo{
			URL:        pageURL,
			Rel:        "self",
			Type:       "text/html",
			PostFormat: "autodetect",
			Title:      items[0].PropertyValue("name"),
		}
		discovered[pageURL] = info
	}

	return discovered
}

func (p *MicroformatsParser) FetchFeed(ctx context.Context, url string) ([]Item, error) {
	data, err := fetchBody(ctx, p.client, url, p.userAgent)
	if err != nil {
		return nil, err
	}
	return p.parse(string(data), url)
}

func (p *MicroformatsParser) parse(content, url string) ([]Item, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("parse page %s: %w", url, err)
	}

	roots := parseMicroformats(doc, url)
	entries, feedAuthor := selectEntries(roots)

	items := make([]Item, 0, len(entries))
	for _, entry := range entries {
		if item, ok := buildEntryItem(entry, feedAuthor); ok {
			items = append(items, item)
		}
	}
	return items, nil
}

// selectEntries picks the list of h-entry objects out of the parsed tree.
// An explicit h-feed wins; a top-level item wrapping a feed or an entry list
// comes next and contributes its h-card as the feed author; the top-level
// items themselves are the fallback.
func selectEntries(roots []*mfItem) ([]*mfItem, *mfItem) {
	var feedAuthor *mfItem
	var entries []*mfItem
	var hFeed *mfItem

	for _, root := range roots {
		if root.HasType("h-feed") {
			hFeed = root
			break
		}
		if len(root.Children) == 0 {
			continue
		}
		first := root.Children[0]
		if first.HasType("h-feed") {
			hFeed = first
			if root.HasType("h-card") {
				feedAuthor = root
			}
			break
		}
		if first.HasType("h-entry") {
			entries = root.Children
			if root.HasType("h-card") {
				feedAuthor = root
			}
			break
		}
	}

	if hFeed != nil && len(hFeed.Children) > 0 {
		entries = hFeed.Children
	} else if len(entries) == 0 {
		entries = roots
	}

	filtered := make([]*mfItem, 0, len(entries))
	for _, entry := range entries {
		if entry.HasType("h-entry") {
			filtered = append(filtered, entry)
		}
	}
	return filtered, feedAuthor
}

var nonAlnum = regexp.MustCompile(`[^a-zA-Z0-9]`)

func buildEntryItem(entry *mfItem, feedAuthor *mfItem) (Item, bool) {
	if _, deleted := entry.Property("deleted"); deleted {
		return Item{}, false
	}
	published, ok := entry.Property("published")
	if !ok {
		return Item{}, false
	}
	publishedAt, ok := parseMfTime(published.Value)
	if !ok {
		return Item{}, false
	}

	item := Item{PublishedAt: publishedAt}

	if updated, ok := entry.Property("updated"); ok {
		if updatedAt, ok := parseMfTime(updated.Value); ok {
			item.UpdatedAt = &updatedAt
		}
	}

	item.Permalink = entry.PropertyValue("url")
	if uid := entry.PropertyValue("uid"); uid != "" {
		item.Permalink = uid
	}

	title := entry.PropertyValue("name")
	contentHTML := ""
	contentValue := ""
	if content, ok := entry.Property("content"); ok {
		contentHTML = content.HTML
		contentValue = content.Value
	}

	item.Content = photoContent(entry, contentHTML, &item)

	if contentHTML != "" {
		// The embedded content value matches the name when both sit on the
		// same element. Rebuild the title from the markup then so that image
		// alt text does not leak into it.
		if contentValue == title {
			title = stripTags(contentHTML)
		}
		item.Content += contentHTML

		if replyTo := entry.PropertyValue("in-reply-to"); replyTo != "" {
			item.Content += `<p><span class="in-reply-to"></span> <a href="` + replyTo + `">` + replyTo + `</a></p>`
		}
	}
	item.Title = strings.TrimSpace(title)

	for _, category := range entry.Properties["category"] {
		if category.Item != nil {
			item.Categories = append(item.Categories, renderHCard(category.Item, true))
		} else if category.Value != "" {
			item.Categories = append(item.Categories, strings.ReplaceAll(category.Value, ",", ""))
		}
	}

	if author, ok := entry.Property("author"); ok && author.Item != nil {
		item.AuthorName = author.Item.PropertyValue("name")
	} else if feedAuthor != nil {
		item.AuthorName = feedAuthor.PropertyValue("name")
	}

	return item, true
}

// photoContent renders the u-photo properties that the embedded content does
// not already show. Multiple photos collapse into a lightbox image set keyed
// by the first photo URL.
func photoContent(entry *mfItem, contentHTML string, item *Item) string {
	var photos []string
	for _, photo := range entry.Properties["photo"] {
		if photo.Value != "" && !strings.Contains(contentHTML, photo.Value) {
			photos = append(photos, photo.Value)
		}
	}
	if len(photos) == 0 {
		return ""
	}

	item.PostFormat = "photo"
	if len(photos) == 1 {
		return `<p><img src="` + photos[0] + `"></p>`
	}

	imageSetID := nonAlnum.ReplaceAllString(photos[0], "")
	var sb strings.Builder
	sb.WriteString("<p>")
	for i, photo := range photos {
		hidden := ""
		if i > 0 {
			hidden = `class="hidden" `
		}
		fmt.Fprintf(&sb, `<a href="%s" %sdata-lightbox="image-set-%s"><img src="%s"></a>`, photo, hidden, imageSetID, photo)
	}
	fmt.Fprintf(&sb, "<br><b>%d photos</b></p>", len(photos))
	return sb.String()
}

// renderHCard turns an embedded h-card into a link. Category cards carry a
// person-tag marker; commas are stripped since categories join on commas.
func renderHCard(card *mfItem, category bool) string {
	name := card.PropertyValue("name")
	link := card.PropertyValue("url")
	if link == "" {
		if name != "" {
			return strings.ReplaceAll(name, ",", "")
		}
		return ""
	}
	if name == "" {
		name = link
	} else {
		name = strings.ReplaceAll(name, ",", "")
	}
	personTag := ""
	if category {
		personTag = `<span class="person-tag"></span>`
	}
	return `<a class="h-card" href="` + link + `">` + personTag + name + `</a>`
}

func stripTags(fragment string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return fragment
	}
	return strings.TrimSpace(doc.Text())
}

var mfTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseMfTime(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	for _, layout := range mfTimeLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed.UTC(), true
		}
	}
	return time.Time{}, false
}
