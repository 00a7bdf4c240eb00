package feed

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// RelFriendsBaseURL is the link relation a peer installation uses to
// advertise its protocol endpoint.
const RelFriendsBaseURL = "friends-base-url"

// Discovery finds the feeds and the protocol endpoint offered by a site.
type Discovery struct {
	client    *http.Client
	registry  *Registry
	userAgent string
}

func NewDiscovery(client *http.Client, registry *Registry, userAgent string) *Discovery {
	return &Discovery{client: client, registry: registry, userAgent: userAgent}
}

// DiscoverFeeds fetches url and returns every feed endpoint the page
// advertises, keyed by feed URL. Each entry is assigned the best suited
// parser backend; a protocol endpoint link yields an entry with the
// friends pseudo-parser.
func (d *Discovery) DiscoverFeeds(ctx context.Context, url string) (map[string]FeedInfo, error) {
	data, err := fetchBody(ctx, d.client, url, d.userAgent)
	if err != nil {
		return nil, err
	}
	content := string(data)

	discovered := make(map[string]FeedInfo)
	for _, parser := range d.registry.Parsers() {
		for feedURL, info := range parser.DiscoverFeeds(content, url) {
			if existing, ok := discovered[feedURL]; ok {
				if existing.Type == "" {
					existing.Type = info.Type
				}
				if existing.Title == "" {
					existing.Title = info.Title
				}
				discovered[feedURL] = existing
				continue
			}
			discovered[feedURL] = info
		}
	}

	if restURL := findFriendsBaseURL(content, url); restURL != "" {
		discovered[restURL] = FeedInfo{
			URL:    restURL,
			Rel:    RelFriendsBaseURL,
			Parser: ParserFriends,
		}
	}

	for feedURL, info := range discovered {
		if info.Parser != "" {
			continue
		}
		info.Parser = d.registry.Rank(info.URL, info.Type, info.Title)
		if detailer, ok := d.registry.Get(info.Parser).(FeedDetailer); ok {
			detailer.UpdateFeedDetails(&info)
		}
		discovered[feedURL] = info
	}

	return discovered, nil
}

// DiscoverRestURL returns the protocol endpoint of the site at url, or an
// error when the site does not expose one.
func (d *Discovery) DiscoverRestURL(ctx context.Context, url string) (string, error) {
	feeds, err := d.DiscoverFeeds(ctx, url)
	if err != nil {
		return "", err
	}
	if restURL := RestURL(feeds); restURL != "" {
		return restURL, nil
	}
	return "", fmt.Errorf("no protocol endpoint advertised at %s", url)
}

// RestURL picks the protocol endpoint out of a discovery result.
func RestURL(feeds map[string]FeedInfo) string {
	var candidates []string
	for feedURL, info := range feeds {
		if info.Parser == ParserFriends {
			candidates = append(candidates, feedURL)
		}
	}
	if len(candidates) == 0 {
		return ""
	}
	sort.Strings(candidates)
	return candidates[0]
}

func findFriendsBaseURL(content, pageURL string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return ""
	}
	href, _ := doc.Find("link[rel='" + RelFriendsBaseURL + "']").First().Attr("href")
	return absoluteURL(href, pageURL)
}
