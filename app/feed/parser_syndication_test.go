package feed

import (
	"testing"
	"time"
)

const plainRSSFixture = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
	<title>Example Blog</title>
	<link>https://example.com</link>
	<item>
		<title>Hello World</title>
		<link>https://example.com/hello</link>
		<description>Short form</description>
		<pubDate>Mon, 04 Mar 2024 10:00:00 +0000</pubDate>
		<category>golang</category>
		<category>web</category>
	</item>
</channel>
</rss>`

const friendsFeedFixture = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"
	xmlns:content="http://purl.org/rss/1.0/modules/content/"
	xmlns:slash="http://purl.org/rss/1.0/modules/slash/"
	xmlns:friends="wordpress-plugin-friends:feed-additions:1">
<channel>
	<title>Alice (Friends)</title>
	<link>https://alice.example.com</link>
	<item>
		<title>Private thoughts</title>
		<link>https://alice.example.com/?p=17</link>
		<pubDate>Mon, 04 Mar 2024 10:00:00 +0000</pubDate>
		<content:encoded><![CDATA[<p>Only for friends.</p>]]></content:encoded>
		<slash:comments>4</slash:comments>
		<friends:post-id>17</friends:post-id>
		<friends:post-status>private</friends:post-status>
		<friends:post-format>status</friends:post-format>
		<friends:gravatar>https://secure.gravatar.com/avatar/abc</friends:gravatar>
		<friends:reaction slug="2764" count="2" you-reacted="1">bob, carol</friends:reaction>
		<friends:reaction slug="1f44d" count="1">dave</friends:reaction>
	</item>
</channel>
</rss>`

func TestSyndicationParser_Parse_PlainRSS(t *testing.T) {
	parser := NewSyndicationParser(nil, "test-agent")

	items, err := parser.parse([]byte(plainRSSFixture))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("Expected 1 item, got %d", len(items))
	}

	item := items[0]
	if item.Title != "Hello World" {
		t.Errorf("Expected title 'Hello World', got %q", item.Title)
	}
	if item.Permalink != "https://example.com/hello" {
		t.Errorf("Expected permalink, got %q", item.Permalink)
	}
	if item.Content != "Short form" {
		t.Errorf("Expected description as content fallback, got %q", item.Content)
	}
	expected := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	if !item.PublishedAt.Equal(expected) {
		t.Errorf("Expected published time %v, got %v", expected, item.PublishedAt)
	}
	if len(item.Categories) != 2 || item.Categories[0] != "golang" {
		t.Errorf("Expected categories preserved, got %v", item.Categories)
	}
	if item.PostStatus != "" || item.RemotePostID != "" {
		t.Errorf("A plain feed should carry no additions: %+v", item)
	}
}

func TestSyndicationParser_Parse_FeedAdditions(t *testing.T) {
	parser := NewSyndicationParser(nil, "test-agent")

	items, err := parser.parse([]byte(friendsFeedFixture))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("Expected 1 item, got %d", len(items))
	}

	item := items[0]
	if item.Content != "<p>Only for friends.</p>" {
		t.Errorf("Expected encoded content, got %q", item.Content)
	}
	if item.RemotePostID != "17" {
		t.Errorf("Expected remote post id 17, got %q", item.RemotePostID)
	}
	if item.PostStatus != "private" {
		t.Errorf("Expected private status, got %q", item.PostStatus)
	}
	if item.PostFormat != "status" {
		t.Errorf("Expected status format, got %q", item.PostFormat)
	}
	if item.Gravatar != "https://secure.gravatar.com/avatar/abc" {
		t.Errorf("Expected gravatar carried over, got %q", item.Gravatar)
	}
	if item.CommentCount != 4 {
		t.Errorf("Expected 4 comments, got %d", item.CommentCount)
	}

	if len(item.Reactions) != 2 {
		t.Fatalf("Expected 2 reactions, got %d", len(item.Reactions))
	}
	first := item.Reactions[0]
	if first.Slug != "2764" || first.Count != 2 || first.Usernames != "bob, carol" || !first.YouReacted {
		t.Errorf("First reaction fields wrong: %+v", first)
	}
	if item.Reactions[1].YouReacted {
		t.Errorf("Second reaction should not be marked as own")
	}
}

func TestSyndicationParser_Parse_InvalidFeed(t *testing.T) {
	parser := NewSyndicationParser(nil, "test-agent")

	if _, err := parser.parse([]byte("not a feed at all")); err == nil {
		t.Errorf("Expected an error for unparseable input")
	}
}

func TestSyndicationParser_DiscoverFeeds(t *testing.T) {
	parser := NewSyndicationParser(nil, "test-agent")

	content := `<html><head>
	<link rel="alternate" type="application/rss+xml" title="Posts" href="/feed/">
	<link rel="alternate" type="application/feed+json" href="/feed.json">
	<link rel="stylesheet" href="/style.css">
	</head><body></body></html>`

	discovered := parser.DiscoverFeeds(content, "https://example.com/")

	if len(discovered) != 1 {
		t.Fatalf("Expected only the xml feed discovered, got %v", discovered)
	}
	info, ok := discovered["https://example.com/feed/"]
	if !ok {
		t.Fatalf("Expected relative href resolved against the page URL")
	}
	if info.Type != "application/rss+xml" || info.Title != "Posts" {
		t.Errorf("Feed attributes wrong: %+v", info)
	}
}

func TestSyndicationParser_SupportsFeed(t *testing.T) {
	parser := NewSyndicationParser(nil, "test-agent")

	tests := []struct {
		url      string
		mimeType string
		expected int
	}{
		{"https://example.com/feed/", "application/rss+xml", 10},
		{"https://example.com/feed/", "application/atom+xml", 10},
		{"https://example.com/feed/", "text/xml", 5},
		{"https://example.com/feed/", "", 3},
		{"https://example.com/index.rss", "", 3},
		{"https://example.com/page", "", 0},
		{"https://example.com/page", "text/html", 0},
	}

	for _, test := range tests {
		if score := parser.SupportsFeed(test.url, test.mimeType, ""); score != test.expected {
			t.Errorf("SupportsFeed(%q, %q): expected %d, got %d", test.url, test.mimeType, test.expected, score)
		}
	}
}
