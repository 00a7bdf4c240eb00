package feed

import (
	"testing"
	"time"
)

const jsonFeedFixture = `{
	"version": "https://jsonfeed.org/version/1.1",
	"title": "Example Blog",
	"items": [
		{
			"id": "https://example.com/1",
			"url": "https://example.com/first-post",
			"title": "First Post",
			"content_html": "<p>Hello</p>",
			"date_published": "2024-03-04T10:00:00Z",
			"date_modified": "2024-03-05T08:30:00Z",
			"authors": [{"name": "Alice"}],
			"tags": ["intro", "meta"]
		},
		{
			"id": "https://example.com/2",
			"content_text": "Plain text only",
			"date_published": "2024-03-01T00:00:00Z",
			"author": {"name": "Bob"}
		}
	]
}`

func TestJSONFeedParser_Parse(t *testing.T) {
	parser := NewJSONFeedParser(nil, "test-agent")

	items, err := parser.parse([]byte(jsonFeedFixture))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("Expected 2 items, got %d", len(items))
	}

	first := items[0]
	if first.Permalink != "https://example.com/first-post" {
		t.Errorf("Expected url as permalink, got %q", first.Permalink)
	}
	if first.Title != "First Post" || first.Content != "<p>Hello</p>" {
		t.Errorf("Item fields wrong: %+v", first)
	}
	published := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	if !first.PublishedAt.Equal(published) {
		t.Errorf("Expected published time %v, got %v", published, first.PublishedAt)
	}
	modified := time.Date(2024, 3, 5, 8, 30, 0, 0, time.UTC)
	if first.UpdatedAt == nil || !first.UpdatedAt.Equal(modified) {
		t.Errorf("Expected modified time carried over")
	}
	if first.AuthorName != "Alice" {
		t.Errorf("Expected the authors list preferred, got %q", first.AuthorName)
	}
	if len(first.Categories) != 2 || first.Categories[0] != "intro" {
		t.Errorf("Expected tags as categories, got %v", first.Categories)
	}

	second := items[1]
	if second.Permalink != "https://example.com/2" {
		t.Errorf("Expected id as permalink fallback, got %q", second.Permalink)
	}
	if second.Content != "Plain text only" {
		t.Errorf("Expected text content fallback, got %q", second.Content)
	}
	if second.AuthorName != "Bob" {
		t.Errorf("Expected legacy author field, got %q", second.AuthorName)
	}
}

func TestJSONFeedParser_Parse_UnrecognizedVersion(t *testing.T) {
	parser := NewJSONFeedParser(nil, "test-agent")

	if _, err := parser.parse([]byte(`{"version": "2.0", "items": []}`)); err == nil {
		t.Errorf("Expected an error for an unrecognized version")
	}
}

func TestJSONFeedParser_Parse_InvalidJSON(t *testing.T) {
	parser := NewJSONFeedParser(nil, "test-agent")

	if _, err := parser.parse([]byte("{")); err == nil {
		t.Errorf("Expected an error for malformed input")
	}
}

func TestJSONFeedParser_SupportsFeed(t *testing.T) {
	parser := NewJSONFeedParser(nil, "test-agent")

	tests := []struct {
		url      string
		mimeType string
		expected int
	}{
		{"https://example.com/feed.json", "application/feed+json", 10},
		{"https://example.com/feed", "application/json", 5},
		{"https://example.com/feed.json", "", 3},
		{"https://example.com/feed/", "", 0},
	}

	for _, test := range tests {
		if score := parser.SupportsFeed(test.url, test.mimeType, ""); score != test.expected {
			t.Errorf("SupportsFeed(%q, %q): expected %d, got %d", test.url, test.mimeType, test.expected, score)
		}
	}
}
