package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func testRegistry(client *http.Client) *Registry {
	return NewRegistry(
		NewSyndicationParser(client, "test-agent"),
		NewJSONFeedParser(client, "test-agent"),
		NewMicroformatsParser(client, "test-agent"),
	)
}

func TestDiscovery_DiscoverFeeds(t *testing.T) {
	page := `<html><head>
	<link rel="friends-base-url" href="/wp-json/friends/v1">
	<link rel="alternate" type="application/rss+xml" title="Posts" href="/feed/">
	<link rel="alternate" type="application/feed+json" href="/feed.json">
	</head><body></body></html>`

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(page))
	}))
	defer server.Close()

	discovery := NewDiscovery(server.Client(), testRegistry(server.Client()), "test-agent")

	feeds, err := discovery.DiscoverFeeds(context.Background(), server.URL+"/")
	if err != nil {
		t.Fatalf("DiscoverFeeds failed: %v", err)
	}

	rss, ok := feeds[server.URL+"/feed/"]
	if !ok {
		t.Fatalf("Expected the rss feed discovered, got %v", feeds)
	}
	if rss.Parser != "rss" {
		t.Errorf("Expected the rss backend assigned, got %q", rss.Parser)
	}
	if rss.Title != "Posts" {
		t.Errorf("Expected feed title preserved, got %q", rss.Title)
	}

	jsonFeed, ok := feeds[server.URL+"/feed.json"]
	if !ok {
		t.Fatalf("Expected the json feed discovered")
	}
	if jsonFeed.Parser != "jsonfeed" {
		t.Errorf("Expected the jsonfeed backend assigned, got %q", jsonFeed.Parser)
	}

	rest, ok := feeds[server.URL+"/wp-json/friends/v1"]
	if !ok {
		t.Fatalf("Expected the protocol endpoint discovered")
	}
	if rest.Parser != ParserFriends || rest.Rel != RelFriendsBaseURL {
		t.Errorf("Protocol endpoint attributes wrong: %+v", rest)
	}
}

func TestDiscovery_DiscoverRestURL(t *testing.T) {
	page := `<html><head>
	<link rel="friends-base-url" href="/wp-json/friends/v1">
	</head><body></body></html>`

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(page))
	}))
	defer server.Close()

	discovery := NewDiscovery(server.Client(), testRegistry(server.Client()), "test-agent")

	restURL, err := discovery.DiscoverRestURL(context.Background(), server.URL+"/")
	if err != nil {
		t.Fatalf("DiscoverRestURL failed: %v", err)
	}
	if restURL != server.URL+"/wp-json/friends/v1" {
		t.Errorf("Expected the advertised endpoint, got %q", restURL)
	}
}

func TestDiscovery_DiscoverRestURL_NotAdvertised(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><head></head><body>No feeds here</body></html>"))
	}))
	defer server.Close()

	discovery := NewDiscovery(server.Client(), testRegistry(server.Client()), "test-agent")

	if _, err := discovery.DiscoverRestURL(context.Background(), server.URL+"/"); err == nil {
		t.Errorf("Expected an error when no endpoint is advertised")
	}
}

func TestRestURL_PicksFirstSorted(t *testing.T) {
	feeds := map[string]FeedInfo{
		"https://example.com/b":    {Parser: ParserFriends},
		"https://example.com/a":    {Parser: ParserFriends},
		"https://example.com/feed": {Parser: "rss"},
	}

	if restURL := RestURL(feeds); restURL != "https://example.com/a" {
		t.Errorf("Expected the lexically first endpoint, got %q", restURL)
	}
}

func TestRegistry_Rank(t *testing.T) {
	registry := testRegistry(nil)

	tests := []struct {
		url      string
		mimeType string
		expected string
	}{
		{"https://example.com/feed/", "application/rss+xml", "rss"},
		{"https://example.com/feed.json", "application/feed+json", "jsonfeed"},
		{"https://example.com/", "text/html", "microformats"},
		{"https://example.com/page", "", ""},
	}

	for _, test := range tests {
		if slug := registry.Rank(test.url, test.mimeType, ""); slug != test.expected {
			t.Errorf("Rank(%q, %q): expected %q, got %q", test.url, test.mimeType, test.expected, slug)
		}
	}
}
