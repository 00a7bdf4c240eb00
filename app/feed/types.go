package feed

import (
	"time"
)

// Item is the parser-agnostic unit produced by a feed fetch. Items are
// constructed fresh per fetch cycle and never persisted directly; the
// reconciler derives the durable post from them.
type Item struct {
	// Permalink identifies the item. Parsers resolve an explicit uid over a
	// permalink-derived fallback before the item leaves the backend.
	Permalink string
	Title     string
	Content   string

	PublishedAt time.Time
	UpdatedAt   *time.Time

	AuthorName string
	Categories []string
	PostFormat string

	// Additions present only in an authenticated friends feed.
	Gravatar     string
	PostStatus   string
	RemotePostID string
	CommentCount int
	Reactions    []ReactionSummary

	// LazyAuthor materializes the author on demand when a rule targets the
	// author field and the parser deferred resolving it.
	LazyAuthor func() string
}

// Author returns the author name, materializing it lazily if needed.
func (i *Item) Author() string {
	if i.AuthorName == "" && i.LazyAuthor != nil {
		i.AuthorName = i.LazyAuthor()
	}
	return i.AuthorName
}

// ReactionSummary is an embedded reaction element from a friends feed.
type ReactionSummary struct {
	Slug       string
	Count      int
	Usernames  string
	YouReacted bool
}

// FeedInfo describes a feed endpoint discovered at a URL.
type FeedInfo struct {
	URL        string
	Rel        string
	Type       string
	Title      string
	Parser     string
	PostFormat string
}

// ParserFriends marks the discovered REST endpoint of a peer installation
// rather than a fetchable feed.
const ParserFriends = "friends"

// WordPress-style post formats accepted as classification hints.
var PostFormats = []string{
	"standard", "aside", "chat", "gallery", "link",
	"image", "photo", "quote", "status", "video", "audio",
}

// ValidatePostFormat returns the post format if known, else "standard".
func ValidatePostFormat(format string) string {
	for _, known := range PostFormats {
		if format == known || format == "autodetect" {
			return format
		}
	}
	return "standard"
}
