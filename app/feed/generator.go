package feed

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"html"
	"strconv"
	"time"

	"peerpress/app/cfg"
	"peerpress/app/database"
)

// FeedAdditionsNS is the XML namespace for the extra elements carried in
// authenticated feeds.
const FeedAdditionsNS = "wordpress-plugin-friends:feed-additions:1"

// ReactionLoader resolves the stored reactions for a post.
type ReactionLoader func(postID string) []database.Reaction

// Generator renders the local posts as an RSS feed. Authenticated requests
// additionally get the friends namespace elements: post id, post status,
// gravatar and reactions.
type Generator struct{}

func NewGenerator() *Generator {
	return &Generator{}
}

func (g *Generator) Run(posts []database.LocalPost, authenticated bool, reactions ReactionLoader) (string, error) {
	c := cfg.Get()

	var buf bytes.Buffer

	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	buf.WriteString("\n")
	buf.WriteString(`<rss version="2.0" xmlns:content="http://purl.org/rss/1.0/modules/content/" xmlns:atom="http://www.w3.org/2005/Atom"`)
	if authenticated {
		buf.WriteString(fmt.Sprintf(` xmlns:friends=%q`, FeedAdditionsNS))
	}
	buf.WriteString(">\n  <channel>\n")

	g.writeElement(&buf, "title", c.SiteName, 4)
	g.writeElement(&buf, "link", g.siteURL(), 4)
	g.writeElement(&buf, "description", fmt.Sprintf("Posts from %s", c.SiteName), 4)

	buf.WriteString(fmt.Sprintf("    <atom:link href=\"%s/feed\" rel=\"self\" type=\"application/rss+xml\" />\n",
		html.EscapeString(g.siteURL())))

	lastBuildDate := time.Now().UTC()
	if len(posts) > 0 {
		lastBuildDate = posts[0].PublishedAt
	}
	g.writeElement(&buf, "lastBuildDate", lastBuildDate.Format(time.RFC1123Z), 4)
	g.writeElement(&buf, "generator", fmt.Sprintf("PeerPress/%s", c.Version), 4)

	for _, post := range posts {
		g.writeItem(&buf, post, authenticated, reactions)
	}

	buf.WriteString("  </channel>\n</rss>")

	return buf.String(), nil
}

func (g *Generator) writeItem(buf *bytes.Buffer, post database.LocalPost, authenticated bool, reactions ReactionLoader) {
	buf.WriteString("    <item>\n")

	permalink := fmt.Sprintf("%s/posts/%s", g.siteURL(), post.ID)
	buf.WriteString("      <guid isPermaLink=\"true\">")
	xml.EscapeText(buf, []byte(permalink))
	buf.WriteString("</guid>\n")

	if post.Title != "" {
		g.writeElement(buf, "title", post.Title, 6)
	}
	g.writeElement(buf, "link", permalink, 6)

	buf.WriteString("      <content:encoded><![CDATA[")
	buf.WriteString(post.Content)
	buf.WriteString("]]></content:encoded>\n")

	g.writeElement(buf, "pubDate", post.PublishedAt.Format(time.RFC1123Z), 6)

	if authenticated {
		g.writeElement(buf, "friends:post-id", post.ID, 6)
		g.writeElement(buf, "friends:post-status", post.Status, 6)
		if gravatar := cfg.Get().Gravatar; gravatar != "" {
			g.writeElement(buf, "friends:gravatar", gravatar, 6)
		}
		if reactions != nil {
			for _, reaction := range reactions(post.ID) {
				buf.WriteString(fmt.Sprintf("      <friends:reaction friends:slug=\"%s\" friends:count=\"%d\" friends:you-reacted=\"%s\">",
					html.EscapeString(reaction.Slug), reaction.Count, boolAttr(reaction.YouReacted)))
				xml.EscapeText(buf, []byte(reaction.Usernames))
				buf.WriteString("</friends:reaction>\n")
			}
		}
	}

	buf.WriteString("    </item>\n")
}

func (g *Generator) siteURL() string {
	c := cfg.Get()
	if c.BaseUrl != "" {
		return c.BaseUrl
	}
	return "http://localhost:" + c.Port
}

func (g *Generator) writeElement(buf *bytes.Buffer, tag, content string, indent int) {
	if content == "" {
		return
	}

	for i := 0; i < indent; i++ {
		buf.WriteByte(' ')
	}

	buf.WriteString("<")
	buf.WriteString(tag)
	buf.WriteString(">")
	xml.EscapeText(buf, []byte(content))
	buf.WriteString("</")
	buf.WriteString(tag)
	buf.WriteString(">\n")
}

func boolAttr(v bool) string {
	return strconv.Itoa(boolToInt(v))
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
