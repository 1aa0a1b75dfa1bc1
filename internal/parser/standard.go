package parser

import (
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/newswire/harvester/internal/feed"
)

const summaryLen = 200

// Standard parses RSS 2.0 and Atom payloads. Entries missing a title or
// link are skipped; the remainder of the feed still parses.
type Standard struct{}

// NewStandard returns the standard RSS/Atom parser.
func NewStandard() *Standard {
	return &Standard{}
}

type rssDoc struct {
	XMLName xml.Name `xml:"rss"`
	Channel struct {
		Items []rssEntry `xml:"item"`
	} `xml:"channel"`
}

type rssEntry struct {
	Title       string   `xml:"title"`
	Link        string   `xml:"link"`
	Description string   `xml:"description"`
	Encoded     string   `xml:"encoded"`
	PubDate     string   `xml:"pubDate"`
	Date        string   `xml:"date"`
	Categories  []string `xml:"category"`
}

type atomDoc struct {
	XMLName xml.Name    `xml:"feed"`
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	Title      string     `xml:"title"`
	Links      []atomLink `xml:"link"`
	Summary    string     `xml:"summary"`
	Content    string     `xml:"content"`
	Published  string     `xml:"published"`
	Updated    string     `xml:"updated"`
	Categories []struct {
		Term string `xml:"term,attr"`
	} `xml:"category"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
}

// Parse decodes an RSS 2.0 or Atom payload into normalized items.
func (p *Standard) Parse(raw []byte, sourceName string) ([]feed.Item, error) {
	var rss rssDoc
	if err := xml.Unmarshal(raw, &rss); err == nil && len(rss.Channel.Items) > 0 {
		return p.fromRSS(rss.Channel.Items, sourceName), nil
	}

	var atom atomDoc
	if err := xml.Unmarshal(raw, &atom); err == nil && len(atom.Entries) > 0 {
		return p.fromAtom(atom.Entries, sourceName), nil
	}

	return nil, &feed.ParseError{Source: sourceName, Err: fmt.Errorf("payload is neither RSS nor Atom")}
}

func (p *Standard) fromRSS(entries []rssEntry, sourceName string) []feed.Item {
	items := make([]feed.Item, 0, len(entries))
	for _, e := range entries {
		title := strings.TrimSpace(e.Title)
		link := strings.TrimSpace(e.Link)
		if title == "" || link == "" {
			continue
		}

		content := e.Encoded
		if content == "" {
			content = e.Description
		}
		content = stripHTML(content)

		item := feed.NewItem(link, title, content, sourceName, parseDate(firstNonEmpty(e.PubDate, e.Date)))
		item.Summary = summarize(stripHTML(e.Description), content)
		item.Tags = feed.CleanTags(e.Categories)
		items = append(items, item)
	}
	return items
}

func (p *Standard) fromAtom(entries []atomEntry, sourceName string) []feed.Item {
	items := make([]feed.Item, 0, len(entries))
	for _, e := range entries {
		title := strings.TrimSpace(e.Title)
		link := pickAtomLink(e.Links)
		if title == "" || link == "" {
			continue
		}

		content := e.Content
		if content == "" {
			content = e.Summary
		}
		content = stripHTML(content)

		item := feed.NewItem(link, title, content, sourceName, parseDate(firstNonEmpty(e.Published, e.Updated)))
		item.Summary = summarize(stripHTML(e.Summary), content)
		tags := make([]string, 0, len(e.Categories))
		for _, c := range e.Categories {
			tags = append(tags, c.Term)
		}
		item.Tags = feed.CleanTags(tags)
		items = append(items, item)
	}
	return items
}

func pickAtomLink(links []atomLink) string {
	for _, l := range links {
		if l.Rel == "" || l.Rel == "alternate" {
			return strings.TrimSpace(l.Href)
		}
	}
	if len(links) > 0 {
		return strings.TrimSpace(links[0].Href)
	}
	return ""
}

var dateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
	time.RFC3339,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02",
}

// parseDate tries the common feed date layouts; entries without a usable
// date fall back to the current time rather than being dropped.
func parseDate(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Now().UTC()
}

// stripHTML extracts the text of an HTML fragment. Input that fails to
// parse is returned trimmed but otherwise untouched.
func stripHTML(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.TrimSpace(s)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(doc.Text())
}

func summarize(summary, content string) string {
	if summary != "" {
		return summary
	}
	if len(content) > summaryLen {
		return content[:summaryLen] + "..."
	}
	return content
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
