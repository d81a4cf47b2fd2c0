package sources

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/phrazzld/lexis-api/internal/config"
	"github.com/phrazzld/lexis-api/internal/freshness"
)

// News reads an RSS search feed for a topic.
type News struct {
	urlTemplate string
	fetch       *fetcher
}

var _ freshness.Feed = (*News)(nil)

// NewNews creates a news feed source. client may be nil.
func NewNews(cfg config.SourcesConfig, client *http.Client) *News {
	return &News{
		urlTemplate: cfg.NewsFeedURLTemplate,
		fetch:       newFetcher(cfg, client),
	}
}

type rssFeed struct {
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	PubDate     string `xml:"pubDate"`
	Source      struct {
		Name string `xml:",chardata"`
		URL  string `xml:"url,attr"`
	} `xml:"source"`
}

// pubDateLayouts are the date formats seen in RSS feeds.
var pubDateLayouts = []string{time.RFC1123Z, time.RFC1123, time.RFC822Z, time.RFC822, time.RFC3339}

// Fetch implements freshness.Feed. Items are returned newest first and items
// without a parseable date are dropped.
func (n *News) Fetch(ctx context.Context, topic string, limit int) ([]freshness.FeedItem, error) {
	if n.urlTemplate == "" || limit < 1 {
		return nil, nil
	}
	body, err := n.fetch.get(ctx, expandTemplate(n.urlTemplate, topic, false), "application/rss+xml, application/xml")
	if err != nil {
		return nil, err
	}

	var feed rssFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("failed to decode news feed: %w", err)
	}

	items := make([]freshness.FeedItem, 0, len(feed.Channel.Items))
	for _, it := range feed.Channel.Items {
		published, ok := parsePubDate(it.PubDate)
		if !ok || strings.TrimSpace(it.Link) == "" {
			continue
		}
		publisher := strings.TrimSpace(it.Source.Name)
		if publisher == "" {
			publisher = hostOf(it.Link)
		}
		items = append(items, freshness.FeedItem{
			Title:        strings.TrimSpace(it.Title),
			URL:          strings.TrimSpace(it.Link),
			Summary:      stripHTML(it.Description),
			Publisher:    publisher,
			PublisherURL: strings.TrimSpace(it.Source.URL),
			PublishedAt:  published,
		})
	}

	sort.SliceStable(items, func(i, j int) bool { return items[i].PublishedAt.After(items[j].PublishedAt) })
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func parsePubDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range pubDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// stripHTML reduces an HTML description to its text.
func stripHTML(s string) string {
	if !strings.Contains(s, "<") {
		return cleanText(s)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return cleanText(s)
	}
	return cleanText(doc.Text())
}
