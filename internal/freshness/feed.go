package freshness

import (
	"context"
	"time"
)

// FeedItem is one published item returned by a Feed.
type FeedItem struct {
	Title        string
	URL          string
	Summary      string
	Publisher    string
	PublisherURL string
	PublishedAt  time.Time
}

// Feed fetches recent items for a topic, newest first.
type Feed interface {
	Fetch(ctx context.Context, topic string, limit int) ([]FeedItem, error)
}
