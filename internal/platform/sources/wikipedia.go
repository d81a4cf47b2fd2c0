package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/phrazzld/lexis-api/internal/config"
	"github.com/phrazzld/lexis-api/internal/domain"
	"github.com/phrazzld/lexis-api/internal/generation"
)

// Wikipedia searches article intros through the MediaWiki Action API.
type Wikipedia struct {
	baseURL string
	fetch   *fetcher
}

var _ generation.Source = (*Wikipedia)(nil)

// NewWikipedia creates a Wikipedia source. client may be nil.
func NewWikipedia(cfg config.SourcesConfig, client *http.Client) *Wikipedia {
	return &Wikipedia{
		baseURL: strings.TrimSuffix(cfg.WikipediaBaseURL, "/"),
		fetch:   newFetcher(cfg, client),
	}
}

// Name implements generation.Source.
func (w *Wikipedia) Name() string { return "wikipedia" }

type wikiResponse struct {
	Query struct {
		Pages []struct {
			Title   string `json:"title"`
			Extract string `json:"extract"`
			FullURL string `json:"fullurl"`
			Index   int    `json:"index"`
			Missing bool   `json:"missing"`
		} `json:"pages"`
	} `json:"query"`
}

// Lookup implements generation.Source. The article named after the topic
// itself is skipped.
func (w *Wikipedia) Lookup(ctx context.Context, topic string, limit int) ([]Reference, error) {
	if limit < 1 {
		return nil, nil
	}
	q := url.Values{}
	q.Set("action", "query")
	q.Set("format", "json")
	q.Set("formatversion", "2")
	q.Set("generator", "search")
	q.Set("gsrsearch", topic)
	// One extra result covers the topic's own article.
	q.Set("gsrlimit", strconv.Itoa(limit+1))
	q.Set("prop", "extracts|info")
	q.Set("inprop", "url")
	q.Set("exintro", "1")
	q.Set("explaintext", "1")
	q.Set("exsentences", "2")

	body, err := w.fetch.get(ctx, w.baseURL+"/w/api.php?"+q.Encode(), "application/json")
	if err != nil {
		return nil, err
	}

	var resp wikiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode wikipedia response: %w", err)
	}

	pages := resp.Query.Pages
	sort.SliceStable(pages, func(i, j int) bool { return pages[i].Index < pages[j].Index })

	topicKey := domain.NormalizeKey(topic)
	refs := make([]Reference, 0, limit)
	for _, p := range pages {
		if len(refs) >= limit {
			break
		}
		extract := strings.TrimSpace(p.Extract)
		if p.Missing || extract == "" || domain.NormalizeKey(p.Title) == topicKey {
			continue
		}
		refs = append(refs, Reference{
			Term:       p.Title,
			Definition: extract,
			Source: domain.Source{
				Name:        w.Name(),
				URL:         p.FullURL,
				Reliability: domain.ReliabilityHigh,
			},
		})
	}
	return refs, nil
}

// Reference is an alias so callers of this package need not import
// generation for the return type.
type Reference = generation.Reference
