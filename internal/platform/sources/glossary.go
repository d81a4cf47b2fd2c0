package sources

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/phrazzld/lexis-api/internal/config"
	"github.com/phrazzld/lexis-api/internal/domain"
	"github.com/phrazzld/lexis-api/internal/generation"
)

// footnoteRe matches citation markers such as [1] or [citation needed].
var footnoteRe = regexp.MustCompile(`\[[^\]]{1,30}\]`)

// Glossary scrapes definition lists from a topic glossary page.
type Glossary struct {
	urlTemplate string
	fetch       *fetcher
}

var _ generation.Source = (*Glossary)(nil)

// NewGlossary creates a glossary source. client may be nil.
func NewGlossary(cfg config.SourcesConfig, client *http.Client) *Glossary {
	return &Glossary{
		urlTemplate: cfg.GlossaryURLTemplate,
		fetch:       newFetcher(cfg, client),
	}
}

// Name implements generation.Source.
func (g *Glossary) Name() string { return "glossary" }

// Lookup implements generation.Source. Each dt is paired with the first dd
// that follows it before the next dt.
func (g *Glossary) Lookup(ctx context.Context, topic string, limit int) ([]Reference, error) {
	if limit < 1 || g.urlTemplate == "" {
		return nil, nil
	}
	// Wikipedia glossary titles are lowercase after the first word.
	pageURL := expandTemplate(g.urlTemplate, strings.ToLower(topic), true)

	body, err := g.fetch.get(ctx, pageURL, "text/html")
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse glossary page: %w", err)
	}

	refs := make([]Reference, 0, limit)
	doc.Find("dt").EachWithBreak(func(_ int, dt *goquery.Selection) bool {
		term := cleanText(dt.Text())
		def := cleanText(dt.NextUntil("dt").Filter("dd").First().Text())
		if term == "" || def == "" {
			return true
		}
		ref := Reference{
			Term:       term,
			Definition: def,
			Source: domain.Source{
				Name:        g.Name(),
				URL:         pageURL,
				Reliability: domain.ReliabilityMedium,
			},
		}
		if id, ok := dt.Attr("id"); ok && id != "" {
			ref.Source.URL = pageURL + "#" + id
		}
		refs = append(refs, ref)
		return len(refs) < limit
	})
	return refs, nil
}

func cleanText(s string) string {
	s = footnoteRe.ReplaceAllString(s, "")
	return strings.Join(strings.Fields(s), " ")
}
