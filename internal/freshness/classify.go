package freshness

import (
	"net/url"
	"strings"
	"time"

	"github.com/phrazzld/lexis-api/internal/domain"
)

type hostRule struct {
	suffixes    []string
	typ         domain.SourceType
	reliability domain.Reliability
}

// hostRules are checked in order; the first matching suffix wins.
var hostRules = []hostRule{
	{
		suffixes:    []string{"wikipedia.org", "britannica.com", "merriam-webster.com", "investopedia.com", "dictionary.com"},
		typ:         domain.SourceTypeReference,
		reliability: domain.ReliabilityHigh,
	},
	{
		suffixes:    []string{".edu", "arxiv.org", "doi.org", "nature.com", "sciencedirect.com", "springer.com", "ieee.org", "acm.org", "nih.gov"},
		typ:         domain.SourceTypeAcademic,
		reliability: domain.ReliabilityHigh,
	},
	{
		suffixes:    []string{"reuters.com", "apnews.com", "bbc.co.uk", "bbc.com", "nytimes.com", "ft.com", "wsj.com", "bloomberg.com", "theguardian.com", "economist.com"},
		typ:         domain.SourceTypeNews,
		reliability: domain.ReliabilityHigh,
	},
	{
		suffixes:    []string{"techcrunch.com", "theverge.com", "wired.com", "cnbc.com", "cnn.com", "forbes.com", "arstechnica.com", "news.google.com", "news.yahoo.com"},
		typ:         domain.SourceTypeNews,
		reliability: domain.ReliabilityMedium,
	},
	{
		suffixes:    []string{"medium.com", "substack.com", "wordpress.com", "blogspot.com", "dev.to", "hashnode.dev"},
		typ:         domain.SourceTypeBlog,
		reliability: domain.ReliabilityMedium,
	},
	{
		suffixes:    []string{"twitter.com", "x.com", "reddit.com", "facebook.com", "linkedin.com", "youtube.com", "tiktok.com", "instagram.com"},
		typ:         domain.SourceTypeSocial,
		reliability: domain.ReliabilityLow,
	},
}

// industryKeywords maps an industry to topic words that indicate it.
var industryKeywords = []struct {
	industry string
	words    []string
}{
	{"technology", []string{"software", "computing", "computer", "ai", "artificial intelligence", "machine learning", "cloud", "kubernetes", "programming", "cyber", "data", "quantum", "blockchain", "web", "devops"}},
	{"finance", []string{"finance", "fintech", "banking", "bank", "investment", "investing", "crypto", "stock", "trading", "insurance", "accounting", "payments"}},
	{"healthcare", []string{"health", "medical", "medicine", "clinical", "pharma", "biotech", "nursing", "disease", "genomics"}},
	{"science", []string{"physics", "chemistry", "biology", "astronomy", "climate", "geology", "ecology", "mathematics", "neuroscience"}},
	{"legal", []string{"law", "legal", "regulation", "compliance", "contract", "litigation", "patent"}},
	{"education", []string{"education", "teaching", "learning", "pedagogy", "curriculum"}},
	{"energy", []string{"energy", "solar", "wind power", "oil", "gas", "battery", "nuclear", "grid"}},
}

// Industry infers the industry of a topic from keywords. Unknown topics are
// "general".
func Industry(topic string) string {
	words := " " + strings.Join(strings.Fields(strings.ToLower(topic)), " ") + " "
	for _, entry := range industryKeywords {
		for _, w := range entry.words {
			if strings.Contains(words, " "+w+" ") {
				return entry.industry
			}
		}
	}
	return "general"
}

// Classify derives the type and reliability of a source from its URL.
func Classify(item FeedItem, industry string) domain.ClassifiedSource {
	host := hostOf(item.PublisherURL)
	if host == "" {
		host = hostOf(item.URL)
	}

	src := domain.ClassifiedSource{
		Name:        item.Publisher,
		URL:         item.URL,
		Title:       item.Title,
		Type:        domain.SourceTypeOther,
		Reliability: domain.ReliabilityLow,
		Industry:    industry,
	}
	if src.Name == "" {
		src.Name = host
	}
	if !item.PublishedAt.IsZero() {
		published := item.PublishedAt.UTC()
		src.PublishedAt = &published
	}

	for _, rule := range hostRules {
		if matchesHost(host, rule.suffixes) {
			src.Type = rule.typ
			src.Reliability = rule.reliability
			return src
		}
	}
	if strings.HasSuffix(host, ".gov") {
		src.Type = domain.SourceTypeReference
		src.Reliability = domain.ReliabilityHigh
	} else if strings.Contains(host, "news") {
		src.Type = domain.SourceTypeNews
		src.Reliability = domain.ReliabilityMedium
	} else if strings.Contains(host, "blog") {
		src.Type = domain.SourceTypeBlog
	}
	return src
}

// BaseQuality scores an item before recency: source reliability, discounted
// for items without a usable summary.
func BaseQuality(src domain.ClassifiedSource, summary string) float64 {
	words := len(strings.Fields(summary))
	completeness := 0.6 + 0.4*float64(min(words, 40))/40
	return domain.Clamp01(src.Reliability.Weight() * completeness)
}

func matchesHost(host string, suffixes []string) bool {
	for _, s := range suffixes {
		if strings.HasPrefix(s, ".") {
			if strings.HasSuffix(host, s) {
				return true
			}
			continue
		}
		if host == s || strings.HasSuffix(host, "."+s) {
			return true
		}
	}
	return false
}

func hostOf(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// isNewer reports whether an item was published after since.
func isNewer(item FeedItem, since time.Time) bool {
	return item.PublishedAt.After(since)
}
