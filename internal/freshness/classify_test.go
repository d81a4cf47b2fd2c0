package freshness

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/lexis-api/internal/domain"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name            string
		item            FeedItem
		wantType        domain.SourceType
		wantReliability domain.Reliability
		wantName        string
	}{
		{
			name:            "wire service",
			item:            FeedItem{URL: "https://www.reuters.com/tech/qubits", Publisher: "Reuters"},
			wantType:        domain.SourceTypeNews,
			wantReliability: domain.ReliabilityHigh,
			wantName:        "Reuters",
		},
		{
			name: "aggregator link uses publisher url",
			item: FeedItem{
				URL:          "https://news.google.com/articles/abc",
				Publisher:    "Nature",
				PublisherURL: "https://www.nature.com",
			},
			wantType:        domain.SourceTypeAcademic,
			wantReliability: domain.ReliabilityHigh,
			wantName:        "Nature",
		},
		{
			name:            "university",
			item:            FeedItem{URL: "https://cs.stanford.edu/news/quantum"},
			wantType:        domain.SourceTypeAcademic,
			wantReliability: domain.ReliabilityHigh,
			wantName:        "cs.stanford.edu",
		},
		{
			name:            "encyclopedia",
			item:            FeedItem{URL: "https://en.wikipedia.org/wiki/Qubit"},
			wantType:        domain.SourceTypeReference,
			wantReliability: domain.ReliabilityHigh,
		},
		{
			name:            "blog platform",
			item:            FeedItem{URL: "https://someone.substack.com/p/qubits"},
			wantType:        domain.SourceTypeBlog,
			wantReliability: domain.ReliabilityMedium,
		},
		{
			name:            "social",
			item:            FeedItem{URL: "https://x.com/someone/status/1"},
			wantType:        domain.SourceTypeSocial,
			wantReliability: domain.ReliabilityLow,
		},
		{
			name:            "government",
			item:            FeedItem{URL: "https://www.nist.gov/pqc"},
			wantType:        domain.SourceTypeReference,
			wantReliability: domain.ReliabilityHigh,
		},
		{
			name:            "unknown",
			item:            FeedItem{URL: "https://example.net/post"},
			wantType:        domain.SourceTypeOther,
			wantReliability: domain.ReliabilityLow,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(tc.item, "technology")
			assert.Equal(t, tc.wantType, got.Type)
			assert.Equal(t, tc.wantReliability, got.Reliability)
			assert.Equal(t, "technology", got.Industry)
			if tc.wantName != "" {
				assert.Equal(t, tc.wantName, got.Name)
			}
		})
	}
}

func TestClassifyKeepsPublishTime(t *testing.T) {
	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.FixedZone("EST", -5*3600))
	got := Classify(FeedItem{URL: "https://apnews.com/x", PublishedAt: at}, "general")
	require.NotNil(t, got.PublishedAt)
	assert.Equal(t, at.UTC(), *got.PublishedAt)
}

func TestIndustry(t *testing.T) {
	assert.Equal(t, "technology", Industry("Quantum Computing"))
	assert.Equal(t, "finance", Industry("retail banking"))
	assert.Equal(t, "healthcare", Industry("clinical trials"))
	assert.Equal(t, "general", Industry("medieval poetry"))
	// Substrings inside other words do not match.
	assert.Equal(t, "general", Industry("daily rituals"))
}

func TestBaseQuality(t *testing.T) {
	high := domain.ClassifiedSource{Reliability: domain.ReliabilityHigh}
	low := domain.ClassifiedSource{Reliability: domain.ReliabilityLow}

	assert.InDelta(t, 0.6, BaseQuality(high, ""), 1e-9)
	assert.Greater(t, BaseQuality(high, "a long and complete summary of the article"), BaseQuality(high, ""))
	assert.Greater(t, BaseQuality(high, "same text"), BaseQuality(low, "same text"))
}
