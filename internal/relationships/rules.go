package relationships

import (
	"strings"

	"github.com/phrazzld/lexis-api/internal/domain"
)

// Edge strengths for rule matches that carry no similarity measure.
const (
	antonymPrefixStrength = 0.9
	antonymPhraseStrength = 0.85
	broaderPhraseStrength = 0.8
	broaderHeadStrength   = 0.7
	mentionStrength       = 0.6
)

// negationPrefixes turn a word into its opposite, longest first.
var negationPrefixes = []string{"anti-", "anti", "non-", "non", "dis", "un", "in", "im", "ir", "il", "a"}

var antonymMarkers = [][]string{
	{"opposite", "of"},
	{"antonym", "of"},
	{"contrary", "to"},
	{"as", "opposed", "to"},
}

var broaderMarkers = [][]string{
	{"type", "of"},
	{"kind", "of"},
	{"form", "of"},
	{"subset", "of"},
	{"branch", "of"},
	{"category", "of"},
	{"subtype", "of"},
	{"variety", "of"},
}

// profile holds the precomputed text features of one term.
type profile struct {
	term    *domain.Term
	key     string
	name    []string
	def     []string
	content map[string]struct{}
}

func newProfile(t *domain.Term) profile {
	return profile{
		term:    t,
		key:     strings.ReplaceAll(t.TextKey, " ", ""),
		name:    words(t.Text),
		def:     words(t.Definition),
		content: contentSet(t.Definition),
	}
}

// ExtractRelationships compares term against every pool member and returns
// edges in both directions for each related pair. Each pair gets the most
// specific type that applies: antonym, then broader or narrower, then
// similar, then related. Pool members equal to term are skipped.
func ExtractRelationships(term *domain.Term, pool []*domain.Term, similarityThreshold float64) []*domain.GraphEdge {
	if term == nil {
		return nil
	}
	self := newProfile(term)
	var edges []*domain.GraphEdge
	for _, other := range pool {
		if other == nil || other.ID == term.ID || other.TextKey == term.TextKey {
			continue
		}
		typ, strength, ok := classify(self, newProfile(other), similarityThreshold)
		if !ok {
			continue
		}
		if forward, err := domain.NewGraphEdge(term.ID, other.ID, typ, strength); err == nil {
			edges = append(edges, forward)
		}
		if reverse, err := domain.NewGraphEdge(other.ID, term.ID, typ.Inverse(), strength); err == nil {
			edges = append(edges, reverse)
		}
	}
	return edges
}

// classify returns the type of the edge a -> b. A broader edge means b is
// broader than a.
func classify(a, b profile, threshold float64) (domain.RelationshipType, float64, bool) {
	if isNegationOf(a.key, b.key) || isNegationOf(b.key, a.key) {
		return domain.RelationshipAntonym, antonymPrefixStrength, true
	}
	if followsMarker(a.def, antonymMarkers, b.name) || followsMarker(b.def, antonymMarkers, a.name) {
		return domain.RelationshipAntonym, antonymPhraseStrength, true
	}

	switch {
	case followsMarker(a.def, broaderMarkers, b.name):
		return domain.RelationshipBroader, broaderPhraseStrength, true
	case followsMarker(b.def, broaderMarkers, a.name):
		return domain.RelationshipNarrower, broaderPhraseStrength, true
	case hasSuffix(a.name, b.name):
		return domain.RelationshipBroader, broaderHeadStrength, true
	case hasSuffix(b.name, a.name):
		return domain.RelationshipNarrower, broaderHeadStrength, true
	}

	sim := jaccard(a.content, b.content)
	if sim >= threshold {
		return domain.RelationshipSimilar, domain.Clamp01(sim), true
	}
	if mentions(a.def, b.name) || mentions(b.def, a.name) {
		return domain.RelationshipRelated, mentionStrength, true
	}
	if sim >= threshold/2 && sim > 0 {
		return domain.RelationshipRelated, domain.Clamp01(sim), true
	}
	return "", 0, false
}

// isNegationOf reports whether word is base with a negation prefix. The
// single-letter prefix only applies to longer bases.
func isNegationOf(word, base string) bool {
	if base == "" || len(word) <= len(base) {
		return false
	}
	for _, p := range negationPrefixes {
		if word != p+base {
			continue
		}
		if p == "a" && len(base) < 5 {
			return false
		}
		return true
	}
	return false
}
