package relationships

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/jdkato/prose/v2"

	"github.com/phrazzld/lexis-api/internal/domain"
)

// maxTags bounds the tags kept per term.
const maxTags = 6

// Tagger assigns category tags to a term.
type Tagger interface {
	Tags(ctx context.Context, term *domain.Term) ([]domain.TagScore, error)
}

// categories maps a tag to the keywords that indicate it.
var categories = map[string][]string{
	"technology":  {"software", "computer", "computing", "algorithm", "data", "network", "program", "code", "digital", "internet", "hardware", "server", "database", "protocol", "encryption", "api"},
	"science":     {"scientific", "experiment", "theory", "hypothesis", "research", "laboratory", "observation", "measurement"},
	"physics":     {"quantum", "particle", "energy", "force", "mass", "velocity", "momentum", "photon", "electron", "wave", "gravity", "relativity"},
	"biology":     {"cell", "organism", "gene", "protein", "species", "evolution", "dna", "enzyme", "tissue", "bacteria"},
	"chemistry":   {"molecule", "atom", "compound", "reaction", "element", "bond", "acid", "catalyst", "solvent"},
	"mathematics": {"equation", "function", "matrix", "vector", "theorem", "proof", "integer", "probability", "statistics", "geometry", "algebra"},
	"medicine":    {"disease", "patient", "treatment", "diagnosis", "symptom", "clinical", "therapy", "drug", "medical", "surgery"},
	"finance":     {"money", "investment", "asset", "market", "stock", "bond", "interest", "loan", "credit", "bank", "capital", "currency"},
	"business":    {"company", "customer", "revenue", "management", "strategy", "product", "sales", "marketing", "organization", "employee"},
	"law":         {"legal", "court", "contract", "statute", "liability", "plaintiff", "defendant", "jurisdiction", "rights", "regulation"},
	"language":    {"word", "grammar", "phrase", "sentence", "verb", "noun", "syntax", "meaning", "linguistic", "vocabulary"},
	"environment": {"climate", "emission", "carbon", "ecosystem", "pollution", "renewable", "sustainability", "biodiversity"},
	"arts":        {"music", "painting", "artist", "performance", "literature", "design", "film", "sculpture"},
	"sports":      {"game", "team", "player", "score", "match", "athlete", "tournament", "league"},
}

// genericNouns are too broad to be useful as tags.
var genericNouns = map[string]struct{}{
	"type": {}, "kind": {}, "form": {}, "way": {}, "thing": {}, "part": {}, "example": {},
	"number": {}, "set": {}, "state": {}, "system": {}, "process": {}, "method": {},
	"term": {}, "use": {}, "something": {}, "someone": {}, "unit": {}, "amount": {},
}

// HeuristicTagger tags terms deterministically from category keyword tables
// and the most frequent nouns of the definition.
type HeuristicTagger struct {
	logger *slog.Logger
}

var _ Tagger = (*HeuristicTagger)(nil)

// NewHeuristicTagger creates a HeuristicTagger.
func NewHeuristicTagger(logger *slog.Logger) *HeuristicTagger {
	if logger == nil {
		logger = slog.Default()
	}
	return &HeuristicTagger{logger: logger.With(slog.String("component", "heuristic_tagger"))}
}

// Tags implements Tagger. It never fails; a term with no signal is tagged
// "general".
func (h *HeuristicTagger) Tags(_ context.Context, term *domain.Term) ([]domain.TagScore, error) {
	text := term.Text + " " + term.Definition + " " + strings.Join(term.Examples, " ")
	vocab := make(map[string]struct{})
	for _, w := range words(text) {
		vocab[w] = struct{}{}
	}

	var out []domain.TagScore
	for name, keywords := range categories {
		hits := 0
		for _, kw := range keywords {
			if _, ok := vocab[kw]; ok {
				hits++
			}
		}
		if hits > 0 {
			out = append(out, domain.TagScore{Name: name, Confidence: min(0.5+0.15*float64(hits-1), 0.95)})
		}
	}
	sortTags(out)

	have := make(map[string]bool, len(out))
	for _, t := range out {
		have[t.Name] = true
	}
	for _, noun := range h.nouns(term) {
		if len(out) >= maxTags {
			break
		}
		if !have[noun.Name] {
			have[noun.Name] = true
			out = append(out, noun)
		}
	}

	if len(out) > maxTags {
		out = out[:maxTags]
	}
	if len(out) == 0 {
		out = []domain.TagScore{{Name: "general", Confidence: 0.3}}
	}
	return out, nil
}

// nouns returns up to three frequent common nouns of the definition, using
// prose part-of-speech tags.
func (h *HeuristicTagger) nouns(term *domain.Term) []domain.TagScore {
	doc, err := prose.NewDocument(term.Definition,
		prose.WithSegmentation(false),
		prose.WithExtraction(false))
	if err != nil {
		h.logger.Debug("pos tagging failed", slog.String("error", err.Error()))
		return nil
	}

	self := make(map[string]struct{})
	for _, w := range words(term.Text) {
		self[w] = struct{}{}
	}

	counts := make(map[string]int)
	var order []string
	for _, tok := range doc.Tokens() {
		if tok.Tag != "NN" && tok.Tag != "NNS" {
			continue
		}
		w := strings.ToLower(tok.Text)
		if tok.Tag == "NNS" && len(w) > 4 && strings.HasSuffix(w, "s") && !strings.HasSuffix(w, "ss") {
			w = strings.TrimSuffix(w, "s")
		}
		if len(w) < 3 {
			continue
		}
		if _, skip := stopwords[w]; skip {
			continue
		}
		if _, skip := genericNouns[w]; skip {
			continue
		}
		if _, skip := self[w]; skip {
			continue
		}
		if counts[w] == 0 {
			order = append(order, w)
		}
		counts[w]++
	}

	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })
	var out []domain.TagScore
	for _, w := range order {
		if len(out) == 3 {
			break
		}
		out = append(out, domain.TagScore{Name: w, Confidence: min(0.35+0.1*float64(counts[w]), 0.6)})
	}
	return out
}

// sortTags orders tags by confidence, then name.
func sortTags(tags []domain.TagScore) {
	sort.Slice(tags, func(i, j int) bool {
		if tags[i].Confidence != tags[j].Confidence {
			return tags[i].Confidence > tags[j].Confidence
		}
		return tags[i].Name < tags[j].Name
	})
}
