package validation

import (
	"strings"

	"github.com/phrazzld/lexis-api/internal/domain"
)

// Weights of the confidence components. They sum to one.
const (
	validityWeight    = 0.2
	qualityWeight     = 0.5
	reliabilityWeight = 0.3

	// ambiguityPenalty scales the score of candidates with flagged content.
	ambiguityPenalty = 0.6
)

// Confidence scores a validated candidate in [0,1]. Invalid candidates score
// zero. reliability is the tier of the candidate's source; an empty tier is
// treated as medium.
func Confidence(c domain.Candidate, res Result, reliability domain.Reliability) float64 {
	if !res.IsValid {
		return 0
	}
	score := validityWeight +
		qualityWeight*definitionQuality(c) +
		reliabilityWeight*reliability.Weight()
	if res.Verdict == VerdictAmbiguous {
		score *= ambiguityPenalty
	}
	return clamp01(score)
}

// definitionQuality averages the length band, example usage and circularity
// heuristics.
func definitionQuality(c domain.Candidate) float64 {
	return (lengthScore(c.Definition) + exampleScore(c) + circularityScore(c)) / 3
}

func lengthScore(def string) float64 {
	words := len(strings.Fields(def))
	switch {
	case words < 4:
		return 0.3
	case words <= 40:
		return 1.0
	case words <= 80:
		return 0.7
	default:
		return 0.4
	}
}

// exampleScore rewards examples that actually use the term.
func exampleScore(c domain.Candidate) float64 {
	if len(c.Examples) == 0 {
		return 0.5
	}
	term := strings.ToLower(strings.TrimSpace(c.Term))
	using := 0
	for _, ex := range c.Examples {
		if term != "" && strings.Contains(strings.ToLower(ex), term) {
			using++
		}
	}
	return 0.5 + 0.5*float64(using)/float64(len(c.Examples))
}

// circularityScore penalizes definitions that use the term to define itself.
func circularityScore(c domain.Candidate) float64 {
	term := strings.Join(tokenRe.FindAllString(strings.ToLower(c.Term), -1), " ")
	if term == "" {
		return 0
	}
	def := " " + strings.Join(tokenRe.FindAllString(strings.ToLower(c.Definition), -1), " ") + " "
	if strings.Contains(def, " "+term+" ") {
		return 0.6
	}
	return 1.0
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
