package relationships

import (
	"regexp"
	"slices"
	"strings"
)

var wordRe = regexp.MustCompile(`[\p{L}\p{N}]+(?:['-][\p{L}\p{N}]+)*`)

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "and": {}, "or": {}, "of": {}, "to": {}, "in": {},
	"on": {}, "for": {}, "with": {}, "by": {}, "as": {}, "at": {}, "from": {}, "into": {},
	"is": {}, "are": {}, "was": {}, "were": {}, "be": {}, "been": {}, "being": {},
	"it": {}, "its": {}, "this": {}, "that": {}, "these": {}, "those": {}, "which": {},
	"who": {}, "whom": {}, "what": {}, "when": {}, "where": {}, "how": {}, "than": {},
	"can": {}, "may": {}, "used": {}, "use": {}, "using": {}, "such": {}, "also": {},
	"other": {}, "some": {}, "any": {}, "each": {}, "more": {}, "most": {}, "not": {},
	"has": {}, "have": {}, "had": {}, "one": {}, "two": {}, "often": {}, "usually": {},
}

// words returns the lowercased words of s in order.
func words(s string) []string {
	return wordRe.FindAllString(strings.ToLower(s), -1)
}

// contentSet returns the distinct content words of s.
func contentSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range words(s) {
		if len(w) < 3 {
			continue
		}
		if _, stop := stopwords[w]; stop {
			continue
		}
		set[w] = struct{}{}
	}
	return set
}

// jaccard returns |a∩b| / |a∪b|, or 0 when both are empty.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for w := range a {
		if _, ok := b[w]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// padded joins words with single spaces and surrounds the result with
// spaces so whole-phrase containment is a plain substring check.
func padded(ws []string) string {
	return " " + strings.Join(ws, " ") + " "
}

// mentions reports whether text contains phrase as whole words.
func mentions(text, phrase []string) bool {
	if len(phrase) == 0 {
		return false
	}
	return strings.Contains(padded(text), padded(phrase))
}

// hasSuffix reports whether ws ends with suffix and is longer than it.
func hasSuffix(ws, suffix []string) bool {
	if len(suffix) == 0 || len(ws) <= len(suffix) {
		return false
	}
	offset := len(ws) - len(suffix)
	for i, w := range suffix {
		if ws[offset+i] != w {
			return false
		}
	}
	return true
}

// followsMarker reports whether any marker phrase in text is directly
// followed by target, allowing an article in between.
func followsMarker(text []string, markers [][]string, target []string) bool {
	if len(target) == 0 {
		return false
	}
	for _, marker := range markers {
		for i := 0; i+len(marker) <= len(text); i++ {
			if !slices.Equal(text[i:i+len(marker)], marker) {
				continue
			}
			rest := text[i+len(marker):]
			if len(rest) > 0 && (rest[0] == "a" || rest[0] == "an" || rest[0] == "the") {
				rest = rest[1:]
			}
			if len(rest) >= len(target) && slices.Equal(rest[:len(target)], target) {
				return true
			}
		}
	}
	return false
}
