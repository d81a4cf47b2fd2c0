package validation

import (
	"regexp"
	"sort"
	"strings"

	"github.com/phrazzld/lexis-api/internal/config"
)

const (
	severityBlock = "block"
	severityFlag  = "flag"
)

type filterRule struct {
	word     string
	pattern  *regexp.Regexp
	severity string
	allowed  []*regexp.Regexp
}

// contentFilter matches configured words as whole words, allowing common
// inflections. A rule is skipped when the topic context mentions one of its
// allowed contexts.
type contentFilter struct {
	rules []filterRule
}

func newContentFilter(rules []config.ContentRule) *contentFilter {
	f := &contentFilter{}
	for _, r := range rules {
		word := strings.ToLower(strings.TrimSpace(r.Word))
		if word == "" {
			continue
		}
		rule := filterRule{
			word:     word,
			pattern:  regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(word) + `(?:s|es|ed|ing|er|ers)?\b`),
			severity: r.Severity,
		}
		for _, ctx := range r.AllowedContexts {
			ctx = strings.TrimSpace(ctx)
			if ctx == "" {
				continue
			}
			rule.allowed = append(rule.allowed, regexp.MustCompile(`(?i)\b`+regexp.QuoteMeta(ctx)+`(?:s|es)?\b`))
		}
		f.rules = append(f.rules, rule)
	}
	return f
}

// check returns the verdict for text in topicContext and the sorted words
// that matched outside their allowed contexts.
func (f *contentFilter) check(text, topicContext string) (Verdict, []string) {
	verdict := VerdictClean
	var hits []string
	for _, r := range f.rules {
		if !r.pattern.MatchString(text) || r.allows(topicContext) {
			continue
		}
		hits = append(hits, r.word)
		if r.severity == severityBlock {
			verdict = VerdictBlocked
		} else if verdict == VerdictClean {
			verdict = VerdictAmbiguous
		}
	}
	sort.Strings(hits)
	return verdict, hits
}

func (r filterRule) allows(topicContext string) bool {
	for _, re := range r.allowed {
		if re.MatchString(topicContext) {
			return true
		}
	}
	return false
}
