package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/phrazzld/lexis-api/internal/config"
	"github.com/phrazzld/lexis-api/internal/domain"
)

// ErrRejected is wrapped by Result.Err for candidates that fail validation.
var ErrRejected = errors.New("candidate rejected")

// Verdict is the content filter outcome for a candidate.
type Verdict string

// Verdict values
const (
	VerdictClean     Verdict = "clean"
	VerdictAmbiguous Verdict = "ambiguous"
	VerdictBlocked   Verdict = "blocked"
)

// Issue codes reported in Result.Errors.
const (
	CodeMissingTerm        = "missing_term"
	CodeMissingDefinition  = "missing_definition"
	CodeTermTooLong        = "term_too_long"
	CodePlaceholder        = "placeholder"
	CodeMarkup             = "markup"
	CodeCircularDefinition = "circular_definition"
	CodeBlockedContent     = "blocked_content"
)

// Issue is a single validation failure.
type Issue struct {
	Code    string `json:"code"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Result is the outcome of validating one candidate. Flags lists filter words
// that made the verdict ambiguous without rejecting the candidate.
type Result struct {
	IsValid bool     `json:"is_valid"`
	Errors  []Issue  `json:"errors,omitempty"`
	Verdict Verdict  `json:"verdict"`
	Flags   []string `json:"flags,omitempty"`
}

// Err returns nil for a valid result and an error wrapping ErrRejected
// otherwise.
func (r Result) Err() error {
	if r.IsValid {
		return nil
	}
	codes := make([]string, 0, len(r.Errors))
	for _, issue := range r.Errors {
		codes = append(codes, issue.Code)
	}
	return fmt.Errorf("%w: %s", ErrRejected, strings.Join(codes, ", "))
}

// Codes returns the issue codes in order.
func (r Result) Codes() []string {
	codes := make([]string, 0, len(r.Errors))
	for _, issue := range r.Errors {
		codes = append(codes, issue.Code)
	}
	return codes
}

var (
	placeholderRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bexample usage of\b`),
		regexp.MustCompile(`(?i)\blorem ipsum\b`),
		regexp.MustCompile(`(?i)\binsert (a )?definition\b`),
		regexp.MustCompile(`(?i)\bdefinition (goes )?here\b`),
		regexp.MustCompile(`(?i)\btbd\b`),
		regexp.MustCompile(`(?i)\btodo:`),
		regexp.MustCompile(`(?i)^\s*n/?a\s*$`),
	}
	markupRe     = regexp.MustCompile(`</?[A-Za-z][^>]*>|&[a-zA-Z]+;|&#\d+;`)
	structuredRe = regexp.MustCompile(`^\s*[{\[]|"\s*:\s*["{\[\d]|[{\[]\s*"|\}\s*,\s*\{`)
)

// Validator checks candidates against structural rules and the content filter.
type Validator struct {
	cfg    config.ValidationConfig
	filter *contentFilter
}

// New creates a Validator. Zero floors in cfg fall back to one word and one
// character.
func New(cfg config.ValidationConfig) *Validator {
	if cfg.MinWords < 1 {
		cfg.MinWords = 1
	}
	if cfg.MinChars < 1 {
		cfg.MinChars = 1
	}
	return &Validator{cfg: cfg, filter: newContentFilter(cfg.ContentRules)}
}

// SanitizeCandidate cleans every text field of c. Empty examples are dropped.
func (v *Validator) SanitizeCandidate(c domain.Candidate) domain.Candidate {
	out := c
	out.Term = Clean(c.Term)
	out.Definition = v.Sanitize(c.Definition)
	out.PartOfSpeech = strings.ToLower(Clean(c.PartOfSpeech))
	out.Difficulty = strings.ToLower(Clean(c.Difficulty))
	out.Examples = nil
	for _, ex := range c.Examples {
		if cleaned := Clean(ex); cleaned != "" {
			out.Examples = append(out.Examples, cleaned)
		}
	}
	return out
}

// Validate checks c. topicContext is the topic name, optionally with its
// parent topic, and decides whether context-sensitive filter words are
// acceptable.
func (v *Validator) Validate(c domain.Candidate, topicContext string) Result {
	res := Result{Verdict: VerdictClean}
	add := func(code, field, msg string) {
		res.Errors = append(res.Errors, Issue{Code: code, Field: field, Message: msg})
	}

	term := strings.TrimSpace(c.Term)
	def := strings.TrimSpace(c.Definition)

	if term == "" {
		add(CodeMissingTerm, "term", "term is required")
	} else if v.cfg.MaxTermChars > 0 && utf8.RuneCountInString(term) > v.cfg.MaxTermChars {
		add(CodeTermTooLong, "term", fmt.Sprintf("term exceeds %d characters", v.cfg.MaxTermChars))
	}

	switch {
	case def == "":
		add(CodeMissingDefinition, "definition", "definition is required")
	case strings.EqualFold(def, Unavailable):
		add(CodePlaceholder, "definition", "definition is unavailable")
	default:
		if isPlaceholder(def) {
			add(CodePlaceholder, "definition", "definition contains placeholder text")
		}
		if term != "" && onlyRepeats(term, def) {
			add(CodeCircularDefinition, "definition", "definition only repeats the term")
		}
	}

	if term != "" && isPlaceholder(term) {
		add(CodePlaceholder, "term", "term contains placeholder text")
	}
	if hasMarkup(term) {
		add(CodeMarkup, "term", "term contains markup or structured data")
	}
	if hasMarkup(def) {
		add(CodeMarkup, "definition", "definition contains markup or structured data")
	}
	for _, ex := range c.Examples {
		if isPlaceholder(ex) {
			add(CodePlaceholder, "examples", "example contains placeholder text")
			break
		}
	}

	text := strings.Join(append([]string{term, def}, c.Examples...), " ")
	verdict, words := v.filter.check(text, topicContext)
	res.Verdict = verdict
	switch verdict {
	case VerdictBlocked:
		add(CodeBlockedContent, "content", "content violates the content policy")
	case VerdictAmbiguous:
		res.Flags = words
	}

	res.IsValid = len(res.Errors) == 0
	return res
}

func isPlaceholder(s string) bool {
	for _, re := range placeholderRes {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

func hasMarkup(s string) bool {
	return markupRe.MatchString(s) || structuredRe.MatchString(s)
}

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "is": {}, "are": {}, "of": {}, "to": {}, "or": {},
	"and": {}, "in": {}, "it": {}, "that": {}, "this": {}, "means": {}, "refers": {},
	"term": {}, "for": {}, "as": {}, "be": {},
}

var tokenRe = regexp.MustCompile(`[\p{L}\p{N}]+`)

// tokens returns the lowercased content words of s.
func tokens(s string) []string {
	var out []string
	for _, tok := range tokenRe.FindAllString(strings.ToLower(s), -1) {
		if _, stop := stopwords[tok]; !stop {
			out = append(out, tok)
		}
	}
	return out
}

// onlyRepeats reports whether every content word of def also appears in term.
func onlyRepeats(term, def string) bool {
	defTokens := tokens(def)
	if len(defTokens) == 0 {
		return true
	}
	termTokens := make(map[string]struct{})
	for _, tok := range tokens(term) {
		termTokens[tok] = struct{}{}
	}
	for _, tok := range defTokens {
		if _, ok := termTokens[tok]; !ok {
			return false
		}
	}
	return true
}
