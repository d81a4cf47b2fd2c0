package validation

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// Unavailable replaces text that is mostly markup or too short to use.
const Unavailable = "unavailable"

var fenceRe = regexp.MustCompile("```[A-Za-z0-9_+-]*")

// Sanitize strips markup and code fences, decodes entities and normalizes
// whitespace. Text left below the word or character floor becomes
// Unavailable. Sanitize is idempotent.
func (v *Validator) Sanitize(text string) string {
	cleaned := Clean(text)
	if cleaned == Unavailable {
		return cleaned
	}
	if len(strings.Fields(cleaned)) < v.cfg.MinWords || utf8.RuneCountInString(cleaned) < v.cfg.MinChars {
		return Unavailable
	}
	return cleaned
}

// Clean is Sanitize without the length floor. It is used for term text where
// a single word is expected.
//
// Clean repeats until the text stops changing, so nested entity encodings
// unwrap fully. Each nesting level costs several input bytes, so the passes
// are bounded by the input length. Text still changing past that bound is
// Unavailable.
func Clean(text string) string {
	s := text
	for range len(text) + 1 {
		next := cleanOnce(s)
		if next == s {
			return s
		}
		s = next
	}
	return Unavailable
}

func cleanOnce(s string) string {
	s = fenceRe.ReplaceAllString(s, " ")
	if strings.ContainsAny(s, "<&") {
		s = stripMarkup(s)
	}
	return strings.Join(strings.Fields(s), " ")
}

// stripMarkup parses s as an HTML fragment and returns its text content with
// entities decoded. Script and style bodies are dropped.
func stripMarkup(s string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}
	doc.Find("script, style, noscript, template").Remove()
	// Block elements would otherwise glue words together.
	doc.Find("br, p, div, li, dt, dd, tr, h1, h2, h3, h4, h5, h6").Each(func(_ int, sel *goquery.Selection) {
		sel.BeforeHtml(" ")
		sel.AfterHtml(" ")
	})
	return doc.Text()
}
