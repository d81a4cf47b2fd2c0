package generation

import (
	"bytes"
	"embed"
	"fmt"
	"text/template"
)

//go:embed prompts/*.tmpl
var promptFS embed.FS

const systemPrompt = "You are a careful lexicographer who writes accurate, concise vocabulary " +
	"entries for learners. You always answer with valid JSON."

var termsTemplate = template.Must(template.ParseFS(promptFS, "prompts/terms.tmpl"))

// promptData is the data passed to the prompt template.
type promptData struct {
	Topic        string
	Count        int
	Complexity   Complexity
	Style        Style
	IncludeFacts bool
	Exclusions   []string
	Material     []string
}

func renderPrompt(p Params, count int, exclusions []string) (string, error) {
	var buf bytes.Buffer
	err := termsTemplate.Execute(&buf, promptData{
		Topic:        p.Topic,
		Count:        count,
		Complexity:   p.Complexity,
		Style:        p.Style,
		IncludeFacts: p.IncludeFacts,
		Exclusions:   exclusions,
		Material:     p.Material,
	})
	if err != nil {
		return "", fmt.Errorf("failed to execute prompt template: %w", err)
	}
	return buf.String(), nil
}
