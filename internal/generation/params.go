package generation

import (
	"fmt"
	"strings"

	"github.com/phrazzld/lexis-api/internal/domain"
)

// Pipeline selects the generation strategy.
type Pipeline string

// Pipelines
const (
	PipelineModelFirst  Pipeline = "model-first"
	PipelineSourceFirst Pipeline = "source-first"
)

// Complexity is the target difficulty of generated terms.
type Complexity string

// Complexity levels
const (
	ComplexityBeginner     Complexity = "beginner"
	ComplexityIntermediate Complexity = "intermediate"
	ComplexityAdvanced     Complexity = "advanced"
)

// Style is the register of generated definitions.
type Style string

// Styles
const (
	StyleCasual       Style = "casual"
	StyleAcademic     Style = "academic"
	StyleProfessional Style = "professional"
)

// Count bounds
const (
	MinCount     = 1
	MaxCount     = 50
	DefaultCount = 10
)

// Params describes one generation request.
type Params struct {
	// Topic is required.
	Topic string `json:"topic"`
	// Count defaults to DefaultCount and is clamped to [MinCount, MaxCount].
	Count int `json:"count"`
	// Pipeline defaults to model-first.
	Pipeline Pipeline `json:"pipeline"`
	// Complexity defaults to intermediate.
	Complexity Complexity `json:"complexity"`
	// Style defaults to professional.
	Style Style `json:"style"`
	// IncludeFacts asks for short supporting facts alongside the terms.
	IncludeFacts bool `json:"include_facts"`
	// ExistingTerms are never returned.
	ExistingTerms []string `json:"existing_terms"`
	// Material is source text the model should draw terms from.
	Material []string `json:"material,omitempty"`
}

// Normalize applies defaults and rejects unknown values.
func (p Params) Normalize() (Params, error) {
	p.Topic = strings.Join(strings.Fields(p.Topic), " ")
	if p.Topic == "" {
		return p, fmt.Errorf("%w: topic is required", ErrInvalidParams)
	}
	if len([]rune(p.Topic)) > domain.MaxTopicNameLength {
		return p, fmt.Errorf("%w: topic cannot exceed %d characters", ErrInvalidParams, domain.MaxTopicNameLength)
	}

	switch {
	case p.Count == 0:
		p.Count = DefaultCount
	case p.Count < MinCount:
		p.Count = MinCount
	case p.Count > MaxCount:
		p.Count = MaxCount
	}

	switch p.Pipeline {
	case "":
		p.Pipeline = PipelineModelFirst
	case PipelineModelFirst, PipelineSourceFirst:
	default:
		return p, fmt.Errorf("%w: unknown pipeline %q", ErrInvalidParams, string(p.Pipeline))
	}

	switch p.Complexity {
	case "":
		p.Complexity = ComplexityIntermediate
	case ComplexityBeginner, ComplexityIntermediate, ComplexityAdvanced:
	default:
		return p, fmt.Errorf("%w: unknown complexity %q", ErrInvalidParams, string(p.Complexity))
	}

	switch p.Style {
	case "":
		p.Style = StyleProfessional
	case StyleCasual, StyleAcademic, StyleProfessional:
	default:
		return p, fmt.Errorf("%w: unknown style %q", ErrInvalidParams, string(p.Style))
	}

	return p, nil
}
