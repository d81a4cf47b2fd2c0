package generation

import "context"

// Usage is the token accounting of one or more model calls.
type Usage struct {
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	CostUSD          float64 `json:"cost_usd"`
}

// IsZero reports whether nothing was consumed.
func (u Usage) IsZero() bool {
	return u.TotalTokens == 0 && u.CostUSD == 0
}

// Add returns the sum of u and o.
func (u Usage) Add(o Usage) Usage {
	return Usage{
		PromptTokens:     u.PromptTokens + o.PromptTokens,
		CompletionTokens: u.CompletionTokens + o.CompletionTokens,
		TotalTokens:      u.TotalTokens + o.TotalTokens,
		CostUSD:          u.CostUSD + o.CostUSD,
	}
}

// Pricing converts token counts into dollars.
type Pricing struct {
	InputPerMillion  float64
	OutputPerMillion float64
}

// Cost returns the price of a call.
func (p Pricing) Cost(promptTokens, completionTokens int) float64 {
	return (float64(promptTokens)*p.InputPerMillion + float64(completionTokens)*p.OutputPerMillion) / 1e6
}

// Request is a single prompt sent to a Model.
type Request struct {
	System      string
	Prompt      string
	Temperature float64
	// JSON asks the provider to constrain output to a JSON object.
	JSON bool
}

// Completion is a Model's reply.
type Completion struct {
	Text  string
	Usage Usage
}

// Model is a text generation backend. Implementations classify their errors
// with ErrContentBlocked, ErrInvalidResponse, ErrInvalidConfig or
// ErrTransientFailure and must honor ctx cancellation.
type Model interface {
	Name() string
	Complete(ctx context.Context, req Request) (*Completion, error)
}
