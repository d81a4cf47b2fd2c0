package generation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/phrazzld/lexis-api/internal/domain"
)

// responseSchema is the JSON object the model is asked to produce.
type responseSchema struct {
	Terms *[]termSchema `json:"terms"`
	Facts []string      `json:"facts,omitempty"`
}

// termSchema is a single term in the model response.
type termSchema struct {
	Term         string   `json:"term"`
	Definition   string   `json:"definition"`
	Examples     []string `json:"examples,omitempty"`
	PartOfSpeech string   `json:"part_of_speech,omitempty"`
	Difficulty   string   `json:"difficulty,omitempty"`
}

// parseResponse decodes model output. A code fence around the object is
// tolerated, anything else that is not a JSON object with a terms array of
// complete entries is rejected.
func parseResponse(text string) ([]domain.Candidate, []string, error) {
	body := strings.TrimSpace(text)
	if strings.HasPrefix(body, "```") {
		body = strings.TrimPrefix(body, "```json")
		body = strings.TrimPrefix(body, "```")
		body = strings.TrimSuffix(strings.TrimSpace(body), "```")
	}

	var resp responseSchema
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return nil, nil, fmt.Errorf("%w: failed to parse JSON response: %v", ErrInvalidResponse, err)
	}
	if resp.Terms == nil {
		return nil, nil, fmt.Errorf("%w: response has no terms field", ErrInvalidResponse)
	}

	candidates := make([]domain.Candidate, 0, len(*resp.Terms))
	for i, t := range *resp.Terms {
		if strings.TrimSpace(t.Term) == "" {
			return nil, nil, fmt.Errorf("%w: term %d missing term text", ErrInvalidResponse, i)
		}
		if strings.TrimSpace(t.Definition) == "" {
			return nil, nil, fmt.Errorf("%w: term %d missing definition", ErrInvalidResponse, i)
		}
		candidates = append(candidates, domain.Candidate{
			Term:         strings.TrimSpace(t.Term),
			Definition:   strings.TrimSpace(t.Definition),
			Examples:     t.Examples,
			PartOfSpeech: t.PartOfSpeech,
			Difficulty:   t.Difficulty,
		})
	}
	return candidates, resp.Facts, nil
}
