package generation

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/phrazzld/lexis-api/internal/domain"
)

// fakeModel replays scripted replies and records every request.
type fakeModel struct {
	mu       sync.Mutex
	replies  []fakeReply
	requests []Request
	// block makes Complete wait for ctx cancellation.
	block bool
}

type fakeReply struct {
	text string
	err  error
}

func (m *fakeModel) Name() string { return "fake-model" }

func (m *fakeModel) Complete(ctx context.Context, req Request) (*Completion, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	idx := len(m.requests) - 1
	block := m.block
	var reply fakeReply
	switch {
	case len(m.replies) == 0:
		reply = fakeReply{text: `{"terms":[]}`}
	case idx < len(m.replies):
		reply = m.replies[idx]
	default:
		reply = m.replies[len(m.replies)-1]
	}
	m.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if reply.err != nil {
		return nil, reply.err
	}
	return &Completion{
		Text:  reply.text,
		Usage: Usage{PromptTokens: 100, CompletionTokens: 50, TotalTokens: 150, CostUSD: 0.001},
	}, nil
}

func (m *fakeModel) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

func (m *fakeModel) prompt(i int) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[i].Prompt
}

// termsJSON renders a model reply holding the given term texts.
func termsJSON(terms ...string) string {
	entries := make([]termSchema, len(terms))
	for i, t := range terms {
		entries[i] = termSchema{
			Term:       t,
			Definition: "A concept in this field that is called " + t + ".",
			Examples:   []string{"We discussed " + t + " today."},
		}
	}
	data, _ := json.Marshal(responseSchema{Terms: &entries, Facts: []string{"A fact."}})
	return string(data)
}

type fakeSource struct {
	name string
	refs []Reference
	err  error
}

func (s *fakeSource) Name() string { return s.name }

func (s *fakeSource) Lookup(_ context.Context, _ string, limit int) ([]Reference, error) {
	if s.err != nil {
		return nil, s.err
	}
	if limit < len(s.refs) {
		return s.refs[:limit], nil
	}
	return s.refs, nil
}

func ref(term, source string) Reference {
	return Reference{
		Term:       term,
		Definition: "Reference definition of " + term + ".",
		Source:     domain.Source{Name: source, URL: "https://example.org/" + term, Reliability: domain.ReliabilityHigh},
	}
}

func keys(cands []domain.Candidate) []string {
	out := make([]string, len(cands))
	for i, c := range cands {
		out[i] = c.Key()
	}
	return out
}
