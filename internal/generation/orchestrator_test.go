package generation

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		CacheTTL:            time.Minute,
		DuplicateThreshold:  0.4,
		MaxDuplicateRetries: 2,
		SourceConcurrency:   2,
		MaxRetries:          2,
		RetryDelay:          time.Millisecond,
		CallTimeout:         time.Second,
	}
}

func newTestOrchestrator(t *testing.T, model Model, sources []Source, cache Cache, cfg Config) *Orchestrator {
	t.Helper()
	o, err := NewOrchestrator(model, sources, cache, cfg, nil, nil)
	require.NoError(t, err)
	return o
}

func TestExistingTermsAreNeverReturned(t *testing.T) {
	model := &fakeModel{replies: []fakeReply{
		{text: termsJSON("Qubit", "Entanglement", "  SUPERPOSITION ", "Decoherence", "Quantum gate")},
	}}
	o := newTestOrchestrator(t, model, nil, nil, testConfig())

	res, err := o.Generate(context.Background(), Params{
		Topic:         "quantum computing",
		Count:         3,
		ExistingTerms: []string{"qubit", "superposition"},
	})
	require.NoError(t, err)

	assert.NotContains(t, keys(res.Candidates), "qubit")
	assert.NotContains(t, keys(res.Candidates), "superposition")
	assert.Equal(t, []string{"entanglement", "decoherence", "quantum gate"}, keys(res.Candidates))
	assert.Contains(t, model.prompt(0), "- qubit")
	assert.Contains(t, model.prompt(0), "- superposition")
}

func TestDuplicateHeavyBatchIsRetried(t *testing.T) {
	model := &fakeModel{replies: []fakeReply{
		{text: termsJSON("alpha", "beta", "gamma", "delta", "epsilon")},
		{text: termsJSON("zeta", "eta", "theta")},
	}}
	o := newTestOrchestrator(t, model, nil, nil, testConfig())

	res, err := o.Generate(context.Background(), Params{
		Topic:         "greek letters",
		Count:         5,
		ExistingTerms: []string{"alpha", "beta"},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, model.calls())
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, 2, res.Duplicates)
	assert.Equal(t, []string{"gamma", "delta", "epsilon", "zeta", "eta"}, keys(res.Candidates))
	assert.Contains(t, model.prompt(1), "- gamma", "retry excludes accepted terms")
	assert.Contains(t, model.prompt(1), "Generate 2 vocabulary terms")
	assert.Equal(t, 300, res.Usage.TotalTokens)
}

func TestDuplicateRetriesAreBounded(t *testing.T) {
	model := &fakeModel{replies: []fakeReply{{text: termsJSON("alpha", "beta")}}}
	cfg := testConfig()
	cfg.MaxDuplicateRetries = 1
	o := newTestOrchestrator(t, model, nil, nil, cfg)

	res, err := o.Generate(context.Background(), Params{
		Topic: "greek letters", Count: 4, ExistingTerms: []string{"alpha", "beta"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, model.calls())
	assert.Empty(t, res.Candidates)
	assert.Equal(t, 4, res.Duplicates)
}

func TestLowDuplicateRatioIsNotRetried(t *testing.T) {
	model := &fakeModel{replies: []fakeReply{{text: termsJSON("alpha", "gamma", "delta", "epsilon")}}}
	o := newTestOrchestrator(t, model, nil, nil, testConfig())

	res, err := o.Generate(context.Background(), Params{
		Topic: "greek letters", Count: 4, ExistingTerms: []string{"alpha"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, model.calls())
	assert.Len(t, res.Candidates, 3)
}

func TestCachedResultsAreFlaggedAndRefiltered(t *testing.T) {
	model := &fakeModel{replies: []fakeReply{{text: termsJSON("a1", "a2", "a3", "a4")}}}
	o := newTestOrchestrator(t, model, nil, NewMemoryCache(nil), testConfig())
	ctx := context.Background()

	first, err := o.Generate(ctx, Params{Topic: "Kubernetes", Count: 4})
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.Equal(t, 150, first.Usage.TotalTokens)

	second, err := o.Generate(ctx, Params{Topic: "  kubernetes ", Count: 3, ExistingTerms: []string{"A1"}})
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, Usage{}, second.Usage)
	assert.Equal(t, []string{"a2", "a3", "a4"}, keys(second.Candidates))
	assert.Equal(t, 1, model.calls())

	// Too few cached terms survive the exclusions, so the model runs again.
	third, err := o.Generate(ctx, Params{Topic: "kubernetes", Count: 4, ExistingTerms: []string{"a1"}})
	require.NoError(t, err)
	assert.False(t, third.Cached)
	assert.Equal(t, 2, model.calls())

	// A different complexity is a different key.
	_, err = o.Generate(ctx, Params{Topic: "kubernetes", Count: 1, Complexity: ComplexityAdvanced})
	require.NoError(t, err)
	assert.Equal(t, 3, model.calls())
}

func TestSourceFirst(t *testing.T) {
	t.Run("sources cover the request", func(t *testing.T) {
		model := &fakeModel{}
		sources := []Source{
			&fakeSource{name: "wiki", refs: []Reference{ref("Ledger", "wiki"), ref("Escrow", "wiki")}},
			&fakeSource{name: "glossary", refs: []Reference{ref("ledger", "glossary"), ref("Custody", "glossary")}},
		}
		o := newTestOrchestrator(t, model, sources, nil, testConfig())

		res, err := o.Generate(context.Background(), Params{Topic: "fintech", Count: 3, Pipeline: PipelineSourceFirst})
		require.NoError(t, err)
		assert.Zero(t, model.calls())
		assert.Equal(t, []string{"ledger", "escrow", "custody"}, keys(res.Candidates))
		require.NotNil(t, res.Candidates[2].Source)
		assert.Equal(t, "glossary", res.Candidates[2].Source.Name)
		assert.Equal(t, 1, res.Duplicates)
	})

	t.Run("model fills the missing slots", func(t *testing.T) {
		model := &fakeModel{replies: []fakeReply{{text: termsJSON("Stablecoin", "Ledger", "Remittance")}}}
		sources := []Source{
			&fakeSource{name: "wiki", refs: []Reference{ref("Ledger", "wiki")}},
			&fakeSource{name: "broken", err: errors.New("upstream 503")},
		}
		o := newTestOrchestrator(t, model, sources, nil, testConfig())

		res, err := o.Generate(context.Background(), Params{Topic: "fintech", Count: 3, Pipeline: PipelineSourceFirst})
		require.NoError(t, err)
		assert.Equal(t, 1, model.calls())
		assert.Contains(t, model.prompt(0), "Generate 2 vocabulary terms")
		assert.Contains(t, model.prompt(0), "- ledger")
		assert.Equal(t, []string{"ledger", "stablecoin", "remittance"}, keys(res.Candidates))
		assert.NotNil(t, res.Candidates[0].Source)
		assert.Nil(t, res.Candidates[1].Source)
	})
}

func TestModelFailures(t *testing.T) {
	tests := []struct {
		name      string
		model     *fakeModel
		wantErr   error
		wantCalls int
		// wantTokens is the usage carried by the error.
		wantTokens int
	}{
		{
			name:       "invalid json",
			model:      &fakeModel{replies: []fakeReply{{text: "here are your terms: qubit"}}},
			wantErr:    ErrInvalidResponse,
			wantCalls:  1,
			wantTokens: 150,
		},
		{
			name:       "missing required field",
			model:      &fakeModel{replies: []fakeReply{{text: `{"terms":[{"term":"qubit"}]}`}}},
			wantErr:    ErrInvalidResponse,
			wantCalls:  1,
			wantTokens: 150,
		},
		{
			name:      "content blocked",
			model:     &fakeModel{replies: []fakeReply{{err: fmt.Errorf("%w: safety", ErrContentBlocked)}}},
			wantErr:   ErrContentBlocked,
			wantCalls: 1,
		},
		{
			name:      "transient failures exhaust retries",
			model:     &fakeModel{replies: []fakeReply{{err: fmt.Errorf("%w: 503", ErrTransientFailure)}}},
			wantErr:   ErrRetriesExhausted,
			wantCalls: 3,
		},
		{
			name:      "hung model times out",
			model:     &fakeModel{block: true},
			wantErr:   ErrGenerationTimeout,
			wantCalls: 3,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.CallTimeout = 20 * time.Millisecond
			o := newTestOrchestrator(t, tc.model, nil, nil, cfg)

			res, err := o.Generate(context.Background(), Params{Topic: "quantum computing"})
			assert.Nil(t, res)
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.wantErr)
			assert.ErrorIs(t, err, ErrGenerationFailed)
			assert.Equal(t, tc.wantCalls, tc.model.calls())

			used, ok := ConsumedUsage(err)
			assert.Equal(t, tc.wantTokens > 0, ok)
			assert.Equal(t, tc.wantTokens, used.TotalTokens)
		})
	}
}

func TestFailedDuplicateRetryKeepsUsage(t *testing.T) {
	model := &fakeModel{replies: []fakeReply{
		{text: termsJSON("alpha", "beta", "gamma")},
		{text: "not json"},
	}}
	o := newTestOrchestrator(t, model, nil, nil, testConfig())

	res, err := o.Generate(context.Background(), Params{
		Topic: "greek letters", Count: 3, ExistingTerms: []string{"alpha", "beta"},
	})
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrInvalidResponse)
	assert.Equal(t, 2, model.calls())

	used, ok := ConsumedUsage(err)
	require.True(t, ok)
	assert.Equal(t, 300, used.TotalTokens)
	assert.InDelta(t, 0.002, used.CostUSD, 1e-12)
}

func TestTransientFailureRecovers(t *testing.T) {
	model := &fakeModel{replies: []fakeReply{
		{err: fmt.Errorf("%w: 429", ErrTransientFailure)},
		{text: termsJSON("qubit")},
	}}
	o := newTestOrchestrator(t, model, nil, nil, testConfig())

	res, err := o.Generate(context.Background(), Params{Topic: "quantum computing", Count: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, model.calls())
	assert.Len(t, res.Candidates, 1)
}

func TestCallerDeadlineSurfacesAsTimeout(t *testing.T) {
	o := newTestOrchestrator(t, &fakeModel{block: true}, nil, nil, testConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := o.Generate(ctx, Params{Topic: "quantum computing"})
	assert.ErrorIs(t, err, ErrGenerationTimeout)
}

func TestInvalidParamsAreRejectedBeforeModelCall(t *testing.T) {
	model := &fakeModel{}
	o := newTestOrchestrator(t, model, nil, nil, testConfig())

	_, err := o.Generate(context.Background(), Params{Topic: "x", Pipeline: "model-last"})
	assert.ErrorIs(t, err, ErrInvalidParams)
	assert.Zero(t, model.calls())
}

func TestNewOrchestratorValidatesConfig(t *testing.T) {
	_, err := NewOrchestrator(nil, nil, nil, testConfig(), nil, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	cfg := testConfig()
	cfg.DuplicateThreshold = 0
	_, err = NewOrchestrator(&fakeModel{}, nil, nil, cfg, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
