package relationships

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/lexis-api/internal/domain"
)

func newTerm(t *testing.T, text, definition string) *domain.Term {
	t.Helper()
	term, err := domain.NewTermFromCandidate(uuid.New(), nil, domain.Candidate{Term: text, Definition: definition}, 0.9, 0)
	require.NoError(t, err)
	return term
}

func edgeFrom(edges []*domain.GraphEdge, source, target uuid.UUID) *domain.GraphEdge {
	for _, e := range edges {
		if e.SourceTermID == source && e.TargetTermID == target {
			return e
		}
	}
	return nil
}

func TestExtractRelationships(t *testing.T) {
	testCases := []struct {
		name        string
		a, b        [2]string
		wantType    domain.RelationshipType
		wantInverse domain.RelationshipType
		wantStrong  float64
	}{
		{
			name:        "negation prefix is an antonym",
			a:           [2]string{"stable", "Remaining in the same condition over time"},
			b:           [2]string{"unstable", "Prone to sudden change"},
			wantType:    domain.RelationshipAntonym,
			wantInverse: domain.RelationshipAntonym,
			wantStrong:  antonymPrefixStrength,
		},
		{
			name:        "opposite phrase is an antonym",
			a:           [2]string{"encryption", "Conversion of information into a code to prevent unauthorized access"},
			b:           [2]string{"decryption", "The opposite of encryption, recovering readable data from ciphertext"},
			wantType:    domain.RelationshipAntonym,
			wantInverse: domain.RelationshipAntonym,
			wantStrong:  antonymPhraseStrength,
		},
		{
			name:        "type-of phrase points at the broader term",
			a:           [2]string{"TCP", "A type of network protocol providing reliable ordered delivery"},
			b:           [2]string{"network protocol", "A set of rules governing data exchange between machines"},
			wantType:    domain.RelationshipBroader,
			wantInverse: domain.RelationshipNarrower,
			wantStrong:  broaderPhraseStrength,
		},
		{
			name:        "shared head word points at the broader term",
			a:           [2]string{"quantum computer", "A machine exploiting superposition for calculation"},
			b:           [2]string{"computer", "An electronic device that processes instructions"},
			wantType:    domain.RelationshipBroader,
			wantInverse: domain.RelationshipNarrower,
			wantStrong:  broaderHeadStrength,
		},
		{
			name:        "overlapping definitions are similar",
			a:           [2]string{"ciphertext", "Encrypted message produced by a cipher algorithm"},
			b:           [2]string{"cryptogram", "Encrypted message produced by a cipher"},
			wantType:    domain.RelationshipSimilar,
			wantInverse: domain.RelationshipSimilar,
			wantStrong:  0.8,
		},
		{
			name:        "mention is related",
			a:           [2]string{"qubit", "Basic unit of quantum information"},
			b:           [2]string{"superposition", "State where a qubit holds multiple values simultaneously"},
			wantType:    domain.RelationshipRelated,
			wantInverse: domain.RelationshipRelated,
			wantStrong:  mentionStrength,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			a := newTerm(t, tc.a[0], tc.a[1])
			b := newTerm(t, tc.b[0], tc.b[1])

			edges := ExtractRelationships(a, []*domain.Term{b}, 0.35)
			require.Len(t, edges, 2)

			forward := edgeFrom(edges, a.ID, b.ID)
			require.NotNil(t, forward)
			assert.Equal(t, tc.wantType, forward.Type)
			assert.InDelta(t, tc.wantStrong, forward.Strength, 1e-9)

			reverse := edgeFrom(edges, b.ID, a.ID)
			require.NotNil(t, reverse)
			assert.Equal(t, tc.wantInverse, reverse.Type)
			assert.InDelta(t, forward.Strength, reverse.Strength, 1e-9)
		})
	}
}

func TestExtractRelationshipsSkipsUnrelatedAndSelf(t *testing.T) {
	a := newTerm(t, "photosynthesis", "Process by which plants convert light into chemical energy")
	unrelated := newTerm(t, "mortgage", "Loan secured against real estate")
	sameKey := newTerm(t, "Photosynthesis", "A different definition of the same word")

	edges := ExtractRelationships(a, []*domain.Term{a, unrelated, sameKey, nil}, 0.35)
	assert.Empty(t, edges)
	assert.Nil(t, ExtractRelationships(nil, []*domain.Term{a}, 0.35))
}

func TestExtractRelationshipsStrengthInRange(t *testing.T) {
	a := newTerm(t, "firewall", "Network security system that filters traffic between networks")
	pool := []*domain.Term{
		newTerm(t, "packet filter", "Network security system that filters traffic by packet headers"),
		newTerm(t, "router", "Device forwarding traffic between networks"),
		newTerm(t, "proxy", "Intermediary server relaying requests; often placed behind a firewall"),
	}

	edges := ExtractRelationships(a, pool, 0.35)
	require.NotEmpty(t, edges)
	for _, e := range edges {
		assert.NoError(t, e.Validate())
		assert.GreaterOrEqual(t, e.Strength, 0.0)
		assert.LessOrEqual(t, e.Strength, 1.0)
	}
}

func TestIsNegationOf(t *testing.T) {
	assert.True(t, isNegationOf("nonlinear", "linear"))
	assert.True(t, isNegationOf("non-linear", "linear"))
	assert.True(t, isNegationOf("asymmetric", "symmetric"))
	assert.True(t, isNegationOf("immutable", "mutable"))
	assert.False(t, isNegationOf("atom", "tom"))
	assert.False(t, isNegationOf("linear", "linear"))
	assert.False(t, isNegationOf("unit", ""))
}
