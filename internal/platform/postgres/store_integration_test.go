//go:build integration

package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/lexis-api/internal/domain"
	"github.com/phrazzld/lexis-api/internal/store"
	"github.com/phrazzld/lexis-api/internal/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTopicAndTerm(t *testing.T, tx *sql.Tx, topicName, text string) (*domain.Topic, *domain.Term) {
	t.Helper()
	ctx := context.Background()

	topic, _, err := NewPostgresTopicStore(tx, nil).GetOrCreateByName(ctx, topicName)
	require.NoError(t, err)

	term, err := domain.NewTermFromCandidate(topic.ID, nil, domain.Candidate{
		Term:       text,
		Definition: "A definition of " + text + " that is long enough to be realistic.",
		Examples:   []string{"An example using " + text + "."},
	}, 0.9, 1.0)
	require.NoError(t, err)
	require.NoError(t, NewPostgresTermStore(tx, nil).Create(ctx, term))
	return topic, term
}

func TestPostgresTopicStore(t *testing.T) {
	db := testdb.GetTestDBWithT(t)

	testdb.WithTx(t, db, func(t *testing.T, tx *sql.Tx) {
		ctx := context.Background()
		topics := NewPostgresTopicStore(tx, nil)
		sets := NewPostgresCanonicalSetStore(tx, nil)

		first, created, err := topics.GetOrCreateByName(ctx, "Quantum Computing")
		require.NoError(t, err)
		assert.True(t, created)

		again, created, err := topics.GetOrCreateByName(ctx, "  quantum   COMPUTING ")
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, first.ID, again.ID)

		set, err := sets.GetOrCreate(ctx, first)
		require.NoError(t, err)
		same, err := sets.GetOrCreate(ctx, first)
		require.NoError(t, err)
		assert.Equal(t, set.ID, same.ID)

		require.NoError(t, topics.SetCanonicalSet(ctx, first.ID, set.ID))
		require.NoError(t, sets.AppendTerm(ctx, set.ID))
		got, err := sets.GetByTopicID(ctx, first.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, got.TermCount)
		assert.NotNil(t, got.PopulatedAt)

		_, err = topics.GetByID(ctx, uuid.New())
		assert.ErrorIs(t, err, store.ErrTopicNotFound)
	})
}

func TestPostgresTermStore(t *testing.T) {
	db := testdb.GetTestDBWithT(t)

	testdb.WithTx(t, db, func(t *testing.T, tx *sql.Tx) {
		ctx := context.Background()
		terms := NewPostgresTermStore(tx, nil)
		topic, qubit := createTopicAndTerm(t, tx, "quantum computing", "Qubit")

		got, err := terms.GetByTopicAndKey(ctx, topic.ID, "QUBIT")
		require.NoError(t, err)
		assert.Equal(t, qubit.ID, got.ID)
		assert.Equal(t, qubit.Examples, got.Examples)

		keys, err := terms.ListKeysByTopic(ctx, topic.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"qubit"}, keys)

		_, other := createTopicAndTerm(t, tx, "quantum computing", "Superposition")
		pool, err := terms.ListPool(ctx, []uuid.UUID{topic.ID}, []uuid.UUID{qubit.ID}, 10)
		require.NoError(t, err)
		require.Len(t, pool, 1)
		assert.Equal(t, other.ID, pool[0].ID)

		byIDs, err := terms.GetByIDs(ctx, []uuid.UUID{qubit.ID, other.ID})
		require.NoError(t, err)
		assert.Len(t, byIDs, 2)

		// A failed insert aborts the transaction, so this runs last.
		dup, err := domain.NewTermFromCandidate(topic.ID, nil, domain.Candidate{
			Term: " qubit ", Definition: "Another definition of a qubit for the duplicate check.",
		}, 0.9, 0)
		require.NoError(t, err)
		assert.ErrorIs(t, terms.Create(ctx, dup), store.ErrTermExists)
	})
}

func TestPostgresReviewStore(t *testing.T) {
	db := testdb.GetTestDBWithT(t)

	testdb.WithTx(t, db, func(t *testing.T, tx *sql.Tx) {
		ctx := context.Background()
		reviews := NewPostgresReviewStore(tx, nil)
		topic, term := createTopicAndTerm(t, tx, "fintech", "Ledger")

		low, err := domain.NewReviewItem(topic.ID, domain.Candidate{Term: "Escrow", Definition: "Held funds."}, 0.5, 1.0, "low_confidence")
		require.NoError(t, err)
		fresh, err := domain.NewReviewItem(topic.ID, domain.Candidate{Term: "Stablecoin", Definition: "Pegged token."}, 0.6, 1.8, "low_confidence")
		require.NoError(t, err)
		require.NoError(t, reviews.Create(ctx, low))
		require.NoError(t, reviews.Create(ctx, fresh))

		page, total, err := reviews.List(ctx, store.ReviewFilter{
			Status: domain.ReviewStatusPending, TopicName: "FinTech", Limit: 10,
		})
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		require.Len(t, page, 2)
		assert.Equal(t, fresh.ID, page[0].ID, "higher freshness first")

		locked, err := reviews.GetForUpdate(ctx, low.ID)
		require.NoError(t, err)
		require.NoError(t, locked.Approve(uuid.New(), term.ID, "ok", time.Now()))
		require.NoError(t, reviews.UpdateDecision(ctx, locked))

		got, err := reviews.GetByID(ctx, low.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.ReviewStatusApproved, got.Status)
		require.NotNil(t, got.TermID)
		assert.Equal(t, term.ID, *got.TermID)

		// The schema rejects an approved item with no term.
		_, err = tx.ExecContext(ctx, `UPDATE review_items SET term_id = NULL WHERE id = $1`, low.ID)
		assert.True(t, IsCheckConstraintViolation(err))
	})
}

func TestPostgresGraphStores(t *testing.T) {
	db := testdb.GetTestDBWithT(t)

	testdb.WithTx(t, db, func(t *testing.T, tx *sql.Tx) {
		ctx := context.Background()
		tags := NewPostgresTagStore(tx, nil)
		edges := NewPostgresEdgeStore(tx, nil)
		_, a := createTopicAndTerm(t, tx, "networking", "Router")
		_, b := createTopicAndTerm(t, tx, "networking", "Edge Router")

		tag, err := tags.Ensure(ctx, "Hardware", "")
		require.NoError(t, err)
		again, err := tags.Ensure(ctx, "hardware", "")
		require.NoError(t, err)
		assert.Equal(t, tag.ID, again.ID)

		inserted, err := tags.Attach(ctx, a.ID, tag.ID, 0.8)
		require.NoError(t, err)
		assert.True(t, inserted)
		inserted, err = tags.Attach(ctx, a.ID, tag.ID, 0.6)
		require.NoError(t, err)
		assert.False(t, inserted)

		require.NoError(t, tags.Observe(ctx, tag.ID, 0.8))
		require.NoError(t, tags.Observe(ctx, tag.ID, 0.4))
		list, total, err := tags.List(ctx, 10, 0)
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		assert.Equal(t, 2, list[0].ConfidenceCount)
		assert.InDelta(t, 0.6, list[0].ConfidenceMean, 1e-9)
		assert.InDelta(t, 0.4, list[0].ConfidenceMin, 1e-9)

		edge, err := domain.NewGraphEdge(b.ID, a.ID, domain.RelationshipNarrower, 0.5)
		require.NoError(t, err)
		require.NoError(t, edges.Upsert(ctx, edge))
		edge.Strength = 0.9
		require.NoError(t, edges.Upsert(ctx, edge))

		related, err := edges.ListRelated(ctx, b.ID, 10)
		require.NoError(t, err)
		require.Len(t, related, 1)
		assert.InDelta(t, 0.9, related[0].Strength, 1e-9)

		stats, err := edges.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Edges)
		assert.Equal(t, 1, stats.EdgesByType[domain.RelationshipNarrower])
	})
}

func TestPostgresMonitoringJobStore(t *testing.T) {
	db := testdb.GetTestDBWithT(t)

	testdb.WithTx(t, db, func(t *testing.T, tx *sql.Tx) {
		ctx := context.Background()
		jobs := NewPostgresMonitoringJobStore(tx, nil)
		topic, _, err := NewPostgresTopicStore(tx, nil).GetOrCreateByName(ctx, "climate tech")
		require.NoError(t, err)

		job, err := domain.NewMonitoringJob(topic, "energy", 30, 10, true, uuid.New())
		require.NoError(t, err)
		job.Sources = []domain.ClassifiedSource{{Name: "Reuters", URL: "https://reuters.com", Type: domain.SourceTypeNews, Reliability: domain.ReliabilityHigh}}
		require.NoError(t, jobs.Create(ctx, job))

		active, err := jobs.ListActive(ctx)
		require.NoError(t, err)
		require.Len(t, active, 1)
		assert.Equal(t, job.Sources, active[0].Sources)

		job.Stop(domain.StopReasonManual, time.Now())
		require.NoError(t, jobs.Update(ctx, job))
		active, err = jobs.ListActive(ctx)
		require.NoError(t, err)
		assert.Empty(t, active)
	})
}

func TestPostgresQuotaAccountStore(t *testing.T) {
	db := testdb.GetTestDBWithT(t)

	testdb.WithTx(t, db, func(t *testing.T, tx *sql.Tx) {
		ctx := context.Background()
		accounts := NewPostgresQuotaAccountStore(tx)
		user := uuid.New()

		tier, err := accounts.GetTier(ctx, user)
		require.NoError(t, err)
		assert.Equal(t, domain.TierFree, tier)

		require.NoError(t, accounts.SetTier(ctx, user, domain.TierPremium))
		tier, err = accounts.GetTier(ctx, user)
		require.NoError(t, err)
		assert.Equal(t, domain.TierPremium, tier)
	})
}
