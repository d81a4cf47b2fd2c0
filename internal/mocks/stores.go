package mocks

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/lexis-api/internal/domain"
	"github.com/phrazzld/lexis-api/internal/store"
)

// TopicStore is an in-memory store.TopicStore.
type TopicStore struct{ db *MemoryDB }

var _ store.TopicStore = (*TopicStore)(nil)

// GetOrCreateByName implements store.TopicStore.
func (s *TopicStore) GetOrCreateByName(_ context.Context, name string) (*domain.Topic, bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.enter("topics.GetOrCreateByName"); err != nil {
		return nil, false, err
	}
	topic, err := domain.NewTopic(name)
	if err != nil {
		return nil, false, err
	}
	for _, t := range s.db.topics {
		if t.NameKey == topic.NameKey {
			return &t, false, nil
		}
	}
	s.db.topics[topic.ID] = *topic
	return topic, true, nil
}

// GetByID implements store.TopicStore.
func (s *TopicStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Topic, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.enter("topics.GetByID"); err != nil {
		return nil, err
	}
	t, ok := s.db.topics[id]
	if !ok {
		return nil, store.ErrTopicNotFound
	}
	return &t, nil
}

// GetByName implements store.TopicStore.
func (s *TopicStore) GetByName(_ context.Context, name string) (*domain.Topic, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.enter("topics.GetByName"); err != nil {
		return nil, err
	}
	key := domain.NormalizeKey(name)
	for _, t := range s.db.topics {
		if t.NameKey == key {
			return &t, nil
		}
	}
	return nil, store.ErrTopicNotFound
}

// SetCanonicalSet implements store.TopicStore.
func (s *TopicStore) SetCanonicalSet(_ context.Context, topicID, setID uuid.UUID) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.enter("topics.SetCanonicalSet"); err != nil {
		return err
	}
	t, ok := s.db.topics[topicID]
	if !ok {
		return store.ErrTopicNotFound
	}
	t.CanonicalSetID = &setID
	s.db.topics[topicID] = t
	return nil
}

// ListSiblings implements store.TopicStore.
func (s *TopicStore) ListSiblings(_ context.Context, topicID uuid.UUID, limit int) ([]*domain.Topic, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.enter("topics.ListSiblings"); err != nil {
		return nil, err
	}
	self, ok := s.db.topics[topicID]
	if !ok || self.ParentID == nil {
		return nil, nil
	}
	var out []*domain.Topic
	for _, t := range s.db.topics {
		if t.ID != topicID && t.Active && t.ParentID != nil && *t.ParentID == *self.ParentID {
			out = append(out, &t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NameKey < out[j].NameKey })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// WithTx implements store.TopicStore.
func (s *TopicStore) WithTx(*sql.Tx) store.TopicStore { return s }

// SetParent links child under parent. It is a test helper.
func (s *TopicStore) SetParent(child, parent uuid.UUID) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	t := s.db.topics[child]
	t.ParentID = &parent
	s.db.topics[child] = t
}

// CanonicalSetStore is an in-memory store.CanonicalSetStore.
type CanonicalSetStore struct{ db *MemoryDB }

var _ store.CanonicalSetStore = (*CanonicalSetStore)(nil)

// GetOrCreate implements store.CanonicalSetStore.
func (s *CanonicalSetStore) GetOrCreate(_ context.Context, topic *domain.Topic) (*domain.CanonicalSet, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.enter("sets.GetOrCreate"); err != nil {
		return nil, err
	}
	set, err := domain.NewCanonicalSet(topic)
	if err != nil {
		return nil, err
	}
	for _, existing := range s.db.sets {
		if existing.TopicKey == set.TopicKey {
			return &existing, nil
		}
	}
	s.db.sets[set.ID] = *set
	return set, nil
}

// GetByTopicID implements store.CanonicalSetStore.
func (s *CanonicalSetStore) GetByTopicID(_ context.Context, topicID uuid.UUID) (*domain.CanonicalSet, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.enter("sets.GetByTopicID"); err != nil {
		return nil, err
	}
	for _, set := range s.db.sets {
		if set.TopicID == topicID {
			return &set, nil
		}
	}
	return nil, store.ErrCanonicalSetNotFound
}

// AppendTerm implements store.CanonicalSetStore.
func (s *CanonicalSetStore) AppendTerm(_ context.Context, setID uuid.UUID) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.enter("sets.AppendTerm"); err != nil {
		return err
	}
	set, ok := s.db.sets[setID]
	if !ok {
		return store.ErrCanonicalSetNotFound
	}
	now := time.Now().UTC()
	set.TermCount++
	if set.PopulatedAt == nil {
		set.PopulatedAt = &now
	}
	set.UpdatedAt = now
	s.db.sets[setID] = set
	return nil
}

// WithTx implements store.CanonicalSetStore.
func (s *CanonicalSetStore) WithTx(*sql.Tx) store.CanonicalSetStore { return s }

// TermStore is an in-memory store.TermStore.
type TermStore struct{ db *MemoryDB }

var _ store.TermStore = (*TermStore)(nil)

// Create implements store.TermStore.
func (s *TermStore) Create(_ context.Context, term *domain.Term) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.enter("terms.Create"); err != nil {
		return err
	}
	if err := term.Validate(); err != nil {
		return fmt.Errorf("%w: %w", store.ErrInvalidEntity, err)
	}
	for _, t := range s.db.terms {
		if t.TopicID == term.TopicID && t.TextKey == term.TextKey {
			return store.ErrTermExists
		}
	}
	s.db.terms[term.ID] = *term
	return nil
}

// GetByID implements store.TermStore.
func (s *TermStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Term, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.enter("terms.GetByID"); err != nil {
		return nil, err
	}
	t, ok := s.db.terms[id]
	if !ok {
		return nil, store.ErrTermNotFound
	}
	return &t, nil
}

// GetByTopicAndKey implements store.TermStore.
func (s *TermStore) GetByTopicAndKey(_ context.Context, topicID uuid.UUID, key string) (*domain.Term, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.enter("terms.GetByTopicAndKey"); err != nil {
		return nil, err
	}
	for _, t := range s.db.terms {
		if t.TopicID == topicID && t.TextKey == key {
			return &t, nil
		}
	}
	return nil, store.ErrTermNotFound
}

// GetByIDs implements store.TermStore.
func (s *TermStore) GetByIDs(_ context.Context, ids []uuid.UUID) ([]*domain.Term, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.enter("terms.GetByIDs"); err != nil {
		return nil, err
	}
	out := make([]*domain.Term, 0, len(ids))
	for _, id := range ids {
		if t, ok := s.db.terms[id]; ok && t.Status == domain.TermStatusApproved {
			out = append(out, &t)
		}
	}
	return out, nil
}

// ListByCanonicalSet implements store.TermStore.
func (s *TermStore) ListByCanonicalSet(_ context.Context, setID uuid.UUID, limit int) ([]*domain.Term, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.enter("terms.ListByCanonicalSet"); err != nil {
		return nil, err
	}
	var out []*domain.Term
	for _, t := range s.db.terms {
		if t.CanonicalSetID != nil && *t.CanonicalSetID == setID && t.Status == domain.TermStatusApproved {
			out = append(out, &t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListKeysByTopic implements store.TermStore.
func (s *TermStore) ListKeysByTopic(_ context.Context, topicID uuid.UUID) ([]string, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.enter("terms.ListKeysByTopic"); err != nil {
		return nil, err
	}
	var keys []string
	for _, t := range s.db.terms {
		if t.TopicID == topicID {
			keys = append(keys, t.TextKey)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// ListPool implements store.TermStore.
func (s *TermStore) ListPool(_ context.Context, topicIDs, excludeIDs []uuid.UUID, limit int) ([]*domain.Term, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.enter("terms.ListPool"); err != nil {
		return nil, err
	}
	topics := make(map[uuid.UUID]bool, len(topicIDs))
	for _, id := range topicIDs {
		topics[id] = true
	}
	excluded := make(map[uuid.UUID]bool, len(excludeIDs))
	for _, id := range excludeIDs {
		excluded[id] = true
	}
	var out []*domain.Term
	for _, t := range s.db.terms {
		if topics[t.TopicID] && !excluded[t.ID] && t.Status == domain.TermStatusApproved {
			out = append(out, &t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FreshnessScore != out[j].FreshnessScore {
			return out[i].FreshnessScore > out[j].FreshnessScore
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// WithTx implements store.TermStore.
func (s *TermStore) WithTx(*sql.Tx) store.TermStore { return s }

// ReviewStore is an in-memory store.ReviewStore.
type ReviewStore struct{ db *MemoryDB }

var _ store.ReviewStore = (*ReviewStore)(nil)

// Create implements store.ReviewStore.
func (s *ReviewStore) Create(_ context.Context, item *domain.ReviewItem) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.enter("reviews.Create"); err != nil {
		return err
	}
	if err := item.Validate(); err != nil {
		return fmt.Errorf("%w: %w", store.ErrInvalidEntity, err)
	}
	s.db.reviews[item.ID] = *item
	return nil
}

// GetByID implements store.ReviewStore.
func (s *ReviewStore) GetByID(_ context.Context, id uuid.UUID) (*domain.ReviewItem, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.enter("reviews.GetByID"); err != nil {
		return nil, err
	}
	item, ok := s.db.reviews[id]
	if !ok {
		return nil, store.ErrReviewItemNotFound
	}
	return &item, nil
}

// GetForUpdate implements store.ReviewStore. Transactions on MemoryDB are
// serialized, which stands in for the row lock.
func (s *ReviewStore) GetForUpdate(_ context.Context, id uuid.UUID) (*domain.ReviewItem, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.enter("reviews.GetForUpdate"); err != nil {
		return nil, err
	}
	item, ok := s.db.reviews[id]
	if !ok {
		return nil, store.ErrReviewItemNotFound
	}
	return &item, nil
}

// UpdateDecision implements store.ReviewStore.
func (s *ReviewStore) UpdateDecision(_ context.Context, item *domain.ReviewItem) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.enter("reviews.UpdateDecision"); err != nil {
		return err
	}
	if _, ok := s.db.reviews[item.ID]; !ok {
		return store.ErrReviewItemNotFound
	}
	if err := item.Validate(); err != nil {
		return fmt.Errorf("%w: %w", store.ErrInvalidEntity, err)
	}
	s.db.reviews[item.ID] = *item
	return nil
}

// List implements store.ReviewStore.
func (s *ReviewStore) List(_ context.Context, f store.ReviewFilter) ([]*domain.ReviewItem, int, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.enter("reviews.List"); err != nil {
		return nil, 0, err
	}
	nameKey := domain.NormalizeKey(f.TopicName)
	var matched []*domain.ReviewItem
	for _, item := range s.db.reviews {
		if f.Status != "" && item.Status != f.Status {
			continue
		}
		if f.TopicID != nil && item.TopicID != *f.TopicID {
			continue
		}
		if nameKey != "" && s.db.topics[item.TopicID].NameKey != nameKey {
			continue
		}
		matched = append(matched, &item)
	}
	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if a.FreshnessScore != b.FreshnessScore {
			return a.FreshnessScore > b.FreshnessScore
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID.String() < b.ID.String()
	})
	total := len(matched)
	if f.Offset >= total {
		return []*domain.ReviewItem{}, total, nil
	}
	end := total
	if f.Limit > 0 && f.Offset+f.Limit < end {
		end = f.Offset + f.Limit
	}
	return matched[f.Offset:end], total, nil
}

// WithTx implements store.ReviewStore.
func (s *ReviewStore) WithTx(*sql.Tx) store.ReviewStore { return s }

// TagStore is an in-memory store.TagStore.
type TagStore struct{ db *MemoryDB }

var _ store.TagStore = (*TagStore)(nil)

// Ensure implements store.TagStore.
func (s *TagStore) Ensure(_ context.Context, name, description string) (*domain.Tag, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.enter("tags.Ensure"); err != nil {
		return nil, err
	}
	tag, err := domain.NewTag(name, description)
	if err != nil {
		return nil, err
	}
	for _, t := range s.db.tags {
		if t.Name == tag.Name {
			return &t, nil
		}
	}
	s.db.tags[tag.ID] = *tag
	return tag, nil
}

// Attach implements store.TagStore.
func (s *TagStore) Attach(_ context.Context, termID, tagID uuid.UUID, confidence float64) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.enter("tags.Attach"); err != nil {
		return false, err
	}
	if !domain.InUnitInterval(confidence) {
		return false, fmt.Errorf("%w: %w", store.ErrInvalidEntity, domain.ErrOutOfRange)
	}
	key := termTagKey{termID: termID, tagID: tagID}
	_, existed := s.db.termTags[key]
	s.db.termTags[key] = confidence
	return !existed, nil
}

// Observe implements store.TagStore.
func (s *TagStore) Observe(_ context.Context, tagID uuid.UUID, confidence float64) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.enter("tags.Observe"); err != nil {
		return err
	}
	tag, ok := s.db.tags[tagID]
	if !ok {
		return store.ErrTagNotFound
	}
	tag.Observe(confidence)
	s.db.tags[tagID] = tag
	return nil
}

// ListForTerm implements store.TagStore.
func (s *TagStore) ListForTerm(_ context.Context, termID uuid.UUID) ([]domain.TermTag, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.enter("tags.ListForTerm"); err != nil {
		return nil, err
	}
	out := make([]domain.TermTag, 0)
	for key, conf := range s.db.termTags {
		if key.termID != termID {
			continue
		}
		out = append(out, domain.TermTag{
			TermID:     termID,
			TagID:      key.tagID,
			TagName:    s.db.tags[key.tagID].Name,
			Confidence: conf,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].TagName < out[j].TagName
	})
	return out, nil
}

// List implements store.TagStore.
func (s *TagStore) List(_ context.Context, limit, offset int) ([]*domain.Tag, int, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.enter("tags.List"); err != nil {
		return nil, 0, err
	}
	all := make([]*domain.Tag, 0, len(s.db.tags))
	for _, t := range s.db.tags {
		all = append(all, &t)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	total := len(all)
	if offset >= total {
		return []*domain.Tag{}, total, nil
	}
	end := min(offset+limit, total)
	return all[offset:end], total, nil
}

// WithTx implements store.TagStore.
func (s *TagStore) WithTx(*sql.Tx) store.TagStore { return s }

// EdgeStore is an in-memory store.EdgeStore.
type EdgeStore struct{ db *MemoryDB }

var _ store.EdgeStore = (*EdgeStore)(nil)

// Upsert implements store.EdgeStore.
func (s *EdgeStore) Upsert(_ context.Context, edge *domain.GraphEdge) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.enter("edges.Upsert"); err != nil {
		return err
	}
	if err := edge.Validate(); err != nil {
		return fmt.Errorf("%w: %w", store.ErrInvalidEntity, err)
	}
	key := edgeKey{source: edge.SourceTermID, target: edge.TargetTermID, typ: edge.Type}
	if existing, ok := s.db.edges[key]; ok {
		existing.Strength = edge.Strength
		existing.UpdatedAt = time.Now().UTC()
		s.db.edges[key] = existing
		return nil
	}
	s.db.edges[key] = *edge
	return nil
}

// ListRelated implements store.EdgeStore.
func (s *EdgeStore) ListRelated(_ context.Context, termID uuid.UUID, limit int) ([]domain.RelatedTerm, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.enter("edges.ListRelated"); err != nil {
		return nil, err
	}
	out := make([]domain.RelatedTerm, 0)
	for key, e := range s.db.edges {
		if key.source != termID {
			continue
		}
		out = append(out, domain.RelatedTerm{
			TermID:   key.target,
			Term:     s.db.terms[key.target].Text,
			Type:     e.Type,
			Strength: e.Strength,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Strength != out[j].Strength {
			return out[i].Strength > out[j].Strength
		}
		return out[i].Term < out[j].Term
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Stats implements store.EdgeStore.
func (s *EdgeStore) Stats(_ context.Context) (*domain.GraphStats, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.enter("edges.Stats"); err != nil {
		return nil, err
	}
	stats := &domain.GraphStats{
		Tags:        len(s.db.tags),
		Edges:       len(s.db.edges),
		EdgesByType: make(map[domain.RelationshipType]int),
	}
	for _, t := range s.db.terms {
		if t.Status == domain.TermStatusApproved {
			stats.Terms++
		}
	}
	var sum float64
	for _, e := range s.db.edges {
		stats.EdgesByType[e.Type]++
		sum += e.Strength
	}
	if stats.Edges > 0 {
		stats.AvgStrength = sum / float64(stats.Edges)
	}
	return stats, nil
}

// WithTx implements store.EdgeStore.
func (s *EdgeStore) WithTx(*sql.Tx) store.EdgeStore { return s }
