package mocks

import (
	"context"
	"maps"
	"sync"

	"github.com/google/uuid"

	"github.com/phrazzld/lexis-api/internal/domain"
	"github.com/phrazzld/lexis-api/internal/store"
)

type termTagKey struct {
	termID uuid.UUID
	tagID  uuid.UUID
}

type edgeKey struct {
	source uuid.UUID
	target uuid.UUID
	typ    domain.RelationshipType
}

// MemoryDB is an in-memory relational fake shared by the store fakes below.
// Transactions are serialized and roll back every change when fn fails, so
// tests can observe the same atomicity the Postgres stores give.
type MemoryDB struct {
	txMu sync.Mutex
	mu   sync.Mutex

	topics   map[uuid.UUID]domain.Topic
	sets     map[uuid.UUID]domain.CanonicalSet
	terms    map[uuid.UUID]domain.Term
	reviews  map[uuid.UUID]domain.ReviewItem
	tags     map[uuid.UUID]domain.Tag
	termTags map[termTagKey]float64
	edges    map[edgeKey]domain.GraphEdge

	failures map[string]error
	calls    map[string]int
}

// NewMemoryDB creates an empty database.
func NewMemoryDB() *MemoryDB {
	return &MemoryDB{
		topics:   make(map[uuid.UUID]domain.Topic),
		sets:     make(map[uuid.UUID]domain.CanonicalSet),
		terms:    make(map[uuid.UUID]domain.Term),
		reviews:  make(map[uuid.UUID]domain.ReviewItem),
		tags:     make(map[uuid.UUID]domain.Tag),
		termTags: make(map[termTagKey]float64),
		edges:    make(map[edgeKey]domain.GraphEdge),
		failures: make(map[string]error),
		calls:    make(map[string]int),
	}
}

// FailOn makes the next call of op return err. Ops are named
// "<store>.<Method>", for example "terms.Create".
func (db *MemoryDB) FailOn(op string, err error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.failures[op] = err
}

// Calls reports how many times op was invoked.
func (db *MemoryDB) Calls(op string) int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.calls[op]
}

// enter records a call and returns an injected failure. The caller must
// hold db.mu.
func (db *MemoryDB) enter(op string) error {
	db.calls[op]++
	if err, ok := db.failures[op]; ok {
		delete(db.failures, op)
		return err
	}
	return nil
}

type snapshot struct {
	topics   map[uuid.UUID]domain.Topic
	sets     map[uuid.UUID]domain.CanonicalSet
	terms    map[uuid.UUID]domain.Term
	reviews  map[uuid.UUID]domain.ReviewItem
	tags     map[uuid.UUID]domain.Tag
	termTags map[termTagKey]float64
	edges    map[edgeKey]domain.GraphEdge
}

func (db *MemoryDB) snapshot() snapshot {
	db.mu.Lock()
	defer db.mu.Unlock()
	return snapshot{
		topics:   maps.Clone(db.topics),
		sets:     maps.Clone(db.sets),
		terms:    maps.Clone(db.terms),
		reviews:  maps.Clone(db.reviews),
		tags:     maps.Clone(db.tags),
		termTags: maps.Clone(db.termTags),
		edges:    maps.Clone(db.edges),
	}
}

func (db *MemoryDB) restore(s snapshot) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.topics, db.sets, db.terms, db.reviews = s.topics, s.sets, s.terms, s.reviews
	db.tags, db.termTags, db.edges = s.tags, s.termTags, s.edges
}

var _ store.Transactor = (*MemoryDB)(nil)

// InTransaction implements store.Transactor. fn receives a nil *sql.Tx; the
// fakes' WithTx ignores it.
func (db *MemoryDB) InTransaction(ctx context.Context, fn store.TxFn) error {
	db.txMu.Lock()
	defer db.txMu.Unlock()

	db.mu.Lock()
	err := db.enter("tx.Begin")
	db.mu.Unlock()
	if err != nil {
		return err
	}

	before := db.snapshot()
	if err := fn(ctx, nil); err != nil {
		db.restore(before)
		return err
	}
	return nil
}

// Topics returns a TopicStore over db.
func (db *MemoryDB) Topics() *TopicStore { return &TopicStore{db: db} }

// Sets returns a CanonicalSetStore over db.
func (db *MemoryDB) Sets() *CanonicalSetStore { return &CanonicalSetStore{db: db} }

// Terms returns a TermStore over db.
func (db *MemoryDB) Terms() *TermStore { return &TermStore{db: db} }

// Reviews returns a ReviewStore over db.
func (db *MemoryDB) Reviews() *ReviewStore { return &ReviewStore{db: db} }

// Tags returns a TagStore over db.
func (db *MemoryDB) Tags() *TagStore { return &TagStore{db: db} }

// Edges returns an EdgeStore over db.
func (db *MemoryDB) Edges() *EdgeStore { return &EdgeStore{db: db} }

// SeedTopic inserts a topic and returns it.
func (db *MemoryDB) SeedTopic(name string) *domain.Topic {
	topic, err := domain.NewTopic(name)
	if err != nil {
		// ALLOW-PANIC: seed helpers are only called with valid fixtures
		panic(err)
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	db.topics[topic.ID] = *topic
	return topic
}

// SeedTerm inserts an approved term into topic, and into its canonical set
// when one exists.
func (db *MemoryDB) SeedTerm(topic *domain.Topic, text, definition string) *domain.Term {
	db.mu.Lock()
	defer db.mu.Unlock()
	var setID *uuid.UUID
	if t, ok := db.topics[topic.ID]; ok && t.CanonicalSetID != nil {
		id := *t.CanonicalSetID
		setID = &id
		set := db.sets[id]
		set.TermCount++
		db.sets[id] = set
	}
	term, err := domain.NewTermFromCandidate(topic.ID, setID, domain.Candidate{Term: text, Definition: definition}, 0.9, 0)
	if err != nil {
		// ALLOW-PANIC: seed helpers are only called with valid fixtures
		panic(err)
	}
	db.terms[term.ID] = *term
	return term
}

// TermsByTopic returns every term stored for a topic.
func (db *MemoryDB) TermsByTopic(topicID uuid.UUID) []domain.Term {
	db.mu.Lock()
	defer db.mu.Unlock()
	var out []domain.Term
	for _, t := range db.terms {
		if t.TopicID == topicID {
			out = append(out, t)
		}
	}
	return out
}

// ReviewItems returns every stored review item.
func (db *MemoryDB) ReviewItems() []domain.ReviewItem {
	db.mu.Lock()
	defer db.mu.Unlock()
	out := make([]domain.ReviewItem, 0, len(db.reviews))
	for _, r := range db.reviews {
		out = append(out, r)
	}
	return out
}

// EdgeCount returns the number of stored edges.
func (db *MemoryDB) EdgeCount() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.edges)
}
