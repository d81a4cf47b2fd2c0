package task

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryTaskStore is a TaskStore kept in process memory. It backs tests and
// single-process development runs.
type MemoryTaskStore struct {
	mu      sync.Mutex
	records map[uuid.UUID]*Record
	now     func() time.Time
}

var _ TaskStore = (*MemoryTaskStore)(nil)

// NewMemoryTaskStore creates an empty store.
func NewMemoryTaskStore() *MemoryTaskStore {
	return &MemoryTaskStore{
		records: make(map[uuid.UUID]*Record),
		now:     time.Now,
	}
}

// SaveTask implements TaskStore.
func (s *MemoryTaskStore) SaveTask(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.records[rec.ID] = &cp
	return nil
}

// ClaimDue implements TaskStore.
func (s *MemoryTaskStore) ClaimDue(_ context.Context, limit int, now time.Time) ([]*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	due := make([]*Record, 0)
	for _, rec := range s.records {
		if rec.Status == TaskStatusPending && !rec.NextRunAt.After(now) {
			due = append(due, rec)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].NextRunAt.Equal(due[j].NextRunAt) {
			return due[i].CreatedAt.Before(due[j].CreatedAt)
		}
		return due[i].NextRunAt.Before(due[j].NextRunAt)
	})
	if len(due) > limit {
		due = due[:limit]
	}

	claimed := make([]*Record, 0, len(due))
	for _, rec := range due {
		rec.Status = TaskStatusProcessing
		rec.Attempts++
		rec.UpdatedAt = now
		cp := *rec
		claimed = append(claimed, &cp)
	}
	return claimed, nil
}

func (s *MemoryTaskStore) update(id uuid.UUID, fn func(rec *Record)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return ErrTaskNotFound
	}
	fn(rec)
	rec.UpdatedAt = s.now().UTC()
	return nil
}

// MarkCompleted implements TaskStore.
func (s *MemoryTaskStore) MarkCompleted(_ context.Context, id uuid.UUID) error {
	return s.update(id, func(rec *Record) {
		rec.Status = TaskStatusCompleted
		rec.ErrorMessage = ""
	})
}

// MarkRetry implements TaskStore.
func (s *MemoryTaskStore) MarkRetry(_ context.Context, id uuid.UUID, nextRun time.Time, errMsg string) error {
	return s.update(id, func(rec *Record) {
		rec.Status = TaskStatusPending
		rec.NextRunAt = nextRun.UTC()
		rec.ErrorMessage = errMsg
	})
}

// MarkFailed implements TaskStore.
func (s *MemoryTaskStore) MarkFailed(_ context.Context, id uuid.UUID, errMsg string) error {
	return s.update(id, func(rec *Record) {
		rec.Status = TaskStatusFailed
		rec.ErrorMessage = errMsg
	})
}

// ResetStuck implements TaskStore.
func (s *MemoryTaskStore) ResetStuck(_ context.Context, olderThan time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	var n int64
	for _, rec := range s.records {
		if rec.Status != TaskStatusProcessing || now.Sub(rec.UpdatedAt) <= olderThan {
			continue
		}
		if rec.Attempts >= rec.MaxAttempts {
			rec.Status = TaskStatusFailed
		} else {
			rec.Status = TaskStatusPending
			rec.NextRunAt = now
		}
		rec.ErrorMessage = "reset after being stuck in processing state"
		rec.UpdatedAt = now
		n++
	}
	return n, nil
}

// WithTx implements TaskStore. The memory store has no transactions.
func (s *MemoryTaskStore) WithTx(_ *sql.Tx) TaskStore {
	return s
}

// Get returns a copy of the record, for assertions.
func (s *MemoryTaskStore) Get(id uuid.UUID) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// Records returns copies of every record.
func (s *MemoryTaskStore) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, *rec)
	}
	return out
}
