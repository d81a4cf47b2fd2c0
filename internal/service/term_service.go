package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/phrazzld/lexis-api/internal/domain"
	"github.com/phrazzld/lexis-api/internal/platform/logger"
	"github.com/phrazzld/lexis-api/internal/store"
)

// Page bounds for term graph listings
const (
	DefaultRelatedLimit = 20
	MaxRelatedLimit     = 100
	DefaultTagPageSize  = 50
	MaxTagPageSize      = 200
)

// TagPage is one page of tags.
type TagPage struct {
	Tags   []*domain.Tag `json:"tags"`
	Total  int           `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

// TermService reads the term graph.
type TermService interface {
	// RelatedTerms returns up to limit edges leaving the term, strongest
	// first. Returns ErrTermNotFound for an unknown term.
	RelatedTerms(ctx context.Context, termID uuid.UUID, limit int) ([]domain.RelatedTerm, error)

	// TermTags returns the term's tags, most confident first.
	TermTags(ctx context.Context, termID uuid.UUID) ([]domain.TermTag, error)

	// ListTags returns one page of tags by name.
	ListTags(ctx context.Context, limit, offset int) (*TagPage, error)

	// GraphStats summarizes the graph.
	GraphStats(ctx context.Context) (*domain.GraphStats, error)
}

type termService struct {
	terms  store.TermStore
	tags   store.TagStore
	edges  store.EdgeStore
	logger *slog.Logger
}

var _ TermService = (*termService)(nil)

// NewTermService creates a TermService.
func NewTermService(terms store.TermStore, tags store.TagStore, edges store.EdgeStore, logger *slog.Logger) TermService {
	if terms == nil || tags == nil || edges == nil {
		panic("stores cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &termService{
		terms:  terms,
		tags:   tags,
		edges:  edges,
		logger: logger.With(slog.String("component", "term_service")),
	}
}

func (s *termService) requireTerm(ctx context.Context, termID uuid.UUID) error {
	if _, err := s.terms.GetByID(ctx, termID); err != nil {
		if errors.Is(err, store.ErrTermNotFound) {
			return ErrTermNotFound
		}
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to load term",
			slog.String("term_id", termID.String()),
			slog.String("error", err.Error()))
		return fmt.Errorf("failed to load term: %w", err)
	}
	return nil
}

// RelatedTerms implements TermService.
func (s *termService) RelatedTerms(ctx context.Context, termID uuid.UUID, limit int) ([]domain.RelatedTerm, error) {
	switch {
	case limit < 0:
		return nil, fmt.Errorf("%w: limit cannot be negative", ErrInvalidRequest)
	case limit == 0:
		limit = DefaultRelatedLimit
	case limit > MaxRelatedLimit:
		limit = MaxRelatedLimit
	}
	if err := s.requireTerm(ctx, termID); err != nil {
		return nil, err
	}
	related, err := s.edges.ListRelated(ctx, termID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list related terms: %w", err)
	}
	return related, nil
}

// TermTags implements TermService.
func (s *termService) TermTags(ctx context.Context, termID uuid.UUID) ([]domain.TermTag, error) {
	if err := s.requireTerm(ctx, termID); err != nil {
		return nil, err
	}
	tags, err := s.tags.ListForTerm(ctx, termID)
	if err != nil {
		return nil, fmt.Errorf("failed to list term tags: %w", err)
	}
	return tags, nil
}

// ListTags implements TermService.
func (s *termService) ListTags(ctx context.Context, limit, offset int) (*TagPage, error) {
	if limit < 0 || offset < 0 {
		return nil, fmt.Errorf("%w: limit and offset cannot be negative", ErrInvalidRequest)
	}
	if limit == 0 {
		limit = DefaultTagPageSize
	}
	limit = min(limit, MaxTagPageSize)

	tags, total, err := s.tags.List(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	return &TagPage{Tags: tags, Total: total, Limit: limit, Offset: offset}, nil
}

// GraphStats implements TermService.
func (s *termService) GraphStats(ctx context.Context) (*domain.GraphStats, error) {
	stats, err := s.edges.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compute graph stats: %w", err)
	}
	return stats, nil
}
