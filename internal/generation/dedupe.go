package generation

import (
	"github.com/phrazzld/lexis-api/internal/domain"
)

// exclusions tracks normalized keys that may not appear in output. Accepted
// candidates are added as they pass, so a batch is also deduplicated against
// itself.
type exclusions struct {
	keys  map[string]struct{}
	order []string
}

func newExclusions(terms []string) *exclusions {
	e := &exclusions{keys: make(map[string]struct{}, len(terms))}
	for _, t := range terms {
		e.add(t)
	}
	return e
}

func (e *exclusions) add(term string) {
	key := domain.NormalizeKey(term)
	if key == "" {
		return
	}
	if _, ok := e.keys[key]; ok {
		return
	}
	e.keys[key] = struct{}{}
	e.order = append(e.order, key)
}

func (e *exclusions) has(term string) bool {
	_, ok := e.keys[domain.NormalizeKey(term)]
	return ok
}

func (e *exclusions) list() []string {
	return append([]string(nil), e.order...)
}

// filter keeps at most limit candidates that are not excluded and reports how
// many of the batch were duplicates. A limit below zero keeps everything.
func (e *exclusions) filter(batch []domain.Candidate, limit int) (kept []domain.Candidate, duplicates int) {
	for _, c := range batch {
		if e.has(c.Term) {
			duplicates++
			continue
		}
		if limit >= 0 && len(kept) >= limit {
			continue
		}
		e.add(c.Term)
		kept = append(kept, c)
	}
	return kept, duplicates
}

// duplicateRatio is duplicates over batch size, zero for an empty batch.
func duplicateRatio(duplicates, size int) float64 {
	if size == 0 {
		return 0
	}
	return float64(duplicates) / float64(size)
}
