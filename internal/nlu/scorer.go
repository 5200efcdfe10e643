package nlu

import (
	"context"

	"github.com/chatforge/nlukit/pkg/types"
)

// Scorer weights provider inference results against the knowledge map.
type Scorer struct {
	cache *KnowledgeMap
}

// NewScorer creates a scorer over the given knowledge-map cache.
func NewScorer(cache *KnowledgeMap) *Scorer {
	return &Scorer{cache: cache}
}

// ComputeScores sets Score = Confidence * weight on every parsed entity
// whose name is present in the knowledge map; entities not in the map are
// dropped from the output. A zero stored weight falls back to 1. Input order
// is preserved among retained entities; no cross-list normalisation happens
// here.
func (s *Scorer) ComputeScores(ctx context.Context, parsed []types.ParsedEntity) ([]types.ParsedEntity, error) {
	snapshot, err := s.cache.Get(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]types.ParsedEntity, 0, len(parsed))
	for _, p := range parsed {
		entity, ok := snapshot[p.Entity]
		if !ok {
			continue
		}
		weight := entity.Weight
		if weight == 0 {
			weight = 1
		}
		p.Score = p.Confidence * weight
		out = append(out, p)
	}
	return out, nil
}
