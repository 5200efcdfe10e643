// Package provider defines the external NLU provider abstraction and its
// synchronisation with the local knowledge base. The local store is the
// source of truth; provider sync is best-effort and never rolls back local
// mutations.
package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/chatforge/nlukit/pkg/types"
)

// ErrNotRegistered is returned when no provider matches the requested name.
var ErrNotRegistered = errors.New("nlu provider not registered")

// EvaluationReport summarises a held-out evaluation run on the provider.
type EvaluationReport struct {
	Provider string             `json:"provider"`
	Samples  int                `json:"samples"`
	Metrics  map[string]float64 `json:"metrics,omitempty"`
}

// Provider is one external NLU engine. Entity and value sync calls return
// the provider-side identifier, which the sync handlers persist as the
// ForeignID of the local row.
type Provider interface {
	// Name identifies the provider in the registry and in config.
	Name() string

	// Train pushes the exported dataset and starts a training run.
	Train(ctx context.Context, dataset *types.Dataset) error

	// Evaluate runs the dataset against the trained model.
	Evaluate(ctx context.Context, dataset *types.Dataset) (*EvaluationReport, error)

	// Parse runs inference over free text.
	Parse(ctx context.Context, text string) (*types.ParseResult, error)

	// AddEntity registers an entity on the provider.
	AddEntity(ctx context.Context, entity *types.Entity) (foreignID string, err error)

	// UpdateEntity pushes entity changes to the provider.
	UpdateEntity(ctx context.Context, entity *types.Entity) error

	// DeleteEntity removes the provider-side entity.
	DeleteEntity(ctx context.Context, foreignID string) error

	// AddValue registers a value on the provider.
	AddValue(ctx context.Context, value *types.Value) (foreignID string, err error)

	// UpdateValue pushes value changes to the provider.
	UpdateValue(ctx context.Context, value *types.Value) error

	// DeleteValue removes the provider-side value.
	DeleteValue(ctx context.Context, foreignID string) error

	// Forget wipes all provider-side state for this project.
	Forget(ctx context.Context) error
}

// BestGuess returns the highest-scoring entity of a parse result, or false
// when the result is empty or nothing clears the threshold.
func BestGuess(result *types.ParseResult, threshold float64) (types.ParsedEntity, bool) {
	var best types.ParsedEntity
	found := false
	for _, e := range result.Entities {
		score := e.Score
		if score == 0 {
			score = e.Confidence
		}
		if score < threshold {
			continue
		}
		bestScore := best.Score
		if bestScore == 0 {
			bestScore = best.Confidence
		}
		if !found || score > bestScore {
			best = e
			found = true
		}
	}
	return best, found
}

// Registry holds the available providers by name.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds a provider, replacing any previous one of the same name.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Get returns the provider registered under name.
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotRegistered, name)
	}
	return p, nil
}

// Names lists the registered provider names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
