package types

import "time"

// Lookup describes how an entity's values are matched against free text.
type Lookup string

const (
	// LookupKeywords matches values and their synonyms as literal keywords.
	LookupKeywords Lookup = "keywords"

	// LookupTrait classifies the whole utterance (e.g. intent, sentiment).
	LookupTrait Lookup = "trait"

	// LookupFreeText captures arbitrary spans without a closed value set.
	LookupFreeText Lookup = "free-text"

	// LookupPattern matches values using provider-side patterns.
	LookupPattern Lookup = "pattern"
)

// Entity is a named slot type in the NLP knowledge base, such as "intent" or
// "product". Entities own a set of Values and carry a weight used when
// scoring inference results.
type Entity struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`                  // Globally unique, alphanumeric + underscore
	Lookups     []Lookup `json:"lookups"`               // Lookup strategies for this entity
	Description string   `json:"description,omitempty"` // Human-readable description
	Builtin     bool     `json:"builtin"`               // Shipped with the system; only weight may change
	Weight      float64  `json:"weight"`                // Strictly positive scoring weight (default 1)

	// ForeignID is the identifier assigned by the external NLU provider
	// after a successful sync. Empty until the first sync completes.
	ForeignID string `json:"foreign_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Values is populated only by the "full" lookup paths.
	Values []*Value `json:"values,omitempty"`
}

// HasLookup reports whether the entity declares the given lookup strategy.
func (e *Entity) HasLookup(l Lookup) bool {
	for _, have := range e.Lookups {
		if have == l {
			return true
		}
	}
	return false
}

// EntityMap builds a name-indexed map over the given entities.
// Entities with an empty name are skipped.
func EntityMap(entities []*Entity) map[string]*Entity {
	m := make(map[string]*Entity, len(entities))
	for _, e := range entities {
		if e.Name != "" {
			m[e.Name] = e
		}
	}
	return m
}
