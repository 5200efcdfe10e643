package types

import "time"

// Value is one concrete value of an Entity (e.g. the value "pizza" for the
// entity "product"). The Value string is unique across the whole store, not
// just within its entity; find-or-create paths are keyed by value text only.
type Value struct {
	ID       string `json:"id"`
	EntityID string `json:"entity"` // Owning entity, required
	Value    string `json:"value"`  // Canonical surface form, globally unique

	// Expressions holds synonym surface forms observed in training samples,
	// in observation order, deduplicated by exact match.
	Expressions []string `json:"expressions"`

	// Metadata is an opaque bag for provider- or UI-specific extras.
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	Builtin   bool   `json:"builtin"`
	ForeignID string `json:"foreign_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Entity is populated only by the "full" lookup paths.
	Entity *Entity `json:"entity_doc,omitempty"`
}

// HasExpression reports whether the given surface form is already recorded,
// using case-sensitive exact matching.
func (v *Value) HasExpression(word string) bool {
	for _, expr := range v.Expressions {
		if expr == word {
			return true
		}
	}
	return false
}

// ValueMap builds a value-text-indexed map over the given values.
func ValueMap(values []*Value) map[string]*Value {
	m := make(map[string]*Value, len(values))
	for _, v := range values {
		m[v.Value] = v
	}
	return m
}
