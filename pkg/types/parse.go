package types

// ParsedEntity is one entity guess returned by an NLU provider parse call.
type ParsedEntity struct {
	Entity     string  `json:"entity"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`

	// Score is Confidence weighted by the stored entity's weight.
	// Populated by the scoring engine, zero otherwise.
	Score float64 `json:"score,omitempty"`

	Start *int `json:"start,omitempty"`
	End   *int `json:"end,omitempty"`
}

// ParseResult is the normalized output of an NLU provider parse call.
type ParseResult struct {
	Entities []ParsedEntity `json:"entities"`
}
