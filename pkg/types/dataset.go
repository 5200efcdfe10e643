package types

// Training-dataset export document, compatible with Rasa-style NLU trainers.
// Produced by the dataset formatter from the full Sample + SampleEntity +
// Entity + Value graph.

// DatasetExample is one annotated utterance in the exported dataset.
type DatasetExample struct {
	Text     string          `json:"text"`
	Intent   string          `json:"intent"`
	Entities []ExampleEntity `json:"entities"`
}

// ExampleEntity is an (entity, value) tag inside a dataset example, with
// optional span offsets when the tag was annotated on a substring.
type ExampleEntity struct {
	Entity string `json:"entity"`
	Value  string `json:"value"`
	Start  *int   `json:"start,omitempty"`
	End    *int   `json:"end,omitempty"`
}

// LookupTable enumerates the distinct values of one keyword/trait entity.
type LookupTable struct {
	Name     string   `json:"name"`
	Elements []string `json:"elements"`
}

// EntitySynonym maps a canonical value to its observed synonym expressions.
type EntitySynonym struct {
	Value    string   `json:"value"`
	Synonyms []string `json:"synonyms"`
}

// Dataset is the full training-dataset export document.
type Dataset struct {
	CommonExamples []DatasetExample `json:"common_examples"`
	RegexFeatures  []string         `json:"regex_features"`
	LookupTables   []LookupTable    `json:"lookup_tables"`
	EntitySynonyms []EntitySynonym  `json:"entity_synonyms"`
}
