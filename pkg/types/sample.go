package types

import "time"

// SampleType partitions samples into training, evaluation and captured sets.
type SampleType string

const (
	// SampleTrain marks samples used to train the NLU model.
	SampleTrain SampleType = "train"

	// SampleTest marks samples held out for evaluation.
	SampleTest SampleType = "test"

	// SampleInbox marks inbound user messages captured for later triage.
	SampleInbox SampleType = "inbox"
)

// Sample is a text utterance used for training, testing or inbox capture.
type Sample struct {
	ID   string     `json:"id"`
	Text string     `json:"text"`
	Type SampleType `json:"type"`

	// Trained reports whether the sample has been pushed to the NLU provider.
	// It resets to false whenever the sample's annotations are edited.
	Trained bool `json:"trained"`

	// LanguageID references the sample's language; empty when unknown.
	// Deleting a Language clears this field rather than cascading.
	LanguageID string `json:"language,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Populated only by the "full" lookup paths.
	Language *Language       `json:"language_doc,omitempty"`
	Entities []*SampleEntity `json:"entities,omitempty"`
}

// SampleEntity links one annotated span (or whole-sample tag) of a Sample to
// an (Entity, Value) pair. When Start/End are present they are character
// offsets into the owning sample's text, and text[start:end] is either the
// canonical value or one of its synonyms.
type SampleEntity struct {
	ID       string `json:"id"`
	SampleID string `json:"sample"`
	EntityID string `json:"entity"`
	ValueID  string `json:"value"`

	Start *int `json:"start,omitempty"`
	End   *int `json:"end,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Annotation is the wire form of a sample annotation before entity and value
// names have been resolved to stored identifiers: Entity and Value hold names
// and surface text, and the linking services replace them with row IDs.
type Annotation struct {
	Entity string `json:"entity"` // Entity name (or resolved ID)
	Value  string `json:"value"`  // Value text (or resolved ID)
	Start  *int   `json:"start,omitempty"`
	End    *int   `json:"end,omitempty"`
}

// Span reports the annotation's offsets when both bounds are present.
func (a *Annotation) Span() (start, end int, ok bool) {
	if a.Start == nil || a.End == nil {
		return 0, 0, false
	}
	return *a.Start, *a.End, true
}
