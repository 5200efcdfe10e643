package sqlite

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/chatforge/nlukit/internal/storage"
	"github.com/chatforge/nlukit/pkg/types"
)

// seedAnnotated creates a sample annotated with the given (entity, value)
// pairs and returns it.
func seedAnnotated(t *testing.T, store *Store, text string, sampleType types.SampleType, pairs ...storage.EntityValuePair) *types.Sample {
	t.Helper()
	ctx := context.Background()

	sample := &types.Sample{Text: text, Type: sampleType}
	if err := store.Samples().Create(ctx, sample); err != nil {
		t.Fatalf("failed to create sample %q: %v", text, err)
	}
	for _, p := range pairs {
		err := store.SampleEntities().Create(ctx, &types.SampleEntity{
			SampleID: sample.ID, EntityID: p.EntityID, ValueID: p.ValueID,
		})
		if err != nil {
			t.Fatalf("failed to annotate sample %q: %v", text, err)
		}
	}
	return sample
}

func TestSampleFindFilters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	train := &types.Sample{Text: "Hello there", Type: types.SampleTrain}
	test := &types.Sample{Text: "Goodbye now", Type: types.SampleTest}
	inbox := &types.Sample{Text: "What is this", Type: types.SampleInbox}
	for _, s := range []*types.Sample{train, test, inbox} {
		if err := store.Samples().Create(ctx, s); err != nil {
			t.Fatalf("failed to create sample: %v", err)
		}
	}

	page, err := store.Samples().Find(ctx, storage.SampleFilter{Type: types.SampleTrain}, storage.ListOptions{})
	if err != nil {
		t.Fatalf("Find() failed: %v", err)
	}
	if page.Total != 1 || len(page.Items) != 1 {
		t.Fatalf("Find(type=train): got %d items (total %d), want 1", len(page.Items), page.Total)
	}
	if page.Items[0].ID != train.ID {
		t.Errorf("Find(type=train): got %q, want %q", page.Items[0].ID, train.ID)
	}

	byText, err := store.Samples().Find(ctx, storage.SampleFilter{Text: "Goodbye now"}, storage.ListOptions{})
	if err != nil {
		t.Fatalf("Find() by text failed: %v", err)
	}
	if byText.Total != 1 || byText.Items[0].ID != test.ID {
		t.Errorf("Find(text): got total %d, want the test sample", byText.Total)
	}
}

func TestSampleFindPagination(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		s := &types.Sample{Text: fmt.Sprintf("sample %02d", i)}
		if err := store.Samples().Create(ctx, s); err != nil {
			t.Fatalf("failed to create sample: %v", err)
		}
	}

	page, err := store.Samples().Find(ctx, storage.SampleFilter{}, storage.ListOptions{Page: 2, Limit: 10})
	if err != nil {
		t.Fatalf("Find() failed: %v", err)
	}
	if page.Total != 25 {
		t.Errorf("Total: got %d, want 25", page.Total)
	}
	if len(page.Items) != 10 {
		t.Errorf("Items: got %d, want 10", len(page.Items))
	}
	if !page.HasMore {
		t.Error("HasMore: got false, want true")
	}

	last, err := store.Samples().Find(ctx, storage.SampleFilter{}, storage.ListOptions{Page: 3, Limit: 10})
	if err != nil {
		t.Fatalf("Find() failed: %v", err)
	}
	if len(last.Items) != 5 || last.HasMore {
		t.Errorf("last page: got %d items (hasMore=%v), want 5 items and no more", len(last.Items), last.HasMore)
	}
}

func TestFindByPatternMatchesSupersets(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	intent := mustCreateEntity(t, store, "intent")
	subject := mustCreateEntity(t, store, "subject")
	greeting := mustCreateValue(t, store, intent.ID, "greeting")
	goodbye := mustCreateValue(t, store, intent.ID, "goodbye")
	jhon := mustCreateValue(t, store, subject.ID, "jhon")

	pairGreeting := storage.EntityValuePair{EntityID: intent.ID, ValueID: greeting.ID}
	pairJhon := storage.EntityValuePair{EntityID: subject.ID, ValueID: jhon.ID}

	exact := seedAnnotated(t, store, "Hello", types.SampleTrain, pairGreeting)
	superset := seedAnnotated(t, store, "Hello Jhon", types.SampleTrain, pairGreeting, pairJhon)
	seedAnnotated(t, store, "Bye", types.SampleTrain, storage.EntityValuePair{EntityID: intent.ID, ValueID: goodbye.ID})
	seedAnnotated(t, store, "Unannotated", types.SampleTrain)

	page, err := store.Samples().FindByPattern(ctx, storage.PatternQuery{
		Pairs: []storage.EntityValuePair{pairGreeting},
	}, storage.ListOptions{})
	if err != nil {
		t.Fatalf("FindByPattern() failed: %v", err)
	}
	if page.Total != 2 {
		t.Fatalf("Total: got %d, want 2", page.Total)
	}
	matched := map[string]bool{}
	for _, s := range page.Items {
		matched[s.ID] = true
	}
	if !matched[exact.ID] || !matched[superset.ID] {
		t.Errorf("matched the wrong samples: %v", matched)
	}

	// Both pairs required: only the superset sample covers them.
	both, err := store.Samples().FindByPattern(ctx, storage.PatternQuery{
		Pairs: []storage.EntityValuePair{pairGreeting, pairJhon},
	}, storage.ListOptions{})
	if err != nil {
		t.Fatalf("FindByPattern() failed: %v", err)
	}
	if both.Total != 1 || both.Items[0].ID != superset.ID {
		t.Errorf("two-pair query: got total %d, want only the superset sample", both.Total)
	}
}

func TestFindByPatternDuplicateAnnotationsDoNotOverMatch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	intent := mustCreateEntity(t, store, "intent")
	subject := mustCreateEntity(t, store, "subject")
	greeting := mustCreateValue(t, store, intent.ID, "greeting")
	jhon := mustCreateValue(t, store, subject.ID, "jhon")

	pairGreeting := storage.EntityValuePair{EntityID: intent.ID, ValueID: greeting.ID}
	pairJhon := storage.EntityValuePair{EntityID: subject.ID, ValueID: jhon.ID}

	// Two annotations of the same pair must not satisfy a two-pair query.
	seedAnnotated(t, store, "Hello hello", types.SampleTrain, pairGreeting, pairGreeting)

	page, err := store.Samples().FindByPattern(ctx, storage.PatternQuery{
		Pairs: []storage.EntityValuePair{pairGreeting, pairJhon},
	}, storage.ListOptions{})
	if err != nil {
		t.Fatalf("FindByPattern() failed: %v", err)
	}
	if page.Total != 0 {
		t.Errorf("Total: got %d, want 0", page.Total)
	}

	// But the single-pair query still matches it once.
	single, err := store.Samples().FindByPattern(ctx, storage.PatternQuery{
		Pairs: []storage.EntityValuePair{pairGreeting},
	}, storage.ListOptions{})
	if err != nil {
		t.Fatalf("FindByPattern() failed: %v", err)
	}
	if single.Total != 1 {
		t.Errorf("single-pair Total: got %d, want 1", single.Total)
	}
}

func TestFindByPatternHonoursSampleFilter(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	intent := mustCreateEntity(t, store, "intent")
	greeting := mustCreateValue(t, store, intent.ID, "greeting")
	pair := storage.EntityValuePair{EntityID: intent.ID, ValueID: greeting.ID}

	train := seedAnnotated(t, store, "Hello", types.SampleTrain, pair)
	seedAnnotated(t, store, "Hello again", types.SampleTest, pair)

	page, err := store.Samples().FindByPattern(ctx, storage.PatternQuery{
		Pairs:  []storage.EntityValuePair{pair},
		Filter: storage.SampleFilter{Type: types.SampleTrain},
	}, storage.ListOptions{})
	if err != nil {
		t.Fatalf("FindByPattern() failed: %v", err)
	}
	if page.Total != 1 || page.Items[0].ID != train.ID {
		t.Errorf("filtered pattern query: got total %d, want only the train sample", page.Total)
	}
}

func TestCountByPatternAgreesWithFind(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	intent := mustCreateEntity(t, store, "intent")
	greeting := mustCreateValue(t, store, intent.ID, "greeting")
	pair := storage.EntityValuePair{EntityID: intent.ID, ValueID: greeting.ID}

	seedAnnotated(t, store, "Hello", types.SampleTrain, pair)
	seedAnnotated(t, store, "Hi", types.SampleTrain, pair)
	seedAnnotated(t, store, "Bye", types.SampleTrain)

	query := storage.PatternQuery{Pairs: []storage.EntityValuePair{pair}}
	count, err := store.Samples().CountByPattern(ctx, query)
	if err != nil {
		t.Fatalf("CountByPattern() failed: %v", err)
	}
	page, err := store.Samples().FindByPattern(ctx, query, storage.ListOptions{})
	if err != nil {
		t.Fatalf("FindByPattern() failed: %v", err)
	}
	if count != page.Total {
		t.Errorf("count %d disagrees with find total %d", count, page.Total)
	}
	if count != 2 {
		t.Errorf("count: got %d, want 2", count)
	}
}

func TestFindByPatternEmptyPairsDegradesToFind(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	seedAnnotated(t, store, "Hello", types.SampleTrain)
	seedAnnotated(t, store, "Bye", types.SampleTest)

	page, err := store.Samples().FindByPattern(ctx, storage.PatternQuery{}, storage.ListOptions{})
	if err != nil {
		t.Fatalf("FindByPattern() failed: %v", err)
	}
	if page.Total != 2 {
		t.Errorf("Total: got %d, want 2", page.Total)
	}
}

func TestFindFullPopulatesRelations(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	en := &types.Language{Title: "English", Code: "en", IsDefault: true}
	if err := store.Languages().Create(ctx, en); err != nil {
		t.Fatalf("failed to create language: %v", err)
	}
	intent := mustCreateEntity(t, store, "intent")
	greeting := mustCreateValue(t, store, intent.ID, "greeting")

	sample := &types.Sample{Text: "Hello", LanguageID: en.ID}
	if err := store.Samples().Create(ctx, sample); err != nil {
		t.Fatalf("failed to create sample: %v", err)
	}
	start, end := 0, 5
	err := store.SampleEntities().Create(ctx, &types.SampleEntity{
		SampleID: sample.ID, EntityID: intent.ID, ValueID: greeting.ID, Start: &start, End: &end,
	})
	if err != nil {
		t.Fatalf("failed to create link: %v", err)
	}

	page, err := store.Samples().FindFull(ctx, storage.SampleFilter{}, storage.ListOptions{})
	if err != nil {
		t.Fatalf("FindFull() failed: %v", err)
	}
	if len(page.Items) != 1 {
		t.Fatalf("Items: got %d, want 1", len(page.Items))
	}

	got := page.Items[0]
	if got.Language == nil || got.Language.Code != "en" {
		t.Errorf("Language: got %+v, want code en", got.Language)
	}
	if len(got.Entities) != 1 {
		t.Fatalf("Entities: got %d, want 1", len(got.Entities))
	}
	link := got.Entities[0]
	if link.EntityID != intent.ID || link.ValueID != greeting.ID {
		t.Errorf("link references: got (%q, %q)", link.EntityID, link.ValueID)
	}
	if link.Start == nil || *link.Start != 0 || link.End == nil || *link.End != 5 {
		t.Errorf("link span: got (%v, %v), want (0, 5)", link.Start, link.End)
	}
}

func TestMarkTrained(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		s := &types.Sample{Text: fmt.Sprintf("train %d", i), Type: types.SampleTrain}
		if err := store.Samples().Create(ctx, s); err != nil {
			t.Fatalf("failed to create sample: %v", err)
		}
	}
	test := &types.Sample{Text: "test sample", Type: types.SampleTest}
	if err := store.Samples().Create(ctx, test); err != nil {
		t.Fatalf("failed to create sample: %v", err)
	}

	updated, err := store.Samples().MarkTrained(ctx, types.SampleTrain, true)
	if err != nil {
		t.Fatalf("MarkTrained() failed: %v", err)
	}
	if updated != 3 {
		t.Errorf("updated: got %d, want 3", updated)
	}

	trained := true
	page, err := store.Samples().Find(ctx, storage.SampleFilter{Trained: &trained}, storage.ListOptions{})
	if err != nil {
		t.Fatalf("Find() failed: %v", err)
	}
	if page.Total != 3 {
		t.Errorf("trained samples: got %d, want 3", page.Total)
	}

	got, err := store.Samples().Get(ctx, test.ID)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got.Trained {
		t.Error("test sample was marked trained")
	}
}

func TestSampleDeleteRemovesLinks(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	intent := mustCreateEntity(t, store, "intent")
	greeting := mustCreateValue(t, store, intent.ID, "greeting")
	sample := seedAnnotated(t, store, "Hello", types.SampleTrain,
		storage.EntityValuePair{EntityID: intent.ID, ValueID: greeting.ID})

	if err := store.Samples().Delete(ctx, sample.ID); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if _, err := store.Samples().Get(ctx, sample.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Get() after delete: got %v, want ErrNotFound", err)
	}

	links, err := store.SampleEntities().ListBySample(ctx, sample.ID)
	if err != nil {
		t.Fatalf("ListBySample() failed: %v", err)
	}
	if len(links) != 0 {
		t.Errorf("links survived sample deletion: got %d, want 0", len(links))
	}
}
