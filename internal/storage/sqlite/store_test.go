package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/chatforge/nlukit/internal/storage"
	"github.com/chatforge/nlukit/pkg/types"
)

// newTestStore creates an in-memory SQLite store for testing. Open runs the
// full Schema, so no additional DDL is required in tests.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func mustCreateEntity(t *testing.T, store *Store, name string) *types.Entity {
	t.Helper()
	e := &types.Entity{Name: name}
	if err := store.Entities().Create(context.Background(), e); err != nil {
		t.Fatalf("failed to create entity %q: %v", name, err)
	}
	return e
}

func mustCreateValue(t *testing.T, store *Store, entityID, value string) *types.Value {
	t.Helper()
	v := &types.Value{EntityID: entityID, Value: value}
	if err := store.Values().Create(context.Background(), v); err != nil {
		t.Fatalf("failed to create value %q: %v", value, err)
	}
	return v
}

func TestEntityCreateAppliesDefaults(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	e := &types.Entity{Name: "intent"}
	if err := store.Entities().Create(ctx, e); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	got, err := store.Entities().GetByName(ctx, "intent")
	if err != nil {
		t.Fatalf("GetByName() failed: %v", err)
	}
	if got.ID != e.ID {
		t.Errorf("ID: got %q, want %q", got.ID, e.ID)
	}
	if got.Weight != 1 {
		t.Errorf("Weight: got %v, want 1", got.Weight)
	}
	if len(got.Lookups) != 1 || got.Lookups[0] != types.LookupKeywords {
		t.Errorf("Lookups: got %v, want [keywords]", got.Lookups)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Error("timestamps were not set")
	}
}

func TestEntityDuplicateNameYieldsConflict(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	mustCreateEntity(t, store, "intent")

	err := store.Entities().Create(ctx, &types.Entity{Name: "intent"})
	if !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("Create() duplicate: got %v, want ErrConflict", err)
	}
}

func TestEntityNegativeWeightRejected(t *testing.T) {
	store := newTestStore(t)

	err := store.Entities().Create(context.Background(), &types.Entity{Name: "x", Weight: -2})
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Fatalf("Create() negative weight: got %v, want ErrInvalidInput", err)
	}
}

func TestEntityFindOneOrCreateIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first, err := store.Entities().FindOneOrCreate(ctx, "intent", nil)
	if err != nil {
		t.Fatalf("FindOneOrCreate() first call failed: %v", err)
	}
	second, err := store.Entities().FindOneOrCreate(ctx, "intent", nil)
	if err != nil {
		t.Fatalf("FindOneOrCreate() second call failed: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("second call created a new row: %q != %q", first.ID, second.ID)
	}

	page, err := store.Entities().List(ctx, storage.ListOptions{})
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if page.Total != 1 {
		t.Errorf("Total: got %d, want 1", page.Total)
	}
}

func TestEntityDeleteCascadesToValuesAndLinks(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	e := mustCreateEntity(t, store, "intent")
	v := mustCreateValue(t, store, e.ID, "greeting")

	sample := &types.Sample{Text: "Hello there"}
	if err := store.Samples().Create(ctx, sample); err != nil {
		t.Fatalf("failed to create sample: %v", err)
	}
	link := &types.SampleEntity{SampleID: sample.ID, EntityID: e.ID, ValueID: v.ID}
	if err := store.SampleEntities().Create(ctx, link); err != nil {
		t.Fatalf("failed to create link: %v", err)
	}

	if err := store.Entities().Delete(ctx, e.ID); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}

	if _, err := store.Values().Get(ctx, v.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("value survived cascade: got %v, want ErrNotFound", err)
	}
	links, err := store.SampleEntities().ListBySample(ctx, sample.ID)
	if err != nil {
		t.Fatalf("ListBySample() failed: %v", err)
	}
	if len(links) != 0 {
		t.Errorf("links survived cascade: got %d, want 0", len(links))
	}

	// The sample itself is untouched.
	if _, err := store.Samples().Get(ctx, sample.ID); err != nil {
		t.Errorf("sample should survive entity deletion: %v", err)
	}
}

func TestValueTextIsGloballyUnique(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := mustCreateEntity(t, store, "intent")
	b := mustCreateEntity(t, store, "subject")
	mustCreateValue(t, store, a.ID, "greeting")

	err := store.Values().Create(ctx, &types.Value{EntityID: b.ID, Value: "greeting"})
	if !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("Create() duplicate value across entities: got %v, want ErrConflict", err)
	}
}

func TestValueExpressionsAndMetadataRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	e := mustCreateEntity(t, store, "intent")
	v := &types.Value{
		EntityID:    e.ID,
		Value:       "greeting",
		Expressions: []string{"hello", "hey"},
		Metadata:    map[string]interface{}{"origin": "import"},
	}
	if err := store.Values().Create(ctx, v); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	got, err := store.Values().Get(ctx, v.ID)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if len(got.Expressions) != 2 || got.Expressions[0] != "hello" || got.Expressions[1] != "hey" {
		t.Errorf("Expressions: got %v, want [hello hey]", got.Expressions)
	}
	if origin, ok := got.Metadata["origin"].(string); !ok || origin != "import" {
		t.Errorf("Metadata[origin]: got %v, want %q", got.Metadata["origin"], "import")
	}
}

func TestValueFindOneOrCreateReusesExistingRow(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	e := mustCreateEntity(t, store, "intent")
	existing := mustCreateValue(t, store, e.ID, "greeting")

	got, err := store.Values().FindOneOrCreate(ctx, "greeting", &types.Value{EntityID: e.ID})
	if err != nil {
		t.Fatalf("FindOneOrCreate() failed: %v", err)
	}
	if got.ID != existing.ID {
		t.Errorf("created a duplicate row: %q != %q", got.ID, existing.ID)
	}
}

func TestListAllWithValuesNestsValues(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	intent := mustCreateEntity(t, store, "intent")
	subject := mustCreateEntity(t, store, "subject")
	mustCreateValue(t, store, intent.ID, "greeting")
	mustCreateValue(t, store, intent.ID, "goodbye")
	mustCreateValue(t, store, subject.ID, "jhon")

	entities, err := store.Entities().ListAllWithValues(ctx)
	if err != nil {
		t.Fatalf("ListAllWithValues() failed: %v", err)
	}
	if len(entities) != 2 {
		t.Fatalf("got %d entities, want 2", len(entities))
	}

	byName := types.EntityMap(entities)
	if got := len(byName["intent"].Values); got != 2 {
		t.Errorf("intent values: got %d, want 2", got)
	}
	if got := len(byName["subject"].Values); got != 1 {
		t.Errorf("subject values: got %d, want 1", got)
	}
}

func TestEntityUpdateMissingRowReturnsNotFound(t *testing.T) {
	store := newTestStore(t)

	err := store.Entities().Update(context.Background(), &types.Entity{ID: "nope", Name: "x"})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Update() missing row: got %v, want ErrNotFound", err)
	}
}

func TestLanguageDefaultLookup(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Languages().GetDefault(ctx); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("GetDefault() with no rows: got %v, want ErrNotFound", err)
	}

	en := &types.Language{Title: "English", Code: "en", IsDefault: true}
	fr := &types.Language{Title: "French", Code: "fr"}
	if err := store.Languages().Create(ctx, en); err != nil {
		t.Fatalf("failed to create language: %v", err)
	}
	if err := store.Languages().Create(ctx, fr); err != nil {
		t.Fatalf("failed to create language: %v", err)
	}

	got, err := store.Languages().GetDefault(ctx)
	if err != nil {
		t.Fatalf("GetDefault() failed: %v", err)
	}
	if got.Code != "en" {
		t.Errorf("default language: got %q, want %q", got.Code, "en")
	}

	if err := store.Languages().Create(ctx, &types.Language{Title: "Anglais", Code: "en"}); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("Create() duplicate code: got %v, want ErrConflict", err)
	}
}

func TestLanguageDeleteClearsSampleReference(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	en := &types.Language{Title: "English", Code: "en", IsDefault: true}
	if err := store.Languages().Create(ctx, en); err != nil {
		t.Fatalf("failed to create language: %v", err)
	}
	sample := &types.Sample{Text: "Hello", LanguageID: en.ID}
	if err := store.Samples().Create(ctx, sample); err != nil {
		t.Fatalf("failed to create sample: %v", err)
	}

	if err := store.Languages().Delete(ctx, en.ID); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}

	got, err := store.Samples().Get(ctx, sample.ID)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got.LanguageID != "" {
		t.Errorf("LanguageID: got %q, want empty", got.LanguageID)
	}
}

func TestSampleEntityFindOneOrCreateMatchesSpan(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	e := mustCreateEntity(t, store, "intent")
	v := mustCreateValue(t, store, e.ID, "greeting")
	sample := &types.Sample{Text: "Hello there"}
	if err := store.Samples().Create(ctx, sample); err != nil {
		t.Fatalf("failed to create sample: %v", err)
	}

	start, end := 0, 5
	first, err := store.SampleEntities().FindOneOrCreate(ctx, &types.SampleEntity{
		SampleID: sample.ID, EntityID: e.ID, ValueID: v.ID, Start: &start, End: &end,
	})
	if err != nil {
		t.Fatalf("FindOneOrCreate() first call failed: %v", err)
	}

	again, err := store.SampleEntities().FindOneOrCreate(ctx, &types.SampleEntity{
		SampleID: sample.ID, EntityID: e.ID, ValueID: v.ID, Start: &start, End: &end,
	})
	if err != nil {
		t.Fatalf("FindOneOrCreate() second call failed: %v", err)
	}
	if again.ID != first.ID {
		t.Error("identical annotation was duplicated")
	}

	// A different span is a distinct annotation.
	start2, end2 := 6, 11
	other, err := store.SampleEntities().FindOneOrCreate(ctx, &types.SampleEntity{
		SampleID: sample.ID, EntityID: e.ID, ValueID: v.ID, Start: &start2, End: &end2,
	})
	if err != nil {
		t.Fatalf("FindOneOrCreate() third call failed: %v", err)
	}
	if other.ID == first.ID {
		t.Error("distinct span collapsed into the same row")
	}

	links, err := store.SampleEntities().ListBySample(ctx, sample.ID)
	if err != nil {
		t.Fatalf("ListBySample() failed: %v", err)
	}
	if len(links) != 2 {
		t.Errorf("links: got %d, want 2", len(links))
	}
}

func TestListOptionsRejectsUnknownSortField(t *testing.T) {
	store := newTestStore(t)
	mustCreateEntity(t, store, "intent")

	// An unknown sort field falls back to created_at instead of reaching SQL.
	page, err := store.Entities().List(context.Background(), storage.ListOptions{
		SortBy: "name; DROP TABLE entities",
	})
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if page.Total != 1 {
		t.Errorf("Total: got %d, want 1", page.Total)
	}
}
