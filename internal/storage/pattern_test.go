package storage

import "testing"

func pair(entity, value string) EntityValuePair {
	return EntityValuePair{EntityID: entity, ValueID: value}
}

func TestDedupePairsPreservesOrder(t *testing.T) {
	q := PatternQuery{Pairs: []EntityValuePair{
		pair("e1", "v1"),
		pair("e2", "v2"),
		pair("e1", "v1"),
		pair("e2", "v2"),
		pair("e3", "v3"),
	}}

	got := q.DedupePairs()
	want := []EntityValuePair{pair("e1", "v1"), pair("e2", "v2"), pair("e3", "v3")}
	if len(got) != len(want) {
		t.Fatalf("got %d pairs, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("pair %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestCoversPairs(t *testing.T) {
	tests := []struct {
		name     string
		matched  []EntityValuePair
		required []EntityValuePair
		want     bool
	}{
		{
			name:     "empty required always covered",
			matched:  nil,
			required: nil,
			want:     true,
		},
		{
			name:     "exact match",
			matched:  []EntityValuePair{pair("e1", "v1")},
			required: []EntityValuePair{pair("e1", "v1")},
			want:     true,
		},
		{
			name:     "superset covers",
			matched:  []EntityValuePair{pair("e1", "v1"), pair("e2", "v2")},
			required: []EntityValuePair{pair("e1", "v1")},
			want:     true,
		},
		{
			name:     "missing pair fails",
			matched:  []EntityValuePair{pair("e1", "v1")},
			required: []EntityValuePair{pair("e1", "v1"), pair("e2", "v2")},
			want:     false,
		},
		{
			name:     "duplicate matched rows do not inflate coverage",
			matched:  []EntityValuePair{pair("e1", "v1"), pair("e1", "v1")},
			required: []EntityValuePair{pair("e1", "v1"), pair("e2", "v2")},
			want:     false,
		},
		{
			name:     "same entity different value is a distinct tuple",
			matched:  []EntityValuePair{pair("e1", "v1")},
			required: []EntityValuePair{pair("e1", "v2")},
			want:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CoversPairs(tt.matched, tt.required); got != tt.want {
				t.Errorf("CoversPairs() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestListOptionsNormalize(t *testing.T) {
	var opts ListOptions
	opts.Normalize()
	if opts.Page != 1 || opts.Limit != 10 {
		t.Errorf("defaults: got page %d limit %d, want 1 and 10", opts.Page, opts.Limit)
	}
	if opts.SortBy != "created_at" || opts.SortOrder != "desc" {
		t.Errorf("default sort: got %s %s", opts.SortBy, opts.SortOrder)
	}

	opts = ListOptions{Page: 3, Limit: 500, SortBy: "name; --", SortOrder: "sideways"}
	opts.Normalize()
	if opts.Limit != 100 {
		t.Errorf("limit cap: got %d, want 100", opts.Limit)
	}
	if opts.SortBy != "created_at" {
		t.Errorf("unknown sort field: got %q, want created_at", opts.SortBy)
	}
	if opts.SortOrder != "desc" {
		t.Errorf("unknown sort order: got %q, want desc", opts.SortOrder)
	}
	if opts.Offset() != 200 {
		t.Errorf("Offset(): got %d, want 200", opts.Offset())
	}
}
