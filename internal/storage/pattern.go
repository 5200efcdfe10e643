package storage

// Pattern queries find or count samples whose annotations cover an arbitrary
// conjunction of (entity, value) pairs. The plan shared by all backends:
//
//  1. apply the plain SampleFilter;
//  2. restrict each candidate's sample-entity rows to ones matching a
//     required pair;
//  3. discard candidates with fewer restricted rows than required pairs
//     (cheap cardinality pre-filter: "enough rows", not yet "the right
//     rows", since duplicate links can satisfy the count with one pair);
//  4. collapse the restricted rows into distinct (entity, value) tuples and
//     keep candidates whose intersection with the required set has size
//     exactly len(required), proving superset membership.
//
// An empty required-pairs set degrades to a plain filtered find/count.

// EntityValuePair is one required (entity, value) tag in a pattern query.
type EntityValuePair struct {
	EntityID string
	ValueID  string
}

// PatternQuery combines required pairs with a plain sample filter.
type PatternQuery struct {
	Pairs  []EntityValuePair
	Filter SampleFilter
}

// DedupePairs returns the distinct pairs of the query, preserving order.
// The intersection check in step 4 must run against the deduplicated set,
// otherwise a repeated required pair would inflate the target cardinality.
func (q *PatternQuery) DedupePairs() []EntityValuePair {
	seen := make(map[EntityValuePair]struct{}, len(q.Pairs))
	out := make([]EntityValuePair, 0, len(q.Pairs))
	for _, p := range q.Pairs {
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

// CoversPairs reports whether the candidate's matched rows, collapsed to
// distinct (entity, value) tuples, form a superset of the required pairs.
// matched is expected to already be restricted to rows hitting some required
// pair (plan step 2); required must be deduplicated.
func CoversPairs(matched []EntityValuePair, required []EntityValuePair) bool {
	if len(required) == 0 {
		return true
	}

	want := make(map[EntityValuePair]struct{}, len(required))
	for _, p := range required {
		want[p] = struct{}{}
	}

	hit := make(map[EntityValuePair]struct{}, len(required))
	for _, m := range matched {
		if _, ok := want[m]; ok {
			hit[m] = struct{}{}
		}
	}
	return len(hit) == len(want)
}
