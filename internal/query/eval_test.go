package query

import (
	"context"
	"errors"
	"testing"
)

// fakePostings is a PostingsSource backed by a plain ascending slice, for
// evaluator tests that don't need the real on-disk codec.
type fakePostings struct {
	vals []uint32
	pos  int
}

func (f *fakePostings) Next() (uint32, bool, error) {
	if f.pos >= len(f.vals) {
		return 0, false, nil
	}
	v := f.vals[f.pos]
	f.pos++
	return v, true, nil
}

func (f *fakePostings) SeekTo(target uint32) (uint32, bool, error) {
	for f.pos < len(f.vals) && f.vals[f.pos] < target {
		f.pos++
	}
	return f.Next()
}

func trigWithPostings(name string, vals []uint32) *Query {
	return &Query{Kind: KindTrigram, Trigram: t3(name), Postings: &fakePostings{vals: vals}}
}

func drain(t *testing.T, e Evaluator) []uint32 {
	t.Helper()
	var out []uint32
	for {
		v, ok, err := e.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
		if len(out) > 0 && v <= out[len(out)-1] {
			t.Fatalf("evaluator produced non-ascending sequence: %v then %v", out[len(out)-1], v)
		}
		out = append(out, v)
	}
	return out
}

func equalSlices(a, b []uint32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestEvalMatchAll(t *testing.T) {
	e := NewEvaluator(context.Background(), MatchAllQuery(), 4)
	got := drain(t, e)
	if !equalSlices(got, []uint32{0, 1, 2, 3}) {
		t.Fatalf("MatchAll over 4 chunks = %v", got)
	}
}

func TestEvalMatchNone(t *testing.T) {
	e := NewEvaluator(context.Background(), MatchNoneQuery(), 4)
	got := drain(t, e)
	if len(got) != 0 {
		t.Fatalf("MatchNone = %v, want empty", got)
	}
}

func TestEvalAndIntersection(t *testing.T) {
	q := &Query{Kind: KindAnd, Children: []*Query{
		trigWithPostings("aaa", []uint32{1, 3, 5, 7, 9}),
		trigWithPostings("bbb", []uint32{2, 3, 5, 8, 9}),
	}}
	e := NewEvaluator(context.Background(), q, 100)
	got := drain(t, e)
	if !equalSlices(got, []uint32{3, 5, 9}) {
		t.Fatalf("And intersection = %v, want [3 5 9]", got)
	}
}

func TestEvalAndThreeWay(t *testing.T) {
	q := &Query{Kind: KindAnd, Children: []*Query{
		trigWithPostings("aaa", []uint32{1, 2, 3, 4, 5, 6}),
		trigWithPostings("bbb", []uint32{2, 4, 6}),
		trigWithPostings("ccc", []uint32{4, 5, 6, 7}),
	}}
	e := NewEvaluator(context.Background(), q, 100)
	got := drain(t, e)
	if !equalSlices(got, []uint32{4, 6}) {
		t.Fatalf("And three-way intersection = %v, want [4 6]", got)
	}
}

func TestEvalAndEmptyOnNoOverlap(t *testing.T) {
	q := &Query{Kind: KindAnd, Children: []*Query{
		trigWithPostings("aaa", []uint32{1, 3, 5}),
		trigWithPostings("bbb", []uint32{2, 4, 6}),
	}}
	e := NewEvaluator(context.Background(), q, 100)
	got := drain(t, e)
	if len(got) != 0 {
		t.Fatalf("And with no overlap = %v, want empty", got)
	}
}

func TestEvalOrUnionDeduped(t *testing.T) {
	q := &Query{Kind: KindOr, Children: []*Query{
		trigWithPostings("aaa", []uint32{1, 3, 5}),
		trigWithPostings("bbb", []uint32{2, 3, 6}),
	}}
	e := NewEvaluator(context.Background(), q, 100)
	got := drain(t, e)
	if !equalSlices(got, []uint32{1, 2, 3, 5, 6}) {
		t.Fatalf("Or union = %v, want [1 2 3 5 6]", got)
	}
}

func TestEvalNestedAndOr(t *testing.T) {
	// (aaa AND bbb) OR ccc
	inner := &Query{Kind: KindAnd, Children: []*Query{
		trigWithPostings("aaa", []uint32{1, 2, 3, 4}),
		trigWithPostings("bbb", []uint32{2, 4, 6}),
	}}
	q := &Query{Kind: KindOr, Children: []*Query{
		inner,
		trigWithPostings("ccc", []uint32{0, 4, 9}),
	}}
	e := NewEvaluator(context.Background(), q, 100)
	got := drain(t, e)
	if !equalSlices(got, []uint32{0, 2, 4, 9}) {
		t.Fatalf("nested (A and B) or C = %v, want [0 2 4 9]", got)
	}
}

type failingPostings struct{ err error }

func (f *failingPostings) Next() (uint32, bool, error)         { return 0, false, f.err }
func (f *failingPostings) SeekTo(uint32) (uint32, bool, error) { return 0, false, f.err }

func TestEvalOrSurfacesChildPrefetchError(t *testing.T) {
	wantErr := errors.New("corrupt postings block")
	q := &Query{Kind: KindOr, Children: []*Query{
		{Kind: KindTrigram, Trigram: t3("aaa"), Postings: &failingPostings{err: wantErr}},
		trigWithPostings("bbb", []uint32{1, 2, 3}),
	}}
	e := NewEvaluator(context.Background(), q, 100)
	_, ok, err := e.Next()
	if err == nil {
		t.Fatalf("expected the child's prefetch error to surface, got nil")
	}
	if ok {
		t.Fatalf("expected ok=false alongside the surfaced error")
	}
}

func TestEvalCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	q := &Query{Kind: KindAnd, Children: []*Query{
		trigWithPostings("aaa", []uint32{1, 2, 3}),
		trigWithPostings("bbb", []uint32{1, 2, 3}),
	}}
	e := NewEvaluator(ctx, q, 100)
	_, _, err := e.Next()
	if err == nil {
		t.Fatalf("expected cancellation error")
	}
}
