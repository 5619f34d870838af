package query

import (
	"container/heap"
	"context"

	"github.com/grop-dev/grop/pkg/errors"
)

// Evaluator produces a strictly ascending stream of candidate chunk IDs
// from a bound query. It is component H. Every implementation supports
// both pull-forward (Next) and skip-ahead (SeekTo), which lets And merge
// its children by seeking each to the current running maximum rather
// than stepping one chunk at a time.
type Evaluator interface {
	Next() (uint32, bool, error)
	SeekTo(target uint32) (uint32, bool, error)
}

// NewEvaluator builds the streaming evaluator for a bound query q over
// an index with numChunks chunks, cancellable via ctx (checked between
// merge-join rounds in And and Or, per the cooperative cancellation
// contract of the search path).
func NewEvaluator(ctx context.Context, q *Query, numChunks uint32) Evaluator {
	switch q.Kind {
	case KindMatchNone:
		return &emptyEvaluator{}
	case KindMatchAll:
		return &rangeEvaluator{n: numChunks}
	case KindTrigram:
		if q.Postings == nil {
			// An unbound trigram leaf has no postings to stream; treat
			// conservatively as MatchAll rather than panic.
			return &rangeEvaluator{n: numChunks}
		}
		return &postingsEvaluator{src: q.Postings}
	case KindAnd:
		children := make([]Evaluator, len(q.Children))
		for i, c := range q.Children {
			children[i] = NewEvaluator(ctx, c, numChunks)
		}
		return &andEvaluator{ctx: ctx, children: children}
	case KindOr:
		return newOrEvaluator(ctx, q.Children, numChunks)
	default:
		return &emptyEvaluator{}
	}
}

type emptyEvaluator struct{}

func (e *emptyEvaluator) Next() (uint32, bool, error)         { return 0, false, nil }
func (e *emptyEvaluator) SeekTo(uint32) (uint32, bool, error) { return 0, false, nil }

// rangeEvaluator streams every chunk ID in [0, n) — the MatchAll case.
type rangeEvaluator struct {
	cur uint32
	n   uint32
}

func (e *rangeEvaluator) Next() (uint32, bool, error) {
	if e.cur >= e.n {
		return 0, false, nil
	}
	v := e.cur
	e.cur++
	return v, true, nil
}

func (e *rangeEvaluator) SeekTo(target uint32) (uint32, bool, error) {
	if target > e.cur {
		e.cur = target
	}
	return e.Next()
}

// postingsEvaluator is a bound Trigram leaf's decoded postings list.
type postingsEvaluator struct {
	src PostingsSource
}

func (e *postingsEvaluator) Next() (uint32, bool, error)          { return e.src.Next() }
func (e *postingsEvaluator) SeekTo(t uint32) (uint32, bool, error) { return e.src.SeekTo(t) }

// andEvaluator intersects its children by repeatedly seeking every
// child to the current running maximum and restarting the round from
// whichever child advanced past it, converging on the next common
// value (or exhaustion) in a number of rounds bounded by the total
// number of distinct values skipped.
type andEvaluator struct {
	ctx      context.Context
	children []Evaluator
}

func (e *andEvaluator) Next() (uint32, bool, error) {
	if len(e.children) == 0 {
		return 0, false, nil
	}
	cur, ok, err := e.children[0].Next()
	if err != nil || !ok {
		return 0, ok, err
	}
	// pinned is the child whose last SeekTo overshot; its returned value
	// is already consumed, so it is not sought again for that same value.
	pinned, pinnedVal := -1, uint32(0)
	i := 1
	for i < len(e.children) {
		if err := e.ctx.Err(); err != nil {
			return 0, false, errors.Newf(errors.ErrCancelled, 0, "query evaluation cancelled: %v", err)
		}
		if i == pinned && cur == pinnedVal {
			i++
			continue
		}
		v, ok, err := e.children[i].SeekTo(cur)
		if err != nil || !ok {
			return 0, ok, err
		}
		if v == cur {
			i++
			continue
		}
		cur = v
		pinned, pinnedVal = i, v
		i = 1
		v0, ok, err := e.children[0].SeekTo(cur)
		if err != nil || !ok {
			return 0, ok, err
		}
		cur = v0
	}
	return cur, true, nil
}

func (e *andEvaluator) SeekTo(target uint32) (uint32, bool, error) {
	if len(e.children) == 0 {
		return 0, false, nil
	}
	v0, ok, err := e.children[0].SeekTo(target)
	if err != nil || !ok {
		return 0, ok, err
	}
	cur := v0
	i := 1
	for i < len(e.children) {
		if err := e.ctx.Err(); err != nil {
			return 0, false, errors.Newf(errors.ErrCancelled, 0, "query evaluation cancelled: %v", err)
		}
		v, ok, err := e.children[i].SeekTo(cur)
		if err != nil || !ok {
			return 0, ok, err
		}
		if v == cur {
			i++
			continue
		}
		cur = v
		i = 1
		v0, ok, err := e.children[0].SeekTo(cur)
		if err != nil || !ok {
			return 0, ok, err
		}
		cur = v0
	}
	return cur, true, nil
}

// orHeapItem is one pending value from one Or child.
type orHeapItem struct {
	val   uint32
	child int
}

type orHeap []orHeapItem

func (h orHeap) Len() int            { return len(h) }
func (h orHeap) Less(i, j int) bool  { return h[i].val < h[j].val }
func (h orHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *orHeap) Push(x interface{}) { *h = append(*h, x.(orHeapItem)) }
func (h *orHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// orEvaluator streams the deduplicated union of its children's values
// via a min-heap keyed by value, the same merge-by-heap shape the
// teacher's result merger uses for top-k merge (container/heap), adapted
// here to merge ascending ID streams instead of scored results.
type orEvaluator struct {
	ctx      context.Context
	children []Evaluator
	h        orHeap
	hasLast  bool
	last     uint32
	err      error
}

func newOrEvaluator(ctx context.Context, qs []*Query, numChunks uint32) *orEvaluator {
	e := &orEvaluator{ctx: ctx}
	e.children = make([]Evaluator, len(qs))
	for i, q := range qs {
		e.children[i] = NewEvaluator(ctx, q, numChunks)
	}
	heap.Init(&e.h)
	for i, c := range e.children {
		v, ok, err := c.Next()
		if err != nil {
			// Keep the first failure rather than dropping this child's
			// candidates silently; surfaced on the first call to Next.
			if e.err == nil {
				e.err = err
			}
			continue
		}
		if ok {
			heap.Push(&e.h, orHeapItem{val: v, child: i})
		}
	}
	return e
}

func (e *orEvaluator) Next() (uint32, bool, error) {
	if e.err != nil {
		err := e.err
		e.err = nil
		return 0, false, err
	}
	for e.h.Len() > 0 {
		if err := e.ctx.Err(); err != nil {
			return 0, false, errors.Newf(errors.ErrCancelled, 0, "query evaluation cancelled: %v", err)
		}
		top := heap.Pop(&e.h).(orHeapItem)
		v, ok, err := e.children[top.child].Next()
		if err != nil {
			return 0, false, err
		}
		if ok {
			heap.Push(&e.h, orHeapItem{val: v, child: top.child})
		}
		if e.hasLast && top.val == e.last {
			continue
		}
		e.hasLast, e.last = true, top.val
		return top.val, true, nil
	}
	return 0, false, nil
}

// SeekTo drains values below target via Next. Or's heap does not expose
// a cheaper skip-ahead across a dynamic child set, but And only calls
// SeekTo on its children to find the next candidate at or after target,
// never to skip a large known-empty range, so a linear drain is fine.
func (e *orEvaluator) SeekTo(target uint32) (uint32, bool, error) {
	for {
		v, ok, err := e.Next()
		if err != nil || !ok {
			return 0, ok, err
		}
		if v >= target {
			return v, true, nil
		}
	}
}
