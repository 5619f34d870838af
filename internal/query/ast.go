// Package query implements the trigram query AST (component E), the
// regex-AST-to-query extractor (component F), the index-bound rewriter
// (component G), and the streaming candidate-chunk evaluator (component
// H).
package query

import "sort"

// Kind tags the node kinds of the query AST: And, Or, Trigram, MatchAll,
// and MatchNone.
type Kind int

const (
	KindMatchAll Kind = iota
	KindMatchNone
	KindTrigram
	KindOr
	KindAnd
)

// Query is a Boolean tree over trigram leaves, implemented as a tagged
// union (component design note 4.9) rather than an open visitor
// hierarchy: a recursive function over Kind is sufficient for every
// consumer (extractor, rewriter, evaluator).
//
// Every Query produced by And, Or, MatchAll, Trig, and MatchNoneQuery is
// already normalized (4.E): children of And/Or are flattened, absorbed,
// deduplicated, and sorted. Bind (component G) replaces Trigram leaves
// with Postings leaves and re-normalizes.
type Query struct {
	Kind     Kind
	Trigram  [3]byte
	Children []*Query

	// Postings is non-nil only after Bind has resolved a Trigram leaf
	// against an open index reader (the "Bound Query" of §3).
	Postings PostingsSource
}

// PostingsSource is the capability set the evaluator needs from a bound
// trigram leaf: a one-shot forward iterator supporting Next and SeekTo,
// matching the postings.Iter contract (design note 4.9: "any type
// providing next()/seek_to() suffices").
type PostingsSource interface {
	Next() (uint32, bool, error)
	SeekTo(target uint32) (uint32, bool, error)
}

// MatchAllQuery returns the MatchAll identity element.
func MatchAllQuery() *Query { return &Query{Kind: KindMatchAll} }

// MatchNoneQuery returns the MatchNone annihilator element.
func MatchNoneQuery() *Query { return &Query{Kind: KindMatchNone} }

// Trig returns a Trigram leaf for the 3 bytes t.
func Trig(t [3]byte) *Query { return &Query{Kind: KindTrigram, Trigram: t} }

// And builds a normalized conjunction of children, applying the
// normalization rules of §4.E: MatchNone absorbs, MatchAll is dropped,
// nested And nodes flatten, single-child collapses, and the empty
// conjunction is MatchAll. Children are assumed already normalized — And
// is meant to be called bottom-up (see Normalize).
func And(children ...*Query) *Query {
	var flat []*Query
	for _, c := range children {
		switch c.Kind {
		case KindMatchNone:
			return MatchNoneQuery()
		case KindMatchAll:
			// dropped
		case KindAnd:
			flat = append(flat, c.Children...)
		default:
			flat = append(flat, c)
		}
	}
	return collapse(KindAnd, flat)
}

// Or builds a normalized disjunction of children, symmetric to And:
// MatchAll absorbs, MatchNone is dropped, nested Or nodes flatten,
// single-child collapses, and the empty disjunction is MatchNone.
func Or(children ...*Query) *Query {
	var flat []*Query
	for _, c := range children {
		switch c.Kind {
		case KindMatchAll:
			return MatchAllQuery()
		case KindMatchNone:
			// dropped
		case KindOr:
			flat = append(flat, c.Children...)
		default:
			flat = append(flat, c)
		}
	}
	return collapse(KindOr, flat)
}

// collapse deduplicates and canonically sorts flat, then wraps it in a
// node of kind, applying the empty/single-child identities.
func collapse(kind Kind, flat []*Query) *Query {
	deduped := dedupeSorted(flat)
	switch len(deduped) {
	case 0:
		if kind == KindAnd {
			return MatchAllQuery()
		}
		return MatchNoneQuery()
	case 1:
		return deduped[0]
	default:
		return &Query{Kind: kind, Children: deduped}
	}
}

// dedupeSorted sorts qs into canonical order and removes adjacent
// duplicates (compared structurally via Compare).
func dedupeSorted(qs []*Query) []*Query {
	if len(qs) == 0 {
		return nil
	}
	sort.Slice(qs, func(i, j int) bool { return Compare(qs[i], qs[j]) < 0 })
	out := qs[:1]
	for _, q := range qs[1:] {
		if Compare(out[len(out)-1], q) != 0 {
			out = append(out, q)
		}
	}
	return out
}

// Normalize recursively rebuilds q bottom-up through And/Or, which by
// construction always yields a canonical tree. normalize(normalize(q))
// == normalize(q) because And/Or are themselves idempotent on already
// canonical input (P3).
func Normalize(q *Query) *Query {
	switch q.Kind {
	case KindAnd:
		children := make([]*Query, len(q.Children))
		for i, c := range q.Children {
			children[i] = Normalize(c)
		}
		return And(children...)
	case KindOr:
		children := make([]*Query, len(q.Children))
		for i, c := range q.Children {
			children[i] = Normalize(c)
		}
		return Or(children...)
	default:
		return q
	}
}

// Compare defines the canonical order used to sort and deduplicate
// And/Or children: MatchAll < MatchNone < Trigram < Or < And, Trigrams
// ordered byte-wise, And/Or ordered by their (already sorted) children
// lists.
func Compare(a, b *Query) int {
	if a.Kind != b.Kind {
		return int(a.Kind) - int(b.Kind)
	}
	switch a.Kind {
	case KindMatchAll, KindMatchNone:
		return 0
	case KindTrigram:
		for i := 0; i < 3; i++ {
			if a.Trigram[i] != b.Trigram[i] {
				return int(a.Trigram[i]) - int(b.Trigram[i])
			}
		}
		return 0
	default: // KindAnd, KindOr
		for i := 0; i < len(a.Children) && i < len(b.Children); i++ {
			if c := Compare(a.Children[i], b.Children[i]); c != 0 {
				return c
			}
		}
		return len(a.Children) - len(b.Children)
	}
}

// Equal reports whether a and b are structurally identical.
func Equal(a, b *Query) bool { return Compare(a, b) == 0 }
