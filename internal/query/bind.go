package query

import "github.com/grop-dev/grop/internal/postings"

// IndexLookup is the capability bind needs from an open chunk index: the
// ability to resolve a trigram to its postings (or absence). This
// signature matches chunkindex.Reader.TrigramPostings exactly, so a
// *chunkindex.Reader satisfies it with no adapter.
type IndexLookup interface {
	TrigramPostings(t [3]byte) (*postings.Iter, bool, error)
}

// Bind rewrites q against idx, replacing every Trigram leaf with either a
// Postings leaf (if the trigram occurs in at least one chunk) or
// MatchNone (if it occurs nowhere), then re-normalizing bottom-up. This
// is component G, the index-bound rewriter.
func Bind(q *Query, idx IndexLookup) (*Query, error) {
	switch q.Kind {
	case KindMatchAll, KindMatchNone:
		return q, nil

	case KindTrigram:
		src, ok, err := idx.TrigramPostings(q.Trigram)
		if err != nil {
			return nil, err
		}
		if !ok {
			return MatchNoneQuery(), nil
		}
		return &Query{Kind: KindTrigram, Trigram: q.Trigram, Postings: src}, nil

	case KindAnd:
		children := make([]*Query, len(q.Children))
		for i, c := range q.Children {
			bc, err := Bind(c, idx)
			if err != nil {
				return nil, err
			}
			children[i] = bc
		}
		return And(children...), nil

	case KindOr:
		children := make([]*Query, len(q.Children))
		for i, c := range q.Children {
			bc, err := Bind(c, idx)
			if err != nil {
				return nil, err
			}
			children[i] = bc
		}
		return Or(children...), nil

	default:
		return q, nil
	}
}
