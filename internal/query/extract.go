package query

import (
	"regexp/syntax"
)

// Extract parses pattern as a regular expression and returns both the
// parsed, simplified syntax tree and the trigram query
// that soundly over-approximates it (component F). The trigram query is
// always a sound superset: every chunk containing a line the matcher
// would accept is included, at the cost of possibly including chunks
// that turn out not to match.
func Extract(pattern string) (*syntax.Regexp, *Query, error) {
	re, err := syntax.Parse(pattern, syntax.Perl)
	if err != nil {
		return nil, nil, err
	}
	re = re.Simplify()
	return re, FromRegexp(re), nil
}

// FromRegexp walks a parsed, simplified regexp/syntax tree and produces
// the trigram query that over-approximates it, per the node-kind rules:
// literal runs emit And-of-trigrams (or MatchAll below 3 bytes),
// concatenation is And, alternation is Or, repetition with a zero lower
// bound is MatchAll, and anything that can't be pinned to required bytes
// — character classes, anchors, word boundaries, case-folded literals —
// is MatchAll. Capturing groups pass through to their single child.
func FromRegexp(re *syntax.Regexp) *Query {
	switch re.Op {
	case syntax.OpLiteral:
		if re.Flags&syntax.FoldCase != 0 {
			return MatchAllQuery()
		}
		return literalTrigrams(runesToBytes(re.Rune))

	case syntax.OpConcat:
		return And(extractConcat(re.Sub)...)

	case syntax.OpAlternate:
		children := make([]*Query, len(re.Sub))
		for i, s := range re.Sub {
			children[i] = FromRegexp(s)
		}
		return Or(children...)

	case syntax.OpCapture:
		return FromRegexp(re.Sub[0])

	case syntax.OpStar, syntax.OpQuest:
		return MatchAllQuery()

	case syntax.OpPlus:
		return FromRegexp(re.Sub[0])

	case syntax.OpRepeat:
		if re.Min >= 1 {
			return FromRegexp(re.Sub[0])
		}
		return MatchAllQuery()

	case syntax.OpEmptyMatch:
		return MatchAllQuery()

	case syntax.OpNoMatch:
		return MatchNoneQuery()

	default:
		// OpCharClass, OpAnyChar, OpAnyCharNotNL, OpBeginLine, OpEndLine,
		// OpBeginText, OpEndText, OpWordBoundary, OpNoWordBoundary: none
		// pin down required bytes.
		return MatchAllQuery()
	}
}

// extractConcat extracts trigrams from a concatenation's children,
// merging adjacent unfolded literal runs first so that trigrams spanning
// what would otherwise be a child boundary (e.g. "fo" + "o\n") are not
// lost — an optional strengthening the node-by-node rule allows.
func extractConcat(subs []*syntax.Regexp) []*Query {
	var out []*Query
	i := 0
	for i < len(subs) {
		if subs[i].Op == syntax.OpLiteral && subs[i].Flags&syntax.FoldCase == 0 {
			var merged []rune
			j := i
			for j < len(subs) && subs[j].Op == syntax.OpLiteral && subs[j].Flags&syntax.FoldCase == 0 {
				merged = append(merged, subs[j].Rune...)
				j++
			}
			out = append(out, literalTrigrams(runesToBytes(merged)))
			i = j
			continue
		}
		out = append(out, FromRegexp(subs[i]))
		i++
	}
	return out
}

// runesToBytes UTF-8 encodes a literal rune run into its byte sequence,
// the unit trigrams are actually extracted over.
func runesToBytes(runes []rune) []byte {
	buf := make([]byte, 0, len(runes)*2)
	for _, r := range runes {
		buf = append(buf, []byte(string(r))...)
	}
	return buf
}

// literalTrigrams returns MatchAll if s has fewer than 3 bytes, else the
// conjunction of every contiguous 3-byte window of s.
func literalTrigrams(s []byte) *Query {
	if len(s) < 3 {
		return MatchAllQuery()
	}
	children := make([]*Query, 0, len(s)-2)
	for i := 0; i+3 <= len(s); i++ {
		var t [3]byte
		copy(t[:], s[i:i+3])
		children = append(children, Trig(t))
	}
	return And(children...)
}
