package query

import "testing"

func TestExtractShortLiteralIsMatchAll(t *testing.T) {
	_, q, err := Extract("ab")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if q.Kind != KindMatchAll {
		t.Fatalf("Extract(%q) = %v, want MatchAll", "ab", q.Kind)
	}
}

func TestExtractLiteralTrigrams(t *testing.T) {
	_, q, err := Extract("abcd")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	// "abcd" -> trigrams {abc, bcd}
	if q.Kind != KindAnd || len(q.Children) != 2 {
		t.Fatalf("Extract(%q) = %+v, want And of 2 trigrams", "abcd", q)
	}
}

func TestExtractCaseFoldIsMatchAll(t *testing.T) {
	_, q, err := Extract("(?i)abcd")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if q.Kind != KindMatchAll {
		t.Fatalf("Extract(case-fold) = %v, want MatchAll", q.Kind)
	}
}

func TestExtractAlternation(t *testing.T) {
	_, q, err := Extract("abcd|wxyz")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if q.Kind != KindOr {
		t.Fatalf("Extract(alternation) = %v, want Or", q.Kind)
	}
}

func TestExtractAlternationWithShortBranchIsMatchAll(t *testing.T) {
	_, q, err := Extract("abcd|xy")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if q.Kind != KindMatchAll {
		t.Fatalf("Extract(abcd|xy) = %v, want MatchAll (short branch absorbs)", q.Kind)
	}
}

func TestExtractDotStarIsMatchAll(t *testing.T) {
	_, q, err := Extract(".*")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if q.Kind != KindMatchAll {
		t.Fatalf("Extract(.*) = %v, want MatchAll", q.Kind)
	}
}

func TestExtractConcatAcrossGroupBoundary(t *testing.T) {
	// concatenation of two literal runs should still yield trigrams
	// spanning the boundary between them.
	_, q, err := Extract("fo(?:ob)ar")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if q.Kind != KindAnd {
		t.Fatalf("Extract(foobar via groups) = %v, want And of trigrams", q.Kind)
	}
	// "fo"+"ob"+"ar" = "fooobar"? no: fo + ob + ar = "foobar" (6 bytes) -> 4 trigrams
	if len(q.Children) != 4 {
		t.Fatalf("Extract(foobar) = %d trigram children, want 4", len(q.Children))
	}
}

func TestExtractPlusRequiresOneOccurrence(t *testing.T) {
	_, q, err := Extract("(?:abc)+")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if q.Kind != KindTrigram {
		t.Fatalf("Extract((abc)+) = %v, want Trigram abc", q.Kind)
	}
}

func TestExtractStarIsMatchAll(t *testing.T) {
	_, q, err := Extract("(?:abc)*")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if q.Kind != KindMatchAll {
		t.Fatalf("Extract((abc)*) = %v, want MatchAll", q.Kind)
	}
}

func TestExtractCharClassIsMatchAll(t *testing.T) {
	_, q, err := Extract("[abc]def")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	// The class contributes MatchAll, which And drops, leaving the single
	// trigram of the literal "def".
	if q.Kind != KindTrigram || q.Trigram != t3("def") {
		t.Fatalf("Extract([abc]def) = %+v, want Trigram def", q)
	}
}
