package rules

import "testing"

func TestEvaluateRelationship(t *testing.T) {
	selected := NewCodeSet("A", "B", "C")

	testCases := []struct {
		name     string
		group    CodeSet
		wantAny  bool
		wantAll  bool
		wantSome bool
		wantNone bool
	}{
		{"empty group", NewCodeSet(), false, true, false, true},
		{"fully contained", NewCodeSet("A", "B"), true, true, false, false},
		{"partial overlap", NewCodeSet("A", "X"), true, false, true, false},
		{"disjoint", NewCodeSet("X", "Y"), false, false, false, true},
		{"single shared code", NewCodeSet("C"), true, true, false, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			want := map[Relationship]bool{
				ContainsAny:  tc.wantAny,
				ContainsAll:  tc.wantAll,
				ContainsSome: tc.wantSome,
				ContainsNone: tc.wantNone,
			}
			for rel, w := range want {
				if got := EvaluateRelationship(selected, tc.group, rel); got != w {
					t.Errorf("%s = %v, want %v", rel, got, w)
				}
			}
		})
	}
}

func TestEvaluateRelationshipEmptySelection(t *testing.T) {
	group := NewCodeSet("A")

	if EvaluateRelationship(NewCodeSet(), group, ContainsAny) {
		t.Error("contains-any should be false for an empty selection")
	}
	if EvaluateRelationship(NewCodeSet(), group, ContainsAll) {
		t.Error("contains-all should be false for a non-empty group and empty selection")
	}
	if !EvaluateRelationship(NewCodeSet(), group, ContainsNone) {
		t.Error("contains-none should be true for an empty selection")
	}
}

func TestEvaluateRelationshipUnknown(t *testing.T) {
	if EvaluateRelationship(NewCodeSet("A"), NewCodeSet("A"), "contains-most") {
		t.Error("an unknown relationship should never match")
	}
}

func TestOutcome(t *testing.T) {
	if Skip().Value() || !Skip().Skipped() {
		t.Error("Skip() should be skipped and false")
	}
	if !Match(true).Value() || Match(true).Skipped() {
		t.Error("Match(true) should be resolved and true")
	}
	if Match(false).Value() || Match(false).Skipped() {
		t.Error("Match(false) should be resolved and false")
	}
}
