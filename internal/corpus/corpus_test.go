package corpus

import (
	"testing"

	"github.com/jitfuzz/jitfuzz/internal/scorer"
	"github.com/jitfuzz/jitfuzz/internal/testcase"
)

func newTC(name string, score float64) (*testcase.TestCase, scorer.ScorePreview) {
	tc := testcase.New(name, name, "", 1, 1, testcase.LineInsert, 0)
	preview := scorer.ScorePreview{
		Score:          score,
		BucketedCounts: []int64{1, 0, 0},
	}

	return tc, preview
}

func TestEvaluateDiscardsZeroFingerprint(t *testing.T) {
	c := New(10, nil)
	tc := testcase.New("c1", "c1", "", 1, 1, testcase.LineInsert, 0)

	d := c.Evaluate(tc, scorer.ScorePreview{Score: 5, BucketedCounts: []int64{0, 0, 0}})
	if d.Outcome != Discarded {
		t.Fatalf("outcome = %v, want DISCARDED", d.Outcome)
	}
}

func TestEvaluateAcceptsNewFingerprint(t *testing.T) {
	c := New(10, nil)
	tc, preview := newTC("c1", 1.0)

	d := c.Evaluate(tc, preview)
	if d.Outcome != Accepted {
		t.Fatalf("outcome = %v, want ACCEPTED", d.Outcome)
	}

	if !tc.ActiveChampion() {
		t.Fatalf("accepted test case should be marked active champion")
	}

	if c.Size() != 1 {
		t.Fatalf("corpus size = %d, want 1", c.Size())
	}
}

func TestEvaluateRejectsBelowMargin(t *testing.T) {
	c := New(10, nil)

	incumbent, pv1 := newTC("incumbent", 1.0)
	c.Evaluate(incumbent, pv1)

	challenger, pv2 := newTC("challenger", 1.05) // within the 0.1 margin
	d := c.Evaluate(challenger, pv2)

	if d.Outcome != Rejected {
		t.Fatalf("outcome = %v, want REJECTED", d.Outcome)
	}

	if !incumbent.ActiveChampion() {
		t.Fatalf("incumbent should remain active champion after rejection")
	}
}

func TestEvaluateReplacesAboveMargin(t *testing.T) {
	c := New(10, nil)

	incumbent, pv1 := newTC("incumbent", 1.0)
	c.Evaluate(incumbent, pv1)

	challenger, pv2 := newTC("challenger", 1.2) // beats by > 0.1
	d := c.Evaluate(challenger, pv2)

	if d.Outcome != Replaced {
		t.Fatalf("outcome = %v, want REPLACED", d.Outcome)
	}

	if d.PreviousChampion != incumbent {
		t.Fatalf("previous champion should be the old incumbent")
	}

	if incumbent.ActiveChampion() {
		t.Fatalf("old incumbent should no longer be active champion")
	}

	if !challenger.ActiveChampion() {
		t.Fatalf("challenger should be active champion after replace")
	}
}

func TestCapacityEvictionRemovesLowestScoring(t *testing.T) {
	c := New(2, nil)

	for i, score := range []float64{1.0, 2.0} {
		tc := testcase.New(string(rune('a'+i)), "s", "", 1, 1, testcase.LineInsert, 0)
		preview := scorer.ScorePreview{Score: score, BucketedCounts: []int64{int64(i + 1), 0}}
		c.Evaluate(tc, preview)
	}

	tc3 := testcase.New("c", "s", "", 1, 1, testcase.LineInsert, 0)
	preview3 := scorer.ScorePreview{Score: 3.0, BucketedCounts: []int64{3, 0}}
	d := c.Evaluate(tc3, preview3)

	if d.Outcome != Accepted {
		t.Fatalf("outcome = %v, want ACCEPTED", d.Outcome)
	}

	if len(d.Evicted) != 1 {
		t.Fatalf("expected exactly one eviction, got %d", len(d.Evicted))
	}

	if c.Size() != 2 {
		t.Fatalf("corpus size = %d, want 2 after eviction", c.Size())
	}
}

func TestRemoveAndSize(t *testing.T) {
	c := New(10, nil)
	tc, preview := newTC("c1", 1.0)
	c.Evaluate(tc, preview)

	if !c.Remove(tc, "manual eviction") {
		t.Fatalf("remove should find the existing entry")
	}

	if c.Size() != 0 {
		t.Fatalf("corpus size = %d, want 0 after remove", c.Size())
	}

	if tc.ActiveChampion() {
		t.Fatalf("removed test case should not remain active champion")
	}
}

func TestRandomPolicyAcceptsAndEvictsWithoutPanicking(t *testing.T) {
	c := New(2, NewRandomPolicy(42))

	for i := 0; i < 10; i++ {
		tc := testcase.New(string(rune('a'+i)), "s", "", 1, 1, testcase.LineInsert, 0)
		preview := scorer.ScorePreview{Score: float64(i), BucketedCounts: []int64{int64(i + 1), int64(i)}}
		c.Evaluate(tc, preview)
	}

	if c.Size() > 2 {
		t.Fatalf("corpus size = %d, should never exceed capacity 2", c.Size())
	}
}
