package stats

import "testing"

func TestPairIndexInvertible(t *testing.T) {
	const f = 12

	seen := make(map[int]struct{})

	for i := 0; i < f; i++ {
		for j := i + 1; j < f; j++ {
			idx := PairIndex(i, j, f)
			if idx < 0 || idx >= PairCount(f) {
				t.Fatalf("pair (%d,%d) -> %d out of range [0,%d)", i, j, idx, PairCount(f))
			}

			if _, dup := seen[idx]; dup {
				t.Fatalf("pair (%d,%d) collided on index %d", i, j, idx)
			}

			seen[idx] = struct{}{}
		}
	}

	if len(seen) != PairCount(f) {
		t.Fatalf("expected %d unique indices, got %d", PairCount(f), len(seen))
	}
}
