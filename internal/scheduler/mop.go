package scheduler

import (
	"math"
	"sync"

	"github.com/jitfuzz/jitfuzz/internal/testcase"
)

// MOPPolicy is a multiplicative-weights-update scheduler: each mutator
// kind carries a weight seeded at 1, sampled proportionally to weight,
// and multiplied up when it produces a positive coverage delta.
type MOPPolicy struct {
	mu      sync.Mutex
	weights map[testcase.MutatorKind]float64
	epsilon float64
	rnd     *lockedRand
}

// NewMOP builds an MOP policy with every candidate arm starting at
// weight 1.
func NewMOP(seed int64) *MOPPolicy {
	return &MOPPolicy{
		weights: make(map[testcase.MutatorKind]float64),
		epsilon: 0.1,
		rnd:     newLockedRand(seed),
	}
}

func (p *MOPPolicy) weight(k testcase.MutatorKind) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	w, ok := p.weights[k]
	if !ok {
		w = 1.0
		p.weights[k] = w
	}

	return w
}

func (p *MOPPolicy) Pick(_ *testcase.TestCase, candidates []testcase.MutatorKind, attempted map[testcase.MutatorKind]bool) testcase.MutatorKind {
	if p.rnd.Float64() < p.epsilon {
		pick := candidates[p.rnd.Intn(len(candidates))]
		return pickWithFallback(pick, candidates, attempted, p.rnd)
	}

	total := 0.0

	ws := make([]float64, len(candidates))
	for i, c := range candidates {
		ws[i] = p.weight(c)
		total += ws[i]
	}

	if total <= 0 {
		pick := candidates[p.rnd.Intn(len(candidates))]
		return pickWithFallback(pick, candidates, attempted, p.rnd)
	}

	target := p.rnd.Float64() * total

	var cum float64

	pick := candidates[len(candidates)-1]

	for i, c := range candidates {
		cum += ws[i]
		if target <= cum {
			pick = c
			break
		}
	}

	return pickWithFallback(pick, candidates, attempted, p.rnd)
}

func (p *MOPPolicy) RecordEvaluation(fb Feedback) {
	ratio := deltaRatio(fb.ParentMerged, fb.ChildMerged)
	if ratio <= 0 {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	w, ok := p.weights[fb.Mutator]
	if !ok {
		w = 1.0
	}

	w *= 1 + ratio
	p.weights[fb.Mutator] = clamp(w, 1e-6, 1e6)
}

// deltaRatio is the L2 norm of the positive part of (child - parent),
// divided by the L2 norm of child. Zero if child has no coverage.
func deltaRatio(parent, child []int64) float64 {
	var deltaSumSq, childSumSq float64

	width := len(child)
	if len(parent) > width {
		width = len(parent)
	}

	for i := 0; i < width; i++ {
		var p, c int64

		if i < len(parent) {
			p = parent[i]
		}

		if i < len(child) {
			c = child[i]
		}

		d := c - p
		if d > 0 {
			deltaSumSq += float64(d) * float64(d)
		}

		childSumSq += float64(c) * float64(c)
	}

	if childSumSq == 0 {
		return 0
	}

	return math.Sqrt(deltaSumSq) / math.Sqrt(childSumSq)
}
