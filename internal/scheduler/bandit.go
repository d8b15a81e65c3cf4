package scheduler

import (
	"math"
	"sync"

	"github.com/jitfuzz/jitfuzz/internal/testcase"
)

// banditArm holds the Beta(alpha, beta) posterior for one mutator kind.
type banditArm struct {
	alpha float64
	beta  float64
}

// BanditPolicy picks the mutator whose Thompson-sampled Beta draw is
// highest, with an epsilon-greedy exploration floor.
type BanditPolicy struct {
	mu      sync.Mutex
	arms    map[testcase.MutatorKind]*banditArm
	epsilon float64
	rnd     *lockedRand
}

// NewBandit builds a Bandit policy with every candidate arm starting at
// Beta(1, 1) (uniform prior).
func NewBandit(seed int64) *BanditPolicy {
	return &BanditPolicy{
		arms:    make(map[testcase.MutatorKind]*banditArm),
		epsilon: 0.1,
		rnd:     newLockedRand(seed),
	}
}

func (p *BanditPolicy) arm(k testcase.MutatorKind) *banditArm {
	p.mu.Lock()
	defer p.mu.Unlock()

	a, ok := p.arms[k]
	if !ok {
		a = &banditArm{alpha: 1, beta: 1}
		p.arms[k] = a
	}

	return a
}

func (p *BanditPolicy) Pick(_ *testcase.TestCase, candidates []testcase.MutatorKind, attempted map[testcase.MutatorKind]bool) testcase.MutatorKind {
	if p.rnd.Float64() < p.epsilon {
		pick := candidates[p.rnd.Intn(len(candidates))]
		return pickWithFallback(pick, candidates, attempted, p.rnd)
	}

	var best testcase.MutatorKind

	bestDraw := math.Inf(-1)

	for _, c := range candidates {
		a := p.arm(c)

		p.mu.Lock()
		alpha, beta := a.alpha, a.beta
		p.mu.Unlock()

		draw := sampleBeta(p.rnd, alpha, beta)
		if draw > bestDraw {
			bestDraw = draw
			best = c
		}
	}

	return pickWithFallback(best, candidates, attempted, p.rnd)
}

func (p *BanditPolicy) RecordEvaluation(fb Feedback) {
	a := p.arm(fb.Mutator)

	p.mu.Lock()
	defer p.mu.Unlock()

	switch fb.Outcome {
	case Bug:
		a.alpha += 3
	case Improved:
		a.alpha += 1
	case NoImprovement, Failure, Timeout:
		a.beta += 1
	}
}

// sampleBeta draws from Beta(alpha, beta) via two independent Gamma draws:
// X ~ Gamma(alpha, 1), Y ~ Gamma(beta, 1), X/(X+Y) ~ Beta(alpha, beta).
func sampleBeta(r *lockedRand, alpha, beta float64) float64 {
	x := sampleGamma(r, alpha)
	y := sampleGamma(r, beta)

	if x+y == 0 {
		return 0
	}

	return x / (x + y)
}

// sampleGamma draws from Gamma(shape, 1) using Marsaglia-Tsang for shape
// >= 1, with the standard shape < 1 boost-by-one-and-rescale trick.
func sampleGamma(r *lockedRand, shape float64) float64 {
	if shape < 1 {
		u := r.Float64()

		return sampleGamma(r, shape+1) * math.Pow(u, 1/shape)
	}

	d := shape - 1.0/3.0
	c := 1.0 / math.Sqrt(9*d)

	for {
		var x, v float64

		for {
			x = standardNormal(r)
			v = 1 + c*x

			if v > 0 {
				break
			}
		}

		v = v * v * v
		u := r.Float64()

		if u < 1-0.0331*x*x*x*x {
			return d * v
		}

		if math.Log(u) < 0.5*x*x+d*(1-v+math.Log(v)) {
			return d * v
		}
	}
}

// standardNormal draws N(0,1) via Box-Muller.
func standardNormal(r *lockedRand) float64 {
	u1 := r.Float64()
	u2 := r.Float64()

	if u1 <= 0 {
		u1 = 1e-12
	}

	return math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
}
