package scheduler

import "github.com/jitfuzz/jitfuzz/internal/testcase"

// UniformPolicy picks uniformly at random from the candidate list and
// records no arm statistics.
type UniformPolicy struct {
	rnd *lockedRand
}

// NewUniform builds a Uniform scheduler policy.
func NewUniform(seed int64) *UniformPolicy {
	return &UniformPolicy{rnd: newLockedRand(seed)}
}

func (p *UniformPolicy) Pick(_ *testcase.TestCase, candidates []testcase.MutatorKind, attempted map[testcase.MutatorKind]bool) testcase.MutatorKind {
	pick := candidates[p.rnd.Intn(len(candidates))]

	return pickWithFallback(pick, candidates, attempted, p.rnd)
}

func (p *UniformPolicy) RecordEvaluation(_ Feedback) {}
