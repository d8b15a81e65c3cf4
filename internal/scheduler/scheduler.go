// Package scheduler implements the Mutator Scheduler: three interchangeable
// policies (Uniform, Bandit, MOP) that pick a mutator kind for a parent and
// update their internal arm statistics from evaluation feedback.
package scheduler

import (
	"math"
	"math/rand"
	"sync"

	"github.com/jitfuzz/jitfuzz/internal/testcase"
)

// Outcome classifies one evaluation's effect on the scheduler's arms.
type Outcome string

const (
	Improved      Outcome = "IMPROVED"
	NoImprovement Outcome = "NO_IMPROVEMENT"
	Bug           Outcome = "BUG"
	Timeout       Outcome = "TIMEOUT"
	Failure       Outcome = "FAILURE"
)

// Feedback is reported to record_evaluation after an evaluation completes.
type Feedback struct {
	Mutator      testcase.MutatorKind
	Outcome      Outcome
	ParentScore  float64
	ChildScore   float64
	ParentMerged []int64
	ChildMerged  []int64
}

// GoldenRatioSalt XORs the controller's session seed to derive an
// independent scheduler RNG stream (design note 9).
const GoldenRatioSalt = 0x9E3779B97F4A7C15

// Policy is the interchangeable mutator-selection strategy.
type Policy interface {
	Pick(parent *testcase.TestCase, candidates []testcase.MutatorKind, attemptedThisCycle map[testcase.MutatorKind]bool) testcase.MutatorKind
	RecordEvaluation(fb Feedback)
}

// pickWithFallback applies the shared "don't repeat an already-attempted
// mutator this cycle" fallback rule described in spec.md 4.2.
func pickWithFallback(pick testcase.MutatorKind, candidates []testcase.MutatorKind, attempted map[testcase.MutatorKind]bool, r *lockedRand) testcase.MutatorKind {
	if !attempted[pick] {
		return pick
	}

	var unused []testcase.MutatorKind

	for _, c := range candidates {
		if !attempted[c] {
			unused = append(unused, c)
		}
	}

	if len(unused) == 0 {
		return pick
	}

	return unused[r.Intn(len(unused))]
}

// lockedRand wraps math/rand.Rand with a mutex, since a single scheduler
// instance is shared by every mutation worker goroutine.
type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func newLockedRand(seed int64) *lockedRand {
	return &lockedRand{r: rand.New(rand.NewSource(seed))}
}

func (l *lockedRand) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.r.Float64()
}

func (l *lockedRand) Intn(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.r.Intn(n)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// PolicyName selects a Policy constructor, matching the --mutator-policy
// CLI flag.
type PolicyName string

const (
	UniformName PolicyName = "uniform"
	BanditName  PolicyName = "bandit"
	MOPName     PolicyName = "mop"
)

// New builds the named Policy, deriving its RNG stream from seed XOR
// GoldenRatioSalt.
func New(name PolicyName, sessionSeed int64) Policy {
	rngSeed := int64(uint64(sessionSeed) ^ GoldenRatioSalt)

	switch name {
	case BanditName:
		return NewBandit(rngSeed)
	case MOPName:
		return NewMOP(rngSeed)
	case UniformName:
		return NewUniform(rngSeed)
	default:
		return NewUniform(rngSeed)
	}
}
