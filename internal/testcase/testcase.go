// Package testcase defines the unit of work that flows through the fuzzing
// pipeline: a mutated source program together with its lineage, scoring
// state, coverage fingerprint, and queueing metadata.
package testcase

import (
	"fmt"
	"math"
	"sync/atomic"
)

// MutatorKind tags which mutator produced a TestCase. SEED marks an
// original, unmutated seed.
type MutatorKind string

const (
	Seed         MutatorKind = "SEED"
	LineInsert   MutatorKind = "LINE_INSERT"
	LineDelete   MutatorKind = "LINE_DELETE"
	LineDuplicate MutatorKind = "LINE_DUPLICATE"
	IdentRename  MutatorKind = "IDENT_RENAME"
)

// AllMutatorKinds lists the mutator kinds a scheduler can choose between
// (excludes SEED, which is never chosen, only assigned at seed load).
func AllMutatorKinds() []MutatorKind {
	return []MutatorKind{LineInsert, LineDelete, LineDuplicate, IdentRename}
}

// MethodVector is the dense per-method optimization-event count array.
// SentinelFeature is reserved and excluded from coverage accounting.
type MethodVector struct {
	Class  string
	Method string
	Counts []int64
}

// OptimizationVectors is the ordered sequence of per-method vectors
// produced by parsing one JIT run's instrumentation trace.
type OptimizationVectors struct {
	Methods []MethodVector
}

// Merged returns the element-wise sum of all method vectors, sized to the
// widest vector present (missing entries treated as zero).
func (v OptimizationVectors) Merged() []int64 {
	width := 0
	for _, m := range v.Methods {
		if len(m.Counts) > width {
			width = len(m.Counts)
		}
	}

	merged := make([]int64, width)
	for _, m := range v.Methods {
		for i, c := range m.Counts {
			merged[i] += c
		}
	}

	return merged
}

// TestCase is the unit of work flowing through the four pipeline stages.
type TestCase struct {
	// Identity.
	Name       string
	SeedName   string
	ParentName string
	// Path is the on-disk location of this test case's source, written by
	// the FileManager; used to re-read source for mutation and to delete
	// the file on eviction.
	Path string

	// Lineage.
	MutationDepth int
	MutationCount int
	MutatorKind   MutatorKind

	// Scoring state.
	ParentScore float64
	score       atomic.Uint64 // math.Float64bits(score)

	// Coverage fingerprint.
	MergedOptimizationCounts []int64
	HashedOptVector          []int64
	OptVectors               OptimizationVectors

	// Runtime metrics.
	InterpreterRuntimeNanos int64
	JITRuntimeNanos         int64

	// Queueing.
	TimesSelected    int64
	SlowMutationCount int64
	activeChampion   atomic.Bool
}

// New constructs a TestCase. Score starts at zero; the Evaluator sets it.
func New(name, seedName, parentName string, depth, mutationCount int, kind MutatorKind, parentScore float64) *TestCase {
	return &TestCase{
		Name:          name,
		SeedName:      seedName,
		ParentName:    parentName,
		MutationDepth: depth,
		MutationCount: mutationCount,
		MutatorKind:   kind,
		ParentScore:   parentScore,
	}
}

// Score returns the current score atomically.
func (t *TestCase) Score() float64 {
	return math.Float64frombits(t.score.Load())
}

// SetScore sets the score atomically. Evaluator/Scorer are the only
// writers; invariant is score >= 0 once evaluation has run.
func (t *TestCase) SetScore(v float64) {
	t.score.Store(math.Float64bits(v))
}

// Priority is the mutation-queue ordering key: -score, so the heap (a
// min-heap by Priority) pops the highest score first.
func (t *TestCase) Priority() float64 {
	return -t.Score()
}

// ActiveChampion reports whether this TestCase is the corpus's current
// incumbent for some fingerprint.
func (t *TestCase) ActiveChampion() bool {
	return t.activeChampion.Load()
}

// SetActiveChampion flips the champion flag.
func (t *TestCase) SetActiveChampion(v bool) {
	t.activeChampion.Store(v)
}

// IncrementTimesSelected records the mutation worker picking this parent.
func (t *TestCase) IncrementTimesSelected() int64 {
	return atomic.AddInt64(&t.TimesSelected, 1)
}

// IncrementSlowMutationCount records a mutation attempt on this parent that
// exceeded the mutator timeout.
func (t *TestCase) IncrementSlowMutationCount() int64 {
	return atomic.AddInt64(&t.SlowMutationCount, 1)
}

func (t *TestCase) String() string {
	return fmt.Sprintf("TestCase{%s depth=%d mutator=%s score=%.4f}", t.Name, t.MutationDepth, t.MutatorKind, t.Score())
}
