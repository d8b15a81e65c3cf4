// Package scorer implements the Interestingness Scorer: five policies that
// map a variant's optimization vector onto a scalar score used by the
// champion corpus to decide accept/replace/reject, plus the bucketing
// function used to key the corpus.
package scorer

import (
	"math"

	"github.com/jitfuzz/jitfuzz/internal/stats"
	"github.com/jitfuzz/jitfuzz/internal/testcase"
)

// Policy names the scoring formula in use, matching the --scoring CLI flag.
type Policy string

const (
	PFIDF               Policy = "pf-idf"
	AbsoluteCount       Policy = "absolute-count"
	PairCoverage        Policy = "pair-coverage"
	InteractionDiversity Policy = "interaction-diversity"
	NovelFeatureBonus   Policy = "novel-feature-bonus"
	Uniform             Policy = "uniform"
)

const (
	liftCap = 8.0
	eps     = 1e-9
	margin  = 0.1 // champion-corpus replace margin, shared constant with corpus package
)

// ScorePreview is the pure-with-respect-to-corpus-state result of Preview.
// It is later handed to Commit, which is only called for accepted/replaced
// variants.
type ScorePreview struct {
	Score           float64
	BucketedCounts  []int64
	PresentFeatures []int
	merged          []int64
	presentPairs    [][2]int
}

// Scorer computes interestingness scores under a configured policy.
type Scorer struct {
	Policy          Policy
	SentinelFeature int // feature index excluded from coverage accounting
	Global          *stats.GlobalStats
}

// New builds a Scorer for the given policy and sentinel feature index.
func New(policy Policy, sentinel int, global *stats.GlobalStats) *Scorer {
	return &Scorer{Policy: policy, SentinelFeature: sentinel, Global: global}
}

// Preview computes a ScorePreview for testcase/vectors and mutates
// tc.Score and tc.HashedOptVector to reflect it. The decision gate
// (corpus.evaluate) that follows may cause this value to be discarded
// without ever reaching Commit.
func (s *Scorer) Preview(tc *testcase.TestCase, vectors testcase.OptimizationVectors) ScorePreview {
	tc.OptVectors = vectors
	merged := vectors.Merged()
	tc.MergedOptimizationCounts = merged

	present := presentFeatures(merged, s.SentinelFeature)
	bucketed := testcase.BucketVector(merged)
	tc.HashedOptVector = bucketed

	isSeed := tc.MutatorKind == testcase.Seed

	raw := s.bestOverMethods(vectors, isSeed)

	weighted := raw
	if s.Policy != AbsoluteCount && s.Policy != Uniform {
		weighted = raw * s.runtimeWeight(tc)
	}

	tc.SetScore(weighted)

	return ScorePreview{
		Score:           weighted,
		BucketedCounts:  bucketed,
		PresentFeatures: present,
		merged:          merged,
		presentPairs:    presentPairs(present),
	}
}

// Commit records the preview's contribution to GlobalStats (per-feature and
// per-pair counts) and returns the (unchanged) committed score. Only called
// for variants the corpus accepts or replaces.
func (s *Scorer) Commit(tc *testcase.TestCase, preview ScorePreview) float64 {
	if s.Global != nil {
		for _, f := range preview.PresentFeatures {
			s.Global.RecordFeatureObservation(f)
		}

		for _, p := range preview.presentPairs {
			s.Global.RecordPairObservation(p[0], p[1])
		}

		s.Global.ObserveScore(preview.Score)
	}

	tc.SetScore(preview.Score)

	return preview.Score
}

func (s *Scorer) runtimeWeight(tc *testcase.TestCase) float64 {
	if s.Global == nil {
		return 1.0
	}

	tAvgCase := (float64(tc.InterpreterRuntimeNanos) + float64(tc.JITRuntimeNanos)) / 2.0 / 1e9
	tAvgGlobal := s.Global.AvgGlobalExecTime()

	if tAvgGlobal <= 0 {
		return 1.0
	}

	w := 1.0 / (1.0 + tAvgCase/tAvgGlobal)
	if w < 0.1 {
		w = 0.1
	}

	return w
}

// bestOverMethods applies the configured policy to each per-method vector
// and keeps the highest resulting raw (pre-weight) score.
func (s *Scorer) bestOverMethods(vectors testcase.OptimizationVectors, isSeed bool) float64 {
	if len(vectors.Methods) == 0 {
		return 0
	}

	best := math.Inf(-1)

	for _, m := range vectors.Methods {
		var v float64

		switch s.Policy {
		case PFIDF:
			v = s.pfidf(m.Counts, isSeed)
		case AbsoluteCount:
			v = absoluteCount(m.Counts, s.SentinelFeature)
		case PairCoverage:
			v = s.pairCoverageNovelty(m.Counts)
		case InteractionDiversity:
			v = interactionDiversity(m.Counts, s.SentinelFeature)
		case NovelFeatureBonus:
			v = s.novelFeatureBonus(m.Counts)
		case Uniform:
			v = uniformScore(m.Counts, s.SentinelFeature)
		default:
			v = s.pfidf(m.Counts, isSeed)
		}

		if v > best {
			best = v
		}
	}

	if math.IsInf(best, -1) {
		return 0
	}

	return best
}

func presentFeatures(merged []int64, sentinel int) []int {
	var out []int

	for i, c := range merged {
		if i == sentinel {
			continue
		}

		if c > 0 {
			out = append(out, i)
		}
	}

	return out
}

func presentPairs(present []int) [][2]int {
	var out [][2]int

	for a := 0; a < len(present); a++ {
		for b := a + 1; b < len(present); b++ {
			out = append(out, [2]int{present[a], present[b]})
		}
	}

	return out
}
