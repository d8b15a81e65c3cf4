// Package stats implements GlobalStats: process-wide, concurrently-updated
// counters, histograms, and accumulators shared by every pipeline stage.
// Internals are backed by a private prometheus.Registry so the same
// counters serve both the console/CSV dashboard and, optionally, a scraped
// /metrics endpoint — per-field updates are independently atomic and
// readers tolerate torn snapshots across fields, never within one.
package stats

import (
	"sync"

	"github.com/jitfuzz/jitfuzz/internal/testcase"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// GlobalStats is process-wide state. All fields are safe for concurrent
// update from any goroutine.
type GlobalStats struct {
	Features int // F, the fixed feature-set width
	reg      *prometheus.Registry

	// Monotone counters.
	dispatched        prometheus.Counter
	evaluated         prometheus.Counter
	executed          prometheus.Counter
	bugs              prometheus.Counter
	interpreterTimeouts prometheus.Counter
	jitTimeouts       prometheus.Counter
	compileFailures   prometheus.Counter

	// Sum/max/min accumulators.
	scoreAcc        *Accumulator
	runtimeWeightAcc *Accumulator
	compileTimeAcc  *Accumulator
	execTimeInterp  *Accumulator
	execTimeJIT     *Accumulator

	// Also mirrored as prometheus histograms for external scraping.
	scoreHist       prometheus.Histogram
	compileTimeHist prometheus.Histogram
	execTimeHist    *prometheus.HistogramVec

	// Per-feature / per-pair coverage.
	featureCounts []atomicCounter
	pairCounts    []atomicCounter
	featureMetric *prometheus.CounterVec
	pairMetric    *prometheus.CounterVec

	// Per-mutator counters.
	mutatorMu    sync.Mutex
	mutatorStats map[testcase.MutatorKind]*MutatorCounters
	mutatorAttemptsMetric *prometheus.CounterVec
	mutatorOutcomeMetric  *prometheus.CounterVec

	// Seen bug-bucket identifiers.
	bugBucketsMu sync.Mutex
	bugBuckets   map[string]struct{}

	corpusSize prometheus.Gauge
}

// MutatorCounters tracks per-mutator-kind attempt/outcome/reward stats.
type MutatorCounters struct {
	Attempts       atomicCounter
	RewardSum      *Accumulator
	OutcomesByKind map[string]*atomicCounter
}

// New builds a GlobalStats for a feature set of width f.
func New(f int) *GlobalStats {
	reg := prometheus.NewRegistry()
	fac := promauto.With(reg)

	g := &GlobalStats{
		Features: f,
		reg:      reg,

		dispatched:          fac.NewCounter(prometheus.CounterOpts{Namespace: "jitfuzz", Name: "dispatched_total", Help: "Total test cases dispatched to the execution queue."}),
		evaluated:           fac.NewCounter(prometheus.CounterOpts{Namespace: "jitfuzz", Name: "evaluated_total", Help: "Total test cases evaluated."}),
		executed:            fac.NewCounter(prometheus.CounterOpts{Namespace: "jitfuzz", Name: "executed_total", Help: "Total test cases executed by the Executor."}),
		bugs:                fac.NewCounter(prometheus.CounterOpts{Namespace: "jitfuzz", Name: "bugs_total", Help: "Total divergence bugs found."}),
		interpreterTimeouts: fac.NewCounter(prometheus.CounterOpts{Namespace: "jitfuzz", Name: "interpreter_timeouts_total", Help: "Total interpreter-mode run timeouts."}),
		jitTimeouts:         fac.NewCounter(prometheus.CounterOpts{Namespace: "jitfuzz", Name: "jit_timeouts_total", Help: "Total JIT-mode run timeouts."}),
		compileFailures:     fac.NewCounter(prometheus.CounterOpts{Namespace: "jitfuzz", Name: "compile_failures_total", Help: "Total compile-service rejections."}),

		scoreAcc:         newAccumulator(),
		runtimeWeightAcc: newAccumulator(),
		compileTimeAcc:   newAccumulator(),
		execTimeInterp:   newAccumulator(),
		execTimeJIT:      newAccumulator(),

		scoreHist:       fac.NewHistogram(prometheus.HistogramOpts{Namespace: "jitfuzz", Name: "score", Help: "Interestingness score distribution.", Buckets: prometheus.DefBuckets}),
		compileTimeHist: fac.NewHistogram(prometheus.HistogramOpts{Namespace: "jitfuzz", Name: "compile_seconds", Help: "Compile-service request latency.", Buckets: prometheus.DefBuckets}),
		execTimeHist:    fac.NewHistogramVec(prometheus.HistogramOpts{Namespace: "jitfuzz", Name: "exec_seconds", Help: "Subject-process wall time by mode.", Buckets: prometheus.DefBuckets}, []string{"mode"}),

		featureCounts: make([]atomicCounter, f),
		pairCounts:    make([]atomicCounter, PairCount(f)),
		featureMetric: fac.NewCounterVec(prometheus.CounterOpts{Namespace: "jitfuzz", Name: "feature_observations_total", Help: "Per-feature observation counts."}, []string{"feature"}),
		pairMetric:    fac.NewCounterVec(prometheus.CounterOpts{Namespace: "jitfuzz", Name: "pair_observations_total", Help: "Per-pair co-occurrence counts."}, []string{"pair"}),

		mutatorStats:          make(map[testcase.MutatorKind]*MutatorCounters),
		mutatorAttemptsMetric: fac.NewCounterVec(prometheus.CounterOpts{Namespace: "jitfuzz", Name: "mutator_attempts_total", Help: "Mutation attempts by mutator kind."}, []string{"mutator"}),
		mutatorOutcomeMetric:  fac.NewCounterVec(prometheus.CounterOpts{Namespace: "jitfuzz", Name: "mutator_outcomes_total", Help: "Evaluation outcomes by mutator kind."}, []string{"mutator", "outcome"}),

		bugBuckets: make(map[string]struct{}),

		corpusSize: fac.NewGauge(prometheus.GaugeOpts{Namespace: "jitfuzz", Name: "corpus_size", Help: "Current champion corpus size."}),
	}

	for _, k := range testcase.AllMutatorKinds() {
		g.mutatorStats[k] = &MutatorCounters{RewardSum: newAccumulator(), OutcomesByKind: make(map[string]*atomicCounter)}
	}
	g.mutatorStats[testcase.Seed] = &MutatorCounters{RewardSum: newAccumulator(), OutcomesByKind: make(map[string]*atomicCounter)}

	return g
}

// Registry exposes the private prometheus registry for an optional
// /metrics HTTP handler.
func (g *GlobalStats) Registry() *prometheus.Registry { return g.reg }

func (g *GlobalStats) IncDispatched()        { g.dispatched.Inc() }
func (g *GlobalStats) IncEvaluated()         { g.evaluated.Inc() }
func (g *GlobalStats) IncExecuted()          { g.executed.Inc() }
func (g *GlobalStats) IncBugs()              { g.bugs.Inc() }
func (g *GlobalStats) IncInterpreterTimeout() { g.interpreterTimeouts.Inc() }
func (g *GlobalStats) IncJITTimeout()        { g.jitTimeouts.Inc() }
func (g *GlobalStats) IncCompileFailure()    { g.compileFailures.Inc() }

func (g *GlobalStats) ObserveScore(v float64) {
	g.scoreAcc.Observe(v)
	g.scoreHist.Observe(v)
}

func (g *GlobalStats) ObserveRuntimeWeight(v float64) { g.runtimeWeightAcc.Observe(v) }

func (g *GlobalStats) ObserveCompileTime(seconds float64) {
	g.compileTimeAcc.Observe(seconds)
	g.compileTimeHist.Observe(seconds)
}

func (g *GlobalStats) ObserveExecTime(mode string, seconds float64) {
	if mode == "interpreter" {
		g.execTimeInterp.Observe(seconds)
	} else {
		g.execTimeJIT.Observe(seconds)
	}

	g.execTimeHist.WithLabelValues(mode).Observe(seconds)
}

func (g *GlobalStats) ScoreSnapshot() Snapshot        { return g.scoreAcc.Snapshot() }
func (g *GlobalStats) RuntimeWeightSnapshot() Snapshot { return g.runtimeWeightAcc.Snapshot() }
func (g *GlobalStats) CompileTimeSnapshot() Snapshot  { return g.compileTimeAcc.Snapshot() }
func (g *GlobalStats) ExecTimeInterpSnapshot() Snapshot { return g.execTimeInterp.Snapshot() }
func (g *GlobalStats) ExecTimeJITSnapshot() Snapshot  { return g.execTimeJIT.Snapshot() }

// AvgGlobalExecTime returns the mean wall time across both run modes, used by the
// scorer's runtime weighting.
func (g *GlobalStats) AvgGlobalExecTime() float64 {
	i := g.execTimeInterp.Snapshot()
	j := g.execTimeJIT.Snapshot()
	total := i.Sum + j.Sum
	count := i.Count + j.Count

	if count == 0 {
		return 0
	}

	return total / float64(count)
}

// RecordFeatureObservation increments the per-feature coverage counter and
// returns its new total (0 for an out-of-range feature), used by the
// PF-IDF lift computation.
func (g *GlobalStats) RecordFeatureObservation(feature int) int64 {
	if feature < 0 || feature >= len(g.featureCounts) {
		return 0
	}

	n := g.featureCounts[feature].add(1)
	g.featureMetric.WithLabelValues(featureLabel(feature)).Inc()

	return n
}

// FeatureCount returns the current observation count for a feature.
func (g *GlobalStats) FeatureCount(feature int) int64 {
	if feature < 0 || feature >= len(g.featureCounts) {
		return 0
	}

	return g.featureCounts[feature].load()
}

// RecordPairObservation increments the co-occurrence counter for (i,j).
func (g *GlobalStats) RecordPairObservation(i, j int) int64 {
	idx := PairIndex(i, j, g.Features)
	if idx < 0 || idx >= len(g.pairCounts) {
		return 0
	}

	n := g.pairCounts[idx].add(1)
	g.pairMetric.WithLabelValues(pairLabel(i, j)).Inc()

	return n
}

// PairCountAt returns the current co-occurrence count for (i,j).
func (g *GlobalStats) PairCountAt(i, j int) int64 {
	idx := PairIndex(i, j, g.Features)
	if idx < 0 || idx >= len(g.pairCounts) {
		return 0
	}

	return g.pairCounts[idx].load()
}

// TotalEvaluations returns N, the total evaluation count, used as the PF-IDF
// document-frequency denominator.
func (g *GlobalStats) TotalEvaluations() int64 {
	return int64(readCounter(g.evaluated))
}

// Dispatched returns the total count of test cases dispatched to the
// execution queue.
func (g *GlobalStats) Dispatched() int64 { return int64(readCounter(g.dispatched)) }

// Executed returns the total count of test cases executed by the Executor.
func (g *GlobalStats) Executed() int64 { return int64(readCounter(g.executed)) }

// Bugs returns the total count of divergence bugs found (not deduplicated
// by bucket; see UniqueBugCount for that).
func (g *GlobalStats) Bugs() int64 { return int64(readCounter(g.bugs)) }

// InterpreterTimeouts returns the total count of interpreter-mode run
// timeouts.
func (g *GlobalStats) InterpreterTimeouts() int64 { return int64(readCounter(g.interpreterTimeouts)) }

// JITTimeouts returns the total count of JIT-mode run timeouts.
func (g *GlobalStats) JITTimeouts() int64 { return int64(readCounter(g.jitTimeouts)) }

// CompileFailures returns the total count of compile-service rejections.
func (g *GlobalStats) CompileFailures() int64 { return int64(readCounter(g.compileFailures)) }

// MutatorAttempt records one mutation attempt for a mutator kind.
func (g *GlobalStats) MutatorAttempt(kind testcase.MutatorKind) {
	g.mutatorMu.Lock()
	mc := g.mutatorCountersLocked(kind)
	g.mutatorMu.Unlock()
	mc.Attempts.add(1)
	g.mutatorAttemptsMetric.WithLabelValues(string(kind)).Inc()
}

// MutatorOutcome records an evaluation outcome (IMPROVED, NO_IMPROVEMENT,
// BUG, TIMEOUT, FAILURE) for a mutator kind and accumulates its reward.
func (g *GlobalStats) MutatorOutcome(kind testcase.MutatorKind, outcome string, reward float64) {
	g.mutatorMu.Lock()
	mc := g.mutatorCountersLocked(kind)
	if mc.OutcomesByKind[outcome] == nil {
		mc.OutcomesByKind[outcome] = &atomicCounter{}
	}

	c := mc.OutcomesByKind[outcome]
	g.mutatorMu.Unlock()

	c.add(1)
	mc.RewardSum.Observe(reward)
	g.mutatorOutcomeMetric.WithLabelValues(string(kind), outcome).Inc()
}

func (g *GlobalStats) mutatorCountersLocked(kind testcase.MutatorKind) *MutatorCounters {
	mc, ok := g.mutatorStats[kind]
	if !ok {
		mc = &MutatorCounters{RewardSum: newAccumulator(), OutcomesByKind: make(map[string]*atomicCounter)}
		g.mutatorStats[kind] = mc
	}

	return mc
}

// MutatorSnapshot returns a read-only copy of a mutator's counters.
func (g *GlobalStats) MutatorSnapshot(kind testcase.MutatorKind) (attempts int64, reward Snapshot, outcomes map[string]int64) {
	g.mutatorMu.Lock()
	mc, ok := g.mutatorStats[kind]
	g.mutatorMu.Unlock()

	if !ok {
		return 0, Snapshot{}, nil
	}

	outcomes = make(map[string]int64)

	g.mutatorMu.Lock()
	for k, c := range mc.OutcomesByKind {
		outcomes[k] = c.load()
	}
	g.mutatorMu.Unlock()

	return mc.Attempts.load(), mc.RewardSum.Snapshot(), outcomes
}

// AddBugBucket records a stable bug-bucket identifier, returning true if it
// had not been seen before (i.e. this is a unique/new bug).
func (g *GlobalStats) AddBugBucket(id string) bool {
	g.bugBucketsMu.Lock()
	defer g.bugBucketsMu.Unlock()

	if _, ok := g.bugBuckets[id]; ok {
		return false
	}

	g.bugBuckets[id] = struct{}{}

	return true
}

// UniqueBugCount returns the number of distinct bug buckets seen.
func (g *GlobalStats) UniqueBugCount() int {
	g.bugBucketsMu.Lock()
	defer g.bugBucketsMu.Unlock()

	return len(g.bugBuckets)
}

// SetCorpusSize updates the corpus-size gauge.
func (g *GlobalStats) SetCorpusSize(n int) { g.corpusSize.Set(float64(n)) }
