package mutation

import (
	"math"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/jitfuzz/jitfuzz/internal/queue"
	"github.com/jitfuzz/jitfuzz/internal/scheduler"
	"github.com/jitfuzz/jitfuzz/internal/stats"
	"github.com/jitfuzz/jitfuzz/internal/testcase"
)

// CorpusEvictor is the subset of *corpus.Corpus the worker needs, kept
// as an interface to avoid an import cycle (corpus depends on scorer,
// not on mutation).
type CorpusEvictor interface {
	Remove(tc *testcase.TestCase, reason string) bool
}

// WorkerConfig bundles a Mutation Worker's tunables, all sourced from
// spec.md 4.4.
type WorkerConfig struct {
	BatchSize          int
	SlowLimit          int64
	MutatorTimeout     time.Duration
	MinExecutionCap    int
	RandomSelectChance float64 // probability of random vs priority parent pick
	BackpressureSleep  time.Duration
}

// DefaultWorkerConfig returns spec.md's stated defaults.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		BatchSize:          4,
		SlowLimit:          5,
		MutatorTimeout:     2 * time.Second,
		MinExecutionCap:    50,
		RandomSelectChance: 0.1,
		BackpressureSleep:  100 * time.Millisecond,
	}
}

// Worker runs one mutation-worker loop iteration at a time. Multiple
// Workers share the same queues, scheduler, engine, and corpus.
type Worker struct {
	cfg        WorkerConfig
	engine     *Engine
	files      FileManager
	mutations  *queue.MutationQueue
	executions *queue.ExecutionQueue
	sched      scheduler.Policy
	corpus     CorpusEvictor
	global     *stats.GlobalStats
	rnd        *rand.Rand
	log        zerolog.Logger
}

// NewWorker builds a Worker. rngSeed should be unique per worker
// goroutine (e.g. derived from the session seed plus a worker index).
func NewWorker(cfg WorkerConfig, engine *Engine, files FileManager, mutations *queue.MutationQueue, executions *queue.ExecutionQueue, sched scheduler.Policy, corpus CorpusEvictor, global *stats.GlobalStats, rngSeed int64, log zerolog.Logger) *Worker {
	return &Worker{
		cfg:        cfg,
		engine:     engine,
		files:      files,
		mutations:  mutations,
		executions: executions,
		sched:      sched,
		corpus:     corpus,
		global:     global,
		rnd:        rand.New(rand.NewSource(rngSeed)),
		log:        log,
	}
}

// RunOnce executes a single loop iteration: backpressure check, parent
// selection, batch mutation, requeue. Returns false once the mutation
// queue has been closed and drained with no parent to take.
func (w *Worker) RunOnce() bool {
	for w.backpressured() {
		time.Sleep(w.cfg.BackpressureSleep)
	}

	parent, ok := w.selectParent()
	if !ok {
		return false
	}

	parent.IncrementTimesSelected()

	source, err := w.files.Read(parent.Path)
	if err != nil {
		w.log.Warn().Err(err).Str("parent", parent.Name).Msg("could not read parent source")
		w.corpus.Remove(parent, "parent source unreadable")

		return true
	}

	evicted := w.mutateBatch(parent, source)

	if !evicted && parent.ActiveChampion() {
		w.mutations.Push(parent)
	}

	return true
}

func (w *Worker) backpressured() bool {
	threshold := w.cfg.MinExecutionCap
	dynamic := int(math.Ceil(float64(w.mutations.Size()) * 0.25))

	if dynamic > threshold {
		threshold = dynamic
	}

	return w.executions.Size() >= threshold
}

func (w *Worker) selectParent() (*testcase.TestCase, bool) {
	if w.rnd.Float64() < w.cfg.RandomSelectChance {
		if tc, ok := w.mutations.RandomElement(w.rnd.Intn); ok {
			w.mutations.Remove(tc)
			return tc, true
		}
	}

	return w.mutations.Pop()
}

// mutateBatch runs up to BatchSize mutation attempts for parent, and
// reports whether the parent was evicted from the corpus during the
// batch (slow timeout or no applicable mutators).
func (w *Worker) mutateBatch(parent *testcase.TestCase, parentSource string) bool {
	attempted := make(map[testcase.MutatorKind]bool)

	for i := 0; i < w.cfg.BatchSize; i++ {
		kind := w.sched.Pick(parent, testcase.AllMutatorKinds(), attempted)
		attempted[kind] = true

		start := time.Now()
		result := w.engine.Attempt(w.rnd, kind, parent, parentSource)
		elapsed := time.Since(start)

		if elapsed > w.cfg.MutatorTimeout {
			count := parent.IncrementSlowMutationCount()
			w.global.MutatorAttempt(kind)

			if count >= w.cfg.SlowLimit {
				w.corpus.Remove(parent, "slow_mutation_count exceeded limit")
				w.deleteFile(parent)

				return true
			}

			return false
		}

		if result.AllNotApplicable {
			w.corpus.Remove(parent, "no applicable mutators")
			w.deleteFile(parent)

			return true
		}

		if result.Status != Applied {
			continue
		}

		w.global.MutatorAttempt(kind)
		w.executions.Push(result.Child)
	}

	return false
}

func (w *Worker) deleteFile(tc *testcase.TestCase) {
	if tc.Path == "" {
		return
	}

	if err := w.files.Delete(tc.Path); err != nil {
		w.log.Warn().Err(err).Str("testcase", tc.Name).Msg("failed to delete evicted test case file")
	}
}
