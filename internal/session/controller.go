package session

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jitfuzz/jitfuzz/internal/compileclient"
	"github.com/jitfuzz/jitfuzz/internal/config"
	"github.com/jitfuzz/jitfuzz/internal/corpus"
	"github.com/jitfuzz/jitfuzz/internal/evaluator"
	"github.com/jitfuzz/jitfuzz/internal/logging"
	"github.com/jitfuzz/jitfuzz/internal/mutation"
	"github.com/jitfuzz/jitfuzz/internal/names"
	"github.com/jitfuzz/jitfuzz/internal/queue"
	"github.com/jitfuzz/jitfuzz/internal/runner"
	"github.com/jitfuzz/jitfuzz/internal/scheduler"
	"github.com/jitfuzz/jitfuzz/internal/scorer"
	"github.com/jitfuzz/jitfuzz/internal/stats"
	"github.com/jitfuzz/jitfuzz/internal/testcase"
)

// shutdownJoinTimeout bounds how long the controller waits for executor
// and mutator-worker goroutines to notice queue closure and return,
// before giving up and writing final reports anyway.
const shutdownJoinTimeout = 5 * time.Second

// Controller owns every pipeline component for one fuzzing session: it
// wires queues, workers, the evaluator, and the dashboard together, and
// drives the run from seed load to shutdown report.
type Controller struct {
	cfg  config.Config
	log  zerolog.Logger
	root string

	global *stats.GlobalStats
	corpus *corpus.Corpus

	executions *queue.ExecutionQueue
	evaluated  *queue.FIFO[runner.TestCaseResult]
	mutations  *queue.MutationQueue

	files     *Files
	blacklist *Blacklist

	executor  *runner.Executor
	evalStage *evaluator.Evaluator
	engine    *mutation.Engine
	workers   []*mutation.Worker

	dashboard *Dashboard
	watcher   *Watcher

	shutdownOnce sync.Once
	cancel       context.CancelFunc
}

// New builds a Controller from a resolved Config. It creates the session
// directory and loads the blacklist, but does not yet load seeds or
// start any goroutine; call Run for that.
func New(cfg config.Config, log zerolog.Logger) (*Controller, error) {
	root := filepath.Join("fuzz_sessions", time.Now().Format("20060102-150405"))

	files, err := NewFiles(root)
	if err != nil {
		return nil, fmt.Errorf("session: create session directory: %w", err)
	}

	blacklist, err := LoadBlacklist(cfg.Blacklist)
	if err != nil {
		return nil, fmt.Errorf("session: load blacklist: %w", err)
	}

	sessionSeed := cfg.RNGSeed
	if sessionSeed == 0 {
		sessionSeed = time.Now().UnixNano()
	}

	global := stats.New(cfg.NumFeatures)

	corpusPolicy, err := buildCorpusPolicy(cfg.CorpusPolicy, sessionSeed)
	if err != nil {
		return nil, err
	}

	c := corpus.New(corpus.DefaultCapacity, corpusPolicy)

	// Sentinel feature is the last slot of the fixed feature set, by
	// convention of the instrumented runtimes this parser is modeled on
	// (an overflow/unknown bucket, excluded from coverage accounting).
	sentinel := cfg.NumFeatures - 1

	sc := scorer.New(scorer.Policy(cfg.Scoring), sentinel, global)

	sched := scheduler.New(scheduler.PolicyName(cfg.MutatorPolicy), sessionSeed)

	executions := queue.NewExecutionQueue(queue.DefaultExecutionCapacity)
	evaluated := queue.NewFIFO[runner.TestCaseResult]()
	mutations := queue.NewMutationQueue()

	gen := names.New()
	engine := mutation.NewEngine(mutation.DefaultMutators(), files, gen)

	mode := runnerMode(cfg.Mode)

	compiler := compileclient.New(fmt.Sprintf("http://%s:%d", cfg.CompileServiceHost, cfg.CompileServicePort))
	subject := DefaultJDKSubject(cfg.JDK)
	executor := runner.New(compiler, subject, mode, "")

	eval := evaluator.New(mode, c, sc, sched, global, mutations, files, files, cfg.NumFeatures)

	dashboard, err := NewDashboard(global, c, mutations, root, time.Duration(cfg.SignalIntervalSec)*time.Second, time.Duration(cfg.MutatorIntervalSec)*time.Second, cfg.Debug, logging.Component(log, "dashboard"))
	if err != nil {
		return nil, fmt.Errorf("session: create dashboard: %w", err)
	}

	ctl := &Controller{
		cfg:        cfg,
		log:        log,
		root:       root,
		global:     global,
		corpus:     c,
		executions: executions,
		evaluated:  evaluated,
		mutations:  mutations,
		files:      files,
		blacklist:  blacklist,
		executor:   executor,
		evalStage:  eval,
		engine:     engine,
		dashboard:  dashboard,
	}

	workerCfg := mutation.DefaultWorkerConfig()
	workerCfg.BatchSize = cfg.MutatorBatchSize
	workerCfg.SlowLimit = int64(cfg.MutatorSlowLimit)
	workerCfg.MutatorTimeout = time.Duration(cfg.MutatorTimeoutMs) * time.Millisecond

	threads := cfg.MutatorThreads
	if threads < 1 {
		threads = 1
	}

	ctl.workers = make([]*mutation.Worker, threads)
	for i := range ctl.workers {
		workerSeed := int64(uint64(sessionSeed)^scheduler.GoldenRatioSalt) ^ int64(i+1)
		ctl.workers[i] = mutation.NewWorker(workerCfg, engine, files, mutations, executions, sched, c, global, workerSeed, logging.Component(log, "mutator"))
	}

	watcher, err := NewWatcher(cfg.Blacklist, cfg.SeedPool, ctl.reloadBlacklist, ctl.onNewSeed, logging.Component(log, "watch"))
	if err != nil {
		return nil, fmt.Errorf("session: create watcher: %w", err)
	}

	ctl.watcher = watcher

	return ctl, nil
}

func runnerMode(m string) runner.Mode {
	if m == string(config.ModeFuzzAssert) {
		return runner.AssertOnly
	}

	return runner.Differential
}

func buildCorpusPolicy(name string, seed int64) (corpus.Policy, error) {
	switch name {
	case "", "champion":
		return corpus.ChampionPolicy{}, nil
	case "random":
		return corpus.NewRandomPolicy(seed), nil
	default:
		return nil, fmt.Errorf("session: unknown corpus policy %q", name)
	}
}

// Run loads seeds, spawns the executor and mutator-worker pools, starts
// the evaluator and dashboard, and blocks until ctx is cancelled. On
// return the session's final reports have already been written.
func (c *Controller) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	defer c.dashboard.Close()

	seeds, err := LoadSeeds(c.cfg.Seeds, c.blacklist, c.files, names.New())
	if err != nil {
		return fmt.Errorf("session: load seeds: %w", err)
	}

	c.log.Info().Int("count", len(seeds)).Str("session_dir", c.root).Msg("seeds loaded")

	for _, tc := range seeds {
		tc.SetActiveChampion(true)
		c.mutations.Push(tc)
		c.executions.Push(tc)
	}

	var wg sync.WaitGroup

	executors := c.cfg.Executors
	if executors < 1 {
		executors = 1
	}

	for i := 0; i < executors; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()
			c.runExecutor()
		}()
	}

	wg.Add(1)

	go func() {
		defer wg.Done()
		c.runEvaluator()
	}()

	for _, w := range c.workers {
		wg.Add(1)

		go func(w *mutation.Worker) {
			defer wg.Done()

			for w.RunOnce() {
			}
		}(w)
	}

	wg.Add(1)

	go func() {
		defer wg.Done()
		c.watcher.Run(runCtx)
	}()

	c.dashboard.Run(runCtx)

	c.shutdown(&wg)

	return c.dashboard.Final(c.cfg.NumFeatures)
}

// Stop triggers an orderly shutdown, e.g. from a caught SIGINT.
func (c *Controller) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
}

func (c *Controller) shutdown(wg *sync.WaitGroup) {
	c.shutdownOnce.Do(func() {
		c.log.Info().Msg("shutdown: closing queues")

		c.mutations.Close()
		c.executions.Close()
		c.evaluated.Close()
		_ = c.watcher.Close()

		done := make(chan struct{})

		go func() {
			wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			c.log.Info().Msg("shutdown: all workers joined")
		case <-time.After(shutdownJoinTimeout):
			c.log.Warn().Msg("shutdown: timed out waiting for workers, writing reports anyway")
		}
	})
}

func (c *Controller) runExecutor() {
	for {
		tc, ok := c.executions.Pop()
		if !ok {
			return
		}

		c.global.IncDispatched()

		result, ok := c.executor.Execute(context.Background(), tc)
		if !ok {
			c.global.IncCompileFailure()
			c.deleteTestCase(tc)

			continue
		}

		c.global.IncExecuted()
		c.recordRuntimeMetrics(tc, result)
		c.evaluated.Push(result)
	}
}

// recordRuntimeMetrics feeds each run's measured wall time into the test
// case (consumed by the scorer's runtime weighting, spec.md 4.1) and into
// GlobalStats' exec/compile time accumulators (consumed by the dashboard
// and by AvgGlobalExecTime, the weighting formula's baseline).
func (c *Controller) recordRuntimeMetrics(tc *testcase.TestCase, result runner.TestCaseResult) {
	c.global.ObserveCompileTime(result.CompileTime.Seconds())

	tc.JITRuntimeNanos = result.JITResult.WallTime.Nanoseconds()
	c.global.ObserveExecTime("jit", result.JITResult.WallTime.Seconds())

	if result.InterpreterResult != nil {
		tc.InterpreterRuntimeNanos = result.InterpreterResult.WallTime.Nanoseconds()
		c.global.ObserveExecTime("interpreter", result.InterpreterResult.WallTime.Seconds())
	}
}

func (c *Controller) runEvaluator() {
	for {
		result, ok := c.evaluated.Pop()
		if !ok {
			return
		}

		c.evalStage.Evaluate(result)
	}
}

func (c *Controller) deleteTestCase(tc *testcase.TestCase) {
	if tc.Path == "" {
		return
	}

	if err := c.files.Delete(tc.Path); err != nil {
		c.log.Warn().Err(err).Str("testcase", tc.Name).Msg("failed to delete dropped test case file")
	}
}

// reloadBlacklist is the Watcher callback fired when the blacklist file
// changes: future seed loads will honor it, but already-loaded test
// cases already in flight are unaffected (spec.md describes this as a
// hot-reloadable input, not a retroactive filter).
func (c *Controller) reloadBlacklist() {
	bl, err := LoadBlacklist(c.cfg.Blacklist)
	if err != nil {
		c.log.Warn().Err(err).Msg("failed to reload blacklist")
		return
	}

	c.blacklist = bl

	c.log.Info().Msg("blacklist reloaded")
}

// onNewSeed is the Watcher callback fired when a new file appears under
// the seed pool directory: it is loaded and enqueued exactly like a
// startup seed.
func (c *Controller) onNewSeed(path string) {
	if c.blacklist.Contains(filepath.Base(path)) {
		return
	}

	source, err := os.ReadFile(path)
	if err != nil {
		c.log.Warn().Err(err).Str("path", path).Msg("failed to read new seed pool entry")
		return
	}

	gen := names.New()
	name := gen.Next()

	tcPath, err := c.files.Write(name, string(source))
	if err != nil {
		c.log.Warn().Err(err).Str("path", path).Msg("failed to persist new seed pool entry")
		return
	}

	tc := testcase.New(name, name, "", 0, 0, testcase.Seed, 0)
	tc.Path = tcPath
	tc.SetActiveChampion(true)

	c.mutations.Push(tc)
	c.executions.Push(tc)

	c.log.Info().Str("name", name).Str("source", path).Msg("seed pool entry loaded")
}

// RunTestMutator is the --mode test-mutator one-shot diagnostic: it
// applies every mutator kind once to every loaded seed and logs the
// outcome, skipping the full execute/evaluate pipeline entirely.
func (c *Controller) RunTestMutator() error {
	seeds, err := LoadSeeds(c.cfg.Seeds, c.blacklist, c.files, names.New())
	if err != nil {
		return fmt.Errorf("session: load seeds: %w", err)
	}

	rnd := rand.New(rand.NewSource(c.cfg.RNGSeed))

	for _, tc := range seeds {
		source, err := c.files.Read(tc.Path)
		if err != nil {
			c.log.Warn().Err(err).Str("seed", tc.Name).Msg("could not read seed source")
			continue
		}

		for _, kind := range testcase.AllMutatorKinds() {
			result := c.engine.Attempt(rnd, kind, tc, source)

			c.log.Info().
				Str("seed", tc.Name).
				Str("mutator", string(kind)).
				Int("status", int(result.Status)).
				Bool("all_not_applicable", result.AllNotApplicable).
				Msg("test-mutator attempt")
		}
	}

	return nil
}
