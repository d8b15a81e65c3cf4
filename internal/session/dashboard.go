package session

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/jitfuzz/jitfuzz/internal/corpus"
	"github.com/jitfuzz/jitfuzz/internal/queue"
	"github.com/jitfuzz/jitfuzz/internal/stats"
	"github.com/jitfuzz/jitfuzz/internal/testcase"
)

// Dashboard runs on the main thread: it periodically snapshots
// GlobalStats to signals.csv (and, in debug mode, per-mutator deltas to
// mutator_optimization_stats.csv), and on shutdown writes the one-shot
// end-of-run reports.
type Dashboard struct {
	Global          *stats.GlobalStats
	Corpus          *corpus.Corpus
	Mutations       *queue.MutationQueue
	Root            string
	Interval        time.Duration
	MutatorInterval time.Duration
	Debug           bool
	Log             zerolog.Logger

	signalsCSV *os.File
	mutatorCSV *os.File
}

// NewDashboard opens signals.csv (and mutator_optimization_stats.csv, if
// debug) for append, ready for periodic writes. interval paces signals.csv;
// mutatorInterval separately paces mutator_optimization_stats.csv and is
// only consulted when debug is true.
func NewDashboard(global *stats.GlobalStats, c *corpus.Corpus, mutations *queue.MutationQueue, root string, interval, mutatorInterval time.Duration, debug bool, log zerolog.Logger) (*Dashboard, error) {
	d := &Dashboard{Global: global, Corpus: c, Mutations: mutations, Root: root, Interval: interval, MutatorInterval: mutatorInterval, Debug: debug, Log: log}

	f, err := os.Create(filepath.Join(root, "signals.csv"))
	if err != nil {
		return nil, fmt.Errorf("session: create signals.csv: %w", err)
	}

	d.signalsCSV = f

	w := csv.NewWriter(f)
	_ = w.Write([]string{"timestamp", "dispatched", "evaluated", "executed", "bugs", "unique_bugs", "corpus_size", "score_mean", "score_max"})
	w.Flush()

	if debug {
		mf, err := os.Create(filepath.Join(root, "mutator_optimization_stats.csv"))
		if err != nil {
			return nil, fmt.Errorf("session: create mutator_optimization_stats.csv: %w", err)
		}

		d.mutatorCSV = mf

		mw := csv.NewWriter(mf)
		_ = mw.Write([]string{"timestamp", "mutator", "attempts", "reward_mean", "improved", "no_improvement", "bug", "timeout", "failure"})
		mw.Flush()
	}

	return d, nil
}

// Run redraws/appends signals.csv on Interval, and (in debug mode)
// mutator_optimization_stats.csv on its own, independent MutatorInterval,
// until ctx is cancelled.
func (d *Dashboard) Run(ctx context.Context) {
	ticker := time.NewTicker(d.Interval)
	defer ticker.Stop()

	var mutatorC <-chan time.Time

	if d.Debug {
		mutatorTicker := time.NewTicker(d.MutatorInterval)
		defer mutatorTicker.Stop()
		mutatorC = mutatorTicker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.tick(time.Now().Unix())
		case <-mutatorC:
			d.tickMutatorStats(time.Now().Unix())
		}
	}
}

func (d *Dashboard) tick(ts int64) {
	score := d.Global.ScoreSnapshot()

	row := []string{
		strconv.FormatInt(ts, 10),
		fmt.Sprintf("%d", d.Global.Dispatched()),
		fmt.Sprintf("%d", d.Global.TotalEvaluations()),
		fmt.Sprintf("%d", d.Global.Executed()),
		fmt.Sprintf("%d", d.Global.Bugs()),
		fmt.Sprintf("%d", d.Global.UniqueBugCount()),
		fmt.Sprintf("%d", d.Corpus.Size()),
		fmt.Sprintf("%.4f", score.Mean),
		fmt.Sprintf("%.4f", score.Max),
	}

	w := csv.NewWriter(d.signalsCSV)
	_ = w.Write(row)
	w.Flush()

	d.Log.Info().
		Int("corpus_size", d.Corpus.Size()).
		Int("unique_bugs", d.Global.UniqueBugCount()).
		Float64("score_mean", score.Mean).
		Msg("signal")
}

func (d *Dashboard) tickMutatorStats(ts int64) {
	w := csv.NewWriter(d.mutatorCSV)
	defer w.Flush()

	for _, kind := range append(testcase.AllMutatorKinds(), testcase.Seed) {
		attempts, reward, outcomes := d.Global.MutatorSnapshot(kind)
		if attempts == 0 {
			continue
		}

		_ = w.Write([]string{
			strconv.FormatInt(ts, 10),
			string(kind),
			strconv.FormatInt(attempts, 10),
			fmt.Sprintf("%.4f", reward.Mean),
			strconv.FormatInt(outcomes["IMPROVED"], 10),
			strconv.FormatInt(outcomes["NO_IMPROVEMENT"], 10),
			strconv.FormatInt(outcomes["BUG"], 10),
			strconv.FormatInt(outcomes["TIMEOUT"], 10),
			strconv.FormatInt(outcomes["FAILURE"], 10),
		})
	}
}

// Final writes the one-shot end-of-run reports: final_metrics.txt,
// missing_pairs.txt, and mutation_queue_snapshot.csv.
func (d *Dashboard) Final(numFeatures int) error {
	if err := d.writeFinalMetrics(); err != nil {
		return err
	}

	if err := d.writeMissingPairs(numFeatures); err != nil {
		return err
	}

	return d.writeMutationQueueSnapshot()
}

func (d *Dashboard) writeFinalMetrics() error {
	score := d.Global.ScoreSnapshot()

	content := fmt.Sprintf(
		"dispatched=%d\nexecuted=%d\nevaluated=%d\nbugs=%d\nunique_bugs=%d\ncorpus_size=%d\nscore_mean=%.4f\nscore_max=%.4f\n",
		d.Global.Dispatched(), d.Global.Executed(), d.Global.TotalEvaluations(), d.Global.Bugs(), d.Global.UniqueBugCount(),
		d.Corpus.Size(), score.Mean, score.Max,
	)

	return os.WriteFile(filepath.Join(d.Root, "final_metrics.txt"), []byte(content), 0o644)
}

func (d *Dashboard) writeMissingPairs(numFeatures int) error {
	f, err := os.Create(filepath.Join(d.Root, "missing_pairs.txt"))
	if err != nil {
		return fmt.Errorf("session: create missing_pairs.txt: %w", err)
	}
	defer f.Close()

	for i := 0; i < numFeatures; i++ {
		for j := i + 1; j < numFeatures; j++ {
			if d.Global.PairCountAt(i, j) == 0 {
				fmt.Fprintf(f, "%d,%d\n", i, j)
			}
		}
	}

	return nil
}

func (d *Dashboard) writeMutationQueueSnapshot() error {
	f, err := os.Create(filepath.Join(d.Root, "mutation_queue_snapshot.csv"))
	if err != nil {
		return fmt.Errorf("session: create mutation_queue_snapshot.csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	_ = w.Write([]string{"name", "score", "mutation_depth", "mutator_kind"})

	for _, tc := range d.Mutations.Snapshot() {
		_ = w.Write([]string{
			tc.Name,
			fmt.Sprintf("%.4f", tc.Score()),
			strconv.Itoa(tc.MutationDepth),
			string(tc.MutatorKind),
		})
	}

	return nil
}

// Close releases the open CSV file handles.
func (d *Dashboard) Close() {
	if d.signalsCSV != nil {
		_ = d.signalsCSV.Close()
	}

	if d.mutatorCSV != nil {
		_ = d.mutatorCSV.Close()
	}
}
