// Package evaluator implements the single-threaded Evaluator: it
// classifies each executed test case result (timeout, bug, failure, or
// scoring candidate), drives the champion corpus's accept/replace
// decision, and feeds outcomes back to the mutator scheduler.
package evaluator

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strings"

	"github.com/jitfuzz/jitfuzz/internal/corpus"
	"github.com/jitfuzz/jitfuzz/internal/optparse"
	"github.com/jitfuzz/jitfuzz/internal/queue"
	"github.com/jitfuzz/jitfuzz/internal/runner"
	"github.com/jitfuzz/jitfuzz/internal/scheduler"
	"github.com/jitfuzz/jitfuzz/internal/scorer"
	"github.com/jitfuzz/jitfuzz/internal/stats"
	"github.com/jitfuzz/jitfuzz/internal/testcase"
)

// AssertCrashSignature is the fixed stdout prefix assert-only mode
// treats as a runtime crash marker.
const AssertCrashSignature = "RUNTIME_ASSERTION_FAILURE"

// Verdict classifies one evaluated result.
type Verdict string

const (
	VerdictBug     Verdict = "BUG"
	VerdictFailure Verdict = "FAILURE"
	VerdictTimeout Verdict = "TIMEOUT"
	VerdictScored  Verdict = "SCORED"
)

// Outcome is the full result of evaluating one TestCaseResult.
type Outcome struct {
	Verdict Verdict
	Reason  string
	Corpus  corpus.Decision
}

// Files is the subset of mutation.FileManager the Evaluator needs to
// delete rejected/discarded test case artifacts.
type Files interface {
	Delete(path string) error
}

// Persistence is the external collaborator that writes bug/failing
// artifacts under the session directory.
type Persistence interface {
	SaveBug(tc *testcase.TestCase, reason string, result runner.TestCaseResult) error
	SaveFailing(tc *testcase.TestCase, reason string, result runner.TestCaseResult) error
}

// BucketFunc derives a stable bug-bucket identifier from a result, used
// to deduplicate unique-bug counts.
type BucketFunc func(result runner.TestCaseResult, reason string) string

// DefaultBucketFunc hashes the (reason, exit-code pair, normalized
// stdout prefix) into a 16-hex-char identifier.
func DefaultBucketFunc(result runner.TestCaseResult, reason string) string {
	var interpExit int

	if result.InterpreterResult != nil {
		interpExit = result.InterpreterResult.ExitCode
	}

	prefix := normalizedPrefix(result.JITResult.Stdout)
	h := sha256.New()
	fmt.Fprintf(h, "%s|%d|%d|%s", reason, interpExit, result.JITResult.ExitCode, prefix)

	return hex.EncodeToString(h.Sum(nil))[:16]
}

func normalizedPrefix(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 200 {
		s = s[:200]
	}

	return s
}

// Evaluator runs on a single goroutine; spec.md 4.7/5 require it be
// the sole writer of champion-corpus state outside mutation-worker
// evictions.
type Evaluator struct {
	Mode        runner.Mode
	Corpus      *corpus.Corpus
	Scorer      *scorer.Scorer
	Scheduler   scheduler.Policy
	Global      *stats.GlobalStats
	Mutations   *queue.MutationQueue
	Files       Files
	Persistence Persistence
	Parser      optparse.Parser
	NumFeatures int
	BucketFn    BucketFunc
}

// New builds an Evaluator with DefaultParser/DefaultBucketFunc if left
// unset by the caller-populated struct literal convention elsewhere;
// callers are expected to set Parser/BucketFn explicitly via struct
// literal, this constructor only fills required defaults.
func New(mode runner.Mode, c *corpus.Corpus, s *scorer.Scorer, sched scheduler.Policy, global *stats.GlobalStats, mutations *queue.MutationQueue, files Files, persistence Persistence, numFeatures int) *Evaluator {
	return &Evaluator{
		Mode:        mode,
		Corpus:      c,
		Scorer:      s,
		Scheduler:   sched,
		Global:      global,
		Mutations:   mutations,
		Files:       files,
		Persistence: persistence,
		Parser:      optparse.DefaultParser,
		NumFeatures: numFeatures,
		BucketFn:    DefaultBucketFunc,
	}
}

// Evaluate classifies and processes one executed result.
func (e *Evaluator) Evaluate(result runner.TestCaseResult) Outcome {
	e.Global.IncEvaluated()

	tc := result.TestCase

	if e.Mode == runner.Differential {
		return e.evaluateDifferential(tc, result)
	}

	return e.evaluateAssertOnly(tc, result)
}

func (e *Evaluator) evaluateDifferential(tc *testcase.TestCase, result runner.TestCaseResult) Outcome {
	interp := result.InterpreterResult

	if (interp != nil && interp.TimedOut) || result.JITResult.TimedOut {
		if interp != nil && interp.TimedOut {
			e.Global.IncInterpreterTimeout()
		}

		if result.JITResult.TimedOut {
			e.Global.IncJITTimeout()
		}

		e.persistFailing(tc, "timeout", result)
		e.feedback(tc, scheduler.Timeout, nil)

		return Outcome{Verdict: VerdictTimeout, Reason: "timeout"}
	}

	if interp != nil && interp.ExitCode != result.JITResult.ExitCode {
		return e.recordBug(tc, result, "different exit codes")
	}

	if result.JITResult.ExitCode != 0 {
		e.persistFailing(tc, "non-zero exit", result)
		e.feedback(tc, scheduler.Failure, nil)

		return Outcome{Verdict: VerdictFailure, Reason: "non-zero exit"}
	}

	if interp != nil && interp.Stdout != result.JITResult.Stdout {
		return e.recordBug(tc, result, "different stdout")
	}

	return e.score(tc, result)
}

func (e *Evaluator) evaluateAssertOnly(tc *testcase.TestCase, result runner.TestCaseResult) Outcome {
	if result.JITResult.TimedOut {
		e.Global.IncJITTimeout()
		e.persistFailing(tc, "timeout", result)
		e.feedback(tc, scheduler.Timeout, nil)

		return Outcome{Verdict: VerdictTimeout, Reason: "timeout"}
	}

	if result.JITResult.ExitCode != 0 && strings.Contains(result.JITResult.Stdout, AssertCrashSignature) {
		return e.recordBug(tc, result, "runtime assertion failure")
	}

	if result.JITResult.ExitCode != 0 {
		e.persistFailing(tc, "non-zero exit", result)
		e.feedback(tc, scheduler.Failure, nil)

		return Outcome{Verdict: VerdictFailure, Reason: "non-zero exit"}
	}

	return e.score(tc, result)
}

func (e *Evaluator) recordBug(tc *testcase.TestCase, result runner.TestCaseResult, reason string) Outcome {
	e.Global.IncBugs()

	bucket := e.bucketFn()(result, reason)
	e.Global.AddBugBucket(bucket)

	if e.Persistence != nil {
		_ = e.Persistence.SaveBug(tc, reason, result)
	}

	e.feedback(tc, scheduler.Bug, nil)

	return Outcome{Verdict: VerdictBug, Reason: reason}
}

func (e *Evaluator) score(tc *testcase.TestCase, result runner.TestCaseResult) Outcome {
	vectors, err := optparse.Parse(e.parser(), strings.NewReader(result.JITResult.Stderr), e.NumFeatures)
	if err != nil {
		e.persistFailing(tc, "optimization trace unparsable", result)
		e.feedback(tc, scheduler.Failure, nil)

		return Outcome{Verdict: VerdictFailure, Reason: "optimization trace unparsable"}
	}

	parentMerged := append([]int64(nil), tc.MergedOptimizationCounts...)

	preview := e.Scorer.Preview(tc, vectors)

	if preview.Score <= 0 || math.IsNaN(preview.Score) || math.IsInf(preview.Score, 0) {
		e.Scorer.Commit(tc, preview)
		tc.SetActiveChampion(false)
		tc.SetScore(0)
		e.feedback(tc, scheduler.NoImprovement, parentMerged)

		return Outcome{Verdict: VerdictScored, Reason: "non-positive score"}
	}

	decision := e.Corpus.Evaluate(tc, preview)

	switch decision.Outcome {
	case corpus.Accepted, corpus.Replaced:
		e.Scorer.Commit(tc, preview)
		tc.SetActiveChampion(true)
		e.Mutations.Remove(tc)
		e.Mutations.Push(tc)

		if decision.Outcome == corpus.Replaced && decision.PreviousChampion != nil {
			e.deleteArtifact(decision.PreviousChampion)
		}

		e.Global.SetCorpusSize(e.Corpus.Size())

	case corpus.Rejected:
		tc.SetActiveChampion(false)
		e.deleteArtifact(tc)

	case corpus.Discarded:
		tc.SetActiveChampion(false)
		e.deleteArtifact(tc)
	}

	outcome := scheduler.NoImprovement
	if improved(parentMerged, preview) {
		outcome = scheduler.Improved
	}

	e.feedback(tc, outcome, parentMerged)

	return Outcome{Verdict: VerdictScored, Corpus: decision}
}

// improved reports whether any merged feature count strictly increased
// from parent to child (spec.md 4.7 scoring-path step 5), covering both a
// brand-new feature (parent count 0) and a feature whose count simply
// rose (n -> m, m > n > 0).
func improved(parentMerged []int64, preview scorer.ScorePreview) bool {
	for _, f := range preview.PresentFeatures {
		var p int64
		if f < len(parentMerged) {
			p = parentMerged[f]
		}

		if f < len(preview.BucketedCounts) && preview.BucketedCounts[f] > p {
			return true
		}
	}

	return false
}

func (e *Evaluator) feedback(tc *testcase.TestCase, outcome scheduler.Outcome, parentMerged []int64) {
	e.Scheduler.RecordEvaluation(scheduler.Feedback{
		Mutator:      tc.MutatorKind,
		Outcome:      outcome,
		ParentScore:  tc.ParentScore,
		ChildScore:   tc.Score(),
		ParentMerged: parentMerged,
		ChildMerged:  tc.MergedOptimizationCounts,
	})

	e.Global.MutatorOutcome(tc.MutatorKind, string(outcome), tc.Score()-tc.ParentScore)
}

func (e *Evaluator) persistFailing(tc *testcase.TestCase, reason string, result runner.TestCaseResult) {
	if e.Persistence != nil {
		_ = e.Persistence.SaveFailing(tc, reason, result)
	}
}

func (e *Evaluator) deleteArtifact(tc *testcase.TestCase) {
	if e.Files == nil || tc.Path == "" {
		return
	}

	_ = e.Files.Delete(tc.Path)
}

func (e *Evaluator) parser() optparse.Parser {
	if e.Parser != nil {
		return e.Parser
	}

	return optparse.DefaultParser
}

func (e *Evaluator) bucketFn() BucketFunc {
	if e.BucketFn != nil {
		return e.BucketFn
	}

	return DefaultBucketFunc
}

