package evaluator

import (
	"testing"

	"github.com/jitfuzz/jitfuzz/internal/corpus"
	"github.com/jitfuzz/jitfuzz/internal/queue"
	"github.com/jitfuzz/jitfuzz/internal/runner"
	"github.com/jitfuzz/jitfuzz/internal/scheduler"
	"github.com/jitfuzz/jitfuzz/internal/scorer"
	"github.com/jitfuzz/jitfuzz/internal/stats"
	"github.com/jitfuzz/jitfuzz/internal/testcase"
)

type fakeFiles struct {
	deleted []string
}

func (f *fakeFiles) Delete(path string) error {
	f.deleted = append(f.deleted, path)
	return nil
}

type fakePersistence struct {
	bugs     int
	failings int
}

func (f *fakePersistence) SaveBug(tc *testcase.TestCase, reason string, result runner.TestCaseResult) error {
	f.bugs++
	return nil
}

func (f *fakePersistence) SaveFailing(tc *testcase.TestCase, reason string, result runner.TestCaseResult) error {
	f.failings++
	return nil
}

func newEvaluator(mode runner.Mode) (*Evaluator, *fakeFiles, *fakePersistence) {
	global := stats.New(4)
	c := corpus.New(10, nil)
	s := scorer.New(scorer.AbsoluteCount, -1, global)
	sched := scheduler.New(scheduler.UniformName, 1)
	mutations := queue.NewMutationQueue()
	files := &fakeFiles{}
	persistence := &fakePersistence{}

	e := New(mode, c, s, sched, global, mutations, files, persistence, 4)

	return e, files, persistence
}

func newResult(tc *testcase.TestCase, interpExit, jitExit int, interpOut, jitOut, jitStderr string, timeout bool) runner.TestCaseResult {
	return runner.TestCaseResult{
		TestCase:          tc,
		InterpreterResult: &runner.RunResult{ExitCode: interpExit, Stdout: interpOut, TimedOut: timeout},
		JITResult:         runner.RunResult{ExitCode: jitExit, Stdout: jitOut, Stderr: jitStderr, TimedOut: timeout},
		Compilable:        true,
	}
}

func TestEvaluateDifferentialTimeout(t *testing.T) {
	e, _, persistence := newEvaluator(runner.Differential)
	tc := testcase.New("tc", "tc", "", 1, 1, testcase.LineInsert, 0)

	r := newResult(tc, 0, 0, "a", "a", "", true)
	out := e.Evaluate(r)

	if out.Verdict != VerdictTimeout {
		t.Fatalf("verdict = %v, want TIMEOUT", out.Verdict)
	}

	if persistence.failings != 1 {
		t.Fatalf("expected one failing artifact persisted, got %d", persistence.failings)
	}
}

func TestEvaluateDifferentialExitCodeMismatchIsBug(t *testing.T) {
	e, _, persistence := newEvaluator(runner.Differential)
	tc := testcase.New("tc", "tc", "", 1, 1, testcase.LineInsert, 0)

	r := newResult(tc, 0, 1, "a", "a", "", false)
	out := e.Evaluate(r)

	if out.Verdict != VerdictBug {
		t.Fatalf("verdict = %v, want BUG", out.Verdict)
	}

	if persistence.bugs != 1 {
		t.Fatalf("expected one bug artifact persisted, got %d", persistence.bugs)
	}
}

func TestEvaluateDifferentialNonZeroExitIsFailure(t *testing.T) {
	e, _, persistence := newEvaluator(runner.Differential)
	tc := testcase.New("tc", "tc", "", 1, 1, testcase.LineInsert, 0)

	r := newResult(tc, 2, 2, "a", "a", "", false)
	out := e.Evaluate(r)

	if out.Verdict != VerdictFailure {
		t.Fatalf("verdict = %v, want FAILURE", out.Verdict)
	}

	if persistence.failings != 1 {
		t.Fatalf("expected one failing artifact persisted, got %d", persistence.failings)
	}
}

func TestEvaluateDifferentialStdoutMismatchIsBug(t *testing.T) {
	e, _, _ := newEvaluator(runner.Differential)
	tc := testcase.New("tc", "tc", "", 1, 1, testcase.LineInsert, 0)

	r := newResult(tc, 0, 0, "interp-out", "jit-out", "", false)
	out := e.Evaluate(r)

	if out.Verdict != VerdictBug {
		t.Fatalf("verdict = %v, want BUG", out.Verdict)
	}
}

func TestEvaluateScoringPathAcceptsFirstCoverage(t *testing.T) {
	e, _, _ := newEvaluator(runner.Differential)
	tc := testcase.New("tc", "tc", "", 1, 1, testcase.LineInsert, 0)

	r := newResult(tc, 0, 0, "same", "same", "OPT C m 0 5\n", false)
	out := e.Evaluate(r)

	if out.Verdict != VerdictScored {
		t.Fatalf("verdict = %v, want SCORED", out.Verdict)
	}

	if out.Corpus.Outcome != corpus.Accepted {
		t.Fatalf("corpus outcome = %v, want ACCEPTED", out.Corpus.Outcome)
	}

	if !tc.ActiveChampion() {
		t.Fatalf("accepted test case should be active champion")
	}
}

func TestEvaluateScoringPathDeactivatesOnNonPositiveScore(t *testing.T) {
	e, _, _ := newEvaluator(runner.Differential)
	tc := testcase.New("tc", "tc", "", 1, 1, testcase.LineInsert, 0)
	tc.SetActiveChampion(true)

	r := newResult(tc, 0, 0, "same", "same", "", false) // empty stderr -> no vectors -> score 0
	out := e.Evaluate(r)

	if out.Verdict != VerdictScored {
		t.Fatalf("verdict = %v, want SCORED", out.Verdict)
	}

	if tc.ActiveChampion() {
		t.Fatalf("non-positive score should deactivate champion flag")
	}

	if tc.Score() != 0 {
		t.Fatalf("score should be reset to 0, got %v", tc.Score())
	}
}

func TestEvaluateAssertOnlyCrashSignatureIsBug(t *testing.T) {
	e, _, persistence := newEvaluator(runner.AssertOnly)
	tc := testcase.New("tc", "tc", "", 1, 1, testcase.LineInsert, 0)

	r := runner.TestCaseResult{
		TestCase: tc,
		JITResult: runner.RunResult{
			ExitCode: 1,
			Stdout:   "prefix " + AssertCrashSignature + " suffix",
		},
	}

	out := e.Evaluate(r)
	if out.Verdict != VerdictBug {
		t.Fatalf("verdict = %v, want BUG", out.Verdict)
	}

	if persistence.bugs != 1 {
		t.Fatalf("expected bug persisted, got %d", persistence.bugs)
	}
}

func TestImprovedDetectsBrandNewFeature(t *testing.T) {
	parent := []int64{0, 0}
	preview := scorer.ScorePreview{
		BucketedCounts:  []int64{0, 4},
		PresentFeatures: []int{1},
	}

	if !improved(parent, preview) {
		t.Fatalf("expected improved=true for a feature absent in the parent")
	}
}

func TestImprovedDetectsCountIncreaseAboveZero(t *testing.T) {
	parent := []int64{2}
	preview := scorer.ScorePreview{
		BucketedCounts:  []int64{8}, // bucketed from a raw count of 5 (2 -> 5 rose)
		PresentFeatures: []int{0},
	}

	if !improved(parent, preview) {
		t.Fatalf("expected improved=true when a feature count rises from 2 to 5")
	}
}

func TestImprovedFalseWhenCountDoesNotIncrease(t *testing.T) {
	parent := []int64{8}
	preview := scorer.ScorePreview{
		BucketedCounts:  []int64{8},
		PresentFeatures: []int{0},
	}

	if improved(parent, preview) {
		t.Fatalf("expected improved=false when no feature count increased")
	}
}

func TestEvaluateScoringPathFeedsImprovedOutcomeToScheduler(t *testing.T) {
	e, _, _ := newEvaluator(runner.Differential)
	recorder := &recordingScheduler{}
	e.Scheduler = recorder

	tc := testcase.New("tc", "tc", "", 1, 1, testcase.LineInsert, 0)

	r := newResult(tc, 0, 0, "same", "same", "OPT C m 0 5\n", false)
	e.Evaluate(r)

	if len(recorder.feedback) != 1 {
		t.Fatalf("expected exactly one feedback record, got %d", len(recorder.feedback))
	}

	if recorder.feedback[0].Outcome != scheduler.Improved {
		t.Fatalf("outcome = %v, want IMPROVED for a brand-new feature", recorder.feedback[0].Outcome)
	}
}

type recordingScheduler struct {
	feedback []scheduler.Feedback
}

func (r *recordingScheduler) Pick(_ *testcase.TestCase, candidates []testcase.MutatorKind, _ map[testcase.MutatorKind]bool) testcase.MutatorKind {
	if len(candidates) == 0 {
		return ""
	}

	return candidates[0]
}

func (r *recordingScheduler) RecordEvaluation(f scheduler.Feedback) {
	r.feedback = append(r.feedback, f)
}

func TestEvaluateRecordsMutatorOutcomeInGlobalStats(t *testing.T) {
	e, _, _ := newEvaluator(runner.Differential)
	tc := testcase.New("tc", "tc", "", 1, 1, testcase.LineInsert, 0)

	r := newResult(tc, 0, 0, "same", "same", "OPT C m 0 5\n", false)
	e.Evaluate(r)

	attempts, _, outcomes := e.Global.MutatorSnapshot(testcase.LineInsert)
	if attempts != 0 {
		t.Fatalf("MutatorOutcome should not touch the attempts counter, got %d", attempts)
	}

	if outcomes["IMPROVED"] != 1 {
		t.Fatalf("expected one IMPROVED outcome recorded, got %v", outcomes)
	}
}

func TestDefaultBucketFuncDeterministic(t *testing.T) {
	tc := testcase.New("tc", "tc", "", 1, 1, testcase.LineInsert, 0)
	r := newResult(tc, 0, 1, "a", "a", "", false)

	b1 := DefaultBucketFunc(r, "different exit codes")
	b2 := DefaultBucketFunc(r, "different exit codes")

	if b1 != b2 {
		t.Fatalf("bucket function should be deterministic: %q vs %q", b1, b2)
	}

	if len(b1) != 16 {
		t.Fatalf("expected 16-char bucket id, got %q", b1)
	}
}
