// Package runner implements the Executor: it compiles a test case via
// the compile service, then launches the subject runtime twice
// (interpreter-forced and JIT-tiered-disabled) as subprocesses under a
// hard wall-clock timeout, capturing stdout/stderr through temp files to
// avoid pipe deadlocks.
package runner

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/jitfuzz/jitfuzz/internal/compileclient"
	"github.com/jitfuzz/jitfuzz/internal/testcase"
)

// WallTimeout is the hard per-run timeout (spec.md 4.6 step 4).
const WallTimeout = 15 * time.Second

// Mode selects which subprocess invocations the Executor performs.
type Mode int

const (
	Differential Mode = iota
	AssertOnly
)

// RunResult is one subprocess invocation's outcome.
type RunResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
	TimedOut bool
	WallTime time.Duration
}

// TestCaseResult is handed to the Evaluator.
type TestCaseResult struct {
	TestCase          *testcase.TestCase
	InterpreterResult *RunResult
	JITResult         RunResult
	Compilable        bool
	CompileTime       time.Duration
}

// Subject is the external-collaborator runtime under test: a factory
// for the subprocess command to launch for a given mode. compileOnlyFilter
// is the comma-separated top-level-type filter built from the source file
// (spec.md 4.6 step 2); implementations apply it as a compile-restriction
// flag and may ignore it if empty.
type Subject interface {
	// InterpreterCommand builds the argv for an interpreter-forced run
	// of the compiled artifact.
	InterpreterCommand(ctx context.Context, artifactPath, compileOnlyFilter string) *exec.Cmd
	// JITCommand builds the argv for a JIT run with tiered compilation
	// disabled, batched compilation, and optimization diagnostics on
	// stderr enabled.
	JITCommand(ctx context.Context, artifactPath, compileOnlyFilter string) *exec.Cmd
}

// Executor runs the compile-then-execute-twice pipeline for one test
// case at a time.
type Executor struct {
	Compiler *compileclient.Client
	Subject  Subject
	Mode     Mode
	TempDir  string
}

// New builds an Executor. tempDir is where per-run stdio capture files
// are written; os.TempDir() is used if empty.
func New(compiler *compileclient.Client, subject Subject, mode Mode, tempDir string) *Executor {
	if tempDir == "" {
		tempDir = os.TempDir()
	}

	return &Executor{Compiler: compiler, Subject: subject, Mode: mode, TempDir: tempDir}
}

// Execute compiles tc's on-disk source (tc.Path) and runs it under the
// configured mode(s). A compile failure returns ok=false and the caller
// should drop the test case without enqueueing it for evaluation.
func (e *Executor) Execute(ctx context.Context, tc *testcase.TestCase) (TestCaseResult, bool) {
	compileCtx, cancel := context.WithTimeout(ctx, compileclient.RequestTimeout)
	defer cancel()

	compileStart := time.Now()
	resp, err := e.Compiler.Compile(compileCtx, tc.Path)
	compileTime := time.Since(compileStart)

	if err != nil {
		return TestCaseResult{}, false
	}

	filter := compileOnlyFilterFor(tc.Path)

	jitResult := e.runOnce(ctx, func(c context.Context) *exec.Cmd {
		return e.Subject.JITCommand(c, resp.ArtifactPath, filter)
	})

	result := TestCaseResult{TestCase: tc, JITResult: jitResult, Compilable: true, CompileTime: compileTime}

	if e.Mode == Differential {
		interp := e.runOnce(ctx, func(c context.Context) *exec.Cmd {
			return e.Subject.InterpreterCommand(c, resp.ArtifactPath, filter)
		})
		result.InterpreterResult = &interp
	}

	return result, true
}

// compileOnlyFilterFor reads sourcePath and builds the compile-only filter
// string from its declared top-level types (spec.md 4.6 step 2). An
// unreadable source file (e.g. in tests that never write one to disk)
// yields an empty filter rather than failing the run.
func compileOnlyFilterFor(sourcePath string) string {
	data, err := os.ReadFile(sourcePath)
	if err != nil {
		return ""
	}

	return CompileOnlyFilter(ExtractTopLevelTypes(string(data)))
}

// runOnce launches one subprocess under WallTimeout, force-killing it on
// overrun and capturing stdout/stderr via temp files.
func (e *Executor) runOnce(ctx context.Context, build func(context.Context) *exec.Cmd) RunResult {
	runCtx, cancel := context.WithTimeout(ctx, WallTimeout)
	defer cancel()

	cmd := build(runCtx)

	stdoutFile, err := os.CreateTemp(e.TempDir, "jitfuzz-stdout-*")
	if err != nil {
		return RunResult{ExitCode: -1, Stderr: fmt.Sprintf("could not create stdout capture file: %v", err)}
	}
	defer os.Remove(stdoutFile.Name())
	defer stdoutFile.Close()

	stderrFile, err := os.CreateTemp(e.TempDir, "jitfuzz-stderr-*")
	if err != nil {
		return RunResult{ExitCode: -1, Stderr: fmt.Sprintf("could not create stderr capture file: %v", err)}
	}
	defer os.Remove(stderrFile.Name())
	defer stderrFile.Close()

	cmd.Stdout = stdoutFile
	cmd.Stderr = stderrFile

	start := time.Now()
	runErr := cmd.Run()
	wall := time.Since(start)

	timedOut := runCtx.Err() == context.DeadlineExceeded

	if timedOut && cmd.Process != nil {
		_ = cmd.Process.Kill()
	}

	exitCode := 0
	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}

	stdout, _ := readAllFrom(stdoutFile)
	stderr, _ := readAllFrom(stderrFile)

	return RunResult{
		ExitCode: exitCode,
		Stdout:   stdout,
		Stderr:   stderr,
		TimedOut: timedOut,
		WallTime: wall,
	}
}

func readAllFrom(f *os.File) (string, error) {
	if _, err := f.Seek(0, 0); err != nil {
		return "", err
	}

	data, err := io.ReadAll(f)

	return string(data), err
}
