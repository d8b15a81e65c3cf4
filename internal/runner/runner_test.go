package runner

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/jitfuzz/jitfuzz/internal/compileclient"
	"github.com/jitfuzz/jitfuzz/internal/testcase"
)

type shellSubject struct {
	interp string
	jit    string

	lastInterpFilter string
	lastJITFilter    string
}

func (s *shellSubject) InterpreterCommand(ctx context.Context, artifactPath, compileOnlyFilter string) *exec.Cmd {
	s.lastInterpFilter = compileOnlyFilter
	return exec.CommandContext(ctx, "sh", "-c", s.interp)
}

func (s *shellSubject) JITCommand(ctx context.Context, artifactPath, compileOnlyFilter string) *exec.Cmd {
	s.lastJITFilter = compileOnlyFilter
	return exec.CommandContext(ctx, "sh", "-c", s.jit)
}

func compileServer(t *testing.T) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(compileclient.Response{Success: true, ArtifactPath: "/tmp/art.class"})
	}))
}

func TestExecuteDifferentialModeRunsBothOnce(t *testing.T) {
	srv := compileServer(t)
	defer srv.Close()

	compiler := compileclient.New(srv.URL)
	subj := &shellSubject{interp: "echo interp-out", jit: "echo jit-out"}

	e := New(compiler, subj, Differential, t.TempDir())
	tc := testcase.New("tc1", "tc1", "", 0, 0, testcase.Seed, 0)
	tc.Path = "tc1.source"

	result, ok := e.Execute(context.Background(), tc)
	if !ok {
		t.Fatalf("expected Execute to succeed")
	}

	if result.InterpreterResult == nil {
		t.Fatalf("differential mode should populate InterpreterResult")
	}

	if result.InterpreterResult.Stdout != "interp-out\n" {
		t.Fatalf("unexpected interpreter stdout: %q", result.InterpreterResult.Stdout)
	}

	if result.JITResult.Stdout != "jit-out\n" {
		t.Fatalf("unexpected jit stdout: %q", result.JITResult.Stdout)
	}
}

func TestExecuteAssertOnlyModeSkipsInterpreter(t *testing.T) {
	srv := compileServer(t)
	defer srv.Close()

	compiler := compileclient.New(srv.URL)
	subj := &shellSubject{interp: "echo interp-out", jit: "echo jit-out"}

	e := New(compiler, subj, AssertOnly, t.TempDir())
	tc := testcase.New("tc1", "tc1", "", 0, 0, testcase.Seed, 0)
	tc.Path = "tc1.source"

	result, ok := e.Execute(context.Background(), tc)
	if !ok {
		t.Fatalf("expected Execute to succeed")
	}

	if result.InterpreterResult != nil {
		t.Fatalf("assert-only mode should not populate InterpreterResult")
	}
}

func TestExecuteCompileFailureDropsTestCase(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(compileclient.Response{Success: false, Message: "bad syntax"})
	}))
	defer srv.Close()

	compiler := compileclient.New(srv.URL)
	subj := &shellSubject{interp: "echo x", jit: "echo y"}

	e := New(compiler, subj, Differential, t.TempDir())
	tc := testcase.New("tc1", "tc1", "", 0, 0, testcase.Seed, 0)
	tc.Path = "tc1.source"

	_, ok := e.Execute(context.Background(), tc)
	if ok {
		t.Fatalf("compile failure should return ok=false")
	}
}

func TestRunOnceCapturesNonZeroExit(t *testing.T) {
	srv := compileServer(t)
	defer srv.Close()

	compiler := compileclient.New(srv.URL)
	subj := &shellSubject{interp: "exit 0", jit: "exit 7"}

	e := New(compiler, subj, Differential, t.TempDir())
	tc := testcase.New("tc1", "tc1", "", 0, 0, testcase.Seed, 0)
	tc.Path = "tc1.source"

	result, ok := e.Execute(context.Background(), tc)
	if !ok {
		t.Fatalf("expected Execute to succeed")
	}

	if result.JITResult.ExitCode != 7 {
		t.Fatalf("expected jit exit code 7, got %d", result.JITResult.ExitCode)
	}
}

func TestExecuteBuildsCompileOnlyFilterFromSource(t *testing.T) {
	srv := compileServer(t)
	defer srv.Close()

	compiler := compileclient.New(srv.URL)
	subj := &shellSubject{interp: "echo interp-out", jit: "echo jit-out"}

	e := New(compiler, subj, Differential, t.TempDir())
	tc := testcase.New("tc1", "tc1", "", 0, 0, testcase.Seed, 0)

	sourcePath := e.TempDir + "/tc1.source"
	source := "public final class Tc1 {\n\tstatic class Helper {}\n}\n"

	if err := os.WriteFile(sourcePath, []byte(source), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}

	tc.Path = sourcePath

	if _, ok := e.Execute(context.Background(), tc); !ok {
		t.Fatalf("expected Execute to succeed")
	}

	if subj.lastJITFilter != "Tc1,Helper" {
		t.Errorf("JIT compile-only filter = %q, want %q", subj.lastJITFilter, "Tc1,Helper")
	}

	if subj.lastInterpFilter != "Tc1,Helper" {
		t.Errorf("interpreter compile-only filter = %q, want %q", subj.lastInterpFilter, "Tc1,Helper")
	}
}

func TestRunOnceTimesOutAndKillsProcess(t *testing.T) {
	srv := compileServer(t)
	defer srv.Close()

	compiler := compileclient.New(srv.URL)
	subj := &shellSubject{interp: "exit 0", jit: "sleep 30"}

	e := New(compiler, subj, AssertOnly, t.TempDir())

	// Shrink the wall timeout for the test via a context deadline shorter
	// than WallTimeout, since the executor derives its run context from
	// the caller's.
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	tc := testcase.New("tc1", "tc1", "", 0, 0, testcase.Seed, 0)
	tc.Path = "tc1.source"

	result, ok := e.Execute(ctx, tc)
	if !ok {
		t.Fatalf("expected Execute to succeed even when the run times out")
	}

	if !result.JITResult.TimedOut {
		t.Fatalf("expected JITResult.TimedOut to be true")
	}
}
