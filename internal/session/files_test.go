package session

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jitfuzz/jitfuzz/internal/runner"
	"github.com/jitfuzz/jitfuzz/internal/testcase"
)

func TestNewFilesCreatesLayout(t *testing.T) {
	root := filepath.Join(t.TempDir(), "session")

	f, err := NewFiles(root)
	if err != nil {
		t.Fatalf("NewFiles: %v", err)
	}

	for _, sub := range []string{"testcases", "bugs", "failing"} {
		if info, err := os.Stat(filepath.Join(root, sub)); err != nil || !info.IsDir() {
			t.Errorf("expected directory %s to exist", sub)
		}
	}

	if f.Root() != root {
		t.Errorf("Root() = %q, want %q", f.Root(), root)
	}
}

func TestFilesWriteReadRoundTrip(t *testing.T) {
	f, err := NewFiles(t.TempDir())
	if err != nil {
		t.Fatalf("NewFiles: %v", err)
	}

	path, err := f.Write("child1", "package p\n")
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := f.Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	if got != "package p\n" {
		t.Errorf("Read = %q, want %q", got, "package p\n")
	}
}

func TestFilesDeleteIsIdempotent(t *testing.T) {
	f, err := NewFiles(t.TempDir())
	if err != nil {
		t.Fatalf("NewFiles: %v", err)
	}

	path, err := f.Write("child1", "source")
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	if err := f.Delete(path); err != nil {
		t.Fatalf("first Delete: %v", err)
	}

	if err := f.Delete(path); err != nil {
		t.Fatalf("second Delete on already-removed path should not error: %v", err)
	}

	if _, err := os.Stat(filepath.Dir(path)); !os.IsNotExist(err) {
		t.Errorf("expected test case directory to be gone")
	}
}

func TestFilesSaveBugWritesArtifacts(t *testing.T) {
	root := t.TempDir()

	f, err := NewFiles(root)
	if err != nil {
		t.Fatalf("NewFiles: %v", err)
	}

	path, err := f.Write("child1", "package p\n")
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	tc := testcase.New("child1", "seed1", "parent1", 1, 1, testcase.LineInsert, 0)
	tc.Path = path

	result := runner.TestCaseResult{
		JITResult:         runner.RunResult{Stdout: "jit out", Stderr: "jit err"},
		InterpreterResult: &runner.RunResult{Stdout: "interp out", Stderr: "interp err"},
	}

	if err := f.SaveBug(tc, "different stdout", result); err != nil {
		t.Fatalf("SaveBug: %v", err)
	}

	dir := filepath.Join(root, "bugs", "child1")

	for _, want := range []struct {
		name string
		body string
	}{
		{"child1.source", "package p\n"},
		{"reason.txt", "different stdout"},
		{"jit.stdout", "jit out"},
		{"jit.stderr", "jit err"},
		{"interp.stdout", "interp out"},
		{"interp.stderr", "interp err"},
	} {
		got, err := os.ReadFile(filepath.Join(dir, want.name))
		if err != nil {
			t.Fatalf("read %s: %v", want.name, err)
		}

		if string(got) != want.body {
			t.Errorf("%s = %q, want %q", want.name, got, want.body)
		}
	}
}

func TestFilesSaveFailingSkipsMissingInterpreterOutput(t *testing.T) {
	root := t.TempDir()

	f, err := NewFiles(root)
	if err != nil {
		t.Fatalf("NewFiles: %v", err)
	}

	path, err := f.Write("child2", "package p\n")
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	tc := testcase.New("child2", "seed1", "parent1", 1, 1, testcase.LineInsert, 0)
	tc.Path = path

	result := runner.TestCaseResult{JITResult: runner.RunResult{Stdout: "", Stderr: ""}}

	if err := f.SaveFailing(tc, "non-zero exit", result); err != nil {
		t.Fatalf("SaveFailing: %v", err)
	}

	dir := filepath.Join(root, "failing", "child2")
	if _, err := os.Stat(filepath.Join(dir, "interp.stdout")); !os.IsNotExist(err) {
		t.Errorf("interp.stdout should not be written when InterpreterResult is nil")
	}
}
