package session

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jitfuzz/jitfuzz/internal/runner"
	"github.com/jitfuzz/jitfuzz/internal/testcase"
)

// Files implements mutation.FileManager and evaluator.Files/Persistence
// over a timestamped session directory, per spec.md §6's persisted-state
// layout: testcases/<name>/<name>.source, bugs/<name>/…, failing/<name>/….
// Creation/deletion is idempotent per test case, as required for a
// FileManager shared by multiple goroutines.
type Files struct {
	root string
}

// NewFiles builds a Files rooted at root, creating the testcases/bugs/
// failing subdirectories.
func NewFiles(root string) (*Files, error) {
	for _, sub := range []string{"testcases", "bugs", "failing"} {
		if err := os.MkdirAll(filepath.Join(root, sub), 0o755); err != nil {
			return nil, fmt.Errorf("session: create %s dir: %w", sub, err)
		}
	}

	return &Files{root: root}, nil
}

// Root returns the session directory.
func (f *Files) Root() string { return f.root }

func (f *Files) testcaseDir(name string) string {
	return filepath.Join(f.root, "testcases", name)
}

func (f *Files) sourcePath(name string) string {
	return filepath.Join(f.testcaseDir(name), name+".source")
}

// Write persists source under testcases/<name>/<name>.source, creating
// the test case's directory if needed, and returns the written path.
func (f *Files) Write(name, source string) (string, error) {
	dir := f.testcaseDir(name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("session: mkdir %s: %w", dir, err)
	}

	path := f.sourcePath(name)
	if err := os.WriteFile(path, []byte(source), 0o644); err != nil {
		return "", fmt.Errorf("session: write %s: %w", path, err)
	}

	return path, nil
}

// Read reads source back from an on-disk path.
func (f *Files) Read(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("session: read %s: %w", path, err)
	}

	return string(data), nil
}

// Delete removes a test case's entire directory, tolerating an
// already-missing path (idempotent delete).
func (f *Files) Delete(path string) error {
	dir := filepath.Dir(path)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("session: delete %s: %w", dir, err)
	}

	return nil
}

// SaveBug persists a bug-inducing test case plus both run outputs under
// bugs/<name>/.
func (f *Files) SaveBug(tc *testcase.TestCase, reason string, result runner.TestCaseResult) error {
	return f.saveArtifact("bugs", tc, reason, result)
}

// SaveFailing persists a non-crash failure under failing/<name>/.
func (f *Files) SaveFailing(tc *testcase.TestCase, reason string, result runner.TestCaseResult) error {
	return f.saveArtifact("failing", tc, reason, result)
}

func (f *Files) saveArtifact(kind string, tc *testcase.TestCase, reason string, result runner.TestCaseResult) error {
	dir := filepath.Join(f.root, kind, tc.Name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("session: mkdir %s: %w", dir, err)
	}

	if source, err := f.Read(tc.Path); err == nil {
		_ = os.WriteFile(filepath.Join(dir, tc.Name+".source"), []byte(source), 0o644)
	}

	_ = os.WriteFile(filepath.Join(dir, "reason.txt"), []byte(reason), 0o644)
	_ = os.WriteFile(filepath.Join(dir, "jit.stdout"), []byte(result.JITResult.Stdout), 0o644)
	_ = os.WriteFile(filepath.Join(dir, "jit.stderr"), []byte(result.JITResult.Stderr), 0o644)

	if result.InterpreterResult != nil {
		_ = os.WriteFile(filepath.Join(dir, "interp.stdout"), []byte(result.InterpreterResult.Stdout), 0o644)
		_ = os.WriteFile(filepath.Join(dir, "interp.stderr"), []byte(result.InterpreterResult.Stderr), 0o644)
	}

	return nil
}
