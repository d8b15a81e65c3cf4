package mutation

import (
	"math/rand"
	"regexp"

	"github.com/jitfuzz/jitfuzz/internal/ferr"
	"github.com/jitfuzz/jitfuzz/internal/names"
	"github.com/jitfuzz/jitfuzz/internal/testcase"
)

// FileManager is the external collaborator that persists mutated source
// to the session directory layout.
type FileManager interface {
	Write(name, source string) (path string, err error)
	Read(path string) (string, error)
	Delete(path string) error
}

// AttemptResult is the outcome of one Mutation Attempt Engine call,
// matching spec.md 4.5's MutationAttempt record.
type AttemptResult struct {
	Child            *testcase.TestCase
	ChildSource      string
	Path             string
	Status           ApplyStatus
	AllNotApplicable bool
	Err              *ferr.TaggedError
}

// Engine runs the parse-check-mutate-print-rename-write pipeline for a
// single chosen mutator kind.
type Engine struct {
	mutators map[testcase.MutatorKind]Mutator
	files    FileManager
	names    *names.Generator
}

// NewEngine builds an Engine over the given mutator set.
func NewEngine(mutators []Mutator, files FileManager, gen *names.Generator) *Engine {
	idx := make(map[testcase.MutatorKind]Mutator, len(mutators))
	for _, m := range mutators {
		idx[m.Kind()] = m
	}

	return &Engine{mutators: idx, files: files, names: gen}
}

// AllNotApplicable reports whether every registered mutator declined the
// given source, the "no applicable mutators" condition from spec.md 4.4.
func (e *Engine) AllNotApplicable(source string) bool {
	for _, m := range e.mutators {
		if m.Applicable(source) {
			return false
		}
	}

	return true
}

// Attempt applies the chosen mutator kind to parent/parentSource using a
// fresh per-attempt seed, writes the result via the FileManager, and
// returns the spawned child test case.
func (e *Engine) Attempt(r *rand.Rand, kind testcase.MutatorKind, parent *testcase.TestCase, parentSource string) AttemptResult {
	m, ok := e.mutators[kind]
	if !ok {
		return AttemptResult{Status: NotApplicable, AllNotApplicable: e.AllNotApplicable(parentSource)}
	}

	if !m.Applicable(parentSource) {
		return AttemptResult{Status: NotApplicable, AllNotApplicable: e.AllNotApplicable(parentSource)}
	}

	mutated, status, err := m.Apply(r, parentSource)
	if err != nil {
		return AttemptResult{Status: Failed, Err: ferr.MutationFailure(string(kind), err)}
	}

	if status != Applied {
		return AttemptResult{Status: status, AllNotApplicable: e.AllNotApplicable(parentSource)}
	}

	childName := e.names.Next()
	renamed := renameTopLevelType(mutated, parent.SeedName, childName)

	child := testcase.New(childName, parent.SeedName, parent.Name, parent.MutationDepth+1, parent.MutationCount+1, kind, parent.Score())

	path, werr := e.files.Write(childName, renamed)
	if werr != nil {
		return AttemptResult{Status: Failed, Err: ferr.MutationFailure(string(kind), werr)}
	}

	child.Path = path

	return AttemptResult{Child: child, ChildSource: renamed, Path: path, Status: Applied}
}

// renameTopLevelType substitutes every whole-word occurrence of oldName
// with newName, the stand-in for the external pretty-printer's rename
// step (spec.md 4.5 step 3).
func renameTopLevelType(source, oldName, newName string) string {
	if oldName == "" {
		return source
	}

	re, err := regexp.Compile(`\b` + regexp.QuoteMeta(oldName) + `\b`)
	if err != nil {
		return source
	}

	return re.ReplaceAllString(source, newName)
}
