// Package mutation implements the Mutator capability, the default
// line-oriented text mutator, the Mutation Attempt Engine, and the
// Mutation Worker loop that drives the fuzzing pipeline's mutate step.
package mutation

import (
	"math/rand"
	"strings"

	"github.com/jitfuzz/jitfuzz/internal/testcase"
)

// ApplyStatus tags the outcome of one mutator application.
type ApplyStatus int

const (
	Applied ApplyStatus = iota
	NotApplicable
	Failed
)

// Mutator is the external-collaborator capability the core consumes:
// given a parent source, produce a mutated child.
type Mutator interface {
	Kind() testcase.MutatorKind
	// Applicable reports whether this mutator can act on source at all.
	Applicable(source string) bool
	// Apply mutates source using r for all randomness, returning the
	// mutated source, or ApplyStatus != Applied with no source.
	Apply(r *rand.Rand, source string) (string, ApplyStatus, error)
}

// textMutator is the default source-to-source rewriter: it edits whole
// lines rather than bytes, since the mutation unit here is a complete
// program rather than an arbitrary byte blob.
type textMutator struct {
	kind testcase.MutatorKind
}

// DefaultMutators returns one textMutator per candidate kind, in the
// order the scheduler should consider them.
func DefaultMutators() []Mutator {
	kinds := testcase.AllMutatorKinds()
	out := make([]Mutator, len(kinds))

	for i, k := range kinds {
		out[i] = &textMutator{kind: k}
	}

	return out
}

func (m *textMutator) Kind() testcase.MutatorKind { return m.kind }

func splitLines(source string) []string {
	return strings.Split(source, "\n")
}

func (m *textMutator) Applicable(source string) bool {
	lines := splitLines(source)

	switch m.kind {
	case testcase.LineInsert:
		return len(nonBlankLines(lines)) > 0
	case testcase.LineDelete, testcase.LineDuplicate:
		return len(nonBlankLines(lines)) > 1
	case testcase.IdentRename:
		return len(findIdentifiers(source)) > 0
	default:
		return false
	}
}

func (m *textMutator) Apply(r *rand.Rand, source string) (string, ApplyStatus, error) {
	if !m.Applicable(source) {
		return "", NotApplicable, nil
	}

	lines := splitLines(source)

	switch m.kind {
	case testcase.LineInsert:
		pos := r.Intn(len(lines) + 1)
		donor := lines[r.Intn(len(lines))]
		out := make([]string, 0, len(lines)+1)
		out = append(out, lines[:pos]...)
		out = append(out, donor)
		out = append(out, lines[pos:]...)

		return strings.Join(out, "\n"), Applied, nil

	case testcase.LineDelete:
		idxs := nonBlankLineIndexes(lines)
		victim := idxs[r.Intn(len(idxs))]
		out := make([]string, 0, len(lines)-1)
		out = append(out, lines[:victim]...)
		out = append(out, lines[victim+1:]...)

		return strings.Join(out, "\n"), Applied, nil

	case testcase.LineDuplicate:
		idxs := nonBlankLineIndexes(lines)
		src := idxs[r.Intn(len(idxs))]
		out := make([]string, 0, len(lines)+1)
		out = append(out, lines[:src+1]...)
		out = append(out, lines[src])
		out = append(out, lines[src+1:]...)

		return strings.Join(out, "\n"), Applied, nil

	case testcase.IdentRename:
		idents := findIdentifiers(source)
		target := idents[r.Intn(len(idents))]
		renamed := target + "_" + randomSuffix(r)

		return strings.ReplaceAll(source, target, renamed), Applied, nil

	default:
		return "", NotApplicable, nil
	}
}

func nonBlankLines(lines []string) []string {
	var out []string

	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			out = append(out, l)
		}
	}

	return out
}

func nonBlankLineIndexes(lines []string) []int {
	var out []int

	for i, l := range lines {
		if strings.TrimSpace(l) != "" {
			out = append(out, i)
		}
	}

	return out
}

// findIdentifiers extracts candidate identifier tokens (crude but
// sufficient for an external-collaborator stand-in: a real parser is out
// of scope per spec.md 1).
func findIdentifiers(source string) []string {
	var out []string

	var cur strings.Builder

	flush := func() {
		if cur.Len() > 1 {
			out = append(out, cur.String())
		}

		cur.Reset()
	}

	for _, r := range source {
		switch {
		case r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'):
			cur.WriteRune(r)
		default:
			flush()
		}
	}

	flush()

	return dedupe(out)
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))

	var out []string

	for _, s := range in {
		if !seen[s] {
			seen[s] = true

			out = append(out, s)
		}
	}

	return out
}

const suffixAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

func randomSuffix(r *rand.Rand) string {
	b := make([]byte, 6)
	for i := range b {
		b[i] = suffixAlphabet[r.Intn(len(suffixAlphabet))]
	}

	return string(b)
}
