package session

import (
	"context"
	"os/exec"
)

// JDKSubject drives the configured subject binary twice: once forced to
// the interpreter, once with tiered compilation disabled and
// optimization diagnostics enabled on stderr. Any executable honoring
// -Xint / -XX:TieredStopAtLevel style flags works; the binary path and
// flag templates are configuration, not hardcoded to one JVM.
type JDKSubject struct {
	Binary          string
	InterpreterArgs []string
	JITArgs         []string
}

// DefaultJDKSubject builds a JDKSubject over binary using the flag
// template spec.md §4.6 assumes: -Xint for a forced-interpreter run, and
// tiered compilation disabled with diagnostics enabled for the JIT run.
func DefaultJDKSubject(binary string) *JDKSubject {
	return &JDKSubject{
		Binary:          binary,
		InterpreterArgs: []string{"-Xint"},
		JITArgs:         []string{"-XX:TieredStopAtLevel=1", "-Xbatch", "-XX:+PrintOptoStatistics"},
	}
}

func (s *JDKSubject) InterpreterCommand(ctx context.Context, artifactPath, compileOnlyFilter string) *exec.Cmd {
	args := append(append([]string{}, s.InterpreterArgs...), compileOnlyFlags(compileOnlyFilter)...)
	args = append(args, artifactPath)

	return exec.CommandContext(ctx, s.Binary, args...)
}

func (s *JDKSubject) JITCommand(ctx context.Context, artifactPath, compileOnlyFilter string) *exec.Cmd {
	args := append(append([]string{}, s.JITArgs...), compileOnlyFlags(compileOnlyFilter)...)
	args = append(args, artifactPath)

	return exec.CommandContext(ctx, s.Binary, args...)
}

// compileOnlyFlags turns a comma-separated top-level-type filter into the
// HotSpot flag restricting compilation to those types (spec.md 4.6 step 2).
func compileOnlyFlags(filter string) []string {
	if filter == "" {
		return nil
	}

	return []string{"-XX:CompileOnly=" + filter}
}
