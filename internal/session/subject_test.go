package session

import (
	"context"
	"strings"
	"testing"
)

func TestDefaultJDKSubjectFlagTemplate(t *testing.T) {
	s := DefaultJDKSubject("java")

	if s.Binary != "java" {
		t.Errorf("Binary = %q, want java", s.Binary)
	}

	if len(s.InterpreterArgs) != 1 || s.InterpreterArgs[0] != "-Xint" {
		t.Errorf("InterpreterArgs = %v, want [-Xint]", s.InterpreterArgs)
	}

	found := false

	for _, a := range s.JITArgs {
		if strings.HasPrefix(a, "-XX:TieredStopAtLevel=") {
			found = true
		}
	}

	if !found {
		t.Errorf("JITArgs %v missing a TieredStopAtLevel flag", s.JITArgs)
	}
}

func TestInterpreterCommandAppendsArtifactPath(t *testing.T) {
	s := DefaultJDKSubject("java")

	cmd := s.InterpreterCommand(context.Background(), "/tmp/Child.class", "")

	last := cmd.Args[len(cmd.Args)-1]
	if last != "/tmp/Child.class" {
		t.Errorf("last arg = %q, want artifact path", last)
	}

	if cmd.Args[1] != "-Xint" {
		t.Errorf("expected -Xint as first argument, got %q", cmd.Args[1])
	}
}

func TestJITCommandUsesJITArgs(t *testing.T) {
	s := DefaultJDKSubject("java")

	cmd := s.JITCommand(context.Background(), "/tmp/Child.class", "")

	if len(cmd.Args) != len(s.JITArgs)+2 {
		t.Fatalf("expected binary + %d flags + artifact, got %d args", len(s.JITArgs), len(cmd.Args))
	}

	last := cmd.Args[len(cmd.Args)-1]
	if last != "/tmp/Child.class" {
		t.Errorf("last arg = %q, want artifact path", last)
	}
}

func TestJITCommandAppliesCompileOnlyFilter(t *testing.T) {
	s := DefaultJDKSubject("java")

	cmd := s.JITCommand(context.Background(), "/tmp/Child.class", "Child,Helper")

	found := false

	for _, a := range cmd.Args {
		if a == "-XX:CompileOnly=Child,Helper" {
			found = true
		}
	}

	if !found {
		t.Errorf("expected a -XX:CompileOnly flag in %v", cmd.Args)
	}

	last := cmd.Args[len(cmd.Args)-1]
	if last != "/tmp/Child.class" {
		t.Errorf("artifact path should still be last, got %q", last)
	}
}
