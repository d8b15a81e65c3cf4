// Command jitfuzz drives a single fuzzing session against an instrumented
// JIT runtime: load seeds, mutate, execute under both the interpreter and
// the JIT, score the divergence, and keep the corpus that produced it.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
