// Package optparse turns a JIT run's diagnostic stderr trace into dense
// per-method optimization count vectors. The wire format itself is an
// external-collaborator detail (spec.md 1), so the package exposes a
// pluggable Parser type and ships one concrete line-oriented default.
package optparse

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jitfuzz/jitfuzz/internal/testcase"
)

// Parser turns a JIT diagnostic trace into per-method vectors. Feature
// indexes beyond a method's first-seen width are treated as sparse and
// zero-filled on Merge.
type Parser func(r io.Reader, numFeatures int) ([]testcase.MethodVector, error)

// DefaultParser recognizes one diagnostic event per line in the form:
//
//	OPT <class> <method> <feature_index> <delta>
//
// Repeated lines for the same (class, method) accumulate into that
// method's dense counts array, sized to numFeatures and grown past it
// when a line carries a larger feature index.
func DefaultParser(r io.Reader, numFeatures int) ([]testcase.MethodVector, error) {
	type key struct{ class, method string }

	order := make([]key, 0)
	vectors := make(map[key][]int64)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0

	for scanner.Scan() {
		lineNo++

		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "OPT ") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) != 5 {
			continue
		}

		class, method := fields[1], fields[2]

		featureIdx, err := strconv.Atoi(fields[3])
		if err != nil || featureIdx < 0 {
			continue
		}

		delta, err := strconv.ParseInt(fields[4], 10, 64)
		if err != nil {
			continue
		}

		k := key{class, method}

		counts, ok := vectors[k]
		if !ok {
			width := numFeatures
			if featureIdx >= width {
				width = featureIdx + 1
			}

			counts = make([]int64, width)
			vectors[k] = counts
			order = append(order, k)
		}

		if featureIdx >= len(counts) {
			grown := make([]int64, featureIdx+1)
			copy(grown, counts)
			counts = grown
			vectors[k] = counts
		}

		counts[featureIdx] += delta
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("optparse: scan failed at line %d: %w", lineNo, err)
	}

	out := make([]testcase.MethodVector, 0, len(order))
	for _, k := range order {
		out = append(out, testcase.MethodVector{Class: k.class, Method: k.method, Counts: vectors[k]})
	}

	return out, nil
}

// Parse runs p over r and wraps the result as OptimizationVectors.
func Parse(p Parser, r io.Reader, numFeatures int) (testcase.OptimizationVectors, error) {
	methods, err := p(r, numFeatures)
	if err != nil {
		return testcase.OptimizationVectors{}, err
	}

	return testcase.OptimizationVectors{Methods: methods}, nil
}
