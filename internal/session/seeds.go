package session

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jitfuzz/jitfuzz/internal/names"
	"github.com/jitfuzz/jitfuzz/internal/testcase"
)

// Blacklist is a set of seed file names to skip at load time.
type Blacklist struct {
	names map[string]struct{}
}

// LoadBlacklist reads a newline-delimited file of seed names to skip. A
// missing path yields an empty blacklist (the flag is optional).
func LoadBlacklist(path string) (*Blacklist, error) {
	bl := &Blacklist{names: make(map[string]struct{})}
	if path == "" {
		return bl, nil
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return bl, nil
		}

		return nil, fmt.Errorf("session: open blacklist %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		bl.names[line] = struct{}{}
	}

	return bl, scanner.Err()
}

// Contains reports whether a seed file name is blacklisted.
func (b *Blacklist) Contains(name string) bool {
	if b == nil {
		return false
	}

	_, ok := b.names[name]

	return ok
}

// LoadSeeds reads every regular file under dir, skipping blacklisted
// names, writes each through files so it gets a session-local path, and
// returns one TestCase per accepted seed.
func LoadSeeds(dir string, bl *Blacklist, files *Files, gen *names.Generator) ([]*testcase.TestCase, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("session: read seeds dir %s: %w", dir, err)
	}

	var cases []*testcase.TestCase

	for _, e := range entries {
		if e.IsDir() {
			continue
		}

		if bl.Contains(e.Name()) {
			continue
		}

		source, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}

		name := gen.Next()

		tc := testcase.New(name, name, "", 0, 0, testcase.Seed, 0)

		path, err := files.Write(name, string(source))
		if err != nil {
			return nil, fmt.Errorf("session: write seed %s: %w", e.Name(), err)
		}

		tc.Path = path
		cases = append(cases, tc)
	}

	return cases, nil
}
