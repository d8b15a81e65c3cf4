package runner

import (
	"regexp"
	"strings"
)

// topLevelTypeRe matches a declared top-level type: an optional run of
// modifiers followed by class/interface/enum/record and its name. Crude
// but sufficient for an external-collaborator stand-in (spec.md 4.6 step
// 2); a real parser is out of scope per spec.md 1.
var topLevelTypeRe = regexp.MustCompile(`(?m)^(?:\s*(?:public|final|abstract|static|sealed|non-sealed)\s+)*(?:class|interface|enum|record)\s+([A-Za-z_][A-Za-z0-9_]*)`)

// ExtractTopLevelTypes scans source for declared top-level type names, in
// first-seen order with duplicates removed.
func ExtractTopLevelTypes(source string) []string {
	matches := topLevelTypeRe.FindAllStringSubmatch(source, -1)

	seen := make(map[string]bool, len(matches))

	var out []string

	for _, m := range matches {
		name := m[1]
		if !seen[name] {
			seen[name] = true

			out = append(out, name)
		}
	}

	return out
}

// CompileOnlyFilter builds the runtime's "compile-only" filter string from
// a list of declared top-level type names (spec.md 4.6 step 2): the
// comma-separated list HotSpot's -XX:CompileOnly accepts. An empty types
// list yields an empty filter, which Subject implementations should treat
// as "no restriction".
func CompileOnlyFilter(types []string) string {
	return strings.Join(types, ",")
}
