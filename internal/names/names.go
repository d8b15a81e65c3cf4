// Package names generates unique, filename-safe identifiers for mutated
// test cases, combining a short human-readable tag with a uuid-derived
// suffix so names never collide across concurrent mutation workers.
package names

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var adjectives = []string{
	"brisk", "quiet", "feral", "amber", "cobalt", "dusky", "eager",
	"faint", "grim", "hollow", "inert", "jagged", "keen", "lucid",
	"mute", "numb", "opal", "pale", "quick", "rigid",
}

var nouns = []string{
	"falcon", "basin", "cinder", "drift", "ember", "forge", "glade",
	"harbor", "inlet", "jetty", "kiln", "lattice", "marsh", "notch",
	"orbit", "pylon", "quarry", "ridge", "spire", "thicket",
}

// Generator yields unique, filename-safe names for newly spawned test
// cases.
type Generator struct{}

// New builds a Generator.
func New() *Generator { return &Generator{} }

// Next returns a new unique name such as "keen-harbor-3f9a2b1c".
func (g *Generator) Next() string {
	id := uuid.New()
	suffix := strings.ReplaceAll(id.String(), "-", "")[:8]

	adj := adjectives[int(id[0])%len(adjectives)]
	noun := nouns[int(id[1])%len(nouns)]

	return fmt.Sprintf("%s-%s-%s", adj, noun, suffix)
}
