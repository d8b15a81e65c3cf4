// Package corpus implements the Champion Corpus: a bounded, mutex-guarded
// table of "best so far" variants keyed by bucketed coverage fingerprint,
// with accept/replace/reject/discard decisions and capacity eviction.
package corpus

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"

	"github.com/jitfuzz/jitfuzz/internal/scorer"
	"github.com/jitfuzz/jitfuzz/internal/testcase"
)

// Outcome is the result of one evaluate call.
type Outcome string

const (
	Accepted  Outcome = "ACCEPTED"
	Replaced  Outcome = "REPLACED"
	Rejected  Outcome = "REJECTED"
	Discarded Outcome = "DISCARDED"
)

// ReplaceMargin is the minimum score improvement a challenger must show
// over the incumbent to replace it.
const ReplaceMargin = 0.1

// DefaultCapacity is the corpus's fixed entry cap, N in spec.md 4.3.
const DefaultCapacity = 10000

// Entry is a single fingerprint's incumbent.
type Entry struct {
	TestCase       *testcase.TestCase
	Score          float64
	BucketedCounts []int64
}

// Decision is returned by Evaluate.
type Decision struct {
	Outcome         Outcome
	PreviousChampion *testcase.TestCase
	Evicted         []*testcase.TestCase
	Reason          string
}

// Policy picks whether a challenger should replace (or be accepted
// alongside) the incumbent, and how capacity overflow gets evicted.
type Policy interface {
	Accept(challenger, incumbent *Entry) bool
	Evict(entries map[string]*Entry, capacity int) []string
}

// Corpus is the thread-safe fingerprint -> Entry table.
type Corpus struct {
	mu       sync.Mutex
	entries  map[string]*Entry
	capacity int
	policy   Policy
}

// New builds a Corpus with the given capacity and policy, falling back to
// DefaultCapacity when capacity <= 0 and to the Champion policy when
// policy is nil.
func New(capacity int, policy Policy) *Corpus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	if policy == nil {
		policy = ChampionPolicy{}
	}

	return &Corpus{
		entries:  make(map[string]*Entry),
		capacity: capacity,
		policy:   policy,
	}
}

func fingerprintKey(bucketed []int64) string {
	return fmt.Sprintf("%v", bucketed)
}

// Evaluate applies the decision rule in spec.md 4.3 for one scored
// candidate.
func (c *Corpus) Evaluate(tc *testcase.TestCase, preview scorer.ScorePreview) Decision {
	if testcase.IsZeroFingerprint(preview.BucketedCounts) {
		return Decision{Outcome: Discarded, Reason: "zero or missing fingerprint"}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	key := fingerprintKey(preview.BucketedCounts)
	challenger := &Entry{TestCase: tc, Score: preview.Score, BucketedCounts: preview.BucketedCounts}

	incumbent, exists := c.entries[key]
	if !exists {
		c.entries[key] = challenger
		tc.SetActiveChampion(true)

		evicted := c.enforceCapacityLocked()

		for _, ev := range evicted {
			if ev == tc {
				delete(c.entries, key)
				tc.SetActiveChampion(false)

				return Decision{Outcome: Discarded, Evicted: evicted, Reason: "evicted immediately on capacity enforcement"}
			}
		}

		return Decision{Outcome: Accepted, Evicted: evicted}
	}

	if !c.policy.Accept(challenger, incumbent) {
		return Decision{Outcome: Rejected, Reason: "did not beat incumbent by required margin"}
	}

	previous := incumbent.TestCase
	previous.SetActiveChampion(false)
	c.entries[key] = challenger
	tc.SetActiveChampion(true)

	evicted := c.enforceCapacityLocked()

	return Decision{Outcome: Replaced, PreviousChampion: previous, Evicted: evicted}
}

// SynchronizeScore updates the cached score for tc's entry after a
// scorer commit changed it. No-op if tc does not currently own an entry.
func (c *Corpus) SynchronizeScore(tc *testcase.TestCase, score float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, e := range c.entries {
		if e.TestCase == tc {
			e.Score = score
			return
		}
	}
}

// Remove deletes tc's entry, if present, and returns whether it was
// found.
func (c *Corpus) Remove(tc *testcase.TestCase, reason string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, e := range c.entries {
		if e.TestCase == tc {
			delete(c.entries, key)
			tc.SetActiveChampion(false)

			return true
		}
	}

	return false
}

// Size returns the current entry count.
func (c *Corpus) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}

// enforceCapacityLocked must be called with c.mu held. It returns the
// evicted test cases.
func (c *Corpus) enforceCapacityLocked() []*testcase.TestCase {
	if len(c.entries) <= c.capacity {
		return nil
	}

	victims := c.policy.Evict(c.entries, c.capacity)

	evicted := make([]*testcase.TestCase, 0, len(victims))

	for _, key := range victims {
		e, ok := c.entries[key]
		if !ok {
			continue
		}

		e.TestCase.SetActiveChampion(false)
		evicted = append(evicted, e.TestCase)
		delete(c.entries, key)
	}

	return evicted
}

// ChampionPolicy is the default accept/evict strategy: challenger must
// beat the incumbent by more than ReplaceMargin; eviction removes the
// globally lowest-scoring entries first.
type ChampionPolicy struct{}

func (ChampionPolicy) Accept(challenger, incumbent *Entry) bool {
	return challenger.Score > incumbent.Score+ReplaceMargin
}

func (ChampionPolicy) Evict(entries map[string]*Entry, capacity int) []string {
	type kv struct {
		key   string
		score float64
	}

	all := make([]kv, 0, len(entries))
	for k, e := range entries {
		all = append(all, kv{k, e.Score})
	}

	sort.Slice(all, func(i, j int) bool { return all[i].score < all[j].score })

	n := len(all) - capacity
	if n <= 0 {
		return nil
	}

	victims := make([]string, n)
	for i := 0; i < n; i++ {
		victims[i] = all[i].key
	}

	return victims
}

// RandomPolicy accepts challengers with fixed probability independent of
// the incumbent's score, and evicts uniformly at random on overflow.
type RandomPolicy struct {
	Rand *rand.Rand
}

// NewRandomPolicy builds a RandomPolicy with its own RNG stream.
func NewRandomPolicy(seed int64) *RandomPolicy {
	return &RandomPolicy{Rand: rand.New(rand.NewSource(seed))}
}

const randomAcceptProbability = 0.5

func (p *RandomPolicy) Accept(_, _ *Entry) bool {
	return p.Rand.Float64() < randomAcceptProbability
}

func (p *RandomPolicy) Evict(entries map[string]*Entry, capacity int) []string {
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}

	sort.Strings(keys) // deterministic iteration order before shuffling

	p.Rand.Shuffle(len(keys), func(i, j int) { keys[i], keys[j] = keys[j], keys[i] })

	n := len(keys) - capacity
	if n <= 0 {
		return nil
	}

	return keys[:n]
}
