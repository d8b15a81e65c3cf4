package stats

import (
	"strconv"
	"sync/atomic"

	dto "github.com/prometheus/client_model/go"

	"github.com/prometheus/client_golang/prometheus"
)

// atomicCounter is a plain lock-free int64 counter, used for the
// per-feature and per-pair arrays where label-cardinality makes a single
// CounterVec lookup per increment unnecessarily expensive on the hot path;
// the CounterVec is still updated for external scraping, but reads come
// from this array.
type atomicCounter struct {
	v atomic.Int64
}

func (c *atomicCounter) add(delta int64) int64 { return c.v.Add(delta) }
func (c *atomicCounter) load() int64           { return c.v.Load() }

func featureLabel(i int) string { return strconv.Itoa(i) }
func pairLabel(i, j int) string { return strconv.Itoa(i) + "_" + strconv.Itoa(j) }

// readCounter extracts the current value of a prometheus.Counter without a
// full registry scrape, for internal consumers (e.g. TotalEvaluations) that
// need a cheap read on the hot path.
func readCounter(c prometheus.Counter) float64 {
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		return 0
	}

	return m.GetCounter().GetValue()
}
