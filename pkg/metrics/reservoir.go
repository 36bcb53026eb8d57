package metrics

import (
	"math/rand/v2"
	"sort"
	"sync"
)

// reservoir is a fixed-size uniform sample of latency observations for one
// bucket window, used to approximate p95/p99. Exactness is not required;
// the sample count is monotonically non-decreasing.
type reservoir struct {
	mu      sync.Mutex
	samples []float64
	seen    int64
	cap     int
}

const defaultReservoirSize = 256

func newReservoir(capacity int) *reservoir {
	if capacity <= 0 {
		capacity = defaultReservoirSize
	}
	return &reservoir{
		samples: make([]float64, 0, capacity),
		cap:     capacity,
	}
}

// observe adds one latency sample using Vitter's algorithm R.
func (r *reservoir) observe(latencyMS float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seen++
	if len(r.samples) < r.cap {
		r.samples = append(r.samples, latencyMS)
		return
	}
	if idx := rand.Int64N(r.seen); idx < int64(r.cap) {
		r.samples[idx] = latencyMS
	}
}

// quantiles returns the approximate p95 and p99 of the observed samples.
func (r *reservoir) quantiles() (p95, p99 float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.samples) == 0 {
		return 0, 0
	}
	sorted := make([]float64, len(r.samples))
	copy(sorted, r.samples)
	sort.Float64s(sorted)

	return quantile(sorted, 0.95), quantile(sorted, 0.99)
}

// quantile returns the q-th quantile of a sorted sample using
// nearest-rank selection.
func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(q*float64(len(sorted))+0.5) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(sorted) {
		rank = len(sorted) - 1
	}
	return sorted[rank]
}
