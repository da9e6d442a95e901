package stats

import (
	"sort"
	"sync"
	"time"

	"github.com/influxdata/tdigest"
)

// GroupDuration is the wall time of one finished group.
type GroupDuration struct {
	Section  string
	Duration time.Duration
}

// Durations accumulates group wall times. Percentiles come from a t-digest
// so memory stays bounded for large catalogs. Safe for concurrent use.
type Durations struct {
	mu     sync.Mutex
	digest *tdigest.TDigest
	groups []GroupDuration
	total  time.Duration
}

// NewDurations creates an empty accumulator.
func NewDurations() *Durations {
	return &Durations{
		digest: tdigest.NewWithCompression(100),
	}
}

// Add records the duration of a finished group.
func (d *Durations) Add(section string, dur time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.digest.Add(dur.Seconds(), 1)
	d.groups = append(d.groups, GroupDuration{Section: section, Duration: dur})
	d.total += dur
}

// Count returns the number of recorded groups.
func (d *Durations) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.groups)
}

// Total returns the sum of all recorded durations. With concurrent runs
// this exceeds the elapsed wall time.
func (d *Durations) Total() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.total
}

// Quantile returns the estimated q-quantile (0..1), or 0 when empty.
func (d *Durations) Quantile(q float64) time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.groups) == 0 {
		return 0
	}
	return time.Duration(d.digest.Quantile(q) * float64(time.Second))
}

// Slowest returns up to n groups ordered by descending duration.
func (d *Durations) Slowest(n int) []GroupDuration {
	d.mu.Lock()
	out := make([]GroupDuration, len(d.groups))
	copy(out, d.groups)
	d.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Duration > out[j].Duration
	})
	if n < len(out) {
		out = out[:n]
	}
	return out
}
