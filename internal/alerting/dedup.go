package alerting

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Deduplicator suppresses repeats of an alert identity inside a sliding
// cool-down. Entries are keyed by rule identity, so the map is bounded by the
// configured rule set, not by event volume; entries are never removed.
type Deduplicator struct {
	mu         sync.Mutex
	delay      time.Duration
	lastFired  map[string]time.Time
	suppressed atomic.Uint64

	suppressedCounter prometheus.Counter
}

// NewDeduplicator builds a deduplicator with the given cool-down. The counter
// may be nil; suppression is still tracked internally.
func NewDeduplicator(delay time.Duration, suppressedCounter prometheus.Counter) *Deduplicator {
	return &Deduplicator{
		delay:             delay,
		lastFired:         make(map[string]time.Time),
		suppressedCounter: suppressedCounter,
	}
}

// Admit reports whether the alert should be forwarded. An alert is admitted
// when its identity has never fired, or when it fired at least the cool-down
// ago; two breaches exactly the cool-down apart are both admitted. On
// admission the identity's last-fired time advances to the alert's FiredAt.
// Suppression is silent apart from the counter.
func (d *Deduplicator) Admit(a Alert) bool {
	key := a.ID.String()

	d.mu.Lock()
	defer d.mu.Unlock()

	last, seen := d.lastFired[key]
	if seen && a.FiredAt.Sub(last) < d.delay {
		d.suppressed.Add(1)
		if d.suppressedCounter != nil {
			d.suppressedCounter.Inc()
		}
		return false
	}

	d.lastFired[key] = a.FiredAt
	return true
}

// Suppressed returns the number of alerts swallowed by the cool-down.
func (d *Deduplicator) Suppressed() uint64 {
	return d.suppressed.Load()
}
