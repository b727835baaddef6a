package alerting

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

type windowSample struct {
	at     time.Time
	amount decimal.Decimal
}

// window is the per-identity sliding accumulation over value transfers. Its
// right edge is the latest occurred_at seen for the identity, not wall clock,
// which keeps evaluation deterministic under replay.
type window struct {
	mu      sync.Mutex
	frame   time.Duration
	edge    time.Time
	samples []windowSample
	sum     decimal.Decimal
}

func newWindow(frame time.Duration) *window {
	return &window{frame: frame}
}

// observe appends a sample, evicts entries older than frame behind the window's
// right edge, and returns the sum over the retained window.
//
// A sample arriving with a timestamp earlier than the current edge is accepted
// into the sum as long as it lands inside the retained window. A sample older
// than an already-evicted region still counts toward the sum it joins, but
// evicted entries are never restored: totals near the left edge may therefore
// undercount after heavy reordering. That is an accepted trade-off, not a bug.
func (w *window) observe(at time.Time, amount decimal.Decimal) decimal.Decimal {
	w.mu.Lock()
	defer w.mu.Unlock()

	if at.After(w.edge) {
		w.edge = at
	}

	w.samples = append(w.samples, windowSample{at: at, amount: amount})
	w.sum = w.sum.Add(amount)

	cutoff := w.edge.Add(-w.frame)
	kept := w.samples[:0]
	for _, s := range w.samples {
		if s.at.Before(cutoff) {
			w.sum = w.sum.Sub(s.amount)
			continue
		}
		kept = append(kept, s)
	}
	w.samples = kept

	return w.sum
}

// WindowSet owns every rule identity's window state. Windows are created
// lazily on first observation and live for the process lifetime. Each window
// carries its own lock so unrelated identities never serialize on each other.
type WindowSet struct {
	mu      sync.RWMutex
	windows map[string]*window
	frames  map[string]time.Duration
}

// NewWindowSet builds an empty window store.
func NewWindowSet() *WindowSet {
	return &WindowSet{
		windows: make(map[string]*window),
		frames:  make(map[string]time.Duration),
	}
}

// Register fixes the time frame for an identity. Engine construction registers
// every windowed rule identity from configuration before any event flows.
func (ws *WindowSet) Register(id Identity) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	ws.frames[id.String()] = id.TimeFrame
}

// Observe records a transfer sample for the identity and returns the current
// window sum. The first observation for a fresh identity returns exactly its
// own amount.
func (ws *WindowSet) Observe(id Identity, at time.Time, amount decimal.Decimal) decimal.Decimal {
	key := id.String()

	ws.mu.RLock()
	w := ws.windows[key]
	ws.mu.RUnlock()

	if w == nil {
		ws.mu.Lock()
		w = ws.windows[key]
		if w == nil {
			frame, ok := ws.frames[key]
			if !ok {
				frame = id.TimeFrame
			}
			w = newWindow(frame)
			ws.windows[key] = w
		}
		ws.mu.Unlock()
	}

	return w.observe(at, amount)
}
