package alerting

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/FuelLabs/fuel-canary-watchtower/internal/event"
)

const defaultQueueDepth = 256

// Engine is the watchtower core. It owns one event queue per chain side, runs
// that side's rules in arrival order, and sequences deduplication and dispatch.
// Ordering across the two chain sides is not guaranteed and no rule depends
// on it.
type Engine struct {
	rules      map[event.ChainSide][]*Rule
	dedup      *Deduplicator
	dispatcher *Dispatcher
	metrics    *Metrics
	logger     zerolog.Logger

	queues map[event.ChainSide]chan event.Event
	wg     sync.WaitGroup
}

// NewEngine assembles the evaluation pipeline from a compiled rule set. Rules
// are grouped by chain side; each side's events are consumed by a dedicated
// goroutine so neither watcher can stall the other. Window state lives on the
// rules themselves.
func NewEngine(rules []*Rule, dedup *Deduplicator, dispatcher *Dispatcher, metrics *Metrics, logger zerolog.Logger) *Engine {
	grouped := make(map[event.ChainSide][]*Rule)
	for _, r := range rules {
		side := r.ID().Chain
		grouped[side] = append(grouped[side], r)
	}

	queues := map[event.ChainSide]chan event.Event{
		event.ChainFuel:     make(chan event.Event, defaultQueueDepth),
		event.ChainEthereum: make(chan event.Event, defaultQueueDepth),
	}

	return &Engine{
		rules:      grouped,
		dedup:      dedup,
		dispatcher: dispatcher,
		metrics:    metrics,
		logger:     logger.With().Str("component", "engine").Logger(),
		queues:     queues,
	}
}

// Queue returns the submission channel for a chain side. Watchers push their
// events here; the channel is owned by the engine and closed by no one.
func (e *Engine) Queue(side event.ChainSide) chan<- event.Event {
	return e.queues[side]
}

// Submit enqueues an event for its chain side, blocking until the engine
// accepts it or ctx is cancelled.
func (e *Engine) Submit(ctx context.Context, ev event.Event) bool {
	q, ok := e.queues[ev.Chain]
	if !ok {
		e.logger.Warn().Str("chain", string(ev.Chain)).Str("kind", ev.Kind.String()).Msg("dropping event for unknown chain side")
		if e.metrics != nil {
			e.metrics.EventsDropped.WithLabelValues(string(ev.Chain)).Inc()
		}
		return false
	}
	select {
	case q <- ev:
		return true
	case <-ctx.Done():
		if e.metrics != nil {
			e.metrics.EventsDropped.WithLabelValues(string(ev.Chain)).Inc()
		}
		return false
	}
}

// Run consumes both queues until ctx is cancelled, then drains whatever is
// already buffered before returning. Partial windows are not flushed anywhere.
func (e *Engine) Run(ctx context.Context) error {
	for side, q := range e.queues {
		e.wg.Add(1)
		go func(side event.ChainSide, q chan event.Event) {
			defer e.wg.Done()
			e.consume(ctx, side, q)
		}(side, q)
	}

	e.wg.Wait()
	return ctx.Err()
}

func (e *Engine) consume(ctx context.Context, side event.ChainSide, q chan event.Event) {
	for {
		select {
		case ev := <-q:
			e.process(ctx, ev)
		case <-ctx.Done():
			// In-flight events drain; new submissions fail on ctx.
			for {
				select {
				case ev := <-q:
					e.process(context.Background(), ev)
				default:
					e.logger.Debug().Str("chain", string(side)).Msg("event queue drained")
					return
				}
			}
		}
	}
}

// process runs one event through every rule on its chain side. A panicking
// rule is isolated: siblings still see the event and the stream continues.
func (e *Engine) process(ctx context.Context, ev event.Event) {
	if e.metrics != nil {
		e.metrics.EventsProcessed.WithLabelValues(string(ev.Chain)).Inc()
	}

	for _, r := range e.rules[ev.Chain] {
		alert, fired := e.evaluate(r, ev)
		if !fired {
			continue
		}
		if !e.dedup.Admit(alert) {
			continue
		}
		e.dispatcher.Dispatch(ctx, alert)
	}
}

func (e *Engine) evaluate(r *Rule, ev event.Event) (alert Alert, fired bool) {
	defer func() {
		if rec := recover(); rec != nil {
			fired = false
			if e.metrics != nil {
				e.metrics.RuleFailures.WithLabelValues(r.ID().String()).Inc()
			}
			e.logger.Error().
				Str("rule", r.ID().String()).
				Str("kind", ev.Kind.String()).
				Interface("panic", rec).
				Msg("rule evaluation failed; sibling rules unaffected")
		}
	}()
	return r.Evaluate(ev)
}
